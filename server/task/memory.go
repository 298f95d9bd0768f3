// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"sync"

	"github.com/agentwire/a2a"
)

// InMemoryStore is the reference Store implementation: a map behind a single
// mutual-exclusion scope. Task data is lost when the process stops.
type InMemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*a2a.Task
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks: make(map[string]*a2a.Task),
	}
}

// Get retrieves a task by its ID.
func (s *InMemoryStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, &a2a.ValidationError{Field: "taskId", Message: "task ID cannot be empty"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.tasks[taskID]
	if !ok {
		return nil, &a2a.TaskNotFoundError{TaskID: taskID}
	}

	// Copies on the way out keep callers from mutating the stored record.
	return stored.Clone(), nil
}

// Put writes a task conditioned on its version counter.
func (s *InMemoryStore) Put(ctx context.Context, task *a2a.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.tasks[task.ID]
	switch {
	case !ok:
		if task.Version != 0 {
			return &a2a.VersionConflictError{TaskID: task.ID, Version: task.Version}
		}
	case stored.Version != task.Version:
		return &a2a.VersionConflictError{TaskID: task.ID, Version: task.Version}
	}

	task.Version++
	s.tasks[task.ID] = task.Clone()
	return nil
}

// List retrieves all tasks for a context, every task when contextID is
// empty.
func (s *InMemoryStore) List(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*a2a.Task
	for _, stored := range s.tasks {
		if contextID != "" && stored.ContextID != contextID {
			continue
		}
		tasks = append(tasks, stored.Clone())
	}
	return tasks, nil
}

// Clear removes all tasks. Useful in tests.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = make(map[string]*a2a.Task)
}

// Size returns the number of stored tasks.
func (s *InMemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}
