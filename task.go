// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"time"

	"github.com/google/uuid"
)

// TaskState represents the lifecycle state of a task.
type TaskState string

// Task states. Tasks move submitted → working → one of the terminal states,
// with input-required able to return to working on a further client message.
const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether the state accepts no further mutation.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// TaskStatus is the current state of a task with the time it was entered.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Timestamp string    `json:"timestamp,omitzero"`
}

// NewTaskStatus creates a TaskStatus for state stamped with the current time.
func NewTaskStatus(state TaskState) TaskStatus {
	return TaskStatus{
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Task is a stateful, multi-turn exchange between client and agent. Its
// record is owned by the task store; the engine mutates it only through
// read-modify-write cycles, with Version detecting stale writes. History is
// append-only; Result is set once a terminal state is reached.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	History   []*Message `json:"history"`
	Result    *Message   `json:"result,omitzero"`
	Version   int64      `json:"version"`
}

// Validate ensures the Task is well formed.
func (t *Task) Validate() error {
	if t == nil {
		return &ValidationError{Field: "task", Message: "task cannot be nil"}
	}
	if t.ID == "" {
		return &ValidationError{Field: "id", Message: "task ID cannot be empty"}
	}
	if t.ContextID == "" {
		return &ValidationError{Field: "contextId", Message: "task context ID cannot be empty"}
	}
	switch t.Status.State {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
	default:
		return &ValidationError{Field: "status.state", Message: "unknown task state: " + string(t.Status.State)}
	}
	for _, msg := range t.History {
		if err := msg.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewTask creates a Task in the submitted state with the initial message as
// its first history entry. Generates a task ID, and a context ID when the
// caller provides none.
func NewTask(contextID string, initial *Message) (*Task, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if contextID == "" {
		if initial.ContextID != "" {
			contextID = initial.ContextID
		} else {
			contextID = uuid.NewString()
		}
	}

	return &Task{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Status:    NewTaskStatus(TaskStateSubmitted),
		History:   []*Message{initial},
	}, nil
}

// Clone returns a deep copy of the task. Message parts are immutable, so
// part values are shared.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	clone := &Task{
		ID:        t.ID,
		ContextID: t.ContextID,
		Status:    t.Status,
		Version:   t.Version,
	}
	if t.History != nil {
		clone.History = make([]*Message, len(t.History))
		for i, msg := range t.History {
			clone.History[i] = cloneMessage(msg)
		}
	}
	clone.Result = cloneMessage(t.Result)
	return clone
}

func cloneMessage(m *Message) *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Parts = make([]Part, len(m.Parts))
	copy(clone.Parts, m.Parts)
	return &clone
}
