// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package task provides task persistence for the A2A server. The Store
// interface abstracts the storage mechanism so alternate backends can be
// swapped in without touching engine logic, as long as they preserve the
// optimistic-concurrency contract.
package task

import (
	"context"

	"github.com/agentwire/a2a"
)

// Store is the capability interface the task engine persists through. The
// store exclusively owns persisted task records; the engine holds no private
// copy.
type Store interface {
	// Get retrieves a task by its ID. Returns TaskNotFoundError if the task
	// does not exist.
	Get(ctx context.Context, taskID string) (*a2a.Task, error)

	// Put writes a task conditioned on its version counter. The caller's
	// task.Version must equal the stored version (0 for a task not yet
	// stored); on success the store bumps task.Version by one. A stale
	// version fails with VersionConflictError and leaves the stored record
	// untouched, forcing the engine to re-read and retry.
	Put(ctx context.Context, task *a2a.Task) error

	// List retrieves all tasks for a context, every task when contextID is
	// empty.
	List(ctx context.Context, contextID string) ([]*a2a.Task, error)
}
