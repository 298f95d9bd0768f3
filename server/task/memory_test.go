// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/agentwire/a2a"
)

func newTestTask(t *testing.T, contextID string) *a2a.Task {
	t.Helper()
	msg, err := a2a.NewUserTextMessage("hi", contextID)
	if err != nil {
		t.Fatal(err)
	}
	task, err := a2a.NewTask(contextID, msg)
	if err != nil {
		t.Fatal(err)
	}
	return task
}

func TestInMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	task := newTestTask(t, "ctx-1")

	if err := store.Put(ctx, task); err != nil {
		t.Fatal(err)
	}
	if task.Version != 1 {
		t.Errorf("version after first put = %d, want 1", task.Version)
	}

	got, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(task, got); diff != "" {
		t.Errorf("stored task mismatch (-want +got):\n%s", diff)
	}
}

func TestInMemoryStore_GetUnknown(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Get(ctx, "nope")
	var notFound *a2a.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected TaskNotFoundError, got %v", err)
	}
	if notFound.TaskID != "nope" {
		t.Errorf("taskID = %q, want %q", notFound.TaskID, "nope")
	}
}

func TestInMemoryStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	task := newTestTask(t, "ctx-1")

	if err := store.Put(ctx, task); err != nil {
		t.Fatal(err)
	}

	// Two readers take the same snapshot; the second write must lose.
	first, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}

	first.Status = a2a.NewTaskStatus(a2a.TaskStateWorking)
	if err := store.Put(ctx, first); err != nil {
		t.Fatal(err)
	}

	second.Status = a2a.NewTaskStatus(a2a.TaskStateCanceled)
	err = store.Put(ctx, second)
	var conflict *a2a.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected VersionConflictError, got %v", err)
	}

	// The losing write must not have clobbered the winner.
	current, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if current.Status.State != a2a.TaskStateWorking {
		t.Errorf("state = %q, want %q", current.Status.State, a2a.TaskStateWorking)
	}
}

func TestInMemoryStore_NewTaskRequiresVersionZero(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	task := newTestTask(t, "ctx-1")
	task.Version = 5

	err := store.Put(ctx, task)
	var conflict *a2a.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected VersionConflictError for unseen task at version 5, got %v", err)
	}
}

func TestInMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	task := newTestTask(t, "ctx-1")

	if err := store.Put(ctx, task); err != nil {
		t.Fatal(err)
	}

	// Mutations of a returned snapshot must not reach the store.
	got, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	got.Status.State = a2a.TaskStateFailed

	again, err := store.Get(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status.State != a2a.TaskStateSubmitted {
		t.Errorf("state = %q, want %q", again.Status.State, a2a.TaskStateSubmitted)
	}
}

func TestInMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	a := newTestTask(t, "ctx-a")
	b := newTestTask(t, "ctx-a")
	c := newTestTask(t, "ctx-b")
	for _, task := range []*a2a.Task{a, b, c} {
		if err := store.Put(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	tests := map[string]struct {
		contextID string
		wantCount int
	}{
		"filtered": {"ctx-a", 2},
		"other":    {"ctx-b", 1},
		"all":      {"", 3},
		"no match": {"ctx-z", 0},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tasks, err := store.List(ctx, tt.contextID)
			if err != nil {
				t.Fatal(err)
			}
			if len(tasks) != tt.wantCount {
				t.Errorf("got %d tasks, want %d", len(tasks), tt.wantCount)
			}
			for _, task := range tasks {
				if tt.contextID != "" && task.ContextID != tt.contextID {
					t.Errorf("task %s has context %q, want %q", task.ID, task.ContextID, tt.contextID)
				}
			}
		})
	}
}

func TestInMemoryStore_ClearAndSize(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if err := store.Put(ctx, newTestTask(t, "ctx-1")); err != nil {
		t.Fatal(err)
	}
	if store.Size() != 1 {
		t.Errorf("size = %d, want 1", store.Size())
	}
	store.Clear()
	if store.Size() != 0 {
		t.Errorf("size after clear = %d, want 0", store.Size())
	}
}
