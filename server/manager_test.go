// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/task"
)

// replyHandler answers every message with the same text.
func replyHandler(text string) MessageHandlerFunc {
	return func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		return a2a.NewAgentTextMessage(text, msg.ContextID)
	}
}

// pausingHandler never produces a response, leaving tasks in
// input-required after every message.
func pausingHandler() MessageHandlerFunc {
	return func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		return nil, nil
	}
}

func failingHandler(err error) MessageHandlerFunc {
	return func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		return nil, err
	}
}

func userMessage(t *testing.T, text, contextID string) *a2a.Message {
	t.Helper()
	msg, err := a2a.NewUserTextMessage(text, contextID)
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

// waitForTerminal polls until the task reaches a terminal state.
func waitForTerminal(t *testing.T, tm *TaskManager, taskID string) *a2a.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := tm.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status.State.Terminal() {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return nil
}

func TestNewTaskManager(t *testing.T) {
	if _, err := NewTaskManager(nil); err == nil {
		t.Error("expected error for nil handler")
	}
	if _, err := NewTaskManager(replyHandler("x"), WithQueueSize(-1)); err == nil {
		t.Error("expected error for negative queue size")
	}
	if _, err := NewTaskManager(replyHandler("x"), WithConflictRetries(0)); err == nil {
		t.Error("expected error for zero conflict retries")
	}
	if _, err := NewTaskManager(replyHandler("x")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTaskManager_CreateTaskScenario(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(replyHandler("hello"))
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "hi", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	if created.Status.State != a2a.TaskStateWorking {
		t.Errorf("state after create = %q, want %q", created.Status.State, a2a.TaskStateWorking)
	}

	final := waitForTerminal(t, tm, created.ID)
	if final.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("state = %q, want %q", final.Status.State, a2a.TaskStateCompleted)
	}
	if len(final.History) != 2 {
		t.Errorf("history length = %d, want 2", len(final.History))
	}
	if got := a2a.MessageText(final.Result, " "); got != "hello" {
		t.Errorf("result text = %q, want %q", got, "hello")
	}
}

func TestTaskManager_SendMessage_Identity(t *testing.T) {
	ctx := context.Background()
	identity := MessageHandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		return msg, nil
	})
	tm, err := NewTaskManager(identity)
	if err != nil {
		t.Fatal(err)
	}

	filePart, err := a2a.NewFilePartFromBytes("blob.bin", "application/octet-stream", []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	textPart, err := a2a.NewTextPart("echo me")
	if err != nil {
		t.Fatal(err)
	}
	msg, err := a2a.NewMessage(a2a.RoleUser, []a2a.Part{textPart, filePart}, "ctx")
	if err != nil {
		t.Fatal(err)
	}

	got, err := tm.SendMessage(ctx, msg)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(msg.Parts, got.Parts); diff != "" {
		t.Errorf("parts mismatch (-want +got):\n%s", diff)
	}
}

func TestTaskManager_SendMessage_HandlerFailure(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(failingHandler(errors.New("boom")))
	if err != nil {
		t.Fatal(err)
	}

	_, err = tm.SendMessage(ctx, userMessage(t, "hi", ""))
	var herr *a2a.HandlerExecutionError
	if !errors.As(err, &herr) {
		t.Fatalf("expected HandlerExecutionError, got %v", err)
	}
}

func TestTaskManager_SendTaskMessage_MultiTurn(t *testing.T) {
	ctx := context.Background()

	// Pause on the first message, answer on the second.
	var turns int
	var mu sync.Mutex
	handler := MessageHandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		mu.Lock()
		turns++
		n := turns
		mu.Unlock()
		if n == 1 {
			return nil, nil
		}
		return a2a.NewAgentTextMessage("final answer", msg.ContextID)
	})
	tm, err := NewTaskManager(handler)
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "start", "s1"))
	if err != nil {
		t.Fatal(err)
	}

	// First turn pauses the task.
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := tm.GetTask(ctx, created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status.State == a2a.TaskStateInputRequired {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task stuck in %q, want input-required", got.Status.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	final, err := tm.SendTaskMessage(ctx, created.ID, userMessage(t, "continue", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	if final.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %q, want %q", final.Status.State, a2a.TaskStateCompleted)
	}
	if len(final.History) != 3 {
		t.Errorf("history length = %d, want 3", len(final.History))
	}
	if got := a2a.MessageText(final.Result, " "); got != "final answer" {
		t.Errorf("result text = %q, want %q", got, "final answer")
	}
}

func TestTaskManager_SendTaskMessage_Closed(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(replyHandler("done"))
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "hi", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	waitForTerminal(t, tm, created.ID)

	_, err = tm.SendTaskMessage(ctx, created.ID, userMessage(t, "too late", "s1"))
	var closed *a2a.TaskClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("expected TaskClosedError, got %v", err)
	}
	if closed.State != a2a.TaskStateCompleted {
		t.Errorf("closed state = %q, want %q", closed.State, a2a.TaskStateCompleted)
	}
}

func TestTaskManager_SendTaskMessage_Unknown(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(replyHandler("x"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = tm.SendTaskMessage(ctx, "missing", userMessage(t, "hi", ""))
	var notFound *a2a.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected TaskNotFoundError, got %v", err)
	}
}

func TestTaskManager_SendTaskMessage_HandlerFailure(t *testing.T) {
	ctx := context.Background()

	var turns int
	var mu sync.Mutex
	handler := MessageHandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		mu.Lock()
		turns++
		n := turns
		mu.Unlock()
		if n == 1 {
			return nil, nil
		}
		return nil, errors.New("boom")
	})
	tm, err := NewTaskManager(handler)
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "start", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, tm, created.ID, a2a.TaskStateInputRequired)

	_, err = tm.SendTaskMessage(ctx, created.ID, userMessage(t, "again", "s1"))
	var herr *a2a.HandlerExecutionError
	if !errors.As(err, &herr) {
		t.Fatalf("expected HandlerExecutionError, got %v", err)
	}

	got, err := tm.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status.State != a2a.TaskStateFailed {
		t.Errorf("state = %q, want %q", got.Status.State, a2a.TaskStateFailed)
	}
	if got.Result == nil {
		t.Error("expected the handler error recorded as the terminal result")
	}
}

func TestTaskManager_ConcurrentSendsBothApplied(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(pausingHandler())
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "start", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, tm, created.ID, a2a.TaskStateInputRequired)

	first := userMessage(t, "first", "s1")
	second := userMessage(t, "second", "s1")

	var g errgroup.Group
	g.Go(func() error {
		_, err := tm.SendTaskMessage(ctx, created.ID, first)
		return err
	})
	g.Go(func() error {
		_, err := tm.SendTaskMessage(ctx, created.ID, second)
		return err
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	got, err := tm.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.History) != 3 {
		t.Fatalf("history length = %d, want 3 (initial + both sends)", len(got.History))
	}

	seen := map[string]bool{}
	for _, msg := range got.History {
		if seen[msg.MessageID] {
			t.Errorf("message %s appears twice in history", msg.MessageID)
		}
		seen[msg.MessageID] = true
	}
	if !seen[first.MessageID] || !seen[second.MessageID] {
		t.Error("one of the concurrent sends is missing from history")
	}
}

func TestTaskManager_QueuedSendsAfterCompletion(t *testing.T) {
	ctx := context.Background()

	// Pause on the first message; on the second, hold the invocation slot
	// open until released, then complete the task under the queued senders.
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var turns int
	var mu sync.Mutex
	handler := MessageHandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		mu.Lock()
		turns++
		n := turns
		mu.Unlock()
		if n == 1 {
			return nil, nil
		}
		if n == 2 {
			close(entered)
			<-proceed
		}
		return a2a.NewAgentTextMessage("done", msg.ContextID)
	})
	tm, err := NewTaskManager(handler)
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "start", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, tm, created.ID, a2a.TaskStateInputRequired)

	completing := userMessage(t, "completing", "s1")
	lateOne := userMessage(t, "late one", "s1")
	lateTwo := userMessage(t, "late two", "s1")

	results := make(chan error, 3)
	go func() {
		_, err := tm.SendTaskMessage(ctx, created.ID, completing)
		results <- err
	}()
	<-entered

	// Both late sends queue behind the in-flight completing invocation.
	for _, msg := range []*a2a.Message{lateOne, lateTwo} {
		go func() {
			_, err := tm.SendTaskMessage(ctx, created.ID, msg)
			results <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(proceed)

	var closedCount int
	for range 3 {
		select {
		case err := <-results:
			if err == nil {
				continue
			}
			var closed *a2a.TaskClosedError
			if !errors.As(err, &closed) {
				t.Errorf("queued send failed with %v, want TaskClosedError", err)
				continue
			}
			closedCount++
		case <-time.After(5 * time.Second):
			t.Fatal("a queued send never returned after the task completed")
		}
	}
	if closedCount != 2 {
		t.Errorf("sends rejected with TaskClosedError = %d, want 2", closedCount)
	}

	got, err := tm.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status.State != a2a.TaskStateCompleted {
		t.Errorf("state = %q, want %q", got.Status.State, a2a.TaskStateCompleted)
	}
}

func TestTaskManager_CancelTask_Idempotent(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(pausingHandler())
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "start", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, tm, created.ID, a2a.TaskStateInputRequired)

	canceled, err := tm.CancelTask(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if canceled.Status.State != a2a.TaskStateCanceled {
		t.Fatalf("state = %q, want %q", canceled.Status.State, a2a.TaskStateCanceled)
	}

	again, err := tm.CancelTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("second cancel must be a no-op, got %v", err)
	}
	if again.Status.State != a2a.TaskStateCanceled {
		t.Errorf("state after second cancel = %q, want %q", again.Status.State, a2a.TaskStateCanceled)
	}
}

func TestTaskManager_CancelTask_OnFailed(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(failingHandler(errors.New("boom")))
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "start", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	final := waitForTerminal(t, tm, created.ID)
	if final.Status.State != a2a.TaskStateFailed {
		t.Fatalf("state = %q, want %q", final.Status.State, a2a.TaskStateFailed)
	}

	_, err = tm.CancelTask(ctx, created.ID)
	var closed *a2a.TaskClosedError
	if !errors.As(err, &closed) {
		t.Fatalf("expected TaskClosedError, got %v", err)
	}
}

func TestTaskManager_CancelTask_CooperativeSignal(t *testing.T) {
	ctx := context.Background()

	handlerDone := make(chan error, 1)
	handler := MessageHandlerFunc(func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
		<-ctx.Done()
		handlerDone <- ctx.Err()
		return nil, ctx.Err()
	})
	tm, err := NewTaskManager(handler)
	if err != nil {
		t.Fatal(err)
	}

	created, err := tm.CreateTask(ctx, "s1", userMessage(t, "start", "s1"))
	if err != nil {
		t.Fatal(err)
	}

	canceled, err := tm.CancelTask(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if canceled.Status.State != a2a.TaskStateCanceled {
		t.Fatalf("state = %q, want %q", canceled.Status.State, a2a.TaskStateCanceled)
	}

	select {
	case err := <-handlerDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("handler context ended with %v, want Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never saw the cancellation signal")
	}

	// Cancellation won; the handler's late failure must not flip the state.
	got := waitForTerminal(t, tm, created.ID)
	if got.Status.State != a2a.TaskStateCanceled {
		t.Errorf("state = %q, want %q", got.Status.State, a2a.TaskStateCanceled)
	}
}

func TestTaskManager_CancelTask_Unknown(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(replyHandler("x"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = tm.CancelTask(ctx, "missing")
	var notFound *a2a.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected TaskNotFoundError, got %v", err)
	}
}

func TestTaskManager_ParallelTasks(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(replyHandler("ok"))
	if err != nil {
		t.Fatal(err)
	}

	const n = 8
	var g errgroup.Group
	ids := make([]string, n)
	for i := range n {
		g.Go(func() error {
			created, err := tm.CreateTask(ctx, fmt.Sprintf("ctx-%d", i), userMessage(t, "go", ""))
			if err != nil {
				return err
			}
			ids[i] = created.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for _, id := range ids {
		final := waitForTerminal(t, tm, id)
		if final.Status.State != a2a.TaskStateCompleted {
			t.Errorf("task %s ended %q, want completed", id, final.Status.State)
		}
	}
}

// conflictStore wraps a Store and fails every Put with a version conflict.
type conflictStore struct {
	task.Store
}

func (s *conflictStore) Put(ctx context.Context, t *a2a.Task) error {
	return &a2a.VersionConflictError{TaskID: t.ID, Version: t.Version}
}

func TestTaskManager_ConflictRetriesExhausted(t *testing.T) {
	ctx := context.Background()

	inner := task.NewInMemoryStore()
	seeded, err := a2a.NewTask("s1", userMessage(t, "hi", "s1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := inner.Put(ctx, seeded); err != nil {
		t.Fatal(err)
	}

	tm, err := NewTaskManager(replyHandler("x"),
		WithStore(&conflictStore{Store: inner}),
		WithConflictRetries(2))
	if err != nil {
		t.Fatal(err)
	}

	_, err = tm.CancelTask(ctx, seeded.ID)
	var conflict *a2a.ConcurrencyError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConcurrencyError, got %v", err)
	}
	if conflict.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", conflict.Attempts)
	}
}

func TestTaskManager_ListTasks(t *testing.T) {
	ctx := context.Background()
	tm, err := NewTaskManager(replyHandler("ok"))
	if err != nil {
		t.Fatal(err)
	}

	a1, err := tm.CreateTask(ctx, "ctx-a", userMessage(t, "one", "ctx-a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tm.CreateTask(ctx, "ctx-b", userMessage(t, "two", "ctx-b")); err != nil {
		t.Fatal(err)
	}
	waitForTerminal(t, tm, a1.ID)

	tasks, err := tm.ListTasks(ctx, "ctx-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].ContextID != "ctx-a" {
		t.Errorf("listed %d tasks for ctx-a, want exactly the one created there", len(tasks))
	}
}

func TestTaskManager_AgentCard(t *testing.T) {
	ctx := context.Background()

	card := &a2a.AgentCard{Name: "Test Agent", URL: "http://example.com", Version: "1.0.0"}
	tm, err := NewTaskManager(replyHandler("x"), WithAgentCard(card))
	if err != nil {
		t.Fatal(err)
	}

	got, err := tm.AgentCard(ctx, "http://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(card, got); diff != "" {
		t.Errorf("card mismatch (-want +got):\n%s", diff)
	}

	bare, err := NewTaskManager(replyHandler("x"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bare.AgentCard(ctx, "http://example.com"); !errors.Is(err, ErrNoAgentCard) {
		t.Errorf("expected ErrNoAgentCard, got %v", err)
	}
}

// waitForState polls until the task reaches the wanted state.
func waitForState(t *testing.T, tm *TaskManager, taskID string, want a2a.TaskState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := tm.GetTask(context.Background(), taskID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached state %q", taskID, want)
}
