// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package server implements the A2A task lifecycle engine: the state
// machine that moves tasks from creation through in-progress work to a
// terminal state, the per-task serialization of handler invocations, and
// the sequenced event streams for incremental agent output.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/task"
)

// DefaultConflictRetries is the default number of re-read attempts after a
// store version conflict before surfacing ConcurrencyError.
const DefaultConflictRetries = 3

// ErrStreamingNotSupported is returned for streaming operations when the
// injected handler does not implement StreamingMessageHandler.
var ErrStreamingNotSupported = errors.New("handler does not support streaming")

// ErrNoAgentCard is returned for card queries when neither a static card
// nor a card provider is configured.
var ErrNoAgentCard = errors.New("no agent card configured")

// TaskManager owns the task state machine. It dispatches incoming messages
// to the injected handler and persists every transition through the task
// store; the store is the single source of truth and the manager holds no
// private task copies.
//
// Handler invocations for the same task are serialized: a second message
// arriving while an invocation is outstanding queues and applies strictly
// after the first completes. Different tasks proceed fully in parallel.
type TaskManager struct {
	handler       MessageHandler
	streamHandler StreamingMessageHandler // nil when handler is not streaming

	store        task.Store
	card         *a2a.AgentCard
	cardProvider CardProvider
	observer     LifecycleObserver

	logger *slog.Logger
	tracer trace.Tracer

	queueSize       int
	conflictRetries int

	mu      sync.Mutex
	gates   map[string]chan struct{}
	cancels map[string]context.CancelFunc
}

// NewTaskManager creates a TaskManager around the given handler. The
// handler is required; streaming operations additionally require it to
// implement StreamingMessageHandler.
func NewTaskManager(handler MessageHandler, opts ...Option) (*TaskManager, error) {
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	tm := &TaskManager{
		handler:         handler,
		store:           task.NewInMemoryStore(),
		logger:          slog.Default(),
		tracer:          otel.Tracer("github.com/agentwire/a2a/server"),
		queueSize:       0, // event.NewQueue picks its default
		conflictRetries: DefaultConflictRetries,
		gates:           make(map[string]chan struct{}),
		cancels:         make(map[string]context.CancelFunc),
	}
	if sh, ok := handler.(StreamingMessageHandler); ok {
		tm.streamHandler = sh
	}

	for _, opt := range opts {
		if err := opt(tm); err != nil {
			return nil, err
		}
	}
	return tm, nil
}

// CreateTask allocates a new task for the initial message, persists it in
// the submitted state, transitions it to working, and invokes the handler
// asynchronously. The returned snapshot reflects the working state; the
// handler's outcome is observed through GetTask.
func (tm *TaskManager) CreateTask(ctx context.Context, contextID string, initial *a2a.Message) (*a2a.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.server/CreateTask")
	defer span.End()

	t, err := a2a.NewTask(contextID, initial)
	if err != nil {
		return nil, err
	}
	if err := tm.store.Put(ctx, t); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("a2a.task_id", t.ID))
	tm.logger.InfoContext(ctx, "task created",
		slog.String("task_id", t.ID),
		slog.String("context_id", t.ContextID))

	if tm.observer != nil {
		tm.observer.OnTaskCreated(ctx, t.Clone())
	}

	if err := tm.acquireGate(ctx, t.ID); err != nil {
		return nil, err
	}

	working, err := tm.mutateTask(ctx, t.ID, func(cur *a2a.Task) error {
		cur.Status = a2a.NewTaskStatus(a2a.TaskStateWorking)
		return nil
	})
	if err != nil {
		tm.releaseGate(t.ID)
		return nil, err
	}

	go func() {
		// The request context may end as soon as CreateTask returns; the
		// invocation lives on, canceled only by CancelTask.
		bg := context.WithoutCancel(ctx)
		_ = tm.runInvocation(bg, working.ID, initial)
		tm.releaseGate(working.ID)
	}()

	return working, nil
}

// SendTaskMessage appends a message to an existing task, re-invokes the
// handler, and returns the resulting task. Fails with TaskNotFoundError for
// an unknown ID and TaskClosedError for a terminal task. The call blocks
// while an earlier invocation for the same task is outstanding.
func (tm *TaskManager) SendTaskMessage(ctx context.Context, taskID string, msg *a2a.Message) (*a2a.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.server/SendTaskMessage",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	if err := msg.Validate(); err != nil {
		return nil, err
	}
	// Surface unknown IDs before queueing on the gate.
	if _, err := tm.store.Get(ctx, taskID); err != nil {
		return nil, err
	}

	if err := tm.acquireGate(ctx, taskID); err != nil {
		return nil, err
	}
	if _, err := tm.acceptMessage(ctx, taskID, msg); err != nil {
		tm.releaseGate(taskID)
		return nil, err
	}

	invErr := tm.runInvocation(ctx, taskID, msg)
	final, getErr := tm.store.Get(ctx, taskID)
	tm.releaseGate(taskID)

	if invErr != nil {
		return nil, invErr
	}
	if getErr != nil {
		return nil, getErr
	}
	return final, nil
}

// SendMessage is the stateless path: no task is created or persisted, the
// handler is invoked directly and its response returned. Stateless calls
// carry no ordering relationship to each other or to any task.
func (tm *TaskManager) SendMessage(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.server/SendMessage")
	defer span.End()

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	resp, err := tm.handler.OnMessageReceived(ctx, msg)
	if err != nil {
		return nil, &a2a.HandlerExecutionError{Err: err}
	}
	if err := resp.Validate(); err != nil {
		return nil, &a2a.HandlerExecutionError{Err: err}
	}
	return resp, nil
}

// GetTask returns a read-only snapshot of a task.
func (tm *TaskManager) GetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.server/GetTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	return tm.store.Get(ctx, taskID)
}

// ListTasks returns snapshots of all tasks for a context, every task when
// contextID is empty.
func (tm *TaskManager) ListTasks(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	return tm.store.List(ctx, contextID)
}

// CancelTask transitions a task to canceled. Valid from submitted, working
// and input-required; idempotent from canceled; fails with TaskClosedError
// from completed or failed. Cancellation is cooperative: an in-flight
// handler invocation sees its context canceled but is not interrupted.
func (tm *TaskManager) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.server/CancelTask",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	var noop bool
	t, err := tm.mutateTask(ctx, taskID, func(cur *a2a.Task) error {
		switch cur.Status.State {
		case a2a.TaskStateCanceled:
			noop = true
			return errSkipWrite
		case a2a.TaskStateCompleted, a2a.TaskStateFailed:
			return &a2a.TaskClosedError{TaskID: taskID, State: cur.Status.State}
		}
		cur.Status = a2a.NewTaskStatus(a2a.TaskStateCanceled)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if noop {
		return t, nil
	}

	tm.logger.InfoContext(ctx, "task canceled", slog.String("task_id", taskID))
	tm.signalCancel(taskID)
	if tm.observer != nil {
		tm.observer.OnTaskCanceled(ctx, t.Clone())
	}
	return t, nil
}

// AgentCard resolves the agent card for a card query.
func (tm *TaskManager) AgentCard(ctx context.Context, baseURL string) (*a2a.AgentCard, error) {
	if tm.cardProvider != nil {
		return tm.cardProvider.OnAgentCardQuery(ctx, baseURL)
	}
	if tm.card != nil {
		return tm.card, nil
	}
	return nil, ErrNoAgentCard
}

// acceptMessage appends msg to the task history and moves the task to
// working. Must be called with the task's gate held.
func (tm *TaskManager) acceptMessage(ctx context.Context, taskID string, msg *a2a.Message) (*a2a.Task, error) {
	return tm.mutateTask(ctx, taskID, func(cur *a2a.Task) error {
		if cur.Status.State.Terminal() {
			return &a2a.TaskClosedError{TaskID: taskID, State: cur.Status.State}
		}
		cur.History = append(cur.History, msg)
		cur.Status = a2a.NewTaskStatus(a2a.TaskStateWorking)
		return nil
	})
}

// runInvocation performs one non-streaming handler invocation for the task
// and persists its outcome: a response completes the task, a nil response
// pauses it in input-required to await the next client message. Must be
// called with the task's gate held. Returns HandlerExecutionError when the
// handler failed.
func (tm *TaskManager) runInvocation(ctx context.Context, taskID string, msg *a2a.Message) error {
	invCtx, cancel := context.WithCancel(ctx)
	tm.registerCancel(taskID, cancel)
	defer tm.unregisterCancel(taskID)

	// A cancel that landed before this invocation registered must still
	// reach the handler.
	if tm.isTerminal(ctx, taskID) {
		cancel()
	}

	resp, herr := tm.handler.OnMessageReceived(invCtx, msg)
	if herr == nil && resp != nil {
		if verr := resp.Validate(); verr != nil {
			herr = verr
		}
	}

	if herr != nil {
		tm.failTask(ctx, taskID, herr)
		return &a2a.HandlerExecutionError{TaskID: taskID, Err: herr}
	}

	t, err := tm.mutateTask(ctx, taskID, func(cur *a2a.Task) error {
		if cur.Status.State.Terminal() {
			// Cancellation won the race; the response is dropped.
			return errSkipWrite
		}
		if resp == nil {
			cur.Status = a2a.NewTaskStatus(a2a.TaskStateInputRequired)
			return nil
		}
		cur.History = append(cur.History, resp)
		cur.Result = resp
		cur.Status = a2a.NewTaskStatus(a2a.TaskStateCompleted)
		return nil
	})
	if err != nil {
		return err
	}

	if resp == nil {
		tm.logger.InfoContext(ctx, "task awaiting input", slog.String("task_id", taskID))
	} else {
		tm.logger.InfoContext(ctx, "task completed", slog.String("task_id", taskID))
	}
	if tm.observer != nil {
		tm.observer.OnTaskUpdated(ctx, t.Clone())
	}
	return nil
}

// failTask records a handler failure as the task's terminal result. A task
// already terminal (canceled in the meantime) is left untouched.
func (tm *TaskManager) failTask(ctx context.Context, taskID string, herr error) {
	result, _ := a2a.NewAgentTextMessage(herr.Error(), "")
	t, err := tm.mutateTask(ctx, taskID, func(cur *a2a.Task) error {
		if cur.Status.State.Terminal() {
			return errSkipWrite
		}
		if result != nil {
			result.ContextID = cur.ContextID
			cur.Result = result
		}
		cur.Status = a2a.NewTaskStatus(a2a.TaskStateFailed)
		return nil
	})
	if err != nil {
		tm.logger.ErrorContext(ctx, "failed to record handler failure",
			slog.String("task_id", taskID), slog.Any("error", err))
		return
	}

	tm.logger.WarnContext(ctx, "task failed",
		slog.String("task_id", taskID), slog.Any("error", herr))
	if tm.observer != nil {
		tm.observer.OnTaskUpdated(ctx, t.Clone())
	}
}

// errSkipWrite aborts a mutateTask cycle without writing and without
// surfacing an error: the current task snapshot is returned unchanged.
var errSkipWrite = errors.New("skip write")

// mutateTask runs one read-modify-write cycle against the store, retrying
// version conflicts with a re-read up to the configured budget before
// surfacing ConcurrencyError.
func (tm *TaskManager) mutateTask(ctx context.Context, taskID string, mutate func(*a2a.Task) error) (*a2a.Task, error) {
	for attempt := 0; attempt < tm.conflictRetries; attempt++ {
		cur, err := tm.store.Get(ctx, taskID)
		if err != nil {
			return nil, err
		}

		if err := mutate(cur); err != nil {
			if errors.Is(err, errSkipWrite) {
				return cur, nil
			}
			return nil, err
		}

		err = tm.store.Put(ctx, cur)
		if err == nil {
			return cur, nil
		}
		var conflict *a2a.VersionConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
		tm.logger.DebugContext(ctx, "retrying task mutation after version conflict",
			slog.String("task_id", taskID), slog.Int("attempt", attempt+1))
	}
	return nil, &a2a.ConcurrencyError{TaskID: taskID, Attempts: tm.conflictRetries}
}

// isTerminal reports whether the task is currently in a terminal state.
func (tm *TaskManager) isTerminal(ctx context.Context, taskID string) bool {
	t, err := tm.store.Get(ctx, taskID)
	return err == nil && t.Status.State.Terminal()
}

// acquireGate blocks until the task's invocation slot is free. Invocations
// apply in gate-acquisition order, which is the engine's acceptance order.
func (tm *TaskManager) acquireGate(ctx context.Context, taskID string) error {
	tm.mu.Lock()
	gate, ok := tm.gates[taskID]
	if !ok {
		gate = make(chan struct{}, 1)
		tm.gates[taskID] = gate
	}
	tm.mu.Unlock()

	select {
	case gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// releaseGate frees the task's invocation slot, waking the next queued
// sender. A gate lives as long as the task's store record, terminal or not:
// senders queued behind a closing invocation still acquire it and are turned
// away by acceptMessage with TaskClosedError rather than left blocked on a
// dropped channel.
func (tm *TaskManager) releaseGate(taskID string) {
	tm.mu.Lock()
	gate, ok := tm.gates[taskID]
	tm.mu.Unlock()

	if ok {
		<-gate
	}
}

func (tm *TaskManager) registerCancel(taskID string, cancel context.CancelFunc) {
	tm.mu.Lock()
	tm.cancels[taskID] = cancel
	tm.mu.Unlock()
}

func (tm *TaskManager) unregisterCancel(taskID string) {
	tm.mu.Lock()
	cancel, ok := tm.cancels[taskID]
	delete(tm.cancels, taskID)
	tm.mu.Unlock()
	if ok {
		cancel()
	}
}

// signalCancel cancels the task's in-flight handler invocation, if any.
func (tm *TaskManager) signalCancel(taskID string) {
	tm.mu.Lock()
	cancel, ok := tm.cancels[taskID]
	tm.mu.Unlock()
	if ok {
		cancel()
	}
}
