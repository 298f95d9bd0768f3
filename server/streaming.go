// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/event"
)

// SendTaskMessageStream appends a message to an existing task and invokes
// the streaming handler, returning a channel of sequenced events. Events
// carry gap-free sequence numbers starting at 0; a successfully completed
// stream ends with a terminal Done or Error event, while a stream whose
// context is canceled ends with no terminal event at all.
//
// The channel is closed when the stream ends; the caller must drain it.
func (tm *TaskManager) SendTaskMessageStream(ctx context.Context, taskID string, msg *a2a.Message) (<-chan a2a.StreamEvent, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.server/SendTaskMessageStream",
		trace.WithAttributes(attribute.String("a2a.task_id", taskID)))
	defer span.End()

	if tm.streamHandler == nil {
		return nil, ErrStreamingNotSupported
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
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

	queue, err := event.NewQueue(tm.queueSize)
	if err != nil {
		tm.releaseGate(taskID)
		return nil, err
	}

	invCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tm.registerCancel(taskID, cancel)
	if tm.isTerminal(ctx, taskID) {
		cancel()
	}

	handlerErr := make(chan error, 1)
	go func() {
		handlerErr <- tm.streamHandler.OnMessageReceivedStream(invCtx, msg, queue)
		queue.Close()
	}()

	out := make(chan a2a.StreamEvent)
	go func() {
		defer close(out)
		defer func() {
			tm.unregisterCancel(taskID)
			tm.releaseGate(taskID)
		}()
		tm.sequenceTaskStream(ctx, taskID, queue, handlerErr, out)
	}()
	return out, nil
}

// SendMessageStream is the stateless streaming path: the handler's deltas
// are sequenced and relayed without any task or persistence. The stream
// ends with Done carrying the merged agent message, or Error on handler
// failure.
func (tm *TaskManager) SendMessageStream(ctx context.Context, msg *a2a.Message) (<-chan a2a.StreamEvent, error) {
	ctx, span := tm.tracer.Start(ctx, "a2a.server/SendMessageStream")
	defer span.End()

	if tm.streamHandler == nil {
		return nil, ErrStreamingNotSupported
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	queue, err := event.NewQueue(tm.queueSize)
	if err != nil {
		return nil, err
	}

	handlerErr := make(chan error, 1)
	go func() {
		handlerErr <- tm.streamHandler.OnMessageReceivedStream(ctx, msg, queue)
		queue.Close()
	}()

	out := make(chan a2a.StreamEvent)
	go func() {
		defer close(out)
		tm.sequenceStatelessStream(ctx, queue, handlerErr, out)
	}()
	return out, nil
}

// sequenceTaskStream is the single writer of sequence numbers for one task
// stream. It relays handler events with stamped seq values, persists
// handler-announced status changes, and closes the task out with a
// terminal transition and event once production ends.
func (tm *TaskManager) sequenceTaskStream(ctx context.Context, taskID string, queue *event.Queue, handlerErr <-chan error, out chan<- a2a.StreamEvent) {
	var (
		seq           uint64
		parts         []a2a.Part
		contextID     string
		inputRequired bool
		disconnected  bool
	)

	emit := func(ev a2a.StreamEvent) bool {
		if disconnected {
			return false
		}
		select {
		case out <- a2a.EventWithSeq(ev, seq):
			seq++
			return true
		case <-ctx.Done():
			disconnected = true
			return false
		}
	}

	if t, err := tm.store.Get(ctx, taskID); err == nil {
		contextID = t.ContextID
	}
	emit(a2a.StatusChangeEvent{TaskID: taskID, Status: a2a.NewTaskStatus(a2a.TaskStateWorking)})

	for {
		ev, err := queue.Dequeue(ctx)
		if err != nil {
			// Queue closed and drained, or the stream context ended.
			if ctx.Err() != nil {
				disconnected = true
				tm.signalCancel(taskID)
				tm.drainClosed(queue)
			}
			break
		}

		switch ev := ev.(type) {
		case a2a.MessageDeltaEvent:
			if ev.Delta != nil {
				parts = append(parts, ev.Delta.Parts...)
			}
			ev.TaskID = taskID
			emit(ev)
		case a2a.StatusChangeEvent:
			if ev.Status.State.Terminal() {
				// Terminal transitions belong to the engine; the handler
				// signals outcome by returning.
				continue
			}
			if ev.Status.State == a2a.TaskStateInputRequired {
				inputRequired = true
			}
			if _, err := tm.mutateTask(ctx, taskID, func(cur *a2a.Task) error {
				if cur.Status.State.Terminal() {
					return errSkipWrite
				}
				cur.Status = ev.Status
				return nil
			}); err != nil {
				tm.logger.WarnContext(ctx, "failed to persist status change",
					slog.String("task_id", taskID), slog.Any("error", err))
			}
			ev.TaskID = taskID
			emit(ev)
		case a2a.DoneEvent, a2a.ErrorEvent:
			// The handler is done producing; its return value decides the
			// outcome.
			tm.drainClosed(queue)
		}
	}

	herr := <-handlerErr

	if herr != nil {
		failed := tm.recordStreamFailure(ctx, taskID, herr)
		if disconnected || !failed {
			// Canceled or disconnected streams end without a terminal event.
			return
		}
		emit(a2a.StatusChangeEvent{TaskID: taskID, Status: a2a.NewTaskStatus(a2a.TaskStateFailed)})
		emit(a2a.ErrorEvent{TaskID: taskID, Err: *a2a.NewErrorObject(&a2a.HandlerExecutionError{TaskID: taskID, Err: herr})})
		return
	}

	if inputRequired {
		// The task pauses for more input; the stream closes cleanly without
		// a result and the task stays open.
		if !disconnected {
			emit(a2a.DoneEvent{TaskID: taskID})
		}
		return
	}

	var result *a2a.Message
	if len(parts) > 0 {
		result, _ = a2a.NewMessage(a2a.RoleAgent, parts, contextID)
	}
	completed := tm.completeStream(ctx, taskID, result)
	if disconnected || !completed {
		return
	}
	emit(a2a.StatusChangeEvent{TaskID: taskID, Status: a2a.NewTaskStatus(a2a.TaskStateCompleted)})
	emit(a2a.DoneEvent{TaskID: taskID, Result: result})
}

// sequenceStatelessStream relays handler events with stamped sequence
// numbers and no persistence. Status changes pass through untouched except
// terminal ones, which only the sequencer itself may emit.
func (tm *TaskManager) sequenceStatelessStream(ctx context.Context, queue *event.Queue, handlerErr <-chan error, out chan<- a2a.StreamEvent) {
	var (
		seq          uint64
		parts        []a2a.Part
		disconnected bool
	)

	emit := func(ev a2a.StreamEvent) {
		if disconnected {
			return
		}
		select {
		case out <- a2a.EventWithSeq(ev, seq):
			seq++
		case <-ctx.Done():
			disconnected = true
		}
	}

	for {
		ev, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				disconnected = true
				tm.drainClosed(queue)
			}
			break
		}
		switch ev := ev.(type) {
		case a2a.MessageDeltaEvent:
			if ev.Delta != nil {
				parts = append(parts, ev.Delta.Parts...)
			}
			emit(ev)
		case a2a.StatusChangeEvent:
			if ev.Status.State.Terminal() {
				continue
			}
			emit(ev)
		case a2a.DoneEvent, a2a.ErrorEvent:
			tm.drainClosed(queue)
		}
	}

	herr := <-handlerErr
	if disconnected {
		return
	}

	if herr != nil {
		emit(a2a.ErrorEvent{Err: *a2a.NewErrorObject(&a2a.HandlerExecutionError{Err: herr})})
		return
	}

	var result *a2a.Message
	if len(parts) > 0 {
		result, _ = a2a.NewMessage(a2a.RoleAgent, parts, "")
	}
	emit(a2a.DoneEvent{Result: result})
}

// recordStreamFailure persists the failed state for a streaming handler
// error. Reports false when the task was already terminal, meaning
// cancellation won and no failure events should be emitted.
func (tm *TaskManager) recordStreamFailure(ctx context.Context, taskID string, herr error) bool {
	wrote := false
	result, _ := a2a.NewAgentTextMessage(herr.Error(), "")
	t, err := tm.mutateTask(context.WithoutCancel(ctx), taskID, func(cur *a2a.Task) error {
		if cur.Status.State.Terminal() {
			return errSkipWrite
		}
		if result != nil {
			result.ContextID = cur.ContextID
			cur.Result = result
		}
		cur.Status = a2a.NewTaskStatus(a2a.TaskStateFailed)
		wrote = true
		return nil
	})
	if err != nil {
		tm.logger.ErrorContext(ctx, "failed to record stream failure",
			slog.String("task_id", taskID), slog.Any("error", err))
		return false
	}

	if wrote {
		tm.logger.WarnContext(ctx, "task failed",
			slog.String("task_id", taskID), slog.Any("error", herr))
		if tm.observer != nil {
			tm.observer.OnTaskUpdated(ctx, t.Clone())
		}
	}
	return wrote
}

// completeStream persists the completed state and merged result for a
// finished stream. Reports false when the task was already terminal.
func (tm *TaskManager) completeStream(ctx context.Context, taskID string, result *a2a.Message) bool {
	wrote := false
	t, err := tm.mutateTask(context.WithoutCancel(ctx), taskID, func(cur *a2a.Task) error {
		if cur.Status.State.Terminal() {
			return errSkipWrite
		}
		if result != nil {
			result.ContextID = cur.ContextID
			cur.History = append(cur.History, result)
			cur.Result = result
		}
		cur.Status = a2a.NewTaskStatus(a2a.TaskStateCompleted)
		wrote = true
		return nil
	})
	if err != nil {
		tm.logger.ErrorContext(ctx, "failed to record stream completion",
			slog.String("task_id", taskID), slog.Any("error", err))
		return false
	}

	if wrote {
		tm.logger.InfoContext(ctx, "task completed", slog.String("task_id", taskID))
		if tm.observer != nil {
			tm.observer.OnTaskUpdated(ctx, t.Clone())
		}
	}
	return wrote
}

// drainClosed discards any events still buffered in a queue that is being
// shut down, unblocking a producer stuck on a full buffer.
func (tm *TaskManager) drainClosed(queue *event.Queue) {
	for {
		if _, err := queue.Dequeue(context.Background()); err != nil {
			return
		}
	}
}
