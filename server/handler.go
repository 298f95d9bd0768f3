// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/event"
)

// MessageHandler is the extension point supplying actual agent behavior.
// The hosting application injects one at construction; the engine never
// exposes a settable handler field.
type MessageHandler interface {
	// OnMessageReceived processes one incoming message and returns the
	// agent's response. For a task-bound invocation a response completes
	// the task, while a nil response with a nil error leaves it in
	// input-required, awaiting the next client message. The context is
	// canceled when the owning task is canceled; handlers are expected to
	// observe it and stop.
	OnMessageReceived(ctx context.Context, msg *a2a.Message) (*a2a.Message, error)
}

// StreamingMessageHandler is implemented by handlers that produce their
// response incrementally. The handler enqueues MessageDeltaEvents (and,
// optionally, non-terminal StatusChangeEvents such as input-required) and
// returns when production is finished; the engine owns sequence numbers and
// terminal events, so handler-enqueued Done or Error events merely end
// production early.
type StreamingMessageHandler interface {
	MessageHandler

	// OnMessageReceivedStream processes one incoming message, writing
	// incremental events to q. A non-nil error moves the owning task to
	// failed.
	OnMessageReceivedStream(ctx context.Context, msg *a2a.Message, q *event.Queue) error
}

// CardProvider supplies the agent card for card queries.
type CardProvider interface {
	// OnAgentCardQuery returns the agent card advertised at baseURL.
	OnAgentCardQuery(ctx context.Context, baseURL string) (*a2a.AgentCard, error)
}

// LifecycleObserver receives task lifecycle notifications after each
// persisted transition. Callbacks run on the engine's goroutines and must
// not block.
type LifecycleObserver interface {
	OnTaskCreated(ctx context.Context, task *a2a.Task)
	OnTaskUpdated(ctx context.Context, task *a2a.Task)
	OnTaskCanceled(ctx context.Context, task *a2a.Task)
}

// MessageHandlerFunc adapts a plain function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error)

// OnMessageReceived implements MessageHandler.
func (f MessageHandlerFunc) OnMessageReceived(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
	return f(ctx, msg)
}
