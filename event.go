// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// EventKind identifies the concrete variant of a StreamEvent.
type EventKind string

// Stream event kinds.
const (
	EventKindMessageDelta EventKind = "message_delta"
	EventKindStatusChange EventKind = "status_change"
	EventKindDone         EventKind = "done"
	EventKindError        EventKind = "error"
)

// StreamEvent is one frame of an incremental agent response: a closed sum
// over MessageDeltaEvent, StatusChangeEvent, DoneEvent and ErrorEvent.
// Within a single stream, sequence numbers start at 0 and increase by
// exactly one per event; exactly one terminal event (Done or Error) ends a
// stream.
type StreamEvent interface {
	// EventKind returns the event kind for type discrimination.
	EventKind() EventKind

	// EventTaskID returns the owning task ID, empty for stateless streams.
	EventTaskID() string

	// EventSeq returns the event's position in the stream.
	EventSeq() uint64

	// Terminal reports whether no further events may follow.
	Terminal() bool
}

// MessageDeltaEvent carries an incremental piece of the agent's response.
type MessageDeltaEvent struct {
	TaskID string   `json:"taskId,omitzero"`
	Seq    uint64   `json:"seq"`
	Delta  *Message `json:"delta"`
}

// EventKind implements StreamEvent.
func (MessageDeltaEvent) EventKind() EventKind { return EventKindMessageDelta }

// EventTaskID implements StreamEvent.
func (e MessageDeltaEvent) EventTaskID() string { return e.TaskID }

// EventSeq implements StreamEvent.
func (e MessageDeltaEvent) EventSeq() uint64 { return e.Seq }

// Terminal implements StreamEvent.
func (MessageDeltaEvent) Terminal() bool { return false }

// StatusChangeEvent reports a task state transition observed mid-stream.
type StatusChangeEvent struct {
	TaskID string     `json:"taskId,omitzero"`
	Seq    uint64     `json:"seq"`
	Status TaskStatus `json:"status"`
}

// EventKind implements StreamEvent.
func (StatusChangeEvent) EventKind() EventKind { return EventKindStatusChange }

// EventTaskID implements StreamEvent.
func (e StatusChangeEvent) EventTaskID() string { return e.TaskID }

// EventSeq implements StreamEvent.
func (e StatusChangeEvent) EventSeq() uint64 { return e.Seq }

// Terminal implements StreamEvent.
func (StatusChangeEvent) Terminal() bool { return false }

// DoneEvent is the last event of a successful stream. Result carries the
// reconstructed agent response when the owning task completed.
type DoneEvent struct {
	TaskID string   `json:"taskId,omitzero"`
	Seq    uint64   `json:"seq"`
	Result *Message `json:"result,omitzero"`
}

// EventKind implements StreamEvent.
func (DoneEvent) EventKind() EventKind { return EventKindDone }

// EventTaskID implements StreamEvent.
func (e DoneEvent) EventTaskID() string { return e.TaskID }

// EventSeq implements StreamEvent.
func (e DoneEvent) EventSeq() uint64 { return e.Seq }

// Terminal implements StreamEvent.
func (DoneEvent) Terminal() bool { return true }

// ErrorEvent terminates a stream after a failure.
type ErrorEvent struct {
	TaskID string      `json:"taskId,omitzero"`
	Seq    uint64      `json:"seq"`
	Err    ErrorObject `json:"error"`
}

// EventKind implements StreamEvent.
func (ErrorEvent) EventKind() EventKind { return EventKindError }

// EventTaskID implements StreamEvent.
func (e ErrorEvent) EventTaskID() string { return e.TaskID }

// EventSeq implements StreamEvent.
func (e ErrorEvent) EventSeq() uint64 { return e.Seq }

// Terminal implements StreamEvent.
func (ErrorEvent) Terminal() bool { return true }

// EventWithSeq returns a copy of the event with its sequence number set.
// The server-side sequencer stamps sequence numbers; handlers never do.
func EventWithSeq(event StreamEvent, seq uint64) StreamEvent {
	switch e := event.(type) {
	case MessageDeltaEvent:
		e.Seq = seq
		return e
	case StatusChangeEvent:
		e.Seq = seq
		return e
	case DoneEvent:
		e.Seq = seq
		return e
	case ErrorEvent:
		e.Seq = seq
		return e
	default:
		return event
	}
}

// eventEnvelope is the wire representation of a StreamEvent with its kind
// discriminator.
type eventEnvelope struct {
	Kind   EventKind      `json:"kind"`
	TaskID string         `json:"taskId,omitzero"`
	Seq    uint64         `json:"seq"`
	Delta  jsontext.Value `json:"delta,omitzero"`
	Status *TaskStatus    `json:"status,omitzero"`
	Result jsontext.Value `json:"result,omitzero"`
	Error  *ErrorObject   `json:"error,omitzero"`
}

// MarshalStreamEvent encodes a StreamEvent into its wire envelope.
func MarshalStreamEvent(event StreamEvent) ([]byte, error) {
	env := eventEnvelope{
		Kind:   event.EventKind(),
		TaskID: event.EventTaskID(),
		Seq:    event.EventSeq(),
	}

	switch e := event.(type) {
	case MessageDeltaEvent:
		delta, err := json.Marshal(e.Delta)
		if err != nil {
			return nil, err
		}
		env.Delta = delta
	case StatusChangeEvent:
		status := e.Status
		env.Status = &status
	case DoneEvent:
		if e.Result != nil {
			result, err := json.Marshal(e.Result)
			if err != nil {
				return nil, err
			}
			env.Result = result
		}
	case ErrorEvent:
		errObj := e.Err
		env.Error = &errObj
	default:
		return nil, fmt.Errorf("unknown stream event type %T", event)
	}

	return json.Marshal(env)
}

// UnmarshalStreamEvent decodes a StreamEvent from its wire envelope.
func UnmarshalStreamEvent(data []byte) (StreamEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed stream event: %w", err)
	}

	switch env.Kind {
	case EventKindMessageDelta:
		var delta Message
		if err := json.Unmarshal(env.Delta, &delta); err != nil {
			return nil, fmt.Errorf("malformed message delta: %w", err)
		}
		return MessageDeltaEvent{TaskID: env.TaskID, Seq: env.Seq, Delta: &delta}, nil
	case EventKindStatusChange:
		if env.Status == nil {
			return nil, fmt.Errorf("status change event is missing its status")
		}
		return StatusChangeEvent{TaskID: env.TaskID, Seq: env.Seq, Status: *env.Status}, nil
	case EventKindDone:
		event := DoneEvent{TaskID: env.TaskID, Seq: env.Seq}
		if len(env.Result) > 0 {
			var result Message
			if err := json.Unmarshal(env.Result, &result); err != nil {
				return nil, fmt.Errorf("malformed done result: %w", err)
			}
			event.Result = &result
		}
		return event, nil
	case EventKindError:
		if env.Error == nil {
			return nil, fmt.Errorf("error event is missing its error object")
		}
		return ErrorEvent{TaskID: env.TaskID, Seq: env.Seq, Err: *env.Error}, nil
	default:
		return nil, fmt.Errorf("unknown stream event kind: %q", env.Kind)
	}
}
