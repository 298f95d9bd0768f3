// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"
)

// ErrorKind identifies an error in the A2A taxonomy. Every error crossing
// the wire carries its kind so callers can branch programmatically.
type ErrorKind string

// Error kinds.
const (
	ErrorKindValidation       ErrorKind = "validation"
	ErrorKindTaskNotFound     ErrorKind = "task_not_found"
	ErrorKindTaskClosed       ErrorKind = "task_closed"
	ErrorKindVersionConflict  ErrorKind = "version_conflict"
	ErrorKindConcurrency      ErrorKind = "concurrency"
	ErrorKindHandlerExecution ErrorKind = "handler_execution"
	ErrorKindStreamSequence   ErrorKind = "stream_sequence"
	ErrorKindTransport        ErrorKind = "transport"
	ErrorKindInternal         ErrorKind = "internal"
)

// ErrorObject is the structured error representation exchanged over the
// wire: a machine-readable kind plus a human message.
type ErrorObject struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	TaskID  string    `json:"taskId,omitzero"`
}

// Error implements the error interface.
func (e *ErrorObject) Error() string {
	return fmt.Sprintf("a2a error (%s): %s", e.Kind, e.Message)
}

// ValidationError reports a malformed Message or Part, rejected before any
// state mutation.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
	}
	return "validation error: " + e.Message
}

// TaskNotFoundError reports an operation addressed to an unknown task ID.
type TaskNotFoundError struct {
	TaskID string
}

// Error implements the error interface.
func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// TaskClosedError reports a mutation attempted on a task in a terminal
// state.
type TaskClosedError struct {
	TaskID string
	State  TaskState
}

// Error implements the error interface.
func (e *TaskClosedError) Error() string {
	return fmt.Sprintf("task %s is closed in state %s", e.TaskID, e.State)
}

// VersionConflictError reports an optimistic-concurrency write with a stale
// version. The task engine retries these internally; callers only observe
// ConcurrencyError once retries are exhausted.
type VersionConflictError struct {
	TaskID  string
	Version int64
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict for task %s at version %d", e.TaskID, e.Version)
}

// ConcurrencyError reports that the engine exhausted its conflict retry
// budget for a task mutation.
type ConcurrencyError struct {
	TaskID   string
	Attempts int
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("task %s mutation abandoned after %d conflicting attempts", e.TaskID, e.Attempts)
}

// HandlerExecutionError reports that the registered handler failed; the
// owning task, if any, has been moved to the failed state.
type HandlerExecutionError struct {
	TaskID string
	Err    error
}

// Error implements the error interface.
func (e *HandlerExecutionError) Error() string {
	if e.TaskID != "" {
		return fmt.Sprintf("handler execution failed for task %s: %v", e.TaskID, e.Err)
	}
	return fmt.Sprintf("handler execution failed: %v", e.Err)
}

// Unwrap returns the underlying handler error.
func (e *HandlerExecutionError) Unwrap() error {
	return e.Err
}

// StreamSequenceError reports a gap or regression in a stream's sequence
// numbers observed by a client. The stream must be treated as corrupted.
type StreamSequenceError struct {
	TaskID string
	Want   uint64
	Got    uint64
}

// Error implements the error interface.
func (e *StreamSequenceError) Error() string {
	return fmt.Sprintf("stream sequence gap for task %q: want %d, got %d", e.TaskID, e.Want, e.Got)
}

// TransportError reports a client-side network or protocol failure.
type TransportError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewErrorObject maps an error onto its wire representation. Errors outside
// the A2A taxonomy are reported with kind "internal".
func NewErrorObject(err error) *ErrorObject {
	switch e := err.(type) {
	case *ErrorObject:
		return e
	case *ValidationError:
		return &ErrorObject{Kind: ErrorKindValidation, Message: e.Error()}
	case *TaskNotFoundError:
		return &ErrorObject{Kind: ErrorKindTaskNotFound, Message: e.Error(), TaskID: e.TaskID}
	case *TaskClosedError:
		return &ErrorObject{Kind: ErrorKindTaskClosed, Message: e.Error(), TaskID: e.TaskID}
	case *VersionConflictError:
		return &ErrorObject{Kind: ErrorKindVersionConflict, Message: e.Error(), TaskID: e.TaskID}
	case *ConcurrencyError:
		return &ErrorObject{Kind: ErrorKindConcurrency, Message: e.Error(), TaskID: e.TaskID}
	case *HandlerExecutionError:
		return &ErrorObject{Kind: ErrorKindHandlerExecution, Message: e.Error(), TaskID: e.TaskID}
	case *StreamSequenceError:
		return &ErrorObject{Kind: ErrorKindStreamSequence, Message: e.Error(), TaskID: e.TaskID}
	case *TransportError:
		return &ErrorObject{Kind: ErrorKindTransport, Message: e.Error()}
	default:
		return &ErrorObject{Kind: ErrorKindInternal, Message: err.Error()}
	}
}

// DecodeError reconstructs a typed error from its wire representation so
// clients surface the server's taxonomy unchanged.
func DecodeError(obj *ErrorObject) error {
	if obj == nil {
		return nil
	}
	switch obj.Kind {
	case ErrorKindValidation:
		return &ValidationError{Message: obj.Message}
	case ErrorKindTaskNotFound:
		return &TaskNotFoundError{TaskID: obj.TaskID}
	case ErrorKindTaskClosed:
		return &TaskClosedError{TaskID: obj.TaskID}
	case ErrorKindVersionConflict:
		return &VersionConflictError{TaskID: obj.TaskID}
	case ErrorKindConcurrency:
		return &ConcurrencyError{TaskID: obj.TaskID}
	case ErrorKindHandlerExecution:
		return &HandlerExecutionError{TaskID: obj.TaskID, Err: fmt.Errorf("%s", obj.Message)}
	case ErrorKindStreamSequence:
		return &StreamSequenceError{TaskID: obj.TaskID}
	default:
		return obj
	}
}
