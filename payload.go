// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

// Method names the wire operations. Each method is served at the HTTP path
// "/" + Method.
type Method string

const (
	// MethodMessageSend is the stateless request/response operation.
	MethodMessageSend Method = "message/send"

	// MethodMessageStream is the stateless streaming operation.
	MethodMessageStream Method = "message/stream"

	// MethodTasksCreate creates a task from an initial message.
	MethodTasksCreate Method = "tasks/create"

	// MethodTasksSend appends a message to a task and waits for the
	// handler's response.
	MethodTasksSend Method = "tasks/send"

	// MethodTasksSendStream appends a message to a task and streams the
	// handler's response.
	MethodTasksSendStream Method = "tasks/sendStream"

	// MethodTasksGet fetches a task snapshot.
	MethodTasksGet Method = "tasks/get"

	// MethodTasksCancel cancels a task.
	MethodTasksCancel Method = "tasks/cancel"

	// MethodTasksList lists tasks, optionally filtered by context.
	MethodTasksList Method = "tasks/list"
)

// SendMessageParams is the request body for message/send and
// message/stream.
type SendMessageParams struct {
	Message *Message `json:"message"`
}

// Validate checks the params for wire validity.
func (p *SendMessageParams) Validate() error {
	if p.Message == nil {
		return &ValidationError{Field: "message", Message: "message is required"}
	}
	return p.Message.Validate()
}

// CreateTaskParams is the request body for tasks/create.
type CreateTaskParams struct {
	ContextID string   `json:"contextId,omitzero"`
	Message   *Message `json:"message"`
}

// Validate checks the params for wire validity.
func (p *CreateTaskParams) Validate() error {
	if p.Message == nil {
		return &ValidationError{Field: "message", Message: "message is required"}
	}
	return p.Message.Validate()
}

// TaskMessageParams is the request body for tasks/send and
// tasks/sendStream.
type TaskMessageParams struct {
	TaskID  string   `json:"taskId"`
	Message *Message `json:"message"`
}

// Validate checks the params for wire validity.
func (p *TaskMessageParams) Validate() error {
	if p.TaskID == "" {
		return &ValidationError{Field: "taskId", Message: "task ID is required"}
	}
	if p.Message == nil {
		return &ValidationError{Field: "message", Message: "message is required"}
	}
	return p.Message.Validate()
}

// TaskIDParams is the request body for tasks/get and tasks/cancel.
type TaskIDParams struct {
	TaskID string `json:"taskId"`
}

// Validate checks the params for wire validity.
func (p *TaskIDParams) Validate() error {
	if p.TaskID == "" {
		return &ValidationError{Field: "taskId", Message: "task ID is required"}
	}
	return nil
}

// ListTasksParams is the request body for tasks/list. An empty ContextID
// selects every task.
type ListTasksParams struct {
	ContextID string `json:"contextId,omitzero"`
}

// Validate checks the params for wire validity.
func (p *ListTasksParams) Validate() error {
	return nil
}

// SendMessageResult is the result payload for message/send.
type SendMessageResult struct {
	Message *Message `json:"message"`
}
