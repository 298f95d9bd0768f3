// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements an A2A protocol client: unary operations over
// HTTP+JSON and streaming operations over Server-Sent Events, with the
// server's error taxonomy reconstructed on this side of the wire.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"github.com/agentwire/a2a"
)

const defaultStreamBuffer = 64

// Client talks to one A2A agent endpoint. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	retry      *RetryConfig

	streamBuffer int

	mu   sync.Mutex
	card *a2a.AgentCard
}

// New creates a client for the agent at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       slog.Default(),
		retry:        DefaultRetryConfig(),
		streamBuffer: defaultStreamBuffer,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SendMessage performs a stateless exchange: the agent's response message
// is returned and no task is created.
func (c *Client) SendMessage(ctx context.Context, msg *a2a.Message) (*a2a.Message, error) {
	var result a2a.SendMessageResult
	params := a2a.SendMessageParams{Message: msg}
	if err := c.call(ctx, a2a.MethodMessageSend, &params, &result); err != nil {
		return nil, err
	}
	return result.Message, nil
}

// CreateTask creates a task from an initial message. The returned snapshot
// is typically in the working state; poll GetTask for the outcome.
func (c *Client) CreateTask(ctx context.Context, contextID string, msg *a2a.Message) (*a2a.Task, error) {
	var task a2a.Task
	params := a2a.CreateTaskParams{ContextID: contextID, Message: msg}
	if err := c.call(ctx, a2a.MethodTasksCreate, &params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// SendTaskMessage appends a message to an existing task and waits for the
// handler's response, returning the updated task.
func (c *Client) SendTaskMessage(ctx context.Context, taskID string, msg *a2a.Message) (*a2a.Task, error) {
	var task a2a.Task
	params := a2a.TaskMessageParams{TaskID: taskID, Message: msg}
	if err := c.call(ctx, a2a.MethodTasksSend, &params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask fetches a task snapshot.
func (c *Client) GetTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task
	params := a2a.TaskIDParams{TaskID: taskID}
	if err := c.call(ctx, a2a.MethodTasksGet, &params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask cancels a task. Canceling an already canceled task succeeds
// and returns the unchanged snapshot.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*a2a.Task, error) {
	var task a2a.Task
	params := a2a.TaskIDParams{TaskID: taskID}
	if err := c.call(ctx, a2a.MethodTasksCancel, &params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks lists tasks, all of them when contextID is empty.
func (c *Client) ListTasks(ctx context.Context, contextID string) ([]*a2a.Task, error) {
	var tasks []*a2a.Task
	params := a2a.ListTasksParams{ContextID: contextID}
	if err := c.call(ctx, a2a.MethodTasksList, &params, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// AgentCard fetches the agent's card from the well-known path, caching it
// for the client's lifetime.
func (c *Client) AgentCard(ctx context.Context) (*a2a.AgentCard, error) {
	c.mu.Lock()
	cached := c.card
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var card a2a.AgentCard
	err := c.withRetry(ctx, "agent card", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+a2a.AgentCardWellKnownPath, nil)
		if err != nil {
			return &a2a.TransportError{Op: "agent card", Err: err}
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &a2a.TransportError{Op: "agent card", Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &a2a.TransportError{Op: "agent card", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		}
		if err := json.UnmarshalRead(resp.Body, &card); err != nil {
			return &a2a.TransportError{Op: "agent card", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := card.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.card = &card
	c.mu.Unlock()
	return &card, nil
}

// call performs one unary method call, retrying transport failures.
func (c *Client) call(ctx context.Context, method a2a.Method, params, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return &a2a.TransportError{Op: string(method), Err: err}
	}

	return c.withRetry(ctx, string(method), func(ctx context.Context) error {
		return c.post(ctx, method, body, result)
	})
}

func (c *Client) post(ctx context.Context, method a2a.Method, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return &a2a.TransportError{Op: string(method), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &a2a.TransportError{Op: string(method), Err: err}
	}
	defer resp.Body.Close()

	var envelope struct {
		Result jsontext.Value   `json:"result"`
		Error  *a2a.ErrorObject `json:"error"`
	}
	if err := json.UnmarshalRead(resp.Body, &envelope); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			// Proxies answering 5xx with non-JSON bodies are retryable.
			return &a2a.TransportError{Op: string(method), Err: fmt.Errorf("status %d: %w", resp.StatusCode, err)}
		}
		return &a2a.TransportError{Op: string(method), Err: err}
	}

	if envelope.Error != nil {
		return a2a.DecodeError(envelope.Error)
	}
	if result == nil || envelope.Result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return &a2a.TransportError{Op: string(method), Err: err}
	}
	return nil
}

// openStream issues a streaming request and hands the response body to a
// Stream once the server commits to an event stream.
func (c *Client) openStream(ctx context.Context, method a2a.Method, params any) (*Stream, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, &a2a.TransportError{Op: string(method), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return nil, &a2a.TransportError{Op: string(method), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	httpClient := c.httpClient
	if httpClient.Timeout != 0 {
		// A stream outlives any sane request timeout.
		clone := *httpClient
		clone.Timeout = 0
		httpClient = &clone
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &a2a.TransportError{Op: string(method), Err: err}
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		defer resp.Body.Close()
		var envelope struct {
			Error *a2a.ErrorObject `json:"error"`
		}
		if err := json.UnmarshalRead(resp.Body, &envelope); err == nil && envelope.Error != nil {
			return nil, a2a.DecodeError(envelope.Error)
		}
		return nil, &a2a.TransportError{Op: string(method), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return newStream(resp.Body, c.streamBuffer), nil
}

// SendMessageStream performs a stateless streaming exchange.
func (c *Client) SendMessageStream(ctx context.Context, msg *a2a.Message) (*Stream, error) {
	return c.openStream(ctx, a2a.MethodMessageStream, &a2a.SendMessageParams{Message: msg})
}

// SendTaskMessageStream appends a message to a task and streams the
// handler's response.
func (c *Client) SendTaskMessageStream(ctx context.Context, taskID string, msg *a2a.Message) (*Stream, error) {
	return c.openStream(ctx, a2a.MethodTasksSendStream, &a2a.TaskMessageParams{TaskID: taskID, Message: msg})
}

func (c *Client) methodURL(method a2a.Method) string {
	return c.baseURL + "/" + string(method)
}
