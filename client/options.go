// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"log/slog"
	"net/http"
)

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets the underlying HTTP client. Streaming calls disable
// its timeout per request, so a client with a timeout is safe to share.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = hc
		return nil
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithRetryConfig sets the retry policy for unary calls. A nil config
// disables retries.
func WithRetryConfig(config *RetryConfig) Option {
	return func(c *Client) error {
		if config != nil && config.MaxAttempts < 1 {
			return errors.New("retry max attempts must be at least 1")
		}
		c.retry = config
		return nil
	}
}

// WithStreamBufferSize sets the buffer of the event channel handed out by
// streaming calls.
func WithStreamBufferSize(size int) Option {
	return func(c *Client) error {
		if size < 0 {
			return errors.New("stream buffer size cannot be negative")
		}
		c.streamBuffer = size
		return nil
	}
}
