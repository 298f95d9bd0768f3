// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"log/slog"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/server/task"
)

// Option configures a TaskManager.
type Option func(*TaskManager) error

// WithStore sets the task store. Defaults to the in-memory reference store.
func WithStore(store task.Store) Option {
	return func(tm *TaskManager) error {
		if store == nil {
			return fmt.Errorf("store cannot be nil")
		}
		tm.store = store
		return nil
	}
}

// WithAgentCard sets a static agent card served for card queries.
func WithAgentCard(card *a2a.AgentCard) Option {
	return func(tm *TaskManager) error {
		if err := card.Validate(); err != nil {
			return err
		}
		tm.card = card
		return nil
	}
}

// WithCardProvider sets a dynamic card provider, taking precedence over a
// static card.
func WithCardProvider(provider CardProvider) Option {
	return func(tm *TaskManager) error {
		if provider == nil {
			return fmt.Errorf("card provider cannot be nil")
		}
		tm.cardProvider = provider
		return nil
	}
}

// WithLifecycleObserver sets the task lifecycle observer.
func WithLifecycleObserver(observer LifecycleObserver) Option {
	return func(tm *TaskManager) error {
		if observer == nil {
			return fmt.Errorf("lifecycle observer cannot be nil")
		}
		tm.observer = observer
		return nil
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(tm *TaskManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		tm.logger = logger
		return nil
	}
}

// WithQueueSize sets the capacity of per-stream event queues.
func WithQueueSize(size int) Option {
	return func(tm *TaskManager) error {
		if size <= 0 {
			return fmt.Errorf("queue size must be positive")
		}
		tm.queueSize = size
		return nil
	}
}

// WithConflictRetries sets how many times a store version conflict is
// retried with a re-read before surfacing ConcurrencyError.
func WithConflictRetries(n int) Option {
	return func(tm *TaskManager) error {
		if n <= 0 {
			return fmt.Errorf("conflict retries must be positive")
		}
		tm.conflictRetries = n
		return nil
	}
}
