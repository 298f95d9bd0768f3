// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"io"
	"sync"

	"github.com/agentwire/a2a"
	"github.com/agentwire/a2a/client/internal/sse"
)

// Stream is an open event stream from a streaming call. Consume Events
// until it closes, then check Err:
//
//	for ev := range stream.Events() {
//		...
//	}
//	if err := stream.Err(); err != nil {
//		...
//	}
//
// A nil Err after a stream that ended without a terminal Done or Error
// event means the server closed it early, which is how canceled and
// disconnected streams end.
type Stream struct {
	body   io.ReadCloser
	events chan a2a.StreamEvent

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func newStream(body io.ReadCloser, buffer int) *Stream {
	s := &Stream{
		body:   body,
		events: make(chan a2a.StreamEvent, buffer),
	}
	go s.read()
	return s
}

// Events returns the stream's event channel. It is closed when the stream
// ends for any reason.
func (s *Stream) Events() <-chan a2a.StreamEvent {
	return s.events
}

// Err returns the error that ended the stream, nil for a clean end.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close abandons the stream. Pending events are discarded.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

// read decodes SSE frames into events, enforcing that sequence numbers
// arrive gap-free from 0. A violation poisons the stream with
// StreamSequenceError and stops delivery.
func (s *Stream) read() {
	defer close(s.events)
	defer s.Close()

	decoder := sse.NewDecoder(s.body)
	var want uint64

	for {
		frame, err := decoder.Decode()
		if err != nil {
			if err != io.EOF {
				s.fail(&a2a.TransportError{Op: "stream read", Err: err})
			}
			return
		}
		if frame.Data == "" {
			continue
		}

		event, err := a2a.UnmarshalStreamEvent([]byte(frame.Data))
		if err != nil {
			s.fail(&a2a.TransportError{Op: "stream decode", Err: err})
			return
		}

		if got := event.EventSeq(); got != want {
			s.fail(&a2a.StreamSequenceError{TaskID: event.EventTaskID(), Want: want, Got: got})
			return
		}
		want++

		s.events <- event

		if errEvent, ok := event.(a2a.ErrorEvent); ok {
			s.fail(a2a.DecodeError(&errEvent.Err))
			return
		}
		if event.Terminal() {
			return
		}
	}
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
