// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agentwire/a2a"
)

func (s *Server) handleSendMessageStream(w http.ResponseWriter, r *http.Request) {
	var params a2a.SendMessageParams
	if !s.decodeParams(w, r, &params) {
		return
	}
	events, err := s.manager.SendMessageStream(r.Context(), params.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.streamEvents(w, r, events)
}

func (s *Server) handleSendTaskMessageStream(w http.ResponseWriter, r *http.Request) {
	var params a2a.TaskMessageParams
	if !s.decodeParams(w, r, &params) {
		return
	}
	events, err := s.manager.SendTaskMessageStream(r.Context(), params.TaskID, params.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.streamEvents(w, r, events)
}

// streamEvents relays sequenced events to the client as Server-Sent
// Events, one flush per event so deltas arrive as they are produced. The
// stream ends when the event channel closes or the client disconnects;
// on disconnect the remaining events are drained so the sequencer can
// finish.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan a2a.StreamEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable proxy buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			for range events {
			}
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeSSEEvent(w, flusher, ev); err != nil {
				s.logger.Debug("stream client disconnected",
					slog.String("task_id", ev.EventTaskID()), slog.Any("error", err))
				for range events {
				}
				return
			}
		}
	}
}

// writeSSEEvent writes one event as an SSE frame and flushes it.
func (s *Server) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev a2a.StreamEvent) error {
	data, err := a2a.MarshalStreamEvent(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventKind(), data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
