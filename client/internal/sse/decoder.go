// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

// Package sse decodes Server-Sent Event streams.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one decoded SSE frame.
type Event struct {
	Type string
	Data string
}

// Decoder reads SSE frames from a stream.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: scanner}
}

// Decode returns the next frame, or io.EOF when the stream ends cleanly.
// Comment lines and unknown fields are skipped per the SSE format.
func (d *Decoder) Decode() (*Event, error) {
	var (
		event   Event
		hasData bool
	)

	for d.scanner.Scan() {
		line := d.scanner.Text()

		// Blank line terminates the frame.
		if line == "" {
			if hasData || event.Type != "" {
				return &event, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			event.Type = value
		case "data":
			if hasData {
				event.Data += "\n"
			}
			event.Data += value
			hasData = true
		}
	}

	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	if hasData || event.Type != "" {
		return &event, nil
	}
	return nil, io.EOF
}
