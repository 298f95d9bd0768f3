// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
)

// Role represents the role of a message sender.
type Role string

// Role constants for message senders.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is a single exchange unit between client and agent: an ordered,
// non-empty sequence of Parts with a sender role. The ContextID correlates
// the message to a Task's session when present.
type Message struct {
	Role      Role   `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId,omitzero"`
}

// Validate ensures the Message is valid. Violations are reported as
// ValidationError.
func (m *Message) Validate() error {
	if m == nil {
		return &ValidationError{Field: "message", Message: "message cannot be nil"}
	}
	if m.Role != RoleUser && m.Role != RoleAgent {
		return &ValidationError{Field: "role", Message: "message role must be user or agent"}
	}
	if m.MessageID == "" {
		return &ValidationError{Field: "messageId", Message: "message ID cannot be empty"}
	}
	if len(m.Parts) == 0 {
		return &ValidationError{Field: "parts", Message: "message must contain at least one part"}
	}
	for _, part := range m.Parts {
		if part == nil {
			return &ValidationError{Field: "parts", Message: "message part cannot be nil"}
		}
		if err := part.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NewMessage creates a validated Message with a generated message ID.
func NewMessage(role Role, parts []Part, contextID string) (*Message, error) {
	m := &Message{
		Role:      role,
		Parts:     parts,
		MessageID: uuid.NewString(),
		ContextID: contextID,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewUserTextMessage creates a user message containing a single TextPart.
func NewUserTextMessage(text, contextID string) (*Message, error) {
	part, err := NewTextPart(text)
	if err != nil {
		return nil, err
	}
	return NewMessage(RoleUser, []Part{part}, contextID)
}

// NewAgentTextMessage creates an agent message containing a single TextPart.
func NewAgentTextMessage(text, contextID string) (*Message, error) {
	part, err := NewTextPart(text)
	if err != nil {
		return nil, err
	}
	return NewMessage(RoleAgent, []Part{part}, contextID)
}

// TextParts extracts the text content from all TextParts in parts, in order.
func TextParts(parts []Part) []string {
	var texts []string
	for _, part := range parts {
		if tp, ok := part.(TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return texts
}

// MessageText joins the text content of all TextParts in the message with
// the given delimiter. Returns an empty string for a nil message or a
// message without text parts.
func MessageText(m *Message, delimiter string) string {
	if m == nil {
		return ""
	}
	return strings.Join(TextParts(m.Parts), delimiter)
}

// messageWire mirrors Message with raw parts for custom decoding.
type messageWire struct {
	Role      Role             `json:"role"`
	Parts     []jsontext.Value `json:"parts"`
	MessageID string           `json:"messageId"`
	ContextID string           `json:"contextId,omitzero"`
}

// UnmarshalJSON implements json.Unmarshaler, decoding each part through its
// kind discriminator.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return &ValidationError{Field: "message", Message: "malformed message: " + err.Error()}
	}

	parts := make([]Part, len(wire.Parts))
	for i, raw := range wire.Parts {
		part, err := UnmarshalPart(raw)
		if err != nil {
			return err
		}
		parts[i] = part
	}

	m.Role = wire.Role
	m.Parts = parts
	m.MessageID = wire.MessageID
	m.ContextID = wire.ContextID
	return nil
}
