// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"fmt"

	"github.com/go-json-experiment/json"
)

// PartKind identifies the concrete variant of a message Part.
type PartKind string

// Part kinds.
const (
	PartKindText PartKind = "text"
	PartKindFile PartKind = "file"
	PartKindData PartKind = "data"
)

// Part is one unit of content within a Message. It is a closed sum over
// TextPart, FilePart and DataPart; parts are immutable once constructed.
type Part interface {
	// Kind returns the part kind for type discrimination.
	Kind() PartKind

	// Validate ensures the part is well formed.
	Validate() error
}

// TextPart carries plain text content.
type TextPart struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Kind implements Part.
func (TextPart) Kind() PartKind { return PartKindText }

// Validate ensures the TextPart is valid.
func (p TextPart) Validate() error {
	if p.Text == "" {
		return &ValidationError{Field: "text", Message: "text part content cannot be empty"}
	}
	return nil
}

// FileContent describes the payload of a FilePart: either a URI reference
// or inline bytes, never both.
type FileContent struct {
	Name     string `json:"name,omitzero"`
	MIMEType string `json:"mimeType,omitzero"`
	URI      string `json:"uri,omitzero"`
	Bytes    []byte `json:"bytes,omitzero"`
}

// FilePart carries a file reference or inline file content.
type FilePart struct {
	File     FileContent    `json:"file"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Kind implements Part.
func (FilePart) Kind() PartKind { return PartKindFile }

// Validate ensures the FilePart is valid.
func (p FilePart) Validate() error {
	if p.File.URI == "" && len(p.File.Bytes) == 0 {
		return &ValidationError{Field: "file", Message: "file part must have a URI or inline bytes"}
	}
	if p.File.URI != "" && len(p.File.Bytes) > 0 {
		return &ValidationError{Field: "file", Message: "file part cannot have both a URI and inline bytes"}
	}
	return nil
}

// DataPart carries an arbitrary structured payload.
type DataPart struct {
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// Kind implements Part.
func (DataPart) Kind() PartKind { return PartKindData }

// Validate ensures the DataPart is valid.
func (p DataPart) Validate() error {
	if p.Data == nil {
		return &ValidationError{Field: "data", Message: "data part payload cannot be nil"}
	}
	return nil
}

// NewTextPart creates a TextPart with the given text.
func NewTextPart(text string) (Part, error) {
	p := TextPart{Text: text}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFilePartFromURI creates a FilePart referencing a file by URI.
func NewFilePartFromURI(name, mimeType, uri string) (Part, error) {
	p := FilePart{File: FileContent{Name: name, MIMEType: mimeType, URI: uri}}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewFilePartFromBytes creates a FilePart carrying inline file content.
func NewFilePartFromBytes(name, mimeType string, content []byte) (Part, error) {
	p := FilePart{File: FileContent{Name: name, MIMEType: mimeType, Bytes: content}}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewDataPart creates a DataPart with the given structured payload.
func NewDataPart(data map[string]any) (Part, error) {
	p := DataPart{Data: data}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// partEnvelope is the wire representation of a Part with its kind
// discriminator.
type partEnvelope struct {
	Kind     PartKind       `json:"kind"`
	Text     string         `json:"text,omitzero"`
	File     *FileContent   `json:"file,omitzero"`
	Data     map[string]any `json:"data,omitzero"`
	Metadata map[string]any `json:"metadata,omitzero"`
}

// MarshalJSON implements json.Marshaler.
func (p TextPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(partEnvelope{Kind: PartKindText, Text: p.Text, Metadata: p.Metadata})
}

// MarshalJSON implements json.Marshaler.
func (p FilePart) MarshalJSON() ([]byte, error) {
	file := p.File
	return json.Marshal(partEnvelope{Kind: PartKindFile, File: &file, Metadata: p.Metadata})
}

// MarshalJSON implements json.Marshaler.
func (p DataPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(partEnvelope{Kind: PartKindData, Data: p.Data, Metadata: p.Metadata})
}

// UnmarshalPart decodes a single Part from its wire representation.
// A kind that does not match the populated payload fails with ValidationError.
func UnmarshalPart(data []byte) (Part, error) {
	var env partEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ValidationError{Field: "part", Message: fmt.Sprintf("malformed part: %v", err)}
	}

	switch env.Kind {
	case PartKindText:
		if env.File != nil || env.Data != nil {
			return nil, &ValidationError{Field: "kind", Message: "text part carries a non-text payload"}
		}
		p := TextPart{Text: env.Text, Metadata: env.Metadata}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case PartKindFile:
		if env.File == nil {
			return nil, &ValidationError{Field: "kind", Message: "file part is missing its file payload"}
		}
		if env.Text != "" || env.Data != nil {
			return nil, &ValidationError{Field: "kind", Message: "file part carries a non-file payload"}
		}
		p := FilePart{File: *env.File, Metadata: env.Metadata}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	case PartKindData:
		if env.Text != "" || env.File != nil {
			return nil, &ValidationError{Field: "kind", Message: "data part carries a non-data payload"}
		}
		p := DataPart{Data: env.Data, Metadata: env.Metadata}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown part kind: %q", env.Kind)}
	}
}
