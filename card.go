// Copyright 2025 The AgentWire Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

// AgentCardWellKnownPath is the HTTP path at which an agent publishes its
// card.
const AgentCardWellKnownPath = "/.well-known/agent.json"

// AgentCapabilities advertises the optional protocol features an agent
// supports.
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
}

// AgentProvider identifies the organization operating an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitzero"`
}

// AgentSkill describes one capability an agent exposes to callers.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitzero"`
	Tags        []string `json:"tags,omitzero"`
	Examples    []string `json:"examples,omitzero"`
	InputModes  []string `json:"inputModes,omitzero"`
	OutputModes []string `json:"outputModes,omitzero"`
}

// AgentCard is the static capability description of an agent: read-only
// data, produced by the hosting application, not part of the task state
// machine.
type AgentCard struct {
	Name               string            `json:"name"`
	Description        string            `json:"description,omitzero"`
	URL                string            `json:"url"`
	Version            string            `json:"version"`
	Provider           *AgentProvider    `json:"provider,omitzero"`
	Capabilities       AgentCapabilities `json:"capabilities"`
	DefaultInputModes  []string          `json:"defaultInputModes,omitzero"`
	DefaultOutputModes []string          `json:"defaultOutputModes,omitzero"`
	Skills             []AgentSkill      `json:"skills,omitzero"`
}

// Validate ensures the AgentCard is valid.
func (c *AgentCard) Validate() error {
	if c == nil {
		return &ValidationError{Field: "card", Message: "agent card cannot be nil"}
	}
	if c.Name == "" {
		return &ValidationError{Field: "name", Message: "agent card name cannot be empty"}
	}
	if c.URL == "" {
		return &ValidationError{Field: "url", Message: "agent card URL cannot be empty"}
	}
	if c.Version == "" {
		return &ValidationError{Field: "version", Message: "agent card version cannot be empty"}
	}
	for _, skill := range c.Skills {
		if skill.ID == "" || skill.Name == "" {
			return &ValidationError{Field: "skills", Message: "agent skill must have an ID and a name"}
		}
	}
	return nil
}
