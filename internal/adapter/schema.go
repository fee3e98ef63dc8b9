// Package adapter loads and validates the declarative description of an
// agent command-line interface: how to spawn it, how to hand it a prompt,
// and how to decode what it prints.
package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/keiko-bench/keiko/internal/trajectory"
)

// SessionMode selects how conversational continuity is preserved across
// turns.
type SessionMode string

const (
	// ModeStream spawns one subprocess per turn and resumes continuity via
	// a CLI-side session id.
	ModeStream SessionMode = "stream"

	// ModeIterative replays accumulated history into each new subprocess
	// invocation.
	ModeIterative SessionMode = "iterative"
)

// DefaultTimeout applies when a schema declares no timeout of its own.
const DefaultTimeout = 5 * time.Minute

// PromptSpec declares how the prompt text reaches the agent: via a flagged
// argument, a positional argument (empty flag), or standard input.
type PromptSpec struct {
	Flag  string `json:"flag,omitempty"`
	Stdin bool   `json:"stdin,omitempty"`
}

// OutputSpec declares the flag/value pair selecting the agent's structured
// output format.
type OutputSpec struct {
	Flag  string `json:"flag"`
	Value string `json:"value"`
}

// ResumeSpec declares the flag used to resume a stream-mode session.
type ResumeSpec struct {
	Flag string `json:"flag"`
}

// HistoryTemplate configures iterative-mode history rendering. On the wire
// it is either a bare template string or {"turnFormat": "..."}.
type HistoryTemplate struct {
	TurnFormat string `json:"turnFormat"`
}

// UnmarshalJSON accepts both the string and the object form.
func (h *HistoryTemplate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		h.TurnFormat = s
		return nil
	}
	type alias HistoryTemplate
	var v alias
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("historyTemplate must be a string or {turnFormat}: %w", err)
	}
	*h = HistoryTemplate(v)
	return nil
}

// Schema is the immutable adapter description, loaded once per run and
// treated as read-only configuration.
type Schema struct {
	Command     []string               `json:"command"`
	SessionMode SessionMode            `json:"sessionMode"`
	Prompt      PromptSpec             `json:"prompt"`
	Output      *OutputSpec            `json:"output,omitempty"`
	AutoApprove []string               `json:"autoApprove,omitempty"`
	CwdFlag     string                 `json:"cwdFlag,omitempty"`
	Resume      *ResumeSpec            `json:"resume,omitempty"`
	History     *HistoryTemplate       `json:"historyTemplate,omitempty"`
	TimeoutMS   int                    `json:"timeout,omitempty"`
	Events      []trajectory.EventRule `json:"events,omitempty"`
	Result      *trajectory.ResultRule `json:"result,omitempty"`
}

// Timeout returns the schema's default turn timeout.
func (s *Schema) Timeout() time.Duration {
	if s.TimeoutMS <= 0 {
		return DefaultTimeout
	}
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Parser builds the line parser described by the schema's event rules.
func (s *Schema) Parser() *trajectory.SchemaParser {
	return trajectory.NewSchemaParser(s.Events, s.Result)
}

// Load reads an adapter schema from a JSON file, validates it against the
// embedded JSON Schema, and decodes it.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading adapter schema: %w", err)
	}
	return Parse(data)
}

// Parse validates and decodes raw adapter schema JSON.
func Parse(data []byte) (*Schema, error) {
	if errs := validateBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid adapter schema:\n  %s", joinErrors(errs))
	}

	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decoding adapter schema: %w", err)
	}
	if err := schema.validate(); err != nil {
		return nil, err
	}
	return &schema, nil
}

// validate enforces the cross-field constraints the JSON Schema cannot
// express.
func (s *Schema) validate() error {
	if s.Prompt.Stdin && s.Prompt.Flag != "" {
		return fmt.Errorf("prompt cannot use both stdin and flag %q", s.Prompt.Flag)
	}
	if s.Resume != nil && s.SessionMode != ModeStream {
		return fmt.Errorf("resume flag is only valid in stream mode")
	}
	if s.History != nil && s.SessionMode != ModeIterative {
		return fmt.Errorf("historyTemplate is only valid in iterative mode")
	}
	return nil
}
