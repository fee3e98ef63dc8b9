// Package session spawns, drives, and tears down agent subprocesses
// according to an adapter schema. Each session is one logical conversation
// backed by zero or more subprocesses depending on the schema's session
// mode.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/keiko-bench/keiko/internal/adapter"
	"github.com/keiko-bench/keiko/internal/trajectory"
)

var (
	// ErrSessionNotFound means the caller used an id that was never
	// created or was already destroyed.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionInactive means the session was cancelled and can no
	// longer take prompts.
	ErrSessionInactive = errors.New("session inactive")
)

// ProcessExitInfo describes how a turn's subprocess ended. ExitCode is nil
// when the process was killed by a signal or its exit status could not be
// retrieved within the grace period.
type ProcessExitInfo struct {
	ExitCode *int   `json:"exit_code"`
	Signal   string `json:"signal,omitempty"`
	TimedOut bool   `json:"timed_out"`
}

// PromptResult is the outcome of one turn. It is produced once per call to
// Prompt and immutable after return. A timed-out turn is still a result,
// not an error: ExitInfo.TimedOut is set and Output/Updates hold whatever
// was collected before the timer fired.
type PromptResult struct {
	Output       string              `json:"output"`
	Updates      []trajectory.Update `json:"updates,omitempty"`
	CLISessionID string              `json:"cli_session_id,omitempty"`
	ExitInfo     *ProcessExitInfo    `json:"exit_info,omitempty"`
}

// Session is one logical conversation with an agent. A session is
// exclusively owned by the flow that created it: callers must not issue two
// concurrent prompts against the same id (caller contract, not enforced).
type Session struct {
	ID  string
	Cwd string

	proc         *exec.Cmd
	history      *historyBuilder
	cliSessionID string
	active       bool
	turns        int
}

// TurnCount returns the number of prompts issued so far.
func (s *Session) TurnCount() int { return s.turns }

// CLISessionID returns the agent-side session id captured from output, if
// any.
func (s *Session) CLISessionID() string { return s.cliSessionID }

// UpdateFunc receives each trajectory update as it is parsed, before the
// turn completes.
type UpdateFunc func(sessionID string, update trajectory.Update)

// Options configures a Manager.
type Options struct {
	// Schema is the adapter description. Required.
	Schema *adapter.Schema

	// Parser overrides the line parser. Defaults to the parser described
	// by the schema's event rules.
	Parser trajectory.LineParser

	// Timeout overrides the schema's per-turn timeout when positive.
	Timeout time.Duration

	// Verbose enables operator-facing progress messages.
	Verbose bool

	// Debug enables structured diagnostic logging of every stage to
	// stderr. Never written to the primary output stream.
	Debug bool

	// OnUpdate, if set, is invoked for every parsed update.
	OnUpdate UpdateFunc
}

// Manager owns the session registry and drives agent subprocesses. The
// registry is the only state shared across calls; each session is mutated
// only by the call stack currently processing its turn.
type Manager struct {
	schema   *adapter.Schema
	parser   trajectory.LineParser
	timeout  time.Duration
	verbose  bool
	logger   *log.Logger
	onUpdate UpdateFunc

	turnFormat string

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager validates opts and builds a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Schema == nil {
		return nil, errors.New("session: adapter schema is required")
	}

	parser := opts.Parser
	if parser == nil {
		parser = opts.Schema.Parser()
	}

	m := &Manager{
		schema:   opts.Schema,
		parser:   parser,
		timeout:  opts.Timeout,
		verbose:  opts.Verbose,
		onUpdate: opts.OnUpdate,
		sessions: make(map[string]*Session),
	}

	if opts.Schema.SessionMode == adapter.ModeIterative {
		format, err := resolveTurnFormat(opts.Schema.History)
		if err != nil {
			return nil, fmt.Errorf("history template: %w", err)
		}
		m.turnFormat = format
	}

	if opts.Debug {
		m.logger = log.NewWithOptions(os.Stderr, log.Options{
			Level:           log.DebugLevel,
			Prefix:          "session",
			ReportTimestamp: true,
		})
	}

	return m, nil
}

// Create allocates a session working in cwd and registers it. Never fails.
func (m *Manager) Create(cwd string) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		Cwd:    cwd,
		active: true,
	}
	if m.schema.SessionMode == adapter.ModeIterative {
		s.history = newHistoryBuilder(m.turnFormat)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.debugf("session created", "id", s.ID, "cwd", cwd, "mode", m.schema.SessionMode)
	return s
}

// Prompt sends one turn to the session and blocks until the turn's
// subprocess produced a result, timed out, or exited. Timeouts are reported
// as data on the result, never as an error.
func (m *Manager) Prompt(ctx context.Context, sessionID, text string) (*PromptResult, error) {
	return m.PromptTimeout(ctx, sessionID, text, 0)
}

// PromptTimeout is Prompt with a per-turn timeout override. A non-positive
// timeout uses the manager's default.
func (m *Manager) PromptTimeout(ctx context.Context, sessionID, text string, timeout time.Duration) (*PromptResult, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	active := ok && s.active
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionNotFound)
	}
	if !active {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrSessionInactive)
	}

	s.turns++
	if timeout <= 0 {
		timeout = m.defaultTimeout()
	}

	m.debugf("prompt", "id", s.ID, "turn", s.turns, "timeout", timeout)

	if m.schema.SessionMode == adapter.ModeIterative {
		return m.iterativeTurn(ctx, s, text, timeout)
	}
	return m.streamTurn(ctx, s, text, timeout)
}

// setProc publishes the turn's live process under the registry lock so a
// concurrent Cancel can signal it.
func (m *Manager) setProc(s *Session, cmd *exec.Cmd) {
	m.mu.Lock()
	s.proc = cmd
	m.mu.Unlock()
}

// Cancel marks the session inactive and terminates any live process.
// Idempotent; a no-op on unknown ids.
func (m *Manager) Cancel(sessionID string) {
	m.mu.Lock()
	s := m.sessions[sessionID]
	var proc *exec.Cmd
	if s != nil {
		s.active = false
		proc = s.proc
		s.proc = nil
	}
	m.mu.Unlock()

	if proc != nil && proc.Process != nil {
		m.debugf("cancel: terminating live process", "id", sessionID, "pid", proc.Process.Pid)
		_ = proc.Process.Signal(syscall.SIGTERM)
	}
}

// Destroy cancels the session and removes it from the registry.
func (m *Manager) Destroy(sessionID string) {
	m.Cancel(sessionID)
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// streamTurn spawns a fresh subprocess for this turn. Turn one captures the
// CLI-side session id from output; later turns pass it back through the
// schema's resume flag so the agent restores its own state.
func (m *Manager) streamTurn(ctx context.Context, s *Session, text string, timeout time.Duration) (*PromptResult, error) {
	args := m.buildArgs(s, text)
	res, err := m.runTurn(ctx, s, args, text, timeout)
	if err != nil {
		return nil, err
	}
	if s.cliSessionID == "" && res.CLISessionID != "" {
		s.cliSessionID = res.CLISessionID
		m.debugf("captured cli session id", "id", s.ID, "cli_session_id", res.CLISessionID)
	}
	return res, nil
}

// iterativeTurn renders accumulated history plus the new turn into one
// prompt, spawns a process, and appends the turn's input/output pair to
// history after it completes. No process persists between turns.
func (m *Manager) iterativeTurn(ctx context.Context, s *Session, text string, timeout time.Duration) (*PromptResult, error) {
	rendered := s.history.Render(text)
	args := m.buildArgs(s, rendered)

	res, err := m.runTurn(ctx, s, args, rendered, timeout)
	if err != nil {
		return nil, err
	}

	s.history.Append(text, res.Output)
	m.setProc(s, nil)
	return res, nil
}

// buildArgs assembles the turn's command line: base command, output-format
// selection, auto-approve flags, working-directory flag, resume flag
// (stream mode, turn > 1), and finally the prompt unless it travels via
// stdin.
func (m *Manager) buildArgs(s *Session, promptText string) []string {
	schema := m.schema
	args := slices.Clone(schema.Command)

	if schema.Output != nil {
		args = append(args, schema.Output.Flag, schema.Output.Value)
	}
	args = append(args, schema.AutoApprove...)
	if schema.CwdFlag != "" && s.Cwd != "" {
		args = append(args, schema.CwdFlag, s.Cwd)
	}
	if schema.SessionMode == adapter.ModeStream && s.turns > 1 && schema.Resume != nil && s.cliSessionID != "" {
		args = append(args, schema.Resume.Flag, s.cliSessionID)
	}
	if !schema.Prompt.Stdin {
		if schema.Prompt.Flag != "" {
			args = append(args, schema.Prompt.Flag, promptText)
		} else {
			args = append(args, promptText)
		}
	}
	return args
}

func (m *Manager) defaultTimeout() time.Duration {
	if m.timeout > 0 {
		return m.timeout
	}
	return m.schema.Timeout()
}

func (m *Manager) debugf(msg string, kv ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, kv...)
	}
}
