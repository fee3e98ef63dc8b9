package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/keiko-bench/keiko/internal/trajectory"
)

// exitStatusGrace bounds the post-turn exit-status retrieval so a hung
// process cannot block the caller. If the process exits right at this
// boundary the exit code is reported as nil even for an otherwise
// successful run; that ambiguity is deliberate.
const exitStatusGrace = 2 * time.Second

// sigkillGrace is how long a signalled process gets to exit on its own
// before the escalation to SIGKILL.
const sigkillGrace = 2 * time.Second

// runTurn spawns the built command, feeds it the prompt, and races the
// output read loop against the turn timeout. Spawn failures propagate as
// errors; timeouts come back as data on the result.
func (m *Manager) runTurn(ctx context.Context, s *Session, args []string, promptText string, timeout time.Duration) (*PromptResult, error) {
	//nolint:gosec // the command line comes from the operator's adapter schema
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = s.Cwd
	cmd.Stderr = os.Stderr // passed through untouched for operator visibility

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("internal: standard output unavailable: %w", err)
	}

	var stdin io.WriteCloser
	if m.schema.Prompt.Stdin {
		stdin, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("internal: standard input unavailable: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawning agent %q: %w", args[0], err)
	}
	m.setProc(s, cmd)
	m.debugf("spawned", "id", s.ID, "pid", cmd.Process.Pid, "args", args)

	collector := &turnCollector{
		parser: m.parser,
		onUpdate: func(u trajectory.Update) {
			if m.onUpdate != nil {
				m.onUpdate(s.ID, u)
			}
		},
		debug: m.debugf,
	}

	g := new(errgroup.Group)
	if stdin != nil {
		g.Go(func() error {
			defer stdin.Close() // agent blocks on end-of-input before answering
			_, err := io.WriteString(stdin, promptText+"\n")
			return err
		})
	}

	readDone := make(chan error, 1)
	go func() { readDone <- collector.consume(stdout) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	exitInfo := &ProcessExitInfo{}

	select {
	case err := <-readDone:
		if err != nil {
			m.debugf("read loop error", "id", s.ID, "err", err)
		}
	case <-timer.C:
		m.debugf("turn timed out", "id", s.ID, "timeout", timeout)
		exitInfo.TimedOut = true
		exitInfo.Signal = "SIGTERM"
		collector.halt()
		stopTurn(cmd, stdout, readDone) // reader owns collector state; returns only once it has stopped
	case <-ctx.Done():
		collector.halt()
		stopTurn(cmd, stdout, readDone)
		m.fillExitInfo(cmd, exitInfo) // reap the child before reporting cancellation
		return nil, ctx.Err()
	}

	// The agent may exit without draining stdin; that is not a turn
	// failure.
	if err := g.Wait(); err != nil {
		m.debugf("stdin write error", "id", s.ID, "err", err)
	}

	m.fillExitInfo(cmd, exitInfo)
	m.debugf("turn complete", "id", s.ID,
		"timed_out", exitInfo.TimedOut, "updates", len(collector.updates),
		"found_result", collector.foundResult)

	output := collector.output
	if !collector.foundResult {
		output = collector.fallbackOutput()
	}

	return &PromptResult{
		Output:       output,
		Updates:      collector.updates,
		CLISessionID: collector.cliSessionID,
		ExitInfo:     exitInfo,
	}, nil
}

// fillExitInfo retrieves the process exit status, bounded by a short grace
// timer. On a miss, ExitCode stays nil.
func (m *Manager) fillExitInfo(cmd *exec.Cmd, info *ProcessExitInfo) {
	waitc := make(chan error, 1)
	go func() { waitc <- cmd.Wait() }()

	grace := time.NewTimer(exitStatusGrace)
	defer grace.Stop()

	select {
	case err := <-waitc:
		if err == nil {
			zero := 0
			info.ExitCode = &zero
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				if info.Signal == "" {
					info.Signal = unix.SignalName(ws.Signal())
				}
				return // killed by signal: exit code stays nil
			}
			code := exitErr.ExitCode()
			info.ExitCode = &code
			return
		}
		m.debugf("exit status unavailable", "err", err)
	case <-grace.C:
		m.debugf("exit status not retrieved within grace period")
	}
}

func terminate(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}
}

// stopTurn forces the turn's subprocess down: SIGTERM first, SIGKILL once
// the grace period expires. An agent that traps SIGTERM, or a grandchild
// that inherited the pipe's write end, can keep the reader blocked past the
// kill, so the read end is closed to unwind it. Returns only after the
// reader goroutine has stopped.
func stopTurn(cmd *exec.Cmd, stdout io.Closer, readDone <-chan error) {
	terminate(cmd)

	grace := time.NewTimer(sigkillGrace)
	defer grace.Stop()
	select {
	case <-readDone:
		return
	case <-grace.C:
	}

	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	_ = stdout.Close()
	<-readDone
}

// turnCollector incrementally decodes one subprocess's stdout. It is owned
// by the reader goroutine; the spawning goroutine may only read its fields
// after the reader has returned.
type turnCollector struct {
	parser   trajectory.LineParser
	onUpdate func(trajectory.Update)
	debug    func(msg string, kv ...any)

	stopped atomic.Bool

	updates      []trajectory.Update
	output       string
	foundResult  bool
	cliSessionID string
}

// halt tells the reader to stop parsing. Lines already buffered are
// discarded, matching timeout semantics: nothing further is parsed.
func (c *turnCollector) halt() {
	c.stopped.Store(true)
}

// consume reads stdout in chunks, maintaining a line buffer across chunk
// boundaries: split on newline, keep the trailing partial segment. A single
// read never reliably returns one complete line.
func (c *turnCollector) consume(r io.Reader) error {
	buf := make([]byte, 32*1024)
	var pending string

	for {
		if c.stopped.Load() {
			return nil
		}

		n, err := r.Read(buf)
		if n > 0 {
			pending += string(buf[:n])
			for {
				idx := strings.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := pending[:idx]
				pending = pending[idx+1:]

				if c.stopped.Load() {
					return nil
				}
				if c.handleLine(line) {
					// Result line found: stop immediately, do not
					// process further buffered lines.
					return nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if pending != "" && !c.stopped.Load() {
					c.handleLine(pending)
				}
				return nil
			}
			return err
		}
	}
}

// handleLine classifies one complete line. Returns true when the line is
// the agent's final result.
func (c *turnCollector) handleLine(line string) bool {
	line = strings.TrimSuffix(line, "\r")
	if line == "" {
		return false
	}

	updates := c.parser.ParseLine(line)
	if c.debug != nil {
		c.debug("line", "matched", len(updates) > 0, "raw", line)
	}
	for _, u := range updates {
		c.updates = append(c.updates, u)
		if c.cliSessionID == "" {
			if id := trajectory.ExtractSessionID(u.Raw); id != "" {
				c.cliSessionID = id
			}
		}
		if c.onUpdate != nil {
			c.onUpdate(u)
		}
	}

	if isResult, content := c.parser.ParseResult(line); isResult {
		c.output = content
		c.foundResult = true
		return true
	}
	return false
}

// fallbackOutput joins all message-kind update contents when no explicit
// result line was found.
func (c *turnCollector) fallbackOutput() string {
	var messages []string
	for _, u := range c.updates {
		if u.Kind == trajectory.KindMessage && u.Content != "" {
			messages = append(messages, u.Content)
		}
	}
	return strings.Join(messages, "\n")
}
