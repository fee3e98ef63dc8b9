// Package runner orchestrates evaluation runs: it fans tasks out over the
// worker pool, drives one session per capture, grades the output, and
// funnels result records through the write gate.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keiko-bench/keiko/internal/adapter"
	"github.com/keiko-bench/keiko/internal/config"
	"github.com/keiko-bench/keiko/internal/graders"
	"github.com/keiko-bench/keiko/internal/hooks"
	"github.com/keiko-bench/keiko/internal/pool"
	"github.com/keiko-bench/keiko/internal/reporting"
	"github.com/keiko-bench/keiko/internal/serial"
	"github.com/keiko-bench/keiko/internal/session"
	"github.com/keiko-bench/keiko/internal/statistics"
	"github.com/keiko-bench/keiko/internal/trajectory"
)

// ProgressListener receives progress updates.
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event.
type EventType string

// EventType constants
const (
	EventRunStart     EventType = "run_start"
	EventRunComplete  EventType = "run_complete"
	EventTaskStart    EventType = "task_start"
	EventTaskComplete EventType = "task_complete"
	EventAgentUpdate  EventType = "agent_update"
	EventThrottled    EventType = "throttled"
)

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	EventType  EventType
	TaskID     string
	Trial      int
	Completed  int
	Total      int
	Passed     bool
	Score      float64
	DurationMs int64
	Details    map[string]any
}

// CaptureSummary aggregates one capture run.
type CaptureSummary struct {
	RunID      string `json:"run_id"`
	Total      int    `json:"total"`
	Passed     int    `json:"passed"`
	Failed     int    `json:"failed"`
	Errors     int    `json:"errors"`
	DurationMs int64  `json:"duration_ms"`
}

// Runner executes a suite against one agent adapter.
type Runner struct {
	suite   *config.Suite
	schema  *adapter.Schema
	manager *session.Manager
	verbose bool
	debug   bool

	taskFilters []string
	hookRunner  *hooks.Runner

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// Option configures a Runner.
type Option func(*Runner)

// WithVerbose enables operator-facing progress output.
func WithVerbose(v bool) Option {
	return func(r *Runner) {
		r.verbose = v
	}
}

// WithDebug enables the session manager's structured diagnostic logging.
func WithDebug(d bool) Option {
	return func(r *Runner) {
		r.debug = d
	}
}

// WithTaskFilters sets glob patterns used to filter tasks by id.
func WithTaskFilters(patterns ...string) Option {
	return func(r *Runner) {
		r.taskFilters = patterns
	}
}

// New creates a runner for the given suite and adapter schema.
func New(suite *config.Suite, schema *adapter.Schema, opts ...Option) (*Runner, error) {
	r := &Runner{
		suite:     suite,
		schema:    schema,
		listeners: []ProgressListener{},
	}
	for _, o := range opts {
		o(r)
	}
	r.hookRunner = &hooks.Runner{Verbose: r.verbose}

	var timeout time.Duration
	if suite.Settings.TimeoutSec > 0 {
		timeout = time.Duration(suite.Settings.TimeoutSec) * time.Second
	}

	mgr, err := session.NewManager(session.Options{
		Schema:  schema,
		Timeout: timeout,
		Verbose: r.verbose,
		Debug:   r.debug,
		OnUpdate: func(sessionID string, update trajectory.Update) {
			r.notifyProgress(ProgressEvent{
				EventType: EventAgentUpdate,
				Details: map[string]any{
					"session_id": sessionID,
					"kind":       string(update.Kind),
					"content":    update.Content,
					"tool_name":  update.ToolName,
				},
			})
		},
	})
	if err != nil {
		return nil, err
	}
	r.manager = mgr

	return r, nil
}

// OnProgress registers a progress listener.
func (r *Runner) OnProgress(listener ProgressListener) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Runner) notifyProgress(event ProgressEvent) {
	r.progressMu.Lock()
	listeners := make([]ProgressListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// Capture runs every (filtered) task once and writes one JSONL record per
// task. Per-task failures are recorded, never fatal; only run-level problems
// (hooks with error_on_fail, no matching tasks) return an error.
func (r *Runner) Capture(ctx context.Context, writer *reporting.Writer) (*CaptureSummary, error) {
	tasks := r.filteredTasks()
	if len(tasks) == 0 {
		return nil, fmt.Errorf("no tasks match the given filters")
	}

	runID := uuid.NewString()
	start := time.Now()
	runEnv := map[string]string{"KEIKO_RUN_ID": runID, "KEIKO_SUITE": r.suite.Name}

	if err := r.hookRunner.Execute(ctx, "before_run", r.suite.Hooks.BeforeRun, runEnv); err != nil {
		return nil, err
	}

	r.notifyProgress(ProgressEvent{EventType: EventRunStart, Total: len(tasks)})

	queue := serial.New()
	result := pool.Run(ctx, tasks, func(ctx context.Context, task *config.Task, index int) (*reporting.CaptureRecord, error) {
		return r.captureTask(ctx, task, runID, 0, queue, writer)
	}, r.poolOptions(len(tasks)))
	queue.Wait()

	if err := r.hookRunner.Execute(ctx, "after_run", r.suite.Hooks.AfterRun, runEnv); err != nil {
		return nil, err
	}

	summary := &CaptureSummary{
		RunID:      runID,
		Total:      len(tasks),
		Errors:     len(result.Errors),
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, rec := range result.Results {
		if rec.Error != "" {
			summary.Errors++
		} else if rec.Passed {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	r.notifyProgress(ProgressEvent{
		EventType:  EventRunComplete,
		Total:      summary.Total,
		DurationMs: summary.DurationMs,
	})

	return summary, result.FirstError()
}

// Trials runs one task n times and estimates its success probability.
// Records go through the same pool and write gate as a capture.
func (r *Runner) Trials(ctx context.Context, taskID string, n, k int, writer *reporting.Writer) (*reporting.TrialsStats, error) {
	task := r.findTask(taskID)
	if task == nil {
		return nil, fmt.Errorf("task %q not found in suite %q", taskID, r.suite.Name)
	}
	if n < 1 {
		return nil, fmt.Errorf("trial count must be at least 1, got %d", n)
	}
	if k < 1 || k > n {
		return nil, fmt.Errorf("k must be between 1 and the trial count, got k=%d n=%d", k, n)
	}

	runID := uuid.NewString()
	start := time.Now()
	runEnv := map[string]string{"KEIKO_RUN_ID": runID, "KEIKO_SUITE": r.suite.Name}

	if err := r.hookRunner.Execute(ctx, "before_run", r.suite.Hooks.BeforeRun, runEnv); err != nil {
		return nil, err
	}

	r.notifyProgress(ProgressEvent{EventType: EventRunStart, TaskID: task.ID, Total: n})

	type trialSlot struct {
		trial int
	}
	slots := make([]*trialSlot, n)
	for i := range slots {
		slots[i] = &trialSlot{trial: i + 1}
	}

	queue := serial.New()
	result := pool.Run(ctx, slots, func(ctx context.Context, slot *trialSlot, index int) (*reporting.CaptureRecord, error) {
		return r.captureTask(ctx, task, runID, slot.trial, queue, writer)
	}, r.poolOptions(n))
	queue.Wait()

	if err := r.hookRunner.Execute(ctx, "after_run", r.suite.Hooks.AfterRun, runEnv); err != nil {
		return nil, err
	}

	passed := 0
	var scores []float64
	for _, rec := range result.Results {
		if rec.Error != "" {
			continue
		}
		if rec.Passed {
			passed++
		}
		scores = append(scores, rec.Score)
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	meanScore := 0.0
	if len(scores) > 0 {
		meanScore = sum / float64(len(scores))
	}

	stats := &reporting.TrialsStats{
		TaskID:     task.ID,
		Trials:     n,
		Passed:     passed,
		K:          k,
		PassAtK:    statistics.PassAtK(n, passed, k),
		PassHatK:   statistics.PassHatK(n, passed, k),
		MeanScore:  meanScore,
		CI:         statistics.BootstrapCI(scores, 0.95),
		DurationMs: time.Since(start).Milliseconds(),
	}

	r.notifyProgress(ProgressEvent{
		EventType:  EventRunComplete,
		TaskID:     task.ID,
		Total:      n,
		DurationMs: stats.DurationMs,
	})

	return stats, result.FirstError()
}

// captureTask runs one task once: workspace, task hooks, session turns,
// grading, one record through the write gate. Agent-side failures land on
// the record; only harness-side failures (workspace, hooks) are errors.
func (r *Runner) captureTask(ctx context.Context, task *config.Task, runID string, trial int, queue *serial.Queue, writer *reporting.Writer) (*reporting.CaptureRecord, error) {
	start := time.Now()
	r.notifyProgress(ProgressEvent{EventType: EventTaskStart, TaskID: task.ID, Trial: trial})

	workspace, cleanup, err := r.taskWorkspace(task, trial)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	taskEnv := map[string]string{
		"KEIKO_RUN_ID":        runID,
		"KEIKO_TASK_ID":       task.ID,
		"KEIKO_WORKSPACE_DIR": workspace,
	}
	if err := r.hookRunner.Execute(ctx, "before_task", r.suite.Hooks.BeforeTask, taskEnv); err != nil {
		return nil, err
	}

	record := &reporting.CaptureRecord{
		RunID:     runID,
		TaskID:    task.ID,
		Trial:     trial,
		Prompt:    task.PromptTurns()[0],
		StartedAt: start,
	}

	sess := r.manager.Create(workspace)
	defer r.manager.Destroy(sess.ID)

	var timeout time.Duration
	if task.TimeoutSec > 0 {
		timeout = time.Duration(task.TimeoutSec) * time.Second
	}

	var last *session.PromptResult
	for _, turn := range task.PromptTurns() {
		res, err := r.manager.PromptTimeout(ctx, sess.ID, turn, timeout)
		if err != nil {
			record.Error = err.Error()
			break
		}
		record.Updates = append(record.Updates, res.Updates...)
		last = res
	}
	if last != nil {
		record.Output = last.Output
		record.ExitInfo = last.ExitInfo
	}

	if record.Error == "" {
		r.gradeCapture(ctx, task, workspace, record)
	}
	record.DurationMs = time.Since(start).Milliseconds()

	if err := r.hookRunner.Execute(ctx, "after_task", r.suite.Hooks.AfterTask, taskEnv); err != nil {
		return nil, err
	}

	if writer != nil {
		if err := queue.DoSync(func() error { return writer.Write(record) }); err != nil {
			return nil, fmt.Errorf("recording task %q: %w", task.ID, err)
		}
	}

	r.notifyProgress(ProgressEvent{
		EventType:  EventTaskComplete,
		TaskID:     task.ID,
		Trial:      trial,
		Passed:     record.Passed,
		Score:      record.Score,
		DurationMs: record.DurationMs,
	})

	return record, nil
}

// gradeCapture applies the task's graders to the record in place. A turn
// that timed out fails regardless of grader verdicts.
func (r *Runner) gradeCapture(ctx context.Context, task *config.Task, workspace string, record *reporting.CaptureRecord) {
	timedOut := record.ExitInfo != nil && record.ExitInfo.TimedOut

	configs := r.suite.TaskGraders(task)
	if len(configs) == 0 {
		record.Passed = !timedOut
		if record.Passed {
			record.Score = 1.0
		}
		return
	}

	gradingContext := &graders.Context{
		Output:       record.Output,
		Hint:         task.Hint,
		WorkspaceDir: workspace,
	}

	allPassed := true
	scoreSum := 0.0
	for _, gc := range configs {
		g, err := graders.Create(graders.Kind(gc.Kind), gc.Name, gc.Parameters)
		if err != nil {
			record.Error = fmt.Sprintf("grader %q: %v", gc.Name, err)
			return
		}
		res, err := g.Grade(ctx, gradingContext)
		if err != nil {
			record.Error = fmt.Sprintf("grader %q: %v", gc.Name, err)
			return
		}
		record.Graders = append(record.Graders, res)
		scoreSum += res.Score
		if !res.Passed {
			allPassed = false
		}
	}

	record.Score = scoreSum / float64(len(configs))
	record.Passed = allPassed && !timedOut
}

// taskWorkspace creates the working directory for one capture. With a suite
// workdir, trials nest under it and are kept; otherwise a temp dir is used
// and removed afterwards.
func (r *Runner) taskWorkspace(task *config.Task, trial int) (string, func(), error) {
	if r.suite.Workdir != "" {
		dir := filepath.Join(r.suite.Workdir, task.ID)
		if trial > 0 {
			dir = filepath.Join(dir, fmt.Sprintf("trial-%03d", trial))
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("creating workspace for task %q: %w", task.ID, err)
		}
		return dir, func() {}, nil
	}

	dir, err := os.MkdirTemp("", "keiko-"+task.ID+"-")
	if err != nil {
		return "", nil, fmt.Errorf("creating workspace for task %q: %w", task.ID, err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

func (r *Runner) poolOptions(total int) pool.Options {
	return pool.Options{
		Concurrency: r.suite.Settings.Concurrency,
		MaxRSSBytes: uint64(r.suite.Settings.MaxRSSMB) * 1024 * 1024,
		OnThrottle: func(sampled, limit uint64) {
			fmt.Printf("[WARN] memory above limit (%d MiB > %d MiB), holding new tasks\n",
				sampled/(1024*1024), limit/(1024*1024))
			r.notifyProgress(ProgressEvent{
				EventType: EventThrottled,
				Details:   map[string]any{"sampled": sampled, "limit": limit},
			})
		},
	}
}

func (r *Runner) filteredTasks() []*config.Task {
	var tasks []*config.Task
	for i := range r.suite.Tasks {
		task := &r.suite.Tasks[i]
		if r.matchesFilters(task.ID) {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

func (r *Runner) matchesFilters(id string) bool {
	if len(r.taskFilters) == 0 {
		return true
	}
	for _, pattern := range r.taskFilters {
		if ok, _ := filepath.Match(pattern, id); ok {
			return true
		}
	}
	return false
}

func (r *Runner) findTask(id string) *config.Task {
	for i := range r.suite.Tasks {
		if r.suite.Tasks[i].ID == id {
			return &r.suite.Tasks[i]
		}
	}
	return nil
}
