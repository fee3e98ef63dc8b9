// Package graders scores agent output after a capture completes. Each
// grader inspects the final output (and, for program graders, the task
// workspace) and produces a pass/fail verdict with a score.
package graders

import (
	"context"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Kind identifies a grader implementation.
type Kind string

const (
	KindKeyword Kind = "keyword"
	KindProgram Kind = "program"
)

// Grader is the interface all graders implement.
type Grader interface {
	// Name returns the grader's identifier, used in results and errors.
	Name() string

	// Kind returns the grader's kind.
	Kind() Kind

	// Grade scores one completed capture.
	Grade(ctx context.Context, gradingContext *Context) (*Results, error)
}

// Context carries everything a grader may inspect.
type Context struct {
	// Output is the agent's final output for the task.
	Output string

	// Hint is the task's expected-answer hint, if any.
	Hint string

	// WorkspaceDir is the sandbox the session worked in. Program graders
	// receive it via KEIKO_WORKSPACE_DIR so they can verify artifacts.
	WorkspaceDir string
}

// Results is one grader's verdict.
type Results struct {
	Name       string         `json:"name"`
	Kind       Kind           `json:"kind"`
	Score      float64        `json:"score"`
	Passed     bool           `json:"passed"`
	Feedback   string         `json:"feedback,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Details    map[string]any `json:"details,omitempty"`
}

// Create builds a grader of the named kind from loosely-typed suite config
// params.
func Create(kind Kind, identifier string, params map[string]any) (Grader, error) {
	switch kind {
	case KindKeyword:
		var v struct {
			MustContain    []string `mapstructure:"must_contain"`
			MustNotContain []string `mapstructure:"must_not_contain"`
		}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, err
		}
		return NewKeywordGrader(KeywordGraderArgs{
			Name:           identifier,
			MustContain:    v.MustContain,
			MustNotContain: v.MustNotContain,
		})
	case KindProgram:
		var v struct {
			Command string   `mapstructure:"command"`
			Args    []string `mapstructure:"args"`
			Timeout int      `mapstructure:"timeout"`
		}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, err
		}
		return NewProgramGrader(ProgramGraderArgs{
			Name:    identifier,
			Command: v.Command,
			Args:    v.Args,
			Timeout: v.Timeout,
		})
	default:
		return nil, fmt.Errorf("'%s' is not a valid grader kind", kind)
	}
}

// measureTime is a helper to record grading duration on the result.
func measureTime(fn func() (*Results, error)) (*Results, error) {
	start := time.Now()
	result, err := fn()

	if result != nil {
		result.DurationMs = time.Since(start).Milliseconds()
	}

	return result, err
}
