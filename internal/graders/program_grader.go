package graders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// defaultProgramTimeoutSeconds is the default timeout for program graders when none is specified.
const defaultProgramTimeoutSeconds = 30

// ProgramGraderArgs holds the arguments for creating a program grader.
type ProgramGraderArgs struct {
	// Name is the identifier for this grader, used in results and error messages.
	Name string
	// Command is the program to execute for grading.
	Command string `mapstructure:"command"`
	// Args are the arguments to pass to the program.
	Args []string `mapstructure:"args"`
	// Timeout is the maximum execution time in seconds. Defaults to 30 if not set.
	Timeout int `mapstructure:"timeout"`
}

// graderRequest is the JSON document written to the program's stdin.
type graderRequest struct {
	Output string `json:"output"`
	Hint   string `json:"hint,omitempty"`
}

// graderVerdict is the JSON document expected on the program's stdout.
type graderVerdict struct {
	Pass      bool     `json:"pass"`
	Score     *float64 `json:"score,omitempty"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// programGrader runs an external program to grade agent output. The program
// receives {"output": ..., "hint": ...} on stdin and replies with
// {"pass": ..., "score": ..., "reasoning": ...} on stdout. The workspace
// directory is available as the KEIKO_WORKSPACE_DIR environment variable.
// When stdout is not a verdict document, the exit code decides: 0 = pass,
// non-zero = fail.
type programGrader struct {
	name    string
	command string
	args    []string
	timeout time.Duration
}

// NewProgramGrader creates a [programGrader] that runs an external command to grade output.
func NewProgramGrader(args ProgramGraderArgs) (*programGrader, error) {
	if args.Command == "" {
		return nil, fmt.Errorf("program grader '%s' must have a 'command'", args.Name)
	}

	timeout := args.Timeout
	if timeout <= 0 {
		timeout = defaultProgramTimeoutSeconds
	}

	return &programGrader{
		name:    args.Name,
		command: args.Command,
		args:    args.Args,
		timeout: time.Duration(timeout) * time.Second,
	}, nil
}

func (pg *programGrader) Name() string { return pg.name }
func (pg *programGrader) Kind() Kind   { return KindProgram }

func (pg *programGrader) Grade(ctx context.Context, gradingContext *Context) (*Results, error) {
	return measureTime(func() (*Results, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, pg.timeout)
		defer cancel()

		request, err := json.Marshal(graderRequest{
			Output: gradingContext.Output,
			Hint:   gradingContext.Hint,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding grader request: %w", err)
		}

		cmd := exec.CommandContext(timeoutCtx, pg.command, pg.args...)
		cmd.Stdin = bytes.NewReader(request)
		cmd.Env = append(cmd.Environ(), fmt.Sprintf("KEIKO_WORKSPACE_DIR=%s", gradingContext.WorkspaceDir))

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()

		notes := strings.TrimSpace(stdout.String())
		errOutput := strings.TrimSpace(stderr.String())

		details := map[string]any{
			"command":       pg.command,
			"args":          pg.args,
			"stdout":        notes,
			"stderr":        errOutput,
			"workspace_dir": gradingContext.WorkspaceDir,
		}

		// A verdict document on stdout wins over the exit code.
		var verdict graderVerdict
		if notes != "" && json.Unmarshal([]byte(notes), &verdict) == nil {
			score := 0.0
			if verdict.Pass {
				score = 1.0
			}
			if verdict.Score != nil {
				score = *verdict.Score
			}
			feedback := verdict.Reasoning
			if feedback == "" {
				feedback = "Program returned a verdict"
			}
			return &Results{
				Name:     pg.name,
				Kind:     KindProgram,
				Score:    score,
				Passed:   verdict.Pass,
				Feedback: feedback,
				Details:  details,
			}, nil
		}

		if runErr != nil {
			feedback := fmt.Sprintf("Program exited with error: %v", runErr)
			if errOutput != "" {
				feedback = fmt.Sprintf("%s; stderr: %s", feedback, errOutput)
			}
			details["exit_error"] = runErr.Error()

			return &Results{
				Name:     pg.name,
				Kind:     KindProgram,
				Score:    0.0,
				Passed:   false,
				Feedback: feedback,
				Details:  details,
			}, nil
		}

		feedback := "Program exited successfully"
		if notes != "" {
			feedback = notes
		}

		return &Results{
			Name:     pg.name,
			Kind:     KindProgram,
			Score:    1.0,
			Passed:   true,
			Feedback: feedback,
			Details:  details,
		}, nil
	})
}
