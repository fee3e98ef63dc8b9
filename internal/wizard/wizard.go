// Package wizard collects adapter and suite settings interactively and
// renders starter files for a new evaluation project.
package wizard

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/keiko-bench/keiko/internal/adapter"
)

// InitSpec holds all fields collected during the interactive wizard.
type InitSpec struct {
	SuiteName   string
	Command     []string
	SessionMode adapter.SessionMode
	PromptStdin bool
	PromptFlag  string
	OutputFlag  string
	OutputValue string
	ResumeFlag  string
}

const suiteTemplate = `name: {{ .SuiteName }}
description: Starter suite. Edit the tasks below to match your benchmark.
adapter: ./{{ .SuiteName }}.adapter.json
settings:
  trials: 1
  concurrency: 2
  timeout_seconds: 300
graders:
  - name: sanity
    type: keyword
    config:
      must_contain: [done]
tasks:
  - id: hello-world
    prompt: Create a file hello.txt containing "hello world", then say done.
`

// RunInitWizard runs an interactive huh form to collect adapter metadata.
// If initialName is non-empty, it pre-populates the suite name field.
func RunInitWizard(in io.Reader, out io.Writer, initialName string) (*InitSpec, error) {
	var (
		name       = initialName
		commandRaw string
		mode       string
		promptVia  string
		promptFlag string
		outputRaw  string
		resumeFlag string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Suite name").
				Description("A kebab-case name for your suite").
				Placeholder("my-agent-evals").
				Value(&name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("suite name is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Agent command").
				Description("The base command line that starts your agent").
				Placeholder("claude -p").
				Value(&commandRaw).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("agent command is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Session mode").
				Description("How conversational continuity is preserved across turns").
				Options(
					huh.NewOption("stream (resume via CLI session id)", string(adapter.ModeStream)),
					huh.NewOption("iterative (replay history each turn)", string(adapter.ModeIterative)),
				).
				Value(&mode),
			huh.NewSelect[string]().
				Title("Prompt delivery").
				Options(
					huh.NewOption("stdin", "stdin"),
					huh.NewOption("flag", "flag"),
					huh.NewOption("positional argument", "positional"),
				).
				Value(&promptVia),
			huh.NewInput().
				Title("Prompt flag").
				Description("Only used with flag delivery, e.g. --prompt").
				Value(&promptFlag),
			huh.NewInput().
				Title("Output format flag and value").
				Description("Optional, e.g. \"--output-format stream-json\"").
				Value(&outputRaw),
			huh.NewInput().
				Title("Resume flag").
				Description("Stream mode only; optional, e.g. --resume").
				Value(&resumeFlag),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	spec := &InitSpec{
		SuiteName:   strings.TrimSpace(name),
		Command:     strings.Fields(commandRaw),
		SessionMode: adapter.SessionMode(mode),
		PromptStdin: promptVia == "stdin",
		ResumeFlag:  strings.TrimSpace(resumeFlag),
	}
	if promptVia == "flag" {
		spec.PromptFlag = strings.TrimSpace(promptFlag)
	}
	if parts := strings.Fields(outputRaw); len(parts) == 2 {
		spec.OutputFlag = parts[0]
		spec.OutputValue = parts[1]
	}
	return spec, nil
}

// GenerateAdapterSchema renders the starter adapter schema JSON. The output
// always passes adapter.Parse.
func GenerateAdapterSchema(spec *InitSpec) ([]byte, error) {
	schema := &adapter.Schema{
		Command:     spec.Command,
		SessionMode: spec.SessionMode,
		Prompt: adapter.PromptSpec{
			Stdin: spec.PromptStdin,
			Flag:  spec.PromptFlag,
		},
	}
	if spec.OutputFlag != "" {
		schema.Output = &adapter.OutputSpec{Flag: spec.OutputFlag, Value: spec.OutputValue}
	}
	if spec.ResumeFlag != "" && spec.SessionMode == adapter.ModeStream {
		schema.Resume = &adapter.ResumeSpec{Flag: spec.ResumeFlag}
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("rendering adapter schema: %w", err)
	}
	data = append(data, '\n')

	if _, err := adapter.Parse(data); err != nil {
		return nil, fmt.Errorf("generated schema is invalid: %w", err)
	}
	return data, nil
}

// GenerateSuiteYAML renders the starter suite file.
func GenerateSuiteYAML(spec *InitSpec) (string, error) {
	tmpl, err := template.New("suite").Parse(suiteTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, spec); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}
