// Package config loads the evaluation suite definition: which adapter to
// drive, which tasks to run, and how hard to push the machine doing it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/keiko-bench/keiko/internal/hooks"
)

// Suite represents a complete evaluation suite definition.
type Suite struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Adapter     string            `yaml:"adapter"`
	Workdir     string            `yaml:"workdir,omitempty"`
	Settings    Settings          `yaml:"settings"`
	Hooks       hooks.HooksConfig `yaml:"hooks,omitempty"`
	Graders     []GraderConfig    `yaml:"graders,omitempty"`
	Tasks       []Task            `yaml:"tasks"`
}

// Settings controls execution behavior.
type Settings struct {
	Trials      int `yaml:"trials,omitempty"`
	Concurrency int `yaml:"concurrency,omitempty"`
	TimeoutSec  int `yaml:"timeout_seconds,omitempty"`
	MaxRSSMB    int `yaml:"max_rss_mb,omitempty"`
}

// GraderConfig names a grader and carries its loosely-typed parameters.
type GraderConfig struct {
	Name       string         `yaml:"name"`
	Kind       string         `yaml:"type"`
	Parameters map[string]any `yaml:"config,omitempty"`
}

// Task is one prompt (or conversation) to put to the agent.
type Task struct {
	ID         string   `yaml:"id"`
	Prompt     string   `yaml:"prompt,omitempty"`
	Turns      []string `yaml:"turns,omitempty"`
	Hint       string   `yaml:"hint,omitempty"`
	TimeoutSec int      `yaml:"timeout_seconds,omitempty"`
	Graders    []string `yaml:"graders,omitempty"`
}

// PromptTurns returns the task's turn sequence: Turns when set, otherwise
// the single Prompt.
func (t *Task) PromptTurns() []string {
	if len(t.Turns) > 0 {
		return t.Turns
	}
	return []string{t.Prompt}
}

// LoadSuite loads a suite from a YAML file. Relative adapter and workdir
// paths are resolved against the suite file's directory.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parsing suite %s: %w", path, err)
	}

	suite.applyDefaults()
	if err := suite.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	suite.Adapter = resolvePath(base, suite.Adapter)
	if suite.Workdir != "" {
		suite.Workdir = resolvePath(base, suite.Workdir)
	}

	return &suite, nil
}

func (s *Suite) applyDefaults() {
	if s.Settings.Trials < 1 {
		s.Settings.Trials = 1
	}
	if s.Settings.Concurrency < 1 {
		s.Settings.Concurrency = 1
	}
}

// Validate checks that the suite is well-formed.
func (s *Suite) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("suite must have a name")
	}
	if s.Adapter == "" {
		return fmt.Errorf("suite must name an adapter schema file")
	}
	if len(s.Tasks) == 0 {
		return fmt.Errorf("suite must define at least one task")
	}

	graderNames := make(map[string]bool, len(s.Graders))
	for i, g := range s.Graders {
		if g.Name == "" || g.Kind == "" {
			return fmt.Errorf("grader[%d] must have a name and a type", i)
		}
		if graderNames[g.Name] {
			return fmt.Errorf("duplicate grader name %q", g.Name)
		}
		graderNames[g.Name] = true
	}

	taskIDs := make(map[string]bool, len(s.Tasks))
	for i, task := range s.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task[%d] must have an id", i)
		}
		if taskIDs[task.ID] {
			return fmt.Errorf("duplicate task id %q", task.ID)
		}
		taskIDs[task.ID] = true

		if task.Prompt == "" && len(task.Turns) == 0 {
			return fmt.Errorf("task %q must have a prompt or turns", task.ID)
		}
		if task.Prompt != "" && len(task.Turns) > 0 {
			return fmt.Errorf("task %q cannot have both prompt and turns", task.ID)
		}
		for _, name := range task.Graders {
			if !graderNames[name] {
				return fmt.Errorf("task %q references unknown grader %q", task.ID, name)
			}
		}
	}
	return nil
}

// TaskGraders returns the grader configs that apply to task: the named ones
// when the task lists any, otherwise every suite-level grader.
func (s *Suite) TaskGraders(task *Task) []GraderConfig {
	if len(task.Graders) == 0 {
		return s.Graders
	}
	var selected []GraderConfig
	for _, name := range task.Graders {
		for _, g := range s.Graders {
			if g.Name == name {
				selected = append(selected, g)
				break
			}
		}
	}
	return selected
}

func resolvePath(base, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
