package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suiteYAML = `name: demo-suite
description: exercises the whole surface
adapter: ./claude.json
workdir: ./workspaces
settings:
  trials: 5
  concurrency: 4
  timeout_seconds: 120
  max_rss_mb: 2048
hooks:
  before_run:
    - command: git init
graders:
  - name: mentions-fix
    type: keyword
    config:
      must_contain: [fixed]
  - name: check-script
    type: program
    config:
      command: ./grade.sh
tasks:
  - id: fix-bug
    prompt: Fix the bug in main.go
    hint: off-by-one
    graders: [mentions-fix]
  - id: multi-turn
    turns:
      - Look at the failing test
      - Now fix it
    timeout_seconds: 60
`

func writeSuite(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSuite(t *testing.T) {
	path := writeSuite(t, suiteYAML)
	suite, err := LoadSuite(path)
	require.NoError(t, err)

	assert.Equal(t, "demo-suite", suite.Name)
	assert.Equal(t, 5, suite.Settings.Trials)
	assert.Equal(t, 4, suite.Settings.Concurrency)
	assert.Equal(t, 2048, suite.Settings.MaxRSSMB)
	assert.Len(t, suite.Tasks, 2)
	assert.Len(t, suite.Hooks.BeforeRun, 1)

	// Relative paths resolve against the suite file's directory.
	base := filepath.Dir(path)
	assert.Equal(t, filepath.Join(base, "claude.json"), suite.Adapter)
	assert.Equal(t, filepath.Join(base, "workspaces"), suite.Workdir)
}

func TestLoadSuite_Defaults(t *testing.T) {
	suite, err := LoadSuite(writeSuite(t, `name: minimal
adapter: agent.json
tasks:
  - id: t1
    prompt: hello
`))
	require.NoError(t, err)
	assert.Equal(t, 1, suite.Settings.Trials)
	assert.Equal(t, 1, suite.Settings.Concurrency)
}

func TestLoadSuite_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		errSubstr string
	}{
		{
			"missing name",
			"adapter: a.json\ntasks:\n  - id: t\n    prompt: p\n",
			"must have a name",
		},
		{
			"missing adapter",
			"name: x\ntasks:\n  - id: t\n    prompt: p\n",
			"adapter schema",
		},
		{
			"no tasks",
			"name: x\nadapter: a.json\n",
			"at least one task",
		},
		{
			"task without id",
			"name: x\nadapter: a.json\ntasks:\n  - prompt: p\n",
			"must have an id",
		},
		{
			"duplicate task ids",
			"name: x\nadapter: a.json\ntasks:\n  - id: t\n    prompt: p\n  - id: t\n    prompt: q\n",
			"duplicate task id",
		},
		{
			"task without prompt or turns",
			"name: x\nadapter: a.json\ntasks:\n  - id: t\n",
			"prompt or turns",
		},
		{
			"task with both prompt and turns",
			"name: x\nadapter: a.json\ntasks:\n  - id: t\n    prompt: p\n    turns: [a, b]\n",
			"both prompt and turns",
		},
		{
			"unknown grader reference",
			"name: x\nadapter: a.json\ntasks:\n  - id: t\n    prompt: p\n    graders: [ghost]\n",
			"unknown grader",
		},
		{
			"duplicate grader names",
			"name: x\nadapter: a.json\ngraders:\n  - name: g\n    type: keyword\n  - name: g\n    type: program\ntasks:\n  - id: t\n    prompt: p\n",
			"duplicate grader name",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSuite(writeSuite(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestTask_PromptTurns(t *testing.T) {
	single := &Task{Prompt: "one"}
	assert.Equal(t, []string{"one"}, single.PromptTurns())

	multi := &Task{Turns: []string{"a", "b"}}
	assert.Equal(t, []string{"a", "b"}, multi.PromptTurns())
}

func TestSuite_TaskGraders(t *testing.T) {
	suite, err := LoadSuite(writeSuite(t, suiteYAML))
	require.NoError(t, err)

	// Task with explicit grader list gets exactly those.
	selected := suite.TaskGraders(&suite.Tasks[0])
	require.Len(t, selected, 1)
	assert.Equal(t, "mentions-fix", selected[0].Name)

	// Task without a list gets every suite-level grader.
	selected = suite.TaskGraders(&suite.Tasks[1])
	assert.Len(t, selected, 2)
}
