package adapter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claudeLikeSchema = `{
  "command": ["claude", "-p"],
  "sessionMode": "stream",
  "prompt": {"stdin": true},
  "output": {"flag": "--output-format", "value": "stream-json"},
  "autoApprove": ["--dangerously-skip-permissions"],
  "cwdFlag": "--cwd",
  "resume": {"flag": "--resume"},
  "timeout": 120000,
  "events": [
    {"match": {"type": "assistant"}, "kind": "message", "contentField": "message.content"}
  ],
  "result": {"match": {"type": "result"}, "contentField": "result"}
}`

func TestParse_FullStreamSchema(t *testing.T) {
	schema, err := Parse([]byte(claudeLikeSchema))
	require.NoError(t, err)

	assert.Equal(t, []string{"claude", "-p"}, schema.Command)
	assert.Equal(t, ModeStream, schema.SessionMode)
	assert.True(t, schema.Prompt.Stdin)
	require.NotNil(t, schema.Output)
	assert.Equal(t, "--output-format", schema.Output.Flag)
	require.NotNil(t, schema.Resume)
	assert.Equal(t, "--resume", schema.Resume.Flag)
	assert.Equal(t, 2*time.Minute, schema.Timeout())
	assert.Len(t, schema.Events, 1)
	require.NotNil(t, schema.Result)
}

func TestParse_DefaultTimeout(t *testing.T) {
	schema, err := Parse([]byte(`{"command":["agent"],"sessionMode":"stream","prompt":{"stdin":true}}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, schema.Timeout())
}

func TestParse_RejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing command", `{"sessionMode":"stream","prompt":{}}`},
		{"empty command", `{"command":[],"sessionMode":"stream","prompt":{}}`},
		{"bad mode", `{"command":["a"],"sessionMode":"daemon","prompt":{}}`},
		{"unknown field", `{"command":["a"],"sessionMode":"stream","prompt":{},"shell":true}`},
		{"negative timeout", `{"command":["a"],"sessionMode":"stream","prompt":{},"timeout":-5}`},
		{"not json", `command: [a]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_CrossFieldConstraints(t *testing.T) {
	_, err := Parse([]byte(`{"command":["a"],"sessionMode":"stream","prompt":{"stdin":true,"flag":"-p"}}`))
	assert.ErrorContains(t, err, "stdin")

	_, err = Parse([]byte(`{"command":["a"],"sessionMode":"iterative","prompt":{},"resume":{"flag":"-r"}}`))
	assert.ErrorContains(t, err, "stream mode")

	_, err = Parse([]byte(`{"command":["a"],"sessionMode":"stream","prompt":{},"historyTemplate":"x"}`))
	assert.ErrorContains(t, err, "iterative mode")
}

func TestHistoryTemplate_BothWireForms(t *testing.T) {
	schema, err := Parse([]byte(`{"command":["a"],"sessionMode":"iterative","prompt":{},"historyTemplate":"U: {{.Input}} A: {{.Output}}"}`))
	require.NoError(t, err)
	require.NotNil(t, schema.History)
	assert.Equal(t, "U: {{.Input}} A: {{.Output}}", schema.History.TurnFormat)

	schema, err = Parse([]byte(`{"command":["a"],"sessionMode":"iterative","prompt":{},"historyTemplate":{"turnFormat":"T: {{.Input}}"}}`))
	require.NoError(t, err)
	require.NotNil(t, schema.History)
	assert.Equal(t, "T: {{.Input}}", schema.History.TurnFormat)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.json")
	require.NoError(t, os.WriteFile(path, []byte(claudeLikeSchema), 0o644))

	schema, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeStream, schema.SessionMode)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
