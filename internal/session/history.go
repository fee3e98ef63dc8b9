package session

import (
	"strings"
	"text/template"

	"github.com/keiko-bench/keiko/internal/adapter"
)

// defaultTurnFormat renders one past turn when the schema declares no
// template of its own.
const defaultTurnFormat = "User: {{.Input}}\nAssistant: {{.Output}}\n\n"

// historyTurn is one completed input/output pair.
type historyTurn struct {
	Input  string
	Output string
}

// historyBuilder accumulates iterative-mode conversation history and
// renders it, plus the new turn, into a single prompt string.
type historyBuilder struct {
	tmpl  *template.Template
	turns []historyTurn
}

// resolveTurnFormat validates the schema's turn template early so Create
// never has to fail.
func resolveTurnFormat(h *adapter.HistoryTemplate) (string, error) {
	format := defaultTurnFormat
	if h != nil && h.TurnFormat != "" {
		format = h.TurnFormat
	}
	if _, err := template.New("turn").Parse(format); err != nil {
		return "", err
	}
	return format, nil
}

// newHistoryBuilder builds a historyBuilder from a format already vetted by
// resolveTurnFormat.
func newHistoryBuilder(format string) *historyBuilder {
	if format == "" {
		format = defaultTurnFormat
	}
	return &historyBuilder{
		tmpl: template.Must(template.New("turn").Parse(format)),
	}
}

// Render produces the full prompt for the next turn: every past turn
// rendered through the template, followed by the new input.
func (b *historyBuilder) Render(next string) string {
	if len(b.turns) == 0 {
		return next
	}

	var sb strings.Builder
	for _, turn := range b.turns {
		// The template was validated at construction; execution against
		// plain strings cannot fail in practice.
		_ = b.tmpl.Execute(&sb, turn)
	}
	sb.WriteString(next)
	return sb.String()
}

// Append records a completed turn.
func (b *historyBuilder) Append(input, output string) {
	b.turns = append(b.turns, historyTurn{Input: input, Output: output})
}
