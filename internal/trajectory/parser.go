package trajectory

import (
	"encoding/json"
	"strings"
)

// EventRule maps a JSON output line onto one trajectory update. A rule
// matches when every field in Match equals the value at the corresponding
// dotted path in the decoded line. Field references are dotted paths
// ("message.content") resolved defensively against the loosely-typed
// payload.
type EventRule struct {
	Match         map[string]string `json:"match"`
	Kind          Kind              `json:"kind"`
	ContentField  string            `json:"contentField,omitempty"`
	ToolNameField string            `json:"toolNameField,omitempty"`
	CallIDField   string            `json:"callIdField,omitempty"`
	StatusField   string            `json:"statusField,omitempty"`
}

// ResultRule detects the final result line and names the field holding its
// content.
type ResultRule struct {
	Match        map[string]string `json:"match"`
	ContentField string            `json:"contentField,omitempty"`
}

// SchemaParser is a LineParser driven by per-adapter event rules. Lines are
// expected to be JSON objects; anything else parses to nothing.
type SchemaParser struct {
	events []EventRule
	result *ResultRule
}

// NewSchemaParser builds a parser from an adapter's event and result rules.
func NewSchemaParser(events []EventRule, result *ResultRule) *SchemaParser {
	return &SchemaParser{events: events, result: result}
}

// ParseLine implements LineParser. Every matching rule contributes one
// update, so a single line may yield several.
func (p *SchemaParser) ParseLine(line string) []Update {
	raw := decodeObject(line)
	if raw == nil {
		return nil
	}

	var updates []Update
	for _, rule := range p.events {
		if !matches(raw, rule.Match) {
			continue
		}
		updates = append(updates, Update{
			Kind:     rule.Kind,
			Content:  lookupString(raw, rule.ContentField),
			ToolName: lookupString(raw, rule.ToolNameField),
			CallID:   lookupString(raw, rule.CallIDField),
			Status:   lookupString(raw, rule.StatusField),
			Raw:      raw,
		})
	}
	return updates
}

// ParseResult implements LineParser.
func (p *SchemaParser) ParseResult(line string) (bool, string) {
	if p.result == nil {
		return false, ""
	}
	raw := decodeObject(line)
	if raw == nil || !matches(raw, p.result.Match) {
		return false, ""
	}
	return true, lookupString(raw, p.result.ContentField)
}

func decodeObject(line string) map[string]any {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' {
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil
	}
	return raw
}

func matches(raw map[string]any, match map[string]string) bool {
	if len(match) == 0 {
		return false
	}
	for path, want := range match {
		if lookupString(raw, path) != want {
			return false
		}
	}
	return true
}

// lookupString resolves a dotted path against a decoded JSON object,
// returning "" when any segment is missing or the value is not a string.
func lookupString(raw map[string]any, path string) string {
	if path == "" {
		return ""
	}
	cur := any(raw)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[seg]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}
