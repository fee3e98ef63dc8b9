// Package trajectory defines the structured events an agent emits while
// handling prompts, and the line parser that produces them from raw agent
// output.
package trajectory

// Kind discriminates trajectory event types.
type Kind string

const (
	KindThought  Kind = "thought"
	KindMessage  Kind = "message"
	KindToolCall Kind = "tool_call"
	KindPlan     Kind = "plan"
)

// Update is one trajectory event decoded from a single output line, plus the
// raw source payload. Tool-call updates carry CallID so a later line can
// amend the status, output, or duration of an earlier call.
type Update struct {
	Kind     Kind           `json:"kind"`
	Content  string         `json:"content,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	CallID   string         `json:"call_id,omitempty"`
	Status   string         `json:"status,omitempty"`
	Raw      map[string]any `json:"raw,omitempty"`
}

// LineParser converts one decoded output line into structured updates and
// detects the final result line. Implementations must tolerate arbitrary
// non-matching input; a line that means nothing yields no updates.
type LineParser interface {
	// ParseLine classifies line into zero, one, or many updates.
	ParseLine(line string) []Update

	// ParseResult reports whether line is the agent's final result line
	// and, if so, its content.
	ParseResult(line string) (isResult bool, content string)
}

// sessionIDKeys are the field spellings recognized when opportunistically
// extracting a CLI-side session id from a raw payload.
var sessionIDKeys = []string{"session_id", "sessionId", "sessionID", "sessionUuid"}

// ExtractSessionID returns the first session-id-shaped string found in raw,
// checking top-level fields and then one level of nested objects. Returns ""
// when none is present. Payload shapes vary by agent, so every lookup is
// defensive.
func ExtractSessionID(raw map[string]any) string {
	if raw == nil {
		return ""
	}
	for _, key := range sessionIDKeys {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	for _, v := range raw {
		nested, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range sessionIDKeys {
			if s, ok := nested[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
