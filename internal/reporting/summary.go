package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/keiko-bench/keiko/internal/statistics"
)

// TrialsStats aggregates the outcome of repeated trials of one task.
type TrialsStats struct {
	TaskID     string                        `json:"task_id"`
	Trials     int                           `json:"trials"`
	Passed     int                           `json:"passed"`
	K          int                           `json:"k"`
	PassAtK    float64                       `json:"pass_at_k"`
	PassHatK   float64                       `json:"pass_hat_k"`
	MeanScore  float64                       `json:"mean_score"`
	CI         statistics.ConfidenceInterval `json:"confidence_interval"`
	DurationMs int64                         `json:"duration_ms"`
}

// PassRate returns the observed per-trial pass rate.
func (s *TrialsStats) PassRate() float64 {
	if s.Trials == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Trials)
}

// Flaky reports whether the same task both passed and failed across trials.
func (s *TrialsStats) Flaky() bool {
	return s.Passed > 0 && s.Passed < s.Trials
}

// InterpretScore returns a plain-language label for a numeric score (0–1).
func InterpretScore(score float64) string {
	pct := score * 100
	switch {
	case pct > 90:
		return "Excellent (>90%)"
	case pct >= 70:
		return "Good (70-90%)"
	case pct >= 50:
		return "Needs Work (50-70%)"
	default:
		return "Poor (<50%)"
	}
}

// InterpretPassRate returns a human-readable explanation of a pass rate (0–1).
func InterpretPassRate(rate float64) string {
	pct := rate * 100
	switch {
	case pct >= 100:
		return fmt.Sprintf("All trials passed (%.0f%%)", pct)
	case pct >= 80:
		return fmt.Sprintf("Most trials passed (%.0f%%)", pct)
	case pct >= 50:
		return fmt.Sprintf("About half the trials passed (%.0f%%)", pct)
	default:
		return fmt.Sprintf("Few trials passed (%.0f%%)", pct)
	}
}

// InterpretFlaky explains whether results are flaky and what that means.
func InterpretFlaky(flaky bool, passRate float64) string {
	if !flaky {
		return "Results are consistent across trials."
	}
	pct := passRate * 100
	return fmt.Sprintf("Results are flaky — the same task passes and fails across trials (%.0f%% pass rate). Consider increasing trials or investigating non-determinism.", pct)
}

// FormatTrialsSummary produces a full plain-language report of trial stats.
func FormatTrialsSummary(s *TrialsStats) string {
	var b strings.Builder

	duration := time.Duration(s.DurationMs) * time.Millisecond

	b.WriteString("=== Trial Summary ===\n\n")
	b.WriteString(fmt.Sprintf("Task:       %s\n", s.TaskID))
	b.WriteString(fmt.Sprintf("Trials:     %d passed out of %d\n", s.Passed, s.Trials))
	b.WriteString(fmt.Sprintf("Pass Rate:  %s\n", InterpretPassRate(s.PassRate())))
	b.WriteString(fmt.Sprintf("Mean Score: %.2f — %s\n", s.MeanScore, InterpretScore(s.MeanScore)))
	if s.CI.NumBootstraps > 0 {
		b.WriteString(fmt.Sprintf("Score CI:   [%.2f, %.2f] at %.0f%% confidence\n",
			s.CI.Lower, s.CI.Upper, s.CI.ConfidenceLevel*100))
	}
	if s.K > 0 {
		b.WriteString(fmt.Sprintf("pass@%d:    %.3f\n", s.K, s.PassAtK))
		b.WriteString(fmt.Sprintf("pass^%d:    %.3f\n", s.K, s.PassHatK))
	}
	b.WriteString(fmt.Sprintf("Duration:   %v\n", duration))
	b.WriteString("\n")
	b.WriteString(InterpretFlaky(s.Flaky(), s.PassRate()))
	b.WriteString("\n")

	return b.String()
}
