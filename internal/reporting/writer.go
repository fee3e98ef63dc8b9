// Package reporting persists capture and trial results as JSONL and renders
// plain-language summaries of trial statistics.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/keiko-bench/keiko/internal/graders"
	"github.com/keiko-bench/keiko/internal/session"
	"github.com/keiko-bench/keiko/internal/trajectory"
)

// CaptureRecord is one JSONL line: the full outcome of one task capture.
type CaptureRecord struct {
	RunID      string                   `json:"run_id"`
	TaskID     string                   `json:"task_id"`
	Trial      int                      `json:"trial,omitempty"`
	Prompt     string                   `json:"prompt,omitempty"`
	Output     string                   `json:"output"`
	Updates    []trajectory.Update      `json:"updates,omitempty"`
	ExitInfo   *session.ProcessExitInfo `json:"exit_info,omitempty"`
	Graders    []*graders.Results       `json:"graders,omitempty"`
	Passed     bool                     `json:"passed"`
	Score      float64                  `json:"score"`
	Error      string                   `json:"error,omitempty"`
	DurationMs int64                    `json:"duration_ms"`
	StartedAt  time.Time                `json:"started_at"`
}

// Writer appends records to a JSONL file, one JSON document per line.
// Writes from concurrent captures are expected to arrive pre-serialized
// through a write gate; Writer itself performs no locking.
//
// A path ending in ".gz" produces a gzip-compressed archive.
type Writer struct {
	file *os.File
	gz   *gzip.Writer
	out  io.Writer
}

// NewWriter creates (truncating) the results file at path.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating results file: %w", err)
	}

	w := &Writer{file: f, out: f}
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(f)
		w.out = w.gz
	}
	return w, nil
}

// Write appends one record as a JSON line.
func (w *Writer) Write(record *CaptureRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("writing record: %w", err)
	}
	return nil
}

// Close flushes compression (if any) and closes the file.
func (w *Writer) Close() error {
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.file.Close()
			return fmt.Errorf("finalizing gzip stream: %w", err)
		}
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing results file: %w", err)
	}
	return nil
}
