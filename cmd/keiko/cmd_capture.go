package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keiko-bench/keiko/internal/adapter"
	"github.com/keiko-bench/keiko/internal/config"
	"github.com/keiko-bench/keiko/internal/reporting"
	"github.com/keiko-bench/keiko/internal/runner"
)

var (
	captureOutput  string
	captureVerbose bool
	captureFilters []string
	captureWorkers int
)

func newCaptureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture <suite.yaml>",
		Short: "Run every task in a suite once and record the results",
		Long: `Run every task in a suite once against the configured agent.

Each task gets its own session and workspace; results are graded and
appended to a JSONL file (gzip-compressed when the path ends in .gz).`,
		Args: cobra.ExactArgs(1),
		RunE: captureCommandE,
	}

	cmd.Flags().StringVarP(&captureOutput, "output", "o", "results.jsonl", "Output JSONL file for capture records")
	cmd.Flags().BoolVarP(&captureVerbose, "verbose", "v", false, "Verbose output with per-update progress")
	cmd.Flags().StringArrayVar(&captureFilters, "task", nil, "Filter tasks by id glob pattern (can be repeated)")
	cmd.Flags().IntVar(&captureWorkers, "workers", 0, "Concurrency override (default: suite setting)")

	return cmd
}

func captureCommandE(cmd *cobra.Command, args []string) error {
	suite, schema, err := loadSuiteAndAdapter(args[0])
	if err != nil {
		return err
	}
	if captureWorkers > 0 {
		suite.Settings.Concurrency = captureWorkers
	}

	r, err := runner.New(suite, schema,
		runner.WithVerbose(captureVerbose),
		runner.WithDebug(debugLogging),
		runner.WithTaskFilters(captureFilters...),
	)
	if err != nil {
		return fmt.Errorf("failed to prepare runner: %w", err)
	}

	reporter := newProgressReporter(os.Stdout, captureVerbose)
	r.OnProgress(reporter.Listen)

	writer, err := reporting.NewWriter(captureOutput)
	if err != nil {
		return err
	}

	summary, err := r.Capture(cmd.Context(), writer)
	closeErr := writer.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	fmt.Printf("\n%d/%d passed (%d failed, %d errors)\n",
		summary.Passed, summary.Total, summary.Failed, summary.Errors)
	fmt.Printf("Results saved to: %s\n", captureOutput)

	if summary.Failed > 0 || summary.Errors > 0 {
		return &TaskFailureError{
			Message: fmt.Sprintf("%d of %d tasks did not pass", summary.Failed+summary.Errors, summary.Total),
		}
	}
	return nil
}

// loadSuiteAndAdapter loads the suite YAML and the adapter schema it names.
func loadSuiteAndAdapter(suitePath string) (*config.Suite, *adapter.Schema, error) {
	suite, err := config.LoadSuite(suitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load suite: %w", err)
	}
	schema, err := adapter.Load(suite.Adapter)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load adapter: %w", err)
	}
	return suite, schema, nil
}
