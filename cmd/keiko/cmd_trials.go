package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keiko-bench/keiko/internal/reporting"
	"github.com/keiko-bench/keiko/internal/runner"
)

var (
	trialsTask    string
	trialsCount   int
	trialsK       int
	trialsOutput  string
	trialsVerbose bool
)

func newTrialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trials <suite.yaml>",
		Short: "Run one task repeatedly and estimate its pass rate",
		Long: `Run a single task N times and report pass@k / pass^k estimates with a
bootstrap confidence interval over the trial scores.`,
		Args: cobra.ExactArgs(1),
		RunE: trialsCommandE,
	}

	cmd.Flags().StringVar(&trialsTask, "task", "", "Task id to run (required)")
	cmd.Flags().IntVarP(&trialsCount, "trials", "n", 10, "Number of trials to run")
	cmd.Flags().IntVarP(&trialsK, "k", "k", 1, "k for the pass@k / pass^k estimators")
	cmd.Flags().StringVarP(&trialsOutput, "output", "o", "", "Optional JSONL file for per-trial records")
	cmd.Flags().BoolVarP(&trialsVerbose, "verbose", "v", false, "Verbose output with per-update progress")
	_ = cmd.MarkFlagRequired("task")

	return cmd
}

func trialsCommandE(cmd *cobra.Command, args []string) error {
	suite, schema, err := loadSuiteAndAdapter(args[0])
	if err != nil {
		return err
	}

	r, err := runner.New(suite, schema,
		runner.WithVerbose(trialsVerbose),
		runner.WithDebug(debugLogging),
	)
	if err != nil {
		return fmt.Errorf("failed to prepare runner: %w", err)
	}

	reporter := newProgressReporter(os.Stdout, trialsVerbose)
	r.OnProgress(reporter.Listen)

	var writer *reporting.Writer
	if trialsOutput != "" {
		writer, err = reporting.NewWriter(trialsOutput)
		if err != nil {
			return err
		}
	}

	stats, err := r.Trials(cmd.Context(), trialsTask, trialsCount, trialsK, writer)
	if writer != nil {
		if closeErr := writer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(reporting.FormatTrialsSummary(stats))
	if trialsOutput != "" {
		fmt.Printf("Trial records saved to: %s\n", trialsOutput)
	}

	if stats.Passed == 0 {
		return &TaskFailureError{
			Message: fmt.Sprintf("task %q failed all %d trials", stats.TaskID, stats.Trials),
		}
	}
	return nil
}
