package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// debugLogging is the persistent --debug flag; commands pass it through to
// the session manager's diagnostic logger.
var debugLogging bool

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keiko",
		Short: "Keiko - evaluation harness for command-line coding agents",
		Long: `Keiko runs evaluation suites against command-line AI coding agents.

An adapter schema describes how to spawn an agent and decode its output;
a suite YAML lists the tasks to put to it. Keiko drives the sessions,
grades the results, and reports pass rates.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Enable debug logging")

	// Add subcommands
	cmd.AddCommand(newCaptureCommand())
	cmd.AddCommand(newTrialsCommand())
	cmd.AddCommand(newInitCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
