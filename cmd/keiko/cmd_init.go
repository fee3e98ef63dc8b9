package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/keiko-bench/keiko/internal/wizard"
)

var initDir string

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Interactively scaffold an adapter schema and a starter suite",
		Long: `Walk through a short wizard describing your agent's command line, then
write a starter adapter schema and suite YAML to get a first capture running.`,
		Args: cobra.MaximumNArgs(1),
		RunE: initCommandE,
	}

	cmd.Flags().StringVar(&initDir, "dir", ".", "Directory to write the generated files into")

	return cmd
}

func initCommandE(cmd *cobra.Command, args []string) error {
	initialName := ""
	if len(args) == 1 {
		initialName = args[0]
	}

	spec, err := wizard.RunInitWizard(os.Stdin, os.Stdout, initialName)
	if err != nil {
		return err
	}

	adapterPath := filepath.Join(initDir, spec.SuiteName+".adapter.json")
	suitePath := filepath.Join(initDir, spec.SuiteName+".suite.yaml")
	for _, path := range []string{adapterPath, suitePath} {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", path)
		}
	}

	schemaJSON, err := wizard.GenerateAdapterSchema(spec)
	if err != nil {
		return err
	}
	suiteYAML, err := wizard.GenerateSuiteYAML(spec)
	if err != nil {
		return err
	}

	if err := os.WriteFile(adapterPath, schemaJSON, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", adapterPath, err)
	}
	if err := os.WriteFile(suitePath, []byte(suiteYAML), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", suitePath, err)
	}

	fmt.Printf("Created %s and %s\n", adapterPath, suitePath)
	fmt.Printf("Try it: keiko capture %s\n", suitePath)
	return nil
}
