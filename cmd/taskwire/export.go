package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export tasks and pending changes as JSON",
	Long: `Export the projected task list plus the pending changelog.

Writes to stdout unless a file is given.

Example:
  taskwire export backup.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return fmt.Errorf("initialize client: %w", err)
		}
		defer func() { _ = client.Close() }()

		out := os.Stdout
		if len(args) == 1 {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer f.Close()
			out = f
		}

		return client.Export(out)
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import tasks from a JSON export",
	Long: `Import tasks from an export file.

Imported tasks go through the regular change protocol, so they sync to
the server like any local edit. Tasks already present are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return fmt.Errorf("initialize client: %w", err)
		}
		defer func() { _ = client.Close() }()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open export file: %w", err)
		}
		defer f.Close()

		result, err := client.Import(f)
		if err != nil {
			return err
		}

		fmt.Printf("Imported %d of %d task(s), %d skipped\n", result.Created, result.Total, result.Skipped)
		for _, msg := range result.Errors {
			fmt.Printf("  error: %s\n", msg)
		}
		return nil
	},
}
