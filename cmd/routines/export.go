// ABOUTME: CLI commands for exporting and importing routines.
// ABOUTME: Supports JSON and YAML; imports are queued for sync like any other write.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/harperreed/routines/internal/models"
	"github.com/harperreed/routines/internal/storage"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Export routines",
	Long: `Export routines in JSON or YAML.

FORMATS:

  json       Full JSON export (suitable for backup/restore)
  yaml       YAML export (human-readable)

EXAMPLES:

  routines export json                 # Print JSON to stdout
  routines export json -o backup.json  # Save to file
  routines export yaml`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"json", "yaml"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		switch args[0] {
		case "json":
			data, err = storage.ExportJSON(cmd.Context(), repo)
		case "yaml":
			data, err = storage.ExportYAML(cmd.Context(), repo)
		default:
			return fmt.Errorf("unknown format: %s (use json or yaml)", args[0])
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			color.Green("✓ Exported to %s", exportOutput)
			return nil
		}
		fmt.Println(string(data))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import routines from a JSON or YAML export",
	Long: `Import routines from a previously exported file.

Each routine is saved as a new local change and queued for sync.
Routines whose id already exists are skipped.

EXAMPLES:

  routines import backup.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		data, err := storage.ParseExport(raw)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		imported, skipped := 0, 0
		for _, r := range data.Routines {
			_, err := engine.Save(cmd.Context(), models.RoutineDraft{
				ID:          r.ID,
				Name:        r.Name,
				Description: r.Description,
				Exercises:   r.Exercises,
			})
			if errors.Is(err, storage.ErrDuplicate) {
				skipped++
				continue
			}
			if err != nil {
				return fmt.Errorf("import %s: %w", r.ID, err)
			}
			imported++
		}

		color.Green("✓ Imported %d routines from %s", imported, args[0])
		if skipped > 0 {
			color.Yellow("  %d already existed and were skipped", skipped)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
