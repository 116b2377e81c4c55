// ABOUTME: CLI command for moving local data between storage backends.
// ABOUTME: Copies routines, cached media, and the pending queue from the current backend to another.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/harperreed/routines/internal/config"
	"github.com/harperreed/routines/internal/storage"
	"github.com/spf13/cobra"
)

var (
	migrateTo     string
	migrateDryRun bool
	migrateSwitch bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move local data to another storage backend",
	Long: `Copy routines, cached media, and queued changes from the current
backend to another one.

Queue entries keep their ids, so pending changes replay in the same order
after the move.

USAGE:

  routines migrate --to badger --dry-run   # Preview what would be copied
  routines migrate --to badger --switch    # Copy and make badger the default

The destination must be empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateTo == appCfg.GetBackend() {
			return fmt.Errorf("already using %s", migrateTo)
		}

		dataDir := appCfg.GetDataDir()
		dest := filepath.Join(dataDir, "badger")
		if migrateTo == config.BackendSQLite {
			dest = filepath.Join(dataDir, storage.DBFileName)
		}
		if err := ensureEmptyDestination(migrateTo, dest); err != nil {
			return err
		}

		if migrateDryRun {
			data, err := storage.GetAllData(cmd.Context(), repo)
			if err != nil {
				return err
			}
			color.Yellow("Dry run mode - no changes will be made")
			fmt.Printf("  Would copy %d routines and %d queued changes to %s\n", len(data.Routines), data.Pending, dest)
			return nil
		}

		dst, err := config.OpenBackend(migrateTo, dataDir)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", migrateTo, err)
		}
		defer dst.Close()

		// Let any background drain settle so the queue copy is consistent.
		engine.Wait()

		summary, err := storage.MigrateData(cmd.Context(), repo, dst)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		color.Green("✓ Migrated to %s", migrateTo)
		fmt.Printf("  Routines: %d  Media: %d  Queued changes: %d\n", summary.Routines, summary.Media, summary.QueueEntries)

		if migrateSwitch {
			cfg, err := config.LoadFile()
			if err != nil {
				return err
			}
			cfg.Backend = migrateTo
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			color.Green("✓ Default backend is now %s", migrateTo)
		}
		return nil
	},
}

func ensureEmptyDestination(backend, dest string) error {
	switch backend {
	case config.BackendBadger:
		nonEmpty, err := storage.IsDirNonEmpty(dest)
		if err != nil {
			return err
		}
		if nonEmpty {
			return fmt.Errorf("destination %s is not empty", dest)
		}
	case config.BackendSQLite:
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("destination %s already exists", dest)
		}
	default:
		return fmt.Errorf("unknown backend: %q (use sqlite or badger)", backend)
	}
	return nil
}

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", config.BackendBadger, "destination backend: sqlite or badger")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "preview migration without making changes")
	migrateCmd.Flags().BoolVar(&migrateSwitch, "switch", false, "make the destination the default backend")
	rootCmd.AddCommand(migrateCmd)
}
