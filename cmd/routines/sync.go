// ABOUTME: CLI commands for replaying queued changes and managing the remote.
// ABOUTME: Supports now, status, pull, watch, and the Charm link, unlink, repair, reset, and wipe operations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/charm/kv"
	"github.com/fatih/color"
	"github.com/harperreed/routines/internal/charm"
	"github.com/harperreed/routines/internal/config"
	syncengine "github.com/harperreed/routines/internal/sync"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	Aliases: []string{"s"},
	Short:   "Sync routines with the remote",
	Long: `Replay queued changes to the remote and pull remote routines.

Every local change is queued. The queue drains automatically whenever the
remote is reachable; these commands let you drive it by hand.

COMMANDS:

  now         Replay queued changes now
  status      Show pending changes, last sync, and dropped mutations
  pull        Fetch remote routines into the local store
  watch       Stay running and sync whenever the connection returns

CHARM REMOTE:

  link        Link this device to your Charm account
  unlink      Disconnect this device from Charm
  repair      Repair the Charm KV database
  reset       Reset local Charm data and restore from cloud (destructive)
  wipe        Delete Charm cloud and local data (destructive)`,
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Replay queued changes now",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := engine.Sync(cmd.Context())
		switch {
		case errors.Is(err, syncengine.ErrOffline):
			color.Yellow("⚠ Offline: %d changes stay queued", engine.Status().PendingChanges)
			return nil
		case errors.Is(err, syncengine.ErrSyncInProgress):
			engine.Wait()
			res, err = engine.Sync(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		printSyncResult(res)
		return nil
	},
}

func printSyncResult(res syncengine.Result) {
	if res.Attempted == 0 {
		color.Green("✓ Nothing to sync")
		return
	}
	color.Green("✓ Synced %d of %d changes", res.Succeeded, res.Attempted)
	if res.Failed > 0 {
		color.Yellow("  %d failed and will be retried", res.Failed)
	}
	if res.Exhausted > 0 {
		color.Red("  %d dropped after %d attempts (see 'routines sync status')", res.Exhausted, syncengine.DefaultMaxAttempts)
	}
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	Long: `Show current sync status including:
- Remote and connection state
- Pending change count and last successful sync
- Mutations dropped after repeated failures`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st := engine.Status()
		faint := color.New(color.Faint)

		fmt.Printf("%s %s\n", faint.Sprint("Remote: "), appCfg.GetRemote())
		fmt.Printf("%s %s\n", faint.Sprint("Device: "), appCfg.DeviceID)
		if appCfg.GetRemote() == config.RemoteCharm && !flagOffline {
			if id, err := charm.ID(); err == nil {
				fmt.Printf("%s %s @ %s\n", faint.Sprint("Charm:  "), id, charm.Host())
			}
		}

		if engine.IsOnline() {
			color.Green("✓ Online")
		} else {
			color.Yellow("⚠ Offline")
		}

		fmt.Printf("  Pending changes: %d\n", st.PendingChanges)
		if st.LastSyncTime.IsZero() {
			fmt.Println("  Last sync: never")
		} else {
			fmt.Printf("  Last sync: %s\n", st.LastSyncTime.Local().Format("2006-01-02 15:04:05"))
		}

		unsynced, err := engine.Unsynced(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list unsynced routines: %w", err)
		}
		fmt.Printf("  Unsynced routines: %d\n", len(unsynced))

		dropped := engine.Exhausted()
		if len(dropped) > 0 {
			color.Red("\n✗ %d changes dropped after repeated failures:", len(dropped))
			for _, d := range dropped {
				fmt.Printf("  %s %s %s: %s\n",
					faint.Sprint(d.DroppedAt.Local().Format("15:04:05")),
					d.Entry.Operation,
					shortID(d.Entry.EntityID),
					d.LastError)
			}
		}
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch remote routines into the local store",
	Long: `Fetch every routine from the remote and store it locally.

Routines with queued or unsynced local changes are skipped so local edits
are never overwritten. Synced routines that no longer exist remotely are
removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := engine.Pull(cmd.Context())
		if errors.Is(err, syncengine.ErrOffline) {
			color.Yellow("⚠ Offline: cannot pull")
			return nil
		}
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}

		color.Green("✓ Pulled %d routines", res.Fetched)
		fmt.Printf("  Applied: %d  Skipped: %d  Removed: %d\n", res.Applied, res.Skipped, res.Removed)
		return nil
	},
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync whenever the connection returns",
	Long: `Stay running, probing the remote on the configured interval.

Each offline-to-online transition replays the queue. Failed changes are
retried every interval while online. Stop with Ctrl-C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if monitor == nil {
			return fmt.Errorf("no remote configured: set remote in %s", config.GetConfigPath())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		interval := appCfg.GetProbeInterval()
		color.Green("Watching %s every %s (Ctrl-C to stop)", appCfg.GetRemote(), interval)

		go func() { _ = monitor.Run(ctx) }()
		return retryLoop(ctx, interval)
	},
}

// retryLoop triggers a drain on every tick so failed entries are retried while online.
func retryLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := engine.Status().PendingChanges
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			engine.Trigger()
			if st := engine.Status(); st.PendingChanges != last {
				logger.Info("queue changed", "pending", st.PendingChanges, "online", engine.IsOnline())
				last = st.PendingChanges
			}
		}
	}
}

var syncLinkCmd = &cobra.Command{
	Use:         "link",
	Short:       "Link this device to Charm",
	Annotations: standalone,
	Long: `Link this device to your Charm account and make Charm the sync remote.

If you don't have a Charm account, one will be created using your SSH key.

Example:
  routines sync link`,
	RunE: func(cmd *cobra.Command, args []string) error {
		charmCmd := exec.Command("charm", "link")
		charmCmd.Stdin = os.Stdin
		charmCmd.Stdout = os.Stdout
		charmCmd.Stderr = os.Stderr

		if err := charmCmd.Run(); err != nil {
			return fmt.Errorf("failed to link: %w\n\nMake sure 'charm' CLI is installed: go install github.com/charmbracelet/charm@latest", err)
		}

		cfg, err := config.LoadFile()
		if err != nil {
			return err
		}
		cfg.Remote = config.RemoteCharm
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		color.Green("\n✓ Device linked to Charm")
		fmt.Println("Routines will now sync across devices. Run 'routines sync now' to push queued changes.")
		return nil
	},
}

var syncUnlinkCmd = &cobra.Command{
	Use:         "unlink",
	Short:       "Disconnect from Charm",
	Annotations: standalone,
	Long: `Disconnect this device from Charm and switch the remote to none.

This does not delete your local routines. Changes keep queueing until you
link again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		charmCmd := exec.Command("charm", "unlink")
		charmCmd.Stdin = os.Stdin
		charmCmd.Stdout = os.Stdout
		charmCmd.Stderr = os.Stderr

		if err := charmCmd.Run(); err != nil {
			return fmt.Errorf("failed to unlink: %w", err)
		}

		cfg, err := config.LoadFile()
		if err != nil {
			return err
		}
		if cfg.GetRemote() == config.RemoteCharm {
			cfg.Remote = config.RemoteNone
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
		}

		color.Green("✓ Device unlinked from Charm")
		fmt.Println("Your local routines are preserved.")
		return nil
	},
}

var syncWipeCmd = &cobra.Command{
	Use:         "wipe",
	Short:       "Delete all Charm cloud and local data",
	Annotations: standalone,
	Long: `Delete all Charm cloud backups and the local Charm KV copy.

This is a DESTRUCTIVE operation. The local routines store and its queue are
not touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("This will PERMANENTLY DELETE all Charm cloud backups of your routines.")
		fmt.Print("Type 'wipe' to confirm: ")
		var confirm string
		_, _ = fmt.Scanln(&confirm)
		if confirm != "wipe" {
			fmt.Println("Canceled.")
			return nil
		}

		result, err := kv.Wipe(charm.DBName)
		if err != nil {
			return fmt.Errorf("wipe failed: %w", err)
		}

		color.Green("✓ Data wiped successfully")
		fmt.Printf("  Cloud backups deleted: %d\n", result.CloudBackupsDeleted)
		fmt.Printf("  Local files deleted: %d\n", result.LocalFilesDeleted)
		return nil
	},
}

var syncRepairCmd = &cobra.Command{
	Use:         "repair",
	Short:       "Repair Charm KV database corruption",
	Annotations: standalone,
	Long: `Repair the Charm KV database by checkpointing WAL, removing SHM files, checking integrity, and vacuuming.

Use this when you encounter database lock errors or corruption.
Run with --force to attempt recovery even if integrity checks fail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		fmt.Println("Repairing routines Charm database...")
		result, err := kv.Repair(charm.DBName, force)

		if result.WalCheckpointed {
			color.Green("  ✓ WAL checkpointed")
		}
		if result.ShmRemoved {
			color.Green("  ✓ SHM file removed")
		}
		if result.IntegrityOK {
			color.Green("  ✓ Integrity check passed")
		} else {
			color.Red("  ✗ Integrity check failed")
		}
		if result.Vacuumed {
			color.Green("  ✓ Database vacuumed")
		}

		if err != nil {
			if !force {
				color.Yellow("\nRun with --force to attempt recovery.")
			}
			return fmt.Errorf("repair failed: %w", err)
		}

		color.Green("\n✓ Repair complete")
		return nil
	},
}

var syncResetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset local Charm data and restore from cloud",
	Annotations: standalone,
	Long: `Delete the local Charm KV copy and restore it from Charm Cloud.

Run 'routines sync pull' afterwards to refresh the local routines store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("This will DELETE the local Charm copy and restore from cloud.")
		fmt.Print("Continue? [y/N]: ")
		var confirm string
		_, _ = fmt.Scanln(&confirm)
		if confirm != "y" && confirm != "Y" {
			fmt.Println("Canceled.")
			return nil
		}

		if err := kv.Reset(charm.DBName); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}

		color.Green("✓ Local Charm data reset and restored from cloud")
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncNowCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncCmd.AddCommand(syncWatchCmd)
	syncCmd.AddCommand(syncLinkCmd)
	syncCmd.AddCommand(syncUnlinkCmd)
	syncCmd.AddCommand(syncRepairCmd)
	syncCmd.AddCommand(syncResetCmd)
	syncCmd.AddCommand(syncWipeCmd)

	syncRepairCmd.Flags().Bool("force", false, "Attempt recovery even if integrity checks fail")

	rootCmd.AddCommand(syncCmd)
}
