// ABOUTME: CLI commands for the exercise media cache.
// ABOUTME: Supports caching a URL, reading a cached blob, eviction, and routine pre-download.
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

var (
	mediaType       string
	mediaOutput     string
	mediaMaxAgeDays int
	mediaMaxSizeMB  int
)

var mediaCmd = &cobra.Command{
	Use:     "media",
	Aliases: []string{"m"},
	Short:   "Manage cached exercise media",
	Long: `Cache exercise thumbnails and videos for offline use.

COMMANDS:

  cache        Download and cache a URL
  get          Write a cached blob to a file
  cleanup      Evict old entries, or oldest first when over the size budget
  predownload  Cache every image and video a routine references`,
}

var mediaCacheCmd = &cobra.Command{
	Use:   "cache <url>",
	Short: "Download and cache a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := mediaCache.CacheMedia(cmd.Context(), args[0], models.MediaType(mediaType))
		if err != nil {
			return fmt.Errorf("failed to cache media: %w", err)
		}
		color.Green("✓ Cached %s", e.Type)
		fmt.Printf("  %s %d bytes\n", color.New(color.Faint).Sprint(e.URL), e.Size)
		return nil
	},
}

var mediaGetCmd = &cobra.Command{
	Use:   "get <url>",
	Short: "Write a cached blob to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := mediaCache.GetCachedMedia(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("not cached: %s", args[0])
		}
		if err != nil {
			return err
		}

		if mediaOutput == "" {
			fmt.Printf("%s %s %d bytes, cached %s\n", e.Type, e.URL, e.Size, e.Timestamp.Local().Format("2006-01-02 15:04"))
			return nil
		}
		if err := os.WriteFile(mediaOutput, e.Blob, 0600); err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
		color.Green("✓ Wrote %d bytes to %s", e.Size, mediaOutput)
		return nil
	},
}

var mediaCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Evict cached media",
	Long: `Evict cached media.

When the cache is at or over the size budget, entries are deleted oldest
first until it fits and age is ignored. Otherwise only entries older than
the age limit are deleted. Limits default to the config values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		age := mediaMaxAgeDays
		if age <= 0 {
			age = appCfg.GetMediaMaxAgeDays()
		}
		size := mediaMaxSizeMB
		if size <= 0 {
			size = appCfg.GetMediaMaxSizeMB()
		}

		n, err := mediaCache.Cleanup(cmd.Context(), age, size)
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		color.Green("✓ Evicted %d entries", n)
		return nil
	},
}

var mediaPredownloadCmd = &cobra.Command{
	Use:   "predownload <routine-id>",
	Short: "Cache all media for a routine",
	Long: `Cache every thumbnail and video referenced by a routine's exercises.

Exercise media URLs come from the remote catalog, so this needs a reachable
remote. On success the routine is marked as available offline.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveRoutine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := mediaCache.PreDownloadRoutineMedia(cmd.Context(), r.ID); err != nil {
			return fmt.Errorf("pre-download failed: %w", err)
		}
		color.Green("✓ %s is available offline", r.Name)
		return nil
	},
}

func init() {
	mediaCacheCmd.Flags().StringVarP(&mediaType, "type", "t", string(models.MediaImage), "media type: image or video")
	mediaGetCmd.Flags().StringVarP(&mediaOutput, "output", "o", "", "write the blob to this file")
	mediaCleanupCmd.Flags().IntVar(&mediaMaxAgeDays, "max-age-days", 0, "delete entries older than this many days")
	mediaCleanupCmd.Flags().IntVar(&mediaMaxSizeMB, "max-size-mb", 0, "cache size budget in MiB")

	mediaCmd.AddCommand(mediaCacheCmd)
	mediaCmd.AddCommand(mediaGetCmd)
	mediaCmd.AddCommand(mediaCleanupCmd)
	mediaCmd.AddCommand(mediaPredownloadCmd)
	rootCmd.AddCommand(mediaCmd)
}
