// ABOUTME: CLI command for starting MCP server.
// ABOUTME: Runs stdio-based MCP server with the connectivity monitor in the background.
package main

import (
	"os/signal"
	"syscall"

	"github.com/harperreed/routines/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.

The server communicates via stdin/stdout. Logs go to stderr or the
configured log file.

CLAUDE DESKTOP CONFIGURATION:

  {
    "mcpServers": {
      "routines": {
        "command": "routines",
        "args": ["mcp"]
      }
    }
  }

AVAILABLE TOOLS:

  list_routines       List routines by name, sync state, or modification time
  get_routine         Get a routine with its exercises
  create_routine      Create a routine
  update_routine      Update name, description, or exercises
  delete_routine      Delete a routine
  sync_now            Replay queued changes
  sync_status         Pending changes and dropped mutations
  pull_routines       Fetch remote routines
  cache_media         Cache an exercise image or video
  cleanup_media       Evict cached media
  predownload_media   Cache all media for a routine

AVAILABLE RESOURCES:

  routines://all           Every routine
  routines://unsynced      Routines with unconfirmed changes
  routines://sync-status   Sync counters`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(engine, mediaCache, mcp.Options{
			MediaMaxAgeDays: appCfg.GetMediaMaxAgeDays(),
			MediaMaxSizeMB:  appCfg.GetMediaMaxSizeMB(),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if monitor != nil {
			go func() { _ = monitor.Run(ctx) }()
		}

		logger.Info("mcp server starting", "remote", appCfg.GetRemote())
		return server.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
