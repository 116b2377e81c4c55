// ABOUTME: Root Cobra command for routines CLI.
// ABOUTME: Wires config, logging, storage, remote, connectivity, sync engine, and media cache.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/routines/internal/config"
	"github.com/harperreed/routines/internal/connectivity"
	"github.com/harperreed/routines/internal/logging"
	"github.com/harperreed/routines/internal/media"
	"github.com/harperreed/routines/internal/remote"
	"github.com/harperreed/routines/internal/storage"
	syncengine "github.com/harperreed/routines/internal/sync"
	"github.com/spf13/cobra"
)

var (
	flagDataDir  string
	flagBackend  string
	flagRemote   string
	flagOffline  bool
	flagLogLevel string

	appCfg     *config.Config
	logger     *log.Logger
	repo       storage.Repository
	remoteConn *config.RemoteHandle
	observer   connectivity.Observer
	monitor    *connectivity.Monitor
	engine     *syncengine.Engine
	mediaCache *media.Cache
)

// probeTimeout bounds one connectivity probe.
const probeTimeout = 5 * time.Second

// skipEngine marks commands that manage files or the charm account directly
// and never open the store or the engine.
const skipEngine = "skip-engine"

func needsEngine(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipEngine] == "true" {
			return false
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// standalone is the annotation set for commands that skip engine setup.
var standalone = map[string]string{skipEngine: "true"}

var rootCmd = &cobra.Command{
	Use:   "routines",
	Short: "Offline-first workout routine manager",
	Long: `Routines is an offline-first CLI for building workout routines.

Every change is written locally first and queued. When the remote is
reachable, the queue is replayed in order, so nothing is lost while offline.

QUICK START:

  $ routines add "Leg Day" -e squat:5x5@100 -e lunge:3x12
  $ routines list                        # See your routines
  $ routines show 3f2a                   # Show one routine by id prefix
  $ routines update 3f2a --name "Legs"   # Rename it
  $ routines sync status                 # Pending changes and last sync

REMOTES:

  none       Local only; changes stay queued (default)
  charm      Charm KV, E2E encrypted with your SSH key
  postgres   A Postgres database (set postgres_dsn or ROUTINES_POSTGRES_DSN)

MEDIA:

  $ routines media predownload 3f2a      # Cache a routine's videos for offline use
  $ routines media cleanup               # Evict old or oversized media

MCP INTEGRATION:

  Run 'routines mcp' to start the Model Context Protocol server:

  {
    "mcpServers": {
      "routines": { "command": "routines", "args": ["mcp"] }
    }
  }

DATA STORAGE:

  Config lives at ~/.config/routines/config.json.
  Data lives at ~/.local/share/routines (SQLite by default, or Badger).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !needsEngine(cmd) {
			return nil
		}
		return openApp(cmd.Context())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

// Execute runs the root command. Cobra skips post-run hooks when a command
// fails, so resources are released here as well.
func Execute() error {
	err := rootCmd.Execute()
	if cerr := closeApp(); err == nil {
		err = cerr
	}
	return err
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagBackend != "" {
		cfg.Backend = flagBackend
	}
	if flagRemote != "" {
		cfg.Remote = flagRemote
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

// openApp builds the engine and its collaborators for one command run.
func openApp(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	appCfg = cfg
	level := cfg.LogLevel
	if level == "" {
		level = "warn"
	}
	logger = logging.New(logging.Options{
		Level:  level,
		File:   cfg.GetLogFile(),
		Prefix: "routines",
	})

	if cfg.EnsureDeviceID() {
		if err := persistDeviceID(cfg.DeviceID); err != nil {
			logger.Warn("could not persist device id", "err", err)
		}
	}

	repo, err = cfg.OpenStorage()
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	var src remote.Source
	if !flagOffline {
		remoteConn, err = cfg.OpenRemote()
		if err != nil {
			logger.Warn("remote unavailable, working offline", "remote", cfg.GetRemote(), "err", err)
			remoteConn = nil
		}
	}

	if remoteConn == nil {
		// Nothing to sync to: keep the queue and never drain.
		src = remote.NewMemory()
		observer = connectivity.NewSwitch(false)
	} else {
		src = remoteConn.Source
		monitor = connectivity.NewMonitor(probeFor(cfg, src), cfg.GetProbeInterval(), logger)
		monitor.Check(ctx)
		observer = monitor
	}

	engine = syncengine.New(repo, src, observer, syncengine.Config{
		DeviceID: cfg.DeviceID,
		Logger:   logger,
	})
	if err := engine.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to start sync engine: %w", err)
	}

	mediaCache = media.NewCache(repo, nil,
		media.WithLogger(logger),
		media.WithCatalog(src),
	)
	return nil
}

// persistDeviceID writes the id to the config file without flag or env overrides.
func persistDeviceID(id string) error {
	onDisk, err := config.LoadFile()
	if err != nil {
		return err
	}
	onDisk.DeviceID = id
	return onDisk.Save()
}

func probeFor(cfg *config.Config, src remote.Source) connectivity.Probe {
	if cfg.ProbeURL != "" {
		return connectivity.HTTPProbe(&http.Client{Timeout: probeTimeout}, cfg.ProbeURL)
	}
	if p, ok := src.(remote.Pinger); ok {
		return connectivity.PingProbe(p)
	}
	return func(context.Context) error { return nil }
}

// closeApp waits for any background sync and releases resources in reverse order.
func closeApp() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if engine != nil {
		keep(engine.Close())
		engine = nil
	}
	if remoteConn != nil {
		keep(remoteConn.Close())
		remoteConn = nil
	}
	if repo != nil {
		keep(repo.Close())
		repo = nil
	}
	monitor = nil
	observer = nil
	mediaCache = nil
	return firstErr
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "data directory (default ~/.local/share/routines)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "storage backend: sqlite or badger")
	rootCmd.PersistentFlags().StringVar(&flagRemote, "remote", "", "sync remote: none, charm, or postgres")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "queue changes without contacting the remote")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
}
