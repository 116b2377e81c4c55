// ABOUTME: CLI commands for viewing and editing the config file.
// ABOUTME: Keys map to the JSON field names in config.json.
package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/routines/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "View or edit configuration",
	Annotations: standalone,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Print the effective configuration",
	Annotations: standalone,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(color.New(color.Faint).Sprint(config.GetConfigPath()))
		fmt.Println(string(data))
		return nil
	},
}

// configSetters assign one config key from its string form.
var configSetters = map[string]func(*config.Config, string) error{
	"backend": func(c *config.Config, v string) error {
		if v != config.BackendSQLite && v != config.BackendBadger {
			return fmt.Errorf("backend must be sqlite or badger")
		}
		c.Backend = v
		return nil
	},
	"remote": func(c *config.Config, v string) error {
		switch v {
		case config.RemoteNone, config.RemoteCharm, config.RemotePostgres:
			c.Remote = v
			return nil
		}
		return fmt.Errorf("remote must be none, charm, or postgres")
	},
	"data_dir":     func(c *config.Config, v string) error { c.DataDir = v; return nil },
	"postgres_dsn": func(c *config.Config, v string) error { c.PostgresDSN = v; return nil },
	"probe_url":    func(c *config.Config, v string) error { c.ProbeURL = v; return nil },
	"log_level":    func(c *config.Config, v string) error { c.LogLevel = v; return nil },
	"log_file":     func(c *config.Config, v string) error { c.LogFile = v; return nil },
	"probe_interval": func(c *config.Config, v string) error {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			return fmt.Errorf("invalid duration %q", v)
		}
		c.ProbeInterval = v
		return nil
	},
	"media_max_age_days": func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("media_max_age_days must be a non-negative integer")
		}
		c.MediaMaxAgeDays = n
		return nil
	},
	"media_max_size_mb": func(c *config.Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("media_max_size_mb must be a non-negative integer")
		}
		c.MediaMaxSizeMB = n
		return nil
	},
}

func configKeys() []string {
	keys := make([]string, 0, len(configSetters))
	for k := range configSetters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var configSetCmd = &cobra.Command{
	Use:         "set <key> <value>",
	Short:       "Set one configuration key",
	Annotations: standalone,
	Args:        cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, ok := configSetters[args[0]]
		if !ok {
			return fmt.Errorf("unknown key %q (valid: %s)", args[0], strings.Join(configKeys(), ", "))
		}

		cfg, err := config.LoadFile()
		if err != nil {
			return err
		}
		if err := set(cfg, args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		color.Green("✓ %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
