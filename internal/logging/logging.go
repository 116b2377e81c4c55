// ABOUTME: Structured logger construction for the routines binary.
// ABOUTME: Writes to stderr, or to a size-rotated file when a log path is configured.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error; empty means info
	File   string // empty means stderr
	Prefix string
}

// New builds a logger. Stdout is never used; it belongs to the CLI and the MCP transport.
func New(opts Options) *log.Logger {
	var w io.Writer = os.Stderr
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0750); err == nil {
			w = &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}
		}
	}

	return log.NewWithOptions(w, log.Options{
		Prefix:          opts.Prefix,
		Level:           ParseLevel(opts.Level),
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
}

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(s string) log.Level {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// Discard returns a logger that drops everything. Used as the default in libraries and tests.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
