// ABOUTME: Sync engine settings and device identity.
// ABOUTME: Device ids are ULIDs stamped onto remote templates as the last writer.
package sync

import (
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/routines/internal/logging"
	"github.com/oklog/ulid/v2"
)

// DefaultMaxAttempts is how many failed replays a queued mutation survives.
const DefaultMaxAttempts = 5

// Config configures an Engine.
type Config struct {
	DeviceID    string
	MaxAttempts int
	Logger      *log.Logger
	// Now overrides the clock; results are truncated to milliseconds.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.DeviceID == "" {
		c.DeviceID = GenerateDeviceID()
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Logger == nil {
		c.Logger = logging.Discard()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// GenerateDeviceID creates a new unique device ID.
func GenerateDeviceID() string {
	return ulid.Make().String()
}
