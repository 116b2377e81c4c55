// ABOUTME: Connectivity observers: a probing Monitor and a manually driven Switch.
// ABOUTME: Reconnect callbacks fire exactly once per offline-to-online transition.
package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/routines/internal/logging"
	"github.com/harperreed/routines/internal/remote"
)

// DefaultInterval is how often a Monitor probes when no interval is configured.
const DefaultInterval = 30 * time.Second

// Observer reports network reachability and notifies on reconnect.
type Observer interface {
	IsOnline() bool
	OnReconnect(fn func())
}

// Probe checks reachability once. A nil error means online.
type Probe func(ctx context.Context) error

// HTTPProbe issues a HEAD request to url. Any response below 500 counts as online.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("probe %s: status %d", url, resp.StatusCode)
		}
		return nil
	}
}

// PingProbe checks reachability through a remote source.
func PingProbe(p remote.Pinger) Probe {
	return p.Ping
}

// transitions holds online state and reconnect callbacks shared by Monitor and Switch.
type transitions struct {
	mu        sync.Mutex
	online    bool
	callbacks []func()
}

func (t *transitions) IsOnline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

func (t *transitions) OnReconnect(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

// set records the new state and returns true on an offline-to-online edge.
// Callbacks run outside the lock so they may query the observer.
func (t *transitions) set(online bool) bool {
	t.mu.Lock()
	reconnected := online && !t.online
	t.online = online
	var fns []func()
	if reconnected {
		fns = append(fns, t.callbacks...)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return reconnected
}

// Monitor probes on an interval. It starts offline, so the first successful
// probe counts as a reconnect.
type Monitor struct {
	transitions
	probe    Probe
	interval time.Duration
	logger   *log.Logger
}

// NewMonitor creates a monitor. A non-positive interval uses DefaultInterval.
func NewMonitor(probe Probe, interval time.Duration, logger *log.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Monitor{probe: probe, interval: interval, logger: logger}
}

// Check runs the probe once and updates state. It returns the new online state.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.probe(ctx)
	online := err == nil
	wasOnline := m.IsOnline()
	if wasOnline && !online {
		m.logger.Warn("connection lost", "err", err)
	}
	if m.set(online) {
		m.logger.Info("connection restored")
	}
	return online
}

// Run probes immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Switch is an observer whose state is set by hand.
type Switch struct {
	transitions
}

// NewSwitch creates a switch in the given state.
func NewSwitch(online bool) *Switch {
	s := &Switch{}
	s.online = online
	return s
}

// Set changes the state, firing reconnect callbacks on an offline-to-online edge.
func (s *Switch) Set(online bool) {
	s.set(online)
}

// Always is an observer that is permanently online.
type Always struct{}

func (Always) IsOnline() bool     { return true }
func (Always) OnReconnect(func()) {}

var (
	_ Observer = (*Monitor)(nil)
	_ Observer = (*Switch)(nil)
	_ Observer = Always{}
)
