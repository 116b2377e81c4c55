// ABOUTME: Shared test helpers for sync package tests.
// ABOUTME: Builds engines over a temp SQLite store, an in-memory remote, and a manual switch.

package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/harperreed/routines/internal/connectivity"
	"github.com/harperreed/routines/internal/remote"
	"github.com/harperreed/routines/internal/storage"
	"github.com/stretchr/testify/require"
)

type harness struct {
	engine *Engine
	store  *storage.DB
	remote *remote.Memory
	net    *connectivity.Switch
}

// setupTestEngine creates an initialized engine. Online state is the caller's choice.
func setupTestEngine(t *testing.T, online bool) *harness {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "routines.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		store:  store,
		remote: remote.NewMemory(),
		net:    connectivity.NewSwitch(online),
	}
	h.engine = New(store, h.remote, h.net, Config{DeviceID: "test-device"})
	require.NoError(t, h.engine.Initialize(context.Background()))
	t.Cleanup(func() { _ = h.engine.Close() })
	h.engine.Wait()
	return h
}

// reconnect flips the switch offline then online and waits for the triggered drain.
func (h *harness) reconnect() {
	h.net.Set(false)
	h.net.Set(true)
	h.engine.Wait()
}

func (h *harness) queueLen(t *testing.T) int {
	t.Helper()
	n, err := h.store.CountQueue(context.Background())
	require.NoError(t, err)
	return n
}

// holdDrains makes triggers no-ops so tests can queue work while online.
func (h *harness) holdDrains() {
	h.engine.Wait()
	h.engine.syncing.Store(true)
}

// releaseDrains undoes holdDrains without starting a drain.
func (h *harness) releaseDrains() {
	h.engine.syncing.Store(false)
}
