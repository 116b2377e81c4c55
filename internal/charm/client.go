// ABOUTME: Charm KV client wrapper used as a remote template source.
// ABOUTME: Provides explicit initialization, read-only detection, and cloud sync after writes.
package charm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/charm/client"
	"github.com/charmbracelet/charm/kv"
)

const (
	// DBName is the Charm KV database holding routine templates.
	DBName = "routines"
	// DefaultHost is the Charm server used when CHARM_HOST is not set.
	DefaultHost = "charm.2389.dev"

	TemplatePrefix = "template:"
	ExercisePrefix = "exercise:"
)

// ErrReadOnly is returned for writes while another process holds the database lock.
var ErrReadOnly = errors.New("cannot write: database is locked by another process (MCP server?)")

// store is the subset of *kv.KV the source needs.
type store interface {
	Set(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Keys() ([][]byte, error)
	Sync() error
	IsReadOnly() bool
	Close() error
}

// Source is a remote.Source backed by Charm Cloud KV.
type Source struct {
	kv       store
	autoSync bool
	mu       sync.RWMutex
}

// Open opens the routines KV database and pulls remote data.
func Open() (*Source, error) {
	if os.Getenv("CHARM_HOST") == "" {
		if err := os.Setenv("CHARM_HOST", DefaultHost); err != nil {
			return nil, err
		}
	}

	db, err := kv.OpenWithDefaultsFallback(DBName)
	if err != nil {
		return nil, fmt.Errorf("open charm kv: %w", err)
	}

	s := newSource(db)
	// Pull remote data on startup (skip in read-only mode)
	if !db.IsReadOnly() {
		_ = db.Sync()
	}
	return s, nil
}

func newSource(db store) *Source {
	return &Source{kv: db, autoSync: true}
}

// Close closes the KV database connection.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kv != nil {
		return s.kv.Close()
	}
	return nil
}

// IsReadOnly returns true if the database is open in read-only mode.
func (s *Source) IsReadOnly() bool {
	return s.kv.IsReadOnly()
}

// Sync synchronizes local state with Charm Cloud.
func (s *Source) Sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kv.IsReadOnly() {
		return nil
	}
	return s.kv.Sync()
}

// SetAutoSync enables or disables automatic sync after writes.
func (s *Source) SetAutoSync(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSync = enabled
}

// Host returns the Charm server in use.
func Host() string {
	if h := os.Getenv("CHARM_HOST"); h != "" {
		return h
	}
	return DefaultHost
}

// ID returns the Charm user ID for the current account.
func ID() (string, error) {
	cc, err := client.NewClientWithDefaults()
	if err != nil {
		return "", fmt.Errorf("create charm client: %w", err)
	}
	return cc.ID()
}

// set stores a value and pushes it to the cloud when auto-sync is on.
func (s *Source) set(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv.IsReadOnly() {
		return ErrReadOnly
	}
	if err := s.kv.Set([]byte(key), data); err != nil {
		return err
	}
	return s.syncIfEnabled()
}

// delete removes a key and pushes the deletion when auto-sync is on.
func (s *Source) delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kv.IsReadOnly() {
		return ErrReadOnly
	}
	if err := s.kv.Delete([]byte(key)); err != nil {
		return err
	}
	return s.syncIfEnabled()
}

// syncIfEnabled pushes pending writes. Caller holds mu.
func (s *Source) syncIfEnabled() error {
	if s.autoSync && !s.kv.IsReadOnly() {
		return s.kv.Sync()
	}
	return nil
}

// has reports whether key exists.
func (s *Source) has(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys, err := s.kv.Keys()
	if err != nil {
		return false, err
	}
	want := []byte(key)
	for _, k := range keys {
		if bytes.Equal(k, want) {
			return true, nil
		}
	}
	return false, nil
}

// get returns the value for key, or ok=false when it is absent.
func (s *Source) get(key string) ([]byte, bool, error) {
	found, err := s.has(key)
	if err != nil || !found {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, err := s.kv.Get([]byte(key))
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// listByPrefix returns all values with keys matching the given prefix.
func (s *Source) listByPrefix(prefix string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results [][]byte
	prefixBytes := []byte(prefix)

	keys, err := s.kv.Keys()
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if bytes.HasPrefix(key, prefixBytes) {
			val, err := s.kv.Get(key)
			if err != nil {
				return nil, err
			}
			results = append(results, val)
		}
	}
	return results, nil
}

// unmarshalJSON is a helper to unmarshal JSON data.
func unmarshalJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// extractID extracts the ID portion from a prefixed key.
func extractID(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}
