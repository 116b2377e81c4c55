// ABOUTME: Badger-backed Repository implementation.
// ABOUTME: Uses type-prefixed keys and client-side filtering in place of secondary indexes.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/harperreed/routines/internal/models"
)

const (
	RoutinePrefix = "routine:"
	MediaPrefix   = "media:"
	BlobPrefix    = "blob:"
	QueuePrefix   = "queue:"
)

// BadgerStore keeps routines, media and the sync queue in a Badger KV database.
type BadgerStore struct {
	db  *badger.DB
	dir string
}

// OpenBadger opens or creates a Badger database in dir.
// An empty dir opens an in-memory database.
func OpenBadger(dir string) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, dir: dir}, nil
}

// Close closes the Badger database.
func (s *BadgerStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// PutRoutine inserts or replaces a routine record.
func (s *BadgerStore) PutRoutine(_ context.Context, r *models.Routine) error {
	if err := s.setJSON(RoutinePrefix+r.ID, r); err != nil {
		return fmt.Errorf("put routine: %w", err)
	}
	return nil
}

// GetRoutine retrieves a routine by id.
func (s *BadgerStore) GetRoutine(_ context.Context, id string) (*models.Routine, error) {
	var r models.Routine
	if err := s.getJSON(RoutinePrefix+id, &r); err != nil {
		return nil, fmt.Errorf("routine %s: %w", id, err)
	}
	return &r, nil
}

// ListRoutines returns all routines, most recently modified first.
func (s *BadgerStore) ListRoutines(_ context.Context) ([]*models.Routine, error) {
	return s.filterRoutines(func(*models.Routine) bool { return true })
}

// ListRoutinesByName returns routines whose name matches case-insensitively.
func (s *BadgerStore) ListRoutinesByName(_ context.Context, name string) ([]*models.Routine, error) {
	return s.filterRoutines(func(r *models.Routine) bool { return strings.EqualFold(r.Name, name) })
}

// ListRoutinesModifiedSince returns routines modified at or after since.
func (s *BadgerStore) ListRoutinesModifiedSince(_ context.Context, since time.Time) ([]*models.Routine, error) {
	return s.filterRoutines(func(r *models.Routine) bool { return !r.LastModified.Before(since) })
}

// ListRoutinesBySynced returns routines with the given sync status.
func (s *BadgerStore) ListRoutinesBySynced(_ context.Context, synced bool) ([]*models.Routine, error) {
	return s.filterRoutines(func(r *models.Routine) bool { return r.Synced == synced })
}

// DeleteRoutine removes a routine by id.
func (s *BadgerStore) DeleteRoutine(_ context.Context, id string) error {
	if err := s.deleteExisting(RoutinePrefix + id); err != nil {
		return fmt.Errorf("delete routine %s: %w", id, err)
	}
	return nil
}

// MarkRoutineSynced flags a routine as matching its remote copy.
func (s *BadgerStore) MarkRoutineSynced(ctx context.Context, id string) error {
	return s.modifyRoutine(id, func(r *models.Routine) { r.Synced = true })
}

// SetRoutineLocalOnly sets the local_only flag without touching sync metadata.
func (s *BadgerStore) SetRoutineLocalOnly(_ context.Context, id string, localOnly bool) error {
	return s.modifyRoutine(id, func(r *models.Routine) { r.LocalOnly = localOnly })
}

func (s *BadgerStore) modifyRoutine(id string, fn func(*models.Routine)) error {
	key := []byte(RoutinePrefix + id)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("routine %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		var r models.Routine
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &r) }); err != nil {
			return err
		}
		fn(&r)
		data, err := json.Marshal(&r)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
}

func (s *BadgerStore) filterRoutines(keep func(*models.Routine) bool) ([]*models.Routine, error) {
	var routines []*models.Routine
	err := s.scanPrefix(RoutinePrefix, func(_ []byte, v []byte) error {
		var r models.Routine
		if err := json.Unmarshal(v, &r); err != nil {
			return nil // Skip invalid entries
		}
		if r.Exercises == nil {
			r.Exercises = []models.RoutineExercise{}
		}
		if keep(&r) {
			routines = append(routines, &r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}

	sort.SliceStable(routines, func(i, j int) bool {
		if !routines[i].LastModified.Equal(routines[j].LastModified) {
			return routines[i].LastModified.After(routines[j].LastModified)
		}
		return routines[i].ID < routines[j].ID
	})
	return routines, nil
}

// GetMedia retrieves a cached entry, including its blob.
func (s *BadgerStore) GetMedia(_ context.Context, url string) (*models.MediaEntry, error) {
	var e models.MediaEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(MediaPrefix + url))
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
			return err
		}
		blob, err := txn.Get([]byte(BlobPrefix + url))
		if err != nil {
			return err
		}
		e.Blob, err = blob.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("media %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return &e, nil
}

// PutMedia stores a cached entry, replacing any entry for the same URL.
func (s *BadgerStore) PutMedia(_ context.Context, e *models.MediaEntry) error {
	meta := *e
	meta.Blob = nil
	data, err := json.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshal media: %w", err)
	}
	blob := e.Blob
	if blob == nil {
		blob = []byte{}
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(MediaPrefix+e.ID), data); err != nil {
			return err
		}
		return txn.Set([]byte(BlobPrefix+e.ID), blob)
	})
	if err != nil {
		return fmt.Errorf("put media: %w", err)
	}
	return nil
}

// ListMedia returns metadata for every cached entry, oldest first.
func (s *BadgerStore) ListMedia(_ context.Context) ([]*models.MediaEntry, error) {
	var entries []*models.MediaEntry
	err := s.scanPrefix(MediaPrefix, func(_ []byte, v []byte) error {
		var e models.MediaEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil
		}
		entries = append(entries, &e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// DeleteMedia removes a cached entry and its blob.
func (s *BadgerStore) DeleteMedia(_ context.Context, url string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(MediaPrefix + url)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(MediaPrefix + url)); err != nil {
			return err
		}
		return txn.Delete([]byte(BlobPrefix + url))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete media %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	return nil
}

// PutQueueEntry inserts or replaces a queue entry.
func (s *BadgerStore) PutQueueEntry(_ context.Context, e *models.QueueEntry) error {
	if err := s.setJSON(QueuePrefix+e.ID, e); err != nil {
		return fmt.Errorf("put queue entry: %w", err)
	}
	return nil
}

// GetQueueEntry retrieves a queue entry by id.
func (s *BadgerStore) GetQueueEntry(_ context.Context, id string) (*models.QueueEntry, error) {
	var e models.QueueEntry
	if err := s.getJSON(QueuePrefix+id, &e); err != nil {
		return nil, fmt.Errorf("queue entry %s: %w", id, err)
	}
	return &e, nil
}

// ListQueue returns all entries for an entity type in key (enqueue) order.
func (s *BadgerStore) ListQueue(_ context.Context, entity models.Entity) ([]*models.QueueEntry, error) {
	var entries []*models.QueueEntry
	err := s.scanPrefix(QueuePrefix, func(_ []byte, v []byte) error {
		var e models.QueueEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("unmarshal queue entry: %w", err)
		}
		if e.Entity == entity {
			entries = append(entries, &e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return entries, nil
}

// DeleteQueueEntry removes a queue entry by id.
func (s *BadgerStore) DeleteQueueEntry(_ context.Context, id string) error {
	if err := s.deleteExisting(QueuePrefix + id); err != nil {
		return fmt.Errorf("delete queue entry %s: %w", id, err)
	}
	return nil
}

// CountQueue returns the number of queued entries across all entities.
func (s *BadgerStore) CountQueue(_ context.Context) (int, error) {
	n := 0
	err := s.scanPrefix(QueuePrefix, func([]byte, []byte) error {
		n++
		return nil
	})
	return n, err
}

// CountQueueForEntityID returns the number of queued entries referencing an entity id.
func (s *BadgerStore) CountQueueForEntityID(_ context.Context, entityID string) (int, error) {
	n := 0
	err := s.scanPrefix(QueuePrefix, func(_ []byte, v []byte) error {
		var e models.QueueEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil
		}
		if e.EntityID == entityID {
			n++
		}
		return nil
	})
	return n, err
}

// setJSON stores a JSON-encoded value under key.
func (s *BadgerStore) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// getJSON decodes the value under key, mapping a missing key to ErrNotFound.
func (s *BadgerStore) getJSON(key string, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error { return json.Unmarshal(val, v) })
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// deleteExisting removes key, returning ErrNotFound if it was absent.
func (s *BadgerStore) deleteExisting(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// scanPrefix calls fn for every key/value under prefix, in key order.
func (s *BadgerStore) scanPrefix(prefix string, fn func(key, value []byte) error) error {
	p := []byte(prefix)
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(v []byte) error { return fn(key, v) }); err != nil {
				return err
			}
		}
		return nil
	})
}

var _ Repository = (*BadgerStore)(nil)
