// ABOUTME: Repository interface for the local routine store, media cache, and sync queue.
// ABOUTME: Backends (SQLite, Badger) implement all three tables behind one handle.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/harperreed/routines/internal/models"
)

var (
	// ErrNotFound is returned when a record with the requested id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when creating a record whose id already exists.
	ErrDuplicate = errors.New("already exists")
)

// RoutineStore persists routine records keyed by id, with lookups by name,
// last-modified time and sync status.
type RoutineStore interface {
	PutRoutine(ctx context.Context, r *models.Routine) error
	GetRoutine(ctx context.Context, id string) (*models.Routine, error)
	ListRoutines(ctx context.Context) ([]*models.Routine, error)
	ListRoutinesByName(ctx context.Context, name string) ([]*models.Routine, error)
	ListRoutinesModifiedSince(ctx context.Context, since time.Time) ([]*models.Routine, error)
	ListRoutinesBySynced(ctx context.Context, synced bool) ([]*models.Routine, error)
	DeleteRoutine(ctx context.Context, id string) error
	MarkRoutineSynced(ctx context.Context, id string) error
	SetRoutineLocalOnly(ctx context.Context, id string, localOnly bool) error
}

// MediaStore persists cached media blobs keyed by URL.
type MediaStore interface {
	GetMedia(ctx context.Context, url string) (*models.MediaEntry, error)
	PutMedia(ctx context.Context, e *models.MediaEntry) error
	// ListMedia returns entry metadata (Blob is nil), oldest first.
	ListMedia(ctx context.Context) ([]*models.MediaEntry, error)
	DeleteMedia(ctx context.Context, url string) error
}

// QueueStore persists sync queue entries. Ids are ULIDs, so id order is enqueue order.
type QueueStore interface {
	PutQueueEntry(ctx context.Context, e *models.QueueEntry) error
	GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error)
	ListQueue(ctx context.Context, entity models.Entity) ([]*models.QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id string) error
	CountQueue(ctx context.Context) (int, error)
	CountQueueForEntityID(ctx context.Context, entityID string) (int, error)
}

// Repository is the full local persistence substrate.
// This interface allows swapping implementations (e.g., for testing).
type Repository interface {
	RoutineStore
	MediaStore
	QueueStore

	Close() error
}
