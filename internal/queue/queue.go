// ABOUTME: Durable FIFO mutation queue backed by the sync_queue table.
// ABOUTME: Entry ids are ULIDs, so storage key order is enqueue order.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/routines/internal/models"
	"github.com/harperreed/routines/internal/storage"
	"github.com/oklog/ulid/v2"
)

// Queue records local mutations until they are confirmed against the remote.
type Queue struct {
	store storage.QueueStore
	now   func() time.Time
}

// New creates a queue over the given store.
func New(store storage.QueueStore) *Queue {
	return &Queue{store: store, now: time.Now}
}

// WithClock replaces the clock used for enqueue and attempt timestamps.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Enqueue appends a mutation with zero attempts and returns the stored entry.
func (q *Queue) Enqueue(ctx context.Context, m models.Mutation) (*models.QueueEntry, error) {
	entry, err := models.NewQueueEntry(ulid.Make().String(), m, q.now())
	if err != nil {
		return nil, err
	}
	if err := q.store.PutQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue %s %s: %w", m.Operation(), m.EntityID(), err)
	}
	return entry, nil
}

// DrainForEntity returns every queued entry for an entity type, oldest first.
// Entries are not removed; the caller removes each one after replay.
func (q *Queue) DrainForEntity(ctx context.Context, entity models.Entity) ([]*models.QueueEntry, error) {
	entries, err := q.store.ListQueue(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("drain %s queue: %w", entity, err)
	}
	return entries, nil
}

// Remove deletes one entry.
func (q *Queue) Remove(ctx context.Context, id string) error {
	return q.store.DeleteQueueEntry(ctx, id)
}

// RecordAttempt increments the attempt counter, stamps LastAttempt, and
// returns the updated entry.
func (q *Queue) RecordAttempt(ctx context.Context, id string) (*models.QueueEntry, error) {
	entry, err := q.store.GetQueueEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	now := q.now()
	entry.Attempts++
	entry.LastAttempt = &now
	if err := q.store.PutQueueEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("record attempt on %s: %w", id, err)
	}
	return entry, nil
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.store.CountQueue(ctx)
}

// PendingFor returns how many queued entries reference entityID.
func (q *Queue) PendingFor(ctx context.Context, entityID string) (int, error) {
	return q.store.CountQueueForEntityID(ctx, entityID)
}
