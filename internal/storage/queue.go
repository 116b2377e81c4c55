// ABOUTME: Sync queue persistence for SQLite storage.
// ABOUTME: Entries are read back in id (ULID) order, which is enqueue order.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harperreed/routines/internal/models"
)

const queueColumns = `id, operation, entity, entity_id, data, timestamp, attempts, last_attempt`

// PutQueueEntry inserts or replaces a queue entry.
func (d *DB) PutQueueEntry(ctx context.Context, e *models.QueueEntry) error {
	var lastAttempt sql.NullInt64
	if e.LastAttempt != nil {
		lastAttempt = sql.NullInt64{Int64: toMillis(*e.LastAttempt), Valid: true}
	}

	query := `INSERT OR REPLACE INTO sync_queue (` + queueColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := d.db.ExecContext(ctx, query,
		e.ID,
		string(e.Operation),
		string(e.Entity),
		e.EntityID,
		string(e.Data),
		toMillis(e.Timestamp),
		e.Attempts,
		lastAttempt,
	)
	if err != nil {
		return fmt.Errorf("put queue entry: %w", err)
	}
	return nil
}

// GetQueueEntry retrieves a queue entry by id.
func (d *DB) GetQueueEntry(ctx context.Context, id string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE id = ?`
	e, err := scanQueueEntry(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue entry %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get queue entry: %w", err)
	}
	return e, nil
}

// ListQueue returns all entries for an entity type in enqueue order.
func (d *DB) ListQueue(ctx context.Context, entity models.Entity) ([]*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue WHERE entity = ? ORDER BY id ASC`
	rows, err := d.db.QueryContext(ctx, query, string(entity))
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var entries []*models.QueueEntry
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteQueueEntry removes a queue entry by id.
func (d *DB) DeleteQueueEntry(ctx context.Context, id string) error {
	return d.execAffectingOne(ctx, "delete queue entry", id, `DELETE FROM sync_queue WHERE id = ?`, id)
}

// CountQueue returns the number of queued entries across all entities.
func (d *DB) CountQueue(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// CountQueueForEntityID returns the number of queued entries referencing an entity id.
func (d *DB) CountQueueForEntityID(ctx context.Context, entityID string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue WHERE entity_id = ?`, entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queue for %s: %w", entityID, err)
	}
	return n, nil
}

func scanQueueEntry(row rowScanner) (*models.QueueEntry, error) {
	var e models.QueueEntry
	var operation, entity, data string
	var ts int64
	var lastAttempt sql.NullInt64

	if err := row.Scan(&e.ID, &operation, &entity, &e.EntityID, &data, &ts, &e.Attempts, &lastAttempt); err != nil {
		return nil, err
	}

	e.Operation = models.Operation(operation)
	e.Entity = models.Entity(entity)
	e.Data = []byte(data)
	e.Timestamp = fromMillis(ts)
	if lastAttempt.Valid {
		t := fromMillis(lastAttempt.Int64)
		e.LastAttempt = &t
	}
	return &e, nil
}
