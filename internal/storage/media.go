// ABOUTME: Media cache CRUD operations for SQLite storage.
// ABOUTME: Blobs live in the media_cache table; listing skips the blob column.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harperreed/routines/internal/models"
)

// GetMedia retrieves a cached entry, including its blob.
func (d *DB) GetMedia(ctx context.Context, url string) (*models.MediaEntry, error) {
	query := `SELECT id, url, type, blob, timestamp, size FROM media_cache WHERE id = ?`

	var e models.MediaEntry
	var mediaType string
	var ts int64
	err := d.db.QueryRowContext(ctx, query, url).Scan(&e.ID, &e.URL, &mediaType, &e.Blob, &ts, &e.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	e.Type = models.MediaType(mediaType)
	e.Timestamp = fromMillis(ts)
	return &e, nil
}

// PutMedia stores a cached entry, replacing any entry for the same URL.
func (d *DB) PutMedia(ctx context.Context, e *models.MediaEntry) error {
	query := `
		INSERT OR REPLACE INTO media_cache (id, url, type, blob, timestamp, size)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	blob := e.Blob
	if blob == nil {
		blob = []byte{}
	}
	_, err := d.db.ExecContext(ctx, query, e.ID, e.URL, string(e.Type), blob, toMillis(e.Timestamp), e.Size)
	if err != nil {
		return fmt.Errorf("put media: %w", err)
	}
	return nil
}

// ListMedia returns metadata for every cached entry, oldest first.
func (d *DB) ListMedia(ctx context.Context) ([]*models.MediaEntry, error) {
	query := `SELECT id, url, type, timestamp, size FROM media_cache ORDER BY timestamp ASC, id`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var entries []*models.MediaEntry
	for rows.Next() {
		var e models.MediaEntry
		var mediaType string
		var ts int64
		if err := rows.Scan(&e.ID, &e.URL, &mediaType, &ts, &e.Size); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		e.Type = models.MediaType(mediaType)
		e.Timestamp = fromMillis(ts)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// DeleteMedia removes a cached entry.
func (d *DB) DeleteMedia(ctx context.Context, url string) error {
	return d.execAffectingOne(ctx, "delete media", url, `DELETE FROM media_cache WHERE id = ?`, url)
}
