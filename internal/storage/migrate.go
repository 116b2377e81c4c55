// ABOUTME: Data migration between routine storage backends.
// ABOUTME: Copies routines, media cache entries, and pending queue entries from source to destination.

package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/harperreed/routines/internal/models"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Routines     int
	Media        int
	QueueEntries int
}

// MigrateData copies all data from src to dst storage.
// Queue entries keep their ids, so replay order survives the move.
// The destination should be empty before calling this function.
func MigrateData(ctx context.Context, src, dst Repository) (*MigrateSummary, error) {
	summary := &MigrateSummary{}

	routines, err := src.ListRoutines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source routines: %w", err)
	}
	for _, r := range routines {
		if err := dst.PutRoutine(ctx, r); err != nil {
			return nil, fmt.Errorf("put routine %s: %w", r.ID, err)
		}
		summary.Routines++
	}

	media, err := src.ListMedia(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source media: %w", err)
	}
	for _, m := range media {
		// ListMedia omits blobs
		full, err := src.GetMedia(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("get media %s: %w", m.ID, err)
		}
		if err := dst.PutMedia(ctx, full); err != nil {
			return nil, fmt.Errorf("put media %s: %w", m.ID, err)
		}
		summary.Media++
	}

	entries, err := src.ListQueue(ctx, models.EntityRoutine)
	if err != nil {
		return nil, fmt.Errorf("list source queue: %w", err)
	}
	for _, e := range entries {
		if err := dst.PutQueueEntry(ctx, e); err != nil {
			return nil, fmt.Errorf("put queue entry %s: %w", e.ID, err)
		}
		summary.QueueEntries++
	}

	return summary, nil
}

// IsDirNonEmpty checks whether a directory exists and contains any files or subdirectories.
// Returns false if the directory does not exist or is empty.
func IsDirNonEmpty(path string) (bool, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read directory %q: %w", path, err)
	}
	return len(entries) > 0, nil
}
