// ABOUTME: URL-keyed media cache with two-phase eviction and routine pre-download.
// ABOUTME: Concurrent requests for one URL share a single fetch.
package media

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/routines/internal/logging"
	"github.com/harperreed/routines/internal/models"
	"github.com/harperreed/routines/internal/storage"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxAgeDays = 7
	DefaultMaxSizeMB  = 100

	bytesPerMB = 1 << 20
	// preDownloadLimit bounds concurrent fetches for one routine.
	preDownloadLimit = 4
)

// Store is the persistence the cache needs: media entries plus routine lookup
// and the local-only flag for pre-download.
type Store interface {
	storage.MediaStore
	GetRoutine(ctx context.Context, id string) (*models.Routine, error)
	SetRoutineLocalOnly(ctx context.Context, id string, localOnly bool) error
}

// ExerciseCatalog resolves exercise ids to their media URLs.
type ExerciseCatalog interface {
	SelectExercises(ctx context.Context, ids []string) ([]*models.Exercise, error)
}

// Cache stores fetched media blobs keyed by URL.
type Cache struct {
	store   Store
	fetcher Fetcher
	catalog ExerciseCatalog
	logger  *log.Logger
	now     func() time.Time
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for eviction reports.
func WithLogger(l *log.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// WithCatalog sets the exercise catalog used by PreDownloadRoutineMedia.
func WithCatalog(cat ExerciseCatalog) Option { return func(c *Cache) { c.catalog = cat } }

// NewCache creates a cache. A nil fetcher uses NewHTTPFetcher.
func NewCache(store Store, fetcher Fetcher, opts ...Option) *Cache {
	if fetcher == nil {
		fetcher = NewHTTPFetcher()
	}
	c := &Cache{
		store:   store,
		fetcher: fetcher,
		logger:  logging.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheMedia returns the cached entry for url, fetching and storing it on a miss.
// Failed fetches store nothing, so a later call fetches again.
func (c *Cache) CacheMedia(ctx context.Context, url string, mediaType models.MediaType) (*models.MediaEntry, error) {
	if !models.IsValidMediaType(string(mediaType)) {
		return nil, fmt.Errorf("invalid media type %q", mediaType)
	}
	if e, err := c.store.GetMedia(ctx, url); err == nil {
		return e, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// The shared fetch outlives any single caller; each caller still honors
	// its own ctx. Keyed by URL because the store is.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (any, error) {
		// Another caller may have finished the fetch while we waited.
		if e, err := c.store.GetMedia(fetchCtx, url); err == nil {
			return e, nil
		}
		blob, err := c.fetcher.Fetch(fetchCtx, url)
		if err != nil {
			return nil, err
		}
		entry := models.NewMediaEntry(url, mediaType, blob, c.now())
		if err := c.store.PutMedia(fetchCtx, entry); err != nil {
			return nil, fmt.Errorf("store media: %w", err)
		}
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*models.MediaEntry), nil
	}
}

// GetCachedMedia returns a cached entry without fetching.
func (c *Cache) GetCachedMedia(ctx context.Context, url string) (*models.MediaEntry, error) {
	return c.store.GetMedia(ctx, url)
}

// Cleanup evicts entries and returns how many were deleted.
//
// When the total size is at or above maxSizeMB, entries are deleted oldest
// first until the total is within budget and age is ignored. Otherwise only
// entries older than maxAgeDays are deleted. Non-positive arguments use the
// defaults.
func (c *Cache) Cleanup(ctx context.Context, maxAgeDays, maxSizeMB int) (int, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}

	entries, err := c.store.ListMedia(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	budget := int64(maxSizeMB) * bytesPerMB

	var victims []*models.MediaEntry
	if total >= budget {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		})
		running := total
		for _, e := range entries {
			if running <= budget {
				break
			}
			victims = append(victims, e)
			running -= e.Size
		}
	} else {
		cutoff := c.now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
		for _, e := range entries {
			if e.Timestamp.Before(cutoff) {
				victims = append(victims, e)
			}
		}
	}

	deleted := 0
	for _, e := range victims {
		if err := c.store.DeleteMedia(ctx, e.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return deleted, fmt.Errorf("evict %s: %w", e.URL, err)
		}
		deleted++
	}
	if deleted > 0 {
		c.logger.Info("evicted media", "count", deleted, "total_bytes", total, "budget_bytes", budget)
	}
	return deleted, nil
}

// PreDownloadRoutineMedia caches every thumbnail and video referenced by a
// routine's exercises and then marks the routine local-only. Any failed fetch
// fails the call; the error joins every failure.
func (c *Cache) PreDownloadRoutineMedia(ctx context.Context, routineID string) error {
	r, err := c.store.GetRoutine(ctx, routineID)
	if err != nil {
		return err
	}
	if c.catalog == nil {
		return fmt.Errorf("pre-download %s: no exercise catalog configured", routineID)
	}

	exercises, err := c.catalog.SelectExercises(ctx, r.ExerciseIDs())
	if err != nil {
		return fmt.Errorf("resolve exercises: %w", err)
	}

	type job struct {
		url string
		typ models.MediaType
	}
	var jobs []job
	seen := make(map[string]bool)
	for _, ex := range exercises {
		for _, j := range []job{{ex.ThumbnailURL, models.MediaImage}, {ex.VideoURL, models.MediaVideo}} {
			if j.url == "" || seen[j.url] {
				continue
			}
			seen[j.url] = true
			jobs = append(jobs, j)
		}
	}

	errs := make([]error, len(jobs))
	var g errgroup.Group
	g.SetLimit(preDownloadLimit)
	for i, j := range jobs {
		g.Go(func() error {
			_, errs[i] = c.CacheMedia(ctx, j.url, j.typ)
			return nil
		})
	}
	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pre-download %s: %w", routineID, err)
	}

	return c.store.SetRoutineLocalOnly(ctx, routineID, true)
}
