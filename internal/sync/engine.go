// ABOUTME: Sync engine: optimistic local CRUD, durable queueing, and FIFO replay to the remote.
// ABOUTME: A single drain runs at a time; remote failures become attempt bookkeeping.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/routines/internal/connectivity"
	"github.com/harperreed/routines/internal/models"
	"github.com/harperreed/routines/internal/queue"
	"github.com/harperreed/routines/internal/remote"
	"github.com/harperreed/routines/internal/storage"
)

var (
	// ErrOffline is returned by Sync and Pull when the observer reports offline.
	ErrOffline = errors.New("offline")
	// ErrSyncInProgress is returned by Sync when a drain is already running.
	ErrSyncInProgress = errors.New("sync already in progress")
	// ErrNotInitialized is returned by operations called before Initialize.
	ErrNotInitialized = errors.New("sync engine not initialized")
	// ErrClosed is returned by operations called after Close.
	ErrClosed = errors.New("sync engine closed")
)

// Status is a point-in-time view of the engine counters.
type Status struct {
	PendingChanges int       `json:"pending_changes"`
	IsSyncing      bool      `json:"is_syncing"`
	LastSyncTime   time.Time `json:"last_sync_time,omitempty"`
	Exhausted      int       `json:"exhausted"`
}

// Result summarizes one drain.
type Result struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
}

// ExhaustedMutation is a mutation dropped after reaching the attempt ceiling.
type ExhaustedMutation struct {
	Entry     models.QueueEntry `json:"entry"`
	LastError string            `json:"last_error"`
	DroppedAt time.Time         `json:"dropped_at"`
}

// PullResult summarizes a Pull.
type PullResult struct {
	Fetched int `json:"fetched"`
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Removed int `json:"removed"`
}

// Engine owns the local store, the mutation queue, and the drain state machine.
type Engine struct {
	store    storage.Repository
	queue    *queue.Queue
	remote   remote.Source
	observer connectivity.Observer
	cfg      Config
	logger   *log.Logger

	// mu makes a record write and its enqueue atomic with respect to drain
	// bookkeeping. It is never held across a remote call.
	mu stdsync.Mutex

	initMu      stdsync.Mutex
	initialized atomic.Bool
	closed      atomic.Bool
	syncing     atomic.Bool

	// lifeMu orders wg.Add in Trigger against wg.Wait in Close.
	lifeMu stdsync.Mutex
	wg     stdsync.WaitGroup

	statusMu  stdsync.RWMutex
	pending   int
	lastSync  time.Time
	exhausted []ExhaustedMutation
}

// New creates an engine. Call Initialize before use.
func New(store storage.Repository, src remote.Source, observer connectivity.Observer, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		store:    store,
		remote:   src,
		observer: observer,
		cfg:      cfg,
		logger:   cfg.Logger,
	}
	e.queue = queue.New(store).WithClock(e.now)
	return e
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().UTC().Truncate(time.Millisecond)
}

// Initialize loads the pending count from the durable queue and subscribes to
// reconnects. Repeated calls are no-ops. If online, a drain is started.
func (e *Engine) Initialize(ctx context.Context) error {
	e.initMu.Lock()
	defer e.initMu.Unlock()
	if e.initialized.Load() {
		return nil
	}
	if e.closed.Load() {
		return ErrClosed
	}

	n, err := e.queue.Len(ctx)
	if err != nil {
		return fmt.Errorf("load pending changes: %w", err)
	}
	e.statusMu.Lock()
	e.pending = n
	e.statusMu.Unlock()

	e.observer.OnReconnect(func() {
		e.logger.Info("reconnected, triggering sync")
		e.Trigger()
	})
	e.initialized.Store(true)
	e.logger.Debug("sync engine initialized", "pending", n)

	e.Trigger()
	return nil
}

func (e *Engine) ready() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if !e.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// Save persists a new routine stamped with version 1 and queues its creation.
func (e *Engine) Save(ctx context.Context, draft models.RoutineDraft) (*models.Routine, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	r, err := models.NewRoutine(draft)
	if err != nil {
		return nil, err
	}
	r.LastModified = e.now()
	r.Synced = false
	r.Version = 1

	e.mu.Lock()
	_, err = e.store.GetRoutine(ctx, r.ID)
	switch {
	case err == nil:
		e.mu.Unlock()
		return nil, fmt.Errorf("routine %s: %w", r.ID, storage.ErrDuplicate)
	case !errors.Is(err, storage.ErrNotFound):
		e.mu.Unlock()
		return nil, err
	}
	if err := e.store.PutRoutine(ctx, r); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("save routine: %w", err)
	}
	if err := e.enqueueLocked(ctx, models.CreateRoutine{Routine: *r.Clone()}); err != nil {
		_ = e.store.DeleteRoutine(ctx, r.ID)
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	e.Trigger()
	return r, nil
}

// Update merges a partial update into an existing routine, bumps its version,
// and queues the update.
func (e *Engine) Update(ctx context.Context, id string, u models.RoutineUpdate) (*models.Routine, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	r, err := e.store.GetRoutine(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	prev := r.Clone()
	if err := r.Apply(u); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	r.LastModified = e.now()
	r.Synced = false
	r.Version++

	if err := e.store.PutRoutine(ctx, r); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("update routine: %w", err)
	}
	if err := e.enqueueLocked(ctx, models.UpdateRoutine{Routine: *r.Clone()}); err != nil {
		_ = e.store.PutRoutine(ctx, prev)
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	e.Trigger()
	return r, nil
}

// Delete removes a routine and queues its remote deletion.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.ready(); err != nil {
		return err
	}

	e.mu.Lock()
	prev, err := e.store.GetRoutine(ctx, id)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if err := e.store.DeleteRoutine(ctx, id); err != nil {
		e.mu.Unlock()
		return err
	}
	if err := e.enqueueLocked(ctx, models.DeleteRoutine{ID: id}); err != nil {
		_ = e.store.PutRoutine(ctx, prev)
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	e.Trigger()
	return nil
}

// enqueueLocked appends a mutation and bumps the pending counter. Caller holds mu.
func (e *Engine) enqueueLocked(ctx context.Context, m models.Mutation) error {
	if _, err := e.queue.Enqueue(ctx, m); err != nil {
		return err
	}
	e.statusMu.Lock()
	e.pending++
	e.statusMu.Unlock()
	return nil
}

// Get returns one routine.
func (e *Engine) Get(ctx context.Context, id string) (*models.Routine, error) {
	return e.store.GetRoutine(ctx, id)
}

// GetAll returns every routine, most recently modified first.
func (e *Engine) GetAll(ctx context.Context) ([]*models.Routine, error) {
	return e.store.ListRoutines(ctx)
}

// FindByName returns routines whose name matches case-insensitively.
func (e *Engine) FindByName(ctx context.Context, name string) ([]*models.Routine, error) {
	return e.store.ListRoutinesByName(ctx, name)
}

// ModifiedSince returns routines modified at or after since.
func (e *Engine) ModifiedSince(ctx context.Context, since time.Time) ([]*models.Routine, error) {
	return e.store.ListRoutinesModifiedSince(ctx, since)
}

// Unsynced returns routines with local changes not yet confirmed remotely.
func (e *Engine) Unsynced(ctx context.Context) ([]*models.Routine, error) {
	return e.store.ListRoutinesBySynced(ctx, false)
}

// Trigger starts a background drain unless one is running, the engine is
// offline, or it is not initialized. Dropped triggers are not remembered.
func (e *Engine) Trigger() {
	if e.ready() != nil || !e.observer.IsOnline() {
		return
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return
	}
	e.lifeMu.Lock()
	if e.closed.Load() {
		e.lifeMu.Unlock()
		e.syncing.Store(false)
		return
	}
	e.wg.Add(1)
	e.lifeMu.Unlock()
	go func() {
		defer e.wg.Done()
		e.drain(context.Background())
	}()
}

// Sync runs a drain in the caller's goroutine and reports what it did.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if err := e.ready(); err != nil {
		return Result{}, err
	}
	if !e.observer.IsOnline() {
		return Result{}, ErrOffline
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	return e.drain(ctx), nil
}

// drain replays queued routine mutations in FIFO order. Entries enqueued
// while draining are picked up by another pass. Once an entry fails, later
// entries for the same routine wait for the next drain. Caller has set syncing.
func (e *Engine) drain(ctx context.Context) Result {
	defer e.syncing.Store(false)

	var res Result
	seen := make(map[string]bool)
	blocked := make(map[string]bool)
	e.logger.Debug("sync started", "pending", e.Status().PendingChanges)

	for {
		entries, err := e.queue.DrainForEntity(ctx, models.EntityRoutine)
		if err != nil {
			e.logger.Error("read sync queue", "err", err)
			break
		}
		fresh := 0
		for _, entry := range entries {
			if seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
			if blocked[entry.EntityID] {
				continue
			}
			fresh++
			if !e.replay(ctx, entry, &res) {
				blocked[entry.EntityID] = true
			}
		}
		if fresh == 0 {
			break
		}
	}

	e.statusMu.Lock()
	e.lastSync = e.now()
	e.statusMu.Unlock()

	e.logger.Debug("sync finished",
		"attempted", res.Attempted, "succeeded", res.Succeeded,
		"failed", res.Failed, "exhausted", res.Exhausted)
	return res
}

// replay dispatches one entry to the remote and records the outcome. It
// reports false when the entry failed and stays queued.
func (e *Engine) replay(ctx context.Context, entry *models.QueueEntry, res *Result) bool {
	res.Attempted++

	m, err := entry.Mutation()
	if err == nil {
		err = e.dispatch(ctx, m)
	}
	if err == nil {
		if err := e.confirm(ctx, entry, m); err != nil {
			e.logger.Error("confirm replay", "entry", entry.ID, "err", err)
		}
		res.Succeeded++
		return true
	}

	res.Failed++
	if e.recordFailure(ctx, entry, err) {
		res.Exhausted++
		return true
	}
	return false
}

// dispatch sends a mutation to the remote. Creates and updates both land as
// upserts: a create that finds the id already present becomes an update, and
// an update that finds nothing becomes a create. Remote "not found" on delete
// is success.
func (e *Engine) dispatch(ctx context.Context, m models.Mutation) error {
	switch m := m.(type) {
	case models.CreateRoutine:
		t, err := remote.ToTemplate(&m.Routine, e.cfg.DeviceID)
		if err != nil {
			return err
		}
		_, err = e.remote.Create(ctx, t)
		if errors.Is(err, remote.ErrConflict) {
			_, err = e.remote.Update(ctx, t.ID, t)
		}
		return err
	case models.UpdateRoutine:
		t, err := remote.ToTemplate(&m.Routine, e.cfg.DeviceID)
		if err != nil {
			return err
		}
		_, err = e.remote.Update(ctx, t.ID, t)
		if errors.Is(err, remote.ErrNotFound) {
			_, err = e.remote.Create(ctx, t)
		}
		return err
	case models.DeleteRoutine:
		err := e.remote.Delete(ctx, m.ID)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unhandled mutation %T", m)
	}
}

// confirm removes a replayed entry and marks the record synced when nothing
// else is queued for it.
func (e *Engine) confirm(ctx context.Context, entry *models.QueueEntry, m models.Mutation) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.queue.Remove(ctx, entry.ID); err != nil {
		return err
	}
	e.decrementPending()

	if m.Operation() == models.OpDelete {
		return nil
	}
	n, err := e.queue.PendingFor(ctx, entry.EntityID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if err := e.store.MarkRoutineSynced(ctx, entry.EntityID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// recordFailure bumps the attempt count and drops the entry at the ceiling.
// It reports whether the entry was dropped.
func (e *Engine) recordFailure(ctx context.Context, entry *models.QueueEntry, cause error) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	updated, err := e.queue.RecordAttempt(ctx, entry.ID)
	if err != nil {
		e.logger.Error("record sync attempt", "entry", entry.ID, "err", err)
		return false
	}
	if updated.Attempts < e.cfg.MaxAttempts {
		e.logger.Warn("sync replay failed",
			"entry", entry.ID, "op", entry.Operation, "id", entry.EntityID,
			"attempts", updated.Attempts, "err", cause)
		return false
	}

	if err := e.queue.Remove(ctx, entry.ID); err != nil {
		e.logger.Error("drop exhausted entry", "entry", entry.ID, "err", err)
		return false
	}
	e.decrementPending()

	e.statusMu.Lock()
	e.exhausted = append(e.exhausted, ExhaustedMutation{
		Entry:     *updated,
		LastError: cause.Error(),
		DroppedAt: e.now(),
	})
	e.statusMu.Unlock()

	e.logger.Error("sync mutation discarded",
		"entry", entry.ID, "op", entry.Operation, "id", entry.EntityID,
		"attempts", updated.Attempts, "err", cause)
	return true
}

func (e *Engine) decrementPending() {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	if e.pending > 0 {
		e.pending--
	}
}

// Pull copies remote templates into the local store. Records with queued
// mutations or unsynced local edits are left alone, and synced local records
// missing remotely are removed.
func (e *Engine) Pull(ctx context.Context) (PullResult, error) {
	var res PullResult
	if err := e.ready(); err != nil {
		return res, err
	}
	if !e.observer.IsOnline() {
		return res, ErrOffline
	}

	templates, err := e.remote.SelectAll(ctx)
	if err != nil {
		return res, err
	}
	res.Fetched = len(templates)

	e.mu.Lock()
	defer e.mu.Unlock()

	remoteIDs := make(map[string]bool, len(templates))
	for _, t := range templates {
		remoteIDs[t.ID] = true
		apply, local, err := e.pullable(ctx, t.ID)
		if err != nil {
			return res, err
		}
		if !apply {
			res.Skipped++
			continue
		}
		r := remote.FromTemplate(t)
		err = r.ValidateOrder()
		if err == nil {
			sort.SliceStable(r.Exercises, func(i, j int) bool { return r.Exercises[i].Order < r.Exercises[j].Order })
			err = r.Normalize()
		}
		if err != nil {
			e.logger.Warn("skip malformed remote template", "id", t.ID, "err", err)
			res.Skipped++
			continue
		}
		if local != nil {
			r.LocalOnly = local.LocalOnly
		}
		if err := e.store.PutRoutine(ctx, r); err != nil {
			return res, fmt.Errorf("store pulled routine %s: %w", t.ID, err)
		}
		res.Applied++
	}

	synced, err := e.store.ListRoutinesBySynced(ctx, true)
	if err != nil {
		return res, err
	}
	for _, r := range synced {
		if remoteIDs[r.ID] {
			continue
		}
		if n, err := e.queue.PendingFor(ctx, r.ID); err != nil || n > 0 {
			continue
		}
		if err := e.store.DeleteRoutine(ctx, r.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return res, err
		}
		res.Removed++
	}
	return res, nil
}

// pullable reports whether a remote template may overwrite the local copy. Caller holds mu.
func (e *Engine) pullable(ctx context.Context, id string) (bool, *models.Routine, error) {
	n, err := e.queue.PendingFor(ctx, id)
	if err != nil {
		return false, nil, err
	}
	if n > 0 {
		return false, nil, nil
	}
	local, err := e.store.GetRoutine(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return local.Synced, local, nil
}

// Status returns the current counters.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return Status{
		PendingChanges: e.pending,
		IsSyncing:      e.syncing.Load(),
		LastSyncTime:   e.lastSync,
		Exhausted:      len(e.exhausted),
	}
}

// Exhausted returns the mutations discarded after reaching the attempt ceiling.
func (e *Engine) Exhausted() []ExhaustedMutation {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	out := make([]ExhaustedMutation, len(e.exhausted))
	copy(out, e.exhausted)
	return out
}

// IsOnline reports the observer's current state.
func (e *Engine) IsOnline() bool {
	return e.observer.IsOnline()
}

// Wait blocks until any background drain finishes.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close stops accepting triggers and waits for a running drain. It does not
// close the store or the remote.
func (e *Engine) Close() error {
	e.lifeMu.Lock()
	e.closed.Store(true)
	e.lifeMu.Unlock()
	e.wg.Wait()
	return nil
}
