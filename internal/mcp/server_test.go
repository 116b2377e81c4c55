// ABOUTME: Tests for MCP server, tools, and resources.
// ABOUTME: Covers NewServer, routine and sync tool handlers, media tools, and resource handlers.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harperreed/routines/internal/connectivity"
	"github.com/harperreed/routines/internal/media"
	"github.com/harperreed/routines/internal/models"
	"github.com/harperreed/routines/internal/remote"
	"github.com/harperreed/routines/internal/storage"
	syncengine "github.com/harperreed/routines/internal/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeFetcher struct {
	blobs map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	b, ok := f.blobs[url]
	if !ok {
		return nil, &media.FetchError{URL: url, StatusCode: 404}
	}
	return b, nil
}

type testEnv struct {
	server *Server
	engine *syncengine.Engine
	store  *storage.DB
	remote *remote.Memory
	net    *connectivity.Switch
}

// setupTestServer builds a server over a temp SQLite store and an in-memory
// remote. It starts offline so writes stay queued.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "routines.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:  store,
		remote: remote.NewMemory(),
		net:    connectivity.NewSwitch(false),
	}
	env.engine = syncengine.New(store, env.remote, env.net, syncengine.Config{DeviceID: "mcp-test"})
	if err := env.engine.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { env.engine.Close() })

	fetcher := &fakeFetcher{blobs: map[string][]byte{
		"https://cdn.test/squat.jpg": []byte("jpeg"),
		"https://cdn.test/squat.mp4": []byte("mp4-bytes"),
	}}
	cache := media.NewCache(store, fetcher, media.WithCatalog(env.remote))

	env.server, err = NewServer(env.engine, cache, Options{MediaMaxAgeDays: 7, MediaMaxSizeMB: 100})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return env
}

func (env *testEnv) create(t *testing.T, name string, exerciseIDs ...string) routineOutput {
	t.Helper()
	var exercises []exerciseInput
	for _, id := range exerciseIDs {
		exercises = append(exercises, exerciseInput{ExerciseID: id, Sets: 3, Reps: 10})
	}
	_, out, err := env.server.handleCreateRoutine(context.Background(), &mcp.CallToolRequest{}, createRoutineInput{
		Name:      name,
		Exercises: exercises,
	})
	if err != nil {
		t.Fatalf("create %q failed: %v", name, err)
	}
	return out
}

func TestNewServer(t *testing.T) {
	env := setupTestServer(t)

	if env.server.mcpServer == nil {
		t.Error("Expected non-nil mcpServer")
	}
	if env.server.engine == nil {
		t.Error("Expected non-nil engine")
	}
	if env.server.cache == nil {
		t.Error("Expected non-nil cache")
	}
}

func TestNewServerWithoutCache(t *testing.T) {
	env := setupTestServer(t)

	server, err := NewServer(env.engine, nil, Options{})
	if err != nil {
		t.Fatalf("NewServer without cache failed: %v", err)
	}
	if server.cache != nil {
		t.Error("Expected nil cache")
	}
}

func TestHandleCreateRoutine(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		input     createRoutineInput
		wantErr   bool
		errSubstr string
	}{
		{
			name:  "name only",
			input: createRoutineInput{Name: "Leg Day"},
		},
		{
			name: "with exercises",
			input: createRoutineInput{
				Name:        "Push",
				Description: "chest and shoulders",
				Exercises: []exerciseInput{
					{ExerciseID: "bench", Sets: 5, Reps: 5, Weight: 80, Resistance: "heavy"},
					{ExerciseID: "plank", Duration: 60},
				},
			},
		},
		{
			name:  "explicit id",
			input: createRoutineInput{ID: "routine-fixed", Name: "Pull"},
		},
		{
			name:      "missing name",
			input:     createRoutineInput{Name: "  "},
			wantErr:   true,
			errSubstr: "name is required",
		},
		{
			name: "unknown resistance",
			input: createRoutineInput{
				Name:      "Bad",
				Exercises: []exerciseInput{{ExerciseID: "curl", Resistance: "extreme"}},
			},
			wantErr:   true,
			errSubstr: "unknown resistance",
		},
		{
			name:      "duplicate id",
			input:     createRoutineInput{ID: "routine-fixed", Name: "Pull again"},
			wantErr:   true,
			errSubstr: "failed to create routine",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := env.server.handleCreateRoutine(ctx, &mcp.CallToolRequest{}, tt.input)

			if tt.wantErr {
				if err == nil {
					t.Error("Expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Errorf("Expected error containing %q, got %q", tt.errSubstr, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if out.ID == "" {
				t.Error("Expected non-empty ID")
			}
			if out.Version != 1 {
				t.Errorf("Expected version 1, got %d", out.Version)
			}
			if tt.input.ID != "" && out.ID != tt.input.ID {
				t.Errorf("Expected ID %q, got %q", tt.input.ID, out.ID)
			}
		})
	}
}

func TestHandleCreateRoutineOrdersExercises(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	out := env.create(t, "Circuit", "a", "b", "c")
	r, err := env.engine.Get(ctx, out.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	for i, ex := range r.Exercises {
		if ex.Order != i {
			t.Errorf("exercise %d has order %d", i, ex.Order)
		}
	}
	if r.Synced {
		t.Error("new routine must not be synced while offline")
	}
}

func TestHandleListRoutinesEmpty(t *testing.T) {
	env := setupTestServer(t)

	_, out, err := env.server.handleListRoutines(context.Background(), &mcp.CallToolRequest{}, listRoutinesInput{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	m, ok := out.(map[string]any)
	if !ok || m["message"] != "No routines found." {
		t.Errorf("Expected empty message, got %v", out)
	}
}

func TestHandleListRoutines(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	env.create(t, "Leg Day", "squat")
	env.create(t, "Arm Day", "curl")
	env.create(t, "leg day", "lunge")

	tests := []struct {
		name  string
		input listRoutinesInput
		want  int
	}{
		{"all", listRoutinesInput{}, 3},
		{"limit", listRoutinesInput{Limit: 2}, 2},
		{"by name", listRoutinesInput{Name: "LEG DAY"}, 2},
		{"unsynced", listRoutinesInput{Unsynced: true}, 3},
		{"since epoch", listRoutinesInput{Since: "2000-01-01T00:00:00Z"}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := env.server.handleListRoutines(ctx, &mcp.CallToolRequest{}, tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			m := out.(map[string]any)
			if m["count"] != tt.want {
				t.Errorf("Expected %d routines, got %v", tt.want, m["count"])
			}
		})
	}
}

func TestHandleListRoutinesInvalidSince(t *testing.T) {
	env := setupTestServer(t)

	_, _, err := env.server.handleListRoutines(context.Background(), &mcp.CallToolRequest{}, listRoutinesInput{Since: "yesterday"})
	if err == nil || !strings.Contains(err.Error(), "invalid since") {
		t.Errorf("Expected invalid since error, got %v", err)
	}
}

func TestHandleGetRoutine(t *testing.T) {
	env := setupTestServer(t)
	created := env.create(t, "Core", "plank", "crunch")

	_, out, err := env.server.handleGetRoutine(context.Background(), &mcp.CallToolRequest{}, routineIDInput{ID: created.ID})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	r, ok := out.(*models.Routine)
	if !ok {
		t.Fatalf("Expected *models.Routine, got %T", out)
	}
	if r.Name != "Core" || len(r.Exercises) != 2 {
		t.Errorf("Unexpected routine: %+v", r)
	}
}

func TestHandleGetRoutineNotFound(t *testing.T) {
	env := setupTestServer(t)

	_, _, err := env.server.handleGetRoutine(context.Background(), &mcp.CallToolRequest{}, routineIDInput{ID: "nope"})
	if err == nil || !strings.Contains(err.Error(), "routine not found") {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestHandleUpdateRoutine(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	created := env.create(t, "Old", "squat")

	name := "New"
	_, out, err := env.server.handleUpdateRoutine(ctx, &mcp.CallToolRequest{}, updateRoutineInput{
		ID:        created.ID,
		Name:      &name,
		Exercises: []exerciseInput{{ExerciseID: "deadlift"}, {ExerciseID: "row"}},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Version != 2 || out.Name != "New" {
		t.Errorf("Unexpected output: %+v", out)
	}

	r, err := env.engine.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(r.Exercises) != 2 || r.Exercises[0].ExerciseID != "deadlift" {
		t.Errorf("exercises not replaced: %+v", r.Exercises)
	}
}

func TestHandleUpdateRoutineKeepsExercisesWhenOmitted(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	created := env.create(t, "Keep", "squat", "lunge")

	desc := "lower body"
	if _, _, err := env.server.handleUpdateRoutine(ctx, &mcp.CallToolRequest{}, updateRoutineInput{
		ID:          created.ID,
		Description: &desc,
	}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	r, _ := env.engine.Get(ctx, created.ID)
	if len(r.Exercises) != 2 || r.Description != desc {
		t.Errorf("Unexpected routine: %+v", r)
	}
}

func TestHandleUpdateRoutineNotFound(t *testing.T) {
	env := setupTestServer(t)
	name := "x"

	_, _, err := env.server.handleUpdateRoutine(context.Background(), &mcp.CallToolRequest{}, updateRoutineInput{ID: "nope", Name: &name})
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestHandleDeleteRoutine(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	created := env.create(t, "Doomed")

	_, out, err := env.server.handleDeleteRoutine(ctx, &mcp.CallToolRequest{}, routineIDInput{ID: created.ID})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out.Message, created.ID) {
		t.Errorf("Expected message to mention id, got %q", out.Message)
	}
	if _, err := env.engine.Get(ctx, created.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected routine to be gone, got %v", err)
	}
}

func TestHandleDeleteRoutineNotFound(t *testing.T) {
	env := setupTestServer(t)

	_, _, err := env.server.handleDeleteRoutine(context.Background(), &mcp.CallToolRequest{}, routineIDInput{ID: "nope"})
	if err == nil {
		t.Error("Expected error for missing routine")
	}
}

func TestHandleSyncNowOffline(t *testing.T) {
	env := setupTestServer(t)
	env.create(t, "Queued")

	_, _, err := env.server.handleSyncNow(context.Background(), &mcp.CallToolRequest{}, emptyInput{})
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Fatalf("Expected offline error, got %v", err)
	}
	if !strings.Contains(err.Error(), "1 changes stay queued") {
		t.Errorf("Expected pending count in error, got %q", err.Error())
	}
}

func TestHandleSyncNowAfterReconnect(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	created := env.create(t, "Queued", "squat")

	env.net.Set(true)
	env.engine.Wait()

	_, res, err := env.server.handleSyncNow(ctx, &mcp.CallToolRequest{}, emptyInput{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Failed != 0 {
		t.Errorf("Expected no failures, got %+v", res)
	}
	if env.remote.Template(created.ID) == nil {
		t.Error("Expected routine on the remote")
	}
	r, _ := env.engine.Get(ctx, created.ID)
	if !r.Synced {
		t.Error("Expected routine to be synced")
	}
}

func TestHandleSyncStatus(t *testing.T) {
	env := setupTestServer(t)
	env.create(t, "One")
	env.create(t, "Two")

	_, out, err := env.server.handleSyncStatus(context.Background(), &mcp.CallToolRequest{}, emptyInput{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	m := out.(map[string]any)
	if m["pending_changes"] != 2 {
		t.Errorf("Expected 2 pending changes, got %v", m["pending_changes"])
	}
	if m["online"] != false {
		t.Errorf("Expected offline, got %v", m["online"])
	}
}

func TestHandlePullRoutinesOffline(t *testing.T) {
	env := setupTestServer(t)

	_, _, err := env.server.handlePullRoutines(context.Background(), &mcp.CallToolRequest{}, emptyInput{})
	if err == nil || !errors.Is(err, syncengine.ErrOffline) {
		t.Errorf("Expected ErrOffline, got %v", err)
	}
}

func TestHandlePullRoutines(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	if _, err := env.remote.Create(ctx, &remote.Template{
		ID:        "remote-1",
		Name:      "From Elsewhere",
		Exercises: []remote.TemplateExercise{{ID: "te-1", ExerciseID: "squat", Sets: 3}},
	}); err != nil {
		t.Fatalf("seed remote: %v", err)
	}
	env.net.Set(true)
	env.engine.Wait()

	_, res, err := env.server.handlePullRoutines(ctx, &mcp.CallToolRequest{}, emptyInput{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if res.Fetched != 1 || res.Applied != 1 {
		t.Errorf("Unexpected pull result: %+v", res)
	}
	r, err := env.engine.Get(ctx, "remote-1")
	if err != nil {
		t.Fatalf("Expected pulled routine: %v", err)
	}
	if !r.Synced || r.Name != "From Elsewhere" {
		t.Errorf("Unexpected pulled routine: %+v", r)
	}
}

func TestHandleCacheMedia(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	_, out, err := env.server.handleCacheMedia(ctx, &mcp.CallToolRequest{}, cacheMediaInput{URL: "https://cdn.test/squat.jpg"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Type != "image" || out.Size != 4 {
		t.Errorf("Unexpected output: %+v", out)
	}

	e, err := env.store.GetMedia(ctx, "https://cdn.test/squat.jpg")
	if err != nil {
		t.Fatalf("Expected cached entry: %v", err)
	}
	if string(e.Blob) != "jpeg" {
		t.Errorf("Unexpected blob %q", e.Blob)
	}
}

func TestHandleCacheMediaFailures(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := env.server.handleCacheMedia(ctx, &mcp.CallToolRequest{}, cacheMediaInput{URL: "https://cdn.test/missing.jpg"}); err == nil {
		t.Error("Expected fetch error")
	}
	if _, _, err := env.server.handleCacheMedia(ctx, &mcp.CallToolRequest{}, cacheMediaInput{URL: "https://cdn.test/squat.jpg", Type: "audio"}); err == nil {
		t.Error("Expected invalid type error")
	}
	if _, err := env.store.GetMedia(ctx, "https://cdn.test/missing.jpg"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("failed fetch must not be stored, got %v", err)
	}
}

func TestHandleCleanupMedia(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := env.server.handleCacheMedia(ctx, &mcp.CallToolRequest{}, cacheMediaInput{URL: "https://cdn.test/squat.jpg"}); err != nil {
		t.Fatalf("cache failed: %v", err)
	}

	_, out, err := env.server.handleCleanupMedia(ctx, &mcp.CallToolRequest{}, cleanupMediaInput{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if out.Deleted != 0 {
		t.Errorf("fresh entry under budget should stay, deleted %d", out.Deleted)
	}
}

func TestHandlePredownloadMedia(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	env.remote.PutExercise(&models.Exercise{
		ID:           "squat",
		Name:         "Squat",
		ThumbnailURL: "https://cdn.test/squat.jpg",
		VideoURL:     "https://cdn.test/squat.mp4",
	})
	created := env.create(t, "Legs", "squat")

	if _, _, err := env.server.handlePredownloadMedia(ctx, &mcp.CallToolRequest{}, predownloadInput{RoutineID: created.ID}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	r, _ := env.engine.Get(ctx, created.ID)
	if !r.LocalOnly {
		t.Error("Expected routine to be marked local-only")
	}
	for _, url := range []string{"https://cdn.test/squat.jpg", "https://cdn.test/squat.mp4"} {
		if _, err := env.store.GetMedia(ctx, url); err != nil {
			t.Errorf("Expected %s cached: %v", url, err)
		}
	}
}

func TestHandlePredownloadMediaFailure(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	env.remote.PutExercise(&models.Exercise{ID: "ghost", ThumbnailURL: "https://cdn.test/missing.jpg"})
	created := env.create(t, "Haunted", "ghost")

	if _, _, err := env.server.handlePredownloadMedia(ctx, &mcp.CallToolRequest{}, predownloadInput{RoutineID: created.ID}); err == nil {
		t.Fatal("Expected pre-download error")
	}
	r, _ := env.engine.Get(ctx, created.ID)
	if r.LocalOnly {
		t.Error("routine must not be local-only after a failed pre-download")
	}
}

func readResource(t *testing.T, res *mcp.ReadResourceResult, err error) map[string]any {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.Contents) != 1 {
		t.Fatalf("Expected 1 content, got %d", len(res.Contents))
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(res.Contents[0].Text), &out); err != nil {
		t.Fatalf("Failed to parse resource JSON: %v", err)
	}
	return out
}

func TestHandleAllResource(t *testing.T) {
	env := setupTestServer(t)
	env.create(t, "A")
	env.create(t, "B")

	res, err := env.server.handleAllResource(context.Background(), &mcp.ReadResourceRequest{})
	out := readResource(t, res, err)
	if out["count"] != float64(2) {
		t.Errorf("Expected count 2, got %v", out["count"])
	}
	if res.Contents[0].URI != "routines://all" {
		t.Errorf("Unexpected URI %q", res.Contents[0].URI)
	}
}

func TestHandleUnsyncedResource(t *testing.T) {
	env := setupTestServer(t)
	env.create(t, "Pending")

	res, err := env.server.handleUnsyncedResource(context.Background(), &mcp.ReadResourceRequest{})
	out := readResource(t, res, err)
	if out["count"] != float64(1) {
		t.Errorf("Expected count 1, got %v", out["count"])
	}
}

func TestHandleSyncStatusResource(t *testing.T) {
	env := setupTestServer(t)
	env.create(t, "Pending")

	res, err := env.server.handleSyncStatusResource(context.Background(), &mcp.ReadResourceRequest{})
	out := readResource(t, res, err)
	if out["pending_changes"] != float64(1) {
		t.Errorf("Expected 1 pending change, got %v", out["pending_changes"])
	}
	if _, ok := out["generated_at"]; !ok {
		t.Error("Expected generated_at")
	}
}
