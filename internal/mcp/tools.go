// ABOUTME: MCP tool implementations for workout routines.
// ABOUTME: Provides routine CRUD, sync control, and media cache operations.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/routines/internal/models"
	syncengine "github.com/harperreed/routines/internal/sync"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_routines",
		Description: "List routines, optionally filtered by name, sync status, or modification time",
	}, s.handleListRoutines)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_routine",
		Description: "Get a routine with all its exercises",
	}, s.handleGetRoutine)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "create_routine",
		Description: "Create a new workout routine",
	}, s.handleCreateRoutine)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "update_routine",
		Description: "Update a routine's name, description, or exercise list",
	}, s.handleUpdateRoutine)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "delete_routine",
		Description: "Delete a routine",
	}, s.handleDeleteRoutine)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sync_now",
		Description: "Replay queued changes to the remote now",
	}, s.handleSyncNow)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show pending changes, sync state, and dropped mutations",
	}, s.handleSyncStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "pull_routines",
		Description: "Fetch routines from the remote into the local store",
	}, s.handlePullRoutines)

	if s.cache == nil {
		return
	}

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "cache_media",
		Description: "Download and cache an exercise image or video",
	}, s.handleCacheMedia)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "cleanup_media",
		Description: "Evict cached media by size budget or age",
	}, s.handleCleanupMedia)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "predownload_media",
		Description: "Cache all media for a routine so it works offline",
	}, s.handlePredownloadMedia)
}

// Tool input/output types

type exerciseInput struct {
	ExerciseID string  `json:"exercise_id" jsonschema:"catalog id of the exercise"`
	Sets       int     `json:"sets,omitempty" jsonschema:"number of sets"`
	Reps       int     `json:"reps,omitempty" jsonschema:"reps per set"`
	Duration   int     `json:"duration,omitempty" jsonschema:"duration in seconds"`
	Notes      string  `json:"notes,omitempty" jsonschema:"free-form notes"`
	Weight     float64 `json:"weight,omitempty" jsonschema:"weight used"`
	Resistance string  `json:"resistance,omitempty" jsonschema:"light, medium, or heavy"`
}

func (in exerciseInput) toModel() models.RoutineExercise {
	return models.RoutineExercise{
		ExerciseID: in.ExerciseID,
		Sets:       in.Sets,
		Reps:       in.Reps,
		Duration:   in.Duration,
		Notes:      in.Notes,
		Weight:     in.Weight,
		Resistance: models.Resistance(in.Resistance),
	}
}

func toExercises(in []exerciseInput) []models.RoutineExercise {
	out := make([]models.RoutineExercise, 0, len(in))
	for _, ex := range in {
		out = append(out, ex.toModel())
	}
	return out
}

type listRoutinesInput struct {
	Name     string `json:"name,omitempty" jsonschema:"filter by exact name, case-insensitive"`
	Unsynced bool   `json:"unsynced,omitempty" jsonschema:"only routines with unsynced changes"`
	Since    string `json:"since,omitempty" jsonschema:"only routines modified at or after this RFC 3339 time"`
	Limit    int    `json:"limit,omitempty" jsonschema:"max results (default 20)"`
}

type routineIDInput struct {
	ID string `json:"id" jsonschema:"routine id"`
}

type createRoutineInput struct {
	ID          string          `json:"id,omitempty" jsonschema:"explicit id; generated when empty"`
	Name        string          `json:"name" jsonschema:"routine name"`
	Description string          `json:"description,omitempty" jsonschema:"routine description"`
	Exercises   []exerciseInput `json:"exercises,omitempty" jsonschema:"ordered exercise list"`
}

type updateRoutineInput struct {
	ID          string          `json:"id" jsonschema:"routine id"`
	Name        *string         `json:"name,omitempty" jsonschema:"new name"`
	Description *string         `json:"description,omitempty" jsonschema:"new description"`
	Exercises   []exerciseInput `json:"exercises,omitempty" jsonschema:"replacement exercise list"`
}

type routineOutput struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int    `json:"version"`
	Message string `json:"message"`
}

type simpleOutput struct {
	Message string `json:"message"`
}

type emptyInput struct{}

type cacheMediaInput struct {
	URL  string `json:"url" jsonschema:"media URL"`
	Type string `json:"type,omitempty" jsonschema:"image or video (default image)"`
}

type cacheMediaOutput struct {
	URL     string `json:"url"`
	Type    string `json:"type"`
	Size    int64  `json:"size"`
	Message string `json:"message"`
}

type cleanupMediaInput struct {
	MaxAgeDays int `json:"max_age_days,omitempty" jsonschema:"delete entries older than this many days"`
	MaxSizeMB  int `json:"max_size_mb,omitempty" jsonschema:"cache size budget in MiB"`
}

type cleanupMediaOutput struct {
	Deleted int    `json:"deleted"`
	Message string `json:"message"`
}

type predownloadInput struct {
	RoutineID string `json:"routine_id" jsonschema:"routine id"`
}

// Tool handlers

func (s *Server) handleListRoutines(ctx context.Context, req *mcp.CallToolRequest, input listRoutinesInput) (*mcp.CallToolResult, any, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}

	var (
		routines []*models.Routine
		err      error
	)
	switch {
	case input.Name != "":
		routines, err = s.engine.FindByName(ctx, input.Name)
	case input.Unsynced:
		routines, err = s.engine.Unsynced(ctx)
	case input.Since != "":
		since, perr := time.Parse(time.RFC3339, input.Since)
		if perr != nil {
			return nil, nil, fmt.Errorf("invalid since %q: %w", input.Since, perr)
		}
		routines, err = s.engine.ModifiedSince(ctx, since)
	default:
		routines, err = s.engine.GetAll(ctx)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list routines: %w", err)
	}

	if len(routines) == 0 {
		return nil, map[string]any{"message": "No routines found."}, nil
	}
	if len(routines) > input.Limit {
		routines = routines[:input.Limit]
	}

	return nil, map[string]any{"routines": routines, "count": len(routines)}, nil
}

func (s *Server) handleGetRoutine(ctx context.Context, req *mcp.CallToolRequest, input routineIDInput) (*mcp.CallToolResult, any, error) {
	r, err := s.engine.Get(ctx, input.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("routine not found: %s", input.ID)
	}
	return nil, r, nil
}

func (s *Server) handleCreateRoutine(ctx context.Context, req *mcp.CallToolRequest, input createRoutineInput) (*mcp.CallToolResult, routineOutput, error) {
	r, err := s.engine.Save(ctx, models.RoutineDraft{
		ID:          input.ID,
		Name:        input.Name,
		Description: input.Description,
		Exercises:   toExercises(input.Exercises),
	})
	if err != nil {
		return nil, routineOutput{}, fmt.Errorf("failed to create routine: %w", err)
	}

	return nil, routineOutput{
		ID:      r.ID,
		Name:    r.Name,
		Version: r.Version,
		Message: fmt.Sprintf("Created routine %q with %d exercises (ID: %s)", r.Name, len(r.Exercises), r.ID),
	}, nil
}

func (s *Server) handleUpdateRoutine(ctx context.Context, req *mcp.CallToolRequest, input updateRoutineInput) (*mcp.CallToolResult, routineOutput, error) {
	u := models.RoutineUpdate{
		Name:        input.Name,
		Description: input.Description,
	}
	if input.Exercises != nil {
		u.Exercises = toExercises(input.Exercises)
	}

	r, err := s.engine.Update(ctx, input.ID, u)
	if err != nil {
		return nil, routineOutput{}, fmt.Errorf("failed to update routine: %w", err)
	}

	return nil, routineOutput{
		ID:      r.ID,
		Name:    r.Name,
		Version: r.Version,
		Message: fmt.Sprintf("Updated routine %q to version %d", r.Name, r.Version),
	}, nil
}

func (s *Server) handleDeleteRoutine(ctx context.Context, req *mcp.CallToolRequest, input routineIDInput) (*mcp.CallToolResult, simpleOutput, error) {
	if err := s.engine.Delete(ctx, input.ID); err != nil {
		return nil, simpleOutput{}, fmt.Errorf("failed to delete routine: %w", err)
	}

	return nil, simpleOutput{
		Message: fmt.Sprintf("Deleted routine: %s", input.ID),
	}, nil
}

func (s *Server) handleSyncNow(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, syncengine.Result, error) {
	res, err := s.engine.Sync(ctx)
	switch {
	case errors.Is(err, syncengine.ErrOffline):
		return nil, syncengine.Result{}, fmt.Errorf("cannot sync while offline; %d changes stay queued", s.engine.Status().PendingChanges)
	case err != nil:
		return nil, syncengine.Result{}, fmt.Errorf("sync failed: %w", err)
	}
	return nil, res, nil
}

func (s *Server) handleSyncStatus(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, any, error) {
	return nil, s.statusPayload(), nil
}

func (s *Server) handlePullRoutines(ctx context.Context, req *mcp.CallToolRequest, input emptyInput) (*mcp.CallToolResult, syncengine.PullResult, error) {
	res, err := s.engine.Pull(ctx)
	if err != nil {
		return nil, syncengine.PullResult{}, fmt.Errorf("pull failed: %w", err)
	}
	return nil, res, nil
}

func (s *Server) handleCacheMedia(ctx context.Context, req *mcp.CallToolRequest, input cacheMediaInput) (*mcp.CallToolResult, cacheMediaOutput, error) {
	if input.Type == "" {
		input.Type = string(models.MediaImage)
	}
	e, err := s.cache.CacheMedia(ctx, input.URL, models.MediaType(input.Type))
	if err != nil {
		return nil, cacheMediaOutput{}, fmt.Errorf("failed to cache media: %w", err)
	}

	return nil, cacheMediaOutput{
		URL:     e.URL,
		Type:    string(e.Type),
		Size:    e.Size,
		Message: fmt.Sprintf("Cached %s (%d bytes)", e.URL, e.Size),
	}, nil
}

func (s *Server) handleCleanupMedia(ctx context.Context, req *mcp.CallToolRequest, input cleanupMediaInput) (*mcp.CallToolResult, cleanupMediaOutput, error) {
	if input.MaxAgeDays <= 0 {
		input.MaxAgeDays = s.opts.MediaMaxAgeDays
	}
	if input.MaxSizeMB <= 0 {
		input.MaxSizeMB = s.opts.MediaMaxSizeMB
	}

	n, err := s.cache.Cleanup(ctx, input.MaxAgeDays, input.MaxSizeMB)
	if err != nil {
		return nil, cleanupMediaOutput{}, fmt.Errorf("cleanup failed: %w", err)
	}

	return nil, cleanupMediaOutput{
		Deleted: n,
		Message: fmt.Sprintf("Evicted %d media entries", n),
	}, nil
}

func (s *Server) handlePredownloadMedia(ctx context.Context, req *mcp.CallToolRequest, input predownloadInput) (*mcp.CallToolResult, simpleOutput, error) {
	if err := s.cache.PreDownloadRoutineMedia(ctx, input.RoutineID); err != nil {
		return nil, simpleOutput{}, fmt.Errorf("pre-download failed: %w", err)
	}
	return nil, simpleOutput{
		Message: fmt.Sprintf("Routine %s is available offline", input.RoutineID),
	}, nil
}

func (s *Server) statusPayload() map[string]any {
	st := s.engine.Status()
	return map[string]any{
		"pending_changes": st.PendingChanges,
		"is_syncing":      st.IsSyncing,
		"last_sync_time":  st.LastSyncTime,
		"online":          s.engine.IsOnline(),
		"exhausted":       s.engine.Exhausted(),
	}
}
