// ABOUTME: Routine CRUD operations for SQLite storage.
// ABOUTME: Exercises are stored as a JSON column; timestamps as epoch milliseconds.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/routines/internal/models"
)

const routineColumns = `id, name, description, exercises, last_modified, synced, local_only, version`

// PutRoutine inserts or replaces a routine record.
func (d *DB) PutRoutine(ctx context.Context, r *models.Routine) error {
	exercises, err := json.Marshal(r.Exercises)
	if err != nil {
		return fmt.Errorf("marshal exercises: %w", err)
	}

	query := `
		INSERT INTO routines (` + routineColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			exercises = excluded.exercises,
			last_modified = excluded.last_modified,
			synced = excluded.synced,
			local_only = excluded.local_only,
			version = excluded.version
	`
	_, err = d.db.ExecContext(ctx, query,
		r.ID,
		r.Name,
		r.Description,
		string(exercises),
		toMillis(r.LastModified),
		boolToInt(r.Synced),
		boolToInt(r.LocalOnly),
		r.Version,
	)
	if err != nil {
		return fmt.Errorf("put routine: %w", err)
	}
	return nil
}

// GetRoutine retrieves a routine by id.
func (d *DB) GetRoutine(ctx context.Context, id string) (*models.Routine, error) {
	query := `SELECT ` + routineColumns + ` FROM routines WHERE id = ?`
	r, err := scanRoutine(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get routine: %w", err)
	}
	return r, nil
}

// ListRoutines returns all routines, most recently modified first.
func (d *DB) ListRoutines(ctx context.Context) ([]*models.Routine, error) {
	query := `SELECT ` + routineColumns + ` FROM routines ORDER BY last_modified DESC, id`
	return d.queryRoutines(ctx, query)
}

// ListRoutinesByName returns routines whose name matches case-insensitively.
func (d *DB) ListRoutinesByName(ctx context.Context, name string) ([]*models.Routine, error) {
	query := `SELECT ` + routineColumns + ` FROM routines
		WHERE LOWER(name) = LOWER(?)
		ORDER BY last_modified DESC, id`
	return d.queryRoutines(ctx, query, name)
}

// ListRoutinesModifiedSince returns routines modified at or after since.
func (d *DB) ListRoutinesModifiedSince(ctx context.Context, since time.Time) ([]*models.Routine, error) {
	query := `SELECT ` + routineColumns + ` FROM routines
		WHERE last_modified >= ?
		ORDER BY last_modified DESC, id`
	return d.queryRoutines(ctx, query, toMillis(since))
}

// ListRoutinesBySynced returns routines with the given sync status.
func (d *DB) ListRoutinesBySynced(ctx context.Context, synced bool) ([]*models.Routine, error) {
	query := `SELECT ` + routineColumns + ` FROM routines
		WHERE synced = ?
		ORDER BY last_modified DESC, id`
	return d.queryRoutines(ctx, query, boolToInt(synced))
}

// DeleteRoutine removes a routine by id.
func (d *DB) DeleteRoutine(ctx context.Context, id string) error {
	return d.execAffectingOne(ctx, "delete routine", id, `DELETE FROM routines WHERE id = ?`, id)
}

// MarkRoutineSynced flags a routine as matching its remote copy.
func (d *DB) MarkRoutineSynced(ctx context.Context, id string) error {
	return d.execAffectingOne(ctx, "mark routine synced", id, `UPDATE routines SET synced = 1 WHERE id = ?`, id)
}

// SetRoutineLocalOnly sets the local_only flag without touching sync metadata.
func (d *DB) SetRoutineLocalOnly(ctx context.Context, id string, localOnly bool) error {
	return d.execAffectingOne(ctx, "set routine local_only", id,
		`UPDATE routines SET local_only = ? WHERE id = ?`, boolToInt(localOnly), id)
}

func (d *DB) execAffectingOne(ctx context.Context, op, id, query string, args ...any) error {
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

func (d *DB) queryRoutines(ctx context.Context, query string, args ...any) ([]*models.Routine, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	defer rows.Close()

	var routines []*models.Routine
	for rows.Next() {
		r, err := scanRoutine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		routines = append(routines, r)
	}
	return routines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoutine(row rowScanner) (*models.Routine, error) {
	var r models.Routine
	var exercises string
	var lastModified int64
	var synced, localOnly int

	err := row.Scan(&r.ID, &r.Name, &r.Description, &exercises, &lastModified, &synced, &localOnly, &r.Version)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(exercises), &r.Exercises); err != nil {
		return nil, fmt.Errorf("unmarshal exercises: %w", err)
	}
	if r.Exercises == nil {
		r.Exercises = []models.RoutineExercise{}
	}
	r.LastModified = fromMillis(lastModified)
	r.Synced = synced != 0
	r.LocalOnly = localOnly != 0

	return &r, nil
}
