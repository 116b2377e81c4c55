// ABOUTME: Remote template source contract and the pure routine/template mapping.
// ABOUTME: Sources wrap every failure in *Error so the sync engine can log op and id.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/routines/internal/models"
)

var (
	// ErrNotFound is returned by a source when the addressed template does not exist.
	ErrNotFound = errors.New("remote record not found")
	// ErrConflict is returned by Create when a template with the same id exists.
	ErrConflict = errors.New("remote record already exists")
)

// Error is a failure reported by a remote source.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap builds an *Error, leaving nil and already-wrapped errors alone.
func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Op: op, ID: id, Err: err}
}

// Template is the remote representation of a routine.
type Template struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Description   string             `json:"description,omitempty"`
	Exercises     []TemplateExercise `json:"exercises"`
	ClientVersion int                `json:"client_version"`
	DeviceID      string             `json:"device_id,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// TemplateExercise is one exercise row inside a remote template.
type TemplateExercise struct {
	ID              string  `json:"id"`
	ExerciseID      string  `json:"exercise_id"`
	Position        int     `json:"position"`
	Sets            int     `json:"sets,omitempty"`
	Reps            int     `json:"reps,omitempty"`
	DurationSeconds int     `json:"duration_seconds,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	Weight          float64 `json:"weight,omitempty"`
	Resistance      string  `json:"resistance,omitempty"`
}

// Source is a remote template store.
type Source interface {
	Create(ctx context.Context, t *Template) (*Template, error)
	Update(ctx context.Context, id string, t *Template) (*Template, error)
	Delete(ctx context.Context, id string) error
	SelectAll(ctx context.Context) ([]*Template, error)
	// SelectExercises returns catalog entries for the given ids. Unknown ids are skipped.
	SelectExercises(ctx context.Context, ids []string) ([]*models.Exercise, error)
}

// Pinger is implemented by sources that can answer a cheap reachability check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ToTemplate maps a routine record onto the remote template shape.
func ToTemplate(r *models.Routine, deviceID string) (*Template, error) {
	if r == nil {
		return nil, fmt.Errorf("map routine: nil record")
	}
	if strings.TrimSpace(r.ID) == "" {
		return nil, fmt.Errorf("map routine: empty id")
	}
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("map routine %s: empty name", r.ID)
	}

	t := &Template{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Exercises:     make([]TemplateExercise, 0, len(r.Exercises)),
		ClientVersion: r.Version,
		DeviceID:      deviceID,
		UpdatedAt:     r.LastModified.UTC(),
	}
	for _, ex := range r.Exercises {
		if ex.ExerciseID == "" {
			return nil, fmt.Errorf("map routine %s: exercise %s has no exercise_id", r.ID, ex.ID)
		}
		t.Exercises = append(t.Exercises, TemplateExercise{
			ID:              ex.ID,
			ExerciseID:      ex.ExerciseID,
			Position:        ex.Order,
			Sets:            ex.Sets,
			Reps:            ex.Reps,
			DurationSeconds: ex.Duration,
			Notes:           ex.Notes,
			Weight:          ex.Weight,
			Resistance:      string(ex.Resistance),
		})
	}
	return t, nil
}

// FromTemplate maps a remote template back to a synced routine record.
func FromTemplate(t *Template) *models.Routine {
	r := &models.Routine{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		Exercises:    make([]models.RoutineExercise, 0, len(t.Exercises)),
		LastModified: t.UpdatedAt,
		Synced:       true,
		Version:      t.ClientVersion,
	}
	for _, ex := range t.Exercises {
		r.Exercises = append(r.Exercises, models.RoutineExercise{
			ID:         ex.ID,
			ExerciseID: ex.ExerciseID,
			Order:      ex.Position,
			Sets:       ex.Sets,
			Reps:       ex.Reps,
			Duration:   ex.DurationSeconds,
			Notes:      ex.Notes,
			Weight:     ex.Weight,
			Resistance: models.Resistance(ex.Resistance),
		})
	}
	if r.Version < 1 {
		r.Version = 1
	}
	return r
}
