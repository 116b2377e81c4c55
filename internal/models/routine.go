// ABOUTME: Routine and RoutineExercise models for Pilates/fitness routines.
// ABOUTME: Exercises are ordered; Order is dense from 0 and follows slice position.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRoutine is returned when a routine fails structural validation.
var ErrInvalidRoutine = errors.New("invalid routine")

// Resistance is the spring/band resistance for an exercise placement.
type Resistance string

const (
	ResistanceNone   Resistance = ""
	ResistanceLight  Resistance = "light"
	ResistanceMedium Resistance = "medium"
	ResistanceHeavy  Resistance = "heavy"
)

// AllResistances lists the non-empty resistance levels.
var AllResistances = []Resistance{ResistanceLight, ResistanceMedium, ResistanceHeavy}

// IsValidResistance checks if a string is a valid resistance (empty is allowed).
func IsValidResistance(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range AllResistances {
		if string(r) == strings.ToLower(s) {
			return true
		}
	}
	return false
}

// RoutineExercise is one exercise placement inside a routine.
type RoutineExercise struct {
	ID         string     `json:"id" yaml:"id"`
	ExerciseID string     `json:"exercise_id" yaml:"exercise_id"`
	Order      int        `json:"order" yaml:"order"`
	Sets       int        `json:"sets,omitempty" yaml:"sets,omitempty"`
	Reps       int        `json:"reps,omitempty" yaml:"reps,omitempty"`
	Duration   int        `json:"duration,omitempty" yaml:"duration,omitempty"` // seconds
	Notes      string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	Weight     float64    `json:"weight,omitempty" yaml:"weight,omitempty"`
	Resistance Resistance `json:"resistance,omitempty" yaml:"resistance,omitempty"`
}

// Routine is a locally persisted workout definition.
type Routine struct {
	ID           string            `json:"id" yaml:"id"`
	Name         string            `json:"name" yaml:"name"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
	Exercises    []RoutineExercise `json:"exercises" yaml:"exercises"`
	LastModified time.Time         `json:"last_modified" yaml:"last_modified"`
	Synced       bool              `json:"synced" yaml:"synced"`
	LocalOnly    bool              `json:"local_only,omitempty" yaml:"local_only,omitempty"`
	Version      int               `json:"version" yaml:"version"`
}

// RoutineDraft is a routine without sync metadata, as supplied by callers of Save.
type RoutineDraft struct {
	ID          string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Exercises   []RoutineExercise `json:"exercises" yaml:"exercises"`
}

// RoutineUpdate is a partial update. Nil fields are left unchanged;
// a non-nil Exercises slice (even empty) replaces the exercise list.
type RoutineUpdate struct {
	Name        *string
	Description *string
	Exercises   []RoutineExercise
}

// NewRoutine builds an unsaved routine from a draft. Metadata is stamped by the caller.
func NewRoutine(d RoutineDraft) (*Routine, error) {
	r := &Routine{
		ID:          strings.TrimSpace(d.ID),
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Exercises:   cloneExercises(d.Exercises),
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if err := r.Normalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// Apply merges a partial update into the routine. Metadata is not touched.
func (r *Routine) Apply(u RoutineUpdate) error {
	if u.Name != nil {
		r.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		r.Description = *u.Description
	}
	if u.Exercises != nil {
		r.Exercises = cloneExercises(u.Exercises)
	}
	return r.Normalize()
}

// Normalize rewrites exercise orders to their slice position, fills missing
// entry ids, and validates names and resistance levels.
func (r *Routine) Normalize() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRoutine)
	}
	if r.Exercises == nil {
		r.Exercises = []RoutineExercise{}
	}
	for i := range r.Exercises {
		ex := &r.Exercises[i]
		if strings.TrimSpace(ex.ExerciseID) == "" {
			return fmt.Errorf("%w: exercise %d has no exercise_id", ErrInvalidRoutine, i)
		}
		if !IsValidResistance(string(ex.Resistance)) {
			return fmt.Errorf("%w: unknown resistance %q", ErrInvalidRoutine, ex.Resistance)
		}
		ex.Resistance = Resistance(strings.ToLower(string(ex.Resistance)))
		if ex.ID == "" {
			ex.ID = uuid.New().String()
		}
		ex.Order = i
	}
	return nil
}

// ValidateOrder checks that exercise orders are unique and dense from 0.
func (r *Routine) ValidateOrder() error {
	seen := make([]bool, len(r.Exercises))
	for _, ex := range r.Exercises {
		if ex.Order < 0 || ex.Order >= len(r.Exercises) || seen[ex.Order] {
			return fmt.Errorf("%w: exercise order %d out of sequence", ErrInvalidRoutine, ex.Order)
		}
		seen[ex.Order] = true
	}
	return nil
}

// ExerciseIDs returns the distinct catalog ids referenced by the routine, in order.
func (r *Routine) ExerciseIDs() []string {
	seen := make(map[string]bool, len(r.Exercises))
	var ids []string
	for _, ex := range r.Exercises {
		if seen[ex.ExerciseID] {
			continue
		}
		seen[ex.ExerciseID] = true
		ids = append(ids, ex.ExerciseID)
	}
	return ids
}

// Clone returns a deep copy of the routine.
func (r *Routine) Clone() *Routine {
	c := *r
	c.Exercises = cloneExercises(r.Exercises)
	return &c
}

func cloneExercises(in []RoutineExercise) []RoutineExercise {
	if in == nil {
		return nil
	}
	out := make([]RoutineExercise, len(in))
	copy(out, in)
	return out
}
