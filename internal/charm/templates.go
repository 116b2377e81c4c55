// ABOUTME: Template and exercise catalog operations over Charm KV.
// ABOUTME: Implements remote.Source with template:<id> and exercise:<id> keys.
package charm

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/harperreed/routines/internal/models"
	"github.com/harperreed/routines/internal/remote"
)

func templateKey(id string) string { return TemplatePrefix + id }
func exerciseKey(id string) string { return ExercisePrefix + id }

// Create stores a new template. Fails if the id is already present.
func (s *Source) Create(_ context.Context, t *remote.Template) (*remote.Template, error) {
	exists, err := s.has(templateKey(t.ID))
	if err != nil {
		return nil, &remote.Error{Op: "create", ID: t.ID, Err: err}
	}
	if exists {
		return nil, &remote.Error{Op: "create", ID: t.ID, Err: remote.ErrConflict}
	}
	if err := s.putTemplate(t); err != nil {
		return nil, &remote.Error{Op: "create", ID: t.ID, Err: err}
	}
	out := *t
	return &out, nil
}

// Update overwrites an existing template.
func (s *Source) Update(_ context.Context, id string, t *remote.Template) (*remote.Template, error) {
	exists, err := s.has(templateKey(id))
	if err != nil {
		return nil, &remote.Error{Op: "update", ID: id, Err: err}
	}
	if !exists {
		return nil, &remote.Error{Op: "update", ID: id, Err: remote.ErrNotFound}
	}
	out := *t
	out.ID = id
	if err := s.putTemplate(&out); err != nil {
		return nil, &remote.Error{Op: "update", ID: id, Err: err}
	}
	return &out, nil
}

// Delete removes a template.
func (s *Source) Delete(_ context.Context, id string) error {
	exists, err := s.has(templateKey(id))
	if err != nil {
		return &remote.Error{Op: "delete", ID: id, Err: err}
	}
	if !exists {
		return &remote.Error{Op: "delete", ID: id, Err: remote.ErrNotFound}
	}
	if err := s.delete(templateKey(id)); err != nil {
		return &remote.Error{Op: "delete", ID: id, Err: err}
	}
	return nil
}

// SelectAll returns every template, ordered by id.
func (s *Source) SelectAll(_ context.Context) ([]*remote.Template, error) {
	values, err := s.listByPrefix(TemplatePrefix)
	if err != nil {
		return nil, &remote.Error{Op: "select", Err: err}
	}

	templates := make([]*remote.Template, 0, len(values))
	for _, v := range values {
		t, err := unmarshalJSON[remote.Template](v)
		if err != nil {
			continue // Skip invalid entries
		}
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}

// SelectExercises returns catalog entries for ids, skipping unknown ones.
func (s *Source) SelectExercises(_ context.Context, ids []string) ([]*models.Exercise, error) {
	exercises := make([]*models.Exercise, 0, len(ids))
	for _, id := range ids {
		data, ok, err := s.get(exerciseKey(id))
		if err != nil {
			return nil, &remote.Error{Op: "select_exercises", ID: id, Err: err}
		}
		if !ok {
			continue
		}
		ex, err := unmarshalJSON[models.Exercise](data)
		if err != nil {
			return nil, &remote.Error{Op: "select_exercises", ID: id, Err: err}
		}
		exercises = append(exercises, ex)
	}
	return exercises, nil
}

// PutExercise upserts a catalog entry.
func (s *Source) PutExercise(_ context.Context, ex *models.Exercise) error {
	data, err := json.Marshal(ex)
	if err != nil {
		return err
	}
	if err := s.set(exerciseKey(ex.ID), data); err != nil {
		return &remote.Error{Op: "put_exercise", ID: ex.ID, Err: err}
	}
	return nil
}

// Ping pulls from Charm Cloud as a reachability check.
func (s *Source) Ping(_ context.Context) error {
	if err := s.Sync(); err != nil {
		return &remote.Error{Op: "ping", Err: err}
	}
	return nil
}

// TemplateIDs lists the ids of every stored template.
func (s *Source) TemplateIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys, err := s.kv.Keys()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		key := string(k)
		if len(key) > len(TemplatePrefix) && key[:len(TemplatePrefix)] == TemplatePrefix {
			ids = append(ids, extractID(key, TemplatePrefix))
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Source) putTemplate(t *remote.Template) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.set(templateKey(t.ID), data)
}

var (
	_ remote.Source = (*Source)(nil)
	_ remote.Pinger = (*Source)(nil)
)
