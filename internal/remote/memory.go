// ABOUTME: In-process remote source used for tests and the "none" remote setting.
// ABOUTME: Supports failure injection per operation and records every call in order.
package remote

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/harperreed/routines/internal/models"
)

// ErrInjected is the default failure returned by Memory when an operation is set to fail.
var ErrInjected = errors.New("injected failure")

// Call is one recorded invocation of a Memory source.
type Call struct {
	Op string
	ID string
}

// Memory is a thread-safe in-memory Source.
type Memory struct {
	mu        sync.Mutex
	templates map[string]*Template
	exercises map[string]*models.Exercise
	calls     []Call
	failures  map[string]failure
}

type failure struct {
	err       error
	remaining int // <0 means forever
}

// NewMemory creates an empty in-memory source.
func NewMemory() *Memory {
	return &Memory{
		templates: make(map[string]*Template),
		exercises: make(map[string]*models.Exercise),
		failures:  make(map[string]failure),
	}
}

// FailAlways makes every call to op fail with err (ErrInjected when nil).
func (m *Memory) FailAlways(op string, err error) {
	m.FailTimes(op, -1, err)
}

// FailTimes makes the next n calls to op fail.
func (m *Memory) FailTimes(op string, n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == 0 {
		delete(m.failures, op)
		return
	}
	m.failures[op] = failure{err: err, remaining: n}
}

// Heal clears every injected failure.
func (m *Memory) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]failure)
}

// Calls returns a copy of the call log.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// PutExercise seeds the exercise catalog.
func (m *Memory) PutExercise(ex *models.Exercise) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ex
	m.exercises[ex.ID] = &c
}

// Template returns a copy of a stored template, or nil.
func (m *Memory) Template(id string) *Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil
	}
	return cloneTemplate(t)
}

// record logs the call and returns the injected failure for op, if any. Caller holds mu.
func (m *Memory) record(op, id string) error {
	m.calls = append(m.calls, Call{Op: op, ID: id})
	f, ok := m.failures[op]
	if !ok {
		return nil
	}
	switch {
	case f.remaining < 0:
	case f.remaining <= 1:
		delete(m.failures, op)
	default:
		f.remaining--
		m.failures[op] = f
	}
	return &Error{Op: op, ID: id, Err: f.err}
}

func (m *Memory) Create(_ context.Context, t *Template) (*Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create", t.ID); err != nil {
		return nil, err
	}
	if _, exists := m.templates[t.ID]; exists {
		return nil, &Error{Op: "create", ID: t.ID, Err: ErrConflict}
	}
	m.templates[t.ID] = cloneTemplate(t)
	return cloneTemplate(t), nil
}

func (m *Memory) Update(_ context.Context, id string, t *Template) (*Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("update", id); err != nil {
		return nil, err
	}
	if _, exists := m.templates[id]; !exists {
		return nil, &Error{Op: "update", ID: id, Err: ErrNotFound}
	}
	c := cloneTemplate(t)
	c.ID = id
	m.templates[id] = c
	return cloneTemplate(c), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete", id); err != nil {
		return err
	}
	if _, exists := m.templates[id]; !exists {
		return &Error{Op: "delete", ID: id, Err: ErrNotFound}
	}
	delete(m.templates, id)
	return nil
}

func (m *Memory) SelectAll(_ context.Context) ([]*Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("select", ""); err != nil {
		return nil, err
	}
	out := make([]*Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SelectExercises(_ context.Context, ids []string) ([]*models.Exercise, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("select_exercises", ""); err != nil {
		return nil, err
	}
	out := make([]*models.Exercise, 0, len(ids))
	for _, id := range ids {
		if ex, ok := m.exercises[id]; ok {
			c := *ex
			out = append(out, &c)
		}
	}
	return out, nil
}

func cloneTemplate(t *Template) *Template {
	c := *t
	c.Exercises = append([]TemplateExercise(nil), t.Exercises...)
	return &c
}

var _ Source = (*Memory)(nil)
