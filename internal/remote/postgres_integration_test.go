// ABOUTME: Integration tests for the Postgres remote source.
// ABOUTME: Skipped unless ROUTINES_POSTGRES_DSN points at a disposable database.
package remote

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/harperreed/routines/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("ROUTINES_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set ROUTINES_POSTGRES_DSN to run Postgres integration tests")
	}
	p, err := NewPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.Ping(context.Background()))
	return p
}

func TestNewPostgresRequiresDSN(t *testing.T) {
	_, err := NewPostgres("  ")
	assert.ErrorIs(t, err, ErrInvalidDSN)
}

func TestPostgresTemplateLifecycle(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	r := sampleRoutine()
	r.ID = "it-" + strings.ReplaceAll(t.Name(), "/", "-")
	_ = p.Delete(ctx, r.ID)

	tmpl, err := ToTemplate(r, "it-device")
	require.NoError(t, err)

	_, err = p.Create(ctx, tmpl)
	require.NoError(t, err)
	_, err = p.Create(ctx, tmpl)
	assert.ErrorIs(t, err, ErrConflict)

	tmpl.Name = "Updated"
	_, err = p.Update(ctx, r.ID, tmpl)
	require.NoError(t, err)

	all, err := p.SelectAll(ctx)
	require.NoError(t, err)
	var found *Template
	for _, got := range all {
		if got.ID == r.ID {
			found = got
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "Updated", found.Name)
	assert.Len(t, found.Exercises, 2)

	require.NoError(t, p.Delete(ctx, r.ID))
	assert.True(t, errors.Is(p.Delete(ctx, r.ID), ErrNotFound))
	_, err = p.Update(ctx, r.ID, tmpl)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPostgresSelectExercises(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	require.NoError(t, p.PutExercise(ctx, &models.Exercise{ID: "it-ex-1", Name: "Hundred", ThumbnailURL: "https://cdn/x.jpg"}))

	got, err := p.SelectExercises(ctx, []string{"it-ex-1", "it-missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://cdn/x.jpg", got[0].ThumbnailURL)

	none, err := p.SelectExercises(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
