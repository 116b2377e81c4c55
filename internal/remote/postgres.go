// ABOUTME: Postgres-backed remote source using lib/pq.
// ABOUTME: Stores templates with a jsonb exercise list next to a read-only exercise catalog.
package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/harperreed/routines/internal/models"
	"github.com/lib/pq"
)

const (
	postgresTemplatesTable   = "templates"
	postgresExercisesTable   = "exercises"
	postgresOperationTimeout = 5 * time.Second
)

// ErrInvalidDSN is returned when a Postgres source is built without a DSN.
var ErrInvalidDSN = errors.New("postgres dsn is required")

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Postgres is a Source backed by a Postgres database.
// Tables are created lazily on first use.
type Postgres struct {
	dsn    string
	openDB sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgres creates a Postgres source. No connection is made until first use.
func NewPostgres(dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidDSN
	}
	return &Postgres{dsn: dsn, openDB: sql.Open}, nil
}

// Close closes the underlying pool.
func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.ensureReady(); err != nil {
		return wrap("ping", "", err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()
	return wrap("ping", "", p.db.PingContext(ctx))
}

func (p *Postgres) Create(ctx context.Context, t *Template) (*Template, error) {
	if err := p.ensureReady(); err != nil {
		return nil, wrap("create", t.ID, err)
	}
	exercises, err := json.Marshal(t.Exercises)
	if err != nil {
		return nil, wrap("create", t.ID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, description, exercises, client_version, device_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING updated_at`, pq.QuoteIdentifier(postgresTemplatesTable))
	out := *t
	err = p.db.QueryRowContext(ctx, query,
		t.ID, t.Name, t.Description, string(exercises), t.ClientVersion, t.DeviceID, t.UpdatedAt,
	).Scan(&out.UpdatedAt)
	if isUniqueViolation(err) {
		return nil, wrap("create", t.ID, ErrConflict)
	}
	if err != nil {
		return nil, wrap("create", t.ID, err)
	}
	return &out, nil
}

// isUniqueViolation reports a primary key clash (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (p *Postgres) Update(ctx context.Context, id string, t *Template) (*Template, error) {
	if err := p.ensureReady(); err != nil {
		return nil, wrap("update", id, err)
	}
	exercises, err := json.Marshal(t.Exercises)
	if err != nil {
		return nil, wrap("update", id, err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	// Last writer wins: client_version is recorded, never compared.
	query := fmt.Sprintf(`
		UPDATE %s
		SET name = $2, description = $3, exercises = $4, client_version = $5, device_id = $6, updated_at = $7
		WHERE id = $1`, pq.QuoteIdentifier(postgresTemplatesTable))
	result, err := p.db.ExecContext(ctx, query,
		id, t.Name, t.Description, string(exercises), t.ClientVersion, t.DeviceID, t.UpdatedAt,
	)
	if err != nil {
		return nil, wrap("update", id, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return nil, wrap("update", id, err)
	} else if n == 0 {
		return nil, wrap("update", id, ErrNotFound)
	}
	out := *t
	out.ID = id
	return &out, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	if err := p.ensureReady(); err != nil {
		return wrap("delete", id, err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", pq.QuoteIdentifier(postgresTemplatesTable))
	result, err := p.db.ExecContext(ctx, query, id)
	if err != nil {
		return wrap("delete", id, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return wrap("delete", id, err)
	} else if n == 0 {
		return wrap("delete", id, ErrNotFound)
	}
	return nil
}

func (p *Postgres) SelectAll(ctx context.Context) ([]*Template, error) {
	if err := p.ensureReady(); err != nil {
		return nil, wrap("select", "", err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, name, description, exercises, client_version, device_id, updated_at
		FROM %s ORDER BY id`, pq.QuoteIdentifier(postgresTemplatesTable))
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrap("select", "", err)
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		var (
			t         Template
			exercises []byte
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &exercises, &t.ClientVersion, &t.DeviceID, &t.UpdatedAt); err != nil {
			return nil, wrap("select", "", err)
		}
		if err := json.Unmarshal(exercises, &t.Exercises); err != nil {
			return nil, wrap("select", t.ID, fmt.Errorf("decode exercises: %w", err))
		}
		templates = append(templates, &t)
	}
	return templates, wrap("select", "", rows.Err())
}

func (p *Postgres) SelectExercises(ctx context.Context, ids []string) ([]*models.Exercise, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if err := p.ensureReady(); err != nil {
		return nil, wrap("select_exercises", "", err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		SELECT id, name, thumbnail_url, video_url
		FROM %s WHERE id = ANY($1) ORDER BY id`, pq.QuoteIdentifier(postgresExercisesTable))
	rows, err := p.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, wrap("select_exercises", "", err)
	}
	defer rows.Close()

	var exercises []*models.Exercise
	for rows.Next() {
		var ex models.Exercise
		if err := rows.Scan(&ex.ID, &ex.Name, &ex.ThumbnailURL, &ex.VideoURL); err != nil {
			return nil, wrap("select_exercises", "", err)
		}
		exercises = append(exercises, &ex)
	}
	return exercises, wrap("select_exercises", "", rows.Err())
}

// PutExercise upserts a catalog entry. Used for seeding.
func (p *Postgres) PutExercise(ctx context.Context, ex *models.Exercise) error {
	if err := p.ensureReady(); err != nil {
		return wrap("put_exercise", ex.ID, err)
	}
	ctx, cancel := context.WithTimeout(ctx, postgresOperationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, thumbnail_url, video_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, thumbnail_url = EXCLUDED.thumbnail_url, video_url = EXCLUDED.video_url`,
		pq.QuoteIdentifier(postgresExercisesTable))
	_, err := p.db.ExecContext(ctx, query, ex.ID, ex.Name, ex.ThumbnailURL, ex.VideoURL)
	return wrap("put_exercise", ex.ID, err)
}

func (p *Postgres) ensureReady() error {
	p.initOnce.Do(func() {
		db, err := p.openDB("postgres", p.dsn)
		if err != nil {
			p.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresOperationTimeout)
		defer cancel()

		statements := []string{
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					exercises JSONB NOT NULL DEFAULT '[]',
					client_version INTEGER NOT NULL DEFAULT 1,
					device_id TEXT NOT NULL DEFAULT '',
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				)`, pq.QuoteIdentifier(postgresTemplatesTable)),
			fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %s (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					thumbnail_url TEXT NOT NULL DEFAULT '',
					video_url TEXT NOT NULL DEFAULT ''
				)`, pq.QuoteIdentifier(postgresExercisesTable)),
		}
		for _, stmt := range statements {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				_ = db.Close()
				p.initErr = err
				return
			}
		}
		p.db = db
	})
	return p.initErr
}

var (
	_ Source = (*Postgres)(nil)
	_ Pinger = (*Postgres)(nil)
)
