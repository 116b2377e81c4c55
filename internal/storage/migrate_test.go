// ABOUTME: Tests for data migration between storage backends.
// ABOUTME: Covers sqlite-to-badger and badger-to-sqlite, including media blobs and queue order.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/routines/internal/models"
)

func populate(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	now := ms(time.Now())

	if err := repo.PutRoutine(ctx, testRoutine("r1", "Core", now)); err != nil {
		t.Fatalf("PutRoutine failed: %v", err)
	}
	if err := repo.PutMedia(ctx, models.NewMediaEntry("https://cdn.example/a.jpg", models.MediaImage, []byte("jpeg"), now)); err != nil {
		t.Fatalf("PutMedia failed: %v", err)
	}
	for _, id := range []string{"01B", "01A"} {
		e, err := models.NewQueueEntry(id, models.DeleteRoutine{ID: "r-" + id}, now)
		if err != nil {
			t.Fatalf("NewQueueEntry failed: %v", err)
		}
		if err := repo.PutQueueEntry(ctx, e); err != nil {
			t.Fatalf("PutQueueEntry failed: %v", err)
		}
	}
}

func assertMigrated(t *testing.T, dst Repository, summary *MigrateSummary) {
	t.Helper()
	ctx := context.Background()

	if summary.Routines != 1 || summary.Media != 1 || summary.QueueEntries != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	r, err := dst.GetRoutine(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRoutine failed: %v", err)
	}
	if len(r.Exercises) != 2 {
		t.Errorf("expected 2 exercises, got %d", len(r.Exercises))
	}

	m, err := dst.GetMedia(ctx, "https://cdn.example/a.jpg")
	if err != nil {
		t.Fatalf("GetMedia failed: %v", err)
	}
	if string(m.Blob) != "jpeg" {
		t.Errorf("blob not migrated: %q", m.Blob)
	}

	q, err := dst.ListQueue(ctx, models.EntityRoutine)
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	if len(q) != 2 || q[0].ID != "01A" {
		t.Errorf("queue order not preserved")
	}
}

func TestMigrateDataSQLiteToBadger(t *testing.T) {
	src := setupTestDB(t)
	defer src.Close()
	populate(t, src)

	dst, err := OpenBadger(filepath.Join(t.TempDir(), "badger"))
	if err != nil {
		t.Fatalf("OpenBadger failed: %v", err)
	}
	defer dst.Close()

	summary, err := MigrateData(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("MigrateData failed: %v", err)
	}
	assertMigrated(t, dst, summary)
}

func TestMigrateDataBadgerToSQLite(t *testing.T) {
	src, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger failed: %v", err)
	}
	defer src.Close()
	populate(t, src)

	dst := setupTestDB(t)
	defer dst.Close()

	summary, err := MigrateData(context.Background(), src, dst)
	if err != nil {
		t.Fatalf("MigrateData failed: %v", err)
	}
	assertMigrated(t, dst, summary)
}

func TestIsDirNonEmpty(t *testing.T) {
	dir := t.TempDir()

	nonEmpty, err := IsDirNonEmpty(filepath.Join(dir, "missing"))
	if err != nil || nonEmpty {
		t.Errorf("missing dir: got %v, %v", nonEmpty, err)
	}

	nonEmpty, err = IsDirNonEmpty(dir)
	if err != nil || nonEmpty {
		t.Errorf("empty dir: got %v, %v", nonEmpty, err)
	}

	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	nonEmpty, err = IsDirNonEmpty(dir)
	if err != nil || !nonEmpty {
		t.Errorf("non-empty dir: got %v, %v", nonEmpty, err)
	}
}
