// ABOUTME: Tests for CLI helper functions and command execution.
// ABOUTME: Runs commands against temp XDG dirs and checks the resulting store state.
package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harperreed/routines/internal/config"
	"github.com/harperreed/routines/internal/models"
	"github.com/harperreed/routines/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"date and time with space", "2025-01-31 08:30", false},
		{"date and time with T", "2025-01-31T08:30", false},
		{"date only", "2025-01-31", false},
		{"RFC3339", "2025-01-31T08:30:00Z", false},
		{"RFC3339 with offset", "2025-01-31T08:30:00+05:00", false},
		{"invalid format", "31-01-2025", true},
		{"invalid random string", "not a date", true},
		{"empty string", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseTime(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseTime(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("parseTime(%q) unexpected error: %v", tt.input, err)
				return
			}
			if result.IsZero() {
				t.Errorf("parseTime(%q) returned zero time", tt.input)
			}
		})
	}
}

func TestParseTimeValues(t *testing.T) {
	result, err := parseTime("2025-06-15")
	if err != nil {
		t.Fatalf("parseTime failed: %v", err)
	}
	if result.Year() != 2025 || result.Month() != time.June || result.Day() != 15 {
		t.Errorf("parseTime returned wrong date: got %v", result)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world this is long", 10, "hello w..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("abc", 6); got != "abc   " {
		t.Errorf("padRight = %q", got)
	}
	if got := padRight("abcdef", 3); got != "abcdef" {
		t.Errorf("padRight should not truncate, got %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}

func TestParseExerciseSpec(t *testing.T) {
	tests := []struct {
		spec    string
		want    models.RoutineExercise
		wantErr bool
	}{
		{spec: "squat", want: models.RoutineExercise{ExerciseID: "squat"}},
		{spec: "squat:5x5", want: models.RoutineExercise{ExerciseID: "squat", Sets: 5, Reps: 5}},
		{spec: "squat:5x5@102.5", want: models.RoutineExercise{ExerciseID: "squat", Sets: 5, Reps: 5, Weight: 102.5}},
		{spec: "plank:60s", want: models.RoutineExercise{ExerciseID: "plank", Duration: 60}},
		{spec: "pushup:20", want: models.RoutineExercise{ExerciseID: "pushup", Reps: 20}},
		{spec: "band-row:3x12/Light", want: models.RoutineExercise{ExerciseID: "band-row", Sets: 3, Reps: 12, Resistance: models.ResistanceLight}},
		{spec: "sled@80/heavy", want: models.RoutineExercise{ExerciseID: "sled", Weight: 80, Resistance: models.ResistanceHeavy}},
		{spec: "", wantErr: true},
		{spec: ":5x5", wantErr: true},
		{spec: "squat:0x5", wantErr: true},
		{spec: "squat:fivexfive", wantErr: true},
		{spec: "plank:-1s", wantErr: true},
		{spec: "squat@heavy", wantErr: true},
		{spec: "squat/extreme", wantErr: true},
		{spec: "squat/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := parseExerciseSpec(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseExerciseSpec(%q) expected error, got %+v", tt.spec, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExerciseSpec(%q) unexpected error: %v", tt.spec, err)
			}
			if got != tt.want {
				t.Errorf("parseExerciseSpec(%q) = %+v, want %+v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestFormatDose(t *testing.T) {
	tests := []struct {
		ex   models.RoutineExercise
		want string
	}{
		{models.RoutineExercise{Sets: 5, Reps: 5, Weight: 100}, "5x5@100"},
		{models.RoutineExercise{Duration: 60}, "60s"},
		{models.RoutineExercise{Reps: 20}, "20"},
		{models.RoutineExercise{Sets: 3}, "3 sets"},
		{models.RoutineExercise{Sets: 3, Reps: 12, Resistance: models.ResistanceLight}, "3x12/light"},
		{models.RoutineExercise{}, ""},
	}
	for _, tt := range tests {
		if got := formatDose(tt.ex); got != tt.want {
			t.Errorf("formatDose(%+v) = %q, want %q", tt.ex, got, tt.want)
		}
	}
}

func TestRootCmd(t *testing.T) {
	if rootCmd.Use != "routines" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "routines")
	}
	if rootCmd.Short == "" || rootCmd.Long == "" {
		t.Error("Expected rootCmd descriptions to be non-empty")
	}
	for _, name := range []string{"data-dir", "backend", "remote", "offline", "log-level"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent --%s flag", name)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"add", "list", "show", "update", "delete", "exercise", "sync", "media", "export", "import", "migrate", "mcp", "config", "install-skill"} {
		if !names[want] {
			t.Errorf("Expected %q command to be registered", want)
		}
	}
}

func TestSyncCmdSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range syncCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"now", "status", "pull", "watch", "link", "unlink", "repair", "reset", "wipe"} {
		if !names[want] {
			t.Errorf("Expected sync subcommand %q", want)
		}
	}
}

func TestNeedsEngine(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		want bool
	}{
		{listCmd, true},
		{syncNowCmd, true},
		{mediaCleanupCmd, true},
		{syncLinkCmd, false},
		{syncWipeCmd, false},
		{configShowCmd, false},
		{installSkillCmd, false},
	}
	for _, tt := range tests {
		if got := needsEngine(tt.cmd); got != tt.want {
			t.Errorf("needsEngine(%s) = %v, want %v", tt.cmd.CommandPath(), got, tt.want)
		}
	}
}

func TestListCmdFlags(t *testing.T) {
	limitFlag := listCmd.Flags().Lookup("limit")
	if limitFlag == nil {
		t.Fatal("Expected --limit flag on list command")
	}
	if limitFlag.DefValue != "20" {
		t.Errorf("Expected default limit 20, got %s", limitFlag.DefValue)
	}
	for _, name := range []string{"name", "unsynced", "since"} {
		if listCmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected --%s flag on list command", name)
		}
	}
}

func TestExportCmdValidArgs(t *testing.T) {
	want := map[string]bool{"json": true, "yaml": true}
	if len(exportCmd.ValidArgs) != len(want) {
		t.Fatalf("Expected %d valid args, got %v", len(want), exportCmd.ValidArgs)
	}
	for _, a := range exportCmd.ValidArgs {
		if !want[a] {
			t.Errorf("Unexpected valid arg %q", a)
		}
	}
}

// resetCLIState clears flag variables and Changed marks left by earlier Execute calls.
func resetCLIState() {
	flagDataDir, flagBackend, flagRemote, flagLogLevel = "", "", "", ""
	flagOffline = false

	addDescription, addExercises = "", nil
	listName, listUnsynced, listSince, listLimit = "", false, "", 20
	updateName, updateDescription, updateExercises = "", "", nil
	exerciseNotes = ""
	mediaType, mediaOutput, mediaMaxAgeDays, mediaMaxSizeMB = string(models.MediaImage), "", 0, 0
	exportOutput = ""
	migrateTo, migrateDryRun, migrateSwitch = config.BackendBadger, false, false

	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		c.PersistentFlags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)
}

// setupTestCLI points XDG dirs at a temp directory and returns the data dir.
func setupTestCLI(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("ROUTINES_REMOTE", "")
	t.Setenv("ROUTINES_DATA_DIR", "")
	t.Setenv("ROUTINES_POSTGRES_DSN", "")

	resetCLIState()
	t.Cleanup(resetCLIState)
	return filepath.Join(tmpDir, "data", "routines")
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	resetCLIState()
	rootCmd.SetArgs(args)
	return Execute()
}

func mustRun(t *testing.T, args ...string) {
	t.Helper()
	if err := run(t, args...); err != nil {
		t.Fatalf("%v failed: %v", args, err)
	}
}

// openStore opens the SQLite store a command just closed.
func openStore(t *testing.T, dataDir string) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(dataDir, "routines.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func onlyRoutine(t *testing.T, db *storage.DB) *models.Routine {
	t.Helper()
	routines, err := db.ListRoutines(context.Background())
	if err != nil {
		t.Fatalf("ListRoutines failed: %v", err)
	}
	if len(routines) != 1 {
		t.Fatalf("Expected 1 routine, got %d", len(routines))
	}
	return routines[0]
}

func queueLen(t *testing.T, db *storage.DB) int {
	t.Helper()
	n, err := db.CountQueue(context.Background())
	if err != nil {
		t.Fatalf("CountQueue failed: %v", err)
	}
	return n
}

func TestAddCmdWithDB(t *testing.T) {
	dataDir := setupTestCLI(t)

	mustRun(t, "add", "Leg Day", "-d", "lower body", "-e", "squat:5x5@100", "-e", "plank:60s")

	db := openStore(t, dataDir)
	r := onlyRoutine(t, db)
	if r.Name != "Leg Day" || r.Description != "lower body" {
		t.Errorf("Unexpected routine: %+v", r)
	}
	if len(r.Exercises) != 2 {
		t.Fatalf("Expected 2 exercises, got %d", len(r.Exercises))
	}
	if r.Exercises[0].ExerciseID != "squat" || r.Exercises[0].Weight != 100 || r.Exercises[1].Duration != 60 {
		t.Errorf("Unexpected exercises: %+v", r.Exercises)
	}
	if r.Synced {
		t.Error("Expected routine to be unsynced with no remote")
	}
	if r.Version != 1 {
		t.Errorf("Expected version 1, got %d", r.Version)
	}
	if queueLen(t, db) != 1 {
		t.Errorf("Expected 1 queued change, got %d", queueLen(t, db))
	}
}

func TestAddCmdGeneratesDeviceID(t *testing.T) {
	setupTestCLI(t)

	mustRun(t, "add", "Anything")

	cfg, err := config.LoadFile()
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.DeviceID == "" {
		t.Error("Expected a device id to be persisted")
	}
}

func TestFlagOverridesAreNotPersisted(t *testing.T) {
	setupTestCLI(t)
	dataDir := filepath.Join(t.TempDir(), "elsewhere")

	mustRun(t, "--data-dir", dataDir, "--remote", "none", "add", "Flagged")

	cfg, err := config.LoadFile()
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.DataDir != "" || cfg.Remote != "" {
		t.Errorf("Flag values leaked into config: %+v", cfg)
	}
	if cfg.DeviceID == "" {
		t.Error("Expected device id to be persisted")
	}

	db := openStore(t, dataDir)
	onlyRoutine(t, db)
}

func TestAddCmdInvalidExercise(t *testing.T) {
	dataDir := setupTestCLI(t)

	if err := run(t, "add", "Bad", "-e", "squat:lots"); err == nil {
		t.Error("Expected error for invalid exercise spec")
	}
	db := openStore(t, dataDir)
	if queueLen(t, db) != 0 {
		t.Error("Nothing should be queued after a failed add")
	}
}

func TestAddCmdEmptyName(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "add", "   "); err == nil {
		t.Error("Expected error for blank name")
	}
}

func TestListCmdWithDB(t *testing.T) {
	setupTestCLI(t)

	mustRun(t, "add", "Leg Day")
	mustRun(t, "add", "Arm Day")

	mustRun(t, "list")
	mustRun(t, "list", "--name", "leg day")
	mustRun(t, "list", "--unsynced")
	mustRun(t, "list", "--since", "2000-01-01")
	mustRun(t, "list", "-n", "1")
}

func TestListCmdEmptyDB(t *testing.T) {
	setupTestCLI(t)
	mustRun(t, "list")
}

func TestListCmdInvalidSince(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "list", "--since", "yesterday"); err == nil {
		t.Error("Expected error for invalid --since")
	}
}

func TestShowCmdByPrefix(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Core", "-e", "plank:60s")

	db := openStore(t, dataDir)
	r := onlyRoutine(t, db)
	db.Close()

	mustRun(t, "show", r.ID[:6])
	mustRun(t, "show", r.ID)
}

func TestShowCmdNotFound(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "show", "doesnotexist"); err == nil {
		t.Error("Expected error for missing routine")
	}
}

func TestUpdateCmd(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Old", "-e", "squat")

	db := openStore(t, dataDir)
	id := onlyRoutine(t, db).ID
	db.Close()

	mustRun(t, "update", id, "--name", "New", "-e", "deadlift:1x5@140", "-e", "row:3x8")

	db = openStore(t, dataDir)
	r := onlyRoutine(t, db)
	if r.Name != "New" || r.Version != 2 {
		t.Errorf("Unexpected routine after update: %+v", r)
	}
	if len(r.Exercises) != 2 || r.Exercises[0].ExerciseID != "deadlift" {
		t.Errorf("Expected exercises replaced, got %+v", r.Exercises)
	}
	if queueLen(t, db) != 2 {
		t.Errorf("Expected 2 queued changes, got %d", queueLen(t, db))
	}
}

func TestUpdateCmdDescriptionOnlyKeepsExercises(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Keep", "-e", "squat", "-e", "lunge")

	db := openStore(t, dataDir)
	id := onlyRoutine(t, db).ID
	db.Close()

	mustRun(t, "update", id, "-d", "new words")

	db = openStore(t, dataDir)
	r := onlyRoutine(t, db)
	if r.Description != "new words" || len(r.Exercises) != 2 || r.Name != "Keep" {
		t.Errorf("Unexpected routine: %+v", r)
	}
}

func TestUpdateCmdNothingToUpdate(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Same")

	db := openStore(t, dataDir)
	id := onlyRoutine(t, db).ID
	db.Close()

	if err := run(t, "update", id); err == nil {
		t.Error("Expected error when no flags are passed")
	}
}

func TestDeleteCmd(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Doomed")

	db := openStore(t, dataDir)
	id := onlyRoutine(t, db).ID
	db.Close()

	mustRun(t, "delete", id[:8])

	db = openStore(t, dataDir)
	routines, _ := db.ListRoutines(context.Background())
	if len(routines) != 0 {
		t.Errorf("Expected routine deleted, got %d", len(routines))
	}
	if queueLen(t, db) != 2 {
		t.Errorf("Expected create and delete queued, got %d", queueLen(t, db))
	}
}

func TestDeleteCmdNotFound(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "delete", "nope"); err == nil {
		t.Error("Expected error for missing routine")
	}
}

func TestExerciseAddAndRemove(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Circuit", "-e", "a", "-e", "b")

	db := openStore(t, dataDir)
	id := onlyRoutine(t, db).ID
	db.Close()

	mustRun(t, "exercise", "add", id, "c:3x10", "--notes", "slow")

	db = openStore(t, dataDir)
	r := onlyRoutine(t, db)
	if len(r.Exercises) != 3 || r.Exercises[2].ExerciseID != "c" || r.Exercises[2].Notes != "slow" {
		t.Fatalf("Unexpected exercises after add: %+v", r.Exercises)
	}
	db.Close()

	mustRun(t, "exercise", "remove", id, "1")

	db = openStore(t, dataDir)
	r = onlyRoutine(t, db)
	if len(r.Exercises) != 2 || r.Exercises[0].ExerciseID != "b" {
		t.Fatalf("Unexpected exercises after remove: %+v", r.Exercises)
	}
	for i, ex := range r.Exercises {
		if ex.Order != i {
			t.Errorf("exercise %d has order %d", i, ex.Order)
		}
	}
	if r.Version != 3 {
		t.Errorf("Expected version 3, got %d", r.Version)
	}
}

func TestExerciseRemoveInvalidPosition(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Short", "-e", "a")

	db := openStore(t, dataDir)
	id := onlyRoutine(t, db).ID
	db.Close()

	for _, pos := range []string{"0", "2", "x"} {
		if err := run(t, "exercise", "remove", id, pos); err == nil {
			t.Errorf("Expected error for position %q", pos)
		}
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	setupTestCLI(t)
	mustRun(t, "add", "Portable", "-e", "squat:5x5")

	backup := filepath.Join(t.TempDir(), "backup.json")
	mustRun(t, "export", "json", "-o", backup)
	if _, err := os.Stat(backup); err != nil {
		t.Fatalf("Expected export file: %v", err)
	}

	dataDir := setupTestCLI(t)
	mustRun(t, "import", backup)

	db := openStore(t, dataDir)
	r := onlyRoutine(t, db)
	if r.Name != "Portable" || len(r.Exercises) != 1 {
		t.Errorf("Unexpected imported routine: %+v", r)
	}
	if r.Synced || queueLen(t, db) != 1 {
		t.Error("Imported routine should be queued for sync")
	}
	db.Close()

	// A second import skips the existing id.
	mustRun(t, "import", backup)
	db = openStore(t, dataDir)
	if queueLen(t, db) != 1 {
		t.Errorf("Expected duplicate import to be skipped, queue has %d", queueLen(t, db))
	}
}

func TestExportYAML(t *testing.T) {
	setupTestCLI(t)
	mustRun(t, "add", "Yaml")

	out := filepath.Join(t.TempDir(), "backup.yaml")
	mustRun(t, "export", "yaml", "-o", out)

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	data, err := storage.ParseExport(raw)
	if err != nil {
		t.Fatalf("ParseExport failed: %v", err)
	}
	if len(data.Routines) != 1 || data.Pending != 1 {
		t.Errorf("Unexpected export: %d routines, %d pending", len(data.Routines), data.Pending)
	}
}

func TestExportInvalidFormat(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "export", "markdown"); err == nil {
		t.Error("Expected error for unknown format")
	}
}

func TestImportCmdFileNotFound(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "import", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestImportCmdInvalidFile(t *testing.T) {
	setupTestCLI(t)

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := run(t, "import", bad); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestSyncNowWithoutRemote(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Queued")

	mustRun(t, "sync", "now")

	db := openStore(t, dataDir)
	if queueLen(t, db) != 1 {
		t.Error("Change should stay queued with no remote")
	}
}

func TestSyncStatusCmd(t *testing.T) {
	setupTestCLI(t)
	mustRun(t, "add", "Queued")
	mustRun(t, "sync", "status")
}

func TestSyncPullWithoutRemote(t *testing.T) {
	setupTestCLI(t)
	mustRun(t, "sync", "pull")
}

func TestSyncWatchWithoutRemote(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "sync", "watch"); err == nil {
		t.Error("Expected error when no remote is configured")
	}
}

func TestOfflineFlagSkipsRemote(t *testing.T) {
	dataDir := setupTestCLI(t)
	t.Setenv("ROUTINES_POSTGRES_DSN", "postgres://nobody@127.0.0.1:1/none?sslmode=disable")

	mustRun(t, "--remote", "postgres", "--offline", "add", "Plane Workout")

	db := openStore(t, dataDir)
	r := onlyRoutine(t, db)
	if r.Synced {
		t.Error("Expected routine to stay unsynced while offline")
	}
}

func TestMigrateCmdToBadger(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Moving", "-e", "squat")

	mustRun(t, "migrate", "--to", "badger", "--switch")

	cfg, err := config.LoadFile()
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Backend != config.BackendBadger {
		t.Errorf("Expected backend switched to badger, got %q", cfg.Backend)
	}

	store, err := storage.OpenBadger(filepath.Join(dataDir, "badger"))
	if err != nil {
		t.Fatalf("OpenBadger failed: %v", err)
	}
	routines, _ := store.ListRoutines(context.Background())
	n, _ := store.CountQueue(context.Background())
	store.Close()
	if len(routines) != 1 || n != 1 {
		t.Errorf("Expected 1 routine and 1 queued change in badger, got %d and %d", len(routines), n)
	}

	// Commands now run against badger.
	mustRun(t, "list")

	if err := run(t, "migrate", "--to", "badger"); err == nil {
		t.Error("Expected error migrating to the current backend")
	}
}

func TestMigrateCmdDryRun(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Preview")

	mustRun(t, "migrate", "--to", "badger", "--dry-run")

	if _, err := os.Stat(filepath.Join(dataDir, "badger")); !os.IsNotExist(err) {
		t.Error("Dry run must not create the destination")
	}
}

func TestMigrateCmdInvalidBackend(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "migrate", "--to", "floppy"); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestMediaCleanupCmd(t *testing.T) {
	setupTestCLI(t)
	mustRun(t, "media", "cleanup")
	mustRun(t, "media", "cleanup", "--max-age-days", "1", "--max-size-mb", "1")
}

func TestMediaGetNotCached(t *testing.T) {
	setupTestCLI(t)

	if err := run(t, "media", "get", "https://cdn.test/none.jpg"); err == nil {
		t.Error("Expected error for uncached URL")
	}
}

func TestMediaPredownloadWithoutCatalogEntries(t *testing.T) {
	dataDir := setupTestCLI(t)
	mustRun(t, "add", "Bare")

	db := openStore(t, dataDir)
	id := onlyRoutine(t, db).ID
	db.Close()

	// No exercises means nothing to fetch, so the routine becomes local-only.
	mustRun(t, "media", "predownload", id)

	db = openStore(t, dataDir)
	if !onlyRoutine(t, db).LocalOnly {
		t.Error("Expected routine to be marked local-only")
	}
}

func TestConfigSetAndShow(t *testing.T) {
	setupTestCLI(t)

	mustRun(t, "config", "set", "remote", "postgres")
	mustRun(t, "config", "set", "probe_interval", "1m")
	mustRun(t, "config", "set", "media_max_size_mb", "250")
	mustRun(t, "config", "show")

	cfg, err := config.LoadFile()
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Remote != "postgres" || cfg.ProbeInterval != "1m" || cfg.MediaMaxSizeMB != 250 {
		t.Errorf("Unexpected config: %+v", cfg)
	}
}

func TestConfigSetInvalid(t *testing.T) {
	setupTestCLI(t)

	bad := [][]string{
		{"config", "set", "colour", "blue"},
		{"config", "set", "backend", "markdown"},
		{"config", "set", "remote", "ftp"},
		{"config", "set", "probe_interval", "soon"},
		{"config", "set", "media_max_age_days", "-1"},
	}
	for _, args := range bad {
		if err := run(t, args...); err == nil {
			t.Errorf("Expected error for %v", args)
		}
	}
}
