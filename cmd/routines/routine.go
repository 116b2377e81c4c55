// ABOUTME: CLI commands for creating, listing, showing, updating, and deleting routines.
// ABOUTME: All writes go through the sync engine so they are queued for the remote.
package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/routines/internal/models"
	"github.com/harperreed/routines/internal/storage"
	"github.com/spf13/cobra"
)

var (
	addDescription string
	addExercises   []string

	listName     string
	listUnsynced bool
	listSince    string
	listLimit    int

	updateName        string
	updateDescription string
	updateExercises   []string

	exerciseNotes string
)

var addCmd = &cobra.Command{
	Use:     "add <name>",
	Aliases: []string{"a", "new"},
	Short:   "Create a routine",
	Long: `Create a new workout routine.

EXERCISE FORMAT:

  Each --exercise is <exercise_id>[:<dose>][@<weight>][/<resistance>]

    squat:5x5@100       5 sets of 5 reps at 100
    plank:60s           60 seconds
    pushup:20           20 reps
    band-row:3x12/light 3 sets of 12 with light resistance

Exercises keep the order they are given in.

Examples:
  routines add "Leg Day" -e squat:5x5@100 -e lunge:3x12
  routines add "Core" --description "daily" -e plank:60s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exercises, err := parseExerciseSpecs(addExercises)
		if err != nil {
			return err
		}

		r, err := engine.Save(cmd.Context(), models.RoutineDraft{
			Name:        args[0],
			Description: addDescription,
			Exercises:   exercises,
		})
		if err != nil {
			return fmt.Errorf("failed to create routine: %w", err)
		}

		color.Green("✓ Added routine %s", r.Name)
		fmt.Printf("  %s %d exercises\n",
			color.New(color.Faint).Sprint(shortID(r.ID)),
			len(r.Exercises))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "l"},
	Short:   "List routines",
	Long: `List routines, most recently modified first.

OUTPUT FORMAT:

  Each line shows: ID  MODIFIED  NAME  EXERCISES  STATE

  The ID is an 8-character prefix you can pass to show, update, and delete.
  STATE is "pending" until the remote confirms the latest change.

EXAMPLES:

  routines list                        # Last 20 routines
  routines list --name "leg day"       # Exact name, case-insensitive
  routines list --unsynced             # Routines with queued changes
  routines list --since 2025-01-01     # Modified since a date`,
	RunE: func(cmd *cobra.Command, args []string) error {
		routines, err := queryRoutines(cmd.Context())
		if err != nil {
			return err
		}

		if len(routines) == 0 {
			fmt.Println("No routines found.")
			return nil
		}
		if listLimit > 0 && len(routines) > listLimit {
			routines = routines[:listLimit]
		}

		faint := color.New(color.Faint)
		for _, r := range routines {
			state := color.GreenString("synced")
			if !r.Synced {
				state = color.YellowString("pending")
			}
			if r.LocalOnly {
				state += faint.Sprint(" offline")
			}
			fmt.Printf("%s %s %s %2d exercises  %s\n",
				faint.Sprint(shortID(r.ID)),
				faint.Sprint(r.LastModified.Local().Format("2006-01-02 15:04")),
				padRight(truncate(r.Name, 24), 24),
				len(r.Exercises),
				state)
		}
		return nil
	},
}

func queryRoutines(ctx context.Context) ([]*models.Routine, error) {
	var (
		routines []*models.Routine
		err      error
	)
	switch {
	case listName != "":
		routines, err = engine.FindByName(ctx, listName)
	case listUnsynced:
		routines, err = engine.Unsynced(ctx)
	case listSince != "":
		since, perr := parseTime(listSince)
		if perr != nil {
			return nil, fmt.Errorf("invalid timestamp: %s", listSince)
		}
		routines, err = engine.ModifiedSince(ctx, since)
	default:
		routines, err = engine.GetAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	return routines, nil
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	Aliases: []string{"get"},
	Short:   "Show a routine with its exercises",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveRoutine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printRoutine(r)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	Aliases: []string{"edit", "rename"},
	Short:   "Update a routine",
	Long: `Update a routine's name, description, or exercise list.

Only the flags you pass are changed. Passing any --exercise replaces the
whole exercise list.

Examples:
  routines update 3f2a --name "Legs"
  routines update 3f2a -e squat:5x5 -e deadlift:1x5@140`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveRoutine(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		var u models.RoutineUpdate
		if cmd.Flags().Changed("name") {
			u.Name = &updateName
		}
		if cmd.Flags().Changed("description") {
			u.Description = &updateDescription
		}
		if cmd.Flags().Changed("exercise") {
			if u.Exercises, err = parseExerciseSpecs(updateExercises); err != nil {
				return err
			}
		}
		if u.Name == nil && u.Description == nil && u.Exercises == nil {
			return fmt.Errorf("nothing to update: pass --name, --description, or --exercise")
		}

		updated, err := engine.Update(cmd.Context(), r.ID, u)
		if err != nil {
			return fmt.Errorf("failed to update routine: %w", err)
		}

		color.Green("✓ Updated %s", updated.Name)
		fmt.Printf("  %s version %d\n", color.New(color.Faint).Sprint(shortID(updated.ID)), updated.Version)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete a routine",
	Long: `Delete a routine by its ID or ID prefix.

The deletion is queued and replayed to the remote when online.
If the prefix matches multiple routines, an error is returned.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveRoutine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := engine.Delete(cmd.Context(), r.ID); err != nil {
			return fmt.Errorf("failed to delete routine: %w", err)
		}

		color.Yellow("✗ Deleted %s", r.Name)
		fmt.Printf("  %s\n", color.New(color.Faint).Sprint(shortID(r.ID)))
		return nil
	},
}

var exerciseCmd = &cobra.Command{
	Use:     "exercise",
	Aliases: []string{"ex"},
	Short:   "Add or remove exercises in a routine",
}

var exerciseAddCmd = &cobra.Command{
	Use:   "add <routine-id> <exercise>",
	Short: "Append an exercise to a routine",
	Long: `Append an exercise to the end of a routine.

Example:
  routines exercise add 3f2a squat:5x5@100 --notes "pause at bottom"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveRoutine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		ex, err := parseExerciseSpec(args[1])
		if err != nil {
			return err
		}
		ex.Notes = exerciseNotes

		exercises := append(append([]models.RoutineExercise{}, r.Exercises...), ex)
		updated, err := engine.Update(cmd.Context(), r.ID, models.RoutineUpdate{Exercises: exercises})
		if err != nil {
			return fmt.Errorf("failed to add exercise: %w", err)
		}

		color.Green("✓ Added %s to %s", ex.ExerciseID, updated.Name)
		fmt.Printf("  position %d of %d\n", len(updated.Exercises), len(updated.Exercises))
		return nil
	},
}

var exerciseRemoveCmd = &cobra.Command{
	Use:     "remove <routine-id> <position>",
	Aliases: []string{"rm"},
	Short:   "Remove the exercise at a 1-based position",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveRoutine(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		pos, err := strconv.Atoi(args[1])
		if err != nil || pos < 1 || pos > len(r.Exercises) {
			return fmt.Errorf("invalid position: %s (routine has %d exercises)", args[1], len(r.Exercises))
		}

		removed := r.Exercises[pos-1]
		exercises := make([]models.RoutineExercise, 0, len(r.Exercises)-1)
		exercises = append(exercises, r.Exercises[:pos-1]...)
		exercises = append(exercises, r.Exercises[pos:]...)

		updated, err := engine.Update(cmd.Context(), r.ID, models.RoutineUpdate{Exercises: exercises})
		if err != nil {
			return fmt.Errorf("failed to remove exercise: %w", err)
		}

		color.Yellow("✗ Removed %s from %s", removed.ExerciseID, updated.Name)
		return nil
	},
}

// resolveRoutine finds a routine by full id or unique id prefix.
func resolveRoutine(ctx context.Context, idOrPrefix string) (*models.Routine, error) {
	r, err := engine.Get(ctx, idOrPrefix)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	all, err := engine.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var matches []*models.Routine
	for _, r := range all {
		if strings.HasPrefix(r.ID, idOrPrefix) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("routine not found: %s", idOrPrefix)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous id prefix %s matches %d routines", idOrPrefix, len(matches))
	}
}

func printRoutine(r *models.Routine) {
	faint := color.New(color.Faint)
	bold := color.New(color.Bold)

	_, _ = bold.Println(r.Name)
	fmt.Printf("  %s %s\n", faint.Sprint("id:      "), r.ID)
	fmt.Printf("  %s %d\n", faint.Sprint("version: "), r.Version)
	fmt.Printf("  %s %s\n", faint.Sprint("modified:"), r.LastModified.Local().Format("2006-01-02 15:04:05"))
	if r.Synced {
		fmt.Printf("  %s %s\n", faint.Sprint("state:   "), color.GreenString("synced"))
	} else {
		fmt.Printf("  %s %s\n", faint.Sprint("state:   "), color.YellowString("pending"))
	}
	if r.LocalOnly {
		fmt.Printf("  %s media cached for offline use\n", faint.Sprint("offline: "))
	}
	if r.Description != "" {
		fmt.Printf("\n  %s\n", r.Description)
	}

	if len(r.Exercises) == 0 {
		fmt.Println("\n  No exercises.")
		return
	}
	fmt.Println()
	for i, ex := range r.Exercises {
		line := fmt.Sprintf("  %2d. %s %s", i+1, padRight(ex.ExerciseID, 20), formatDose(ex))
		if ex.Notes != "" {
			line += faint.Sprintf(" (%s)", truncate(ex.Notes, 40))
		}
		fmt.Println(line)
	}
}

// formatDose renders sets, reps, duration, weight, and resistance in the --exercise syntax.
func formatDose(ex models.RoutineExercise) string {
	var b strings.Builder
	switch {
	case ex.Duration > 0:
		fmt.Fprintf(&b, "%ds", ex.Duration)
	case ex.Sets > 0 && ex.Reps > 0:
		fmt.Fprintf(&b, "%dx%d", ex.Sets, ex.Reps)
	case ex.Reps > 0:
		fmt.Fprintf(&b, "%d", ex.Reps)
	case ex.Sets > 0:
		fmt.Fprintf(&b, "%d sets", ex.Sets)
	}
	if ex.Weight > 0 {
		fmt.Fprintf(&b, "@%s", strconv.FormatFloat(ex.Weight, 'f', -1, 64))
	}
	if ex.Resistance != models.ResistanceNone {
		fmt.Fprintf(&b, "/%s", ex.Resistance)
	}
	return b.String()
}

func parseExerciseSpecs(specs []string) ([]models.RoutineExercise, error) {
	exercises := make([]models.RoutineExercise, 0, len(specs))
	for _, s := range specs {
		ex, err := parseExerciseSpec(s)
		if err != nil {
			return nil, err
		}
		exercises = append(exercises, ex)
	}
	return exercises, nil
}

// parseExerciseSpec parses <exercise_id>[:<dose>][@<weight>][/<resistance>].
func parseExerciseSpec(spec string) (models.RoutineExercise, error) {
	var ex models.RoutineExercise
	rest := strings.TrimSpace(spec)

	if i := strings.LastIndex(rest, "/"); i >= 0 {
		res := strings.ToLower(rest[i+1:])
		if !models.IsValidResistance(res) || res == "" {
			return ex, fmt.Errorf("invalid resistance in %q: use light, medium, or heavy", spec)
		}
		ex.Resistance = models.Resistance(res)
		rest = rest[:i]
	}

	if i := strings.LastIndex(rest, "@"); i >= 0 {
		w, err := strconv.ParseFloat(rest[i+1:], 64)
		if err != nil || w < 0 {
			return ex, fmt.Errorf("invalid weight in %q", spec)
		}
		ex.Weight = w
		rest = rest[:i]
	}

	id, dose, hasDose := strings.Cut(rest, ":")
	ex.ExerciseID = strings.TrimSpace(id)
	if ex.ExerciseID == "" {
		return ex, fmt.Errorf("missing exercise id in %q", spec)
	}
	if !hasDose {
		return ex, nil
	}

	dose = strings.ToLower(strings.TrimSpace(dose))
	switch {
	case strings.HasSuffix(dose, "s"):
		secs, err := strconv.Atoi(strings.TrimSuffix(dose, "s"))
		if err != nil || secs <= 0 {
			return ex, fmt.Errorf("invalid duration in %q", spec)
		}
		ex.Duration = secs
	case strings.Contains(dose, "x"):
		setsStr, repsStr, _ := strings.Cut(dose, "x")
		sets, err1 := strconv.Atoi(setsStr)
		reps, err2 := strconv.Atoi(repsStr)
		if err1 != nil || err2 != nil || sets <= 0 || reps <= 0 {
			return ex, fmt.Errorf("invalid sets x reps in %q", spec)
		}
		ex.Sets, ex.Reps = sets, reps
	default:
		reps, err := strconv.Atoi(dose)
		if err != nil || reps <= 0 {
			return ex, fmt.Errorf("invalid reps in %q", spec)
		}
		ex.Reps = reps
	}
	return ex, nil
}

func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
		time.RFC3339,
	}
	for _, f := range formats {
		if t, err := time.ParseInLocation(f, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func init() {
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "routine description")
	addCmd.Flags().StringArrayVarP(&addExercises, "exercise", "e", nil, "exercise spec, repeatable (id[:dose][@weight][/resistance])")

	listCmd.Flags().StringVar(&listName, "name", "", "filter by exact name (case-insensitive)")
	listCmd.Flags().BoolVar(&listUnsynced, "unsynced", false, "only routines with unsynced changes")
	listCmd.Flags().StringVar(&listSince, "since", "", "only routines modified since (YYYY-MM-DD [HH:MM])")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "max number of results")

	updateCmd.Flags().StringVar(&updateName, "name", "", "new name")
	updateCmd.Flags().StringVarP(&updateDescription, "description", "d", "", "new description")
	updateCmd.Flags().StringArrayVarP(&updateExercises, "exercise", "e", nil, "replacement exercise spec, repeatable")

	exerciseAddCmd.Flags().StringVar(&exerciseNotes, "notes", "", "notes for the exercise")
	exerciseCmd.AddCommand(exerciseAddCmd)
	exerciseCmd.AddCommand(exerciseRemoveCmd)

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(exerciseCmd)
}
