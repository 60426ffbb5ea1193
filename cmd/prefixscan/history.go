package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/prefixscan/internal/config"
	"github.com/nao1215/prefixscan/internal/database"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// shortIDLen is the run ID length shown in listings.
// UUIDv7 IDs of runs started within the same millisecond share their
// first 12 hex digits, so listings show the random part as well.
const shortIDLen = 18

// errNotEnoughRuns is returned when a diff has fewer than two runs to compare.
var errNotEnoughRuns = errors.New("at least 2 runs are required for comparison")

// NewHistoryCmd creates the history command.
// It reads the runs recorded by crawl from the history database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [variant]",
		Short: "List recorded extraction runs",
		Long: `History lists the extraction runs recorded in the database, newest first.

Every crawl records its run unless --no-db is given. A run ID, or any
unique prefix of at least four characters, identifies a run in the
show and diff subcommands.

Examples:
  # List the latest runs of every variant
  prefixscan history

  # List all runs of v2
  prefixscan history --limit 0 v2

  # Show the words of a run
  prefixscan history show 0192f0c1

  # Show the latest run of v2
  prefixscan history show --variant v2

  # Compare the latest two runs of v1
  prefixscan history diff --variant v1`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.PersistentFlags().String("db-dir", "",
		"History database directory (default: XDG data directory)")
	cmd.PersistentFlags().BoolP("json", "j", false,
		"Output in JSON format")

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 for all)")

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryDiffCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a recorded run and its words",
		Long: `Show prints a recorded run and all of its words.

Without a run ID the latest run of --variant is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryShowCmd,
	}

	cmd.Flags().StringP("variant", "V", "",
		"Variant whose latest run is shown")

	return cmd
}

func newHistoryDiffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff [old-run-id new-run-id]",
		Short: "Compare the words of two recorded runs",
		Long: `Diff shows the words added and removed between two runs.

Without run IDs the latest two runs of --variant are compared.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("expected 0 or 2 run IDs, got %d", len(args))
			}
			return nil
		},
		RunE: runHistoryDiffCmd,
	}

	cmd.Flags().StringP("variant", "V", "",
		"Variant whose latest two runs are compared")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")

	return cmd
}

// openHistoryDB opens the existing history database. It never creates one,
// so a fresh install reports a missing database instead of an empty one.
func openHistoryDB(cmd *cobra.Command) (*database.RunDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if errors.Is(err, database.ErrDatabaseNotFound) {
		return nil, fmt.Errorf("%w in %s (run 'prefixscan crawl' first)", err, dbDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	var variant string
	if len(args) == 1 {
		variant = args[0]
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	return listRuns(cmd.Context(), db, cmd.OutOrStdout(), variant, limit, jsonOutput)
}

// runJSON is the JSON form of a run record.
type runJSON struct {
	ID         string    `json:"id"`
	Variant    string    `json:"variant"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	WordCount  int       `json:"word_count"`
	APICalls   int       `json:"api_calls"`
	Error      string    `json:"error,omitempty"`
	Words      []string  `json:"words,omitempty"`
}

func newRunJSON(r *database.RunRecord) runJSON {
	return runJSON{
		ID:         r.ID,
		Variant:    r.Variant,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		WordCount:  r.WordCount,
		APICalls:   r.Stats.Requests,
		Error:      r.Error,
	}
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// listRuns prints the recorded runs of variant, or of every variant.
func listRuns(ctx context.Context, db *database.RunDB, w io.Writer, variant string, limit int, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, variant, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		out := make([]runJSON, 0, len(runs))
		for _, r := range runs {
			out = append(out, newRunJSON(r))
		}
		return writeJSON(w, out)
	}

	if len(runs) == 0 {
		if variant != "" {
			fmt.Fprintf(w, "No runs found for %s\n", variant)
		} else {
			fmt.Fprintln(w, "No runs found in the database.")
		}
		fmt.Fprintln(w, "\nUse 'prefixscan crawl' to record a run.")
		return nil
	}

	fmt.Fprintf(w, "Extraction runs (%d):\n\n", len(runs))
	fmt.Fprintf(w, "  %-18s  %-8s  %-19s  %8s  %9s  %s\n", "ID", "Variant", "Started", "Words", "API Calls", "Status")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 80))

	for _, r := range runs {
		fmt.Fprintf(w, "  %-18s  %-8s  %-19s  %8d  %9d  %s\n",
			shortID(r.ID),
			r.Variant,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.WordCount,
			r.Stats.Requests,
			runStatus(r),
		)
	}

	fmt.Fprintln(w, "\nUse 'prefixscan history show <id>' to see the words of a run.")
	fmt.Fprintln(w, "Use 'prefixscan history diff --variant <variant>' to compare the latest two runs.")

	return nil
}

// runHistoryShowCmd executes the history show command.
func runHistoryShowCmd(cmd *cobra.Command, args []string) error {
	variant, err := cmd.Flags().GetString("variant")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if len(args) == 0 && variant == "" {
		return errors.New("specify a run ID or --variant")
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	var run *database.RunRecord
	if len(args) == 1 {
		run, err = db.FindRun(ctx, args[0])
	} else {
		run, err = db.GetLatestRun(ctx, variant)
	}
	if err != nil {
		return err
	}

	return showRun(ctx, db, cmd.OutOrStdout(), run, jsonOutput)
}

// showRun prints one run and all of its words.
func showRun(ctx context.Context, db *database.RunDB, w io.Writer, run *database.RunRecord, jsonOutput bool) error {
	words, err := db.GetRunWords(ctx, run.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		out := newRunJSON(run)
		out.Words = words
		return writeJSON(w, out)
	}

	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "Variant:   %s\n", run.Variant)
	fmt.Fprintf(w, "Started:   %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Elapsed:   %s\n", run.Elapsed().Round(time.Millisecond))
	fmt.Fprintf(w, "API calls: %d\n", run.Stats.Requests)
	fmt.Fprintf(w, "Status:    %s\n", runStatus(run))
	fmt.Fprintf(w, "\nWords (%d):\n", len(words))
	for _, word := range words {
		fmt.Fprintf(w, "  %s\n", word)
	}

	return nil
}

// runHistoryDiffCmd executes the history diff command.
func runHistoryDiffCmd(cmd *cobra.Command, args []string) error {
	variant, err := cmd.Flags().GetString("variant")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}

	// Validate arguments before opening the database.
	if len(args) == 0 && variant == "" {
		return errors.New("specify two run IDs or --variant")
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()

	var oldID, newID string
	if len(args) == 2 {
		oldID, newID = args[0], args[1]
	} else {
		oldID, newID, err = latestTwoRuns(ctx, db, variant)
		if err != nil {
			return err
		}
	}

	diff, err := db.DiffRuns(ctx, oldID, newID)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		return writeJSON(w, newDiffJSON(diff))
	case markdownOutput:
		return outputDiffMarkdown(w, diff)
	default:
		outputDiffText(w, diff)
		return nil
	}
}

// latestTwoRuns returns the IDs of the previous and the latest run of variant.
func latestTwoRuns(ctx context.Context, db *database.RunDB, variant string) (string, string, error) {
	runs, err := db.ListRuns(ctx, variant, 2)
	if err != nil {
		return "", "", fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) < 2 {
		return "", "", fmt.Errorf("%w for %s (found %d)", errNotEnoughRuns, variant, len(runs))
	}
	return runs[1].ID, runs[0].ID, nil
}

// diffJSON is the JSON form of a run diff.
type diffJSON struct {
	Old     runJSON  `json:"old"`
	New     runJSON  `json:"new"`
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Common  int      `json:"common"`
}

func newDiffJSON(d *database.RunDiff) diffJSON {
	out := diffJSON{
		Old:     newRunJSON(d.Old),
		New:     newRunJSON(d.New),
		Added:   d.Added,
		Removed: d.Removed,
		Common:  d.Common,
	}
	if out.Added == nil {
		out.Added = []string{}
	}
	if out.Removed == nil {
		out.Removed = []string{}
	}
	return out
}

// outputDiffText prints a run diff in human-readable text format.
func outputDiffText(w io.Writer, d *database.RunDiff) {
	fmt.Fprintf(w, "Run Comparison: %s\n", d.New.Variant)
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\nPrevious run: %s  %s  (%d words)\n",
		shortID(d.Old.ID), d.Old.StartedAt.Local().Format("2006-01-02 15:04:05"), d.Old.WordCount)
	fmt.Fprintf(w, "Current run:  %s  %s  (%d words)\n",
		shortID(d.New.ID), d.New.StartedAt.Local().Format("2006-01-02 15:04:05"), d.New.WordCount)

	if !d.HasChanges() {
		fmt.Fprintf(w, "\nNo changes: both runs found the same %d words.\n", d.Common)
		return
	}

	if len(d.Added) > 0 {
		fmt.Fprintf(w, "\nAdded Words (%d):\n", len(d.Added))
		for _, word := range d.Added {
			fmt.Fprintf(w, "  [+] %s\n", word)
		}
	}

	if len(d.Removed) > 0 {
		fmt.Fprintf(w, "\nRemoved Words (%d):\n", len(d.Removed))
		for _, word := range d.Removed {
			fmt.Fprintf(w, "  [-] %s\n", word)
		}
	}

	fmt.Fprintf(w, "\nUnchanged: %d words\n", d.Common)
}

// outputDiffMarkdown prints a run diff in Markdown format.
func outputDiffMarkdown(w io.Writer, d *database.RunDiff) error {
	md := markdown.NewMarkdown(w)

	md.H1("Run Comparison: " + d.New.Variant)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Previous", "Current", "Change"},
		Rows: [][]string{
			{"Run", "`" + shortID(d.Old.ID) + "`", "`" + shortID(d.New.ID) + "`", "-"},
			{"Date", d.Old.StartedAt.Local().Format("2006-01-02 15:04"), d.New.StartedAt.Local().Format("2006-01-02 15:04"), "-"},
			{"Words", strconv.Itoa(d.Old.WordCount), strconv.Itoa(d.New.WordCount), formatDelta(d.New.WordCount - d.Old.WordCount)},
			{"API Calls", strconv.Itoa(d.Old.Stats.Requests), strconv.Itoa(d.New.Stats.Requests), formatDelta(d.New.Stats.Requests - d.Old.Stats.Requests)},
		},
	})
	md.PlainText("")

	if len(d.Added) > 0 {
		md.H2(fmt.Sprintf("Added Words (%d)", len(d.Added)))
		md.BulletList(d.Added...)
		md.PlainText("")
	}
	if len(d.Removed) > 0 {
		md.H2(fmt.Sprintf("Removed Words (%d)", len(d.Removed)))
		md.BulletList(d.Removed...)
		md.PlainText("")
	}
	if !d.HasChanges() {
		md.Tip("Both runs found the same words.")
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainTextf("*%d words unchanged*", d.Common)

	return md.Build()
}

// formatDelta formats a numeric delta with sign for display.
func formatDelta(delta int) string {
	if delta > 0 {
		return "+" + strconv.Itoa(delta)
	}
	return strconv.Itoa(delta)
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

func runStatus(r *database.RunRecord) string {
	if r.Error != "" {
		return "stopped: " + r.Error
	}
	return "complete"
}
