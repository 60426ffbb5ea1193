package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prefixscan/internal/config"
	"github.com/nao1215/prefixscan/internal/database"
	"github.com/nao1215/prefixscan/internal/model"
)

// seedHistory records runs in a fresh database and returns its directory
// and the run IDs in insertion order.
func seedHistory(t *testing.T, results ...*model.CrawlResult) (string, []string) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ids := make([]string, 0, len(results))
	for _, r := range results {
		id, err := db.SaveRun(context.Background(), r)
		if err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		ids = append(ids, id)
	}
	return dir, ids
}

func historyResult(variant string, age time.Duration, words ...string) *model.CrawlResult {
	started := time.Now().Add(-age)
	return &model.CrawlResult{
		Variant:    variant,
		Words:      words,
		Stats:      model.Stats{Requests: len(words) + 1},
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
	}
}

// executeRoot runs the root command with args and returns its output.
func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// TestNewHistoryCmd tests the history command creation.
func TestNewHistoryCmd(t *testing.T) {
	t.Parallel()

	cmd := NewHistoryCmd()

	if cmd.Use != "history [variant]" {
		t.Errorf("unexpected Use: got %q", cmd.Use)
	}
	if f := cmd.Flags().Lookup("limit"); f == nil || f.Shorthand != "n" {
		t.Error("expected limit flag with shorthand n")
	}
	for _, flag := range []string{"db-dir", "json"} {
		if cmd.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("expected persistent flag %q", flag)
		}
	}

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	if !names["show"] || !names["diff"] {
		t.Errorf("expected show and diff subcommands, got %v", names)
	}
}

// TestHistoryList tests listing recorded runs.
func TestHistoryList(t *testing.T) {
	t.Parallel()

	// Subtests share one database file and run in sequence.
	dir, ids := seedHistory(t,
		historyResult("v1", 2*time.Hour, "apple", "ant"),
		historyResult("v2", time.Hour, "bee"),
	)

	t.Run("lists every variant newest first", func(t *testing.T) {
		output, err := executeRoot(t, "history", "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "Extraction runs (2)") {
			t.Errorf("expected 2 runs, got:\n%s", output)
		}
		v1 := strings.Index(output, shortID(ids[0]))
		v2 := strings.Index(output, shortID(ids[1]))
		if v1 < 0 || v2 < 0 || v2 > v1 {
			t.Errorf("expected v2 listed before v1, got:\n%s", output)
		}
	})

	t.Run("filters by variant as JSON", func(t *testing.T) {
		output, err := executeRoot(t, "history", "--db-dir", dir, "--json", "v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var runs []runJSON
		if err := json.Unmarshal([]byte(output), &runs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != ids[0] || runs[0].WordCount != 2 || runs[0].APICalls != 3 {
			t.Errorf("unexpected runs %+v", runs)
		}
	})

	t.Run("no runs for variant", func(t *testing.T) {
		output, err := executeRoot(t, "history", "--db-dir", dir, "v3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output, "No runs found for v3") {
			t.Errorf("expected empty message, got:\n%s", output)
		}
	})

	t.Run("missing database", func(t *testing.T) {
		_, err := executeRoot(t, "history", "--db-dir", t.TempDir())
		if !errors.Is(err, database.ErrDatabaseNotFound) {
			t.Errorf("expected ErrDatabaseNotFound, got %v", err)
		}
	})
}

// TestHistoryShow tests printing one run.
func TestHistoryShow(t *testing.T) {
	t.Parallel()

	dir, ids := seedHistory(t,
		historyResult("v1", 2*time.Hour, "apple", "ant"),
		historyResult("v1", time.Hour, "bee"),
	)

	t.Run("by ID prefix", func(t *testing.T) {
		output, err := executeRoot(t, "history", "show", "--db-dir", dir, ids[0][:23])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Run " + ids[0], "Variant:   v1", "Words (2)", "  apple", "  ant"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("as JSON", func(t *testing.T) {
		output, err := executeRoot(t, "history", "show", "--db-dir", dir, "--json", ids[0])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var run runJSON
		if err := json.Unmarshal([]byte(output), &run); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(run.Words) != 2 || run.Words[0] != "apple" {
			t.Errorf("unexpected run %+v", run)
		}
	})

	t.Run("latest run of a variant", func(t *testing.T) {
		output, err := executeRoot(t, "history", "show", "--db-dir", dir, "--variant", "v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Run " + ids[1], "Words (1)", "  bee"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		_, err := executeRoot(t, "history", "show", "--db-dir", dir, "ffffffff")
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("variant without runs", func(t *testing.T) {
		_, err := executeRoot(t, "history", "show", "--db-dir", dir, "-V", "v3")
		if !errors.Is(err, database.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("no run ID or variant", func(t *testing.T) {
		if _, err := executeRoot(t, "history", "show", "--db-dir", dir); err == nil {
			t.Error("expected error without run ID or variant")
		}
	})
}

// TestHistoryDiff tests comparing two runs.
func TestHistoryDiff(t *testing.T) {
	t.Parallel()

	dir, ids := seedHistory(t,
		historyResult("v1", 2*time.Hour, "apple", "ant"),
		historyResult("v1", time.Hour, "apple", "bee"),
		historyResult("v2", time.Hour, "cat"),
	)

	t.Run("latest two runs of a variant", func(t *testing.T) {
		output, err := executeRoot(t, "history", "diff", "--db-dir", dir, "--variant", "v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Run Comparison: v1", "[+] bee", "[-] ant", "Unchanged: 1 words"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("explicit IDs as JSON", func(t *testing.T) {
		output, err := executeRoot(t, "history", "diff", "--db-dir", dir, "--json", ids[1], ids[0])
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var diff diffJSON
		if err := json.Unmarshal([]byte(output), &diff); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(diff.Added) != 1 || diff.Added[0] != "ant" || len(diff.Removed) != 1 || diff.Removed[0] != "bee" {
			t.Errorf("unexpected diff %+v", diff)
		}
		if diff.Old.ID != ids[1] || diff.New.ID != ids[0] || diff.Common != 1 {
			t.Errorf("unexpected runs in diff %+v", diff)
		}
	})

	t.Run("markdown", func(t *testing.T) {
		output, err := executeRoot(t, "history", "diff", "--db-dir", dir, "-V", "v1", "-m")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"# Run Comparison: v1", "## Added Words (1)", "## Removed Words (1)"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			args []string
			want error
		}{
			{"single run", []string{"--variant", "v2"}, errNotEnoughRuns},
			{"conflicting formats", []string{"--variant", "v1", "--json", "--markdown"}, config.ErrConflictingReportFormats},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				args := append([]string{"history", "diff", "--db-dir", dir}, tt.args...)
				if _, err := executeRoot(t, args...); !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}

		if _, err := executeRoot(t, "history", "diff", "--db-dir", dir); err == nil {
			t.Error("expected error without IDs or variant")
		}
		if _, err := executeRoot(t, "history", "diff", "--db-dir", dir, ids[0]); err == nil {
			t.Error("expected error for a single ID")
		}
	})
}

// TestFormatDelta tests signed delta formatting.
func TestFormatDelta(t *testing.T) {
	t.Parallel()

	tests := map[int]string{3: "+3", 0: "0", -2: "-2"}
	for delta, want := range tests {
		if got := formatDelta(delta); got != want {
			t.Errorf("formatDelta(%d) = %q, want %q", delta, got, want)
		}
	}
}
