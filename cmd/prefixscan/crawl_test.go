package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/prefixscan/internal/config"
	"github.com/nao1215/prefixscan/internal/database"
	"github.com/nao1215/prefixscan/internal/model"
	"github.com/nao1215/prefixscan/internal/report"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newAutocompleteServer serves the words of vocabulary that start with the
// query, sorted and truncated to limit.
func newAutocompleteServer(t *testing.T, vocabulary []string, limit int) *httptest.Server {
	t.Helper()

	sorted := slices.Clone(vocabulary)
	sort.Strings(sorted)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		results := []string{}
		for _, word := range sorted {
			if strings.HasPrefix(word, query) && len(results) < limit {
				results = append(results, word)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(results), "results": results})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testCrawlConfig returns a config crawling the given variants with no
// pacing delay and fresh output and database directories.
func testCrawlConfig(t *testing.T, variants map[string]config.VariantConfig) *config.Config {
	t.Helper()

	cfg := config.NewConfig()
	cfg.Delay = 0
	cfg.MaxRetries = 0
	cfg.MaxLength = 2
	cfg.MaxResultsPerCall = 2
	cfg.File = &config.File{Variants: variants}
	cfg.OutputDir = t.TempDir()
	cfg.DBDir = t.TempDir()
	cfg.SaveToDB = true
	for name := range variants {
		cfg.Variants = append(cfg.Variants, name)
	}
	slices.Sort(cfg.Variants)
	return cfg
}

// TestNewCrawlCmd tests the crawl command creation.
func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()

	if cmd.Use != "crawl [variant...]" {
		t.Errorf("unexpected Use: got %q", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("expected non-empty descriptions")
	}

	flagsWithShort := map[string]string{
		"max-length":  "l",
		"delay":       "d",
		"max-retries": "r",
		"concurrency": "n",
		"timeout":     "t",
		"proxy":       "x",
		"batch":       "b",
		"config":      "c",
		"json":        "j",
		"markdown":    "m",
		"output":      "o",
	}
	for flag, shorthand := range flagsWithShort {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			t.Errorf("expected flag %q to exist", flag)
			continue
		}
		if f.Shorthand != shorthand {
			t.Errorf("flag %q: expected shorthand %q, got %q", flag, shorthand, f.Shorthand)
		}
	}

	for _, flag := range []string{"max-results", "backoff", "max-backoff", "user-agent", "max-body-size", "output-dir", "log-json", "db-dir", "no-db"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected flag %q to exist", flag)
		}
	}
}

// TestGetVerboseFlag tests the verbose flag retrieval.
func TestGetVerboseFlag(t *testing.T) {
	t.Parallel()

	t.Run("returns false when flag not set", func(t *testing.T) {
		t.Parallel()
		if getVerboseFlag(NewCrawlCmd()) {
			t.Error("expected false when flag not set")
		}
	})

	t.Run("returns value from parent verbose flag", func(t *testing.T) {
		t.Parallel()
		root := NewRootCmd()
		_ = root.PersistentFlags().Set("verbose", "true")

		crawlCmd, _, err := root.Find([]string{"crawl"})
		if err != nil {
			t.Fatalf("failed to find crawl command: %v", err)
		}
		if !getVerboseFlag(crawlCmd) {
			t.Error("expected true from parent verbose flag")
		}
	})
}

// TestBuildConfig tests configuration building from flags.
func TestBuildConfig(t *testing.T) {
	// No config file may be found in a real home directory.
	t.Setenv("HOME", t.TempDir())

	parse := func(t *testing.T, args ...string) (*config.Config, error) {
		t.Helper()
		cmd := NewCrawlCmd()
		if err := cmd.ParseFlags(args); err != nil {
			t.Fatalf("failed to parse flags: %v", err)
		}
		return buildConfig(cmd, cmd.Flags().Args())
	}

	t.Run("builds config with default values", func(t *testing.T) {
		cfg, err := parse(t)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.MaxLength != config.DefaultMaxLength || cfg.Delay != config.DefaultDelay {
			t.Errorf("unexpected crawl defaults: %+v", cfg)
		}
		if cfg.BatchSize != config.DefaultBatchSize {
			t.Errorf("expected batch size %d, got %d", config.DefaultBatchSize, cfg.BatchSize)
		}
		if !cfg.SaveToDB || cfg.DBDir == "" {
			t.Error("expected history database enabled in the XDG directory")
		}
		if !slices.Equal(cfg.Variants, []string{"v1", "v2", "v3"}) {
			t.Errorf("expected all built-in variants, got %v", cfg.Variants)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("expected valid config, got %v", err)
		}
	})

	t.Run("applies flags", func(t *testing.T) {
		cfg, err := parse(t,
			"-l", "2", "-d", "150ms", "-r", "1", "-n", "3", "--max-results", "10",
			"--backoff", "exponential", "--max-backoff", "2s", "-x", "127.0.0.1:9050",
			"-b", "2", "--output-dir", "out", "-j", "-o", "summary.json",
			"--db-dir", "db", "--no-db", "v2", "v1", "v2",
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		s, err := cfg.Settings("v1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.MaxLength != 2 || s.Delay != 150*time.Millisecond || s.MaxRetries != 1 ||
			s.MaxConcurrentRequests != 3 || s.MaxResultsPerCall != 10 ||
			s.Backoff != config.BackoffExponential || s.MaxBackoff != 2*time.Second {
			t.Errorf("flags not applied to settings: %+v", s)
		}
		if cfg.ProxyAddress != "127.0.0.1:9050" || cfg.BatchSize != 2 || cfg.OutputDir != "out" {
			t.Errorf("flags not applied to config: %+v", cfg)
		}
		if !cfg.JSONReport || cfg.ReportFile != "summary.json" {
			t.Error("expected JSON report to summary.json")
		}
		if cfg.SaveToDB || cfg.DBDir != "db" {
			t.Errorf("expected database disabled with dir db, got %v %q", cfg.SaveToDB, cfg.DBDir)
		}
		if !slices.Equal(cfg.Variants, []string{"v2", "v1"}) {
			t.Errorf("expected deduplicated variants [v2 v1], got %v", cfg.Variants)
		}
	})

	t.Run("loads config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prefixscan.yaml")
		content := `defaults:
  maxLength: 1
variants:
  staging:
    url: "http://localhost:8000/v1/autocomplete?query="
    alphabet: "xyz"
    delay: 0s
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cfg, err := parse(t, "-c", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(cfg.Variants, []string{"v1", "v2", "v3", "staging"}) {
			t.Errorf("expected built-in and file variants, got %v", cfg.Variants)
		}

		s, err := cfg.Settings("staging")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.MaxLength != 1 || s.Delay != 0 || !slices.Equal(s.Alphabet, []string{"x", "y", "z"}) {
			t.Errorf("unexpected staging settings: %+v", s)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		_, err := parse(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"))
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

// TestResolveVariants tests variant selection.
func TestResolveVariants(t *testing.T) {
	t.Parallel()

	file := &config.File{Variants: map[string]config.VariantConfig{
		"v2":      {Alphabet: "ab"},
		"zeta":    {URL: "http://localhost/?q="},
		"staging": {URL: "http://localhost/?q="},
	}}

	tests := []struct {
		name string
		args []string
		file *config.File
		want []string
	}{
		{"built-ins without file", nil, nil, []string{"v1", "v2", "v3"}},
		{"file variants appended sorted", nil, file, []string{"v1", "v2", "v3", "staging", "zeta"}},
		{"explicit names keep order", []string{"v3", "staging", "v3"}, file, []string{"v3", "staging"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := resolveVariants(tt.args, tt.file); !slices.Equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestAlphabetPreview tests the start line alphabet display.
func TestAlphabetPreview(t *testing.T) {
	t.Parallel()

	short, err := config.ParseAlphabet("abc")
	if err != nil {
		t.Fatal(err)
	}
	if got := alphabetPreview(short); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}

	long, err := config.ParseAlphabet("abcdefghijklmnopqrstuvwxyz")
	if err != nil {
		t.Fatal(err)
	}
	if got := alphabetPreview(long); got != "abcdefghijklmnopqrst..." {
		t.Errorf("expected first 20 symbols and ..., got %q", got)
	}
}

// TestRunCrawl tests a full extraction against a local autocomplete API.
func TestRunCrawl(t *testing.T) {
	t.Parallel()

	vocabulary := []string{"apple", "ant", "aardvark", "bee"}

	t.Run("writes results, summary and history", func(t *testing.T) {
		t.Parallel()

		srv := newAutocompleteServer(t, vocabulary, 2)
		cfg := testCrawlConfig(t, map[string]config.VariantConfig{
			"test": {URL: srv.URL + "/autocomplete?query=", Alphabet: "ab"},
		})

		var out bytes.Buffer
		if err := runCrawl(context.Background(), cfg, discardLogger(), &out); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// "a" is full and expands to "aa" and "ab"; "apple" sorts past
		// the page of "a" and has no two-symbol prefix in {a,b}.
		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "results_test.json"))
		if err != nil {
			t.Fatalf("failed to read results: %v", err)
		}
		var words []string
		if err := json.Unmarshal(data, &words); err != nil {
			t.Fatalf("invalid results file: %v", err)
		}
		if !slices.Equal(words, []string{"aardvark", "ant", "bee"}) {
			t.Errorf("unexpected words %v", words)
		}

		data, err = os.ReadFile(filepath.Join(cfg.OutputDir, report.SummaryFileName))
		if err != nil {
			t.Fatalf("failed to read summary: %v", err)
		}
		var summary report.SummaryReport
		if err := json.Unmarshal(data, &summary); err != nil {
			t.Fatalf("invalid summary file: %v", err)
		}
		if got := summary.Results["test"]; got.WordCount != 3 || got.FetchAttempts != 4 {
			t.Errorf("unexpected summary %+v", got)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		runs, err := db.ListRuns(context.Background(), "test", 0)
		if err != nil || len(runs) != 1 || runs[0].WordCount != 3 {
			t.Errorf("expected one recorded run with 3 words, got %v (%v)", runs, err)
		}

		output := out.String()
		for _, want := range []string{
			"Starting extraction for test",
			"alphabet: ab (2 symbols)",
			"Completed test",
			"API calls: 4",
			"unique words: 3",
			"results_test.json",
			"CRAWL REPORT",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("failed variant does not stop the others", func(t *testing.T) {
		t.Parallel()

		srv := newAutocompleteServer(t, vocabulary, 2)
		cfg := testCrawlConfig(t, map[string]config.VariantConfig{
			"bad":  {URL: "ftp://localhost/?query=", Alphabet: "ab"},
			"good": {URL: srv.URL + "/autocomplete?query=", Alphabet: "ab"},
		})
		cfg.SaveToDB = false

		var out bytes.Buffer
		err := runCrawl(context.Background(), cfg, discardLogger(), &out)
		if err == nil || !strings.Contains(err.Error(), "1 of 2 variants failed") {
			t.Fatalf("expected one failed variant, got %v", err)
		}

		if _, err := os.Stat(filepath.Join(cfg.OutputDir, "results_good.json")); err != nil {
			t.Errorf("expected results for the good variant: %v", err)
		}
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, "results_bad.json")); !os.IsNotExist(err) {
			t.Errorf("expected no results for the bad variant, got %v", err)
		}

		data, err := os.ReadFile(filepath.Join(cfg.OutputDir, report.SummaryFileName))
		if err != nil {
			t.Fatalf("failed to read summary: %v", err)
		}
		var summary report.SummaryReport
		if err := json.Unmarshal(data, &summary); err != nil {
			t.Fatalf("invalid summary file: %v", err)
		}
		if _, ok := summary.Results["bad"]; ok || len(summary.Results) != 1 {
			t.Errorf("expected only the good variant in the summary, got %v", summary.Results)
		}
		if !strings.Contains(out.String(), "Failed bad") {
			t.Errorf("expected failure line, got:\n%s", out.String())
		}
	})

	t.Run("cancelled extraction", func(t *testing.T) {
		t.Parallel()

		srv := newAutocompleteServer(t, vocabulary, 2)
		cfg := testCrawlConfig(t, map[string]config.VariantConfig{
			"test": {URL: srv.URL + "/autocomplete?query=", Alphabet: "ab"},
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := runCrawl(ctx, cfg, discardLogger(), io.Discard)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, report.SummaryFileName)); !os.IsNotExist(err) {
			t.Errorf("expected no summary after cancellation, got %v", err)
		}
	})
}

// TestOutputReport tests the run report formats.
func TestOutputReport(t *testing.T) {
	t.Parallel()

	now := time.Now()
	results := []*model.CrawlResult{
		{Variant: "v1", Words: []string{"apple"}, Stats: model.Stats{Requests: 3}, StartedAt: now, FinishedAt: now.Add(time.Second)},
		{Variant: "v2", Words: []string{"bee", "ant"}, Stats: model.Stats{Requests: 5}, StartedAt: now, FinishedAt: now.Add(time.Second)},
	}

	t.Run("markdown summary", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.MarkdownReport = true

		var buf bytes.Buffer
		if err := outputReport(cfg, results, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "# Extraction Summary") {
			t.Errorf("expected markdown summary, got:\n%s", buf.String())
		}
	})

	t.Run("json report file", func(t *testing.T) {
		t.Parallel()

		cfg := config.NewConfig()
		cfg.JSONReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "reports", "v1.json")

		var buf bytes.Buffer
		if err := outputReport(cfg, results[:1], &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "CRAWL REPORT") {
			t.Errorf("expected text report on stdout, got:\n%s", buf.String())
		}

		data, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read report: %v", err)
		}
		var rep report.JSONReport
		if err := json.Unmarshal(data, &rep); err != nil {
			t.Fatalf("invalid JSON report: %v", err)
		}
		if rep.Result == nil || rep.Result.Variant != "v1" {
			t.Errorf("unexpected report %+v", rep)
		}
	})

	t.Run("text summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := outputReport(config.NewConfig(), results, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "EXTRACTION SUMMARY") {
			t.Errorf("expected text summary, got:\n%s", buf.String())
		}
	})
}
