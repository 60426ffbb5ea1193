package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nao1215/prefixscan/internal/config"
	"github.com/nao1215/prefixscan/internal/database"
	"github.com/nao1215/prefixscan/internal/fetch"
	"github.com/nao1215/prefixscan/internal/log"
	"github.com/nao1215/prefixscan/internal/model"
	"github.com/nao1215/prefixscan/internal/pipeline"
	"github.com/nao1215/prefixscan/internal/report"
	"github.com/spf13/cobra"
)

// alphabetPreviewLen is the number of symbols shown in the start line.
const alphabetPreviewLen = 20

// progressInterval is the number of batches between progress lines.
const progressInterval = 50

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [variant...]",
		Short: "Extract the word list of one or more API variants",
		Long: `Crawl extracts every word an autocomplete API variant can return.

Each variant starts from its single-symbol prefixes. A prefix whose
response is a full page is expanded with every symbol of the alphabet,
up to the maximum prefix length. The words of each variant are written
to results_<variant>.json and an extraction_summary.json describes the
whole run.

Without arguments all built-in variants and every variant defined in
the configuration file are crawled.

Examples:
  # Crawl v1, v2 and v3
  prefixscan crawl

  # Crawl a single variant with a shorter delay
  prefixscan crawl --delay 200ms v1

  # Crawl two variants concurrently and print a Markdown summary
  prefixscan crawl --batch 2 --markdown v1 v2

  # Write results to a directory and skip the history database
  prefixscan crawl --output-dir out --no-db

Configuration file (.prefixscan) example:
  defaults:
    delay: 1s
  variants:
    staging:
      url: "http://localhost:8000/v1/autocomplete?query="
      alphabet: "abc"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("max-length", "l", config.DefaultMaxLength,
		"Maximum prefix length in symbols")
	cmd.Flags().DurationP("delay", "d", config.DefaultDelay,
		"Pause before every API call")
	cmd.Flags().IntP("max-retries", "r", config.DefaultMaxRetries,
		"Retries after a rate-limit response")
	cmd.Flags().IntP("concurrency", "n", config.DefaultMaxConcurrentRequests,
		"Prefixes fetched concurrently in one batch")
	cmd.Flags().Int("max-results", config.DefaultMaxResultsPerCall,
		"API page size; a full page triggers expansion")
	cmd.Flags().String("backoff", string(config.DefaultBackoff),
		"Retry backoff strategy (linear or exponential)")
	cmd.Flags().Duration("max-backoff", 0,
		"Upper bound for a single backoff wait (0 for none)")

	// HTTP flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().StringP("proxy", "x", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:9050)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of variants crawled concurrently")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .prefixscan in current or home directory, then XDG config.yaml)")

	// Output flags
	cmd.Flags().String("output-dir", config.DefaultOutputDir,
		"Directory for results_<variant>.json and extraction_summary.json")
	cmd.Flags().BoolP("json", "j", false,
		"Print the summary as JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print the summary as Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Also write the summary to specified file path (creates directories if needed)")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON")

	// History flags
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")
	cmd.Flags().Bool("no-db", false,
		"Do not record the run in the history database")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Verbose, logJSON)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.MaxLength, err = flags.GetInt("max-length"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = flags.GetInt("max-retries"); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentRequests, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.MaxResultsPerCall, err = flags.GetInt("max-results"); err != nil {
		return nil, err
	}
	backoff, err := flags.GetString("backoff")
	if err != nil {
		return nil, err
	}
	cfg.Backoff = config.BackoffStrategy(backoff)
	if cfg.MaxBackoff, err = flags.GetDuration("max-backoff"); err != nil {
		return nil, err
	}

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// An explicit --config must exist; the default locations are optional.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		cfg.File, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if explicitConfigPath {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	} else {
		cfg.File = &config.File{
			Variants: make(map[string]config.VariantConfig),
		}
	}

	if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Variants = resolveVariants(args, cfg.File)

	return cfg, nil
}

// resolveVariants returns the variants to crawl. Explicit names are kept
// in order without duplicates. Without names, the built-in variants come
// first, followed by the variants only the file defines.
func resolveVariants(args []string, file *config.File) []string {
	if len(args) > 0 {
		names := make([]string, 0, len(args))
		for _, name := range args {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
		return names
	}

	names := config.BuiltinVariantNames()
	if file == nil {
		return names
	}

	var extra []string
	for name := range file.Variants {
		if _, ok := config.BuiltinVariants[name]; !ok {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	return append(names, extra...)
}

// setupLogger creates a structured logger based on verbosity setting.
func setupLogger(verbose, jsonFormat bool) *slog.Logger {
	return log.NewLogger(os.Stderr, verbose, jsonFormat)
}

// runCrawl crawls every configured variant, then writes the extraction
// summary and prints the run report.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	settings := make([]config.Settings, 0, len(cfg.Variants))
	for _, name := range cfg.Variants {
		s, err := cfg.Settings(name)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		settings = append(settings, s)
	}

	logger.Info("starting extraction",
		"variants", cfg.Variants,
		"batchSize", cfg.BatchSize,
		"outputDir", cfg.OutputDir,
		"saveToDB", cfg.SaveToDB,
	)

	sink, err := report.NewFileSink(cfg.OutputDir)
	if err != nil {
		return err
	}

	var db *database.RunDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	con := newConsole(out)
	bp := pipeline.NewBatchProcessor(
		newPipelineFactory(cfg, logger, db, sink, con),
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	runs := make([]*pipeline.Run, len(settings))
	batchErr := bp.ProcessBatchWithCallback(ctx, settings, func(run *pipeline.Run, index int) {
		runs[index] = run
		con.finished(run)
	})
	con.printf("\nExtraction finished in %s\n", time.Since(startTime).Round(time.Millisecond))

	var results, exported []*model.CrawlResult
	failed := 0
	for _, run := range runs {
		if run.Err != nil {
			failed++
		}
		if run.Result != nil {
			results = append(results, run.Result)
		}
		if run.ResultPath != "" {
			exported = append(exported, run.Result)
		}
	}

	if batchErr == nil && len(exported) > 0 {
		path, err := sink.WriteSummary(ctx, exported)
		if err != nil {
			logger.Error("failed to write extraction summary", "error", err)
		} else {
			con.printf("Summary saved to %s\n", path)
		}
	}

	if len(results) > 0 {
		con.printf("\n")
		if err := outputReport(cfg, results, out); err != nil {
			logger.Error("report failed", "error", err)
		}
	}

	if batchErr != nil {
		return fmt.Errorf("extraction interrupted: %w", batchErr)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d variants failed", failed, len(runs))
	}
	return nil
}

// newPipelineFactory returns a factory for the per-variant pipeline:
// announce, crawl, persist (when db is set) and export.
func newPipelineFactory(
	cfg *config.Config,
	logger *slog.Logger,
	db *database.RunDB,
	sink *report.FileSink,
	con *console,
) func() *pipeline.Pipeline {
	fetchers := newFetcherFactory(cfg)
	return func() *pipeline.Pipeline {
		p := pipeline.New(
			pipeline.WithLogger(logger),
			pipeline.WithContinueOnError(true),
		)
		p.AddStep(&announceStep{console: con})
		p.AddStep(pipeline.NewCrawlStep(fetchers,
			pipeline.WithCrawlLogger(logger),
			pipeline.WithCrawlProgress(con.progress),
		))
		if db != nil {
			p.AddStep(pipeline.NewPersistStep(db, logger))
		}
		p.AddStep(pipeline.NewExportStep(sink, logger))
		return p
	}
}

// newFetcherFactory returns a factory that builds an HTTP client for each
// variant from the global HTTP options.
func newFetcherFactory(cfg *config.Config) pipeline.FetcherFactory {
	return func(s config.Settings) (fetch.Fetcher, error) {
		opts := []fetch.Option{
			fetch.WithResultsPath(s.ResultsPath),
			fetch.WithUserAgent(cfg.UserAgent),
			fetch.WithMaxBodySize(cfg.MaxBodySize),
			fetch.WithTimeout(cfg.Timeout),
		}
		if cfg.ProxyAddress != "" {
			opts = append(opts, fetch.WithProxy(cfg.ProxyAddress))
		}

		client, err := fetch.NewClient(s.URL, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// outputReport prints the run report in the requested format, or writes it
// to cfg.ReportFile with a text copy on stdout. A single variant gets its detailed report, several get the summary table.
func outputReport(cfg *config.Config, results []*model.CrawlResult, stdout io.Writer) error {
	writer := newReportWriter(cfg, stdout)
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()

		// The file gets the requested format, the terminal a text summary.
		writer = report.NewMultiWriter(
			report.NewSimpleWriter(stdout, report.WithVerbose(cfg.Verbose)),
			newReportWriter(cfg, f),
		)
	}

	var err error
	if len(results) == 1 {
		_, err = writer.Write(results[0])
	} else {
		_, err = writer.WriteSummary(results)
	}
	return err
}

// newReportWriter returns the writer for the selected report format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// console prints human-readable progress. It is safe for concurrent use
// by the variants of a batch.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// started prints the start line of a variant.
func (c *console) started(s config.Settings) {
	c.printf("Starting extraction for %s\n  alphabet: %s (%d symbols), max length %d\n",
		s.Variant, alphabetPreview(s.Alphabet), len(s.Alphabet), s.MaxLength)
}

// progress prints a progress line every progressInterval batches.
func (c *console) progress(variant string, p model.Progress) {
	if p.Batch%progressInterval != 0 {
		return
	}
	c.printf("  [%s] batch %d: %d words, %d API calls, %d queued\n",
		variant, p.Batch, p.Words, p.Requests, p.Queued)
}

// finished prints the outcome of a variant.
func (c *console) finished(run *pipeline.Run) {
	if run.Result == nil {
		c.printf("Failed %s: %v\n", run.Variant(), run.Err)
		return
	}

	r := run.Result
	c.printf("Completed %s in %s\n  API calls: %d\n  unique words: %d\n",
		run.Variant(), r.Elapsed().Round(time.Millisecond), r.Stats.Requests, r.WordCount())
	if run.ResultPath != "" {
		c.printf("  saved to: %s\n", run.ResultPath)
	}
	if run.Err != nil {
		c.printf("  warning: %v\n", run.Err)
	}
}

// alphabetPreview shows the first alphabetPreviewLen symbols.
func alphabetPreview(symbols []string) string {
	if len(symbols) <= alphabetPreviewLen {
		return strings.Join(symbols, "")
	}
	return strings.Join(symbols[:alphabetPreviewLen], "") + "..."
}

// announceStep prints the start line before the crawl begins.
type announceStep struct {
	console *console
}

func (s *announceStep) Name() string { return "announce" }

func (s *announceStep) Do(_ context.Context, run *pipeline.Run) error {
	s.console.started(run.Settings)
	return nil
}
