package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/prefixscan/internal/config"
	"github.com/nao1215/prefixscan/internal/crawler"
	"github.com/nao1215/prefixscan/internal/database"
	"github.com/nao1215/prefixscan/internal/fetch"
	"github.com/nao1215/prefixscan/internal/model"
	"github.com/nao1215/prefixscan/internal/report"
)

// ErrNoResult is returned by steps that need a crawl result when none is set.
var ErrNoResult = errors.New("run has no crawl result")

// FetcherFactory builds the Fetcher for a variant.
type FetcherFactory func(s config.Settings) (fetch.Fetcher, error)

// CrawlStep explores the prefix tree of the run's variant.
type CrawlStep struct {
	// newFetcher builds the fetcher for each run.
	newFetcher FetcherFactory

	// onProgress receives batch progress, if set.
	onProgress func(variant string, p model.Progress)

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// WithCrawlProgress registers a progress callback. It is called from the
// crawl goroutine of each variant.
func WithCrawlProgress(fn func(variant string, p model.Progress)) CrawlStepOption {
	return func(s *CrawlStep) {
		s.onProgress = fn
	}
}

// NewCrawlStep creates a crawl step that fetches through newFetcher.
func NewCrawlStep(newFetcher FetcherFactory, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		newFetcher: newFetcher,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl. On cancellation the partial result is kept on the
// run and the context error is returned.
func (s *CrawlStep) Do(ctx context.Context, run *Run) error {
	f, err := s.newFetcher(run.Settings)
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	c := crawler.New(f, run.Settings.Alphabet, CrawlerOptions(run.Settings, s.logger, s.progressFor(run.Variant()))...)

	result, err := c.Crawl(ctx)
	run.Result = result
	return err
}

func (s *CrawlStep) progressFor(variant string) func(model.Progress) {
	if s.onProgress == nil {
		return nil
	}
	return func(p model.Progress) {
		s.onProgress(variant, p)
	}
}

// CrawlerOptions maps resolved settings onto crawler options.
func CrawlerOptions(s config.Settings, logger *slog.Logger, progress func(model.Progress)) []crawler.Option {
	opts := []crawler.Option{
		crawler.WithVariant(s.Variant),
		crawler.WithMaxLength(s.MaxLength),
		crawler.WithMaxConcurrentRequests(s.MaxConcurrentRequests),
		crawler.WithMaxResultsPerCall(s.MaxResultsPerCall),
		crawler.WithDelay(s.Delay),
		crawler.WithMaxRetries(s.MaxRetries),
		crawler.WithBackoff(BackoffFunc(s.Backoff, s.MaxBackoff)),
		crawler.WithLogger(logger),
	}
	if progress != nil {
		opts = append(opts, crawler.WithProgress(progress))
	}
	return opts
}

// BackoffFunc returns the crawler backoff for a configured strategy,
// capped at limit when limit is positive.
func BackoffFunc(strategy config.BackoffStrategy, limit time.Duration) crawler.BackoffFunc {
	f := crawler.LinearBackoff
	if strategy == config.BackoffExponential {
		f = crawler.ExponentialBackoff
	}
	return crawler.CappedBackoff(f, limit)
}

// PersistStep records the run in the history database.
type PersistStep struct {
	db     *database.RunDB
	logger *slog.Logger
}

// NewPersistStep creates a step that saves runs to db.
func NewPersistStep(db *database.RunDB, logger *slog.Logger) *PersistStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersistStep{db: db, logger: logger}
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do saves the crawl result and sets run.RunID.
func (s *PersistStep) Do(ctx context.Context, run *Run) error {
	if run.Result == nil {
		return ErrNoResult
	}

	id, err := s.db.SaveRun(ctx, run.Result)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	run.RunID = id

	s.logger.Debug("run saved",
		"variant", run.Variant(),
		"run_id", id,
		"words", run.Result.WordCount(),
	)
	return nil
}

// ExportStep writes results_<variant>.json.
type ExportStep struct {
	sink   *report.FileSink
	logger *slog.Logger
}

// NewExportStep creates a step that writes words files through sink.
func NewExportStep(sink *report.FileSink, logger *slog.Logger) *ExportStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportStep{sink: sink, logger: logger}
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// Do writes the words file and sets run.ResultPath.
func (s *ExportStep) Do(ctx context.Context, run *Run) error {
	if run.Result == nil {
		return ErrNoResult
	}

	path, err := s.sink.WriteResult(ctx, run.Result)
	if err != nil {
		return err
	}
	run.ResultPath = path

	s.logger.Debug("results written", "variant", run.Variant(), "path", path)
	return nil
}
