package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/prefixscan/internal/fetch"
	"github.com/nao1215/prefixscan/internal/model"
)

// Crawler explores the prefix tree of one API variant.
//
// The Crawler itself holds only configuration. Every call to Crawl builds
// a fresh session (cache, frontier, aggregator, counters), so independent
// crawls can run concurrently on the same or different Crawlers.
type Crawler struct {
	// fetcher performs the network calls.
	fetcher fetch.Fetcher

	// alphabet is the ordered set of expansion symbols.
	alphabet []string

	// variant names the crawl in logs and results.
	variant string

	// maxLength bounds the prefix length in symbols.
	maxLength int

	// maxConcurrent is the number of prefixes fetched per batch.
	maxConcurrent int

	// maxResults is the page size used as the saturation signal.
	maxResults int

	// delay is the pacing delay.
	delay time.Duration

	// maxRetries is the rate-limit retry ceiling per prefix.
	maxRetries int

	// backoff computes the wait before each retry.
	backoff BackoffFunc

	// logger is used for crawl-level logging.
	logger *slog.Logger

	// onProgress is called after every batch, if set.
	onProgress func(model.Progress)

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithVariant sets the variant name recorded in the result.
func WithVariant(name string) Option {
	return func(c *Crawler) {
		c.variant = name
	}
}

// WithMaxLength sets the maximum prefix length.
func WithMaxLength(n int) Option {
	return func(c *Crawler) {
		c.maxLength = n
	}
}

// WithMaxConcurrentRequests sets the batch size.
// Non-positive values are ignored.
func WithMaxConcurrentRequests(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithMaxResultsPerCall sets the API page size.
// Non-positive values are ignored.
func WithMaxResultsPerCall(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithDelay sets the pacing delay.
func WithDelay(d time.Duration) Option {
	return func(c *Crawler) {
		c.delay = d
	}
}

// WithMaxRetries sets the rate-limit retry ceiling.
func WithMaxRetries(n int) Option {
	return func(c *Crawler) {
		c.maxRetries = n
	}
}

// WithBackoff sets the backoff function.
func WithBackoff(f BackoffFunc) Option {
	return func(c *Crawler) {
		if f != nil {
			c.backoff = f
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		c.logger = logger
	}
}

// WithProgress registers a callback invoked after every batch.
// The callback runs on the crawl goroutine and should return quickly.
func WithProgress(fn func(model.Progress)) Option {
	return func(c *Crawler) {
		c.onProgress = fn
	}
}

// New creates a Crawler that queries f over the given alphabet.
func New(f fetch.Fetcher, alphabet []string, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:       f,
		alphabet:      append([]string(nil), alphabet...),
		maxLength:     3,
		maxConcurrent: 5,
		maxResults:    15,
		delay:         600 * time.Millisecond,
		maxRetries:    5,
		backoff:       LinearBackoff,
		sleep:         sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// session is the mutable state of one crawl.
type session struct {
	resolver   *Resolver
	frontier   *Frontier
	aggregator *Aggregator
	batches    int
	expanded   int

	// pauses is the number of extra pacing delays inserted so far.
	pauses int
}

// Crawl runs the crawl to completion and returns the result.
//
// The crawl ends when the frontier is empty. If ctx is cancelled first,
// Crawl returns the partial result together with ctx.Err(). Individual
// prefix failures never produce an error.
func (c *Crawler) Crawl(ctx context.Context) (*model.CrawlResult, error) {
	s := c.newSession()
	result := &model.CrawlResult{
		Variant:   c.variant,
		StartedAt: time.Now(),
	}

	for _, symbol := range c.alphabet {
		if model.PrefixLen(symbol) <= c.maxLength {
			s.frontier.Push(symbol)
		}
	}

	c.logger.Info("starting crawl",
		"variant", c.variant,
		"alphabet_size", len(c.alphabet),
		"max_length", c.maxLength,
		"max_prefixes", model.MaxPrefixes(len(c.alphabet), c.maxLength),
	)

	var err error
	for s.frontier.Len() > 0 {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = c.step(ctx, s); err != nil {
			break
		}
	}

	c.finish(s, result, err)

	c.logger.Info("crawl complete",
		"variant", c.variant,
		"words", result.WordCount(),
		"requests", result.Stats.Requests,
		"elapsed", result.Elapsed(),
	)

	return result, err
}

func (c *Crawler) newSession() *session {
	resolver := NewResolver(c.fetcher, NewCache(), ResolverOptions{
		Delay:      c.delay,
		MaxRetries: c.maxRetries,
		Backoff:    c.backoff,
		Logger:     c.logger,
	})
	resolver.sleep = c.sleep

	return &session{
		resolver:   resolver,
		frontier:   NewFrontier(),
		aggregator: NewAggregator(),
	}
}

// step runs one batch: pop, resolve concurrently, wait for all, then merge
// and expand in batch order.
func (c *Crawler) step(ctx context.Context, s *session) error {
	batch := s.frontier.PopBatch(c.maxConcurrent)
	results := make([][]string, len(batch))

	var wg sync.WaitGroup
	for i, prefix := range batch {
		wg.Go(func() {
			results[i] = s.resolver.Resolve(ctx, prefix)
		})
	}
	wg.Wait()

	s.batches++

	for _, words := range results {
		s.aggregator.Merge(words)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, prefix := range batch {
		if c.shouldExpand(prefix, results[i]) {
			for _, child := range model.Children(prefix, c.alphabet) {
				s.frontier.Push(child)
			}
			s.expanded++
		}
	}

	stats := s.resolver.Stats()
	c.logger.Debug("batch complete",
		"variant", c.variant,
		"batch", s.batches,
		"prefixes", batch,
		"queued", s.frontier.Len(),
		"words", s.aggregator.Len(),
		"requests", stats.Requests,
	)

	if c.onProgress != nil {
		c.onProgress(model.Progress{
			Batch:    s.batches,
			Queued:   s.frontier.Len(),
			Words:    s.aggregator.Len(),
			Requests: stats.Requests,
		})
	}

	// Extra pacing whenever the request count crosses another multiple of
	// the batch size.
	if bucket := stats.Requests / c.maxConcurrent; bucket > s.pauses && s.frontier.Len() > 0 {
		s.pauses = bucket
		return c.sleep(ctx, c.delay)
	}

	return nil
}

// shouldExpand reports whether a prefix's children should be queued:
// its fetch returned exactly a full page and it is below the length cap.
func (c *Crawler) shouldExpand(prefix string, words []string) bool {
	return len(words) == c.maxResults && model.PrefixLen(prefix) < c.maxLength
}

func (c *Crawler) finish(s *session, result *model.CrawlResult, err error) {
	_, result.Words = s.aggregator.Snapshot()
	result.Stats = s.resolver.Stats()
	result.Stats.Batches = s.batches
	result.Stats.Expanded = s.expanded
	result.FinishedAt = time.Now()
	if err != nil {
		result.Error = err.Error()
	}
}
