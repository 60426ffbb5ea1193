package crawler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/prefixscan/internal/fetch"
	"github.com/nao1215/prefixscan/internal/model"
)

// BackoffFunc returns the wait before retry number retry (0-based) after
// a rate-limit response, given the pacing delay.
type BackoffFunc func(delay time.Duration, retry int) time.Duration

// LinearBackoff waits delay*(retry+1).
func LinearBackoff(delay time.Duration, retry int) time.Duration {
	return delay * time.Duration(retry+1)
}

// ExponentialBackoff waits delay*2^retry.
func ExponentialBackoff(delay time.Duration, retry int) time.Duration {
	if retry > 30 {
		retry = 30
	}
	return delay << uint(retry) //nolint:gosec // retry is clamped above
}

// CappedBackoff limits every wait of f to limit. A non-positive limit
// returns f unchanged.
func CappedBackoff(f BackoffFunc, limit time.Duration) BackoffFunc {
	if limit <= 0 {
		return f
	}
	return func(delay time.Duration, retry int) time.Duration {
		if d := f(delay, retry); d < limit {
			return d
		}
		return limit
	}
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// Delay is waited before every network call and is the backoff unit.
	Delay time.Duration

	// MaxRetries is the number of retries after a rate-limit response.
	MaxRetries int

	// Backoff computes the wait before each retry. Nil means LinearBackoff.
	Backoff BackoffFunc

	// Logger receives per-prefix warnings. Nil means slog.Default().
	Logger *slog.Logger
}

// Resolver turns one "get suggestions for prefix" request into a resilient
// operation: cache lookup, pacing, bounded retries on rate limiting.
// It is safe for concurrent use.
type Resolver struct {
	fetcher    fetch.Fetcher
	cache      *Cache
	delay      time.Duration
	maxRetries int
	backoff    BackoffFunc
	logger     *slog.Logger

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	stats model.Stats
}

// NewResolver creates a Resolver that fetches through f and memoizes in cache.
func NewResolver(f fetch.Fetcher, cache *Cache, opts ResolverOptions) *Resolver {
	r := &Resolver{
		fetcher:    f,
		cache:      cache,
		delay:      opts.Delay,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		logger:     opts.Logger,
		sleep:      sleep,
	}
	if r.backoff == nil {
		r.backoff = LinearBackoff
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.maxRetries < 0 {
		r.maxRetries = 0
	}
	return r
}

// Resolve returns the suggestions for prefix.
//
// Failures are absorbed: a transport error, exhausted retries, or a done
// context all yield an empty result. Only successful fetches are cached.
func (r *Resolver) Resolve(ctx context.Context, prefix string) []string {
	if words, ok := r.cache.Lookup(prefix); ok {
		r.record(func(s *model.Stats) { s.CacheHits++ })
		return words
	}

	for retry := 0; ; retry++ {
		if err := r.sleep(ctx, r.delay); err != nil {
			return []string{}
		}

		r.record(func(s *model.Stats) { s.Requests++ })
		words, err := r.fetcher.Fetch(ctx, prefix)
		if err == nil {
			if words == nil {
				words = []string{}
			}
			r.cache.Store(prefix, words)
			r.record(func(s *model.Stats) { s.Fetched++ })
			return words
		}

		if ctx.Err() != nil {
			return []string{}
		}

		if !errors.Is(err, fetch.ErrRateLimited) {
			r.logger.Warn("fetch failed", "prefix", prefix, "error", err)
			r.record(func(s *model.Stats) { s.Failed++ })
			return []string{}
		}

		r.record(func(s *model.Stats) { s.RateLimited++ })
		if retry >= r.maxRetries {
			r.logger.Warn("giving up after rate limiting",
				"prefix", prefix,
				"retries", retry,
			)
			r.record(func(s *model.Stats) { s.Failed++ })
			return []string{}
		}

		wait := r.backoff(r.delay, retry)
		r.logger.Warn("rate limited, retrying",
			"prefix", prefix,
			"retry", retry+1,
			"wait", wait,
		)
		if err := r.sleep(ctx, wait); err != nil {
			return []string{}
		}
	}
}

// Stats returns a copy of the resolver counters.
func (r *Resolver) Stats() model.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Resolver) record(update func(*model.Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	update(&r.stats)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
