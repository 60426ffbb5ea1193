package crawler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/prefixscan/internal/fetch"
)

// TestCache tests write-once memoization.
func TestCache(t *testing.T) {
	t.Parallel()

	t.Run("lookup miss", func(t *testing.T) {
		t.Parallel()

		c := NewCache()
		if _, ok := c.Lookup("a"); ok {
			t.Error("expected miss on empty cache")
		}
	})

	t.Run("first store wins", func(t *testing.T) {
		t.Parallel()

		c := NewCache()
		c.Store("a", []string{"apple"})
		c.Store("a", []string{"other"})

		got, ok := c.Lookup("a")
		if !ok || len(got) != 1 || got[0] != "apple" {
			t.Errorf("expected [apple], got %v (ok=%v)", got, ok)
		}
		if c.Len() != 1 {
			t.Errorf("expected 1 entry, got %d", c.Len())
		}
	})

	t.Run("empty result is cached", func(t *testing.T) {
		t.Parallel()

		c := NewCache()
		c.Store("zz", []string{})
		got, ok := c.Lookup("zz")
		if !ok || len(got) != 0 {
			t.Errorf("expected cached empty result, got %v (ok=%v)", got, ok)
		}
	})

	t.Run("concurrent stores", func(t *testing.T) {
		t.Parallel()

		c := NewCache()
		var wg sync.WaitGroup
		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Store(string(rune('a'+i%5)), []string{"w"})
				c.Lookup("a")
			}()
		}
		wg.Wait()

		if c.Len() != 5 {
			t.Errorf("expected 5 entries, got %d", c.Len())
		}
	})
}

// TestFrontier tests FIFO order and deduplication.
func TestFrontier(t *testing.T) {
	t.Parallel()

	t.Run("pops in insertion order", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		for _, p := range []string{"a", "b", "c", "d", "e"} {
			f.Push(p)
		}

		first := f.PopBatch(2)
		second := f.PopBatch(2)
		third := f.PopBatch(2)

		if len(first) != 2 || first[0] != "a" || first[1] != "b" {
			t.Errorf("unexpected first batch %v", first)
		}
		if len(second) != 2 || second[0] != "c" || second[1] != "d" {
			t.Errorf("unexpected second batch %v", second)
		}
		if len(third) != 1 || third[0] != "e" {
			t.Errorf("unexpected third batch %v", third)
		}
		if f.Len() != 0 {
			t.Errorf("expected empty frontier, got %d", f.Len())
		}
	})

	t.Run("rejects prefixes pushed before", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		if !f.Push("a") {
			t.Fatal("expected first push to succeed")
		}
		if f.Push("a") {
			t.Error("expected duplicate push to be rejected")
		}

		f.PopBatch(1)
		if f.Push("a") {
			t.Error("expected push of dequeued prefix to be rejected")
		}
		if !f.Push("b") {
			t.Error("expected new prefix to be accepted")
		}
	})

	t.Run("batch is independent of the queue", func(t *testing.T) {
		t.Parallel()

		f := NewFrontier()
		f.Push("a")
		f.Push("b")
		batch := f.PopBatch(1)
		f.Push("c")

		if batch[0] != "a" {
			t.Errorf("batch was modified: %v", batch)
		}
	})

	t.Run("pop on empty frontier", func(t *testing.T) {
		t.Parallel()

		if got := NewFrontier().PopBatch(5); len(got) != 0 {
			t.Errorf("expected empty batch, got %v", got)
		}
	})
}

// TestAggregator tests the grow-only word set.
func TestAggregator(t *testing.T) {
	t.Parallel()

	a := NewAggregator()

	if n := a.Merge([]string{"apple", "ant"}); n != 2 {
		t.Errorf("expected 2 new words, got %d", n)
	}
	if n := a.Merge([]string{"ant", "bee", "bee"}); n != 1 {
		t.Errorf("expected 1 new word, got %d", n)
	}
	if n := a.Merge(nil); n != 0 {
		t.Errorf("expected 0 new words, got %d", n)
	}

	count, words := a.Snapshot()
	if count != 3 || a.Len() != 3 {
		t.Fatalf("expected 3 words, got %d", count)
	}
	want := []string{"apple", "ant", "bee"}
	for i := range want {
		if words[i] != want[i] {
			t.Errorf("word %d: expected %q, got %q", i, want[i], words[i])
		}
	}

	words[0] = "mutated"
	if _, again := a.Snapshot(); again[0] != "apple" {
		t.Error("snapshot shares storage with the aggregator")
	}
}

// TestBackoffFuncs tests the retry wait schedules.
func TestBackoffFuncs(t *testing.T) {
	t.Parallel()

	d := 100 * time.Millisecond

	tests := []struct {
		name string
		f    BackoffFunc
		want []time.Duration
	}{
		{"linear", LinearBackoff, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}},
		{"exponential", ExponentialBackoff, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}},
		{"capped exponential", CappedBackoff(ExponentialBackoff, 250*time.Millisecond), []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}},
		{"zero cap", CappedBackoff(LinearBackoff, 0), []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			for retry, want := range tt.want {
				if got := tt.f(d, retry); got != want {
					t.Errorf("retry %d: expected %v, got %v", retry, want, got)
				}
			}
		})
	}

	t.Run("exponential does not overflow", func(t *testing.T) {
		t.Parallel()

		if got := ExponentialBackoff(time.Nanosecond, 1000); got <= 0 {
			t.Errorf("expected positive wait, got %v", got)
		}
	})
}

// newTestResolver builds a resolver whose waits are recorded instead of slept.
func newTestResolver(f fetch.Fetcher, opts ResolverOptions) (*Resolver, *sleepRecorder) {
	rec := &sleepRecorder{}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	r := NewResolver(f, NewCache(), opts)
	r.sleep = rec.sleep
	return r, rec
}

// TestResolver tests caching, pacing, and retry behavior.
func TestResolver(t *testing.T) {
	t.Parallel()

	t.Run("second resolve is served from cache", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{answers: map[string][]string{"a": {"apple"}}}
		r, _ := newTestResolver(f, ResolverOptions{MaxRetries: 5})

		first := r.Resolve(context.Background(), "a")
		second := r.Resolve(context.Background(), "a")

		if len(f.Calls()) != 1 {
			t.Errorf("expected 1 fetch, got %d", len(f.Calls()))
		}
		if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
			t.Errorf("expected identical results, got %v and %v", first, second)
		}
		stats := r.Stats()
		if stats.CacheHits != 1 || stats.Requests != 1 || stats.Fetched != 1 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("nil result becomes empty", func(t *testing.T) {
		t.Parallel()

		f := fetch.FetcherFunc(func(context.Context, string) ([]string, error) { return nil, nil })
		r, _ := newTestResolver(f, ResolverOptions{})

		if got := r.Resolve(context.Background(), "a"); got == nil || len(got) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", got)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{errs: map[string]error{"a": &fetch.RateLimitError{Prefix: "a", StatusCode: 429}}}
		r, rec := newTestResolver(f, ResolverOptions{
			Delay:      10 * time.Millisecond,
			MaxRetries: 3,
		})

		got := r.Resolve(context.Background(), "a")
		if len(got) != 0 {
			t.Errorf("expected empty result, got %v", got)
		}
		if n := len(f.Calls()); n != 4 {
			t.Errorf("expected 4 fetches (1 + 3 retries), got %d", n)
		}

		ms := time.Millisecond
		want := []time.Duration{10 * ms, 10 * ms, 10 * ms, 20 * ms, 10 * ms, 30 * ms, 10 * ms}
		waits := rec.Waits()
		if len(waits) != len(want) {
			t.Fatalf("expected waits %v, got %v", want, waits)
		}
		for i := range want {
			if waits[i] != want[i] {
				t.Errorf("wait %d: expected %v, got %v", i, want[i], waits[i])
			}
		}

		stats := r.Stats()
		if stats.RateLimited != 4 || stats.Failed != 1 || stats.Requests != 4 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("zero retries makes one attempt", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{errs: map[string]error{"a": &fetch.RateLimitError{Prefix: "a"}}}
		r, _ := newTestResolver(f, ResolverOptions{MaxRetries: 0})

		r.Resolve(context.Background(), "a")
		if n := len(f.Calls()); n != 1 {
			t.Errorf("expected 1 fetch, got %d", n)
		}
	})

	t.Run("recovers after rate limiting", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		attempts := 0
		f := fetch.FetcherFunc(func(_ context.Context, p string) ([]string, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return nil, &fetch.RateLimitError{Prefix: p}
			}
			return []string{"ok"}, nil
		})
		r, _ := newTestResolver(f, ResolverOptions{MaxRetries: 5})

		got := r.Resolve(context.Background(), "a")
		if len(got) != 1 || got[0] != "ok" {
			t.Errorf("expected [ok], got %v", got)
		}
		if _, ok := r.cache.Lookup("a"); !ok {
			t.Error("expected successful result to be cached")
		}
	})

	t.Run("transport error is not retried or cached", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{errs: map[string]error{"a": &fetch.TransportError{Prefix: "a", Err: errors.New("boom")}}}
		r, _ := newTestResolver(f, ResolverOptions{MaxRetries: 5})

		r.Resolve(context.Background(), "a")
		r.Resolve(context.Background(), "a")

		if n := len(f.Calls()); n != 2 {
			t.Errorf("expected 2 fetches, got %d", n)
		}
		if r.cache.Len() != 0 {
			t.Error("expected failure not to be cached")
		}
		if s := r.Stats(); s.Failed != 2 {
			t.Errorf("expected 2 failures, got %d", s.Failed)
		}
	})

	t.Run("cancelled context yields empty result", func(t *testing.T) {
		t.Parallel()

		f := &fakeFetcher{answers: map[string][]string{"a": {"apple"}}}
		r, _ := newTestResolver(f, ResolverOptions{})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if got := r.Resolve(ctx, "a"); len(got) != 0 {
			t.Errorf("expected empty result, got %v", got)
		}
		if len(f.Calls()) != 0 {
			t.Error("expected no fetch after cancellation")
		}
	})
}

// TestSleep tests the context-aware wait.
func TestSleep(t *testing.T) {
	t.Parallel()

	if err := sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
