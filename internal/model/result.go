package model

import "time"

// Stats holds the counters of one crawl.
type Stats struct {
	// Requests is every network call issued, including rate-limited
	// retries and failed calls.
	Requests int `json:"requests"`

	// Fetched is the number of network calls that returned suggestions.
	Fetched int `json:"fetched"`

	// RateLimited is the number of rate-limit responses received.
	RateLimited int `json:"rate_limited"`

	// Failed is the number of prefixes that produced no result because of
	// an error or exhausted retries.
	Failed int `json:"failed"`

	// CacheHits is the number of resolutions served without a network call.
	CacheHits int `json:"cache_hits"`

	// Expanded is the number of prefixes whose children were queued.
	Expanded int `json:"expanded"`

	// Batches is the number of batch steps the scheduler ran.
	Batches int `json:"batches"`
}

// CrawlResult is the outcome of one crawl of one API variant.
type CrawlResult struct {
	// Variant is the API variant name.
	Variant string `json:"variant"`

	// Words are the distinct suggestions in the order they were first seen.
	Words []string `json:"words"`

	// Stats are the crawl counters.
	Stats Stats `json:"stats"`

	// StartedAt and FinishedAt bound the crawl in wall-clock time.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Error holds the reason a crawl ended early, if it did.
	// A crawl that ran to completion has an empty Error.
	Error string `json:"error,omitempty"`
}

// WordCount returns the number of distinct words.
func (r *CrawlResult) WordCount() int {
	return len(r.Words)
}

// Elapsed returns the crawl duration.
func (r *CrawlResult) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary returns the compact record of this result.
func (r *CrawlResult) Summary() Summary {
	return Summary{
		Variant:       r.Variant,
		FetchAttempts: r.Stats.Requests,
		WordCount:     r.WordCount(),
	}
}

// Summary is the per-variant record handed to the results sink.
// The JSON field names match the extraction summary file format.
type Summary struct {
	Variant       string `json:"-"`
	WordCount     int    `json:"wordCount"`
	FetchAttempts int    `json:"apiCalls"`
}

// Progress is reported after every batch step of a crawl.
type Progress struct {
	Batch    int
	Queued   int
	Words    int
	Requests int
}
