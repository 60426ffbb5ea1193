// Package crawler discovers the response surface of a prefix-based
// autocomplete API.
//
// # Architecture
//
// The Crawler explores the implicit prefix tree breadth-first. Every
// single-symbol prefix is queued first; a prefix is expanded into
// prefix+symbol for every alphabet symbol only when its fetch returned a
// full page of suggestions (taken as a sign of truncation) and it is
// shorter than the maximum length.
//
// # Components
//
//   - Cache: write-once memo of suggestions per exact prefix
//   - Resolver: pacing, rate-limit retries and backoff around one fetch
//   - Frontier: FIFO prefix queue with an at-most-once guarantee
//   - Aggregator: the growing set of distinct words
//   - Crawler: the batch loop tying the above together
//
// # Politeness
//
// Every network call is preceded by the pacing delay. A rate-limited
// prefix waits an additional backoff before each retry, and one extra
// pacing delay is inserted whenever the request count crosses a multiple
// of the batch size.
//
// # Failure handling
//
// Per-prefix failures never abort a crawl. A prefix whose fetch fails, or
// which is still rate limited after the last retry, yields no words and is
// not expanded.
//
// # Usage
//
//	c := crawler.New(client, []string{"a", "b"}, crawler.WithMaxLength(2))
//	result, err := c.Crawl(ctx)
package crawler
