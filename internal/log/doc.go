// Package log builds the slog loggers used by prefixscan.
//
// Crawl logs carry whole batches of prefixes and word lists, and endpoint
// URLs that may embed credentials. The Handler in this package wraps any
// slog.Handler and rewrites attributes before they are written:
//   - string slices longer than MaxListItems are cut and summarized
//   - strings longer than MaxValueLen are truncated
//   - URL passwords are replaced with "xxxxx"
//   - values under secret-looking keys are masked
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose, false)
//	slog.SetDefault(logger)
package log
