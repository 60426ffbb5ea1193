// Package model defines the core data structures used throughout prefixscan.
//
// This package contains the following main types:
//   - Prefix helpers: length and child generation over an alphabet
//   - Stats: counters collected while a crawl runs
//   - CrawlResult: the words and statistics of one finished crawl
//   - Summary: the compact per-variant record written to the summary file
//
// The crawler, pipeline, report and database packages all share these types.
package model
