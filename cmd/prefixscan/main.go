// Package main provides the entry point for the prefixscan CLI.
//
// prefixscan discovers the vocabulary behind an autocomplete API by
// expanding query prefixes until every word is reachable within the
// API's per-call result limit.
//
// Usage:
//
//	prefixscan crawl [variant...]
//	prefixscan history [variant]
//
// See --help for all available options.
package main

// main is the entry point for prefixscan.
func main() {
	Execute()
}
