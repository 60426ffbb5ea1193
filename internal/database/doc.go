// Package database provides SQLite-based run history for prefixscan.
//
// RunDB stores every completed crawl, its counters and its word list,
// so later runs can be listed and compared. Runs are identified by
// time-ordered UUIDv7 strings.
//
// The database is a single file opened through modernc.org/sqlite, a
// CGO-free driver, with WAL enabled and a single connection.
package database
