// Package pipeline runs the per-variant stages of an extraction in sequence.
//
// Every variant gets a Run that flows through the steps: CrawlStep explores
// the prefix tree, PersistStep records the run in the history database and
// ExportStep writes the words file. BatchProcessor runs the pipelines of
// several variants with bounded concurrency using errgroup.
package pipeline
