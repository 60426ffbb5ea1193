// Package report writes crawl results.
//
// Two kinds of output live here:
//   - Writers (SimpleWriter, MarkdownWriter, JSONWriter) render a result or
//     a multi-variant summary for people or tools.
//   - FileSink persists the crawl artifacts: results_<variant>.json with the
//     discovered words and extraction_summary.json with per-variant counts.
//
// Writers implement the Writer interface, so they can be used
// interchangeably and combined with MultiWriter.
package report
