package report

import (
	"io"

	"github.com/nao1215/prefixscan/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report for a single crawl.
	// Returns the number of bytes written and any error encountered.
	Write(result *model.CrawlResult) (int, error)

	// WriteSummary outputs a compact overview of several crawls.
	WriteSummary(results []*model.CrawlResult) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result *model.CrawlResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(results []*model.CrawlResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(results)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText describes how a crawl ended.
func statusText(result *model.CrawlResult) string {
	if result.Error != "" {
		return "Stopped early - " + result.Error
	}
	return "Complete"
}

// totals sums words and fetch attempts over results.
func totals(results []*model.CrawlResult) (words, requests int) {
	for _, r := range results {
		words += r.WordCount()
		requests += r.Stats.Requests
	}
	return words, requests
}
