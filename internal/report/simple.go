package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/prefixscan/internal/model"
)

// defaultWordPreview is the number of words shown when not verbose.
const defaultWordPreview = 20

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every discovered word instead of a preview.
	verbose bool

	// preview is the number of words listed when not verbose.
	preview int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables listing every word.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithWordPreview sets how many words are listed when not verbose.
// Zero hides the word list.
func WithWordPreview(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		if n >= 0 {
			w.preview = n
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		preview:    defaultWordPreview,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs one crawl in human-readable format.
func (w *SimpleWriter) Write(result *model.CrawlResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, "CRAWL REPORT")

	sb.WriteString(fmt.Sprintf("Variant:        %s\n", result.Variant))
	sb.WriteString(fmt.Sprintf("Started:        %s\n", result.StartedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Elapsed:        %s\n", result.Elapsed().Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Status:         %s\n", statusText(result)))
	sb.WriteString("\n")

	w.writeStats(&sb, result.Stats, result.WordCount())
	w.writeWords(&sb, result.Words)

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

// WriteSummary outputs one line per crawl and the totals.
func (w *SimpleWriter) WriteSummary(results []*model.CrawlResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, "EXTRACTION SUMMARY")

	sb.WriteString(fmt.Sprintf("  %-10s %10s %10s %12s  %s\n", "VARIANT", "WORDS", "API CALLS", "ELAPSED", "STATUS"))
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("  %-10s %10d %10d %12s  %s\n",
			r.Variant,
			r.WordCount(),
			r.Stats.Requests,
			r.Elapsed().Round(time.Millisecond),
			statusText(r),
		))
	}

	words, requests := totals(results)
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  %-10s %10d %10d\n", "TOTAL", words, requests))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, title string) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%*s\n", 35+len(title)/2, title))
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeStats(sb *strings.Builder, stats model.Stats, words int) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("STATISTICS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  Unique words:   %d\n", words))
	sb.WriteString(fmt.Sprintf("  API calls:      %d\n", stats.Requests))
	sb.WriteString(fmt.Sprintf("  Successful:     %d\n", stats.Fetched))
	sb.WriteString(fmt.Sprintf("  Rate limited:   %d\n", stats.RateLimited))
	sb.WriteString(fmt.Sprintf("  Failed:         %d\n", stats.Failed))
	sb.WriteString(fmt.Sprintf("  Cache hits:     %d\n", stats.CacheHits))
	sb.WriteString(fmt.Sprintf("  Expanded:       %d\n", stats.Expanded))
	sb.WriteString(fmt.Sprintf("  Batches:        %d\n", stats.Batches))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeWords(sb *strings.Builder, words []string) {
	shown := words
	if !w.verbose && len(shown) > w.preview {
		shown = shown[:w.preview]
	}
	if len(shown) == 0 {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("WORDS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	for _, word := range shown {
		sb.WriteString(fmt.Sprintf("  %s\n", word))
	}
	if rest := len(words) - len(shown); rest > 0 {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", rest))
	}
	sb.WriteString("\n")
}
