package report

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"github.com/nao1215/prefixscan/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// version is recorded in every report.
	version string

	// now returns the summary timestamp. Tests replace it.
	now func() time.Time
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the prefixscan version in reports.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport wraps a crawl result with metadata.
type JSONReport struct {
	// Version is the prefixscan version that produced the report.
	Version string `json:"version,omitempty"`

	// ElapsedMS is the crawl duration in milliseconds.
	ElapsedMS int64 `json:"elapsed_ms"`

	// Result is the full crawl result.
	Result *model.CrawlResult `json:"result"`
}

// SummaryReport is the extraction summary of several crawls.
// Its layout matches extraction_summary.json.
type SummaryReport struct {
	Timestamp time.Time                `json:"timestamp"`
	Results   map[string]model.Summary `json:"results"`
}

// NewSummaryReport builds the summary of results at time ts.
// Results are keyed by variant; a later result replaces an earlier one
// for the same variant.
func NewSummaryReport(results []*model.CrawlResult, ts time.Time) *SummaryReport {
	s := &SummaryReport{
		Timestamp: ts.UTC(),
		Results:   make(map[string]model.Summary, len(results)),
	}
	for _, r := range results {
		s.Results[r.Variant] = r.Summary()
	}
	return s
}

// Write outputs one crawl wrapped with metadata.
func (w *JSONWriter) Write(result *model.CrawlResult) (int, error) {
	return w.writeJSON(&JSONReport{
		Version:   w.version,
		ElapsedMS: result.Elapsed().Milliseconds(),
		Result:    result,
	})
}

// WriteSummary outputs the extraction summary of results.
func (w *JSONWriter) WriteSummary(results []*model.CrawlResult) (int, error) {
	return w.writeJSON(NewSummaryReport(results, w.now()))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	data, err := marshal(v, w.indent, w.indentPrefix, w.indentString)
	if err != nil {
		return 0, err
	}
	return w.output.Write(data)
}

// marshal encodes v with a trailing newline. HTML characters are written
// as is; words may contain <, > and &.
func marshal(v any, indent bool, prefix, indentString string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent(prefix, indentString)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
