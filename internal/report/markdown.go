package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/prefixscan/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation and
// sharing.
type MarkdownWriter struct {
	baseWriter

	// preview is the number of words listed per crawl.
	preview int
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		preview:    defaultWordPreview,
	}
}

// Write outputs one crawl in Markdown format.
func (w *MarkdownWriter) Write(result *model.CrawlResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl Report: " + result.Variant)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Variant", "`" + result.Variant + "`"},
			{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", result.Elapsed().Round(time.Millisecond).String()},
			{"Status", w.statusText(result)},
		},
	})
	md.PlainText("")

	w.writeStats(md, result)
	w.writeWords(md, result.Words)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs a table of crawls and a word distribution chart.
func (w *MarkdownWriter) WriteSummary(results []*model.CrawlResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Extraction Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(results)+1)
	for _, r := range results {
		rows = append(rows, []string{
			"`" + r.Variant + "`",
			strconv.Itoa(r.WordCount()),
			strconv.Itoa(r.Stats.Requests),
			r.Elapsed().Round(time.Millisecond).String(),
			w.statusText(r),
		})
	}
	words, requests := totals(results)
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(words) + "**", "**" + strconv.Itoa(requests) + "**", "", ""})

	md.Table(markdown.TableSet{
		Header: []string{"Variant", "Words", "API Calls", "Elapsed", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	if words > 0 {
		w.writePieChart(md, results)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		md.Warningf("%d of %d crawl(s) stopped early; their word lists are partial.", failed, len(results))
	} else {
		md.Tip("All crawls ran to completion.")
	}
	md.PlainText("")

	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) statusText(result *model.CrawlResult) string {
	if result.Error != "" {
		return "⚠️ Stopped early - " + result.Error
	}
	return "✅ Complete"
}

func (w *MarkdownWriter) writeStats(md *markdown.Markdown, result *model.CrawlResult) {
	md.H2("Statistics")
	md.PlainText("")

	s := result.Stats
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Unique words", strconv.Itoa(result.WordCount())},
			{"API calls", strconv.Itoa(s.Requests)},
			{"Successful", strconv.Itoa(s.Fetched)},
			{"Rate limited", strconv.Itoa(s.RateLimited)},
			{"Failed", strconv.Itoa(s.Failed)},
			{"Cache hits", strconv.Itoa(s.CacheHits)},
			{"Expanded", strconv.Itoa(s.Expanded)},
			{"Batches", strconv.Itoa(s.Batches)},
		},
	})
	md.PlainText("")

	if s.Failed > 0 {
		md.Importantf("%d prefix(es) produced no result because of errors or rate limiting.", s.Failed)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeWords(md *markdown.Markdown, words []string) {
	md.H2("Words")
	md.PlainText("")

	if len(words) == 0 {
		md.PlainText("No words discovered.")
		md.PlainText("")
		return
	}

	shown := words
	if len(shown) > w.preview {
		shown = shown[:w.preview]
	}
	md.BulletList(shown...)
	md.PlainText("")

	if rest := len(words) - len(shown); rest > 0 {
		md.PlainTextf("*... and %d more*", rest)
		md.PlainText("")
	}
}

// writePieChart writes a mermaid pie chart of words per variant.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, results []*model.CrawlResult) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Words per Variant"),
		piechart.WithShowData(true),
	)

	for _, r := range results {
		if r.WordCount() > 0 {
			chart.LabelAndIntValue(r.Variant, uint64(r.WordCount())) //nolint:gosec // word counts are non-negative
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [prefixscan](https://github.com/nao1215/prefixscan)*")
}
