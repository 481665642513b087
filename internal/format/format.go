// Package format renders retrieval diagnostics and ingestion reports as
// terminal or Markdown tables.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"docqa/internal/confidence"
	"docqa/internal/domain"
	"docqa/internal/service"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode maps "table"/"ascii" and "markdown"/"md" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "table", "ascii":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return ASCII, fmt.Errorf("unknown output format %q", s)
}

func newWriter(m Mode) table.Writer {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return w
}

func render(w table.Writer, m Mode) string {
	if m == Markdown {
		return w.RenderMarkdown()
	}
	return w.Render()
}

// PreviewWidth bounds the preview column in Hits.
const PreviewWidth = 60

// Preview collapses whitespace and truncates text to at most n runes.
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// Hits renders ranked search results with the tier each distance would get
// as best match.
func Hits(m Mode, hits []domain.ScoredChunk, cls confidence.Classifier, precision int) string {
	w := newWriter(m)
	w.AppendHeader(table.Row{"#", "Distance", "Tier", "Source", "Preview"})
	for i, h := range hits {
		tier, _ := cls.Classify(h.Distance)
		w.AppendRow(table.Row{i + 1, strconv.FormatFloat(h.Distance, 'f', precision, 64), tier.String(), h.Chunk.Source, Preview(h.Chunk.Content, PreviewWidth)})
	}
	if len(hits) == 0 {
		w.AppendRow(table.Row{"-", "", "", "", "no results"})
	}
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 5, WidthMax: PreviewWidth},
	})
	return render(w, m)
}

// Report renders an ingestion summary.
func Report(m Mode, r service.Report) string {
	w := newWriter(m)
	w.AppendHeader(table.Row{"Field", "Value"})
	w.AppendRow(table.Row{"Documents", r.Documents})
	w.AppendRow(table.Row{"Chunks", r.Chunks})
	w.AppendRow(table.Row{"Embedder", r.Embedder})
	w.AppendRow(table.Row{"Dimension", r.Dimension})
	w.AppendRow(table.Row{"Elapsed", r.Elapsed.Round(1e6).String()})
	if len(r.Skipped) > 0 {
		w.AppendRow(table.Row{"Skipped (no text)", strings.Join(r.Skipped, ", ")})
	}
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 80}})
	return render(w, m)
}
