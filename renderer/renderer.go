// Package renderer turns portfolio state and cycle results into markdown
// reports.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/etnz/tradeloop"
)

//go:embed templates/*.md
var templates embed.FS

// funcs are the formatting helpers available to every template.
var funcs = template.FuncMap{
	"usd": tradeloop.FormatUSD,
	"pct": func(v float64) string { return fmt.Sprintf("%+.2f%%", v) },
	"dec": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"confpct": func(v float64) string {
		return fmt.Sprintf("%.0f%%", v*100)
	},
}

// Summary is the data a summary report renders: the portfolio valued at the
// latest known price.
type Summary struct {
	Identity string
	Ticker   string
	Price    float64
	tradeloop.PortfolioSummary
}

// SummaryMarkdown renders a portfolio summary report.
func SummaryMarkdown(s *Summary) string {
	return renderTemplate("summary", "templates/summary.md", nil, s)
}

// History is the data a trade history report renders.
type History struct {
	Identity string
	Trades   []tradeloop.TradeRecord
}

// HistoryMarkdown renders the trade log as a markdown table, oldest first.
func HistoryMarkdown(h *History) string {
	return renderTemplate("history", "templates/history.md", nil, h)
}

// CycleMarkdown renders the outcome of one trading cycle.
func CycleMarkdown(r *tradeloop.CycleResult) string {
	partials := map[string]string{
		"cycle_decision":  "templates/cycle_decision.md",
		"cycle_execution": "templates/cycle_execution.md",
	}
	return renderTemplate("cycle", "templates/cycle.md", partials, r)
}

// renderTemplate renders a main template that may depend on named partials.
// Template errors come back as the rendered string: reports are best effort
// and never fail the loop.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		content, err := fs.ReadFile(templates, file)
		if err != nil {
			return fmt.Sprintf("error reading partial template %q: %v", file, err)
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
