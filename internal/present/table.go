// Package present turns extraction results into display tables.
package present

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/go-scripts/siteextract/pkg/common"
)

// CSSClass is set on the rendered HTML table.
const CSSClass = "siteextract-table"

// Table is the normalized tabular view of an ExtractionResult.
type Table struct {
	Columns []string
	// HTML is nil when there are no items.
	HTML *string
	Rows []common.Record
}

// Format builds the table for res. Every row carries exactly Columns, in
// order, with missing fields blank.
func Format(res common.ExtractionResult) Table {
	if len(res.Items) == 0 {
		return Table{Columns: []string{}, Rows: []common.Record{}}
	}

	columns := common.InferColumns(res.Columns, res.Items)
	rows := make([]common.Record, 0, len(res.Items))
	for _, item := range res.Items {
		var row common.Record
		for _, c := range columns {
			row.Set(c, item.String(c))
		}
		rows = append(rows, row)
	}

	t := Table{Columns: columns, Rows: rows}
	html := t.writer(table.StyleDefault).RenderHTML()
	t.HTML = &html
	return t
}

func (t Table) writer(style table.Style) table.Writer {
	w := table.NewWriter()
	w.SetStyle(style)
	w.Style().Format.Header = text.FormatDefault
	w.Style().HTML = table.HTMLOptions{
		CSSClass:   CSSClass,
		EscapeText: true,
		Newline:    "<br/>",
	}

	header := make(table.Row, 0, len(t.Columns))
	for _, c := range t.Columns {
		header = append(header, c)
	}
	w.AppendHeader(header)

	for _, r := range t.Rows {
		row := make(table.Row, 0, len(t.Columns))
		for _, c := range t.Columns {
			row = append(row, r.String(c))
		}
		w.AppendRow(row)
	}
	return w
}

// Text renders a rounded box table for terminals.
func (t Table) Text() string {
	if len(t.Rows) == 0 {
		return ""
	}
	return t.writer(table.StyleRounded).Render()
}

func (t Table) Markdown() string {
	if len(t.Rows) == 0 {
		return ""
	}
	return t.writer(table.StyleDefault).RenderMarkdown()
}

func (t Table) CSV() string {
	if len(t.Rows) == 0 {
		return ""
	}
	return t.writer(table.StyleDefault).RenderCSV()
}
