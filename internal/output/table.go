package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter renders the tabular view as a rounded ASCII table.
type TableFormatter struct{}

func (f *TableFormatter) Format(doc Document) (string, error) {
	t := table.NewWriter()
	style := table.StyleRounded
	style.Format.Footer = text.FormatDefault
	t.SetStyle(style)
	if doc.Title != "" {
		t.SetTitle(doc.Title)
	}
	t.AppendHeader(toRow(doc.Header))

	for _, row := range doc.Rows {
		t.AppendRow(toRow(row))
	}
	if len(doc.Rows) == 0 {
		t.AppendRow(table.Row{"(no results)"})
	}

	if doc.Footer != "" {
		// The count sits under the last column; the other cells stay blank.
		footer := make(table.Row, max(len(doc.Header), 1))
		for i := range footer {
			footer[i] = ""
		}
		footer[len(footer)-1] = doc.Footer
		t.AppendFooter(footer)
	}

	return t.Render(), nil
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}
