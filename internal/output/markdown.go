package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders the tabular view as a Markdown table.
type MarkdownFormatter struct{}

func (f *MarkdownFormatter) Format(doc Document) (string, error) {
	var sb strings.Builder
	if doc.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(doc.Title)))
	}

	cells := make([]string, len(doc.Header))
	rules := make([]string, len(doc.Header))
	for i, h := range doc.Header {
		cells[i] = escapeMarkdownCell(h)
		rules[i] = strings.Repeat("-", max(3, len(h)))
	}
	sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	sb.WriteString("|" + strings.Join(rules, "|") + "|\n")

	for _, row := range doc.Rows {
		escaped := make([]string, len(row))
		for i, v := range row {
			escaped[i] = escapeMarkdownCell(v)
		}
		sb.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
	}

	if doc.Footer != "" {
		sb.WriteString(fmt.Sprintf("\n**%s**\n", doc.Footer))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	return strings.ReplaceAll(value, "\n", " ")
}
