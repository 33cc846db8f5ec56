package tools

import (
	"fmt"
	"strings"
)

// markdownTable renders rows as a pipe table followed by a row count.
func markdownTable(columns []string, rows [][]any) string {
	if len(columns) == 0 || len(rows) == 0 {
		return "No data to display."
	}
	var b strings.Builder
	writeRow(&b, columns)
	sep := make([]string, len(columns))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(&b, sep)
	cells := make([]string, len(columns))
	for _, row := range rows {
		for i := range cells {
			cells[i] = "NULL"
			if i < len(row) && row[i] != nil {
				cells[i] = cell(row[i])
			}
		}
		writeRow(&b, cells)
	}
	fmt.Fprintf(&b, "\n*%d row(s) returned*", len(rows))
	return b.String()
}

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

func cell(v any) string {
	s := fmt.Sprint(v)
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
