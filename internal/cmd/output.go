package cmd

import (
	"encoding/json"
	"io"

	"github.com/olekukonko/tablewriter"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable writes rows under header.
func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(cells(header)...)
	for _, row := range rows {
		table.Append(cells(row)...)
	}
	return table.Render()
}

func cells(row []string) []any {
	out := make([]any, len(row))
	for i, c := range row {
		out[i] = c
	}
	return out
}
