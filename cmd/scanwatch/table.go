package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// queueTable renders the queue listing with the numeric ID column
// right-aligned.
func queueTable(rows [][]string) string {
	return renderRows(
		table.Row{"ID", "File", "Status", "Stage", "Type", "Final Name"},
		rows,
		[]table.ColumnConfig{{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft}},
	)
}

// countTable renders per-status queue counts.
func countTable(rows [][]string) string {
	return renderRows(
		table.Row{"Status", "Count"},
		rows,
		[]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft}},
	)
}

func renderRows(header table.Row, rows [][]string, configs []table.ColumnConfig) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}
