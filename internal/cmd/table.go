package cmd

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// printTable renders rows under header to w. Plain output is CSV without a title, for scripts.
func printTable(w io.Writer, title string, header table.Row, rows []table.Row, plain bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)
	t.AppendRows(rows)

	if plain {
		t.RenderCSV()
		return
	}

	t.Style().Format.Header = text.FormatDefault
	if title != "" {
		t.SetTitle(title)
	}
	t.Render()
}
