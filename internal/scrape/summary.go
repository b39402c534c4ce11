package scrape

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// RenderSummary writes the end-of-run tables: counts, saved records and
// failing targets.
func RenderSummary(w io.Writer, run RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle(fmt.Sprintf("Scrape summary (%s)", run.Kind))
	t.AppendHeader(table.Row{"Attempted", "Succeeded", "Failed", "Skipped", "Duration"})
	t.AppendRow(table.Row{
		run.Attempted, run.Succeeded(), len(run.Failures), run.Skipped(),
		run.Duration.Round(10 * time.Millisecond),
	})
	t.Render()

	if len(run.Saved) > 0 {
		names := make([]string, 0, len(run.Saved))
		for name := range run.Saved {
			names = append(names, name)
		}
		sort.Strings(names)

		saved := table.NewWriter()
		saved.SetOutputMirror(w)
		saved.SetStyle(table.StyleRounded)
		saved.AppendHeader(table.Row{"#", "Name", "File"})
		for i, name := range names {
			saved.AppendRow(table.Row{i + 1, name, run.Saved[name]})
		}
		saved.Render()
	}

	if len(run.Failures) > 0 {
		failed := table.NewWriter()
		failed.SetOutputMirror(w)
		failed.SetStyle(table.StyleRounded)
		failed.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Reason", WidthMax: 80},
		})
		failed.AppendHeader(table.Row{"#", "Target", "Reason"})
		for i, f := range run.Failures {
			failed.AppendRow(table.Row{i + 1, f.Target, f.Reason})
		}
		failed.AppendFooter(table.Row{"", "Failed", len(run.Failures)})
		failed.Render()
	}
}
