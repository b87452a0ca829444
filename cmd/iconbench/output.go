package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/ethpandaops/iconbench/pkg/record"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#2C4A54"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16858E"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...)
}

// printRecord prints the ranking of a finished suite.
func printRecord(w io.Writer, rec *record.RunRecord) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s %s (%s)",
		rec.Format, rec.TestType, rec.TestResultID)))

	t := newTable("#", "Icon Type", "Average", "95% CI", "Std Dev", "n").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return cellStyle
		})

	for _, e := range rec.PerformanceRanking {
		t.Row(
			fmt.Sprintf("%d", e.Rank),
			e.IconType,
			fmt.Sprintf("%.2f ms", e.AverageTime),
			fmt.Sprintf("%.2f to %.2f", e.ConfidenceInterval.Lower, e.ConfidenceInterval.Upper),
			fmt.Sprintf("%.2f", e.StandardDeviation),
			fmt.Sprintf("%d", e.SampleSize),
		)
	}

	fmt.Fprintln(w, t.Render())
}

// printRecordList prints one line per record. Inactive records are muted.
func printRecordList(w io.Writer, records []*record.RunRecord) {
	t := newTable("Result", "Format", "Test Type", "Source", "Started", "Duration", "Fastest", "Active")

	for _, rec := range records {
		fastest := "-"
		if len(rec.PerformanceRanking) > 0 {
			fastest = rec.PerformanceRanking[0].IconType
		}

		started := "-"
		if !rec.StartTime.IsZero() {
			started = rec.StartTime.Local().Format("2006-01-02 15:04:05")
		}

		active := "yes"
		if !rec.Active {
			active = "no"
		}

		t.Row(
			rec.TestResultID,
			string(rec.Format),
			rec.TestType,
			string(rec.Source),
			started,
			rec.Duration().Round(time.Millisecond).String(),
			fastest,
			active,
		)
	}

	t.StyleFunc(func(row, _ int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}

		if row >= 0 && row < len(records) && !records[row].Active {
			return mutedStyle
		}

		return cellStyle
	})

	fmt.Fprintln(w, t.Render())
}
