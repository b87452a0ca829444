// Package report renders run records as markdown summaries.
package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/stats"
	"github.com/ethpandaops/iconbench/pkg/sysinfo"
	"github.com/mitchellh/mapstructure"
)

// GenerateRecordMarkdown generates a markdown summary of rec. The output
// is capped at maxChars characters (0 means no cap); the comparison table
// is truncated first.
func GenerateRecordMarkdown(rec *record.RunRecord, maxChars int) string {
	var sb strings.Builder

	sb.Grow(4096)

	writeTitle(&sb, rec)
	writeOverview(&sb, rec)
	writeRanking(&sb, rec)
	writeResults(&sb, rec)
	writeSystem(&sb, decodeSystem(rec.SystemSpecifications))
	writeMetadata(&sb, rec.TestMetadata)

	// Comparisons are last; they get truncated if needed.
	writeComparisons(&sb, rec.StatisticalAnalysis, maxChars)

	return sb.String()
}

func writeTitle(sb *strings.Builder, rec *record.RunRecord) {
	fmt.Fprintf(sb, "# Icon Benchmark: %s (%s)\n\n", strings.ToUpper(string(rec.Format)), rec.TestResultID)
}

func writeOverview(sb *strings.Builder, rec *record.RunRecord) {
	sb.WriteString("## Overview\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	fmt.Fprintf(sb, "| Run | `%s` |\n", rec.RunID)
	fmt.Fprintf(sb, "| Suite Run | `%s` |\n", rec.SuiteRunID)

	if rec.TestType != "" {
		fmt.Fprintf(sb, "| Test Type | %s |\n", rec.TestType)
	}

	if rec.Iterations > 0 {
		fmt.Fprintf(sb, "| Iterations | %d |\n", rec.Iterations)
	}

	fmt.Fprintf(sb, "| Source | %s |\n", rec.Source)

	if rec.ImportedFileName != "" {
		fmt.Fprintf(sb, "| Imported From | %s |\n", rec.ImportedFileName)
	}

	if !rec.Active {
		sb.WriteString("| Active | no |\n")
	}

	if !rec.StartTime.IsZero() {
		fmt.Fprintf(sb, "| Started | %s |\n",
			rec.StartTime.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	if rec.DurationMs > 0 {
		fmt.Fprintf(sb, "| Duration | %s |\n", formatDuration(rec.Duration()))
	}

	sb.WriteByte('\n')
}

func writeRanking(sb *strings.Builder, rec *record.RunRecord) {
	if len(rec.PerformanceRanking) == 0 {
		return
	}

	sb.WriteString("## Ranking\n\n")
	sb.WriteString("| # | Icon Type | Average | 95% CI | Std Dev | Samples |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")

	for _, e := range rec.PerformanceRanking {
		fmt.Fprintf(sb, "| %d | %s | %s | %s | %s | %d |\n",
			e.Rank,
			e.IconType,
			formatMs(e.AverageTime),
			formatInterval(e.ConfidenceInterval),
			formatMs(e.StandardDeviation),
			e.SampleSize,
		)
	}

	sb.WriteByte('\n')
}

func writeResults(sb *strings.Builder, rec *record.RunRecord) {
	if len(rec.Results) == 0 {
		return
	}

	sb.WriteString("## Results\n\n")
	sb.WriteString("| Icon Type | Min | Median | Max | Std Error |\n")
	sb.WriteString("|---|---|---|---|---|\n")

	for _, name := range sortedKeys(rec.Results) {
		r := rec.Results[name]
		if r == nil {
			continue
		}

		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s |\n",
			name,
			formatMs(r.Min),
			formatMs(r.Median),
			formatMs(r.Max),
			formatMs(r.StandardError),
		)
	}

	sb.WriteByte('\n')
}

func writeSystem(sb *strings.Builder, sys *sysinfo.Info) {
	if sys == nil {
		return
	}

	sb.WriteString("## System\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|---|---|\n")

	if sys.Hostname != "" {
		fmt.Fprintf(sb, "| Hostname | %s |\n", sys.Hostname)
	}

	if sys.Renderer != "" {
		fmt.Fprintf(sb, "| Renderer | %s |\n", sys.Renderer)
	}

	if sys.CPUModel != "" {
		fmt.Fprintf(sb, "| CPU | %s |\n", sys.CPUModel)
	}

	if sys.CPUCores > 0 {
		fmt.Fprintf(sb, "| Cores | %d |\n", sys.CPUCores)
	}

	if sys.CPUMhz > 0 {
		fmt.Fprintf(sb, "| CPU MHz | %.1f |\n", sys.CPUMhz)
	}

	if sys.Memory != "" {
		fmt.Fprintf(sb, "| Memory | %s |\n", sys.Memory)
	}

	if sys.OS != "" {
		fmt.Fprintf(sb, "| OS | %s |\n", sys.OS)
	}

	if sys.Platform != "" {
		platform := sys.Platform
		if sys.PlatformVersion != "" {
			platform += " " + sys.PlatformVersion
		}

		fmt.Fprintf(sb, "| Platform | %s |\n", platform)
	}

	if sys.Arch != "" {
		fmt.Fprintf(sb, "| Arch | %s |\n", sys.Arch)
	}

	if sys.KernelVersion != "" {
		fmt.Fprintf(sb, "| Kernel | %s |\n", sys.KernelVersion)
	}

	sb.WriteByte('\n')
}

func writeMetadata(sb *strings.Builder, md map[string]any) {
	if len(md) == 0 {
		return
	}

	sb.WriteString("## Metadata\n\n")
	sb.WriteString("| Key | Value |\n")
	sb.WriteString("|---|---|\n")

	for _, k := range sortedKeys(md) {
		fmt.Fprintf(sb, "| %s | %v |\n", k, md[k])
	}

	sb.WriteByte('\n')
}

func writeComparisons(
	sb *strings.Builder,
	comparisons map[string]stats.Comparison,
	maxChars int,
) {
	if len(comparisons) == 0 {
		return
	}

	sb.WriteString("## Comparisons\n\n")
	sb.WriteString("| Pair | p-value | Effect Size | Power | Significant |\n")
	sb.WriteString("|---|---|---|---|---|\n")

	// Reserve space for the truncation message.
	const reserveChars = 100

	keys := sortedKeys(comparisons)

	for i, k := range keys {
		c := comparisons[k]

		significant := "no"
		if c.IsSignificant {
			significant = "yes"
		}

		row := fmt.Sprintf("| %s | %.3f | %.2f | %.2f | %s |\n",
			k, c.PValue, c.EffectSize, c.Power, significant)

		if maxChars > 0 && sb.Len()+len(row)+reserveChars > maxChars {
			fmt.Fprintf(sb,
				"\n*%d more comparison(s) not shown "+
					"(output truncated at %d chars)*\n",
				len(keys)-i, maxChars)

			return
		}

		sb.WriteString(row)
	}
}

// decodeSystem reads the free-form system specifications back into an
// Info. Records without specifications return nil.
func decodeSystem(specs map[string]any) *sysinfo.Info {
	if len(specs) == 0 {
		return nil
	}

	var info sysinfo.Info

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &info,
	})
	if err != nil {
		return nil
	}

	if err := dec.Decode(specs); err != nil {
		return nil
	}

	return &info
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

func formatMs(ms float64) string {
	return fmt.Sprintf("%.2f ms", ms)
}

func formatInterval(ci stats.ConfidenceInterval) string {
	return fmt.Sprintf("%.2f to %.2f", ci.Lower, ci.Upper)
}

// formatDuration formats a time.Duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}

	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}

	return fmt.Sprintf("%ds", seconds)
}
