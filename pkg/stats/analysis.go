package stats

import (
	"cmp"
	"slices"
)

// RankEntry is one row of a performance ranking.
type RankEntry struct {
	Rank               int                `json:"rank" mapstructure:"rank"`
	IconType           string             `json:"iconType" mapstructure:"iconType"`
	AverageTime        float64            `json:"averageTime" mapstructure:"averageTime"`
	ConfidenceInterval ConfidenceInterval `json:"confidenceInterval" mapstructure:"confidenceInterval"`
	StandardDeviation  float64            `json:"standardDeviation" mapstructure:"standardDeviation"`
	SampleSize         int                `json:"sampleSize" mapstructure:"sampleSize"`
}

// ComparisonLabel returns the key used for the comparison of a against b.
func ComparisonLabel(a, b string) string {
	return a + " vs " + b
}

// Analyze compares every pair of groups. Pairs follow order (a before b);
// names in order without samples are skipped.
func Analyze(samples map[string][]float64, order []string) map[string]Comparison {
	names := make([]string, 0, len(order))

	for _, name := range order {
		if len(samples[name]) > 0 {
			names = append(names, name)
		}
	}

	out := make(map[string]Comparison, len(names)*(len(names)-1)/2+1)

	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := names[i], names[j]
			out[ComparisonLabel(a, b)] = Compare(samples[a], samples[b])
		}
	}

	return out
}

// Rank orders summaries ascending by average time. Ties are broken by
// name so output is deterministic. Empty summaries are left out.
func Rank(summaries map[string]Summary) []RankEntry {
	entries := make([]RankEntry, 0, len(summaries))

	for name, s := range summaries {
		if s.SampleSize == 0 {
			continue
		}

		entries = append(entries, RankEntry{
			IconType:           name,
			AverageTime:        s.Average,
			ConfidenceInterval: s.ConfidenceInterval,
			StandardDeviation:  s.StdDev,
			SampleSize:         s.SampleSize,
		})
	}

	slices.SortFunc(entries, func(a, b RankEntry) int {
		if c := cmp.Compare(a.AverageTime, b.AverageTime); c != 0 {
			return c
		}

		return cmp.Compare(a.IconType, b.IconType)
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries
}
