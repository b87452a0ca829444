// Package stats reduces timing samples (milliseconds) into summary
// statistics and compares groups of samples against each other.
//
// The distribution functions are deliberate approximations: a fixed
// t-critical table and the Abramowitz-Stegun error function. Exported
// reports depend on these exact formulas, so they must not be swapped
// for exact implementations.
package stats

import (
	"math"
	"slices"
)

// ConfidenceInterval is a two-sided interval around a mean.
type ConfidenceInterval struct {
	Lower  float64 `json:"lower" mapstructure:"lower"`
	Upper  float64 `json:"upper" mapstructure:"upper"`
	Margin float64 `json:"margin" mapstructure:"margin"`
}

// Summary contains descriptive statistics for a set of samples.
type Summary struct {
	Min                float64            `json:"min" mapstructure:"min"`
	Max                float64            `json:"max" mapstructure:"max"`
	Average            float64            `json:"average" mapstructure:"average"`
	StdDev             float64            `json:"stdDev" mapstructure:"stdDev"`
	Median             float64            `json:"median" mapstructure:"median"`
	StandardError      float64            `json:"standardError" mapstructure:"standardError"`
	ConfidenceInterval ConfidenceInterval `json:"confidenceInterval" mapstructure:"confidenceInterval"`
	SampleSize         int                `json:"sampleSize" mapstructure:"sampleSize"`
}

// DefaultAlpha is the significance level used throughout (95% confidence).
const DefaultAlpha = 0.05

// Describe computes descriptive statistics for values.
//
// An empty input yields an all-zero Summary. A single sample has no
// spread: stdDev, standardError and the interval margin are all zero and
// the interval collapses onto the sample.
func Describe(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{}
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean := Mean(values)

	s := Summary{
		Min:        sorted[0],
		Max:        sorted[n-1],
		Average:    mean,
		Median:     median(sorted),
		SampleSize: n,
	}

	if n > 1 {
		s.StdDev = math.Sqrt(Variance(values))
		s.StandardError = s.StdDev / math.Sqrt(float64(n))
	}

	margin := TCritical(n-1, DefaultAlpha) * s.StandardError
	s.ConfidenceInterval = ConfidenceInterval{
		Lower:  mean - margin,
		Upper:  mean + margin,
		Margin: margin,
	}

	return s
}

// Mean returns the arithmetic mean, or zero for an empty input.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// Variance returns the sample variance (n-1 denominator). Inputs with
// fewer than two samples have zero variance.
func Variance(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	mean := Mean(values)

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}

	return ss / float64(n-1)
}

// median expects sorted input.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// tBreakpoint maps a maximum degrees-of-freedom value to its critical t.
type tBreakpoint struct {
	df int
	t  float64
}

// infiniteDF marks the last breakpoint of a table.
const infiniteDF = math.MaxInt

var tTables = map[float64][]tBreakpoint{
	0.05: {
		{1, 12.706}, {5, 2.571}, {10, 2.228}, {20, 2.086},
		{30, 2.042}, {40, 2.021}, {50, 2.009}, {60, 2.000},
		{100, 1.984}, {500, 1.965}, {1000, 1.962}, {infiniteDF, 1.960},
	},
	0.01: {
		{1, 63.657}, {5, 4.032}, {10, 3.169}, {20, 2.845},
		{30, 2.750}, {40, 2.704}, {50, 2.678}, {60, 2.660},
		{100, 2.626}, {500, 2.586}, {1000, 2.581}, {infiniteDF, 2.576},
	},
}

// TCritical returns the two-tailed critical t value for df degrees of
// freedom, taken from the first table breakpoint >= df. Unknown alpha
// values use the 95% table.
func TCritical(df int, alpha float64) float64 {
	table, ok := tTables[alpha]
	if !ok {
		table = tTables[DefaultAlpha]
	}

	for _, bp := range table {
		if df <= bp.df {
			return bp.t
		}
	}

	return table[len(table)-1].t
}
