package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribe_Empty(t *testing.T) {
	s := Describe(nil)
	assert.Equal(t, Summary{}, s)

	s = Describe([]float64{})
	assert.Equal(t, Summary{}, s)
}

func TestDescribe_SingleSample(t *testing.T) {
	s := Describe([]float64{5})

	assert.Equal(t, 5.0, s.Min)
	assert.Equal(t, 5.0, s.Max)
	assert.Equal(t, 5.0, s.Average)
	assert.Equal(t, 5.0, s.Median)
	assert.Equal(t, 0.0, s.StdDev)
	assert.Equal(t, 0.0, s.StandardError)
	assert.Equal(t, ConfidenceInterval{Lower: 5, Upper: 5, Margin: 0}, s.ConfidenceInterval)
	assert.Equal(t, 1, s.SampleSize)
	assert.False(t, math.IsNaN(s.StdDev))
}

func TestDescribe_Samples(t *testing.T) {
	s := Describe([]float64{9, 2, 4, 4, 5, 4, 7, 5})

	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 5.0, s.Average)
	assert.Equal(t, 4.5, s.Median)
	assert.InDelta(t, 2.13809, s.StdDev, 1e-5)
	assert.InDelta(t, 0.75593, s.StandardError, 1e-5)
	// df = 7 selects the df <= 10 breakpoint.
	assert.InDelta(t, 2.228*0.75593, s.ConfidenceInterval.Margin, 1e-4)
	assert.InDelta(t, 5-s.ConfidenceInterval.Margin, s.ConfidenceInterval.Lower, 1e-9)
	assert.InDelta(t, 5+s.ConfidenceInterval.Margin, s.ConfidenceInterval.Upper, 1e-9)
	assert.Equal(t, 8, s.SampleSize)
}

func TestDescribe_DoesNotReorderInput(t *testing.T) {
	in := []float64{3, 1, 2}
	_ = Describe(in)

	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestTCritical(t *testing.T) {
	tests := []struct {
		name  string
		df    int
		alpha float64
		want  float64
	}{
		{name: "df 0 uses first breakpoint", df: 0, alpha: 0.05, want: 12.706},
		{name: "df 1", df: 1, alpha: 0.05, want: 12.706},
		{name: "df 3 rounds up to 5", df: 3, alpha: 0.05, want: 2.571},
		{name: "df 5 exact", df: 5, alpha: 0.05, want: 2.571},
		{name: "df 6 rounds up to 10", df: 6, alpha: 0.05, want: 2.228},
		{name: "df 25 rounds up to 30", df: 25, alpha: 0.05, want: 2.042},
		{name: "df 1000", df: 1000, alpha: 0.05, want: 1.962},
		{name: "beyond table", df: 5000, alpha: 0.05, want: 1.960},
		{name: "99 percent table", df: 10, alpha: 0.01, want: 3.169},
		{name: "unknown alpha falls back", df: 10, alpha: 0.2, want: 2.228},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TCritical(tt.df, tt.alpha))
		})
	}
}

func TestErfAndNormalCDF(t *testing.T) {
	assert.InDelta(t, 0, Erf(0), 1e-6)
	assert.InDelta(t, 0.842701, Erf(1), 1e-6)
	assert.InDelta(t, -0.842701, Erf(-1), 1e-6)
	assert.InDelta(t, 0.5, NormalCDF(0), 1e-6)
	assert.InDelta(t, 0.975, NormalCDF(1.96), 1e-3)
	assert.InDelta(t, 0.025, NormalCDF(-1.96), 1e-3)
}

func TestWelchTTest(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{name: "identical groups", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 0.999},
		{name: "too few samples", a: []float64{1}, b: []float64{1, 2}, want: 0.999},
		{name: "constant equal", a: []float64{2, 2}, b: []float64{2, 2, 2}, want: 0.999},
		{name: "constant different", a: []float64{2, 2}, b: []float64{3, 3}, want: 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, WelchTTest(tt.a, tt.b), 1e-9)
		})
	}
}

func TestWelchTTest_ClampsLowerBound(t *testing.T) {
	fast := make([]float64, 40)
	slow := make([]float64, 40)

	for i := range fast {
		fast[i] = 1 + 0.01*float64(i%5)
		slow[i] = 10 + 0.01*float64(i%5)
	}

	assert.Equal(t, 0.001, WelchTTest(fast, slow))
}

func TestWelchTTest_SmallSamplesSignificant(t *testing.T) {
	p := WelchTTest([]float64{1, 1.1, 0.9, 1, 1.05}, []float64{10, 10.2, 9.8, 10.1, 9.9})

	assert.GreaterOrEqual(t, p, 0.001)
	assert.Less(t, p, 0.01)
}

func TestWelchTTest_Range(t *testing.T) {
	p := WelchTTest([]float64{10, 12, 11, 13, 12}, []float64{11, 13, 12, 14, 12})

	assert.GreaterOrEqual(t, p, 0.001)
	assert.LessOrEqual(t, p, 0.999)
	assert.Greater(t, p, 0.05, "overlapping groups are not significant")
}

func TestPower(t *testing.T) {
	same := []float64{1, 2, 3, 4}
	assert.InDelta(t, 0.05, Power(same, same), 1e-3)

	big := Power([]float64{1, 1.1, 0.9, 1}, []float64{10, 10.1, 9.9, 10})
	assert.Equal(t, 0.999, big)

	assert.Equal(t, 0.0, Power([]float64{1}, []float64{2, 3}))
	assert.Equal(t, 0.999, Power([]float64{2, 2}, []float64{3, 3}))
}

func TestCompare(t *testing.T) {
	c := Compare([]float64{1, 1.1, 0.9, 1}, []float64{10, 10.1, 9.9, 10})

	assert.True(t, c.IsSignificant)
	assert.Less(t, c.PValue, 0.05)
	assert.Equal(t, 0.999, c.Power)
	assert.Greater(t, c.EffectSize, 10.0)
}

func TestAnalyze(t *testing.T) {
	samples := map[string][]float64{
		"a": {1, 2, 3},
		"b": {4, 5, 6},
		"c": {7, 8, 9},
		"d": nil,
	}

	out := Analyze(samples, []string{"a", "b", "c", "d"})

	require.Len(t, out, 3)
	assert.Contains(t, out, "a vs b")
	assert.Contains(t, out, "a vs c")
	assert.Contains(t, out, "b vs c")
}

func TestRank(t *testing.T) {
	summaries := map[string]Summary{
		"slow":  {Average: 30, StdDev: 1, SampleSize: 3},
		"fast":  {Average: 10, StdDev: 2, SampleSize: 3},
		"mid":   {Average: 20, StdDev: 3, SampleSize: 3},
		"tie":   {Average: 20, StdDev: 4, SampleSize: 3},
		"empty": {},
	}

	ranking := Rank(summaries)
	require.Len(t, ranking, 4)

	names := make([]string, 0, len(ranking))
	for i, e := range ranking {
		assert.Equal(t, i+1, e.Rank)
		names = append(names, e.IconType)
	}

	assert.Equal(t, []string{"fast", "mid", "tie", "slow"}, names)
	assert.Equal(t, 2.0, ranking[0].StandardDeviation)
}
