package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeImported_ProvenanceAndFreshID(t *testing.T) {
	raw := map[string]any{
		"testResultId": "result_original",
		"runId":        "run_keep",
		"suiteRunId":   "suite_keep",
		"format":       "webp",
		"source":       "local",
	}

	first, err := NormalizeImported(raw, "f.json")
	require.NoError(t, err)

	second, err := NormalizeImported(raw, "f.json")
	require.NoError(t, err)

	for _, r := range []*RunRecord{first, second} {
		assert.Equal(t, SourceImported, r.Source)
		assert.Equal(t, "f.json", r.ImportedFileName)
		assert.Equal(t, "run_keep", r.RunID)
		assert.Equal(t, "suite_keep", r.SuiteRunID)
		assert.Equal(t, FormatWebP, r.Format)
		assert.NotEqual(t, "result_original", r.TestResultID)
	}

	assert.NotEqual(t, first.TestResultID, second.TestResultID)
	assert.Equal(t, "result_original", raw["testResultId"], "input must not be mutated")
}

func TestNormalizeImported_MintsMissingIDs(t *testing.T) {
	r, err := NormalizeImported(map[string]any{}, "empty.json")
	require.NoError(t, err)

	assert.NotEmpty(t, r.RunID)
	assert.NotEmpty(t, r.SuiteRunID)
	assert.True(t, r.Active)
	assert.Equal(t, DefaultFormat, r.Format)
}

func TestNormalizeImported_LegacyFields(t *testing.T) {
	raw := map[string]any{
		"testStartedAt":       "2025-03-01T10:00:00Z",
		"testDurationSeconds": 2.5,
		"testConfiguration": map[string]any{
			"testType":   "stress",
			"iterations": float64(25),
		},
		"active": false,
	}

	r, err := NormalizeImported(raw, "legacy.json")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), r.StartTime.UTC())
	assert.Equal(t, 2500.0, r.DurationMs)
	assert.Equal(t, "stress", r.TestType)
	assert.Equal(t, 25, r.Iterations)
	assert.False(t, r.Active)
	assert.Equal(t, "stress", r.TestConfiguration["testType"])
}

func TestNormalizeImported_CanonicalWinsOverLegacy(t *testing.T) {
	raw := map[string]any{
		"startTime":           "2025-03-01T10:00:00Z",
		"testStartedAt":       "1999-01-01T00:00:00Z",
		"durationMs":          100.0,
		"testDurationSeconds": 9.0,
		"testType":            "quick",
		"testConfiguration":   map[string]any{"testType": "stress"},
	}

	r, err := NormalizeImported(raw, "x.json")
	require.NoError(t, err)

	assert.Equal(t, 2025, r.StartTime.Year())
	assert.Equal(t, 100.0, r.DurationMs)
	assert.Equal(t, "quick", r.TestType)
}

func TestNormalizeImported_EpochMillis(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	r, err := NormalizeImported(map[string]any{
		"startTime": float64(start.UnixMilli()),
		"endTime":   float64(start.Add(time.Second).UnixMilli()),
	}, "x.json")
	require.NoError(t, err)

	assert.True(t, start.Equal(r.StartTime))
	assert.Equal(t, 1000.0, r.DurationMs)
}

func TestNormalizeImported_InvalidFormat(t *testing.T) {
	_, err := NormalizeImported(map[string]any{"format": "bmp"}, "x.json")
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestNormalizeImported_RoundTripsExportedRecord(t *testing.T) {
	orig, err := New(Fields{Format: "svg", TestType: "standard", Iterations: 3})
	require.NoError(t, err)

	results, analysis, ranking := FromSamples(map[string][]float64{
		"inline": {1, 2, 3},
		"sprite": {2, 3, 4},
	}, []string{"inline", "sprite"})
	orig.Results, orig.StatisticalAnalysis, orig.PerformanceRanking = results, analysis, ranking

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	r, err := NormalizeImported(raw, "export.json")
	require.NoError(t, err)

	assert.Equal(t, orig.RunID, r.RunID)
	assert.Equal(t, FormatSVG, r.Format)
	assert.Equal(t, 3, r.Iterations)
	require.Contains(t, r.Results, "inline")
	assert.Equal(t, 2.0, r.Results["inline"].Average)
	assert.Equal(t, []float64{1, 2, 3}, r.Results["inline"].Times)
	assert.Equal(t, orig.Results["inline"].ConfidenceInterval, r.Results["inline"].ConfidenceInterval)
	assert.Equal(t, orig.PerformanceRanking, r.PerformanceRanking)
	assert.Equal(t, orig.StatisticalAnalysis, r.StatisticalAnalysis)
}

func TestParseExport(t *testing.T) {
	rec, err := New(Fields{Format: "gif"})
	require.NoError(t, err)

	envelope, err := NewEnvelope([]*RunRecord{rec}, time.Now()).Marshal()
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{name: "envelope", data: string(envelope), want: 1},
		{name: "bare array", data: `[{"format":"png"},{"format":"svg"}]`, want: 2},
		{name: "single legacy record", data: `{"testStartedAt":"2025-01-01T00:00:00Z"}`, want: 1},
		{name: "empty envelope", data: `{"records":[]}`, want: 0},
		{name: "invalid json", data: `{`, wantErr: true},
		{name: "scalar", data: `42`, wantErr: true},
		{name: "non object item", data: `[1]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := ParseExport([]byte(tt.data), "in.json")
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Len(t, recs, tt.want)

			for _, r := range recs {
				assert.Equal(t, SourceImported, r.Source)
				assert.Equal(t, "in.json", r.ImportedFileName)
			}
		})
	}
}

func TestParseExport_EnvelopeKeepsRunIDs(t *testing.T) {
	rec, err := New(Fields{Format: "gif"})
	require.NoError(t, err)

	data, err := NewEnvelope([]*RunRecord{rec}, time.Now()).Marshal()
	require.NoError(t, err)

	recs, err := ParseExport(data, "in.json")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, rec.RunID, recs[0].RunID)
	assert.Equal(t, rec.SuiteRunID, recs[0].SuiteRunID)
	assert.NotEqual(t, rec.TestResultID, recs[0].TestResultID)
}
