package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	r, err := New(Fields{})
	require.NoError(t, err)

	assert.Equal(t, 2, r.SchemaVersion)
	assert.True(t, r.Active)
	assert.Equal(t, SourceLocal, r.Source)
	assert.Equal(t, DefaultFormat, r.Format)
	assert.NotEmpty(t, r.TestResultID)
	assert.NotEmpty(t, r.RunID)
	assert.NotEmpty(t, r.SuiteRunID)
	assert.Empty(t, r.ImportedFileName)
	assert.NotNil(t, r.Results)
	assert.NotNil(t, r.StatisticalAnalysis)
	assert.NotNil(t, r.PerformanceRanking)
	assert.NotNil(t, r.TestMetadata)
	assert.NotNil(t, r.TestConfiguration)
	assert.NotNil(t, r.SystemSpecifications)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		fields  Fields
		wantErr error
	}{
		{name: "unknown format", fields: Fields{Format: "bmp"}, wantErr: ErrInvalidFormat},
		{name: "unknown source", fields: Fields{Source: "remote"}, wantErr: ErrInvalidSource},
		{name: "valid format", fields: Fields{Format: "png"}},
		{name: "imported source", fields: Fields{Source: "imported", ImportedFileName: "x.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.fields)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)

				return
			}

			require.NoError(t, err)
			require.NotNil(t, r)
		})
	}
}

func TestNew_KeepsSuppliedValues(t *testing.T) {
	inactive := false
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	r, err := New(Fields{
		TestResultID: "result_x",
		RunID:        "run_x",
		SuiteRunID:   "suite_x",
		Format:       "png",
		Active:       &inactive,
		StartTime:    start,
		EndTime:      start.Add(1500 * time.Millisecond),
	})
	require.NoError(t, err)

	assert.Equal(t, "result_x", r.TestResultID)
	assert.Equal(t, "run_x", r.RunID)
	assert.Equal(t, "suite_x", r.SuiteRunID)
	assert.Equal(t, FormatPNG, r.Format)
	assert.False(t, r.Active)
	assert.Equal(t, 1500.0, r.DurationMs)
	assert.Equal(t, 1500*time.Millisecond, r.Duration())
}

func TestNew_ImportedFileNameOnlyForImports(t *testing.T) {
	r, err := New(Fields{ImportedFileName: "stray.json"})
	require.NoError(t, err)

	assert.Empty(t, r.ImportedFileName)
}

func TestFromSamples(t *testing.T) {
	samples := map[string][]float64{
		"sprite": {1, 2, 3},
		"inline": {4, 5, 6},
	}

	results, analysis, ranking := FromSamples(samples, []string{"sprite", "inline"})

	require.Len(t, results, 2)
	assert.Equal(t, 2.0, results["sprite"].Average)
	assert.Equal(t, []float64{1, 2, 3}, results["sprite"].Times)
	assert.Contains(t, analysis, "sprite vs inline")
	require.Len(t, ranking, 2)
	assert.Equal(t, "sprite", ranking[0].IconType)
}

func TestIconResult_JSONFlattensSummary(t *testing.T) {
	r := &IconResult{Times: []float64{1}}
	r.Average = 1
	r.SampleSize = 1

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, 1.0, m["average"])
	assert.Contains(t, m, "confidenceInterval")
	assert.Contains(t, m, "times")
}
