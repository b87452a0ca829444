package record

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"strconv"
	"time"

	"github.com/ethpandaops/iconbench/pkg/stats"
	"github.com/mitchellh/mapstructure"
)

// importedRecord is the loose decoding target for externally produced
// records. testResultId is intentionally absent: imports always mint one.
type importedRecord struct {
	RunID      string `mapstructure:"runId"`
	SuiteRunID string `mapstructure:"suiteRunId"`
	Format     string `mapstructure:"format"`
	TestType   string `mapstructure:"testType"`
	Iterations int    `mapstructure:"iterations"`
	Active     *bool  `mapstructure:"active"`

	StartTime  time.Time `mapstructure:"startTime"`
	EndTime    time.Time `mapstructure:"endTime"`
	DurationMs float64   `mapstructure:"durationMs"`

	Results             map[string]*IconResult      `mapstructure:"results"`
	StatisticalAnalysis map[string]stats.Comparison `mapstructure:"statisticalAnalysis"`
	PerformanceRanking  []stats.RankEntry           `mapstructure:"performanceRanking"`

	TestMetadata         map[string]any `mapstructure:"testMetadata"`
	TestConfiguration    map[string]any `mapstructure:"testConfiguration"`
	SystemSpecifications map[string]any `mapstructure:"systemSpecifications"`
}

// legacyAliases maps older field names onto their canonical key.
var legacyAliases = []struct {
	legacy    string
	canonical string
}{
	{legacy: "testStartedAt", canonical: "startTime"},
	{legacy: "testEndedAt", canonical: "endTime"},
	{legacy: "testCompletedAt", canonical: "endTime"},
	{legacy: "iconFormat", canonical: "format"},
}

// NormalizeImported converts an externally produced record (hand-edited
// JSON, an older export) into a RunRecord.
//
// The result always has Source imported and ImportedFileName set to
// fileName, and always carries a freshly minted TestResultID, so importing
// the same input twice yields two distinct records. RunID and SuiteRunID
// are kept when present.
func NormalizeImported(raw map[string]any, fileName string) (*RunRecord, error) {
	in := maps.Clone(raw)
	if in == nil {
		in = make(map[string]any)
	}

	applyLegacyFields(in)

	var dec importedRecord

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       timeDecodeHook,
		WeaklyTypedInput: true,
		Result:           &dec,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}

	if err := decoder.Decode(in); err != nil {
		return nil, fmt.Errorf("decoding imported record: %w", err)
	}

	return New(Fields{
		RunID:                dec.RunID,
		SuiteRunID:           dec.SuiteRunID,
		Format:               dec.Format,
		TestType:             dec.TestType,
		Iterations:           dec.Iterations,
		Source:               string(SourceImported),
		ImportedFileName:     fileName,
		Active:               dec.Active,
		StartTime:            dec.StartTime,
		EndTime:              dec.EndTime,
		DurationMs:           dec.DurationMs,
		Results:              dec.Results,
		StatisticalAnalysis:  dec.StatisticalAnalysis,
		PerformanceRanking:   dec.PerformanceRanking,
		TestMetadata:         dec.TestMetadata,
		TestConfiguration:    dec.TestConfiguration,
		SystemSpecifications: dec.SystemSpecifications,
	})
}

// applyLegacyFields rewrites known legacy keys in place. Canonical keys
// always win over their legacy aliases.
func applyLegacyFields(in map[string]any) {
	for _, alias := range legacyAliases {
		v, ok := in[alias.legacy]
		if !ok {
			continue
		}

		if _, exists := in[alias.canonical]; !exists {
			in[alias.canonical] = v
		}
	}

	if _, ok := in["durationMs"]; !ok {
		if secs, ok := toFloat(in["testDurationSeconds"]); ok {
			in["durationMs"] = secs * 1000
		}
	}

	cfg, ok := in["testConfiguration"].(map[string]any)
	if !ok {
		return
	}

	if _, exists := in["testType"]; !exists {
		if v, ok := cfg["testType"]; ok {
			in["testType"] = v
		}
	}

	if _, exists := in["iterations"]; !exists {
		if v, ok := cfg["iterations"]; ok {
			in["iterations"] = v
		}
	}
}

var timeType = reflect.TypeOf(time.Time{})

// timeDecodeHook accepts RFC 3339 strings and epoch milliseconds.
func timeDecodeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}

	switch v := data.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}

		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}

		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("parsing time %q: %w", v, err)
		}

		return t, nil
	default:
		if ms, ok := toFloat(v); ok {
			return time.UnixMilli(int64(ms)).UTC(), nil
		}

		return data, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
