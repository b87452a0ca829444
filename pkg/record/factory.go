package record

import (
	"fmt"
	"time"

	"github.com/ethpandaops/iconbench/pkg/ids"
	"github.com/ethpandaops/iconbench/pkg/stats"
)

// Fields carries the inputs to New. Every field is optional; zero values
// are replaced by documented defaults.
type Fields struct {
	TestResultID     string
	RunID            string
	SuiteRunID       string
	Format           string
	TestType         string
	Iterations       int
	Source           string
	ImportedFileName string
	// Active defaults to true when nil.
	Active *bool

	StartTime  time.Time
	EndTime    time.Time
	DurationMs float64

	Results             map[string]*IconResult
	StatisticalAnalysis map[string]stats.Comparison
	PerformanceRanking  []stats.RankEntry

	TestMetadata         map[string]any
	TestConfiguration    map[string]any
	SystemSpecifications map[string]any
}

// New builds a RunRecord from f. Missing ids are minted, the format
// defaults to DefaultFormat, the source to SourceLocal and collections to
// empty containers. DurationMs is derived from the time bounds when not
// supplied.
//
// A supplied format or source outside its enumeration is rejected.
func New(f Fields) (*RunRecord, error) {
	format := DefaultFormat
	if f.Format != "" {
		parsed, err := ParseFormat(f.Format)
		if err != nil {
			return nil, err
		}

		format = parsed
	}

	source := SourceLocal
	if f.Source != "" {
		source = Source(f.Source)
		if !source.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSource, f.Source)
		}
	}

	active := true
	if f.Active != nil {
		active = *f.Active
	}

	r := &RunRecord{
		SchemaVersion:        SchemaVersion,
		TestResultID:         orMint(f.TestResultID, ids.NewTestResultID),
		RunID:                orMint(f.RunID, ids.NewRunID),
		SuiteRunID:           orMint(f.SuiteRunID, ids.NewSuiteRunID),
		Format:               format,
		TestType:             f.TestType,
		Iterations:           f.Iterations,
		Source:               source,
		Active:               active,
		StartTime:            f.StartTime,
		EndTime:              f.EndTime,
		DurationMs:           f.DurationMs,
		Results:              f.Results,
		StatisticalAnalysis:  f.StatisticalAnalysis,
		PerformanceRanking:   f.PerformanceRanking,
		TestMetadata:         f.TestMetadata,
		TestConfiguration:    f.TestConfiguration,
		SystemSpecifications: f.SystemSpecifications,
	}

	if source == SourceImported {
		r.ImportedFileName = f.ImportedFileName
	}

	if r.DurationMs == 0 && !r.StartTime.IsZero() && r.EndTime.After(r.StartTime) {
		r.DurationMs = float64(r.EndTime.Sub(r.StartTime)) / float64(time.Millisecond)
	}

	if r.Results == nil {
		r.Results = make(map[string]*IconResult)
	}

	if r.StatisticalAnalysis == nil {
		r.StatisticalAnalysis = make(map[string]stats.Comparison)
	}

	if r.PerformanceRanking == nil {
		r.PerformanceRanking = make([]stats.RankEntry, 0)
	}

	if r.TestMetadata == nil {
		r.TestMetadata = make(map[string]any)
	}

	if r.TestConfiguration == nil {
		r.TestConfiguration = make(map[string]any)
	}

	if r.SystemSpecifications == nil {
		r.SystemSpecifications = make(map[string]any)
	}

	return r, nil
}

// FromSamples builds the results, analysis and ranking of a record from
// raw per-configuration timings. order fixes the comparison pairing.
func FromSamples(
	samples map[string][]float64,
	order []string,
) (map[string]*IconResult, map[string]stats.Comparison, []stats.RankEntry) {
	results := make(map[string]*IconResult, len(samples))
	summaries := make(map[string]stats.Summary, len(samples))

	for name, times := range samples {
		s := stats.Describe(times)
		results[name] = &IconResult{Summary: s, Times: times}
		summaries[name] = s
	}

	return results, stats.Analyze(samples, order), stats.Rank(summaries)
}

func orMint(v string, mint func() string) string {
	if v != "" {
		return v
	}

	return mint()
}
