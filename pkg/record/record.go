// Package record defines RunRecord, the persisted summary of one completed
// suite execution, together with its factory, the importer for externally
// produced JSON and the export envelope.
package record

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/iconbench/pkg/stats"
)

// SchemaVersion is the current RunRecord schema revision.
const SchemaVersion = 2

// Format is an icon delivery format under test.
type Format string

const (
	FormatCSS  Format = "css"
	FormatSVG  Format = "svg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatAVIF Format = "avif"
)

// DefaultFormat is assigned when a record is created without a format.
const DefaultFormat = FormatCSS

var formats = []Format{
	FormatCSS, FormatSVG, FormatPNG, FormatGIF, FormatJPEG, FormatWebP, FormatAVIF,
}

// Formats returns every supported format in canonical order.
func Formats() []Format {
	out := make([]Format, len(formats))
	copy(out, formats)

	return out
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	for _, known := range formats {
		if f == known {
			return true
		}
	}

	return false
}

// ParseFormat validates s as a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(s)
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFormat, s)
	}

	return f, nil
}

// Source records where a RunRecord came from.
type Source string

const (
	SourceLocal    Source = "local"
	SourceImported Source = "imported"
)

// Valid reports whether s is a known provenance value.
func (s Source) Valid() bool {
	return s == SourceLocal || s == SourceImported
}

var (
	// ErrInvalidFormat is returned when a supplied format is not supported.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidSource is returned when a supplied source is not supported.
	ErrInvalidSource = errors.New("invalid source")
)

// IconResult is the statistics bundle for a single icon configuration,
// together with the raw per-iteration timings it was computed from.
type IconResult struct {
	stats.Summary `mapstructure:",squash"`

	Times []float64 `json:"times,omitempty" mapstructure:"times"`
}

// RunRecord is the canonical persisted shape of one completed suite
// execution. Once persisted only Active may change.
type RunRecord struct {
	SchemaVersion    int    `json:"schemaVersion"`
	TestResultID     string `json:"testResultId"`
	RunID            string `json:"runId"`
	SuiteRunID       string `json:"suiteRunId"`
	Format           Format `json:"format"`
	TestType         string `json:"testType,omitempty"`
	Iterations       int    `json:"iterations,omitempty"`
	Source           Source `json:"source"`
	ImportedFileName string `json:"importedFileName,omitempty"`
	Active           bool   `json:"active"`

	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	DurationMs float64   `json:"durationMs"`

	Results             map[string]*IconResult      `json:"results"`
	StatisticalAnalysis map[string]stats.Comparison `json:"statisticalAnalysis"`
	PerformanceRanking  []stats.RankEntry           `json:"performanceRanking"`

	TestMetadata         map[string]any `json:"testMetadata"`
	TestConfiguration    map[string]any `json:"testConfiguration"`
	SystemSpecifications map[string]any `json:"systemSpecifications"`
}

// Duration returns the execution wall-clock duration.
func (r *RunRecord) Duration() time.Duration {
	return time.Duration(r.DurationMs * float64(time.Millisecond))
}
