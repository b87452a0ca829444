package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// Disclaimer is embedded in every export to discourage comparing timings
// taken on different machines or browsers.
const Disclaimer = "Rendering timings depend on the browser, hardware, " +
	"power state and background load of the machine that produced them. " +
	"Compare results only against runs taken in the same environment."

// Envelope is the export file format wrapping one or more records.
type Envelope struct {
	ExportedAt    time.Time    `json:"exportedAt"`
	SchemaVersion int          `json:"schemaVersion"`
	Disclaimer    string       `json:"disclaimer"`
	Records       []*RunRecord `json:"records"`
}

// NewEnvelope wraps records for export.
func NewEnvelope(records []*RunRecord, exportedAt time.Time) *Envelope {
	if records == nil {
		records = make([]*RunRecord, 0)
	}

	return &Envelope{
		ExportedAt:    exportedAt.UTC(),
		SchemaVersion: SchemaVersion,
		Disclaimer:    Disclaimer,
		Records:       records,
	}
}

// Marshal encodes the envelope as indented JSON.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling export: %w", err)
	}

	return data, nil
}

// ParseExport reads an export file and normalizes every record in it.
// It accepts the envelope shape, a bare array of records and a single
// bare (possibly legacy) record.
func ParseExport(data []byte, fileName string) ([]*RunRecord, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", fileName, err)
	}

	var items []any

	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		if recs, ok := v["records"].([]any); ok {
			items = recs
		} else {
			items = []any{v}
		}
	default:
		return nil, fmt.Errorf("parsing %s: unexpected top-level %T", fileName, doc)
	}

	out := make([]*RunRecord, 0, len(items))

	for i, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parsing %s: record %d is %T, not an object", fileName, i, item)
		}

		rec, err := NormalizeImported(raw, fileName)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: record %d: %w", fileName, i, err)
		}

		out = append(out, rec)
	}

	return out, nil
}
