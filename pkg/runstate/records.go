package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ethpandaops/iconbench/pkg/kvstore"
	"github.com/ethpandaops/iconbench/pkg/record"
)

// AllCompleted returns every persisted record in insertion order. Storage
// failures and undecodable entries are logged and skipped.
func (s *Store) AllCompleted(ctx context.Context) []*record.RunRecord {
	raws, err := s.loadCompleted(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to load completed runs")

		return []*record.RunRecord{}
	}

	out := make([]*record.RunRecord, 0, len(raws))

	for i, raw := range raws {
		var rec record.RunRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.log.WithError(err).WithField("index", i).Warn("Skipping undecodable record")

			continue
		}

		out = append(out, &rec)
	}

	return out
}

// ActiveRecords returns the persisted records whose active flag is set.
func (s *Store) ActiveRecords(ctx context.Context) []*record.RunRecord {
	all := s.AllCompleted(ctx)

	return slices.DeleteFunc(all, func(r *record.RunRecord) bool {
		return !r.Active
	})
}

// FindRecord returns the persisted record with testResultID.
func (s *Store) FindRecord(ctx context.Context, testResultID string) (*record.RunRecord, bool) {
	for _, r := range s.AllCompleted(ctx) {
		if r.TestResultID == testResultID {
			return r, true
		}
	}

	return nil, false
}

// Latest returns the record in the latest slot of format.
func (s *Store) Latest(ctx context.Context, format record.Format) (*record.RunRecord, bool) {
	data, err := s.kv.Get(ctx, LatestKey(format))
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			s.log.WithError(err).WithField("format", format).Warn("Failed to load latest run")
		}

		return nil, false
	}

	var rec record.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.WithError(err).WithField("format", format).Warn("Failed to decode latest run")

		return nil, false
	}

	return &rec, true
}

// SaveRecord appends rec to the completed collection.
func (s *Store) SaveRecord(ctx context.Context, rec *record.RunRecord) error {
	return s.appendRecords(ctx, []*record.RunRecord{rec})
}

// ImportRecords appends recs to the completed collection. Records are not
// de-duplicated.
func (s *Store) ImportRecords(ctx context.Context, recs []*record.RunRecord) error {
	if len(recs) == 0 {
		return nil
	}

	return s.appendRecords(ctx, recs)
}

// DeleteRecords removes every record whose testResultId is in ids and
// returns how many were removed.
func (s *Store) DeleteRecords(ctx context.Context, ids []string) (int, error) {
	want := toSet(ids)
	removed := 0

	err := s.mutateCompleted(ctx, func(raws []json.RawMessage) ([]json.RawMessage, error) {
		out := make([]json.RawMessage, 0, len(raws))

		for _, raw := range raws {
			if _, ok := want[recordID(raw)]; ok {
				removed++

				continue
			}

			out = append(out, raw)
		}

		return out, nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// ToggleActive sets the active flag of every record whose testResultId is
// in ids and returns how many were updated. Other records are written back
// untouched.
func (s *Store) ToggleActive(ctx context.Context, ids []string, active bool) (int, error) {
	want := toSet(ids)
	updated := 0

	err := s.mutateCompleted(ctx, func(raws []json.RawMessage) ([]json.RawMessage, error) {
		for i, raw := range raws {
			if _, ok := want[recordID(raw)]; !ok {
				continue
			}

			var rec record.RunRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("decoding record %d: %w", i, err)
			}

			rec.Active = active

			data, err := json.Marshal(&rec)
			if err != nil {
				return nil, fmt.Errorf("encoding record %d: %w", i, err)
			}

			raws[i] = data
			updated++
		}

		return raws, nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}

// persistCompleted appends rec and writes the latest slot of format. Without
// a format there is no slot to write.
func (s *Store) persistCompleted(ctx context.Context, format record.Format, rec *record.RunRecord) error {
	if err := s.appendRecords(ctx, []*record.RunRecord{rec}); err != nil {
		return err
	}

	if format == "" {
		return nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding latest run: %w", err)
	}

	if err := s.kv.Set(ctx, LatestKey(format), data); err != nil {
		return fmt.Errorf("writing latest run: %w", err)
	}

	return nil
}

func (s *Store) appendRecords(ctx context.Context, recs []*record.RunRecord) error {
	encoded := make([]json.RawMessage, 0, len(recs))

	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", rec.TestResultID, err)
		}

		encoded = append(encoded, data)
	}

	return s.mutateCompleted(ctx, func(raws []json.RawMessage) ([]json.RawMessage, error) {
		return append(raws, encoded...), nil
	})
}

// mutateCompleted runs one read-modify-write cycle over the completed
// collection. A missing or corrupt collection is treated as empty.
func (s *Store) mutateCompleted(
	ctx context.Context,
	fn func([]json.RawMessage) ([]json.RawMessage, error),
) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	raws, err := s.loadCompleted(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Completed runs unreadable, starting from empty")

		raws = nil
	}

	raws, err = fn(raws)
	if err != nil {
		return err
	}

	if raws == nil {
		raws = make([]json.RawMessage, 0)
	}

	data, err := json.Marshal(raws)
	if err != nil {
		return fmt.Errorf("encoding completed runs: %w", err)
	}

	if err := s.kv.Set(ctx, CompletedRunsKey, data); err != nil {
		return fmt.Errorf("writing completed runs: %w", err)
	}

	return nil
}

func (s *Store) loadCompleted(ctx context.Context) ([]json.RawMessage, error) {
	data, err := s.kv.Get(ctx, CompletedRunsKey)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading completed runs: %w", err)
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decoding completed runs: %w", err)
	}

	return raws, nil
}

// recordID extracts testResultId without decoding the whole record.
func recordID(raw json.RawMessage) string {
	var head struct {
		TestResultID string `json:"testResultId"`
	}

	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}

	return head.TestResultID
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}

	return out
}
