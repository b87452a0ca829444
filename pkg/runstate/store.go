// Package runstate tracks in-flight suite executions and persists completed
// runs to a key-value store. A Store is one "tab": several Stores may share
// a kvstore backend and learn about each other's completions.
package runstate

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ethpandaops/iconbench/pkg/kvstore"
	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/sirupsen/logrus"
)

const (
	// CompletedRunsKey holds the JSON array of every completed record.
	CompletedRunsKey = "iconbench.completedRuns"

	// LatestKeyPrefix prefixes the per-format latest-record slot.
	LatestKeyPrefix = "iconbench.latest."
)

// LatestKey returns the latest-record key for format.
func LatestKey(format record.Format) string {
	return LatestKeyPrefix + string(format)
}

// Progress is the user-visible progress of an active run.
type Progress struct {
	Percentage          float64 `json:"percentage"`
	Message             string  `json:"message"`
	CompletedIterations int     `json:"completedIterations"`
	TotalIterations     int     `json:"totalIterations"`
}

// ActiveRun is an in-flight suite execution. It lives in memory only.
type ActiveRun struct {
	SuiteRunID string        `json:"suiteRunId"`
	Format     record.Format `json:"format"`
	RunID      string        `json:"runId"`
	StartTime  time.Time     `json:"startTime"`
	Progress   Progress      `json:"progress"`

	seq uint64
}

// ProgressEvent is delivered to progress subscribers. CrossTab events carry
// no run data; they signal that another instance changed the completed
// collection.
type ProgressEvent struct {
	SuiteRunID string
	Format     record.Format
	RunID      string
	Progress   Progress
	CrossTab   bool
}

// CompletionEvent is delivered to completion subscribers.
type CompletionEvent struct {
	SuiteRunID string
	Format     record.Format
	Record     *record.RunRecord
}

// ProgressOption updates fields of a Progress.
type ProgressOption func(*Progress)

// WithPercentage sets the completion percentage.
func WithPercentage(p float64) ProgressOption {
	return func(pr *Progress) { pr.Percentage = p }
}

// WithMessage sets the status message.
func WithMessage(m string) ProgressOption {
	return func(pr *Progress) { pr.Message = m }
}

// WithIterations sets the iteration counters.
func WithIterations(completed, total int) ProgressOption {
	return func(pr *Progress) {
		pr.CompletedIterations = completed
		pr.TotalIterations = total
	}
}

// Store holds active runs in memory and completed runs in a kvstore.
type Store struct {
	log logrus.FieldLogger
	kv  kvstore.Store

	mu     sync.Mutex
	active map[string]*ActiveRun
	seq    uint64

	// persistMu serializes read-modify-write cycles of the completed
	// collection within this instance.
	persistMu sync.Mutex

	progress    listeners[ProgressEvent]
	completions listeners[CompletionEvent]

	unwatch func()
}

// New creates a Store persisting to kv. The caller owns kv's lifecycle.
func New(log logrus.FieldLogger, kv kvstore.Store) *Store {
	s := &Store{
		log:    log.WithField("component", "runstate"),
		kv:     kv,
		active: make(map[string]*ActiveRun),
	}

	s.unwatch = kv.Watch(s.onStorageChange)

	return s
}

// Close detaches the Store from storage change notifications.
func (s *Store) Close() {
	s.unwatch()
}

// RegisterRun records a new active run, replacing any earlier run with the
// same suite id.
func (s *Store) RegisterRun(suiteRunID string, format record.Format, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++

	s.active[suiteRunID] = &ActiveRun{
		SuiteRunID: suiteRunID,
		Format:     format,
		RunID:      runID,
		StartTime:  time.Now(),
		seq:        s.seq,
	}

	s.log.WithFields(logrus.Fields{
		"suite_run_id": suiteRunID,
		"format":       format,
		"run_id":       runID,
	}).Debug("Registered run")
}

// UpdateProgress merges opts into the progress of an active run and
// notifies the progress subscribers of its format. Unknown ids are
// ignored.
func (s *Store) UpdateProgress(suiteRunID string, opts ...ProgressOption) {
	s.mu.Lock()

	run, ok := s.active[suiteRunID]
	if !ok {
		s.mu.Unlock()

		return
	}

	for _, opt := range opts {
		opt(&run.Progress)
	}

	ev := ProgressEvent{
		SuiteRunID: run.SuiteRunID,
		Format:     run.Format,
		RunID:      run.RunID,
		Progress:   run.Progress,
	}

	s.mu.Unlock()

	dispatch(s.log, "progress", s.progress.snapshot(ev.Format), ev)
}

// CompleteRun removes the active run, persists rec and notifies the
// completion subscribers of rec's format (or the active run's format when
// rec has none). Subscribers are notified even when persisting fails; the
// persistence error is returned.
func (s *Store) CompleteRun(ctx context.Context, suiteRunID string, rec *record.RunRecord) error {
	s.mu.Lock()

	format := rec.Format

	if run, ok := s.active[suiteRunID]; ok {
		if format == "" {
			format = run.Format
		}

		delete(s.active, suiteRunID)
	}

	s.mu.Unlock()

	err := s.persistCompleted(ctx, format, rec)
	if err != nil {
		s.log.WithError(err).
			WithField("suite_run_id", suiteRunID).
			Error("Failed to persist completed run")
	}

	dispatch(s.log, "completion", s.completions.snapshot(format), CompletionEvent{
		SuiteRunID: suiteRunID,
		Format:     format,
		Record:     rec,
	})

	return err
}

// AbandonRun removes an active run without persisting anything.
func (s *Store) AbandonRun(suiteRunID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, suiteRunID)
}

// GetActiveRun returns the most recently registered active run of format.
func (s *Store) GetActiveRun(format record.Format) (ActiveRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *ActiveRun

	for _, run := range s.active {
		if run.Format != format {
			continue
		}

		if latest == nil || run.seq > latest.seq {
			latest = run
		}
	}

	if latest == nil {
		return ActiveRun{}, false
	}

	return *latest, true
}

// ActiveRuns returns every active run, oldest registration first.
func (s *Store) ActiveRuns() []ActiveRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ActiveRun, 0, len(s.active))
	for _, run := range s.active {
		out = append(out, *run)
	}

	slices.SortFunc(out, func(a, b ActiveRun) int {
		return cmp.Compare(a.seq, b.seq)
	})

	return out
}

// OnProgressChange subscribes fn to progress events of format. The
// returned function unsubscribes.
func (s *Store) OnProgressChange(format record.Format, fn func(ProgressEvent)) func() {
	return s.progress.add(format, fn)
}

// OnCompletion subscribes fn to completion events of format. The returned
// function unsubscribes.
func (s *Store) OnCompletion(format record.Format, fn func(CompletionEvent)) func() {
	return s.completions.add(format, fn)
}

// onStorageChange turns a change of the completed collection made by
// another instance into a CrossTab progress event for every subscriber.
func (s *Store) onStorageChange(c kvstore.Change) {
	if c.Key != CompletedRunsKey {
		return
	}

	for _, format := range s.progress.formats() {
		dispatch(s.log, "progress", s.progress.snapshot(format), ProgressEvent{
			Format:   format,
			CrossTab: true,
		})
	}
}
