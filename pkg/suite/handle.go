// Package suite runs benchmark suites asynchronously and exposes each
// execution through a Handle.
package suite

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/runstate"
)

// ErrCancelled is returned by Wait once the handle has been cancelled.
var ErrCancelled = errors.New("suite cancelled")

// Status is the lifecycle state of a Handle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// Handle tracks one suite execution. Terminal states are final: the first
// of complete, fail or Cancel wins and the rest are ignored.
//
// Done is closed on completion and on failure. A cancelled handle never
// closes Done; a failure arriving after Cancel is swallowed. Cancelled is
// closed instead.
type Handle struct {
	SuiteRunID string
	RunID      string
	Format     record.Format
	TestType   string

	mu        sync.Mutex
	status    Status
	progress  runstate.Progress
	result    *record.RunRecord
	err       error
	listeners map[uint64]func(runstate.Progress)
	nextID    uint64
	done      chan struct{}
	aborted   chan struct{}
	// stop ends the measurement loop early.
	stop func()
}

func newHandle(suiteRunID, runID string, format record.Format, testType string) *Handle {
	return &Handle{
		SuiteRunID: suiteRunID,
		RunID:      runID,
		Format:     format,
		TestType:   testType,
		status:     StatusPending,
		listeners:  make(map[uint64]func(runstate.Progress)),
		done:       make(chan struct{}),
		aborted:    make(chan struct{}),
	}
}

// Status returns the current state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.status
}

// Progress returns the latest progress snapshot.
func (h *Handle) Progress() runstate.Progress {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.progress
}

// OnProgress subscribes fn to progress updates of this execution and
// returns an unsubscribe function.
func (h *Handle) OnProgress(fn func(runstate.Progress)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.listeners[id] = fn

	var once sync.Once

	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()

			delete(h.listeners, id)
		})
	}
}

// Result returns the record of a completed execution, nil otherwise.
func (h *Handle) Result() *record.RunRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.result
}

// Err returns the failure of an errored execution, nil otherwise.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.err
}

// Cancel stops a running execution before its next variant. It reports
// whether the handle moved to cancelled; it is a no-op in any other state.
func (h *Handle) Cancel() bool {
	h.mu.Lock()

	if h.status != StatusRunning {
		h.mu.Unlock()

		return false
	}

	h.status = StatusCancelled
	stop := h.stop

	close(h.aborted)

	h.mu.Unlock()

	if stop != nil {
		stop()
	}

	return true
}

// Done is closed when the execution completes or fails.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancelled is closed when Cancel moves the handle to cancelled.
func (h *Handle) Cancelled() <-chan struct{} {
	return h.aborted
}

// Wait blocks until the execution completes, fails, is cancelled or ctx
// ends. A cancelled execution returns ErrCancelled.
func (h *Handle) Wait(ctx context.Context) (*record.RunRecord, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()

		return h.result, h.err
	case <-h.aborted:
		return nil, ErrCancelled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) start(stop func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status != StatusPending {
		return false
	}

	h.status = StatusRunning
	h.stop = stop

	return true
}

func (h *Handle) setProgress(p runstate.Progress) {
	h.mu.Lock()

	if h.status.Terminal() {
		h.mu.Unlock()

		return
	}

	h.progress = p

	fns := make([]func(runstate.Progress), 0, len(h.listeners))
	for _, id := range slices.Sorted(maps.Keys(h.listeners)) {
		fns = append(fns, h.listeners[id])
	}

	h.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (h *Handle) complete(rec *record.RunRecord) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status.Terminal() {
		return false
	}

	h.status = StatusCompleted
	h.result = rec
	h.progress.Percentage = 100
	close(h.done)

	return true
}

func (h *Handle) fail(err error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status.Terminal() {
		return false
	}

	h.status = StatusError
	h.err = err
	close(h.done)

	return true
}

// cancelled reports whether Cancel won.
func (h *Handle) cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.status == StatusCancelled
}
