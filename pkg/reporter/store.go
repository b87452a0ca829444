package reporter

import (
	"fmt"

	"github.com/ethpandaops/iconbench/pkg/runstate"
)

// Compile-time interface check.
var _ Reporter = (*StoreReporter)(nil)

// StoreReporter mirrors events into the active run of a runstate.Store so
// every subscriber of the format sees them.
type StoreReporter struct {
	Nop

	store      *runstate.Store
	suiteRunID string
}

// NewStoreReporter creates a StoreReporter for one suite execution.
func NewStoreReporter(store *runstate.Store, suiteRunID string) *StoreReporter {
	return &StoreReporter{store: store, suiteRunID: suiteRunID}
}

func (r *StoreReporter) OnTestStart(ev TestStart) {
	r.store.UpdateProgress(r.suiteRunID,
		runstate.WithPercentage(0),
		runstate.WithMessage(fmt.Sprintf("Starting %s %s test", ev.Format, ev.TestType)),
		runstate.WithIterations(0, ev.Iterations*len(ev.Variants)),
	)
}

func (r *StoreReporter) OnProgress(ev ProgressUpdate) {
	r.store.UpdateProgress(r.suiteRunID,
		runstate.WithPercentage(ev.Percentage),
		runstate.WithMessage(ev.Message),
		runstate.WithIterations(ev.CompletedIterations, ev.TotalIterations),
	)
}

func (r *StoreReporter) OnError(err error) {
	r.store.UpdateProgress(r.suiteRunID, runstate.WithMessage("Error: "+err.Error()))
}
