// Package reporter defines the sink the measurement loop reports to and a
// few implementations of it.
package reporter

import (
	"time"

	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/stats"
)

// TestStart describes a suite about to be measured.
type TestStart struct {
	SuiteRunID string
	Format     record.Format
	TestType   string
	Iterations int
	IconCount  int
	Variants   []string
}

// ProgressUpdate is a progress snapshot. Estimated is set for updates
// produced by the background estimator rather than a finished iteration.
type ProgressUpdate struct {
	Percentage          float64
	Message             string
	CompletedIterations int
	TotalIterations     int
	Estimated           bool
}

// IterationResult is one timed render pass of a variant.
type IterationResult struct {
	IconType  string
	Iteration int
	IconCount int
	Elapsed   time.Duration
}

// TestResult is the outcome of a whole suite.
type TestResult struct {
	Format   record.Format
	Results  map[string]stats.Summary
	Samples  map[string][]float64
	Duration time.Duration
	// Stopped is set when the suite ended early on a stop request.
	Stopped bool
}

// Reporter receives lifecycle events from the measurement loop. Calls are
// serialized by the caller.
type Reporter interface {
	OnTestStart(ev TestStart)
	OnProgress(ev ProgressUpdate)
	OnIterationComplete(ev IterationResult)
	OnTestComplete(ev TestResult)
	OnError(err error)
}

// Compile-time interface checks.
var (
	_ Reporter = Nop{}
	_ Reporter = (*Funcs)(nil)
	_ Reporter = multi(nil)
)

// Nop ignores every event. Embed it to implement only some methods.
type Nop struct{}

func (Nop) OnTestStart(TestStart)               {}
func (Nop) OnProgress(ProgressUpdate)           {}
func (Nop) OnIterationComplete(IterationResult) {}
func (Nop) OnTestComplete(TestResult)           {}
func (Nop) OnError(error)                       {}

// Funcs adapts optional callbacks to a Reporter. Nil fields are skipped.
type Funcs struct {
	TestStart         func(TestStart)
	Progress          func(ProgressUpdate)
	IterationComplete func(IterationResult)
	TestComplete      func(TestResult)
	Error             func(error)
}

func (f *Funcs) OnTestStart(ev TestStart) {
	if f.TestStart != nil {
		f.TestStart(ev)
	}
}

func (f *Funcs) OnProgress(ev ProgressUpdate) {
	if f.Progress != nil {
		f.Progress(ev)
	}
}

func (f *Funcs) OnIterationComplete(ev IterationResult) {
	if f.IterationComplete != nil {
		f.IterationComplete(ev)
	}
}

func (f *Funcs) OnTestComplete(ev TestResult) {
	if f.TestComplete != nil {
		f.TestComplete(ev)
	}
}

func (f *Funcs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Multi fans every event out to reporters in order. Nil reporters are
// dropped.
func Multi(reporters ...Reporter) Reporter {
	out := make(multi, 0, len(reporters))

	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}

	return out
}

type multi []Reporter

func (m multi) OnTestStart(ev TestStart) {
	for _, r := range m {
		r.OnTestStart(ev)
	}
}

func (m multi) OnProgress(ev ProgressUpdate) {
	for _, r := range m {
		r.OnProgress(ev)
	}
}

func (m multi) OnIterationComplete(ev IterationResult) {
	for _, r := range m {
		r.OnIterationComplete(ev)
	}
}

func (m multi) OnTestComplete(ev TestResult) {
	for _, r := range m {
		r.OnTestComplete(ev)
	}
}

func (m multi) OnError(err error) {
	for _, r := range m {
		r.OnError(err)
	}
}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop{}
	}

	return r
}
