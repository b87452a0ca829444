package reporter

import (
	"fmt"
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Compile-time interface check.
var _ Reporter = (*BarReporter)(nil)

// BarReporter renders a terminal progress bar per suite. Estimated
// progress only updates the message; the bar tracks finished iterations.
type BarReporter struct {
	out io.Writer

	mu       sync.Mutex
	progress *mpb.Progress
	bar      *mpb.Bar
	message  string
}

// NewBarReporter creates a BarReporter drawing to out.
func NewBarReporter(out io.Writer) *BarReporter {
	return &BarReporter{out: out}
}

func (r *BarReporter) OnTestStart(ev TestStart) {
	total := int64(ev.Iterations * len(ev.Variants))
	if total <= 0 {
		total = 1
	}

	r.mu.Lock()
	r.message = "starting"
	r.mu.Unlock()

	r.progress = mpb.New(mpb.WithOutput(r.out), mpb.WithWidth(40))
	r.bar = r.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("%-5s", ev.Format), decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Any(r.currentMessage, decor.WCSyncSpace),
		),
	)
}

func (r *BarReporter) OnProgress(ev ProgressUpdate) {
	r.mu.Lock()
	r.message = ev.Message
	r.mu.Unlock()

	if r.bar == nil || ev.Estimated {
		return
	}

	r.bar.SetCurrent(int64(ev.CompletedIterations))
}

func (r *BarReporter) OnIterationComplete(IterationResult) {}

func (r *BarReporter) OnTestComplete(ev TestResult) {
	if r.bar == nil {
		return
	}

	r.mu.Lock()
	if ev.Stopped {
		r.message = "stopped"
	} else {
		r.message = "done"
	}
	r.mu.Unlock()

	if ev.Stopped {
		r.bar.Abort(false)
	} else {
		r.bar.SetTotal(-1, true)
	}

	r.finish()
}

func (r *BarReporter) OnError(error) {
	if r.bar == nil {
		return
	}

	r.mu.Lock()
	r.message = "failed"
	r.mu.Unlock()

	r.bar.Abort(false)
	r.finish()
}

func (r *BarReporter) finish() {
	r.progress.Wait()
	r.progress = nil
	r.bar = nil
}

func (r *BarReporter) currentMessage(decor.Statistics) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.message
}
