package reporter

import (
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultLogInterval is the minimum gap between logged progress lines.
const DefaultLogInterval = 2 * time.Second

// Compile-time interface check.
var _ Reporter = (*LogReporter)(nil)

// LogReporter writes events to a logrus logger. Progress lines are
// coalesced to at most one per interval; iteration lines go to debug.
type LogReporter struct {
	log      logrus.FieldLogger
	progress rate.Sometimes
}

// NewLogReporter creates a LogReporter. A non-positive interval uses
// DefaultLogInterval.
func NewLogReporter(log logrus.FieldLogger, interval time.Duration) *LogReporter {
	if interval <= 0 {
		interval = DefaultLogInterval
	}

	return &LogReporter{
		log:      log.WithField("component", "reporter"),
		progress: rate.Sometimes{First: 1, Interval: interval},
	}
}

func (r *LogReporter) OnTestStart(ev TestStart) {
	r.log.WithFields(logrus.Fields{
		"suite_run_id": ev.SuiteRunID,
		"format":       ev.Format,
		"test_type":    ev.TestType,
		"iterations":   ev.Iterations,
		"icon_count":   ev.IconCount,
		"variants":     len(ev.Variants),
	}).Info("Suite started")
}

func (r *LogReporter) OnProgress(ev ProgressUpdate) {
	r.progress.Do(func() {
		r.log.WithFields(logrus.Fields{
			"percent":   int(ev.Percentage),
			"completed": ev.CompletedIterations,
			"total":     ev.TotalIterations,
		}).Info(ev.Message)
	})
}

func (r *LogReporter) OnIterationComplete(ev IterationResult) {
	r.log.WithFields(logrus.Fields{
		"icon_type": ev.IconType,
		"iteration": ev.Iteration,
		"elapsed":   ev.Elapsed.String(),
	}).Debug("Iteration complete")
}

func (r *LogReporter) OnTestComplete(ev TestResult) {
	fields := logrus.Fields{
		"format":   ev.Format,
		"variants": len(ev.Results),
		"duration": units.HumanDuration(ev.Duration),
	}

	if ev.Stopped {
		r.log.WithFields(fields).Warn("Suite stopped early")

		return
	}

	r.log.WithFields(fields).Info("Suite complete")
}

func (r *LogReporter) OnError(err error) {
	r.log.WithError(err).Error("Suite failed")
}
