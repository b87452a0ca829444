// Package benchmark runs the measurement loop: every variant of a format is
// rendered in bulk, timed, and repeated for the configured iterations.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/iconbench/pkg/iconconfig"
	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/reporter"
	"github.com/ethpandaops/iconbench/pkg/stats"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultEstimateInterval is the estimator tick when Config leaves it unset.
const DefaultEstimateInterval = 250 * time.Millisecond

// ErrNoVariants is returned when a suite has nothing to measure.
var ErrNoVariants = errors.New("no variants to measure")

// Config describes one suite.
type Config struct {
	SuiteRunID string
	Format     record.Format
	TestType   iconconfig.TestType
	Variants   []iconconfig.Variant
	// EstimateInterval is the tick of the background progress estimator.
	EstimateInterval time.Duration
}

// Result holds the raw samples of a suite in milliseconds.
type Result struct {
	Samples   map[string][]float64
	Summaries map[string]stats.Summary
	// Order lists the variants in measurement order.
	Order     []string
	StartTime time.Time
	EndTime   time.Time
	Stopped   bool
}

// Manager runs the measurement loop of one suite at a time.
type Manager struct {
	log      logrus.FieldLogger
	renderer Renderer
	reporter reporter.Reporter

	repMu     sync.Mutex
	reported  int // guarded by repMu
	stop      atomic.Bool
	completed atomic.Int64
	lastDone  atomic.Int64
	running   atomic.Bool
}

// NewManager creates a Manager rendering through renderer and reporting to
// rep (nil reports nowhere).
func NewManager(log logrus.FieldLogger, renderer Renderer, rep reporter.Reporter) *Manager {
	return &Manager{
		log:      log.WithField("component", "benchmark"),
		renderer: renderer,
		reporter: reporter.OrNop(rep),
	}
}

// Stop asks the loop to end before the next variant. A variant already
// being measured runs to completion.
func (m *Manager) Stop() {
	m.stop.Store(true)
}

// Start measures every variant of cfg and blocks until done. When Stop is
// called the samples gathered so far are returned with Stopped set.
func (m *Manager) Start(ctx context.Context, cfg Config) (*Result, error) {
	if len(cfg.Variants) == 0 {
		return nil, ErrNoVariants
	}

	if cfg.TestType.Iterations <= 0 || cfg.TestType.IconCount <= 0 {
		return nil, fmt.Errorf("test type %q: iterations and icon count must be positive", cfg.TestType.Name)
	}

	if !m.running.CompareAndSwap(false, true) {
		return nil, errors.New("manager already running")
	}
	defer m.running.Store(false)

	m.completed.Store(0)
	m.reported = 0

	interval := cfg.EstimateInterval
	if interval <= 0 {
		interval = DefaultEstimateInterval
	}

	names := make([]string, 0, len(cfg.Variants))
	for _, v := range cfg.Variants {
		names = append(names, v.Name)
	}

	total := cfg.TestType.Iterations * len(cfg.Variants)

	m.report(func(r reporter.Reporter) {
		r.OnTestStart(reporter.TestStart{
			SuiteRunID: cfg.SuiteRunID,
			Format:     cfg.Format,
			TestType:   cfg.TestType.Name,
			Iterations: cfg.TestType.Iterations,
			IconCount:  cfg.TestType.IconCount,
			Variants:   names,
		})
	})

	res := &Result{
		Samples:   make(map[string][]float64, len(cfg.Variants)),
		StartTime: time.Now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})

	g.Go(func() error {
		defer close(loopDone)

		return m.measure(gctx, cfg, total, res)
	})

	g.Go(func() error {
		m.estimate(gctx, loopDone, res.StartTime, total, interval)

		return nil
	})

	if err := g.Wait(); err != nil {
		m.report(func(r reporter.Reporter) { r.OnError(err) })

		return nil, err
	}

	res.EndTime = time.Now()
	res.Summaries = make(map[string]stats.Summary, len(res.Samples))

	for name, samples := range res.Samples {
		res.Summaries[name] = stats.Describe(samples)
	}

	m.report(func(r reporter.Reporter) {
		r.OnTestComplete(reporter.TestResult{
			Format:   cfg.Format,
			Results:  res.Summaries,
			Samples:  res.Samples,
			Duration: res.EndTime.Sub(res.StartTime),
			Stopped:  res.Stopped,
		})
	})

	return res, nil
}

// measure is the loop proper. The stop flag and ctx are checked between
// variants only.
func (m *Manager) measure(ctx context.Context, cfg Config, total int, res *Result) error {
	for _, v := range cfg.Variants {
		if m.stop.Load() {
			res.Stopped = true

			m.log.WithField("variant", v.Name).Info("Stop requested, skipping remaining variants")

			return nil
		}

		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.renderer.Prepare(ctx, v); err != nil {
			return fmt.Errorf("preparing %s: %w", v.Name, err)
		}

		samples := make([]float64, 0, cfg.TestType.Iterations)

		for i := 1; i <= cfg.TestType.Iterations; i++ {
			elapsed, err := m.renderer.Render(ctx, v, cfg.TestType.IconCount)
			if err != nil {
				return fmt.Errorf("rendering %s iteration %d: %w", v.Name, i, err)
			}

			samples = append(samples, float64(elapsed)/float64(time.Millisecond))
			m.lastDone.Store(time.Now().UnixNano())
			done := int(m.completed.Add(1))

			m.report(func(r reporter.Reporter) {
				m.reported = done

				r.OnIterationComplete(reporter.IterationResult{
					IconType:  v.Name,
					Iteration: i,
					IconCount: cfg.TestType.IconCount,
					Elapsed:   elapsed,
				})
				r.OnProgress(reporter.ProgressUpdate{
					Percentage:          percent(done, total),
					Message:             "Testing " + v.Name,
					CompletedIterations: done,
					TotalIterations:     total,
				})
			})
		}

		res.Samples[v.Name] = samples
		res.Order = append(res.Order, v.Name)
	}

	return nil
}

// estimate emits approximate progress between iterations by assuming the
// iteration in flight takes as long as the mean so far. It is a UI hint
// only.
func (m *Manager) estimate(ctx context.Context, loopDone <-chan struct{}, start time.Time, total int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			done := int(m.completed.Load())
			if done == 0 || done >= total {
				continue
			}

			last := time.Unix(0, m.lastDone.Load())

			mean := last.Sub(start) / time.Duration(done)
			if mean <= 0 {
				continue
			}

			frac := float64(time.Since(last)) / float64(mean)
			if frac > 0.95 {
				frac = 0.95
			}

			m.publishEstimate(done, total, (float64(done)+frac)/float64(total)*100)
		case <-loopDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

// publishEstimate reports an estimated percentage computed from done
// completed iterations. The hint is dropped unless done is both the latest
// finished and the latest reported iteration.
func (m *Manager) publishEstimate(done, total int, pct float64) bool {
	m.repMu.Lock()
	defer m.repMu.Unlock()

	if m.reported != done || int(m.completed.Load()) != done {
		return false
	}

	m.reporter.OnProgress(reporter.ProgressUpdate{
		Percentage:          pct,
		Message:             "Measuring",
		CompletedIterations: done,
		TotalIterations:     total,
		Estimated:           true,
	})

	return true
}

// report serializes reporter calls from the loop and the estimator.
func (m *Manager) report(fn func(reporter.Reporter)) {
	m.repMu.Lock()
	defer m.repMu.Unlock()

	fn(m.reporter)
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}

	return float64(done) / float64(total) * 100
}
