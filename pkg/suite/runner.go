package suite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/iconbench/pkg/benchmark"
	"github.com/ethpandaops/iconbench/pkg/iconconfig"
	"github.com/ethpandaops/iconbench/pkg/ids"
	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/reporter"
	"github.com/ethpandaops/iconbench/pkg/runstate"
	"github.com/ethpandaops/iconbench/pkg/sysinfo"
	"github.com/sirupsen/logrus"
)

// ErrRunnerStopped is returned by RunSuite after Stop.
var ErrRunnerStopped = errors.New("runner stopped")

// Runner starts suites and hands back a Handle per execution.
type Runner interface {
	// RunSuite validates the request, registers an active run and starts
	// measuring in the background. Unknown formats and test types fail
	// before anything starts.
	RunSuite(ctx context.Context, format, testType string, opts Options) (*Handle, error)

	// CancelSuite cancels h. It is equivalent to h.Cancel.
	CancelSuite(h *Handle) bool

	// RunBatch runs one suite per format sequentially under a shared run
	// id, waiting for each before starting the next. It returns the
	// records finished so far with ErrRunnerStopped when Stop interrupts
	// it.
	RunBatch(ctx context.Context, formats []string, testType string, opts Options) ([]*record.RunRecord, error)

	// Stop cancels running suites and waits for their goroutines.
	Stop() error
}

// Options tune one suite execution.
type Options struct {
	// RunID groups suites; minted when empty.
	RunID string
	// Reporter receives the manager's events in addition to the handle and
	// the store.
	Reporter reporter.Reporter
	// Metadata is copied into the record's test metadata.
	Metadata map[string]any
}

// Config for the runner.
type Config struct {
	Renderer         string
	EstimateInterval time.Duration
}

// NewRunner creates a Runner measuring through renderer and persisting to
// store.
func NewRunner(
	log logrus.FieldLogger,
	cfg *Config,
	catalog *iconconfig.Catalog,
	store *runstate.Store,
	renderer benchmark.Renderer,
) Runner {
	return &runner{
		log:      log.WithField("component", "suite"),
		cfg:      cfg,
		catalog:  catalog,
		store:    store,
		renderer: renderer,
		handles:  make(map[string]*Handle),
	}
}

type runner struct {
	log      logrus.FieldLogger
	cfg      *Config
	catalog  *iconconfig.Catalog
	store    *runstate.Store
	renderer benchmark.Renderer

	// measureMu serializes suites on the shared renderer.
	measureMu sync.Mutex

	sysOnce sync.Once
	sys     *sysinfo.Info

	mu      sync.Mutex
	handles map[string]*Handle
	stopped bool
	wg      sync.WaitGroup
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

func (r *runner) RunSuite(ctx context.Context, format, testType string, opts Options) (*Handle, error) {
	variants, err := r.catalog.Variants(format)
	if err != nil {
		return nil, err
	}

	tt, err := r.catalog.TestType(testType)
	if err != nil {
		return nil, err
	}

	f := record.Format(format)

	runID := opts.RunID
	if runID == "" {
		runID = ids.NewRunID()
	}

	h := newHandle(ids.NewSuiteRunID(), runID, f, tt.Name)
	mgr := benchmark.NewManager(r.log, r.renderer, reporter.Multi(
		&handleReporter{h: h},
		reporter.NewStoreReporter(r.store, h.SuiteRunID),
		opts.Reporter,
	))

	r.mu.Lock()

	if r.stopped {
		r.mu.Unlock()

		return nil, ErrRunnerStopped
	}

	// Published handles are running so Stop can always cancel them.
	h.start(mgr.Stop)
	r.handles[h.SuiteRunID] = h
	r.wg.Add(1)

	r.mu.Unlock()

	r.store.RegisterRun(h.SuiteRunID, f, runID)

	r.log.WithFields(logrus.Fields{
		"suite_run_id": h.SuiteRunID,
		"run_id":       runID,
		"format":       format,
		"test_type":    tt.Name,
	}).Info("Suite started")

	go func() {
		defer r.wg.Done()
		defer r.forget(h.SuiteRunID)

		r.execute(ctx, h, mgr, benchmark.Config{
			SuiteRunID:       h.SuiteRunID,
			Format:           f,
			TestType:         tt,
			Variants:         variants,
			EstimateInterval: r.cfg.EstimateInterval,
		}, opts)
	}()

	return h, nil
}

func (r *runner) execute(ctx context.Context, h *Handle, mgr *benchmark.Manager, cfg benchmark.Config, opts Options) {
	log := r.log.WithField("suite_run_id", h.SuiteRunID)

	r.measureMu.Lock()
	res, err := mgr.Start(ctx, cfg)
	r.measureMu.Unlock()

	if h.cancelled() {
		r.store.AbandonRun(h.SuiteRunID)

		if err != nil {
			log.WithError(err).Debug("Suite failed after cancellation")
		} else {
			log.Info("Suite cancelled")
		}

		return
	}

	if err != nil {
		r.store.AbandonRun(h.SuiteRunID)
		h.fail(err)

		log.WithError(err).Error("Suite failed")

		return
	}

	rec, err := r.buildRecord(ctx, h, cfg, res, opts)
	if err != nil {
		r.store.AbandonRun(h.SuiteRunID)
		h.fail(err)

		log.WithError(err).Error("Building run record failed")

		return
	}

	// Persistence failures are logged by the store; the record is still
	// handed to the caller.
	_ = r.store.CompleteRun(ctx, h.SuiteRunID, rec)

	if h.complete(rec) {
		log.WithFields(logrus.Fields{
			"test_result_id": rec.TestResultID,
			"duration":       rec.Duration(),
		}).Info("Suite completed")
	}
}

func (r *runner) buildRecord(
	ctx context.Context,
	h *Handle,
	cfg benchmark.Config,
	res *benchmark.Result,
	opts Options,
) (*record.RunRecord, error) {
	results, analysis, ranking := record.FromSamples(res.Samples, res.Order)

	metadata := map[string]any{
		"renderer":  r.cfg.Renderer,
		"iconCount": cfg.TestType.IconCount,
		"variants":  res.Order,
		"stopped":   res.Stopped,
	}

	for k, v := range opts.Metadata {
		metadata[k] = v
	}

	return record.New(record.Fields{
		RunID:               h.RunID,
		SuiteRunID:          h.SuiteRunID,
		Format:              string(cfg.Format),
		TestType:            cfg.TestType.Name,
		Iterations:          cfg.TestType.Iterations,
		StartTime:           res.StartTime,
		EndTime:             res.EndTime,
		Results:             results,
		StatisticalAnalysis: analysis,
		PerformanceRanking:  ranking,
		TestMetadata:        metadata,
		TestConfiguration: map[string]any{
			"testType":   cfg.TestType.Name,
			"iterations": cfg.TestType.Iterations,
			"iconCount":  cfg.TestType.IconCount,
			"format":     string(cfg.Format),
		},
		SystemSpecifications: r.systemInfo(ctx).Map(),
	})
}

func (r *runner) systemInfo(ctx context.Context) *sysinfo.Info {
	r.sysOnce.Do(func() {
		r.sys = sysinfo.Collect(ctx, r.log)
		r.sys.Renderer = r.cfg.Renderer
	})

	return r.sys
}

func (r *runner) CancelSuite(h *Handle) bool {
	return h.Cancel()
}

func (r *runner) RunBatch(
	ctx context.Context,
	formats []string,
	testType string,
	opts Options,
) ([]*record.RunRecord, error) {
	// Validate everything up front so a bad format fails the batch before
	// any suite runs.
	for _, format := range formats {
		if _, err := r.catalog.Variants(format); err != nil {
			return nil, err
		}
	}

	if _, err := r.catalog.TestType(testType); err != nil {
		return nil, err
	}

	if opts.RunID == "" {
		opts.RunID = ids.NewRunID()
	}

	records := make([]*record.RunRecord, 0, len(formats))

	for _, format := range formats {
		h, err := r.RunSuite(ctx, format, testType, opts)
		if err != nil {
			return records, fmt.Errorf("starting %s suite: %w", format, err)
		}

		rec, err := h.Wait(ctx)
		if errors.Is(err, ErrCancelled) && r.isStopped() {
			return records, ErrRunnerStopped
		}

		if err != nil {
			h.Cancel()

			return records, fmt.Errorf("running %s suite: %w", format, err)
		}

		records = append(records, rec)
	}

	return records, nil
}

func (r *runner) Stop() error {
	r.mu.Lock()
	r.stopped = true

	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}

	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}

	r.wg.Wait()

	r.log.Debug("Runner stopped")

	return nil
}

func (r *runner) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stopped
}

func (r *runner) forget(suiteRunID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, suiteRunID)
}

// handleReporter mirrors manager progress into a Handle.
type handleReporter struct {
	reporter.Nop

	h *Handle
}

func (hr *handleReporter) OnTestStart(ev reporter.TestStart) {
	hr.h.setProgress(runstate.Progress{
		Message:         fmt.Sprintf("Starting %s %s test", ev.Format, ev.TestType),
		TotalIterations: ev.Iterations * len(ev.Variants),
	})
}

func (hr *handleReporter) OnProgress(ev reporter.ProgressUpdate) {
	hr.h.setProgress(runstate.Progress{
		Percentage:          ev.Percentage,
		Message:             ev.Message,
		CompletedIterations: ev.CompletedIterations,
		TotalIterations:     ev.TotalIterations,
	})
}
