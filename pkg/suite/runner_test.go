package suite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/iconbench/pkg/iconconfig"
	"github.com/ethpandaops/iconbench/pkg/kvstore"
	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/reporter"
	"github.com/ethpandaops/iconbench/pkg/runstate"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.FatalLevel)

	return log
}

// gatedRenderer blocks every render until gate is closed (when set) and
// fails renders of failOn.
type gatedRenderer struct {
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
	failOn  string
}

func (g *gatedRenderer) Prepare(context.Context, iconconfig.Variant) error { return nil }

func (g *gatedRenderer) Render(ctx context.Context, v iconconfig.Variant, count int) (time.Duration, error) {
	if g.entered != nil {
		g.once.Do(func() { close(g.entered) })
	}

	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if v.Name == g.failOn {
		return 0, errors.New("layout crashed")
	}

	return time.Duration(count) * time.Microsecond, nil
}

func (g *gatedRenderer) Close() error { return nil }

func testCatalog() *iconconfig.Catalog {
	return &iconconfig.Catalog{
		Formats: map[record.Format][]iconconfig.Variant{
			record.FormatSVG: {
				{Name: "Inline SVG", Markup: `<svg></svg>`},
				{Name: "SVG Image", Markup: `<img src="icon.svg">`},
			},
			record.FormatCSS: {
				{Name: "CSS Shape", Markup: `<i></i>`},
			},
		},
		TestTypes: map[string]iconconfig.TestType{
			"quick": {Name: "quick", Iterations: 3, IconCount: 10},
		},
	}
}

func newTestRunner(t *testing.T, renderer *gatedRenderer) (Runner, *runstate.Store) {
	t.Helper()

	kv := kvstore.NewMemoryBackend().NewStore(testLogger())
	require.NoError(t, kv.Start(context.Background()))

	store := runstate.New(testLogger(), kv)
	r := NewRunner(testLogger(), &Config{Renderer: "fake", EstimateInterval: time.Hour}, testCatalog(), store, renderer)

	t.Cleanup(func() {
		_ = r.Stop()
		store.Close()
		_ = kv.Stop()
	})

	return r, store
}

func TestRunner_RunSuiteEndToEnd(t *testing.T) {
	r, store := newTestRunner(t, &gatedRenderer{})
	ctx := context.Background()

	var (
		mu         sync.Mutex
		storeTicks []runstate.Progress
		completed  []runstate.CompletionEvent
	)

	store.OnProgressChange(record.FormatSVG, func(ev runstate.ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()

		storeTicks = append(storeTicks, ev.Progress)
	})
	store.OnCompletion(record.FormatSVG, func(ev runstate.CompletionEvent) {
		mu.Lock()
		defer mu.Unlock()

		completed = append(completed, ev)
	})

	var iterations int

	h, err := r.RunSuite(ctx, "svg", "quick", Options{
		RunID:    "run_fixed",
		Reporter: &reporter.Funcs{IterationComplete: func(reporter.IterationResult) { iterations++ }},
		Metadata: map[string]any{"label": "nightly"},
	})
	require.NoError(t, err)

	rec, err := h.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, h.Status())
	assert.Equal(t, rec, h.Result())
	assert.NoError(t, h.Err())
	assert.Equal(t, 100.0, h.Progress().Percentage)
	assert.Equal(t, 6, iterations)

	assert.Equal(t, "run_fixed", rec.RunID)
	assert.Equal(t, h.SuiteRunID, rec.SuiteRunID)
	assert.Equal(t, record.FormatSVG, rec.Format)
	assert.Equal(t, "quick", rec.TestType)
	assert.Equal(t, 3, rec.Iterations)
	assert.Equal(t, record.SourceLocal, rec.Source)
	assert.Len(t, rec.Results, 2)
	assert.Len(t, rec.PerformanceRanking, 2)
	assert.Contains(t, rec.StatisticalAnalysis, "Inline SVG vs SVG Image")
	assert.Equal(t, "nightly", rec.TestMetadata["label"])
	assert.Equal(t, "fake", rec.SystemSpecifications["renderer"])

	_, active := store.GetActiveRun(record.FormatSVG)
	assert.False(t, active)

	latest, ok := store.Latest(ctx, record.FormatSVG)
	require.True(t, ok)
	assert.Equal(t, rec.TestResultID, latest.TestResultID)
	assert.Len(t, store.AllCompleted(ctx), 1)

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, completed, 1)
	assert.Equal(t, rec.TestResultID, completed[0].Record.TestResultID)
	require.NotEmpty(t, storeTicks)
	assert.Equal(t, 6, storeTicks[len(storeTicks)-1].CompletedIterations)
}

func TestRunner_UnknownInputsFailSynchronously(t *testing.T) {
	r, store := newTestRunner(t, &gatedRenderer{})

	_, err := r.RunSuite(context.Background(), "bmp", "quick", Options{})
	require.ErrorIs(t, err, iconconfig.ErrUnknownFormat)

	_, err = r.RunSuite(context.Background(), "svg", "marathon", Options{})
	require.ErrorIs(t, err, iconconfig.ErrUnknownTestType)

	assert.Empty(t, store.ActiveRuns())
}

func TestRunner_CancelAbandonsRun(t *testing.T) {
	renderer := &gatedRenderer{gate: make(chan struct{}), entered: make(chan struct{})}
	r, store := newTestRunner(t, renderer)
	ctx := context.Background()

	h, err := r.RunSuite(ctx, "svg", "quick", Options{})
	require.NoError(t, err)

	assert.Equal(t, StatusRunning, h.Status())

	run, ok := store.GetActiveRun(record.FormatSVG)
	require.True(t, ok)
	assert.Equal(t, h.SuiteRunID, run.SuiteRunID)

	<-renderer.entered

	assert.True(t, r.CancelSuite(h))
	assert.Equal(t, StatusCancelled, h.Status())
	assert.False(t, h.Cancel(), "second cancel is a no-op")

	close(renderer.gate)

	assert.Eventually(t, func() bool {
		_, ok := store.GetActiveRun(record.FormatSVG)

		return !ok
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, StatusCancelled, h.Status())
	assert.Nil(t, h.Result())
	assert.Empty(t, store.AllCompleted(ctx))

	select {
	case <-h.Done():
		t.Fatal("done fired for a cancelled suite")
	default:
	}

	select {
	case <-h.Cancelled():
	default:
		t.Fatal("cancelled channel not closed")
	}

	_, err = h.Wait(ctx)
	require.ErrorIs(t, err, ErrCancelled)
}

func TestRunner_RenderFailureFailsHandle(t *testing.T) {
	r, store := newTestRunner(t, &gatedRenderer{failOn: "SVG Image"})
	ctx := context.Background()

	h, err := r.RunSuite(ctx, "svg", "quick", Options{})
	require.NoError(t, err)

	_, err = h.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout crashed")

	assert.Equal(t, StatusError, h.Status())
	assert.Equal(t, err, h.Err())
	assert.Empty(t, store.AllCompleted(ctx))
	assert.Empty(t, store.ActiveRuns())
}

func TestRunner_FailureAfterCancelIsSwallowed(t *testing.T) {
	renderer := &gatedRenderer{gate: make(chan struct{}), entered: make(chan struct{}), failOn: "Inline SVG"}
	r, store := newTestRunner(t, renderer)

	h, err := r.RunSuite(context.Background(), "svg", "quick", Options{})
	require.NoError(t, err)

	<-renderer.entered
	require.True(t, h.Cancel())
	close(renderer.gate)

	assert.Eventually(t, func() bool { return len(store.ActiveRuns()) == 0 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, StatusCancelled, h.Status())
	assert.NoError(t, h.Err())
}

func TestRunner_RunBatchSharesRunID(t *testing.T) {
	r, store := newTestRunner(t, &gatedRenderer{})
	ctx := context.Background()

	records, err := r.RunBatch(ctx, []string{"svg", "css"}, "quick", Options{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, record.FormatSVG, records[0].Format)
	assert.Equal(t, record.FormatCSS, records[1].Format)
	assert.Equal(t, records[0].RunID, records[1].RunID)
	assert.NotEqual(t, records[0].SuiteRunID, records[1].SuiteRunID)
	assert.Len(t, store.AllCompleted(ctx), 2)
}

func TestRunner_RunBatchValidatesFirst(t *testing.T) {
	r, store := newTestRunner(t, &gatedRenderer{})
	ctx := context.Background()

	_, err := r.RunBatch(ctx, []string{"svg", "bmp"}, "quick", Options{})
	require.ErrorIs(t, err, iconconfig.ErrUnknownFormat)
	assert.Empty(t, store.AllCompleted(ctx))
}

func TestRunner_StopRejectsNewSuites(t *testing.T) {
	r, _ := newTestRunner(t, &gatedRenderer{})

	require.NoError(t, r.Stop())

	_, err := r.RunSuite(context.Background(), "svg", "quick", Options{})
	require.ErrorIs(t, err, ErrRunnerStopped)
}

func TestRunner_StopInterruptsBatch(t *testing.T) {
	renderer := &gatedRenderer{gate: make(chan struct{}), entered: make(chan struct{})}
	r, store := newTestRunner(t, renderer)
	ctx := context.Background()

	type batchResult struct {
		records []*record.RunRecord
		err     error
	}

	batchDone := make(chan batchResult, 1)

	go func() {
		records, err := r.RunBatch(ctx, []string{"svg", "css"}, "quick", Options{})
		batchDone <- batchResult{records: records, err: err}
	}()

	<-renderer.entered

	stopDone := make(chan error, 1)

	go func() { stopDone <- r.Stop() }()

	select {
	case res := <-batchDone:
		require.ErrorIs(t, res.err, ErrRunnerStopped)
		assert.Empty(t, res.records)
	case <-time.After(2 * time.Second):
		t.Fatal("RunBatch did not return after Stop")
	}

	close(renderer.gate)

	select {
	case err := <-stopDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	assert.Empty(t, store.AllCompleted(ctx))
	assert.Empty(t, store.ActiveRuns())
}

func TestRunner_StopCancelsEverySuiteItAccepted(t *testing.T) {
	renderer := &gatedRenderer{gate: make(chan struct{})}
	r, _ := newTestRunner(t, renderer)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		handles []*Handle
		wg      sync.WaitGroup
	)

	start := make(chan struct{})

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			<-start

			h, err := r.RunSuite(ctx, "css", "quick", Options{})
			if err != nil {
				assert.ErrorIs(t, err, ErrRunnerStopped)

				return
			}

			mu.Lock()
			handles = append(handles, h)
			mu.Unlock()
		}()
	}

	stopDone := make(chan error, 1)

	go func() {
		<-start
		stopDone <- r.Stop()
	}()

	close(start)
	wg.Wait()

	// Renders stay blocked until every accepted suite has been cancelled.
	assert.Eventually(t, func() bool {
		for _, h := range handles {
			if h.Status() != StatusCancelled {
				return false
			}
		}

		return true
	}, 2*time.Second, 5*time.Millisecond)

	close(renderer.gate)
	require.NoError(t, <-stopDone)

	for _, h := range handles {
		assert.Equal(t, StatusCancelled, h.Status())
		assert.Nil(t, h.Result())
	}
}
