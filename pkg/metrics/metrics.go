// Package metrics exposes suite measurements as Prometheus metrics written
// to a node-exporter textfile.
package metrics

import (
	"fmt"
	"sync"

	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/reporter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const namespace = "iconbench"

// Compile-time interface check.
var _ reporter.Reporter = (*Collector)(nil)

// Collector is a Reporter that records suite and iteration metrics in its
// own registry.
type Collector struct {
	log      logrus.FieldLogger
	registry *prometheus.Registry
	textfile string

	suites         *prometheus.CounterVec
	iterations     *prometheus.CounterVec
	renderSeconds  *prometheus.HistogramVec
	averageSeconds *prometheus.GaugeVec
	suiteDuration  *prometheus.GaugeVec
	errors         prometheus.Counter

	mu     sync.Mutex
	format record.Format
}

// New creates a Collector. When textfile is set, every completed or failed
// suite rewrites it.
func New(log logrus.FieldLogger, textfile string) *Collector {
	c := &Collector{
		log:      log.WithField("component", "metrics"),
		registry: prometheus.NewRegistry(),
		textfile: textfile,
		suites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suites_total",
			Help:      "Suites finished by format and outcome.",
		}, []string{"format", "outcome"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Timed render passes by format and variant.",
		}, []string{"format", "variant"}),
		renderSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Duration of one bulk render pass.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"format", "variant"}),
		averageSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "render_average_seconds",
			Help:      "Mean render duration of the last suite per variant.",
		}, []string{"format", "variant"}),
		suiteDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suite_duration_seconds",
			Help:      "Wall-clock duration of the last suite per format.",
		}, []string{"format"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suite_errors_total",
			Help:      "Suites that failed.",
		}),
	}

	c.registry.MustRegister(
		c.suites,
		c.iterations,
		c.renderSeconds,
		c.averageSeconds,
		c.suiteDuration,
		c.errors,
	)

	return c
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) OnTestStart(ev reporter.TestStart) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.format = ev.Format
}

func (c *Collector) OnProgress(reporter.ProgressUpdate) {}

func (c *Collector) OnIterationComplete(ev reporter.IterationResult) {
	format := string(c.currentFormat())

	c.iterations.WithLabelValues(format, ev.IconType).Inc()
	c.renderSeconds.WithLabelValues(format, ev.IconType).Observe(ev.Elapsed.Seconds())
}

func (c *Collector) OnTestComplete(ev reporter.TestResult) {
	format := string(ev.Format)

	outcome := "completed"
	if ev.Stopped {
		outcome = "stopped"
	}

	c.suites.WithLabelValues(format, outcome).Inc()
	c.suiteDuration.WithLabelValues(format).Set(ev.Duration.Seconds())

	for name, s := range ev.Results {
		c.averageSeconds.WithLabelValues(format, name).Set(s.Average / 1000)
	}

	c.flush()
}

func (c *Collector) OnError(error) {
	c.suites.WithLabelValues(string(c.currentFormat()), "error").Inc()
	c.errors.Inc()

	c.flush()
}

// WriteTextfile writes the registry to path atomically.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}

	return nil
}

func (c *Collector) flush() {
	if c.textfile == "" {
		return
	}

	if err := c.WriteTextfile(c.textfile); err != nil {
		c.log.WithError(err).Warn("Failed to write metrics")
	}
}

func (c *Collector) currentFormat() record.Format {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.format
}
