package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ethpandaops/iconbench/pkg/benchmark"
	"github.com/ethpandaops/iconbench/pkg/fsutil"
	"github.com/ethpandaops/iconbench/pkg/iconconfig"
	"github.com/ethpandaops/iconbench/pkg/metrics"
	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/report"
	"github.com/ethpandaops/iconbench/pkg/reporter"
	"github.com/ethpandaops/iconbench/pkg/suite"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	runFormats        []string
	runTestType       string
	runRenderer       string
	runProgress       string
	runMetadataLabels []string
	runSummaryDir     string
	runExport         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run benchmark suites",
	Long: `Measure every configured variant of the given formats. Formats run one
after another under a shared run id; each produces one stored record.`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&runFormats, "format", []string{string(record.DefaultFormat)},
		"Formats to measure (comma-separated or repeated flag, \"all\" for every format)")
	runCmd.Flags().StringVar(&runTestType, "test-type", "standard",
		"Test type sizing the suites")
	runCmd.Flags().StringVar(&runRenderer, "renderer", "",
		"Renderer override (chrome, markup)")
	runCmd.Flags().StringVar(&runProgress, "progress", "auto",
		"Progress output (auto, bar, log, none)")
	runCmd.Flags().StringSliceVar(&runMetadataLabels, "metadata.label", nil,
		"Add metadata label as key=value (can be repeated)")
	runCmd.Flags().StringVar(&runSummaryDir, "summary-dir", "",
		"Write a markdown summary per record into this directory")
	runCmd.Flags().BoolVar(&runExport, "export", false,
		"Write the new records to an export file (and upload it when s3 is enabled)")
}

func runBenchmark(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if runRenderer != "" {
		cfg.Benchmark.Renderer = runRenderer

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating config: %w", err)
		}
	}

	metadata := make(map[string]any, len(runMetadataLabels))

	for _, entry := range runMetadataLabels {
		k, v, ok := strings.Cut(entry, "=")
		if !ok || k == "" {
			return fmt.Errorf("invalid metadata label %q: must be key=value", entry)
		}

		metadata[k] = v
	}

	catalog, err := iconconfig.Load(cfg.Benchmark.IconsFile)
	if err != nil {
		return fmt.Errorf("loading icon configuration: %w", err)
	}

	formats := expandFormats(runFormats, catalog)

	progress, err := progressReporter(runProgress)
	if err != nil {
		return err
	}

	// Setup context with signal handling.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	renderer, err := benchmark.NewRenderer(log, &cfg.Benchmark)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}

	defer func() {
		if err := renderer.Close(); err != nil {
			log.WithError(err).Warn("Failed to close renderer")
		}
	}()

	collector := metrics.New(log, cfg.Metrics.Textfile)

	runner := suite.NewRunner(log, &suite.Config{
		Renderer:         cfg.Benchmark.Renderer,
		EstimateInterval: cfg.Benchmark.EstimateInterval,
	}, catalog, store, renderer)

	defer func() {
		if err := runner.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop runner")
		}
	}()

	log.WithFields(logrus.Fields{
		"formats":   formats,
		"test_type": runTestType,
		"renderer":  cfg.Benchmark.Renderer,
	}).Info("Starting benchmark")

	records, err := runner.RunBatch(ctx, formats, runTestType, suite.Options{
		Reporter: reporter.Multi(progress, collector),
		Metadata: metadata,
	})

	for _, rec := range records {
		printRecord(cmd.OutOrStdout(), rec)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.WithField("completed", len(records)).Warn("Benchmark interrupted")
		}

		return err
	}

	owner, err := fsutil.ParseOwner(cfg.Export.Owner)
	if err != nil {
		return fmt.Errorf("parsing export owner: %w", err)
	}

	if runSummaryDir != "" {
		if err := writeSummaries(runSummaryDir, records, owner); err != nil {
			return err
		}
	}

	if runExport {
		// The run context may be cancelled by now; the export still goes out.
		if _, err := exportRecords(context.WithoutCancel(ctx), cfg, records, "", owner); err != nil {
			return err
		}
	}

	return nil
}

// expandFormats resolves "all" to every format with configured variants.
func expandFormats(formats []string, catalog *iconconfig.Catalog) []string {
	for _, f := range formats {
		if f != "all" {
			continue
		}

		out := make([]string, 0, len(catalog.Formats))

		for _, format := range record.Formats() {
			if _, err := catalog.Variants(string(format)); err == nil {
				out = append(out, string(format))
			}
		}

		return out
	}

	return formats
}

// progressReporter builds the progress output. auto draws bars on a
// terminal and logs otherwise.
func progressReporter(mode string) (reporter.Reporter, error) {
	switch mode {
	case "auto":
		if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return reporter.NewBarReporter(os.Stdout), nil
		}

		return reporter.NewLogReporter(log, 0), nil
	case "bar":
		return reporter.NewBarReporter(os.Stdout), nil
	case "log":
		return reporter.NewLogReporter(log, 0), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported progress mode %q", mode)
	}
}

func writeSummaries(dir string, records []*record.RunRecord, owner *fsutil.OwnerConfig) error {
	if err := fsutil.MkdirAll(dir, 0o755, owner); err != nil {
		return fmt.Errorf("creating summary directory: %w", err)
	}

	for _, rec := range records {
		path := filepath.Join(dir, fmt.Sprintf("summary-%s.md", rec.TestResultID))
		md := report.GenerateRecordMarkdown(rec, maxMarkdownChars)

		if err := fsutil.WriteFileAtomic(path, []byte(md), 0o644, owner); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}

		log.WithField("path", path).Info("Markdown summary written")
	}

	return nil
}
