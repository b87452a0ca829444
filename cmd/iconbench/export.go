package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethpandaops/iconbench/pkg/config"
	"github.com/ethpandaops/iconbench/pkg/fsutil"
	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/upload"
	"github.com/sirupsen/logrus"
)

const maxMarkdownChars = 65000

// exportRecords writes records to an export file and uploads it when S3 is
// enabled. An empty path writes a timestamped file into the export dir.
func exportRecords(
	ctx context.Context,
	cfg *config.Config,
	records []*record.RunRecord,
	path string,
	owner *fsutil.OwnerConfig,
) (string, error) {
	now := time.Now()

	if path == "" {
		if err := fsutil.MkdirAll(cfg.Export.Dir, 0o755, owner); err != nil {
			return "", fmt.Errorf("creating export directory: %w", err)
		}

		path = filepath.Join(cfg.Export.Dir,
			fmt.Sprintf("iconbench-export-%s.json", now.UTC().Format("20060102-150405")))
	}

	data, err := record.NewEnvelope(records, now).Marshal()
	if err != nil {
		return "", err
	}

	if err := fsutil.WriteFileAtomic(path, data, 0o644, owner); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}

	log.WithFields(logrus.Fields{
		"path":    path,
		"records": len(records),
	}).Info("Export written")

	if cfg.Export.S3 == nil {
		return path, nil
	}

	uploader, err := upload.NewS3Uploader(log, cfg.Export.S3)
	if err != nil {
		return "", fmt.Errorf("creating S3 uploader: %w", err)
	}

	if err := uploader.Preflight(ctx); err != nil {
		return "", fmt.Errorf("s3 preflight: %w", err)
	}

	if _, err := uploader.UploadFile(ctx, path); err != nil {
		return "", err
	}

	return path, nil
}
