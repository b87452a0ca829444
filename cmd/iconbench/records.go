package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethpandaops/iconbench/pkg/fsutil"
	"github.com/ethpandaops/iconbench/pkg/record"
	"github.com/ethpandaops/iconbench/pkg/report"
	"github.com/ethpandaops/iconbench/pkg/upload"
	"github.com/spf13/cobra"
)

var (
	listFormat     string
	listActiveOnly bool
	showOutput     string
	toggleActive   bool
	importS3Keys   []string
	exportOutput   string
	exportActive   bool
	exportFormat   string
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage stored run records",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored run records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, err := loadRecords(cmd, listFormat, listActiveOnly)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No records stored.")

			return nil
		}

		printRecordList(cmd.OutOrStdout(), records)

		return nil
	},
}

var recordsShowCmd = &cobra.Command{
	Use:   "show <test-result-id>",
	Short: "Print the markdown summary of a record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		rec, ok := store.FindRecord(cmd.Context(), args[0])
		if !ok {
			return fmt.Errorf("record %q not found", args[0])
		}

		md := report.GenerateRecordMarkdown(rec, maxMarkdownChars)

		if showOutput == "" {
			fmt.Fprint(cmd.OutOrStdout(), md)

			return nil
		}

		owner, err := fsutil.ParseOwner(cfg.Export.Owner)
		if err != nil {
			return fmt.Errorf("parsing export owner: %w", err)
		}

		if err := fsutil.WriteFileAtomic(showOutput, []byte(md), 0o644, owner); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}

		log.WithField("output", showOutput).Info("Markdown summary written")

		return nil
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <test-result-id>...",
	Short: "Delete records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := store.DeleteRecords(cmd.Context(), args)
		if err != nil {
			return fmt.Errorf("deleting records: %w", err)
		}

		log.WithField("deleted", n).Info("Records deleted")

		return nil
	},
}

var recordsToggleCmd = &cobra.Command{
	Use:   "toggle <test-result-id>...",
	Short: "Mark records active or inactive",
	Long:  `Inactive records are kept but left out of comparisons and active exports.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		store, closeStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := store.ToggleActive(cmd.Context(), args, toggleActive)
		if err != nil {
			return fmt.Errorf("updating records: %w", err)
		}

		log.WithField("updated", n).WithField("active", toggleActive).Info("Records updated")

		return nil
	},
}

var recordsImportCmd = &cobra.Command{
	Use:   "import [file]...",
	Short: "Import records from export files",
	Long: `Import records from export files on disk or, with --s3-key, from the
configured bucket. Envelopes, bare arrays and single legacy records are
accepted. Every imported record gets a fresh result id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && len(importS3Keys) == 0 {
			return fmt.Errorf("nothing to import: pass files or --s3-key")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()

		var imported []*record.RunRecord

		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}

			recs, err := record.ParseExport(data, filepath.Base(path))
			if err != nil {
				return err
			}

			imported = append(imported, recs...)
		}

		if len(importS3Keys) > 0 {
			if cfg.Export.S3 == nil {
				return fmt.Errorf("S3 is not configured or not enabled in config")
			}

			uploader, err := upload.NewS3Uploader(log, cfg.Export.S3)
			if err != nil {
				return fmt.Errorf("creating S3 uploader: %w", err)
			}

			for _, key := range importS3Keys {
				data, err := uploader.Download(ctx, key)
				if err != nil {
					return err
				}

				recs, err := record.ParseExport(data, filepath.Base(key))
				if err != nil {
					return err
				}

				imported = append(imported, recs...)
			}
		}

		store, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := store.ImportRecords(ctx, imported); err != nil {
			return fmt.Errorf("importing records: %w", err)
		}

		log.WithField("imported", len(imported)).Info("Records imported")

		return nil
	},
}

var recordsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records to a file",
	Long: `Write stored records to an export file. The file is uploaded when S3
export is enabled in the config.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		records, err := loadRecords(cmd, exportFormat, exportActive)
		if err != nil {
			return err
		}

		owner, err := fsutil.ParseOwner(cfg.Export.Owner)
		if err != nil {
			return fmt.Errorf("parsing export owner: %w", err)
		}

		_, err = exportRecords(cmd.Context(), cfg, records, exportOutput, owner)

		return err
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(
		recordsListCmd,
		recordsShowCmd,
		recordsDeleteCmd,
		recordsToggleCmd,
		recordsImportCmd,
		recordsExportCmd,
	)

	recordsListCmd.Flags().StringVar(&listFormat, "format", "", "Only list records of this format")
	recordsListCmd.Flags().BoolVar(&listActiveOnly, "active", false, "Only list active records")

	recordsShowCmd.Flags().StringVar(&showOutput, "output", "", "Write the summary to this file")

	recordsToggleCmd.Flags().BoolVar(&toggleActive, "active", false, "New active state")

	recordsImportCmd.Flags().StringSliceVar(&importS3Keys, "s3-key", nil,
		"Import an export file from the configured bucket (can be repeated)")

	recordsExportCmd.Flags().StringVar(&exportOutput, "output", "",
		"Output file (default: timestamped file in export.dir)")
	recordsExportCmd.Flags().BoolVar(&exportActive, "active", false, "Only export active records")
	recordsExportCmd.Flags().StringVar(&exportFormat, "format", "", "Only export records of this format")
}

// loadRecords reads stored records, optionally filtered by format and
// active flag.
func loadRecords(cmd *cobra.Command, format string, activeOnly bool) ([]*record.RunRecord, error) {
	if format != "" {
		if _, err := record.ParseFormat(format); err != nil {
			return nil, err
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	var all []*record.RunRecord
	if activeOnly {
		all = store.ActiveRecords(cmd.Context())
	} else {
		all = store.AllCompleted(cmd.Context())
	}

	if format == "" {
		return all, nil
	}

	out := make([]*record.RunRecord, 0, len(all))

	for _, rec := range all {
		if string(rec.Format) == format {
			out = append(out, rec)
		}
	}

	return out, nil
}
