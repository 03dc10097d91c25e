package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"aperture/internal/ingest"
	"aperture/internal/logging"
	"aperture/internal/oplock"
	"aperture/internal/store"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Scan the raw trees and register encrypted sources",
		Long: `Walk every configured study's raw tree and upsert each encrypted file into
the source inventory. Scans are idempotent; operator decisions on existing
rows survive a rescan. One ingest runs at a time per host.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock, err := oplock.Acquire(cfg, oplock.Ingest)
			if err != nil {
				return err
			}
			defer lock.Release()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			scanner := ingest.NewScanner(cfg, st, logger)

			var bar *progressbar.ProgressBar
			if isTerminal(cmd.OutOrStdout()) {
				scanner.WithObserver(func(done, total int) {
					if bar == nil {
						bar = progressbar.Default(int64(total), "registering sources")
					}
					_ = bar.Set(done)
				})
			}

			result, err := scanner.Scan(cmd.Context())
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d encrypted files: %d registered, %d skipped\n",
				result.Scanned, result.Registered, result.Skipped)
			for _, study := range result.MissingRoots {
				fmt.Fprintf(out, "  raw tree missing for study %s\n", study)
			}

			ambiguous, err := st.ListAmbiguousSources(cmd.Context())
			if err != nil {
				return err
			}
			if len(ambiguous) > 0 {
				fmt.Fprintf(out, "\n%d sources share an interview and tag and need an operator decision:\n", len(ambiguous))
				for _, src := range ambiguous {
					fmt.Fprintf(out, "  %s/%s [%s] %s\n", src.Study, src.InterviewName, src.FileTag, src.FilePath)
				}
				fmt.Fprintln(out, "Mark one primary per group (or ignore the extras) before decrypt runs.")
			}
			return nil
		},
	}
}
