package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"aperture/internal/config"
	"aperture/internal/decrypt"
	"aperture/internal/faceext"
	"aperture/internal/faceload"
	"aperture/internal/faceqc"
	"aperture/internal/gate"
	"aperture/internal/logging"
	"aperture/internal/metadata"
	"aperture/internal/notifications"
	"aperture/internal/quickqc"
	"aperture/internal/report"
	"aperture/internal/split"
	"aperture/internal/stage"
	"aperture/internal/store"
	"aperture/internal/transcribe"
	"aperture/internal/worker"
)

// stageNames lists every runnable stage in pipeline order.
func stageNames() []string {
	return []string{
		"decrypt", "metadata", "quickqc", "split",
		"faceext", "faceqc", "faceload", "transcribe", "report",
	}
}

func buildStageHandler(name string, cfg *config.Config, st *store.Store, configPath string, logger *slog.Logger) (stage.Handler, error) {
	gates := gate.NewController(st, logger)
	switch name {
	case "decrypt":
		return decrypt.NewDecryptor(cfg, st, gates, configPath, logger), nil
	case "metadata":
		return metadata.NewProber(cfg, st, logger), nil
	case "quickqc":
		return quickqc.NewChecker(cfg, st, logger), nil
	case "split":
		return split.NewSplitter(cfg, st, logger), nil
	case "faceext":
		return faceext.NewExtractor(cfg, st, gates, logger), nil
	case "faceqc":
		return faceqc.NewQC(cfg, st, logger), nil
	case "faceload":
		return faceload.NewLoader(cfg, st, logger), nil
	case "transcribe":
		return transcribe.NewTranscriber(cfg, st, logger), nil
	case "report":
		return report.NewReporter(cfg, st, logger), nil
	default:
		return nil, fmt.Errorf("unknown stage %q (choose one of: %s)", name, strings.Join(stageNames(), ", "))
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "run <stage>",
		Short: "Run one pipeline stage worker",
		Long: `Run one stage worker: claim eligible items, process them, and snooze when
the queue drains. With a snooze interval of zero (or --once) the worker exits
cleanly instead, so schedulers can run stages in batch.

During the snooze a single interrupt resumes polling; a second interrupt
within the grace window stops the worker.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: stageNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			logging.CleanupOldLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays)
			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			handler, err := buildStageHandler(args[0], cfg, st, ctx.resolvedConfigPath(), logger)
			if err != nil {
				return err
			}

			interrupts := make(chan os.Signal, 2)
			signal.Notify(interrupts, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(interrupts)

			w, err := worker.New(worker.Options{
				Handler:    handler,
				Config:     cfg,
				ConfigPath: ctx.resolvedConfigPath(),
				Logger:     logger,
				Interrupts: interrupts,
				Once:       once,
				Notifier:   notifications.New(cfg),
			})
			if err != nil {
				return err
			}
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Drain the queue once and exit instead of snoozing")
	return cmd
}
