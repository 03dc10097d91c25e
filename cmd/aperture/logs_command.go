package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"aperture/internal/logging"
	"aperture/internal/logs"
)

// followWait bounds each blocking poll so cancellation is noticed promptly.
const followWait = time.Second

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the shared log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)

			runCtx := cmd.Context()
			if follow {
				var stop context.CancelFunc
				runCtx, stop = signal.NotifyContext(runCtx, os.Interrupt, syscall.SIGTERM)
				defer stop()
			}
			return streamLogs(runCtx, cmd.OutOrStdout(), path, lines, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing as new entries are appended")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Trailing lines to print (0 for all)")
	return cmd
}

func streamLogs(ctx context.Context, out io.Writer, path string, lines int, follow bool) error {
	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: lines})
	if err != nil {
		return err
	}
	printed := 0
	for _, line := range result.Lines {
		fmt.Fprintln(out, line)
		printed++
	}
	if !follow {
		if printed == 0 {
			fmt.Fprintln(out, "No log entries available")
		}
		return nil
	}

	offset := result.Offset
	for {
		if ctx.Err() != nil {
			return nil
		}
		next, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: followWait})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, line := range next.Lines {
			fmt.Fprintln(out, line)
		}
		offset = next.Offset
	}
}
