package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"aperture/internal/notifications"
	"aperture/internal/preflight"
	"aperture/internal/store"
)

var (
	passLabel = color.New(color.FgGreen).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment before running workers",
		Long: `Check everything the workers assume at startup: directory access on the
data root, log and lock directories, free space, store reachability, and the
external tools each stage invokes. Exits 1 when any check fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			runCtx := cmd.Context()

			st, openErr := store.Open(cfg)
			if openErr != nil {
				fmt.Fprintf(out, "store open failed: %v\n", openErr)
			} else {
				defer st.Close()
			}

			failures := 0

			fmt.Fprintln(out, "Environment:")
			for _, result := range preflight.RunAll(runCtx, cfg, st) {
				if !result.Passed {
					failures++
				}
				fmt.Fprintln(out, checkLine(result.Name, result.Passed, result.Detail))
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "External tools:")
			for _, status := range preflight.CheckSystemDeps(cfg) {
				if !status.Available {
					failures++
				}
				fmt.Fprintln(out, checkLine(status.Name, status.Available, status.Detail))
			}

			if topic := strings.TrimSpace(cfg.Notify.Topic); topic != "" {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Notifications:")
				detail := topic
				passed := true
				if err := notifications.New(cfg).Test(runCtx); err != nil {
					passed = false
					detail = err.Error()
					failures++
				}
				fmt.Fprintln(out, checkLine("ntfy delivery", passed, detail))
			}

			if failures > 0 {
				return fmt.Errorf("doctor found %d failing checks", failures)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func checkLine(name string, passed bool, detail string) string {
	label := passLabel("PASS")
	if !passed {
		label = failLabel("FAIL")
	}
	line := fmt.Sprintf("  %s  %-22s %s", label, name, detail)
	return strings.TrimRight(line, " ")
}
