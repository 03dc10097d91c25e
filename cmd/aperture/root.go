package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "aperture",
		Short:         "Interview media pipeline workers and operator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			return confirmDefaultConfig(cmd, ctx, strings.TrimSpace(configFlag))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newIngestCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newGateCommand(ctx))
	rootCmd.AddCommand(newWipeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))

	return rootCmd
}

// confirmDefaultConfig asks before proceeding against an implicitly resolved
// config file, so an operator who forgot --config notices which environment
// they are about to touch. Scripted invocations (no TTY) proceed silently.
func confirmDefaultConfig(cmd *cobra.Command, ctx *commandContext, configFlag string) error {
	if configFlag != "" || !ctx.configExists {
		return nil
	}
	in := cmd.InOrStdin()
	if !isTerminalReader(in) {
		return nil
	}
	ok, err := confirm(cmd.OutOrStdout(), in, fmt.Sprintf("Using default config file %s. Proceed?", ctx.configPath))
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("aborted: pass --config to select a configuration file")
	}
	return nil
}
