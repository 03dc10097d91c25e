package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aperture/internal/config"
	"aperture/internal/gate"
	"aperture/internal/store"
)

func newGateCommand(ctx *commandContext) *cobra.Command {
	gateCmd := &cobra.Command{
		Use:   "gate",
		Short: "Operate demand gates",
		Long: `Gates throttle supply stages: downstream workers request a gate when they
run out of work, and the gated stage drains its quota while the gate is
enabled. These subcommands give operators the same three verbs the workers
use.`,
	}

	gateCmd.AddCommand(newGateRequestCommand(ctx))
	gateCmd.AddCommand(newGateCheckCommand(ctx))
	gateCmd.AddCommand(newGateCompleteCommand(ctx))
	return gateCmd
}

func newGateRequestCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "request <name>",
		Short: "Enable a gate so the gated stage starts draining",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if err := gate.NewController(st, nil).Request(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Gate %s enabled\n", args[0])
				return nil
			})
		},
	}
}

func newGateCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <name>",
		Short: "Report whether a gate is enabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				enabled, err := gate.NewController(st, nil).Check(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				state := gate.Disabled
				if enabled {
					state = gate.Enabled
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Gate %s is %s\n", args[0], state)
				return nil
			})
		},
	}
}

func newGateCompleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <name>",
		Short: "Disable a gate after the drain finished",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if err := gate.NewController(st, nil).Complete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Gate %s disabled\n", args[0])
				return nil
			})
		},
	}
}
