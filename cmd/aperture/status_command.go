package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"aperture/internal/config"
	"aperture/internal/fileutil"
	"aperture/internal/gate"
	"aperture/internal/store"
)

var titleCaser = cases.Title(language.English)

// stageLabels overrides the display name where simple title casing reads
// poorly.
var stageLabels = map[string]string{
	"quickqc":  "Quick QC",
	"faceext":  "Face extract",
	"faceqc":   "Face QC",
	"faceload": "Face load",
}

func stageLabel(name string) string {
	if label, ok := stageLabels[name]; ok {
		return label
	}
	return titleCaser.String(name)
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-stage queue depth and gate state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				counts, err := st.PipelineCounts(cmd.Context(), cfg.Studies)
				if err != nil {
					return err
				}
				gateValue, err := st.GateValue(cmd.Context(), gate.Decryption)
				if err != nil {
					return err
				}
				if gateValue == "" {
					// Never-written gates initialize to enabled on first read.
					gateValue = gate.Enabled
				}

				out := cmd.OutOrStdout()
				if plain || !isTerminal(out) {
					for _, count := range counts {
						fmt.Fprintf(out, "%s\t%d\t%d\n", count.Stage, count.Eligible, count.Done)
					}
					fmt.Fprintf(out, "gate:%s\t%s\n", gate.Decryption, gateValue)
					return nil
				}

				rows := make([][]string, 0, len(counts))
				for _, count := range counts {
					rows = append(rows, []string{
						stageLabel(count.Stage),
						strconv.Itoa(count.Eligible),
						strconv.Itoa(count.Done),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Stage", "Eligible", "Done"},
					rows,
					[]text.Align{text.AlignLeft, text.AlignRight, text.AlignRight},
				))
				fmt.Fprintf(out, "Decryption gate: %s\n", gateValue)
				if len(cfg.Studies) > 0 {
					fmt.Fprintf(out, "Studies: %s\n", strings.Join(cfg.Studies, ", "))
				}
				if size, err := fileutil.TreeSize(cfg.Paths.DataRoot); err == nil {
					fmt.Fprintf(out, "Data usage: %s\n", humanize.IBytes(uint64(size)))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Tab-separated output without the table")
	return cmd
}
