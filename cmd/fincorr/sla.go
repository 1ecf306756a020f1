package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ledgerlens/fincorr/internal/sla"
)

func newSLACmd(a *app) *cobra.Command {
	var (
		window int
		slaMS  float64
	)
	cmd := &cobra.Command{
		Use:   "sla <latency-ms>...",
		Short: "Summarise latency samples against an SLA threshold",
		Example: `  fincorr sla 120 480 730
  fincorr sla --window 3 --sla-ms 25 10 20 30 40`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker := sla.NewTracker(window, slaMS)
			for _, arg := range args {
				v, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("latency %q is not a number", arg)
				}
				tracker.Record(v)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tracker.Stats())
		},
	}
	cmd.Flags().IntVar(&window, "window", sla.DefaultWindowSize, "number of most recent samples kept")
	cmd.Flags().Float64Var(&slaMS, "sla-ms", sla.DefaultSLAMS, "latency threshold in milliseconds")
	return cmd
}
