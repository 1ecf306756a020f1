package main

import (
	"io"

	"github.com/spf13/cobra"
)

type app struct {
	errOut     io.Writer
	configPath string
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{errOut: errOut}
	cmd := &cobra.Command{
		Use:           "fincorr",
		Short:         "Financial anomaly correlation and SLA tracking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to configuration file (defaults to $FINCORR_CONFIG)")

	cmd.AddCommand(
		newServeCmd(a),
		newCorrelateCmd(a),
		newSLACmd(a),
	)
	return cmd
}
