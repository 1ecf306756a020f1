package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerlens/fincorr/internal/engine"
	"github.com/ledgerlens/fincorr/internal/ingest"
	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/patterns"
)

func newCorrelateCmd(a *app) *cobra.Command {
	var (
		file     string
		window   time.Duration
		sortRows bool
		hotspots int
	)
	cmd := &cobra.Command{
		Use:   "correlate --file anomalies.csv",
		Short: "Group flagged anomalies from a CSV file",
		Long: `Read anomalies (id,customer_id,type,timestamp,amount) and print the
correlated alert groups as JSON.

Rows must already be ordered by customer_id, type and timestamp unless
--sort is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open anomalies: %w", err)
			}
			defer f.Close()

			records, err := ingest.ReadAnomalies(f)
			if err != nil {
				return err
			}
			groups, err := engine.NewCorrelator(
				engine.WithWindow(window),
				engine.WithSortInput(sortRows),
			).Group(records)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if hotspots > 0 {
				return enc.Encode(map[string]any{
					"correlated_alerts": groups,
					"hotspots":          patterns.Hotspots(groups, hotspots),
				})
			}
			return enc.Encode(models.CorrelatedAlerts{Groups: groups})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "anomaly CSV file")
	cmd.Flags().DurationVar(&window, "window", engine.DefaultWindow, "correlation window measured from the first alert of a group")
	cmd.Flags().BoolVar(&sortRows, "sort", false, "sort rows by customer, type and timestamp before grouping")
	cmd.Flags().IntVar(&hotspots, "hotspots", 0, "also print the top N customers by anomaly count")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
