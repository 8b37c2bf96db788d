package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show persisted enrichment counts by sector",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		stats, err := st.SectorStats(ctx, cfg.TenantID)
		if err != nil {
			return eris.Wrap(err, "sector stats")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SECTOR\tCOUNT\tAVG CONFIDENCE")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%.2f\n", s.Sector, s.Count, s.AvgConfidence)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
