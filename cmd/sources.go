package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured enrichment sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := initRegistry(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPRIORITY\tENABLED\tSECTORS")
		for _, s := range registry.Statuses() {
			sectors := "universal"
			if len(s.Sectors) > 0 {
				names := make([]string, len(s.Sectors))
				for i, sec := range s.Sectors {
					names[i] = string(sec)
				}
				sectors = strings.Join(names, ",")
			}
			fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", s.Name, s.Priority, s.Enabled, sectors)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
