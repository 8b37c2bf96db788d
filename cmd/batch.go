package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/enrich"
	"github.com/sells-group/enrich-cli/internal/model"
)

var (
	batchFile        string
	batchIndustry    string
	batchSkipCache   bool
	batchConcurrency int
	batchMinConf     float64
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Enrich a JSON file of extracted items",
	Long:  "Reads a JSON array of extracted items, enriches them concurrently, clusters duplicates, and prints items plus run statistics.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(batchFile)
		if err != nil {
			return eris.Wrap(err, "read batch file")
		}
		var items []model.ExtractedItem
		if err := json.Unmarshal(data, &items); err != nil {
			return eris.Wrap(err, "parse batch file")
		}
		if len(items) == 0 {
			return eris.New("batch file contains no items")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		orchestrator, err := initOrchestrator(ctx, st)
		if err != nil {
			return err
		}

		result, err := orchestrator.EnrichBatch(ctx, items, enrich.Options{
			TenantID:        cfg.TenantID,
			IndustryContext: batchIndustry,
			SkipCache:       batchSkipCache,
			Concurrency:     batchConcurrency,
		})
		if err != nil {
			return eris.Wrap(err, "enrich batch")
		}

		duplicateGroups := 0
		for _, c := range result.Clusters {
			if !c.Singleton() {
				duplicateGroups++
			}
		}
		zap.L().Info("batch complete",
			zap.Int("total", result.Stats.Total),
			zap.Int("enriched", result.Stats.Enriched),
			zap.Float64("avg_confidence", result.Stats.AvgConfidence),
			zap.Int("duplicate_groups", duplicateGroups),
			zap.Int64("processing_ms", result.Stats.ProcessingMS),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "path to JSON array of extracted items (required)")
	batchCmd.Flags().StringVar(&batchIndustry, "industry", "", "industry context hint for sector detection")
	batchCmd.Flags().BoolVar(&batchSkipCache, "skip-cache", false, "bypass cached source results")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "item-level parallelism (0 = config default)")
	batchCmd.Flags().Float64Var(&batchMinConf, "min-confidence", 0, "suppress field writes from source results below this confidence")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
