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
	enrichName        string
	enrichType        string
	enrichDescription string
	enrichVendor      string
	enrichCategory    string
	enrichIndustry    string
	enrichSkipCache   bool
	enrichMinConf     float64
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich a single extracted item",
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

		orchestrator, err := initOrchestrator(ctx, st)
		if err != nil {
			return err
		}

		item := model.ExtractedItem{
			Name:        enrichName,
			Type:        model.ItemType(enrichType),
			Description: enrichDescription,
			Vendor:      enrichVendor,
			Category:    enrichCategory,
		}

		result, err := orchestrator.Enrich(ctx, item, enrichOptions())
		if err != nil {
			return eris.Wrap(err, "enrich item")
		}

		zap.L().Info("enrichment complete",
			zap.String("item", item.Name),
			zap.String("sector", string(result.Sector.Sector)),
			zap.Float64("confidence", result.ConfidenceOverall),
			zap.Strings("sources_matched", result.Provenance.SourcesMatched),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func enrichOptions() enrich.Options {
	return enrich.Options{
		TenantID:        cfg.TenantID,
		IndustryContext: enrichIndustry,
		SkipCache:       enrichSkipCache,
		MinConfidence:   enrichMinConf,
	}
}

func init() {
	enrichCmd.Flags().StringVar(&enrichName, "name", "", "item name (required)")
	enrichCmd.Flags().StringVar(&enrichType, "type", "product", "item type: product or service")
	enrichCmd.Flags().StringVar(&enrichDescription, "description", "", "item description")
	enrichCmd.Flags().StringVar(&enrichVendor, "vendor", "", "known vendor")
	enrichCmd.Flags().StringVar(&enrichCategory, "category", "", "known category")
	enrichCmd.Flags().StringVar(&enrichIndustry, "industry", "", "industry context hint for sector detection")
	enrichCmd.Flags().BoolVar(&enrichSkipCache, "skip-cache", false, "bypass cached source results")
	enrichCmd.Flags().Float64Var(&enrichMinConf, "min-confidence", 0, "suppress field writes from source results below this confidence")
	_ = enrichCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(enrichCmd)
}
