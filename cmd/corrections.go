package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
)

var (
	correctionsOriginalFile  string
	correctionsCorrectedFile string

	suggestName     string
	suggestType     string
	suggestVendor   string
	suggestCategory string
)

var correctionsCmd = &cobra.Command{
	Use:   "corrections",
	Short: "Record corrections and query learned suggestions",
}

var correctionsRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a user correction of an enriched item",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		original, err := readItemFile(correctionsOriginalFile)
		if err != nil {
			return err
		}
		corrected, err := readItemFile(correctionsCorrectedFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		rec, err := initLearner(st).RecordCorrection(ctx, cfg.TenantID, original, corrected)
		if err != nil {
			return eris.Wrap(err, "record correction")
		}

		zap.L().Info("correction recorded",
			zap.String("item", corrected.Name),
			zap.Int("field_corrections", len(rec.FieldCorrections)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

var correctionsSuggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show learned suggestions for an item",
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

		item := model.ExtractedItem{
			Name:     suggestName,
			Type:     model.ItemType(suggestType),
			Vendor:   suggestVendor,
			Category: suggestCategory,
		}
		suggestions, err := initLearner(st).Suggest(ctx, cfg.TenantID, item)
		if err != nil {
			return eris.Wrap(err, "suggest")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(suggestions)
	},
}

func readItemFile(path string) (model.ExtractedItem, error) {
	var item model.ExtractedItem
	data, err := os.ReadFile(path)
	if err != nil {
		return item, eris.Wrapf(err, "read item file %s", path)
	}
	if err := json.Unmarshal(data, &item); err != nil {
		return item, eris.Wrapf(err, "parse item file %s", path)
	}
	return item, nil
}

func init() {
	correctionsRecordCmd.Flags().StringVar(&correctionsOriginalFile, "original", "", "JSON file with the original item (required)")
	correctionsRecordCmd.Flags().StringVar(&correctionsCorrectedFile, "corrected", "", "JSON file with the corrected item (required)")
	_ = correctionsRecordCmd.MarkFlagRequired("original")
	_ = correctionsRecordCmd.MarkFlagRequired("corrected")

	correctionsSuggestCmd.Flags().StringVar(&suggestName, "name", "", "item name (required)")
	correctionsSuggestCmd.Flags().StringVar(&suggestType, "type", "product", "item type: product or service")
	correctionsSuggestCmd.Flags().StringVar(&suggestVendor, "vendor", "", "current vendor value")
	correctionsSuggestCmd.Flags().StringVar(&suggestCategory, "category", "", "current category value")
	_ = correctionsSuggestCmd.MarkFlagRequired("name")

	correctionsCmd.AddCommand(correctionsRecordCmd)
	correctionsCmd.AddCommand(correctionsSuggestCmd)
	rootCmd.AddCommand(correctionsCmd)
}
