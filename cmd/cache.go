package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the persisted source-result cache",
}

var cachePruneCmd = &cobra.Command{
	Use:     "prune",
	Aliases: []string{"clear"},
	Short:   "Delete expired cache entries",
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

		deleted, err := st.DeleteExpiredCacheEntries(ctx)
		if err != nil {
			return eris.Wrap(err, "prune cache")
		}
		zap.L().Info("cache pruned", zap.Int("deleted", deleted))
		fmt.Printf("deleted %d expired entries\n", deleted)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show persisted cache entry counts",
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

		stats, err := st.CacheStats(ctx)
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}
		fmt.Printf("entries: %d\nexpired: %d\n", stats.Entries, stats.Expired)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	rootCmd.AddCommand(cacheCmd)
}
