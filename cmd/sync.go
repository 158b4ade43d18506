package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/presson-ventures/discovery-cli/internal/model"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the suppression cache from the CRM",
	Long: `Fetch every active CRM record, derive canonical keys, and refresh the
local suppression cache so collectors and the pusher skip known prospects.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Sync IS the warmup; don't run it twice.
		p, err := initPipelineWarmup(cmd, true, false)
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		ttlDays, _ := cmd.Flags().GetInt("ttl-days")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		var ttl time.Duration
		if ttlDays > 0 {
			ttl = time.Duration(ttlDays) * 24 * time.Hour
		}

		stats, err := p.SyncSuppression(cmd.Context(), ttl, dryRun)
		if err != nil {
			return exitWith(exitPartialFailure, err)
		}

		printSyncStats(stats)

		if len(stats.Errors) > 0 {
			return exitWith(exitPartialFailure, nil)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().Int("ttl-days", 0, "override the suppression cache TTL in days")
	syncCmd.Flags().Bool("dry-run", false, "fetch and derive keys without touching the cache")
	rootCmd.AddCommand(syncCmd)
}

func printSyncStats(s *model.SyncStats) {
	fmt.Printf("pages=%d processed=%d strong_keys=%d weak_keys=%d without_key=%d\n",
		s.PagesFetched, s.EntriesProcessed, s.WithStrongKey, s.WithWeakKey, s.WithoutKey)
	fmt.Printf("synced=%d expired_cleaned=%d dry_run=%v\n",
		s.EntriesSynced, s.ExpiredCleaned, s.DryRun)
	for _, e := range s.Errors {
		fmt.Printf("    %s\n", e)
	}
}
