package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/presson-ventures/discovery-cli/internal/pipeline"
	"github.com/presson-ventures/discovery-cli/internal/pusher"
)

var fullCmd = &cobra.Command{
	Use:   "full",
	Short: "Run sync, collect, and process in sequence",
	Long: `Run the complete pipeline: suppression sync, then all enabled collectors,
then one pusher batch. With --cron the sequence repeats on a schedule until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Full syncs as its own first phase; skip the warmup sync.
		p, err := initPipelineWarmup(cmd, true, false)
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		_, collectOpts := parseCollectFlags(cmd)
		limit, _ := cmd.Flags().GetInt("limit")
		processOpts := pusher.Options{Limit: limit, DryRun: collectOpts.DryRun}

		runOnce := func() (*pipeline.FullResult, error) {
			return p.Full(cmd.Context(), collectOpts, processOpts)
		}

		cronSpec, _ := cmd.Flags().GetString("cron")
		if cronSpec != "" {
			return runScheduled(cmd, cronSpec, runOnce)
		}

		result, err := runOnce()
		if err != nil {
			return exitWith(exitStoreError, err)
		}
		printFullResult(result)

		if len(result.Errors) > 0 {
			return exitWith(exitPartialFailure, nil)
		}
		return nil
	},
}

func init() {
	fullCmd.Flags().String("collectors", "", "comma-separated collector names (default: all enabled)")
	fullCmd.Flags().Bool("dry-run", false, "run all phases without writes")
	fullCmd.Flags().Int("lookback-days", 0, "override the collection window in days")
	fullCmd.Flags().Int("limit", 0, "cap the number of pending signals processed")
	fullCmd.Flags().String("cron", "", `repeat on a cron schedule (e.g. "0 */6 * * *")`)
	rootCmd.AddCommand(fullCmd)
}

// runScheduled repeats the full run on a cron schedule until the context
// is cancelled. Overlapping runs are skipped.
func runScheduled(cmd *cobra.Command, spec string, runOnce func() (*pipeline.FullResult, error)) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		result, err := runOnce()
		if err != nil {
			zap.L().Error("scheduled run failed", zap.Error(err))
			return
		}
		printFullResult(result)
	})
	if err != nil {
		return exitWith(exitConfigError, err)
	}

	zap.L().Info("scheduler started", zap.String("cron", spec))
	c.Start()
	<-cmd.Context().Done()
	<-c.Stop().Done()
	return nil
}

func printFullResult(r *pipeline.FullResult) {
	fmt.Printf("run %s\n", r.RunID)
	if r.Sync != nil {
		fmt.Println("-- sync --")
		printSyncStats(r.Sync)
	}
	if len(r.Collectors) > 0 {
		fmt.Println("-- collect --")
		printCollectorResults(r.Collectors)
	}
	if r.Batch != nil {
		fmt.Println("-- process --")
		printBatchResult(r.Batch)
	}
	for _, e := range r.Errors {
		fmt.Printf("phase error: %s\n", e)
	}
}
