package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/presson-ventures/discovery-cli/internal/collector"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run signal collectors",
	Long: `Run the named collectors (or all enabled ones) against their sources.

Each collector fetches its lookback window, derives canonical keys, skips
suppressed and duplicate prospects, and stores the rest as pending signals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := initPipeline(cmd, false)
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		names, opts := parseCollectFlags(cmd)

		results, err := p.Collect(cmd.Context(), names, opts)
		if err != nil {
			return exitWith(exitConfigError, err)
		}

		printCollectorResults(results)

		for _, r := range results {
			if r.Failed() || len(r.Errors) > 0 {
				return exitWith(exitPartialFailure, nil)
			}
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().String("collectors", "", "comma-separated collector names (default: all enabled)")
	collectCmd.Flags().Bool("dry-run", false, "check suppression and dedup but write nothing")
	collectCmd.Flags().Int("lookback-days", 0, "override the collection window in days")
	rootCmd.AddCommand(collectCmd)
}

func parseCollectFlags(cmd *cobra.Command) ([]string, collector.Options) {
	collectorsStr, _ := cmd.Flags().GetString("collectors")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	lookbackDays, _ := cmd.Flags().GetInt("lookback-days")

	var names []string
	if collectorsStr != "" {
		for _, name := range strings.Split(collectorsStr, ",") {
			names = append(names, strings.TrimSpace(name))
		}
	}

	opts := collector.Options{DryRun: dryRun}
	if lookbackDays > 0 {
		opts.Lookback = time.Duration(lookbackDays) * 24 * time.Hour
	}
	return names, opts
}

func printCollectorResults(results []model.CollectorResult) {
	for _, r := range results {
		fmt.Printf("%-18s %-16s found=%-4d new=%-4d suppressed=%-4d errors=%d\n",
			r.Collector, r.Status, r.SignalsFound, r.SignalsNew, r.SignalsSuppressed, len(r.Errors))
		for _, e := range r.Errors {
			fmt.Printf("    %s\n", e)
		}
	}
}
