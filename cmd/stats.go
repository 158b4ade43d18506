package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Dump signal store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := initPipelineWarmup(cmd, false, false)
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		stats, err := p.Stats(cmd.Context())
		if err != nil {
			return exitWith(exitStoreError, err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			return exitWith(exitPartialFailure, err)
		}

		runs, err := p.RecentRuns(cmd.Context(), 5)
		if err != nil {
			return exitWith(exitStoreError, err)
		}
		if len(runs) > 0 {
			fmt.Println("recent runs:")
			for _, r := range runs {
				fmt.Printf("  %s  collected=%d stored=%d pushed=%d errors=%d\n",
					r.StartedAt.Format("2006-01-02 15:04"),
					r.SignalsCollected, r.SignalsStored,
					r.ProspectsCreated+r.ProspectsUpdated, len(r.Errors))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
