package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check store, source, and CRM schema health",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := initPipelineWarmup(cmd, false, false)
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		report := p.Health(cmd.Context())

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return exitWith(exitPartialFailure, err)
			}
		} else {
			fmt.Printf("store:  %s\n", report.Store)
			names := make([]string, 0, len(report.Sources))
			for name := range report.Sources {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("source: %-18s %s\n", name, report.Sources[name])
			}
			fmt.Printf("schema: %s\n", report.Schema)
		}

		if !report.Healthy() {
			return exitWith(exitPartialFailure, nil)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().Bool("json", false, "emit the report as JSON")
	rootCmd.AddCommand(healthCmd)
}
