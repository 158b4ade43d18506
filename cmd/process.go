package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/presson-ventures/discovery-cli/internal/crm"
	"github.com/presson-ventures/discovery-cli/internal/model"
	"github.com/presson-ventures/discovery-cli/internal/pusher"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Push pending signals to the CRM",
	Long: `Group pending signals by canonical key, score each prospect through the
verification gate, and push qualified prospects to the Notion pipeline.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := initPipeline(cmd, true)
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		result, err := p.Process(cmd.Context(), pusher.Options{Limit: limit, DryRun: dryRun})
		if err != nil {
			if eris.Is(err, crm.ErrSchemaInvalid) {
				fmt.Println(err.Error())
				return exitWith(exitSchemaInvalid, nil)
			}
			return exitWith(exitStoreError, err)
		}

		printBatchResult(result)

		if len(result.ErrorMessages) > 0 {
			return exitWith(exitPartialFailure, nil)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().Int("limit", 0, "cap the number of pending signals loaded")
	processCmd.Flags().Bool("dry-run", false, "evaluate and report without pushing")
	rootCmd.AddCommand(processCmd)
}

func printBatchResult(r *model.BatchResult) {
	fmt.Printf("signals=%d entities=%d auto_push=%d needs_review=%d held=%d rejected=%d\n",
		r.SignalsRetrieved, r.EntitiesEvaluated, r.AutoPush, r.NeedsReview, r.Held, r.Rejected)
	fmt.Printf("created=%d updated=%d skipped=%d duration=%s dry_run=%v\n",
		r.ProspectsCreated, r.ProspectsUpdated, r.ProspectsSkipped, r.Duration().Round(time.Millisecond), r.DryRun)
	for _, e := range r.ErrorMessages {
		fmt.Printf("    %s\n", e)
	}
	if r.Cancelled {
		fmt.Println("    batch cancelled before completion")
	}
}
