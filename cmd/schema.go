package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "CRM schema utilities",
}

var schemaValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the CRM database schema against the pipeline contract",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := initPipelineWarmup(cmd, true, false)
		if err != nil {
			return err
		}
		defer p.Close() //nolint:errcheck

		validation, err := p.ValidateSchema(cmd.Context())
		if err != nil {
			return exitWith(exitPartialFailure, err)
		}

		fmt.Println(validation.String())
		if !validation.Valid() {
			return exitWith(exitSchemaInvalid, nil)
		}
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaValidateCmd)
	rootCmd.AddCommand(schemaCmd)
}
