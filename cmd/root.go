package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/presson-ventures/discovery-cli/internal/config"
	"github.com/presson-ventures/discovery-cli/internal/pipeline"
	"github.com/presson-ventures/discovery-cli/internal/store"
	"github.com/presson-ventures/discovery-cli/pkg/notion"
)

// Exit codes per the operational contract.
const (
	exitOK             = 0
	exitPartialFailure = 1
	exitConfigError    = 2
	exitSchemaInvalid  = 3
	exitStoreError     = 4
)

// exitError carries a specific process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "discovery-cli",
	Short: "Automated prospect discovery pipeline",
	Long:  "Collects startup signals from public sources, deduplicates them against a local signal store, scores them through the verification gate, and pushes qualified prospects to the Notion pipeline.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return exitWith(exitConfigError, err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return exitWith(exitConfigError, err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// buildPipeline opens the store and wires the pipeline. CRM-facing
// commands pass needNotion to fail fast on missing credentials.
func buildPipeline(needNotion bool) (*pipeline.Pipeline, error) {
	if err := cfg.Validate(needNotion); err != nil {
		return nil, exitWith(exitConfigError, err)
	}

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, exitWith(exitStoreError, err)
	}

	var notionClient notion.Client
	if cfg.Notion.APIKey != "" && cfg.Notion.DatabaseID != "" {
		notionClient = notion.NewClient(cfg.Notion.APIKey)
	}

	return pipeline.New(cfg, st, notionClient), nil
}

func initPipeline(cmd *cobra.Command, needNotion bool) (*pipeline.Pipeline, error) {
	return initPipelineWarmup(cmd, needNotion, true)
}

func initPipelineWarmup(cmd *cobra.Command, needNotion, warmup bool) (*pipeline.Pipeline, error) {
	p, err := buildPipeline(needNotion)
	if err != nil {
		return nil, err
	}
	if err := p.Initialize(cmd.Context(), warmup); err != nil {
		_ = p.Close()
		return nil, exitWith(exitStoreError, err)
	}
	return p, nil
}

func main() {
	// SIGINT/SIGTERM cancel the command context; in-flight HTTP requests
	// are abandoned and open transactions roll back.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		os.Exit(exitOK)
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "error:", ee.err)
		}
		os.Exit(ee.code)
	}
	os.Exit(exitPartialFailure)
}
