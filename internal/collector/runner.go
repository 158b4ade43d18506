package collector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/presson-ventures/discovery-cli/internal/model"
	"github.com/presson-ventures/discovery-cli/internal/store"
)

// Runner wraps a concrete collector with the framework behavior: open/close
// lifecycle, suppression checks, dedup against the store, per-signal error
// isolation, and accurate accounting.
type Runner struct {
	store store.Store
}

// NewRunner creates a collector runner backed by the given store.
func NewRunner(st store.Store) *Runner {
	return &Runner{store: st}
}

// Run executes one collector end to end and returns its accounting record.
// One bad signal never aborts the batch; the run degrades to
// PartialSuccess with the error recorded. Cancellation mid-run returns the
// counters accumulated so far with Cancelled set.
func (r *Runner) Run(ctx context.Context, c Collector, opts Options) model.CollectorResult {
	log := zap.L().With(zap.String("collector", c.Name()))
	result := model.CollectorResult{
		Collector: c.Name(),
		DryRun:    opts.DryRun,
		Timestamp: time.Now().UTC(),
	}

	log.Info("starting collector run",
		zap.Duration("lookback", opts.Lookback),
		zap.Bool("dry_run", opts.DryRun),
	)

	if err := c.Open(ctx); err != nil {
		result.Status = model.CollectorError
		result.Errors = append(result.Errors, fmt.Sprintf("open: %v", err))
		return result
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("collector close failed", zap.Error(err))
		}
	}()

	signals, err := c.Collect(ctx, opts)
	if err != nil {
		if ctx.Err() != nil {
			result.Status = model.CollectorPartialSuccess
			result.Cancelled = true
			result.Errors = append(result.Errors, fmt.Sprintf("collect: %v", err))
			return result
		}
		result.Status = model.CollectorError
		result.Errors = append(result.Errors, fmt.Sprintf("collect: %v", err))
		return result
	}

	result.SignalsFound = len(signals)

	// Keys already handled in this run; a collector that emits the same
	// company twice counts it once.
	seen := make(map[string]bool)

	for _, sig := range signals {
		if ctx.Err() != nil {
			result.Status = model.CollectorPartialSuccess
			result.Cancelled = true
			log.Warn("collector run cancelled mid-batch",
				zap.Int("persisted", result.SignalsNew))
			return result
		}

		if err := r.handleSignal(ctx, sig, opts, seen, &result); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("signal %s/%s: %v", sig.CanonicalKey, sig.SignalType, err))
		}
	}

	switch {
	case opts.DryRun:
		result.Status = model.CollectorDryRun
	case len(result.Errors) > 0:
		result.Status = model.CollectorPartialSuccess
	default:
		result.Status = model.CollectorSuccess
	}

	log.Info("collector run complete",
		zap.String("status", string(result.Status)),
		zap.Int("found", result.SignalsFound),
		zap.Int("new", result.SignalsNew),
		zap.Int("suppressed", result.SignalsSuppressed),
		zap.Int("errors", len(result.Errors)),
	)
	return result
}

func (r *Runner) handleSignal(ctx context.Context, sig model.Signal, opts Options, seen map[string]bool, result *model.CollectorResult) error {
	if sig.CanonicalKey == "" {
		return fmt.Errorf("missing canonical key")
	}

	if seen[sig.CanonicalKey] {
		result.SignalsSuppressed++
		return nil
	}
	seen[sig.CanonicalKey] = true

	// Already in the CRM?
	entry, err := r.store.CheckSuppression(ctx, sig.CanonicalKey)
	if err != nil {
		return err
	}
	if entry != nil {
		zap.L().Debug("signal suppressed",
			zap.String("canonical_key", sig.CanonicalKey),
			zap.String("crm_page_id", entry.CRMPageID),
		)
		result.SignalsSuppressed++
		return nil
	}

	// Already stored from a previous run?
	dup, err := r.store.IsDuplicate(ctx, sig.CanonicalKey)
	if err != nil {
		return err
	}
	if dup {
		result.SignalsSuppressed++
		return nil
	}

	if opts.DryRun {
		result.SignalsNew++
		return nil
	}

	_, isNew, err := r.store.SaveSignal(ctx, sig)
	if err != nil {
		return err
	}
	if isNew {
		result.SignalsNew++
	} else {
		// Same source event raced in since the dedup check.
		result.SignalsSuppressed++
	}
	return nil
}
