// Package collector defines the collector contract and the framework that
// runs concrete collectors against the signal store: suppression checks,
// dedup, per-signal error isolation, and accounting.
package collector

import (
	"context"
	"time"

	"github.com/presson-ventures/discovery-cli/internal/model"
)

// Options configures one collector run.
type Options struct {
	// Lookback is the window of source history to scan.
	Lookback time.Duration

	// DryRun performs suppression and dedup checks for accurate
	// accounting but writes nothing.
	DryRun bool
}

// Collector is the contract every source implements. Open is called once
// before Collect and Close once after, regardless of outcome.
type Collector interface {
	// Name is the stable source_api identifier (e.g. "sec_edgar").
	Name() string

	// Open prepares the collector (auth checks, warm caches).
	Open(ctx context.Context) error

	// Collect fetches and parses a batch of signals from the source.
	// A signal whose identity can't be derived carries an empty
	// canonical key; the Runner rejects it and counts it under errors.
	Collect(ctx context.Context, opts Options) ([]model.Signal, error)

	// Close releases collector resources.
	Close() error
}

// HealthChecker is implemented by collectors that can ping their source.
type HealthChecker interface {
	// Ping checks the source endpoint is reachable.
	Ping(ctx context.Context) error
}
