// Package store implements the embedded single-writer signal store: raw
// signals, per-signal processing records, the CRM suppression cache, and
// pipeline run metrics, all in one SQLite file.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/model"
)

// Sentinel errors surfaced by store operations.
var (
	// ErrNotFound is returned on lookup misses.
	ErrNotFound = eris.New("store: not found")

	// ErrInvalidTransition is returned when a processing record is not in
	// a state that permits the requested transition.
	ErrInvalidTransition = eris.New("store: invalid processing transition")
)

// PendingFilter narrows GetPendingSignals.
type PendingFilter struct {
	Limit      int
	SignalType model.SignalType
}

// Store defines the persistence interface for the discovery pipeline.
// Implementations are single-writer: callers may read concurrently, but
// all writes are serialized internally.
type Store interface {
	// Signals
	SaveSignal(ctx context.Context, sig model.Signal) (id int64, isNew bool, err error)
	IsDuplicate(ctx context.Context, canonicalKey string) (bool, error)
	GetSignal(ctx context.Context, id int64) (*model.Signal, error)
	GetPendingSignals(ctx context.Context, filter PendingFilter) ([]model.Signal, error)
	GetSignalsForCompany(ctx context.Context, canonicalKey string) ([]model.Signal, error)

	// Processing state
	MarkPushed(ctx context.Context, signalID int64, crmPageID string, metadata map[string]any) error
	MarkRejected(ctx context.Context, signalID int64, reason string, metadata map[string]any) error

	// Suppression cache
	UpdateSuppressionCache(ctx context.Context, entries []model.SuppressionEntry) (int, error)
	CheckSuppression(ctx context.Context, canonicalKey string) (*model.SuppressionEntry, error)
	CleanExpiredCache(ctx context.Context) (int, error)

	// Pipeline metrics
	SavePipelineRun(ctx context.Context, run model.PipelineRun) error
	GetPipelineRuns(ctx context.Context, limit int) ([]model.PipelineRun, error)

	// Introspection
	Stats(ctx context.Context) (*model.StoreStats, error)
	Ping(ctx context.Context) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
