package model

import "time"

// CollectorStatus is the outcome class of a collector run.
type CollectorStatus string

const (
	CollectorSuccess        CollectorStatus = "success"
	CollectorPartialSuccess CollectorStatus = "partial_success"
	CollectorDryRun         CollectorStatus = "dry_run"
	CollectorError          CollectorStatus = "error"
	CollectorNotFound       CollectorStatus = "not_found"
)

// CollectorResult is the accounting record for one collector run.
// SignalsFound >= SignalsNew + SignalsSuppressed always holds. For a run
// that handles its whole batch the difference equals len(Errors); an open
// or collect failure records its error with SignalsFound at zero, and a
// cancelled run leaves the signals it did not reach uncounted.
type CollectorResult struct {
	Collector         string          `json:"collector"`
	Status            CollectorStatus `json:"status"`
	SignalsFound      int             `json:"signals_found"`
	SignalsNew        int             `json:"signals_new"`
	SignalsSuppressed int             `json:"signals_suppressed"`
	DryRun            bool            `json:"dry_run"`
	Cancelled         bool            `json:"cancelled,omitempty"`
	Errors            []string        `json:"errors,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
}

// Failed reports whether the run ended in a terminal error.
func (r CollectorResult) Failed() bool {
	return r.Status == CollectorError
}

// BatchResult summarizes one pusher batch.
type BatchResult struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DryRun      bool       `json:"dry_run"`
	Cancelled   bool       `json:"cancelled,omitempty"`

	SignalsRetrieved  int `json:"signals_retrieved"`
	EntitiesEvaluated int `json:"entities_evaluated"`

	AutoPush    int `json:"auto_push"`
	NeedsReview int `json:"needs_review"`
	Held        int `json:"held"`
	Rejected    int `json:"rejected"`

	ProspectsCreated int `json:"prospects_created"`
	ProspectsUpdated int `json:"prospects_updated"`
	ProspectsSkipped int `json:"prospects_skipped"`

	ErrorMessages []string `json:"error_messages,omitempty"`
}

// Duration returns the elapsed batch time, zero if still running.
func (b BatchResult) Duration() time.Duration {
	if b.CompletedAt == nil {
		return 0
	}
	return b.CompletedAt.Sub(b.StartedAt)
}

// SyncStats summarizes one suppression-sync run.
type SyncStats struct {
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DryRun      bool       `json:"dry_run"`

	PagesFetched     int `json:"pages_fetched"`
	EntriesProcessed int `json:"entries_processed"`
	WithStrongKey    int `json:"with_strong_key"`
	WithWeakKey      int `json:"with_weak_key"`
	WithoutKey       int `json:"without_key"`
	EntriesSynced    int `json:"entries_synced"`
	ExpiredCleaned   int `json:"expired_cleaned"`

	Errors []string `json:"errors,omitempty"`
}

// StoreStats is the aggregate view returned by Store.Stats.
type StoreStats struct {
	TotalSignals            int                      `json:"total_signals"`
	SignalsByType           map[SignalType]int       `json:"signals_by_type"`
	ProcessingByStatus      map[ProcessingStatus]int `json:"processing_by_status"`
	ActiveSuppressionCount  int                      `json:"active_suppression_entries"`
	DatabasePath            string                   `json:"database_path"`
	SchemaVersion           int                      `json:"schema_version"`
	PipelineRunsRecorded    int                      `json:"pipeline_runs_recorded"`
	OldestPendingDetectedAt *time.Time               `json:"oldest_pending_detected_at,omitempty"`
}

// PipelineRun records the metrics of one orchestrator run.
type PipelineRun struct {
	RunID       string     `json:"run_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CollectorsRun       int `json:"collectors_run"`
	CollectorsSucceeded int `json:"collectors_succeeded"`
	CollectorsFailed    int `json:"collectors_failed"`
	SignalsCollected    int `json:"signals_collected"`
	SignalsStored       int `json:"signals_stored"`
	SignalsDeduplicated int `json:"signals_deduplicated"`

	SignalsProcessed  int `json:"signals_processed"`
	SignalsAutoPush   int `json:"signals_auto_push"`
	SignalsHeld       int `json:"signals_held"`
	SignalsRejected   int `json:"signals_rejected"`
	SignalsNeedReview int `json:"signals_needs_review"`

	ProspectsCreated int `json:"prospects_created"`
	ProspectsUpdated int `json:"prospects_updated"`
	ProspectsSkipped int `json:"prospects_skipped"`

	Errors []string `json:"errors,omitempty"`
}
