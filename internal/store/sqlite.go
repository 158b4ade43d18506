package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/presson-ventures/discovery-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	path string

	// writeMu serializes write transactions. SQLite permits many readers
	// but only one writer; the mutex keeps concurrent callers from
	// tripping SQLITE_BUSY on long batches.
	writeMu sync.Mutex
}

// migrations are applied forward in version order, each inside one
// transaction, and recorded in schema_migrations.
var migrations = map[int]string{
	1: `
CREATE TABLE IF NOT EXISTS signals (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	signal_type          TEXT NOT NULL,
	source_api           TEXT NOT NULL,
	canonical_key        TEXT NOT NULL,
	company_name         TEXT,
	confidence           REAL NOT NULL,
	raw_data             TEXT NOT NULL,
	warning_flags        TEXT,
	source_url           TEXT,
	source_response_hash TEXT,
	detected_at          DATETIME NOT NULL,
	created_at           DATETIME NOT NULL,

	UNIQUE(canonical_key, signal_type, source_api, detected_at)
);

CREATE INDEX IF NOT EXISTS idx_signals_canonical_key ON signals(canonical_key);
CREATE INDEX IF NOT EXISTS idx_signals_signal_type ON signals(signal_type);
CREATE INDEX IF NOT EXISTS idx_signals_detected_at ON signals(detected_at);

CREATE TABLE IF NOT EXISTS signal_processing (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	signal_id     INTEGER NOT NULL UNIQUE REFERENCES signals(id) ON DELETE CASCADE,
	status        TEXT NOT NULL DEFAULT 'pending',
	crm_page_id   TEXT,
	processed_at  DATETIME,
	error_message TEXT,
	metadata      TEXT,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processing_signal_id ON signal_processing(signal_id);
CREATE INDEX IF NOT EXISTS idx_processing_status ON signal_processing(status);

CREATE TABLE IF NOT EXISTS suppression_cache (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_key TEXT NOT NULL UNIQUE,
	crm_page_id   TEXT NOT NULL,
	status        TEXT NOT NULL,
	company_name  TEXT,
	cached_at     DATETIME NOT NULL,
	expires_at    DATETIME NOT NULL,
	metadata      TEXT
);

CREATE INDEX IF NOT EXISTS idx_suppression_expires_at ON suppression_cache(expires_at);
`,
	2: `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id               TEXT NOT NULL UNIQUE,
	started_at           DATETIME NOT NULL,
	completed_at         DATETIME,
	collectors_run       INTEGER NOT NULL DEFAULT 0,
	collectors_succeeded INTEGER NOT NULL DEFAULT 0,
	collectors_failed    INTEGER NOT NULL DEFAULT 0,
	signals_collected    INTEGER NOT NULL DEFAULT 0,
	signals_stored       INTEGER NOT NULL DEFAULT 0,
	signals_deduplicated INTEGER NOT NULL DEFAULT 0,
	signals_processed    INTEGER NOT NULL DEFAULT 0,
	signals_auto_push    INTEGER NOT NULL DEFAULT 0,
	signals_needs_review INTEGER NOT NULL DEFAULT 0,
	signals_held         INTEGER NOT NULL DEFAULT 0,
	signals_rejected     INTEGER NOT NULL DEFAULT 0,
	prospects_created    INTEGER NOT NULL DEFAULT 0,
	prospects_updated    INTEGER NOT NULL DEFAULT 0,
	prospects_skipped    INTEGER NOT NULL DEFAULT 0,
	errors               TEXT,
	created_at           DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`,
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Migrate applies pending schema migrations forward.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at DATETIME NOT NULL,
	description TEXT
)`); err != nil {
		return eris.Wrap(err, "sqlite: create schema_migrations")
	}

	var current sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return eris.Wrap(err, "sqlite: read schema version")
	}

	versions := make([]int, 0, len(migrations))
	for v := range migrations {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	for _, version := range versions {
		if current.Valid && int64(version) <= current.Int64 {
			continue
		}

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migrations[version]); err != nil {
				return eris.Wrapf(err, "sqlite: apply migration v%d", version)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)`,
				version, time.Now().UTC(), "schema version "+strconv.Itoa(version),
			)
			return eris.Wrapf(err, "sqlite: record migration v%d", version)
		})
		if err != nil {
			return err
		}
		zap.L().Info("applied store migration", zap.Int("version", version))
	}

	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies store connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// inTx runs fn inside a write transaction, committing on success and
// rolling back on any error or panic path.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// SaveSignal inserts a signal and its pending processing record in one
// transaction. On a unique-constraint collision the existing row id is
// returned with isNew=false and no error.
func (s *SQLiteStore) SaveSignal(ctx context.Context, sig model.Signal) (int64, bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rawJSON, err := json.Marshal(sig.RawData)
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: marshal raw_data")
	}
	var flagsJSON []byte
	if len(sig.WarningFlags) > 0 {
		if flagsJSON, err = json.Marshal(sig.WarningFlags); err != nil {
			return 0, false, eris.Wrap(err, "sqlite: marshal warning_flags")
		}
	}

	now := time.Now().UTC()
	detectedAt := sig.DetectedAt.UTC()
	if detectedAt.IsZero() {
		detectedAt = now
	}

	var id int64
	isNew := true

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO signals (
				signal_type, source_api, canonical_key, company_name, confidence,
				raw_data, warning_flags, source_url, source_response_hash,
				detected_at, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			string(sig.SignalType), sig.SourceAPI, sig.CanonicalKey,
			nullString(sig.CompanyName), sig.Confidence,
			string(rawJSON), nullBytes(flagsJSON),
			nullString(sig.SourceURL), nullString(sig.SourceResponseHash),
			detectedAt, now,
		)
		if err != nil {
			if !isUniqueViolation(err) {
				return eris.Wrap(err, "sqlite: insert signal")
			}
			// Duplicate: fetch the existing row id instead.
			isNew = false
			return tx.QueryRowContext(ctx,
				`SELECT id FROM signals
				 WHERE canonical_key = ? AND signal_type = ? AND source_api = ? AND detected_at = ?`,
				sig.CanonicalKey, string(sig.SignalType), sig.SourceAPI, detectedAt,
			).Scan(&id)
		}

		if id, err = res.LastInsertId(); err != nil {
			return eris.Wrap(err, "sqlite: signal id")
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO signal_processing (signal_id, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?)`,
			id, string(model.StatusPending), now, now,
		)
		return eris.Wrap(err, "sqlite: insert processing record")
	})
	if err != nil {
		return 0, false, err
	}
	return id, isNew, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicate reports whether any signal exists for the canonical key.
func (s *SQLiteStore) IsDuplicate(ctx context.Context, canonicalKey string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signals WHERE canonical_key = ?`, canonicalKey,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: count signals")
	}
	return n > 0, nil
}

const signalColumns = `
	s.id, s.signal_type, s.source_api, s.canonical_key, s.company_name,
	s.confidence, s.raw_data, s.warning_flags, s.source_url,
	s.source_response_hash, s.detected_at, s.created_at,
	p.id, p.status, p.crm_page_id, p.processed_at, p.error_message,
	p.metadata, p.created_at, p.updated_at`

// GetSignal returns a signal with its processing record, or ErrNotFound.
func (s *SQLiteStore) GetSignal(ctx context.Context, id int64) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+signalColumns+`
		 FROM signals s
		 LEFT JOIN signal_processing p ON p.signal_id = s.id
		 WHERE s.id = ?`, id,
	)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// GetPendingSignals returns pending signals oldest-first.
func (s *SQLiteStore) GetPendingSignals(ctx context.Context, filter PendingFilter) ([]model.Signal, error) {
	query := `SELECT ` + signalColumns + `
		FROM signals s
		INNER JOIN signal_processing p ON p.signal_id = s.id
		WHERE p.status = ?`
	args := []any{string(model.StatusPending)}

	if filter.SignalType != "" {
		query += ` AND s.signal_type = ?`
		args = append(args, string(filter.SignalType))
	}
	query += ` ORDER BY s.detected_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return s.querySignals(ctx, query, args...)
}

// GetSignalsForCompany returns all signals for a canonical key, ordered by
// detected_at ascending.
func (s *SQLiteStore) GetSignalsForCompany(ctx context.Context, canonicalKey string) ([]model.Signal, error) {
	return s.querySignals(ctx,
		`SELECT `+signalColumns+`
		 FROM signals s
		 LEFT JOIN signal_processing p ON p.signal_id = s.id
		 WHERE s.canonical_key = ?
		 ORDER BY s.detected_at ASC`,
		canonicalKey,
	)
}

func (s *SQLiteStore) querySignals(ctx context.Context, query string, args ...any) ([]model.Signal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query signals")
	}
	defer rows.Close()

	var signals []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *sig)
	}
	return signals, eris.Wrap(rows.Err(), "sqlite: iterate signals")
}

// MarkPushed transitions a pending processing record to pushed. Any other
// starting state yields ErrInvalidTransition.
func (s *SQLiteStore) MarkPushed(ctx context.Context, signalID int64, crmPageID string, metadata map[string]any) error {
	return s.markProcessed(ctx, signalID, model.StatusPushed, crmPageID, "", metadata)
}

// MarkRejected transitions a pending processing record to rejected.
func (s *SQLiteStore) MarkRejected(ctx context.Context, signalID int64, reason string, metadata map[string]any) error {
	return s.markProcessed(ctx, signalID, model.StatusRejected, "", reason, metadata)
}

func (s *SQLiteStore) markProcessed(ctx context.Context, signalID int64, status model.ProcessingStatus, crmPageID, errorMsg string, metadata map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var metaJSON []byte
	if metadata != nil {
		var err error
		if metaJSON, err = json.Marshal(metadata); err != nil {
			return eris.Wrap(err, "sqlite: marshal metadata")
		}
	}
	now := time.Now().UTC()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE signal_processing
			 SET status = ?, crm_page_id = ?, processed_at = ?, error_message = ?,
			     metadata = ?, updated_at = ?
			 WHERE signal_id = ? AND status = ?`,
			string(status), nullString(crmPageID), now, nullString(errorMsg),
			nullBytes(metaJSON), now,
			signalID, string(model.StatusPending),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: mark signal %d %s", signalID, status)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			return eris.Wrapf(ErrInvalidTransition, "signal %d is not pending", signalID)
		}
		return nil
	})
}

// UpdateSuppressionCache upserts the batch atomically.
func (s *SQLiteStore) UpdateSuppressionCache(ctx context.Context, entries []model.SuppressionEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	count := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO suppression_cache (
				canonical_key, crm_page_id, status, company_name,
				cached_at, expires_at, metadata
			) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(canonical_key) DO UPDATE SET
				crm_page_id  = excluded.crm_page_id,
				status       = excluded.status,
				company_name = excluded.company_name,
				cached_at    = excluded.cached_at,
				expires_at   = excluded.expires_at,
				metadata     = excluded.metadata`,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare suppression upsert")
		}
		defer stmt.Close()

		for _, e := range entries {
			var metaJSON []byte
			if e.Metadata != nil {
				if metaJSON, err = json.Marshal(e.Metadata); err != nil {
					return eris.Wrap(err, "sqlite: marshal suppression metadata")
				}
			}
			if _, err := stmt.ExecContext(ctx,
				e.CanonicalKey, e.CRMPageID, e.Status, nullString(e.CompanyName),
				e.CachedAt.UTC(), e.ExpiresAt.UTC(), nullBytes(metaJSON),
			); err != nil {
				return eris.Wrapf(err, "sqlite: upsert suppression %s", e.CanonicalKey)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CheckSuppression returns the unexpired entry for a key, nil on a miss.
func (s *SQLiteStore) CheckSuppression(ctx context.Context, canonicalKey string) (*model.SuppressionEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT canonical_key, crm_page_id, status, company_name,
		        cached_at, expires_at, metadata
		 FROM suppression_cache
		 WHERE canonical_key = ? AND expires_at > ?`,
		canonicalKey, time.Now().UTC(),
	)

	var e model.SuppressionEntry
	var companyName sql.NullString
	var metaJSON sql.NullString
	err := row.Scan(&e.CanonicalKey, &e.CRMPageID, &e.Status, &companyName,
		&e.CachedAt, &e.ExpiresAt, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: check suppression")
	}
	e.CompanyName = companyName.String
	if metaJSON.Valid {
		if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal suppression metadata")
		}
	}
	return &e, nil
}

// CleanExpiredCache removes expired suppression entries.
func (s *SQLiteStore) CleanExpiredCache(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM suppression_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clean expired cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// SavePipelineRun records one orchestrator run.
func (s *SQLiteStore) SavePipelineRun(ctx context.Context, run model.PipelineRun) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var errsJSON []byte
	if len(run.Errors) > 0 {
		var err error
		if errsJSON, err = json.Marshal(run.Errors); err != nil {
			return eris.Wrap(err, "sqlite: marshal run errors")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (
			run_id, started_at, completed_at,
			collectors_run, collectors_succeeded, collectors_failed,
			signals_collected, signals_stored, signals_deduplicated,
			signals_processed, signals_auto_push, signals_needs_review,
			signals_held, signals_rejected,
			prospects_created, prospects_updated, prospects_skipped,
			errors, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.StartedAt.UTC(), nullTime(run.CompletedAt),
		run.CollectorsRun, run.CollectorsSucceeded, run.CollectorsFailed,
		run.SignalsCollected, run.SignalsStored, run.SignalsDeduplicated,
		run.SignalsProcessed, run.SignalsAutoPush, run.SignalsNeedReview,
		run.SignalsHeld, run.SignalsRejected,
		run.ProspectsCreated, run.ProspectsUpdated, run.ProspectsSkipped,
		nullBytes(errsJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: insert pipeline run")
}

// GetPipelineRuns returns recent runs, newest first.
func (s *SQLiteStore) GetPipelineRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, completed_at,
		        collectors_run, collectors_succeeded, collectors_failed,
		        signals_collected, signals_stored, signals_deduplicated,
		        signals_processed, signals_auto_push, signals_needs_review,
		        signals_held, signals_rejected,
		        prospects_created, prospects_updated, prospects_skipped, errors
		 FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pipeline runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		var r model.PipelineRun
		var completedAt sql.NullTime
		var errsJSON sql.NullString
		if err := rows.Scan(&r.RunID, &r.StartedAt, &completedAt,
			&r.CollectorsRun, &r.CollectorsSucceeded, &r.CollectorsFailed,
			&r.SignalsCollected, &r.SignalsStored, &r.SignalsDeduplicated,
			&r.SignalsProcessed, &r.SignalsAutoPush, &r.SignalsNeedReview,
			&r.SignalsHeld, &r.SignalsRejected,
			&r.ProspectsCreated, &r.ProspectsUpdated, &r.ProspectsSkipped,
			&errsJSON,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pipeline run")
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		if errsJSON.Valid {
			if err := json.Unmarshal([]byte(errsJSON.String), &r.Errors); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal run errors")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate pipeline runs")
}

// Stats aggregates counts across all tables.
func (s *SQLiteStore) Stats(ctx context.Context) (*model.StoreStats, error) {
	stats := &model.StoreStats{
		SignalsByType:      make(map[model.SignalType]int),
		ProcessingByStatus: make(map[model.ProcessingStatus]int),
		DatabasePath:       s.path,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT signal_type, COUNT(*) FROM signals GROUP BY signal_type`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by type")
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan type count")
		}
		stats.SignalsByType[model.SignalType(st)] = n
		stats.TotalSignals += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate type counts")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM signal_processing GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: stats by status")
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		stats.ProcessingByStatus[model.ProcessingStatus(st)] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate status counts")
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM suppression_cache WHERE expires_at > ?`,
		time.Now().UTC(),
	).Scan(&stats.ActiveSuppressionCount); err != nil {
		return nil, eris.Wrap(err, "sqlite: count active suppression")
	}

	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM schema_migrations`,
	).Scan(&version); err != nil {
		return nil, eris.Wrap(err, "sqlite: schema version")
	}
	stats.SchemaVersion = int(version.Int64)

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pipeline_runs`,
	).Scan(&stats.PipelineRunsRecorded); err != nil {
		return nil, eris.Wrap(err, "sqlite: count pipeline runs")
	}

	var oldest sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(s.detected_at) FROM signals s
		 INNER JOIN signal_processing p ON p.signal_id = s.id
		 WHERE p.status = ?`, string(model.StatusPending),
	).Scan(&oldest); err != nil {
		return nil, eris.Wrap(err, "sqlite: oldest pending")
	}
	if oldest.Valid {
		t, err := parseSQLiteTime(oldest.String)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse oldest pending time")
		}
		stats.OldestPendingDetectedAt = &t
	}

	return stats, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSignal(row scannable) (*model.Signal, error) {
	var sig model.Signal
	var companyName, rawJSON sql.NullString
	var flagsJSON, sourceURL, responseHash sql.NullString
	var procID sql.NullInt64
	var procStatus, crmPageID, errorMsg, metaJSON sql.NullString
	var processedAt, procCreated, procUpdated sql.NullTime

	err := row.Scan(
		&sig.ID, &sig.SignalType, &sig.SourceAPI, &sig.CanonicalKey,
		&companyName, &sig.Confidence, &rawJSON, &flagsJSON,
		&sourceURL, &responseHash, &sig.DetectedAt, &sig.CreatedAt,
		&procID, &procStatus, &crmPageID, &processedAt, &errorMsg,
		&metaJSON, &procCreated, &procUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan signal")
	}

	sig.CompanyName = companyName.String
	sig.SourceURL = sourceURL.String
	sig.SourceResponseHash = responseHash.String
	if rawJSON.Valid && rawJSON.String != "" {
		if err := json.Unmarshal([]byte(rawJSON.String), &sig.RawData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal raw_data")
		}
	}
	if flagsJSON.Valid && flagsJSON.String != "" {
		if err := json.Unmarshal([]byte(flagsJSON.String), &sig.WarningFlags); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal warning_flags")
		}
	}

	if procID.Valid {
		p := &model.ProcessingRecord{
			ID:           procID.Int64,
			SignalID:     sig.ID,
			Status:       model.ProcessingStatus(procStatus.String),
			CRMPageID:    crmPageID.String,
			ErrorMessage: errorMsg.String,
			CreatedAt:    procCreated.Time,
			UpdatedAt:    procUpdated.Time,
		}
		if processedAt.Valid {
			t := processedAt.Time
			p.ProcessedAt = &t
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &p.Metadata); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal processing metadata")
			}
		}
		sig.Processing = p
	}

	return &sig, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// parseSQLiteTime parses a DATETIME value that modernc.org/sqlite returned as
// a plain string (e.g. from an aggregate expression, where the driver can't
// infer the declared column type and scan it straight into time.Time). The
// format matches time.Time.String, which is how nullTime values are written.
func parseSQLiteTime(s string) (time.Time, error) {
	if i := strings.Index(s, "m="); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	return time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", s)
}
