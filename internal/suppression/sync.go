// Package suppression implements the sync job that mirrors the CRM into
// the local suppression cache.
package suppression

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/crm"
	"github.com/presson-ventures/discovery-cli/internal/model"
	"github.com/presson-ventures/discovery-cli/internal/store"
)

// Lister is the CRM surface the sync job needs.
type Lister interface {
	SuppressionList(ctx context.Context) ([]crm.SuppressionRecord, error)
}

// Sync mirrors every active CRM record into the suppression cache with a
// TTL, then evicts expired entries.
type Sync struct {
	crm   Lister
	store store.Store
	ttl   time.Duration
}

// New creates a sync job. TTL defaults to 7 days.
func New(lister Lister, st store.Store, ttl time.Duration) *Sync {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Sync{crm: lister, store: st, ttl: ttl}
}

// Run executes one sync pass. In dry-run the CRM is read and entries are
// derived for accounting, but the cache is untouched.
func (s *Sync) Run(ctx context.Context, dryRun bool) (*model.SyncStats, error) {
	stats := &model.SyncStats{
		StartedAt: time.Now().UTC(),
		DryRun:    dryRun,
	}
	log := zap.L().With(zap.String("component", "suppression_sync"))

	records, err := s.crm.SuppressionList(ctx)
	if err != nil {
		return stats, eris.Wrap(err, "suppression: fetch CRM records")
	}
	stats.PagesFetched = len(records)

	now := time.Now().UTC()
	entries := make([]model.SuppressionEntry, 0, len(records))

	for _, rec := range records {
		key := s.deriveKey(rec)
		if key == "" {
			stats.WithoutKey++
			stats.Errors = append(stats.Errors,
				fmt.Sprintf("page %s (%s): no canonical key derivable", rec.PageID, rec.CompanyName))
			continue
		}

		if canonical.IsStrong(key) {
			stats.WithStrongKey++
		} else {
			stats.WithWeakKey++
		}

		entries = append(entries, model.SuppressionEntry{
			CanonicalKey: key,
			CRMPageID:    rec.PageID,
			Status:       rec.Status,
			CompanyName:  rec.CompanyName,
			CachedAt:     now,
			ExpiresAt:    now.Add(s.ttl),
			Metadata: map[string]any{
				"website":     rec.Website,
				"synced_from": "suppression_sync",
			},
		})
	}
	stats.EntriesProcessed = len(entries)

	if dryRun {
		log.Info("dry run: would sync entries", zap.Int("entries", len(entries)))
		stats.EntriesSynced = len(entries)
	} else {
		synced, err := s.store.UpdateSuppressionCache(ctx, entries)
		if err != nil {
			return stats, eris.Wrap(err, "suppression: update cache")
		}
		stats.EntriesSynced = synced

		cleaned, err := s.store.CleanExpiredCache(ctx)
		if err != nil {
			return stats, eris.Wrap(err, "suppression: clean expired")
		}
		stats.ExpiredCleaned = cleaned
	}

	completed := time.Now().UTC()
	stats.CompletedAt = &completed

	log.Info("suppression sync complete",
		zap.Int("pages_fetched", stats.PagesFetched),
		zap.Int("entries_synced", stats.EntriesSynced),
		zap.Int("strong_keys", stats.WithStrongKey),
		zap.Int("weak_keys", stats.WithWeakKey),
		zap.Int("without_key", stats.WithoutKey),
		zap.Int("expired_cleaned", stats.ExpiredCleaned),
		zap.Bool("dry_run", dryRun),
	)
	return stats, nil
}

// deriveKey prefers the CRM's stored canonical key, then the website
// domain, then a weak name slug.
func (s *Sync) deriveKey(rec crm.SuppressionRecord) string {
	if rec.CanonicalKey != "" {
		return rec.CanonicalKey
	}
	if domain := canonical.NormalizeDomain(rec.Website); domain != "" {
		return canonical.Key(canonical.KindDomain, domain)
	}
	if slug := canonical.Slug(rec.CompanyName); slug != "" {
		return canonical.Key(canonical.KindNameLoc, slug)
	}
	return ""
}
