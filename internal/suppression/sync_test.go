package suppression

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presson-ventures/discovery-cli/internal/crm"
	"github.com/presson-ventures/discovery-cli/internal/model"
	"github.com/presson-ventures/discovery-cli/internal/store"
)

type fakeLister struct {
	records []crm.SuppressionRecord
	err     error
}

func (f *fakeLister) SuppressionList(ctx context.Context) ([]crm.SuppressionRecord, error) {
	return f.records, f.err
}

func newSyncStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSyncWritesEntries(t *testing.T) {
	ctx := context.Background()
	st := newSyncStore(t)
	lister := &fakeLister{records: []crm.SuppressionRecord{
		{PageID: "p1", Status: "Source", CompanyName: "Acme", CanonicalKey: "domain:acme.ai"},
		{PageID: "p2", Status: "Passed", CompanyName: "Beta", Website: "https://www.beta.io/about"},
		{PageID: "p3", Status: "Tracking", CompanyName: "Gamma Labs"},
		{PageID: "p4", Status: "Lost"},
	}}

	s := New(lister, st, 7*24*time.Hour)
	stats, err := s.Run(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.PagesFetched)
	assert.Equal(t, 3, stats.EntriesProcessed)
	assert.Equal(t, 2, stats.WithStrongKey) // explicit key + website-derived
	assert.Equal(t, 1, stats.WithWeakKey)   // name slug fallback
	assert.Equal(t, 1, stats.WithoutKey)    // nothing derivable
	assert.Equal(t, 3, stats.EntriesSynced)
	require.NotNil(t, stats.CompletedAt)

	entry, err := st.CheckSuppression(ctx, "domain:acme.ai")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "p1", entry.CRMPageID)
	assert.Equal(t, "Source", entry.Status)

	// Website-derived key was normalized to the registrable domain.
	entry, err = st.CheckSuppression(ctx, "domain:beta.io")
	require.NoError(t, err)
	require.NotNil(t, entry)

	// Weak fallback key from the company name.
	entry, err = st.CheckSuppression(ctx, "name_loc:gamma-labs")
	require.NoError(t, err)
	require.NotNil(t, entry)
}

func TestSyncIdempotent(t *testing.T) {
	// Running sync twice back-to-back yields the same cache contents.
	ctx := context.Background()
	st := newSyncStore(t)
	lister := &fakeLister{records: []crm.SuppressionRecord{
		{PageID: "p1", Status: "Source", CanonicalKey: "domain:acme.ai"},
		{PageID: "p2", Status: "Tracking", CanonicalKey: "domain:beta.io"},
	}}

	s := New(lister, st, 7*24*time.Hour)
	_, err := s.Run(ctx, false)
	require.NoError(t, err)
	_, err = s.Run(ctx, false)
	require.NoError(t, err)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ActiveSuppressionCount)
}

func TestSyncDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	st := newSyncStore(t)
	lister := &fakeLister{records: []crm.SuppressionRecord{
		{PageID: "p1", Status: "Source", CanonicalKey: "domain:acme.ai"},
	}}

	s := New(lister, st, 7*24*time.Hour)
	stats, err := s.Run(ctx, true)
	require.NoError(t, err)
	assert.True(t, stats.DryRun)
	assert.Equal(t, 1, stats.EntriesSynced)

	entry, err := st.CheckSuppression(ctx, "domain:acme.ai")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSyncCleansExpired(t *testing.T) {
	ctx := context.Background()
	st := newSyncStore(t)

	past := time.Now().UTC().Add(-10 * 24 * time.Hour)
	_, err := st.UpdateSuppressionCache(ctx, []model.SuppressionEntry{{
		CanonicalKey: "domain:old.io",
		CRMPageID:    "p-old",
		Status:       "Source",
		CachedAt:     past,
		ExpiresAt:    past.Add(7 * 24 * time.Hour),
	}})
	require.NoError(t, err)

	lister := &fakeLister{records: []crm.SuppressionRecord{
		{PageID: "p1", Status: "Source", CanonicalKey: "domain:new.io"},
	}}

	s := New(lister, st, 7*24*time.Hour)
	stats, err := s.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ExpiredCleaned)
}

func TestSyncPropagatesCRMError(t *testing.T) {
	st := newSyncStore(t)
	lister := &fakeLister{err: assert.AnError}

	s := New(lister, st, 0)
	_, err := s.Run(context.Background(), false)
	assert.Error(t, err)
}
