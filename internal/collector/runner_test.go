package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presson-ventures/discovery-cli/internal/model"
	"github.com/presson-ventures/discovery-cli/internal/store"
)

// stubCollector returns a fixed batch of signals.
type stubCollector struct {
	name       string
	signals    []model.Signal
	collectErr error
	opened     bool
	closed     bool
}

func (s *stubCollector) Name() string { return s.name }

func (s *stubCollector) Open(ctx context.Context) error {
	s.opened = true
	return nil
}

func (s *stubCollector) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	if s.collectErr != nil {
		return nil, s.collectErr
	}
	return s.signals, nil
}

func (s *stubCollector) Close() error {
	s.closed = true
	return nil
}

func newRunnerStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "signals.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func collectorSignal(key string) model.Signal {
	return model.Signal{
		SignalType:   model.SignalGitHubSpike,
		SourceAPI:    "stub",
		CanonicalKey: key,
		Confidence:   0.8,
		RawData:      map[string]any{"repo": "x/y"},
		DetectedAt:   time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRunEmptyBatchSucceeds(t *testing.T) {
	st := newRunnerStore(t)
	r := NewRunner(st)
	c := &stubCollector{name: "stub"}

	result := r.Run(context.Background(), c, Options{Lookback: 24 * time.Hour})
	assert.Equal(t, model.CollectorSuccess, result.Status)
	assert.Zero(t, result.SignalsFound)
	assert.Zero(t, result.SignalsNew)
	assert.Zero(t, result.SignalsSuppressed)
	assert.True(t, c.opened)
	assert.True(t, c.closed)
}

func TestRunPersistsNewSignals(t *testing.T) {
	st := newRunnerStore(t)
	r := NewRunner(st)
	c := &stubCollector{name: "stub", signals: []model.Signal{
		collectorSignal("domain:a.io"),
		collectorSignal("domain:b.io"),
	}}

	result := r.Run(context.Background(), c, Options{})
	assert.Equal(t, model.CollectorSuccess, result.Status)
	assert.Equal(t, 2, result.SignalsFound)
	assert.Equal(t, 2, result.SignalsNew)
	assert.Zero(t, result.SignalsSuppressed)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSignals)
}

func TestRunDedupAcrossReruns(t *testing.T) {
	// Scenario: same collector run twice with identical lookback — second
	// run stores nothing new.
	st := newRunnerStore(t)
	r := NewRunner(st)
	c := &stubCollector{name: "sec_edgar", signals: []model.Signal{
		collectorSignal("domain:a.io"),
		collectorSignal("domain:b.io"),
	}}

	first := r.Run(context.Background(), c, Options{})
	assert.Equal(t, 2, first.SignalsNew)
	assert.Zero(t, first.SignalsSuppressed)

	second := r.Run(context.Background(), c, Options{})
	assert.Zero(t, second.SignalsNew)
	assert.Equal(t, 2, second.SignalsSuppressed)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSignals)
}

func TestRunSuppressionRespected(t *testing.T) {
	// Scenario: key already present in the suppression cache is skipped
	// without a store write.
	ctx := context.Background()
	st := newRunnerStore(t)

	now := time.Now().UTC()
	_, err := st.UpdateSuppressionCache(ctx, []model.SuppressionEntry{{
		CanonicalKey: "domain:acme.ai",
		CRMPageID:    "page-1",
		Status:       "Passed",
		CachedAt:     now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}})
	require.NoError(t, err)

	r := NewRunner(st)
	c := &stubCollector{name: "stub", signals: []model.Signal{
		collectorSignal("domain:acme.ai"),
	}}

	result := r.Run(ctx, c, Options{})
	assert.Equal(t, 1, result.SignalsFound)
	assert.Zero(t, result.SignalsNew)
	assert.Equal(t, 1, result.SignalsSuppressed)

	stats, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSignals)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	st := newRunnerStore(t)
	r := NewRunner(st)
	c := &stubCollector{name: "stub", signals: []model.Signal{
		collectorSignal("domain:a.io"),
	}}

	result := r.Run(context.Background(), c, Options{DryRun: true})
	assert.Equal(t, model.CollectorDryRun, result.Status)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.SignalsNew)

	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalSignals)
}

func TestRunInRunKeyDedup(t *testing.T) {
	st := newRunnerStore(t)
	r := NewRunner(st)
	c := &stubCollector{name: "stub", signals: []model.Signal{
		collectorSignal("domain:a.io"),
		collectorSignal("domain:a.io"),
	}}

	result := r.Run(context.Background(), c, Options{})
	assert.Equal(t, 2, result.SignalsFound)
	assert.Equal(t, 1, result.SignalsNew)
	assert.Equal(t, 1, result.SignalsSuppressed)
}

func TestRunErrorIsolationAndAccounting(t *testing.T) {
	st := newRunnerStore(t)
	r := NewRunner(st)

	bad := collectorSignal("")
	bad.CanonicalKey = "" // no derivable key
	c := &stubCollector{name: "stub", signals: []model.Signal{
		collectorSignal("domain:a.io"),
		bad,
		collectorSignal("domain:b.io"),
	}}

	result := r.Run(context.Background(), c, Options{})
	assert.Equal(t, model.CollectorPartialSuccess, result.Status)
	assert.Equal(t, 3, result.SignalsFound)
	assert.Equal(t, 2, result.SignalsNew)
	assert.Len(t, result.Errors, 1)

	// Accounting identity: found >= new + suppressed, delta = |errors|.
	delta := result.SignalsFound - result.SignalsNew - result.SignalsSuppressed
	assert.Equal(t, len(result.Errors), delta)
}

func TestRunCollectFailure(t *testing.T) {
	st := newRunnerStore(t)
	r := NewRunner(st)
	c := &stubCollector{name: "stub", collectErr: eris.New("source unreachable")}

	result := r.Run(context.Background(), c, Options{})
	assert.Equal(t, model.CollectorError, result.Status)
	assert.True(t, result.Failed())
	assert.True(t, c.closed)
}

func TestRunCancellationMarksPartial(t *testing.T) {
	st := newRunnerStore(t)
	r := NewRunner(st)

	signals := make([]model.Signal, 50)
	for i := range signals {
		signals[i] = collectorSignal(fmt.Sprintf("domain:x%d.io", i))
	}
	c := &stubCollector{name: "stub", signals: signals}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Run(ctx, c, Options{})
	assert.Equal(t, model.CollectorPartialSuccess, result.Status)
	assert.True(t, result.Cancelled)
	assert.Zero(t, result.SignalsNew)
}
