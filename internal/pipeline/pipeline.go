// Package pipeline binds the store, collectors, gate, CRM connector,
// pusher, and suppression sync into the collect/process/sync/full jobs.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/presson-ventures/discovery-cli/internal/collector"
	"github.com/presson-ventures/discovery-cli/internal/config"
	"github.com/presson-ventures/discovery-cli/internal/crm"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/gate"
	"github.com/presson-ventures/discovery-cli/internal/model"
	"github.com/presson-ventures/discovery-cli/internal/pusher"
	"github.com/presson-ventures/discovery-cli/internal/store"
	"github.com/presson-ventures/discovery-cli/internal/suppression"
	"github.com/presson-ventures/discovery-cli/pkg/notion"
)

// Pipeline is the orchestrator. Construct with New, then Initialize before
// running jobs, and Close when done.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	fetcher   fetcher.Fetcher
	registry  *collector.Registry
	runner    *collector.Runner
	connector *crm.Connector
	gate      *gate.Gate
	pusher    *pusher.Pusher
	sync      *suppression.Sync
}

// New wires a pipeline from configuration. The Notion client is optional:
// collect-only runs pass nil and CRM-facing jobs fail fast.
func New(cfg *config.Config, st store.Store, notionClient notion.Client) *Pipeline {
	rateLimits := make(map[string]fetcher.RateLimit, len(cfg.RateLimit))
	for source, rl := range cfg.RateLimit {
		rateLimits[source] = fetcher.RateLimit{RPS: rl.RPS, Burst: rl.Burst}
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:    cfg.HTTP.Timeout(),
		MaxRetries: cfg.HTTP.Retries,
		RateLimits: rateLimits,
	})

	g := gate.New(gateConfig(cfg))

	p := &Pipeline{
		cfg:      cfg,
		store:    st,
		fetcher:  f,
		registry: collector.NewRegistry(f),
		runner:   collector.NewRunner(st),
		gate:     g,
	}

	if notionClient != nil {
		p.connector = crm.NewConnector(notionClient, crm.Options{
			DatabaseID:            cfg.Notion.DatabaseID,
			TerminalStatuses:      cfg.Notion.Status.Terminal,
			SyncStatuses:          cfg.Notion.Status.Sync,
			RequiredStatusOptions: requiredStatusOptions(cfg),
			RequiredStageOptions:  cfg.Notion.StageOptions,
			SchemaCacheTTL:        cfg.Notion.SchemaCacheTTL(),
		})
		p.pusher = pusher.New(st, p.connector, g)
		p.sync = suppression.New(p.connector, st, cfg.Store.SuppressionTTL())
	}

	return p
}

func gateConfig(cfg *config.Config) gate.Config {
	gc := gate.Config{
		StrictMode:        cfg.Gate.StrictMode,
		AutoPushStatus:    cfg.Notion.Status.AutoPush,
		NeedsReviewStatus: cfg.Notion.Status.NeedsReview,
		HighThreshold:     cfg.Gate.HighThreshold,
		MediumThreshold:   cfg.Gate.MediumThreshold,
	}
	if len(cfg.Gate.Weights) > 0 {
		gc.Weights = make(map[model.SignalType]float64, len(cfg.Gate.Weights))
		for k, v := range cfg.Gate.Weights {
			gc.Weights[model.SignalType(k)] = v
		}
	}
	if len(cfg.Gate.HalfLifeDays) > 0 {
		gc.HalfLifeDays = make(map[model.SignalType]float64, len(cfg.Gate.HalfLifeDays))
		for k, v := range cfg.Gate.HalfLifeDays {
			gc.HalfLifeDays[model.SignalType(k)] = v
		}
	}
	if len(cfg.Gate.TierMultiplier) > 0 {
		gc.TierMultipliers = cfg.Gate.TierMultiplier
	}
	if len(cfg.Gate.SourceTiers) > 0 {
		gc.SourceTiers = cfg.Gate.SourceTiers
	}
	return gc
}

func requiredStatusOptions(cfg *config.Config) []string {
	opts := []string{cfg.Notion.Status.AutoPush, cfg.Notion.Status.NeedsReview}
	opts = append(opts, cfg.Notion.Status.Terminal...)
	return opts
}

// Initialize migrates the store and, when configured, runs a warmup
// suppression sync so collectors and the pusher see a fresh cache. Jobs
// that sync as their own first phase pass warmup=false.
func (p *Pipeline) Initialize(ctx context.Context, warmup bool) error {
	if err := p.store.Migrate(ctx); err != nil {
		return eris.Wrap(err, "pipeline: migrate store")
	}

	if warmup && p.cfg.Pipeline.WarmupSync && p.sync != nil {
		zap.L().Info("running warmup suppression sync")
		if _, err := p.sync.Run(ctx, false); err != nil {
			// A stale cache degrades dedup but doesn't block collection.
			zap.L().Warn("warmup suppression sync failed", zap.Error(err))
		}
	}
	return nil
}

// Close releases pipeline resources.
func (p *Pipeline) Close() error {
	return p.store.Close()
}

// CollectorNames lists all registered collectors.
func (p *Pipeline) CollectorNames() []string {
	return p.registry.AllNames()
}

// Collect runs the named collectors (or all enabled ones) concurrently.
// A failed collector never blocks the others.
func (p *Pipeline) Collect(ctx context.Context, names []string, opts collector.Options) ([]model.CollectorResult, error) {
	if len(names) == 0 {
		names = p.cfg.Collectors.Enabled
	}
	collectors, err := p.registry.Select(names)
	if err != nil {
		return nil, err
	}

	if opts.Lookback <= 0 {
		opts.Lookback = p.cfg.Collectors.Lookback()
	}

	results := make([]model.CollectorResult, len(collectors))
	g := new(errgroup.Group)
	// The store serializes writes and collectors mostly wait on HTTP, so
	// modest parallelism is enough.
	g.SetLimit(4)

	for i, c := range collectors {
		g.Go(func() error {
			results[i] = p.runner.Run(ctx, c, opts)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// Process runs one pusher batch.
func (p *Pipeline) Process(ctx context.Context, opts pusher.Options) (*model.BatchResult, error) {
	if p.pusher == nil {
		return nil, eris.New("pipeline: CRM connector not configured")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = p.cfg.Pusher.Concurrency
	}
	if opts.ProspectTimeout <= 0 {
		opts.ProspectTimeout = p.cfg.Pusher.ProspectTimeout()
	}
	return p.pusher.ProcessBatch(ctx, opts)
}

// SyncSuppression runs one suppression-sync pass. A non-zero ttl overrides
// the configured default.
func (p *Pipeline) SyncSuppression(ctx context.Context, ttl time.Duration, dryRun bool) (*model.SyncStats, error) {
	if p.sync == nil {
		return nil, eris.New("pipeline: CRM connector not configured")
	}
	job := p.sync
	if ttl > 0 {
		job = suppression.New(p.connector, p.store, ttl)
	}
	return job.Run(ctx, dryRun)
}

// FullResult aggregates the three phases of a full run.
type FullResult struct {
	RunID      string
	Sync       *model.SyncStats
	Collectors []model.CollectorResult
	Batch      *model.BatchResult
	Errors     []string
}

// Full runs sync, then collect, then process. Phases are independent: an
// error in any phase, store errors included, is recorded in the result and
// the next phase still runs; only a cancelled context skips process, and
// Full itself returns a nil error. The run record is persisted for operators.
func (p *Pipeline) Full(ctx context.Context, collectOpts collector.Options, processOpts pusher.Options) (*FullResult, error) {
	run := model.PipelineRun{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	result := &FullResult{RunID: run.RunID}
	log := zap.L().With(zap.String("run_id", run.RunID))

	log.Info("starting full pipeline run")

	syncStats, err := p.SyncSuppression(ctx, 0, collectOpts.DryRun)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("sync: %v", err))
		log.Warn("suppression sync failed, continuing with stale cache", zap.Error(err))
	}
	result.Sync = syncStats

	collectorResults, err := p.Collect(ctx, nil, collectOpts)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("collect: %v", err))
	}
	result.Collectors = collectorResults

	for _, cr := range collectorResults {
		run.CollectorsRun++
		if cr.Failed() {
			run.CollectorsFailed++
		} else {
			run.CollectorsSucceeded++
		}
		run.SignalsCollected += cr.SignalsFound
		run.SignalsStored += cr.SignalsNew
		run.SignalsDeduplicated += cr.SignalsSuppressed
		run.Errors = append(run.Errors, cr.Errors...)
	}

	if ctx.Err() == nil {
		batch, err := p.Process(ctx, pusher.Options{
			Limit:  processOpts.Limit,
			DryRun: collectOpts.DryRun || processOpts.DryRun,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("process: %v", err))
			log.Error("process phase failed", zap.Error(err))
		}
		if batch != nil {
			result.Batch = batch
			run.SignalsProcessed = batch.SignalsRetrieved
			run.SignalsAutoPush = batch.AutoPush
			run.SignalsNeedReview = batch.NeedsReview
			run.SignalsHeld = batch.Held
			run.SignalsRejected = batch.Rejected
			run.ProspectsCreated = batch.ProspectsCreated
			run.ProspectsUpdated = batch.ProspectsUpdated
			run.ProspectsSkipped = batch.ProspectsSkipped
			run.Errors = append(run.Errors, batch.ErrorMessages...)
		}
	}

	completed := time.Now().UTC()
	run.CompletedAt = &completed
	run.Errors = append(run.Errors, result.Errors...)

	if !collectOpts.DryRun {
		if err := p.store.SavePipelineRun(ctx, run); err != nil {
			log.Warn("failed to persist pipeline run record", zap.Error(err))
		}
	}

	log.Info("full pipeline run complete",
		zap.Int("collectors_run", run.CollectorsRun),
		zap.Int("signals_stored", run.SignalsStored),
		zap.Int("errors", len(run.Errors)),
	)
	return result, nil
}

// Stats returns store statistics.
func (p *Pipeline) Stats(ctx context.Context) (*model.StoreStats, error) {
	return p.store.Stats(ctx)
}

// RecentRuns returns recent pipeline run records.
func (p *Pipeline) RecentRuns(ctx context.Context, limit int) ([]model.PipelineRun, error) {
	return p.store.GetPipelineRuns(ctx, limit)
}

// ValidateSchema exposes the CRM schema preflight for the schema command.
func (p *Pipeline) ValidateSchema(ctx context.Context) (*crm.Validation, error) {
	if p.connector == nil {
		return nil, eris.New("pipeline: CRM connector not configured")
	}
	return p.connector.ValidateSchema(ctx, true)
}

// HealthReport is the output of the health command.
type HealthReport struct {
	Store   string            `json:"store"`
	Sources map[string]string `json:"sources"`
	Schema  string            `json:"schema"`
}

// Healthy reports whether every check passed.
func (r *HealthReport) Healthy() bool {
	if r.Store != "ok" {
		return false
	}
	if r.Schema != "ok" && r.Schema != "not configured" {
		return false
	}
	for _, status := range r.Sources {
		if status != "ok" {
			return false
		}
	}
	return true
}

// Health checks store connectivity, pings each enabled source, and runs
// the CRM schema preflight.
func (p *Pipeline) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{Sources: make(map[string]string)}

	if err := p.store.Ping(ctx); err != nil {
		report.Store = err.Error()
	} else {
		report.Store = "ok"
	}

	collectors, err := p.registry.Select(p.cfg.Collectors.Enabled)
	if err != nil {
		collectors = p.registry.All()
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(4)

	for _, c := range collectors {
		checker, ok := c.(collector.HealthChecker)
		if !ok {
			continue
		}
		g.Go(func() error {
			status := "ok"
			if err := checker.Ping(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			report.Sources[c.Name()] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if p.connector == nil {
		report.Schema = "not configured"
	} else if validation, err := p.connector.ValidateSchema(ctx, true); err != nil {
		report.Schema = err.Error()
	} else if !validation.Valid() {
		report.Schema = validation.String()
	} else {
		report.Schema = "ok"
	}

	return report
}
