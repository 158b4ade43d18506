// Package pusher implements the batch processor that routes pending
// signals to the CRM: group by canonical key, gate, upsert, mark.
package pusher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/presson-ventures/discovery-cli/internal/crm"
	"github.com/presson-ventures/discovery-cli/internal/gate"
	"github.com/presson-ventures/discovery-cli/internal/model"
	"github.com/presson-ventures/discovery-cli/internal/resilience"
	"github.com/presson-ventures/discovery-cli/internal/store"
)

// Connector is the CRM surface the pusher needs.
type Connector interface {
	UpsertProspect(ctx context.Context, p crm.ProspectPayload) (*crm.UpsertResult, error)
}

// Options configures one batch.
type Options struct {
	// Limit caps how many pending signals are loaded; 0 means no cap.
	Limit int

	// DryRun evaluates and counts decisions without touching the CRM or
	// mutating the store.
	DryRun bool

	// Concurrency bounds the worker pool. Default 4.
	Concurrency int

	// ProspectTimeout bounds gate + upsert + mark for one prospect.
	// Default 60s.
	ProspectTimeout time.Duration
}

// Pusher reads pending signals, gates them per prospect, and pushes
// qualified prospects to the CRM.
type Pusher struct {
	store store.Store
	crm   Connector
	gate  *gate.Gate
	retry resilience.RetryConfig
}

// New creates a pusher.
func New(st store.Store, connector Connector, g *gate.Gate) *Pusher {
	return &Pusher{
		store: st,
		crm:   connector,
		gate:  g,
		retry: resilience.DefaultRetryConfig(),
	}
}

// ProcessBatch runs one batch over all pending signals. One prospect's
// failure never aborts the batch; a schema preflight failure does, since
// every subsequent upsert would fail identically.
func (p *Pusher) ProcessBatch(ctx context.Context, opts Options) (*model.BatchResult, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.ProspectTimeout <= 0 {
		opts.ProspectTimeout = 60 * time.Second
	}

	result := &model.BatchResult{
		StartedAt: time.Now().UTC(),
		DryRun:    opts.DryRun,
	}
	log := zap.L().With(zap.String("component", "pusher"))

	pending, err := p.store.GetPendingSignals(ctx, store.PendingFilter{Limit: opts.Limit})
	if err != nil {
		return nil, eris.Wrap(err, "pusher: load pending signals")
	}
	result.SignalsRetrieved = len(pending)

	if len(pending) == 0 {
		log.Info("no pending signals")
		now := time.Now().UTC()
		result.CompletedAt = &now
		return result, nil
	}

	byKey := make(map[string][]model.Signal)
	for _, sig := range pending {
		byKey[sig.CanonicalKey] = append(byKey[sig.CanonicalKey], sig)
	}
	result.EntitiesEvaluated = len(byKey)

	log.Info("processing batch",
		zap.Int("signals", len(pending)),
		zap.Int("entities", len(byKey)),
		zap.Bool("dry_run", opts.DryRun),
	)

	var mu sync.Mutex
	var schemaErr error

	pool := pond.NewPool(opts.Concurrency)
	group := pool.NewGroup()

	for key, signals := range byKey {
		group.Submit(func() {
			mu.Lock()
			aborted := schemaErr != nil
			mu.Unlock()
			if aborted || ctx.Err() != nil {
				return
			}

			prospectCtx, cancel := context.WithTimeout(ctx, opts.ProspectTimeout)
			defer cancel()

			err := p.processProspect(prospectCtx, key, signals, opts, result, &mu)
			if err == nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if eris.Is(err, crm.ErrSchemaInvalid) {
				schemaErr = err
				return
			}
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("%s: %v", key, err))
		})
	}

	group.Wait()
	pool.StopAndWait()

	if ctx.Err() != nil {
		result.Cancelled = true
	}

	now := time.Now().UTC()
	result.CompletedAt = &now

	log.Info("batch complete",
		zap.Int("auto_push", result.AutoPush),
		zap.Int("needs_review", result.NeedsReview),
		zap.Int("held", result.Held),
		zap.Int("rejected", result.Rejected),
		zap.Int("created", result.ProspectsCreated),
		zap.Int("updated", result.ProspectsUpdated),
		zap.Int("skipped", result.ProspectsSkipped),
		zap.Int("errors", len(result.ErrorMessages)),
		zap.Bool("cancelled", result.Cancelled),
	)

	if schemaErr != nil {
		return result, schemaErr
	}
	return result, nil
}

func (p *Pusher) processProspect(ctx context.Context, key string, signals []model.Signal, opts Options, result *model.BatchResult, mu *sync.Mutex) error {
	prospect := model.BuildProspect(key, signals)
	verdict := p.gate.Evaluate(signals, time.Now().UTC())

	log := zap.L().With(
		zap.String("canonical_key", key),
		zap.String("decision", string(verdict.Decision)),
		zap.Float64("confidence", verdict.Confidence),
	)

	switch verdict.Decision {
	case gate.DecisionHold:
		log.Debug("holding prospect")
		mu.Lock()
		result.Held++
		mu.Unlock()
		return nil

	case gate.DecisionReject:
		log.Info("rejecting prospect", zap.String("reason", verdict.Reason))
		mu.Lock()
		result.Rejected++
		mu.Unlock()
		if opts.DryRun {
			return nil
		}
		for _, sig := range prospect.Signals {
			if err := p.store.MarkRejected(ctx, sig.ID, verdict.Reason, decisionMetadata(verdict)); err != nil {
				return eris.Wrapf(err, "mark rejected signal %d", sig.ID)
			}
		}
		return nil

	case gate.DecisionAutoPush:
		mu.Lock()
		result.AutoPush++
		mu.Unlock()
	case gate.DecisionNeedsReview:
		mu.Lock()
		result.NeedsReview++
		mu.Unlock()
	}

	if opts.DryRun {
		log.Info("dry run: would upsert prospect")
		return nil
	}

	payload := p.buildPayload(prospect, verdict)

	upsert, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) (*crm.UpsertResult, error) {
		return p.crm.UpsertProspect(ctx, payload)
	})
	if err != nil {
		// Permanent failure leaves the signals pending; the next batch
		// reconsiders them.
		log.Error("upsert failed", zap.Error(err))
		return eris.Wrapf(err, "upsert %s", payload.CompanyName)
	}

	mu.Lock()
	switch upsert.Action {
	case crm.ActionCreated:
		result.ProspectsCreated++
	case crm.ActionUpdated:
		result.ProspectsUpdated++
	case crm.ActionSkipped:
		result.ProspectsSkipped++
	}
	mu.Unlock()

	if upsert.Action == crm.ActionSkipped {
		// Terminal in the CRM; stop reconsidering these signals.
		for _, sig := range prospect.Signals {
			if err := p.store.MarkRejected(ctx, sig.ID, upsert.Reason, decisionMetadata(verdict)); err != nil {
				return eris.Wrapf(err, "mark rejected signal %d", sig.ID)
			}
		}
		return nil
	}

	for _, sig := range prospect.Signals {
		if err := p.store.MarkPushed(ctx, sig.ID, upsert.PageID, decisionMetadata(verdict)); err != nil {
			return eris.Wrapf(err, "mark pushed signal %d", sig.ID)
		}
	}

	log.Info("prospect pushed",
		zap.String("page_id", upsert.PageID),
		zap.String("action", string(upsert.Action)),
	)
	return nil
}

func (p *Pusher) buildPayload(prospect model.Prospect, verdict gate.Result) crm.ProspectPayload {
	types := make([]string, len(prospect.SignalTypes))
	for i, t := range prospect.SignalTypes {
		types[i] = string(t)
	}

	companyName := prospect.CompanyName()
	if companyName == "" {
		companyName = prospect.CanonicalKey
	}

	website := ""
	if w, ok := prospect.MergedRawData["website"].(string); ok {
		website = w
	} else if d, ok := prospect.MergedRawData["domain"].(string); ok && d != "" {
		website = "https://" + d
	}

	return crm.ProspectPayload{
		DiscoveryID:     crm.DiscoveryID(prospect.CanonicalKey),
		CompanyName:     companyName,
		CanonicalKey:    prospect.CanonicalKey,
		Status:          verdict.SuggestedStatus,
		Stage:           crm.InferStage(prospect),
		Website:         website,
		ConfidenceScore: verdict.Confidence,
		SignalTypes:     types,
		WhyNow:          verdict.Summary(prospect),
	}
}

func decisionMetadata(verdict gate.Result) map[string]any {
	return map[string]any{
		"decision":   string(verdict.Decision),
		"confidence": verdict.Confidence,
		"reason":     verdict.Reason,
	}
}
