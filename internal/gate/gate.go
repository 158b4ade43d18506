// Package gate implements the verification gate: a pure evaluator that
// aggregates all stored signals for one canonical identity into a
// confidence score and a routing decision.
package gate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/presson-ventures/discovery-cli/internal/model"
)

// Decision is the routing outcome for a prospect.
type Decision string

const (
	DecisionAutoPush    Decision = "auto_push"
	DecisionNeedsReview Decision = "needs_review"
	DecisionHold        Decision = "hold"
	DecisionReject      Decision = "reject"
)

// MaxConfidence caps the final score — never 1.0.
const MaxConfidence = 0.95

// warningFlagPenalty is subtracted per collector-provided warning flag.
const warningFlagPenalty = 0.15

// scoreWeightBudget is the fixed weight mass that maps to full confidence
// before boosts: roughly two strong signal types at full strength. Summed
// contributions divide by this constant, never by the weights actually
// present, so a lone weak type still scores far below a lone strong one.
const scoreWeightBudget = 0.50

// Config tunes the gate. Zero-value maps fall back to the defaults below.
type Config struct {
	StrictMode        bool
	AutoPushStatus    string
	NeedsReviewStatus string
	HighThreshold     float64
	MediumThreshold   float64

	// Weights is the base weight per signal type.
	Weights map[model.SignalType]float64

	// HalfLifeDays is the decay half-life per signal type.
	HalfLifeDays map[model.SignalType]float64

	// TierMultipliers maps reliability tiers to score multipliers.
	TierMultipliers map[string]float64

	// SourceTiers maps a source_api to its reliability tier.
	SourceTiers map[string]string
}

// DefaultWeights are the tuned base weights per signal type.
var DefaultWeights = map[model.SignalType]float64{
	model.SignalIncorporation:      0.25,
	model.SignalFundingEvent:       0.20,
	model.SignalGitHubSpike:        0.20,
	model.SignalGitHubActivity:     0.18,
	model.SignalDomainRegistration: 0.15,
	model.SignalPatentFiling:       0.15,
	model.SignalProductLaunch:      0.10,
	model.SignalHNMention:          0.10,
	model.SignalResearchPaper:      0.05,
	model.SignalJobPosting:         0.10,
	model.SignalHiring:             0.30,
}

// DefaultHalfLives are the per-type decay half-lives in days.
var DefaultHalfLives = map[model.SignalType]float64{
	model.SignalIncorporation:      365,
	model.SignalFundingEvent:       180,
	model.SignalGitHubSpike:        14,
	model.SignalGitHubActivity:     30,
	model.SignalDomainRegistration: 90,
	model.SignalPatentFiling:       180,
	model.SignalProductLaunch:      30,
	model.SignalHNMention:          30,
	model.SignalResearchPaper:      180,
	model.SignalJobPosting:         45,
	model.SignalHiring:             45,
}

// DefaultTierMultipliers rank source reliability.
var DefaultTierMultipliers = map[string]float64{
	"tier1": 1.00, // authoritative registries
	"tier2": 0.85, // reliable third-party
	"tier3": 0.70, // informational
	"tier4": 0.50, // unverified
}

// DefaultSourceTiers maps built-in collectors to reliability tiers.
var DefaultSourceTiers = map[string]string{
	"sec_edgar":       "tier1",
	"companies_house": "tier1",
	"uspto":           "tier1",
	"crunchbase":      "tier2",
	"github":          "tier2",
	"domain_whois":    "tier2",
	"arxiv":           "tier2",
	"job_postings":    "tier3",
	"product_hunt":    "tier3",
	"hacker_news":     "tier4",
}

const (
	defaultWeight   = 0.05
	defaultHalfLife = 90
	defaultTierMult = 0.70
)

// Contribution records one signal type's counted contribution for audit.
type Contribution struct {
	SignalID     int64            `json:"signal_id"`
	SignalType   model.SignalType `json:"signal_type"`
	SourceAPI    string           `json:"source_api"`
	Weight       float64          `json:"weight"`
	DecayFactor  float64          `json:"decay_factor"`
	TierMult     float64          `json:"tier_multiplier"`
	Confidence   float64          `json:"confidence"`
	Contribution float64          `json:"contribution"`
	AgeDays      float64          `json:"age_days"`
}

// Breakdown is the auditable confidence calculation.
type Breakdown struct {
	Overall          float64        `json:"overall"`
	BaseScore        float64        `json:"base_score"`
	MultiSourceBoost float64        `json:"multi_source_boost"`
	ConvergenceBoost float64        `json:"convergence_boost"`
	WarningPenalty   float64        `json:"warning_penalty"`
	DistinctTypes    int            `json:"distinct_types"`
	SourcesChecked   int            `json:"sources_checked"`
	Sources          []string       `json:"sources"`
	Contributions    []Contribution `json:"contributions"`
}

// Result is the gate's verdict for one prospect.
type Result struct {
	Decision        Decision  `json:"decision"`
	Confidence      float64   `json:"confidence"`
	SuggestedStatus string    `json:"suggested_status"`
	Reason          string    `json:"reason"`
	MultiSource     bool      `json:"multi_source"`
	Breakdown       Breakdown `json:"breakdown"`
}

// Gate evaluates signal aggregations. It is pure and safe for concurrent use.
type Gate struct {
	cfg Config
}

// New creates a gate, filling unset thresholds and tables with defaults.
func New(cfg Config) *Gate {
	if cfg.HighThreshold == 0 {
		cfg.HighThreshold = 0.70
	}
	if cfg.MediumThreshold == 0 {
		cfg.MediumThreshold = 0.40
	}
	if cfg.AutoPushStatus == "" {
		cfg.AutoPushStatus = "Source"
	}
	if cfg.NeedsReviewStatus == "" {
		cfg.NeedsReviewStatus = "Tracking"
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights
	}
	if cfg.HalfLifeDays == nil {
		cfg.HalfLifeDays = DefaultHalfLives
	}
	if cfg.TierMultipliers == nil {
		cfg.TierMultipliers = DefaultTierMultipliers
	}
	if cfg.SourceTiers == nil {
		cfg.SourceTiers = DefaultSourceTiers
	}
	return &Gate{cfg: cfg}
}

// Evaluate scores the signals for one canonical key and decides the route.
// Empty input holds with zero confidence. A hard-kill signal rejects
// regardless of other evidence.
func (g *Gate) Evaluate(signals []model.Signal, now time.Time) Result {
	if len(signals) == 0 {
		return Result{
			Decision: DecisionHold,
			Reason:   "no signals",
		}
	}

	for _, s := range signals {
		if model.HardKillTypes[s.SignalType] {
			return Result{
				Decision:   DecisionReject,
				Confidence: 0,
				Reason:     fmt.Sprintf("hard kill signal: %s", s.SignalType),
			}
		}
	}

	breakdown := g.score(signals, now)

	multiSource := breakdown.SourcesChecked >= 2
	decision, status, reason := g.decide(breakdown.Overall, multiSource)

	return Result{
		Decision:        decision,
		Confidence:      breakdown.Overall,
		SuggestedStatus: status,
		Reason:          reason,
		MultiSource:     multiSource,
		Breakdown:       breakdown,
	}
}

func (g *Gate) score(signals []model.Signal, now time.Time) Breakdown {
	sourceSet := make(map[string]bool)
	for _, s := range signals {
		sourceSet[s.SourceAPI] = true
	}
	sources := make([]string, 0, len(sourceSet))
	for src := range sourceSet {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	// Anti-inflation: keep only the strongest post-decay contribution per
	// signal type, so a chatty collector can't dominate the score.
	bestByType := make(map[model.SignalType]Contribution)
	warningFlags := 0

	for _, s := range signals {
		warningFlags += len(s.WarningFlags)

		weight, ok := g.cfg.Weights[s.SignalType]
		if !ok {
			weight = defaultWeight
		}
		halfLife, ok := g.cfg.HalfLifeDays[s.SignalType]
		if !ok || halfLife <= 0 {
			halfLife = defaultHalfLife
		}

		ageDays := s.AgeDays(now)
		if ageDays < 0 {
			ageDays = 0
		}
		decay := math.Pow(0.5, ageDays/halfLife)
		tierMult := g.tierMultiplier(s.SourceAPI)

		c := Contribution{
			SignalID:     s.ID,
			SignalType:   s.SignalType,
			SourceAPI:    s.SourceAPI,
			Weight:       weight,
			DecayFactor:  decay,
			TierMult:     tierMult,
			Confidence:   s.Confidence,
			Contribution: weight * decay * tierMult * s.Confidence,
			AgeDays:      ageDays,
		}

		if prev, ok := bestByType[s.SignalType]; !ok || c.Contribution > prev.Contribution {
			bestByType[s.SignalType] = c
		}
	}

	// Base score is the raw sum of the counted contributions. Scaling
	// against the fixed weight budget happens below, so a type's weight
	// keeps its relative meaning even when it is the only type present.
	contributions := make([]Contribution, 0, len(bestByType))
	base := 0.0
	for _, c := range bestByType {
		contributions = append(contributions, c)
		base += c.Contribution
	}
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].Contribution > contributions[j].Contribution
	})

	multiBoost := 1.0
	switch {
	case len(sources) >= 3:
		multiBoost = 1.30
	case len(sources) == 2:
		multiBoost = 1.15
	}

	// Convergence of distinct evidence kinds is worth more than volume.
	convBoost := 1.0
	switch {
	case len(bestByType) >= 3:
		convBoost = 1.5
	case len(bestByType) == 2:
		convBoost = 1.2
	}

	penalty := float64(warningFlags) * warningFlagPenalty
	overall := (base/scoreWeightBudget)*multiBoost*convBoost - penalty

	if overall < 0 {
		overall = 0
	}
	if overall > MaxConfidence {
		overall = MaxConfidence
	}

	return Breakdown{
		Overall:          overall,
		BaseScore:        base,
		MultiSourceBoost: multiBoost,
		ConvergenceBoost: convBoost,
		WarningPenalty:   penalty,
		DistinctTypes:    len(bestByType),
		SourcesChecked:   len(sources),
		Sources:          sources,
		Contributions:    contributions,
	}
}

func (g *Gate) tierMultiplier(sourceAPI string) float64 {
	tier, ok := g.cfg.SourceTiers[sourceAPI]
	if !ok {
		return defaultTierMult
	}
	mult, ok := g.cfg.TierMultipliers[tier]
	if !ok {
		return defaultTierMult
	}
	return mult
}

func (g *Gate) decide(confidence float64, multiSource bool) (Decision, string, string) {
	if confidence >= g.cfg.HighThreshold {
		if multiSource {
			return DecisionAutoPush, g.cfg.AutoPushStatus,
				fmt.Sprintf("high confidence (%.2f) with multi-source corroboration", confidence)
		}
		if !g.cfg.StrictMode {
			return DecisionAutoPush, g.cfg.AutoPushStatus,
				fmt.Sprintf("high confidence (%.2f) from single source", confidence)
		}
		return DecisionNeedsReview, g.cfg.NeedsReviewStatus,
			fmt.Sprintf("high confidence (%.2f) but strict mode requires a second source", confidence)
	}

	if confidence >= g.cfg.MediumThreshold {
		return DecisionNeedsReview, g.cfg.NeedsReviewStatus,
			fmt.Sprintf("medium confidence (%.2f), needs verification", confidence)
	}

	return DecisionHold, "",
		fmt.Sprintf("low confidence (%.2f), waiting for more signals", confidence)
}

// Summary renders a one-line human explanation for the "Why Now" field.
func (r Result) Summary(p model.Prospect) string {
	types := make([]string, len(p.SignalTypes))
	for i, t := range p.SignalTypes {
		types[i] = string(t)
	}
	return fmt.Sprintf("%d signal(s) [%s] from %s; confidence %.2f; latest %s",
		len(p.Signals),
		strings.Join(types, ", "),
		strings.Join(p.SourceAPIs, ", "),
		r.Confidence,
		p.LastDetected.Format("2006-01-02"),
	)
}
