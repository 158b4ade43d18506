// Package model defines the core domain types shared across the discovery
// pipeline: signals, processing records, suppression entries, and the
// transient prospect aggregation built by the pusher.
package model

import (
	"time"
)

// SignalType identifies the kind of event a collector observed.
type SignalType string

const (
	SignalIncorporation      SignalType = "incorporation"
	SignalFundingEvent       SignalType = "funding_event"
	SignalGitHubSpike        SignalType = "github_spike"
	SignalGitHubActivity     SignalType = "github_activity"
	SignalDomainRegistration SignalType = "domain_registration"
	SignalPatentFiling       SignalType = "patent_filing"
	SignalProductLaunch      SignalType = "product_launch"
	SignalHNMention          SignalType = "hn_mention"
	SignalResearchPaper      SignalType = "research_paper"
	SignalJobPosting         SignalType = "job_posting"
	SignalHiring             SignalType = "hiring_signal"
	SignalCompanyDissolved   SignalType = "company_dissolved"
)

// HardKillTypes are signal types that unconditionally reject a prospect.
var HardKillTypes = map[SignalType]bool{
	SignalCompanyDissolved: true,
}

// Signal is one observed event from an external source, tied to a company
// via its canonical key. Signals are immutable once stored.
type Signal struct {
	ID           int64          `json:"id"`
	SignalType   SignalType     `json:"signal_type"`
	SourceAPI    string         `json:"source_api"`
	CanonicalKey string         `json:"canonical_key"`
	CompanyName  string         `json:"company_name,omitempty"`
	Confidence   float64        `json:"confidence"`
	RawData      map[string]any `json:"raw_data"`
	DetectedAt   time.Time      `json:"detected_at"`
	CreatedAt    time.Time      `json:"created_at"`

	// Provenance
	SourceURL          string `json:"source_url,omitempty"`
	SourceResponseHash string `json:"source_response_hash,omitempty"`

	// WarningFlags are collector-provided caveats that penalize confidence.
	WarningFlags []string `json:"warning_flags,omitempty"`

	// Processing state, populated when loaded with a join.
	Processing *ProcessingRecord `json:"processing,omitempty"`
}

// AgeDays returns the signal's age relative to now, in fractional days.
func (s Signal) AgeDays(now time.Time) float64 {
	return now.Sub(s.DetectedAt).Hours() / 24
}

// ProcessingStatus is the lifecycle state of a signal's processing record.
type ProcessingStatus string

const (
	StatusPending  ProcessingStatus = "pending"
	StatusPushed   ProcessingStatus = "pushed"
	StatusRejected ProcessingStatus = "rejected"
)

// ProcessingRecord tracks whether a signal has been pushed to the CRM or
// rejected. Created atomically with its signal, mutated exactly once.
type ProcessingRecord struct {
	ID           int64            `json:"id"`
	SignalID     int64            `json:"signal_id"`
	Status       ProcessingStatus `json:"status"`
	CRMPageID    string           `json:"crm_page_id,omitempty"`
	ProcessedAt  *time.Time       `json:"processed_at,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Metadata     map[string]any   `json:"metadata,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// SuppressionEntry mirrors one CRM record in the local suppression cache.
type SuppressionEntry struct {
	CanonicalKey string         `json:"canonical_key"`
	CRMPageID    string         `json:"crm_page_id"`
	Status       string         `json:"status"`
	CompanyName  string         `json:"company_name,omitempty"`
	CachedAt     time.Time      `json:"cached_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the entry is past its TTL at the given instant.
func (e SuppressionEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Prospect aggregates all signals sharing one canonical key. It is built by
// the pusher and never persisted.
type Prospect struct {
	CanonicalKey  string
	Signals       []Signal
	SignalTypes   []SignalType
	SourceAPIs    []string
	MergedRawData map[string]any
	FirstDetected time.Time
	LastDetected  time.Time
	IsMultiSource bool
}

// BuildProspect assembles a Prospect from signals that all carry the same
// canonical key. Raw data is merged with the latest signal winning on
// key conflicts.
func BuildProspect(canonicalKey string, signals []Signal) Prospect {
	p := Prospect{
		CanonicalKey:  canonicalKey,
		Signals:       signals,
		MergedRawData: make(map[string]any),
	}

	typeSeen := make(map[SignalType]bool)
	sourceSeen := make(map[string]bool)

	// Merge oldest-first so newer values overwrite older ones.
	ordered := make([]Signal, len(signals))
	copy(ordered, signals)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].DetectedAt.Before(ordered[j-1].DetectedAt); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	for _, s := range ordered {
		if !typeSeen[s.SignalType] {
			typeSeen[s.SignalType] = true
			p.SignalTypes = append(p.SignalTypes, s.SignalType)
		}
		if !sourceSeen[s.SourceAPI] {
			sourceSeen[s.SourceAPI] = true
			p.SourceAPIs = append(p.SourceAPIs, s.SourceAPI)
		}
		for k, v := range s.RawData {
			p.MergedRawData[k] = v
		}
		if p.FirstDetected.IsZero() || s.DetectedAt.Before(p.FirstDetected) {
			p.FirstDetected = s.DetectedAt
		}
		if s.DetectedAt.After(p.LastDetected) {
			p.LastDetected = s.DetectedAt
		}
	}

	p.IsMultiSource = len(p.SourceAPIs) >= 2
	return p
}

// CompanyName returns the best-known company name from the newest signal
// that carries one.
func (p Prospect) CompanyName() string {
	name := ""
	var nameAt time.Time
	for _, s := range p.Signals {
		if s.CompanyName != "" && (name == "" || s.DetectedAt.After(nameAt)) {
			name = s.CompanyName
			nameAt = s.DetectedAt
		}
	}
	return name
}
