package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildProspectAggregates(t *testing.T) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	signals := []Signal{
		{
			SignalType: SignalGitHubSpike, SourceAPI: "github",
			CanonicalKey: "domain:foo.io", CompanyName: "Foo",
			RawData:    map[string]any{"stars": 100, "website": "https://foo.io"},
			DetectedAt: base.Add(48 * time.Hour),
		},
		{
			SignalType: SignalIncorporation, SourceAPI: "companies_house",
			CanonicalKey: "domain:foo.io", CompanyName: "Foo Ltd",
			RawData:    map[string]any{"stars": 5, "company_number": "123"},
			DetectedAt: base,
		},
	}

	p := BuildProspect("domain:foo.io", signals)

	assert.Equal(t, "domain:foo.io", p.CanonicalKey)
	assert.ElementsMatch(t, []SignalType{SignalGitHubSpike, SignalIncorporation}, p.SignalTypes)
	assert.ElementsMatch(t, []string{"github", "companies_house"}, p.SourceAPIs)
	assert.True(t, p.IsMultiSource)
	assert.Equal(t, base, p.FirstDetected)
	assert.Equal(t, base.Add(48*time.Hour), p.LastDetected)

	// Latest signal wins raw-data conflicts.
	assert.Equal(t, 100, p.MergedRawData["stars"])
	assert.Equal(t, "123", p.MergedRawData["company_number"])

	// Newest signal carrying a name wins.
	assert.Equal(t, "Foo", p.CompanyName())
}

func TestBuildProspectSingleSource(t *testing.T) {
	signals := []Signal{
		{SignalType: SignalHNMention, SourceAPI: "hacker_news", CanonicalKey: "domain:bar.io",
			DetectedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
		{SignalType: SignalProductLaunch, SourceAPI: "hacker_news", CanonicalKey: "domain:bar.io",
			DetectedAt: time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)},
	}
	p := BuildProspect("domain:bar.io", signals)
	assert.False(t, p.IsMultiSource)
	assert.Len(t, p.SignalTypes, 2)
}

func TestSuppressionEntryExpired(t *testing.T) {
	now := time.Now().UTC()
	e := SuppressionEntry{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, e.Expired(now))
	assert.True(t, e.Expired(now.Add(2*time.Hour)))
	assert.True(t, e.Expired(e.ExpiresAt))
}

func TestSignalAgeDays(t *testing.T) {
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	s := Signal{DetectedAt: now.Add(-36 * time.Hour)}
	assert.InDelta(t, 1.5, s.AgeDays(now), 0.001)
}
