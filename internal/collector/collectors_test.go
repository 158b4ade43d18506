package collector

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presson-ventures/discovery-cli/internal/model"
)

// fakeFetcher serves canned payloads keyed by URL substring.
type fakeFetcher struct {
	responses map[string]string
	requests  []string
}

func (f *fakeFetcher) payloadFor(rawURL string) (string, bool) {
	f.requests = append(f.requests, rawURL)
	for needle, payload := range f.responses {
		if strings.Contains(rawURL, needle) {
			return payload, true
		}
	}
	return "", false
}

func (f *fakeFetcher) Get(ctx context.Context, source, rawURL string, headers map[string]string) (io.ReadCloser, error) {
	payload, ok := f.payloadFor(rawURL)
	if !ok {
		payload = "{}"
	}
	return io.NopCloser(strings.NewReader(payload)), nil
}

func (f *fakeFetcher) GetJSON(ctx context.Context, source, rawURL string, headers map[string]string, out any) error {
	payload, ok := f.payloadFor(rawURL)
	if !ok {
		payload = "{}"
	}
	return json.Unmarshal([]byte(payload), out)
}

func (f *fakeFetcher) Head(ctx context.Context, source, rawURL string) error {
	return nil
}

func recentDate(daysAgo int) string {
	return time.Now().UTC().AddDate(0, 0, -daysAgo).Format("2006-01-02")
}

func recentRFC3339(daysAgo int) string {
	return time.Now().UTC().AddDate(0, 0, -daysAgo).Format(time.RFC3339)
}

func TestGitHubCollectParsesRepos(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		"search/repositories": `{
			"total_count": 2,
			"items": [
				{
					"full_name": "acme-ai/inference-server",
					"homepage": "https://acme.ai",
					"stargazers_count": 250,
					"created_at": "` + recentRFC3339(3) + `",
					"topics": ["ai", "inference"],
					"owner": {"login": "acme-ai", "type": "Organization"}
				},
				{
					"full_name": "someone/dotfiles",
					"homepage": "",
					"stargazers_count": 80,
					"created_at": "` + recentRFC3339(2) + `",
					"owner": {"login": "someone", "type": "User"}
				}
			]
		}`,
	}}

	c := NewGitHub(f)
	signals, err := c.Collect(context.Background(), Options{Lookback: 7 * 24 * time.Hour})
	require.NoError(t, err)
	require.Len(t, signals, 2)

	// Org repo with a homepage keys on the domain.
	assert.Equal(t, "domain:acme.ai", signals[0].CanonicalKey)
	assert.Equal(t, model.SignalGitHubSpike, signals[0].SignalType)
	assert.Equal(t, "github", signals[0].SourceAPI)
	assert.InDelta(t, 0.9, signals[0].Confidence, 0.001) // 0.5 + 250/500, capped

	// Personal repo without a homepage falls back to the repo key.
	assert.Equal(t, "github_repo:someone/dotfiles", signals[1].CanonicalKey)
}

func TestCompaniesHouseCollectEmitsIncorporationsAndKills(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		"company_status=active": `{
			"items": [
				{
					"company_name": "STEALTH ROBOTICS LTD",
					"company_number": "15234567",
					"company_status": "active",
					"date_of_creation": "` + recentDate(2) + `",
					"registered_office_address": {"locality": "London"},
					"sic_codes": ["62012"]
				},
				{
					"company_name": "",
					"company_number": "-",
					"company_status": "active",
					"date_of_creation": "` + recentDate(2) + `"
				}
			]
		}`,
		"company_status=dissolved": `{
			"items": [{
				"company_name": "FAILED VENTURES LTD",
				"company_number": "09876543",
				"company_status": "dissolved",
				"date_of_cessation": "` + recentDate(1) + `"
			}]
		}`,
	}}

	c := NewCompaniesHouse(f)
	signals, err := c.Collect(context.Background(), Options{Lookback: 7 * 24 * time.Hour})
	require.NoError(t, err)
	require.Len(t, signals, 3)

	assert.Equal(t, model.SignalIncorporation, signals[0].SignalType)
	assert.Equal(t, "companies_house:15234567", signals[0].CanonicalKey)
	assert.Equal(t, "STEALTH ROBOTICS LTD", signals[0].CompanyName)
	assert.InDelta(t, 0.95, signals[0].Confidence, 0.001)

	// An item whose identity can't be derived is still emitted with an
	// empty key so the framework counts the drop.
	assert.Empty(t, signals[1].CanonicalKey)

	assert.Equal(t, model.SignalCompanyDissolved, signals[2].SignalType)
	assert.Equal(t, "companies_house:09876543", signals[2].CanonicalKey)
	assert.InDelta(t, 1.0, signals[2].Confidence, 0.001)
}

func TestHackerNewsCollectFiltersAndKeys(t *testing.T) {
	now := time.Now().UTC()
	f := &fakeFetcher{responses: map[string]string{
		"search_by_date": `{
			"hits": [
				{
					"objectID": "41001",
					"title": "Show HN: Foo – realtime vector search",
					"url": "https://foo.io/launch",
					"points": 120,
					"created_at_i": ` + itoa64(now.Add(-24*time.Hour).Unix()) + `,
					"author": "founder1"
				},
				{
					"objectID": "41002",
					"title": "Show HN: My weekend project",
					"url": "",
					"points": 40,
					"created_at_i": ` + itoa64(now.Add(-12*time.Hour).Unix()) + `
				}
			]
		}`,
	}}

	c := NewHackerNews(f)
	signals, err := c.Collect(context.Background(), Options{Lookback: 3 * 24 * time.Hour})
	require.NoError(t, err)
	require.Len(t, signals, 1)

	assert.Equal(t, "domain:foo.io", signals[0].CanonicalKey)
	assert.Equal(t, model.SignalHNMention, signals[0].SignalType)
	assert.Equal(t, "Foo", signals[0].CompanyName)
	assert.Equal(t, "https://news.ycombinator.com/item?id=41001", signals[0].SourceURL)
}

func TestJobPostingsAggregatesByCompany(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		"remoteok": `[
			{"id": "1", "company": "Acme", "company_url": "https://acme.ai", "position": "ML Engineer", "date": "` + recentRFC3339(1) + `"},
			{"id": "2", "company": "Acme", "company_url": "https://acme.ai", "position": "Platform Engineer", "date": "` + recentRFC3339(2) + `"},
			{"id": "3", "company": "Acme", "company_url": "https://acme.ai", "position": "Designer", "date": "` + recentRFC3339(1) + `"},
			{"id": "4", "company": "Tiny Co", "company_url": "https://tiny.dev", "position": "Founder Eng", "date": "` + recentRFC3339(3) + `"},
			{"id": "5", "company": "Stale Co", "company_url": "https://stale.io", "position": "Eng", "date": "2020-01-01T00:00:00Z"}
		]`,
	}}

	c := NewJobPostings(f)
	signals, err := c.Collect(context.Background(), Options{Lookback: 7 * 24 * time.Hour})
	require.NoError(t, err)
	require.Len(t, signals, 2)

	byKey := map[string]model.Signal{}
	for _, s := range signals {
		byKey[s.CanonicalKey] = s
	}

	acme := byKey["domain:acme.ai"]
	// Three openings at once reads as funded hiring.
	assert.Equal(t, model.SignalHiring, acme.SignalType)
	assert.Equal(t, 3, acme.RawData["total_positions"])

	tiny := byKey["domain:tiny.dev"]
	assert.Equal(t, model.SignalJobPosting, tiny.SignalType)
}

func TestDomainWhoisFiltersTLDsAndFlagsParked(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		"newly-registered": `{
			"domains": [
				{"domain": "stealthco.ai", "registered_at": "` + recentDate(1) + `", "nameservers": ["ns1.vercel-dns.com"]},
				{"domain": "parked.io", "registered_at": "` + recentDate(1) + `", "nameservers": []},
				{"domain": "random.biz", "registered_at": "` + recentDate(1) + `"}
			]
		}`,
	}}

	c := NewDomainWhois(f)
	signals, err := c.Collect(context.Background(), Options{Lookback: 3 * 24 * time.Hour})
	require.NoError(t, err)
	require.Len(t, signals, 2)

	assert.Equal(t, "domain:stealthco.ai", signals[0].CanonicalKey)
	assert.Empty(t, signals[0].WarningFlags)

	assert.Equal(t, "domain:parked.io", signals[1].CanonicalKey)
	assert.Equal(t, []string{"no_nameservers"}, signals[1].WarningFlags)
}

func TestRegistryNamesAndSelect(t *testing.T) {
	f := &fakeFetcher{}
	r := NewRegistry(f)

	names := r.AllNames()
	assert.Equal(t, []string{
		"sec_edgar", "companies_house", "uspto",
		"github", "github_activity", "domain_whois",
		"hacker_news", "product_hunt", "job_postings", "arxiv",
	}, names)

	selected, err := r.Select([]string{"github", "arxiv"})
	require.NoError(t, err)
	require.Len(t, selected, 2)
	assert.Equal(t, "github", selected[0].Name())

	_, err = r.Select([]string{"nope"})
	assert.Error(t, err)

	all, err := r.Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(names))
}

func itoa64(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
