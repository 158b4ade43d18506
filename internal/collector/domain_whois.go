package collector

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

const domainFeedBaseURL = "https://api.newly-registered-domains.com/v1/domains"

// interestingTLDs are the startup-heavy TLDs worth watching.
var interestingTLDs = []string{".ai", ".io", ".dev", ".so"}

// DomainWhois collects fresh domain registrations from a newly-registered
// domains feed, filtered to startup-heavy TLDs.
type DomainWhois struct {
	fetcher fetcher.Fetcher
	baseURL string
}

// NewDomainWhois creates the domain registration collector.
func NewDomainWhois(f fetcher.Fetcher) *DomainWhois {
	return &DomainWhois{fetcher: f, baseURL: domainFeedBaseURL}
}

func (c *DomainWhois) Name() string { return "domain_whois" }

func (c *DomainWhois) Open(ctx context.Context) error { return nil }

func (c *DomainWhois) Close() error { return nil }

// Ping checks the feed endpoint.
func (c *DomainWhois) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL)
}

type domainFeedResponse struct {
	Domains []struct {
		Domain       string   `json:"domain"`
		RegisteredAt string   `json:"registered_at"`
		Registrant   string   `json:"registrant"`
		Nameservers  []string `json:"nameservers"`
	} `json:"domains"`
}

// Collect fetches registrations from the feed and keeps the watched TLDs.
func (c *DomainWhois) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	now := time.Now().UTC()
	from := now.Add(-opts.Lookback)
	endpoint := c.baseURL + "?from=" + from.Format("2006-01-02")

	var resp domainFeedResponse
	if err := c.fetcher.GetJSON(ctx, c.Name(), endpoint, nil, &resp); err != nil {
		return nil, eris.Wrap(err, "domain_whois: fetch registrations")
	}

	var signals []model.Signal
	for _, d := range resp.Domains {
		if !hasInterestingTLD(d.Domain) {
			continue
		}

		// An underivable identity still ships with an empty key; the
		// framework rejects it and counts it under errors.
		key, _ := canonical.Primary(canonical.Evidence{Website: d.Domain})

		detectedAt, err := time.Parse("2006-01-02", d.RegisteredAt)
		if err != nil {
			detectedAt = now
		}

		// Registrations with no nameservers yet are parked, not building.
		var flags []string
		if len(d.Nameservers) == 0 {
			flags = append(flags, "no_nameservers")
		}

		signals = append(signals, model.Signal{
			SignalType:   model.SignalDomainRegistration,
			SourceAPI:    c.Name(),
			CanonicalKey: key,
			Confidence:   0.6,
			RawData: map[string]any{
				"domain":      d.Domain,
				"registrant":  d.Registrant,
				"nameservers": d.Nameservers,
			},
			WarningFlags: flags,
			DetectedAt:   detectedAt,
			SourceURL:    "https://rdap.org/domain/" + d.Domain,
		})
	}

	return signals, nil
}

func hasInterestingTLD(domain string) bool {
	d := strings.ToLower(domain)
	for _, tld := range interestingTLDs {
		if strings.HasSuffix(d, tld) {
			return true
		}
	}
	return false
}
