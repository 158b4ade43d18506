package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

const jobBoardBaseURL = "https://remoteok.com/api"

// JobPostings collects early-stage hiring signals from a public job board
// feed, aggregating postings per company.
type JobPostings struct {
	fetcher fetcher.Fetcher
	baseURL string
}

// NewJobPostings creates the job board collector.
func NewJobPostings(f fetcher.Fetcher) *JobPostings {
	return &JobPostings{fetcher: f, baseURL: jobBoardBaseURL}
}

func (c *JobPostings) Name() string { return "job_postings" }

func (c *JobPostings) Open(ctx context.Context) error { return nil }

func (c *JobPostings) Close() error { return nil }

// Ping checks the feed endpoint.
func (c *JobPostings) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL)
}

type jobPosting struct {
	ID         string   `json:"id"`
	Company    string   `json:"company"`
	CompanyURL string   `json:"company_url"`
	Position   string   `json:"position"`
	Tags       []string `json:"tags"`
	Date       string   `json:"date"`
	Location   string   `json:"location"`
}

// Collect fetches the feed and groups postings by company; a company with
// several fresh postings emits one hiring signal.
func (c *JobPostings) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	var postings []jobPosting
	if err := c.fetcher.GetJSON(ctx, c.Name(), c.baseURL, nil, &postings); err != nil {
		return nil, eris.Wrap(err, "job_postings: fetch feed")
	}

	cutoff := time.Now().UTC().Add(-opts.Lookback)

	type companyAgg struct {
		posting   jobPosting
		count     int
		latest    time.Time
		positions []string
	}
	byCompany := make(map[string]*companyAgg)

	for _, p := range postings {
		if p.Company == "" {
			continue
		}
		postedAt, err := time.Parse(time.RFC3339, p.Date)
		if err != nil || postedAt.Before(cutoff) {
			continue
		}

		agg, ok := byCompany[p.Company]
		if !ok {
			agg = &companyAgg{posting: p}
			byCompany[p.Company] = agg
		}
		agg.count++
		agg.positions = append(agg.positions, p.Position)
		if postedAt.After(agg.latest) {
			agg.latest = postedAt
		}
	}

	var signals []model.Signal
	for company, agg := range byCompany {
		// An underivable identity still ships with an empty key; the
		// framework rejects it and counts it under errors.
		key, _ := canonical.Primary(canonical.Evidence{
			Website:     agg.posting.CompanyURL,
			CompanyName: company,
			Region:      agg.posting.Location,
		})

		signalType := model.SignalJobPosting
		confidence := 0.45
		if agg.count >= 3 {
			// Several simultaneous openings reads as funded hiring.
			signalType = model.SignalHiring
			confidence = 0.7
		}

		signals = append(signals, model.Signal{
			SignalType:   signalType,
			SourceAPI:    c.Name(),
			CanonicalKey: key,
			CompanyName:  company,
			Confidence:   confidence,
			RawData: map[string]any{
				"company":         company,
				"company_url":     agg.posting.CompanyURL,
				"total_positions": agg.count,
				"positions":       agg.positions,
				"location":        agg.posting.Location,
			},
			DetectedAt: agg.latest,
			SourceURL:  c.baseURL,
		})
	}

	return signals, nil
}
