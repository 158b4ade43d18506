package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

const usptoBaseURL = "https://search.patentsview.org/api/v1/patent/"

// USPTO collects fresh patent grants via the PatentsView API, keyed by
// assignee organization.
type USPTO struct {
	fetcher fetcher.Fetcher
	baseURL string
}

// NewUSPTO creates the patent collector.
func NewUSPTO(f fetcher.Fetcher) *USPTO {
	return &USPTO{fetcher: f, baseURL: usptoBaseURL}
}

func (c *USPTO) Name() string { return "uspto" }

func (c *USPTO) Open(ctx context.Context) error { return nil }

func (c *USPTO) Close() error { return nil }

// Ping checks the API endpoint.
func (c *USPTO) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL)
}

type usptoResponse struct {
	Patents []struct {
		PatentID    string `json:"patent_id"`
		PatentTitle string `json:"patent_title"`
		PatentDate  string `json:"patent_date"`
		Assignees   []struct {
			Organization string `json:"assignee_organization"`
			City         string `json:"assignee_city"`
		} `json:"assignees"`
	} `json:"patents"`
}

// Collect fetches patents granted inside the lookback window.
func (c *USPTO) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	now := time.Now().UTC()
	from := now.Add(-opts.Lookback)

	query := map[string]any{
		"_gte": map[string]string{"patent_date": from.Format("2006-01-02")},
	}
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, eris.Wrap(err, "uspto: marshal query")
	}
	fields := `["patent_id","patent_title","patent_date","assignees.assignee_organization","assignees.assignee_city"]`

	q := url.Values{}
	q.Set("q", string(queryJSON))
	q.Set("f", fields)
	endpoint := c.baseURL + "?" + q.Encode()

	var resp usptoResponse
	if err := c.fetcher.GetJSON(ctx, c.Name(), endpoint, nil, &resp); err != nil {
		return nil, eris.Wrap(err, "uspto: search patents")
	}

	var signals []model.Signal
	for _, patent := range resp.Patents {
		if len(patent.Assignees) == 0 || patent.Assignees[0].Organization == "" {
			continue
		}
		assignee := patent.Assignees[0]

		// An underivable identity still ships with an empty key; the
		// framework rejects it and counts it under errors.
		key, _ := canonical.Primary(canonical.Evidence{
			CompanyName: assignee.Organization,
			Region:      assignee.City,
		})

		detectedAt, err := time.Parse("2006-01-02", patent.PatentDate)
		if err != nil {
			detectedAt = now
		}

		signals = append(signals, model.Signal{
			SignalType:   model.SignalPatentFiling,
			SourceAPI:    c.Name(),
			CanonicalKey: key,
			CompanyName:  assignee.Organization,
			Confidence:   0.8,
			RawData: map[string]any{
				"patent_id":    patent.PatentID,
				"patent_title": patent.PatentTitle,
				"assignee":     assignee.Organization,
				"city":         assignee.City,
			},
			DetectedAt: detectedAt,
			SourceURL:  fmt.Sprintf("https://patents.google.com/patent/US%s", patent.PatentID),
		})
	}

	return signals, nil
}
