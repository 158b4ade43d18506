package collector

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

const secEdgarSearchURL = "https://efts.sec.gov/LATEST/search-index"

// SECEdgar collects Form D (exempt offering) filings from EDGAR full-text
// search. A fresh Form D is a funding event.
type SECEdgar struct {
	fetcher fetcher.Fetcher
	baseURL string
}

// NewSECEdgar creates the EDGAR collector.
func NewSECEdgar(f fetcher.Fetcher) *SECEdgar {
	return &SECEdgar{fetcher: f, baseURL: secEdgarSearchURL}
}

func (c *SECEdgar) Name() string { return "sec_edgar" }

func (c *SECEdgar) Open(ctx context.Context) error { return nil }

func (c *SECEdgar) Close() error { return nil }

// Ping checks the EDGAR search endpoint.
func (c *SECEdgar) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL)
}

type edgarSearchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string `json:"_id"`
			Source struct {
				DisplayNames []string `json:"display_names"`
				FileDate     string   `json:"file_date"`
				FileType     string   `json:"file_type"`
				CIKs         []string `json:"ciks"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Collect fetches Form D filings inside the lookback window.
func (c *SECEdgar) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	now := time.Now().UTC()
	from := now.Add(-opts.Lookback)

	q := url.Values{}
	q.Set("forms", "D")
	q.Set("startdt", from.Format("2006-01-02"))
	q.Set("enddt", now.Format("2006-01-02"))
	endpoint := c.baseURL + "?" + q.Encode()

	var resp edgarSearchResponse
	if err := c.fetcher.GetJSON(ctx, c.Name(), endpoint, nil, &resp); err != nil {
		return nil, eris.Wrap(err, "sec_edgar: search form d filings")
	}

	var signals []model.Signal
	for _, hit := range resp.Hits.Hits {
		if len(hit.Source.DisplayNames) == 0 {
			continue
		}
		name := hit.Source.DisplayNames[0]

		detectedAt, err := time.Parse("2006-01-02", hit.Source.FileDate)
		if err != nil {
			detectedAt = now
		}

		// An underivable identity still ships with an empty key; the
		// framework rejects it and counts it under errors.
		key, _ := canonical.Primary(canonical.Evidence{
			CompanyName: name,
			Region:      "us",
		})

		raw := map[string]any{
			"company_name": name,
			"file_type":    hit.Source.FileType,
			"filing_id":    hit.ID,
		}
		if len(hit.Source.CIKs) > 0 {
			raw["cik"] = hit.Source.CIKs[0]
		}

		signals = append(signals, model.Signal{
			SignalType:   model.SignalFundingEvent,
			SourceAPI:    c.Name(),
			CanonicalKey: key,
			CompanyName:  name,
			Confidence:   0.9,
			RawData:      raw,
			DetectedAt:   detectedAt,
			SourceURL:    fmt.Sprintf("https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany&filenum=%s", url.QueryEscape(hit.ID)),
		})
	}

	return signals, nil
}
