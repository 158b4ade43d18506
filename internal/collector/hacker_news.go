package collector

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

const hnSearchBaseURL = "https://hn.algolia.com/api/v1"

// HackerNews collects Show HN launches via the Algolia search API.
type HackerNews struct {
	fetcher   fetcher.Fetcher
	baseURL   string
	minPoints int
}

// NewHackerNews creates the Hacker News collector.
func NewHackerNews(f fetcher.Fetcher) *HackerNews {
	return &HackerNews{fetcher: f, baseURL: hnSearchBaseURL, minPoints: 10}
}

func (c *HackerNews) Name() string { return "hacker_news" }

func (c *HackerNews) Open(ctx context.Context) error { return nil }

func (c *HackerNews) Close() error { return nil }

// Ping checks the search endpoint.
func (c *HackerNews) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL+"/search?query=ping&hitsPerPage=1")
}

type hnSearchResponse struct {
	Hits []struct {
		ObjectID   string `json:"objectID"`
		Title      string `json:"title"`
		URL        string `json:"url"`
		Points     int    `json:"points"`
		CreatedAtI int64  `json:"created_at_i"`
		Author     string `json:"author"`
	} `json:"hits"`
}

// Collect fetches Show HN posts inside the lookback window.
func (c *HackerNews) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	from := time.Now().UTC().Add(-opts.Lookback)

	q := url.Values{}
	q.Set("tags", "show_hn")
	q.Set("numericFilters", fmt.Sprintf("created_at_i>%d,points>%d", from.Unix(), c.minPoints))
	q.Set("hitsPerPage", "100")
	endpoint := c.baseURL + "/search_by_date?" + q.Encode()

	var resp hnSearchResponse
	if err := c.fetcher.GetJSON(ctx, c.Name(), endpoint, nil, &resp); err != nil {
		return nil, eris.Wrap(err, "hacker_news: search show hn")
	}

	var signals []model.Signal
	for _, hit := range resp.Hits {
		// Launches without a product link can't be tied to a company.
		if hit.URL == "" {
			continue
		}

		// An underivable identity still ships with an empty key; the
		// framework rejects it and counts it under errors.
		key, _ := canonical.Primary(canonical.Evidence{
			Website:     hit.URL,
			CompanyName: stripShowHN(hit.Title),
		})

		// Skip link aggregator hosts that don't identify the company.
		if strings.HasPrefix(key, "domain:github.com") ||
			strings.HasPrefix(key, "domain:youtube.com") {
			continue
		}

		confidence := 0.4 + float64(hit.Points)/500
		if confidence > 0.75 {
			confidence = 0.75
		}

		signals = append(signals, model.Signal{
			SignalType:   model.SignalHNMention,
			SourceAPI:    c.Name(),
			CanonicalKey: key,
			CompanyName:  stripShowHN(hit.Title),
			Confidence:   confidence,
			RawData: map[string]any{
				"title":   hit.Title,
				"url":     hit.URL,
				"points":  hit.Points,
				"author":  hit.Author,
				"item_id": hit.ObjectID,
			},
			DetectedAt: time.Unix(hit.CreatedAtI, 0).UTC(),
			SourceURL:  "https://news.ycombinator.com/item?id=" + hit.ObjectID,
		})
	}

	return signals, nil
}

func stripShowHN(title string) string {
	t := strings.TrimSpace(title)
	t = strings.TrimPrefix(t, "Show HN:")
	if i := strings.IndexAny(t, "–—-"); i > 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
