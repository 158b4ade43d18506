package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

const productHuntBaseURL = "https://api.producthunt.com/v1"

// ProductHunt collects product launches from the Product Hunt posts API.
type ProductHunt struct {
	fetcher fetcher.Fetcher
	baseURL string
	token   string
}

// NewProductHunt creates the Product Hunt collector.
func NewProductHunt(f fetcher.Fetcher) *ProductHunt {
	return &ProductHunt{fetcher: f, baseURL: productHuntBaseURL}
}

// WithToken sets the developer token.
func (c *ProductHunt) WithToken(token string) *ProductHunt {
	c.token = token
	return c
}

func (c *ProductHunt) Name() string { return "product_hunt" }

func (c *ProductHunt) Open(ctx context.Context) error { return nil }

func (c *ProductHunt) Close() error { return nil }

// Ping checks the posts endpoint.
func (c *ProductHunt) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL+"/posts")
}

type productHuntResponse struct {
	Posts []struct {
		ID          int    `json:"id"`
		Name        string `json:"name"`
		Tagline     string `json:"tagline"`
		RedirectURL string `json:"redirect_url"`
		VotesCount  int    `json:"votes_count"`
		CreatedAt   string `json:"created_at"`
		Website     string `json:"website"`
	} `json:"posts"`
}

// Collect fetches launches day by day across the lookback window.
func (c *ProductHunt) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	days := int(opts.Lookback.Hours()/24) + 1
	if days > 14 {
		days = 14
	}

	headers := map[string]string{}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	var signals []model.Signal
	for day := range days {
		date := time.Now().UTC().AddDate(0, 0, -day).Format("2006-01-02")
		endpoint := c.baseURL + "/posts?day=" + date

		var resp productHuntResponse
		if err := c.fetcher.GetJSON(ctx, c.Name(), endpoint, headers, &resp); err != nil {
			return signals, eris.Wrapf(err, "product_hunt: fetch posts for %s", date)
		}

		for _, post := range resp.Posts {
			website := post.Website
			if website == "" {
				website = post.RedirectURL
			}

			// An underivable identity still ships with an empty key;
			// the framework rejects it and counts it under errors.
			key, _ := canonical.Primary(canonical.Evidence{
				Website:     website,
				CompanyName: post.Name,
			})

			detectedAt, err := time.Parse(time.RFC3339, post.CreatedAt)
			if err != nil {
				detectedAt = time.Now().UTC()
			}

			confidence := 0.5 + float64(post.VotesCount)/1000
			if confidence > 0.8 {
				confidence = 0.8
			}

			signals = append(signals, model.Signal{
				SignalType:   model.SignalProductLaunch,
				SourceAPI:    c.Name(),
				CanonicalKey: key,
				CompanyName:  post.Name,
				Confidence:   confidence,
				RawData: map[string]any{
					"name":    post.Name,
					"tagline": post.Tagline,
					"votes":   post.VotesCount,
					"website": website,
				},
				DetectedAt: detectedAt,
				SourceURL:  post.RedirectURL,
			})
		}
	}

	return signals, nil
}
