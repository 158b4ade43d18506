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

const githubAPIBaseURL = "https://api.github.com"

// githubRepo is the subset of the repository search payload we read.
type githubRepo struct {
	FullName        string   `json:"full_name"`
	Homepage        string   `json:"homepage"`
	StargazersCount int      `json:"stargazers_count"`
	CreatedAt       string   `json:"created_at"`
	PushedAt        string   `json:"pushed_at"`
	Topics          []string `json:"topics"`
	Owner           struct {
		Login string `json:"login"`
		Type  string `json:"type"`
	} `json:"owner"`
}

type githubSearchResponse struct {
	TotalCount int          `json:"total_count"`
	Items      []githubRepo `json:"items"`
}

// GitHub collects star spikes on recently created repositories — the
// classic stealth dev-tool signal.
type GitHub struct {
	fetcher  fetcher.Fetcher
	baseURL  string
	minStars int
}

// NewGitHub creates the GitHub spike collector.
func NewGitHub(f fetcher.Fetcher) *GitHub {
	return &GitHub{fetcher: f, baseURL: githubAPIBaseURL, minStars: 50}
}

func (c *GitHub) Name() string { return "github" }

func (c *GitHub) Open(ctx context.Context) error { return nil }

func (c *GitHub) Close() error { return nil }

// Ping checks the API root.
func (c *GitHub) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL)
}

// Collect searches for repositories created inside the lookback window that
// already crossed the star threshold.
func (c *GitHub) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	from := time.Now().UTC().Add(-opts.Lookback)

	q := url.Values{}
	q.Set("q", fmt.Sprintf("created:>%s stars:>%d", from.Format("2006-01-02"), c.minStars))
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", "100")
	endpoint := c.baseURL + "/search/repositories?" + q.Encode()

	var resp githubSearchResponse
	if err := c.fetcher.GetJSON(ctx, c.Name(), endpoint, nil, &resp); err != nil {
		return nil, eris.Wrap(err, "github: search repositories")
	}

	var signals []model.Signal
	for _, repo := range resp.Items {
		signals = append(signals, c.toSignal(repo))
	}
	return signals, nil
}

func (c *GitHub) toSignal(repo githubRepo) model.Signal {
	ev := canonical.Evidence{
		Website:    repo.Homepage,
		GitHubRepo: repo.FullName,
	}
	if repo.Owner.Type == "Organization" {
		ev.GitHubOrg = repo.Owner.Login
		ev.CompanyName = repo.Owner.Login
	}

	// An underivable identity still ships with an empty key; the
	// framework rejects it and counts it under errors.
	key, _ := canonical.Primary(ev)

	detectedAt, err := time.Parse(time.RFC3339, repo.CreatedAt)
	if err != nil {
		detectedAt = time.Now().UTC()
	}

	// Scale belief with star velocity; a hundred-star week is strong.
	confidence := 0.5 + float64(repo.StargazersCount)/500
	if confidence > 0.9 {
		confidence = 0.9
	}

	return model.Signal{
		SignalType:   model.SignalGitHubSpike,
		SourceAPI:    c.Name(),
		CanonicalKey: key,
		CompanyName:  repo.Owner.Login,
		Confidence:   confidence,
		RawData: map[string]any{
			"github_repo": repo.FullName,
			"github_org":  repo.Owner.Login,
			"stars":       repo.StargazersCount,
			"topics":      repo.Topics,
			"website":     repo.Homepage,
		},
		DetectedAt: detectedAt,
		SourceURL:  "https://github.com/" + repo.FullName,
	}
}
