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

// GitHubActivity collects sustained push activity on young organization
// repositories — founders heads-down before any public launch.
type GitHubActivity struct {
	fetcher fetcher.Fetcher
	baseURL string
	topics  []string
}

// NewGitHubActivity creates the founder-activity collector.
func NewGitHubActivity(f fetcher.Fetcher) *GitHubActivity {
	return &GitHubActivity{
		fetcher: f,
		baseURL: githubAPIBaseURL,
		topics:  []string{"ai", "developer-tools", "infrastructure"},
	}
}

func (c *GitHubActivity) Name() string { return "github_activity" }

func (c *GitHubActivity) Open(ctx context.Context) error { return nil }

func (c *GitHubActivity) Close() error { return nil }

// Ping checks the API root.
func (c *GitHubActivity) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL)
}

// Collect searches for organization repositories pushed inside the
// lookback window under watched topics.
func (c *GitHubActivity) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	from := time.Now().UTC().Add(-opts.Lookback)

	var signals []model.Signal
	for _, topic := range c.topics {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("topic:%s pushed:>%s", topic, from.Format("2006-01-02")))
		q.Set("sort", "updated")
		q.Set("per_page", "50")
		endpoint := c.baseURL + "/search/repositories?" + q.Encode()

		var resp githubSearchResponse
		if err := c.fetcher.GetJSON(ctx, c.Name(), endpoint, nil, &resp); err != nil {
			return signals, eris.Wrapf(err, "github_activity: search topic %s", topic)
		}

		for _, repo := range resp.Items {
			if repo.Owner.Type != "Organization" {
				continue
			}

			// An underivable identity still ships with an empty key;
			// the framework rejects it and counts it under errors.
			key, _ := canonical.Primary(canonical.Evidence{
				Website:   repo.Homepage,
				GitHubOrg: repo.Owner.Login,
			})

			detectedAt, err := time.Parse(time.RFC3339, repo.PushedAt)
			if err != nil {
				detectedAt = time.Now().UTC()
			}

			signals = append(signals, model.Signal{
				SignalType:   model.SignalGitHubActivity,
				SourceAPI:    c.Name(),
				CanonicalKey: key,
				CompanyName:  repo.Owner.Login,
				Confidence:   0.65,
				RawData: map[string]any{
					"github_org":  repo.Owner.Login,
					"github_repo": repo.FullName,
					"topic":       topic,
					"stars":       repo.StargazersCount,
					"website":     repo.Homepage,
				},
				DetectedAt: detectedAt,
				SourceURL:  "https://github.com/" + repo.FullName,
			})
		}
	}

	return signals, nil
}
