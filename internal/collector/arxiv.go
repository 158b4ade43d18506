package collector

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

const arxivBaseURL = "http://export.arxiv.org/api/query"

// Arxiv collects fresh applied-ML papers whose author affiliations name a
// company — research spinning out into a startup.
type Arxiv struct {
	fetcher    fetcher.Fetcher
	baseURL    string
	categories []string
}

// NewArxiv creates the arXiv collector.
func NewArxiv(f fetcher.Fetcher) *Arxiv {
	return &Arxiv{
		fetcher:    f,
		baseURL:    arxivBaseURL,
		categories: []string{"cs.AI", "cs.LG"},
	}
}

func (c *Arxiv) Name() string { return "arxiv" }

func (c *Arxiv) Open(ctx context.Context) error { return nil }

func (c *Arxiv) Close() error { return nil }

// Ping checks the query endpoint.
func (c *Arxiv) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL+"?search_query=all:ping&max_results=1")
}

// arXiv answers Atom.
type arxivAuthor struct {
	Name        string `xml:"name"`
	Affiliation string `xml:"affiliation"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

// Collect fetches recent submissions per watched category.
func (c *Arxiv) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	cutoff := time.Now().UTC().Add(-opts.Lookback)

	var signals []model.Signal
	for _, category := range c.categories {
		q := url.Values{}
		q.Set("search_query", fmt.Sprintf("cat:%s", category))
		q.Set("sortBy", "submittedDate")
		q.Set("sortOrder", "descending")
		q.Set("max_results", "100")
		endpoint := c.baseURL + "?" + q.Encode()

		body, err := c.fetcher.Get(ctx, c.Name(), endpoint, map[string]string{"Accept": "application/atom+xml"})
		if err != nil {
			return signals, eris.Wrapf(err, "arxiv: query category %s", category)
		}

		var feed arxivFeed
		decodeErr := xml.NewDecoder(body).Decode(&feed)
		body.Close()
		if decodeErr != nil {
			return signals, eris.Wrapf(decodeErr, "arxiv: decode feed for %s", category)
		}

		for _, entry := range feed.Entries {
			published, err := time.Parse(time.RFC3339, entry.Published)
			if err != nil || published.Before(cutoff) {
				continue
			}

			affiliation := companyAffiliation(entry.Authors)
			if affiliation == "" {
				continue
			}

			// An underivable identity still ships with an empty key;
			// the framework rejects it and counts it under errors.
			key, _ := canonical.Primary(canonical.Evidence{CompanyName: affiliation})

			signals = append(signals, model.Signal{
				SignalType:   model.SignalResearchPaper,
				SourceAPI:    c.Name(),
				CanonicalKey: key,
				CompanyName:  affiliation,
				Confidence:   0.5,
				RawData: map[string]any{
					"title":       strings.TrimSpace(entry.Title),
					"category":    category,
					"affiliation": affiliation,
					"arxiv_id":    entry.ID,
				},
				DetectedAt: published,
				SourceURL:  entry.ID,
			})
		}
	}

	return signals, nil
}

// companyAffiliation returns the first affiliation that doesn't look like a
// university or institute.
func companyAffiliation(authors []arxivAuthor) string {
	academic := []string{"university", "institute", "college", "school", "laboratory", "academy"}
	for _, author := range authors {
		aff := strings.TrimSpace(author.Affiliation)
		if aff == "" {
			continue
		}
		lower := strings.ToLower(aff)
		isAcademic := false
		for _, marker := range academic {
			if strings.Contains(lower, marker) {
				isAcademic = true
				break
			}
		}
		if !isAcademic {
			return aff
		}
	}
	return ""
}
