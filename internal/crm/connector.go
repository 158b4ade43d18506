// Package crm integrates the discovery pipeline with the venture Notion
// CRM: schema preflight, suppression-list reads, and prospect upserts.
package crm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/pkg/notion"
)

// ErrSchemaInvalid is returned when the CRM database schema fails preflight
// validation. No write is attempted after this error.
var ErrSchemaInvalid = eris.New("crm: schema validation failed")

// Notion property names. These must match the CRM database exactly.
const (
	PropCompanyName     = "Company Name"
	PropStatus          = "Status"
	PropInvestmentStage = "Investment Stage"
	PropWebsite         = "Website"
	PropDiscoveryID     = "Discovery ID"
	PropCanonicalKey    = "Canonical Key"
	PropConfidenceScore = "Confidence Score"
	PropSignalTypes     = "Signal Types"
	PropWhyNow          = "Why Now"
)

// Action describes what an upsert did.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
)

// UpsertResult reports the outcome of one prospect upsert.
type UpsertResult struct {
	PageID string
	Action Action
	Reason string
}

// ProspectPayload carries one qualified prospect into the CRM.
type ProspectPayload struct {
	DiscoveryID     string
	CompanyName     string
	CanonicalKey    string
	KeyCandidates   []string
	Status          string
	Stage           string
	Website         string
	ConfidenceScore float64
	SignalTypes     []string
	WhyNow          string
}

// SuppressionRecord is one active CRM record as seen by the sync job.
type SuppressionRecord struct {
	PageID       string
	Status       string
	CompanyName  string
	CanonicalKey string
	Website      string
}

// Options configures the connector.
type Options struct {
	DatabaseID string

	// TerminalStatuses are CRM statuses the fund has decided against;
	// records carrying one are never overwritten.
	TerminalStatuses []string

	// SyncStatuses are the statuses fetched by the suppression list.
	SyncStatuses []string

	// RequiredStatusOptions must exist on the Status select, verbatim.
	RequiredStatusOptions []string

	// RequiredStageOptions must exist on the Investment Stage select.
	RequiredStageOptions []string

	// SchemaCacheTTL bounds how long a validation result is reused.
	SchemaCacheTTL time.Duration
}

// Connector is a validated, rate-limited client for the CRM database. Rate
// limiting lives in the underlying notion.Client (3 req/s).
type Connector struct {
	client notion.Client
	opts   Options

	schemaMu      sync.Mutex
	schemaResult  *Validation
	schemaFetched time.Time
}

// NewConnector creates a CRM connector.
func NewConnector(client notion.Client, opts Options) *Connector {
	if opts.SchemaCacheTTL == 0 {
		opts.SchemaCacheTTL = 6 * time.Hour
	}
	return &Connector{client: client, opts: opts}
}

// SuppressionList fetches every active CRM record in the configured sync
// statuses, paginating internally.
func (c *Connector) SuppressionList(ctx context.Context) ([]SuppressionRecord, error) {
	pages, err := notion.QueryByStatuses(ctx, c.client, c.opts.DatabaseID, c.opts.SyncStatuses)
	if err != nil {
		return nil, eris.Wrap(err, "crm: fetch suppression list")
	}

	records := make([]SuppressionRecord, 0, len(pages))
	for _, page := range pages {
		records = append(records, SuppressionRecord{
			PageID:       string(page.ID),
			Status:       extractSelect(page.Properties[PropStatus]),
			CompanyName:  extractTitle(page.Properties[PropCompanyName]),
			CanonicalKey: extractRichText(page.Properties[PropCanonicalKey]),
			Website:      extractURL(page.Properties[PropWebsite]),
		})
	}
	return records, nil
}

// UpsertProspect creates or updates one CRM record. Schema preflight runs
// first; an invalid schema fails with ErrSchemaInvalid before any write.
// Records in a terminal status are never overwritten.
func (c *Connector) UpsertProspect(ctx context.Context, p ProspectPayload) (*UpsertResult, error) {
	validation, err := c.ValidateSchema(ctx, false)
	if err != nil {
		return nil, err
	}
	if !validation.Valid() {
		return nil, eris.Wrap(ErrSchemaInvalid, validation.String())
	}

	existing, err := c.findExisting(ctx, p)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if c.isTerminal(existing.Status) {
			zap.L().Info("skipping terminal-status prospect",
				zap.String("company", p.CompanyName),
				zap.String("status", existing.Status),
			)
			return &UpsertResult{
				PageID: existing.PageID,
				Action: ActionSkipped,
				Reason: "terminal status: " + existing.Status,
			}, nil
		}

		if _, err := c.client.UpdatePage(ctx, existing.PageID, &notionapi.PageUpdateRequest{
			Properties: c.buildProperties(p, false),
		}); err != nil {
			return nil, eris.Wrapf(err, "crm: update prospect %s", p.CompanyName)
		}
		return &UpsertResult{
			PageID: existing.PageID,
			Action: ActionUpdated,
			Reason: "matched existing record",
		}, nil
	}

	page, err := c.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(c.opts.DatabaseID),
		},
		Properties: c.buildProperties(p, true),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "crm: create prospect %s", p.CompanyName)
	}
	return &UpsertResult{
		PageID: string(page.ID),
		Action: ActionCreated,
		Reason: "new record created",
	}, nil
}

func (c *Connector) isTerminal(status string) bool {
	for _, t := range c.opts.TerminalStatuses {
		if status == t {
			return true
		}
	}
	return false
}

// findExisting looks up a record by Discovery ID, then each canonical key
// candidate, then the website domain.
func (c *Connector) findExisting(ctx context.Context, p ProspectPayload) (*SuppressionRecord, error) {
	if p.DiscoveryID != "" {
		rec, err := c.queryOne(ctx, notionapi.PropertyFilter{
			Property: PropDiscoveryID,
			RichText: &notionapi.TextFilterCondition{Equals: p.DiscoveryID},
		})
		if err != nil || rec != nil {
			return rec, err
		}
	}

	candidates := p.KeyCandidates
	if len(candidates) == 0 && p.CanonicalKey != "" {
		candidates = []string{p.CanonicalKey}
	}
	for _, key := range candidates {
		rec, err := c.queryOne(ctx, notionapi.PropertyFilter{
			Property: PropCanonicalKey,
			RichText: &notionapi.TextFilterCondition{Equals: key},
		})
		if err != nil || rec != nil {
			return rec, err
		}
	}

	if domain := canonical.NormalizeDomain(p.Website); domain != "" {
		rec, err := c.queryOne(ctx, notionapi.PropertyFilter{
			Property: PropWebsite,
			URL:      &notionapi.TextFilterCondition{Contains: domain},
		})
		if err != nil || rec != nil {
			return rec, err
		}
	}

	return nil, nil
}

func (c *Connector) queryOne(ctx context.Context, filter notionapi.PropertyFilter) (*SuppressionRecord, error) {
	resp, err := c.client.QueryDatabase(ctx, c.opts.DatabaseID, &notionapi.DatabaseQueryRequest{
		Filter:   filter,
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, "crm: lookup existing record")
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	page := resp.Results[0]
	return &SuppressionRecord{
		PageID:       string(page.ID),
		Status:       extractSelect(page.Properties[PropStatus]),
		CompanyName:  extractTitle(page.Properties[PropCompanyName]),
		CanonicalKey: extractRichText(page.Properties[PropCanonicalKey]),
		Website:      extractURL(page.Properties[PropWebsite]),
	}, nil
}

func (c *Connector) buildProperties(p ProspectPayload, includeTitle bool) notionapi.Properties {
	props := notionapi.Properties{
		PropStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: p.Status},
		},
		PropDiscoveryID: notionapi.RichTextProperty{
			RichText: richText(p.DiscoveryID),
		},
		PropCanonicalKey: notionapi.RichTextProperty{
			RichText: richText(p.CanonicalKey),
		},
		PropConfidenceScore: notionapi.NumberProperty{
			Number: p.ConfidenceScore,
		},
		PropWhyNow: notionapi.RichTextProperty{
			RichText: richText(p.WhyNow),
		},
	}

	if includeTitle || p.CompanyName != "" {
		props[PropCompanyName] = notionapi.TitleProperty{
			Title: richText(p.CompanyName),
		}
	}
	if p.Stage != "" {
		props[PropInvestmentStage] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: p.Stage},
		}
	}
	if len(p.SignalTypes) > 0 {
		opts := make([]notionapi.Option, len(p.SignalTypes))
		for i, t := range p.SignalTypes {
			opts[i] = notionapi.Option{Name: t}
		}
		props[PropSignalTypes] = notionapi.MultiSelectProperty{MultiSelect: opts}
	}
	if p.Website != "" {
		props[PropWebsite] = notionapi.URLProperty{URL: p.Website}
	}

	return props
}

func richText(s string) []notionapi.RichText {
	if s == "" {
		return []notionapi.RichText{}
	}
	return []notionapi.RichText{
		{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}},
	}
}

// DiscoveryID derives the stable cross-system id for a canonical key.
func DiscoveryID(canonicalKey string) string {
	replacer := strings.NewReplacer(":", "_", ".", "_", "/", "_", "|", "_")
	return "disc_" + replacer.Replace(canonicalKey)
}
