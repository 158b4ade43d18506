package crm

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presson-ventures/discovery-cli/internal/model"
)

type fakeNotionClient struct {
	database *notionapi.Database
	dbErr    error

	queryFn func(req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)

	createCalls int
	updateCalls int
	queryCalls  int
	getDBCalls  int

	createdProps notionapi.Properties
	updatedProps notionapi.Properties
}

func (f *fakeNotionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	f.queryCalls++
	if f.queryFn != nil {
		return f.queryFn(req)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (f *fakeNotionClient) GetDatabase(ctx context.Context, dbID string) (*notionapi.Database, error) {
	f.getDBCalls++
	if f.dbErr != nil {
		return nil, f.dbErr
	}
	return f.database, nil
}

func (f *fakeNotionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.createCalls++
	f.createdProps = req.Properties
	return &notionapi.Page{ID: "page-created"}, nil
}

func (f *fakeNotionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	f.updateCalls++
	f.updatedProps = req.Properties
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func validDatabase() *notionapi.Database {
	statusOpts := []notionapi.Option{
		{Name: "Source"}, {Name: "Tracking"}, {Name: "Dilligence"},
		{Name: "Passed"}, {Name: "Lost"},
	}
	stageOpts := []notionapi.Option{
		{Name: "Pre-Seed"}, {Name: "Seed"}, {Name: "Series A"},
	}
	return &notionapi.Database{
		Properties: notionapi.PropertyConfigs{
			PropCompanyName:     &notionapi.TitlePropertyConfig{Type: notionapi.PropertyConfigTypeTitle},
			PropStatus:          &notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect, Select: notionapi.Select{Options: statusOpts}},
			PropInvestmentStage: &notionapi.SelectPropertyConfig{Type: notionapi.PropertyConfigTypeSelect, Select: notionapi.Select{Options: stageOpts}},
			PropDiscoveryID:     &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			PropCanonicalKey:    &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			PropConfidenceScore: &notionapi.NumberPropertyConfig{Type: notionapi.PropertyConfigTypeNumber},
			PropSignalTypes:     &notionapi.MultiSelectPropertyConfig{Type: notionapi.PropertyConfigTypeMultiSelect},
			PropWhyNow:          &notionapi.RichTextPropertyConfig{Type: notionapi.PropertyConfigTypeRichText},
			PropWebsite:         &notionapi.URLPropertyConfig{Type: notionapi.PropertyConfigTypeURL},
		},
	}
}

func testOptions() Options {
	return Options{
		DatabaseID:            "db-123",
		TerminalStatuses:      []string{"Passed", "Lost"},
		SyncStatuses:          []string{"Source", "Tracking", "Passed", "Lost"},
		RequiredStatusOptions: []string{"Source", "Tracking"},
		RequiredStageOptions:  []string{"Pre-Seed", "Seed"},
		SchemaCacheTTL:        time.Hour,
	}
}

func testPayload() ProspectPayload {
	return ProspectPayload{
		DiscoveryID:     "disc_domain_acme_ai",
		CompanyName:     "Acme Inc",
		CanonicalKey:    "domain:acme.ai",
		Status:          "Source",
		Stage:           "Pre-Seed",
		Website:         "https://acme.ai",
		ConfidenceScore: 0.82,
		SignalTypes:     []string{"github_spike", "incorporation"},
		WhyNow:          "2 signals from github, companies_house",
	}
}

func TestValidateSchemaPasses(t *testing.T) {
	client := &fakeNotionClient{database: validDatabase()}
	c := NewConnector(client, testOptions())

	v, err := c.ValidateSchema(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, v.Valid())
	assert.Contains(t, v.String(), "passed")
}

func TestValidateSchemaMissingProperty(t *testing.T) {
	db := validDatabase()
	delete(db.Properties, PropCanonicalKey)
	client := &fakeNotionClient{database: db}
	c := NewConnector(client, testOptions())

	v, err := c.ValidateSchema(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, v.Valid())
	assert.Contains(t, v.MissingProperties, PropCanonicalKey)
	assert.Contains(t, v.String(), "Canonical Key")
}

func TestValidateSchemaWrongType(t *testing.T) {
	db := validDatabase()
	db.Properties[PropConfidenceScore] = &notionapi.RichTextPropertyConfig{
		Type: notionapi.PropertyConfigTypeRichText,
	}
	client := &fakeNotionClient{database: db}
	c := NewConnector(client, testOptions())

	v, err := c.ValidateSchema(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, v.Valid())
	assert.Equal(t, "number", v.WrongPropertyTypes[PropConfidenceScore])
}

func TestValidateSchemaMissingStatusOption(t *testing.T) {
	opts := testOptions()
	// Historical misspelling must match literally; "Diligence" is not
	// "Dilligence".
	opts.RequiredStatusOptions = []string{"Source", "Diligence"}
	client := &fakeNotionClient{database: validDatabase()}
	c := NewConnector(client, opts)

	v, err := c.ValidateSchema(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, v.Valid())
	assert.Equal(t, []string{"Diligence"}, v.MissingStatusOptions)
}

func TestValidateSchemaCached(t *testing.T) {
	client := &fakeNotionClient{database: validDatabase()}
	c := NewConnector(client, testOptions())

	_, err := c.ValidateSchema(context.Background(), false)
	require.NoError(t, err)
	_, err = c.ValidateSchema(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, client.getDBCalls)

	_, err = c.ValidateSchema(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, client.getDBCalls)
}

func TestUpsertFailsPreflightBeforeAnyWrite(t *testing.T) {
	db := validDatabase()
	delete(db.Properties, PropCanonicalKey)
	client := &fakeNotionClient{database: db}
	c := NewConnector(client, testOptions())

	_, err := c.UpsertProspect(context.Background(), testPayload())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrSchemaInvalid))

	// Preflight precedes writes: no query, create, or update was issued.
	assert.Zero(t, client.queryCalls)
	assert.Zero(t, client.createCalls)
	assert.Zero(t, client.updateCalls)
}

func TestUpsertCreatesNewRecord(t *testing.T) {
	client := &fakeNotionClient{database: validDatabase()}
	c := NewConnector(client, testOptions())

	res, err := c.UpsertProspect(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, res.Action)
	assert.Equal(t, "page-created", res.PageID)
	assert.Equal(t, 1, client.createCalls)
	assert.Zero(t, client.updateCalls)

	require.Contains(t, client.createdProps, PropCanonicalKey)
	require.Contains(t, client.createdProps, PropConfidenceScore)
}

func TestUpsertUpdatesExistingRecord(t *testing.T) {
	client := &fakeNotionClient{database: validDatabase()}
	client.queryFn = func(req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		return &notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{
				ID: "page-existing",
				Properties: notionapi.Properties{
					PropStatus:      notionapi.SelectProperty{Select: notionapi.Option{Name: "Tracking"}},
					PropCompanyName: notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "Acme Inc"}}},
				},
			}},
		}, nil
	}
	c := NewConnector(client, testOptions())

	res, err := c.UpsertProspect(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, res.Action)
	assert.Equal(t, "page-existing", res.PageID)
	assert.Equal(t, 1, client.updateCalls)
	assert.Zero(t, client.createCalls)
}

func TestUpsertSkipsTerminalStatus(t *testing.T) {
	client := &fakeNotionClient{database: validDatabase()}
	client.queryFn = func(req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		return &notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{
				ID: "page-passed",
				Properties: notionapi.Properties{
					PropStatus: notionapi.SelectProperty{Select: notionapi.Option{Name: "Passed"}},
				},
			}},
		}, nil
	}
	c := NewConnector(client, testOptions())

	res, err := c.UpsertProspect(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, ActionSkipped, res.Action)
	assert.Equal(t, "page-passed", res.PageID)
	assert.Zero(t, client.createCalls)
	assert.Zero(t, client.updateCalls)
}

func TestSuppressionListExtractsFields(t *testing.T) {
	client := &fakeNotionClient{database: validDatabase()}
	client.queryFn = func(req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
		return &notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{
				ID: "page-1",
				Properties: notionapi.Properties{
					PropStatus:       notionapi.SelectProperty{Select: notionapi.Option{Name: "Passed"}},
					PropCompanyName:  notionapi.TitleProperty{Title: []notionapi.RichText{{PlainText: "Acme Inc"}}},
					PropCanonicalKey: notionapi.RichTextProperty{RichText: []notionapi.RichText{{PlainText: "domain:acme.ai"}}},
					PropWebsite:      notionapi.URLProperty{URL: "https://acme.ai"},
				},
			}},
		}, nil
	}
	c := NewConnector(client, testOptions())

	records, err := c.SuppressionList(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "page-1", records[0].PageID)
	assert.Equal(t, "Passed", records[0].Status)
	assert.Equal(t, "Acme Inc", records[0].CompanyName)
	assert.Equal(t, "domain:acme.ai", records[0].CanonicalKey)
}

func TestInferStage(t *testing.T) {
	now := time.Now().UTC()
	mk := func(st model.SignalType, raw map[string]any) model.Signal {
		return model.Signal{SignalType: st, SourceAPI: "x", RawData: raw, DetectedAt: now}
	}

	tests := []struct {
		name     string
		signals  []model.Signal
		expected string
	}{
		{"large raise", []model.Signal{mk(model.SignalFundingEvent, map[string]any{"amount": float64(15_000_000)})}, "Series A"},
		{"mid raise", []model.Signal{mk(model.SignalFundingEvent, map[string]any{"amount": float64(5_000_000)})}, "Seed +"},
		{"small raise", []model.Signal{mk(model.SignalFundingEvent, map[string]any{"amount": float64(500_000)})}, "Seed"},
		{"heavy hiring", []model.Signal{mk(model.SignalHiring, map[string]any{"total_positions": float64(25)})}, "Seed +"},
		{"some hiring", []model.Signal{mk(model.SignalJobPosting, map[string]any{"total_positions": float64(6)})}, "Seed"},
		{"incorporation only", []model.Signal{mk(model.SignalIncorporation, nil)}, "Pre-Seed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := model.BuildProspect("domain:x.io", tt.signals)
			assert.Equal(t, tt.expected, InferStage(p))
		})
	}
}

func TestDiscoveryID(t *testing.T) {
	assert.Equal(t, "disc_domain_acme_ai", DiscoveryID("domain:acme.ai"))
	assert.Equal(t, "disc_github_repo_acme_tools", DiscoveryID("github_repo:acme/tools"))
	assert.Equal(t, "disc_name_loc_acme_london", DiscoveryID("name_loc:acme|london"))
}
