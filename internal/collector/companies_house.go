package collector

import (
	"context"
	"encoding/base64"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"github.com/presson-ventures/discovery-cli/internal/canonical"
	"github.com/presson-ventures/discovery-cli/internal/fetcher"
	"github.com/presson-ventures/discovery-cli/internal/model"
)

const companiesHouseBaseURL = "https://api.company-information.service.gov.uk"

// CompaniesHouse collects fresh UK incorporations and dissolutions from the
// Companies House advanced search API. Dissolutions are hard-kill signals.
type CompaniesHouse struct {
	fetcher fetcher.Fetcher
	baseURL string
	apiKey  string
}

// NewCompaniesHouse creates the Companies House collector.
func NewCompaniesHouse(f fetcher.Fetcher) *CompaniesHouse {
	return &CompaniesHouse{fetcher: f, baseURL: companiesHouseBaseURL}
}

// WithAPIKey sets the Companies House API key (sent as basic auth user).
func (c *CompaniesHouse) WithAPIKey(key string) *CompaniesHouse {
	c.apiKey = key
	return c
}

func (c *CompaniesHouse) Name() string { return "companies_house" }

func (c *CompaniesHouse) Open(ctx context.Context) error { return nil }

func (c *CompaniesHouse) Close() error { return nil }

// Ping checks the API root.
func (c *CompaniesHouse) Ping(ctx context.Context) error {
	return c.fetcher.Head(ctx, c.Name(), c.baseURL)
}

type companiesHouseSearchResponse struct {
	Items []struct {
		CompanyName             string `json:"company_name"`
		CompanyNumber           string `json:"company_number"`
		CompanyStatus           string `json:"company_status"`
		DateOfCreation          string `json:"date_of_creation"`
		DateOfCessation         string `json:"date_of_cessation"`
		RegisteredOfficeAddress struct {
			Locality string `json:"locality"`
		} `json:"registered_office_address"`
		SICCodes []string `json:"sic_codes"`
	} `json:"items"`
}

func (c *CompaniesHouse) headers() map[string]string {
	if c.apiKey == "" {
		return nil
	}
	token := base64.StdEncoding.EncodeToString([]byte(c.apiKey + ":"))
	return map[string]string{"Authorization": "Basic " + token}
}

// Collect fetches incorporations within the lookback window plus recent
// dissolutions for kill-signal coverage.
func (c *CompaniesHouse) Collect(ctx context.Context, opts Options) ([]model.Signal, error) {
	now := time.Now().UTC()
	from := now.Add(-opts.Lookback)

	signals, err := c.search(ctx, url.Values{
		"incorporated_from": []string{from.Format("2006-01-02")},
		"incorporated_to":   []string{now.Format("2006-01-02")},
		"company_status":    []string{"active"},
		"size":              []string{"100"},
	}, false)
	if err != nil {
		return nil, err
	}

	dissolved, err := c.search(ctx, url.Values{
		"dissolved_from": []string{from.Format("2006-01-02")},
		"dissolved_to":   []string{now.Format("2006-01-02")},
		"company_status": []string{"dissolved"},
		"size":           []string{"100"},
	}, true)
	if err != nil {
		return nil, err
	}

	return append(signals, dissolved...), nil
}

func (c *CompaniesHouse) search(ctx context.Context, q url.Values, dissolved bool) ([]model.Signal, error) {
	endpoint := c.baseURL + "/advanced-search/companies?" + q.Encode()

	var resp companiesHouseSearchResponse
	if err := c.fetcher.GetJSON(ctx, c.Name(), endpoint, c.headers(), &resp); err != nil {
		return nil, eris.Wrap(err, "companies_house: advanced search")
	}

	now := time.Now().UTC()
	var signals []model.Signal
	for _, item := range resp.Items {
		if item.CompanyNumber == "" {
			continue
		}

		// An underivable identity still ships with an empty key; the
		// framework rejects it and counts it under errors.
		key, _ := canonical.Primary(canonical.Evidence{
			CompaniesHouseNumber: item.CompanyNumber,
			CompanyName:          item.CompanyName,
			Region:               item.RegisteredOfficeAddress.Locality,
		})

		signalType := model.SignalIncorporation
		confidence := 0.95
		dateField := item.DateOfCreation
		if dissolved {
			signalType = model.SignalCompanyDissolved
			confidence = 1.0
			dateField = item.DateOfCessation
		}

		detectedAt, err := time.Parse("2006-01-02", dateField)
		if err != nil {
			detectedAt = now
		}

		signals = append(signals, model.Signal{
			SignalType:   signalType,
			SourceAPI:    c.Name(),
			CanonicalKey: key,
			CompanyName:  item.CompanyName,
			Confidence:   confidence,
			RawData: map[string]any{
				"company_name":   item.CompanyName,
				"company_number": item.CompanyNumber,
				"company_status": item.CompanyStatus,
				"locality":       item.RegisteredOfficeAddress.Locality,
				"sic_codes":      item.SICCodes,
			},
			DetectedAt: detectedAt,
			SourceURL:  c.baseURL + "/company/" + item.CompanyNumber,
		})
	}

	return signals, nil
}
