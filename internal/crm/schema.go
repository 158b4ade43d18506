package crm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// requiredProperties maps required CRM property names to their Notion types.
var requiredProperties = map[string]notionapi.PropertyConfigType{
	PropCompanyName:     notionapi.PropertyConfigTypeTitle,
	PropStatus:          notionapi.PropertyConfigTypeSelect,
	PropInvestmentStage: notionapi.PropertyConfigTypeSelect,
	PropDiscoveryID:     notionapi.PropertyConfigTypeRichText,
	PropCanonicalKey:    notionapi.PropertyConfigTypeRichText,
	PropConfidenceScore: notionapi.PropertyConfigTypeNumber,
	PropSignalTypes:     notionapi.PropertyConfigTypeMultiSelect,
	PropWhyNow:          notionapi.PropertyConfigTypeRichText,
}

// optionalProperties are recommended but their absence only warns.
var optionalProperties = map[string]notionapi.PropertyConfigType{
	PropWebsite: notionapi.PropertyConfigTypeURL,
}

// Validation is the structured result of a schema preflight.
type Validation struct {
	MissingProperties         []string
	MissingOptionalProperties []string
	WrongPropertyTypes        map[string]string
	MissingStatusOptions      []string
	MissingStageOptions       []string
	CheckedAt                 time.Time
}

// Valid reports whether the live schema satisfies the contract. Missing
// optional properties do not fail validation.
func (v *Validation) Valid() bool {
	return len(v.MissingProperties) == 0 &&
		len(v.WrongPropertyTypes) == 0 &&
		len(v.MissingStatusOptions) == 0 &&
		len(v.MissingStageOptions) == 0
}

// String renders a human-readable validation report with fix instructions.
func (v *Validation) String() string {
	if v.Valid() {
		return "schema validation passed: all required properties and options present"
	}

	var b strings.Builder
	b.WriteString("schema validation failed:\n")

	if len(v.MissingProperties) > 0 {
		b.WriteString("\nmissing required properties:\n")
		for _, prop := range v.MissingProperties {
			fmt.Fprintf(&b, "  - %q (add it in Notion: Database settings -> Properties -> Add property)\n", prop)
		}
	}

	if len(v.WrongPropertyTypes) > 0 {
		b.WriteString("\nwrong property types (changing a type in Notion loses data; recreate the property):\n")
		names := make([]string, 0, len(v.WrongPropertyTypes))
		for name := range v.WrongPropertyTypes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "  - %q should be %s\n", name, v.WrongPropertyTypes[name])
		}
	}

	if len(v.MissingStatusOptions) > 0 {
		b.WriteString("\nmissing Status options (must match configured strings exactly, typos included):\n")
		for _, opt := range v.MissingStatusOptions {
			fmt.Fprintf(&b, "  - %q\n", opt)
		}
	}

	if len(v.MissingStageOptions) > 0 {
		b.WriteString("\nmissing Investment Stage options:\n")
		for _, opt := range v.MissingStageOptions {
			fmt.Fprintf(&b, "  - %q\n", opt)
		}
	}

	if len(v.MissingOptionalProperties) > 0 {
		b.WriteString("\nmissing optional properties (recommended):\n")
		for _, prop := range v.MissingOptionalProperties {
			fmt.Fprintf(&b, "  - %q\n", prop)
		}
	}

	return b.String()
}

// ValidateSchema compares the live CRM schema against the contract. Results
// are cached for the configured TTL; pass forceRefresh to bypass the cache.
func (c *Connector) ValidateSchema(ctx context.Context, forceRefresh bool) (*Validation, error) {
	c.schemaMu.Lock()
	defer c.schemaMu.Unlock()

	if !forceRefresh && c.schemaResult != nil &&
		time.Since(c.schemaFetched) < c.opts.SchemaCacheTTL {
		return c.schemaResult, nil
	}

	db, err := c.client.GetDatabase(ctx, c.opts.DatabaseID)
	if err != nil {
		return nil, eris.Wrap(err, "crm: fetch database schema")
	}

	v := &Validation{
		WrongPropertyTypes: make(map[string]string),
		CheckedAt:          time.Now().UTC(),
	}

	for name, wantType := range requiredProperties {
		cfg, ok := db.Properties[name]
		if !ok {
			v.MissingProperties = append(v.MissingProperties, name)
			continue
		}
		if cfg.GetType() != wantType {
			v.WrongPropertyTypes[name] = string(wantType)
		}
	}
	sort.Strings(v.MissingProperties)

	for name, wantType := range optionalProperties {
		cfg, ok := db.Properties[name]
		if !ok {
			v.MissingOptionalProperties = append(v.MissingOptionalProperties, name)
			continue
		}
		if cfg.GetType() != wantType {
			v.WrongPropertyTypes[name] = string(wantType)
		}
	}
	sort.Strings(v.MissingOptionalProperties)

	v.MissingStatusOptions = missingSelectOptions(db.Properties[PropStatus], c.opts.RequiredStatusOptions)
	v.MissingStageOptions = missingSelectOptions(db.Properties[PropInvestmentStage], c.opts.RequiredStageOptions)

	if v.Valid() {
		zap.L().Debug("schema validation passed",
			zap.String("database_id", c.opts.DatabaseID))
	} else {
		zap.L().Error("schema validation failed",
			zap.String("database_id", c.opts.DatabaseID),
			zap.Strings("missing_properties", v.MissingProperties),
			zap.Strings("missing_status_options", v.MissingStatusOptions),
		)
	}

	c.schemaResult = v
	c.schemaFetched = time.Now()
	return v, nil
}

func missingSelectOptions(cfg notionapi.PropertyConfig, required []string) []string {
	sel, ok := cfg.(*notionapi.SelectPropertyConfig)
	if !ok {
		if selVal, okVal := cfg.(notionapi.SelectPropertyConfig); okVal {
			sel = &selVal
		} else {
			// Missing or wrong-typed property is reported elsewhere.
			return nil
		}
	}

	have := make(map[string]bool, len(sel.Select.Options))
	for _, opt := range sel.Select.Options {
		have[opt.Name] = true
	}

	var missing []string
	for _, want := range required {
		if !have[want] {
			missing = append(missing, want)
		}
	}
	sort.Strings(missing)
	return missing
}
