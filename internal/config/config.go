// Package config loads application configuration from config.yaml and the
// DISCOVERY_* environment, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig          `mapstructure:"store"`
	Notion     NotionConfig         `mapstructure:"notion"`
	Gate       GateConfig           `mapstructure:"gate"`
	HTTP       HTTPConfig           `mapstructure:"http"`
	RateLimit  map[string]RateLimit `mapstructure:"rate_limit"`
	Collectors CollectorsConfig     `mapstructure:"collectors"`
	Pusher     PusherConfig         `mapstructure:"pusher"`
	Pipeline   PipelineConfig       `mapstructure:"pipeline"`
	Log        LogConfig            `mapstructure:"log"`
}

// StoreConfig configures the signal store.
type StoreConfig struct {
	Path               string `mapstructure:"path"`
	SuppressionTTLDays int    `mapstructure:"suppression_ttl_days"`
}

// SuppressionTTL returns the suppression cache TTL as a duration.
func (c StoreConfig) SuppressionTTL() time.Duration {
	return time.Duration(c.SuppressionTTLDays) * 24 * time.Hour
}

// NotionConfig holds Notion CRM credentials and routing statuses. Status
// strings must match the Notion database's select options literally,
// including any historical misspellings (e.g. "Dilligence").
type NotionConfig struct {
	APIKey              string             `mapstructure:"api_key"`
	DatabaseID          string             `mapstructure:"database_id"`
	Status              NotionStatusConfig `mapstructure:"status"`
	StageOptions        []string           `mapstructure:"stage_options"`
	SchemaCacheTTLHours int                `mapstructure:"schema_cache_ttl_hours"`
}

// NotionStatusConfig maps pipeline routing decisions to Notion status strings.
type NotionStatusConfig struct {
	AutoPush    string   `mapstructure:"auto_push"`
	NeedsReview string   `mapstructure:"needs_review"`
	Terminal    []string `mapstructure:"terminal"`
	Sync        []string `mapstructure:"sync"`
}

// SchemaCacheTTL returns the schema preflight cache TTL.
func (c NotionConfig) SchemaCacheTTL() time.Duration {
	return time.Duration(c.SchemaCacheTTLHours) * time.Hour
}

// GateConfig tunes the verification gate.
type GateConfig struct {
	HighThreshold   float64            `mapstructure:"high_threshold"`
	MediumThreshold float64            `mapstructure:"medium_threshold"`
	StrictMode      bool               `mapstructure:"strict_mode"`
	Weights         map[string]float64 `mapstructure:"weights"`
	HalfLifeDays    map[string]float64 `mapstructure:"half_life_days"`
	TierMultiplier  map[string]float64 `mapstructure:"tier_multiplier"`
	SourceTiers     map[string]string  `mapstructure:"source_tiers"`
}

// HTTPConfig tunes the shared HTTP retry policy.
type HTTPConfig struct {
	Retries       int `mapstructure:"retries"`
	BackoffBaseMS int `mapstructure:"backoff_base_ms"`
	BackoffMaxSec int `mapstructure:"backoff_max_secs"`
	TimeoutSec    int `mapstructure:"timeout_secs"`
}

// Timeout returns the per-request HTTP timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// RateLimit configures one source's token bucket.
type RateLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// CollectorsConfig selects which collectors run under collect/full.
type CollectorsConfig struct {
	Enabled      []string `mapstructure:"enabled"`
	LookbackDays int      `mapstructure:"lookback_days"`
}

// Lookback returns the default collection window.
func (c CollectorsConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// PusherConfig tunes the batch processor.
type PusherConfig struct {
	Concurrency        int `mapstructure:"concurrency"`
	ProspectTimeoutSec int `mapstructure:"prospect_timeout_secs"`
}

// ProspectTimeout bounds gate + upsert + mark for one prospect.
func (c PusherConfig) ProspectTimeout() time.Duration {
	return time.Duration(c.ProspectTimeoutSec) * time.Second
}

// PipelineConfig configures orchestrator behavior.
type PipelineConfig struct {
	WarmupSync bool `mapstructure:"warmup_sync"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "signals.db")
	v.SetDefault("store.suppression_ttl_days", 7)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("notion.status.auto_push", "Source")
	v.SetDefault("notion.status.needs_review", "Tracking")
	v.SetDefault("notion.status.terminal", []string{"Passed", "Lost"})
	v.SetDefault("notion.status.sync", []string{
		"Source", "Initial Meeting / Call", "Dilligence", "Tracking",
		"Committed", "Funded", "Passed", "Lost",
	})
	v.SetDefault("notion.stage_options", []string{
		"Pre-Seed", "Seed", "Seed +", "Series A", "Series B", "Series C", "Series D",
	})
	v.SetDefault("notion.schema_cache_ttl_hours", 6)
	v.SetDefault("gate.high_threshold", 0.70)
	v.SetDefault("gate.medium_threshold", 0.40)
	v.SetDefault("gate.strict_mode", false)
	v.SetDefault("http.retries", 3)
	v.SetDefault("http.backoff_base_ms", 500)
	v.SetDefault("http.backoff_max_secs", 30)
	v.SetDefault("http.timeout_secs", 10)
	v.SetDefault("collectors.enabled", []string{
		"sec_edgar", "companies_house", "github", "github_activity",
		"domain_whois", "hacker_news", "product_hunt", "job_postings",
		"arxiv", "uspto",
	})
	v.SetDefault("collectors.lookback_days", 7)
	v.SetDefault("pusher.concurrency", 4)
	v.SetDefault("pusher.prospect_timeout_secs", 60)
	v.SetDefault("pipeline.warmup_sync", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that required credentials are present for CRM-facing
// commands. Collect-only runs can operate without Notion credentials.
func (c *Config) Validate(needNotion bool) error {
	if c.Store.Path == "" {
		return eris.New("config: store.path is required")
	}
	if needNotion {
		if c.Notion.APIKey == "" {
			return eris.New("config: notion.api_key is required")
		}
		if c.Notion.DatabaseID == "" {
			return eris.New("config: notion.database_id is required")
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
