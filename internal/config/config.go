// Package config loads teamresolve configuration from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Import     ImportConfig     `yaml:"import" mapstructure:"import"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Matcher    MatcherConfig    `yaml:"matcher" mapstructure:"matcher"`
	Scorer     ScorerConfig     `yaml:"scorer" mapstructure:"scorer"`
	Review     ReviewConfig     `yaml:"review" mapstructure:"review"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Providers  []ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the operator HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ImportConfig configures batch imports.
type ImportConfig struct {
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	RowsPerSecond float64 `yaml:"rows_per_second" mapstructure:"rows_per_second"`
	// Finalize marks imported games immutable.
	Finalize bool `yaml:"finalize" mapstructure:"finalize"`
}

// NormalizeConfig bounds age parsing.
type NormalizeConfig struct {
	MinBirthYear int `yaml:"min_birth_year" mapstructure:"min_birth_year"`
	MaxBirthYear int `yaml:"max_birth_year" mapstructure:"max_birth_year"`
	SeasonYear   int `yaml:"season_year" mapstructure:"season_year"`
}

// MatcherConfig holds the confidence bands of the tiered matcher.
type MatcherConfig struct {
	AutoAccept      float64 `yaml:"auto_accept" mapstructure:"auto_accept"`
	ReviewAgreement float64 `yaml:"review_agreement" mapstructure:"review_agreement"`
	ReviewPartial   float64 `yaml:"review_partial" mapstructure:"review_partial"`
	QuarantineFloor float64 `yaml:"quarantine_floor" mapstructure:"quarantine_floor"`
	CandidateLimit  int     `yaml:"candidate_limit" mapstructure:"candidate_limit"`
	CreateOnNoMatch bool    `yaml:"create_on_no_match" mapstructure:"create_on_no_match"`
	// PolicyFile replaces the bands above with a YAML policy table.
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
}

// ScorerConfig holds the confidence scorer weights.
type ScorerConfig struct {
	NameWeight        float64 `yaml:"name_weight" mapstructure:"name_weight"`
	GenderWeight      float64 `yaml:"gender_weight" mapstructure:"gender_weight"`
	AgeWeight         float64 `yaml:"age_weight" mapstructure:"age_weight"`
	PriorWeight       float64 `yaml:"prior_weight" mapstructure:"prior_weight"`
	AdjacentAgeCredit float64 `yaml:"adjacent_age_credit" mapstructure:"adjacent_age_credit"`
}

// ReviewConfig holds the operator bulk categorization thresholds.
type ReviewConfig struct {
	SafeMin        float64 `yaml:"safe_min" mapstructure:"safe_min"`
	NeedsReviewMin float64 `yaml:"needs_review_min" mapstructure:"needs_review_min"`
}

// RetryConfig configures storage read retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// MonitoringConfig configures backlog alerting. Zero thresholds disable
// their alert.
type MonitoringConfig struct {
	Enabled                    bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL                 string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs          int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	ReviewBacklogThreshold     int    `yaml:"review_backlog_threshold" mapstructure:"review_backlog_threshold"`
	RiskyBacklogThreshold      int    `yaml:"risky_backlog_threshold" mapstructure:"risky_backlog_threshold"`
	QuarantineThreshold        int    `yaml:"quarantine_threshold" mapstructure:"quarantine_threshold"`
	CorrectionBacklogThreshold int    `yaml:"correction_backlog_threshold" mapstructure:"correction_backlog_threshold"`
}

// ProviderConfig registers a provider at startup.
type ProviderConfig struct {
	Code          string `yaml:"code" mapstructure:"code"`
	Name          string `yaml:"name" mapstructure:"name"`
	ReusesClubIDs bool   `yaml:"reuses_club_ids" mapstructure:"reuses_club_ids"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TEAMRESOLVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("import.concurrency", 8)
	v.SetDefault("import.rows_per_second", 0)
	v.SetDefault("import.finalize", true)
	v.SetDefault("normalize.min_birth_year", 2000)
	v.SetDefault("normalize.max_birth_year", 2025)
	v.SetDefault("normalize.season_year", 0)
	v.SetDefault("matcher.auto_accept", 0.95)
	v.SetDefault("matcher.review_agreement", 0.85)
	v.SetDefault("matcher.review_partial", 0.70)
	v.SetDefault("matcher.quarantine_floor", 0.50)
	v.SetDefault("matcher.candidate_limit", 5)
	v.SetDefault("matcher.create_on_no_match", true)
	v.SetDefault("scorer.name_weight", 0.55)
	v.SetDefault("scorer.gender_weight", 0.15)
	v.SetDefault("scorer.age_weight", 0.25)
	v.SetDefault("scorer.prior_weight", 0.05)
	v.SetDefault("scorer.adjacent_age_credit", 0.5)
	v.SetDefault("review.safe_min", 0.95)
	v.SetDefault("review.needs_review_min", 0.88)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 50)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.review_backlog_threshold", 500)
	v.SetDefault("monitoring.risky_backlog_threshold", 100)
	v.SetDefault("monitoring.quarantine_threshold", 1000)
	v.SetDefault("monitoring.correction_backlog_threshold", 50)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that thresholds are ordered and inside [0,1].
func (c *Config) Validate() error {
	var errs []string

	m := c.Matcher
	for name, v := range map[string]float64{
		"matcher.auto_accept":      m.AutoAccept,
		"matcher.review_agreement": m.ReviewAgreement,
		"matcher.review_partial":   m.ReviewPartial,
		"matcher.quarantine_floor": m.QuarantineFloor,
		"review.safe_min":          c.Review.SafeMin,
		"review.needs_review_min":  c.Review.NeedsReviewMin,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("%s must be within [0,1]", name))
		}
	}
	if m.PolicyFile == "" && !(m.AutoAccept >= m.ReviewAgreement && m.ReviewAgreement >= m.ReviewPartial && m.ReviewPartial >= m.QuarantineFloor) {
		errs = append(errs, "matcher thresholds must satisfy auto_accept >= review_agreement >= review_partial >= quarantine_floor")
	}
	if c.Review.SafeMin < c.Review.NeedsReviewMin {
		errs = append(errs, "review.safe_min must be >= review.needs_review_min")
	}
	if m.CandidateLimit < 1 {
		errs = append(errs, "matcher.candidate_limit must be >= 1")
	}
	if c.Import.Concurrency < 1 {
		errs = append(errs, "import.concurrency must be >= 1")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.Code == "" {
			errs = append(errs, "providers: code is required")
			continue
		}
		if seen[p.Code] {
			errs = append(errs, fmt.Sprintf("providers: duplicate code %q", p.Code))
		}
		seen[p.Code] = true
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(errs, "; "))
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
