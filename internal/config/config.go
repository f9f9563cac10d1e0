package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Webhook    WebhookConfig    `yaml:"webhook" mapstructure:"webhook"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Review     ReviewConfig     `yaml:"review" mapstructure:"review"`
	Confidence ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs  int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int      `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// WebhookConfig configures inbound event verification.
type WebhookConfig struct {
	Secret          string `yaml:"secret" mapstructure:"secret"`
	SignatureHeader string `yaml:"signature_header" mapstructure:"signature_header"`
}

// IngestConfig configures the ingestion workers.
type IngestConfig struct {
	Workers             int   `yaml:"workers" mapstructure:"workers"`
	QueueSize           int   `yaml:"queue_size" mapstructure:"queue_size"`
	TaskTimeoutSecs     int   `yaml:"task_timeout_secs" mapstructure:"task_timeout_secs"`
	DownloadTimeoutSecs int   `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs"`
	DownloadRetries     int   `yaml:"download_retries" mapstructure:"download_retries"`
	MaxDownloadBytes    int64 `yaml:"max_download_bytes" mapstructure:"max_download_bytes"`
	MaxPasses           int   `yaml:"max_passes" mapstructure:"max_passes"`
}

// ReviewConfig configures the review-queue notifier.
type ReviewConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FieldThreshold holds the review threshold settings for one field type.
type FieldThreshold struct {
	Base           float64 `yaml:"base" mapstructure:"base"`
	TrustedBonus   float64 `yaml:"trusted_bonus" mapstructure:"trusted_bonus"`
	UntrustedMalus float64 `yaml:"untrusted_malus" mapstructure:"untrusted_malus"`
}

// ConfidenceConfig configures field thresholds and source trust.
type ConfidenceConfig struct {
	Fields           map[string]FieldThreshold `yaml:"fields" mapstructure:"fields"`
	TrustedSources   []string                  `yaml:"trusted_sources" mapstructure:"trusted_sources"`
	UntrustedSources []string                  `yaml:"untrusted_sources" mapstructure:"untrusted_sources"`
}

// RulesConfig configures where cleaning rules come from.
type RulesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// MonitoringConfig configures background gauges.
type MonitoringConfig struct {
	QueueDepthIntervalSecs int `yaml:"queue_depth_interval_secs" mapstructure:"queue_depth_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultFieldThresholds returns the built-in per-field thresholds.
func DefaultFieldThresholds() map[string]FieldThreshold {
	strict := FieldThreshold{Base: 0.98, TrustedBonus: 0.02, UntrustedMalus: 0.02}
	standard := FieldThreshold{Base: 0.95, TrustedBonus: 0.02, UntrustedMalus: 0.02}
	return map[string]FieldThreshold{
		"IMO":         strict,
		"MMSI":        strict,
		"IRCS":        strict,
		"VESSEL_NAME": {Base: 0.90, TrustedBonus: 0.02, UntrustedMalus: 0.02},
		"FLAG":        standard,
		"DATE":        standard,
		"NUMBER":      standard,
		"DEFAULT":     {Base: 0.85, TrustedBonus: 0.02, UntrustedMalus: 0.02},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_secs", 30)
	v.SetDefault("server.write_timeout_secs", 30)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.signature_header", "X-Oceanid-Signature")
	v.SetDefault("ingest.workers", 10)
	v.SetDefault("ingest.queue_size", 100)
	v.SetDefault("ingest.task_timeout_secs", 300)
	v.SetDefault("ingest.download_timeout_secs", 120)
	v.SetDefault("ingest.download_retries", 1)
	v.SetDefault("ingest.max_download_bytes", 100<<20)
	v.SetDefault("ingest.max_passes", 3)
	v.SetDefault("review.url", "http://review-queue-manager.apps:8080")
	v.SetDefault("review.timeout_secs", 10)
	v.SetDefault("confidence.trusted_sources", []string{"IMO", "LLOYD", "FAO", "OFFICIAL"})
	v.SetDefault("confidence.untrusted_sources", []string{"CROWD", "UNVERIFIED", "ANONYMOUS"})
	v.SetDefault("rules.file", "")
	v.SetDefault("monitoring.queue_depth_interval_secs", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	// Field thresholds merge over the defaults so a partial override in
	// config.yaml keeps the remaining field types.
	fields := DefaultFieldThresholds()
	for k, ft := range cfg.Confidence.Fields {
		fields[strings.ToUpper(k)] = ft
	}
	cfg.Confidence.Fields = fields

	return &cfg, nil
}

// Validate checks that settings required by the given mode are present.
// Mode "serve" needs a database; "ingest" can run from a rules file alone.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Ingest.QueueSize <= 0 {
			problems = append(problems, "ingest.queue_size must be > 0")
		}
	case "ingest":
		if c.Store.DatabaseURL == "" && c.Rules.File == "" {
			problems = append(problems, "store.database_url or rules.file is required")
		}
	case "migrate":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Ingest.Workers < 1 || c.Ingest.Workers > 100 {
		problems = append(problems, "ingest.workers must be between 1 and 100")
	}
	if c.Ingest.MaxPasses < 1 {
		problems = append(problems, "ingest.max_passes must be >= 1")
	}
	for name, ft := range c.Confidence.Fields {
		if ft.Base <= 0 || ft.Base > 1 {
			problems = append(problems, fmt.Sprintf("confidence.fields.%s.base must be in (0, 1]", name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
