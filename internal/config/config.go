package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Chunker   ChunkerConfig   `yaml:"chunker" mapstructure:"chunker"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Dedupe    DedupeConfig    `yaml:"dedupe" mapstructure:"dedupe"`
	Linker    LinkerConfig    `yaml:"linker" mapstructure:"linker"`
	Taxonomy  TaxonomyConfig  `yaml:"taxonomy" mapstructure:"taxonomy"`
	Gate      GateConfig      `yaml:"gate" mapstructure:"gate"`
	Learning  LearningConfig  `yaml:"learning" mapstructure:"learning"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ChunkerConfig configures document chunking.
type ChunkerConfig struct {
	MaxChars     int `yaml:"max_chars" mapstructure:"max_chars"`
	CharsPerPage int `yaml:"chars_per_page" mapstructure:"chars_per_page"`
}

// ExtractConfig configures candidate generation.
type ExtractConfig struct {
	MinTextLen  int     `yaml:"min_text_len" mapstructure:"min_text_len"`
	DefaultConf float64 `yaml:"default_confidence" mapstructure:"default_confidence"`
	RuleFile    string  `yaml:"rule_file" mapstructure:"rule_file"`
}

// DedupeConfig configures candidate deduplication.
type DedupeConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
}

// LinkerConfig configures OFC-to-vulnerability linking.
type LinkerConfig struct {
	Window int `yaml:"window" mapstructure:"window"`
}

// TaxonomyConfig configures label resolution. File points at an XLSX
// vocabulary workbook; when empty and the store is postgres, terms come
// from the taxonomy tables instead.
type TaxonomyConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	File           string  `yaml:"file" mapstructure:"file"`
}

// GateConfig configures the quality gate thresholds.
type GateConfig struct {
	MinConfidence      float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	DiscardFloor       float64 `yaml:"discard_floor" mapstructure:"discard_floor"`
	EvidenceOverlapMin float64 `yaml:"evidence_overlap_min" mapstructure:"evidence_overlap_min"`
}

// LearningConfig configures learning-event recording.
type LearningConfig struct {
	ModelVersion string `yaml:"model_version" mapstructure:"model_version"`
}

// MonitorConfig configures the retrain monitor.
type MonitorConfig struct {
	IntervalMins  int     `yaml:"interval_mins" mapstructure:"interval_mins"`
	RecentEvents  int     `yaml:"recent_events" mapstructure:"recent_events"`
	YieldFloor    float64 `yaml:"yield_floor" mapstructure:"yield_floor"`
	NewEventFloor int     `yaml:"new_event_floor" mapstructure:"new_event_floor"`
	WebhookURL    string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// InferenceConfig configures the external model-inference client.
type InferenceConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
}

// BatchConfig configures multi-document batch processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// ServerConfig configures the results/approval HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GUIDANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "guidance.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("batch.max_concurrent_documents", 4)
	v.SetDefault("chunker.max_chars", 4000)
	v.SetDefault("chunker.chars_per_page", 3000)
	v.SetDefault("extract.min_text_len", 15)
	v.SetDefault("extract.default_confidence", 0.7)
	v.SetDefault("dedupe.similarity_threshold", 0.8)
	v.SetDefault("linker.window", 3)
	v.SetDefault("taxonomy.fuzzy_threshold", 0.7)
	v.SetDefault("gate.min_confidence", 0.4)
	v.SetDefault("gate.discard_floor", 0.2)
	v.SetDefault("gate.evidence_overlap_min", 0.3)
	v.SetDefault("learning.model_version", "extractor-v1")
	v.SetDefault("monitor.interval_mins", 15)
	v.SetDefault("monitor.recent_events", 5)
	v.SetDefault("monitor.yield_floor", 0.80)
	v.SetDefault("monitor.new_event_floor", 3)
	v.SetDefault("inference.model", "claude-haiku-4-5-20251001")
	v.SetDefault("inference.timeout_secs", 60)
	v.SetDefault("inference.rps", 2)

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

	if cfg.Gate.DiscardFloor > cfg.Gate.MinConfidence {
		return nil, eris.Errorf(
			"config: gate.discard_floor %.2f must not exceed gate.min_confidence %.2f",
			cfg.Gate.DiscardFloor, cfg.Gate.MinConfidence,
		)
	}

	return &cfg, nil
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
