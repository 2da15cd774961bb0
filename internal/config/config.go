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
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Documents DocumentsConfig `yaml:"documents" mapstructure:"documents"`
	Verifier  VerifierConfig  `yaml:"verifier" mapstructure:"verifier"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GeminiConfig holds generation-service API settings.
type GeminiConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Port    int    `yaml:"port" mapstructure:"port"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// DocumentsConfig configures the local reference-document source.
type DocumentsConfig struct {
	Dir             string `yaml:"dir" mapstructure:"dir"`
	AssetPath       string `yaml:"asset_path" mapstructure:"asset_path"`
	MaxExcerptChars int    `yaml:"max_excerpt_chars" mapstructure:"max_excerpt_chars"`
	PdfToTextPath   string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// VerifierConfig configures link verification probes.
type VerifierConfig struct {
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxConcurrent   int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	ProbesPerSecond float64 `yaml:"probes_per_second" mapstructure:"probes_per_second"`
	InternalPrefix  string  `yaml:"internal_prefix" mapstructure:"internal_prefix"`
}

// PipelineConfig configures stage retry behavior.
type PipelineConfig struct {
	MaxAttempts   int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffUnitMs int `yaml:"backoff_unit_ms" mapstructure:"backoff_unit_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// InternalAssetPrefix returns the URL prefix under which local reference
// documents are served. Links matching it are exempt from network probes.
func (c *Config) InternalAssetPrefix() string {
	if c.Verifier.InternalPrefix != "" {
		return c.Verifier.InternalPrefix
	}
	return strings.TrimRight(c.Server.BaseURL, "/") + c.Documents.AssetPath
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "research.db")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.timeout_secs", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "https://maclay.pro")
	v.SetDefault("documents.dir", "data")
	v.SetDefault("documents.asset_path", "/data")
	v.SetDefault("documents.max_excerpt_chars", 8000)
	v.SetDefault("documents.pdftotext_path", "pdftotext")
	v.SetDefault("verifier.timeout_secs", 10)
	v.SetDefault("verifier.max_concurrent", 8)
	v.SetDefault("verifier.probes_per_second", 10)
	v.SetDefault("pipeline.max_attempts", 3)
	v.SetDefault("pipeline.backoff_unit_ms", 1000)
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

	return &cfg, nil
}

// Validate checks that the settings required to run the pipeline are present.
func (c *Config) Validate() error {
	if c.Gemini.Key == "" {
		return eris.New("config: gemini.key is required (RESEARCH_GEMINI_KEY)")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return eris.Errorf("config: invalid server port %d", c.Server.Port)
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
