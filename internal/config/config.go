// Package config loads application configuration from file and
// environment and installs the global logger.
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
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	PubMed    PubMedConfig    `yaml:"pubmed" mapstructure:"pubmed"`
	Trials    TrialsConfig    `yaml:"trials" mapstructure:"trials"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Workbench WorkbenchConfig `yaml:"workbench" mapstructure:"workbench"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	ChunkSize int    `yaml:"chunk_size" mapstructure:"chunk_size"`
}

// PubMedConfig holds NCBI E-utilities settings.
type PubMedConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	CachePath     string `yaml:"cache_path" mapstructure:"cache_path"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// TrialsConfig holds ClinicalTrials.gov settings.
type TrialsConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds Notion export credentials.
type NotionConfig struct {
	Token      string `yaml:"token" mapstructure:"token"`
	DatabaseID string `yaml:"database_id" mapstructure:"database_id"`
}

// WorkbenchConfig bounds session behavior.
type WorkbenchConfig struct {
	SearchLimit   int    `yaml:"search_limit" mapstructure:"search_limit"`
	MaxEnrichRows int    `yaml:"max_enrich_rows" mapstructure:"max_enrich_rows"`
	IDCap         int    `yaml:"id_cap" mapstructure:"id_cap"`
	Locale        string `yaml:"locale" mapstructure:"locale"`
}

// ServerConfig configures the workbench API server.
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
	v.SetEnvPrefix("LITSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.chunk_size", 25)
	v.SetDefault("pubmed.key", "")
	v.SetDefault("pubmed.cache_path", "")
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pubmed.cache_ttl_hours", 24)
	v.SetDefault("trials.base_url", "https://clinicaltrials.gov/api/v2")
	v.SetDefault("workbench.search_limit", 20)
	v.SetDefault("workbench.max_enrich_rows", 200)
	v.SetDefault("workbench.id_cap", 500)
	v.SetDefault("workbench.locale", "en")

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
