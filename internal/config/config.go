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
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Orgs      OrgsConfig      `yaml:"orgs" mapstructure:"orgs"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures where the raw publications are fetched from.
type SourceConfig struct {
	BaseURI       string  `yaml:"base_uri" mapstructure:"base_uri"`
	LocalRoot     string  `yaml:"local_root" mapstructure:"local_root"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheSize     int     `yaml:"cache_size" mapstructure:"cache_size"`
}

// PipelineConfig configures the warehouse build.
type PipelineConfig struct {
	Name         string `yaml:"name" mapstructure:"name"`
	EarliestYear int    `yaml:"earliest_year" mapstructure:"earliest_year"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
	ArtifactDir  string `yaml:"artifact_dir" mapstructure:"artifact_dir"`
}

// ReconcileConfig configures the enrollment total cross-check.
type ReconcileConfig struct {
	Tolerance           float64 `yaml:"tolerance" mapstructure:"tolerance"`
	SuppressionMidpoint float64 `yaml:"suppression_midpoint" mapstructure:"suppression_midpoint"`
}

// OrgsConfig configures parent-organization canonicalization.
type OrgsConfig struct {
	HistoryFile string `yaml:"history_file" mapstructure:"history_file"`
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
	v.SetEnvPrefix("ENROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "enroll.db")
	v.SetDefault("source.rate_per_second", 2.0)
	v.SetDefault("source.timeout_secs", 60)
	v.SetDefault("source.cache_size", 64)
	v.SetDefault("pipeline.name", "monthly_enrollment")
	v.SetDefault("pipeline.earliest_year", 2006)
	v.SetDefault("pipeline.concurrency", 8)
	v.SetDefault("pipeline.artifact_dir", "artifacts")
	v.SetDefault("reconcile.tolerance", 0.003)
	v.SetDefault("reconcile.suppression_midpoint", 5.5)
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
