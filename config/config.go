package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Database     DatabaseConfig     `yaml:"database" mapstructure:"database"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer" mapstructure:"analyzer"`
	Queue        QueueConfig        `yaml:"queue" mapstructure:"queue"`
	Storage      StorageConfig      `yaml:"storage" mapstructure:"storage"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Notification NotificationConfig `yaml:"notification" mapstructure:"notification"`
	Advisory     AdvisoryConfig     `yaml:"advisory" mapstructure:"advisory"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	Path   string `yaml:"path" mapstructure:"path"`
}

// GetDSN returns the data source name for the database connection.
func (dc *DatabaseConfig) GetDSN() string {
	return dc.Path
}

// AnalyzerConfig represents analysis pipeline configuration.
type AnalyzerConfig struct {
	TimeoutSeconds     int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	BinwalkPath        string `yaml:"binwalk_path" mapstructure:"binwalk_path"`
	BinwalkTimeoutSecs int    `yaml:"binwalk_timeout_seconds" mapstructure:"binwalk_timeout_seconds"`
	EnableBinwalk      bool   `yaml:"enable_binwalk" mapstructure:"enable_binwalk"`
	TempDir            string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// QueueConfig represents analysis queue configuration.
type QueueConfig struct {
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
	Workers  int `yaml:"workers" mapstructure:"workers"`
}

// StorageConfig represents firmware file storage configuration. Backend is
// either "local" or "minio".
type StorageConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"`
	LocalDir  string `yaml:"local_dir" mapstructure:"local_dir"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// ServerConfig represents the API server configuration.
type ServerConfig struct {
	Port string `yaml:"port" mapstructure:"port"`
}

// NotificationConfig represents webhook notification configuration.
type NotificationConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url" mapstructure:"slack_webhook_url"`
	SlackChannel    string `yaml:"slack_channel" mapstructure:"slack_channel"`
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
}

// AdvisoryConfig represents the NVD advisory lookup configuration.
type AdvisoryConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	NVDBaseURL     string `yaml:"nvd_base_url" mapstructure:"nvd_base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Output string `yaml:"output" mapstructure:"output"`
	File   string `yaml:"file" mapstructure:"file"`
}

// LoadConfig loads configuration from an optional .env file, a YAML config
// file, and FERROCODEX_* environment variables, in increasing precedence.
// An empty configPath searches the standard locations.
func LoadConfig(configPath string) (*Config, error) {
	// A .env file is optional; ignore a missing one.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".ferrocodex-analysis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.AddConfigPath("/etc/ferrocodex")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment carry it.
	}

	v.SetEnvPrefix("FERROCODEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateAndSetDefaults(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "./ferrocodex_analysis.db")

	v.SetDefault("analyzer.timeout_seconds", 300)
	v.SetDefault("analyzer.binwalk_path", "binwalk")
	v.SetDefault("analyzer.binwalk_timeout_seconds", 120)
	v.SetDefault("analyzer.enable_binwalk", true)
	v.SetDefault("analyzer.temp_dir", "")

	v.SetDefault("queue.capacity", 100)
	v.SetDefault("queue.workers", 4)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./firmware-files")
	v.SetDefault("storage.bucket", "firmware")

	v.SetDefault("server.port", "8080")

	v.SetDefault("notification.enabled", false)

	v.SetDefault("advisory.enabled", true)
	v.SetDefault("advisory.nvd_base_url", "https://services.nvd.nist.gov/rest/json/cves/2.0")
	v.SetDefault("advisory.timeout_seconds", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
}

// validateAndSetDefaults validates configuration and prepares directories.
func validateAndSetDefaults(cfg *Config) error {
	cfg.Database.Path = os.ExpandEnv(cfg.Database.Path)
	cfg.Storage.LocalDir = os.ExpandEnv(cfg.Storage.LocalDir)
	cfg.Analyzer.TempDir = os.ExpandEnv(cfg.Analyzer.TempDir)

	if cfg.Database.Driver == "sqlite3" {
		dbDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dbDir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	switch cfg.Storage.Backend {
	case "local":
		// LocalStore creates its own directory.
	case "minio":
		if cfg.Storage.Endpoint == "" {
			return fmt.Errorf("storage.endpoint is required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	if cfg.Analyzer.TimeoutSeconds <= 0 {
		cfg.Analyzer.TimeoutSeconds = 300
	}
	if cfg.Queue.Capacity <= 0 {
		cfg.Queue.Capacity = 100
	}
	if cfg.Queue.Workers <= 0 {
		cfg.Queue.Workers = 4
	}

	return nil
}
