package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the root configuration of the client runtime.
	Config struct {
		Logger    LoggerConfig    `yaml:"logger"`
		Transport TransportConfig `yaml:"transport"`
		Backends  BackendsConfig  `yaml:"backends"`
		Metrics   MetricsConfig   `yaml:"metrics"`
		Prefs     PrefsConfig     `yaml:"prefs"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
	}

	// TransportConfig tunes the HTTP transport shared by listings, login and
	// the web-tile backend.
	TransportConfig struct {
		Timeout       time.Duration `yaml:"timeout"`        // per-request timeout
		MaxRetries    uint64        `yaml:"max_retries"`    // retry budget for idempotent requests
		RetryInterval time.Duration `yaml:"retry_interval"` // initial backoff interval
	}

	// BackendsConfig carries per-backend settings resolved at session creation.
	BackendsConfig struct {
		WebTile WebTileConfig `yaml:"web_tile"`
		Gateway GatewayConfig `yaml:"gateway"`
		BufSvc  BufSvcConfig  `yaml:"buffer_service"`
	}

	// WebTileConfig holds web-tile backend arguments. Quality is kept as a
	// string because it arrives from free-form backend args; the backend
	// parses and range-checks it, falling back to its default on bad input.
	WebTileConfig struct {
		Quality string `yaml:"quality"`
	}

	// GatewayConfig controls the optional raw-pixel gateway feature.
	GatewayConfig struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	}

	// BufSvcConfig configures the buffer-service pixel microservice backend.
	BufSvcConfig struct {
		Port int `yaml:"port"`
	}

	// MetricsConfig configures the optional prometheus instrumentation.
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// PrefsConfig locates the sqlite database holding per-server preferences
	// (last used URI and username).
	PrefsConfig struct {
		Path string `yaml:"path"`
	}
)

// SetDefaults fills zero values with working defaults.
func (c *Config) SetDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "console"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stdout"
	}
	if c.Logger.MaxSize == 0 {
		c.Logger.MaxSize = 100
	}
	if c.Logger.MaxBackups == 0 {
		c.Logger.MaxBackups = 3
	}
	if c.Logger.MaxAge == 0 {
		c.Logger.MaxAge = 7
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 30 * time.Second
	}
	if c.Transport.RetryInterval == 0 {
		c.Transport.RetryInterval = 500 * time.Millisecond
	}
	if c.Backends.BufSvc.Port == 0 {
		c.Backends.BufSvc.Port = 8082
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "mirador"
	}
	if c.Prefs.Path == "" {
		c.Prefs.Path = filepath.Join(".mirador", "prefs.db")
	}
}

// LoadConfig loads configuration from a YAML file. Any existing .env files
// given are loaded into the process environment first so values like API
// endpoints can be overridden per deployment.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.SetDefaults()
	return &cfg, nil
}
