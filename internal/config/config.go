package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the correlation service.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Correlation CorrelationConfig `yaml:"correlation"`
	SLA         SLAConfig         `yaml:"sla"`
	Detection   DetectionConfig   `yaml:"detection"`
	Cache       CacheConfig       `yaml:"cache"`
	CORS        CORSConfig        `yaml:"cors"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// ServerConfig controls the gRPC, HTTP and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	HTTPAddress     string        `yaml:"httpAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DatabaseConfig points at the SQLite transaction store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// CorrelationConfig tunes the alert correlator.
type CorrelationConfig struct {
	Window    time.Duration `yaml:"window"`
	SortInput bool          `yaml:"sortInput"`
}

// SLAConfig sizes the latency window and sets the breach threshold.
type SLAConfig struct {
	WindowSize int     `yaml:"windowSize"`
	SLAMS      float64 `yaml:"slaMs"`
}

// DetectionConfig controls the amount flagger.
type DetectionConfig struct {
	ZScoreThreshold float64 `yaml:"zScoreThreshold"`
}

// CacheConfig controls caching of correlated alert responses.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// CORSConfig lists origins allowed to call the dashboard API.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TracingConfig names the service for OpenTelemetry spans.
type TracingConfig struct {
	ServiceName string `yaml:"serviceName"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("FINCORR_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			HTTPAddress:     ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Database:    DatabaseConfig{DSN: "file:fincorr.db?_pragma=busy_timeout(5000)"},
		Correlation: CorrelationConfig{Window: time.Hour},
		SLA:         SLAConfig{WindowSize: 200, SLAMS: 500},
		Detection:   DetectionConfig{ZScoreThreshold: 2.5},
		Cache:       CacheConfig{Enabled: true, TTL: 30 * time.Second},
		CORS:        CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Logging:     LoggingConfig{Level: "info", JSON: false},
		Tracing:     TracingConfig{ServiceName: "fincorr"},
	}
}

// Validate rejects settings the components cannot run with.
func (c Config) Validate() error {
	var problems []string
	if c.Correlation.Window <= 0 {
		problems = append(problems, "correlation.window must be positive")
	}
	if c.SLA.WindowSize <= 0 {
		problems = append(problems, "sla.windowSize must be positive")
	}
	if c.SLA.SLAMS < 0 {
		problems = append(problems, "sla.slaMs must not be negative")
	}
	if c.Database.DSN == "" {
		problems = append(problems, "database.dsn is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FINCORR_GRPC_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("FINCORR_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("FINCORR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("FINCORR_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("FINCORR_CORRELATION_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Correlation.Window = d
		}
	}
	if v := os.Getenv("FINCORR_CORRELATION_SORT"); v != "" {
		cfg.Correlation.SortInput = isTrue(v)
	}
	if v := os.Getenv("FINCORR_SLA_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SLA.WindowSize = n
		}
	}
	if v := os.Getenv("FINCORR_SLA_MS"); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SLA.SLAMS = ms
		}
	}
	if v := os.Getenv("FINCORR_ZSCORE_THRESHOLD"); v != "" {
		if z, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.ZScoreThreshold = z
		}
	}
	if v := os.Getenv("FINCORR_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = isTrue(v)
	}
	if v := os.Getenv("FINCORR_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}
	if v := os.Getenv("FINCORR_CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("FINCORR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FINCORR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
