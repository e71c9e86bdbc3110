// Package config provides configuration loading for designgov.
//
// Configuration is read from a YAML file, overridden by DESIGNGOV_*
// environment variables, completed with defaults and validated.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete designgov configuration.
type Config struct {
	Governance GovernanceConfig `koanf:"governance"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	Audit      AuditConfig      `koanf:"audit"`
	Server     ServerConfig     `koanf:"server"`
	MCP        MCPConfig        `koanf:"mcp"`
	GrantsFile string           `koanf:"grants_file"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// GovernanceConfig tunes the governance middleware.
type GovernanceConfig struct {
	BulkThreshold           int `koanf:"bulk_threshold"`
	MaxOperationsPerSession int `koanf:"max_operations_per_session"`
	MaxElementsPerOperation int `koanf:"max_elements_per_operation"`
}

// RateLimitConfig sizes the per-agent sliding window.
type RateLimitConfig struct {
	Window Duration `koanf:"window"`
	MaxOps int      `koanf:"max_ops"`
}

// AuditConfig selects the audit sinks. Both are optional.
type AuditConfig struct {
	JSONLPath         string `koanf:"jsonl_path"`
	NATSURL           string `koanf:"nats_url"`
	NATSToken         Secret `koanf:"nats_token"`
	NATSSubjectPrefix string `koanf:"nats_subject_prefix"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host              string   `koanf:"host"`
	Port              int      `koanf:"http_port"`
	RequestsPerSecond float64  `koanf:"requests_per_second"`
	Burst             int      `koanf:"burst"`
	ShutdownTimeout   Duration `koanf:"shutdown_timeout"`
}

// MCPConfig lists the target tool servers by name (geometry, spatial,
// validation, documentation).
type MCPConfig struct {
	Servers map[string]MCPServerConfig `koanf:"servers"`
}

// MCPServerConfig reaches one tool server either by spawning Command or by
// connecting to URL.
type MCPServerConfig struct {
	Command string   `koanf:"command"`
	Args    []string `koanf:"args"`
	URL     string   `koanf:"url"`
}

// LoggingConfig is the user-facing subset of logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig is the user-facing subset of telemetry settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default values.
const (
	DefaultBulkThreshold     = 50
	DefaultRateLimitMaxOps   = 100
	DefaultRateLimitWindow   = time.Minute
	DefaultHTTPPort          = 9191
	DefaultSubjectPrefix     = "designgov.audit"
	DefaultRequestsPerSecond = 20
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing fields.
func applyDefaults(cfg *Config) {
	if cfg.Governance.BulkThreshold == 0 {
		cfg.Governance.BulkThreshold = DefaultBulkThreshold
	}
	if cfg.Governance.MaxOperationsPerSession == 0 {
		cfg.Governance.MaxOperationsPerSession = 100
	}
	if cfg.Governance.MaxElementsPerOperation == 0 {
		cfg.Governance.MaxElementsPerOperation = 1000
	}

	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = Duration(DefaultRateLimitWindow)
	}
	if cfg.RateLimit.MaxOps == 0 {
		cfg.RateLimit.MaxOps = DefaultRateLimitMaxOps
	}

	if cfg.Audit.NATSSubjectPrefix == "" {
		cfg.Audit.NATSSubjectPrefix = DefaultSubjectPrefix
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultHTTPPort
	}
	if cfg.Server.RequestsPerSecond == 0 {
		cfg.Server.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Server.Burst == 0 {
		cfg.Server.Burst = 2 * int(cfg.Server.RequestsPerSecond)
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "designgov"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Governance.BulkThreshold < 0 {
		return fmt.Errorf("governance.bulk_threshold must be >= 0, got %d", c.Governance.BulkThreshold)
	}
	if c.Governance.MaxOperationsPerSession < 0 || c.Governance.MaxElementsPerOperation < 0 {
		return errors.New("governance caps must be >= 0")
	}

	if c.RateLimit.Window.Duration() <= 0 {
		return errors.New("rate_limit.window must be positive")
	}
	if c.RateLimit.MaxOps < 0 {
		return fmt.Errorf("rate_limit.max_ops must be >= 0, got %d", c.RateLimit.MaxOps)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.RequestsPerSecond < 0 {
		return errors.New("server.requests_per_second must be >= 0")
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	for name, srv := range c.MCP.Servers {
		if (srv.Command == "") == (srv.URL == "") {
			return fmt.Errorf("mcp server %q: exactly one of command or url is required", name)
		}
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint required when telemetry is enabled")
	}

	return nil
}
