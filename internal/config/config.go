// Package config provides configuration loading for healerd.
//
// Configuration is loaded from a YAML file and overridden by environment
// variables, with hardcoded defaults filling the gaps.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete healerd configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Reasoner  ReasonerConfig  `koanf:"reasoner"`
	Executor  ExecutorConfig  `koanf:"executor"`
	Safety    SafetyConfig    `koanf:"safety"`
	Monitor   MonitorConfig   `koanf:"monitor"`
	Ansible   AnsibleConfig   `koanf:"ansible"`
	History   HistoryConfig   `koanf:"history"`
	NATS      NATSConfig      `koanf:"nats"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
	// Endpoint is the OTLP gRPC collector endpoint (host:port).
	Endpoint string `koanf:"endpoint"`
	Insecure bool   `koanf:"insecure"`
}

// ReasonerConfig holds reasoning-service client configuration.
type ReasonerConfig struct {
	Provider   string   `koanf:"provider"`
	Model      string   `koanf:"model"`
	APIKey     Secret   `koanf:"api_key"`
	BaseURL    string   `koanf:"base_url"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
}

// ExecutorConfig holds command execution configuration.
type ExecutorConfig struct {
	// Channel selects the transport: "local" or "ssh".
	Channel string `koanf:"channel"`
	SSHUser string `koanf:"ssh_user"`
	// CommandTimeout bounds one local command; zero means unbounded.
	CommandTimeout Duration `koanf:"command_timeout"`
}

// SafetyConfig holds safety gate configuration.
type SafetyConfig struct {
	// BlockOnConfirmation makes confirmation-required plans fail the gate
	// instead of passing with a warning.
	BlockOnConfirmation bool `koanf:"block_on_confirmation"`
}

// MonitorConfig holds pipeline monitoring configuration.
type MonitorConfig struct {
	PollInterval Duration `koanf:"poll_interval"`
}

// AnsibleConfig holds playbook runner configuration.
type AnsibleConfig struct {
	PlaybookTimeout Duration `koanf:"playbook_timeout"`
	MaxRetries      int      `koanf:"max_retries"`
}

// HistoryConfig bounds the in-memory audit history.
type HistoryConfig struct {
	MaxErrors   int `koanf:"max_errors"`
	MaxSessions int `koanf:"max_sessions"`
}

// NATSConfig holds the optional session-event publisher configuration.
type NATSConfig struct {
	// URL enables publishing when non-empty.
	URL     string `koanf:"url"`
	Subject string `koanf:"subject"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8844
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

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "healerd"
	}

	if cfg.Reasoner.Provider == "" {
		cfg.Reasoner.Provider = "anthropic"
	}
	if cfg.Reasoner.Timeout == 0 {
		cfg.Reasoner.Timeout = Duration(30 * time.Second)
	}
	if cfg.Reasoner.MaxRetries == 0 {
		cfg.Reasoner.MaxRetries = 2
	}

	if cfg.Executor.Channel == "" {
		cfg.Executor.Channel = "local"
	}

	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = Duration(30 * time.Second)
	}

	if cfg.Ansible.PlaybookTimeout == 0 {
		cfg.Ansible.PlaybookTimeout = Duration(30 * time.Minute)
	}
	if cfg.Ansible.MaxRetries == 0 {
		cfg.Ansible.MaxRetries = 3
	}

	if cfg.History.MaxErrors == 0 {
		cfg.History.MaxErrors = 500
	}
	if cfg.History.MaxSessions == 0 {
		cfg.History.MaxSessions = 500
	}

	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "healerd.sessions"
	}
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Reasoner.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("reasoner.provider must be anthropic or openai, got %q", c.Reasoner.Provider)
	}

	switch c.Executor.Channel {
	case "local", "ssh":
	default:
		return fmt.Errorf("executor.channel must be local or ssh, got %q", c.Executor.Channel)
	}

	if c.Ansible.MaxRetries < 1 {
		return fmt.Errorf("ansible.max_retries must be at least 1, got %d", c.Ansible.MaxRetries)
	}
	if c.History.MaxErrors < 0 || c.History.MaxSessions < 0 {
		return fmt.Errorf("history limits cannot be negative")
	}

	return nil
}
