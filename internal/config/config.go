// Package config loads the escrow controller configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	AuditLog string `yaml:"audit_log"`
}

// DatabaseConfig controls the PostgreSQL store. When the DSN is empty the
// application falls back to the in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// LedgerConfig points at the external ledger node.
type LedgerConfig struct {
	RPCURL         string `yaml:"rpc_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ProtocolConfig identifies the controller on the ledger.
type ProtocolConfig struct {
	Address string `yaml:"address"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from the file named by ESCROW_CONFIG (when set),
// then applies environment variable overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Ledger: LedgerConfig{TimeoutSeconds: 30},
	}

	if path := os.Getenv("ESCROW_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Ledger.RPCURL == "" {
		return nil, fmt.Errorf("ledger rpc_url is required")
	}
	if cfg.Protocol.Address == "" {
		return nil, fmt.Errorf("protocol address is required")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ESCROW_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ESCROW_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ESCROW_AUDIT_LOG"); v != "" {
		cfg.Server.AuditLog = v
	}
	if v := os.Getenv("ESCROW_DATABASE_DSN"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = v
	}
	if v := os.Getenv("ESCROW_LEDGER_RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("ESCROW_PROTOCOL_ADDRESS"); v != "" {
		cfg.Protocol.Address = v
	}
	if v := os.Getenv("ESCROW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ESCROW_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
