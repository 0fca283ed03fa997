package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/core/monitor"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, expanding environment variables first.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	var cfg AppConfig
	_ = cfg.applyDefaults()
	return &cfg
}

func (cfg *AppConfig) applyDefaults() error {
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 50051
	}
	if cfg.Server.HealthPort == 0 {
		cfg.Server.HealthPort = 8080
	}

	if cfg.Ledger.RPCURL == "" {
		cfg.Ledger.RPCURL = "http://localhost:8899"
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 30 * time.Second
	}
	if cfg.Ledger.RetryAttempts == 0 {
		cfg.Ledger.RetryAttempts = 3
	}
	if cfg.Ledger.Rotation == "" {
		cfg.Ledger.Rotation = "round_robin"
	}
	commitment, err := domain.ParseCommitment(string(cfg.Ledger.DefaultCommitment))
	if err != nil {
		return fmt.Errorf("ledger.default_commitment: %w", err)
	}
	cfg.Ledger.DefaultCommitment = commitment

	defaults := monitor.DefaultConfig()
	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = defaults.PollInterval
	}
	if cfg.Monitor.DefaultTimeout == 0 {
		cfg.Monitor.DefaultTimeout = defaults.DefaultTimeout
	}
	if cfg.Monitor.MaxTimeout == 0 {
		cfg.Monitor.MaxTimeout = defaults.MaxTimeout
	}
	if cfg.Monitor.DefaultTimeout > cfg.Monitor.MaxTimeout {
		return fmt.Errorf("monitor.default_timeout %s exceeds monitor.max_timeout %s",
			cfg.Monitor.DefaultTimeout, cfg.Monitor.MaxTimeout)
	}
	if cfg.Monitor.BufferSize == 0 {
		cfg.Monitor.BufferSize = defaults.BufferSize
	}
	switch cfg.Monitor.ReadyGate {
	case "":
		cfg.Monitor.ReadyGate = defaults.ReadyGate
	case monitor.GatePush, monitor.GatePoll:
	default:
		return fmt.Errorf("monitor.ready_gate: unknown gate %q", cfg.Monitor.ReadyGate)
	}
	if cfg.Monitor.SweepInterval == 0 {
		cfg.Monitor.SweepInterval = defaults.SweepInterval
	}
	if cfg.Monitor.SweepGrace == 0 {
		cfg.Monitor.SweepGrace = defaults.SweepGrace
	}
	if cfg.Monitor.Shards == 0 {
		cfg.Monitor.Shards = defaults.Shards
	}

	if cfg.Redis.StatusTTL == 0 {
		cfg.Redis.StatusTTL = 24 * time.Hour
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = 2
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	return nil
}
