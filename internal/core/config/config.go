package config

import (
	"time"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/core/monitor"
	redisclient "github.com/vietddude/txgate/internal/infra/redis"
	"github.com/vietddude/txgate/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Ledger   LedgerConfig       `yaml:"ledger"`
	Monitor  monitor.Config     `yaml:"monitor"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	GRPCPort   int `yaml:"grpc_port"`
	HealthPort int `yaml:"health_port"` // HTTP /health and /metrics
}

// LedgerConfig holds the ledger node endpoints.
type LedgerConfig struct {
	RPCURL       string   `yaml:"rpc_url"`
	FallbackURLs []string `yaml:"fallback_urls"` // read calls only
	WSURL        string   `yaml:"ws_url"`        // derived from rpc_url when empty
	DisablePush  bool     `yaml:"disable_push"`

	Timeout           time.Duration     `yaml:"timeout"`
	RetryAttempts     int               `yaml:"retry_attempts"`
	Rotation          string            `yaml:"rotation"` // round_robin, adaptive
	DefaultCommitment domain.Commitment `yaml:"default_commitment"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`   // rotated with lumberjack when set
}
