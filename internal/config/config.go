package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime settings, parsed from PESABRIDGE_* environment
// variables.
type Config struct {
	Addr     string `env:"PESABRIDGE_ADDR" envDefault:":8080"`
	LogLevel string `env:"PESABRIDGE_LOG_LEVEL" envDefault:"info"`

	// Postgres DSN. When empty the service runs on in-memory stores
	// (development / tests only).
	PostgresDSN string `env:"PESABRIDGE_PG_DSN"`

	// Auth.
	AuthSecret    string        `env:"PESABRIDGE_AUTH_SECRET"`
	AccessTTL     time.Duration `env:"PESABRIDGE_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"PESABRIDGE_REFRESH_TTL" envDefault:"168h"`
	LockoutLimit  int           `env:"PESABRIDGE_LOCKOUT_LIMIT" envDefault:"5"`
	LockoutWindow time.Duration `env:"PESABRIDGE_LOCKOUT_WINDOW" envDefault:"15m"`
	LockoutPeriod time.Duration `env:"PESABRIDGE_LOCKOUT_PERIOD" envDefault:"30m"`

	// Key escrow. EscrowKey is a base64-encoded 32-byte AES key; when empty
	// the escrow service falls back to a reversible encoding and logs a loud
	// warning on every start.
	EscrowKey   string        `env:"PESABRIDGE_ESCROW_KEY"`
	EscrowTTL   time.Duration `env:"PESABRIDGE_ESCROW_TTL" envDefault:"30m"`
	EscrowSweep time.Duration `env:"PESABRIDGE_ESCROW_SWEEP" envDefault:"5m"`

	// Redis-backed one-time token store for multi-process deployments.
	// Empty means the in-process store is used.
	RedisAddr     string `env:"PESABRIDGE_REDIS_ADDR"`
	RedisPassword string `env:"PESABRIDGE_REDIS_PASSWORD"`
	RedisDB       int    `env:"PESABRIDGE_REDIS_DB" envDefault:"0"`

	// Kafka transfer-event producer; disabled when no brokers are set.
	KafkaBrokers []string `env:"PESABRIDGE_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"PESABRIDGE_KAFKA_TOPIC" envDefault:"pesabridge.transfers"`

	// Blockchain network gateways. Empty URL selects the in-process fake
	// provider for that network.
	StellarGatewayURL string `env:"PESABRIDGE_STELLAR_GATEWAY_URL"`
	HederaGatewayURL  string `env:"PESABRIDGE_HEDERA_GATEWAY_URL"`

	// HTTP hardening.
	RateBurst  int   `env:"PESABRIDGE_RATE_BURST" envDefault:"20"`
	RatePerSec int   `env:"PESABRIDGE_RATE_PER_SEC" envDefault:"10"`
	MaxBody    int64 `env:"PESABRIDGE_MAX_BODY_BYTES" envDefault:"1048576"`

	// Demo transfer stream for dashboards.
	DemoStream bool `env:"PESABRIDGE_DEMO_STREAM" envDefault:"false"`

	MigrationsDir string `env:"PESABRIDGE_MIGRATIONS_DIR" envDefault:"migrations"`
	SeedsDir      string `env:"PESABRIDGE_SEEDS_DIR" envDefault:"seeds"`
}

// Load parses environment variables into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("PESABRIDGE_AUTH_SECRET is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.EscrowTTL <= 0 {
		return fmt.Errorf("escrow TTL must be positive")
	}
	if _, err := c.EscrowKeyBytes(); err != nil {
		return err
	}
	return nil
}

// EscrowKeyBytes decodes the configured escrow encryption key. A nil result
// with nil error means no key is configured.
func (c *Config) EscrowKeyBytes() ([]byte, error) {
	raw := strings.TrimSpace(c.EscrowKey)
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("PESABRIDGE_ESCROW_KEY is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("PESABRIDGE_ESCROW_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}
