package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds every setting read from the environment.
type Config struct {
	Port        string `env:"PORT,default=8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	StoreDriver string `env:"STORE_DRIVER,default=postgres"` // postgres | sqlite | memory
	LogLevel    string `env:"LOG_LEVEL,default=info"`
	LogFormat   string `env:"LOG_FORMAT,default=text"`

	AuthSecret       string        `env:"AUTH_SECRET"`
	AuthTokenTTL     time.Duration `env:"AUTH_TOKEN_TTL,default=24h"`
	AuthChallengeTTL time.Duration `env:"AUTH_CHALLENGE_TTL,default=5m"`

	OracleURL     string        `env:"ORACLE_URL,default=https://api.thegraph.com/subgraphs/name/requestnetwork/request-payments-goerli"`
	OracleTimeout time.Duration `env:"ORACLE_TIMEOUT,default=10s"`
	OracleRPS     float64       `env:"ORACLE_RPS,default=5"`

	GatedServiceURL string        `env:"GATED_SERVICE_URL"`
	GateCacheSize   int           `env:"GATE_CACHE_SIZE,default=10000"`
	GateCacheTTL    time.Duration `env:"GATE_CACHE_TTL,default=0s"`
	GateOpenPaths   string        `env:"GATE_OPEN_PATHS"` // comma separated; "/prefix/*" matches a subtree
	UpstreamURL     string        `env:"UPSTREAM_URL"`
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load() (*Config, error) {
	// .env 文件可选，缺失时直接读取系统环境变量
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.AuthSecret == "" {
		return errors.New("AUTH_SECRET must be set")
	}
	switch c.StoreDriver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.GateCacheSize <= 0 {
		return fmt.Errorf("GATE_CACHE_SIZE must be positive, got %d", c.GateCacheSize)
	}
	return nil
}

// DefaultOpenPaths are reachable without a permission when GATE_OPEN_PATHS is unset.
var DefaultOpenPaths = []string{"/healthz", "/metrics", "/auth/challenge", "/auth/solve"}

// OpenPaths splits GATE_OPEN_PATHS into its comma separated entries.
func (c *Config) OpenPaths() []string {
	if strings.TrimSpace(c.GateOpenPaths) == "" {
		return DefaultOpenPaths
	}
	var paths []string
	for _, p := range strings.Split(c.GateOpenPaths, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
