package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/biometrics-identity/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/biometrics-identity/backend/internal/common/errors"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

type Argon2Config struct {
	MemoryKiB   uint32 `env:"ARGON2_MEMORY_KIB" envDefault:"65536"`
	Iterations  uint32 `env:"ARGON2_ITERATIONS" envDefault:"3"`
	Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"2"`
}

type IdentityConfig struct {
	HTTPPort       string        `env:"IDENTITY_HTTP_PORT" envDefault:"8081"`
	Store          string        `env:"IDENTITY_STORE" envDefault:"postgres"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"identity.db"`
	JWTSecret      string        `env:"JWT_SECRET"`
	RequestTimeout time.Duration `env:"IDENTITY_REQUEST_TIMEOUT" envDefault:"5s"`
	LogDir         string        `env:"LOG_DIR"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RateLimitRPS   float64       `env:"IDENTITY_RATE_LIMIT_RPS" envDefault:"5"`
	RateLimitBurst int           `env:"IDENTITY_RATE_LIMIT_BURST" envDefault:"10"`
	TrustProxy     bool          `env:"IDENTITY_TRUST_PROXY_HEADERS" envDefault:"false"`
	Argon2         Argon2Config
}

// LoadIdentityConfig reads the process environment. Every failure is a
// ErrConfiguration and is meant to stop the process at startup.
func LoadIdentityConfig() (IdentityConfig, error) {
	cfg, err := parseIdentityConfig()
	if err != nil {
		return IdentityConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return IdentityConfig{}, err
	}

	return cfg, nil
}

// LoadStoreConfig reads the environment but only checks the storage
// settings, so migrations can run without the signing secret.
func LoadStoreConfig() (IdentityConfig, error) {
	cfg, err := parseIdentityConfig()
	if err != nil {
		return IdentityConfig{}, err
	}

	if err := cfg.ValidateStore(); err != nil {
		return IdentityConfig{}, err
	}

	return cfg, nil
}

func parseIdentityConfig() (IdentityConfig, error) {
	var cfg IdentityConfig
	if err := env.Parse(&cfg); err != nil {
		return IdentityConfig{}, commonerrors.ErrConfiguration.WithCause(fmt.Errorf("parse env: %w", err))
	}
	return cfg, nil
}

func (c IdentityConfig) Validate() error {
	if err := ValidateJWTSecret(c.JWTSecret); err != nil {
		return err
	}

	if err := c.ValidateStore(); err != nil {
		return err
	}

	if c.RequestTimeout <= 0 {
		return commonerrors.ErrConfiguration.WithCause(fmt.Errorf("IDENTITY_REQUEST_TIMEOUT must be positive, got %v", c.RequestTimeout))
	}

	if c.Argon2.MemoryKiB < 8*1024 || c.Argon2.Iterations == 0 || c.Argon2.Parallelism == 0 {
		return commonerrors.ErrConfiguration.WithCause(fmt.Errorf("argon2 parameters too weak: m=%d t=%d p=%d",
			c.Argon2.MemoryKiB, c.Argon2.Iterations, c.Argon2.Parallelism))
	}

	argon2Params := commoncrypto.Argon2idParams{
		MemoryKiB:   c.Argon2.MemoryKiB,
		Iterations:  c.Argon2.Iterations,
		Parallelism: c.Argon2.Parallelism,
	}
	if err := argon2Params.Validate(); err != nil {
		return commonerrors.ErrConfiguration.WithCause(err)
	}

	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return commonerrors.ErrConfiguration.WithCause(fmt.Errorf("rate limit must be positive: rps=%v burst=%d", c.RateLimitRPS, c.RateLimitBurst))
	}

	return nil
}

func (c IdentityConfig) ValidateStore() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return commonerrors.ErrConfiguration.WithCause(fmt.Errorf("DATABASE_URL is required for store %q", c.Store))
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return commonerrors.ErrConfiguration.WithCause(fmt.Errorf("SQLITE_PATH is required for store %q", c.Store))
		}
	case StoreMemory:
	default:
		return commonerrors.ErrConfiguration.WithCause(fmt.Errorf("unknown IDENTITY_STORE %q", c.Store))
	}

	return nil
}

func ValidateJWTSecret(secret string) error {
	if secret == "" {
		return commonerrors.ErrConfiguration.WithCause(fmt.Errorf("JWT_SECRET is required"))
	}
	if len(secret) < constants.JWTSecretMinLength {
		return commonerrors.ErrConfiguration.WithCause(
			fmt.Errorf("JWT_SECRET must be at least %d bytes: got %d bytes", constants.JWTSecretMinLength, len(secret)),
		)
	}
	return nil
}
