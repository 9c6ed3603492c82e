package constants

import "time"

const (
	UsernameMaxLength  = 64
	EmailMaxLength     = 254
	PasswordMaxLength  = 256
	JWTSecretMinLength = 32

	TokenTTL = 24 * time.Hour

	DefaultMaxRequestSize = 1 << 20

	DBPoolMaxConns        = 25
	DBPoolMinConns        = 5
	DBPoolConnMaxLifetime = time.Hour
	DBPoolConnMaxIdleTime = 30 * time.Minute
	DBPoolHealthCheck     = 1 * time.Minute
	DBPoolConnectTimeout  = 5 * time.Second
	DBPoolMaxAttempts     = 10
	DBPoolRetryDelay      = 1 * time.Second
	DBPoolMetricsInterval = 30 * time.Second
	DBQueryTimeout        = 30 * time.Second

	SQLiteBusyTimeout = 5 * time.Second

	ServerReadHeaderTimeout = 10 * time.Second
	ServerReadTimeout       = 30 * time.Second
	ServerWriteTimeout      = 30 * time.Second
	ServerIdleTimeout       = 120 * time.Second

	ShutdownTimeout = 30 * time.Second
	DrainTimeout    = 10 * time.Second

	DefaultHTTPPort       = "8081"
	DefaultRequestTimeout = 5 * time.Second

	DefaultArgon2MemoryKiB   = 64 * 1024
	DefaultArgon2Iterations  = 3
	DefaultArgon2Parallelism = 2
	Argon2SaltLength         = 16
	Argon2KeyLength          = 32
	BcryptCost               = 12

	DefaultRateLimitRPS      = 5
	DefaultRateLimitBurst    = 10
	RateLimitCleanupInterval = 5 * time.Minute

	LoggerMaxSize    = 100
	LoggerMaxBackups = 3
	LoggerMaxAge     = 28
)

type TraceIDKeyType string

const TraceIDKey TraceIDKeyType = "trace_id"
