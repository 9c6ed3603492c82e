package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	accounthttp "github.com/AlibekovAA/biometrics-identity/backend/internal/account/http"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/repository"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/service"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/clock"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/config"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/constants"
	commoncrypto "github.com/AlibekovAA/biometrics-identity/backend/internal/common/crypto"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/db"
	commonhttp "github.com/AlibekovAA/biometrics-identity/backend/internal/common/http"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

const ServiceName = "identity"

type HealthCheck func(ctx context.Context) error

// StoreHandle is an opened account store with its liveness probe and
// release function.
type StoreHandle struct {
	Store  repository.Store
	Health HealthCheck
	Close  func() error
}

type App struct {
	Config      config.IdentityConfig
	Log         *logger.Logger
	Store       StoreHandle
	Issuer      *service.TokenIssuer
	Service     *service.IdentityService
	RateLimiter *commonhttp.RateLimiter
}

func NewLogger(cfg config.IdentityConfig) (*logger.Logger, error) {
	log, err := logger.New(cfg.LogDir, ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// NewApp wires the identity service on top of the configured store. The
// signing secret is checked before any connection is opened.
func NewApp(ctx context.Context, cfg config.IdentityConfig, log *logger.Logger) (*App, error) {
	realClock := clock.NewRealClock()

	issuer, err := service.NewTokenIssuer(cfg.JWTSecret, commoncrypto.NewUUIDGenerator(), realClock)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	hasher := commoncrypto.NewDefaultHasher(commoncrypto.Argon2idParams{
		MemoryKiB:   cfg.Argon2.MemoryKiB,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  constants.Argon2SaltLength,
		KeyLength:   constants.Argon2KeyLength,
	})

	limiter := commonhttp.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).TrustProxyHeaders(cfg.TrustProxy)
	limiter.StartCleanup(ctx)

	return &App{
		Config:      cfg,
		Log:         log,
		Store:       store,
		Issuer:      issuer,
		Service:     service.NewIdentityService(store.Store, hasher, issuer, realClock, log),
		RateLimiter: limiter,
	}, nil
}

func (a *App) Handler() http.Handler {
	handler := accounthttp.NewHandler(a.Service, accounthttp.Config{
		JWTSecret:      a.Config.JWTSecret,
		RequestTimeout: a.Config.RequestTimeout,
		RateLimiter:    a.RateLimiter,
		HealthChecks:   []func(ctx context.Context) error{a.Store.Health},
	}, a.Log)
	return commonhttp.BuildBaseHandler(a.Log, handler)
}

func (a *App) Close() error {
	return a.Store.Close()
}

// OpenStore connects the backend selected by IDENTITY_STORE. SQLite files
// are migrated on open; Postgres schemas are managed by the migrate command.
func OpenStore(ctx context.Context, cfg config.IdentityConfig, log *logger.Logger) (StoreHandle, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, log, cfg.DatabaseURL)
		if err != nil {
			return StoreHandle{}, err
		}
		db.StartPoolMetrics(ctx, pool, constants.DBPoolMetricsInterval)
		return StoreHandle{
			Store:  repository.NewPgStore(pool, log),
			Health: pool.Ping,
			Close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	case config.StoreSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return StoreHandle{}, err
		}
		if err := repository.MigrateSQLite(ctx, log, sqlDB); err != nil {
			return StoreHandle{}, errors.Join(err, sqlDB.Close())
		}
		log.Infof("sqlite account store opened at %s", cfg.SQLitePath)
		return StoreHandle{
			Store:  repository.NewSQLiteStore(sqlDB),
			Health: sqlDB.PingContext,
			Close:  sqlDB.Close,
		}, nil

	case config.StoreMemory:
		log.Warn("using in-memory account store: accounts are lost on restart")
		return StoreHandle{
			Store:  repository.NewMemoryStore(),
			Health: func(context.Context) error { return nil },
			Close:  func() error { return nil },
		}, nil

	default:
		return StoreHandle{}, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// Migrate applies the embedded schema to the configured SQL backend.
func Migrate(ctx context.Context, cfg config.IdentityConfig, log *logger.Logger) error {
	switch cfg.Store {
	case config.StorePostgres:
		sqlDB, err := db.OpenPostgresSQL(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		return repository.MigratePostgres(ctx, log, sqlDB)

	case config.StoreSQLite:
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		return repository.MigrateSQLite(ctx, log, sqlDB)

	default:
		log.Infof("store %q has no schema to migrate", cfg.Store)
		return nil
	}
}
