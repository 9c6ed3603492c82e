package repository

import (
	"context"
	"database/sql"
	"embed"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/db"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

func MigratePostgres(ctx context.Context, log *logger.Logger, sqlDB *sql.DB) error {
	return db.Migrate(ctx, log, sqlDB, db.DialectPostgres, migrationsFS, "migrations/postgres")
}

func MigrateSQLite(ctx context.Context, log *logger.Logger, sqlDB *sql.DB) error {
	return db.Migrate(ctx, log, sqlDB, db.DialectSQLite, migrationsFS, "migrations/sqlite")
}
