package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// OpenPostgresSQL opens a database/sql handle over the pgx driver; goose
// needs it because it does not speak pgxpool.
func OpenPostgresSQL(databaseURL string) (*sql.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return sqlDB, nil
}

// Migrate applies every pending goose migration found at dir inside fsys.
func Migrate(ctx context.Context, log *logger.Logger, sqlDB *sql.DB, dialect string, fsys fs.FS, dir string) error {
	migrations, err := fs.Sub(fsys, dir)
	if err != nil {
		return fmt.Errorf("open migrations dir %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(goose.Dialect(dialect), sqlDB, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	for _, r := range results {
		log.Infof("migration applied: %s (%s) in %v", r.Source.Path, dialect, r.Duration)
	}
	if len(results) == 0 {
		log.Debugf("no pending migrations for %s", dialect)
	}

	return nil
}
