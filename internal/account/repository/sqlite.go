package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/db"
)

const storeSQLite = "sqlite"

// SQLiteStore keeps accounts in a single SQLite file. Timestamps are stored
// as unix nanoseconds.
type SQLiteStore struct {
	sqlDB *sql.DB
}

func NewSQLiteStore(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlDB: sqlDB}
}

func (s *SQLiteStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "exists_by_username", `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = ?)`, username)
}

func (s *SQLiteStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return s.exists(ctx, "exists_by_email", `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = ?)`, email)
}

func (s *SQLiteStore) exists(ctx context.Context, op, query, arg string) (bool, error) {
	start := time.Now()
	var exists bool
	err := s.sqlDB.QueryRowContext(ctx, query, arg).Scan(&exists)
	db.ObserveQuery(storeSQLite, op, start, err)
	if err != nil {
		return false, storageError(op, err)
	}
	return exists, nil
}

func (s *SQLiteStore) FindByID(ctx context.Context, id domain.ID) (domain.Account, error) {
	return s.findOne(ctx, "find_by_id",
		`SELECT id, username, email, password_hash, created_at, updated_at FROM accounts WHERE id = ?`,
		int64(id),
	)
}

func (s *SQLiteStore) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	return s.findOne(ctx, "find_by_username",
		`SELECT id, username, email, password_hash, created_at, updated_at FROM accounts WHERE username = ?`,
		username,
	)
}

func (s *SQLiteStore) findOne(ctx context.Context, op, query string, arg any) (domain.Account, error) {
	start := time.Now()
	var (
		account            domain.Account
		id                 int64
		createdAt, updated int64
	)
	err := s.sqlDB.QueryRowContext(ctx, query, arg).Scan(&id, &account.Username, &account.Email, &account.PasswordHash, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		db.ObserveQuery(storeSQLite, op, start, nil)
		return domain.Account{}, ErrAccountNotFound
	}
	db.ObserveQuery(storeSQLite, op, start, err)
	if err != nil {
		return domain.Account{}, storageError(op, err)
	}

	account.ID = domain.ID(id)
	account.CreatedAt = time.Unix(0, createdAt).UTC()
	account.UpdatedAt = time.Unix(0, updated).UTC()
	return account, nil
}

func (s *SQLiteStore) Create(ctx context.Context, account domain.NewAccount) (domain.Account, error) {
	start := time.Now()
	ts := account.CreatedAt.UTC().UnixNano()
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO accounts (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		account.Username, account.Email, account.PasswordHash, ts, ts,
	)
	db.ObserveQuery(storeSQLite, "create", start, err)
	if err != nil {
		if conflict := sqliteConflict(err); conflict != nil {
			return domain.Account{}, conflict
		}
		return domain.Account{}, storageError("create", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Account{}, storageError("create", err)
	}

	return domain.Account{
		ID:           domain.ID(id),
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		CreatedAt:    time.Unix(0, ts).UTC(),
		UpdatedAt:    time.Unix(0, ts).UTC(),
	}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, account domain.Account) (domain.Account, error) {
	start := time.Now()
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET username = ?, email = ?, password_hash = ?, updated_at = ? WHERE id = ?`,
		account.Username, account.Email, account.PasswordHash, account.UpdatedAt.UTC().UnixNano(), int64(account.ID),
	)
	db.ObserveQuery(storeSQLite, "save", start, err)
	if err != nil {
		if conflict := sqliteConflict(err); conflict != nil {
			return domain.Account{}, conflict
		}
		return domain.Account{}, storageError("save", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.Account{}, storageError("save", err)
	}
	if n == 0 {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, id domain.ID, currentHash, newHash string, updatedAt time.Time) (bool, error) {
	start := time.Now()
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ? AND password_hash = ?`,
		newHash, updatedAt.UTC().UnixNano(), int64(id), currentHash,
	)
	db.ObserveQuery(storeSQLite, "update_password_hash", start, err)
	if err != nil {
		return false, storageError("update_password_hash", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, storageError("update_password_hash", err)
	}
	return n == 1, nil
}

func sqliteConflict(err error) *ConflictError {
	if !isSQLiteUniqueViolation(err) {
		return nil
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "accounts.email"):
		db.ObserveConstraintViolation(storeSQLite, "accounts.email")
		return &ConflictError{Field: FieldEmail}
	default:
		db.ObserveConstraintViolation(storeSQLite, "accounts.username")
		return &ConflictError{Field: FieldUsername}
	}
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ Store = (*SQLiteStore)(nil)
