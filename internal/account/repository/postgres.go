package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/db"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

const (
	storePostgres = "postgres"

	pgUniqueViolation        = "23505"
	pgUsernameConstraintName = "accounts_username_key"
	pgEmailConstraintName    = "accounts_email_key"
)

type PgStore struct {
	pool  *pgxpool.Pool
	log   *logger.Logger
	retry db.RetryConfig
}

func NewPgStore(pool *pgxpool.Pool, log *logger.Logger) *PgStore {
	return &PgStore{pool: pool, log: log, retry: db.DefaultRetryConfig}
}

func (r *PgStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, "exists_by_username", `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`, username)
}

func (r *PgStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "exists_by_email", `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email)
}

func (r *PgStore) exists(ctx context.Context, op, query string, arg string) (bool, error) {
	start := time.Now()
	var exists bool
	err := db.RetryWithBackoff(ctx, r.log, r.retry, func() error {
		return r.pool.QueryRow(ctx, query, arg).Scan(&exists)
	})
	db.ObserveQuery(storePostgres, op, start, err)
	if err != nil {
		return false, storageError(op, err)
	}
	return exists, nil
}

func (r *PgStore) FindByID(ctx context.Context, id domain.ID) (domain.Account, error) {
	return r.findOne(ctx, "find_by_id",
		`SELECT id, username, email, password_hash, created_at, updated_at FROM accounts WHERE id = $1`,
		int64(id),
	)
}

func (r *PgStore) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	return r.findOne(ctx, "find_by_username",
		`SELECT id, username, email, password_hash, created_at, updated_at FROM accounts WHERE username = $1`,
		username,
	)
}

func (r *PgStore) findOne(ctx context.Context, op, query string, arg any) (domain.Account, error) {
	start := time.Now()
	var account domain.Account
	err := db.RetryWithBackoff(ctx, r.log, r.retry, func() error {
		return scanAccount(r.pool.QueryRow(ctx, query, arg), &account)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		db.ObserveQuery(storePostgres, op, start, nil)
		return domain.Account{}, ErrAccountNotFound
	}
	db.ObserveQuery(storePostgres, op, start, err)
	if err != nil {
		return domain.Account{}, storageError(op, err)
	}
	return account, nil
}

func (r *PgStore) Create(ctx context.Context, account domain.NewAccount) (domain.Account, error) {
	start := time.Now()
	created := domain.Account{
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.CreatedAt,
	}

	var id int64
	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO accounts (username, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4) RETURNING id`,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.CreatedAt,
	).Scan(&id)
	db.ObserveQuery(storePostgres, "create", start, err)
	if err != nil {
		if conflict := r.conflict(ctx, err); conflict != nil {
			return domain.Account{}, conflict
		}
		return domain.Account{}, storageError("create", err)
	}

	created.ID = domain.ID(id)
	return created, nil
}

func (r *PgStore) Save(ctx context.Context, account domain.Account) (domain.Account, error) {
	start := time.Now()
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE accounts SET username = $2, email = $3, password_hash = $4, updated_at = $5 WHERE id = $1`,
		int64(account.ID),
		account.Username,
		account.Email,
		account.PasswordHash,
		account.UpdatedAt,
	)
	db.ObserveQuery(storePostgres, "save", start, err)
	if err != nil {
		if conflict := r.conflict(ctx, err); conflict != nil {
			return domain.Account{}, conflict
		}
		return domain.Account{}, storageError("save", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *PgStore) UpdatePasswordHash(ctx context.Context, id domain.ID, currentHash, newHash string, updatedAt time.Time) (bool, error) {
	start := time.Now()
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE accounts SET password_hash = $3, updated_at = $4 WHERE id = $1 AND password_hash = $2`,
		int64(id),
		currentHash,
		newHash,
		updatedAt,
	)
	db.ObserveQuery(storePostgres, "update_password_hash", start, err)
	if err != nil {
		return false, storageError("update_password_hash", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanAccount(row pgx.Row, account *domain.Account) error {
	var id int64
	if err := row.Scan(&id, &account.Username, &account.Email, &account.PasswordHash, &account.CreatedAt, &account.UpdatedAt); err != nil {
		return err
	}
	account.ID = domain.ID(id)
	account.CreatedAt = account.CreatedAt.UTC()
	account.UpdatedAt = account.UpdatedAt.UTC()
	return nil
}

// conflict maps a unique violation to the field it protects, or returns nil
// for any other error.
func (r *PgStore) conflict(ctx context.Context, err error) *ConflictError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return nil
	}

	db.ObserveConstraintViolation(storePostgres, pgErr.ConstraintName)
	switch pgErr.ConstraintName {
	case pgEmailConstraintName:
		return &ConflictError{Field: FieldEmail}
	case pgUsernameConstraintName:
		return &ConflictError{Field: FieldUsername}
	default:
		r.log.WithFields(ctx, logger.Fields{
			"constraint": pgErr.ConstraintName,
			"action":     "unknown_unique_constraint",
		}).Warn("unique violation on unmapped constraint, reporting as username")
		return &ConflictError{Field: FieldUsername}
	}
}

var _ Store = (*PgStore)(nil)
