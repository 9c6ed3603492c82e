package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
)

const (
	FieldUsername = "username"
	FieldEmail    = "email"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrConflict        = errors.New("unique constraint violated")
	ErrStorage         = errors.New("storage failure")
)

// Store persists accounts. Implementations enforce username and email
// uniqueness themselves; a rejected Create or Save returns *ConflictError.
type Store interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	FindByID(ctx context.Context, id domain.ID) (domain.Account, error)
	FindByUsername(ctx context.Context, username string) (domain.Account, error)
	Create(ctx context.Context, account domain.NewAccount) (domain.Account, error)
	Save(ctx context.Context, account domain.Account) (domain.Account, error)
	// UpdatePasswordHash replaces the hash only while it still equals
	// currentHash. It reports false when the account is gone or the hash
	// was changed by someone else.
	UpdatePasswordHash(ctx context.Context, id domain.ID, currentHash, newHash string, updatedAt time.Time) (bool, error)
}

type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists", e.Field)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// ConflictFieldOf returns the field of a *ConflictError anywhere in err's chain.
func ConflictFieldOf(err error) (string, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Field, true
	}
	return "", false
}
