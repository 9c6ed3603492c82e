package service

import (
	"errors"
	"net/http"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/repository"
	commonerrors "github.com/AlibekovAA/biometrics-identity/backend/internal/common/errors"
)

var (
	ErrUsernameTaken = commonerrors.NewDomainError(
		"USERNAME_TAKEN",
		commonerrors.CategoryConflict,
		http.StatusConflict,
		"username already exists",
	)

	ErrEmailTaken = commonerrors.NewDomainError(
		"EMAIL_TAKEN",
		commonerrors.CategoryConflict,
		http.StatusConflict,
		"email already exists",
	)

	ErrAccountNotFound = commonerrors.NewDomainError(
		"ACCOUNT_NOT_FOUND",
		commonerrors.CategoryNotFound,
		http.StatusNotFound,
		"account not found",
	)

	ErrInvalidCredentials = commonerrors.NewDomainError(
		"INVALID_CREDENTIALS",
		commonerrors.CategoryUnauthorized,
		http.StatusUnauthorized,
		"invalid username or password",
	)

	ErrUpdateFailed = commonerrors.NewDomainError(
		"UPDATE_FAILED",
		commonerrors.CategoryInternal,
		http.StatusInternalServerError,
		"failed to update account",
	)

	ErrStorage = commonerrors.NewDomainError(
		"STORAGE_ERROR",
		commonerrors.CategoryInternal,
		http.StatusInternalServerError,
		"account storage unavailable",
	)

	ErrValidation = commonerrors.NewDomainError(
		"VALIDATION_FAILED",
		commonerrors.CategoryValidation,
		http.StatusBadRequest,
		"validation failed",
	)
)

// ConflictField names the field behind an already-exists error.
func ConflictField(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrUsernameTaken):
		return repository.FieldUsername, true
	case errors.Is(err, ErrEmailTaken):
		return repository.FieldEmail, true
	default:
		return "", false
	}
}

func alreadyExists(field string) commonerrors.DomainError {
	if field == repository.FieldEmail {
		return ErrEmailTaken
	}
	return ErrUsernameTaken
}
