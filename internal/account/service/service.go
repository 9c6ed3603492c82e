package service

import (
	"context"
	"errors"
	"time"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/repository"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/biometrics-identity/backend/internal/common/crypto"
	commonerrors "github.com/AlibekovAA/biometrics-identity/backend/internal/common/errors"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

type RegisterInput struct {
	Username string `validate:"required,max=64,username"`
	Email    string `validate:"required,max=254,email"`
	Password string `validate:"required,max=256"`
}

type LoginInput struct {
	Username string `validate:"required,max=64"`
	Password string `validate:"required,max=256"`
}

// UpdateInput carries optional profile changes; an empty field is left as is.
type UpdateInput struct {
	Username string `validate:"omitempty,max=64,username"`
	Email    string `validate:"omitempty,max=254,email"`
	Password string `validate:"omitempty,max=256"`
}

// IdentityService registers, authenticates and updates accounts. It holds no
// locks; uniqueness is ultimately enforced by the store.
type IdentityService struct {
	store     repository.Store
	hasher    commoncrypto.PasswordHasher
	issuer    Issuer
	validator *InputValidator
	clock     clock.Clock
	log       *logger.Logger
}

func NewIdentityService(
	store repository.Store,
	hasher commoncrypto.PasswordHasher,
	issuer Issuer,
	clock clock.Clock,
	log *logger.Logger,
) *IdentityService {
	return &IdentityService{
		store:     store,
		hasher:    hasher,
		issuer:    issuer,
		validator: NewInputValidator(),
		clock:     clock,
		log:       log,
	}
}

func (s *IdentityService) RegisterAccount(ctx context.Context, input RegisterInput) (domain.Account, error) {
	s.log.WithFields(ctx, logger.Fields{
		"username": input.Username,
		"action":   "register_attempt",
	}).Info("register attempt")

	if err := s.validator.Struct(input); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_validation_failed",
		}).Warnf("register validation failed: %v", err)
		incrementRegistrations(resultValidation)
		return domain.Account{}, err
	}

	taken, err := s.store.ExistsByEmail(ctx, input.Email)
	if err != nil {
		return domain.Account{}, s.registerStorageFailure(ctx, input.Username, "exists_by_email", err)
	}
	if taken {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_email_exists",
		}).Warn("register failed: email already exists")
		incrementRegistrations(resultConflict)
		return domain.Account{}, ErrEmailTaken
	}

	taken, err = s.store.ExistsByUsername(ctx, input.Username)
	if err != nil {
		return domain.Account{}, s.registerStorageFailure(ctx, input.Username, "exists_by_username", err)
	}
	if taken {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_username_exists",
		}).Warn("register failed: username already exists")
		incrementRegistrations(resultConflict)
		return domain.Account{}, ErrUsernameTaken
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "register_hash_failed",
		}).Errorf("register failed: password hash error: %v", err)
		incrementRegistrations(resultError)
		return domain.Account{}, commonerrors.ErrInternalError.WithCause(err)
	}

	account, err := s.store.Create(ctx, domain.NewAccount{
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hash,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		if field, ok := repository.ConflictFieldOf(err); ok {
			s.log.WithFields(ctx, logger.Fields{
				"username": input.Username,
				"field":    field,
				"action":   "register_uniqueness_race",
			}).Warn("register failed: unique constraint rejected create")
			incrementUniquenessRaces("register", field)
			incrementRegistrations(resultConflict)
			return domain.Account{}, alreadyExists(field)
		}
		return domain.Account{}, s.registerStorageFailure(ctx, input.Username, "create", err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"username":   account.Username,
		"account_id": account.ID.String(),
		"action":     "register_success",
	}).Info("register success")
	incrementRegistrations(resultSuccess)

	return account, nil
}

func (s *IdentityService) registerStorageFailure(ctx context.Context, username, op string, err error) error {
	s.log.WithFields(ctx, logger.Fields{
		"username":  username,
		"operation": op,
		"action":    "register_storage_failed",
	}).Errorf("register failed: %v", err)
	incrementRegistrations(resultError)
	return ErrStorage.WithCause(err)
}

// Authenticate returns a signed access token. An unknown username yields
// ErrAccountNotFound and a wrong password ErrInvalidCredentials; callers
// decide whether to disclose the difference.
func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (string, error) {
	input := LoginInput{Username: username, Password: password}
	s.log.WithFields(ctx, logger.Fields{
		"username": input.Username,
		"action":   "login_attempt",
	}).Info("login attempt")

	if err := s.validator.Struct(input); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "login_validation_failed",
		}).Warnf("login validation failed: %v", err)
		incrementAuthentications(resultValidation)
		return "", err
	}

	account, err := s.store.FindByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"username": input.Username,
				"action":   "login_user_not_found",
			}).Warn("login failed: not found")
			incrementAuthentications(resultNotFound)
			return "", ErrAccountNotFound
		}
		s.log.WithFields(ctx, logger.Fields{
			"username": input.Username,
			"action":   "login_fetch_failed",
		}).Errorf("login failed: %v", err)
		incrementAuthentications(resultError)
		return "", ErrStorage.WithCause(err)
	}

	start := time.Now()
	match, err := s.hasher.Verify(account.PasswordHash, input.Password)
	observeHashDuration(start)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username":   input.Username,
			"account_id": account.ID.String(),
			"action":     "login_hash_unreadable",
		}).Errorf("login failed: stored password hash unreadable: %v", err)
		incrementAuthentications(resultError)
		return "", commonerrors.ErrInternalError.WithCause(err)
	}
	if !match {
		s.log.WithFields(ctx, logger.Fields{
			"username":   input.Username,
			"account_id": account.ID.String(),
			"action":     "login_invalid_password",
		}).Warn("login failed: invalid password")
		incrementAuthentications(resultInvalidCredentials)
		return "", ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(account.PasswordHash) {
		s.upgradeHash(ctx, account, input.Password)
	}

	token, err := s.issuer.Issue(account.ID, account.Username)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"username":   input.Username,
			"account_id": account.ID.String(),
			"action":     "login_token_issue_failed",
		}).Errorf("login failed: token issue error: %v", err)
		incrementAuthentications(resultError)
		return "", commonerrors.ErrInternalError.WithCause(err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"username":   account.Username,
		"account_id": account.ID.String(),
		"action":     "login_success",
	}).Info("login success")
	incrementAuthentications(resultSuccess)

	return token, nil
}

// upgradeHash re-hashes a verified password under the current scheme. The
// write only lands if the stored hash is still the one that was verified, so
// a concurrent UpdateAccount is never reverted. A failure is only logged.
func (s *IdentityService) upgradeHash(ctx context.Context, account domain.Account, password string) {
	fromScheme := commoncrypto.Scheme(account.PasswordHash)

	hash, err := s.hashPassword(password)
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"account_id": account.ID.String(),
			"action":     "rehash_failed",
		}).Warnf("password rehash failed: %v", err)
		return
	}

	swapped, err := s.store.UpdatePasswordHash(ctx, account.ID, account.PasswordHash, hash, s.clock.Now())
	if err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"account_id": account.ID.String(),
			"action":     "rehash_save_failed",
		}).Warnf("password rehash not persisted: %v", err)
		return
	}
	if !swapped {
		s.log.WithFields(ctx, logger.Fields{
			"account_id": account.ID.String(),
			"action":     "rehash_skipped",
		}).Info("password rehash skipped: account changed since login read")
		return
	}

	incrementPasswordRehashes(fromScheme)
	s.log.WithFields(ctx, logger.Fields{
		"account_id":  account.ID.String(),
		"from_scheme": fromScheme,
		"action":      "rehash_success",
	}).Info("password hash upgraded")
}

func (s *IdentityService) UpdateAccount(ctx context.Context, id domain.ID, input UpdateInput) (domain.Account, error) {
	s.log.WithFields(ctx, logger.Fields{
		"account_id": id.String(),
		"action":     "update_attempt",
	}).Info("update attempt")

	if err := s.validator.Struct(input); err != nil {
		s.log.WithFields(ctx, logger.Fields{
			"account_id": id.String(),
			"action":     "update_validation_failed",
		}).Warnf("update validation failed: %v", err)
		incrementAccountUpdates(resultValidation)
		return domain.Account{}, err
	}

	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			s.log.WithFields(ctx, logger.Fields{
				"account_id": id.String(),
				"action":     "update_not_found",
			}).Warn("update failed: account not found")
			incrementAccountUpdates(resultNotFound)
			return domain.Account{}, ErrAccountNotFound
		}
		return domain.Account{}, s.updateFailure(ctx, id, "find_by_id", err)
	}

	if input.Username != "" && input.Username != account.Username {
		taken, err := s.store.ExistsByUsername(ctx, input.Username)
		if err != nil {
			return domain.Account{}, s.updateFailure(ctx, id, "exists_by_username", err)
		}
		if taken {
			s.log.WithFields(ctx, logger.Fields{
				"account_id": id.String(),
				"username":   input.Username,
				"action":     "update_username_exists",
			}).Warn("update failed: username already exists")
			incrementAccountUpdates(resultConflict)
			return domain.Account{}, ErrUsernameTaken
		}
		account.Username = input.Username
	}

	if input.Email != "" && input.Email != account.Email {
		taken, err := s.store.ExistsByEmail(ctx, input.Email)
		if err != nil {
			return domain.Account{}, s.updateFailure(ctx, id, "exists_by_email", err)
		}
		if taken {
			s.log.WithFields(ctx, logger.Fields{
				"account_id": id.String(),
				"action":     "update_email_exists",
			}).Warn("update failed: email already exists")
			incrementAccountUpdates(resultConflict)
			return domain.Account{}, ErrEmailTaken
		}
		account.Email = input.Email
	}

	if input.Password != "" {
		hash, err := s.hashPassword(input.Password)
		if err != nil {
			return domain.Account{}, s.updateFailure(ctx, id, "hash", err)
		}
		account.PasswordHash = hash
	}

	account.UpdatedAt = s.clock.Now()
	saved, err := s.store.Save(ctx, account)
	if err != nil {
		if field, ok := repository.ConflictFieldOf(err); ok {
			incrementUniquenessRaces("update", field)
		}
		return domain.Account{}, s.updateFailure(ctx, id, "save", err)
	}

	s.log.WithFields(ctx, logger.Fields{
		"account_id":       id.String(),
		"username":         saved.Username,
		"password_changed": input.Password != "",
		"action":           "update_success",
	}).Info("update success")
	incrementAccountUpdates(resultSuccess)

	return saved, nil
}

func (s *IdentityService) updateFailure(ctx context.Context, id domain.ID, op string, err error) error {
	s.log.WithFields(ctx, logger.Fields{
		"account_id": id.String(),
		"operation":  op,
		"action":     "update_failed",
	}).Errorf("update failed: %v", err)
	incrementAccountUpdates(resultError)
	return ErrUpdateFailed.WithCause(err)
}

func (s *IdentityService) GetAccount(ctx context.Context, id domain.ID) (domain.Account, error) {
	account, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return domain.Account{}, ErrAccountNotFound
		}
		s.log.WithFields(ctx, logger.Fields{
			"account_id": id.String(),
			"action":     "get_account_failed",
		}).Errorf("get account failed: %v", err)
		return domain.Account{}, ErrStorage.WithCause(err)
	}
	return account, nil
}

func (s *IdentityService) hashPassword(password string) (string, error) {
	start := time.Now()
	defer observeHashDuration(start)
	return s.hasher.Hash(password)
}
