package repository

import (
	"context"
	"sync"
	"time"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
)

// MemoryStore is a process-local Store. Username and email indexes are
// checked and written under the same lock as the record.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     domain.ID
	byID       map[domain.ID]domain.Account
	byUsername map[string]domain.ID
	byEmail    map[string]domain.ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		byID:       make(map[domain.ID]domain.Account),
		byUsername: make(map[string]domain.ID),
		byEmail:    make(map[string]domain.ID),
	}
}

func (s *MemoryStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storageError("exists_by_username", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byUsername[username]
	return ok, nil
}

func (s *MemoryStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storageError("exists_by_email", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id domain.ID) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, storageError("find_by_id", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.byID[id]
	if !ok {
		return domain.Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (s *MemoryStore) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, storageError("find_by_username", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUsername[username]
	if !ok {
		return domain.Account{}, ErrAccountNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) Create(ctx context.Context, account domain.NewAccount) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, storageError("create", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[account.Username]; ok {
		return domain.Account{}, &ConflictError{Field: FieldUsername}
	}
	if _, ok := s.byEmail[account.Email]; ok {
		return domain.Account{}, &ConflictError{Field: FieldEmail}
	}

	created := domain.Account{
		ID:           s.nextID,
		Username:     account.Username,
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		CreatedAt:    account.CreatedAt,
		UpdatedAt:    account.CreatedAt,
	}
	s.nextID++

	s.byID[created.ID] = created
	s.byUsername[created.Username] = created.ID
	s.byEmail[created.Email] = created.ID
	return created, nil
}

func (s *MemoryStore) Save(ctx context.Context, account domain.Account) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, storageError("save", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[account.ID]
	if !ok {
		return domain.Account{}, ErrAccountNotFound
	}
	if owner, ok := s.byUsername[account.Username]; ok && owner != account.ID {
		return domain.Account{}, &ConflictError{Field: FieldUsername}
	}
	if owner, ok := s.byEmail[account.Email]; ok && owner != account.ID {
		return domain.Account{}, &ConflictError{Field: FieldEmail}
	}

	delete(s.byUsername, existing.Username)
	delete(s.byEmail, existing.Email)

	account.CreatedAt = existing.CreatedAt
	s.byID[account.ID] = account
	s.byUsername[account.Username] = account.ID
	s.byEmail[account.Email] = account.ID
	return account, nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id domain.ID, currentHash, newHash string, updatedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storageError("update_password_hash", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[id]
	if !ok || account.PasswordHash != currentHash {
		return false, nil
	}
	account.PasswordHash = newHash
	account.UpdatedAt = updatedAt
	s.byID[id] = account
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
