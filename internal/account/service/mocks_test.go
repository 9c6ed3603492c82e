package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/repository"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/clock"
	commoncrypto "github.com/AlibekovAA/biometrics-identity/backend/internal/common/crypto"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// mockStore delegates to an in-memory store unless a func field overrides
// the call.
type mockStore struct {
	*repository.MemoryStore

	existsByUsernameFunc func(ctx context.Context, username string) (bool, error)
	existsByEmailFunc    func(ctx context.Context, email string) (bool, error)
	findByIDFunc         func(ctx context.Context, id domain.ID) (domain.Account, error)
	findByUsernameFunc   func(ctx context.Context, username string) (domain.Account, error)
	createFunc           func(ctx context.Context, account domain.NewAccount) (domain.Account, error)
	saveFunc             func(ctx context.Context, account domain.Account) (domain.Account, error)
	updatePasswordFunc   func(ctx context.Context, id domain.ID, currentHash, newHash string, updatedAt time.Time) (bool, error)

	saveCalls           int
	updatePasswordCalls int
}

func newMockStore() *mockStore {
	return &mockStore{MemoryStore: repository.NewMemoryStore()}
}

func (m *mockStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if m.existsByUsernameFunc != nil {
		return m.existsByUsernameFunc(ctx, username)
	}
	return m.MemoryStore.ExistsByUsername(ctx, username)
}

func (m *mockStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if m.existsByEmailFunc != nil {
		return m.existsByEmailFunc(ctx, email)
	}
	return m.MemoryStore.ExistsByEmail(ctx, email)
}

func (m *mockStore) FindByID(ctx context.Context, id domain.ID) (domain.Account, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return m.MemoryStore.FindByID(ctx, id)
}

func (m *mockStore) FindByUsername(ctx context.Context, username string) (domain.Account, error) {
	if m.findByUsernameFunc != nil {
		return m.findByUsernameFunc(ctx, username)
	}
	return m.MemoryStore.FindByUsername(ctx, username)
}

func (m *mockStore) Create(ctx context.Context, account domain.NewAccount) (domain.Account, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, account)
	}
	return m.MemoryStore.Create(ctx, account)
}

func (m *mockStore) Save(ctx context.Context, account domain.Account) (domain.Account, error) {
	m.saveCalls++
	if m.saveFunc != nil {
		return m.saveFunc(ctx, account)
	}
	return m.MemoryStore.Save(ctx, account)
}

func (m *mockStore) UpdatePasswordHash(ctx context.Context, id domain.ID, currentHash, newHash string, updatedAt time.Time) (bool, error) {
	m.updatePasswordCalls++
	if m.updatePasswordFunc != nil {
		return m.updatePasswordFunc(ctx, id, currentHash, newHash, updatedAt)
	}
	return m.MemoryStore.UpdatePasswordHash(ctx, id, currentHash, newHash, updatedAt)
}

type mockIssuer struct {
	issueFunc func(id domain.ID, username string) (string, error)
}

func (m *mockIssuer) Issue(id domain.ID, username string) (string, error) {
	return m.issueFunc(id, username)
}

type mockIDGenerator struct {
	id  string
	err error
}

func (m *mockIDGenerator) NewID() (string, error) {
	return m.id, m.err
}

func fastHasher() *commoncrypto.VersionedHasher {
	return commoncrypto.NewDefaultHasher(commoncrypto.Argon2idParams{
		MemoryKiB:   8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
}

type testEnv struct {
	store   *mockStore
	issuer  *TokenIssuer
	clock   *clock.MockClock
	service *IdentityService
}

func newTestEnv(t *testing.T, log *logger.Logger) *testEnv {
	t.Helper()

	if log == nil {
		log = logger.NewWithWriter(io.Discard, "identity", "debug", nil)
	}

	mockClock := clock.NewMockClock(time.Now().UTC().Truncate(time.Second))
	issuer, err := NewTokenIssuer(testSecret, commoncrypto.NewUUIDGenerator(), mockClock)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}

	store := newMockStore()
	return &testEnv{
		store:   store,
		issuer:  issuer,
		clock:   mockClock,
		service: NewIdentityService(store, fastHasher(), issuer, mockClock, log),
	}
}
