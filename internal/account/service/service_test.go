package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/repository"
	commonerrors "github.com/AlibekovAA/biometrics-identity/backend/internal/common/errors"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

func register(t *testing.T, svc *IdentityService, username, email, password string) domain.Account {
	t.Helper()
	account, err := svc.RegisterAccount(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return account
}

func TestIdentityService_AliceScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	alice := register(t, env.service, "alice", "alice@x.com", "pw1")
	if alice.ID < 1 {
		t.Fatalf("expected id >= 1, got %d", alice.ID)
	}

	_, err := env.service.RegisterAccount(ctx, RegisterInput{Username: "alice", Email: "bob@x.com", Password: "pw2"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if field, ok := ConflictField(err); !ok || field != "username" {
		t.Errorf("expected conflict field username, got %q", field)
	}

	token, err := env.service.Authenticate(ctx, "alice", "pw1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	_, err = env.service.Authenticate(ctx, "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterAccount_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	register(t, env.service, "alice", "alice@x.com", "pw1")

	_, err := env.service.RegisterAccount(context.Background(), RegisterInput{
		Username: "carol",
		Email:    "alice@x.com",
		Password: "pw3",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if field, _ := ConflictField(err); field != "email" {
		t.Errorf("expected conflict field email, got %q", field)
	}
}

func TestRegisterAccount_EmailCheckedBeforeUsername(t *testing.T) {
	env := newTestEnv(t, nil)
	register(t, env.service, "alice", "alice@x.com", "pw1")

	_, err := env.service.RegisterAccount(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "alice@x.com",
		Password: "pw1",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterAccount_StoresHashNotPlaintext(t *testing.T) {
	env := newTestEnv(t, nil)
	account := register(t, env.service, "alice", "alice@x.com", "pw1")

	if account.PasswordHash == "pw1" || strings.Contains(account.PasswordHash, "pw1") {
		t.Fatalf("password stored in plaintext: %q", account.PasswordHash)
	}
	if !strings.HasPrefix(account.PasswordHash, "$argon2id$") {
		t.Errorf("expected argon2id hash, got %q", account.PasswordHash)
	}
}

func TestRegisterAccount_UniquenessRaceMapsToAlreadyExists(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		wantErr error
	}{
		{name: "username", field: repository.FieldUsername, wantErr: ErrUsernameTaken},
		{name: "email", field: repository.FieldEmail, wantErr: ErrEmailTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.store.createFunc = func(ctx context.Context, account domain.NewAccount) (domain.Account, error) {
				return domain.Account{}, &repository.ConflictError{Field: tt.field}
			}

			_, err := env.service.RegisterAccount(context.Background(), RegisterInput{
				Username: "alice",
				Email:    "alice@x.com",
				Password: "pw1",
			})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if errors.Is(err, repository.ErrConflict) {
				t.Error("store conflict must not leak past the service")
			}
		})
	}
}

func TestRegisterAccount_ConcurrentSameUsername(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	const workers = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.service.RegisterAccount(ctx, RegisterInput{
				Username: "racer",
				Email:    "racer" + string(rune('a'+i)) + "@x.com",
				Password: "pw1",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrUsernameTaken):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one registration, got %d", successes)
	}
}

func TestRegisterAccount_StorageFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	boom := errors.New("connection reset")
	env.store.existsByEmailFunc = func(ctx context.Context, email string) (bool, error) {
		return false, &repository.StorageError{Op: "exists_by_email", Err: boom}
	}

	_, err := env.service.RegisterAccount(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "alice@x.com",
		Password: "pw1",
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	de, ok := commonerrors.AsDomainError(err)
	if !ok || strings.Contains(de.Message(), "connection reset") {
		t.Errorf("storage detail leaked into message: %v", err)
	}
}

func TestRegisterAccount_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{name: "empty username", input: RegisterInput{Email: "a@x.com", Password: "pw1"}},
		{name: "bad username chars", input: RegisterInput{Username: "al ice", Email: "a@x.com", Password: "pw1"}},
		{name: "long username", input: RegisterInput{Username: strings.Repeat("a", 65), Email: "a@x.com", Password: "pw1"}},
		{name: "bad email", input: RegisterInput{Username: "alice", Email: "not-an-email", Password: "pw1"}},
		{name: "empty password", input: RegisterInput{Username: "alice", Email: "a@x.com"}},
		{name: "long password", input: RegisterInput{Username: "alice", Email: "a@x.com", Password: strings.Repeat("p", 257)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			_, err := env.service.RegisterAccount(context.Background(), tt.input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.service.Authenticate(context.Background(), "ghost", "pw1")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Error("not-found must stay distinct from invalid credentials")
	}
}

func TestAuthenticate_TokenExpiry(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := register(t, env.service, "alice", "alice@x.com", "pw1")

	token, err := env.service.Authenticate(context.Background(), "alice", "pw1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	claims, err := env.issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != alice.ID.String() {
		t.Errorf("expected sub %s, got %s", alice.ID, claims.Subject)
	}
	if claims.Username != "alice" {
		t.Errorf("expected usr alice, got %s", claims.Username)
	}

	want := env.clock.Now().Add(24 * time.Hour)
	if diff := claims.ExpiresAt.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("expected expiry near %v, got %v", want, claims.ExpiresAt)
	}
}

func TestAuthenticate_StorageFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.findByUsernameFunc = func(ctx context.Context, username string) (domain.Account, error) {
		return domain.Account{}, &repository.StorageError{Op: "find_by_username", Err: errors.New("timeout")}
	}

	_, err := env.service.Authenticate(context.Background(), "alice", "pw1")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestAuthenticate_IssuerFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	register(t, env.service, "alice", "alice@x.com", "pw1")
	env.service.issuer = &mockIssuer{issueFunc: func(id domain.ID, username string) (string, error) {
		return "", errors.New("signer down")
	}}

	_, err := env.service.Authenticate(context.Background(), "alice", "pw1")
	if !errors.Is(err, commonerrors.ErrInternalError) {
		t.Fatalf("expected ErrInternalError, got %v", err)
	}
}

func TestAuthenticate_UnreadableStoredHash(t *testing.T) {
	env := newTestEnv(t, nil)
	env.store.findByUsernameFunc = func(ctx context.Context, username string) (domain.Account, error) {
		return domain.Account{ID: 1, Username: username, PasswordHash: "plaintext-looking"}, nil
	}

	_, err := env.service.Authenticate(context.Background(), "alice", "pw1")
	if !errors.Is(err, commonerrors.ErrInternalError) {
		t.Fatalf("expected ErrInternalError, got %v", err)
	}
}

func TestAuthenticate_RehashesLegacyBcrypt(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("pw1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	created, err := env.store.MemoryStore.Create(ctx, domain.NewAccount{
		Username:     "legacy",
		Email:        "legacy@x.com",
		PasswordHash: string(legacy),
		CreatedAt:    env.clock.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := env.service.Authenticate(ctx, "legacy", "pw1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	reloaded, err := env.store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !strings.HasPrefix(reloaded.PasswordHash, "$argon2id$") {
		t.Fatalf("expected hash upgraded to argon2id, got %q", reloaded.PasswordHash)
	}

	if _, err := env.service.Authenticate(ctx, "legacy", "pw1"); err != nil {
		t.Fatalf("authenticate after rehash: %v", err)
	}
}

func TestAuthenticate_RehashSaveFailureIsNotSurfaced(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	legacy, _ := bcrypt.GenerateFromPassword([]byte("pw1"), bcrypt.MinCost)
	_, err := env.store.MemoryStore.Create(ctx, domain.NewAccount{
		Username:     "legacy",
		Email:        "legacy@x.com",
		PasswordHash: string(legacy),
		CreatedAt:    env.clock.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	env.store.updatePasswordFunc = func(ctx context.Context, id domain.ID, currentHash, newHash string, updatedAt time.Time) (bool, error) {
		return false, &repository.StorageError{Op: "update_password_hash", Err: errors.New("read-only")}
	}

	token, err := env.service.Authenticate(ctx, "legacy", "pw1")
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if token == "" {
		t.Fatal("expected token")
	}
	if env.store.updatePasswordCalls != 1 {
		t.Errorf("expected one rehash write attempt, got %d", env.store.updatePasswordCalls)
	}
}

func TestAuthenticate_RehashDoesNotRevertConcurrentUpdate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("pw1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	created, err := env.store.MemoryStore.Create(ctx, domain.NewAccount{
		Username:     "legacy",
		Email:        "legacy@x.com",
		PasswordHash: string(legacy),
		CreatedAt:    env.clock.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The owner renames the account and changes the password right after
	// the login has read the old record.
	env.store.findByUsernameFunc = func(ctx context.Context, username string) (domain.Account, error) {
		account, err := env.store.MemoryStore.FindByUsername(ctx, username)
		if err != nil {
			return account, err
		}
		if _, err := env.service.UpdateAccount(ctx, created.ID, UpdateInput{Username: "renamed", Password: "pw2"}); err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
		return account, nil
	}

	if _, err := env.service.Authenticate(ctx, "legacy", "pw1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	env.store.findByUsernameFunc = nil

	reloaded, err := env.store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Username != "renamed" {
		t.Errorf("expected username %q to survive, got %q", "renamed", reloaded.Username)
	}

	if _, err := env.service.Authenticate(ctx, "renamed", "pw2"); err != nil {
		t.Errorf("new password should work, got %v", err)
	}
	if _, err := env.service.Authenticate(ctx, "renamed", "pw1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password should fail, got %v", err)
	}
}

func TestAuthenticate_CurrentHashNotRewritten(t *testing.T) {
	env := newTestEnv(t, nil)
	register(t, env.service, "alice", "alice@x.com", "pw1")

	if _, err := env.service.Authenticate(context.Background(), "alice", "pw1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if env.store.saveCalls != 0 || env.store.updatePasswordCalls != 0 {
		t.Errorf("expected no write for a current hash, got save=%d rehash=%d", env.store.saveCalls, env.store.updatePasswordCalls)
	}
}

func TestUpdateAccount_EmailTakenLeavesOriginalUnchanged(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := register(t, env.service, "alice", "alice@x.com", "pw1")
	register(t, env.service, "bob", "bob@x.com", "pw2")

	_, err := env.service.UpdateAccount(ctx, alice.ID, UpdateInput{Email: "bob@x.com"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	reloaded, err := env.service.GetAccount(ctx, alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.Email != "alice@x.com" {
		t.Errorf("expected email unchanged, got %s", reloaded.Email)
	}
}

func TestUpdateAccount_UsernameTaken(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := register(t, env.service, "alice", "alice@x.com", "pw1")
	register(t, env.service, "bob", "bob@x.com", "pw2")

	_, err := env.service.UpdateAccount(context.Background(), alice.ID, UpdateInput{Username: "bob"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestUpdateAccount_PasswordChange(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := register(t, env.service, "alice", "alice@x.com", "pw1")

	if _, err := env.service.UpdateAccount(ctx, alice.ID, UpdateInput{Password: "pw-new"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if _, err := env.service.Authenticate(ctx, "alice", "pw1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("old password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.service.Authenticate(ctx, "alice", "pw-new"); err != nil {
		t.Errorf("new password: expected success, got %v", err)
	}
}

func TestUpdateAccount_SameValuesIsNoConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := register(t, env.service, "alice", "alice@x.com", "pw1")

	updated, err := env.service.UpdateAccount(context.Background(), alice.ID, UpdateInput{
		Username: "alice",
		Email:    "alice@x.com",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if updated.PasswordHash != alice.PasswordHash {
		t.Error("password hash must not change without a new password")
	}
}

func TestUpdateAccount_ChangesFields(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	alice := register(t, env.service, "alice", "alice@x.com", "pw1")
	env.clock.Advance(time.Minute)

	updated, err := env.service.UpdateAccount(ctx, alice.ID, UpdateInput{Username: "alice2", Email: "a2@x.com"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Username != "alice2" || updated.Email != "a2@x.com" {
		t.Errorf("unexpected account after update: %+v", updated)
	}
	if !updated.UpdatedAt.Equal(env.clock.Now()) {
		t.Errorf("expected UpdatedAt %v, got %v", env.clock.Now(), updated.UpdatedAt)
	}
	if updated.ID != alice.ID {
		t.Errorf("id must not change")
	}

	if _, err := env.service.Authenticate(ctx, "alice2", "pw1"); err != nil {
		t.Errorf("authenticate with new username: %v", err)
	}
}

func TestUpdateAccount_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.service.UpdateAccount(context.Background(), 999, UpdateInput{Email: "x@x.com"})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestUpdateAccount_StoreErrorsBecomeUpdateFailed(t *testing.T) {
	tests := []struct {
		name    string
		saveErr error
	}{
		{name: "conflict", saveErr: &repository.ConflictError{Field: repository.FieldEmail}},
		{name: "storage", saveErr: &repository.StorageError{Op: "save", Err: errors.New("disk full")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			alice := register(t, env.service, "alice", "alice@x.com", "pw1")
			env.store.saveFunc = func(ctx context.Context, account domain.Account) (domain.Account, error) {
				return domain.Account{}, tt.saveErr
			}

			_, err := env.service.UpdateAccount(context.Background(), alice.ID, UpdateInput{Email: "new@x.com"})
			if !errors.Is(err, ErrUpdateFailed) {
				t.Fatalf("expected ErrUpdateFailed, got %v", err)
			}
			if _, ok := ConflictField(err); ok {
				t.Error("update failure must not report an already-exists field")
			}
		})
	}
}

func TestUpdateAccount_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := register(t, env.service, "alice", "alice@x.com", "pw1")

	_, err := env.service.UpdateAccount(context.Background(), alice.ID, UpdateInput{Email: "nope"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestGetAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := register(t, env.service, "alice", "alice@x.com", "pw1")

	got, err := env.service.GetAccount(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("expected alice, got %s", got.Username)
	}

	if _, err := env.service.GetAccount(context.Background(), 42); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestIdentityService_NeverLogsPasswords(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "identity", "debug", nil)
	env := newTestEnv(t, log)
	ctx := context.Background()

	alice := register(t, env.service, "alice", "alice@x.com", "s3cret-pw")
	_, _ = env.service.Authenticate(ctx, "alice", "s3cret-pw")
	_, _ = env.service.Authenticate(ctx, "alice", "wrong-s3cret")
	_, _ = env.service.UpdateAccount(ctx, alice.ID, UpdateInput{Password: "n3w-s3cret"})

	out := buf.String()
	for _, secret := range []string{"s3cret-pw", "wrong-s3cret", "n3w-s3cret", "$argon2id$"} {
		if strings.Contains(out, secret) {
			t.Errorf("log output contains %q", secret)
		}
	}
	if !strings.Contains(out, "action=login_success") {
		t.Errorf("expected login_success log line, got:\n%s", out)
	}
}
