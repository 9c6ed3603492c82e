package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccount(username, email string) domain.NewAccount {
	return domain.NewAccount{
		Username:     username,
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=8,t=1,p=1$c2FsdA$a2V5",
		CreatedAt:    testNow,
	}
}

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create assigns distinct ids", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		a, err := store.Create(ctx, newAccount("alice", "a@x.io"))
		require.NoError(t, err)
		b, err := store.Create(ctx, newAccount("bob", "b@x.io"))
		require.NoError(t, err)

		assert.GreaterOrEqual(t, int64(a.ID), int64(1))
		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, testNow, a.CreatedAt)
		assert.Equal(t, testNow, a.UpdatedAt)
	})

	t.Run("find by id and username", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.Create(ctx, newAccount("alice", "a@x.io"))
		require.NoError(t, err)

		byID, err := store.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, byID)

		byName, err := store.FindByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byName.ID)
		assert.Equal(t, "a@x.io", byName.Email)
	})

	t.Run("not found", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.FindByID(ctx, 42)
		assert.ErrorIs(t, err, ErrAccountNotFound)

		_, err = store.FindByUsername(ctx, "ghost")
		assert.ErrorIs(t, err, ErrAccountNotFound)

		_, err = store.Save(ctx, domain.Account{ID: 42, Username: "ghost", Email: "g@x.io"})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("exists", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Create(ctx, newAccount("alice", "a@x.io"))
		require.NoError(t, err)

		ok, err := store.ExistsByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.ExistsByEmail(ctx, "a@x.io")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.ExistsByUsername(ctx, "bob")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.ExistsByEmail(ctx, "b@x.io")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("create rejects duplicate username and email", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Create(ctx, newAccount("alice", "a@x.io"))
		require.NoError(t, err)

		_, err = store.Create(ctx, newAccount("alice", "other@x.io"))
		require.ErrorIs(t, err, ErrConflict)
		field, ok := ConflictFieldOf(err)
		require.True(t, ok)
		assert.Equal(t, FieldUsername, field)

		_, err = store.Create(ctx, newAccount("carol", "a@x.io"))
		require.ErrorIs(t, err, ErrConflict)
		field, _ = ConflictFieldOf(err)
		assert.Equal(t, FieldEmail, field)
	})

	t.Run("save updates fields and keeps uniqueness", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		alice, err := store.Create(ctx, newAccount("alice", "a@x.io"))
		require.NoError(t, err)
		_, err = store.Create(ctx, newAccount("bob", "b@x.io"))
		require.NoError(t, err)

		alice.Username = "alice2"
		alice.UpdatedAt = testNow.Add(time.Hour)
		saved, err := store.Save(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, "alice2", saved.Username)

		reloaded, err := store.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice2", reloaded.Username)
		assert.Equal(t, testNow.Add(time.Hour), reloaded.UpdatedAt)
		assert.Equal(t, testNow, reloaded.CreatedAt)

		ok, err := store.ExistsByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, ok, "old username must be released")

		alice.Email = "b@x.io"
		_, err = store.Save(ctx, alice)
		require.ErrorIs(t, err, ErrConflict)
		field, _ := ConflictFieldOf(err)
		assert.Equal(t, FieldEmail, field)
	})

	t.Run("save with own username is not a conflict", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		alice, err := store.Create(ctx, newAccount("alice", "a@x.io"))
		require.NoError(t, err)

		alice.PasswordHash = "$argon2id$v=19$m=8,t=1,p=1$bmV3$bmV3"
		_, err = store.Save(ctx, alice)
		require.NoError(t, err)
	})

	t.Run("update password hash only from the expected hash", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		alice, err := store.Create(ctx, newAccount("alice", "a@x.io"))
		require.NoError(t, err)

		const upgraded = "$argon2id$v=19$m=16,t=1,p=1$bmV3$bmV3"
		later := testNow.Add(time.Hour)

		ok, err := store.UpdatePasswordHash(ctx, alice.ID, "stale-hash", upgraded, later)
		require.NoError(t, err)
		assert.False(t, ok)

		reloaded, err := store.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.PasswordHash, reloaded.PasswordHash)

		ok, err = store.UpdatePasswordHash(ctx, alice.ID, alice.PasswordHash, upgraded, later)
		require.NoError(t, err)
		assert.True(t, ok)

		reloaded, err = store.FindByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, upgraded, reloaded.PasswordHash)
		assert.Equal(t, "alice", reloaded.Username)
		assert.True(t, later.Equal(reloaded.UpdatedAt))

		ok, err = store.UpdatePasswordHash(ctx, domain.ID(9999), upgraded, upgraded, later)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("concurrent creates admit one winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.Create(ctx, newAccount("racer", fmt.Sprintf("r%d@x.io", i)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, ErrConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, workers-1, conflicts)
	})
}
