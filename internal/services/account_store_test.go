package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/lab-portal/internal/models"
)

func TestAccountStore_CreateAndLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewAccountStore(env.db)

	created := env.seed(t, "alice", "Alice_W", "pw", models.RoleUser)
	assert.False(t, created.CreatedAt.IsZero())

	byID, err := store.FindByLoginID(ctx, "alice")
	require.NoError(t, err)
	byName, err := store.FindByLoginID(ctx, "Alice_W")
	require.NoError(t, err)

	assert.Equal(t, "alice", byID.AccountID)
	assert.Equal(t, byID.AccountID, byName.AccountID)
	assert.Equal(t, "Alice_W", byName.DisplayName)
	assert.NotEmpty(t, byName.PasswordHash)

	got, err := store.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, byID.AccountID, got.AccountID)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func TestAccountStore_NotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewAccountStore(env.db)

	_, err := store.FindByLoginID(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = store.GetByID(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "ghost"), models.ErrNotFound)
	assert.ErrorIs(t, store.UpdateRole(ctx, "ghost", models.RoleAdmin), models.ErrNotFound)
	assert.ErrorIs(t, store.UpdatePasswordHash(ctx, "ghost", "$2a$04$x"), models.ErrNotFound)
}

func TestAccountStore_AccountIDWinsOverDisplayName(t *testing.T) {
	env := newTestEnv(t)
	store := NewAccountStore(env.db)

	env.seed(t, "dave", "dave_x", "pw", models.RoleUser)

	// Raw insert skips the cross-field check so both columns can hold "dave".
	_, err := env.db.Exec(
		"INSERT INTO accounts (account_id, display_name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)",
		"erin", "dave", "$2a$04$x", "user", 0)
	require.NoError(t, err)

	got, err := store.FindByLoginID(context.Background(), "dave")
	require.NoError(t, err)
	assert.Equal(t, "dave", got.AccountID)
}

func TestAccountStore_CreateConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewAccountStore(env.db)

	env.seed(t, "alice", "alice_w", "pw", models.RoleUser)

	tests := []struct {
		name        string
		accountID   string
		displayName string
	}{
		{"duplicate account id", "alice", "someone"},
		{"duplicate display name", "bob", "alice_w"},
		{"account id equals display name", "alice_w", "bob"},
		{"display name equals account id", "bob", "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(ctx, models.Account{
				AccountID:    tt.accountID,
				DisplayName:  tt.displayName,
				PasswordHash: "$2a$04$x",
				Role:         models.RoleUser,
			})
			assert.ErrorIs(t, err, models.ErrConflict)
		})
	}

	accounts, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestAccountStore_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewAccountStore(env.db)

	tests := []struct {
		name    string
		account models.Account
	}{
		{"bad account id", models.Account{AccountID: "a b", DisplayName: "ab", PasswordHash: "h", Role: models.RoleUser}},
		{"bad display name", models.Account{AccountID: "ab", DisplayName: "a-b", PasswordHash: "h", Role: models.RoleUser}},
		{"bad role", models.Account{AccountID: "ab", DisplayName: "ab", PasswordHash: "h", Role: "root"}},
		{"empty hash", models.Account{AccountID: "ab", DisplayName: "ab", Role: models.RoleUser}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Create(ctx, tt.account)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestAccountStore_UpdateDisplayName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewAccountStore(env.db)

	env.seed(t, "alice", "alice", "pw", models.RoleUser)
	env.seed(t, "bob", "bob", "pw", models.RoleUser)

	require.NoError(t, store.UpdateDisplayName(ctx, "alice", "alice_2"))

	got, err := store.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice_2", got.DisplayName)

	// Another account's id is reserved even though no display name uses it.
	err = store.UpdateDisplayName(ctx, "bob", "alice")
	assert.ErrorIs(t, err, models.ErrConflict)

	err = store.UpdateDisplayName(ctx, "bob", "alice_2")
	assert.ErrorIs(t, err, models.ErrConflict)

	// An account may take back its own id as display name.
	require.NoError(t, store.UpdateDisplayName(ctx, "alice", "alice"))

	err = store.UpdateDisplayName(ctx, "bob", "no spaces")
	assert.ErrorIs(t, err, models.ErrValidation)

	err = store.UpdateDisplayName(ctx, "ghost", "ghost_2")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountStore_RoleAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := NewAccountStore(env.db)

	env.seed(t, "alice", "alice", "pw", models.RoleUser)

	require.NoError(t, store.UpdateRole(ctx, "alice", models.RoleAdmin))
	got, err := store.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())

	assert.ErrorIs(t, store.UpdateRole(ctx, "alice", "root"), models.ErrValidation)

	require.NoError(t, store.Delete(ctx, "alice"))
	_, err = store.GetByID(ctx, "alice")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountStore_ClosedDatabase(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Close())

	_, err := NewAccountStore(env.db).FindByLoginID(context.Background(), "alice")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}
