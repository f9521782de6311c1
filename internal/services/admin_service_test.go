package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/lab-portal/internal/models"
)

func TestAdminService_CreateAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	account, err := env.admin.CreateAccount(ctx, "console:root", "alice", "", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.DisplayName)
	assert.Equal(t, models.RoleUser, account.Role)

	last := env.lastAudit(t)
	assert.Equal(t, models.ActionAccountCreate, last.Action)
	assert.Equal(t, "console:root => alice", last.ActorLabel)
	assert.Equal(t, ConsoleSourceIP, last.SourceIP)

	_, session, err := env.auth.Login(ctx, "alice", "pw", "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "alice", session.AccountID)

	_, err = env.admin.CreateAccount(ctx, "console:root", "alice", "other", "pw", models.RoleUser)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = env.admin.CreateAccount(ctx, "console:root", "bob", "bob", "", models.RoleUser)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAdminService_FailedMutationWritesNoAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.ErrorIs(t, env.admin.DeleteAccount(ctx, "console:root", "ghost"), models.ErrNotFound)
	assert.ErrorIs(t, env.admin.ResetPassword(ctx, "console:root", "ghost", "pw"), models.ErrNotFound)
	assert.ErrorIs(t, env.admin.ChangeRole(ctx, "console:root", "ghost", models.RoleAdmin), models.ErrNotFound)
	assert.ErrorIs(t, env.admin.ChangeRole(ctx, "console:root", "ghost", "root"), models.ErrValidation)

	assert.Equal(t, 0, env.auditCount(t))
	assert.Empty(t, env.publisher.Entries())
}

func TestAdminService_ResetPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "alice", "alice", "forgotten", models.RoleUser)

	require.NoError(t, env.admin.ResetPassword(ctx, "console:root", "alice", "fresh"))
	assert.Equal(t, models.ActionPasswordReset, env.lastAudit(t).Action)

	_, _, err := env.auth.Login(ctx, "alice", "forgotten", "127.0.0.1")
	assert.ErrorIs(t, err, models.ErrAuthFailure)
	_, _, err = env.auth.Login(ctx, "alice", "fresh", "127.0.0.1")
	require.NoError(t, err)
}

func TestAdminService_ChangeRoleAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "alice", "alice", "pw", models.RoleUser)
	env.seed(t, "bob", "bob", "pw", models.RoleUser)

	require.NoError(t, env.admin.ChangeRole(ctx, "console:root", "bob", models.RoleAdmin))
	last := env.lastAudit(t)
	assert.Equal(t, models.ActionRoleChange, last.Action)
	assert.Equal(t, "console:root => bob:admin", last.ActorLabel)

	accounts, err := env.admin.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "alice", accounts[0].AccountID)
	assert.False(t, accounts[0].IsAdmin())
	assert.True(t, accounts[1].IsAdmin())
}

func TestAdminService_QueryAudit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "alice", "alice", "pw", models.RoleUser)

	_, _, _ = env.auth.Login(ctx, "alice", "pw", "127.0.0.1")
	_, _, _ = env.auth.Login(ctx, "alice", "bad", "127.0.0.1")
	require.NoError(t, env.admin.DeleteAccount(ctx, "console:root", "alice"))

	entries, err := env.admin.QueryAudit(ctx, models.AuditFilter{Action: "login"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.ActionLoginFailure, entries[0].Action)

	entries, err = env.admin.QueryAudit(ctx, models.AuditFilter{Actor: "console"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionAccountDelete, entries[0].Action)

	published := env.publisher.Entries()
	require.Len(t, published, 3)
	assert.Equal(t, models.ActionAccountDelete, published[2].Action)
}
