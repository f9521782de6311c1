package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/isdelr/lab-portal/internal/auth"
	"github.com/isdelr/lab-portal/internal/database/databasetest"
	"github.com/isdelr/lab-portal/internal/metrics"
	"github.com/isdelr/lab-portal/internal/models"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (p *recordingPublisher) PublishAudit(e models.AuditEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
}

func (p *recordingPublisher) Entries() []models.AuditEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.AuditEntry(nil), p.entries...)
}

type testEnv struct {
	db        *sql.DB
	hasher    *auth.BcryptHasher
	sessions  *auth.SessionManager
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	auth      *AuthService
	admin     *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := databasetest.New(t)
	keys, err := auth.NewKeyManager(auth.NewSigningKey([]byte("services-test-signing-key")))
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		hasher:    auth.NewBcryptHasher(bcrypt.MinCost),
		sessions:  auth.NewSessionManager(keys, time.Hour),
		publisher: &recordingPublisher{},
		metrics:   metrics.New(),
	}
	env.auth = NewAuthService(db, env.hasher, env.sessions, env.publisher, env.metrics, zerolog.Nop())
	env.admin = NewAdminService(db, env.hasher, env.publisher, zerolog.Nop())
	return env
}

// seed inserts an account directly, bypassing the audit trail.
func (e *testEnv) seed(t *testing.T, accountID, displayName, password string, role models.Role) models.Account {
	t.Helper()

	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	account, err := NewAccountStore(e.db).Create(context.Background(), models.Account{
		AccountID:    accountID,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
	})
	require.NoError(t, err)
	return account
}

func (e *testEnv) auditCount(t *testing.T) int {
	t.Helper()
	n, err := NewAuditLog(e.db).Count(context.Background())
	require.NoError(t, err)
	return n
}

func (e *testEnv) lastAudit(t *testing.T) models.AuditEntry {
	t.Helper()
	entries, err := NewAuditLog(e.db).Query(context.Background(), models.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0]
}
