package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/isdelr/lab-portal/internal/auth"
	"github.com/isdelr/lab-portal/internal/database"
	"github.com/isdelr/lab-portal/internal/models"
)

// ConsoleSourceIP is recorded as the source of console-initiated audit entries.
const ConsoleSourceIP = "local"

// AdminServiceProvider defines the operations available to the admin console.
type AdminServiceProvider interface {
	ListAccounts(ctx context.Context) ([]models.Account, error)
	CreateAccount(ctx context.Context, operator, accountID, displayName, password string, role models.Role) (models.Account, error)
	DeleteAccount(ctx context.Context, operator, accountID string) error
	ResetPassword(ctx context.Context, operator, accountID, password string) error
	ChangeRole(ctx context.Context, operator, accountID string, role models.Role) error
	QueryAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error)
}

// AdminService carries out provisioning and audit queries for the console.
// Every mutation is audited under the operator's label.
type AdminService struct {
	db        *sql.DB
	hasher    auth.PasswordHasher
	publisher AuditPublisher
	log       zerolog.Logger
}

// NewAdminService creates a new AdminService. publisher may be nil.
func NewAdminService(db *sql.DB, hasher auth.PasswordHasher, publisher AuditPublisher, log zerolog.Logger) *AdminService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &AdminService{
		db:        db,
		hasher:    hasher,
		publisher: publisher,
		log:       log.With().Str("component", "admin_service").Logger(),
	}
}

// ListAccounts returns every account.
func (s *AdminService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return NewAccountStore(s.db).List(ctx)
}

// CreateAccount provisions an account. An empty display name defaults to the
// account id and an empty role to user.
func (s *AdminService) CreateAccount(ctx context.Context, operator, accountID, displayName, password string, role models.Role) (models.Account, error) {
	if displayName == "" {
		displayName = accountID
	}
	if role == "" {
		role = models.RoleUser
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.Account{}, err
	}

	var account models.Account
	err = s.mutate(ctx, operator, models.ActionAccountCreate, accountID, func(accounts *AccountStore) error {
		var err error
		account, err = accounts.Create(ctx, models.Account{
			AccountID:    accountID,
			DisplayName:  displayName,
			PasswordHash: hash,
			Role:         role,
		})
		return err
	})
	if err != nil {
		return models.Account{}, err
	}
	return account, nil
}

// DeleteAccount removes an account.
func (s *AdminService) DeleteAccount(ctx context.Context, operator, accountID string) error {
	return s.mutate(ctx, operator, models.ActionAccountDelete, accountID, func(accounts *AccountStore) error {
		return accounts.Delete(ctx, accountID)
	})
}

// ResetPassword sets a new password without knowing the old one.
func (s *AdminService) ResetPassword(ctx context.Context, operator, accountID, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.mutate(ctx, operator, models.ActionPasswordReset, accountID, func(accounts *AccountStore) error {
		return accounts.UpdatePasswordHash(ctx, accountID, hash)
	})
}

// ChangeRole grants or revokes admin. Sessions already issued keep their cached
// role until they are refreshed or expire.
func (s *AdminService) ChangeRole(ctx context.Context, operator, accountID string, role models.Role) error {
	if _, err := models.ParseRole(string(role)); err != nil {
		return err
	}
	target := fmt.Sprintf("%s:%s", accountID, role)
	return s.mutate(ctx, operator, models.ActionRoleChange, target, func(accounts *AccountStore) error {
		return accounts.UpdateRole(ctx, accountID, role)
	})
}

// QueryAudit reads the audit trail.
func (s *AdminService) QueryAudit(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, error) {
	return NewAuditLog(s.db).Query(ctx, filter)
}

// mutate runs fn and the matching audit append in one transaction. The actor
// label names both the operator and the target.
func (s *AdminService) mutate(ctx context.Context, operator string, action models.AuditAction, target string, fn func(*AccountStore) error) error {
	var entry models.AuditEntry
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := fn(NewAccountStore(tx)); err != nil {
			return err
		}
		var err error
		entry, err = NewAuditLog(tx).Append(ctx, fmt.Sprintf("%s => %s", operator, target), action, ConsoleSourceIP)
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).Str("operator", operator).Str("action", string(action)).Str("target", target).Msg("Console operation failed")
		return err
	}

	s.publisher.PublishAudit(entry)
	s.log.Info().Str("operator", operator).Str("action", string(action)).Str("target", target).Msg("Console operation applied")
	return nil
}
