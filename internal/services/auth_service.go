package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/oops"

	"github.com/isdelr/lab-portal/internal/auth"
	"github.com/isdelr/lab-portal/internal/database"
	"github.com/isdelr/lab-portal/internal/metrics"
	"github.com/isdelr/lab-portal/internal/models"
)

// AuthServiceProvider defines the interface for the self-service auth surface.
type AuthServiceProvider interface {
	Login(ctx context.Context, loginID, password, sourceIP string) (string, auth.Session, error)
	Logout(ctx context.Context, session auth.Session, sourceIP string) error
	CheckSession(ctx context.Context, token string) (auth.Session, bool)
	RefreshSession(ctx context.Context, session auth.Session) (string, auth.Session, bool, error)
	ChangeUsername(ctx context.Context, session auth.Session, newName, sourceIP string) (string, auth.Session, error)
	ChangePassword(ctx context.Context, session auth.Session, oldPassword, newPassword, sourceIP string) error
	SessionTTL() int
}

// fallbackDummyHash is used only if the per-process dummy hash cannot be
// generated. It is well-formed but matches no password anyone knows.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention
const fallbackDummyHash = "$2a$10$AAAAAAAAAAAAAAAAAAAAAOf6NpvSb3Yj0F4dYbJ8cK9rXgQ1hV2Wm"

// AuthService orchestrates login, logout, session checks and self-service
// credential changes. Store writes and their audit entries share a transaction.
type AuthService struct {
	db        *sql.DB
	hasher    auth.PasswordHasher
	sessions  *auth.SessionManager
	publisher AuditPublisher
	metrics   *metrics.Metrics
	log       zerolog.Logger
	dummyHash string
}

// NewAuthService creates a new AuthService. publisher and m may be nil.
func NewAuthService(db *sql.DB, hasher auth.PasswordHasher, sessions *auth.SessionManager, publisher AuditPublisher, m *metrics.Metrics, log zerolog.Logger) *AuthService {
	if publisher == nil {
		publisher = nopPublisher{}
	}

	// Verifying against a hash with the live cost keeps unknown-account logins
	// as slow as wrong-password logins.
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		dummy = fallbackDummyHash
	}

	return &AuthService{
		db:        db,
		hasher:    hasher,
		sessions:  sessions,
		publisher: publisher,
		metrics:   m,
		log:       log.With().Str("component", "auth_service").Logger(),
		dummyHash: dummy,
	}
}

// SessionTTL returns the session lifetime in seconds, for cookie Max-Age.
func (s *AuthService) SessionTTL() int {
	return int(s.sessions.TTL().Seconds())
}

// Login verifies credentials and issues a session token. Unknown accounts and
// wrong passwords produce the same error after the same amount of work, and
// every attempt is audited exactly once.
func (s *AuthService) Login(ctx context.Context, loginID, password, sourceIP string) (string, auth.Session, error) {
	account, err := NewAccountStore(s.db).FindByLoginID(ctx, loginID)
	found := err == nil
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", auth.Session{}, oops.Code("AUTH_LOGIN_FAILED").With("operation", "find account").Wrap(err)
	}

	target := s.dummyHash
	if found {
		target = account.PasswordHash
	}
	valid := s.hasher.Verify(password, target)

	if !found || !valid {
		if _, err := s.appendOne(ctx, loginID, models.ActionLoginFailure, sourceIP); err != nil {
			return "", auth.Session{}, oops.Code("AUTH_LOGIN_FAILED").With("operation", "audit failure").Wrap(err)
		}
		s.metrics.ObserveLogin(false)
		s.log.Info().Str("login_id", loginID).Str("ip", sourceIP).Msg("Failed login attempt")
		return "", auth.Session{}, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(models.ErrAuthFailure)
	}

	var rehash string
	if s.hasher.NeedsRehash(account.PasswordHash) {
		if h, err := s.hasher.Hash(password); err == nil {
			rehash = h
		}
	}

	var entry models.AuditEntry
	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if rehash != "" {
			if err := NewAccountStore(tx).UpdatePasswordHash(ctx, account.AccountID, rehash); err != nil {
				return err
			}
		}
		var err error
		entry, err = NewAuditLog(tx).Append(ctx, account.ActorLabel(), models.ActionLoginSuccess, sourceIP)
		return err
	})
	if err != nil {
		return "", auth.Session{}, oops.Code("AUTH_LOGIN_FAILED").With("operation", "audit success").Wrap(err)
	}
	s.published(entry)
	s.metrics.ObserveLogin(true)

	token, session, err := s.sessions.Issue(account)
	if err != nil {
		return "", auth.Session{}, oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue session").Wrap(err)
	}

	s.log.Info().Str("account_id", account.AccountID).Str("ip", sourceIP).Msg("Login successful")
	return token, session, nil
}

// Logout records the logout. The token itself stays valid until expiry; the
// caller drops it by clearing the cookie.
func (s *AuthService) Logout(ctx context.Context, session auth.Session, sourceIP string) error {
	if _, err := s.appendOne(ctx, session.ActorLabel(), models.ActionLogout, sourceIP); err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").Wrap(err)
	}
	return nil
}

// CheckSession validates a token without touching the store. Any failure
// means anonymous.
func (s *AuthService) CheckSession(_ context.Context, token string) (auth.Session, bool) {
	session, err := s.sessions.Validate(token)
	s.metrics.ObserveSessionCheck(err == nil)
	if err != nil {
		return auth.Session{}, false
	}
	return session, true
}

// RefreshSession re-reads the account behind a session and re-issues the token
// when the cached display name or role is stale. It fails with
// models.ErrSessionInvalid if the account no longer exists.
func (s *AuthService) RefreshSession(ctx context.Context, session auth.Session) (string, auth.Session, bool, error) {
	account, err := NewAccountStore(s.db).GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", auth.Session{}, false, oops.Code("SESSION_ACCOUNT_GONE").
				With("account_id", session.AccountID).
				Wrap(models.ErrSessionInvalid)
		}
		return "", auth.Session{}, false, err
	}

	if account.DisplayName == session.DisplayName && account.Role == session.Role {
		return "", session, false, nil
	}

	token, refreshed, err := s.sessions.Refresh(account)
	if err != nil {
		return "", auth.Session{}, false, err
	}
	return token, refreshed, true, nil
}

// ChangeUsername renames the session's account and returns a refreshed token.
// Validation and conflict failures write no audit entry.
func (s *AuthService) ChangeUsername(ctx context.Context, session auth.Session, newName, sourceIP string) (string, auth.Session, error) {
	if err := models.ValidateDisplayName(newName); err != nil {
		s.metrics.ObserveCredentialChange("username", "invalid")
		return "", auth.Session{}, err
	}

	var (
		account models.Account
		entry   models.AuditEntry
		changed bool
	)
	err := database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		accounts := NewAccountStore(tx)

		var err error
		account, err = accounts.GetByID(ctx, session.AccountID)
		if err != nil {
			return err
		}
		if account.DisplayName == newName {
			return nil
		}

		if err := accounts.UpdateDisplayName(ctx, account.AccountID, newName); err != nil {
			return err
		}

		label := fmt.Sprintf("%s -> %s", account.DisplayName, models.ActorLabel(newName, account.AccountID))
		entry, err = NewAuditLog(tx).Append(ctx, label, models.ActionUsernameChange, sourceIP)
		if err != nil {
			return err
		}
		account.DisplayName = newName
		changed = true
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			s.metrics.ObserveCredentialChange("username", "conflict")
		case errors.Is(err, models.ErrNotFound):
			return "", auth.Session{}, oops.Code("SESSION_ACCOUNT_GONE").Wrap(models.ErrSessionInvalid)
		}
		return "", auth.Session{}, err
	}

	if changed {
		s.published(entry)
		s.metrics.ObserveCredentialChange("username", "success")
		s.log.Info().Str("account_id", account.AccountID).Str("display_name", newName).Msg("Username changed")
	}

	token, refreshed, err := s.sessions.Refresh(account)
	if err != nil {
		return "", auth.Session{}, err
	}
	return token, refreshed, nil
}

// ChangePassword re-verifies the old password against the stored hash and
// writes the new one. On success the caller must end the session: the holder
// has to log in again with the new password.
func (s *AuthService) ChangePassword(ctx context.Context, session auth.Session, oldPassword, newPassword, sourceIP string) error {
	account, err := NewAccountStore(s.db).GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return oops.Code("SESSION_ACCOUNT_GONE").Wrap(models.ErrSessionInvalid)
		}
		return err
	}

	if !s.hasher.Verify(oldPassword, account.PasswordHash) {
		if _, err := s.appendOne(ctx, account.ActorLabel(), models.ActionPasswordChangeFailure, sourceIP); err != nil {
			return err
		}
		s.metrics.ObserveCredentialChange("password", "wrong_password")
		s.log.Warn().Str("account_id", account.AccountID).Str("ip", sourceIP).Msg("Password change with wrong current password")
		return oops.Code("AUTH_WRONG_PASSWORD").Wrap(models.ErrAuthFailure)
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.metrics.ObserveCredentialChange("password", "invalid")
		return err
	}

	var entry models.AuditEntry
	err = database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := NewAccountStore(tx).UpdatePasswordHash(ctx, account.AccountID, newHash); err != nil {
			return err
		}
		var err error
		entry, err = NewAuditLog(tx).Append(ctx, account.ActorLabel(), models.ActionPasswordChange, sourceIP)
		return err
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return oops.Code("SESSION_ACCOUNT_GONE").Wrap(models.ErrSessionInvalid)
		}
		return err
	}

	s.published(entry)
	s.metrics.ObserveCredentialChange("password", "success")
	s.log.Info().Str("account_id", account.AccountID).Msg("Password changed")
	return nil
}

// appendOne writes a single audit entry outside any store write.
func (s *AuthService) appendOne(ctx context.Context, actor string, action models.AuditAction, sourceIP string) (models.AuditEntry, error) {
	entry, err := NewAuditLog(s.db).Append(ctx, actor, action, sourceIP)
	if err != nil {
		s.log.Error().Err(err).Str("action", string(action)).Msg("Failed to append audit entry")
		return models.AuditEntry{}, err
	}
	s.published(entry)
	return entry, nil
}

func (s *AuthService) published(entry models.AuditEntry) {
	s.metrics.ObserveAudit(string(entry.Action))
	s.publisher.PublishAudit(entry)
}
