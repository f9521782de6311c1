package models

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"
)

// Role is the authorization level of an account.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// MaxDisplayNameLength caps display names, counted in runes.
const MaxDisplayNameLength = 32

var displayNamePattern = regexp.MustCompile(`^[\p{L}\p{N}_]+$`)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", oops.Code("ROLE_INVALID").With("role", s).Wrapf(ErrValidation, "unknown role %q", s)
}

// Account represents a portal account.
type Account struct {
	AccountID    string    `json:"accountId"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"` // Never expose this to the client
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin reports whether the account holds the admin role.
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// ActorLabel is the audit label for the account. It carries both the display
// name and the account id so entries stay readable after a rename.
func (a Account) ActorLabel() string {
	return ActorLabel(a.DisplayName, a.AccountID)
}

// ActorLabel formats a display name and account id for the audit log.
func ActorLabel(displayName, accountID string) string {
	if displayName == accountID {
		return accountID
	}
	return fmt.Sprintf("%s (%s)", displayName, accountID)
}

// ValidateDisplayName checks the allowed charset: letters, digits and underscore.
func ValidateDisplayName(name string) error {
	if name == "" {
		return oops.Code("DISPLAY_NAME_EMPTY").Wrapf(ErrValidation, "display name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return oops.Code("DISPLAY_NAME_TOO_LONG").
			With("max", MaxDisplayNameLength).
			Wrapf(ErrValidation, "display name is too long")
	}
	if !displayNamePattern.MatchString(name) {
		return oops.Code("DISPLAY_NAME_INVALID").Wrapf(ErrValidation, "display name may only contain letters, digits and underscore")
	}
	return nil
}

// ValidateAccountID applies the display name charset to account ids, which
// share the login id namespace.
func ValidateAccountID(id string) error {
	if err := ValidateDisplayName(id); err != nil {
		return oops.Code("ACCOUNT_ID_INVALID").With("account_id", id).Wrap(err)
	}
	return nil
}
