package models

import "time"

// AuditAction names a security-relevant event.
type AuditAction string

const (
	ActionLoginSuccess          AuditAction = "login_success"
	ActionLoginFailure          AuditAction = "login_failure"
	ActionLogout                AuditAction = "logout"
	ActionUsernameChange        AuditAction = "username_change"
	ActionPasswordChange        AuditAction = "password_change"
	ActionPasswordChangeFailure AuditAction = "password_change_failure"

	// Console actions
	ActionAccountCreate AuditAction = "account_create"
	ActionAccountDelete AuditAction = "account_delete"
	ActionPasswordReset AuditAction = "password_reset"
	ActionRoleChange    AuditAction = "role_change"
)

// AuditEntry is one row of the append-only audit trail.
type AuditEntry struct {
	ID         int64       `json:"id"`
	ActorLabel string      `json:"actor"`
	Action     AuditAction `json:"action"`
	SourceIP   string      `json:"sourceIp"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// AuditFilter narrows an audit query. Empty strings match everything and a
// zero Limit returns all rows.
type AuditFilter struct {
	Actor  string
	Action string
	Limit  int
}

// DefaultAuditLimit is the row cap used when the caller does not pick one.
const DefaultAuditLimit = 50
