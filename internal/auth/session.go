package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/isdelr/lab-portal/internal/models"
)

// DefaultSessionTTL is the lifetime of a freshly issued session.
const DefaultSessionTTL = 24 * time.Hour

// Session is the identity a valid token binds a request to. The display name
// and role are cached at issuance and may lag behind the account store.
type Session struct {
	TokenID     string
	AccountID   string
	DisplayName string
	Role        models.Role
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// IsAdmin reports whether the cached role is admin.
func (s Session) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}

// ActorLabel is the audit label of the session holder.
func (s Session) ActorLabel() string {
	return models.ActorLabel(s.DisplayName, s.AccountID)
}

// Claims defines the JWT claims structure.
type Claims struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// SessionManager issues and validates signed session tokens. It keeps no
// server-side state: revocation means the client drops the cookie.
type SessionManager struct {
	keys *KeyManager
	ttl  time.Duration
	now  func() time.Time
}

// NewSessionManager creates a session manager. A non-positive ttl selects
// DefaultSessionTTL.
func NewSessionManager(keys *KeyManager, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{keys: keys, ttl: ttl, now: time.Now}
}

// TTL is the lifetime given to new tokens.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a new token for the account.
func (m *SessionManager) Issue(account models.Account) (string, Session, error) {
	now := m.now().Truncate(time.Second)
	s := Session{
		TokenID:     uuid.NewString(),
		AccountID:   account.AccountID,
		DisplayName: account.DisplayName,
		Role:        account.Role,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.ttl),
	}

	claims := &Claims{
		Name: s.DisplayName,
		Role: s.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.TokenID,
			Subject:   s.AccountID,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}

	key := m.keys.Active()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = key.ID

	signed, err := token.SignedString(key.Secret)
	if err != nil {
		return "", Session{}, oops.Code("SESSION_SIGN_FAILED").With("account_id", account.AccountID).Wrap(err)
	}
	return signed, s, nil
}

// Refresh re-issues a token carrying the account's current display name and role.
func (m *SessionManager) Refresh(account models.Account) (string, Session, error) {
	return m.Issue(account)
}

// Validate checks signature and expiry. Every failure maps to
// models.ErrSessionInvalid; the account store is not consulted.
func (m *SessionManager) Validate(tokenStr string) (Session, error) {
	if tokenStr == "" {
		return Session{}, oops.Code("SESSION_TOKEN_EMPTY").Wrapf(models.ErrSessionInvalid, "session token is empty")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return Session{}, oops.Code("SESSION_INVALID").With("reason", err.Error()).Wrap(models.ErrSessionInvalid)
	}

	if claims.Subject == "" {
		return Session{}, oops.Code("SESSION_NO_SUBJECT").Wrap(models.ErrSessionInvalid)
	}
	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return Session{}, oops.Code("SESSION_BAD_ROLE").Wrap(models.ErrSessionInvalid)
	}

	return Session{
		TokenID:     claims.ID,
		AccountID:   claims.Subject,
		DisplayName: claims.Name,
		Role:        claims.Role,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

func (m *SessionManager) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	key, ok := m.keys.Lookup(kid)
	if !ok {
		return nil, oops.Code("SESSION_UNKNOWN_KEY").With("kid", kid).Errorf("unknown signing key")
	}
	return key.Secret, nil
}

type contextKey string

const sessionKey = contextKey("session")

// WithSession stores the validated session in the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session placed by the session middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}
