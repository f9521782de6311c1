package handlers

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/lab-portal/internal/auth"
	"github.com/isdelr/lab-portal/internal/models"
	"github.com/isdelr/lab-portal/internal/services"
)

// CookieSettings describes the session cookie.
type CookieSettings struct {
	Name   string
	Domain string
	Secure bool
}

// Sessions reads and writes the session cookie and guards routes.
type Sessions struct {
	auth   services.AuthServiceProvider
	cookie CookieSettings
}

// NewSessions creates the session middleware set.
func NewSessions(authService services.AuthServiceProvider, cookie CookieSettings) *Sessions {
	if cookie.Name == "" {
		cookie.Name = "portal_session"
	}
	return &Sessions{auth: authService, cookie: cookie}
}

// Load validates the session cookie, if any, and stores the session in the
// request context. Invalid tokens are treated as anonymous.
func (s *Sessions) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(s.cookie.Name)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		session, ok := s.auth.CheckSession(r.Context(), c.Value)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		hlog.FromRequest(r).UpdateContext(func(zc zerolog.Context) zerolog.Context {
			return zc.Str("account_id", session.AccountID)
		})
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
	})
}

// RequireSession redirects anonymous requests to the login page.
func (s *Sessions) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.SessionFromContext(r.Context()); !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin admits only sessions whose account currently holds the admin
// role. The role is re-read from the store, so a demotion takes effect at once.
func (s *Sessions) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := auth.SessionFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		token, current, changed, err := s.auth.RefreshSession(r.Context(), session)
		if err != nil {
			if errors.Is(err, models.ErrSessionInvalid) {
				s.Clear(w)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			serverError(w, r, err, "Failed to refresh session")
			return
		}
		if changed {
			s.Set(w, token)
		}
		if !current.IsAdmin() {
			hlog.FromRequest(r).Warn().Str("account_id", current.AccountID).Str("path", r.URL.Path).Msg("Admin route denied")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), current)))
	})
}

// Set writes the session cookie.
func (s *Sessions) Set(w http.ResponseWriter, token string) {
	ttl := s.auth.SessionTTL()
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    token,
		Path:     "/",
		Domain:   s.cookie.Domain,
		MaxAge:   ttl,
		Expires:  time.Now().Add(time.Duration(ttl) * time.Second),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   s.cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientIP returns the request's source address. chi's RealIP middleware has
// already replaced RemoteAddr with the proxy-supplied address when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
