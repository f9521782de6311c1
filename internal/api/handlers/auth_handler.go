package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/lab-portal/internal/api/views"
	"github.com/isdelr/lab-portal/internal/auth"
	"github.com/isdelr/lab-portal/internal/models"
	"github.com/isdelr/lab-portal/internal/services"
)

// AuthHandler handles login, logout and the proxy verification endpoint.
type AuthHandler struct {
	service  services.AuthServiceProvider
	sessions *Sessions
	views    *views.Renderer
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(service services.AuthServiceProvider, sessions *Sessions, renderer *views.Renderer) *AuthHandler {
	return &AuthHandler{service: service, sessions: sessions, views: renderer}
}

// LoginPage renders the login form, or sends a signed-in user home.
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.SessionFromContext(r.Context()); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	q := r.URL.Query()
	data := views.LoginData{
		Error:   q.Get("error") != "",
		Changed: q.Get("changed") != "",
	}
	if err := h.views.Render(w, http.StatusOK, views.PageLogin, data); err != nil {
		serverError(w, r, err, "Failed to render login page")
	}
}

// Login handles the login form.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	loginID := r.PostForm.Get("login_id")
	password := r.PostForm.Get("password")

	token, _, err := h.service.Login(r.Context(), loginID, password, clientIP(r))
	if err != nil {
		if errors.Is(err, models.ErrAuthFailure) {
			http.Redirect(w, r, "/login?error=1", http.StatusSeeOther)
			return
		}
		serverError(w, r, err, "Login failed")
		return
	}

	h.sessions.Set(w, token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout records the logout, clears the cookie and returns to the login page.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session, ok := auth.SessionFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), session, clientIP(r)); err != nil {
			hlog.FromRequest(r).Error().Err(err).Str("account_id", session.AccountID).Msg("Failed to audit logout")
		}
	}
	h.sessions.Clear(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Verify answers forward-auth subrequests from the reverse proxy: 200 with the
// account in response headers for a valid session, 401 otherwise.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("X-Portal-Account", session.AccountID)
	w.Header().Set("X-Portal-Role", string(session.Role))
	w.WriteHeader(http.StatusOK)
}
