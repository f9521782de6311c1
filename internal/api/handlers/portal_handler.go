package handlers

import (
	"errors"
	"net/http"

	"github.com/isdelr/lab-portal/internal/api/views"
	"github.com/isdelr/lab-portal/internal/auth"
	"github.com/isdelr/lab-portal/internal/config"
	"github.com/isdelr/lab-portal/internal/models"
	"github.com/isdelr/lab-portal/internal/services"
)

// PortalHandler serves the dashboard and the self-service profile pages.
type PortalHandler struct {
	service  services.AuthServiceProvider
	sessions *Sessions
	views    *views.Renderer
	links    []config.Link
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(service services.AuthServiceProvider, sessions *Sessions, renderer *views.Renderer, links []config.Link) *PortalHandler {
	return &PortalHandler{service: service, sessions: sessions, views: renderer, links: links}
}

// Dashboard renders the link directory. The session is refreshed against the
// store first so renames and role changes made elsewhere show up.
func (h *PortalHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	session, ok := h.refresh(w, r)
	if !ok {
		return
	}

	data := views.IndexData{
		AccountID:   session.AccountID,
		DisplayName: session.DisplayName,
		IsAdmin:     session.IsAdmin(),
		Links:       h.links,
	}
	if err := h.views.Render(w, http.StatusOK, views.PageIndex, data); err != nil {
		serverError(w, r, err, "Failed to render dashboard")
	}
}

// Profile renders the credential change forms.
func (h *PortalHandler) Profile(w http.ResponseWriter, r *http.Request) {
	session, ok := h.refresh(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	data := views.ProfileData{
		AccountID:   session.AccountID,
		DisplayName: session.DisplayName,
		Error:       q.Get("error"),
		Success:     q.Get("success"),
		MaxNameLen:  models.MaxDisplayNameLength,
	}
	if err := h.views.Render(w, http.StatusOK, views.PageProfile, data); err != nil {
		serverError(w, r, err, "Failed to render profile")
	}
}

// ChangeUsername handles the rename form.
func (h *PortalHandler) ChangeUsername(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	token, _, err := h.service.ChangeUsername(r.Context(), session, r.PostForm.Get("new_username"), clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrValidation):
			http.Redirect(w, r, "/profile?error=invalid_format", http.StatusSeeOther)
		case errors.Is(err, models.ErrConflict):
			http.Redirect(w, r, "/profile?error=taken", http.StatusSeeOther)
		case errors.Is(err, models.ErrSessionInvalid):
			h.sessions.Clear(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		default:
			serverError(w, r, err, "Failed to change username")
		}
		return
	}

	h.sessions.Set(w, token)
	http.Redirect(w, r, "/profile?success=username", http.StatusSeeOther)
}

// ChangePassword handles the password form. Success ends the session.
func (h *PortalHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	err := h.service.ChangePassword(r.Context(), session, r.PostForm.Get("old_pwd"), r.PostForm.Get("new_pwd"), clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAuthFailure):
			http.Redirect(w, r, "/profile?error=wrong_password", http.StatusSeeOther)
		case errors.Is(err, models.ErrValidation):
			http.Redirect(w, r, "/profile?error=invalid_password", http.StatusSeeOther)
		case errors.Is(err, models.ErrSessionInvalid):
			h.sessions.Clear(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		default:
			serverError(w, r, err, "Failed to change password")
		}
		return
	}

	h.sessions.Clear(w)
	http.Redirect(w, r, "/login?changed=1", http.StatusSeeOther)
}

// refresh re-reads the session's account. It writes the response itself when
// the request cannot continue.
func (h *PortalHandler) refresh(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	session, _ := auth.SessionFromContext(r.Context())

	token, current, changed, err := h.service.RefreshSession(r.Context(), session)
	if err != nil {
		if errors.Is(err, models.ErrSessionInvalid) {
			h.sessions.Clear(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return auth.Session{}, false
		}
		serverError(w, r, err, "Failed to refresh session")
		return auth.Session{}, false
	}
	if changed {
		h.sessions.Set(w, token)
	}
	return current, true
}
