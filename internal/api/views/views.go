// Package views renders the portal's HTML pages from embedded templates.
package views

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/samber/oops"

	"github.com/isdelr/lab-portal/internal/config"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names.
const (
	PageLogin   = "login.html"
	PageIndex   = "index.html"
	PageProfile = "profile.html"
)

// LoginData feeds the login page.
type LoginData struct {
	Error   bool
	Changed bool
	LoginID string
}

// IndexData feeds the dashboard.
type IndexData struct {
	AccountID   string
	DisplayName string
	IsAdmin     bool
	Links       []config.Link
}

// ProfileData feeds the profile page. Error and Success carry the flag from
// the redirect that led here.
type ProfileData struct {
	AccountID   string
	DisplayName string
	Error       string
	Success     string
	MaxNameLen  int
}

// Renderer executes the page templates.
type Renderer struct {
	pages map[string]*template.Template
}

// New parses every page together with the shared layout.
func New() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{PageLogin, PageIndex, PageProfile} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, oops.Code("TEMPLATE_PARSE_FAILED").With("page", page).Wrap(err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Render writes page with the given status. The page is buffered so a template
// error still produces a clean 500.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return oops.Code("TEMPLATE_NOT_FOUND").With("page", page).Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return oops.Code("TEMPLATE_EXEC_FAILED").With("page", page).Wrap(err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
