package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "portal_session", cfg.Session.CookieName)
	assert.True(t, cfg.Session.CookieSecure)
	assert.Equal(t, "@every 6h", cfg.Maintenance.Schedule)
}

func TestLoad_FileOverlay(t *testing.T) {
	path := writeFile(t, `
port: 9090
session:
  ttl: 2h
  cookie_domain: .aedl.top
cors:
  allowed_origins:
    - https://filebox.aedl.top
links:
  - name: Overleaf
    url: https://www.overleaf.com
    icon: "📝"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, ".aedl.top", cfg.Session.CookieDomain)
	// untouched keys keep their defaults
	assert.Equal(t, "portal_session", cfg.Session.CookieName)
	assert.Equal(t, []string{"https://filebox.aedl.top"}, cfg.CORS.AllowedOrigins)
	require.Len(t, cfg.Links, 1)
	assert.Equal(t, "Overleaf", cfg.Links[0].Name)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "port: 9090\n")
	t.Setenv("PORTAL_PORT", "7070")
	t.Setenv("PORTAL_SESSION__COOKIE_DOMAIN", ".example.org")
	t.Setenv("PORTAL_PASSWORD__COST", "12")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.ServerPort)
	assert.Equal(t, ".example.org", cfg.Session.CookieDomain)
	assert.Equal(t, 12, cfg.Password.Cost)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "bad port", body: "port: 70000\n", want: "out of range"},
		{name: "bad cost", body: "password:\n  cost: 2\n", want: "bcrypt range"},
		{name: "link without url", body: "links:\n  - name: x\n", want: "links[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
