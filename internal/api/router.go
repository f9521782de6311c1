package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/isdelr/lab-portal/internal/api/handlers"
	"github.com/isdelr/lab-portal/internal/api/views"
	"github.com/isdelr/lab-portal/internal/config"
	"github.com/isdelr/lab-portal/internal/metrics"
	"github.com/isdelr/lab-portal/internal/services"
	"github.com/isdelr/lab-portal/internal/websocket"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config  *config.Config
	DB      *sql.DB
	Auth    services.AuthServiceProvider
	Audit   handlers.AuditQuerier
	Hub     *websocket.Hub
	Metrics *metrics.Metrics
	Views   *views.Renderer
	Logger  zerolog.Logger
}

// NewRouter creates and configures a new Chi router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Basic middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(d.Logger))
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)

	// Sibling services on the same parent domain may call /verify with credentials.
	if origins := d.Config.CORS.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"X-Portal-Account", "X-Portal-Role"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	sessions := handlers.NewSessions(d.Auth, handlers.CookieSettings{
		Name:   d.Config.Session.CookieName,
		Domain: d.Config.Session.CookieDomain,
		Secure: d.Config.Session.CookieSecure,
	})

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(d.Auth, sessions, d.Views)
	portalHandler := handlers.NewPortalHandler(d.Auth, sessions, d.Views, d.Config.Links)
	auditHandler := handlers.NewAuditHandler(d.Audit, d.Hub)
	healthHandler := handlers.NewHealthHandler(d.DB)

	r.Get("/healthz", healthHandler.Healthz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(sessions.Load)

		r.Get("/login", authHandler.LoginPage)
		r.Post("/login", authHandler.Login)
		r.Get("/logout", authHandler.Logout)
		r.Get("/verify", authHandler.Verify)

		r.Group(func(r chi.Router) {
			r.Use(sessions.RequireSession)

			r.Get("/", portalHandler.Dashboard)
			r.Get("/profile", portalHandler.Profile)
			r.Post("/change-username", portalHandler.ChangeUsername)
			r.Post("/change-password", portalHandler.ChangePassword)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(sessions.RequireAdmin)

			r.Get("/audit", auditHandler.List)
			r.Get("/audit/stream", auditHandler.Stream)
			r.Get("/host/stream", auditHandler.HostStream)
		})
	})

	return r
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("ip", r.RemoteAddr).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("Request handled")
}
