// Package app wires configuration, storage, services and transports into a
// runnable portal.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/oops"

	"github.com/isdelr/lab-portal/internal/api"
	"github.com/isdelr/lab-portal/internal/api/views"
	"github.com/isdelr/lab-portal/internal/auth"
	"github.com/isdelr/lab-portal/internal/config"
	"github.com/isdelr/lab-portal/internal/database"
	"github.com/isdelr/lab-portal/internal/metrics"
	"github.com/isdelr/lab-portal/internal/monitoring"
	"github.com/isdelr/lab-portal/internal/services"
	"github.com/isdelr/lab-portal/internal/websocket"
)

// App is a fully wired portal server.
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	db      *sql.DB
	hub     *websocket.Hub
	metrics *metrics.Metrics
	auth    *services.AuthService
	admin   *services.AdminService
	handler http.Handler

	scheduler   *monitoring.Scheduler
	statUpdater *monitoring.StatUpdater
}

// OpenStore opens the database and applies pending migrations.
func OpenStore(ctx context.Context, path string) (*sql.DB, error) {
	db, err := database.New(path)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewSessionManager builds the session manager from configuration.
func NewSessionManager(cfg *config.Config) (*auth.SessionManager, error) {
	keys, err := auth.LoadKeyManager(cfg.Session.Secret, cfg.Session.KeyFile, cfg.Session.PreviousKeys)
	if err != nil {
		return nil, oops.Code("SESSION_KEYS_FAILED").Wrap(err)
	}
	return auth.NewSessionManager(keys, cfg.Session.TTL), nil
}

// New builds every component of the portal. Nothing runs until Run.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	db, err := OpenStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	a, err := newWithDB(cfg, log, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func newWithDB(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	sessions, err := NewSessionManager(cfg)
	if err != nil {
		return nil, err
	}

	renderer, err := views.New()
	if err != nil {
		return nil, err
	}

	scheduler, err := monitoring.NewScheduler(db, cfg.Maintenance.Schedule)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	hub := websocket.NewHub(cfg.CORS.AllowedOrigins)
	hasher := auth.NewBcryptHasher(cfg.Password.Cost)

	a := &App{
		cfg:       cfg,
		log:       log,
		db:        db,
		hub:       hub,
		metrics:   m,
		auth:      services.NewAuthService(db, hasher, sessions, hub, m, log),
		admin:     services.NewAdminService(db, hasher, hub, log),
		scheduler: scheduler,
		statUpdater: monitoring.NewStatUpdater(cfg.Maintenance.StatsInterval,
			filepath.Dir(cfg.DatabasePath), m, hub),
	}
	a.handler = api.NewRouter(api.Deps{
		Config:  cfg,
		DB:      db,
		Auth:    a.auth,
		Audit:   a.admin,
		Hub:     hub,
		Metrics: m,
		Views:   renderer,
		Logger:  log,
	})
	return a, nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP and runs the background workers until ctx is cancelled, then
// shuts everything down gracefully.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	go a.hub.Run(hubCtx)
	go a.statUpdater.Run()
	a.scheduler.Start()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Int("port", a.cfg.ServerPort).Str("env", a.cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Shutting down server...")
	case err := <-errCh:
		runErr = oops.Code("SERVER_FAILED").Wrap(err)
	}

	a.statUpdater.Stop()
	a.scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Server forced to shutdown")
		if runErr == nil {
			runErr = err
		}
	}

	// Closing the hub drops the remaining websocket streams.
	stopHub()
	<-a.hub.Done()

	a.log.Info().Msg("Server exiting")
	return runErr
}

// Close releases the database.
func (a *App) Close() error {
	return a.db.Close()
}
