package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"skote-admin/api/handlers"
	"skote-admin/config"
	"skote-admin/core/accounts"
	"skote-admin/core/auth"
	"skote-admin/core/notify"
	"skote-admin/core/rbac"
	"skote-admin/core/store"
	"skote-admin/core/utils"
	"skote-admin/gui"

	"github.com/go-chi/chi/v5"
)

// BackgroundWorker is started with the server and stopped on shutdown.
type BackgroundWorker interface {
	StartWithContext(ctx context.Context) error
	StopWithContext(ctx context.Context) error
}

type ServerDeps struct {
	Users          store.UsersStore
	Sessions       store.SessionStore
	Audits         store.AuditStore
	SessionManager *auth.SessionManager
	Policy         *rbac.Policy
	Repository     accounts.UserRepository
	Tx             handlers.TxRunner
	Views          *gui.Views
	Notifier       notify.Notifier
}

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	router          chi.Router
	httpServer      *http.Server
	users           store.UsersStore
	sessions        store.SessionStore
	audits          store.AuditStore
	sessionManager  *auth.SessionManager
	policy          *rbac.Policy
	repo            accounts.UserRepository
	tx              handlers.TxRunner
	views           *gui.Views
	notifier        notify.Notifier
	activityTracker *sessionActivity
	loginLimiter    *requestLimiter
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, logger *utils.Logger) *Server {
	s := &Server{
		cfg:             cfg,
		logger:          logger,
		users:           deps.Users,
		sessions:        deps.Sessions,
		audits:          deps.Audits,
		sessionManager:  deps.SessionManager,
		policy:          deps.Policy,
		repo:            deps.Repository,
		tx:              deps.Tx,
		views:           deps.Views,
		notifier:        deps.Notifier,
		activityTracker: newSessionActivity(),
		loginLimiter:    newLimiter(5, time.Minute),
	}
	s.registerRoutes()
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Printf("listening on %s tls=%t", s.cfg.ListenAddr, s.cfg.TLSEnabled)
	var err error
	if s.cfg.TLSEnabled {
		err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
