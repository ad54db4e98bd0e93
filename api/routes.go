package api

import (
	"net/http"

	"skote-admin/api/handlers"
	"skote-admin/api/routegroups"
	"skote-admin/core/rbac"
	"skote-admin/gui"

	"github.com/go-chi/chi/v5"
)

func (s *Server) registerRoutes() {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	h := s.newRouteHandlers()
	r.MethodFunc("GET", "/healthz", handlers.Healthz)
	r.Handle("/static/*", http.StripPrefix("/static/", gui.StaticHandler()))
	r.MethodFunc("GET", "/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, handlers.UsersListPath, http.StatusFound)
	})
	r.MethodFunc("GET", "/login", h.auth.LoginPage)
	r.MethodFunc("POST", "/login", s.rateLimitMiddleware(h.auth.Login))
	r.MethodFunc("POST", "/logout", s.withSession(h.auth.Logout))

	r.Route("/admin", func(adminRouter chi.Router) {
		routegroups.RegisterUsers(adminRouter, s.guards(), h.users)
		routegroups.RegisterLogs(adminRouter, s.guards(), h.logs)
	})
	s.router = r
}

func (s *Server) guards() routegroups.Guards {
	return routegroups.Guards{
		WithSession:       s.withSession,
		RequirePermission: func(p string) func(http.HandlerFunc) http.HandlerFunc { return s.requirePermission(rbac.Permission(p)) },
	}
}
