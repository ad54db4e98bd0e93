package api

import "skote-admin/api/handlers"

type routeHandlers struct {
	auth  *handlers.AuthHandler
	users *handlers.UsersHandler
	logs  *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:  handlers.NewAuthHandler(s.cfg, s.users, s.sessionManager, s.audits, s.views, s.logger),
		users: handlers.NewUsersHandler(s.cfg, s.repo, s.tx, s.sessions, s.views, s.notifier, s.audits, s.logger),
		logs:  handlers.NewLogsHandler(s.audits),
	}
}
