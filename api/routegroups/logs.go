package routegroups

import (
	"skote-admin/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterLogs(adminRouter chi.Router, g Guards, logs *handlers.LogsHandler) {
	adminRouter.Route("/logs", func(logsRouter chi.Router) {
		logsRouter.MethodFunc("GET", "/", g.SessionPerm("users.view", logs.List))
		logsRouter.MethodFunc("GET", "/export", g.SessionPerm("users.view", logs.Export))
	})
}
