package routegroups

import (
	"skote-admin/api/handlers"

	"github.com/go-chi/chi/v5"
)

func RegisterUsers(adminRouter chi.Router, g Guards, users *handlers.UsersHandler) {
	adminRouter.Route("/users", func(usersRouter chi.Router) {
		usersRouter.MethodFunc("GET", "/", g.SessionPerm("users.view", users.List))
		usersRouter.MethodFunc("GET", "/create", g.SessionPerm("users.manage", users.CreateForm))
		usersRouter.MethodFunc("POST", "/", g.SessionPerm("users.manage", users.Store))
		usersRouter.MethodFunc("GET", "/{id:[0-9]+}/edit", g.SessionPerm("users.manage", users.EditForm))
		usersRouter.MethodFunc("PUT", "/{id:[0-9]+}", g.SessionPerm("users.manage", users.Update))
		usersRouter.MethodFunc("POST", "/{id:[0-9]+}", g.SessionPerm("users.manage", users.Update))
		usersRouter.MethodFunc("DELETE", "/{id:[0-9]+}", g.SessionPerm("users.manage", users.Destroy))
		usersRouter.MethodFunc("POST", "/{id:[0-9]+}/delete", g.SessionPerm("users.manage", users.Destroy))
		usersRouter.MethodFunc("POST", "/{id:[0-9]+}/status", g.SessionPerm("users.manage", users.ChangeStatus))
	})
	adminRouter.MethodFunc("POST", "/password", g.SessionPerm("profile.manage", users.ChangePassword))
}
