package appbootstrap

import (
	"skote-admin/api"
	"skote-admin/config"
	"skote-admin/core/accounts"
	"skote-admin/core/auth"
	"skote-admin/core/notify"
	"skote-admin/core/rbac"
	"skote-admin/core/sessions"
	"skote-admin/core/store"
	"skote-admin/core/utils"
	"skote-admin/gui"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	users      store.UsersStore
	roles      store.RolesStore
	notifier   notify.Notifier
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *store.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	roles := store.NewRolesStore(db)
	sessionsStore := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)

	views, err := gui.LoadViews()
	if err != nil {
		return nil, err
	}
	policy, err := rbac.Build(rbac.DefaultRoles(cfg.SuperAdminRole))
	if err != nil {
		return nil, err
	}
	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		return nil, err
	}
	purger := sessions.NewPurger(cfg.Scheduler, sessionsStore, logger)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Users:          users,
			Sessions:       sessionsStore,
			Audits:         audits,
			SessionManager: auth.NewSessionManager(sessionsStore, cfg, logger),
			Policy:         policy,
			Repository:     accounts.NewRepository(db, views, cfg.SuperAdminRole, cfg.PageSize()),
			Tx:             db,
			Views:          views,
			Notifier:       notifier,
		},
		users:    users,
		roles:    roles,
		notifier: notifier,
		workers:  []api.BackgroundWorker{purger},
	}, nil
}
