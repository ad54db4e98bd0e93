package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"skote-admin/config"
	"skote-admin/core/accounts"
	"skote-admin/core/auth"
	"skote-admin/core/notify"
	"skote-admin/core/store"
	"skote-admin/core/utils"
	"skote-admin/gui"
)

const (
	UsersListPath = "/admin/users"

	msgUserCreated      = "User create successfully."
	msgUserNotCreated   = "User not created successfully..!"
	msgUserUpdated      = "User update successfully."
	msgUserNotUpdated   = "User not updated successfully..!"
	msgUserDeleted      = "%s deleted successfully..!"
	msgUserNotFound     = "User not found.!"
	msgStatusChanged    = "Status changed successfully..!"
	msgPasswordChanged  = "Password changed successfully..!"
	msgPasswordNotSaved = "Password not changed successfully..!"

	requestTimeout = 5 * time.Second
)

var (
	errNotSaved         = errors.New("not saved")
	errSelfDelete       = errors.New("you cannot delete your own account")
	errSelfDeactivate   = errors.New("you cannot deactivate your own account")
	errNotAuthenticated = errors.New("not authenticated")
	errSuperAdminOnly   = errors.New("only a super admin can change a super admin account")
)

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q store.Querier) error) error
}

// FormResult is the JSON body returned by the form endpoints. Failures are
// reported in-band with HTTP 200.
type FormResult struct {
	Error   bool          `json:"error"`
	Message string        `json:"message,omitempty"`
	View    template.HTML `json:"view,omitempty"`
}

func failure(err error) FormResult {
	return FormResult{Error: true, Message: err.Error()}
}

type redirectTarget int

const (
	redirectList redirectTarget = iota
	redirectBack
)

// Notice is the outcome of a redirecting endpoint.
type Notice struct {
	Flash  Flash
	Target redirectTarget
}

func success(msg string, target redirectTarget) Notice {
	return Notice{Flash: Flash{Level: FlashSuccess, Message: msg}, Target: target}
}

func problem(msg string, target redirectTarget) Notice {
	return Notice{Flash: Flash{Level: FlashError, Message: msg}, Target: target}
}

type UsersHandler struct {
	cfg      *config.AppConfig
	repo     accounts.UserRepository
	tx       TxRunner
	sessions store.SessionStore
	views    *gui.Views
	notifier notify.Notifier
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewUsersHandler(cfg *config.AppConfig, repo accounts.UserRepository, tx TxRunner, sessions store.SessionStore, views *gui.Views, notifier notify.Notifier, audits store.AuditStore, logger *utils.Logger) *UsersHandler {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &UsersHandler{cfg: cfg, repo: repo, tx: tx, sessions: sessions, views: views, notifier: notifier, audits: audits, logger: logger}
}

type listPage struct {
	Title     string
	CSRFToken string
	Flash     *Flash
	QueryStr  string
	RoleID    int64
	Roles     []store.Role
	Table     template.HTML
}

type formView struct {
	Roles      []store.Role
	User       *store.User
	CSRFToken  string
	LockedRole bool
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	tq := parseTableQuery(r)
	table, err := h.repo.RenderTable(ctx, tq.params(csrfToken(r)))
	if err != nil {
		h.logger.Errorf("users list: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	roles, err := h.repo.AssignableRoles(ctx)
	if err != nil {
		h.logger.Errorf("users list roles: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	page := listPage{
		Title:     "Users",
		CSRFToken: csrfToken(r),
		Flash:     popFlash(w, r, h.cfg),
		QueryStr:  tq.QueryStr,
		RoleID:    tq.RoleID,
		Roles:     roles,
		Table:     table,
	}
	var buf bytes.Buffer
	if err := h.views.Page(&buf, "user_list.html", page); err != nil {
		h.logger.Errorf("render users page: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *UsersHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.createForm(r))
}

func (h *UsersHandler) createForm(r *http.Request) FormResult {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	roles, err := h.repo.AssignableRoles(ctx)
	if err != nil {
		return failure(err)
	}
	view, err := h.views.Partial("offcanvas", formView{Roles: roles, CSRFToken: csrfToken(r)})
	if err != nil {
		return failure(err)
	}
	return FormResult{View: view}
}

func (h *UsersHandler) Store(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store(r))
}

func (h *UsersHandler) store(r *http.Request) FormResult {
	form, err := parseUserForm(r)
	if err != nil {
		return failure(err)
	}
	if err := form.validate(h.cfg.Accounts.MinPasswordLength, true, true); err != nil {
		return failure(err)
	}
	hash, err := auth.HashPassword(form.Password, h.cfg.Accounts.BcryptCost)
	if err != nil {
		return failure(err)
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	var created *store.User
	var view template.HTML
	err = h.tx.InTx(ctx, func(q store.Querier) error {
		repo := h.repo.WithQuerier(q)
		taken, err := repo.EmailTaken(ctx, form.Email, 0)
		if err != nil {
			return err
		}
		if taken {
			return accounts.ErrEmailTaken
		}
		res, err := repo.Create(ctx, accounts.CreateParams{
			RoleID:       form.RoleID,
			Name:         form.Name,
			Email:        form.Email,
			PasswordHash: hash,
		})
		if err != nil {
			return err
		}
		if !res.Saved() {
			return errNotSaved
		}
		created = res.User
		view, err = repo.RenderTable(ctx, parseTableQuery(r).params(csrfToken(r)))
		return err
	})
	if errors.Is(err, errNotSaved) {
		return FormResult{Error: true, Message: msgUserNotCreated}
	}
	if err != nil {
		h.logger.Errorf("create user %s: %v", form.Email, err)
		return failure(err)
	}
	h.audit(ctx, r, "user.create", fmt.Sprintf("%d|%s", created.ID, created.Email))
	h.welcome(ctx, created, form.Password)
	return FormResult{Message: msgUserCreated, View: view}
}

func (h *UsersHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.editForm(r))
}

func (h *UsersHandler) editForm(r *http.Request) FormResult {
	id, ok := parseID(pathParams(r)["id"])
	if !ok {
		return FormResult{Error: true, Message: msgUserNotFound}
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	user, err := h.repo.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return FormResult{Error: true, Message: msgUserNotFound}
	}
	if err != nil {
		return failure(err)
	}
	roles, err := h.repo.AssignableRoles(ctx)
	if err != nil {
		return failure(err)
	}
	locked := h.isSuperAdmin(user)
	if locked && !h.actorIsSuperAdmin(r) {
		return failure(errSuperAdminOnly)
	}
	view, err := h.views.Partial("offcanvas", formView{Roles: roles, User: user, CSRFToken: csrfToken(r), LockedRole: locked})
	if err != nil {
		return failure(err)
	}
	return FormResult{View: view}
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.update(r))
}

func (h *UsersHandler) update(r *http.Request) FormResult {
	id, ok := parseID(pathParams(r)["id"])
	if !ok {
		return FormResult{Error: true, Message: msgUserNotFound}
	}
	form, err := parseUserForm(r)
	if err != nil {
		return failure(err)
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	target, err := h.repo.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return FormResult{Error: true, Message: msgUserNotUpdated}
	}
	if err != nil {
		return failure(err)
	}
	locked := h.isSuperAdmin(target)
	if locked && !h.actorIsSuperAdmin(r) {
		return failure(errSuperAdminOnly)
	}
	if err := form.validate(h.cfg.Accounts.MinPasswordLength, false, !locked); err != nil {
		return failure(err)
	}
	var view template.HTML
	err = h.tx.InTx(ctx, func(q store.Querier) error {
		repo := h.repo.WithQuerier(q)
		taken, err := repo.EmailTaken(ctx, form.Email, id)
		if err != nil {
			return err
		}
		if taken {
			return accounts.ErrEmailTaken
		}
		res, err := repo.Update(ctx, accounts.UpdateParams{RoleID: form.RoleID, Name: form.Name, Email: form.Email}, id)
		if err != nil {
			return err
		}
		if !res.Saved() {
			return errNotSaved
		}
		view, err = repo.RenderTable(ctx, parseTableQuery(r).params(csrfToken(r)))
		return err
	})
	if errors.Is(err, errNotSaved) {
		return FormResult{Error: true, Message: msgUserNotUpdated}
	}
	if err != nil {
		h.logger.Errorf("update user %d: %v", id, err)
		return failure(err)
	}
	h.audit(ctx, r, "user.update", fmt.Sprintf("%d|%s", id, form.Email))
	return FormResult{Message: msgUserUpdated, View: view}
}

func (h *UsersHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.destroy(r))
}

func (h *UsersHandler) destroy(r *http.Request) Notice {
	id, ok := parseID(pathParams(r)["id"])
	if !ok {
		return problem(msgUserNotFound, redirectList)
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	user, err := h.repo.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return problem(msgUserNotFound, redirectList)
	}
	if err != nil {
		return problem(err.Error(), redirectBack)
	}
	if sr := sessionFromCtx(r); sr != nil && sr.UserID == id {
		return problem(errSelfDelete.Error(), redirectBack)
	}
	if h.isSuperAdmin(user) && !h.actorIsSuperAdmin(r) {
		return problem(errSuperAdminOnly.Error(), redirectBack)
	}
	err = h.tx.InTx(ctx, func(q store.Querier) error {
		return h.repo.WithQuerier(q).Delete(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return problem(msgUserNotFound, redirectList)
	}
	if err != nil {
		h.logger.Errorf("delete user %d: %v", id, err)
		return problem(err.Error(), redirectBack)
	}
	h.audit(ctx, r, "user.delete", fmt.Sprintf("%d|%s", id, user.Email))
	return success(fmt.Sprintf(msgUserDeleted, user.Name), redirectList)
}

func (h *UsersHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.changeStatus(r))
}

func (h *UsersHandler) changeStatus(r *http.Request) Notice {
	id, ok := parseID(pathParams(r)["id"])
	if !ok {
		return problem(msgUserNotFound, redirectBack)
	}
	if sr := sessionFromCtx(r); sr != nil && sr.UserID == id {
		return problem(errSelfDeactivate.Error(), redirectBack)
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	target, err := h.repo.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return problem(msgUserNotFound, redirectBack)
	}
	if err != nil {
		return problem(err.Error(), redirectBack)
	}
	if h.isSuperAdmin(target) && !h.actorIsSuperAdmin(r) {
		return problem(errSuperAdminOnly.Error(), redirectBack)
	}
	user, err := h.repo.ChangeStatus(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return problem(msgUserNotFound, redirectBack)
	}
	if err != nil {
		h.logger.Errorf("change status of user %d: %v", id, err)
		return problem(err.Error(), redirectBack)
	}
	if !user.Active && h.sessions != nil {
		if err := h.sessions.DeleteAllForUser(ctx, id); err != nil {
			h.logger.Errorf("drop sessions of user %d: %v", id, err)
		}
	}
	h.audit(ctx, r, "user.status", fmt.Sprintf("%d|active=%t", id, user.Active))
	return success(msgStatusChanged, redirectList)
}

func (h *UsersHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, h.changePassword(r))
}

// changePassword only ever targets the signed-in user.
func (h *UsersHandler) changePassword(r *http.Request) Notice {
	sr := sessionFromCtx(r)
	if sr == nil || sr.UserID <= 0 {
		return problem(errNotAuthenticated.Error(), redirectBack)
	}
	form, err := parsePasswordForm(r)
	if err != nil {
		return problem(err.Error(), redirectBack)
	}
	if err := form.validate(h.cfg.Accounts.MinPasswordLength); err != nil {
		return problem(err.Error(), redirectBack)
	}
	hash, err := auth.HashPassword(form.Password, h.cfg.Accounts.BcryptCost)
	if err != nil {
		return problem(err.Error(), redirectBack)
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	res, err := h.repo.ChangePassword(ctx, hash, sr.UserID)
	if err != nil {
		h.logger.Errorf("change password of user %d: %v", sr.UserID, err)
		return problem(err.Error(), redirectBack)
	}
	if !res.Saved() {
		return problem(msgPasswordNotSaved, redirectBack)
	}
	h.audit(ctx, r, "user.password_change", fmt.Sprintf("%d", sr.UserID))
	return success(msgPasswordChanged, redirectBack)
}

func (h *UsersHandler) redirect(w http.ResponseWriter, r *http.Request, n Notice) {
	setFlash(w, r, h.cfg, n.Flash)
	target := UsersListPath
	if n.Target == redirectBack {
		target = backURL(r, UsersListPath)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// backURL returns the same-host Referer path or fallback.
func backURL(r *http.Request, fallback string) string {
	ref := strings.TrimSpace(r.Referer())
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil {
		return fallback
	}
	if u.Host != "" && !strings.EqualFold(u.Host, r.Host) {
		return fallback
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") {
		return fallback
	}
	return u.RequestURI()
}

func (h *UsersHandler) isSuperAdmin(u *store.User) bool {
	return u != nil && accounts.IsSuperAdmin(u.RoleName, h.cfg.SuperAdminRole)
}

func (h *UsersHandler) actorIsSuperAdmin(r *http.Request) bool {
	sr := sessionFromCtx(r)
	if sr == nil {
		return false
	}
	for _, role := range sr.Roles {
		if accounts.IsSuperAdmin(role, h.cfg.SuperAdminRole) {
			return true
		}
	}
	return false
}

func (h *UsersHandler) audit(ctx context.Context, r *http.Request, action, details string) {
	if h.audits == nil {
		return
	}
	if err := h.audits.Log(ctx, currentUser(r), action, details); err != nil {
		h.logger.Errorf("audit %s: %v", action, err)
	}
}

func (h *UsersHandler) welcome(ctx context.Context, u *store.User, password string) {
	err := h.notifier.UserCreated(ctx, notify.Welcome{
		UserID:    u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Password:  password,
		CreatedAt: u.CreatedAt,
	})
	if err != nil {
		h.logger.Errorf("welcome notification for user %d: %v", u.ID, err)
	}
}
