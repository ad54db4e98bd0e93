package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"skote-admin/config"
	"skote-admin/core/accounts"
	"skote-admin/core/auth"
	"skote-admin/core/notify"
	"skote-admin/core/store"
	"skote-admin/gui"
)

type usersEnv struct {
	db    *store.DB
	cfg   *config.AppConfig
	h     *UsersHandler
	repo  *accounts.Repository
	users store.UsersStore
	roles map[string]*store.Role
	admin *store.User
}

func setupUsersHandler(t *testing.T) usersEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver:       "sqlite",
		DBPath:         filepath.Join(t.TempDir(), "users_handlers.db"),
		SuperAdminRole: "super admin",
		Accounts:       config.AccountsConfig{PageSize: 10, MinPasswordLength: 6, BcryptCost: 4},
	}
	db, err := store.NewDB(cfg, nil)
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()
	if err := store.ApplyMigrations(ctx, db, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	roles := map[string]*store.Role{}
	for _, name := range []string{"super admin", "admin", "user"} {
		r, err := store.NewRolesStore(db).Ensure(ctx, name)
		if err != nil {
			t.Fatalf("role %s: %v", name, err)
		}
		roles[name] = r
	}
	views := gui.MustLoadViews()
	repo := accounts.NewRepository(db, views, cfg.SuperAdminRole, cfg.PageSize())
	env := usersEnv{
		db:    db,
		cfg:   cfg,
		repo:  repo,
		users: store.NewUsersStore(db),
		roles: roles,
		h:     NewUsersHandler(cfg, repo, db, store.NewSessionsStore(db), views, nil, store.NewAuditStore(db), nil),
	}
	env.admin = env.createUser(t, "Root", "root@example.com", "super admin")
	return env
}

func (e usersEnv) createUser(t *testing.T, name, email, role string) *store.User {
	t.Helper()
	u := &store.User{
		Name:         name,
		Email:        email,
		PasswordHash: auth.MustHashPassword("secret1"),
		RoleID:       e.roles[role].ID,
		RoleName:     role,
		Active:       true,
	}
	if _, err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func (e usersEnv) countUsers(t *testing.T) int {
	t.Helper()
	n, err := e.users.Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withUser(req *http.Request, u *store.User) *http.Request {
	sr := &store.SessionRecord{ID: "sess-" + strconv.FormatInt(u.ID, 10), UserID: u.ID, Username: u.Email, CSRFToken: "token"}
	if u.RoleName != "" {
		sr.Roles = []string{u.RoleName}
	}
	return req.WithContext(auth.WithSession(req.Context(), sr))
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) FormResult {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res FormResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return res
}

func flashFrom(t *testing.T, rec *httptest.ResponseRecorder) Flash {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name != FlashCookieName || c.Value == "" {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(c.Value)
		if err != nil {
			t.Fatalf("decode flash: %v", err)
		}
		var f Flash
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode flash json: %v", err)
		}
		return f
	}
	t.Fatalf("no flash cookie set")
	return Flash{}
}

func userValues(role int64, name, email, password string) url.Values {
	v := url.Values{}
	v.Set("role", strconv.FormatInt(role, 10))
	v.Set("name", name)
	v.Set("email", email)
	if password != "" {
		v.Set("password", password)
	}
	return v
}

func TestStoreCreatesUserAndRendersTable(t *testing.T) {
	env := setupUsersHandler(t)
	req := withUser(formRequest(http.MethodPost, "/admin/users", userValues(env.roles["admin"].ID, "Jane Doe", "Jane@Example.com", "secret12")), env.admin)
	rec := httptest.NewRecorder()
	env.h.Store(rec, req)
	res := decodeResult(t, rec)
	if res.Error || res.Message != msgUserCreated {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(string(res.View), "jane@example.com") {
		t.Fatalf("expected table to list the new user: %s", res.View)
	}
	u, err := env.users.FindByEmail(context.Background(), "jane@example.com")
	if err != nil || u == nil {
		t.Fatalf("user not persisted: %v", err)
	}
	if u.PasswordHash == "secret12" || !auth.VerifyPassword(u.PasswordHash, "secret12") {
		t.Fatalf("password must be stored as a hash")
	}
	if u.RoleID != env.roles["admin"].ID || !u.Active {
		t.Fatalf("unexpected stored user %+v", u)
	}
}

func TestStoreValidationFailures(t *testing.T) {
	env := setupUsersHandler(t)
	cases := []struct {
		name string
		form url.Values
		want string
	}{
		{"bad email", userValues(env.roles["user"].ID, "Bob", "not-an-email", "secret12"), "email must be a valid email address"},
		{"short password", userValues(env.roles["user"].ID, "Bob", "bob@example.com", "abc"), "password must be at least 6 characters"},
		{"missing name", userValues(env.roles["user"].ID, " ", "bob@example.com", "secret12"), "name is required"},
		{"super admin role", userValues(env.roles["super admin"].ID, "Bob", "bob@example.com", "secret12"), accounts.ErrInvalidRole.Error()},
		{"duplicate email", userValues(env.roles["user"].ID, "Bob", "root@example.com", "secret12"), accounts.ErrEmailTaken.Error()},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		env.h.Store(rec, withUser(formRequest(http.MethodPost, "/admin/users", tc.form), env.admin))
		res := decodeResult(t, rec)
		if !res.Error || res.Message != tc.want {
			t.Fatalf("%s: expected %q, got %+v", tc.name, tc.want, res)
		}
		if res.View != "" {
			t.Fatalf("%s: failure must not carry a view", tc.name)
		}
	}
	if n := env.countUsers(t); n != 1 {
		t.Fatalf("expected only the seeded user, got %d", n)
	}
}

type notSavingRepo struct {
	accounts.UserRepository
}

func (r notSavingRepo) WithQuerier(q store.Querier) accounts.UserRepository {
	return notSavingRepo{r.UserRepository.WithQuerier(q)}
}

func (r notSavingRepo) Create(context.Context, accounts.CreateParams) (accounts.Result, error) {
	return accounts.Result{Outcome: accounts.OutcomeNotSaved}, nil
}

func (r notSavingRepo) Update(context.Context, accounts.UpdateParams, int64) (accounts.Result, error) {
	return accounts.Result{Outcome: accounts.OutcomeNotSaved}, nil
}

func TestStoreNotSavedReportsFailure(t *testing.T) {
	env := setupUsersHandler(t)
	env.h.repo = notSavingRepo{env.repo}
	rec := httptest.NewRecorder()
	env.h.Store(rec, withUser(formRequest(http.MethodPost, "/admin/users", userValues(env.roles["user"].ID, "Bob", "bob@example.com", "secret12")), env.admin))
	res := decodeResult(t, rec)
	if !res.Error || res.Message != msgUserNotCreated {
		t.Fatalf("unexpected result %+v", res)
	}
}

type failingTableRepo struct {
	accounts.UserRepository
}

func (r failingTableRepo) WithQuerier(q store.Querier) accounts.UserRepository {
	return failingTableRepo{r.UserRepository.WithQuerier(q)}
}

func (r failingTableRepo) RenderTable(context.Context, accounts.TableParams) (template.HTML, error) {
	return "", errors.New("table exploded")
}

func TestStoreRollsBackWhenRenderFails(t *testing.T) {
	env := setupUsersHandler(t)
	env.h.repo = failingTableRepo{env.repo}
	rec := httptest.NewRecorder()
	env.h.Store(rec, withUser(formRequest(http.MethodPost, "/admin/users", userValues(env.roles["user"].ID, "Bob", "bob@example.com", "secret12")), env.admin))
	res := decodeResult(t, rec)
	if !res.Error || res.Message != "table exploded" {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := env.countUsers(t); n != 1 {
		t.Fatalf("expected create to be rolled back, got %d users", n)
	}
}

type recordingNotifier struct {
	msgs []notify.Welcome
}

func (n *recordingNotifier) UserCreated(_ context.Context, msg notify.Welcome) error {
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

func TestStoreSendsWelcomeAfterCommit(t *testing.T) {
	env := setupUsersHandler(t)
	rn := &recordingNotifier{}
	env.h.notifier = rn
	rec := httptest.NewRecorder()
	env.h.Store(rec, withUser(formRequest(http.MethodPost, "/admin/users", userValues(env.roles["user"].ID, "Bob", "bob@example.com", "secret12")), env.admin))
	if res := decodeResult(t, rec); res.Error {
		t.Fatalf("unexpected failure %+v", res)
	}
	if len(rn.msgs) != 1 || rn.msgs[0].Email != "bob@example.com" || rn.msgs[0].UserID == 0 {
		t.Fatalf("unexpected notifications %+v", rn.msgs)
	}
}

func TestUpdateChangesUser(t *testing.T) {
	env := setupUsersHandler(t)
	bob := env.createUser(t, "Bob", "bob@example.com", "user")
	target := "/admin/users/" + strconv.FormatInt(bob.ID, 10)
	rec := httptest.NewRecorder()
	env.h.Update(rec, withUser(formRequest(http.MethodPut, target, userValues(env.roles["admin"].ID, "Robert", "robert@example.com", "")), env.admin))
	res := decodeResult(t, rec)
	if res.Error || res.Message != msgUserUpdated || !strings.Contains(string(res.View), "Robert") {
		t.Fatalf("unexpected result %+v", res)
	}
	got, _ := env.users.Get(context.Background(), bob.ID)
	if got.Name != "Robert" || got.Email != "robert@example.com" || got.RoleID != env.roles["admin"].ID {
		t.Fatalf("update not applied: %+v", got)
	}
	if !auth.VerifyPassword(got.PasswordHash, "secret1") {
		t.Fatalf("update must leave the password untouched")
	}
}

func TestUpdateUnknownUserIsNotSaved(t *testing.T) {
	env := setupUsersHandler(t)
	rec := httptest.NewRecorder()
	env.h.Update(rec, withUser(formRequest(http.MethodPut, "/admin/users/999", userValues(env.roles["user"].ID, "Ghost", "ghost@example.com", "")), env.admin))
	res := decodeResult(t, rec)
	if !res.Error || res.Message != msgUserNotUpdated {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUpdateRejectsTakenEmail(t *testing.T) {
	env := setupUsersHandler(t)
	bob := env.createUser(t, "Bob", "bob@example.com", "user")
	rec := httptest.NewRecorder()
	target := "/admin/users/" + strconv.FormatInt(bob.ID, 10)
	env.h.Update(rec, withUser(formRequest(http.MethodPut, target, userValues(env.roles["user"].ID, "Bob", "root@example.com", "")), env.admin))
	res := decodeResult(t, rec)
	if !res.Error || res.Message != accounts.ErrEmailTaken.Error() {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestCreateAndEditForms(t *testing.T) {
	env := setupUsersHandler(t)
	rec := httptest.NewRecorder()
	env.h.CreateForm(rec, withUser(httptest.NewRequest(http.MethodGet, "/admin/users/create", nil), env.admin))
	res := decodeResult(t, rec)
	if res.Error || !strings.Contains(string(res.View), `action="/admin/users"`) {
		t.Fatalf("unexpected create form %+v", res)
	}
	if strings.Contains(string(res.View), "super admin") {
		t.Fatalf("super admin must not be offered")
	}

	bob := env.createUser(t, "Bob", "bob@example.com", "user")
	rec = httptest.NewRecorder()
	env.h.EditForm(rec, withUser(httptest.NewRequest(http.MethodGet, "/admin/users/"+strconv.FormatInt(bob.ID, 10)+"/edit", nil), env.admin))
	res = decodeResult(t, rec)
	if res.Error || !strings.Contains(string(res.View), "bob@example.com") {
		t.Fatalf("unexpected edit form %+v", res)
	}

	rec = httptest.NewRecorder()
	env.h.EditForm(rec, withUser(httptest.NewRequest(http.MethodGet, "/admin/users/999/edit", nil), env.admin))
	res = decodeResult(t, rec)
	if !res.Error || res.Message != msgUserNotFound {
		t.Fatalf("unexpected result for unknown user %+v", res)
	}
}

func TestDestroyDeletesAndRedirectsToList(t *testing.T) {
	env := setupUsersHandler(t)
	bob := env.createUser(t, "Bob", "bob@example.com", "user")
	req := withUser(httptest.NewRequest(http.MethodDelete, "/admin/users/"+strconv.FormatInt(bob.ID, 10), nil), env.admin)
	rec := httptest.NewRecorder()
	env.h.Destroy(rec, req)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != UsersListPath {
		t.Fatalf("unexpected redirect %d %s", rec.Code, rec.Header().Get("Location"))
	}
	if f := flashFrom(t, rec); f.Level != FlashSuccess || f.Message != "Bob deleted successfully..!" {
		t.Fatalf("unexpected flash %+v", f)
	}
	if got, _ := env.users.Get(context.Background(), bob.ID); got != nil {
		t.Fatalf("user still present")
	}
}

func TestDestroyUnknownUser(t *testing.T) {
	env := setupUsersHandler(t)
	req := withUser(httptest.NewRequest(http.MethodDelete, "/admin/users/999", nil), env.admin)
	req.Header.Set("Referer", "http://example.com/admin/users?page=1")
	rec := httptest.NewRecorder()
	env.h.Destroy(rec, req)
	if rec.Header().Get("Location") != UsersListPath {
		t.Fatalf("expected list redirect, got %s", rec.Header().Get("Location"))
	}
	if f := flashFrom(t, rec); f.Level != FlashError || f.Message != msgUserNotFound {
		t.Fatalf("unexpected flash %+v", f)
	}
}

func TestDestroySelfIsRefused(t *testing.T) {
	env := setupUsersHandler(t)
	req := withUser(httptest.NewRequest(http.MethodDelete, "/admin/users/"+strconv.FormatInt(env.admin.ID, 10), nil), env.admin)
	req.Header.Set("Referer", "http://example.com/admin/users?page=1")
	rec := httptest.NewRecorder()
	env.h.Destroy(rec, req)
	if rec.Header().Get("Location") != "/admin/users?page=1" {
		t.Fatalf("expected redirect back, got %s", rec.Header().Get("Location"))
	}
	if f := flashFrom(t, rec); f.Level != FlashError {
		t.Fatalf("unexpected flash %+v", f)
	}
	if n := env.countUsers(t); n != 1 {
		t.Fatalf("admin must not be deleted")
	}
}

func TestChangeStatusTogglesAndDropsSessions(t *testing.T) {
	env := setupUsersHandler(t)
	bob := env.createUser(t, "Bob", "bob@example.com", "user")
	ctx := context.Background()
	sessions := store.NewSessionsStore(env.db)
	sm := auth.NewSessionManager(sessions, env.cfg, nil)
	sess, err := sm.Create(ctx, bob, []string{"user"}, "127.0.0.1", "test")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	req := withUser(httptest.NewRequest(http.MethodPost, "/admin/users/"+strconv.FormatInt(bob.ID, 10)+"/status", nil), env.admin)
	rec := httptest.NewRecorder()
	env.h.ChangeStatus(rec, req)
	if rec.Header().Get("Location") != UsersListPath {
		t.Fatalf("expected list redirect, got %s", rec.Header().Get("Location"))
	}
	if f := flashFrom(t, rec); f.Level != FlashSuccess || f.Message != msgStatusChanged {
		t.Fatalf("unexpected flash %+v", f)
	}
	got, _ := env.users.Get(ctx, bob.ID)
	if got.Active {
		t.Fatalf("expected user to be deactivated")
	}
	if sr, _ := sessions.GetSession(ctx, sess.ID); sr != nil {
		t.Fatalf("sessions of a deactivated user must be dropped")
	}
}

func TestChangeStatusUnknownUserRedirectsBack(t *testing.T) {
	env := setupUsersHandler(t)
	req := withUser(httptest.NewRequest(http.MethodPost, "/admin/users/999/status", nil), env.admin)
	req.Header.Set("Referer", "http://example.com/admin/users?query_str=bob")
	rec := httptest.NewRecorder()
	env.h.ChangeStatus(rec, req)
	if rec.Header().Get("Location") != "/admin/users?query_str=bob" {
		t.Fatalf("expected redirect back, got %s", rec.Header().Get("Location"))
	}
	if f := flashFrom(t, rec); f.Level != FlashError {
		t.Fatalf("unexpected flash %+v", f)
	}
}

func TestChangePasswordTargetsSessionUserOnly(t *testing.T) {
	env := setupUsersHandler(t)
	bob := env.createUser(t, "Bob", "bob@example.com", "user")
	form := url.Values{}
	form.Set("id", strconv.FormatInt(bob.ID, 10))
	form.Set("password", "newsecret")
	form.Set("password_confirmation", "newsecret")
	req := withUser(formRequest(http.MethodPost, "/admin/password", form), env.admin)
	req.Header.Set("Referer", "http://evil.example.org/phish")
	rec := httptest.NewRecorder()
	env.h.ChangePassword(rec, req)
	if rec.Header().Get("Location") != UsersListPath {
		t.Fatalf("foreign referer must fall back to list, got %s", rec.Header().Get("Location"))
	}
	if f := flashFrom(t, rec); f.Level != FlashSuccess || f.Message != msgPasswordChanged {
		t.Fatalf("unexpected flash %+v", f)
	}
	ctx := context.Background()
	admin, _ := env.users.Get(ctx, env.admin.ID)
	if !auth.VerifyPassword(admin.PasswordHash, "newsecret") {
		t.Fatalf("session user password not changed")
	}
	other, _ := env.users.Get(ctx, bob.ID)
	if !auth.VerifyPassword(other.PasswordHash, "secret1") {
		t.Fatalf("other user password must be untouched")
	}
}

func TestChangePasswordFailures(t *testing.T) {
	env := setupUsersHandler(t)
	form := url.Values{}
	form.Set("password", "newsecret")
	form.Set("password_confirmation", "different")
	rec := httptest.NewRecorder()
	env.h.ChangePassword(rec, withUser(formRequest(http.MethodPost, "/admin/password", form), env.admin))
	if f := flashFrom(t, rec); f.Level != FlashError || f.Message != errPasswordMismatch.Error() {
		t.Fatalf("unexpected flash %+v", f)
	}

	gone := &store.User{ID: 999, Email: "gone@example.com"}
	form.Set("password_confirmation", "newsecret")
	rec = httptest.NewRecorder()
	env.h.ChangePassword(rec, withUser(formRequest(http.MethodPost, "/admin/password", form), gone))
	if f := flashFrom(t, rec); f.Level != FlashError || f.Message != msgPasswordNotSaved {
		t.Fatalf("unexpected flash %+v", f)
	}
}

func TestListRendersTableRolesAndFlash(t *testing.T) {
	env := setupUsersHandler(t)
	env.createUser(t, "Bob", "bob@example.com", "user")
	env.createUser(t, "Alice", "alice@example.com", "admin")
	req := withUser(httptest.NewRequest(http.MethodGet, "/admin/users?query_str=ali", nil), env.admin)
	raw, _ := json.Marshal(Flash{Level: FlashSuccess, Message: "hello there"})
	req.AddCookie(&http.Cookie{Name: FlashCookieName, Value: base64.RawURLEncoding.EncodeToString(raw)})
	rec := httptest.NewRecorder()
	env.h.List(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "alice@example.com") || strings.Contains(body, "bob@example.com") {
		t.Fatalf("filter not applied: %s", body)
	}
	if !strings.Contains(body, "hello there") {
		t.Fatalf("flash not rendered")
	}
	if strings.Contains(body, ">super admin</option>") {
		t.Fatalf("super admin must not be offered as a role option")
	}
}

func TestAdminCannotChangeSuperAdmin(t *testing.T) {
	env := setupUsersHandler(t)
	manager := env.createUser(t, "Manager", "manager@example.com", "admin")
	rootPath := "/admin/users/" + strconv.FormatInt(env.admin.ID, 10)

	rec := httptest.NewRecorder()
	env.h.Update(rec, withUser(formRequest(http.MethodPut, rootPath, userValues(env.roles["user"].ID, "Root", "root@example.com", "")), manager))
	if res := decodeResult(t, rec); !res.Error || res.Message != errSuperAdminOnly.Error() {
		t.Fatalf("expected update to be refused, got %+v", res)
	}

	rec = httptest.NewRecorder()
	env.h.EditForm(rec, withUser(httptest.NewRequest(http.MethodGet, rootPath+"/edit", nil), manager))
	if res := decodeResult(t, rec); !res.Error {
		t.Fatalf("expected edit form to be refused")
	}

	rec = httptest.NewRecorder()
	env.h.Destroy(rec, withUser(httptest.NewRequest(http.MethodDelete, rootPath, nil), manager))
	if f := flashFrom(t, rec); f.Level != FlashError || f.Message != errSuperAdminOnly.Error() {
		t.Fatalf("expected delete to be refused, got %+v", f)
	}

	rec = httptest.NewRecorder()
	env.h.ChangeStatus(rec, withUser(httptest.NewRequest(http.MethodPost, rootPath+"/status", nil), manager))
	if f := flashFrom(t, rec); f.Level != FlashError || f.Message != errSuperAdminOnly.Error() {
		t.Fatalf("expected status change to be refused, got %+v", f)
	}

	root, err := env.users.Get(context.Background(), env.admin.ID)
	if err != nil || root == nil {
		t.Fatalf("super admin must still exist: %v", err)
	}
	if root.RoleName != "super admin" || !root.Active {
		t.Fatalf("super admin must be untouched, got %+v", root)
	}
}

func TestSuperAdminKeepsRoleOnSelfUpdate(t *testing.T) {
	env := setupUsersHandler(t)
	form := userValues(0, "Root Renamed", "root@example.com", "")
	form.Del("role")
	rec := httptest.NewRecorder()
	env.h.Update(rec, withUser(formRequest(http.MethodPut, "/admin/users/"+strconv.FormatInt(env.admin.ID, 10), form), env.admin))
	if res := decodeResult(t, rec); res.Error {
		t.Fatalf("unexpected failure %+v", res)
	}
	root, err := env.users.Get(context.Background(), env.admin.ID)
	if err != nil || root == nil {
		t.Fatalf("get: %v", err)
	}
	if root.Name != "Root Renamed" || root.RoleName != "super admin" {
		t.Fatalf("expected renamed super admin, got %+v", root)
	}

	rec = httptest.NewRecorder()
	env.h.EditForm(rec, withUser(httptest.NewRequest(http.MethodGet, "/admin/users/"+strconv.FormatInt(env.admin.ID, 10)+"/edit", nil), env.admin))
	res := decodeResult(t, rec)
	if res.Error || strings.Contains(string(res.View), `name="role"`) {
		t.Fatalf("expected edit form without a role select, got %+v", res)
	}
}
