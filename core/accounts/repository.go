package accounts

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"skote-admin/core/store"
	"skote-admin/gui"
)

// UserRepository owns user persistence and the users table rendering.
type UserRepository interface {
	WithQuerier(q store.Querier) UserRepository
	RenderTable(ctx context.Context, p TableParams) (template.HTML, error)
	AssignableRoles(ctx context.Context) ([]store.Role, error)
	Create(ctx context.Context, p CreateParams) (Result, error)
	FindByID(ctx context.Context, id int64) (*store.User, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	Update(ctx context.Context, p UpdateParams, id int64) (Result, error)
	Delete(ctx context.Context, id int64) error
	ChangeStatus(ctx context.Context, id int64) (*store.User, error)
	ChangePassword(ctx context.Context, hash string, id int64) (Result, error)
}

type Repository struct {
	users      store.UsersStore
	roles      store.RolesStore
	views      *gui.Views
	superAdmin string
	perPage    int
}

func NewRepository(q store.Querier, views *gui.Views, superAdminRole string, perPage int) *Repository {
	if perPage <= 0 {
		perPage = 10
	}
	return &Repository{
		users:      store.NewUsersStore(q),
		roles:      store.NewRolesStore(q),
		views:      views,
		superAdmin: superAdminRole,
		perPage:    perPage,
	}
}

func (r *Repository) WithQuerier(q store.Querier) UserRepository {
	return NewRepository(q, r.views, r.superAdmin, r.perPage)
}

type tableView struct {
	Page      store.UserPage
	Query     url.Values
	CSRFToken string
}

func (v tableView) Pages() int {
	return v.Page.Pages()
}

func (r *Repository) RenderTable(ctx context.Context, p TableParams) (template.HTML, error) {
	page, err := r.users.ListFiltered(ctx, store.UserFilter{
		Query:   p.QueryStr,
		RoleID:  p.RoleID,
		Page:    p.Page,
		PerPage: r.perPage,
	})
	if err != nil {
		return "", err
	}
	q := url.Values{}
	if s := strings.TrimSpace(p.QueryStr); s != "" {
		q.Set("query_str", s)
	}
	if p.RoleID > 0 {
		q.Set("role", strconv.FormatInt(p.RoleID, 10))
	}
	html, err := r.views.Partial("user_table", tableView{Page: page, Query: q, CSRFToken: p.CSRFToken})
	if err != nil {
		return "", fmt.Errorf("render users table: %w", err)
	}
	return html, nil
}

// IsSuperAdmin reports whether role is the reserved super admin role.
func IsSuperAdmin(role, superAdmin string) bool {
	return superAdmin != "" && strings.EqualFold(strings.TrimSpace(role), strings.TrimSpace(superAdmin))
}

// AssignableRoles lists every role except the reserved super admin role.
func (r *Repository) AssignableRoles(ctx context.Context) ([]store.Role, error) {
	return r.roles.ListExcept(ctx, r.superAdmin)
}

func (r *Repository) assignableRole(ctx context.Context, id int64) (*store.Role, error) {
	if id <= 0 {
		return nil, ErrInvalidRole
	}
	role, err := r.roles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if role == nil || IsSuperAdmin(role.Name, r.superAdmin) {
		return nil, ErrInvalidRole
	}
	return role, nil
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Result, error) {
	role, err := r.assignableRole(ctx, p.RoleID)
	if err != nil {
		return Result{}, err
	}
	u := &store.User{
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		RoleID:       role.ID,
		RoleName:     role.Name,
		Active:       true,
	}
	if _, err := r.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return notSaved(), nil
		}
		return Result{}, err
	}
	return saved(u), nil
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*store.User, error) {
	u, err := r.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (r *Repository) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	return r.users.EmailTaken(ctx, email, exceptID)
}

// Update rewrites name, email and role. A super admin keeps the reserved role
// whatever role was posted.
func (r *Repository) Update(ctx context.Context, p UpdateParams, id int64) (Result, error) {
	existing, err := r.users.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if existing == nil {
		return notSaved(), nil
	}
	roleID := existing.RoleID
	if !IsSuperAdmin(existing.RoleName, r.superAdmin) {
		role, err := r.assignableRole(ctx, p.RoleID)
		if err != nil {
			return Result{}, err
		}
		roleID = role.ID
	}
	u := &store.User{ID: id, Name: p.Name, Email: p.Email, RoleID: roleID}
	n, err := r.users.Update(ctx, u)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return notSaved(), nil
	}
	updated, err := r.users.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return saved(updated), nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	n, err := r.users.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *Repository) ChangeStatus(ctx context.Context, id int64) (*store.User, error) {
	return r.users.ToggleActive(ctx, id)
}

func (r *Repository) ChangePassword(ctx context.Context, hash string, id int64) (Result, error) {
	n, err := r.users.UpdatePassword(ctx, id, hash)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return notSaved(), nil
	}
	return Result{Outcome: OutcomeSaved}, nil
}
