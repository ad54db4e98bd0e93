package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type UsersStore interface {
	Create(ctx context.Context, u *User) (int64, error)
	Get(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	Update(ctx context.Context, u *User) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	ToggleActive(ctx context.Context, id int64) (*User, error)
	UpdatePassword(ctx context.Context, id int64, hash string) (int64, error)
	ListFiltered(ctx context.Context, filter UserFilter) (UserPage, error)
	Count(ctx context.Context) (int, error)
}

type usersStore struct {
	q Querier
}

func NewUsersStore(q Querier) UsersStore {
	return &usersStore{q: q}
}

const userColumns = `u.id, u.name, u.email, u.password_hash, u.role_id, COALESCE(r.name, ''), u.active, u.created_at, u.updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var active int
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.RoleID, &u.RoleName, &active, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Active = active == 1
	return &u, nil
}

func (s *usersStore) Create(ctx context.Context, u *User) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO users(name, email, password_hash, role_id, active, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(email) DO NOTHING
		RETURNING id`,
		strings.TrimSpace(u.Name), strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, u.RoleID, boolToInt(u.Active), now, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return id, nil
}

func (s *usersStore) Get(ctx context.Context, id int64) (*User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u LEFT JOIN roles r ON r.id=u.role_id WHERE u.id=?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *usersStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u LEFT JOIN roles r ON r.id=u.role_id WHERE u.email=?`, strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return u, err
}

func (s *usersStore) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var cnt int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email=? AND id<>?`, strings.ToLower(strings.TrimSpace(email)), exceptID).Scan(&cnt)
	if err != nil {
		return false, err
	}
	return cnt > 0, nil
}

// Update writes name, email and role. It returns the number of rows touched.
func (s *usersStore) Update(ctx context.Context, u *User) (int64, error) {
	now := time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		UPDATE users SET name=?, email=?, role_id=?, updated_at=?
		WHERE id=?`,
		strings.TrimSpace(u.Name), strings.ToLower(strings.TrimSpace(u.Email)), u.RoleID, now, u.ID)
	if err != nil {
		return 0, fmt.Errorf("update user %d: %w", u.ID, err)
	}
	affected, _ := res.RowsAffected()
	if affected > 0 {
		u.UpdatedAt = now
	}
	return affected, nil
}

func (s *usersStore) Delete(ctx context.Context, id int64) (int64, error) {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, id); err != nil {
		return 0, fmt.Errorf("delete sessions of user %d: %w", id, err)
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete user %d: %w", id, err)
	}
	return res.RowsAffected()
}

func (s *usersStore) ToggleActive(ctx context.Context, id int64) (*User, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE users SET active=CASE WHEN active=1 THEN 0 ELSE 1 END, updated_at=?
		WHERE id=?`, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("toggle user %d: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, ErrNotFound
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *usersStore) UpdatePassword(ctx context.Context, id int64, hash string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `UPDATE users SET password_hash=?, updated_at=? WHERE id=?`, hash, time.Now().UTC(), id)
	if err != nil {
		return 0, fmt.Errorf("update password of user %d: %w", id, err)
	}
	return res.RowsAffected()
}

// maxUserPage keeps page*perPage far from int overflow.
const maxUserPage = 1 << 20

func (s *usersStore) ListFiltered(ctx context.Context, filter UserFilter) (UserPage, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 10
	}
	page := filter.Page
	if page < 0 {
		page = 0
	}
	if page > maxUserPage {
		page = maxUserPage
	}
	var where []string
	var args []any
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + escapeLike(q) + "%"
		where = append(where, `(LOWER(u.name) LIKE ? ESCAPE '\' OR LOWER(u.email) LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	if filter.RoleID > 0 {
		where = append(where, "u.role_id=?")
		args = append(args, filter.RoleID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	out := UserPage{Page: page, PerPage: perPage}
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM users u`+clause, args...).Scan(&out.Total); err != nil {
		return out, fmt.Errorf("count users: %w", err)
	}
	listArgs := append(append([]any{}, args...), perPage, page*perPage)
	rows, err := s.q.QueryContext(ctx, `SELECT `+userColumns+` FROM users u LEFT JOIN roles r ON r.id=u.role_id`+clause+` ORDER BY u.id DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return out, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return out, err
		}
		out.Users = append(out.Users, *u)
	}
	return out, rows.Err()
}

func (s *usersStore) Count(ctx context.Context) (int, error) {
	var cnt int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&cnt)
	return cnt, err
}

func escapeLike(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(v)
}
