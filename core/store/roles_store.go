package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

type RolesStore interface {
	List(ctx context.Context) ([]Role, error)
	ListExcept(ctx context.Context, names ...string) ([]Role, error)
	Get(ctx context.Context, id int64) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	Ensure(ctx context.Context, name string) (*Role, error)
}

type rolesStore struct {
	q Querier
}

func NewRolesStore(q Querier) RolesStore {
	return &rolesStore{q: q}
}

func (s *rolesStore) List(ctx context.Context) ([]Role, error) {
	return s.ListExcept(ctx)
}

// ListExcept returns roles ordered by id, skipping the given names
// (case-insensitive).
func (s *rolesStore) ListExcept(ctx context.Context, names ...string) ([]Role, error) {
	query := `SELECT id, name, created_at FROM roles`
	var args []any
	if len(names) > 0 {
		placeholders := make([]string, 0, len(names))
		for _, n := range names {
			placeholders = append(placeholders, "?")
			args = append(args, strings.ToLower(strings.TrimSpace(n)))
		}
		query += ` WHERE LOWER(name) NOT IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY id`
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()
	var res []Role
	for rows.Next() {
		var r Role
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *rolesStore) Get(ctx context.Context, id int64) (*Role, error) {
	var r Role
	err := s.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM roles WHERE id=?`, id).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *rolesStore) FindByName(ctx context.Context, name string) (*Role, error) {
	var r Role
	err := s.q.QueryRowContext(ctx, `SELECT id, name, created_at FROM roles WHERE LOWER(name)=?`, strings.ToLower(strings.TrimSpace(name))).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *rolesStore) Ensure(ctx context.Context, name string) (*Role, error) {
	existing, err := s.FindByName(ctx, name)
	if err != nil || existing != nil {
		return existing, err
	}
	now := time.Now().UTC()
	r := Role{Name: strings.TrimSpace(name), CreatedAt: now}
	if err := s.q.QueryRowContext(ctx, `INSERT INTO roles(name, created_at) VALUES(?, ?) RETURNING id`, r.Name, now).Scan(&r.ID); err != nil {
		return nil, fmt.Errorf("insert role %s: %w", r.Name, err)
	}
	return &r, nil
}
