package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type AuditStore interface {
	Log(ctx context.Context, username, action, details string) error
	List(ctx context.Context, limit int) ([]AuditRecord, error)
	ListFiltered(ctx context.Context, filter AuditFilter) ([]AuditRecord, error)
}

type auditStore struct {
	q Querier
}

func NewAuditStore(q Querier) AuditStore {
	return &auditStore{q: q}
}

const auditColumns = `id, username, action, COALESCE(details, ''), created_at`

func (s *auditStore) Log(ctx context.Context, username, action, details string) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO audit_log(username, action, details, created_at) VALUES(?,?,?,?)`, username, action, details, ts(time.Now()))
	return err
}

func (s *auditStore) List(ctx context.Context, limit int) ([]AuditRecord, error) {
	return s.ListFiltered(ctx, AuditFilter{Limit: limit})
}

func (s *auditStore) ListFiltered(ctx context.Context, filter AuditFilter) ([]AuditRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	var where []string
	var args []any
	if section := strings.ToLower(strings.TrimSpace(filter.Section)); section != "" {
		where = append(where, `(LOWER(action)=? OR LOWER(action) LIKE ? ESCAPE '\')`)
		args = append(args, section, escapeLike(section)+".%")
	}
	if action := strings.ToLower(strings.TrimSpace(filter.Action)); action != "" {
		where = append(where, "LOWER(action)=?")
		args = append(args, action)
	}
	if user := strings.ToLower(strings.TrimSpace(filter.User)); user != "" {
		where = append(where, "LOWER(username)=?")
		args = append(args, user)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		where = append(where, `LOWER(username || ' ' || action || ' ' || COALESCE(details, '')) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(q)+"%")
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at>=?")
		args = append(args, ts(filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "created_at<=?")
		args = append(args, ts(*filter.Until))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	rows, err := s.q.QueryContext(ctx, `SELECT `+auditColumns+` FROM audit_log`+clause+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()
	var res []AuditRecord
	for rows.Next() {
		var a AuditRecord
		if err := rows.Scan(&a.ID, &a.Username, &a.Action, &a.Details, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
