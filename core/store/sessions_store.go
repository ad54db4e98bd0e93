package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type SessionStore interface {
	SaveSession(ctx context.Context, sess *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error
	DeleteSession(ctx context.Context, id string) error
	DeleteAllForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionsStore struct {
	q Querier
}

func NewSessionsStore(q Querier) SessionStore {
	return &sessionsStore{q: q}
}

func (s *sessionsStore) SaveSession(ctx context.Context, sess *SessionRecord) error {
	roles, err := json.Marshal(sess.Roles)
	if err != nil {
		return err
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO sessions(id, user_id, username, roles, csrf_token, ip, user_agent, created_at, last_seen_at, expires_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		sess.ID, sess.UserID, sess.Username, string(roles), sess.CSRFToken, sess.IP, sess.UserAgent, ts(sess.CreatedAt), ts(sess.LastSeenAt), ts(sess.ExpiresAt))
	return err
}

// GetSession returns nil for unknown or expired sessions.
func (s *sessionsStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	var sr SessionRecord
	var roles string
	err := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, username, roles, csrf_token, ip, user_agent, created_at, last_seen_at, expires_at
		FROM sessions WHERE id=?`, id).
		Scan(&sr.ID, &sr.UserID, &sr.Username, &roles, &sr.CSRFToken, &sr.IP, &sr.UserAgent, &sr.CreatedAt, &sr.LastSeenAt, &sr.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !sr.ExpiresAt.After(time.Now().UTC()) {
		return nil, nil
	}
	_ = json.Unmarshal([]byte(roles), &sr.Roles)
	return &sr, nil
}

func (s *sessionsStore) UpdateActivity(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	_, err := s.q.ExecContext(ctx, `UPDATE sessions SET last_seen_at=?, expires_at=? WHERE id=?`, ts(now), ts(now.Add(ttl)), id)
	return err
}

func (s *sessionsStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE id=?`, id)
	return err
}

func (s *sessionsStore) DeleteAllForUser(ctx context.Context, userID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id=?`, userID)
	return err
}

func (s *sessionsStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at<=?`, ts(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ts normalizes to whole UTC seconds so sqlite text timestamps compare in order.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
