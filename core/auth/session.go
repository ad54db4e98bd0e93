package auth

import (
	"context"
	"errors"

	"skote-admin/config"
	"skote-admin/core/store"
	"skote-admin/core/utils"

	"github.com/gofrs/uuid/v5"
)

type contextKey string

const SessionContextKey contextKey = "session"

type SessionManager struct {
	store  store.SessionStore
	cfg    *config.AppConfig
	logger *utils.Logger
}

func NewSessionManager(store store.SessionStore, cfg *config.AppConfig, logger *utils.Logger) *SessionManager {
	return &SessionManager{store: store, cfg: cfg, logger: logger}
}

func (m *SessionManager) Create(ctx context.Context, user *store.User, roles []string, ip, userAgent string) (*store.SessionRecord, error) {
	id := uuid.Must(uuid.NewV4()).String()
	var csrf string
	var err error
	if m.cfg.CSRFKey != "" {
		csrf, err = GenerateCSRF(m.cfg.CSRFKey, id)
	} else {
		csrf, err = utils.RandString(32)
	}
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	sess := &store.SessionRecord{
		ID:         id,
		UserID:     user.ID,
		Username:   user.Email,
		Roles:      roles,
		IP:         ip,
		UserAgent:  userAgent,
		CSRFToken:  csrf,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.cfg.EffectiveSessionTTL()),
	}
	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	if m.logger != nil {
		m.logger.Printf("session created user=%s", user.Email)
	}
	return sess, nil
}

func (m *SessionManager) Get(ctx context.Context, id string) (*store.SessionRecord, error) {
	return m.store.GetSession(ctx, id)
}

func (m *SessionManager) Refresh(ctx context.Context, sessID string) error {
	return m.store.UpdateActivity(ctx, sessID, utils.NowUTC(), m.cfg.EffectiveSessionTTL())
}

func (m *SessionManager) Rotate(ctx context.Context, sessID string, user *store.User) (*store.SessionRecord, error) {
	old, err := m.store.GetSession(ctx, sessID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, errors.New("session not found")
	}
	_ = m.store.DeleteSession(ctx, sessID)
	return m.Create(ctx, user, old.Roles, old.IP, old.UserAgent)
}

func (m *SessionManager) Delete(ctx context.Context, sessID string) error {
	return m.store.DeleteSession(ctx, sessID)
}

// FromContext returns the session attached by the session middleware.
func FromContext(ctx context.Context) *store.SessionRecord {
	sr, _ := ctx.Value(SessionContextKey).(*store.SessionRecord)
	return sr
}

func WithSession(ctx context.Context, sr *store.SessionRecord) context.Context {
	return context.WithValue(ctx, SessionContextKey, sr)
}
