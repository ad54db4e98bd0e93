package sessions

import (
	"context"
	"sync"
	"time"

	"skote-admin/config"
	"skote-admin/core/store"
	"skote-admin/core/utils"

	"github.com/robfig/cron/v3"
)

// Purger removes expired sessions on a cron schedule.
type Purger struct {
	cfg    config.SchedulerConfig
	store  store.SessionStore
	logger *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

func NewPurger(cfg config.SchedulerConfig, st store.SessionStore, logger *utils.Logger) *Purger {
	return &Purger{cfg: cfg, store: st, logger: logger}
}

func (p *Purger) StartWithContext(ctx context.Context) error {
	if p == nil || !p.cfg.Enabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	spec := p.cfg.SessionPurgeSpec
	if spec == "" {
		spec = "@every 10m"
	}
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() { _, _ = p.RunOnce(ctx, time.Now().UTC()) }); err != nil {
		return err
	}
	c.Start()
	p.cron = c
	p.running = true
	return nil
}

func (p *Purger) StopWithContext(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.running = false
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Purger) RunOnce(ctx context.Context, now time.Time) (int64, error) {
	n, err := p.store.DeleteExpired(ctx, now)
	if err != nil {
		if p.logger != nil {
			p.logger.Errorf("sessions purge: %v", err)
		}
		return 0, err
	}
	if n > 0 && p.logger != nil {
		p.logger.Printf("sessions purge: removed %d expired", n)
	}
	return n, nil
}
