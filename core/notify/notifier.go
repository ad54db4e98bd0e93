package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"skote-admin/config"
	"skote-admin/core/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Welcome is published after a user account is created.
type Welcome struct {
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"password,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Notifier interface {
	UserCreated(ctx context.Context, msg Welcome) error
	Close() error
}

type NoopNotifier struct{}

func (NoopNotifier) UserCreated(context.Context, Welcome) error { return nil }
func (NoopNotifier) Close() error                                { return nil }

// New returns the AMQP publisher when welcome notifications are enabled and
// a broker URL is configured, otherwise a no-op.
func New(cfg config.NotifyConfig, logger *utils.Logger) (Notifier, error) {
	if !cfg.WelcomeEnabled || cfg.AMQPURL == "" {
		return NoopNotifier{}, nil
	}
	return DialAMQP(cfg, logger)
}

const (
	defaultDialTimeout = 5 * time.Second
	heartbeat          = 10 * time.Second
)

type AMQPNotifier struct {
	cfg    config.NotifyConfig
	logger *utils.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func DialAMQP(cfg config.NotifyConfig, logger *utils.Logger) (*AMQPNotifier, error) {
	n := &AMQPNotifier{cfg: cfg, logger: logger}
	if err := n.connect(context.Background()); err != nil {
		return nil, err
	}
	return n, nil
}

// dialTimeout is the default timeout, shortened to the ctx deadline.
func dialTimeout(ctx context.Context) time.Duration {
	timeout := defaultDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return timeout
}

func (n *AMQPNotifier) connect(ctx context.Context) error {
	n.reset()
	conn, err := amqp.DialConfig(n.cfg.AMQPURL, amqp.Config{
		Dial:      amqp.DefaultDial(dialTimeout(ctx)),
		Heartbeat: heartbeat,
		Locale:    "en_US",
	})
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(n.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp exchange %s: %w", n.cfg.Exchange, err)
	}
	n.conn = conn
	n.ch = ch
	return nil
}

// stale reports whether the connection or the channel is gone. The broker
// may close a channel alone, e.g. on a publish to a deleted exchange.
func (n *AMQPNotifier) stale() bool {
	return n.conn == nil || n.conn.IsClosed() || n.ch == nil || n.ch.IsClosed()
}

func (n *AMQPNotifier) reset() {
	if n.ch != nil {
		_ = n.ch.Close()
		n.ch = nil
	}
	if n.conn != nil {
		_ = n.conn.Close()
		n.conn = nil
	}
}

func (n *AMQPNotifier) UserCreated(ctx context.Context, msg Welcome) error {
	if !n.cfg.IncludePassword {
		msg.Password = ""
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stale() {
		if err := n.connect(ctx); err != nil {
			return err
		}
	}
	err = n.ch.PublishWithContext(ctx, n.cfg.Exchange, n.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish: %w", err)
	}
	if n.logger != nil {
		n.logger.Printf("notify: welcome published user=%d", msg.UserID)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil {
		_ = n.ch.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
