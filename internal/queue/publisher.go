package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/inventory-sales-backend/internal/model"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
)

type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a channel with the queue declared, plus whatever must be
// closed with it. ctx bounds the connect and handshake.
type dialFunc func(ctx context.Context) (publishChannel, io.Closer, error)

// Publisher is a session.AuditSink that publishes events instead of writing
// rows. One connection is kept and re-dialled after a failed publish. The
// registry calls it from a single worker; the mutex keeps Close safe
// against an in-flight publish.
type Publisher struct {
	queue  string
	dial   dialFunc
	logger *slog.Logger

	mu   sync.Mutex
	ch   publishChannel
	conn io.Closer
}

// NewPublisher returns a Publisher for url. The broker is dialled lazily on
// the first event.
func NewPublisher(url, queue string, logger *slog.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return newPublisher(queue, amqpDialer(url, queue), logger)
}

func newPublisher(queue string, dial dialFunc, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{queue: queue, dial: dial, logger: logger.With("component", "audit_publisher")}
}

func amqpDialer(url, queue string) dialFunc {
	return func(ctx context.Context) (publishChannel, io.Closer, error) {
		conn, err := amqp.DialConfig(url, brokerConfig(ctx))
		if err != nil {
			return nil, nil, fmt.Errorf("dial broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("channel open: %w", err)
		}
		// Durable so events survive broker restarts.
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("queue declare: %w", err)
		}
		return ch, conn, nil
	}
}

func (p *Publisher) Opened(ctx context.Context, s model.Session) error {
	return p.publish(ctx, openedEvent(s))
}

func (p *Publisher) Closed(ctx context.Context, userID, token string, at time.Time) error {
	return p.publish(ctx, SessionEvent{Type: EventClosed, UserID: userID, Token: token, At: at})
}

func (p *Publisher) ClosedAll(ctx context.Context, userID string, at time.Time) error {
	return p.publish(ctx, SessionEvent{Type: EventClosedAll, UserID: userID, At: at})
}

func (p *Publisher) publish(ctx context.Context, ev SessionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		ch, conn, err := p.dial(ctx)
		if err != nil {
			return err
		}
		p.ch, p.conn = ch, conn
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close drops the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

var _ session.AuditSink = (*Publisher)(nil)
