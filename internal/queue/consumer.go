package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/inventory-sales-backend/internal/session"
)

const maxBackoff = 30 * time.Second

// Consumer applies session events from the queue to an audit sink, normally
// the MySQL session repository.
type Consumer struct {
	url     string
	queue   string
	sink    session.AuditSink
	timeout time.Duration
	logger  *slog.Logger
}

func NewConsumer(url, queue string, sink session.AuditSink, timeout time.Duration, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if timeout <= 0 {
		timeout = session.DefaultAuditTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{url: url, queue: queue, sink: sink, timeout: timeout, logger: logger.With("component", "audit_consumer")}
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff. It returns ctx.Err().
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.DialConfig(c.url, brokerConfig(ctx))
		if err != nil {
			c.logger.Warn("dial broker failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.logger.Error("apply session event failed", "error", err)
				// Not requeued: a poison message would spin forever, and the
				// audit trail is best effort.
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	ev, err := Decode(body)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return Apply(ctx, c.sink, ev)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
