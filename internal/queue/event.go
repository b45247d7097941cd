// Package queue carries session audit events over RabbitMQ: the publisher
// is an audit sink for the session registry, the consumer applies events to
// the MySQL audit trail.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/inventory-sales-backend/internal/model"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
)

// DefaultQueue is the durable queue session events are routed to.
const DefaultQueue = "session_events"

// Event types.
const (
	EventOpened    = "session.opened"
	EventClosed    = "session.closed"
	EventClosedAll = "session.closed_all"
)

// SessionEvent is one audit trail transition.
type SessionEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token,omitempty"`
	At        time.Time `json:"at"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

func openedEvent(s model.Session) SessionEvent {
	return SessionEvent{
		Type:      EventOpened,
		SessionID: s.ID,
		UserID:    s.UserID,
		Token:     s.Token,
		At:        s.LoginTime,
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
	}
}

// Decode parses and validates an event body.
func Decode(body []byte) (SessionEvent, error) {
	var ev SessionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("unmarshal: %w", err)
	}
	if ev.UserID == "" || ev.At.IsZero() {
		return ev, fmt.Errorf("event %q lacks user or time", ev.Type)
	}
	return ev, nil
}

// Apply replays ev onto sink.
func Apply(ctx context.Context, sink session.AuditSink, ev SessionEvent) error {
	switch ev.Type {
	case EventOpened:
		if ev.SessionID == "" || ev.Token == "" {
			return fmt.Errorf("opened event for user %s lacks session or token", ev.UserID)
		}
		return sink.Opened(ctx, model.Session{
			ID:        ev.SessionID,
			UserID:    ev.UserID,
			Token:     ev.Token,
			LoginTime: ev.At,
			UserAgent: ev.UserAgent,
			IPAddress: ev.IPAddress,
		})
	case EventClosed:
		return sink.Closed(ctx, ev.UserID, ev.Token, ev.At)
	case EventClosedAll:
		return sink.ClosedAll(ctx, ev.UserID, ev.At)
	}
	return fmt.Errorf("unknown event type %q", ev.Type)
}
