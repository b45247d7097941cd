package session

import (
	"context"
	"time"

	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

// AuditSink receives the session history. Implementations write to the
// user_sessions table directly or hand the events to the message broker.
// Calls are made from the registry's audit worker, never from a request.
type AuditSink interface {
	// Opened appends a new open row.
	Opened(ctx context.Context, s model.Session) error
	// Closed stamps logout_time on the open row holding token.
	Closed(ctx context.Context, userID, token string, at time.Time) error
	// ClosedAll stamps logout_time on every open row of userID.
	ClosedAll(ctx context.Context, userID string, at time.Time) error
}

// Sweeper removes history older than a cutoff.
type Sweeper interface {
	DeleteLoginBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Origin describes where a login came from. It only feeds the audit row.
type Origin struct {
	UserAgent string
	IPAddress string
}

type discardSink struct{}

func (discardSink) Opened(context.Context, model.Session) error                 { return nil }
func (discardSink) Closed(context.Context, string, string, time.Time) error     { return nil }
func (discardSink) ClosedAll(context.Context, string, time.Time) error          { return nil }
func (discardSink) DeleteLoginBefore(context.Context, time.Time) (int64, error) { return 0, nil }
