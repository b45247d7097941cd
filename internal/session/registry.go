// Package session owns the live "one active token per user" state and the
// best-effort audit trail of logins and logouts.
package session

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

const (
	lockStripes = 64

	DefaultRetention    = 30 * 24 * time.Hour
	DefaultAuditTimeout = 3 * time.Second
	DefaultAuditBuffer  = 1024
)

// Options configures a Registry. Zero values pick the defaults.
type Options struct {
	Audit        AuditSink
	Sweeper      Sweeper
	Retention    time.Duration
	AuditTimeout time.Duration
	AuditBuffer  int
	Logger       *slog.Logger
	Now          func() time.Time
}

type auditOp struct {
	name   string
	userID string
	run    func(ctx context.Context) error
}

// Registry tracks at most one active token per user.
//
// Mutations for one user are serialised by a striped mutex; reads go
// straight to the sync.Map and never block. Audit rows are queued to a
// single worker so they reach the sink in the order the transitions
// happened, and a slow or failing sink never delays a login.
type Registry struct {
	locks  [lockStripes]sync.Mutex
	active sync.Map // userID -> model.Session

	audit        AuditSink
	sweeper      Sweeper
	retention    time.Duration
	auditTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time

	// lifecycle guards closed and the audit channel; mutations hold it
	// shared, Close holds it exclusively.
	lifecycle sync.RWMutex
	closed    bool
	ops       chan auditOp
	done      chan struct{}
}

// NewRegistry returns a Registry and starts its audit worker. Call Close to
// stop the worker after draining queued writes.
func NewRegistry(opts Options) *Registry {
	if opts.Audit == nil {
		opts.Audit = discardSink{}
	}
	if opts.Sweeper == nil {
		opts.Sweeper = discardSink{}
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = DefaultAuditTimeout
	}
	if opts.AuditBuffer <= 0 {
		opts.AuditBuffer = DefaultAuditBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{
		audit:        opts.Audit,
		sweeper:      opts.Sweeper,
		retention:    opts.Retention,
		auditTimeout: opts.AuditTimeout,
		logger:       opts.Logger.With("component", "session_registry"),
		now:          opts.Now,
		ops:          make(chan auditOp, opts.AuditBuffer),
		done:         make(chan struct{}),
	}
	go r.auditLoop()
	return r
}

func (r *Registry) lockFor(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &r.locks[h.Sum32()%lockStripes]
}

// TrackSession records token as the only active session of userID and
// returns the token it superseded, if any. Concurrent calls for one user
// are applied one after the other; the last one to take the lock wins and
// every earlier token reads back as inactive once the calls return.
func (r *Registry) TrackSession(userID, token string, origin Origin) (string, error) {
	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()
	if r.closed {
		return "", autherr.ErrRegistryUnavailable
	}

	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	now := r.now().UTC()
	s := model.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		LoginTime: now,
		UserAgent: origin.UserAgent,
		IPAddress: origin.IPAddress,
	}
	var superseded string
	if prev, ok := r.active.Swap(userID, s); ok {
		superseded = prev.(model.Session).Token
	}

	// ClosedAll rather than Closed(superseded): it also closes rows left
	// open by a previous process whose in-memory state is gone.
	r.enqueue(auditOp{name: "close_all", userID: userID, run: func(ctx context.Context) error {
		return r.audit.ClosedAll(ctx, userID, now)
	}})
	r.enqueue(auditOp{name: "open", userID: userID, run: func(ctx context.Context) error {
		return r.audit.Opened(ctx, s)
	}})

	if superseded != "" {
		r.logger.Info("session superseded", "user_id", userID)
	}
	return superseded, nil
}

// InvalidateSession closes the session of userID only when token is the
// active one. It reports whether anything was closed.
func (r *Registry) InvalidateSession(userID, token string) (bool, error) {
	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()
	if r.closed {
		return false, autherr.ErrRegistryUnavailable
	}

	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	cur, ok := r.active.Load(userID)
	if !ok || cur.(model.Session).Token != token {
		return false, nil
	}
	r.active.Delete(userID)

	now := r.now().UTC()
	r.enqueue(auditOp{name: "close", userID: userID, run: func(ctx context.Context) error {
		return r.audit.Closed(ctx, userID, token, now)
	}})
	return true, nil
}

// InvalidateAllUserSessions closes whatever is active for userID. It
// reports whether an in-memory session existed.
func (r *Registry) InvalidateAllUserSessions(userID string) (bool, error) {
	r.lifecycle.RLock()
	defer r.lifecycle.RUnlock()
	if r.closed {
		return false, autherr.ErrRegistryUnavailable
	}

	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	_, existed := r.active.LoadAndDelete(userID)

	now := r.now().UTC()
	r.enqueue(auditOp{name: "close_all", userID: userID, run: func(ctx context.Context) error {
		return r.audit.ClosedAll(ctx, userID, now)
	}})
	return existed, nil
}

// IsSessionActive reports whether token is exactly the active token of
// userID. Expiry is not checked here.
func (r *Registry) IsSessionActive(userID, token string) bool {
	cur, ok := r.active.Load(userID)
	return ok && token != "" && cur.(model.Session).Token == token
}

// Active returns the active session of userID.
func (r *Registry) Active(userID string) (model.Session, bool) {
	cur, ok := r.active.Load(userID)
	if !ok {
		return model.Session{}, false
	}
	return cur.(model.Session), true
}

// CleanupExpiredSessions deletes history rows whose login time is older
// than the retention window. The live map is not touched.
func (r *Registry) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-r.retention)
	n, err := r.sweeper.DeleteLoginBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Close stops accepting mutations, drains queued audit writes and stops
// the worker. It is safe to call more than once.
func (r *Registry) Close() {
	r.lifecycle.Lock()
	if r.closed {
		r.lifecycle.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.ops)
	r.lifecycle.Unlock()
	<-r.done
}

// enqueue must be called with lifecycle held shared.
func (r *Registry) enqueue(op auditOp) {
	select {
	case r.ops <- op:
	default:
		r.logger.Warn("audit queue full, dropping write", "op", op.name, "user_id", op.userID)
	}
}

func (r *Registry) auditLoop() {
	defer close(r.done)
	for op := range r.ops {
		ctx, cancel := context.WithTimeout(context.Background(), r.auditTimeout)
		if err := op.run(ctx); err != nil {
			r.logger.Error("audit write failed", "op", op.name, "user_id", op.userID, "error", err)
		}
		cancel()
	}
}
