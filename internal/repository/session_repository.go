package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

// SessionRepo persists the session audit trail (`user_sessions`). Rows are
// only ever appended, closed, or deleted after the retention window.
type SessionRepo struct{ DB *sql.DB }

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{DB: db} }

// Opened inserts an open session row.
func (r *SessionRepo) Opened(ctx context.Context, s model.Session) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO user_sessions (id, user_id, token, login_time, user_agent, ip_address) VALUES (?,?,?,?,?,?)",
		s.ID, s.UserID, s.Token, s.LoginTime,
		sql.NullString{String: s.UserAgent, Valid: s.UserAgent != ""},
		sql.NullString{String: s.IPAddress, Valid: s.IPAddress != ""})
	return err
}

// Closed stamps logout_time on the open row holding token.
func (r *SessionRepo) Closed(ctx context.Context, userID, token string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE user_sessions SET logout_time=? WHERE user_id=? AND token=? AND logout_time IS NULL",
		at, userID, token)
	return err
}

// ClosedAll stamps logout_time on every open row of the user.
func (r *SessionRepo) ClosedAll(ctx context.Context, userID string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE user_sessions SET logout_time=? WHERE user_id=? AND logout_time IS NULL",
		at, userID)
	return err
}

// DeleteLoginBefore removes rows whose login_time is older than cutoff and
// returns how many were removed.
func (r *SessionRepo) DeleteLoginBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM user_sessions WHERE login_time < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListByUser returns the user's history, newest first.
func (r *SessionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, token, login_time, logout_time, user_agent, ip_address
		   FROM user_sessions WHERE user_id=? ORDER BY login_time DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var (
			s         model.Session
			logout    sql.NullTime
			userAgent sql.NullString
			ip        sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.Token, &s.LoginTime, &logout, &userAgent, &ip); err != nil {
			return nil, err
		}
		if logout.Valid {
			t := logout.Time
			s.LogoutTime = &t
		}
		s.UserAgent = userAgent.String
		s.IPAddress = ip.String
		out = append(out, s)
	}
	return out, rows.Err()
}
