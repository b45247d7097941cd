package model

import "time"

// Session models a row of the `user_sessions` audit table. A row is opened
// on login or signup and closed (LogoutTime set) on logout, on supersession
// by a newer login, or never, when the process dies first. Rows are removed
// after the retention window.
type Session struct {
	ID         string     // user_sessions.id (uuid)
	UserID     string     // user_sessions.user_id
	Token      string     // user_sessions.token
	LoginTime  time.Time  // user_sessions.login_time
	LogoutTime *time.Time // user_sessions.logout_time (nullable)
	UserAgent  string     // user_sessions.user_agent
	IPAddress  string     // user_sessions.ip_address
}

// Open reports whether the session has not been closed.
func (s Session) Open() bool { return s.LogoutTime == nil }
