package model

import "time"

// Session is the server-side half of a login.
//
// The browser only ever holds the raw token (in the session cookie). The
// store keys the record by ID, the SHA-256 digest of that token, so a leaked
// database dump cannot be replayed as cookies.
type Session struct {
	ID        string    `json:"-"         db:"id"`
	UserID    string    `json:"userId"    db:"user_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
}

// Expired reports whether the session is no longer valid at time now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
