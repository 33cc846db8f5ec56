package model

import "time"

// SessionRecord is the persisted form of an active session. ID is the
// random session id embedded in the signed token, never the token itself.
type SessionRecord struct {
	ID        string    `db:"token" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"username"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"-" json:"created_at"`
	// ExpiresAt is the zero time when sessions do not expire.
	ExpiresAt time.Time `db:"-" json:"expires_at"`
}

// Identity returns the caller identity bound to the session.
func (s SessionRecord) Identity() Identity {
	return Identity{UserID: s.UserID, Username: s.Username, Role: s.Role}
}

// Expired reports whether the session is past its expiry at now.
func (s SessionRecord) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
