package sessions

import "time"

// Session is an opaque bearer credential issued on successful login.
// A session is valid iff it is active, unexpired and its owning user is
// still active. Expiry is evaluated lazily at resolve time; ACTIVE to
// EXPIRED and ACTIVE to REVOKED are both terminal.
type Session struct {
	Token     string
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Active    bool
}
