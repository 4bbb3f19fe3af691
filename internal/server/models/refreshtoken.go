package models

import "time"

// RefreshToken is an opaque single-use token kept server-side. At most one
// row exists per user; issuing a new token replaces the previous one.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
