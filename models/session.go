package models

import "time"

// SessionContext identifies the authenticated user behind a purchase
// attempt. It is an immutable value created at login and passed explicitly
// into the orchestration services; it is replaced, never mutated in place.
type SessionContext struct {
	UserID   string    `json:"user_id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Admin    bool      `json:"admin"`
	IssuedAt time.Time `json:"issued_at"`
}
