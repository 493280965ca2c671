// Package domain contains core domain types for the estate studio.
package domain

import (
	"time"
)

// User is an agent account known to the server.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	Demo       bool      `json:"demo"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Profile is the response of GET /api/auth/me.
type Profile struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Demo     bool   `json:"demo"`
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{UserID: u.UserID, Username: u.Username, Demo: u.Demo}
}

// IdleFor returns how long the user has been inactive.
func (u *User) IdleFor(now time.Time) time.Duration {
	d := now.Sub(u.LastSeenAt)
	if d < 0 {
		return 0
	}
	return d
}
