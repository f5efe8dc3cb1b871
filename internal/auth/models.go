// Package auth authenticates staff accounts: password login with lockout,
// optional email/SMS second factor, JWT issuance, refresh and logout.
package auth

import (
	"time"

	id "civicdesk/pkg/domain"
)

// User is a staff account. Usernames are stored lower-cased.
type User struct {
	ID             id.UserID  `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"display_name"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	TwoFactor      bool       `json:"two_factor_enabled"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	LastLoginAt    *time.Time `json:"last_login_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsLocked reports whether logins are refused at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Challenge is an outstanding second-factor code. Only its hash is kept.
type Challenge struct {
	ID        id.SessionID
	UserID    id.UserID
	CodeHash  string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
