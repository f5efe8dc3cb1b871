// Package adminsession keeps a lightweight record of staff presence: one row
// per user and IP, refreshed by a heartbeat. No tokens are stored.
package adminsession

import (
	"time"

	id "civicdesk/pkg/domain"
)

// ActiveWindow is how recently a session must have been seen to count as
// active.
const ActiveWindow = time.Hour

type Session struct {
	ID        id.SessionID `json:"id"`
	UserID    id.UserID    `json:"user_id"`
	Username  string       `json:"username"`
	IPAddress string       `json:"ip_address"`
	UserAgent string       `json:"user_agent"`
	CreatedAt time.Time    `json:"created_at"`
	LastSeen  time.Time    `json:"last_seen"`
}

// Beat is one heartbeat observation.
type Beat struct {
	UserID    id.UserID
	Username  string
	IPAddress string
	UserAgent string
	At        time.Time
}

// Counts is what the admin metrics endpoint reports.
type Counts struct {
	Total  int `json:"total_admin_sessions"`
	Active int `json:"active_admin_sessions"`
}
