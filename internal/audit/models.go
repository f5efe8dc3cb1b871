// Package audit records every state-changing action as an append-only
// activity log entry.
package audit

import (
	"time"

	id "civicdesk/pkg/domain"
)

// Action is the closed set of things an entry can record.
type Action string

const (
	ActionCreate           Action = "CREATE"
	ActionRead             Action = "READ"
	ActionUpdate           Action = "UPDATE"
	ActionDelete           Action = "DELETE"
	ActionLoginSuccess     Action = "LOGIN_SUCCESS"
	ActionLoginFailed      Action = "LOGIN_FAILED"
	ActionLogout           Action = "LOGOUT"
	ActionVerify2FASuccess Action = "VERIFY_2FA_SUCCESS"
	ActionVerify2FAFailed  Action = "VERIFY_2FA_FAILED"
	ActionBackup           Action = "BACKUP"
	ActionRestore          Action = "RESTORE"
	ActionUpload           Action = "UPLOAD"
	ActionSync             Action = "SYNC"
	ActionProcess          Action = "PROCESS"
	ActionSweep            Action = "SWEEP"
)

var actions = map[Action]struct{}{
	ActionCreate: {}, ActionRead: {}, ActionUpdate: {}, ActionDelete: {},
	ActionLoginSuccess: {}, ActionLoginFailed: {}, ActionLogout: {},
	ActionVerify2FASuccess: {}, ActionVerify2FAFailed: {},
	ActionBackup: {}, ActionRestore: {}, ActionUpload: {},
	ActionSync: {}, ActionProcess: {}, ActionSweep: {},
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// Target types. The set is open; these are the ones the platform writes.
const (
	TargetDeclaration   = "declaration"
	TargetPending       = "pending_declaration"
	TargetTip           = "tip"
	TargetUser          = "user"
	TargetProtection    = "protection_settings"
	TargetActivityLog   = "activity_log"
	TargetAdminSession  = "admin_session"
	TargetBackup        = "backup"
	TargetSyncBatch     = "sync_batch"
	TargetRetentionTask = "retention"
)

const (
	// AnonymousActor is the actor name stored when nobody is authenticated.
	AnonymousActor = "anonymous"

	MaxDetailsLen   = 5000
	MaxUserAgentLen = 1000
)

// Entry is one immutable activity log record. A nil ActorID means the
// action was anonymous or performed by the system.
type Entry struct {
	ID          id.EntryID `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	ActorID     *id.UserID `json:"actor_id"`
	ActorName   string     `json:"actor_name"`
	Action      Action     `json:"action"`
	TargetType  string     `json:"target_type"`
	TargetID    string     `json:"target_id"`
	Details     string     `json:"details"`
	IPAddress   string     `json:"ip_address"`
	UserAgent   string     `json:"user_agent"`
	RequestID   string     `json:"request_id,omitempty"`
	IsSensitive bool       `json:"is_sensitive"`
}

// Filter narrows List and Count. Zero fields match everything. From is
// inclusive and To is exclusive.
type Filter struct {
	ActorID    *id.UserID
	Action     Action
	TargetType string
	TargetID   string
	From       time.Time
	To         time.Time
	Sensitive  *bool
	Limit      int
	Offset     int
}

// Matches applies the filter to one entry, ignoring paging.
func (f Filter) Matches(e Entry) bool {
	if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.TargetType != "" && e.TargetType != f.TargetType {
		return false
	}
	if f.TargetID != "" && e.TargetID != f.TargetID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	if f.Sensitive != nil && e.IsSensitive != *f.Sensitive {
		return false
	}
	return true
}
