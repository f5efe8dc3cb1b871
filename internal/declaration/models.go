// Package declaration holds the authoritative declaration records and the
// single-item creation, lookup, update and delete paths.
package declaration

import (
	"time"

	id "civicdesk/pkg/domain"
)

// Status is the review state of a declaration.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidated  Status = "validated"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusRejected, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// Priority is set by staff during review.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// StatusChange is one entry of the append-only status history.
type StatusChange struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Comment   string    `json:"comment,omitempty"`
}

// Declaration is the authoritative record. Status always equals the status
// of the last history entry.
type Declaration struct {
	ID            id.DeclarationID `json:"id"`
	TrackingCode  string           `json:"tracking_code"`
	DeclarantName string           `json:"declarant_name"`
	Phone         string           `json:"phone"`
	Email         *string          `json:"email"`
	Type          string           `json:"type"`
	Category      string           `json:"category"`
	Description   string           `json:"description"`
	IncidentDate  time.Time        `json:"incident_date"`
	Location      string           `json:"location"`
	Reward        *string          `json:"reward"`
	Status        Status           `json:"status"`
	Priority      *Priority        `json:"priority"`
	StatusHistory []StatusChange   `json:"status_history"`
	AdminNotes    string           `json:"admin_notes"`
	ValidatedBy   *id.UserID       `json:"validated_by"`
	IPAddress     string           `json:"ip_address"`
	UserAgent     string           `json:"user_agent"`
	BrowserInfo   string           `json:"browser_info"`
	DeviceType    string           `json:"device_type"`
	DeviceModel   string           `json:"device_model"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (d *Declaration) Clone() *Declaration {
	if d == nil {
		return nil
	}
	c := *d
	c.StatusHistory = append([]StatusChange(nil), d.StatusHistory...)
	if d.Email != nil {
		v := *d.Email
		c.Email = &v
	}
	if d.Reward != nil {
		v := *d.Reward
		c.Reward = &v
	}
	if d.Priority != nil {
		v := *d.Priority
		c.Priority = &v
	}
	if d.ValidatedBy != nil {
		v := *d.ValidatedBy
		c.ValidatedBy = &v
	}
	return &c
}

// PublicView is what unauthenticated callers see. Staff-only fields and
// technical metadata are dropped.
type PublicView struct {
	ID            id.DeclarationID `json:"id"`
	TrackingCode  string           `json:"tracking_code"`
	DeclarantName string           `json:"declarant_name"`
	Phone         string           `json:"phone"`
	Type          string           `json:"type"`
	Category      string           `json:"category"`
	Description   string           `json:"description"`
	IncidentDate  time.Time        `json:"incident_date"`
	Location      string           `json:"location"`
	Reward        *string          `json:"reward"`
	Status        Status           `json:"status"`
	Priority      *Priority        `json:"priority"`
	StatusHistory []StatusChange   `json:"status_history"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Public projects d for anonymous readers.
func (d *Declaration) Public() PublicView {
	return PublicView{
		ID:            d.ID,
		TrackingCode:  d.TrackingCode,
		DeclarantName: d.DeclarantName,
		Phone:         d.Phone,
		Type:          d.Type,
		Category:      d.Category,
		Description:   d.Description,
		IncidentDate:  d.IncidentDate,
		Location:      d.Location,
		Reward:        d.Reward,
		Status:        d.Status,
		Priority:      d.Priority,
		StatusHistory: d.StatusHistory,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

// Tracking is the public projection served by tracking-code lookups, with
// the phone number masked.
func (d *Declaration) Tracking() PublicView {
	v := d.Public()
	v.Phone = MaskPhone(d.Phone)
	return v
}

// MaskPhone hides the middle digits of a full international number.
func MaskPhone(phone string) string {
	if len(phone) <= 12 {
		return phone
	}
	return phone[:5] + "****" + phone[len(phone)-2:]
}

// auditView is the part of a declaration whose changes are audited.
type auditView struct {
	DeclarantName string    `json:"declarant_name"`
	Phone         string    `json:"phone"`
	Email         *string   `json:"email"`
	Type          string    `json:"type"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	IncidentDate  time.Time `json:"incident_date"`
	Location      string    `json:"location"`
	Reward        *string   `json:"reward"`
	Status        Status    `json:"status"`
	Priority      *Priority `json:"priority"`
	AdminNotes    string    `json:"admin_notes"`
}

func (d *Declaration) auditView() auditView {
	return auditView{
		DeclarantName: d.DeclarantName,
		Phone:         d.Phone,
		Email:         d.Email,
		Type:          d.Type,
		Category:      d.Category,
		Description:   d.Description,
		IncidentDate:  d.IncidentDate,
		Location:      d.Location,
		Reward:        d.Reward,
		Status:        d.Status,
		Priority:      d.Priority,
		AdminNotes:    d.AdminNotes,
	}
}

// ListFilter narrows staff listings.
type ListFilter struct {
	Status   Status
	Type     string
	Category string
	Search   string
	Limit    int
	Offset   int
}
