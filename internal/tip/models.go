// Package tip collects public leads on validated declarations and lets
// staff review them.
package tip

import (
	"time"

	id "civicdesk/pkg/domain"
)

// Tip is one lead submitted by the public.
type Tip struct {
	ID            id.TipID         `json:"id"`
	DeclarationID id.DeclarationID `json:"declaration_id"`
	TipsterPhone  string           `json:"tipster_phone"`
	Description   string           `json:"description"`
	IsRead        bool             `json:"is_read"`
	IsUseful      *bool            `json:"is_useful"`
	AdminNotes    string           `json:"admin_notes"`
	IPAddress     string           `json:"ip_address"`
	CreatedAt     time.Time        `json:"created_at"`
	ReviewedAt    *time.Time       `json:"reviewed_at"`
	ReviewedBy    *id.UserID       `json:"reviewed_by"`
}

// Clone returns a deep copy.
func (t *Tip) Clone() *Tip {
	c := *t
	if t.IsUseful != nil {
		v := *t.IsUseful
		c.IsUseful = &v
	}
	if t.ReviewedAt != nil {
		v := *t.ReviewedAt
		c.ReviewedAt = &v
	}
	if t.ReviewedBy != nil {
		v := *t.ReviewedBy
		c.ReviewedBy = &v
	}
	return &c
}

// reviewView is the set of fields a review may change.
func (t *Tip) reviewView() map[string]any {
	return map[string]any{
		"is_read":     t.IsRead,
		"is_useful":   t.IsUseful,
		"admin_notes": t.AdminNotes,
	}
}

// Receipt is all the submitter gets back.
type Receipt struct {
	ID            id.TipID         `json:"id"`
	DeclarationID id.DeclarationID `json:"declaration_id"`
	CreatedAt     time.Time        `json:"created_at"`
	Message       string           `json:"message"`
}

// ListFilter narrows staff listings.
type ListFilter struct {
	DeclarationID *id.DeclarationID
	UnreadOnly    bool
	Limit         int
	Offset        int
}

// Counts summarizes the tip inbox.
type Counts struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}
