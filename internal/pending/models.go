// Package pending holds quarantined submissions: payloads that could not be
// committed as declarations and wait for staff review.
package pending

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	id "civicdesk/pkg/domain"
)

// Item is a quarantined submission. Once Processed is true it is never
// processed again.
type Item struct {
	ID           id.PendingID    `json:"id"`
	ClientID     *string         `json:"client_id"`
	Payload      json.RawMessage `json:"payload"`
	TrackingCode *string         `json:"tracking_code"`
	Processed    bool            `json:"processed"`
	ProcessedAt  *time.Time      `json:"processed_at"`
	ProcessedBy  *id.UserID      `json:"processed_by"`
	Error        string          `json:"error"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (i *Item) Clone() *Item {
	c := *i
	c.Payload = bytes.Clone(i.Payload)
	if i.ClientID != nil {
		v := *i.ClientID
		c.ClientID = &v
	}
	if i.TrackingCode != nil {
		v := *i.TrackingCode
		c.TrackingCode = &v
	}
	if i.ProcessedAt != nil {
		v := *i.ProcessedAt
		c.ProcessedAt = &v
	}
	if i.ProcessedBy != nil {
		v := *i.ProcessedBy
		c.ProcessedBy = &v
	}
	return &c
}

// ListFilter narrows staff listings. A nil Processed matches both states.
type ListFilter struct {
	Processed *bool
	Limit     int
	Offset    int
}

// Counts splits items by state.
type Counts struct {
	Processed   int `json:"processed"`
	Unprocessed int `json:"unprocessed"`
}

// Refs are the correlation values read from a raw payload.
type Refs struct {
	ClientID     *string
	TrackingCode *string
}

// ExtractRefs reads the client id and tracking code from a payload on a
// best-effort basis. Non-object payloads yield nothing.
func ExtractRefs(payload json.RawMessage) Refs {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Refs{}
	}
	return Refs{
		ClientID:     stringField(fields, "id"),
		TrackingCode: stringField(fields, "tracking_code", "trackingCode"),
	}
}

func stringField(fields map[string]any, keys ...string) *string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return &s
			}
		}
	}
	return nil
}
