package declaration

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	dErrors "civicdesk/pkg/domain-errors"
	"civicdesk/pkg/email"
)

var phonePattern = regexp.MustCompile(`^\+228\d{8}$`)

// ValidPhone reports whether p is a full +228 number with no spaces.
func ValidPhone(p string) bool {
	return phonePattern.MatchString(p)
}

const (
	minDescriptionLen = 10
	maxDescriptionLen = 5000
	maxNameLen        = 255
	maxTypeLen        = 50
	maxCategoryLen    = 255
	maxLocationLen    = 512
	maxRewardLen      = 255
)

// Input is a candidate declaration as submitted by a citizen or replayed
// from an offline queue. ID and TrackingCode are honoured only when usable.
type Input struct {
	ID            string  `json:"id,omitempty"`
	TrackingCode  string  `json:"tracking_code,omitempty"`
	DeclarantName string  `json:"declarant_name"`
	Phone         string  `json:"phone"`
	Email         *string `json:"email,omitempty"`
	Type          string  `json:"type"`
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	IncidentDate  string  `json:"incident_date"`
	Location      string  `json:"location"`
	Reward        *string `json:"reward,omitempty"`
}

// Draft is a validated Input.
type Draft struct {
	ID            string
	TrackingCode  string
	DeclarantName string
	Phone         string
	Email         *string
	Type          string
	Category      string
	Description   string
	IncidentDate  time.Time
	Location      string
	Reward        *string
}

// DecodePayload reads a raw candidate. A payload that is not a JSON object
// with the expected field types is a validation failure, not an internal
// error.
func DecodePayload(raw json.RawMessage) (Input, error) {
	var in Input
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return in, dErrors.NewValidation("invalid declaration", map[string]string{"payload": "must be a JSON object"})
	}
	if err := json.Unmarshal(trimmed, &in); err != nil {
		field := "payload"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field = typeErr.Field
		}
		return in, dErrors.NewValidation("invalid declaration", map[string]string{field: "has the wrong type"})
	}
	return in, nil
}

// Normalize trims every text field.
func (in *Input) Normalize() {
	in.ID = strings.TrimSpace(in.ID)
	in.TrackingCode = NormalizeTrackingCode(in.TrackingCode)
	in.DeclarantName = strings.TrimSpace(in.DeclarantName)
	in.Phone = strings.ReplaceAll(strings.TrimSpace(in.Phone), " ", "")
	in.Type = strings.TrimSpace(in.Type)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	in.IncidentDate = strings.TrimSpace(in.IncidentDate)
	in.Location = strings.TrimSpace(in.Location)
	in.Email = trimOptional(in.Email)
	in.Reward = trimOptional(in.Reward)
}

// Validate checks every field and reports all failures at once.
func (in *Input) Validate() error {
	_, err := in.Draft()
	return err
}

// Draft validates and converts the input.
func (in *Input) Draft() (Draft, error) {
	fields := map[string]string{}

	requireText(fields, "declarant_name", in.DeclarantName, maxNameLen)
	switch {
	case in.Phone == "":
		fields["phone"] = "is required"
	case !phonePattern.MatchString(in.Phone):
		fields["phone"] = "must be formatted +228XXXXXXXX"
	}
	if in.Email != nil && !email.Valid(*in.Email) {
		fields["email"] = "is not a valid email address"
	}
	requireText(fields, "type", in.Type, maxTypeLen)
	requireText(fields, "category", in.Category, maxCategoryLen)
	switch n := utf8.RuneCountInString(in.Description); {
	case n == 0:
		fields["description"] = "is required"
	case n < minDescriptionLen:
		fields["description"] = "must be at least 10 characters"
	case n > maxDescriptionLen:
		fields["description"] = "must be at most 5000 characters"
	}
	requireText(fields, "location", in.Location, maxLocationLen)
	if in.Reward != nil && utf8.RuneCountInString(*in.Reward) > maxRewardLen {
		fields["reward"] = "is too long"
	}

	var incident time.Time
	if in.IncidentDate == "" {
		fields["incident_date"] = "is required"
	} else if t, ok := parseIncidentDate(in.IncidentDate); ok {
		incident = t
	} else {
		fields["incident_date"] = "must be an RFC 3339 timestamp or YYYY-MM-DD"
	}

	if len(fields) > 0 {
		return Draft{}, dErrors.NewValidation("invalid declaration", fields)
	}
	var mail *string
	if in.Email != nil {
		m := email.Normalize(*in.Email)
		mail = &m
	}
	return Draft{
		ID:            in.ID,
		TrackingCode:  in.TrackingCode,
		DeclarantName: in.DeclarantName,
		Phone:         in.Phone,
		Email:         mail,
		Type:          in.Type,
		Category:      in.Category,
		Description:   in.Description,
		IncidentDate:  incident,
		Location:      in.Location,
		Reward:        in.Reward,
	}, nil
}

func requireText(fields map[string]string, name, value string, max int) {
	switch {
	case value == "":
		fields[name] = "is required"
	case utf8.RuneCountInString(value) > max:
		fields[name] = "is too long"
	}
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func parseIncidentDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
