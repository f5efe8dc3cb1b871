// Package protection holds the singleton policy that gates public writes:
// an IP blacklist, per-class rate limits and CAPTCHA requirements, plus the
// retention windows used by the sweeper.
package protection

import (
	"bytes"
	"encoding/json"
	"net"
	"slices"
	"strings"
	"time"

	dErrors "civicdesk/pkg/domain-errors"
	pstrings "civicdesk/pkg/platform/strings"
)

// Class names an endpoint family with its own rate limit and CAPTCHA toggle.
type Class string

const (
	ClassDeclarations Class = "declarations"
	ClassAttachments  Class = "attachments"
	ClassClues        Class = "clues"
)

const (
	DefaultRate                     = "5/m"
	DefaultPendingRetentionDays     = 30
	DefaultActivityLogRetentionDays = 90
	DefaultSessionRetentionDays     = 7

	maxRetentionDays = 3650
)

// IPList is the blacklist. It decodes from either a JSON array or the
// newline-separated text form edited in the admin UI.
type IPList []string

func (l *IPList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var text string
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
		*l = pstrings.SplitLines(text)
		return nil
	}
	var items []string
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	*l = pstrings.NormalizeList(items)
	return nil
}

// Policy is the process-wide protection configuration.
type Policy struct {
	EnableRateLimitDeclarations bool   `json:"enable_rate_limit_declarations"`
	RateLimitDeclarations       string `json:"rate_limit_declarations"`
	EnableCaptchaDeclarations   bool   `json:"enable_captcha_declarations"`
	EnableRateLimitAttachments  bool   `json:"enable_rate_limit_attachments"`
	RateLimitAttachments        string `json:"rate_limit_attachments"`
	EnableRateLimitClues        bool   `json:"enable_rate_limit_clues"`
	RateLimitClues              string `json:"rate_limit_clues"`
	EnableCaptchaClues          bool   `json:"enable_captcha_clues"`
	IPBlacklist                 IPList `json:"ip_blacklist"`

	PendingRetentionDays      int `json:"pending_declaration_retention_days"`
	ActivityLogRetentionDays  int `json:"activity_log_retention_days"`
	AdminSessionRetentionDays int `json:"admin_session_retention_days"`

	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultPolicy is what a fresh deployment starts with.
func DefaultPolicy(now time.Time) *Policy {
	return &Policy{
		EnableRateLimitDeclarations: true,
		RateLimitDeclarations:       DefaultRate,
		EnableCaptchaDeclarations:   true,
		EnableRateLimitAttachments:  true,
		RateLimitAttachments:        DefaultRate,
		EnableRateLimitClues:        false,
		RateLimitClues:              DefaultRate,
		EnableCaptchaClues:          false,
		IPBlacklist:                 IPList{},
		PendingRetentionDays:        DefaultPendingRetentionDays,
		ActivityLogRetentionDays:    DefaultActivityLogRetentionDays,
		AdminSessionRetentionDays:   DefaultSessionRetentionDays,
		UpdatedAt:                   now,
	}
}

func (p *Policy) Clone() *Policy {
	c := *p
	c.IPBlacklist = slices.Clone(p.IPBlacklist)
	return &c
}

// Rule is the effective gate configuration for one class.
type Rule struct {
	RateLimited bool
	Rate        string
	Captcha     bool
}

// RuleFor returns the rule for class. Unknown classes get no checks beyond
// the blacklist.
func (p *Policy) RuleFor(class Class) Rule {
	switch class {
	case ClassDeclarations:
		return Rule{RateLimited: p.EnableRateLimitDeclarations, Rate: p.RateLimitDeclarations, Captcha: p.EnableCaptchaDeclarations}
	case ClassAttachments:
		return Rule{RateLimited: p.EnableRateLimitAttachments, Rate: p.RateLimitAttachments}
	case ClassClues:
		return Rule{RateLimited: p.EnableRateLimitClues, Rate: p.RateLimitClues, Captcha: p.EnableCaptchaClues}
	}
	return Rule{}
}

// Blacklisted reports whether ip is listed. Comparison is on the canonical
// address form when both sides parse.
func (p *Policy) Blacklisted(ip string) bool {
	ip = strings.ToLower(strings.TrimSpace(ip))
	if ip == "" {
		return false
	}
	parsed := net.ParseIP(ip)
	for _, listed := range p.IPBlacklist {
		if listed == ip {
			return true
		}
		if parsed != nil {
			if other := net.ParseIP(listed); other != nil && other.Equal(parsed) {
				return true
			}
		}
	}
	return false
}

// Validate checks rate strings and retention windows.
func (p *Policy) Validate() error {
	fields := map[string]string{}
	for name, rate := range map[string]string{
		"rate_limit_declarations": p.RateLimitDeclarations,
		"rate_limit_attachments":  p.RateLimitAttachments,
		"rate_limit_clues":        p.RateLimitClues,
	} {
		if _, err := ParseRate(rate); err != nil {
			fields[name] = err.Error()
		}
	}
	for name, days := range map[string]int{
		"pending_declaration_retention_days": p.PendingRetentionDays,
		"activity_log_retention_days":        p.ActivityLogRetentionDays,
		"admin_session_retention_days":       p.AdminSessionRetentionDays,
	} {
		if days < 1 || days > maxRetentionDays {
			fields[name] = "must be between 1 and 3650"
		}
	}
	for _, ip := range p.IPBlacklist {
		if net.ParseIP(ip) == nil {
			fields["ip_blacklist"] = "contains an invalid address: " + ip
			break
		}
	}
	if len(fields) > 0 {
		return dErrors.NewValidation("invalid protection settings", fields)
	}
	return nil
}

// Update is a partial edit of the policy. Nil fields are left alone.
type Update struct {
	EnableRateLimitDeclarations *bool   `json:"enable_rate_limit_declarations"`
	RateLimitDeclarations       *string `json:"rate_limit_declarations"`
	EnableCaptchaDeclarations   *bool   `json:"enable_captcha_declarations"`
	EnableRateLimitAttachments  *bool   `json:"enable_rate_limit_attachments"`
	RateLimitAttachments        *string `json:"rate_limit_attachments"`
	EnableRateLimitClues        *bool   `json:"enable_rate_limit_clues"`
	RateLimitClues              *string `json:"rate_limit_clues"`
	EnableCaptchaClues          *bool   `json:"enable_captcha_clues"`
	IPBlacklist                 *IPList `json:"ip_blacklist"`
	PendingRetentionDays        *int    `json:"pending_declaration_retention_days"`
	ActivityLogRetentionDays    *int    `json:"activity_log_retention_days"`
	AdminSessionRetentionDays   *int    `json:"admin_session_retention_days"`
}

func (u *Update) Normalize() {
	for _, s := range []*string{u.RateLimitDeclarations, u.RateLimitAttachments, u.RateLimitClues} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
}

// Validate is deferred to Policy.Validate once the update is applied.
func (u *Update) Validate() error { return nil }

// Apply writes the non-nil fields onto p.
func (u *Update) Apply(p *Policy) {
	setBool(&p.EnableRateLimitDeclarations, u.EnableRateLimitDeclarations)
	setBool(&p.EnableCaptchaDeclarations, u.EnableCaptchaDeclarations)
	setBool(&p.EnableRateLimitAttachments, u.EnableRateLimitAttachments)
	setBool(&p.EnableRateLimitClues, u.EnableRateLimitClues)
	setBool(&p.EnableCaptchaClues, u.EnableCaptchaClues)
	setString(&p.RateLimitDeclarations, u.RateLimitDeclarations)
	setString(&p.RateLimitAttachments, u.RateLimitAttachments)
	setString(&p.RateLimitClues, u.RateLimitClues)
	setInt(&p.PendingRetentionDays, u.PendingRetentionDays)
	setInt(&p.ActivityLogRetentionDays, u.ActivityLogRetentionDays)
	setInt(&p.AdminSessionRetentionDays, u.AdminSessionRetentionDays)
	if u.IPBlacklist != nil {
		p.IPBlacklist = slices.Clone(*u.IPBlacklist)
		if p.IPBlacklist == nil {
			p.IPBlacklist = IPList{}
		}
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
