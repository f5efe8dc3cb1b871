package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"civicdesk/internal/protection"
	txcontext "civicdesk/pkg/platform/tx"
)

// Store keeps the policy in the single-row protection_policy table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const policyColumns = `enable_rate_limit_declarations, rate_limit_declarations, enable_captcha_declarations,
	enable_rate_limit_attachments, rate_limit_attachments, enable_rate_limit_clues, rate_limit_clues,
	enable_captcha_clues, ip_blacklist, pending_retention_days, activity_log_retention_days,
	admin_session_retention_days, updated_at`

// Get inserts the defaults if the row is missing, then reads it. The insert
// is a no-op when another caller won the race.
func (s *Store) Get(ctx context.Context) (*protection.Policy, error) {
	exec := txcontext.Exec(ctx, s.db)
	d := protection.DefaultPolicy(time.Now().UTC())
	_, err := exec.ExecContext(ctx, `
		INSERT INTO protection_policy (id, `+policyColumns+`)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`, args(d)...)
	if err != nil {
		return nil, fmt.Errorf("seed protection policy: %w", err)
	}

	var p protection.Policy
	var blacklist pq.StringArray
	err = exec.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM protection_policy WHERE id = 1`).Scan(
		&p.EnableRateLimitDeclarations, &p.RateLimitDeclarations, &p.EnableCaptchaDeclarations,
		&p.EnableRateLimitAttachments, &p.RateLimitAttachments, &p.EnableRateLimitClues, &p.RateLimitClues,
		&p.EnableCaptchaClues, &blacklist, &p.PendingRetentionDays, &p.ActivityLogRetentionDays,
		&p.AdminSessionRetentionDays, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("read protection policy: %w", err)
	}
	p.IPBlacklist = protection.IPList(blacklist)
	if p.IPBlacklist == nil {
		p.IPBlacklist = protection.IPList{}
	}
	return &p, nil
}

func (s *Store) Save(ctx context.Context, p *protection.Policy) error {
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO protection_policy (id, `+policyColumns+`)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			enable_rate_limit_declarations = EXCLUDED.enable_rate_limit_declarations,
			rate_limit_declarations = EXCLUDED.rate_limit_declarations,
			enable_captcha_declarations = EXCLUDED.enable_captcha_declarations,
			enable_rate_limit_attachments = EXCLUDED.enable_rate_limit_attachments,
			rate_limit_attachments = EXCLUDED.rate_limit_attachments,
			enable_rate_limit_clues = EXCLUDED.enable_rate_limit_clues,
			rate_limit_clues = EXCLUDED.rate_limit_clues,
			enable_captcha_clues = EXCLUDED.enable_captcha_clues,
			ip_blacklist = EXCLUDED.ip_blacklist,
			pending_retention_days = EXCLUDED.pending_retention_days,
			activity_log_retention_days = EXCLUDED.activity_log_retention_days,
			admin_session_retention_days = EXCLUDED.admin_session_retention_days,
			updated_at = EXCLUDED.updated_at`, args(p)...)
	if err != nil {
		return fmt.Errorf("save protection policy: %w", err)
	}
	return nil
}

func args(p *protection.Policy) []any {
	blacklist := []string(p.IPBlacklist)
	if blacklist == nil {
		blacklist = []string{}
	}
	return []any{
		p.EnableRateLimitDeclarations, p.RateLimitDeclarations, p.EnableCaptchaDeclarations,
		p.EnableRateLimitAttachments, p.RateLimitAttachments, p.EnableRateLimitClues, p.RateLimitClues,
		p.EnableCaptchaClues, pq.Array(blacklist), p.PendingRetentionDays,
		p.ActivityLogRetentionDays, p.AdminSessionRetentionDays, p.UpdatedAt,
	}
}
