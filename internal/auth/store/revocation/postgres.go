package revocation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	upsertRevocations = `
INSERT INTO token_revocations (jti, expires_at)
SELECT jti, $2 FROM unnest($1::text[]) AS jti
ON CONFLICT (jti) DO UPDATE SET expires_at = GREATEST(token_revocations.expires_at, EXCLUDED.expires_at)`

	revocationLive = `
SELECT EXISTS (SELECT 1 FROM token_revocations WHERE jti = $1 AND expires_at > $2)`
)

// PostgresTRL keeps revoked token ids in the token_revocations table. Rows
// past expires_at no longer count as revoked.
type PostgresTRL struct {
	db  *sql.DB
	now func() time.Time
}

type PostgresTRLOption func(*PostgresTRL)

func WithPostgresClock(now func() time.Time) PostgresTRLOption {
	return func(t *PostgresTRL) {
		if now != nil {
			t.now = now
		}
	}
}

func NewPostgresTRL(db *sql.DB, opts ...PostgresTRLOption) *PostgresTRL {
	trl := &PostgresTRL{db: db, now: time.Now}
	for _, opt := range opts {
		opt(trl)
	}
	return trl
}

func (t *PostgresTRL) RevokeTokens(ctx context.Context, jtis []string, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	ids := nonEmpty(jtis)
	if len(ids) == 0 {
		return nil
	}
	if _, err := t.db.ExecContext(ctx, upsertRevocations, pq.Array(ids), t.now().Add(ttl)); err != nil {
		return fmt.Errorf("revoke %d tokens: %w", len(ids), err)
	}
	return nil
}

func (t *PostgresTRL) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var live bool
	if err := t.db.QueryRowContext(ctx, revocationLive, jti, t.now()).Scan(&live); err != nil {
		return false, fmt.Errorf("look up revocation: %w", err)
	}
	return live, nil
}
