package adminsession

import (
	"context"
	"time"
)

type Store interface {
	// Touch creates the session for (user, ip) or refreshes its last_seen.
	Touch(ctx context.Context, beat Beat) (*Session, error)
	// List returns sessions most recently seen first, plus the total.
	List(ctx context.Context, limit, offset int) ([]*Session, int, error)
	Count(ctx context.Context, seenSince time.Time) (Counts, error)
	// DeleteOlderThan removes sessions last seen strictly before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)
}
