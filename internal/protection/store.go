package protection

import "context"

// Store persists the singleton policy. Get creates and returns the defaults
// when no row exists yet; concurrent first calls observe the same row.
type Store interface {
	Get(ctx context.Context) (*Policy, error)
	Save(ctx context.Context, p *Policy) error
}
