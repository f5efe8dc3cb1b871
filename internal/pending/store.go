package pending

import (
	"context"
	"time"

	id "civicdesk/pkg/domain"
)

// Store persists pending items. Get and List return copies.
type Store interface {
	Create(ctx context.Context, item *Item) error
	Get(ctx context.Context, itemID id.PendingID) (*Item, error)
	List(ctx context.Context, filter ListFilter) ([]*Item, int, error)
	ListAll(ctx context.Context) ([]*Item, error)
	Update(ctx context.Context, item *Item) error
	Count(ctx context.Context) (Counts, error)
	// DeleteUnprocessedOlderThan removes unprocessed items created strictly
	// before cutoff. With dryRun it only counts them.
	DeleteUnprocessedOlderThan(ctx context.Context, cutoff time.Time, dryRun bool) (int, error)
}
