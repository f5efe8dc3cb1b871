package tip

import (
	"context"

	id "civicdesk/pkg/domain"
)

// Store persists tips. Lookups return copies and sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, t *Tip) error
	Get(ctx context.Context, tipID id.TipID) (*Tip, error)
	// List returns the page, newest first, and the total matching filter.
	List(ctx context.Context, filter ListFilter) ([]*Tip, int, error)
	// Count ignores paging and UnreadOnly; DeclarationID still applies.
	Count(ctx context.Context, declarationID *id.DeclarationID) (Counts, error)
	Update(ctx context.Context, t *Tip) error
	Delete(ctx context.Context, tipID id.TipID) error
}
