package declaration

import (
	"context"

	id "civicdesk/pkg/domain"
)

// Store persists declarations. Create returns sentinel.ErrConflict when the
// id or tracking code is taken; lookups return sentinel.ErrNotFound.
type Store interface {
	Create(ctx context.Context, d *Declaration) error
	GetByID(ctx context.Context, declarationID id.DeclarationID) (*Declaration, error)
	GetByTrackingCode(ctx context.Context, code string) (*Declaration, error)
	ExistsTrackingCode(ctx context.Context, code string) (bool, error)
	ExistsID(ctx context.Context, declarationID id.DeclarationID) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*Declaration, int, error)
	ListAll(ctx context.Context) ([]*Declaration, error)
	Update(ctx context.Context, d *Declaration) error
	Delete(ctx context.Context, declarationID id.DeclarationID) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
