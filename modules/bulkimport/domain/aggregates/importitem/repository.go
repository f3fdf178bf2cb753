package importitem

import (
	"context"

	"github.com/google/uuid"
)

type ListParams struct {
	RunID    uuid.UUID
	Page     int
	PageSize int
	Status   *Status
}

type ListResult struct {
	Items []ImportItem
	Pages int
	Total int
}

type Repository interface {
	BulkCreate(ctx context.Context, items []ImportItem) error
	GetByID(ctx context.Context, id uuid.UUID) (ImportItem, error)
	// ListPage returns one page in stable backend order (position ascending).
	ListPage(ctx context.Context, params ListParams) (ListResult, error)
	// ApplyReview runs a review transition authoritatively. Rejecting a
	// location cascades to its reviewable children inside the same
	// transaction; callers must reload the item set afterwards instead of
	// assuming local consistency.
	ApplyReview(ctx context.Context, id uuid.UUID, action ReviewAction, opts ApplyOptions) (ImportItem, error)
}
