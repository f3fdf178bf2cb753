package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
)

// InmemImportItemRepository keeps items in process memory. It mirrors the
// transactional semantics of the SQL implementation closely enough for tests:
// transitions go through the domain rules and location rejections cascade.
type InmemImportItemRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]importitem.ImportItem
}

func NewInmemImportItemRepository() *InmemImportItemRepository {
	return &InmemImportItemRepository{
		items: make(map[uuid.UUID]importitem.ImportItem),
	}
}

func (r *InmemImportItemRepository) BulkCreate(_ context.Context, items []importitem.ImportItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		r.items[item.ID()] = item
	}
	return nil
}

func (r *InmemImportItemRepository) GetByID(_ context.Context, id uuid.UUID) (importitem.ImportItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, found := r.items[id]
	if !found {
		return importitem.ImportItem{}, ErrItemNotFound
	}
	return item, nil
}

func (r *InmemImportItemRepository) ListPage(_ context.Context, params importitem.ListParams) (importitem.ListResult, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}

	r.mu.RLock()
	var matched []importitem.ImportItem
	for _, item := range r.items {
		if item.RunID() != params.RunID {
			continue
		}
		if params.Status != nil && item.Status() != *params.Status {
			continue
		}
		matched = append(matched, item)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Position() < matched[j].Position()
	})

	total := len(matched)
	pages := (total + params.PageSize - 1) / params.PageSize
	if pages < 1 {
		pages = 1
	}

	start := (params.Page - 1) * params.PageSize
	if start > total {
		start = total
	}
	end := start + params.PageSize
	if end > total {
		end = total
	}
	return importitem.ListResult{Items: matched[start:end], Pages: pages, Total: total}, nil
}

func (r *InmemImportItemRepository) ApplyReview(_ context.Context, id uuid.UUID, action importitem.ReviewAction, opts importitem.ApplyOptions) (importitem.ImportItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, found := r.items[id]
	if !found {
		return importitem.ImportItem{}, ErrItemNotFound
	}

	updated, err := item.Apply(action, opts)
	if err != nil {
		return importitem.ImportItem{}, err
	}
	r.items[id] = updated

	if updated.Kind() == importitem.KindLocation && updated.Status() == importitem.StatusRejected {
		for childID, child := range r.items {
			if !child.ChildOf(updated.ID()) || !child.Reviewable() {
				continue
			}
			if child.Status() == importitem.StatusRejected {
				continue
			}
			rejected, err := child.Apply(importitem.ActionReject, importitem.ApplyOptions{})
			if err != nil {
				return importitem.ImportItem{}, err
			}
			r.items[childID] = rejected
		}
	}
	return updated, nil
}

func (r *InmemImportItemRepository) itemsForRun(runID uuid.UUID) ([]importitem.ImportItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []importitem.ImportItem
	for _, item := range r.items {
		if item.RunID() == runID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Position() < out[j].Position()
	})
	return out, nil
}
