package services

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
)

// ItemStoreService is the single mutable source of truth for a run's item
// snapshot. Grouping and review UI state are pure derivations of it.
type ItemStoreService struct {
	items    importitem.Repository
	pageSize int

	mu sync.Mutex
	// issued holds the newest load token per run; loads carrying an older
	// token are discarded silently so a stale in-flight fetch can never
	// overwrite fresher results.
	seq      uint64
	issued   map[uuid.UUID]uint64
	snapshot map[uuid.UUID][]importitem.ImportItem
}

func NewItemStoreService(items importitem.Repository, pageSize int) *ItemStoreService {
	return &ItemStoreService{
		items:    items,
		pageSize: pageSize,
		issued:   make(map[uuid.UUID]uint64),
		snapshot: make(map[uuid.UUID][]importitem.ImportItem),
	}
}

// Load fetches every page for the run and replaces the snapshot, preserving
// backend order. It returns the store's snapshot after this load settles,
// which reflects a newer load when one overtook this one.
func (s *ItemStoreService) Load(ctx context.Context, runID uuid.UUID, status *importitem.Status) ([]importitem.ImportItem, error) {
	s.mu.Lock()
	s.seq++
	token := s.seq
	s.issued[runID] = token
	s.mu.Unlock()

	first, err := s.items.ListPage(ctx, importitem.ListParams{
		RunID:    runID,
		Page:     1,
		PageSize: s.pageSize,
		Status:   status,
	})
	if err != nil {
		return nil, err
	}

	all := make([]importitem.ImportItem, 0, first.Total)
	all = append(all, first.Items...)
	for page := 2; page <= first.Pages; page++ {
		res, err := s.items.ListPage(ctx, importitem.ListParams{
			RunID:    runID,
			Page:     page,
			PageSize: s.pageSize,
			Status:   status,
		})
		if err != nil {
			return nil, err
		}
		all = append(all, res.Items...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issued[runID] == token {
		s.snapshot[runID] = all
	}
	return s.itemsLocked(runID), nil
}

// Items returns the current snapshot for the run.
func (s *ItemStoreService) Items(runID uuid.UUID) []importitem.ImportItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemsLocked(runID)
}

// Patch applies one review action. The returned item replaces the single
// matching entry in the snapshot without reordering. Rejecting a location
// cascades on the backend, so the full set is reloaded instead of patched.
func (s *ItemStoreService) Patch(ctx context.Context, itemID uuid.UUID, action importitem.ReviewAction, opts importitem.ApplyOptions) (importitem.ImportItem, error) {
	item, err := s.items.ApplyReview(ctx, itemID, action, opts)
	if err != nil {
		return importitem.ImportItem{}, err
	}

	if action == importitem.ActionReject && item.Kind() == importitem.KindLocation {
		// Cascade effects are authoritative server-side.
		if _, err := s.Load(ctx, item.RunID(), nil); err != nil {
			return importitem.ImportItem{}, err
		}
		return item, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.snapshot[item.RunID()]
	for i := range snapshot {
		if snapshot[i].ID() == item.ID() {
			snapshot[i] = item
			break
		}
	}
	return item, nil
}

// Drop forgets the run's snapshot, e.g. after leaving the review view.
func (s *ItemStoreService) Drop(runID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshot, runID)
	delete(s.issued, runID)
}

func (s *ItemStoreService) itemsLocked(runID uuid.UUID) []importitem.ImportItem {
	snapshot := s.snapshot[runID]
	out := make([]importitem.ImportItem, len(snapshot))
	copy(out, snapshot)
	return out
}
