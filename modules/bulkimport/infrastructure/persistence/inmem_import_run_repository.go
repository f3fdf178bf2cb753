package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
)

// FinalizedLocation and FinalizedProject are what the in-memory finalizer
// produces in place of database rows. Dev mode and tests inspect them.
type FinalizedLocation struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Fields   importitem.LocationFields
}

type FinalizedProject struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	LocationID *uuid.UUID
	Fields     importitem.ProjectFields
}

// InmemImportRunRepository keeps runs in process memory. It shares the item
// repository so counters and finalization see the same data the item store
// writes.
type InmemImportRunRepository struct {
	mu        sync.RWMutex
	runs      map[uuid.UUID]importrun.ImportRun
	items     *InmemImportItemRepository
	locations []FinalizedLocation
	projects  []FinalizedProject
}

func NewInmemImportRunRepository(items *InmemImportItemRepository) *InmemImportRunRepository {
	return &InmemImportRunRepository{
		runs:  make(map[uuid.UUID]importrun.ImportRun),
		items: items,
	}
}

func (r *InmemImportRunRepository) Create(_ context.Context, run importrun.ImportRun) (importrun.ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID()] = run
	return run, nil
}

func (r *InmemImportRunRepository) GetByID(_ context.Context, id uuid.UUID) (importrun.ImportRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, found := r.runs[id]
	if !found {
		return importrun.ImportRun{}, ErrRunNotFound
	}
	return run, nil
}

func (r *InmemImportRunRepository) Update(_ context.Context, run importrun.ImportRun) (importrun.ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.runs[run.ID()]; !found {
		return importrun.ImportRun{}, ErrRunNotFound
	}
	r.runs[run.ID()] = run
	return run, nil
}

func (r *InmemImportRunRepository) Counters(ctx context.Context, id uuid.UUID) (importrun.Counters, error) {
	items, err := r.items.itemsForRun(id)
	if err != nil {
		return importrun.Counters{}, err
	}
	var counters importrun.Counters
	for _, item := range items {
		switch item.Status() {
		case importitem.StatusPendingReview:
			counters.Pending++
		case importitem.StatusAccepted:
			counters.Accepted++
		case importitem.StatusRejected:
			counters.Rejected++
		case importitem.StatusAmended:
			counters.Amended++
		case importitem.StatusInvalid:
			counters.Invalid++
		}
	}
	return counters, nil
}

func (r *InmemImportRunRepository) Finalize(_ context.Context, id uuid.UUID) (importrun.FinalizeSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, found := r.runs[id]
	if !found {
		return importrun.FinalizeSummary{}, ErrRunNotFound
	}
	if run.Status() == importrun.StatusDone {
		return importrun.FinalizeSummary{}, importrun.ErrRunFinalized
	}
	if run.Status() != importrun.StatusReviewReady {
		return importrun.FinalizeSummary{}, importrun.ErrRunNotReviewReady
	}

	items, err := r.items.itemsForRun(id)
	if err != nil {
		return importrun.FinalizeSummary{}, err
	}

	var summary importrun.FinalizeSummary
	createdLocations := make(map[uuid.UUID]uuid.UUID)

	for _, item := range items {
		if item.Kind() != importitem.KindLocation || !finalizable(item) {
			continue
		}
		fields, err := importitem.DecodeLocationFields(item.EffectiveData())
		if err != nil {
			return importrun.FinalizeSummary{}, err
		}
		locationID := uuid.New()
		r.locations = append(r.locations, FinalizedLocation{
			ID:       locationID,
			TenantID: run.TenantID(),
			Fields:   fields,
		})
		createdLocations[item.ID()] = locationID
		summary.LocationsCreated++
	}

	for _, item := range items {
		if item.Kind() != importitem.KindProject || !finalizable(item) {
			continue
		}
		fields, err := importitem.DecodeProjectFields(item.EffectiveData())
		if err != nil {
			return importrun.FinalizeSummary{}, err
		}
		var locationID *uuid.UUID
		if parent := item.ParentItemID(); parent != nil {
			if created, ok := createdLocations[*parent]; ok {
				locationID = &created
			}
		}
		r.projects = append(r.projects, FinalizedProject{
			ID:         uuid.New(),
			TenantID:   run.TenantID(),
			LocationID: locationID,
			Fields:     fields,
		})
		summary.ProjectsCreated++
	}

	r.runs[id] = run.WithStatus(importrun.StatusDone)
	return summary, nil
}

// FinalizedLocations returns everything Finalize produced so far.
func (r *InmemImportRunRepository) FinalizedLocations() []FinalizedLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FinalizedLocation, len(r.locations))
	copy(out, r.locations)
	return out
}

func (r *InmemImportRunRepository) FinalizedProjects() []FinalizedProject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FinalizedProject, len(r.projects))
	copy(out, r.projects)
	return out
}
