package importrun

import (
	"context"

	"github.com/google/uuid"
)

type FinalizeSummary struct {
	LocationsCreated int `json:"locationsCreated"`
	ProjectsCreated  int `json:"projectsCreated"`
}

type Repository interface {
	Create(ctx context.Context, run ImportRun) (ImportRun, error)
	GetByID(ctx context.Context, id uuid.UUID) (ImportRun, error)
	Update(ctx context.Context, run ImportRun) (ImportRun, error)
	// Counters recomputes per-status tallies from stored items.
	Counters(ctx context.Context, id uuid.UUID) (Counters, error)
	// Finalize converts accepted and amended items into permanent entities and
	// marks the run done, all within one transaction. It is one-shot: a second
	// call fails with ErrRunFinalized.
	Finalize(ctx context.Context, id uuid.UUID) (FinalizeSummary, error)
}
