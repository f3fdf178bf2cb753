package persistence

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
)

// InmemDuplicateFinder matches against the entities the in-memory run
// repository produced during finalization. Dev mode only.
type InmemDuplicateFinder struct {
	runs *InmemImportRunRepository
}

func NewInmemDuplicateFinder(runs *InmemImportRunRepository) *InmemDuplicateFinder {
	return &InmemDuplicateFinder{runs: runs}
}

func (f *InmemDuplicateFinder) LocationDuplicates(_ context.Context, tenantID uuid.UUID, fields importitem.LocationFields) ([]importitem.DuplicateCandidate, error) {
	var out []importitem.DuplicateCandidate
	for _, loc := range f.runs.FinalizedLocations() {
		if loc.TenantID != tenantID {
			continue
		}
		if strings.EqualFold(loc.Fields.Name, fields.Name) {
			out = append(out, importitem.DuplicateCandidate{
				EntityID: loc.ID,
				Name:     loc.Fields.Name,
				Reason:   "existing location with the same name",
			})
		}
	}
	return out, nil
}

func (f *InmemDuplicateFinder) ProjectDuplicates(_ context.Context, tenantID uuid.UUID, fields importitem.ProjectFields) ([]importitem.DuplicateCandidate, error) {
	var out []importitem.DuplicateCandidate
	for _, proj := range f.runs.FinalizedProjects() {
		if proj.TenantID != tenantID {
			continue
		}
		if strings.EqualFold(proj.Fields.Name, fields.Name) {
			out = append(out, importitem.DuplicateCandidate{
				EntityID: proj.ID,
				Name:     proj.Fields.Name,
				Reason:   "existing project with the same name",
			})
		}
	}
	return out, nil
}
