package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/pkg/composables"
)

type pgDuplicateFinder struct{}

// NewPgDuplicateFinder matches extracted records against existing locations
// and waste projects by case-insensitive name.
func NewPgDuplicateFinder() *pgDuplicateFinder {
	return &pgDuplicateFinder{}
}

func (f *pgDuplicateFinder) LocationDuplicates(ctx context.Context, tenantID uuid.UUID, fields importitem.LocationFields) ([]importitem.DuplicateCandidate, error) {
	return f.query(ctx, `
		SELECT id, name
		FROM locations
		WHERE tenant_id = $1 AND lower(name) = lower($2)
		ORDER BY created_at ASC
		LIMIT 5
	`, tenantID, fields.Name, "existing location with the same name")
}

func (f *pgDuplicateFinder) ProjectDuplicates(ctx context.Context, tenantID uuid.UUID, fields importitem.ProjectFields) ([]importitem.DuplicateCandidate, error) {
	return f.query(ctx, `
		SELECT id, name
		FROM waste_projects
		WHERE tenant_id = $1 AND lower(name) = lower($2)
		ORDER BY created_at ASC
		LIMIT 5
	`, tenantID, fields.Name, "existing project with the same name")
}

func (f *pgDuplicateFinder) query(ctx context.Context, sql string, tenantID uuid.UUID, name, reason string) ([]importitem.DuplicateCandidate, error) {
	if name == "" {
		return nil, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, sql, tenantID, name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query duplicate candidates")
	}
	defer rows.Close()

	var out []importitem.DuplicateCandidate
	for rows.Next() {
		var candidate importitem.DuplicateCandidate
		if err := rows.Scan(&candidate.EntityID, &candidate.Name); err != nil {
			return nil, errors.Wrap(err, "failed to scan duplicate candidate")
		}
		candidate.Reason = reason
		out = append(out, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating duplicate candidates")
	}
	return out, nil
}
