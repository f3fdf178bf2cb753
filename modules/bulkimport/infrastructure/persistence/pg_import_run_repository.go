package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/pkg/composables"
)

const runColumns = `
	id,
	tenant_id,
	filename,
	status,
	phase,
	total_items,
	pending_count,
	accepted_count,
	rejected_count,
	amended_count,
	invalid_count,
	error_message,
	created_at,
	updated_at`

type pgImportRunRepository struct{}

func NewPgImportRunRepository() importrun.Repository {
	return &pgImportRunRepository{}
}

func (r *pgImportRunRepository) Create(ctx context.Context, run importrun.ImportRun) (importrun.ImportRun, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importrun.ImportRun{}, errors.Wrap(err, "failed to get transaction")
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO import_runs (
			id,
			tenant_id,
			filename,
			status,
			phase,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING`+runColumns,
		run.ID(),
		run.TenantID(),
		run.Filename(),
		run.Status(),
		run.Phase(),
	)
	created, err := scanRun(row)
	if err != nil {
		return importrun.ImportRun{}, errors.Wrap(err, "failed to create import run")
	}
	return created, nil
}

func (r *pgImportRunRepository) GetByID(ctx context.Context, id uuid.UUID) (importrun.ImportRun, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importrun.ImportRun{}, errors.Wrap(err, "failed to get transaction")
	}

	row := tx.QueryRow(ctx, `SELECT`+runColumns+` FROM import_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return importrun.ImportRun{}, ErrRunNotFound
	}
	if err != nil {
		return importrun.ImportRun{}, errors.Wrap(err, "failed to query import run")
	}
	return run, nil
}

func (r *pgImportRunRepository) Update(ctx context.Context, run importrun.ImportRun) (importrun.ImportRun, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importrun.ImportRun{}, errors.Wrap(err, "failed to get transaction")
	}

	counters := run.Counters()
	row := tx.QueryRow(ctx, `
		UPDATE import_runs
		SET
			status = $2,
			phase = $3,
			total_items = $4,
			pending_count = $5,
			accepted_count = $6,
			rejected_count = $7,
			amended_count = $8,
			invalid_count = $9,
			error_message = $10,
			updated_at = now()
		WHERE id = $1
		RETURNING`+runColumns,
		run.ID(),
		run.Status(),
		run.Phase(),
		run.TotalItems(),
		counters.Pending,
		counters.Accepted,
		counters.Rejected,
		counters.Amended,
		counters.Invalid,
		run.ErrorMessage(),
	)
	updated, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return importrun.ImportRun{}, ErrRunNotFound
	}
	if err != nil {
		return importrun.ImportRun{}, errors.Wrap(err, "failed to update import run")
	}
	return updated, nil
}

func (r *pgImportRunRepository) Counters(ctx context.Context, id uuid.UUID) (importrun.Counters, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importrun.Counters{}, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, `
		SELECT status, COUNT(*)
		FROM import_items
		WHERE run_id = $1
		GROUP BY status
	`, id)
	if err != nil {
		return importrun.Counters{}, errors.Wrap(err, "failed to query item counters")
	}
	defer rows.Close()

	var counters importrun.Counters
	for rows.Next() {
		var status importitem.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return importrun.Counters{}, errors.Wrap(err, "failed to scan item counter")
		}
		switch status {
		case importitem.StatusPendingReview:
			counters.Pending = count
		case importitem.StatusAccepted:
			counters.Accepted = count
		case importitem.StatusRejected:
			counters.Rejected = count
		case importitem.StatusAmended:
			counters.Amended = count
		case importitem.StatusInvalid:
			counters.Invalid = count
		}
	}
	if err := rows.Err(); err != nil {
		return importrun.Counters{}, errors.Wrap(err, "error iterating item counters")
	}
	return counters, nil
}

// Finalize converts accepted and amended items into locations and waste
// projects inside one transaction. The run row is locked first so concurrent
// finalize calls serialize; the loser observes status done and fails.
func (r *pgImportRunRepository) Finalize(ctx context.Context, id uuid.UUID) (importrun.FinalizeSummary, error) {
	return composables.InTxResult(ctx, func(txCtx context.Context) (importrun.FinalizeSummary, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return importrun.FinalizeSummary{}, errors.Wrap(err, "failed to get transaction")
		}

		var tenantID uuid.UUID
		var status importrun.Status
		err = tx.QueryRow(ctx, `
			SELECT tenant_id, status FROM import_runs WHERE id = $1 FOR UPDATE
		`, id).Scan(&tenantID, &status)
		if errors.Is(err, pgx.ErrNoRows) {
			return importrun.FinalizeSummary{}, ErrRunNotFound
		}
		if err != nil {
			return importrun.FinalizeSummary{}, errors.Wrap(err, "failed to lock import run")
		}
		if status == importrun.StatusDone {
			return importrun.FinalizeSummary{}, importrun.ErrRunFinalized
		}
		if status != importrun.StatusReviewReady {
			return importrun.FinalizeSummary{}, importrun.ErrRunNotReviewReady
		}

		items, err := loadRunItems(ctx, tx, id)
		if err != nil {
			return importrun.FinalizeSummary{}, err
		}

		var summary importrun.FinalizeSummary
		// Item ID → created location ID, so projects land under their parent.
		createdLocations := make(map[uuid.UUID]uuid.UUID)

		for _, item := range items {
			if item.Kind() != importitem.KindLocation || !finalizable(item) {
				continue
			}
			fields, err := importitem.DecodeLocationFields(item.EffectiveData())
			if err != nil {
				return importrun.FinalizeSummary{}, errors.Wrapf(err, "item %s has malformed location data", item.ID())
			}
			locationID := uuid.New()
			_, err = tx.Exec(ctx, `
				INSERT INTO locations (id, tenant_id, name, address, city, region, postal_code, import_run_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
			`, locationID, tenantID, fields.Name, fields.Address, fields.City, fields.Region, fields.PostalCode, id)
			if err != nil {
				return importrun.FinalizeSummary{}, errors.Wrap(err, "failed to insert location")
			}
			createdLocations[item.ID()] = locationID
			summary.LocationsCreated++
		}

		for _, item := range items {
			if item.Kind() != importitem.KindProject || !finalizable(item) {
				continue
			}
			fields, err := importitem.DecodeProjectFields(item.EffectiveData())
			if err != nil {
				return importrun.FinalizeSummary{}, errors.Wrapf(err, "item %s has malformed project data", item.ID())
			}
			var locationID *uuid.UUID
			if parent := item.ParentItemID(); parent != nil {
				if created, ok := createdLocations[*parent]; ok {
					locationID = &created
				}
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO waste_projects (id, tenant_id, location_id, name, stream_category, estimated_monthly_volume, volume_unit, notes, import_run_id, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			`, uuid.New(), tenantID, locationID, fields.Name, fields.StreamCategory, fields.EstimatedMonthlyVolume, fields.VolumeUnit, fields.Notes, id)
			if err != nil {
				return importrun.FinalizeSummary{}, errors.Wrap(err, "failed to insert waste project")
			}
			summary.ProjectsCreated++
		}

		_, err = tx.Exec(ctx, `
			UPDATE import_runs SET status = $2, updated_at = now() WHERE id = $1
		`, id, importrun.StatusDone)
		if err != nil {
			return importrun.FinalizeSummary{}, errors.Wrap(err, "failed to mark run done")
		}
		return summary, nil
	})
}

func finalizable(item importitem.ImportItem) bool {
	return item.Status() == importitem.StatusAccepted || item.Status() == importitem.StatusAmended
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (importrun.ImportRun, error) {
	var (
		id           uuid.UUID
		tenantID     uuid.UUID
		filename     string
		status       importrun.Status
		phase        importrun.PhaseKey
		totalItems   int
		counters     importrun.Counters
		errorMessage string
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(
		&id,
		&tenantID,
		&filename,
		&status,
		&phase,
		&totalItems,
		&counters.Pending,
		&counters.Accepted,
		&counters.Rejected,
		&counters.Amended,
		&counters.Invalid,
		&errorMessage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return importrun.ImportRun{}, err
	}
	return importrun.Hydrate(
		id,
		tenantID,
		filename,
		status,
		phase,
		totalItems,
		counters,
		errorMessage,
		createdAt,
		updatedAt,
	), nil
}
