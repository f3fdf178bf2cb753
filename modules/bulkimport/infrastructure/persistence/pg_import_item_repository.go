package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/pkg/composables"
	"github.com/reclaim-hq/reclaim/pkg/repo"
)

const itemColumns = `
	id,
	run_id,
	kind,
	status,
	confidence,
	raw_data,
	normalized_data,
	amendments,
	parent_item_id,
	duplicates,
	confirm_create_new,
	needs_review,
	review_notes,
	position,
	created_at,
	updated_at`

type pgImportItemRepository struct{}

func NewPgImportItemRepository() importitem.Repository {
	return &pgImportItemRepository{}
}

func (r *pgImportItemRepository) BulkCreate(ctx context.Context, items []importitem.ImportItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	for _, item := range items {
		duplicates, err := json.Marshal(item.Duplicates())
		if err != nil {
			return errors.Wrap(err, "failed to encode duplicate candidates")
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO import_items (
				id,
				run_id,
				kind,
				status,
				confidence,
				raw_data,
				normalized_data,
				parent_item_id,
				duplicates,
				needs_review,
				position,
				created_at,
				updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		`,
			item.ID(),
			item.RunID(),
			item.Kind(),
			item.Status(),
			item.Confidence(),
			item.Raw(),
			item.Normalized(),
			item.ParentItemID(),
			duplicates,
			item.NeedsReview(),
			item.Position(),
		)
		if err != nil {
			return errors.Wrap(err, "failed to insert import item")
		}
	}
	return nil
}

func (r *pgImportItemRepository) GetByID(ctx context.Context, id uuid.UUID) (importitem.ImportItem, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importitem.ImportItem{}, errors.Wrap(err, "failed to get transaction")
	}

	row := tx.QueryRow(ctx, `SELECT`+itemColumns+` FROM import_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return importitem.ImportItem{}, ErrItemNotFound
	}
	if err != nil {
		return importitem.ImportItem{}, errors.Wrap(err, "failed to query import item")
	}
	return item, nil
}

func (r *pgImportItemRepository) ListPage(ctx context.Context, params importitem.ListParams) (importitem.ListResult, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return importitem.ListResult{}, errors.Wrap(err, "failed to get transaction")
	}

	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = 50
	}

	countQuery := `SELECT COUNT(*) FROM import_items WHERE run_id = $1`
	listQuery := `SELECT` + itemColumns + ` FROM import_items WHERE run_id = $1`
	args := []any{params.RunID}
	if params.Status != nil {
		countQuery += ` AND status = $2`
		listQuery += ` AND status = $2`
		args = append(args, *params.Status)
	}

	var total int
	if err := tx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return importitem.ListResult{}, errors.Wrap(err, "failed to count import items")
	}

	listQuery += fmt.Sprintf(` ORDER BY position ASC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, params.PageSize, (params.Page-1)*params.PageSize)

	rows, err := tx.Query(ctx, listQuery, args...)
	if err != nil {
		return importitem.ListResult{}, errors.Wrap(err, "failed to query import items")
	}
	defer rows.Close()

	var items []importitem.ImportItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return importitem.ListResult{}, errors.Wrap(err, "failed to scan import item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return importitem.ListResult{}, errors.Wrap(err, "error iterating import items")
	}

	pages := (total + params.PageSize - 1) / params.PageSize
	if pages < 1 {
		pages = 1
	}
	return importitem.ListResult{Items: items, Pages: pages, Total: total}, nil
}

// ApplyReview locks the item row, applies the transition through the domain
// rules, and when a location gets rejected also rejects its children that are
// still open, all inside one transaction.
func (r *pgImportItemRepository) ApplyReview(ctx context.Context, id uuid.UUID, action importitem.ReviewAction, opts importitem.ApplyOptions) (importitem.ImportItem, error) {
	return composables.InTxResult(ctx, func(txCtx context.Context) (importitem.ImportItem, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return importitem.ImportItem{}, errors.Wrap(err, "failed to get transaction")
		}

		row := tx.QueryRow(ctx, `SELECT`+itemColumns+` FROM import_items WHERE id = $1 FOR UPDATE`, id)
		item, err := scanItem(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return importitem.ImportItem{}, ErrItemNotFound
		}
		if err != nil {
			return importitem.ImportItem{}, errors.Wrap(err, "failed to lock import item")
		}

		updated, err := item.Apply(action, opts)
		if err != nil {
			return importitem.ImportItem{}, err
		}

		if err := updateItem(ctx, tx, updated); err != nil {
			return importitem.ImportItem{}, err
		}

		if updated.Kind() == importitem.KindLocation && updated.Status() == importitem.StatusRejected {
			_, err = tx.Exec(ctx, `
				UPDATE import_items
				SET status = $2, updated_at = now()
				WHERE parent_item_id = $1 AND status NOT IN ($3, $4)
			`, updated.ID(), importitem.StatusRejected, importitem.StatusRejected, importitem.StatusInvalid)
			if err != nil {
				return importitem.ImportItem{}, errors.Wrap(err, "failed to cascade rejection")
			}
		}
		return updated, nil
	})
}

func updateItem(ctx context.Context, tx repo.Tx, item importitem.ImportItem) error {
	_, err := tx.Exec(ctx, `
		UPDATE import_items
		SET
			status = $2,
			amendments = $3,
			confirm_create_new = $4,
			needs_review = $5,
			review_notes = $6,
			updated_at = now()
		WHERE id = $1
	`,
		item.ID(),
		item.Status(),
		nullableJSON(item.Amendments()),
		item.ConfirmCreateNew(),
		item.NeedsReview(),
		item.ReviewNotes(),
	)
	return errors.Wrap(err, "failed to update import item")
}

func loadRunItems(ctx context.Context, tx repo.Tx, runID uuid.UUID) ([]importitem.ImportItem, error) {
	rows, err := tx.Query(ctx, `SELECT`+itemColumns+` FROM import_items WHERE run_id = $1 ORDER BY position ASC`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query run items")
	}
	defer rows.Close()

	var items []importitem.ImportItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run item")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating run items")
	}
	return items, nil
}

func scanItem(row rowScanner) (importitem.ImportItem, error) {
	var (
		id               uuid.UUID
		runID            uuid.UUID
		kind             importitem.Kind
		status           importitem.Status
		confidence       *int32
		rawData          json.RawMessage
		normalizedData   json.RawMessage
		amendments       json.RawMessage
		parentItemID     *uuid.UUID
		duplicatesJSON   json.RawMessage
		confirmCreateNew bool
		needsReview      bool
		reviewNotes      string
		position         int
		createdAt        time.Time
		updatedAt        time.Time
	)
	err := row.Scan(
		&id,
		&runID,
		&kind,
		&status,
		&confidence,
		&rawData,
		&normalizedData,
		&amendments,
		&parentItemID,
		&duplicatesJSON,
		&confirmCreateNew,
		&needsReview,
		&reviewNotes,
		&position,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return importitem.ImportItem{}, err
	}

	var duplicates []importitem.DuplicateCandidate
	if len(duplicatesJSON) > 0 {
		if err := json.Unmarshal(duplicatesJSON, &duplicates); err != nil {
			return importitem.ImportItem{}, errors.Wrap(err, "failed to decode duplicate candidates")
		}
	}

	return importitem.Hydrate(importitem.HydrateParams{
		ID:               id,
		RunID:            runID,
		Kind:             kind,
		Status:           status,
		Confidence:       confidence,
		Raw:              rawData,
		Normalized:       normalizedData,
		Amendments:       amendments,
		ParentItemID:     parentItemID,
		Duplicates:       duplicates,
		ConfirmCreateNew: confirmCreateNew,
		NeedsReview:      needsReview,
		ReviewNotes:      reviewNotes,
		Position:         position,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
	}), nil
}

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return data
}
