package importitem

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindLocation Kind = "location"
	KindProject  Kind = "project"
)

type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusAccepted      Status = "accepted"
	StatusAmended       Status = "amended"
	StatusRejected      Status = "rejected"
	// StatusInvalid is assigned only at extraction time and is terminal.
	StatusInvalid Status = "invalid"
)

// DuplicateCandidate is an existing entity the extraction pipeline believes
// may already represent the same real-world location or project.
type DuplicateCandidate struct {
	EntityID uuid.UUID `json:"entityId"`
	Name     string    `json:"name"`
	Reason   string    `json:"reason"`
}

type ImportItem struct {
	id               uuid.UUID
	runID            uuid.UUID
	kind             Kind
	status           Status
	confidence       *int32
	raw              json.RawMessage
	normalized       json.RawMessage
	amendments       json.RawMessage
	parentItemID     *uuid.UUID
	duplicates       []DuplicateCandidate
	confirmCreateNew bool
	needsReview      bool
	reviewNotes      string
	position         int
	createdAt        time.Time
	updatedAt        time.Time
}

type NewParams struct {
	RunID        uuid.UUID
	Kind         Kind
	Confidence   *int32
	Raw          json.RawMessage
	Normalized   json.RawMessage
	ParentItemID *uuid.UUID
	Duplicates   []DuplicateCandidate
	NeedsReview  bool
	Invalid      bool
	Position     int
}

func New(params NewParams) ImportItem {
	status := StatusPendingReview
	if params.Invalid {
		status = StatusInvalid
	}
	return ImportItem{
		id:           uuid.New(),
		runID:        params.RunID,
		kind:         params.Kind,
		status:       status,
		confidence:   params.Confidence,
		raw:          params.Raw,
		normalized:   params.Normalized,
		parentItemID: params.ParentItemID,
		duplicates:   params.Duplicates,
		needsReview:  params.NeedsReview,
		position:     params.Position,
	}
}

type HydrateParams struct {
	ID               uuid.UUID
	RunID            uuid.UUID
	Kind             Kind
	Status           Status
	Confidence       *int32
	Raw              json.RawMessage
	Normalized       json.RawMessage
	Amendments       json.RawMessage
	ParentItemID     *uuid.UUID
	Duplicates       []DuplicateCandidate
	ConfirmCreateNew bool
	NeedsReview      bool
	ReviewNotes      string
	Position         int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func Hydrate(params HydrateParams) ImportItem {
	return ImportItem{
		id:               params.ID,
		runID:            params.RunID,
		kind:             params.Kind,
		status:           params.Status,
		confidence:       params.Confidence,
		raw:              params.Raw,
		normalized:       params.Normalized,
		amendments:       params.Amendments,
		parentItemID:     params.ParentItemID,
		duplicates:       params.Duplicates,
		confirmCreateNew: params.ConfirmCreateNew,
		needsReview:      params.NeedsReview,
		reviewNotes:      params.ReviewNotes,
		position:         params.Position,
		createdAt:        params.CreatedAt,
		updatedAt:        params.UpdatedAt,
	}
}

func (i ImportItem) ID() uuid.UUID                    { return i.id }
func (i ImportItem) RunID() uuid.UUID                 { return i.runID }
func (i ImportItem) Kind() Kind                       { return i.kind }
func (i ImportItem) Status() Status                   { return i.status }
func (i ImportItem) Confidence() *int32               { return i.confidence }
func (i ImportItem) Raw() json.RawMessage             { return i.raw }
func (i ImportItem) Normalized() json.RawMessage      { return i.normalized }
func (i ImportItem) Amendments() json.RawMessage      { return i.amendments }
func (i ImportItem) ParentItemID() *uuid.UUID         { return i.parentItemID }
func (i ImportItem) Duplicates() []DuplicateCandidate { return i.duplicates }
func (i ImportItem) ConfirmCreateNew() bool           { return i.confirmCreateNew }
func (i ImportItem) NeedsReview() bool                { return i.needsReview }
func (i ImportItem) ReviewNotes() string              { return i.reviewNotes }
func (i ImportItem) Position() int                    { return i.position }
func (i ImportItem) CreatedAt() time.Time             { return i.createdAt }
func (i ImportItem) UpdatedAt() time.Time             { return i.updatedAt }
func (i ImportItem) IsZero() bool                     { return i.id == uuid.Nil }

// EffectiveData returns the record that finalization would persist:
// amendments when present, normalized data otherwise.
func (i ImportItem) EffectiveData() json.RawMessage {
	if i.amendments != nil {
		return i.amendments
	}
	return i.normalized
}

func (i ImportItem) HasDuplicates() bool {
	return len(i.duplicates) > 0
}

// Reviewable reports whether user actions may touch the item at all.
func (i ImportItem) Reviewable() bool {
	return i.status != StatusInvalid
}

func (i ImportItem) ChildOf(locationID uuid.UUID) bool {
	return i.kind == KindProject && i.parentItemID != nil && *i.parentItemID == locationID
}
