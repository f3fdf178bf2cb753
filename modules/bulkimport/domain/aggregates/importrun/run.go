package importrun

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusUploaded    Status = "uploaded"
	StatusProcessing  Status = "processing"
	StatusReviewReady Status = "review_ready"
	StatusNoData      Status = "no_data"
	StatusFailed      Status = "failed"
	StatusDone        Status = "done"
)

// ExtractionSettled reports whether the extraction pipeline has reached a
// state pollers treat as terminal. A finalized run is settled as well.
func (s Status) ExtractionSettled() bool {
	switch s {
	case StatusReviewReady, StatusNoData, StatusFailed, StatusDone:
		return true
	}
	return false
}

// Counters are per-status item tallies. They are always recomputed from the
// items table; the review engine never derives them locally for decisions.
type Counters struct {
	Pending  int `json:"pending"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Amended  int `json:"amended"`
	Invalid  int `json:"invalid"`
}

func (c Counters) Total() int {
	return c.Pending + c.Accepted + c.Rejected + c.Amended + c.Invalid
}

type ImportRun struct {
	id           uuid.UUID
	tenantID     uuid.UUID
	filename     string
	status       Status
	phase        PhaseKey
	totalItems   int
	counters     Counters
	errorMessage string
	createdAt    time.Time
	updatedAt    time.Time
}

func New(tenantID uuid.UUID, filename string) ImportRun {
	return ImportRun{
		id:       uuid.New(),
		tenantID: tenantID,
		filename: strings.TrimSpace(filename),
		status:   StatusUploaded,
	}
}

func Hydrate(
	id uuid.UUID,
	tenantID uuid.UUID,
	filename string,
	status Status,
	phase PhaseKey,
	totalItems int,
	counters Counters,
	errorMessage string,
	createdAt time.Time,
	updatedAt time.Time,
) ImportRun {
	return ImportRun{
		id:           id,
		tenantID:     tenantID,
		filename:     strings.TrimSpace(filename),
		status:       status,
		phase:        phase,
		totalItems:   totalItems,
		counters:     counters,
		errorMessage: errorMessage,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

func (r ImportRun) ID() uuid.UUID        { return r.id }
func (r ImportRun) TenantID() uuid.UUID  { return r.tenantID }
func (r ImportRun) Filename() string     { return r.filename }
func (r ImportRun) Status() Status       { return r.status }
func (r ImportRun) Phase() PhaseKey      { return r.phase }
func (r ImportRun) TotalItems() int      { return r.totalItems }
func (r ImportRun) Counters() Counters   { return r.counters }
func (r ImportRun) ErrorMessage() string { return r.errorMessage }
func (r ImportRun) CreatedAt() time.Time { return r.createdAt }
func (r ImportRun) UpdatedAt() time.Time { return r.updatedAt }
func (r ImportRun) IsZero() bool         { return r.id == uuid.Nil }

func (r ImportRun) WithStatus(status Status) ImportRun {
	r.status = status
	return r
}

func (r ImportRun) WithPhase(phase PhaseKey) ImportRun {
	r.phase = phase
	return r
}

func (r ImportRun) WithTotalItems(n int) ImportRun {
	r.totalItems = n
	return r
}

func (r ImportRun) WithCounters(c Counters) ImportRun {
	r.counters = c
	return r
}

func (r ImportRun) WithError(message string) ImportRun {
	r.errorMessage = message
	return r
}
