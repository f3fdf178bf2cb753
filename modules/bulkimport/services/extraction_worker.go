package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/infrastructure/extraction"
	"github.com/reclaim-hq/reclaim/pkg/eventbus"
)

// DuplicateFinder looks up existing entities that likely match an extracted
// record, so the review UI can force an explicit create-new confirmation.
type DuplicateFinder interface {
	LocationDuplicates(ctx context.Context, tenantID uuid.UUID, fields importitem.LocationFields) ([]importitem.DuplicateCandidate, error)
	ProjectDuplicates(ctx context.Context, tenantID uuid.UUID, fields importitem.ProjectFields) ([]importitem.DuplicateCandidate, error)
}

// ExtractionWorker consumes run-created events and drives the extraction
// pipeline: phase reporting, provider call, normalization, duplicate lookup,
// item persistence and the terminal status transition.
type ExtractionWorker struct {
	runs                importrun.Repository
	items               importitem.Repository
	storage             DocumentStorage
	provider            extraction.Provider
	duplicates          DuplicateFinder
	confidenceThreshold int32
	requestTimeout      time.Duration
	log                 *logrus.Logger
	baseCtx             context.Context
}

func NewExtractionWorker(
	runs importrun.Repository,
	items importitem.Repository,
	storage DocumentStorage,
	provider extraction.Provider,
	duplicates DuplicateFinder,
	confidenceThreshold int32,
	requestTimeout time.Duration,
	log *logrus.Logger,
) *ExtractionWorker {
	return &ExtractionWorker{
		runs:                runs,
		items:               items,
		storage:             storage,
		provider:            provider,
		duplicates:          duplicates,
		confidenceThreshold: confidenceThreshold,
		requestTimeout:      requestTimeout,
		log:                 log,
		baseCtx:             context.Background(),
	}
}

// SetBaseContext sets the context extraction runs derive from. Event handlers
// detach from the request, so database access needs a context that already
// carries the pool.
func (w *ExtractionWorker) SetBaseContext(ctx context.Context) {
	w.baseCtx = ctx
}

// Register subscribes the worker on the event bus.
func (w *ExtractionWorker) Register(bus eventbus.EventBus) {
	bus.Subscribe(w.onRunCreated)
}

func (w *ExtractionWorker) onRunCreated(event importrun.CreatedEvent) {
	ctx := w.baseCtx
	if w.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.requestTimeout)
		defer cancel()
	}
	if err := w.Process(ctx, event.Run.ID(), event.DocumentPath); err != nil {
		w.log.WithError(err).WithField("run_id", event.Run.ID()).Error("extraction failed")
	}
}

// Process runs extraction for one uploaded run. A run that already reached a
// terminal status is left untouched.
func (w *ExtractionWorker) Process(ctx context.Context, runID uuid.UUID, documentPath string) error {
	run, err := w.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status().ExtractionSettled() {
		return nil
	}

	run, err = w.runs.Update(ctx, run.WithStatus(importrun.StatusProcessing))
	if err != nil {
		return err
	}

	document, err := w.storage.Read(ctx, documentPath)
	if err != nil {
		return w.fail(ctx, run, err)
	}

	result, err := w.provider.Extract(ctx, document, run.Filename(), w.reportPhase(&run))
	if err != nil {
		return w.fail(ctx, run, err)
	}

	items := w.normalize(ctx, run, result)
	if len(items) == 0 {
		extractionRuns.WithLabelValues(string(importrun.StatusNoData)).Inc()
		_, err = w.runs.Update(ctx, run.WithStatus(importrun.StatusNoData))
		return err
	}

	if err := w.items.BulkCreate(ctx, items); err != nil {
		return w.fail(ctx, run, err)
	}

	pending := 0
	invalid := 0
	for _, item := range items {
		switch item.Status() {
		case importitem.StatusInvalid:
			invalid++
		default:
			pending++
		}
	}
	run = run.
		WithTotalItems(len(items)).
		WithCounters(importrun.Counters{Pending: pending, Invalid: invalid}).
		WithStatus(importrun.StatusReviewReady)
	if _, err := w.runs.Update(ctx, run); err != nil {
		return err
	}
	extractionRuns.WithLabelValues(string(importrun.StatusReviewReady)).Inc()
	return nil
}

// reportPhase persists each phase transition so pollers observe progress.
// Persistence errors only log; progress display is best-effort.
func (w *ExtractionWorker) reportPhase(run *importrun.ImportRun) extraction.ProgressFunc {
	return func(ctx context.Context, phase importrun.PhaseKey) {
		if _, ok := importrun.PhaseInfoFor(phase); !ok {
			w.log.WithField("phase", phase).Warn("provider reported unknown phase")
			return
		}
		updated, err := w.runs.Update(ctx, run.WithPhase(phase))
		if err != nil {
			w.log.WithError(err).WithField("run_id", run.ID()).Warn("phase update failed")
			return
		}
		*run = updated
	}
}

func (w *ExtractionWorker) fail(ctx context.Context, run importrun.ImportRun, cause error) error {
	extractionRuns.WithLabelValues(string(importrun.StatusFailed)).Inc()
	_, err := w.runs.Update(ctx, run.WithStatus(importrun.StatusFailed).WithError(cause.Error()))
	if err != nil {
		w.log.WithError(err).WithField("run_id", run.ID()).Error("could not mark run failed")
	}
	return cause
}

// normalize turns the provider result into import items. Locations the
// provider could not describe still own their projects; projects with no
// location at all become top-level project items.
func (w *ExtractionWorker) normalize(ctx context.Context, run importrun.ImportRun, result extraction.Result) []importitem.ImportItem {
	var items []importitem.ImportItem
	position := 0

	for _, loc := range result.Locations {
		fields, decodeErr := importitem.DecodeLocationFields(loc.Fields)
		invalid := decodeErr != nil || fields.Validate() != nil || w.belowThreshold(loc.Confidence)
		needsReview := !invalid && fields.Address == ""

		var dups []importitem.DuplicateCandidate
		if !invalid && w.duplicates != nil {
			found, err := w.duplicates.LocationDuplicates(ctx, run.TenantID(), fields)
			if err != nil {
				w.log.WithError(err).Warn("location duplicate lookup failed")
			} else {
				dups = found
			}
		}

		parent := importitem.New(importitem.NewParams{
			RunID:       run.ID(),
			Kind:        importitem.KindLocation,
			Confidence:  clampConfidence(loc.Confidence),
			Raw:         rawOrFields(loc.Raw, loc.Fields),
			Normalized:  importitem.EncodeLocationFields(fields),
			Duplicates:  dups,
			NeedsReview: needsReview,
			Invalid:     invalid,
			Position:    position,
		})
		position++
		items = append(items, parent)

		parentID := parent.ID()
		for _, proj := range loc.Projects {
			items = append(items, w.projectItem(ctx, run, proj, &parentID, position))
			position++
		}
	}

	for _, proj := range result.Orphans {
		items = append(items, w.projectItem(ctx, run, proj, nil, position))
		position++
	}
	return items
}

func (w *ExtractionWorker) projectItem(ctx context.Context, run importrun.ImportRun, proj extraction.ExtractedProject, parentID *uuid.UUID, position int) importitem.ImportItem {
	fields, decodeErr := importitem.DecodeProjectFields(proj.Fields)
	invalid := decodeErr != nil || fields.Validate() != nil || w.belowThreshold(proj.Confidence)
	needsReview := !invalid && fields.StreamCategory == ""

	var dups []importitem.DuplicateCandidate
	if !invalid && w.duplicates != nil {
		found, err := w.duplicates.ProjectDuplicates(ctx, run.TenantID(), fields)
		if err != nil {
			w.log.WithError(err).Warn("project duplicate lookup failed")
		} else {
			dups = found
		}
	}

	return importitem.New(importitem.NewParams{
		RunID:        run.ID(),
		Kind:         importitem.KindProject,
		Confidence:   clampConfidence(proj.Confidence),
		Raw:          rawOrFields(proj.Raw, proj.Fields),
		Normalized:   importitem.EncodeProjectFields(fields),
		ParentItemID: parentID,
		Duplicates:   dups,
		NeedsReview:  needsReview,
		Invalid:      invalid,
		Position:     position,
	})
}

func (w *ExtractionWorker) belowThreshold(confidence *int32) bool {
	return confidence != nil && *confidence < w.confidenceThreshold
}

func clampConfidence(confidence *int32) *int32 {
	if confidence == nil {
		return nil
	}
	c := *confidence
	if c < 0 {
		c = 0
	}
	if c > 100 {
		c = 100
	}
	return &c
}

func rawOrFields(raw, fields json.RawMessage) json.RawMessage {
	if len(raw) > 0 {
		return raw
	}
	return fields
}
