package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/pkg/eventbus"
)

// FinalizeService performs the one-shot, irreversible commit of accepted
// items into permanent entities.
type FinalizeService struct {
	runs   importrun.Repository
	store  *ItemStoreService
	review *ReviewService
	bus    eventbus.EventBus
	log    *logrus.Logger
}

func NewFinalizeService(
	runs importrun.Repository,
	store *ItemStoreService,
	review *ReviewService,
	bus eventbus.EventBus,
	log *logrus.Logger,
) *FinalizeService {
	return &FinalizeService{runs: runs, store: store, review: review, bus: bus, log: log}
}

// Finalize refuses client-side when an accepted or amended item still carries
// an unresolved needs-review marker, with the same error code the backend
// would use for the matching condition, so callers handle both identically.
func (s *FinalizeService) Finalize(ctx context.Context, runID uuid.UUID) (importrun.FinalizeSummary, error) {
	items, err := s.store.Load(ctx, runID, nil)
	if err != nil {
		return importrun.FinalizeSummary{}, err
	}
	for _, item := range items {
		switch item.Status() {
		case importitem.StatusAccepted, importitem.StatusAmended:
			if item.NeedsReview() {
				return importrun.FinalizeSummary{}, importrun.ErrItemsNeedReview
			}
		}
	}

	summary, err := s.runs.Finalize(ctx, runID)
	if err != nil {
		return importrun.FinalizeSummary{}, err
	}

	s.review.MarkFinalized(runID)
	runsFinalized.Inc()

	run, err := s.runs.GetByID(ctx, runID)
	if err == nil {
		s.bus.Publish(importrun.FinalizedEvent{Run: run, Summary: summary})
	} else {
		s.log.WithError(err).WithField("run_id", runID).Warn("finalized run could not be re-read for event publish")
	}
	return summary, nil
}
