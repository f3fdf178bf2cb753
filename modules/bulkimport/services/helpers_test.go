package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// stubRunRepository answers GetByID from a scripted sequence; the last entry
// repeats once the script runs out.
type runResponse struct {
	run importrun.ImportRun
	err error
}

type stubRunRepository struct {
	mu        sync.Mutex
	responses []runResponse
	calls     int

	counters importrun.Counters
}

func (r *stubRunRepository) GetByID(_ context.Context, _ uuid.UUID) (importrun.ImportRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.responses) == 0 {
		return importrun.ImportRun{}, fmt.Errorf("no scripted response")
	}
	i := r.calls
	if i >= len(r.responses) {
		i = len(r.responses) - 1
	}
	r.calls++
	resp := r.responses[i]
	return resp.run, resp.err
}

func (r *stubRunRepository) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *stubRunRepository) Create(_ context.Context, run importrun.ImportRun) (importrun.ImportRun, error) {
	return run, nil
}

func (r *stubRunRepository) Update(_ context.Context, run importrun.ImportRun) (importrun.ImportRun, error) {
	return run, nil
}

func (r *stubRunRepository) Counters(_ context.Context, _ uuid.UUID) (importrun.Counters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters, nil
}

func (r *stubRunRepository) Finalize(_ context.Context, _ uuid.UUID) (importrun.FinalizeSummary, error) {
	return importrun.FinalizeSummary{}, nil
}

func processingRun(runID uuid.UUID, phase importrun.PhaseKey) importrun.ImportRun {
	return importrun.Hydrate(
		runID, uuid.New(), "doc.csv", importrun.StatusProcessing, phase,
		0, importrun.Counters{}, "", time.Time{}, time.Time{},
	)
}

func runWithStatus(runID uuid.UUID, status importrun.Status) importrun.ImportRun {
	return importrun.Hydrate(
		runID, uuid.New(), "doc.csv", status, "",
		0, importrun.Counters{}, "", time.Time{}, time.Time{},
	)
}

// stubItemRepository drives list and review calls through function fields so
// each test scripts exactly the behavior it needs.
type stubItemRepository struct {
	mu          sync.Mutex
	listCalls   int
	listPage    func(call int, params importitem.ListParams) (importitem.ListResult, error)
	applyReview func(id uuid.UUID, action importitem.ReviewAction, opts importitem.ApplyOptions) (importitem.ImportItem, error)
}

func (r *stubItemRepository) BulkCreate(_ context.Context, _ []importitem.ImportItem) error {
	return nil
}

func (r *stubItemRepository) GetByID(_ context.Context, _ uuid.UUID) (importitem.ImportItem, error) {
	return importitem.ImportItem{}, fmt.Errorf("not scripted")
}

func (r *stubItemRepository) ListPage(_ context.Context, params importitem.ListParams) (importitem.ListResult, error) {
	r.mu.Lock()
	call := r.listCalls
	r.listCalls++
	fn := r.listPage
	r.mu.Unlock()
	if fn == nil {
		return importitem.ListResult{Pages: 1}, nil
	}
	return fn(call, params)
}

func (r *stubItemRepository) ApplyReview(_ context.Context, id uuid.UUID, action importitem.ReviewAction, opts importitem.ApplyOptions) (importitem.ImportItem, error) {
	r.mu.Lock()
	fn := r.applyReview
	r.mu.Unlock()
	if fn == nil {
		return importitem.ImportItem{}, fmt.Errorf("not scripted")
	}
	return fn(id, action, opts)
}

func (r *stubItemRepository) listCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listCalls
}

func locationItem(t *testing.T, runID uuid.UUID, name string, position int) importitem.ImportItem {
	t.Helper()
	return importitem.New(importitem.NewParams{
		RunID:      runID,
		Kind:       importitem.KindLocation,
		Normalized: json.RawMessage(fmt.Sprintf(`{"name":%q}`, name)),
		Position:   position,
	})
}

func projectItem(t *testing.T, runID uuid.UUID, name string, parent *uuid.UUID, position int) importitem.ImportItem {
	t.Helper()
	return importitem.New(importitem.NewParams{
		RunID:        runID,
		Kind:         importitem.KindProject,
		Normalized:   json.RawMessage(fmt.Sprintf(`{"name":%q}`, name)),
		ParentItemID: parent,
		Position:     position,
	})
}
