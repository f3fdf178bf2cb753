package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/infrastructure/extraction"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/infrastructure/persistence"
	"github.com/reclaim-hq/reclaim/pkg/eventbus"
)

type failingProvider struct{}

func (failingProvider) Extract(context.Context, []byte, string, extraction.ProgressFunc) (extraction.Result, error) {
	return extraction.Result{}, errors.New("model unavailable")
}

type fixedDuplicateFinder struct {
	name string
}

func (f fixedDuplicateFinder) LocationDuplicates(_ context.Context, _ uuid.UUID, fields importitem.LocationFields) ([]importitem.DuplicateCandidate, error) {
	if fields.Name != f.name {
		return nil, nil
	}
	return []importitem.DuplicateCandidate{
		{EntityID: uuid.New(), Name: f.name, Reason: "existing location with the same name"},
	}, nil
}

func (f fixedDuplicateFinder) ProjectDuplicates(context.Context, uuid.UUID, importitem.ProjectFields) ([]importitem.DuplicateCandidate, error) {
	return nil, nil
}

type workerFixture struct {
	worker *ExtractionWorker
	runs   *persistence.InmemImportRunRepository
	items  *persistence.InmemImportItemRepository
	docs   *memDocumentStorage
}

func newWorkerFixture(t *testing.T, provider extraction.Provider, duplicates DuplicateFinder) *workerFixture {
	t.Helper()
	items := persistence.NewInmemImportItemRepository()
	runs := persistence.NewInmemImportRunRepository(items)
	docs := newMemDocumentStorage()
	worker := NewExtractionWorker(runs, items, docs, provider, duplicates, 30, time.Minute, testLogger())
	return &workerFixture{worker: worker, runs: runs, items: items, docs: docs}
}

func (f *workerFixture) uploadRun(t *testing.T, document string) (importrun.ImportRun, string) {
	t.Helper()
	ctx := context.Background()
	run := importrun.New(uuid.New(), "sites.txt")
	created, err := f.runs.Create(ctx, run)
	require.NoError(t, err)
	path, err := f.docs.Save(ctx, created.ID(), "sites.txt", []byte(document))
	require.NoError(t, err)
	return created, path
}

func (f *workerFixture) runItems(t *testing.T, runID uuid.UUID) []importitem.ImportItem {
	t.Helper()
	res, err := f.items.ListPage(context.Background(), importitem.ListParams{RunID: runID, Page: 1, PageSize: 100})
	require.NoError(t, err)
	return res.Items
}

func TestWorker_ExtractsLocationsAndProjects(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, extraction.NewStubProvider(), nil)
	run, path := f.uploadRun(t, `
location: Riverside Plant|12 River Rd|Springfield
project: Cardboard|paper|10|t
project: Scrap Metal|metal|2|t
location: Harbor Depot
project: Organics|organic|5|t
`)

	require.NoError(t, f.worker.Process(context.Background(), run.ID(), path))

	updated, err := f.runs.GetByID(context.Background(), run.ID())
	require.NoError(t, err)
	require.Equal(t, importrun.StatusReviewReady, updated.Status())
	require.Equal(t, 5, updated.TotalItems())
	require.Equal(t, 5, updated.Counters().Pending)

	items := f.runItems(t, run.ID())
	require.Len(t, items, 5)

	require.Equal(t, importitem.KindLocation, items[0].Kind())
	fields, err := importitem.DecodeLocationFields(items[0].Normalized())
	require.NoError(t, err)
	require.Equal(t, "Riverside Plant", fields.Name)
	require.Equal(t, "12 River Rd", fields.Address)

	// Projects point at the location that precedes them.
	require.Equal(t, importitem.KindProject, items[1].Kind())
	require.NotNil(t, items[1].ParentItemID())
	require.Equal(t, items[0].ID(), *items[1].ParentItemID())
	require.Equal(t, items[0].ID(), *items[2].ParentItemID())
	require.Equal(t, items[3].ID(), *items[4].ParentItemID())
}

func TestWorker_EmptyDocumentEndsNoData(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, extraction.NewStubProvider(), nil)
	run, path := f.uploadRun(t, "# nothing usable in here\n")

	require.NoError(t, f.worker.Process(context.Background(), run.ID(), path))

	updated, err := f.runs.GetByID(context.Background(), run.ID())
	require.NoError(t, err)
	require.Equal(t, importrun.StatusNoData, updated.Status())
	require.Empty(t, f.runItems(t, run.ID()))
}

func TestWorker_ProviderErrorEndsFailed(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, failingProvider{}, nil)
	run, path := f.uploadRun(t, "location: Somewhere\n")

	err := f.worker.Process(context.Background(), run.ID(), path)
	require.Error(t, err)

	updated, err := f.runs.GetByID(context.Background(), run.ID())
	require.NoError(t, err)
	require.Equal(t, importrun.StatusFailed, updated.Status())
	require.Contains(t, updated.ErrorMessage(), "model unavailable")
}

func TestWorker_TerminalRunIsLeftAlone(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, extraction.NewStubProvider(), nil)
	run, path := f.uploadRun(t, "location: Somewhere\n")

	ctx := context.Background()
	stored, err := f.runs.GetByID(ctx, run.ID())
	require.NoError(t, err)
	_, err = f.runs.Update(ctx, stored.WithStatus(importrun.StatusFailed))
	require.NoError(t, err)

	require.NoError(t, f.worker.Process(ctx, run.ID(), path))

	updated, err := f.runs.GetByID(ctx, run.ID())
	require.NoError(t, err)
	require.Equal(t, importrun.StatusFailed, updated.Status())
	require.Empty(t, f.runItems(t, run.ID()))
}

func TestWorker_LowConfidenceItemsAreInvalid(t *testing.T) {
	t.Parallel()

	provider := extraction.NewStubProvider()
	provider.Confidence = 10 // below the fixture threshold of 30
	f := newWorkerFixture(t, provider, nil)
	run, path := f.uploadRun(t, "location: Murky Scan\nproject: Unreadable|misc|1|t\n")

	require.NoError(t, f.worker.Process(context.Background(), run.ID(), path))

	updated, err := f.runs.GetByID(context.Background(), run.ID())
	require.NoError(t, err)
	require.Equal(t, importrun.StatusReviewReady, updated.Status())
	require.Equal(t, 2, updated.Counters().Invalid)
	require.Zero(t, updated.Counters().Pending)

	for _, item := range f.runItems(t, run.ID()) {
		require.Equal(t, importitem.StatusInvalid, item.Status())
	}
}

func TestWorker_AttachesDuplicateCandidates(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, extraction.NewStubProvider(), fixedDuplicateFinder{name: "Harbor Depot"})
	run, path := f.uploadRun(t, "location: Harbor Depot|1 Pier Way\nlocation: Fresh Site|2 New St\n")

	require.NoError(t, f.worker.Process(context.Background(), run.ID(), path))

	items := f.runItems(t, run.ID())
	require.Len(t, items, 2)
	require.True(t, items[0].HasDuplicates())
	require.False(t, items[0].ConfirmCreateNew())
	require.False(t, items[1].HasDuplicates())
}

func TestWorker_EventSubscriptionDrivesProcessing(t *testing.T) {
	t.Parallel()

	f := newWorkerFixture(t, extraction.NewStubProvider(), nil)
	run, path := f.uploadRun(t, "location: Riverside Plant|12 River Rd\n")

	bus := eventbus.NewEventPublisher(testLogger())
	f.worker.Register(bus)
	bus.Publish(importrun.CreatedEvent{Run: run, DocumentPath: path})

	updated, err := f.runs.GetByID(context.Background(), run.ID())
	require.NoError(t, err)
	require.Equal(t, importrun.StatusReviewReady, updated.Status())
}
