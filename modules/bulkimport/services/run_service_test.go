package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/infrastructure/persistence"
	"github.com/reclaim-hq/reclaim/pkg/composables"
	"github.com/reclaim-hq/reclaim/pkg/eventbus"
	"github.com/reclaim-hq/reclaim/pkg/serrors"
)

// memDocumentStorage keeps uploaded documents in a map, keyed by the path it
// hands back.
type memDocumentStorage struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemDocumentStorage() *memDocumentStorage {
	return &memDocumentStorage{docs: make(map[string][]byte)}
}

func (s *memDocumentStorage) Save(_ context.Context, runID uuid.UUID, filename string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := runID.String() + "/" + filename
	s.docs[path] = data
	return path, nil
}

func (s *memDocumentStorage) Read(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, found := s.docs[path]
	if !found {
		return nil, persistence.ErrRunNotFound
	}
	return data, nil
}

func tenantCtx() context.Context {
	return composables.WithTenantID(context.Background(), uuid.New())
}

func TestUpload_AcceptsCSVAndPublishesCreated(t *testing.T) {
	t.Parallel()

	items := persistence.NewInmemImportItemRepository()
	runs := persistence.NewInmemImportRunRepository(items)
	bus := eventbus.NewEventPublisher(testLogger())
	docs := newMemDocumentStorage()
	svc := NewRunService(runs, docs, bus, 1<<20, testLogger())

	var events []importrun.CreatedEvent
	bus.Subscribe(func(event importrun.CreatedEvent) {
		events = append(events, event)
	})

	data := []byte("name,address\nRiverside Plant,12 River Rd\n")
	run, err := svc.Upload(tenantCtx(), UploadRunDTO{Filename: "sites.csv", Data: data})
	require.NoError(t, err)
	require.Equal(t, importrun.StatusUploaded, run.Status())
	require.Equal(t, "sites.csv", run.Filename())

	stored, err := runs.GetByID(context.Background(), run.ID())
	require.NoError(t, err)
	require.Equal(t, run.ID(), stored.ID())

	require.Len(t, events, 1)
	require.Equal(t, run.ID(), events[0].Run.ID())

	saved, err := docs.Read(context.Background(), events[0].DocumentPath)
	require.NoError(t, err)
	require.Equal(t, data, saved)
}

func TestUpload_RejectsOversizedDocument(t *testing.T) {
	t.Parallel()

	items := persistence.NewInmemImportItemRepository()
	runs := persistence.NewInmemImportRunRepository(items)
	svc := NewRunService(runs, newMemDocumentStorage(), eventbus.NewEventPublisher(testLogger()), 8, testLogger())

	_, err := svc.Upload(tenantCtx(), UploadRunDTO{Filename: "big.csv", Data: []byte("far too large for the limit")})
	require.ErrorIs(t, err, ErrUploadTooLarge)
	require.Equal(t, "UPLOAD_TOO_LARGE", serrors.Code(err))
}

func TestUpload_RejectsUnsupportedDocumentType(t *testing.T) {
	t.Parallel()

	items := persistence.NewInmemImportItemRepository()
	runs := persistence.NewInmemImportRunRepository(items)
	svc := NewRunService(runs, newMemDocumentStorage(), eventbus.NewEventPublisher(testLogger()), 1<<20, testLogger())

	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	_, err := svc.Upload(tenantCtx(), UploadRunDTO{Filename: "diagram.png", Data: png})
	require.ErrorIs(t, err, ErrUnsupportedDocument)
	require.Equal(t, "UNSUPPORTED_DOCUMENT", serrors.Code(err))
}

func TestUpload_AcceptsPDFMagic(t *testing.T) {
	t.Parallel()

	items := persistence.NewInmemImportItemRepository()
	runs := persistence.NewInmemImportRunRepository(items)
	svc := NewRunService(runs, newMemDocumentStorage(), eventbus.NewEventPublisher(testLogger()), 1<<20, testLogger())

	pdf := append([]byte("%PDF-1.7\n"), []byte("%%EOF")...)
	_, err := svc.Upload(tenantCtx(), UploadRunDTO{Filename: "contract.pdf", Data: pdf})
	require.NoError(t, err)
}
