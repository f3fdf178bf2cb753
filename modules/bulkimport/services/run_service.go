package services

import (
	"context"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/pkg/composables"
	"github.com/reclaim-hq/reclaim/pkg/eventbus"
	"github.com/reclaim-hq/reclaim/pkg/serrors"
)

var (
	ErrUploadTooLarge = serrors.NewError(
		"UPLOAD_TOO_LARGE",
		"uploaded document exceeds the size limit",
		"BulkImport.Errors.UploadTooLarge",
	)
	ErrUnsupportedDocument = serrors.NewError(
		"UNSUPPORTED_DOCUMENT",
		"unsupported document type; upload a PDF, spreadsheet, CSV or plain text file",
		"BulkImport.Errors.UnsupportedDocument",
	)
)

// acceptedMIMEs lists document types the extraction pipeline can read.
var acceptedMIMEs = []string{
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/csv",
	"text/plain",
}

// DocumentStorage persists the uploaded source document. The transport that
// produced the bytes is an external concern.
type DocumentStorage interface {
	Save(ctx context.Context, runID uuid.UUID, filename string, data []byte) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
}

type UploadRunDTO struct {
	Filename string
	Data     []byte
	// LocationID scopes the run to a known location context, when reviewing
	// inside one.
	LocationID *uuid.UUID
}

// RunService owns upload intake and run reads.
type RunService struct {
	runs          importrun.Repository
	storage       DocumentStorage
	bus           eventbus.EventBus
	maxUploadSize int64
	log           *logrus.Logger
}

func NewRunService(
	runs importrun.Repository,
	storage DocumentStorage,
	bus eventbus.EventBus,
	maxUploadSize int64,
	log *logrus.Logger,
) *RunService {
	return &RunService{
		runs:          runs,
		storage:       storage,
		bus:           bus,
		maxUploadSize: maxUploadSize,
		log:           log,
	}
}

// Upload validates the document, stores it, creates the run and hands it to
// the extraction pipeline via the event bus.
func (s *RunService) Upload(ctx context.Context, dto UploadRunDTO) (importrun.ImportRun, error) {
	if int64(len(dto.Data)) > s.maxUploadSize {
		return importrun.ImportRun{}, ErrUploadTooLarge
	}
	mtype := mimetype.Detect(dto.Data)
	if !mimeAccepted(mtype) {
		return importrun.ImportRun{}, ErrUnsupportedDocument
	}

	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return importrun.ImportRun{}, err
	}

	run := importrun.New(tenantID, dto.Filename)
	created, err := s.runs.Create(ctx, run)
	if err != nil {
		return importrun.ImportRun{}, err
	}

	path, err := s.storage.Save(ctx, created.ID(), dto.Filename, dto.Data)
	if err != nil {
		return importrun.ImportRun{}, err
	}

	runsUploaded.Inc()
	s.log.WithFields(logrus.Fields{
		"run_id":   created.ID(),
		"filename": created.Filename(),
		"mime":     mtype.String(),
	}).Info("import run uploaded")
	s.bus.Publish(importrun.CreatedEvent{Run: created, DocumentPath: path})
	return created, nil
}

func (s *RunService) GetByID(ctx context.Context, id uuid.UUID) (importrun.ImportRun, error) {
	return s.runs.GetByID(ctx, id)
}

func mimeAccepted(mtype *mimetype.MIME) bool {
	for _, accepted := range acceptedMIMEs {
		if mtype.Is(accepted) {
			return true
		}
	}
	// CSVs without headers often sniff as generic text variants.
	return strings.HasPrefix(mtype.String(), "text/")
}
