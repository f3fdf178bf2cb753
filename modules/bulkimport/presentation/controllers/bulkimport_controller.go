package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importitem"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/domain/aggregates/importrun"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/infrastructure/persistence"
	"github.com/reclaim-hq/reclaim/modules/bulkimport/services"
	"github.com/reclaim-hq/reclaim/pkg/constants"
	"github.com/reclaim-hq/reclaim/pkg/httpapi"
)

// statusByCode maps domain error codes to HTTP statuses for the envelope
// writer. Structured codes the map does not know fall back to 422; only
// unstructured errors degrade to 500.
var statusByCode = map[string]int{
	"UPLOAD_TOO_LARGE":      http.StatusRequestEntityTooLarge,
	"UNSUPPORTED_DOCUMENT":  http.StatusUnsupportedMediaType,
	"RUN_FINALIZED":         http.StatusConflict,
	"RUN_NOT_REVIEW_READY":  http.StatusConflict,
	"ITEMS_NEED_REVIEW":     http.StatusConflict,
	"ITEM_INVALID":          http.StatusUnprocessableEntity,
	"DUPLICATE_UNCONFIRMED": http.StatusUnprocessableEntity,
	"AMENDMENTS_REQUIRED":   http.StatusUnprocessableEntity,
	"GROUP_BUSY":            http.StatusConflict,
	"SESSION_NOT_FOUND":     http.StatusNotFound,
	"GROUP_NOT_FOUND":       http.StatusNotFound,
}

type BulkImportAPIController struct {
	runs     *services.RunService
	items    *services.ItemStoreService
	itemRepo importitem.Repository
	finalize *services.FinalizeService
	pageSize int
	basePath string
}

func NewBulkImportAPIController(
	runs *services.RunService,
	items *services.ItemStoreService,
	itemRepo importitem.Repository,
	finalize *services.FinalizeService,
	pageSize int,
) *BulkImportAPIController {
	return &BulkImportAPIController{
		runs:     runs,
		items:    items,
		itemRepo: itemRepo,
		finalize: finalize,
		pageSize: pageSize,
		basePath: "/bulk-import",
	}
}

func (c *BulkImportAPIController) Key() string {
	return c.basePath
}

func (c *BulkImportAPIController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/runs", c.Upload).Methods(http.MethodPost)
	router.HandleFunc("/runs/{id}", c.GetRun).Methods(http.MethodGet)
	router.HandleFunc("/runs/{id}/items", c.ListItems).Methods(http.MethodGet)
	router.HandleFunc("/runs/{id}/finalize", c.Finalize).Methods(http.MethodPost)
	router.HandleFunc("/items/{id}", c.PatchItem).Methods(http.MethodPatch)
}

func (c *BulkImportAPIController) Upload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("document")
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_UPLOAD", "multipart field 'document' is required", nil)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_UPLOAD", "could not read uploaded document", nil)
		return
	}

	run, err := c.runs.Upload(r.Context(), services.UploadRunDTO{
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		_ = httpapi.WriteDomainError(w, err, statusByCode)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusCreated, runPayload(run))
}

func (c *BulkImportAPIController) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	run, err := c.runs.GetByID(r.Context(), id)
	if errors.Is(err, persistence.ErrRunNotFound) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "RUN_NOT_FOUND", "import run not found", nil)
		return
	}
	if err != nil {
		_ = httpapi.WriteDomainError(w, err, statusByCode)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, runPayload(run))
}

func (c *BulkImportAPIController) ListItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var status *importitem.Status
	if v := r.URL.Query().Get("status"); v != "" {
		s := importitem.Status(v)
		switch s {
		case importitem.StatusPendingReview, importitem.StatusAccepted,
			importitem.StatusAmended, importitem.StatusRejected, importitem.StatusInvalid:
			status = &s
		default:
			_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_FILTER", "unknown status filter", map[string]string{"status": v})
			return
		}
	}

	// Explicit page requests read one backend page; without one the store
	// assembles the full snapshot.
	if r.URL.Query().Get("page") != "" {
		page := queryInt(r, "page", 1)
		result, err := c.itemRepo.ListPage(r.Context(), importitem.ListParams{
			RunID:    id,
			Page:     page,
			PageSize: c.pageSize,
			Status:   status,
		})
		if err != nil {
			_ = httpapi.WriteDomainError(w, err, statusByCode)
			return
		}
		_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"items": itemsPayload(result.Items),
			"page":  page,
			"pages": result.Pages,
			"total": result.Total,
		})
		return
	}

	items, err := c.items.Load(r.Context(), id, status)
	if err != nil {
		_ = httpapi.WriteDomainError(w, err, statusByCode)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]any{
		"items": itemsPayload(items),
		"total": len(items),
	})
}

func itemsPayload(items []importitem.ImportItem) []map[string]any {
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, itemPayload(item))
	}
	return payload
}

type patchItemDTO struct {
	Action           string          `json:"action" validate:"required,oneof=accept amend reject reset"`
	Amendments       json.RawMessage `json:"amendments,omitempty"`
	ReviewNotes      *string         `json:"reviewNotes,omitempty"`
	ConfirmCreateNew *bool           `json:"confirmCreateNew,omitempty"`
}

func (c *BulkImportAPIController) PatchItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var dto patchItemDTO
	if err := httpapi.DecodeJSON(r, &dto); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", nil)
		return
	}
	if err := constants.Validate.Struct(dto); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid review action payload", nil)
			return
		}
		_ = httpapi.WriteDomainError(w, err, statusByCode)
		return
	}

	item, err := c.items.Patch(r.Context(), id, importitem.ReviewAction(dto.Action), importitem.ApplyOptions{
		Amendments:       dto.Amendments,
		ReviewNotes:      dto.ReviewNotes,
		ConfirmCreateNew: dto.ConfirmCreateNew,
	})
	if errors.Is(err, persistence.ErrItemNotFound) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "ITEM_NOT_FOUND", "import item not found", nil)
		return
	}
	if err != nil {
		_ = httpapi.WriteDomainError(w, err, statusByCode)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, itemPayload(item))
}

func (c *BulkImportAPIController) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	summary, err := c.finalize.Finalize(r.Context(), id)
	if errors.Is(err, persistence.ErrRunNotFound) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "RUN_NOT_FOUND", "import run not found", nil)
		return
	}
	if err != nil {
		_ = httpapi.WriteDomainError(w, err, statusByCode)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, summary)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "path id is not a valid UUID", map[string]string{"param": name})
		return uuid.Nil, false
	}
	return id, true
}

func runPayload(run importrun.ImportRun) map[string]any {
	payload := map[string]any{
		"id":         run.ID(),
		"filename":   run.Filename(),
		"status":     run.Status(),
		"totalItems": run.TotalItems(),
		"counters":   countersPayload(run.Counters()),
		"progress":   importrun.ProgressFor(run),
		"createdAt":  run.CreatedAt().Format(time.RFC3339),
	}
	if info, ok := importrun.PhaseInfoFor(run.Phase()); ok {
		payload["phase"] = map[string]any{
			"key":         run.Phase(),
			"label":       info.Label,
			"description": info.Description,
		}
	}
	if run.ErrorMessage() != "" {
		payload["error"] = run.ErrorMessage()
	}
	return payload
}

func countersPayload(c importrun.Counters) map[string]int {
	return map[string]int{
		"pending":  c.Pending,
		"accepted": c.Accepted,
		"rejected": c.Rejected,
		"amended":  c.Amended,
		"invalid":  c.Invalid,
	}
}

func itemPayload(item importitem.ImportItem) map[string]any {
	payload := map[string]any{
		"id":               item.ID(),
		"runId":            item.RunID(),
		"kind":             item.Kind(),
		"status":           item.Status(),
		"raw":              item.Raw(),
		"normalized":       item.Normalized(),
		"confirmCreateNew": item.ConfirmCreateNew(),
		"needsReview":      item.NeedsReview(),
		"position":         item.Position(),
	}
	if item.Confidence() != nil {
		payload["confidence"] = *item.Confidence()
	}
	if len(item.Amendments()) > 0 {
		payload["amendments"] = item.Amendments()
	}
	if item.ParentItemID() != nil {
		payload["parentItemId"] = *item.ParentItemID()
	}
	if item.HasDuplicates() {
		payload["duplicates"] = item.Duplicates()
	}
	if item.ReviewNotes() != "" {
		payload["reviewNotes"] = item.ReviewNotes()
	}
	return payload
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
