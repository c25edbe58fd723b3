// Package handlers implements the gateway's HTTP endpoints. Every
// handler expects the Auth middleware to have attached a session to the
// request context.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/api/middleware"
	"github.com/mizutanik/kakeibo/internal/editor"
	"github.com/mizutanik/kakeibo/internal/tasks"
)

// maxUploadBytes caps one upload request. Receipt photos are a few MB
// each; 64 MB leaves room for combined batches.
const maxUploadBytes = 64 << 20

// TasksHandler handles the receipt upload task endpoints.
type TasksHandler struct {
	manager *tasks.Manager
	log     zerolog.Logger
}

// NewTasksHandler creates a tasks handler.
func NewTasksHandler(manager *tasks.Manager, log zerolog.Logger) *TasksHandler {
	return &TasksHandler{manager: manager, log: log}
}

// Upload handles POST /api/tasks. The multipart form carries the images
// under "files" and an optional "combine" field; combine=true analyzes
// all images as one receipt.
func (h *TasksHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	var files []tasks.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Unreadable file in upload")
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Unreadable file in upload")
			return
		}
		files = append(files, tasks.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	if len(files) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No files in upload")
		return
	}

	combine := r.FormValue("combine") == "true"
	created, err := h.manager.AddFiles(r.Context(), files, combine)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue upload")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"tasks": created,
		"count": len(created),
	})
}

// List handles GET /api/tasks.
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	all, review := h.manager.Snapshot()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tasks":           all,
		"review":          review,
		"session_expired": h.manager.AuthExpired(),
	})
}

// Analyze handles POST /api/tasks/analyze and starts every idle task.
func (h *TasksHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())

	// Analysis outlives the request; the client polls GET /api/tasks.
	started := h.manager.StartAll(context.WithoutCancel(r.Context()), sess)
	middleware.WriteJSON(w, http.StatusAccepted, map[string]int{"started": started})
}

// Delete handles DELETE /api/tasks/{id}.
func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request, taskID string) {
	err := h.manager.DeleteTask(taskID)
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, tasks.ErrTaskBusy):
		middleware.WriteError(w, http.StatusConflict, "Task cannot be deleted right now")
	case err != nil:
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete task")
	default:
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"deleted": taskID})
	}
}

// StartEdit handles POST /api/tasks/{id}/edit and opens review at the
// task's first extracted record.
func (h *TasksHandler) StartEdit(w http.ResponseWriter, r *http.Request, taskID string) {
	record, err := h.manager.StartEdit(taskID)
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Task not found")
		return
	case errors.Is(err, tasks.ErrNoResults):
		middleware.WriteError(w, http.StatusConflict, "Task has no records to review")
		return
	case err != nil:
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to open review")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"record": record})
}

// Current handles GET /api/review.
func (h *TasksHandler) Current(w http.ResponseWriter, r *http.Request) {
	record, state, err := h.manager.Current()
	if errors.Is(err, tasks.ErrNotReviewing) {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{"review": nil})
		return
	}
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read review state")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"review": state,
		"record": record,
	})
}

// reviewForm is the editable record shape submitted from review.
type reviewForm struct {
	PurchaseDate  string `json:"purchase_date"`
	StoreName     string `json:"store_name"`
	PaymentMethod string `json:"payment_method"`
	Items         []struct {
		Name  string `json:"name"`
		Price string `json:"price"`
	} `json:"items"`
}

// Save handles POST /api/review/save. The body carries the possibly
// edited record; it is validated before anything is persisted, and a
// validation failure leaves the review position unchanged.
func (h *TasksHandler) Save(w http.ResponseWriter, r *http.Request) {
	var form reviewForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	buf := editor.NewBlankBuffer()
	buf.PurchaseDate = form.PurchaseDate
	buf.StoreName = form.StoreName
	buf.PaymentMethod = form.PaymentMethod
	buf.Items = nil
	for _, it := range form.Items {
		buf.Items = append(buf.Items, editor.Item{Name: it.Name, Price: it.Price})
	}

	record, err := buf.Build()
	if err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	sess := middleware.SessionFrom(r.Context())
	if err := h.manager.SaveCurrent(r.Context(), sess, record); err != nil {
		if errors.Is(err, tasks.ErrNotReviewing) {
			middleware.WriteError(w, http.StatusConflict, "No record is under review")
			return
		}
		h.log.Error().Err(err).Msg("Failed to save record")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to save record")
		return
	}

	h.Current(w, r)
}

// Skip handles POST /api/review/skip.
func (h *TasksHandler) Skip(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.SkipCurrent(); err != nil {
		if errors.Is(err, tasks.ErrNotReviewing) {
			middleware.WriteError(w, http.StatusConflict, "No record is under review")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to skip record")
		return
	}
	h.Current(w, r)
}
