package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mizutanik/kakeibo/internal/api/middleware"
	"github.com/mizutanik/kakeibo/internal/csvingest"
	"github.com/mizutanik/kakeibo/internal/extract"
	"github.com/mizutanik/kakeibo/internal/presets"
)

// maxCSVBytes caps one statement upload. Card statements are small;
// 8 MB is generous.
const maxCSVBytes = 8 << 20

// CSVHandler handles the statement ingestion endpoints. Ingestion state
// is per user and lives for the lifetime of the process.
type CSVHandler struct {
	mu      sync.Mutex
	byUser  map[string]*userCSVState
	client  csvClient
	presets *presets.Service
	log     zerolog.Logger
}

type csvClient interface {
	csvingest.AnalyzeClient
	csvingest.SaveClient
}

// userCSVState is one user's ingestor plus the state of a running or
// finished batch save.
type userCSVState struct {
	ingestor *csvingest.Ingestor

	saveMu   sync.Mutex
	saving   bool
	progress csvingest.Progress
	waitLeft int
	saveErr  string

	// Captured before the ingestor is reset after a full save, so the
	// completed-save response can still offer to store the inferred
	// mapping as a preset.
	offerPresetSave bool
	savedMapping    *extract.CSVMapping
}

// NewCSVHandler creates a CSV handler.
func NewCSVHandler(client csvClient, presetSvc *presets.Service, log zerolog.Logger) *CSVHandler {
	return &CSVHandler{
		byUser:  make(map[string]*userCSVState),
		client:  client,
		presets: presetSvc,
		log:     log,
	}
}

func (h *CSVHandler) state(userID string) *userCSVState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.byUser[userID]
	if !ok {
		st = &userCSVState{ingestor: csvingest.NewIngestor(h.client, h.log)}
		h.byUser[userID] = st
	}
	return st
}

// Upload handles POST /api/csv/file. The multipart form carries the
// statement under "file"; selecting a new file discards previous rows
// but keeps the selected preset.
func (h *CSVHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVBytes)
	if err := r.ParseMultipartForm(maxCSVBytes); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart request")
		return
	}

	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "No file in upload")
		return
	}
	f, err := fhs[0].Open()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Unreadable file")
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Unreadable file")
		return
	}

	sess := middleware.SessionFrom(r.Context())
	st := h.state(sess.UserID)
	if err := st.ingestor.LoadFile(data); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "File is not valid UTF-8 or Shift_JIS text")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"filename": fhs[0].Filename,
		"status":   "loaded",
	})
}

// Analyze handles POST /api/csv/analyze. An optional preset_id selects
// a saved mapping; without one the backend infers the mapping.
func (h *CSVHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PresetID string `json:"preset_id"`
	}
	if r.Body != nil {
		// An empty body means inference; a malformed one is rejected.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	sess := middleware.SessionFrom(r.Context())
	st := h.state(sess.UserID)

	var mapping *extract.CSVMapping
	if req.PresetID != "" {
		p, err := h.presets.Find(r.Context(), sess.UserID, req.PresetID)
		if err != nil {
			middleware.WriteError(w, http.StatusNotFound, "Preset not found")
			return
		}
		m := p.Mapping
		mapping = &m
		st.ingestor.SelectPreset(req.PresetID)
	} else {
		st.ingestor.SelectPreset("")
	}

	err := st.ingestor.Analyze(r.Context(), sess, mapping)
	switch {
	case errors.Is(err, extract.ErrNoTransactions):
		// The loaded text survives so the user can retry with another
		// preset or let the backend infer.
		middleware.WriteError(w, http.StatusUnprocessableEntity, "No transactions matched; try another preset or automatic analysis")
		return
	case errors.Is(err, csvingest.ErrNoFile):
		middleware.WriteError(w, http.StatusConflict, "No statement file loaded")
		return
	case err != nil:
		h.log.Error().Err(err).Msg("CSV analysis failed")
		middleware.WriteError(w, http.StatusBadGateway, "Analysis failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rows":               st.ingestor.Rows(),
		"mapping":            st.ingestor.Mapping(),
		"offer_preset_save":  st.ingestor.ShouldOfferPresetSave(),
		"selected_preset_id": st.ingestor.SelectedPreset(),
	})
}

// Rows handles GET /api/csv/rows.
func (h *CSVHandler) Rows(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	st := h.state(sess.UserID)
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"rows": st.ingestor.Rows(),
	})
}

// UpdateRow handles PUT /api/csv/rows/{index}.
func (h *CSVHandler) UpdateRow(w http.ResponseWriter, r *http.Request, index int) {
	var row csvingest.Row
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sess := middleware.SessionFrom(r.Context())
	h.state(sess.UserID).ingestor.UpdateRow(index, row)
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// DeleteRow handles DELETE /api/csv/rows/{index}.
func (h *CSVHandler) DeleteRow(w http.ResponseWriter, r *http.Request, index int) {
	sess := middleware.SessionFrom(r.Context())
	h.state(sess.UserID).ingestor.DeleteRow(index)
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Save handles POST /api/csv/save. The batch save runs in the
// background because a rate-limited month can hold the schedule for 90
// seconds at a time; the client polls SaveStatus.
func (h *CSVHandler) Save(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	st := h.state(sess.UserID)

	rows := st.ingestor.Rows()
	if len(rows) == 0 {
		middleware.WriteError(w, http.StatusConflict, "No rows to save")
		return
	}

	st.saveMu.Lock()
	if st.saving {
		st.saveMu.Unlock()
		middleware.WriteError(w, http.StatusConflict, "A save is already running")
		return
	}
	st.saving = true
	st.saveErr = ""
	st.progress = csvingest.Progress{}
	st.waitLeft = 0
	st.offerPresetSave = false
	st.savedMapping = nil
	st.saveMu.Unlock()

	scheduler := csvingest.NewScheduler(h.client, h.log)
	scheduler.OnProgress = func(p csvingest.Progress) {
		st.saveMu.Lock()
		st.progress = p
		st.waitLeft = 0
		st.saveMu.Unlock()
	}
	scheduler.OnWait = func(secondsLeft int) {
		st.saveMu.Lock()
		st.waitLeft = secondsLeft
		st.saveMu.Unlock()
	}

	ctx := context.WithoutCancel(r.Context())
	go func() {
		err := scheduler.SaveAll(ctx, sess, rows)

		var offer bool
		var mapping *extract.CSVMapping
		if err == nil {
			// The reset wipes the mapping, so the preset offer is
			// captured first and reported through SaveStatus.
			offer = st.ingestor.ShouldOfferPresetSave()
			mapping = st.ingestor.Mapping()
			st.ingestor.Reset()
		}

		st.saveMu.Lock()
		st.saving = false
		if err != nil {
			st.saveErr = err.Error()
		} else {
			st.offerPresetSave = offer
			st.savedMapping = mapping
		}
		st.saveMu.Unlock()
	}()

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "saving"})
}

// ClearSelection drops the user's preset selection when the given
// preset disappears. Called by the presets handler after a delete.
func (h *CSVHandler) ClearSelection(userID, presetID string) {
	h.mu.Lock()
	st, ok := h.byUser[userID]
	h.mu.Unlock()
	if ok {
		st.ingestor.ClearPresetIfSelected(presetID)
	}
}

// SaveStatus handles GET /api/csv/save.
func (h *CSVHandler) SaveStatus(w http.ResponseWriter, r *http.Request) {
	sess := middleware.SessionFrom(r.Context())
	st := h.state(sess.UserID)

	st.saveMu.Lock()
	defer st.saveMu.Unlock()
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"saving":            st.saving,
		"progress":          st.progress,
		"wait_seconds_left": st.waitLeft,
		"error":             st.saveErr,
		"offer_preset_save": st.offerPresetSave,
		"mapping":           st.savedMapping,
	})
}
