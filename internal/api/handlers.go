package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/coordinator"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/export"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/journal"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/store"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Handler handles HTTP requests.
type Handler struct {
	store   *store.Store
	coord   *coordinator.Coordinator
	journal *journal.Journal
}

func NewHandler(st *store.Store, coord *coordinator.Coordinator, j *journal.Journal) *Handler {
	return &Handler{
		store:   st,
		coord:   coord,
		journal: j,
	}
}

// Document handlers

func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	doc, err := h.store.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(doc)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs := h.store.List()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := h.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.Delete(id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetSnapshot serves the document's persisted snapshot JSON verbatim.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	data, err := h.store.Snapshot(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// GetStatus reports the document's sync loop phase and read-only flag.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := h.store.Get(id); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"documentId": id,
		"state":      h.coord.State(id),
		"readOnly":   h.store.ReadOnly(id),
	})
}

// Change handlers

// SubmitChange accepts a change over plain HTTP, for clients that do not hold
// a live session. The body is the same change message the websocket carries;
// the origin field is honored here since there is no session to infer it from.
func (h *Handler) SubmitChange(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var msg models.WireMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !msg.Origin.Valid() {
		http.Error(w, "origin must be canvas, file, or runtime", http.StatusBadRequest)
		return
	}

	ev := msg.ChangeEvent(msg.Origin, id)
	if ev.Operation == models.OpCreate && ev.ElementID == "" {
		ev.ElementID = uuid.NewString()
		if ev.Payload != nil {
			ev.Payload.ID = ev.ElementID
		}
	}

	if err := h.coord.Submit(ev); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"eventId":   ev.ID,
		"elementId": ev.ElementID,
	})
}

// GetHistory returns the journaled change history for a document, newest
// first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}

	entries, err := h.journal.Recent(r.Context(), id, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"documentId": id,
		"entries":    entries,
		"count":      len(entries),
	})
}

// Export handlers

func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	doc, err := h.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Name+`.pdf"`)
	if err := export.PDF(w, doc); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError maps structured sync errors to HTTP status codes using the same
// codes the websocket error messages carry.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch models.CodeOf(err) {
	case models.CodeValidation:
		status = http.StatusBadRequest
	case models.CodeStaleRevision:
		status = http.StatusConflict
	case models.CodeNotFound:
		status = http.StatusNotFound
	case models.CodePersistence:
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    models.CodeOf(err),
		"message": err.Error(),
	})
}
