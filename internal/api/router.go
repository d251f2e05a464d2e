package api

import (
	"net/http"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/middleware"

	"github.com/gorilla/mux"
)

func SetupRoutes(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing first, then recovery, then CORS.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Document endpoints
	api.HandleFunc("/documents", h.CreateDocument).Methods("POST")
	api.HandleFunc("/documents", h.ListDocuments).Methods("GET")
	api.HandleFunc("/documents/{id}", h.GetDocument).Methods("GET")
	api.HandleFunc("/documents/{id}", h.DeleteDocument).Methods("DELETE")
	api.HandleFunc("/documents/{id}/snapshot", h.GetSnapshot).Methods("GET")
	api.HandleFunc("/documents/{id}/status", h.GetStatus).Methods("GET")

	// Change endpoints
	api.HandleFunc("/documents/{id}/changes", h.SubmitChange).Methods("POST")
	api.HandleFunc("/documents/{id}/history", h.GetHistory).Methods("GET")

	// Export endpoints
	api.HandleFunc("/documents/{id}/export/pdf", h.ExportPDF).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket routes
	r.HandleFunc("/ws/documents/{id}", h.HandleDocumentWebSocket)

	return r
}
