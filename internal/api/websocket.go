package api

import (
	"log"
	"net/http"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/bridge"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The editor webview and the dev-server runtime connect from arbitrary
	// local origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleDocumentWebSocket upgrades a connection and attaches it to the
// document's sync loop as the declared participant.
func (h *Handler) HandleDocumentWebSocket(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["id"]

	participant := models.Origin(r.URL.Query().Get("participant"))
	if participant != models.OriginCanvas && participant != models.OriginRuntime {
		http.Error(w, "participant must be canvas or runtime", http.StatusBadRequest)
		return
	}

	if _, err := h.store.Get(documentID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("⚠️  WebSocket upgrade failed: %v", err)
		return
	}

	s := bridge.NewWSSession(conn, documentID, participant, h.coord)
	if err := h.coord.Attach(s); err != nil {
		s.Send(models.ErrorMessage(err, ""))
		s.Close()
		return
	}
}
