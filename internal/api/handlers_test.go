package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/codegen"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/coordinator"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/journal"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/store"
	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/watcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	ws := t.TempDir()

	st, err := store.New(filepath.Join(ws, "snapshots"))
	require.NoError(t, err)
	jnl, err := journal.Open(filepath.Join(ws, "journal.db"))
	require.NoError(t, err)
	w, err := watcher.New(100 * time.Millisecond)
	require.NoError(t, err)

	coord := coordinator.New(st, codegen.New(), w, jnl, coordinator.Options{
		WorkspaceDir: ws,
		GracePeriod:  time.Hour,
	})
	coord.Start()

	srv := httptest.NewServer(SetupRoutes(NewHandler(st, coord, jnl)))
	t.Cleanup(func() {
		srv.Close()
		coord.Shutdown()
		w.Close()
		jnl.Close()
	})
	return srv, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestDocumentLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/documents", map[string]string{"name": "Landing Page"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var doc models.DesignDocument
	decode(t, resp, &doc)
	require.NotEmpty(t, doc.ID)

	resp, err := http.Get(srv.URL + "/api/documents/" + doc.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/documents")
	require.NoError(t, err)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, resp, &list)
	assert.Equal(t, 1, list.Count)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/documents/"+doc.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/api/documents/" + doc.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateDocumentValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/documents", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSubmitChangeAndHistory(t *testing.T) {
	srv, st := newTestServer(t)
	doc, err := st.Create(context.Background(), "Landing Page")
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/documents/"+doc.ID+"/changes", map[string]any{
		"type":      "change",
		"origin":    "canvas",
		"operation": "create",
		"revision":  1,
		"payload": map[string]any{
			"kind":     "rectangle",
			"geometry": map[string]any{"x": 40, "y": 24, "w": 120, "h": 40},
			"style":    map[string]any{"fill": "#007bff"},
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var accepted struct {
		EventID   string `json:"eventId"`
		ElementID string `json:"elementId"`
	}
	decode(t, resp, &accepted)
	assert.NotEmpty(t, accepted.ElementID, "creates without an id get one minted")

	require.Eventually(t, func() bool {
		got, err := st.Get(doc.ID)
		return err == nil && got.Element(accepted.ElementID) != nil
	}, 3*time.Second, 10*time.Millisecond)

	// The journal flushes in the background; poll the history endpoint.
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/documents/" + doc.ID + "/history")
		if err != nil {
			return false
		}
		var hist struct {
			Count int `json:"count"`
		}
		defer resp.Body.Close()
		if json.NewDecoder(resp.Body).Decode(&hist) != nil {
			return false
		}
		return hist.Count == 1
	}, 5*time.Second, 100*time.Millisecond)
}

func TestSubmitChangeRejectsBadOrigin(t *testing.T) {
	srv, st := newTestServer(t)
	doc, err := st.Create(context.Background(), "Landing Page")
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/api/documents/"+doc.ID+"/changes", map[string]any{
		"type":      "change",
		"origin":    "editor",
		"operation": "create",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSnapshotAndStatus(t *testing.T) {
	srv, st := newTestServer(t)
	doc, err := st.Create(context.Background(), "Landing Page")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/documents/" + doc.ID + "/snapshot")
	require.NoError(t, err)
	var snap models.Snapshot
	decode(t, resp, &snap)
	assert.Equal(t, models.SchemaVersion, snap.SchemaVersion)
	assert.Equal(t, doc.ID, snap.Document.ID)

	resp, err = http.Get(srv.URL + "/api/documents/" + doc.ID + "/status")
	require.NoError(t, err)
	var status struct {
		State    string `json:"state"`
		ReadOnly bool   `json:"readOnly"`
	}
	decode(t, resp, &status)
	assert.Equal(t, coordinator.StateIdle, status.State)
	assert.False(t, status.ReadOnly)
}

func TestExportPDF(t *testing.T) {
	srv, st := newTestServer(t)
	doc, err := st.Create(context.Background(), "Landing Page")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/documents/" + doc.ID + "/export/pdf")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
}

func TestWebSocketRejectsUnknownParticipant(t *testing.T) {
	srv, st := newTestServer(t)
	doc, err := st.Create(context.Background(), "Landing Page")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/ws/documents/" + doc.ID + "?participant=spectator")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
