package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *models.DesignDocument) {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	doc, err := s.Create(context.Background(), "Landing Page")
	require.NoError(t, err)
	return s, doc
}

func createEvent(docID, elementID string, rev int64) *models.ChangeEvent {
	ev := models.NewChangeEvent(models.OriginCanvas, docID, models.OpCreate)
	ev.ElementID = elementID
	ev.Revision = rev
	ev.Payload = &models.DesignElement{
		ID:       elementID,
		Kind:     models.KindRectangle,
		Geometry: models.Geometry{X: 40, Y: 24, W: 120, H: 40},
		Style:    models.Style{Fill: "#007bff"},
	}
	return ev
}

func TestCreateGetList(t *testing.T) {
	s, doc := newTestStore(t)

	got, err := s.Get(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Landing Page", got.Name)
	assert.Empty(t, got.Elements)

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	second, err := s.Create(context.Background(), "Pricing")
	require.NoError(t, err)

	docs := s.List()
	require.Len(t, docs, 2)
	assert.Equal(t, second.ID, docs[0].ID, "newest first")
}

func TestListOrdersByCreationTime(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// Two documents created within the same second: creation time ties,
	// so the id breaks it. The third is older and must sort last.
	write := func(id string, created time.Time) {
		t.Helper()
		doc := &models.DesignDocument{
			ID:        id,
			Name:      "Doc " + id,
			Elements:  []*models.DesignElement{},
			CreatedAt: created,
			UpdatedAt: created,
		}
		data, err := json.Marshal(&models.Snapshot{SchemaVersion: models.SchemaVersion, Document: doc})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644))
	}
	write("doc-aaa", base.Add(400*time.Millisecond))
	write("doc-bbb", base.Add(400*time.Millisecond))
	write("doc-old", base.Add(-time.Minute))

	s, err := New(dir)
	require.NoError(t, err)

	docs := s.List()
	require.Len(t, docs, 3)
	assert.Equal(t, "doc-bbb", docs[0].ID)
	assert.Equal(t, "doc-aaa", docs[1].ID)
	assert.Equal(t, "doc-old", docs[2].ID)
}

func TestApplyCreate(t *testing.T) {
	s, doc := newTestStore(t)

	updated, err := s.Apply(context.Background(), createEvent(doc.ID, "r1", 1))
	require.NoError(t, err)
	require.Len(t, updated.Elements, 1)

	el := updated.Element("r1")
	require.NotNil(t, el)
	assert.Equal(t, int64(1), el.Revision)
	assert.Equal(t, models.OriginCanvas, el.Origin)
	assert.Equal(t, models.FillModeFilled, el.Style.FillMode, "create normalizes fill mode")

	// Creating the same id again is a conflict, not an overwrite.
	_, err = s.Apply(context.Background(), createEvent(doc.ID, "r1", 1))
	var se *models.StaleRevisionError
	assert.ErrorAs(t, err, &se)
}

func TestApplyRejectsStaleRevision(t *testing.T) {
	s, doc := newTestStore(t)
	_, err := s.Apply(context.Background(), createEvent(doc.ID, "r1", 1))
	require.NoError(t, err)

	up := models.NewChangeEvent(models.OriginRuntime, doc.ID, models.OpUpdate)
	up.ElementID = "r1"
	up.Revision = 1 // not strictly greater
	up.Payload = createEvent(doc.ID, "r1", 1).Payload

	_, err = s.Apply(context.Background(), up)
	var se *models.StaleRevisionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(1), se.Stored)
	assert.Equal(t, int64(1), se.Got)

	// The stored element is untouched by the rejected write.
	got, err := s.Get(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Element("r1").Revision)
}

func TestApplyValidation(t *testing.T) {
	s, doc := newTestStore(t)

	ev := createEvent(doc.ID, "r1", 1)
	ev.Payload.Geometry.W = 0
	_, err := s.Apply(context.Background(), ev)
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)

	ev = createEvent(doc.ID, "r1", 1)
	ev.Origin = "editor"
	_, err = s.Apply(context.Background(), ev)
	assert.ErrorAs(t, err, &ve)

	ev = createEvent(doc.ID, "", 1)
	ev.ElementID = ""
	_, err = s.Apply(context.Background(), ev)
	assert.ErrorAs(t, err, &ve)
}

func TestUpdatePreservesBinding(t *testing.T) {
	s, doc := newTestStore(t)

	ev := createEvent(doc.ID, "r1", 1)
	ev.Payload.Binding = &models.SourceBinding{FilePath: "design/landing-page.css", Selector: ".vss-r1"}
	_, err := s.Apply(context.Background(), ev)
	require.NoError(t, err)

	// An update that tries to move the binding does not get to.
	up := models.NewChangeEvent(models.OriginCanvas, doc.ID, models.OpUpdate)
	up.ElementID = "r1"
	up.Revision = 2
	up.Payload = createEvent(doc.ID, "r1", 2).Payload
	up.Payload.Binding = &models.SourceBinding{FilePath: "elsewhere.css", Selector: ".other"}

	updated, err := s.Apply(context.Background(), up)
	require.NoError(t, err)
	require.NotNil(t, updated.Element("r1").Binding)
	assert.Equal(t, "design/landing-page.css", updated.Element("r1").Binding.FilePath)
	assert.Equal(t, ".vss-r1", updated.Element("r1").Binding.Selector)
}

func TestApplyDelete(t *testing.T) {
	s, doc := newTestStore(t)
	_, err := s.Apply(context.Background(), createEvent(doc.ID, "r1", 1))
	require.NoError(t, err)

	del := models.NewChangeEvent(models.OriginCanvas, doc.ID, models.OpDelete)
	del.ElementID = "r1"
	del.Revision = 1
	_, err = s.Apply(context.Background(), del)
	var se *models.StaleRevisionError
	require.ErrorAs(t, err, &se, "delete is revision-gated too")

	del.Revision = 2
	updated, err := s.Apply(context.Background(), del)
	require.NoError(t, err)
	assert.Nil(t, updated.Element("r1"))

	del.Revision = 3
	_, err = s.Apply(context.Background(), del)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTokenUpdates(t *testing.T) {
	s, doc := newTestStore(t)

	ev := models.NewChangeEvent(models.OriginFile, doc.ID, models.OpUpdate)
	ev.Tokens = map[string]string{"primary": "#007bff"}
	ev.Revision = doc.Revision + 1

	updated, err := s.Apply(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, "#007bff", updated.Tokens["primary"])
	assert.Equal(t, ev.Revision, updated.Revision)

	// Same revision again: stale.
	_, err = s.Apply(context.Background(), ev)
	var se *models.StaleRevisionError
	assert.ErrorAs(t, err, &se)

	// Token values that could escape a declaration are rejected.
	bad := models.NewChangeEvent(models.OriginFile, doc.ID, models.OpUpdate)
	bad.Tokens = map[string]string{"primary": "red; } * { display: none"}
	bad.Revision = updated.Revision + 1
	_, err = s.Apply(context.Background(), bad)
	var ve *models.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	doc, err := s.Create(context.Background(), "Landing Page")
	require.NoError(t, err)
	_, err = s.Apply(context.Background(), createEvent(doc.ID, "r1", 1))
	require.NoError(t, err)

	reopened, err := New(dir)
	require.NoError(t, err)
	got, err := reopened.Get(doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Element("r1"))
	assert.Equal(t, int64(1), got.Element("r1").Revision)
	assert.Equal(t, "#007bff", got.Element("r1").Style.Fill)
}

func TestDeleteDocument(t *testing.T) {
	s, doc := newTestStore(t)
	require.NoError(t, s.Delete(doc.ID))
	_, err := s.Get(doc.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.Delete(doc.ID), models.ErrNotFound)
}
