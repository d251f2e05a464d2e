package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(docID, elementID string, rev int64) *models.ChangeEvent {
	ev := models.NewChangeEvent(models.OriginCanvas, docID, models.OpUpdate)
	ev.ElementID = elementID
	ev.Revision = rev
	ev.Payload = &models.DesignElement{ID: elementID, Kind: models.KindRectangle}
	return ev
}

func TestRecordAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	j.Record(testEvent("doc1", "r1", 1), StatusApplied, "")
	j.Record(testEvent("doc1", "r1", 2), StatusApplied, "")
	j.Record(testEvent("doc1", "r1", 2), StatusRejected, "stale revision for element r1: stored 2, got 2")
	j.Record(testEvent("doc2", "x1", 1), StatusApplied, "")
	require.NoError(t, j.Close(), "close flushes the buffer")

	// The history survives a reopen.
	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(context.Background(), "doc1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, StatusRejected, entries[0].Status)
	assert.Contains(t, entries[0].Detail, "stale revision")
	assert.Equal(t, int64(2), entries[1].Revision)
	assert.Equal(t, int64(1), entries[2].Revision)
	assert.NotEmpty(t, entries[1].Payload, "applied entries keep the payload")

	other, err := j.Recent(context.Background(), "doc2", 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestRecentLimitClamped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		j.Record(testEvent("doc1", fmt.Sprintf("e%d", i), 1), StatusApplied, "")
	}
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(context.Background(), "doc1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = j.Recent(context.Background(), "doc1", -1)
	require.NoError(t, err)
	assert.Len(t, entries, 5, "nonsense limits fall back to the default")
}

func TestPrune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		j.Record(testEvent("doc1", fmt.Sprintf("e%d", i), 1), StatusApplied, "")
	}
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Prune(context.Background(), "doc1", 3))
	entries, err := j.Recent(context.Background(), "doc1", 100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e9", entries[0].ElementID, "the newest entries are the ones kept")
}
