package bridge

import (
	"fmt"
	"testing"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func change(elementID string, rev int64) *models.WireMessage {
	return &models.WireMessage{
		Type:      models.WireTypeChange,
		ElementID: elementID,
		Operation: models.OpUpdate,
		Revision:  rev,
	}
}

func TestBacklogMostRecentWinsPerElement(t *testing.T) {
	b := NewBacklog(10)
	b.Put(change("r1", 1))
	b.Put(change("r2", 1))
	b.Put(change("r1", 2))

	assert.Equal(t, 2, b.Len())

	msgs := b.Drain()
	require.Len(t, msgs, 2)
	// r1 was re-buffered last, so it drains after r2.
	assert.Equal(t, "r2", msgs[0].ElementID)
	assert.Equal(t, "r1", msgs[1].ElementID)
	assert.Equal(t, int64(2), msgs[1].Revision, "older r1 entry was replaced")

	assert.Equal(t, 0, b.Len(), "drain empties the backlog")
}

func TestBacklogBounded(t *testing.T) {
	b := NewBacklog(3)
	for i := 0; i < 5; i++ {
		b.Put(change(fmt.Sprintf("el-%d", i), 1))
	}
	assert.Equal(t, 3, b.Len())

	msgs := b.Drain()
	require.Len(t, msgs, 3)
	// The two oldest distinct elements fell off.
	assert.Equal(t, "el-2", msgs[0].ElementID)
	assert.Equal(t, "el-4", msgs[2].ElementID)
}

func TestBacklogTokenUpdatesShareOneSlot(t *testing.T) {
	b := NewBacklog(10)
	b.Put(&models.WireMessage{Type: models.WireTypeChange, Tokens: map[string]string{"primary": "#007bff"}, Revision: 1})
	b.Put(&models.WireMessage{Type: models.WireTypeChange, Tokens: map[string]string{"primary": "#ff0000"}, Revision: 2})

	msgs := b.Drain()
	require.Len(t, msgs, 1)
	assert.Equal(t, "#ff0000", msgs[0].Tokens["primary"])
}
