package bridge

import (
	"sync"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"
)

// Backlog buffers the changes a disconnected participant missed. It is
// bounded and most-recent-wins per element: a reconnecting client only needs
// each element's final state, not the intermediate churn, so newer entries
// for the same element replace older ones and the oldest distinct element
// falls off when the bound is hit.
type Backlog struct {
	limit int

	mu    sync.Mutex
	order []string // element ids, oldest first
	byID  map[string]*models.WireMessage
}

// tokensKey collects document-level token updates under one slot.
const tokensKey = "\x00tokens"

func NewBacklog(limit int) *Backlog {
	if limit < 1 {
		limit = 1
	}
	return &Backlog{
		limit: limit,
		byID:  make(map[string]*models.WireMessage),
	}
}

// Put records a missed change message.
func (b *Backlog) Put(msg *models.WireMessage) {
	key := msg.ElementID
	if key == "" {
		key = tokensKey
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.byID[key]; ok {
		// Most-recent-wins: replace in place, move to the back.
		for i, id := range b.order {
			if id == key {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	} else if len(b.order) >= b.limit {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.byID, oldest)
	}
	b.byID[key] = msg
	b.order = append(b.order, key)
}

// Drain removes and returns all buffered messages in their retained order.
func (b *Backlog) Drain() []*models.WireMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*models.WireMessage, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.byID[key])
	}
	b.order = nil
	b.byID = make(map[string]*models.WireMessage)
	return out
}

// Len reports how many distinct elements have buffered changes.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}
