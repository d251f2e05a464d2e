package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Operation identifies what a ChangeEvent does to its element.
// Closed set - switches over it must handle all three.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// ChangeEvent is the atomic unit of state change exchanged between
// participants and the coordinator. It is also the unit of ordering and
// conflict detection: the store rejects an event whose Revision is not
// strictly greater than the stored revision for the same element.
type ChangeEvent struct {
	ID         string    `json:"id"`
	Origin     Origin    `json:"origin"`
	DocumentID string    `json:"documentId"`

	// ElementID is empty for document-level changes (token-table updates).
	ElementID string     `json:"elementId,omitempty"`
	Operation Operation  `json:"operation"`

	// Payload carries the full element state for create/update; nil for
	// delete and for token updates.
	Payload *DesignElement `json:"payload,omitempty"`

	// Tokens carries the replacement token table for document-level
	// updates (ElementID empty).
	Tokens map[string]string `json:"tokens,omitempty"`

	Revision int64     `json:"revision"`
	At       time.Time `json:"at"`
}

// NewChangeEvent stamps a fresh time-ordered event id.
func NewChangeEvent(origin Origin, documentID string, op Operation) *ChangeEvent {
	return &ChangeEvent{
		ID:         ksuid.New().String(),
		Origin:     origin,
		DocumentID: documentID,
		Operation:  op,
		At:         time.Now().UTC(),
	}
}

// IsTokenUpdate reports whether the event replaces the document token table
// rather than mutating a single element.
func (ev *ChangeEvent) IsTokenUpdate() bool {
	return ev.ElementID == "" && ev.Tokens != nil
}
