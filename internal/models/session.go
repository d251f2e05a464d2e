package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Session describes one live participant connection to a document. The
// coordinator treats the visual editor and the running application
// identically at this level; they differ only in Participant.
type Session struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"documentId"`
	Participant  Origin    `json:"participant"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
}

func NewSession(documentID string, participant Origin) *Session {
	now := time.Now()
	return &Session{
		ID:           ksuid.New().String(),
		DocumentID:   documentID,
		Participant:  participant,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}
