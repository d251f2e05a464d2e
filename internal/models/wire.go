package models

// Wire message types exchanged over a live session.
const (
	WireTypeChange = "change"
	WireTypeAck    = "ack"
	WireTypeError  = "error"
)

// WireMessage is the JSON envelope for session traffic. A single struct
// covers all three message types; unused fields are omitted on the wire.
type WireMessage struct {
	Type string `json:"type"`

	// change fields
	Origin     Origin         `json:"origin,omitempty"`
	DocumentID string         `json:"documentId,omitempty"`
	ElementID  string         `json:"elementId,omitempty"`
	Operation  Operation      `json:"operation,omitempty"`
	Payload    *DesignElement `json:"payload,omitempty"`
	Tokens     map[string]string `json:"tokens,omitempty"`
	Revision   int64          `json:"revision,omitempty"`

	// error fields
	Code             string `json:"code,omitempty"`
	Message          string `json:"message,omitempty"`
	RelatedElementID string `json:"relatedElementId,omitempty"`
}

// ChangeMessage wraps an applied event for broadcast to other participants.
func ChangeMessage(ev *ChangeEvent) *WireMessage {
	return &WireMessage{
		Type:       WireTypeChange,
		Origin:     ev.Origin,
		DocumentID: ev.DocumentID,
		ElementID:  ev.ElementID,
		Operation:  ev.Operation,
		Payload:    ev.Payload,
		Tokens:     ev.Tokens,
		Revision:   ev.Revision,
	}
}

// AckMessage acknowledges a successfully applied change to its originator.
func AckMessage(ev *ChangeEvent) *WireMessage {
	return &WireMessage{
		Type:      WireTypeAck,
		ElementID: ev.ElementID,
		Revision:  ev.Revision,
	}
}

// ErrorMessage reports a structured failure to one participant.
func ErrorMessage(err error, relatedElementID string) *WireMessage {
	return &WireMessage{
		Type:             WireTypeError,
		Code:             CodeOf(err),
		Message:          err.Error(),
		RelatedElementID: relatedElementID,
	}
}

// ChangeEvent converts an inbound wire message into a ChangeEvent, stamping
// a fresh event id. The session's participant kind wins over whatever origin
// the client claims.
func (m *WireMessage) ChangeEvent(origin Origin, documentID string) *ChangeEvent {
	ev := NewChangeEvent(origin, documentID, m.Operation)
	ev.ElementID = m.ElementID
	ev.Payload = m.Payload
	ev.Tokens = m.Tokens
	ev.Revision = m.Revision
	return ev
}
