package bridge

import (
	"encoding/json"
	"log"
	"time"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	"github.com/gorilla/websocket"
)

/*
A Session is one connected participant: the visual editor (canvas) or the
running application (runtime). The coordinator only ever talks to this
interface; the concrete transport behind it is irrelevant to sync logic,
which is what lets tests drive the coordinator with in-memory sessions.
*/

// Session is a live connection to one participant of one document.
type Session interface {
	ID() string
	DocumentID() string
	Participant() models.Origin
	Send(msg *models.WireMessage) error
	Close() error
}

// Handler receives the traffic of a websocket session.
type Handler interface {
	// HandleChange is called for every inbound change message.
	HandleChange(s Session, ev *models.ChangeEvent)
	// HandleDisconnect is called exactly once when the session dies.
	HandleDisconnect(s Session)
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 54 * time.Second
	sendBufferSize = 256
)

// WSSession is a Session backed by a gorilla websocket connection, with the
// usual split read/write pumps so a slow reader can never block a writer.
type WSSession struct {
	meta    *models.Session
	conn    *websocket.Conn
	send    chan []byte
	handler Handler
	done    chan struct{}
}

// NewWSSession wraps an upgraded connection and starts its pumps.
func NewWSSession(conn *websocket.Conn, documentID string, participant models.Origin, handler Handler) *WSSession {
	s := &WSSession{
		meta:    models.NewSession(documentID, participant),
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		handler: handler,
		done:    make(chan struct{}),
	}
	go s.writePump()
	go s.readPump()
	return s
}

func (s *WSSession) ID() string                  { return s.meta.ID }
func (s *WSSession) DocumentID() string          { return s.meta.DocumentID }
func (s *WSSession) Participant() models.Origin  { return s.meta.Participant }

// Send queues a message for delivery. It fails fast when the session buffer
// is full (slow or dead peer) or the session is closed; the caller keeps the
// message in the replay backlog in that case.
func (s *WSSession) Send(msg *models.WireMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return &models.TransportFailure{SessionID: s.meta.ID, Err: err}
	}
	select {
	case <-s.done:
		return &models.TransportFailure{SessionID: s.meta.ID, Err: websocket.ErrCloseSent}
	default:
	}
	select {
	case s.send <- data:
		return nil
	default:
		return &models.TransportFailure{SessionID: s.meta.ID, Err: errBufferFull}
	}
}

var errBufferFull = &bufferFullError{}

type bufferFullError struct{}

func (*bufferFullError) Error() string { return "session send buffer full" }

// Close tears the connection down; the read pump then fires the disconnect
// handler.
func (s *WSSession) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	return s.conn.Close()
}

func (s *WSSession) readPump() {
	defer func() {
		close(s.done)
		s.conn.Close()
		s.handler.HandleDisconnect(s)
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.meta.LastActiveAt = time.Now()
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️  Session %s read error: %v", s.meta.ID, err)
			}
			return
		}
		s.meta.LastActiveAt = time.Now()

		var msg models.WireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Send(models.ErrorMessage(&models.ValidationError{Field: "message", Reason: "malformed json"}, ""))
			continue
		}
		if msg.Type != models.WireTypeChange {
			continue
		}
		// The session's participant kind is authoritative for origin; a
		// client cannot spoof another participant.
		ev := msg.ChangeEvent(s.meta.Participant, s.meta.DocumentID)
		s.handler.HandleChange(s, ev)
	}
}

func (s *WSSession) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return

		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
