package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	_ "modernc.org/sqlite"
)

/*
The journal is the audit trail of every change the coordinator saw: applied
ones and rejected ones alike. It lives in an embedded sqlite database so the
history survives restarts without requiring any external service. Writes are
asynchronous and batched; the journal must never add latency or backpressure
to a sync cycle, so entries are dropped (with a log line) rather than queued
unboundedly when the buffer fills.
*/

// Entry statuses.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
)

// Schema for the change_events table, applied on Open.
const schema = `
CREATE TABLE IF NOT EXISTS change_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	element_id TEXT,
	origin TEXT NOT NULL,
	operation TEXT NOT NULL,
	revision INTEGER NOT NULL,
	status TEXT NOT NULL,
	detail TEXT,
	payload TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_events_doc ON change_events(document_id, id);
`

// Entry is one journaled change.
type Entry struct {
	ID         int64            `json:"id"`
	EventID    string           `json:"eventId"`
	DocumentID string           `json:"documentId"`
	ElementID  string           `json:"elementId,omitempty"`
	Origin     models.Origin    `json:"origin"`
	Operation  models.Operation `json:"operation"`
	Revision   int64            `json:"revision"`
	Status     string           `json:"status"`
	Detail     string           `json:"detail,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// Journal persists change entries asynchronously.
type Journal struct {
	db   *sql.DB
	ch   chan *Entry
	done chan struct{}
	once sync.Once
}

// Open creates (or reopens) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init journal schema: %w", err)
	}

	j := &Journal{
		db:   db,
		ch:   make(chan *Entry, 1024),
		done: make(chan struct{}),
	}
	go j.flushLoop()

	log.Printf("✓ Change journal opened at %s", path)
	return j, nil
}

// Record queues one event for persistence. Non-blocking.
func (j *Journal) Record(ev *models.ChangeEvent, status, detail string) {
	e := &Entry{
		EventID:    ev.ID,
		DocumentID: ev.DocumentID,
		ElementID:  ev.ElementID,
		Origin:     ev.Origin,
		Operation:  ev.Operation,
		Revision:   ev.Revision,
		Status:     status,
		Detail:     detail,
		CreatedAt:  time.Now().UTC(),
	}
	if ev.Payload != nil {
		if data, err := json.Marshal(ev.Payload); err == nil {
			e.Payload = data
		}
	} else if ev.Tokens != nil {
		if data, err := json.Marshal(ev.Tokens); err == nil {
			e.Payload = data
		}
	}

	select {
	case j.ch <- e:
	default:
		log.Printf("⚠️  Journal buffer full, dropping entry for event %s", ev.ID)
	}
}

// Recent returns the newest entries for a document, newest first.
func (j *Journal) Recent(ctx context.Context, documentID string, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, event_id, document_id, element_id, origin, operation, revision, status, detail, payload, created_at
		FROM change_events WHERE document_id = ? ORDER BY id DESC LIMIT ?`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			e         Entry
			elementID sql.NullString
			detail    sql.NullString
			payload   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.DocumentID, &elementID, &e.Origin, &e.Operation, &e.Revision, &e.Status, &detail, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.ElementID = elementID.String
		e.Detail = detail.String
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep entries for a document. Called
// opportunistically so the journal does not grow without bound.
func (j *Journal) Prune(ctx context.Context, documentID string, keep int) error {
	_, err := j.db.ExecContext(ctx, `
		DELETE FROM change_events
		WHERE document_id = ? AND id NOT IN (
			SELECT id FROM change_events WHERE document_id = ? ORDER BY id DESC LIMIT ?
		)`, documentID, documentID, keep)
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}
	return nil
}

// Close drains the buffer, flushes, and closes the database.
func (j *Journal) Close() error {
	j.once.Do(func() {
		close(j.ch)
		<-j.done
	})
	return j.db.Close()
}

func (j *Journal) flushLoop() {
	defer close(j.done)

	batch := make([]*Entry, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-j.ch:
			if !ok {
				j.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				j.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				j.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}

	tx, err := j.db.Begin()
	if err != nil {
		log.Printf("⚠️  Journal flush: begin tx: %v", err)
		return
	}
	stmt, err := tx.Prepare(`INSERT INTO change_events
		(event_id, document_id, element_id, origin, operation, revision, status, detail, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		log.Printf("⚠️  Journal flush: prepare: %v", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		var payload any
		if e.Payload != nil {
			payload = string(e.Payload)
		}
		if _, err := stmt.Exec(e.EventID, e.DocumentID, e.ElementID, string(e.Origin), string(e.Operation), e.Revision, e.Status, e.Detail, payload, e.CreatedAt.UnixNano()); err != nil {
			tx.Rollback()
			log.Printf("⚠️  Journal flush: insert: %v", err)
			return
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("⚠️  Journal flush: commit: %v", err)
	}
}
