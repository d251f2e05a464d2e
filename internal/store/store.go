package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JODonogh/Visual-Sketch-Sync-sub005/internal/models"

	"github.com/cenkalti/backoff/v4"
)

/*
Store is the canonical home of all design documents. Apply is the single
mutation entry point: it enforces the revision gate, validates geometry and
style ranges, and only acknowledges a change after the new snapshot has been
durably written. A crash therefore never loses an acknowledged change.
*/

// Store keeps every open document in memory and mirrors each one to a JSON
// snapshot file under dir.
type Store struct {
	dir string

	mu       sync.RWMutex
	docs     map[string]*models.DesignDocument
	readOnly map[string]bool
}

// New opens a store rooted at dir, loading any snapshots already present.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	s := &Store{
		dir:      dir,
		docs:     make(map[string]*models.DesignDocument),
		readOnly: make(map[string]bool),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		doc, err := loadSnapshot(path)
		if err != nil {
			log.Printf("⚠️  Skipping unreadable snapshot %s: %v", path, err)
			continue
		}
		s.docs[doc.ID] = doc
	}

	log.Printf("✓ Store opened with %d document(s) from %s", len(s.docs), dir)
	return s, nil
}

func loadSnapshot(path string) (*models.DesignDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.SchemaVersion > models.SchemaVersion {
		return nil, fmt.Errorf("snapshot schema version %d is newer than supported %d", snap.SchemaVersion, models.SchemaVersion)
	}
	if snap.Document == nil || snap.Document.ID == "" {
		return nil, fmt.Errorf("snapshot has no document")
	}
	return snap.Document, nil
}

// Create adds a new empty document and persists its first snapshot.
func (s *Store) Create(ctx context.Context, name string) (*models.DesignDocument, error) {
	doc := models.NewDesignDocument(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, doc); err != nil {
		return nil, &models.PersistenceFailure{DocumentID: doc.ID, Err: err}
	}
	s.docs[doc.ID] = doc
	return doc.Clone(), nil
}

// Get returns a deep copy of a document, so callers never observe a
// coordinator cycle's intermediate state.
func (s *Store) Get(documentID string) (*models.DesignDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	return doc.Clone(), nil
}

// List returns copies of all documents, newest first by creation time.
// Ksuid ids only carry a one-second timestamp, so the id is just the
// tie-break for documents created in the same instant.
func (s *Store) List() []*models.DesignDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.DesignDocument, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Delete removes a document and its snapshot file.
func (s *Store) Delete(documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[documentID]; !ok {
		return fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	delete(s.docs, documentID)
	delete(s.readOnly, documentID)
	if err := os.Remove(s.snapshotPath(documentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove snapshot: %w", err)
	}
	return nil
}

// ReadOnly reports whether a document has been frozen after a persistence
// failure.
func (s *Store) ReadOnly(documentID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readOnly[documentID]
}

// Apply validates and applies one ChangeEvent, then synchronously persists
// the new snapshot. It returns the updated document copy, or one of the
// typed errors: *models.ValidationError, *models.StaleRevisionError,
// *models.PersistenceFailure, or a models.ErrNotFound wrap. Callers must
// check the error; Apply never panics on bad input.
func (s *Store) Apply(ctx context.Context, ev *models.ChangeEvent) (*models.DesignDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[ev.DocumentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", ev.DocumentID, models.ErrNotFound)
	}
	if s.readOnly[ev.DocumentID] {
		return nil, &models.PersistenceFailure{DocumentID: ev.DocumentID, Err: fmt.Errorf("document is read-only after a failed durable write")}
	}
	if !ev.Origin.Valid() {
		return nil, &models.ValidationError{Field: "origin", Reason: fmt.Sprintf("unknown origin %q", ev.Origin)}
	}

	// Mutate a clone; the live document is only swapped in after the
	// durable write succeeds.
	next := doc.Clone()
	if err := applyToDocument(next, ev); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.persist(ctx, next); err != nil {
		// Escalate: freeze the document rather than silently dropping the
		// user's change.
		s.readOnly[ev.DocumentID] = true
		log.Printf("❌ Durable write failed, document %s marked read-only: %v", ev.DocumentID, err)
		return nil, &models.PersistenceFailure{DocumentID: ev.DocumentID, Err: err}
	}

	s.docs[ev.DocumentID] = next
	return next.Clone(), nil
}

func applyToDocument(doc *models.DesignDocument, ev *models.ChangeEvent) error {
	if ev.IsTokenUpdate() {
		if ev.Revision <= doc.Revision {
			return &models.StaleRevisionError{ElementID: "", Stored: doc.Revision, Got: ev.Revision}
		}
		for name, value := range ev.Tokens {
			if err := models.ValidateToken(name, value); err != nil {
				return err
			}
		}
		doc.Tokens = ev.Tokens
		doc.Revision = ev.Revision
		return nil
	}

	if !ev.Operation.Valid() {
		return &models.ValidationError{ElementID: ev.ElementID, Field: "operation", Reason: fmt.Sprintf("unknown operation %q", ev.Operation)}
	}
	if ev.ElementID == "" {
		return &models.ValidationError{Field: "elementId", Reason: "must not be empty"}
	}

	existing := doc.Element(ev.ElementID)

	switch ev.Operation {
	case models.OpCreate:
		if existing != nil {
			return &models.StaleRevisionError{ElementID: ev.ElementID, Stored: existing.Revision, Got: ev.Revision}
		}
		if ev.Payload == nil {
			return &models.ValidationError{ElementID: ev.ElementID, Field: "payload", Reason: "create requires a payload"}
		}
		if ev.Revision < 1 {
			return &models.ValidationError{ElementID: ev.ElementID, Field: "revision", Reason: "must be >= 1"}
		}
		el := ev.Payload.Clone()
		el.ID = ev.ElementID
		el.Revision = ev.Revision
		el.Origin = ev.Origin
		el.Normalize()
		if err := el.Validate(); err != nil {
			return err
		}
		doc.Elements = append(doc.Elements, el)

	case models.OpUpdate:
		if existing == nil {
			return fmt.Errorf("element %s: %w", ev.ElementID, models.ErrNotFound)
		}
		if ev.Revision <= existing.Revision {
			return &models.StaleRevisionError{ElementID: ev.ElementID, Stored: existing.Revision, Got: ev.Revision}
		}
		if ev.Payload == nil {
			return &models.ValidationError{ElementID: ev.ElementID, Field: "payload", Reason: "update requires a payload"}
		}
		el := ev.Payload.Clone()
		el.ID = ev.ElementID
		el.Revision = ev.Revision
		el.Origin = ev.Origin
		// A binding, once set, is stable; an update can never clear or
		// replace it.
		if existing.Binding != nil {
			b := *existing.Binding
			el.Binding = &b
		}
		el.Normalize()
		if err := el.Validate(); err != nil {
			return err
		}
		for i, e := range doc.Elements {
			if e.ID == ev.ElementID {
				doc.Elements[i] = el
				break
			}
		}

	case models.OpDelete:
		if existing == nil {
			return fmt.Errorf("element %s: %w", ev.ElementID, models.ErrNotFound)
		}
		if ev.Revision <= existing.Revision {
			return &models.StaleRevisionError{ElementID: ev.ElementID, Stored: existing.Revision, Got: ev.Revision}
		}
		kept := doc.Elements[:0]
		for _, e := range doc.Elements {
			if e.ID != ev.ElementID {
				kept = append(kept, e)
			}
		}
		doc.Elements = kept
	}
	return nil
}

// Snapshot returns the serialized durable form of a document.
func (s *Store) Snapshot(documentID string) ([]byte, error) {
	s.mu.RLock()
	doc, ok := s.docs[documentID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	return json.MarshalIndent(&models.Snapshot{SchemaVersion: models.SchemaVersion, Document: doc}, "", "  ")
}

func (s *Store) snapshotPath(documentID string) string {
	return filepath.Join(s.dir, documentID+".json")
}

// persist writes the snapshot atomically (temp file + rename) with a short
// bounded backoff, so a transient filesystem hiccup does not freeze the
// document. Caller holds the write lock.
func (s *Store) persist(ctx context.Context, doc *models.DesignDocument) error {
	data, err := json.MarshalIndent(&models.Snapshot{SchemaVersion: models.SchemaVersion, Document: doc}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	path := s.snapshotPath(doc.ID)
	write := func() error {
		tmp, err := os.CreateTemp(s.dir, doc.ID+".*.tmp")
		if err != nil {
			return err
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return err
		}
		return os.Rename(tmpName, path)
	}

	policy := backoff.WithContext(newWritePolicy(), ctx)
	return backoff.Retry(write, policy)
}

func newWritePolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	return b
}
