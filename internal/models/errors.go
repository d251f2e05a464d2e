package models

import (
	"errors"
	"fmt"
)

// Error codes surfaced to participants in wire error messages.
const (
	CodeValidation    = "validation_error"
	CodeStaleRevision = "stale_revision"
	CodeGeneration    = "generation_failure"
	CodePersistence   = "persistence_failure"
	CodeTransport     = "transport_failure"
	CodeNotFound      = "not_found"
	CodeInternal      = "internal_error"
)

// ValidationError reports bad geometry or style on an incoming change.
// Recoverable: reported to the originator, nothing else is affected.
type ValidationError struct {
	ElementID string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.ElementID == "" {
		return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed for element %s: %s %s", e.ElementID, e.Field, e.Reason)
}

// StaleRevisionError reports a lost write race: the incoming revision is not
// strictly greater than the stored one. The originator should re-fetch and
// retry.
type StaleRevisionError struct {
	ElementID string
	Stored    int64
	Got       int64
}

func (e *StaleRevisionError) Error() string {
	return fmt.Sprintf("stale revision for element %s: stored %d, got %d", e.ElementID, e.Stored, e.Got)
}

// GenerationFailure wraps a code-generator error. The coordinator downgrades
// it to a diagnostic and keeps the last-known-good fragment on disk.
type GenerationFailure struct {
	Path string
	Err  error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("generation failed for %s: %v", e.Path, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// PersistenceFailure reports a failed durable write. Fatal to the document:
// it is marked read-only until the underlying problem is resolved.
type PersistenceFailure struct {
	DocumentID string
	Err        error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("durable write failed for document %s: %v", e.DocumentID, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// TransportFailure reports a session send/receive error. Recoverable: the
// change is retained in that session's replay backlog.
type TransportFailure struct {
	SessionID string
	Err       error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("transport failure on session %s: %v", e.SessionID, e.Err)
}

func (e *TransportFailure) Unwrap() error { return e.Err }

// ErrNotFound is returned by the store for unknown documents or elements.
var ErrNotFound = errors.New("not found")

// CodeOf maps an error to its wire error code.
func CodeOf(err error) string {
	var (
		ve *ValidationError
		se *StaleRevisionError
		ge *GenerationFailure
		pe *PersistenceFailure
		te *TransportFailure
	)
	switch {
	case errors.As(err, &ve):
		return CodeValidation
	case errors.As(err, &se):
		return CodeStaleRevision
	case errors.As(err, &ge):
		return CodeGeneration
	case errors.As(err, &pe):
		return CodePersistence
	case errors.As(err, &te):
		return CodeTransport
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
