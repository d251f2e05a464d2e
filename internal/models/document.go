package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// SchemaVersion is stamped into every persisted snapshot so older snapshots
// stay readable after the generator evolves.
const SchemaVersion = 1

// DesignDocument is the canonical representation of one project artifact:
// an ordered collection of elements (order = z-order, which also fixes
// code-generation order) plus the shared design-token table.
type DesignDocument struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Elements []*DesignElement `json:"elements"`

	// Tokens maps design-token names (colors, spacing) to their values,
	// shared across elements and emitted as a :root region in the
	// generated stylesheet.
	Tokens map[string]string `json:"tokens,omitempty"`

	// Revision is the document-level counter, used to gate writes that do
	// not target a single element (token-table updates).
	Revision int64 `json:"revision"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewDesignDocument creates an empty document with a time-ordered id.
func NewDesignDocument(name string) *DesignDocument {
	now := time.Now().UTC()
	return &DesignDocument{
		ID:        ksuid.New().String(),
		Name:      name,
		Elements:  []*DesignElement{},
		Tokens:    map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Element returns the element with the given id, or nil.
func (d *DesignDocument) Element(id string) *DesignElement {
	for _, e := range d.Elements {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Clone returns a deep copy of the document. The store hands out clones so
// readers never observe a coordinator cycle's intermediate state.
func (d *DesignDocument) Clone() *DesignDocument {
	out := *d
	out.Elements = make([]*DesignElement, len(d.Elements))
	for i, e := range d.Elements {
		out.Elements[i] = e.Clone()
	}
	out.Tokens = make(map[string]string, len(d.Tokens))
	for k, v := range d.Tokens {
		out.Tokens[k] = v
	}
	return &out
}

// Snapshot is the durable on-disk form of a document.
type Snapshot struct {
	SchemaVersion int             `json:"schemaVersion"`
	Document      *DesignDocument `json:"document"`
}
