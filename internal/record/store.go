package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Store.Get when no document has the id.
var ErrNotFound = errors.New("record not found")

// ErrConflict is matched (via errors.Is) by every ConflictError.
var ErrConflict = errors.New("record version conflict")

// ConflictError reports documents whose stored version no longer matches
// the version a batch expected.
type ConflictError struct {
	IDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConflict, strings.Join(e.IDs, ", "))
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Store is a flat, type-tagged document store.
//
// Implementations must be safe for concurrent use. Documents returned from
// Get and Find are copies owned by the caller.
type Store interface {
	// Get returns the document with id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// Find runs a search. The cursor must be closed by the caller.
	Find(ctx context.Context, s Search) (Cursor, error)

	// Count returns the number of documents matching filter.
	Count(ctx context.Context, filter Query) (int, error)

	// Check verifies a batch's expected versions without writing.
	Check(ctx context.Context, b *Batch) error

	// Apply verifies and writes a batch atomically. On success every put
	// document is stored with Version set to its content hash.
	Apply(ctx context.Context, b *Batch) error

	// Close releases resources held by the store.
	Close() error
}

// Cursor iterates search results.
type Cursor interface {
	Next() bool
	Document() *Document
	Err() error
	Close() error
}

// OpKind distinguishes batch operations.
type OpKind int

const (
	OpPut OpKind = iota
	OpDelete
)

// Op is one staged write.
//
// Expect is the version the document must currently have in the store.
// For OpPut an empty Expect means the document must not exist yet.
type Op struct {
	Kind   OpKind
	ID     string
	Doc    *Document
	Expect string
}

// Batch is an ordered set of writes applied atomically.
type Batch struct {
	ops []Op
}

// Put stages a create (expect == "") or an update of doc.
func (b *Batch) Put(doc *Document, expect string) {
	b.ops = append(b.ops, Op{Kind: OpPut, ID: doc.ID, Doc: doc.Clone(), Expect: expect})
}

// Delete stages the removal of the document with id.
func (b *Batch) Delete(id, expect string) {
	b.ops = append(b.ops, Op{Kind: OpDelete, ID: id, Expect: expect})
}

// Ops returns the staged operations in order.
func (b *Batch) Ops() []Op {
	return b.ops
}

// Len returns the number of staged operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Verify checks every op against current, which returns the stored version
// of an id and whether it exists. An id staged more than once conflicts
// too. It collects all conflicts into one error.
func (b *Batch) Verify(current func(id string) (string, bool, error)) error {
	var conflicts []string
	seen := make(map[string]bool, len(b.ops))
	for _, op := range b.ops {
		if seen[op.ID] {
			conflicts = append(conflicts, op.ID)
			continue
		}
		seen[op.ID] = true
		version, exists, err := current(op.ID)
		if err != nil {
			return err
		}
		switch {
		case op.Kind == OpPut && op.Expect == "" && exists:
			conflicts = append(conflicts, op.ID)
		case op.Expect != "" && (!exists || version != op.Expect):
			conflicts = append(conflicts, op.ID)
		}
	}
	if len(conflicts) > 0 {
		return &ConflictError{IDs: conflicts}
	}
	return nil
}

// SliceCursor is a Cursor over an in-memory slice of documents.
type SliceCursor struct {
	docs []*Document
	pos  int
}

// NewSliceCursor returns a cursor over docs.
func NewSliceCursor(docs []*Document) *SliceCursor {
	return &SliceCursor{docs: docs, pos: -1}
}

func (c *SliceCursor) Next() bool {
	if c.pos+1 >= len(c.docs) {
		c.pos = len(c.docs)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Document() *Document {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return nil
	}
	return c.docs[c.pos]
}

func (c *SliceCursor) Err() error { return nil }

func (c *SliceCursor) Close() error {
	c.docs = nil
	c.pos = 0
	return nil
}
