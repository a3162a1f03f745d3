// Package memory provides an in-memory record.Store.
//
// Documents are copied on every read and write, so callers never share
// mutable state with the store. Queries are evaluated with record.Match.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("memory store is closed")

// Store is an in-memory record.Store. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]*record.Document
	closed bool
}

var _ record.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{docs: make(map[string]*record.Document)}
}

// Get returns a copy of the document with id.
func (s *Store) Get(ctx context.Context, id string) (*record.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, record.ErrNotFound
	}
	return doc.Clone(), nil
}

// Find evaluates the search against a snapshot of all documents.
func (s *Store) Find(ctx context.Context, search record.Search) (record.Cursor, error) {
	matched, err := s.matching(search.Filter)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matched, func(a, b *record.Document) int {
		if search.SortField != "" {
			av, aok := a.Fields[search.SortField].(ir.IRInt)
			bv, bok := b.Fields[search.SortField].(ir.IRInt)
			switch {
			case aok && !bok:
				return -1
			case !aok && bok:
				return 1
			case aok && bok && av != bv:
				if av > bv {
					return -1
				}
				return 1
			}
		}
		return strings.Compare(a.ID, b.ID)
	})

	if search.Offset > 0 {
		matched = matched[min(search.Offset, len(matched)):]
	}
	if search.Limit > 0 && len(matched) > search.Limit {
		matched = matched[:search.Limit]
	}
	if search.IDsOnly {
		for i, doc := range matched {
			matched[i] = &record.Document{ID: doc.ID, Version: doc.Version}
		}
	}
	return record.NewSliceCursor(matched), nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(ctx context.Context, filter record.Query) (int, error) {
	matched, err := s.matching(filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *Store) matching(filter record.Query) ([]*record.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	var out []*record.Document
	for _, doc := range s.docs {
		ok, err := record.Match(doc, filter)
		if err != nil {
			return nil, fmt.Errorf("match %s: %w", doc.ID, err)
		}
		if ok {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

// Check verifies the batch's expected versions.
func (s *Store) Check(ctx context.Context, b *record.Batch) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return b.Verify(s.version)
}

// Apply verifies and writes the batch under one lock.
func (s *Store) Apply(ctx context.Context, b *record.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := b.Verify(s.version); err != nil {
		return err
	}

	puts := make(map[int]*record.Document)
	for i, op := range b.Ops() {
		if op.Kind != record.OpPut {
			continue
		}
		doc := op.Doc.Clone()
		version, err := doc.Hash()
		if err != nil {
			return fmt.Errorf("hash %s: %w", doc.ID, err)
		}
		doc.Version = version
		puts[i] = doc
	}

	for i, op := range b.Ops() {
		switch op.Kind {
		case record.OpPut:
			s.docs[op.ID] = puts[i]
		case record.OpDelete:
			delete(s.docs, op.ID)
		}
	}
	return nil
}

func (s *Store) version(id string) (string, bool, error) {
	doc, ok := s.docs[id]
	if !ok {
		return "", false, nil
	}
	return doc.Version, true, nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close drops all documents. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.docs = nil
	return nil
}
