package recordstore

import (
	"fmt"

	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
	"github.com/roach88/entigraph/internal/schema"
)

// State is the engine.CompositeState of one entity, or of one composite
// inside it, backed by a flat record.Document.
//
// Composite states share their entity's document and address their fields
// below base. Every collection mutation rewrites the collection's
// __size__ field, so the field always equals the element count.
type State struct {
	doc  *record.Document
	base record.Path
}

var _ engine.CompositeState = (*State)(nil)

// NewState wraps doc as the state of an entity.
func NewState(doc *record.Document) *State {
	return &State{doc: doc}
}

// Document returns the backing document. Composite states return their
// entity's document.
func (s *State) Document() *record.Document {
	return s.doc
}

// Path returns the position of the state inside its document; "" for an
// entity.
func (s *State) Path() record.Path {
	return s.base
}

func (s *State) ID() string {
	if s.base != "" {
		return ""
	}
	return s.doc.ID
}

func (s *State) field(p *schema.Property) record.Path {
	return s.base.Field(p.StoreName())
}

func (s *State) Get(p *schema.Property) ir.IRValue {
	return s.doc.Get(string(s.field(p)))
}

func (s *State) Set(p *schema.Property, v ir.IRValue) {
	s.doc.Put(string(s.field(p)), v)
}

func (s *State) Sub(p *schema.Property) engine.CompositeState {
	path := s.field(p)
	if ir.IsNull(s.doc.Get(path.Type())) {
		return nil
	}
	return &State{doc: s.doc, base: path}
}

func (s *State) CreateSub(p *schema.Property, typ *schema.Type) engine.CompositeState {
	path := s.field(p)
	s.doc.RemovePath(path)
	s.doc.Put(path.Type(), ir.IRString(typ.StoreName()))
	return &State{doc: s.doc, base: path}
}

func (s *State) RemoveSub(p *schema.Property) {
	s.doc.RemovePath(s.field(p))
}

func (s *State) Len(p *schema.Property) int {
	return s.doc.Int(s.field(p).Size())
}

func (s *State) At(p *schema.Property, i int) ir.IRValue {
	return s.doc.Get(string(s.field(p).Index(i)))
}

func (s *State) Append(p *schema.Property, v ir.IRValue) {
	path := s.field(p)
	n := s.doc.Int(path.Size())
	s.doc.Put(string(path.Index(n)), v)
	s.doc.Put(path.Size(), ir.IRInt(n+1))
}

func (s *State) SubAt(p *schema.Property, i int) engine.CompositeState {
	return &State{doc: s.doc, base: s.field(p).Index(i)}
}

func (s *State) AppendSub(p *schema.Property, typ *schema.Type) engine.CompositeState {
	path := s.field(p)
	n := s.doc.Int(path.Size())
	slot := path.Index(n)
	s.doc.RemovePath(slot)
	s.doc.Put(slot.Type(), ir.IRString(typ.StoreName()))
	s.doc.Put(path.Size(), ir.IRInt(n+1))
	return &State{doc: s.doc, base: slot}
}

// RemoveAt removes element i and shifts the following elements down.
func (s *State) RemoveAt(p *schema.Property, i int) {
	path := s.field(p)
	n := s.doc.Int(path.Size())
	if i < 0 || i >= n {
		return
	}
	s.doc.RemovePath(path.Index(i))
	for j := i + 1; j < n; j++ {
		s.doc.MovePath(path.Index(j), path.Index(j-1))
	}
	s.doc.Put(path.Size(), ir.IRInt(n-1))
}

func (s *State) String() string {
	if s.base == "" {
		return fmt.Sprintf("%s(%s)", s.doc.Type(), s.doc.ID)
	}
	return fmt.Sprintf("%s(%s)/%s", s.doc.Type(), s.doc.ID, s.base)
}

// entityState unwraps an engine state handed back by the engine.
func entityState(cs engine.CompositeState) (*State, error) {
	s, ok := cs.(*State)
	if !ok {
		return nil, fmt.Errorf("unsupported state type: %T", cs)
	}
	if s.base != "" {
		return nil, fmt.Errorf("state %s is not an entity state", s)
	}
	return s, nil
}
