package record

import (
	"github.com/roach88/entigraph/internal/ir"
)

// Document is one stored record: an id plus flat fields.
//
// Version is the content hash of the fields as last read from or written to
// the store, or "" for a document that has never been stored. Stores compare
// it against the current stored version to detect concurrent writers.
type Document struct {
	ID      string
	Version string
	Fields  ir.IRObject
}

// NewDocument creates an unstored document carrying the given type tag.
func NewDocument(id, typeName string) *Document {
	return &Document{
		ID:     id,
		Fields: ir.IRObject{TypeField: ir.IRString(typeName)},
	}
}

// Type returns the document's type tag, or "" if none is set.
func (d *Document) Type() string {
	s, _ := d.Fields[TypeField].(ir.IRString)
	return string(s)
}

// Get returns the value of field, or nil if unset.
func (d *Document) Get(field string) ir.IRValue {
	return d.Fields[field]
}

// Put sets field to v. A null value removes the field.
func (d *Document) Put(field string, v ir.IRValue) {
	if ir.IsNull(v) {
		delete(d.Fields, field)
		return
	}
	if d.Fields == nil {
		d.Fields = ir.IRObject{}
	}
	d.Fields[field] = v
}

// Int returns the integer value of field, or 0 if unset or not an integer.
func (d *Document) Int(field string) int {
	n, _ := d.Fields[field].(ir.IRInt)
	return int(n)
}

// RemovePath removes every field at or below p.
func (d *Document) RemovePath(p Path) {
	for k := range d.Fields {
		if p.Contains(k) {
			delete(d.Fields, k)
		}
	}
}

// MovePath moves every field at or below from to the same relative
// position below to. Existing fields below to are replaced.
func (d *Document) MovePath(from, to Path) {
	d.RemovePath(to)
	moved := ir.IRObject{}
	for k, v := range d.Fields {
		if from.Contains(k) {
			moved[from.Rebase(k, to)] = v
			delete(d.Fields, k)
		}
	}
	for k, v := range moved {
		d.Fields[k] = v
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	return &Document{
		ID:      d.ID,
		Version: d.Version,
		Fields:  d.Fields.Clone(),
	}
}

// Hash computes the content hash of the current fields.
func (d *Document) Hash() (string, error) {
	return ir.StateHash(d.Fields)
}
