package record

import (
	"strconv"
	"strings"
)

// Reserved field names.
const (
	// Delimiter joins path segments of nested composites.
	Delimiter = "/"

	// TypeField holds the type tag of a document or of a sub-structure.
	TypeField = "_type_"

	// SizeField holds the element count of a collection.
	SizeField = "__size__"
)

// Path is a linearized field path, for example "moreAddresses[0]/street".
// The zero value is the document root.
type Path string

// Field returns the path of the named field below p.
func (p Path) Field(name string) Path {
	if p == "" {
		return Path(name)
	}
	return p + Delimiter + Path(name)
}

// Index returns the path of element i of the collection at p.
func (p Path) Index(i int) Path {
	return p + "[" + Path(strconv.Itoa(i)) + "]"
}

// Size returns the name of the size field of the collection at p.
func (p Path) Size() string {
	return string(p.Field(SizeField))
}

// Type returns the name of the type tag field of the structure at p.
func (p Path) Type() string {
	return string(p.Field(TypeField))
}

// Contains reports whether field lies at or below p.
func (p Path) Contains(field string) bool {
	if p == "" {
		return true
	}
	s := string(p)
	if field == s {
		return true
	}
	if !strings.HasPrefix(field, s) {
		return false
	}
	next := field[len(s)]
	return next == '/' || next == '['
}

// Rebase moves field from below p to below q.
// The caller must ensure p.Contains(field).
func (p Path) Rebase(field string, q Path) string {
	rest := field[len(p):]
	if q == "" {
		return strings.TrimPrefix(rest, Delimiter)
	}
	if p == "" {
		return string(q) + Delimiter + rest
	}
	return string(q) + rest
}

// String implements fmt.Stringer.
func (p Path) String() string {
	return string(p)
}
