// Package schema describes entity and composite types explicitly.
//
// A Registry is built once at startup, either with the typed builder:
//
//	company := schema.NewEntity("Company").
//		Value("name", schema.String).
//		Association("chief", "Employee", schema.Nullable()).
//		ManyAssociation("employees", "Employee").
//		Composite("address", "Address", schema.Nullable()).
//		CompositeCollection("moreAddresses", "Address")
//
// or from a CUE file (see LoadCUEFile). Types never change after the
// registry is built, so the engine reads them without locking.
package schema

import (
	"fmt"
	"strings"

	"github.com/roach88/entigraph/internal/ir"
)

// Kind classifies a property.
type Kind int

const (
	KindValue Kind = iota
	KindCollection
	KindComposite
	KindCompositeCollection
	KindAssociation
	KindManyAssociation
)

var kindNames = map[Kind]string{
	KindValue:               "value",
	KindCollection:          "collection",
	KindComposite:           "composite",
	KindCompositeCollection: "composite_collection",
	KindAssociation:         "association",
	KindManyAssociation:     "many_association",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses the lower_snake name of a kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown property kind %q", s)
}

// ValueType constrains the values of value and collection properties.
type ValueType int

const (
	Any ValueType = iota
	String
	Int
	Bool
)

var valueTypeNames = map[ValueType]string{
	Any:    "any",
	String: "string",
	Int:    "int",
	Bool:   "bool",
}

func (t ValueType) String() string {
	if s, ok := valueTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// ParseValueType parses a value type name.
func ParseValueType(s string) (ValueType, error) {
	for t, name := range valueTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

// Accepts reports whether v is a valid non-null value of type t.
func (t ValueType) Accepts(v ir.IRValue) bool {
	switch t {
	case String:
		_, ok := v.(ir.IRString)
		return ok
	case Int:
		_, ok := v.(ir.IRInt)
		return ok
	case Bool:
		_, ok := v.(ir.IRBool)
		return ok
	default:
		return !ir.IsNull(v)
	}
}

// Property describes one property of a type.
type Property struct {
	Name string
	Kind Kind

	// ValueType applies to KindValue and KindCollection.
	ValueType ValueType

	// Target is the composite type (composite kinds) or entity type
	// (association kinds) the property refers to.
	Target string

	Nullable  bool
	Immutable bool
	Default   ir.IRValue

	// MaxOccurs caps collection sizes. Zero means unbounded.
	MaxOccurs int

	// NameInStore overrides the stored field name.
	NameInStore string

	// BackReference names the property on Target that mirrors this
	// association. Both sides must name each other, unless this side is
	// computed.
	BackReference string

	// Computed properties are never stored. A computed value property is
	// read through a function bound to the repository. A computed
	// association is the inverse of the one-way association BackReference
	// names and is read with a query.
	Computed bool
}

// StoreName returns the field name used in stored documents.
func (p *Property) StoreName() string {
	if p.NameInStore != "" {
		return p.NameInStore
	}
	return p.Name
}

// IsCollection reports whether the property holds multiple values.
func (p *Property) IsCollection() bool {
	return p.Kind == KindCollection || p.Kind == KindCompositeCollection || p.Kind == KindManyAssociation
}

// IsAssociation reports whether the property refers to entities.
func (p *Property) IsAssociation() bool {
	return p.Kind == KindAssociation || p.Kind == KindManyAssociation
}

// IsComposite reports whether the property holds composite values.
func (p *Property) IsComposite() bool {
	return p.Kind == KindComposite || p.Kind == KindCompositeCollection
}

// Type describes an entity or composite type.
type Type struct {
	Name        string
	NameInStore string
	Entity      bool
	Properties  []*Property

	index map[string]*Property
}

// StoreName returns the type tag written to stored documents.
func (t *Type) StoreName() string {
	if t.NameInStore != "" {
		return t.NameInStore
	}
	return t.Name
}

// Property looks up a property by name.
func (t *Type) Property(name string) (*Property, bool) {
	p, ok := t.index[name]
	return p, ok
}

// MustProperty looks up a property and panics if it does not exist.
func (t *Type) MustProperty(name string) *Property {
	p, ok := t.index[name]
	if !ok {
		panic(fmt.Sprintf("schema: type %s has no property %q", t.Name, name))
	}
	return p
}

// PropertyNames returns the property names in declaration order.
func (t *Type) PropertyNames() []string {
	names := make([]string, len(t.Properties))
	for i, p := range t.Properties {
		names[i] = p.Name
	}
	return names
}

func (t *Type) String() string {
	var b strings.Builder
	if t.Entity {
		b.WriteString("entity ")
	} else {
		b.WriteString("composite ")
	}
	b.WriteString(t.Name)
	return b.String()
}
