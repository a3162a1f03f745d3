package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/entigraph/internal/ir"
)

// Expression is a node of the query expression tree.
//
// This is a sealed interface - only types in this package implement it.
type Expression interface {
	expressionNode()
	String() string
}

// Quantifier selects how a sub-expression applies to collection elements.
type Quantifier int

const (
	// Any requires at least one element to match.
	Any Quantifier = iota
	// All requires every element to match.
	All
)

func (q Quantifier) String() string {
	if q == All {
		return "all"
	}
	return "any"
}

// True matches everything.
type True struct{}

// False matches nothing.
type False struct{}

// Equals matches when the value property Prop equals Value.
// A null Value matches an unset property.
type Equals struct {
	Prop  string
	Value ir.IRValue
}

// NotEquals is the negation of Equals.
type NotEquals struct {
	Prop  string
	Value ir.IRValue
}

// Matches matches a string property against a wildcard pattern
// ("?" one character, "*" any run). Matching is case-sensitive.
type Matches struct {
	Prop    string
	Pattern string
}

// EqualsAny matches when the property equals one of Values.
type EqualsAny struct {
	Prop   string
	Values []ir.IRValue
}

// And matches when every child matches. An empty And matches everything.
type And struct {
	Children []Expression
}

// Or matches when some child matches. An empty Or matches nothing.
type Or struct {
	Children []Expression
}

// Not inverts its child.
type Not struct {
	Child Expression
}

// IDs matches entities whose identifier is one of IDs.
type IDs struct {
	IDs []string
}

// AssociationEquals matches when the single association Prop refers to one
// of IDs.
type AssociationEquals struct {
	Prop string
	IDs  []string
}

// TheComposite applies Sub to the single composite Prop.
type TheComposite struct {
	Prop string
	Sub  Expression
}

// TheAssociation applies Sub to the entity the association Prop refers to.
type TheAssociation struct {
	Prop string
	Sub  Expression
}

// CompositeCollection applies Sub to the elements of a composite collection.
type CompositeCollection struct {
	Prop       string
	Quantifier Quantifier
	Sub        Expression
}

// ManyAssociation applies Sub to the entities of a many-association.
type ManyAssociation struct {
	Prop       string
	Quantifier Quantifier
	Sub        Expression
}

// Native wraps a predicate in a store's own query language. It cannot be
// evaluated in memory; stores that understand it evaluate it directly.
type Native struct {
	Query any
}

func (True) expressionNode()                {}
func (False) expressionNode()               {}
func (Equals) expressionNode()              {}
func (NotEquals) expressionNode()           {}
func (Matches) expressionNode()             {}
func (EqualsAny) expressionNode()           {}
func (And) expressionNode()                 {}
func (Or) expressionNode()                  {}
func (Not) expressionNode()                 {}
func (IDs) expressionNode()                 {}
func (AssociationEquals) expressionNode()   {}
func (TheComposite) expressionNode()        {}
func (TheAssociation) expressionNode()      {}
func (CompositeCollection) expressionNode() {}
func (ManyAssociation) expressionNode()     {}
func (Native) expressionNode()              {}

func (True) String() string  { return "true" }
func (False) String() string { return "false" }

func (e Equals) String() string {
	return e.Prop + " = " + ir.String(e.Value)
}

func (e NotEquals) String() string {
	return e.Prop + " != " + ir.String(e.Value)
}

func (e Matches) String() string {
	return e.Prop + " ~ " + strconv.Quote(e.Pattern)
}

func (e EqualsAny) String() string {
	parts := make([]string, len(e.Values))
	for i, v := range e.Values {
		parts[i] = ir.String(v)
	}
	return e.Prop + " in (" + strings.Join(parts, ", ") + ")"
}

func (e And) String() string {
	if len(e.Children) == 0 {
		return "true"
	}
	return join(e.Children, " and ")
}

func (e Or) String() string {
	if len(e.Children) == 0 {
		return "false"
	}
	return join(e.Children, " or ")
}

func (e Not) String() string {
	return "not " + e.Child.String()
}

func (e IDs) String() string {
	return "id in " + quoteAll(e.IDs)
}

func (e AssociationEquals) String() string {
	return e.Prop + " is " + quoteAll(e.IDs)
}

func (e TheComposite) String() string {
	return e.Prop + "{" + e.Sub.String() + "}"
}

func (e TheAssociation) String() string {
	return e.Prop + "->{" + e.Sub.String() + "}"
}

func (e CompositeCollection) String() string {
	return e.Quantifier.String() + " " + e.Prop + "{" + e.Sub.String() + "}"
}

func (e ManyAssociation) String() string {
	return e.Quantifier.String() + " " + e.Prop + "->{" + e.Sub.String() + "}"
}

func (e Native) String() string {
	return fmt.Sprintf("native(%v)", e.Query)
}

func join(children []Expression, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func quoteAll(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Quote(id)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
