package query

import (
	"github.com/roach88/entigraph/internal/ir"
)

// Eq matches prop = v. A nil or null v matches an unset property.
func Eq(prop string, v ir.IRValue) Expression { return Equals{Prop: prop, Value: v} }

// NotEq matches prop != v.
func NotEq(prop string, v ir.IRValue) Expression { return NotEquals{Prop: prop, Value: v} }

// Match matches prop against a wildcard pattern.
func Match(prop, pattern string) Expression { return Matches{Prop: prop, Pattern: pattern} }

// EqAny matches prop equal to any of values.
func EqAny(prop string, values ...ir.IRValue) Expression {
	return EqualsAny{Prop: prop, Values: values}
}

// AllOf combines expressions conjunctively. A single expression is
// returned unchanged.
func AllOf(exprs ...Expression) Expression {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return And{Children: exprs}
}

// AnyOf combines expressions disjunctively. A single expression is
// returned unchanged.
func AnyOf(exprs ...Expression) Expression {
	if len(exprs) == 1 {
		return exprs[0]
	}
	return Or{Children: exprs}
}

// Negate inverts expr.
func Negate(expr Expression) Expression { return Not{Child: expr} }

// ID matches entities with one of ids.
func ID(ids ...string) Expression { return IDs{IDs: ids} }

// Is matches when the association prop refers to id.
func Is(prop, id string) Expression { return AssociationEquals{Prop: prop, IDs: []string{id}} }

// IsAnyOf matches when the association prop refers to one of ids.
func IsAnyOf(prop string, ids ...string) Expression {
	return AssociationEquals{Prop: prop, IDs: ids}
}

// Composite applies sub to the composite prop.
func Composite(prop string, sub Expression) Expression {
	return TheComposite{Prop: prop, Sub: sub}
}

// Association applies sub to the entity prop refers to.
func Association(prop string, sub Expression) Expression {
	return TheAssociation{Prop: prop, Sub: sub}
}

// AnyElement requires some element of the composite collection prop to
// match sub.
func AnyElement(prop string, sub Expression) Expression {
	return CompositeCollection{Prop: prop, Quantifier: Any, Sub: sub}
}

// EveryElement requires every element of the composite collection prop to
// match sub.
func EveryElement(prop string, sub Expression) Expression {
	return CompositeCollection{Prop: prop, Quantifier: All, Sub: sub}
}

// AnyAssociated requires some entity of the many-association prop to
// match sub.
func AnyAssociated(prop string, sub Expression) Expression {
	return ManyAssociation{Prop: prop, Quantifier: Any, Sub: sub}
}

// EveryAssociated requires every entity of the many-association prop to
// match sub.
func EveryAssociated(prop string, sub Expression) Expression {
	return ManyAssociation{Prop: prop, Quantifier: All, Sub: sub}
}

// NativeQuery wraps a store-native predicate.
func NativeQuery(q any) Expression { return Native{Query: q} }
