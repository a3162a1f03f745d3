package query

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
)

// ErrNotEvaluable is returned by Evaluate for expressions that can only be
// evaluated by a store, such as Native.
var ErrNotEvaluable = errors.New("expression cannot be evaluated in memory")

// Target is the data an expression is evaluated against: an entity or one
// of its composites.
type Target interface {
	// ID returns the entity identifier, or "" for a composite.
	ID() string

	// Value returns the value of a value property. Unset is nil.
	Value(prop string) (ir.IRValue, error)

	// AssociationID returns the id an association refers to, or "".
	AssociationID(prop string) (string, error)

	// Composite returns the composite prop, or nil if absent.
	Composite(prop string) (Target, error)

	// Composites returns the elements of a composite collection.
	Composites(prop string) ([]Target, error)

	// Association loads the entity an association refers to, or nil.
	Association(ctx context.Context, prop string) (Target, error)

	// Associations loads the entities of a many-association.
	Associations(ctx context.Context, prop string) ([]Target, error)
}

// Evaluate reports whether target matches expr. It does not modify target.
func Evaluate(ctx context.Context, expr Expression, target Target) (bool, error) {
	switch e := expr.(type) {
	case True:
		return true, nil
	case False:
		return false, nil

	case Equals:
		v, err := target.Value(e.Prop)
		if err != nil {
			return false, err
		}
		return ir.Equal(v, e.Value), nil

	case NotEquals:
		v, err := target.Value(e.Prop)
		if err != nil {
			return false, err
		}
		return !ir.Equal(v, e.Value), nil

	case Matches:
		v, err := target.Value(e.Prop)
		if err != nil {
			return false, err
		}
		s, ok := v.(ir.IRString)
		return ok && record.MatchWildcard(e.Pattern, string(s)), nil

	case EqualsAny:
		v, err := target.Value(e.Prop)
		if err != nil {
			return false, err
		}
		return slices.ContainsFunc(e.Values, func(want ir.IRValue) bool {
			return ir.Equal(v, want)
		}), nil

	case And:
		for _, c := range e.Children {
			ok, err := Evaluate(ctx, c, target)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case Or:
		for _, c := range e.Children {
			ok, err := Evaluate(ctx, c, target)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case Not:
		ok, err := Evaluate(ctx, e.Child, target)
		if err != nil {
			return false, err
		}
		return !ok, nil

	case IDs:
		id := target.ID()
		return id != "" && slices.Contains(e.IDs, id), nil

	case AssociationEquals:
		id, err := target.AssociationID(e.Prop)
		if err != nil {
			return false, err
		}
		return id != "" && slices.Contains(e.IDs, id), nil

	case TheComposite:
		sub, err := target.Composite(e.Prop)
		if err != nil || sub == nil {
			return false, err
		}
		return Evaluate(ctx, e.Sub, sub)

	case TheAssociation:
		sub, err := target.Association(ctx, e.Prop)
		if err != nil || sub == nil {
			return false, err
		}
		return Evaluate(ctx, e.Sub, sub)

	case CompositeCollection:
		elems, err := target.Composites(e.Prop)
		if err != nil {
			return false, err
		}
		return quantify(ctx, e.Quantifier, e.Sub, elems)

	case ManyAssociation:
		elems, err := target.Associations(ctx, e.Prop)
		if err != nil {
			return false, err
		}
		return quantify(ctx, e.Quantifier, e.Sub, elems)

	case Native:
		return false, ErrNotEvaluable

	default:
		return false, fmt.Errorf("unsupported expression type: %T", expr)
	}
}

func quantify(ctx context.Context, q Quantifier, sub Expression, elems []Target) (bool, error) {
	for _, elem := range elems {
		ok, err := Evaluate(ctx, sub, elem)
		if err != nil {
			return false, err
		}
		if q == Any && ok {
			return true, nil
		}
		if q == All && !ok {
			return false, nil
		}
	}
	return q == All, nil
}

// Evaluable reports whether expr can be evaluated in memory, that is
// whether it contains no Native node.
func Evaluable(expr Expression) bool {
	evaluable := true
	Walk(expr, func(e Expression) bool {
		if _, ok := e.(Native); ok {
			evaluable = false
		}
		return evaluable
	})
	return evaluable
}

// Walk calls fn for expr and each of its descendants in depth-first order
// until fn returns false.
func Walk(expr Expression, fn func(Expression) bool) bool {
	if !fn(expr) {
		return false
	}
	switch e := expr.(type) {
	case And:
		for _, c := range e.Children {
			if !Walk(c, fn) {
				return false
			}
		}
	case Or:
		for _, c := range e.Children {
			if !Walk(c, fn) {
				return false
			}
		}
	case Not:
		return Walk(e.Child, fn)
	case TheComposite:
		return Walk(e.Sub, fn)
	case TheAssociation:
		return Walk(e.Sub, fn)
	case CompositeCollection:
		return Walk(e.Sub, fn)
	case ManyAssociation:
		return Walk(e.Sub, fn)
	}
	return true
}
