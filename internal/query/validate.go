package query

import (
	"errors"
	"fmt"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/schema"
)

// ValidationError describes an expression that does not fit a type.
type ValidationError struct {
	Type       string
	Property   string
	Expression string
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s.%s: %s (in %s)", e.Type, e.Property, e.Message, e.Expression)
}

// Validate checks that every property expr names exists on typ (or on the
// type reached through composites and associations) and has a kind the
// node applies to. Computed properties are never stored and cannot be
// queried. All problems are reported together.
func Validate(expr Expression, typ *schema.Type, reg *schema.Registry) error {
	v := &validator{reg: reg}
	v.validate(expr, typ)
	return errors.Join(v.errs...)
}

type validator struct {
	reg  *schema.Registry
	errs []error
}

func (v *validator) fail(typ *schema.Type, prop string, expr Expression, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{
		Type:       typ.Name,
		Property:   prop,
		Expression: expr.String(),
		Message:    fmt.Sprintf(format, args...),
	})
}

// property looks up prop on typ and checks its kind.
func (v *validator) property(typ *schema.Type, prop string, expr Expression, kinds ...schema.Kind) *schema.Property {
	p, ok := typ.Property(prop)
	if !ok {
		v.fail(typ, prop, expr, "no such property")
		return nil
	}
	if p.Computed {
		v.fail(typ, prop, expr, "computed property cannot be queried")
		return nil
	}
	for _, k := range kinds {
		if p.Kind == k {
			return p
		}
	}
	v.fail(typ, prop, expr, "%s property cannot be used here", p.Kind)
	return nil
}

// target resolves the type a composite or association property refers to.
func (v *validator) target(p *schema.Property) *schema.Type {
	t, ok := v.reg.Lookup(p.Target)
	if !ok {
		return nil
	}
	return t
}

func (v *validator) validate(expr Expression, typ *schema.Type) {
	switch e := expr.(type) {
	case True, False, IDs, Native:

	case Equals:
		if p := v.property(typ, e.Prop, e, schema.KindValue); p != nil &&
			!ir.IsNull(e.Value) && !p.ValueType.Accepts(e.Value) {
			v.fail(typ, e.Prop, e, "value does not match type %s", p.ValueType)
		}
	case NotEquals:
		if p := v.property(typ, e.Prop, e, schema.KindValue); p != nil &&
			!ir.IsNull(e.Value) && !p.ValueType.Accepts(e.Value) {
			v.fail(typ, e.Prop, e, "value does not match type %s", p.ValueType)
		}
	case Matches:
		if p := v.property(typ, e.Prop, e, schema.KindValue); p != nil &&
			p.ValueType != schema.String && p.ValueType != schema.Any {
			v.fail(typ, e.Prop, e, "wildcard match needs a string property")
		}
	case EqualsAny:
		v.property(typ, e.Prop, e, schema.KindValue)
	case AssociationEquals:
		v.property(typ, e.Prop, e, schema.KindAssociation)

	case And:
		for _, c := range e.Children {
			v.validate(c, typ)
		}
	case Or:
		for _, c := range e.Children {
			v.validate(c, typ)
		}
	case Not:
		v.validate(e.Child, typ)

	case TheComposite:
		v.nested(typ, e.Prop, e, e.Sub, schema.KindComposite)
	case CompositeCollection:
		v.nested(typ, e.Prop, e, e.Sub, schema.KindCompositeCollection)
	case TheAssociation:
		v.nested(typ, e.Prop, e, e.Sub, schema.KindAssociation)
	case ManyAssociation:
		v.nested(typ, e.Prop, e, e.Sub, schema.KindManyAssociation)

	default:
		v.errs = append(v.errs, fmt.Errorf("unsupported expression type: %T", expr))
	}
}

func (v *validator) nested(typ *schema.Type, prop string, expr, sub Expression, kind schema.Kind) {
	p := v.property(typ, prop, expr, kind)
	if p == nil {
		return
	}
	if t := v.target(p); t != nil {
		v.validate(sub, t)
	}
}

