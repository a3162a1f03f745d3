package engine

import (
	"context"
	"fmt"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/query"
	"github.com/roach88/entigraph/internal/schema"
)

// matches evaluates where against an entity with uncommitted changes.
// Expressions the in-memory evaluator cannot handle go to the store.
func (u *UnitOfWork) matches(ctx context.Context, e *Entity, where query.Expression) (bool, error) {
	if query.Evaluable(where) {
		return query.Evaluate(ctx, where, compositeTarget{c: &e.Composite})
	}
	ok, err := u.rootStore().Evaluate(ctx, e.typ, e.state, where)
	if err != nil {
		return false, backendFailure("evaluate", err)
	}
	return ok, nil
}

// compositeTarget exposes a composite's raw state to query.Evaluate.
// Values are read without defaults, the way stores see them.
type compositeTarget struct {
	c *Composite
}

var _ query.Target = compositeTarget{}

func (t compositeTarget) ID() string {
	return t.c.state.ID()
}

func (t compositeTarget) property(name string) (*schema.Property, error) {
	p, ok := t.c.typ.Property(name)
	if !ok {
		return nil, fmt.Errorf("%s has no property %q", t.c.typ.Name, name)
	}
	return p, nil
}

func (t compositeTarget) Value(name string) (ir.IRValue, error) {
	p, err := t.property(name)
	if err != nil {
		return nil, err
	}
	return t.c.state.Get(p), nil
}

func (t compositeTarget) AssociationID(name string) (string, error) {
	p, err := t.property(name)
	if err != nil {
		return "", err
	}
	return associationID(t.c.state, p), nil
}

func (t compositeTarget) Composite(name string) (query.Target, error) {
	p, err := t.property(name)
	if err != nil {
		return nil, err
	}
	sub := t.c.state.Sub(p)
	if sub == nil {
		return nil, nil
	}
	return compositeTarget{c: t.c.child(p, sub)}, nil
}

func (t compositeTarget) Composites(name string) ([]query.Target, error) {
	p, err := t.property(name)
	if err != nil {
		return nil, err
	}
	n := t.c.state.Len(p)
	out := make([]query.Target, n)
	for i := range out {
		out[i] = compositeTarget{c: t.c.child(p, t.c.state.SubAt(p, i))}
	}
	return out, nil
}

func (t compositeTarget) Association(ctx context.Context, name string) (query.Target, error) {
	p, err := t.property(name)
	if err != nil {
		return nil, err
	}
	id := associationID(t.c.state, p)
	if id == "" {
		return nil, nil
	}
	e, err := t.c.uow.target(ctx, p, id)
	if err != nil || e == nil {
		return nil, err
	}
	return compositeTarget{c: &e.Composite}, nil
}

func (t compositeTarget) Associations(ctx context.Context, name string) ([]query.Target, error) {
	p, err := t.property(name)
	if err != nil {
		return nil, err
	}
	var out []query.Target
	for _, id := range associationIDs(t.c.state, p) {
		e, err := t.c.uow.target(ctx, p, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, compositeTarget{c: &e.Composite})
		}
	}
	return out, nil
}
