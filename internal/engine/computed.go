package engine

import (
	"context"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/query"
	"github.com/roach88/entigraph/internal/schema"
)

// ComputeFunc derives the value of a computed property from its host.
type ComputeFunc func(host *Composite) (ir.IRValue, error)

// WithComputed binds the function that reads a computed value property.
// Every computed value property of the schema needs one.
func WithComputed(typeName, prop string, fn ComputeFunc) Option {
	return func(r *Repository) {
		r.computed[propertyKey{typ: typeName, prop: prop}] = fn
	}
}

// computedProperty is the innermost link of a computed value property.
type computedProperty struct {
	host *Composite
	p    *schema.Property
	fn   ComputeFunc
}

func (c *computedProperty) Get() (ir.IRValue, error) {
	if err := c.host.owner.checkUsable(); err != nil {
		return nil, err
	}
	v, err := c.fn(c.host)
	if err != nil {
		return nil, err
	}
	if ir.IsNull(v) {
		return nil, nil
	}
	return v, nil
}

func (c *computedProperty) Set(ir.IRValue) error {
	return errComputed(c.host.typ.Name, c.p.Name)
}

func errComputed(typeName, prop string) *ModelError {
	return newError(ErrCodeUsage, "%s.%s is computed and cannot be written", typeName, prop)
}

func errComputedRead(typeName, prop string) *ModelError {
	return newError(ErrCodeUsage, "%s.%s is computed; read it with a context", typeName, prop)
}

// inverse finds the entities whose one-way association p.BackReference
// refers to owner. Uncommitted changes in owner's unit of work count.
func (u *UnitOfWork) inverse(ctx context.Context, owner *Entity, p *schema.Property) ([]*Entity, error) {
	if err := owner.checkUsable(); err != nil {
		return nil, err
	}
	if owner.Status() == Removed {
		return nil, nil
	}
	typ, err := u.entityType(p.Target)
	if err != nil {
		return nil, err
	}
	forward := typ.MustProperty(p.BackReference)

	var where query.Expression
	if forward.Kind == schema.KindManyAssociation {
		where = query.AnyAssociated(forward.Name, query.ID(owner.ID()))
	} else {
		where = query.Is(forward.Name, owner.ID())
	}
	rs, err := u.Query(typ.Name).Where(where).Execute(ctx)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	return rs.Entities()
}
