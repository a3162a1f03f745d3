package engine

import (
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/schema"
)

// Composite is a typed view of an entity or of a composite nested in one.
// Nested composites share their owner entity's unit of work and status.
type Composite struct {
	uow   *UnitOfWork
	typ   *schema.Type
	state CompositeState
	owner *Entity
}

// Type returns the composite's type.
func (c *Composite) Type() *schema.Type {
	return c.typ
}

// Owner returns the entity the composite belongs to.
func (c *Composite) Owner() *Entity {
	return c.owner
}

// property looks up name and checks that it has one of kinds.
func (c *Composite) property(name string, kinds ...schema.Kind) (*schema.Property, error) {
	if err := c.owner.checkUsable(); err != nil {
		return nil, err
	}
	p, ok := c.typ.Property(name)
	if !ok {
		return nil, newError(ErrCodeUsage, "%s has no property %q", c.typ.Name, name)
	}
	for _, k := range kinds {
		if p.Kind == k {
			return p, nil
		}
	}
	return nil, newError(ErrCodeUsage, "%s.%s is a %s property", c.typ.Name, name, p.Kind)
}

func (c *Composite) child(p *schema.Property, state CompositeState) *Composite {
	t, _ := c.uow.repo.registry.Lookup(p.Target)
	return &Composite{uow: c.uow, typ: t, state: state, owner: c.owner}
}

// Property returns the accessor of a value property, wrapped in the
// concerns configured for it. Computed properties read through their bound
// function and refuse writes.
func (c *Composite) Property(name string) (Property, error) {
	p, err := c.property(name, schema.KindValue)
	if err != nil {
		return nil, err
	}
	var prop Property
	if p.Computed {
		prop = &computedProperty{host: c, p: p, fn: c.uow.repo.computed[propertyKey{typ: c.typ.Name, prop: name}]}
	} else {
		prop = &constrainedProperty{host: c, p: p, next: &stateProperty{host: c, p: p}}
	}
	concerns := c.uow.repo.concernsFor(c.typ.Name, name)
	for i := len(concerns) - 1; i >= 0; i-- {
		prop = concerns[i](c, p, prop)
	}
	return prop, nil
}

// Get reads a value property. Unset properties read as their default, or
// nil.
func (c *Composite) Get(name string) (ir.IRValue, error) {
	prop, err := c.Property(name)
	if err != nil {
		return nil, err
	}
	return prop.Get()
}

// Set writes a value property. A nil or null v unsets it.
func (c *Composite) Set(name string, v ir.IRValue) error {
	prop, err := c.Property(name)
	if err != nil {
		return err
	}
	return prop.Set(v)
}

// Nested returns the composite property name, or nil if it is unset.
func (c *Composite) Nested(name string) (*Composite, error) {
	p, err := c.property(name, schema.KindComposite)
	if err != nil {
		return nil, err
	}
	sub := c.state.Sub(p)
	if sub == nil {
		return nil, nil
	}
	return c.child(p, sub), nil
}

// CreateNested replaces the composite property name with a new composite
// and runs init on it. If init fails the property is left unset, and an
// entity that had no composite there keeps its previous status.
func (c *Composite) CreateNested(name string, init func(*Composite) error) (*Composite, error) {
	p, err := c.property(name, schema.KindComposite)
	if err != nil {
		return nil, err
	}
	if err := c.owner.checkWritable(); err != nil {
		return nil, err
	}
	if err := c.checkImmutable(p); err != nil {
		return nil, err
	}

	t, _ := c.uow.repo.registry.Lookup(p.Target)
	replaced := c.state.Sub(p) != nil
	undo := c.owner.snapshot()
	nc := c.child(p, c.state.CreateSub(p, t))
	if init != nil {
		if err := init(nc); err != nil {
			c.state.RemoveSub(p)
			if replaced {
				c.owner.touch()
			} else {
				undo()
			}
			return nil, err
		}
	}
	c.owner.touch()
	return nc, nil
}

// RemoveNested unsets a nullable composite property.
func (c *Composite) RemoveNested(name string) error {
	p, err := c.property(name, schema.KindComposite)
	if err != nil {
		return err
	}
	if err := c.owner.checkWritable(); err != nil {
		return err
	}
	if !p.Nullable {
		return errConstraint(c.typ.Name, p.Name, "property is not nullable")
	}
	if err := c.checkImmutable(p); err != nil {
		return err
	}
	if c.state.Sub(p) == nil {
		return nil
	}
	c.state.RemoveSub(p)
	c.owner.touch()
	return nil
}

func (c *Composite) checkImmutable(p *schema.Property) error {
	if p.Immutable && c.owner.Status() != Created {
		return errConstraint(c.typ.Name, p.Name, "property is immutable")
	}
	return nil
}

// Collection returns the accessor of a collection property.
func (c *Composite) Collection(name string) (*Collection, error) {
	p, err := c.property(name, schema.KindCollection)
	if err != nil {
		return nil, err
	}
	return &Collection{host: c, p: p}, nil
}

// Elements returns the accessor of a composite collection property.
func (c *Composite) Elements(name string) (*Elements, error) {
	p, err := c.property(name, schema.KindCompositeCollection)
	if err != nil {
		return nil, err
	}
	return &Elements{host: c, p: p}, nil
}

// Collection is a list of primitive values.
type Collection struct {
	host *Composite
	p    *schema.Property
}

// Len returns the number of values.
func (l *Collection) Len() (int, error) {
	if err := l.host.owner.checkUsable(); err != nil {
		return 0, err
	}
	return l.host.state.Len(l.p), nil
}

// At returns the value at index i.
func (l *Collection) At(i int) (ir.IRValue, error) {
	if err := l.checkIndex(i); err != nil {
		return nil, err
	}
	return ir.Clone(l.host.state.At(l.p, i)), nil
}

// Values returns all values in order.
func (l *Collection) Values() ([]ir.IRValue, error) {
	n, err := l.Len()
	if err != nil {
		return nil, err
	}
	out := make([]ir.IRValue, n)
	for i := range out {
		out[i] = ir.Clone(l.host.state.At(l.p, i))
	}
	return out, nil
}

// Add appends v.
func (l *Collection) Add(v ir.IRValue) error {
	h := l.host
	if err := h.owner.checkWritable(); err != nil {
		return err
	}
	if err := h.checkImmutable(l.p); err != nil {
		return err
	}
	if ir.IsNull(v) {
		return errConstraint(h.typ.Name, l.p.Name, "collection values must not be null")
	}
	if !l.p.ValueType.Accepts(v) {
		return errConstraint(h.typ.Name, l.p.Name, "value %s is not of type %s", ir.String(v), l.p.ValueType)
	}
	if err := checkMaxOccurs(h, l.p); err != nil {
		return err
	}
	h.state.Append(l.p, ir.Clone(v))
	h.owner.touch()
	return nil
}

// Remove removes the first value equal to v and reports whether one was
// found.
func (l *Collection) Remove(v ir.IRValue) (bool, error) {
	n, err := l.Len()
	if err != nil {
		return false, err
	}
	for i := 0; i < n; i++ {
		if ir.Equal(l.host.state.At(l.p, i), v) {
			return true, l.RemoveAt(i)
		}
	}
	return false, nil
}

// RemoveAt removes the value at index i.
func (l *Collection) RemoveAt(i int) error {
	if err := l.checkIndex(i); err != nil {
		return err
	}
	h := l.host
	if err := h.owner.checkWritable(); err != nil {
		return err
	}
	if err := h.checkImmutable(l.p); err != nil {
		return err
	}
	h.state.RemoveAt(l.p, i)
	h.owner.touch()
	return nil
}

func (l *Collection) checkIndex(i int) error {
	n, err := l.Len()
	if err != nil {
		return err
	}
	return checkIndex(l.host, l.p, i, n)
}

// Elements is a list of composites.
type Elements struct {
	host *Composite
	p    *schema.Property
}

// Len returns the number of elements.
func (l *Elements) Len() (int, error) {
	if err := l.host.owner.checkUsable(); err != nil {
		return 0, err
	}
	return l.host.state.Len(l.p), nil
}

// At returns the element at index i.
func (l *Elements) At(i int) (*Composite, error) {
	n, err := l.Len()
	if err != nil {
		return nil, err
	}
	if err := checkIndex(l.host, l.p, i, n); err != nil {
		return nil, err
	}
	return l.host.child(l.p, l.host.state.SubAt(l.p, i)), nil
}

// All returns every element in order.
func (l *Elements) All() ([]*Composite, error) {
	n, err := l.Len()
	if err != nil {
		return nil, err
	}
	out := make([]*Composite, n)
	for i := range out {
		out[i] = l.host.child(l.p, l.host.state.SubAt(l.p, i))
	}
	return out, nil
}

// Add appends a new element and runs init on it. If init fails the
// element is removed again.
func (l *Elements) Add(init func(*Composite) error) (*Composite, error) {
	h := l.host
	if err := h.owner.checkWritable(); err != nil {
		return nil, err
	}
	if err := h.checkImmutable(l.p); err != nil {
		return nil, err
	}
	if err := checkMaxOccurs(h, l.p); err != nil {
		return nil, err
	}

	t, _ := h.uow.repo.registry.Lookup(l.p.Target)
	undo := h.owner.snapshot()
	nc := h.child(l.p, h.state.AppendSub(l.p, t))
	if init != nil {
		if err := init(nc); err != nil {
			h.state.RemoveAt(l.p, h.state.Len(l.p)-1)
			undo()
			return nil, err
		}
	}
	h.owner.touch()
	return nc, nil
}

// RemoveAt removes the element at index i. Later elements move down.
func (l *Elements) RemoveAt(i int) error {
	n, err := l.Len()
	if err != nil {
		return err
	}
	h := l.host
	if err := checkIndex(h, l.p, i, n); err != nil {
		return err
	}
	if err := h.owner.checkWritable(); err != nil {
		return err
	}
	if err := h.checkImmutable(l.p); err != nil {
		return err
	}
	h.state.RemoveAt(l.p, i)
	h.owner.touch()
	return nil
}

func checkIndex(h *Composite, p *schema.Property, i, n int) error {
	if i < 0 || i >= n {
		return newError(ErrCodeUsage, "%s.%s: index %d out of range [0,%d)", h.typ.Name, p.Name, i, n)
	}
	return nil
}

func checkMaxOccurs(h *Composite, p *schema.Property) error {
	if p.MaxOccurs > 0 && h.state.Len(p) >= p.MaxOccurs {
		return errConstraint(h.typ.Name, p.Name, "at most %d elements allowed", p.MaxOccurs)
	}
	return nil
}
