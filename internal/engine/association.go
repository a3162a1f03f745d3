package engine

import (
	"context"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/schema"
)

// Association returns the accessor of a single association property.
func (c *Composite) Association(name string) (*Association, error) {
	p, err := c.property(name, schema.KindAssociation)
	if err != nil {
		return nil, err
	}
	return &Association{host: c, p: p}, nil
}

// ManyAssociation returns the accessor of a many-association property.
func (c *Composite) ManyAssociation(name string) (*ManyAssociation, error) {
	p, err := c.property(name, schema.KindManyAssociation)
	if err != nil {
		return nil, err
	}
	return &ManyAssociation{host: c, p: p}, nil
}

// Association refers to at most one entity.
//
// When the property declares a back reference, Set also updates the
// mirroring property on the old and new target. A computed association is
// read-only and derived from the target's forward association.
type Association struct {
	host *Composite
	p    *schema.Property
}

// ID returns the referenced id, or "". Computed associations have no
// stored id; use Get.
func (a *Association) ID() (string, error) {
	if err := a.host.owner.checkUsable(); err != nil {
		return "", err
	}
	if a.p.Computed {
		return "", errComputedRead(a.host.typ.Name, a.p.Name)
	}
	return associationID(a.host.state, a.p), nil
}

// Get loads the referenced entity. It returns nil when the association is
// unset or the target no longer exists. A computed association yields
// the first entity whose forward association refers to the host.
func (a *Association) Get(ctx context.Context) (*Entity, error) {
	if a.p.Computed {
		found, err := a.host.uow.inverse(ctx, a.host.owner, a.p)
		if err != nil || len(found) == 0 {
			return nil, err
		}
		return found[0], nil
	}
	id, err := a.ID()
	if err != nil || id == "" {
		return nil, err
	}
	return a.host.uow.target(ctx, a.p, id)
}

// Set points the association at target. A nil target unsets it.
func (a *Association) Set(ctx context.Context, target *Entity) error {
	h := a.host
	if err := h.owner.checkWritable(); err != nil {
		return err
	}
	if a.p.Computed {
		return errComputed(h.typ.Name, a.p.Name)
	}
	if target == nil && !a.p.Nullable {
		return errConstraint(h.typ.Name, a.p.Name, "property is not nullable")
	}
	if err := h.uow.checkTarget(a.p, target); err != nil {
		return err
	}
	if err := h.checkImmutable(a.p); err != nil {
		return err
	}

	old := associationID(h.state, a.p)
	var newID string
	if target != nil {
		newID = target.ID()
	}
	if old == newID {
		return nil
	}

	if a.p.BackReference != "" {
		if old != "" {
			if err := h.uow.unlink(ctx, h.owner, a.p, old); err != nil {
				return err
			}
		}
		if target != nil {
			if err := h.uow.link(ctx, h.owner, a.p, target); err != nil {
				return err
			}
		}
	}

	if target == nil {
		h.state.Set(a.p, nil)
	} else {
		h.state.Set(a.p, ir.IRString(newID))
	}
	h.owner.touch()
	return nil
}

// ManyAssociation refers to an ordered set of entities.
type ManyAssociation struct {
	host *Composite
	p    *schema.Property
}

// IDs returns the referenced ids in order.
func (m *ManyAssociation) IDs() ([]string, error) {
	if err := m.host.owner.checkUsable(); err != nil {
		return nil, err
	}
	if m.p.Computed {
		return nil, errComputedRead(m.host.typ.Name, m.p.Name)
	}
	return associationIDs(m.host.state, m.p), nil
}

// Len returns the number of referenced entities.
func (m *ManyAssociation) Len() (int, error) {
	if err := m.host.owner.checkUsable(); err != nil {
		return 0, err
	}
	if m.p.Computed {
		return 0, errComputedRead(m.host.typ.Name, m.p.Name)
	}
	return m.host.state.Len(m.p), nil
}

// Contains reports whether id is referenced.
func (m *ManyAssociation) Contains(id string) (bool, error) {
	if err := m.host.owner.checkUsable(); err != nil {
		return false, err
	}
	if m.p.Computed {
		return false, errComputedRead(m.host.typ.Name, m.p.Name)
	}
	return indexOfID(m.host.state, m.p, id) >= 0, nil
}

// Entities loads the referenced entities, skipping ids whose entity no
// longer exists. A computed many-association runs a query for the
// entities whose forward association refers to the host.
func (m *ManyAssociation) Entities(ctx context.Context) ([]*Entity, error) {
	if m.p.Computed {
		return m.host.uow.inverse(ctx, m.host.owner, m.p)
	}
	ids, err := m.IDs()
	if err != nil {
		return nil, err
	}
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		e, err := m.host.uow.target(ctx, m.p, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// Add appends target unless it is already referenced.
func (m *ManyAssociation) Add(ctx context.Context, target *Entity) error {
	h := m.host
	if err := h.owner.checkWritable(); err != nil {
		return err
	}
	if m.p.Computed {
		return errComputed(h.typ.Name, m.p.Name)
	}
	if target == nil {
		return errConstraint(h.typ.Name, m.p.Name, "cannot add a nil entity")
	}
	if err := h.uow.checkTarget(m.p, target); err != nil {
		return err
	}
	if err := h.checkImmutable(m.p); err != nil {
		return err
	}
	if indexOfID(h.state, m.p, target.ID()) >= 0 {
		return nil
	}
	if err := checkMaxOccurs(h, m.p); err != nil {
		return err
	}

	if m.p.BackReference != "" {
		if err := h.uow.link(ctx, h.owner, m.p, target); err != nil {
			return err
		}
	}
	h.state.Append(m.p, ir.IRString(target.ID()))
	h.owner.touch()
	return nil
}

// Remove drops target from the association.
func (m *ManyAssociation) Remove(ctx context.Context, target *Entity) error {
	if target == nil {
		return nil
	}
	return m.RemoveID(ctx, target.ID())
}

// RemoveID drops the entity with id from the association.
func (m *ManyAssociation) RemoveID(ctx context.Context, id string) error {
	h := m.host
	if err := h.owner.checkWritable(); err != nil {
		return err
	}
	if m.p.Computed {
		return errComputed(h.typ.Name, m.p.Name)
	}
	if err := h.checkImmutable(m.p); err != nil {
		return err
	}
	i := indexOfID(h.state, m.p, id)
	if i < 0 {
		return nil
	}

	if m.p.BackReference != "" {
		if err := h.uow.unlink(ctx, h.owner, m.p, id); err != nil {
			return err
		}
	}
	h.state.RemoveAt(m.p, i)
	h.owner.touch()
	return nil
}

func associationID(state CompositeState, p *schema.Property) string {
	s, _ := state.Get(p).(ir.IRString)
	return string(s)
}

func associationIDs(state CompositeState, p *schema.Property) []string {
	n := state.Len(p)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if s, ok := state.At(p, i).(ir.IRString); ok {
			ids = append(ids, string(s))
		}
	}
	return ids
}

func indexOfID(state CompositeState, p *schema.Property, id string) int {
	n := state.Len(p)
	for i := 0; i < n; i++ {
		if s, ok := state.At(p, i).(ir.IRString); ok && string(s) == id {
			return i
		}
	}
	return -1
}

// target loads the entity an association property refers to. Removed and
// missing entities yield nil.
func (u *UnitOfWork) target(ctx context.Context, p *schema.Property, id string) (*Entity, error) {
	typ, err := u.entityType(p.Target)
	if err != nil {
		return nil, err
	}
	e, err := u.lookup(ctx, typ, id, nil)
	if err != nil || e == nil || e.Status() == Removed {
		return nil, err
	}
	return e, nil
}

func (u *UnitOfWork) checkTarget(p *schema.Property, target *Entity) error {
	if target == nil {
		return nil
	}
	if err := target.checkUsable(); err != nil {
		return err
	}
	switch {
	case target.uow != u:
		return newError(ErrCodeUsage, "%s belongs to another unit of work", target)
	case target.typ.Name != p.Target:
		return newError(ErrCodeUsage, "%s cannot be assigned to %s, which refers to %s", target, p.Name, p.Target)
	case target.Status() == Removed:
		return newError(ErrCodeUsage, "%s is removed", target)
	}
	return nil
}

// link updates target's back reference after owner's property p started
// referring to target. A single-valued back reference that pointed at
// another entity is moved, and that entity stops referring to target.
func (u *UnitOfWork) link(ctx context.Context, owner *Entity, p *schema.Property, target *Entity) error {
	q := target.typ.MustProperty(p.BackReference)
	if err := target.checkWritable(); err != nil {
		return err
	}

	if q.Kind == schema.KindManyAssociation {
		if indexOfID(target.state, q, owner.ID()) < 0 {
			target.state.Append(q, ir.IRString(owner.ID()))
			target.touch()
		}
		return nil
	}

	prev := associationID(target.state, q)
	if prev == owner.ID() {
		return nil
	}
	if prev != "" {
		pe, err := u.lookup(ctx, owner.typ, prev, nil)
		if err != nil {
			return err
		}
		if pe != nil && pe.Status() != Removed && pe.Status() != Evicted {
			detach(pe, p, target.ID())
		}
	}
	target.state.Set(q, ir.IRString(owner.ID()))
	target.touch()
	return nil
}

// unlink removes owner from the back reference of the entity with
// targetID after owner's property p stopped referring to it.
func (u *UnitOfWork) unlink(ctx context.Context, owner *Entity, p *schema.Property, targetID string) error {
	te, err := u.target(ctx, p, targetID)
	if err != nil || te == nil || te.Status() == Evicted {
		return err
	}
	detach(te, te.typ.MustProperty(p.BackReference), owner.ID())
	return nil
}

// detach makes e's property p stop referring to id.
func detach(e *Entity, p *schema.Property, id string) {
	if p.Kind == schema.KindAssociation {
		if associationID(e.state, p) == id {
			e.state.Set(p, nil)
			e.touch()
		}
		return
	}
	if i := indexOfID(e.state, p, id); i >= 0 {
		e.state.RemoveAt(p, i)
		e.touch()
	}
}
