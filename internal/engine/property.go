package engine

import (
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/schema"
)

// Property reads and writes one value property.
//
// The accessor returned by Composite.Property is a chain: the concerns
// configured for the property (outermost first), then the schema
// constraints, then the entity state. A computed property ends in its
// function instead of the constraints and the state.
type Property interface {
	Get() (ir.IRValue, error)
	Set(v ir.IRValue) error
}

// stateProperty is the innermost link: it reads and writes the state.
type stateProperty struct {
	host *Composite
	p    *schema.Property
}

func (s *stateProperty) Get() (ir.IRValue, error) {
	return ir.Clone(s.host.state.Get(s.p)), nil
}

func (s *stateProperty) Set(v ir.IRValue) error {
	if ir.IsNull(v) {
		v = nil
	}
	s.host.state.Set(s.p, ir.Clone(v))
	s.host.owner.touch()
	return nil
}

// constrainedProperty enforces the property's schema constraints and
// supplies its default on read.
type constrainedProperty struct {
	host *Composite
	p    *schema.Property
	next Property
}

func (c *constrainedProperty) Get() (ir.IRValue, error) {
	if err := c.host.owner.checkUsable(); err != nil {
		return nil, err
	}
	v, err := c.next.Get()
	if err != nil {
		return nil, err
	}
	if ir.IsNull(v) && c.p.Default != nil {
		return ir.Clone(c.p.Default), nil
	}
	return v, nil
}

func (c *constrainedProperty) Set(v ir.IRValue) error {
	h := c.host
	if err := h.owner.checkWritable(); err != nil {
		return err
	}
	switch {
	case ir.IsNull(v) && !c.p.Nullable:
		return errConstraint(h.typ.Name, c.p.Name, "property is not nullable")
	case !ir.IsNull(v) && !c.p.ValueType.Accepts(v):
		return errConstraint(h.typ.Name, c.p.Name, "value %s is not of type %s", ir.String(v), c.p.ValueType)
	}
	if err := h.checkImmutable(c.p); err != nil {
		return err
	}
	return c.next.Set(v)
}
