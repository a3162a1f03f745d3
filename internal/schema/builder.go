package schema

import (
	"github.com/roach88/entigraph/internal/ir"
)

// PropertyOption configures a property declared through a TypeBuilder.
type PropertyOption func(*Property)

// Nullable allows the property to be unset.
func Nullable() PropertyOption {
	return func(p *Property) { p.Nullable = true }
}

// Immutable allows the property to be set only while its entity is being
// created.
func Immutable() PropertyOption {
	return func(p *Property) { p.Immutable = true }
}

// Default sets the value returned for an unset property.
func Default(v ir.IRValue) PropertyOption {
	return func(p *Property) { p.Default = v }
}

// MaxOccurs caps a collection's size.
func MaxOccurs(n int) PropertyOption {
	return func(p *Property) { p.MaxOccurs = n }
}

// StoredAs overrides the stored field name.
func StoredAs(name string) PropertyOption {
	return func(p *Property) { p.NameInStore = name }
}

// BackReference declares the property on the target entity that mirrors
// this association.
func BackReference(name string) PropertyOption {
	return func(p *Property) { p.BackReference = name }
}

// Computed marks the property as derived rather than stored.
func Computed() PropertyOption {
	return func(p *Property) { p.Computed = true }
}

// TypeBuilder declares a type property by property.
type TypeBuilder struct {
	t *Type
}

// NewEntity starts an entity type declaration.
func NewEntity(name string) *TypeBuilder {
	return &TypeBuilder{t: &Type{Name: name, Entity: true}}
}

// NewComposite starts a composite (value object) type declaration.
func NewComposite(name string) *TypeBuilder {
	return &TypeBuilder{t: &Type{Name: name}}
}

// StoredAs overrides the type tag written to stored documents.
func (b *TypeBuilder) StoredAs(name string) *TypeBuilder {
	b.t.NameInStore = name
	return b
}

// Value declares a single-valued primitive property.
func (b *TypeBuilder) Value(name string, vt ValueType, opts ...PropertyOption) *TypeBuilder {
	return b.add(&Property{Name: name, Kind: KindValue, ValueType: vt}, opts)
}

// Collection declares a list of primitive values.
func (b *TypeBuilder) Collection(name string, vt ValueType, opts ...PropertyOption) *TypeBuilder {
	return b.add(&Property{Name: name, Kind: KindCollection, ValueType: vt}, opts)
}

// Composite declares a single nested composite.
func (b *TypeBuilder) Composite(name, target string, opts ...PropertyOption) *TypeBuilder {
	return b.add(&Property{Name: name, Kind: KindComposite, Target: target}, opts)
}

// CompositeCollection declares a list of nested composites.
func (b *TypeBuilder) CompositeCollection(name, target string, opts ...PropertyOption) *TypeBuilder {
	return b.add(&Property{Name: name, Kind: KindCompositeCollection, Target: target}, opts)
}

// Association declares a reference to one entity.
func (b *TypeBuilder) Association(name, target string, opts ...PropertyOption) *TypeBuilder {
	return b.add(&Property{Name: name, Kind: KindAssociation, Target: target}, opts)
}

// ManyAssociation declares references to many entities.
func (b *TypeBuilder) ManyAssociation(name, target string, opts ...PropertyOption) *TypeBuilder {
	return b.add(&Property{Name: name, Kind: KindManyAssociation, Target: target}, opts)
}

// Property adds an already constructed property.
func (b *TypeBuilder) Property(p *Property) *TypeBuilder {
	return b.add(p, nil)
}

func (b *TypeBuilder) add(p *Property, opts []PropertyOption) *TypeBuilder {
	for _, opt := range opts {
		opt(p)
	}
	b.t.Properties = append(b.t.Properties, p)
	return b
}

// Type returns the declared type. Validation happens in NewRegistry.
func (b *TypeBuilder) Type() *Type {
	return b.t
}
