package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// reserved field names that properties must not be stored as.
var reserved = map[string]bool{
	"_type_":   true,
	"_id_":     true,
	"__size__": true,
}

// ValidationError describes one problem found while building a registry.
type ValidationError struct {
	Type     string
	Property string
	Message  string
}

func (e ValidationError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s.%s: %s", e.Type, e.Property, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Registry holds a validated, immutable set of types.
type Registry struct {
	types map[string]*Type
	names []string
}

// Declaration is anything that yields a type: a *Type or a *TypeBuilder.
type Declaration interface {
	Type() *Type
}

// Type makes *Type a Declaration.
func (t *Type) Type() *Type { return t }

// NewRegistry validates the declared types and builds a registry.
// All problems are reported together, joined with errors.Join.
func NewRegistry(decls ...Declaration) (*Registry, error) {
	r := &Registry{types: make(map[string]*Type, len(decls))}

	var errs []error
	for _, d := range decls {
		t := d.Type()
		if t.Name == "" {
			errs = append(errs, ValidationError{Type: "<unnamed>", Message: "type name is required"})
			continue
		}
		if _, dup := r.types[t.Name]; dup {
			errs = append(errs, ValidationError{Type: t.Name, Message: "type declared twice"})
			continue
		}
		t.index = make(map[string]*Property, len(t.Properties))
		for _, p := range t.Properties {
			t.index[p.Name] = p
		}
		r.types[t.Name] = t
		r.names = append(r.names, t.Name)
	}
	sort.Strings(r.names)

	for _, name := range r.names {
		errs = append(errs, r.validateType(r.types[name])...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
// Use only in tests or for schemas known to be valid.
func MustRegistry(decls ...Declaration) *Registry {
	r, err := NewRegistry(decls...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the type with name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Entity returns the entity type with name or an error.
func (r *Registry) Entity(name string) (*Type, error) {
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	if !t.Entity {
		return nil, fmt.Errorf("type %q is a composite, not an entity", name)
	}
	return t, nil
}

// Types returns all types sorted by name.
func (r *Registry) Types() []*Type {
	out := make([]*Type, len(r.names))
	for i, n := range r.names {
		out[i] = r.types[n]
	}
	return out
}

func (r *Registry) validateType(t *Type) []error {
	var errs []error
	fail := func(p *Property, format string, args ...any) {
		ve := ValidationError{Type: t.Name, Message: fmt.Sprintf(format, args...)}
		if p != nil {
			ve.Property = p.Name
		}
		errs = append(errs, ve)
	}

	if strings.ContainsAny(t.StoreName(), "/[]") {
		fail(nil, "store name %q contains a path character", t.StoreName())
	}

	seenName := map[string]bool{}
	seenStore := map[string]bool{}
	for _, p := range t.Properties {
		switch {
		case p.Name == "":
			fail(p, "property name is required")
			continue
		case seenName[p.Name]:
			fail(p, "property declared twice")
		case seenStore[p.StoreName()]:
			fail(p, "store name %q used twice", p.StoreName())
		}
		seenName[p.Name] = true
		seenStore[p.StoreName()] = true

		if reserved[p.StoreName()] {
			fail(p, "store name %q is reserved", p.StoreName())
		}
		if strings.ContainsAny(p.StoreName(), "/[]") {
			fail(p, "store name %q contains a path character", p.StoreName())
		}
		if p.MaxOccurs < 0 || (p.MaxOccurs > 0 && !p.IsCollection()) {
			fail(p, "max occurs only applies to collections")
		}

		switch p.Kind {
		case KindValue, KindCollection:
			if p.Target != "" {
				fail(p, "%s property cannot have a target", p.Kind)
			}
			if p.Default != nil && !p.ValueType.Accepts(p.Default) {
				fail(p, "default does not match value type %s", p.ValueType)
			}
		case KindComposite, KindCompositeCollection:
			target, ok := r.types[p.Target]
			switch {
			case !ok:
				fail(p, "unknown composite type %q", p.Target)
			case target.Entity:
				fail(p, "target %q is an entity; use an association", p.Target)
			}
		case KindAssociation, KindManyAssociation:
			target, ok := r.types[p.Target]
			switch {
			case !ok:
				fail(p, "unknown entity type %q", p.Target)
			case !target.Entity:
				fail(p, "target %q is a composite; use a composite property", p.Target)
			}
		default:
			fail(p, "unknown kind %s", p.Kind)
		}

		if p.Default != nil && p.Kind != KindValue {
			fail(p, "only value properties can have a default")
		}
		if p.Computed {
			errs = append(errs, r.validateComputed(t, p)...)
		} else if p.BackReference != "" {
			errs = append(errs, r.validateBackReference(t, p)...)
		}
	}
	return errs
}

// validateBackReference checks that both sides of a bidirectional
// association name each other.
func (r *Registry) validateBackReference(t *Type, p *Property) []error {
	fail := func(format string, args ...any) []error {
		return []error{ValidationError{Type: t.Name, Property: p.Name, Message: fmt.Sprintf(format, args...)}}
	}

	if !p.IsAssociation() {
		return fail("back reference only applies to associations")
	}
	target, ok := r.types[p.Target]
	if !ok {
		return nil // reported as unknown target
	}
	back, ok := target.index[p.BackReference]
	if !ok {
		return fail("back reference %s.%s does not exist", target.Name, p.BackReference)
	}
	if !back.IsAssociation() || back.Target != t.Name {
		return fail("back reference %s.%s does not refer to %s", target.Name, back.Name, t.Name)
	}
	if back.Computed {
		return fail("back reference %s.%s is computed", target.Name, back.Name)
	}
	if back.BackReference != p.Name {
		return fail("back reference %s.%s must name %s as its back reference", target.Name, back.Name, p.Name)
	}
	return nil
}

// validateComputed checks a computed property. A computed association
// must be the inverse of a stored one-way association on its target.
func (r *Registry) validateComputed(t *Type, p *Property) []error {
	fail := func(format string, args ...any) []error {
		return []error{ValidationError{Type: t.Name, Property: p.Name, Message: fmt.Sprintf(format, args...)}}
	}

	switch {
	case p.Kind == KindValue:
		if p.BackReference != "" {
			return fail("back reference only applies to associations")
		}
		if p.Default != nil || p.Immutable {
			return fail("computed property cannot have a default or be immutable")
		}
		return nil
	case !p.IsAssociation():
		return fail("only value and association properties can be computed")
	case !t.Entity:
		return fail("computed association must belong to an entity type")
	case p.BackReference == "":
		return fail("computed association must name the association it inverts")
	}

	target, ok := r.types[p.Target]
	if !ok {
		return nil // reported as unknown target
	}
	forward, ok := target.index[p.BackReference]
	switch {
	case !ok:
		return fail("back reference %s.%s does not exist", target.Name, p.BackReference)
	case !forward.IsAssociation() || forward.Target != t.Name:
		return fail("back reference %s.%s does not refer to %s", target.Name, forward.Name, t.Name)
	case forward.Computed:
		return fail("back reference %s.%s is computed", target.Name, forward.Name)
	case forward.BackReference != "":
		return fail("back reference %s.%s already has a back reference", target.Name, forward.Name)
	}
	return nil
}
