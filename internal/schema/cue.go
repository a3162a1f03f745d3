package schema

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/entigraph/internal/ir"
)

// CompileError is a schema error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// LoadCUEFile reads and compiles a CUE schema file.
func LoadCUEFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	return CompileCUE(v)
}

// CompileCUE compiles a CUE value of the form
//
//	entities: Company: {
//		store_name: "company"            // optional
//		properties: {
//			name:  {kind: "value", type: "string"}
//			chief: {kind: "association", target: "Employee", nullable: true}
//		}
//	}
//	composites: Address: properties: {
//		street: {kind: "value", type: "string"}
//	}
//
// into a validated Registry. Property order follows declaration order.
func CompileCUE(v cue.Value) (*Registry, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	var decls []Declaration
	for _, section := range []struct {
		path   string
		entity bool
	}{{"entities", true}, {"composites", false}} {
		sv := v.LookupPath(cue.ParsePath(section.path))
		if !sv.Exists() {
			continue
		}
		iter, err := sv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			t, err := compileType(iter.Label(), iter.Value(), section.entity)
			if err != nil {
				return nil, err
			}
			decls = append(decls, t)
		}
	}

	if len(decls) == 0 {
		return nil, &CompileError{
			Field:   "entities",
			Message: "at least one entity or composite is required",
			Pos:     v.Pos(),
		}
	}
	return NewRegistry(decls...)
}

func compileType(name string, v cue.Value, entity bool) (*Type, error) {
	t := &Type{Name: name, Entity: entity}

	storeName, err := optionalString(v, "store_name")
	if err != nil {
		return nil, err
	}
	t.NameInStore = storeName

	props := v.LookupPath(cue.ParsePath("properties"))
	if !props.Exists() {
		return t, nil
	}
	iter, err := props.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		p, err := compileProperty(name+"."+iter.Label(), iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		t.Properties = append(t.Properties, p)
	}
	return t, nil
}

func compileProperty(field, name string, v cue.Value) (*Property, error) {
	p := &Property{Name: name}

	kindVal := v.LookupPath(cue.ParsePath("kind"))
	if !kindVal.Exists() {
		return nil, &CompileError{Field: field, Message: "kind is required", Pos: v.Pos()}
	}
	kindName, err := kindVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if p.Kind, err = ParseKind(kindName); err != nil {
		return nil, &CompileError{Field: field, Message: err.Error(), Pos: kindVal.Pos()}
	}

	typeName, err := optionalString(v, "type")
	if err != nil {
		return nil, err
	}
	if typeName != "" {
		if p.ValueType, err = ParseValueType(typeName); err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
	}

	textFields := []struct {
		key string
		dst *string
	}{
		{"target", &p.Target},
		{"store_name", &p.NameInStore},
		{"back_reference", &p.BackReference},
	}
	for _, s := range textFields {
		if *s.dst, err = optionalString(v, s.key); err != nil {
			return nil, err
		}
	}

	if p.Nullable, err = optionalBool(v, "nullable"); err != nil {
		return nil, err
	}
	if p.Immutable, err = optionalBool(v, "immutable"); err != nil {
		return nil, err
	}
	if p.Computed, err = optionalBool(v, "computed"); err != nil {
		return nil, err
	}

	if mv := v.LookupPath(cue.ParsePath("max_occurs")); mv.Exists() {
		n, err := mv.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		p.MaxOccurs = int(n)
	}

	if dv := v.LookupPath(cue.ParsePath("default")); dv.Exists() {
		def, err := cueScalar(dv)
		if err != nil {
			return nil, &CompileError{Field: field + ".default", Message: err.Error(), Pos: dv.Pos()}
		}
		p.Default = def
	}

	return p, nil
}

func optionalString(v cue.Value, key string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(key))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, key string) (bool, error) {
	bv := v.LookupPath(cue.ParsePath(key))
	if !bv.Exists() {
		return false, nil
	}
	b, err := bv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// cueScalar converts a concrete CUE string, int or bool to an IRValue.
func cueScalar(v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		return ir.IRString(s), err
	case cue.IntKind:
		n, err := v.Int64()
		return ir.IRInt(n), err
	case cue.BoolKind:
		b, err := v.Bool()
		return ir.IRBool(b), err
	default:
		return nil, fmt.Errorf("default must be a string, int or bool, got %s", v.Kind())
	}
}

// formatCUEError converts a CUE error into a CompileError carrying the
// first error's position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
