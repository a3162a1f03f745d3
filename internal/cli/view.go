package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/schema"
)

// EntityView is the printable form of an entity: its properties resolved
// through the schema, associations shown by target id.
type EntityView struct {
	Type       string      `json:"type"`
	ID         string      `json:"id"`
	Properties ir.IRObject `json:"properties"`
}

func (v EntityView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", v.Type, v.ID)
	for _, k := range v.Properties.SortedKeys() {
		fmt.Fprintf(&b, "\n  %s: %s", k, ir.String(v.Properties[k]))
	}
	return b.String()
}

func viewEntity(ctx context.Context, e *engine.Entity) (EntityView, error) {
	props, err := viewComposite(ctx, &e.Composite)
	if err != nil {
		return EntityView{}, err
	}
	return EntityView{Type: e.Type().Name, ID: e.ID(), Properties: props}, nil
}

// viewComposite reads every property of c. Defaults apply to values, so
// the view shows what a caller of Get would see.
func viewComposite(ctx context.Context, c *engine.Composite) (ir.IRObject, error) {
	out := ir.IRObject{}
	for _, p := range c.Type().Properties {
		v, err := viewProperty(ctx, c, p)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", c.Type().Name, p.Name, err)
		}
		if !ir.IsNull(v) {
			out[p.Name] = v
		}
	}
	return out, nil
}

func viewProperty(ctx context.Context, c *engine.Composite, p *schema.Property) (ir.IRValue, error) {
	switch p.Kind {
	case schema.KindValue:
		return c.Get(p.Name)

	case schema.KindCollection:
		l, err := c.Collection(p.Name)
		if err != nil {
			return nil, err
		}
		values, err := l.Values()
		if err != nil {
			return nil, err
		}
		return ir.IRArray(values), nil

	case schema.KindComposite:
		sub, err := c.Nested(p.Name)
		if err != nil || sub == nil {
			return nil, err
		}
		return viewComposite(ctx, sub)

	case schema.KindCompositeCollection:
		l, err := c.Elements(p.Name)
		if err != nil {
			return nil, err
		}
		all, err := l.All()
		if err != nil {
			return nil, err
		}
		arr := make(ir.IRArray, 0, len(all))
		for _, sub := range all {
			obj, err := viewComposite(ctx, sub)
			if err != nil {
				return nil, err
			}
			arr = append(arr, obj)
		}
		return arr, nil

	case schema.KindAssociation:
		a, err := c.Association(p.Name)
		if err != nil {
			return nil, err
		}
		if p.Computed {
			e, err := a.Get(ctx)
			if err != nil || e == nil {
				return nil, err
			}
			return ir.IRString(e.ID()), nil
		}
		id, err := a.ID()
		if err != nil || id == "" {
			return nil, err
		}
		return ir.IRString(id), nil

	case schema.KindManyAssociation:
		m, err := c.ManyAssociation(p.Name)
		if err != nil {
			return nil, err
		}
		var ids []string
		if p.Computed {
			ids, err = entityIDs(m.Entities(ctx))
		} else {
			ids, err = m.IDs()
		}
		if err != nil {
			return nil, err
		}
		arr := make(ir.IRArray, len(ids))
		for i, id := range ids {
			arr[i] = ir.IRString(id)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unsupported property kind %s", p.Kind)
}

func entityIDs(entities []*engine.Entity, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID()
	}
	return ids, nil
}
