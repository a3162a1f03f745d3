package recordstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/entigraph/internal/engine"
	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/query"
	"github.com/roach88/entigraph/internal/record"
	"github.com/roach88/entigraph/internal/schema"
)

// compiler translates expressions into native record queries.
//
// Fields of nested composites are addressed through a path prefix that is
// pushed when entering a composite or collection slot and restored when
// leaving it. Collection quantifiers are expanded into one clause per slot;
// the slot count is read from the store as the largest __size__ among
// documents of the root type, or taken from doc when the query is only
// matched against that one document. Association quantifiers run their
// sub-expression as a separate ids-only search against the target type.
//
// Sub-queries, and size lookups made without doc, read committed data only.
type compiler struct {
	records  record.Store
	registry *schema.Registry
	logger   *slog.Logger

	// doc, if set, is the single document the query will be matched
	// against. Its own __size__ fields bound the collection slots.
	doc *record.Document

	root   *schema.Type
	prefix record.Path
	depth  int
}

// compile returns the native query selecting entities of typ that match
// expr.
func (c *compiler) compile(ctx context.Context, typ *schema.Type, expr query.Expression) (record.Query, error) {
	sub := &compiler{
		records:  c.records,
		registry: c.registry,
		logger:   c.logger,
		doc:      c.doc,
		root:     typ,
		depth:    c.depth,
	}
	typeTerm := record.Term{Field: record.TypeField, Value: ir.IRString(typ.StoreName())}
	if _, ok := expr.(query.True); ok || expr == nil {
		return typeTerm, nil
	}
	filter, err := sub.expr(ctx, typ, expr)
	if err != nil {
		return nil, err
	}
	if record.IsMatchNone(filter) {
		return filter, nil
	}
	return record.Bool{Must: []record.Query{typeTerm, filter}}, nil
}

// expr compiles e against the composite type typ found at c.prefix.
func (c *compiler) expr(ctx context.Context, typ *schema.Type, e query.Expression) (record.Query, error) {
	switch node := e.(type) {
	case query.True:
		return record.MatchAll{}, nil
	case query.False:
		return record.MatchNone(), nil
	case query.Equals:
		field, err := c.field(typ, node.Prop)
		if err != nil {
			return nil, err
		}
		return equals(field, node.Value), nil
	case query.NotEquals:
		field, err := c.field(typ, node.Prop)
		if err != nil {
			return nil, err
		}
		return record.Bool{MustNot: []record.Query{equals(field, node.Value)}}, nil
	case query.Matches:
		field, err := c.field(typ, node.Prop)
		if err != nil {
			return nil, err
		}
		return record.Wildcard{Field: field, Pattern: node.Pattern}, nil
	case query.EqualsAny:
		field, err := c.field(typ, node.Prop)
		if err != nil {
			return nil, err
		}
		return anyOf(len(node.Values), func(i int) record.Query {
			return equals(field, node.Values[i])
		}), nil
	case query.And:
		return c.and(ctx, typ, node)
	case query.Or:
		return c.or(ctx, typ, node)
	case query.Not:
		child, err := c.expr(ctx, typ, node.Child)
		if err != nil {
			return nil, err
		}
		return record.Bool{MustNot: []record.Query{child}}, nil
	case query.IDs:
		if len(node.IDs) == 0 {
			return record.MatchNone(), nil
		}
		return record.IDs{IDs: node.IDs}, nil
	case query.AssociationEquals:
		if len(node.IDs) == 0 {
			return nil, engine.NewUnsupportedExpressionError(node, "association comparison needs at least one id")
		}
		field, err := c.field(typ, node.Prop)
		if err != nil {
			return nil, err
		}
		return idTerms(field, node.IDs), nil
	case query.TheComposite:
		return c.theComposite(ctx, typ, node)
	case query.CompositeCollection:
		return c.compositeCollection(ctx, typ, node)
	case query.TheAssociation:
		return c.theAssociation(ctx, typ, node)
	case query.ManyAssociation:
		return c.manyAssociation(ctx, typ, node)
	case query.Native:
		q, ok := node.Query.(record.Query)
		if !ok {
			return nil, engine.NewUnsupportedExpressionError(node, fmt.Sprintf("native query of type %T", node.Query))
		}
		return q, nil
	default:
		return nil, engine.NewUnsupportedExpressionError(expressionString{e}, fmt.Sprintf("unsupported expression type: %T", e))
	}
}

func (c *compiler) and(ctx context.Context, typ *schema.Type, node query.And) (record.Query, error) {
	if len(node.Children) == 0 {
		return record.MatchAll{}, nil
	}
	var must []record.Query
	for _, child := range node.Children {
		q, err := c.expr(ctx, typ, child)
		if err != nil {
			return nil, err
		}
		if record.IsMatchNone(q) {
			return q, nil
		}
		must = append(must, q)
	}
	if len(must) == 1 {
		return must[0], nil
	}
	return record.Bool{Must: must}, nil
}

func (c *compiler) or(ctx context.Context, typ *schema.Type, node query.Or) (record.Query, error) {
	var should []record.Query
	for _, child := range node.Children {
		q, err := c.expr(ctx, typ, child)
		if err != nil {
			return nil, err
		}
		if !record.IsMatchNone(q) {
			should = append(should, q)
		}
	}
	return anyOf(len(should), func(i int) record.Query { return should[i] }), nil
}

func (c *compiler) theComposite(ctx context.Context, typ *schema.Type, node query.TheComposite) (record.Query, error) {
	p, target, err := c.composite(typ, node.Prop, schema.KindComposite)
	if err != nil {
		return nil, err
	}
	path := c.prefix.Field(p.StoreName())
	c.trace("the composite", "path", path.String())
	sub, err := c.nested(ctx, path, target, node.Sub)
	if err != nil {
		return nil, err
	}
	return present(path, sub), nil
}

func (c *compiler) compositeCollection(ctx context.Context, typ *schema.Type, node query.CompositeCollection) (record.Query, error) {
	p, target, err := c.composite(typ, node.Prop, schema.KindCompositeCollection)
	if err != nil {
		return nil, err
	}
	path := c.prefix.Field(p.StoreName())
	slots, err := c.maxElements(ctx, path)
	if err != nil {
		return nil, err
	}
	c.trace("composite collection", "path", path.String(), "quantifier", node.Quantifier.String(), "slots", slots)

	clauses := make([]record.Query, 0, slots)
	for i := 0; i < slots; i++ {
		slot := path.Index(i)
		sub, err := c.nested(ctx, slot, target, node.Sub)
		if err != nil {
			return nil, err
		}
		if node.Quantifier == query.All {
			clauses = append(clauses, record.Bool{Should: []record.Query{
				absent(slot),
				sub,
			}})
		} else {
			clauses = append(clauses, present(slot, sub))
		}
	}

	if node.Quantifier == query.All {
		if len(clauses) == 0 {
			return record.MatchAll{}, nil
		}
		return record.Bool{Must: clauses}, nil
	}
	return anyOf(len(clauses), func(i int) record.Query { return clauses[i] }), nil
}

func (c *compiler) theAssociation(ctx context.Context, typ *schema.Type, node query.TheAssociation) (record.Query, error) {
	field, ids, err := c.associated(ctx, typ, node.Prop, schema.KindAssociation, node.Sub)
	if err != nil {
		return nil, err
	}
	c.trace("the association", "field", field, "ids", len(ids))
	if len(ids) == 0 {
		return record.MatchNone(), nil
	}
	return idTerms(field, ids), nil
}

func (c *compiler) manyAssociation(ctx context.Context, typ *schema.Type, node query.ManyAssociation) (record.Query, error) {
	if node.Quantifier == query.All {
		return nil, engine.NewUnsupportedExpressionError(node, "ALL over a many-association cannot be compiled")
	}
	field, ids, err := c.associated(ctx, typ, node.Prop, schema.KindManyAssociation, node.Sub)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		c.trace("many association", "field", field, "ids", 0)
		return record.MatchNone(), nil
	}
	path := record.Path(field)
	slots, err := c.maxElements(ctx, path)
	if err != nil {
		return nil, err
	}
	c.trace("many association", "field", field, "ids", len(ids), "slots", slots)

	clauses := make([]record.Query, slots)
	for i := range clauses {
		clauses[i] = idTerms(string(path.Index(i)), ids)
	}
	return anyOf(len(clauses), func(i int) record.Query { return clauses[i] }), nil
}

// nested compiles sub below path and restores the prefix afterwards.
func (c *compiler) nested(ctx context.Context, path record.Path, typ *schema.Type, sub query.Expression) (record.Query, error) {
	saved := c.prefix
	c.prefix = path
	c.depth++
	defer func() {
		c.prefix = saved
		c.depth--
	}()
	return c.expr(ctx, typ, sub)
}

// associated resolves an association property and returns its field and
// the ids of the committed target entities matching sub.
func (c *compiler) associated(ctx context.Context, typ *schema.Type, name string, kind schema.Kind, sub query.Expression) (string, []string, error) {
	p, err := c.property(typ, name, kind)
	if err != nil {
		return "", nil, err
	}
	target, err := c.registry.Entity(p.Target)
	if err != nil {
		return "", nil, err
	}

	subc := &compiler{records: c.records, registry: c.registry, logger: c.logger, depth: c.depth + 1}
	filter, err := subc.compile(ctx, target, sub)
	if err != nil {
		return "", nil, err
	}
	ids, err := c.subQuery(ctx, filter)
	if err != nil {
		return "", nil, err
	}
	return string(c.prefix.Field(p.StoreName())), ids, nil
}

func (c *compiler) subQuery(ctx context.Context, filter record.Query) ([]string, error) {
	if record.IsMatchNone(filter) {
		return nil, nil
	}
	cur, err := c.records.Find(ctx, record.Search{Filter: filter, IDsOnly: true})
	if err != nil {
		return nil, fmt.Errorf("association sub-query: %w", err)
	}
	defer cur.Close()

	var ids []string
	for cur.Next() {
		ids = append(ids, cur.Document().ID)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("association sub-query: %w", err)
	}
	c.trace("sub-query", "filter", filter.String(), "ids", len(ids))
	return ids, nil
}

// maxElements returns the largest element count of the collection at path
// among documents of the root type.
func (c *compiler) maxElements(ctx context.Context, path record.Path) (int, error) {
	sizeField := path.Size()
	if c.doc != nil {
		return c.doc.Int(sizeField), nil
	}
	cur, err := c.records.Find(ctx, record.Search{
		Filter:    record.Term{Field: record.TypeField, Value: ir.IRString(c.root.StoreName())},
		SortField: sizeField,
		Limit:     1,
	})
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", sizeField, err)
	}
	defer cur.Close()

	n := 0
	if cur.Next() {
		n = cur.Document().Int(sizeField)
	}
	if err := cur.Err(); err != nil {
		return 0, fmt.Errorf("size of %s: %w", sizeField, err)
	}
	return n, nil
}

func (c *compiler) property(typ *schema.Type, name string, kinds ...schema.Kind) (*schema.Property, error) {
	p, ok := typ.Property(name)
	if !ok {
		return nil, fmt.Errorf("%s has no property %q", typ.Name, name)
	}
	for _, k := range kinds {
		if p.Kind == k {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s.%s: %s property cannot be used here", typ.Name, name, p.Kind)
}

func (c *compiler) field(typ *schema.Type, name string) (string, error) {
	p, err := c.property(typ, name, schema.KindValue, schema.KindAssociation)
	if err != nil {
		return "", err
	}
	return string(c.prefix.Field(p.StoreName())), nil
}

func (c *compiler) composite(typ *schema.Type, name string, kind schema.Kind) (*schema.Property, *schema.Type, error) {
	p, err := c.property(typ, name, kind)
	if err != nil {
		return nil, nil, err
	}
	target, ok := c.registry.Lookup(p.Target)
	if !ok {
		return nil, nil, fmt.Errorf("%s.%s: unknown composite type %q", typ.Name, name, p.Target)
	}
	return p, target, nil
}

func (c *compiler) trace(msg string, args ...any) {
	c.logger.Debug(msg, append(args, "depth", c.depth)...)
}

// equals matches field == v; a null v matches an unset field.
func equals(field string, v ir.IRValue) record.Query {
	if ir.IsNull(v) {
		return record.Bool{MustNot: []record.Query{record.Exists{Field: field}}}
	}
	return record.Term{Field: field, Value: v}
}

func idTerms(field string, ids []string) record.Query {
	return anyOf(len(ids), func(i int) record.Query {
		return record.Term{Field: field, Value: ir.IRString(ids[i])}
	})
}

// anyOf ORs n clauses: match none for zero, the clause itself for one.
func anyOf(n int, clause func(int) record.Query) record.Query {
	switch n {
	case 0:
		return record.MatchNone()
	case 1:
		return clause(0)
	}
	should := make([]record.Query, n)
	for i := range should {
		should[i] = clause(i)
	}
	return record.Bool{Should: should}
}

// present requires the composite at path to exist and to match sub.
func present(path record.Path, sub record.Query) record.Query {
	marker := record.Exists{Field: path.Type()}
	if _, ok := sub.(record.MatchAll); ok {
		return marker
	}
	if record.IsMatchNone(sub) {
		return sub
	}
	return record.Bool{Must: []record.Query{marker, sub}}
}

func absent(path record.Path) record.Query {
	return record.Bool{MustNot: []record.Query{record.Exists{Field: path.Type()}}}
}

// expressionString lets an unknown expression type be reported.
type expressionString struct {
	e query.Expression
}

func (s expressionString) String() string {
	if s.e == nil {
		return "<nil>"
	}
	return s.e.String()
}
