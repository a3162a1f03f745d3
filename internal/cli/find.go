package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/query"
	"github.com/roach88/entigraph/internal/schema"
)

// FindOptions holds flags for the find command.
type FindOptions struct {
	Eq        []string
	Match     []string
	IDs       []string
	First     int
	Max       int
	ShowQuery bool
}

// FindResult is the output of the find command.
type FindResult struct {
	Type     string       `json:"type"`
	Filter   string       `json:"filter"`
	Native   string       `json:"native,omitempty"`
	Count    int          `json:"count"`
	Entities []EntityView `json:"entities"`
}

func (r FindResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s where %s: %d result(s)", r.Type, r.Filter, r.Count)
	if r.Native != "" {
		fmt.Fprintf(&b, "\nnative: %s", r.Native)
	}
	for _, e := range r.Entities {
		b.WriteString("\n")
		b.WriteString(e.String())
	}
	return b.String()
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FindOptions{}

	cmd := &cobra.Command{
		Use:   "find <type>",
		Short: "Query entities of one type",
		Long: `Query entities with property filters. All filters must hold.

Filters name a property path and a value. Path segments walk through
composites and associations; a segment naming a collection matches if
any element matches:

  entigraph find Company --eq chief.name=Ann
  entigraph find Company --match 'employees.name=B*'
  entigraph find Employee --eq company=c1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return runFind(cmd.Context(), rootOpts, opts, formatter, args[0])
		},
	}

	cmd.Flags().StringArrayVar(&opts.Eq, "eq", nil, "property path equals value (path=value)")
	cmd.Flags().StringArrayVar(&opts.Match, "match", nil, "string property matches wildcard pattern (path=pattern)")
	cmd.Flags().StringSliceVar(&opts.IDs, "id", nil, "restrict to entity ids")
	cmd.Flags().IntVar(&opts.First, "first", 0, "skip the first n committed results")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "return at most n committed results (0 = all)")
	cmd.Flags().BoolVar(&opts.ShowQuery, "show-query", false, "print the compiled store query")

	return cmd
}

func runFind(ctx context.Context, rootOpts *RootOptions, opts *FindOptions, formatter *OutputFormatter, typeName string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(rootOpts, newLogger(formatter.GetErrWriter(), rootOpts.Verbose))
	if err != nil {
		return formatter.Fail(ErrCodeGeneric, err)
	}
	defer s.Close()

	typ, err := s.registry.Entity(typeName)
	if err != nil {
		return formatter.Fail(ErrCodeNotFound, err)
	}
	where, err := buildFilter(s.registry, typ, opts)
	if err != nil {
		return formatter.Fail(ErrCodeQuery, err)
	}

	result := FindResult{Type: typ.Name, Filter: where.String(), Entities: []EntityView{}}
	if opts.ShowQuery {
		native, err := s.store.Compile(ctx, typ, where)
		if err != nil {
			return formatter.Fail(ErrCodeQuery, err)
		}
		result.Native = native.String()
	}

	u, err := s.repo.NewUnitOfWork(ctx)
	if err != nil {
		return formatter.Fail(ErrCodeUnitOfWork, err)
	}
	defer u.Close()

	rs, err := u.Query(typ.Name).Where(where).FirstResult(opts.First).MaxResults(opts.Max).Execute(ctx)
	if err != nil {
		return formatter.Fail(ErrCodeQuery, err)
	}
	defer rs.Close()

	for e, err := range rs.All() {
		if err != nil {
			return formatter.Fail(ErrCodeStore, err)
		}
		view, err := viewEntity(ctx, e)
		if err != nil {
			return formatter.Fail(ErrCodeStore, err)
		}
		result.Entities = append(result.Entities, view)
	}
	result.Count = len(result.Entities)
	formatter.VerboseLog("Found %d %s entities", result.Count, typ.Name)

	return formatter.Success(result)
}

// buildFilter turns the command's flags into one expression.
func buildFilter(reg *schema.Registry, typ *schema.Type, opts *FindOptions) (query.Expression, error) {
	var exprs []query.Expression
	if len(opts.IDs) > 0 {
		exprs = append(exprs, query.ID(opts.IDs...))
	}
	for _, arg := range opts.Eq {
		e, err := parseFilter(reg, typ, arg, false)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	for _, arg := range opts.Match {
		e, err := parseFilter(reg, typ, arg, true)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	if len(exprs) == 0 {
		return query.True{}, nil
	}
	return query.AllOf(exprs...), nil
}

// parseFilter parses "a.b.c=value" against typ.
func parseFilter(reg *schema.Registry, typ *schema.Type, arg string, match bool) (query.Expression, error) {
	path, raw, ok := strings.Cut(arg, "=")
	if !ok || path == "" {
		return nil, fmt.Errorf("invalid filter %q: want path=value", arg)
	}
	return filterPath(reg, typ, strings.Split(path, "."), raw, match)
}

func filterPath(reg *schema.Registry, typ *schema.Type, segments []string, raw string, match bool) (query.Expression, error) {
	name := segments[0]
	p, ok := typ.Property(name)
	if !ok {
		return nil, fmt.Errorf("type %s has no property %q", typ.Name, name)
	}

	if len(segments) == 1 {
		switch {
		case p.Kind == schema.KindValue && match:
			return query.Match(name, raw), nil
		case p.Kind == schema.KindValue:
			v, err := parseValue(p.ValueType, raw)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", typ.Name, name, err)
			}
			return query.Eq(name, v), nil
		case p.Kind == schema.KindAssociation && !match:
			return query.Is(name, raw), nil
		default:
			return nil, fmt.Errorf("%s.%s: cannot filter a %s property by value", typ.Name, name, p.Kind)
		}
	}

	target, ok := reg.Lookup(p.Target)
	if !ok {
		return nil, fmt.Errorf("%s.%s: a %s property has no nested properties", typ.Name, name, p.Kind)
	}
	sub, err := filterPath(reg, target, segments[1:], raw, match)
	if err != nil {
		return nil, err
	}
	switch p.Kind {
	case schema.KindComposite:
		return query.Composite(name, sub), nil
	case schema.KindCompositeCollection:
		return query.AnyElement(name, sub), nil
	case schema.KindAssociation:
		return query.Association(name, sub), nil
	case schema.KindManyAssociation:
		return query.AnyAssociated(name, sub), nil
	}
	return nil, fmt.Errorf("%s.%s: cannot descend into a %s property", typ.Name, name, p.Kind)
}

// parseValue converts a flag value to the property's value type. Untyped
// properties take integers and booleans when the text parses as one.
func parseValue(vt schema.ValueType, raw string) (ir.IRValue, error) {
	switch vt {
	case schema.String:
		return ir.IRString(raw), nil
	case schema.Int:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q", raw)
		}
		return ir.IRInt(n), nil
	case schema.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", raw)
		}
		return ir.IRBool(b), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return ir.IRInt(n), nil
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return ir.IRBool(b), nil
	}
	return ir.IRString(raw), nil
}
