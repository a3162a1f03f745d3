package sqlite

import (
	"fmt"
	"strings"

	"github.com/roach88/entigraph/internal/ir"
	"github.com/roach88/entigraph/internal/record"
)

// SQLCompiler compiles record searches to parameterized SQL over the
// documents/fields schema.
//
// CRITICAL: every query ends in "d.id ASC COLLATE BINARY" so results are
// deterministic, and values are always bound as parameters, never
// interpolated into the SQL text.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a search to a SELECT over documents d.
// Returns (sql, params, error).
func (c *SQLCompiler) Compile(s record.Search) (string, []any, error) {
	where, params, err := c.compileQuery(s.Filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	columns := "d.id, d.version, d.body"
	if s.IDsOnly {
		columns = "d.id, d.version"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM documents d WHERE %s ORDER BY ", columns, where)
	if s.SortField != "" {
		b.WriteString("(SELECT f.num FROM fields f WHERE f.doc_id = d.id AND f.name = ?) DESC, ")
		params = append(params, s.SortField)
	}
	b.WriteString("d.id ASC COLLATE BINARY")

	switch {
	case s.Limit > 0:
		b.WriteString(" LIMIT ? OFFSET ?")
		params = append(params, s.Limit, s.Offset)
	case s.Offset > 0:
		b.WriteString(" LIMIT -1 OFFSET ?")
		params = append(params, s.Offset)
	}

	return b.String(), params, nil
}

// CompileCount converts a filter to a COUNT query.
func (c *SQLCompiler) CompileCount(filter record.Query) (string, []any, error) {
	where, params, err := c.compileQuery(filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return "SELECT COUNT(*) FROM documents d WHERE " + where, params, nil
}

// compileQuery compiles a record.Query to a WHERE fragment.
func (c *SQLCompiler) compileQuery(q record.Query) (string, []any, error) {
	if q == nil {
		return "1 = 1", nil, nil
	}

	switch query := q.(type) {
	case record.MatchAll:
		return "1 = 1", nil, nil
	case record.Term:
		return c.compileTerm(query)
	case record.Wildcard:
		return "EXISTS (SELECT 1 FROM fields f WHERE f.doc_id = d.id AND f.name = ? AND f.text GLOB ?)",
			[]any{query.Field, globPattern(query.Pattern)}, nil
	case record.Exists:
		return "EXISTS (SELECT 1 FROM fields f WHERE f.doc_id = d.id AND f.name = ?)",
			[]any{query.Field}, nil
	case record.IDs:
		if len(query.IDs) == 0 {
			return "0 = 1", nil, nil
		}
		params := make([]any, len(query.IDs))
		for i, id := range query.IDs {
			params[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(query.IDs)), ", ")
		return "d.id IN (" + placeholders + ")", params, nil
	case record.Bool:
		return c.compileBool(query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

// compileTerm compiles an exact match. The type tag is a column on
// documents, so it skips the fields join.
func (c *SQLCompiler) compileTerm(t record.Term) (string, []any, error) {
	if s, ok := t.Value.(ir.IRString); ok && t.Field == record.TypeField {
		return "d.type = ?", []any{string(s)}, nil
	}
	value, err := ir.MarshalCanonical(t.Value)
	if err != nil {
		return "", nil, fmt.Errorf("term %s: %w", t.Field, err)
	}
	return "EXISTS (SELECT 1 FROM fields f WHERE f.doc_id = d.id AND f.name = ? AND f.value = ?)",
		[]any{t.Field, string(value)}, nil
}

func (c *SQLCompiler) compileBool(b record.Bool) (string, []any, error) {
	var parts []string
	var params []any

	for _, q := range b.Must {
		sql, p, err := c.compileQuery(q)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, p...)
	}

	if len(b.Should) > 0 {
		var should []string
		for _, q := range b.Should {
			sql, p, err := c.compileQuery(q)
			if err != nil {
				return "", nil, err
			}
			should = append(should, "("+sql+")")
			params = append(params, p...)
		}
		parts = append(parts, "("+strings.Join(should, " OR ")+")")
	}

	for _, q := range b.MustNot {
		sql, p, err := c.compileQuery(q)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "NOT ("+sql+")")
		params = append(params, p...)
	}

	if len(parts) == 0 {
		return "1 = 1", nil, nil
	}
	return strings.Join(parts, " AND "), params, nil
}

// globPattern converts a wildcard pattern to a GLOB pattern. "*" and "?"
// carry over; "[" would open a character class and must be escaped.
func globPattern(pattern string) string {
	return strings.ReplaceAll(pattern, "[", "[[]")
}
