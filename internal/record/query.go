package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/entigraph/internal/ir"
)

// Query is a native record query.
//
// This is a sealed interface - only types in this package implement it.
// Store implementations switch exhaustively over the concrete types.
type Query interface {
	queryNode()
	String() string
}

// Term matches documents whose field equals Value exactly.
type Term struct {
	Field string
	Value ir.IRValue
}

func (Term) queryNode() {}

func (q Term) String() string {
	return q.Field + ":" + ir.String(q.Value)
}

// Wildcard matches documents whose string field matches Pattern.
// "?" matches exactly one character and "*" any run of characters.
// Matching is case-sensitive.
type Wildcard struct {
	Field   string
	Pattern string
}

func (Wildcard) queryNode() {}

func (q Wildcard) String() string {
	return q.Field + ":~" + strconv.Quote(q.Pattern)
}

// Exists matches documents that carry Field.
type Exists struct {
	Field string
}

func (Exists) queryNode() {}

func (q Exists) String() string {
	return "_exists_:" + q.Field
}

// IDs matches documents whose id is one of IDs.
type IDs struct {
	IDs []string
}

func (IDs) queryNode() {}

func (q IDs) String() string {
	quoted := make([]string, len(q.IDs))
	for i, id := range q.IDs {
		quoted[i] = strconv.Quote(id)
	}
	return "_id_:(" + strings.Join(quoted, " ") + ")"
}

// Bool composes clauses. See the package documentation for semantics.
type Bool struct {
	Must    []Query
	Should  []Query
	MustNot []Query
}

func (Bool) queryNode() {}

func (q Bool) String() string {
	parts := make([]string, 0, len(q.Must)+len(q.Should)+len(q.MustNot))
	for _, c := range q.Must {
		parts = append(parts, "+"+c.String())
	}
	for _, c := range q.Should {
		parts = append(parts, c.String())
	}
	for _, c := range q.MustNot {
		parts = append(parts, "-"+c.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// MatchAll matches every document.
type MatchAll struct{}

func (MatchAll) queryNode() {}

func (MatchAll) String() string {
	return "*:*"
}

// MatchNone returns a query that matches no document.
func MatchNone() Query {
	return Bool{MustNot: []Query{MatchAll{}}}
}

// IsMatchNone reports whether q is the query returned by MatchNone.
func IsMatchNone(q Query) bool {
	b, ok := q.(Bool)
	if !ok || len(b.Must) != 0 || len(b.Should) != 0 || len(b.MustNot) != 1 {
		return false
	}
	_, all := b.MustNot[0].(MatchAll)
	return all
}

// Search is a query plus result shaping.
type Search struct {
	// Filter selects documents. Nil means MatchAll.
	Filter Query

	// SortField, when set, orders results by the integer value of that
	// field descending; documents without the field come last.
	// Ties and unsorted searches are ordered by id ascending.
	SortField string

	// Offset skips the first results. Limit caps the result count; zero
	// means unlimited.
	Offset int
	Limit  int

	// IDsOnly requests documents carrying only their id.
	IDsOnly bool
}

// String renders the search for logs and golden files.
func (s Search) String() string {
	var b strings.Builder
	if s.Filter == nil {
		b.WriteString(MatchAll{}.String())
	} else {
		b.WriteString(s.Filter.String())
	}
	if s.SortField != "" {
		fmt.Fprintf(&b, " sort:%s desc", s.SortField)
	}
	if s.Offset > 0 {
		fmt.Fprintf(&b, " offset:%d", s.Offset)
	}
	if s.Limit > 0 {
		fmt.Fprintf(&b, " limit:%d", s.Limit)
	}
	if s.IDsOnly {
		b.WriteString(" fields:_id_")
	}
	return b.String()
}
