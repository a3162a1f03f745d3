package record

import (
	"fmt"
	"slices"

	"github.com/roach88/entigraph/internal/ir"
)

// Match evaluates q against doc in memory.
// Stores without a native engine use it, and so does direct-state
// evaluation of uncommitted documents.
func Match(doc *Document, q Query) (bool, error) {
	if q == nil {
		return true, nil
	}

	switch query := q.(type) {
	case MatchAll:
		return true, nil
	case Term:
		if ir.IsNull(query.Value) {
			return false, fmt.Errorf("term on %q has null value", query.Field)
		}
		return ir.Equal(doc.Get(query.Field), query.Value), nil
	case Wildcard:
		s, ok := doc.Get(query.Field).(ir.IRString)
		return ok && MatchWildcard(query.Pattern, string(s)), nil
	case Exists:
		return !ir.IsNull(doc.Get(query.Field)), nil
	case IDs:
		return slices.Contains(query.IDs, doc.ID), nil
	case Bool:
		return matchBool(doc, query)
	default:
		return false, fmt.Errorf("unsupported query type: %T", q)
	}
}

func matchBool(doc *Document, q Bool) (bool, error) {
	for _, c := range q.Must {
		ok, err := Match(doc, c)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, c := range q.MustNot {
		ok, err := Match(doc, c)
		if err != nil || ok {
			return false, err
		}
	}
	if len(q.Should) == 0 {
		return true, nil
	}
	for _, c := range q.Should {
		ok, err := Match(doc, c)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// MatchWildcard reports whether s matches pattern, where "?" matches one
// character and "*" matches any run of characters, including none.
func MatchWildcard(pattern, s string) bool {
	p := []rune(pattern)
	r := []rune(s)

	pi, ri := 0, 0
	star, mark := -1, 0
	for ri < len(r) {
		switch {
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = ri
			pi++
		case pi < len(p) && (p[pi] == '?' || p[pi] == r[ri]):
			pi++
			ri++
		case star >= 0:
			pi = star + 1
			mark++
			ri = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
