package record

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entigraph/internal/ir"
)

func TestPathBuilding(t *testing.T) {
	var root Path

	assert.Equal(t, "address", root.Field("address").String())
	assert.Equal(t, "address/street", root.Field("address").Field("street").String())
	assert.Equal(t, "moreAddresses[0]/street", root.Field("moreAddresses").Index(0).Field("street").String())
	assert.Equal(t, "moreAddresses/__size__", root.Field("moreAddresses").Size())
	assert.Equal(t, "employees[3]", root.Field("employees").Index(3).String())
	assert.Equal(t, "address/_type_", root.Field("address").Type())
	assert.Equal(t, "_type_", root.Type())
}

func TestPathContains(t *testing.T) {
	p := Path("moreAddresses[1]")

	assert.True(t, p.Contains("moreAddresses[1]"))
	assert.True(t, p.Contains("moreAddresses[1]/street"))
	assert.True(t, p.Contains("moreAddresses[1][0]"))
	assert.False(t, p.Contains("moreAddresses[10]/street"))
	assert.False(t, p.Contains("moreAddresses"))
	assert.True(t, Path("").Contains("anything"))
}

func TestDocumentMovePath(t *testing.T) {
	doc := NewDocument("c1", "Company")
	doc.Put("moreAddresses[0]/street", ir.IRString("Weststrasse"))
	doc.Put("moreAddresses[1]/street", ir.IRString("Nordstrasse"))
	doc.Put("moreAddresses[1]/nr", ir.IRInt(4))
	doc.Put("moreAddresses[10]/street", ir.IRString("Oststrasse"))

	doc.MovePath("moreAddresses[1]", "moreAddresses[0]")

	assert.Equal(t, ir.IRString("Nordstrasse"), doc.Get("moreAddresses[0]/street"))
	assert.Equal(t, ir.IRInt(4), doc.Get("moreAddresses[0]/nr"))
	assert.Nil(t, doc.Get("moreAddresses[1]/street"))
	assert.Equal(t, ir.IRString("Oststrasse"), doc.Get("moreAddresses[10]/street"))
}

func TestDocumentPutNullRemoves(t *testing.T) {
	doc := NewDocument("e1", "Employee")
	doc.Put("name", ir.IRString("Philipp"))
	doc.Put("name", ir.IRNull{})

	assert.Nil(t, doc.Get("name"))
	assert.Equal(t, "Employee", doc.Type())
}

func TestDocumentCloneIsIndependent(t *testing.T) {
	doc := NewDocument("e1", "Employee")
	doc.Version = "v1"
	cp := doc.Clone()
	cp.Put("name", ir.IRString("AZ"))

	assert.Nil(t, doc.Get("name"))
	assert.Equal(t, "v1", cp.Version)
}

func TestMatch(t *testing.T) {
	doc := NewDocument("c1", "Company")
	doc.Put("name", ir.IRString("Irgendeine"))
	doc.Put("address/street", ir.IRString("Südstrasse"))
	doc.Put("address/nr", ir.IRInt(6))

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{"match all", MatchAll{}, true},
		{"match none", MatchNone(), false},
		{"term hit", Term{Field: "address/nr", Value: ir.IRInt(6)}, true},
		{"term type mismatch", Term{Field: "address/nr", Value: ir.IRString("6")}, false},
		{"wildcard", Wildcard{Field: "address/street", Pattern: "Südstr*"}, true},
		{"wildcard case sensitive", Wildcard{Field: "address/street", Pattern: "südstr*"}, false},
		{"exists", Exists{Field: "name"}, true},
		{"not exists", Exists{Field: "chief"}, false},
		{"ids", IDs{IDs: []string{"x", "c1"}}, true},
		{"empty bool", Bool{}, true},
		{"must and should", Bool{
			Must:   []Query{Term{Field: "_type_", Value: ir.IRString("Company")}},
			Should: []Query{Term{Field: "name", Value: ir.IRString("ullis")}, Term{Field: "name", Value: ir.IRString("Irgendeine")}},
		}, true},
		{"should none", Bool{Should: []Query{Term{Field: "name", Value: ir.IRString("ullis")}}}, false},
		{"must not", Bool{MustNot: []Query{Exists{Field: "name"}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Match(doc, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		pattern, s string
		want       bool
	}{
		{"*", "", true},
		{"Süd*", "Südstrasse", true},
		{"S?dstrasse", "Südstrasse", true},
		{"*strasse", "Weststrasse", true},
		{"W*st*e", "Weststrasse", true},
		{"?", "", false},
		{"abc", "abcd", false},
		{"a*c", "abd", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.s, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchWildcard(tt.pattern, tt.s))
		})
	}
}

func TestQueryString(t *testing.T) {
	q := Bool{
		Must: []Query{
			Term{Field: "_type_", Value: ir.IRString("Company")},
			Bool{Should: []Query{
				Term{Field: "employees[0]", Value: ir.IRString("e1")},
				Term{Field: "employees[1]", Value: ir.IRString("e1")},
			}},
		},
		MustNot: []Query{Exists{Field: "chief"}},
	}

	assert.Equal(t,
		`(+_type_:"Company" +(employees[0]:"e1" employees[1]:"e1") -_exists_:chief)`,
		q.String())
	assert.True(t, IsMatchNone(MatchNone()))
	assert.False(t, IsMatchNone(Bool{}))

	s := Search{Filter: Term{Field: "_type_", Value: ir.IRString("Company")}, SortField: "moreAddresses/__size__", Limit: 1}
	assert.Equal(t, `_type_:"Company" sort:moreAddresses/__size__ desc limit:1`, s.String())
}

func TestBatchVerify(t *testing.T) {
	stored := map[string]string{"a": "v1", "b": "v2"}
	current := func(id string) (string, bool, error) {
		v, ok := stored[id]
		return v, ok, nil
	}

	var ok Batch
	ok.Put(NewDocument("c", "T"), "")
	ok.Put(&Document{ID: "a", Fields: ir.IRObject{}}, "v1")
	ok.Delete("b", "v2")
	assert.NoError(t, ok.Verify(current))
	assert.Equal(t, 3, ok.Len())

	var bad Batch
	bad.Put(NewDocument("a", "T"), "")
	bad.Put(&Document{ID: "b", Fields: ir.IRObject{}}, "stale")
	bad.Delete("gone", "v9")
	err := bad.Verify(current)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"a", "b", "gone"}, conflict.IDs)

	var twice Batch
	twice.Put(NewDocument("x", "T"), "")
	twice.Put(NewDocument("x", "U"), "")
	err = twice.Verify(current)
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, []string{"x"}, conflict.IDs)
}
