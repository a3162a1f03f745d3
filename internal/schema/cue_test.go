package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entigraph/internal/ir"
)

const companyCUE = `
entities: {
	Company: {
		properties: {
			name:          {kind: "value", type: "string"}
			chief:         {kind: "association", target: "Employee", nullable: true}
			employees:     {kind: "many_association", target: "Employee"}
			address:       {kind: "composite", target: "Address", nullable: true}
			moreAddresses: {kind: "composite_collection", target: "Address", max_occurs: 5}
		}
	}
	Employee: {
		store_name: "employee"
		properties: {
			name:      {kind: "value", type: "string", store_name: "lastname"}
			firstname: {kind: "value", type: "string", nullable: true}
			rating:    {kind: "value", type: "string", default: "good"}
			active:    {kind: "value", type: "bool", default: true, immutable: true}
		}
	}
}
composites: Address: properties: {
	street: {kind: "value", type: "string"}
	nr:     {kind: "value", type: "int", default: 0}
}
`

func TestCompileCUE(t *testing.T) {
	v := cuecontext.New().CompileString(companyCUE)
	require.NoError(t, v.Err())

	reg, err := CompileCUE(v)
	require.NoError(t, err)

	company, err := reg.Entity("Company")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "chief", "employees", "address", "moreAddresses"}, company.PropertyNames())
	assert.Equal(t, KindManyAssociation, company.MustProperty("employees").Kind)
	assert.Equal(t, 5, company.MustProperty("moreAddresses").MaxOccurs)

	employee, err := reg.Entity("Employee")
	require.NoError(t, err)
	assert.Equal(t, "employee", employee.StoreName())
	assert.Equal(t, "lastname", employee.MustProperty("name").StoreName())
	assert.Equal(t, ir.IRString("good"), employee.MustProperty("rating").Default)
	assert.Equal(t, ir.IRBool(true), employee.MustProperty("active").Default)
	assert.True(t, employee.MustProperty("active").Immutable)

	address, ok := reg.Lookup("Address")
	require.True(t, ok)
	assert.False(t, address.Entity)
	assert.Equal(t, ir.IRInt(0), address.MustProperty("nr").Default)
}

func TestCompileCUEComputed(t *testing.T) {
	v := cuecontext.New().CompileString(`
entities: {
	Team: properties: {
		name:    {kind: "value", type: "string"}
		members: {kind: "many_association", target: "Player", computed: true, back_reference: "team"}
	}
	Player: properties: team: {kind: "association", target: "Team", nullable: true}
}
`)
	require.NoError(t, v.Err())

	reg, err := CompileCUE(v)
	require.NoError(t, err)
	team, err := reg.Entity("Team")
	require.NoError(t, err)
	assert.True(t, team.MustProperty("members").Computed)
	assert.False(t, team.MustProperty("name").Computed)
}

func TestCompileCUEErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty", `other: 1`, "at least one entity"},
		{"missing kind", `entities: A: properties: x: {type: "string"}`, "A.x: kind is required"},
		{"bad kind", `entities: A: properties: x: {kind: "graph"}`, "unknown property kind"},
		{"bad type", `entities: A: properties: x: {kind: "value", type: "float"}`, "unknown value type"},
		{"bad target", `entities: A: properties: x: {kind: "association", target: "B"}`, "unknown entity type"},
		{"float default", `entities: A: properties: x: {kind: "value", default: 1.5}`, "default must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			require.NoError(t, v.Err())
			_, err := CompileCUE(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCUEFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(companyCUE), 0o644))

	reg, err := LoadCUEFile(path)
	require.NoError(t, err)
	assert.Len(t, reg.Types(), 3)

	bad := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte("entities: {\n"), 0o644))
	_, err = LoadCUEFile(bad)
	require.Error(t, err)

	var ce *CompileError
	if errors.As(err, &ce) {
		assert.Contains(t, ce.Error(), "bad.cue")
	}

	_, err = LoadCUEFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.ErrorContains(t, err, "read schema")
}
