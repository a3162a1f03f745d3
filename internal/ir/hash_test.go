package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateHashDeterminism(t *testing.T) {
	a := IRObject{"_type_": IRString("Company"), "name": IRString("ullis")}
	b := IRObject{"name": IRString("ullis"), "_type_": IRString("Company")}

	ha, err := StateHash(a)
	require.NoError(t, err)
	hb, err := StateHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestStateHashChangesWithContent(t *testing.T) {
	h1 := MustStateHash(IRObject{"name": IRString("ullis")})
	h2 := MustStateHash(IRObject{"name": IRString("Irgendeine")})
	assert.NotEqual(t, h1, h2)
}

func TestStateHashIgnoresNullFields(t *testing.T) {
	h1 := MustStateHash(IRObject{"name": IRString("ullis")})
	h2 := MustStateHash(IRObject{"name": IRString("ullis"), "chief": IRNull{}})
	assert.Equal(t, h1, h2)
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainState, data), hashWithDomain("other/v1", data))
}
