package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalFlatDocument(t *testing.T) {
	// Field names as a flattened Company document stores them.
	doc := IRObject{}
	for _, f := range []struct {
		name  string
		value IRValue
	}{
		{"name", IRString("Acme")},
		{"_type_", IRString("Company")},
		{"employees/__size__", IRInt(2)},
		{"employees/0", IRString("e1")},
		{"employees/1", IRString("e2")},
		{"address/_type_", IRString("Address")},
		{"address/street", IRString("Main")},
		{"moreAddresses/__size__", IRInt(0)},
		{"active", IRBool(true)},
		{"employees/0/tags", IRArray{IRInt(-1), IRObject{}}},
	} {
		doc[f.name] = f.value
	}

	got, err := MarshalCanonical(doc)
	require.NoError(t, err)
	assert.Equal(t,
		`{"_type_":"Company","active":true,"address/_type_":"Address","address/street":"Main",`+
			`"employees/0":"e1","employees/0/tags":[-1,{}],"employees/1":"e2",`+
			`"employees/__size__":2,"moreAddresses/__size__":0,"name":"Acme"}`,
		string(got))

	again, err := MarshalCanonical(doc.Clone())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestMarshalCanonicalScalars(t *testing.T) {
	tests := []struct {
		in   IRValue
		want string
	}{
		{IRInt(-9223372036854775808), "-9223372036854775808"},
		{IRBool(false), "false"},
		{IRString(""), `""`},
		{IRArray{}, "[]"},
	}
	for _, tt := range tests {
		got, err := MarshalCanonical(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(got))
	}
}

func TestMarshalCanonicalStrings(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`Acme "Inc"`, `"Acme \"Inc\""`},
		{`C:\data`, `"C:\\data"`},
		{"line\nbreak\r", `"line\nbreak\r"`},
		{"bell\x07", `"bell\u0007"`},
		{"<b>R&D</b>", `"<b>R&D</b>"`},
		{"para\u2029end", "\"para\u2029end\""},
		{"Zürich", `"Zürich"`},
		{"Zu\u0308rich", `"Zürich"`},
		{"\x1f\b\f\t", `"\u001f\b\f\t"`},
		{"emoji \U0001F600", "\"emoji \U0001F600\""},
	}
	for _, tt := range tests {
		got, err := MarshalCanonical(IRString(tt.in))
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, string(got), tt.in)
	}
}

func TestMarshalCanonicalKeysByUTF16(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 but after it in UTF-16.
	obj := IRObject{"\U0001F600": IRInt(1), "\uFF61": IRInt(2)}
	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":1,\"\uFF61\":2}", string(got))
}

func TestMarshalCanonicalRejectsUnset(t *testing.T) {
	_, err := MarshalCanonical(nil)
	assert.Error(t, err)

	_, err = MarshalCanonical(IRObject{"chief": IRNull{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"chief"`)

	_, err = MarshalCanonical(IRArray{IRString("a"), nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "array[1]")
}
