package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransform_SortsKeysAndStripsWhitespace(t *testing.T) {
	raw := []byte(`{
		"zeta": 1,
		"alpha": {"b": 2, "a": 1},
		"mid": [1, 2, 3]
	}`)
	got, err := Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":{"a":1,"b":2},"mid":[1,2,3],"zeta":1}`, string(got))
}

func TestTransform_IsDeterministic(t *testing.T) {
	raw := []byte(`{"b": {"y": true, "x": null}, "a": "s"}`)
	first, err := Transform(raw)
	require.NoError(t, err)
	second, err := Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTransform_PreservesIntegerLiterals(t *testing.T) {
	got, err := Transform([]byte(`{"n": 3, "m": 1875000}`))
	require.NoError(t, err)
	assert.Equal(t, `{"m":1875000,"n":3}`, string(got))
}

func TestTransform_KeepsRealNumbersReal(t *testing.T) {
	// A literal with a decimal point survives canonicalization with its
	// fractional marker intact even when the value is whole. This is the
	// ledger's latency_ms contract.
	got, err := Transform([]byte(`{"latency_ms": 3.0}`))
	require.NoError(t, err)
	assert.Equal(t, `{"latency_ms":3.0}`, string(got))

	got, err = Transform([]byte(`{"latency_ms": 12.75}`))
	require.NoError(t, err)
	assert.Equal(t, `{"latency_ms":12.75}`, string(got))
}

func TestTransform_RejectsInvalidJSON(t *testing.T) {
	_, err := Transform([]byte(`{"unterminated": `))
	assert.Error(t, err)
}

func TestMarshalCanonical_StructurallyEqualMapsHashEqually(t *testing.T) {
	a := map[string]any{"x": 1.5, "y": map[string]any{"k": "v"}}
	b := map[string]any{"y": map[string]any{"k": "v"}, "x": 1.5}

	ca, err := MarshalCanonical(a)
	require.NoError(t, err)
	cb, err := MarshalCanonical(b)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

func TestReal_AlwaysEmitsDecimalPoint(t *testing.T) {
	cases := []struct {
		in   Real
		want string
	}{
		{Real(0), "0.0"},
		{Real(3), "3.0"},
		{Real(950), "950.0"},
		{Real(12.34), "12.34"},
		{Real(-180000), "-180000.0"},
	}
	for _, tc := range cases {
		got, err := tc.in.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(got))
	}
}

func TestMarshalCanonical_RealInsideMap(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{"latency_ms": Real(3)})
	require.NoError(t, err)
	assert.Equal(t, `{"latency_ms":3.0}`, string(got))
}
