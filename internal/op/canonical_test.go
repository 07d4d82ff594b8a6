package op

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeys(t *testing.T) {
	got, err := MarshalCanonical(Object{
		"b": Int(1),
		"a": String("x"),
		"c": Bool(true),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":true}`, string(got))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as surrogates starting at 0xD83D, which sorts
	// before U+FF61 in UTF-16 code units even though the code point
	// (and the UTF-8 bytes) are greater.
	obj := make(Object)
	obj["｡"] = Int(1)
	obj["\U0001F600"] = Int(2)

	got, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"｡\":1}", string(got))
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(String("a<b>&c"))
	require.NoError(t, err)
	assert.Equal(t, `"a<b>&c"`, string(got))
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// Decomposed e + combining acute collapses to the composed form, so
	// visually identical strings hash identically.
	got, err := MarshalCanonical(String("cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(got))
}

func TestMarshalCanonical_EscapesControlCharacters(t *testing.T) {
	got, err := MarshalCanonical(String("line1\nline2\ttab"))
	require.NoError(t, err)
	assert.Equal(t, `"line1\nline2\ttab"`, string(got))
}

func TestMarshalCanonical_NestedContainers(t *testing.T) {
	got, err := MarshalCanonical(Object{
		"items": Array{Int(1), String("two"), Bool(false)},
		"inner": Object{"y": Int(2), "x": Int(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"inner":{"x":1,"y":2},"items":[1,"two",false]}`, string(got))
}

func TestMarshalCanonical_RejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(3.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonical_RejectsNull(t *testing.T) {
	_, err := MarshalCanonical(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null is forbidden")
}

func TestMarshalCanonical_AcceptsDecodedGoValues(t *testing.T) {
	// YAML and JSON decoders hand back map[string]any with float64
	// numbers; whole numbers pass through as integers.
	got, err := MarshalCanonical(map[string]any{
		"count": float64(3),
		"name":  "node",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"count":3,"name":"node"}`, string(got))
}
