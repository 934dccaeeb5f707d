package canon

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshal_SortsKeys(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	out, err := Marshal(a)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1}`, string(out))
}

func TestMarshal_Determinism(t *testing.T) {
	v := map[string]any{
		"z": []any{1, 2, 3},
		"a": map[string]any{"y": true, "x": "hi"},
	}
	first, err := Marshal(v)
	require.NoError(t, err)
	second, err := Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarshal_RoundTripIdempotent(t *testing.T) {
	v := map[string]any{"b": 1, "a": map[string]any{"nested": "value"}}
	canonical, err := Marshal(v)
	require.NoError(t, err)

	var reparsed any
	require.NoError(t, json.Unmarshal(canonical, &reparsed))

	again, err := Marshal(reparsed)
	require.NoError(t, err)
	assert.Equal(t, canonical, again)
}

func TestMarshal_RejectsNaN(t *testing.T) {
	_, err := Marshal(map[string]any{"x": math.NaN()})
	assert.Error(t, err)
}

func TestMarshal_RejectsInfInStruct(t *testing.T) {
	type withFloat struct{ X float64 }
	_, err := Marshal(withFloat{X: math.Inf(1)})
	assert.Error(t, err)
}

func TestMarshal_RejectsInvalidUTF8(t *testing.T) {
	_, err := Marshal(map[string]any{"x": "valid \xff\xfe invalid"})
	require.Error(t, err)
	var canonErr *Error
	require.ErrorAs(t, err, &canonErr)
}

func TestMarshal_RejectsInvalidUTF8InStruct(t *testing.T) {
	type withString struct{ Name string }
	_, err := Marshal(withString{Name: "bad\xffbytes"})
	assert.Error(t, err)
}

func TestMarshal_RejectsCycle(t *testing.T) {
	type node struct {
		Name string
		Next *node
	}
	a := &node{Name: "a"}
	b := &node{Name: "b", Next: a}
	a.Next = b

	_, err := Marshal(a)
	require.Error(t, err)
	var canonErr *Error
	require.ErrorAs(t, err, &canonErr)
	assert.Contains(t, canonErr.Reason, "cyclic")
}

func TestMarshal_SharedPointerNotCycle(t *testing.T) {
	type leaf struct{ V int }
	shared := &leaf{V: 1}
	type parent struct {
		A *leaf
		B *leaf
	}
	_, err := Marshal(parent{A: shared, B: shared})
	assert.NoError(t, err)
}

func TestMarshal_RejectsFunction(t *testing.T) {
	_, err := Marshal(map[string]any{"x": func() {}})
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	ok, err := Equal(map[string]any{"a": 1, "b": 2}, map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.True(t, ok)
}
