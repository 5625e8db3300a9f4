package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToFloat(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{float64(1.5), 1.5, true},
		{"120.00", 120, true},
		{" 42 ", 42, true},
		{"118.50 EUR", 118.5, true},
		{"-3.5", -3.5, true},
		{"abc", 0, false},
		{nil, 0, false},
		{true, 0, false},
		{[]any{"1"}, 0, false},
	}
	for _, c := range cases {
		got, ok := ToFloat(c.in)
		assert.Equal(t, c.ok, ok, "input %v", c.in)
		if c.ok {
			assert.Equal(t, c.want, got, "input %v", c.in)
		}
	}
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "plain", Stringify("plain"))
	assert.Equal(t, "5", Stringify(float64(5)))
	assert.Equal(t, "1.5", Stringify(float64(1.5)))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, `["a","b"]`, Stringify([]any{"a", "b"}))
}

func TestMemberKey(t *testing.T) {
	// Scalars compare by string coercion.
	assert.Equal(t, "a", MemberKey("a"))
	assert.Equal(t, "5", MemberKey(float64(5)))
	// Structured elements compare by JSON.
	assert.Equal(t, `{"v":1}`, MemberKey(map[string]any{"v": float64(1)}))
	assert.Equal(t, MemberKey(map[string]any{"v": float64(1)}), MemberKey(map[string]any{"v": float64(1)}))
}

func TestFormatSignedNumber(t *testing.T) {
	assert.Equal(t, "+3", FormatSignedNumber(3))
	assert.Equal(t, "-1.5", FormatSignedNumber(-1.5))
	assert.Equal(t, "+0", FormatSignedNumber(0))
}
