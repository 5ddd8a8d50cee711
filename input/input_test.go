package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetString(t *testing.T) {
	m := map[string]any{
		"name":  "whois",
		"count": 3,
		"empty": nil,
	}

	assert.Equal(t, "whois", GetString(m, "name", "fallback"))
	assert.Equal(t, "fallback", GetString(m, "count", "fallback"))
	assert.Equal(t, "fallback", GetString(m, "empty", "fallback"))
	assert.Equal(t, "fallback", GetString(m, "missing", "fallback"))
	assert.Equal(t, "fallback", GetString(nil, "name", "fallback"))
}

func TestGetInt(t *testing.T) {
	m := map[string]any{
		"int":     42,
		"int64":   int64(43),
		"float":   44.0,
		"string":  "45",
		"badtext": "forty-six",
	}

	assert.Equal(t, 42, GetInt(m, "int", -1))
	assert.Equal(t, 43, GetInt(m, "int64", -1))
	assert.Equal(t, 44, GetInt(m, "float", -1))
	assert.Equal(t, 45, GetInt(m, "string", -1))
	assert.Equal(t, -1, GetInt(m, "badtext", -1))
	assert.Equal(t, -1, GetInt(m, "missing", -1))
	assert.Equal(t, -1, GetInt(nil, "int", -1))
}

func TestGetBool(t *testing.T) {
	m := map[string]any{
		"yes":    true,
		"text":   "true",
		"number": 1,
	}

	assert.True(t, GetBool(m, "yes", false))
	assert.True(t, GetBool(m, "text", false))
	assert.False(t, GetBool(m, "number", false))
	assert.True(t, GetBool(m, "missing", true))
}

func TestGetStringSlice(t *testing.T) {
	m := map[string]any{
		"strings": []string{"a", "b"},
		"mixed":   []any{"a", 1},
		"scalar":  "a",
	}

	assert.Equal(t, []string{"a", "b"}, GetStringSlice(m, "strings"))
	assert.Equal(t, []string{"a", "1"}, GetStringSlice(m, "mixed"))
	assert.Nil(t, GetStringSlice(m, "scalar"))
	assert.Nil(t, GetStringSlice(m, "missing"))
}

func TestGetMap(t *testing.T) {
	m := map[string]any{
		"nested": map[string]any{"key": "value"},
		"scalar": "not a map",
	}

	assert.Equal(t, map[string]any{"key": "value"}, GetMap(m, "nested"))
	assert.Nil(t, GetMap(m, "scalar"))
	assert.Nil(t, GetMap(nil, "nested"))
}

func TestStringify(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want string
	}{
		{"string", "8.8.8.8", "8.8.8.8"},
		{"integral float", float64(443), "443"},
		{"fractional float", 3.14, "3.14"},
		{"bool", true, "true"},
		{"int", 42, "42"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.val))
		})
	}
}
