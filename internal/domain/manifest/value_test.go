package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"key order ignored", `{"name":"A","email":"b"}`, `{"email":"b","name":"A"}`, true},
		{"extra key", `{"name":"Acme"}`, `{"name":"Acme","email":"x@y"}`, false},
		{"nested objects", `{"a":{"x":1,"y":[1,2]}}`, `{"a":{"y":[1,2],"x":1}}`, true},
		{"array order matters", `[1,2]`, `[2,1]`, false},
		{"number vs string", `1`, `"1"`, false},
		{"empty object vs null", `{}`, `null`, false},
		{"null vs null", `null`, `null`, true},
		{"bools", `true`, `false`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := MustParseValue(tt.a)
			b := MustParseValue(tt.b)
			assert.Equal(t, tt.equal, a.Equal(b))
			assert.Equal(t, tt.equal, b.Equal(a))
		})
	}
}

func TestValueAccessors(t *testing.T) {
	v := MustParseValue(`{"name":"Acme","tags":["a","b"],"count":3,"ok":true}`)

	assert.Equal(t, KindObject, v.Kind())
	assert.Equal(t, []string{"count", "name", "ok", "tags"}, v.Keys())

	tags, ok := v.Get("tags")
	assert.True(t, ok)
	assert.Equal(t, 2, tags.Len())
	first, ok := tags.Index(0)
	assert.True(t, ok)
	s, _ := first.AsString()
	assert.Equal(t, "a", s)

	count, _ := v.Get("count")
	n, ok := count.AsNumber()
	assert.True(t, ok)
	assert.Equal(t, float64(3), n)

	_, ok = v.Get("missing")
	assert.False(t, ok)
}

func TestValueBuilders(t *testing.T) {
	built := Object(map[string]Value{
		"name": String("Acme"),
		"tags": Array(String("a"), String("b")),
	})
	assert.True(t, built.Equal(MustParseValue(`{"tags":["a","b"],"name":"Acme"}`)))
	assert.True(t, Null().IsNull())
}
