package tt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type paramHost struct {
	values map[string]string
}

func (h *paramHost) TemplateFile() string           { return "t.tt" }
func (h *paramHost) ResolvePath(path string) string { return path }
func (h *paramHost) ResolveParameterValue(_, _, name string) (string, bool) {
	v, ok := h.values[name]
	return v, ok
}
func (h *paramHost) LoadIncludeText(string) (string, string, bool) { return "", "", false }
func (h *paramHost) SetFileExtension(string)                       {}
func (h *paramHost) SetOutputEncoding(string)                      {}

func TestResolveParameterPrecedence(t *testing.T) {
	host := &paramHost{values: map[string]string{"N": "7", "S": "World", "Bad": "x"}}

	t.Run("session wins", func(t *testing.T) {
		v, ok, err := ResolveParameter[int32](map[string]interface{}{"N": 5}, host, "P", "N")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(5), v)
	})

	t.Run("incompatible session value falls through to host", func(t *testing.T) {
		v, ok, err := ResolveParameter[int](map[string]interface{}{"N": true}, host, "P", "N")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 7, v)
	})

	t.Run("session string converts", func(t *testing.T) {
		v, ok, err := ResolveParameter[int32](map[string]interface{}{"N": "5"}, nil, "P", "N")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(8), v+3)

		d, ok, err := ResolveParameter[time.Duration](map[string]interface{}{"D": "1m"}, nil, "P", "D")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, time.Minute, d)
	})

	t.Run("session string conversion failure", func(t *testing.T) {
		_, ok, err := ResolveParameter[int](map[string]interface{}{"N": "five"}, host, "P", "N")
		require.Error(t, err)
		assert.False(t, ok)
		assert.Contains(t, err.Error(), "did not match")
	})

	t.Run("host string", func(t *testing.T) {
		v, ok, err := ResolveParameter[string](nil, host, "P", "S")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "World", v)
	})

	t.Run("host conversion failure", func(t *testing.T) {
		_, ok, err := ResolveParameter[int](nil, host, "P", "Bad")
		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("ambient", func(t *testing.T) {
		SetAmbient(map[string]interface{}{"A": int64(3)})
		defer SetAmbient(nil)

		v, ok, err := ResolveParameter[int](nil, nil, "P", "A")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3, v)
	})

	t.Run("missing", func(t *testing.T) {
		v, ok, err := ResolveParameter[string](nil, nil, "P", "none")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, "", v)
	})
}

type color string

func TestCoerce(t *testing.T) {
	v, ok := Coerce[int](int8(5))
	assert.True(t, ok)
	assert.Equal(t, 5, v)

	_, ok = Coerce[int](5.5)
	assert.False(t, ok)

	_, ok = Coerce[int]("5")
	assert.False(t, ok)

	c, ok := Coerce[color]("red")
	assert.True(t, ok)
	assert.Equal(t, color("red"), c)

	s, ok := Coerce[[]string]([]interface{}{"a", "b"})
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, s)

	m, ok := Coerce[map[string]int](map[string]interface{}{"x": int16(2)})
	assert.True(t, ok)
	assert.Equal(t, map[string]int{"x": 2}, m)

	_, ok = Coerce[int](nil)
	assert.False(t, ok)
}

func TestConvert(t *testing.T) {
	n, err := Convert[int16]("42")
	require.NoError(t, err)
	assert.Equal(t, int16(42), n)

	_, err = Convert[int8]("300")
	assert.Error(t, err)

	b, err := Convert[bool]("true")
	require.NoError(t, err)
	assert.True(t, b)

	d, err := Convert[time.Duration]("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	list, err := Convert[[]string]("a b c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, list)

	val, err := Convert[interface{}]("v")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	_, err = Convert[struct{ X int }]("v")
	assert.Error(t, err)
}

func TestAmbientContext(t *testing.T) {
	ctx := WithAmbient(context.Background(), "a", 1)
	ctx = WithAmbient(ctx, "b", "two")

	assert.Equal(t, map[string]interface{}{"a": 1, "b": "two"}, AmbientFromContext(ctx))
	assert.Nil(t, AmbientFromContext(context.Background()))
}
