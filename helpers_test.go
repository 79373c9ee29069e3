package amqp

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testEqual(x, y *Value) bool {
	return Equal(x, y)
}

func testDiff(x, y *Value) string {
	return cmp.Diff(x.String(), y.String())
}

func mustChar(t testing.TB, r rune) *Value {
	t.Helper()
	v, err := NewChar(r)
	require.NoError(t, err)
	return v
}

// listOf builds a list holding items; the items are consumed.
func listOf(t testing.TB, items ...*Value) *Value {
	t.Helper()
	l := NewList()
	for _, item := range items {
		require.NoError(t, l.ListAdd(item))
		item.Destroy()
	}
	return l
}

// arrayOf builds an array holding items; the items are consumed.
func arrayOf(t testing.TB, items ...*Value) *Value {
	t.Helper()
	a := NewArray()
	for _, item := range items {
		require.NoError(t, a.ArrayAdd(item))
		item.Destroy()
	}
	return a
}

// mapOf builds a map from alternating keys and values; they are consumed.
func mapOf(t testing.TB, kv ...*Value) *Value {
	t.Helper()
	require.True(t, len(kv)%2 == 0, "mapOf needs key/value pairs")
	m := NewMap()
	for i := 0; i < len(kv); i += 2 {
		require.NoError(t, m.MapSetValue(kv[i], kv[i+1]))
		kv[i].Destroy()
		kv[i+1].Destroy()
	}
	return m
}

func describedOf(t testing.TB, descriptor, value *Value) *Value {
	t.Helper()
	d, err := NewDescribed(descriptor, value)
	require.NoError(t, err)
	descriptor.Destroy()
	value.Destroy()
	return d
}

// decodeAll feeds data to a fresh decoder in the given chunk size and
// returns every value produced.
func decodeAll(t testing.TB, data []byte, chunk int) []*Value {
	t.Helper()
	var got []*Value
	d, err := NewDecoder(func(v *Value) { got = append(got, v) })
	require.NoError(t, err)

	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		used, err := d.Decode(data[:n])
		require.NoError(t, err)
		require.Equal(t, n, used)
		data = data[n:]
	}
	require.False(t, d.Pending(), "decoder holds a partial value")
	return got
}

var longText = strings.Repeat("0123456789", 30)
