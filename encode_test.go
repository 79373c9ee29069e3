package amqp

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEncodeSmallestForm(t *testing.T) {
	tests := []struct {
		label string
		value *Value
		want  []byte
	}{
		{"null", NewNull(), []byte{0x40}},
		{"true", NewBool(true), []byte{0x41}},
		{"false", NewBool(false), []byte{0x42}},
		{"uint 0", NewUint(0), []byte{0x43}},
		{"uint 1", NewUint(1), []byte{0x52, 0x01}},
		{"uint 255", NewUint(255), []byte{0x52, 0xff}},
		{"uint 256", NewUint(256), []byte{0x70, 0x00, 0x00, 0x01, 0x00}},
		{"ulong 0", NewUlong(0), []byte{0x44}},
		{"ulong 255", NewUlong(255), []byte{0x53, 0xff}},
		{"ulong 256", NewUlong(256), []byte{0x80, 0, 0, 0, 0, 0, 0, 0x01, 0x00}},
		{"int -128", NewInt(-128), []byte{0x54, 0x80}},
		{"int 127", NewInt(127), []byte{0x54, 0x7f}},
		{"int 128", NewInt(128), []byte{0x71, 0x00, 0x00, 0x00, 0x80}},
		{"int -129", NewInt(-129), []byte{0x71, 0xff, 0xff, 0xff, 0x7f}},
		{"long -1", NewLong(-1), []byte{0x55, 0xff}},
		{"long 128", NewLong(128), []byte{0x81, 0, 0, 0, 0, 0, 0, 0, 0x80}},
		{"ubyte", NewUbyte(7), []byte{0x50, 0x07}},
		{"ushort", NewUshort(0x0102), []byte{0x60, 0x01, 0x02}},
		{"byte", NewByte(-2), []byte{0x51, 0xfe}},
		{"short", NewShort(-2), []byte{0x61, 0xff, 0xfe}},
		{"float", NewFloat(1), []byte{0x72, 0x3f, 0x80, 0x00, 0x00}},
		{"double", NewDouble(1), []byte{0x82, 0x3f, 0xf0, 0, 0, 0, 0, 0, 0}},
		{"char", mustChar(t, 'x'), []byte{0x73, 0, 0, 0, 0x78}},
		{"timestamp", NewTimestamp(-1), []byte{0x83, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
		{"binary", NewBinary([]byte{0xde, 0xad}), []byte{0xa0, 0x02, 0xde, 0xad}},
		{"string", NewString("x"), []byte{0xa1, 0x01, 0x78}},
		{"symbol", NewSymbol("ab"), []byte{0xa3, 0x02, 0x61, 0x62}},
		{"empty list", NewList(), []byte{0x45}},
		{"list", listOf(t, NewUint(1), NewUint(2)), []byte{0xc0, 0x05, 0x02, 0x52, 0x01, 0x52, 0x02}},
		{"map", mapOf(t, NewSymbol("a"), NewUint(1)), []byte{0xc1, 0x06, 0x02, 0xa3, 0x01, 0x61, 0x52, 0x01}},
		{"empty map", NewMap(), []byte{0xc1, 0x01, 0x00}},
		{"empty array", NewArray(), []byte{0xe0, 0x02, 0x00, 0x40}},
		{
			"array uint",
			arrayOf(t, NewUint(1), NewUint(300)),
			[]byte{0xe0, 0x0a, 0x02, 0x70, 0, 0, 0, 0x01, 0, 0, 0x01, 0x2c},
		},
		{"array int", arrayOf(t, NewInt(1), NewInt(-1)), []byte{0xe0, 0x04, 0x02, 0x54, 0x01, 0xff}},
		{
			"array string",
			arrayOf(t, NewString("a"), NewString("bc")),
			[]byte{0xe0, 0x07, 0x02, 0xa1, 0x01, 0x61, 0x02, 0x62, 0x63},
		},
		{
			"described",
			describedOf(t, NewUlong(0x77), listOf(t, NewInt(5), NewString("x"))),
			[]byte{0x00, 0x53, 0x77, 0xc0, 0x06, 0x02, 0x54, 0x05, 0xa1, 0x01, 0x78},
		},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := Marshal(tt.value)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("unexpected encoding (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeVariableWidth(t *testing.T) {
	narrow := make([]byte, math.MaxUint8)
	data, err := Marshal(NewBinary(narrow))
	require.NoError(t, err)
	require.Equal(t, []byte{0xa0, 0xff}, data[:2])
	require.Len(t, data, 2+len(narrow))

	wide := make([]byte, math.MaxUint8+1)
	data, err = Marshal(NewBinary(wide))
	require.NoError(t, err)
	require.Equal(t, []byte{0xb0, 0x00, 0x00, 0x01, 0x00}, data[:5])
	require.Len(t, data, 5+len(wide))

	data, err = Marshal(NewString(longText))
	require.NoError(t, err)
	require.Equal(t, byte(0xb1), data[0])

	data, err = Marshal(NewSymbol(longText))
	require.NoError(t, err)
	require.Equal(t, byte(0xb3), data[0])
}

func nulls(t testing.TB, n int) *Value {
	t.Helper()
	l := NewList()
	require.NoError(t, l.ListSetCount(uint32(n)))
	return l
}

func TestEncodeListHeader(t *testing.T) {
	// 253 one byte elements still fit the compact header
	data, err := Marshal(nulls(t, 253))
	require.NoError(t, err)
	require.Equal(t, []byte{0xc0, 0xfe, 0xfd}, data[:3])
	require.Len(t, data, 3+253)

	data, err = Marshal(nulls(t, 254))
	require.NoError(t, err)
	require.Equal(t, []byte{0xd0, 0x00, 0x00, 0x01, 0x02, 0x00, 0x00, 0x00, 0xfe}, data[:9])
	require.Len(t, data, 9+254)

	// too many elements for the compact count
	data, err = Marshal(nulls(t, 256))
	require.NoError(t, err)
	require.Equal(t, byte(0xd0), data[0])
}

func TestEncodeArrayNarrowing(t *testing.T) {
	tests := []struct {
		label    string
		array    *Value
		elemCtor amqpType
		size     int
	}{
		{"small ulong", arrayOf(t, NewUlong(0), NewUlong(255)), typeCodeSmallUlong, 4 + 2},
		{"ulong", arrayOf(t, NewUlong(0), NewUlong(256)), typeCodeUlong, 4 + 16},
		{"small long", arrayOf(t, NewLong(127), NewLong(-128)), typeCodeSmalllong, 4 + 2},
		{"long", arrayOf(t, NewLong(-129)), typeCodeLong, 4 + 8},
		{"small uint", arrayOf(t, NewUint(0)), typeCodeSmallUint, 4 + 1},
		{"uint", arrayOf(t, NewUint(math.MaxUint32)), typeCodeUint, 4 + 4},
		{"small int", arrayOf(t, NewInt(-128)), typeCodeSmallint, 4 + 1},
		{"int", arrayOf(t, NewInt(math.MaxInt32)), typeCodeInt, 4 + 4},
		{"bool", arrayOf(t, NewBool(true)), typeCodeBool, 4 + 1},
		{"sym8", arrayOf(t, NewSymbol("a")), typeCodeSym8, 4 + 2},
		{"sym32", arrayOf(t, NewSymbol("a"), NewSymbol(longText)), typeCodeSym32, 10 + 5 + 4 + len(longText)},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			data, err := Marshal(tt.array)
			require.NoError(t, err)
			require.Len(t, data, tt.size)

			// the constructor follows size and count of the wider header
			ctorAt := 3
			if data[0] == byte(typeCodeArray32) {
				ctorAt = 9
			}
			require.Equal(t, byte(tt.elemCtor), data[ctorAt])
		})
	}
}

func TestEncodeArrayOfDescribed(t *testing.T) {
	a := arrayOf(t, describedOf(t, NewUlong(1), NewNull()))
	_, err := Marshal(a)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestEncodeUnsetSlots(t *testing.T) {
	c := NewCompositeWithCode(0x10, 3)
	require.NoError(t, c.CompositeSetItem(1, NewUint(1)))

	data, err := Marshal(c)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x53, 0x10, 0xc0, 0x05, 0x03, 0x40, 0x52, 0x01, 0x40}, data)
}

func TestEncodeOutputError(t *testing.T) {
	errSink := errors.New("sink full")

	v := listOf(t, NewString("hello"), NewUint(1))
	calls := 0
	err := Encode(v, func(p []byte) error {
		calls++
		if calls == 2 {
			return errSink
		}
		return nil
	})
	require.ErrorIs(t, err, errSink)
	require.Equal(t, 2, calls)
}

func TestEncodeInvalid(t *testing.T) {
	require.ErrorIs(t, Encode(nil, func([]byte) error { return nil }), ErrInvalidArgument)

	_, err := EncodedSize(nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	// nil output only validates
	require.NoError(t, Encode(NewUint(1), nil))

	v := NewString("gone")
	v.Destroy()
	_, err = Marshal(v)
	require.ErrorIs(t, err, ErrReleased)
}

func TestEncodeStreamsChunks(t *testing.T) {
	v := listOf(t, NewString("hello"), NewUint(1))
	want, err := Marshal(v)
	require.NoError(t, err)

	var got []byte
	err = Encode(v, func(p []byte) error {
		got = append(got, p...)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// nested wraps a uint in depth levels of lists, arrays and maps.
func nested(t testing.TB, depth int) *Value {
	t.Helper()
	v := NewUint(1)
	for i := 0; i < depth; i++ {
		switch i % 3 {
		case 0:
			v = listOf(t, v, NewNull())
		case 1:
			v = arrayOf(t, v)
		default:
			v = mapOf(t, NewSymbol("k"), v)
		}
	}
	return v
}

func TestEncodeDeepNesting(t *testing.T) {
	v := nested(t, 64)
	defer v.Destroy()

	start := time.Now()
	size, err := EncodedSize(v)
	require.NoError(t, err)
	data, err := Marshal(v)
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.EqualValues(t, len(data), size)

	d, err := NewDecoder(func(got *Value) {
		defer got.Destroy()
		require.True(t, testEqual(v, got), testDiff(v, got))
	}, DecoderMaxDepth(128))
	require.NoError(t, err)
	used, err := d.Decode(data)
	require.NoError(t, err)
	require.Equal(t, len(data), used)
}

func TestEncodeSharedSubtree(t *testing.T) {
	inner := listOf(t, NewString("shared"), NewUint(7))
	outer := listOf(t, inner.Clone(), inner.Clone(), arrayOf(t, inner.Clone(), inner.Clone()))
	defer outer.Destroy()
	inner.Destroy()

	size, err := EncodedSize(outer)
	require.NoError(t, err)
	data, err := Marshal(outer)
	require.NoError(t, err)
	require.EqualValues(t, len(data), size)

	got := decodeAll(t, data, 3)
	require.Len(t, got, 1)
	defer got[0].Destroy()
	require.True(t, testEqual(outer, got[0]), testDiff(outer, got[0]))
}
