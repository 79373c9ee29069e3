package amqp

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValueAccessors(t *testing.T) {
	b, err := NewBool(true).AsBool()
	require.NoError(t, err)
	require.True(t, b)

	u8, err := NewUbyte(200).AsUbyte()
	require.NoError(t, err)
	require.EqualValues(t, 200, u8)

	u16, err := NewUshort(math.MaxUint16).AsUshort()
	require.NoError(t, err)
	require.EqualValues(t, math.MaxUint16, u16)

	u32, err := NewUint(7).AsUint()
	require.NoError(t, err)
	require.EqualValues(t, 7, u32)

	u64, err := NewUlong(math.MaxUint64).AsUlong()
	require.NoError(t, err)
	require.EqualValues(t, uint64(math.MaxUint64), u64)

	i8, err := NewByte(-3).AsByte()
	require.NoError(t, err)
	require.EqualValues(t, -3, i8)

	i16, err := NewShort(-300).AsShort()
	require.NoError(t, err)
	require.EqualValues(t, -300, i16)

	i32, err := NewInt(math.MinInt32).AsInt()
	require.NoError(t, err)
	require.EqualValues(t, math.MinInt32, i32)

	i64, err := NewLong(math.MinInt64).AsLong()
	require.NoError(t, err)
	require.EqualValues(t, int64(math.MinInt64), i64)

	f32, err := NewFloat(1.5).AsFloat()
	require.NoError(t, err)
	require.Equal(t, float32(1.5), f32)

	f64, err := NewDouble(-2.25).AsDouble()
	require.NoError(t, err)
	require.Equal(t, -2.25, f64)

	r, err := mustChar(t, 'é').AsChar()
	require.NoError(t, err)
	require.Equal(t, 'é', r)

	ms, err := NewTimestamp(-1500).AsTimestamp()
	require.NoError(t, err)
	require.EqualValues(t, -1500, ms)

	s, err := NewString("hello").AsString()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	sym, err := NewSymbol("amqp:link:detach-forced").AsSymbol()
	require.NoError(t, err)
	require.Equal(t, "amqp:link:detach-forced", sym)
}

func TestValueTypeMismatch(t *testing.T) {
	_, err := NewString("x").AsSymbol()
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewSymbol("x").AsString()
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewUint(1).AsUlong()
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewInt(1).AsTimestamp()
	require.ErrorIs(t, err, ErrTypeMismatch)

	_, err = NewNull().ListCount()
	require.ErrorIs(t, err, ErrTypeMismatch)

	var nilValue *Value
	_, err = nilValue.AsBool()
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Equal(t, TypeNull, nilValue.Type())
}

func TestNewChar(t *testing.T) {
	_, err := NewChar(0x10FFFF)
	require.NoError(t, err)

	_, err = NewChar(0x110000)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewChar(-1)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNewBinaryCopies(t *testing.T) {
	src := []byte{1, 2, 3}
	v := NewBinary(src)
	src[0] = 9

	got, err := v.AsBinary()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)

	empty, err := NewBinary(nil).AsBinary()
	require.NoError(t, err)
	require.NotNil(t, empty)
	require.Empty(t, empty)
}

func TestTimestampTime(t *testing.T) {
	want := time.Date(2024, 2, 29, 23, 59, 59, 999000000, time.UTC)
	v := NewTimestampTime(want)

	ms, err := v.AsTimestamp()
	require.NoError(t, err)
	require.Equal(t, want.UnixMilli(), ms)

	got, err := v.AsTime()
	require.NoError(t, err)
	require.True(t, want.Equal(got))
}

func TestUUID(t *testing.T) {
	const text = "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	v, err := ParseUUID(text)
	require.NoError(t, err)

	u, err := v.AsUUID()
	require.NoError(t, err)
	require.Equal(t, text, u.String())
	require.Equal(t, byte(0xf4), u[0])

	_, err = ParseUUID("not-a-uuid")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValueRefCount(t *testing.T) {
	v := NewString("shared")
	require.Equal(t, 1, v.RefCount())

	c := v.Clone()
	require.Same(t, v, c)
	require.Equal(t, 2, v.RefCount())

	c.Destroy()
	s, err := v.AsString()
	require.NoError(t, err)
	require.Equal(t, "shared", s)

	v.Destroy()
	require.Zero(t, v.RefCount())
	_, err = v.AsString()
	require.ErrorIs(t, err, ErrReleased)
	require.Nil(t, v.Clone())

	// destroying again and destroying nil are no-ops
	v.Destroy()
	var nilValue *Value
	nilValue.Destroy()
	require.Nil(t, nilValue.Clone())
}

func TestContainerReleasesChildren(t *testing.T) {
	s := NewString("child")
	l := NewList()
	require.NoError(t, l.ListAdd(s))
	require.Equal(t, 2, s.RefCount())

	s.Destroy()
	require.Equal(t, 1, s.RefCount())

	l.Destroy()
	require.Zero(t, s.RefCount())
	_, err := s.AsString()
	require.ErrorIs(t, err, ErrReleased)

	// a child shared by two containers survives the first
	k := NewSymbol("key")
	m1 := mapOf(t, k.Clone(), NewNull())
	m2 := mapOf(t, k.Clone(), NewNull())
	require.Equal(t, 3, k.RefCount())
	m1.Destroy()
	require.Equal(t, 2, k.RefCount())
	m2.Destroy()
	require.Equal(t, 1, k.RefCount())
}

func TestEqual(t *testing.T) {
	nan := math.Float64frombits(0x7ff8000000000001)

	tests := []struct {
		label string
		a, b  *Value
		equal bool
	}{
		{"nil", nil, nil, true},
		{"nil and null", nil, NewNull(), false},
		{"null", NewNull(), NewNull(), true},
		{"int", NewInt(1), NewInt(1), true},
		{"int and long", NewInt(1), NewLong(1), false},
		{"string and symbol", NewString("a"), NewSymbol("a"), false},
		{"nan", NewDouble(nan), NewDouble(nan), true},
		{"zero signs", NewDouble(0), NewDouble(math.Copysign(0, -1)), false},
		{"binary", NewBinary([]byte{1}), NewBinary([]byte{1}), true},
		{"binary differs", NewBinary([]byte{1}), NewBinary([]byte{2}), false},
		{"list", listOf(t, NewInt(1), NewString("a")), listOf(t, NewInt(1), NewString("a")), true},
		{"list order", listOf(t, NewInt(1), NewInt(2)), listOf(t, NewInt(2), NewInt(1)), false},
		{"list length", listOf(t, NewInt(1)), listOf(t, NewInt(1), NewInt(1)), false},
		{"unset slot", nulls(t, 1), listOf(t, NewNull()), true},
		{
			"map order",
			mapOf(t, NewSymbol("a"), NewInt(1), NewSymbol("b"), NewInt(2)),
			mapOf(t, NewSymbol("b"), NewInt(2), NewSymbol("a"), NewInt(1)),
			false,
		},
		{
			"map",
			mapOf(t, NewSymbol("a"), NewInt(1)),
			mapOf(t, NewSymbol("a"), NewInt(1)),
			true,
		},
		{"array and list", arrayOf(t, NewInt(1)), listOf(t, NewInt(1)), false},
		{
			"described and composite",
			describedOf(t, NewUlong(0x77), listOf(t, NewInt(5))),
			func() *Value {
				c := NewCompositeWithCode(0x77, 1)
				require.NoError(t, c.CompositeSetItem(0, NewInt(5)))
				return c
			}(),
			true,
		},
		{
			"descriptor differs",
			describedOf(t, NewUlong(1), NewNull()),
			describedOf(t, NewSymbol("1"), NewNull()),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			require.Equal(t, tt.equal, Equal(tt.a, tt.b))
			require.Equal(t, tt.equal, Equal(tt.b, tt.a))
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		value *Value
		want  string
	}{
		{nil, "NULL"},
		{NewNull(), "NULL"},
		{NewBool(true), "true"},
		{NewLong(-5), "-5"},
		{NewString("hi"), `"hi"`},
		{NewSymbol("sym"), ":sym"},
		{NewBinary([]byte{0xca, 0xfe}), "<cafe>"},
		{mustChar(t, 'A'), "U+0041"},
		{NewTimestamp(12), "timestamp(12)"},
		{listOf(t, NewInt(1), NewString("a")), `[1, "a"]`},
		{nulls(t, 2), "[NULL, NULL]"},
		{arrayOf(t, NewUint(1), NewUint(2)), "array[1, 2]"},
		{mapOf(t, NewSymbol("k"), NewDouble(0.5)), "{:k: 0.5}"},
		{describedOf(t, NewUlong(0x77), NewList()), "* 119 []"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, tt.value.String())
	}

	v := NewString("gone")
	v.Destroy()
	require.Equal(t, "<released>", v.String())
}
