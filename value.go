package amqp

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Value is a reference-counted AMQP value.
//
// A Value starts with a reference count of one. Clone adds a reference
// and Destroy drops one; when the last reference is dropped the value
// releases its payload and the references it holds on its children.
//
// Containers never alias caller-owned values: inserting a value stores
// a clone of it. Values are not safe for concurrent use.
type Value struct {
	typ      Type
	refs     int32
	released bool
	payload  interface{}
}

type listValue struct {
	items []*Value
}

type mapPair struct {
	key   *Value
	value *Value
}

type mapValue struct {
	pairs []mapPair
}

type arrayValue struct {
	items []*Value
}

type describedValue struct {
	descriptor *Value
	value      *Value
}

// char and timestamp keep their payloads distinct from int32 and int64.
type (
	char      rune
	timestamp int64
)

func newValue(t Type, payload interface{}) *Value {
	return &Value{typ: t, refs: 1, payload: payload}
}

// NewNull returns the null value.
func NewNull() *Value { return newValue(TypeNull, nil) }

// NewBool returns a boolean value.
func NewBool(b bool) *Value { return newValue(TypeBool, b) }

// NewUbyte returns an 8-bit unsigned integer value.
func NewUbyte(n uint8) *Value { return newValue(TypeUbyte, n) }

// NewUshort returns a 16-bit unsigned integer value.
func NewUshort(n uint16) *Value { return newValue(TypeUshort, n) }

// NewUint returns a 32-bit unsigned integer value.
func NewUint(n uint32) *Value { return newValue(TypeUint, n) }

// NewUlong returns a 64-bit unsigned integer value.
func NewUlong(n uint64) *Value { return newValue(TypeUlong, n) }

// NewByte returns an 8-bit signed integer value.
func NewByte(n int8) *Value { return newValue(TypeByte, n) }

// NewShort returns a 16-bit signed integer value.
func NewShort(n int16) *Value { return newValue(TypeShort, n) }

// NewInt returns a 32-bit signed integer value.
func NewInt(n int32) *Value { return newValue(TypeInt, n) }

// NewLong returns a 64-bit signed integer value.
func NewLong(n int64) *Value { return newValue(TypeLong, n) }

// NewFloat returns an IEEE 754 binary32 value.
func NewFloat(f float32) *Value { return newValue(TypeFloat, f) }

// NewDouble returns an IEEE 754 binary64 value.
func NewDouble(f float64) *Value { return newValue(TypeDouble, f) }

// NewChar returns a unicode character value.
//
// Code points above U+10FFFF are rejected.
func NewChar(r rune) (*Value, error) {
	if r < 0 || r > utf8.MaxRune {
		return nil, fmt.Errorf("%w: code point %#x out of range", ErrInvalidArgument, r)
	}
	return newValue(TypeChar, char(r)), nil
}

// NewTimestamp returns a timestamp of ms milliseconds since the unix epoch.
func NewTimestamp(ms int64) *Value { return newValue(TypeTimestamp, timestamp(ms)) }

// NewTimestampTime returns a timestamp for t, truncated to milliseconds.
func NewTimestampTime(t time.Time) *Value {
	return NewTimestamp(t.UnixMilli())
}

// NewUUID returns a uuid value.
func NewUUID(u UUID) *Value { return newValue(TypeUUID, u) }

// NewBinary returns a binary value holding a copy of b.
//
// A nil b produces an empty binary value.
func NewBinary(b []byte) *Value {
	return newValue(TypeBinary, append(make([]byte, 0, len(b)), b...))
}

// NewString returns a string value. s is expected to be valid UTF-8; it
// is encoded verbatim.
func NewString(s string) *Value { return newValue(TypeString, s) }

// NewSymbol returns a symbol value. s is expected to be ASCII; it is
// encoded verbatim.
func NewSymbol(s string) *Value { return newValue(TypeSymbol, s) }

// NewList returns an empty list.
func NewList() *Value { return newValue(TypeList, &listValue{}) }

// NewMap returns an empty map.
func NewMap() *Value { return newValue(TypeMap, &mapValue{}) }

// NewArray returns an empty array.
func NewArray() *Value { return newValue(TypeArray, &arrayValue{}) }

// Type returns the type of v. A nil value reports TypeNull.
func (v *Value) Type() Type {
	if v == nil {
		return TypeNull
	}
	return v.typ
}

// RefCount returns the number of live references to v.
func (v *Value) RefCount() int {
	if v == nil {
		return 0
	}
	return int(v.refs)
}

// Clone returns v with its reference count incremented. Cloning nil
// returns nil.
func (v *Value) Clone() *Value {
	if v == nil || v.released {
		return nil
	}
	v.refs++
	return v
}

// Destroy drops one reference to v. Once the last reference is dropped
// the value releases its payload and destroys its children. Destroying
// nil is a no-op.
func (v *Value) Destroy() {
	if v == nil || v.released {
		return
	}
	v.refs--
	if v.refs > 0 {
		return
	}

	switch p := v.payload.(type) {
	case *listValue:
		destroyAll(p.items)
	case *arrayValue:
		destroyAll(p.items)
	case *mapValue:
		for _, pair := range p.pairs {
			pair.key.Destroy()
			pair.value.Destroy()
		}
	case *describedValue:
		p.descriptor.Destroy()
		p.value.Destroy()
	}
	v.payload = nil
	v.released = true
}

func destroyAll(items []*Value) {
	for _, item := range items {
		item.Destroy()
	}
}

func (v *Value) check(t Type) error {
	if v == nil {
		return ErrInvalidArgument
	}
	if v.released {
		return ErrReleased
	}
	if v.typ != t {
		return typeMismatch(t, v.typ)
	}
	return nil
}

// AsBool returns the boolean held by v.
func (v *Value) AsBool() (bool, error) {
	if err := v.check(TypeBool); err != nil {
		return false, err
	}
	return v.payload.(bool), nil
}

// AsUbyte returns the ubyte held by v.
func (v *Value) AsUbyte() (uint8, error) {
	if err := v.check(TypeUbyte); err != nil {
		return 0, err
	}
	return v.payload.(uint8), nil
}

// AsUshort returns the ushort held by v.
func (v *Value) AsUshort() (uint16, error) {
	if err := v.check(TypeUshort); err != nil {
		return 0, err
	}
	return v.payload.(uint16), nil
}

// AsUint returns the uint held by v.
func (v *Value) AsUint() (uint32, error) {
	if err := v.check(TypeUint); err != nil {
		return 0, err
	}
	return v.payload.(uint32), nil
}

// AsUlong returns the ulong held by v.
func (v *Value) AsUlong() (uint64, error) {
	if err := v.check(TypeUlong); err != nil {
		return 0, err
	}
	return v.payload.(uint64), nil
}

// AsByte returns the byte held by v.
func (v *Value) AsByte() (int8, error) {
	if err := v.check(TypeByte); err != nil {
		return 0, err
	}
	return v.payload.(int8), nil
}

// AsShort returns the short held by v.
func (v *Value) AsShort() (int16, error) {
	if err := v.check(TypeShort); err != nil {
		return 0, err
	}
	return v.payload.(int16), nil
}

// AsInt returns the int held by v.
func (v *Value) AsInt() (int32, error) {
	if err := v.check(TypeInt); err != nil {
		return 0, err
	}
	return v.payload.(int32), nil
}

// AsLong returns the long held by v.
func (v *Value) AsLong() (int64, error) {
	if err := v.check(TypeLong); err != nil {
		return 0, err
	}
	return v.payload.(int64), nil
}

// AsFloat returns the float held by v.
func (v *Value) AsFloat() (float32, error) {
	if err := v.check(TypeFloat); err != nil {
		return 0, err
	}
	return v.payload.(float32), nil
}

// AsDouble returns the double held by v.
func (v *Value) AsDouble() (float64, error) {
	if err := v.check(TypeDouble); err != nil {
		return 0, err
	}
	return v.payload.(float64), nil
}

// AsChar returns the character held by v.
func (v *Value) AsChar() (rune, error) {
	if err := v.check(TypeChar); err != nil {
		return 0, err
	}
	return rune(v.payload.(char)), nil
}

// AsTimestamp returns the timestamp held by v in milliseconds since the
// unix epoch.
func (v *Value) AsTimestamp() (int64, error) {
	if err := v.check(TypeTimestamp); err != nil {
		return 0, err
	}
	return int64(v.payload.(timestamp)), nil
}

// AsTime returns the timestamp held by v as a UTC time.
func (v *Value) AsTime() (time.Time, error) {
	ms, err := v.AsTimestamp()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(ms/1000, (ms%1000)*1000000).UTC(), nil
}

// AsUUID returns the uuid held by v.
func (v *Value) AsUUID() (UUID, error) {
	if err := v.check(TypeUUID); err != nil {
		return UUID{}, err
	}
	return v.payload.(UUID), nil
}

// AsBinary returns the bytes held by v. The returned slice aliases the
// value and must not be modified.
func (v *Value) AsBinary() ([]byte, error) {
	if err := v.check(TypeBinary); err != nil {
		return nil, err
	}
	return v.payload.([]byte), nil
}

// AsString returns the string held by v.
func (v *Value) AsString() (string, error) {
	if err := v.check(TypeString); err != nil {
		return "", err
	}
	return v.payload.(string), nil
}

// AsSymbol returns the symbol held by v.
func (v *Value) AsSymbol() (string, error) {
	if err := v.check(TypeSymbol); err != nil {
		return "", err
	}
	return v.payload.(string), nil
}

// Equal reports whether a and b hold the same value.
//
// Two nil values are equal. Scalars compare bitwise, so a NaN is equal to
// a NaN with the same bits. Containers compare element by element in
// order; maps holding the same pairs in a different order are not equal.
// Described and composite values compare by descriptor and value.
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a == b {
		return true
	}
	if a.released || b.released {
		return false
	}
	if a.typ != b.typ && !(a.typ.isDescribed() && b.typ.isDescribed()) {
		return false
	}

	switch pa := a.payload.(type) {
	case float32:
		return math.Float32bits(pa) == math.Float32bits(b.payload.(float32))
	case float64:
		return math.Float64bits(pa) == math.Float64bits(b.payload.(float64))
	case []byte:
		return bytes.Equal(pa, b.payload.([]byte))
	case *listValue:
		return itemsEqual(pa.items, b.payload.(*listValue).items)
	case *arrayValue:
		return itemsEqual(pa.items, b.payload.(*arrayValue).items)
	case *mapValue:
		pb := b.payload.(*mapValue)
		if len(pa.pairs) != len(pb.pairs) {
			return false
		}
		for i := range pa.pairs {
			if !Equal(pa.pairs[i].key, pb.pairs[i].key) ||
				!itemEqual(pa.pairs[i].value, pb.pairs[i].value) {
				return false
			}
		}
		return true
	case *describedValue:
		pb := b.payload.(*describedValue)
		return Equal(pa.descriptor, pb.descriptor) && Equal(pa.value, pb.value)
	default:
		// null, bool, integers, char, timestamp, uuid, string and symbol
		// are comparable payloads.
		return a.payload == b.payload
	}
}

func itemsEqual(a, b []*Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !itemEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// itemEqual compares container slots, where an unset slot is null.
func itemEqual(a, b *Value) bool {
	if a == nil && b != nil {
		return b.typ == TypeNull
	}
	if b == nil && a != nil {
		return a.typ == TypeNull
	}
	return Equal(a, b)
}

// String returns a human readable rendering of v.
func (v *Value) String() string {
	var sb strings.Builder
	v.format(&sb)
	return sb.String()
}

func (v *Value) format(sb *strings.Builder) {
	if v == nil {
		sb.WriteString("NULL")
		return
	}
	if v.released {
		sb.WriteString("<released>")
		return
	}

	switch p := v.payload.(type) {
	case nil:
		sb.WriteString("NULL")
	case bool:
		sb.WriteString(strconv.FormatBool(p))
	case uint8, uint16, uint32, uint64, int8, int16, int32:
		fmt.Fprint(sb, p)
	case int64:
		sb.WriteString(strconv.FormatInt(p, 10))
	case timestamp:
		sb.WriteString("timestamp(")
		sb.WriteString(strconv.FormatInt(int64(p), 10))
		sb.WriteByte(')')
	case float32:
		sb.WriteString(strconv.FormatFloat(float64(p), 'g', -1, 32))
	case float64:
		sb.WriteString(strconv.FormatFloat(p, 'g', -1, 64))
	case char:
		fmt.Fprintf(sb, "U+%04X", rune(p))
	case UUID:
		sb.WriteString(p.String())
	case []byte:
		fmt.Fprintf(sb, "<%x>", p)
	case string:
		if v.typ == TypeSymbol {
			sb.WriteByte(':')
			sb.WriteString(p)
			return
		}
		sb.WriteString(strconv.Quote(p))
	case *listValue:
		sb.WriteByte('[')
		formatItems(sb, p.items)
		sb.WriteByte(']')
	case *arrayValue:
		sb.WriteString("array[")
		formatItems(sb, p.items)
		sb.WriteByte(']')
	case *mapValue:
		sb.WriteByte('{')
		for i, pair := range p.pairs {
			if i > 0 {
				sb.WriteString(", ")
			}
			pair.key.format(sb)
			sb.WriteString(": ")
			pair.value.format(sb)
		}
		sb.WriteByte('}')
	case *describedValue:
		sb.WriteString("* ")
		p.descriptor.format(sb)
		sb.WriteByte(' ')
		p.value.format(sb)
	}
}

func formatItems(sb *strings.Builder, items []*Value) {
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		item.format(sb)
	}
}
