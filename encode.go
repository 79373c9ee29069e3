package amqp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zedar/go-amqp-codec/internal/buffer"
)

// EncoderOutput receives encoded bytes. p is only valid for the duration
// of the call. Returning an error aborts the encoding; nothing can be
// assumed about how much of the value was consumed before the failure.
type EncoderOutput func(p []byte) error

// Encode writes the encoding of v to out.
//
// If out is nil, Encode only validates that v can be encoded.
func Encode(v *Value, out EncoderOutput) error {
	if v == nil {
		return ErrInvalidArgument
	}
	if out == nil {
		_, err := EncodedSize(v)
		return err
	}

	var outErr error
	e := encoder{out: func(p []byte) error {
		if err := out(p); err != nil {
			outErr = err
			return err
		}
		return nil
	}, sizes: layout{}}
	err := e.value(v)
	if outErr != nil {
		return fmt.Errorf("amqp: encoder output: %w", outErr)
	}
	return err
}

// EncodedSize returns the number of bytes Encode would write for v.
func EncodedSize(v *Value) (uint64, error) {
	if v == nil {
		return 0, ErrInvalidArgument
	}
	return layout{}.size(v)
}

// Marshal returns the encoding of v.
func Marshal(v *Value) ([]byte, error) {
	var buf buffer.Buffer
	err := Encode(v, func(p []byte) error {
		buf.Append(p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf.Detach(), nil
}

// layout remembers the measured body of every compound reached during a
// single Encode or EncodedSize call, so each node is measured once no
// matter how deeply it is nested. Values must not change while a layout
// is in use.
type layout map[*Value]compound

// size returns the number of bytes v occupies on the wire, constructor
// included.
func (l layout) size(v *Value) (uint64, error) {
	if v == nil {
		return 1, nil
	}
	if v.released {
		return 0, ErrReleased
	}

	if d, ok := v.payload.(*describedValue); ok {
		desc, err := l.size(d.descriptor)
		if err != nil {
			return 0, err
		}
		n, err := l.size(d.value)
		if err != nil {
			return 0, err
		}
		return 1 + desc + n, nil
	}

	ctor, err := l.constructorFor(v)
	if err != nil {
		return 0, err
	}
	n, err := l.payloadSize(v, ctor)
	return 1 + n, err
}

// payloadSize returns the number of bytes encoder.payload writes for v
// after ctor.
func (l layout) payloadSize(v *Value, ctor amqpType) (uint64, error) {
	if v.released {
		return 0, ErrReleased
	}

	switch ctor {
	case typeCodeNull,
		typeCodeBoolTrue,
		typeCodeBoolFalse,
		typeCodeUint0,
		typeCodeUlong0,
		typeCodeList0:
		return 0, nil

	case typeCodeBool, typeCodeUbyte, typeCodeByte, typeCodeSmallUint, typeCodeSmallUlong, typeCodeSmallint, typeCodeSmalllong:
		return 1, nil
	case typeCodeUshort, typeCodeShort:
		return 2, nil
	case typeCodeUint, typeCodeInt, typeCodeFloat, typeCodeChar:
		return 4, nil
	case typeCodeUlong, typeCodeLong, typeCodeDouble, typeCodeTimestamp:
		return 8, nil
	case typeCodeUUID:
		return 16, nil

	case typeCodeVbin8, typeCodeStr8, typeCodeSym8:
		n := variableLen(v)
		if n > math.MaxUint8 {
			return 0, fmt.Errorf("%w: %d bytes do not fit %#02x", ErrInvalidArgument, n, ctor)
		}
		return 1 + uint64(n), nil
	case typeCodeVbin32, typeCodeStr32, typeCodeSym32:
		n := variableLen(v)
		if uint64(n) > math.MaxUint32 {
			return 0, fmt.Errorf("%w: %d bytes do not fit %#02x", ErrUnsupported, n, ctor)
		}
		return 4 + uint64(n), nil

	case typeCodeList8, typeCodeMap8, typeCodeArray8:
		c, err := l.measure(v)
		if err != nil {
			return 0, err
		}
		if !c.compact() {
			return 0, fmt.Errorf("%w: %s does not fit a compact header", ErrInvalidArgument, v.typ)
		}
		return 2 + c.size, nil
	case typeCodeList32, typeCodeMap32, typeCodeArray32:
		c, err := l.measure(v)
		if err != nil {
			return 0, err
		}
		return 8 + c.size, nil

	default:
		return 0, fmt.Errorf("%w: constructor %#02x", ErrUnsupported, ctor)
	}
}

type encoder struct {
	out     EncoderOutput
	sizes   layout
	scratch [8]byte
}

func (e *encoder) write(p []byte) error {
	return e.out(p)
}

func (e *encoder) writeByte(b byte) error {
	e.scratch[0] = b
	return e.out(e.scratch[:1])
}

func (e *encoder) writeUint16(n uint16) error {
	binary.BigEndian.PutUint16(e.scratch[:2], n)
	return e.out(e.scratch[:2])
}

func (e *encoder) writeUint32(n uint32) error {
	binary.BigEndian.PutUint32(e.scratch[:4], n)
	return e.out(e.scratch[:4])
}

func (e *encoder) writeUint64(n uint64) error {
	binary.BigEndian.PutUint64(e.scratch[:8], n)
	return e.out(e.scratch[:8])
}

// value writes the constructor and payload of v. An unset container slot
// (nil) is written as null.
func (e *encoder) value(v *Value) error {
	if v == nil {
		return e.writeByte(byte(typeCodeNull))
	}
	if v.released {
		return ErrReleased
	}

	if d, ok := v.payload.(*describedValue); ok {
		if err := e.writeByte(byte(typeCodeDescribed)); err != nil {
			return err
		}
		if err := e.value(d.descriptor); err != nil {
			return err
		}
		return e.value(d.value)
	}

	ctor, err := e.sizes.constructorFor(v)
	if err != nil {
		return err
	}
	if err := e.writeByte(byte(ctor)); err != nil {
		return err
	}
	return e.payload(v, ctor)
}

// constructorFor selects the smallest constructor able to carry v.
func (l layout) constructorFor(v *Value) (amqpType, error) {
	switch v.typ {
	case TypeNull:
		return typeCodeNull, nil
	case TypeBool:
		if v.payload.(bool) {
			return typeCodeBoolTrue, nil
		}
		return typeCodeBoolFalse, nil
	case TypeUbyte:
		return typeCodeUbyte, nil
	case TypeUshort:
		return typeCodeUshort, nil
	case TypeUint:
		switch n := v.payload.(uint32); {
		case n == 0:
			return typeCodeUint0, nil
		case n <= math.MaxUint8:
			return typeCodeSmallUint, nil
		default:
			return typeCodeUint, nil
		}
	case TypeUlong:
		switch n := v.payload.(uint64); {
		case n == 0:
			return typeCodeUlong0, nil
		case n <= math.MaxUint8:
			return typeCodeSmallUlong, nil
		default:
			return typeCodeUlong, nil
		}
	case TypeByte:
		return typeCodeByte, nil
	case TypeShort:
		return typeCodeShort, nil
	case TypeInt:
		if n := v.payload.(int32); n >= math.MinInt8 && n <= math.MaxInt8 {
			return typeCodeSmallint, nil
		}
		return typeCodeInt, nil
	case TypeLong:
		if n := v.payload.(int64); n >= math.MinInt8 && n <= math.MaxInt8 {
			return typeCodeSmalllong, nil
		}
		return typeCodeLong, nil
	case TypeFloat:
		return typeCodeFloat, nil
	case TypeDouble:
		return typeCodeDouble, nil
	case TypeChar:
		return typeCodeChar, nil
	case TypeTimestamp:
		return typeCodeTimestamp, nil
	case TypeUUID:
		return typeCodeUUID, nil
	case TypeBinary, TypeString, TypeSymbol:
		return variableConstructor(v.typ, variableLen(v) > math.MaxUint8), nil
	case TypeList:
		if len(v.payload.(*listValue).items) == 0 {
			return typeCodeList0, nil
		}
		return l.compoundConstructor(v)
	case TypeMap, TypeArray:
		return l.compoundConstructor(v)
	default:
		return 0, fmt.Errorf("%w: no constructor for %s", ErrUnsupported, v.typ)
	}
}

func variableConstructor(t Type, wide bool) amqpType {
	switch {
	case t == TypeBinary && wide:
		return typeCodeVbin32
	case t == TypeBinary:
		return typeCodeVbin8
	case t == TypeString && wide:
		return typeCodeStr32
	case t == TypeString:
		return typeCodeStr8
	case wide:
		return typeCodeSym32
	default:
		return typeCodeSym8
	}
}

func variableBytes(v *Value) []byte {
	switch p := v.payload.(type) {
	case []byte:
		return p
	case string:
		return []byte(p)
	}
	return nil
}

func variableLen(v *Value) int {
	switch p := v.payload.(type) {
	case []byte:
		return len(p)
	case string:
		return len(p)
	}
	return 0
}

func (l layout) compoundConstructor(v *Value) (amqpType, error) {
	c, err := l.measure(v)
	if err != nil {
		return 0, err
	}
	return compoundCode(v.typ, !c.compact()), nil
}

func compoundCode(t Type, wide bool) amqpType {
	switch {
	case t == TypeList && wide:
		return typeCodeList32
	case t == TypeList:
		return typeCodeList8
	case t == TypeMap && wide:
		return typeCodeMap32
	case t == TypeMap:
		return typeCodeMap8
	case wide:
		return typeCodeArray32
	default:
		return typeCodeArray8
	}
}

// compound describes the body of an encoded list, map or array.
type compound struct {
	count    uint64   // encoded element count; twice the pair count for maps
	size     uint64   // size of the elements, including the shared constructor of an array
	elemCtor amqpType // arrays only
}

func (c compound) compact() bool {
	return c.count <= math.MaxUint8 && c.size+1 < math.MaxUint8
}

func (l layout) measure(v *Value) (compound, error) {
	if c, ok := l[v]; ok {
		return c, nil
	}

	var c compound
	switch p := v.payload.(type) {
	case *listValue:
		c.count = uint64(len(p.items))
		for _, item := range p.items {
			n, err := l.size(item)
			if err != nil {
				return c, err
			}
			c.size += n
		}
	case *mapValue:
		c.count = 2 * uint64(len(p.pairs))
		for _, pair := range p.pairs {
			k, err := l.size(pair.key)
			if err != nil {
				return c, err
			}
			n, err := l.size(pair.value)
			if err != nil {
				return c, err
			}
			c.size += k + n
		}
	case *arrayValue:
		ctor, err := l.arrayConstructor(p.items)
		if err != nil {
			return c, err
		}
		c.elemCtor = ctor
		c.count = uint64(len(p.items))
		c.size = 1
		for _, item := range p.items {
			n, err := l.payloadSize(item, ctor)
			if err != nil {
				return c, err
			}
			c.size += n
		}
	default:
		return c, fmt.Errorf("%w: %s is not a compound type", ErrTypeMismatch, v.typ)
	}

	if c.count > math.MaxUint32 || c.size+4 > math.MaxUint32 {
		return c, fmt.Errorf("%w: %s too large", ErrUnsupported, v.typ)
	}
	l[v] = c
	return c, nil
}

// arrayConstructor selects the constructor shared by all items. The
// narrow form of an integer or length is used only when every item fits.
func (l layout) arrayConstructor(items []*Value) (amqpType, error) {
	if len(items) == 0 {
		return typeCodeNull, nil
	}

	switch t := items[0].typ; t {
	case TypeBool:
		return typeCodeBool, nil
	case TypeUint:
		for _, item := range items {
			if item.payload.(uint32) > math.MaxUint8 {
				return typeCodeUint, nil
			}
		}
		return typeCodeSmallUint, nil
	case TypeUlong:
		for _, item := range items {
			if item.payload.(uint64) > math.MaxUint8 {
				return typeCodeUlong, nil
			}
		}
		return typeCodeSmallUlong, nil
	case TypeInt:
		for _, item := range items {
			if n := item.payload.(int32); n < math.MinInt8 || n > math.MaxInt8 {
				return typeCodeInt, nil
			}
		}
		return typeCodeSmallint, nil
	case TypeLong:
		for _, item := range items {
			if n := item.payload.(int64); n < math.MinInt8 || n > math.MaxInt8 {
				return typeCodeLong, nil
			}
		}
		return typeCodeSmalllong, nil
	case TypeBinary, TypeString, TypeSymbol:
		for _, item := range items {
			if variableLen(item) > math.MaxUint8 {
				return variableConstructor(t, true), nil
			}
		}
		return variableConstructor(t, false), nil
	case TypeList, TypeMap, TypeArray:
		for _, item := range items {
			c, err := l.measure(item)
			if err != nil {
				return 0, err
			}
			if !c.compact() {
				return compoundCode(t, true), nil
			}
		}
		return compoundCode(t, false), nil
	case TypeDescribed, TypeComposite:
		return 0, fmt.Errorf("%w: array of described values", ErrUnsupported)
	default:
		return l.constructorFor(items[0])
	}
}

// scalarBits returns the fixed-width payload of v as an unsigned
// integer; narrower wire forms keep the low order bytes.
func scalarBits(v *Value) uint64 {
	switch p := v.payload.(type) {
	case uint8:
		return uint64(p)
	case uint16:
		return uint64(p)
	case uint32:
		return uint64(p)
	case uint64:
		return p
	case int8:
		return uint64(p)
	case int16:
		return uint64(p)
	case int32:
		return uint64(p)
	case int64:
		return uint64(p)
	case float32:
		return uint64(math.Float32bits(p))
	case float64:
		return math.Float64bits(p)
	case char:
		return uint64(p)
	case timestamp:
		return uint64(p)
	}
	return 0
}

// payload writes the bytes that follow ctor for v.
func (e *encoder) payload(v *Value, ctor amqpType) error {
	if v.released {
		return ErrReleased
	}

	switch ctor {
	case typeCodeNull,
		typeCodeBoolTrue,
		typeCodeBoolFalse,
		typeCodeUint0,
		typeCodeUlong0,
		typeCodeList0:
		return nil

	case typeCodeBool:
		if v.payload.(bool) {
			return e.writeByte(1)
		}
		return e.writeByte(0)

	case typeCodeUbyte, typeCodeByte, typeCodeSmallUint, typeCodeSmallUlong, typeCodeSmallint, typeCodeSmalllong:
		return e.writeByte(byte(scalarBits(v)))
	case typeCodeUshort, typeCodeShort:
		return e.writeUint16(uint16(scalarBits(v)))
	case typeCodeUint, typeCodeInt, typeCodeFloat, typeCodeChar:
		return e.writeUint32(uint32(scalarBits(v)))
	case typeCodeUlong, typeCodeLong, typeCodeDouble, typeCodeTimestamp:
		return e.writeUint64(scalarBits(v))

	case typeCodeUUID:
		u := v.payload.(UUID)
		return e.write(u[:])

	case typeCodeVbin8, typeCodeStr8, typeCodeSym8:
		data := variableBytes(v)
		if len(data) > math.MaxUint8 {
			return fmt.Errorf("%w: %d bytes do not fit %#02x", ErrInvalidArgument, len(data), ctor)
		}
		if err := e.writeByte(byte(len(data))); err != nil {
			return err
		}
		return e.write(data)
	case typeCodeVbin32, typeCodeStr32, typeCodeSym32:
		data := variableBytes(v)
		if uint64(len(data)) > math.MaxUint32 {
			return fmt.Errorf("%w: %d bytes do not fit %#02x", ErrUnsupported, len(data), ctor)
		}
		if err := e.writeUint32(uint32(len(data))); err != nil {
			return err
		}
		return e.write(data)

	case typeCodeList8, typeCodeMap8, typeCodeArray8:
		return e.compound(v, false)
	case typeCodeList32, typeCodeMap32, typeCodeArray32:
		return e.compound(v, true)

	default:
		return fmt.Errorf("%w: constructor %#02x", ErrUnsupported, ctor)
	}
}

func (e *encoder) compound(v *Value, wide bool) error {
	c, err := e.sizes.measure(v)
	if err != nil {
		return err
	}

	if wide {
		err = e.writeUint32(uint32(c.size + 4))
		if err == nil {
			err = e.writeUint32(uint32(c.count))
		}
	} else {
		if !c.compact() {
			return fmt.Errorf("%w: %s does not fit a compact header", ErrInvalidArgument, v.typ)
		}
		err = e.writeByte(byte(c.size + 1))
		if err == nil {
			err = e.writeByte(byte(c.count))
		}
	}
	if err != nil {
		return err
	}

	switch p := v.payload.(type) {
	case *listValue:
		for _, item := range p.items {
			if err := e.value(item); err != nil {
				return err
			}
		}
	case *mapValue:
		for _, pair := range p.pairs {
			if err := e.value(pair.key); err != nil {
				return err
			}
			if err := e.value(pair.value); err != nil {
				return err
			}
		}
	case *arrayValue:
		// only the first item carries the constructor
		if err := e.writeByte(byte(c.elemCtor)); err != nil {
			return err
		}
		for _, item := range p.items {
			if err := e.payload(item, c.elemCtor); err != nil {
				return err
			}
		}
	}
	return nil
}
