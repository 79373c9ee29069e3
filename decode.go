package amqp

import (
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"

	"github.com/zedar/go-amqp-codec/internal/buffer"
)

// Default safety ceilings applied to counts and lengths read from the wire.
const (
	DefaultMaxItemCount  = 65536
	DefaultMaxAllocation = 1 << 20
	DefaultMaxDepth      = 128
)

// pointerSize is the allocation charged per decoded container slot.
const pointerSize = 8

// ValueHandler receives each decoded top-level value. The handler owns v
// and is responsible for destroying it.
type ValueHandler func(v *Value)

// DecoderOption is a function for configuring a Decoder.
type DecoderOption func(*Decoder) error

// DecoderMaxItemCount sets the largest element count accepted for a list,
// map or array. Maps count keys and values separately.
//
// Default: 65536.
func DecoderMaxItemCount(n uint32) DecoderOption {
	return func(d *Decoder) error {
		if n == 0 {
			return fmt.Errorf("%w: max item count must be positive", ErrInvalidArgument)
		}
		d.maxItemCount = n
		return nil
	}
}

// DecoderMaxAllocation sets the largest single allocation, in bytes, the
// decoder makes on behalf of a length or count read from the wire.
//
// Default: 1 MiB.
func DecoderMaxAllocation(n uint32) DecoderOption {
	return func(d *Decoder) error {
		if n == 0 {
			return fmt.Errorf("%w: max allocation must be positive", ErrInvalidArgument)
		}
		d.maxAllocation = n
		return nil
	}
}

// DecoderMaxDepth sets how many values may be open at once: a top-level
// scalar has depth 1 and each enclosing list, map, array or described
// value adds one.
//
// Default: 128.
func DecoderMaxDepth(n uint32) DecoderOption {
	return func(d *Decoder) error {
		if n == 0 {
			return fmt.Errorf("%w: max depth must be positive", ErrInvalidArgument)
		}
		d.maxDepth = n
		return nil
	}
}

// DecoderLogger sets the logger used for decoder diagnostics.
//
// Default: zerolog.Nop().
func DecoderLogger(l zerolog.Logger) DecoderOption {
	return func(d *Decoder) error {
		d.log = l
		return nil
	}
}

type decoderState uint8

const (
	stateConstructor decoderState = iota
	stateTypeData
	stateDone
)

// phase is the sub-state of a frame in stateTypeData.
type phase uint8

const (
	phaseFixed          phase = iota // fixed width payload
	phaseLength                      // length prefix of binary, string and symbol
	phaseBytes                       // variable length payload or uuid
	phaseSize                        // compound size field
	phaseCount                       // compound count field
	phaseItems                       // waiting on an element
	phaseSkip                        // remaining body of an empty compound
	phaseDescriptor                  // waiting on the descriptor
	phaseDescribedValue              // waiting on the described value
)

// frame holds the state of one value being decoded. Nested values are
// decoded by frames pushed above their container.
type frame struct {
	state   decoderState
	phase   phase
	ctor    amqpType
	inArray bool
	result  *Value

	width int
	n     int
	acc   uint64

	data []byte

	size      uint32
	count     uint32
	index     uint32
	remaining uint32
	items     []*Value
	elemCtor  amqpType

	descriptor *Value
}

func (f *frame) isArray() bool {
	return f.ctor == typeCodeArray8 || f.ctor == typeCodeArray32
}

func (f *frame) isMap() bool {
	return f.ctor == typeCodeMap8 || f.ctor == typeCodeMap32
}

func (f *frame) awaitingChild() bool {
	if f.state != stateTypeData {
		return false
	}
	switch f.phase {
	case phaseItems, phaseDescriptor, phaseDescribedValue:
		return true
	}
	return false
}

func (f *frame) done(v *Value) {
	f.result = v
	f.state = stateDone
}

// release destroys everything the frame has decoded so far.
func (f *frame) release() {
	destroyAll(f.items)
	f.items = nil
	f.descriptor.Destroy()
	f.descriptor = nil
	f.result.Destroy()
	f.result = nil
	f.data = nil
}

// accumulate shifts big endian bytes from p into acc until width bytes
// have been read, returning the number consumed.
func (f *frame) accumulate(p []byte) int {
	n := 0
	for f.n < f.width && n < len(p) {
		f.acc = f.acc<<8 | uint64(p[n])
		f.n++
		n++
	}
	return n
}

func (f *frame) expect(p phase, width int) {
	f.phase = p
	f.width = width
	f.n = 0
	f.acc = 0
}

// Decoder decodes AMQP values from a byte stream delivered in chunks of
// any size, including a single byte at a time. Partially decoded state
// is kept between calls.
//
// Once a call fails the decoder stays failed and must be discarded.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	handler       ValueHandler
	maxItemCount  uint32
	maxAllocation uint32
	maxDepth      uint32
	log           zerolog.Logger

	stack []*frame
	err   error
}

// NewDecoder returns a decoder that passes each completed top-level value
// to fn. If fn is nil, completed values are discarded.
func NewDecoder(fn ValueHandler, opts ...DecoderOption) (*Decoder, error) {
	d := &Decoder{
		handler:       fn,
		maxItemCount:  DefaultMaxItemCount,
		maxAllocation: DefaultMaxAllocation,
		maxDepth:      DefaultMaxDepth,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Decode consumes p, calling the decoder's handler for every value
// completed along the way. It returns the number of bytes consumed,
// which is len(p) unless an error occurred.
func (d *Decoder) Decode(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		v, used, err := d.feed(p[n:])
		n += used
		if err != nil {
			return n, err
		}
		if v == nil {
			continue
		}
		if d.handler != nil {
			d.handler(v)
		} else {
			v.Destroy()
		}
	}
	if d.err != nil {
		return n, ErrDecoderFailed
	}
	return n, nil
}

// DecodeOne consumes p until the first value completes and returns it
// with the number of bytes consumed. The remainder of p is left for the
// next call. When p ends before a value completes, v is nil and all of p
// was consumed.
func (d *Decoder) DecodeOne(p []byte) (v *Value, n int, err error) {
	if d.err != nil {
		return nil, 0, ErrDecoderFailed
	}
	for n < len(p) {
		var used int
		v, used, err = d.feed(p[n:])
		n += used
		if err != nil || v != nil {
			return v, n, err
		}
	}
	return nil, n, nil
}

// ReadFrom decodes values from r until EOF, calling the decoder's handler
// for each one. A stream that ends inside a value returns
// io.ErrUnexpectedEOF.
func (d *Decoder) ReadFrom(r io.Reader) (int64, error) {
	var (
		buf   buffer.Buffer
		total int64
	)
	for {
		rerr := buf.ReadFromOnce(r)
		if buf.Len() > 0 {
			n, err := d.Decode(buf.Bytes())
			total += int64(n)
			buf.Reset()
			if err != nil {
				return total, err
			}
		}

		switch {
		case rerr == io.EOF && d.Pending():
			return total, io.ErrUnexpectedEOF
		case rerr == io.EOF:
			return total, nil
		case rerr != nil:
			return total, rerr
		}
	}
}

// Pending reports whether the decoder holds a partially decoded value.
func (d *Decoder) Pending() bool {
	return len(d.stack) > 0
}

// Close releases any partially decoded values. The decoder cannot be
// used afterwards.
func (d *Decoder) Close() error {
	d.teardown()
	if d.err == nil {
		d.err = ErrDecoderFailed
	}
	return nil
}

func (d *Decoder) teardown() {
	for i := len(d.stack) - 1; i >= 0; i-- {
		d.stack[i].release()
		d.stack[i] = nil
	}
	d.stack = d.stack[:0]
}

func (d *Decoder) fail(err error) error {
	d.log.Debug().Err(err).Int("depth", len(d.stack)).Msg("decoder failed")
	d.teardown()
	d.err = err
	return err
}

// feed advances the decoder with the bytes of p until p is exhausted or
// a top-level value completes.
func (d *Decoder) feed(p []byte) (*Value, int, error) {
	if d.err != nil {
		return nil, 0, ErrDecoderFailed
	}

	n := 0
	for n < len(p) {
		if len(d.stack) == 0 {
			d.stack = append(d.stack, &frame{})
		}
		used, err := d.step(d.stack[len(d.stack)-1], p[n:])
		n += used
		if err != nil {
			return nil, n, d.fail(err)
		}

		v, err := d.settle()
		if err != nil {
			return nil, n, d.fail(err)
		}
		if v != nil {
			d.log.Trace().Stringer("type", v.Type()).Msg("decoded value")
			return v, n, nil
		}
	}
	return nil, n, nil
}

// settle pops completed frames into their parents and starts element
// frames for containers, continuing while no input is required. It
// returns a completed top-level value.
func (d *Decoder) settle() (*Value, error) {
	for len(d.stack) > 0 {
		top := len(d.stack) - 1
		f := d.stack[top]

		switch {
		case f.state == stateDone:
			d.stack[top] = nil
			d.stack = d.stack[:top]
			if top == 0 {
				return f.result, nil
			}
			if err := d.stack[top-1].accept(f); err != nil {
				f.release()
				return nil, err
			}

		case f.awaitingChild():
			if uint64(len(d.stack)) >= uint64(d.maxDepth) {
				return nil, fmt.Errorf("%w: nesting depth exceeds %d", ErrLimitExceeded, d.maxDepth)
			}
			child := &frame{inArray: f.isArray()}
			if f.isArray() && f.index > 0 {
				// repeated array constructors are elided on the wire
				if err := d.dispatch(child, f.elemCtor); err != nil {
					return nil, err
				}
			}
			d.stack = append(d.stack, child)

		default:
			return nil, nil
		}
	}
	return nil, nil
}

func (f *frame) accept(child *frame) error {
	v := child.result
	switch f.phase {
	case phaseItems:
		if f.isArray() && f.index == 0 {
			f.elemCtor = child.ctor
		}
		f.items[f.index] = v
		f.index++
		if f.index == f.count {
			f.finishCompound()
		}
	case phaseDescriptor:
		f.descriptor = v
		f.phase = phaseDescribedValue
	case phaseDescribedValue:
		f.done(newValue(TypeDescribed, &describedValue{descriptor: f.descriptor, value: v}))
		f.descriptor = nil
	default:
		return fmt.Errorf("%w: unexpected element", ErrMalformed)
	}
	return nil
}

// step consumes bytes from p for f. It consumes at least one byte.
func (d *Decoder) step(f *frame, p []byte) (int, error) {
	if f.state == stateConstructor {
		return 1, d.dispatch(f, amqpType(p[0]))
	}

	switch f.phase {
	case phaseFixed:
		n := f.accumulate(p)
		if f.n == f.width {
			return n, f.finishFixed()
		}
		return n, nil

	case phaseLength:
		n := f.accumulate(p)
		if f.n < f.width {
			return n, nil
		}
		if f.acc > uint64(d.maxAllocation) {
			return n, fmt.Errorf("%w: length %d exceeds %d", ErrLimitExceeded, f.acc, d.maxAllocation)
		}
		f.data = make([]byte, f.acc)
		f.expect(phaseBytes, 0)
		if len(f.data) == 0 {
			return n, f.finishBytes()
		}
		return n, nil

	case phaseBytes:
		n := copy(f.data[f.n:], p)
		f.n += n
		if f.n == len(f.data) {
			return n, f.finishBytes()
		}
		return n, nil

	case phaseSize:
		n := f.accumulate(p)
		if f.n == f.width {
			f.size = uint32(f.acc)
			f.expect(phaseCount, f.width)
		}
		return n, nil

	case phaseCount:
		n := f.accumulate(p)
		if f.n == f.width {
			return n, d.startItems(f)
		}
		return n, nil

	case phaseSkip:
		n := len(p)
		if uint64(n) > uint64(f.remaining) {
			n = int(f.remaining)
		}
		f.remaining -= uint32(n)
		if f.remaining == 0 {
			f.finishCompound()
		}
		return n, nil
	}

	return 0, fmt.Errorf("%w: frame cannot consume input in phase %d", ErrMalformed, f.phase)
}

// dispatch interprets a constructor byte.
func (d *Decoder) dispatch(f *frame, ctor amqpType) error {
	f.ctor = ctor
	f.state = stateTypeData

	switch ctor {
	// no payload
	case typeCodeNull:
		f.done(NewNull())
	case typeCodeBoolTrue:
		f.done(NewBool(true))
	case typeCodeBoolFalse:
		f.done(NewBool(false))
	case typeCodeUint0:
		f.done(NewUint(0))
	case typeCodeUlong0:
		f.done(NewUlong(0))
	case typeCodeList0:
		f.done(NewList())

	// fixed width
	case typeCodeBool,
		typeCodeUbyte,
		typeCodeByte,
		typeCodeSmallUint,
		typeCodeSmallUlong,
		typeCodeSmallint,
		typeCodeSmalllong:
		f.expect(phaseFixed, 1)
	case typeCodeUshort, typeCodeShort:
		f.expect(phaseFixed, 2)
	case typeCodeUint, typeCodeInt, typeCodeFloat, typeCodeChar:
		f.expect(phaseFixed, 4)
	case typeCodeUlong, typeCodeLong, typeCodeDouble, typeCodeTimestamp:
		f.expect(phaseFixed, 8)
	case typeCodeUUID:
		f.expect(phaseBytes, 0)
		f.data = make([]byte, len(UUID{}))

	// variable width
	case typeCodeVbin8, typeCodeStr8, typeCodeSym8:
		f.expect(phaseLength, 1)
	case typeCodeVbin32, typeCodeStr32, typeCodeSym32:
		f.expect(phaseLength, 4)

	// compound
	case typeCodeList8, typeCodeMap8, typeCodeArray8:
		f.expect(phaseSize, 1)
	case typeCodeList32, typeCodeMap32, typeCodeArray32:
		f.expect(phaseSize, 4)

	case typeCodeDescribed:
		if f.inArray {
			return fmt.Errorf("%w: array of described values", ErrUnsupported)
		}
		f.phase = phaseDescriptor

	default:
		return fmt.Errorf("%w: unknown constructor %#02x", ErrMalformed, ctor)
	}
	return nil
}

func (f *frame) finishFixed() error {
	acc := f.acc
	switch f.ctor {
	case typeCodeBool:
		switch acc {
		case 0:
			f.done(NewBool(false))
		case 1:
			f.done(NewBool(true))
		default:
			return fmt.Errorf("%w: boolean octet %#02x", ErrMalformed, acc)
		}
	case typeCodeUbyte:
		f.done(NewUbyte(uint8(acc)))
	case typeCodeByte:
		f.done(NewByte(int8(acc)))
	case typeCodeSmallUint, typeCodeUint:
		f.done(NewUint(uint32(acc)))
	case typeCodeSmallUlong, typeCodeUlong:
		f.done(NewUlong(acc))
	case typeCodeSmallint:
		f.done(NewInt(int32(int8(acc))))
	case typeCodeSmalllong:
		f.done(NewLong(int64(int8(acc))))
	case typeCodeUshort:
		f.done(NewUshort(uint16(acc)))
	case typeCodeShort:
		f.done(NewShort(int16(acc)))
	case typeCodeInt:
		f.done(NewInt(int32(uint32(acc))))
	case typeCodeLong:
		f.done(NewLong(int64(acc)))
	case typeCodeFloat:
		f.done(NewFloat(math.Float32frombits(uint32(acc))))
	case typeCodeDouble:
		f.done(NewDouble(math.Float64frombits(acc)))
	case typeCodeTimestamp:
		f.done(NewTimestamp(int64(acc)))
	case typeCodeChar:
		c, err := NewChar(rune(uint32(acc)))
		if err != nil {
			return fmt.Errorf("%w: char %#x", ErrMalformed, acc)
		}
		f.done(c)
	default:
		return fmt.Errorf("%w: constructor %#02x has no fixed width payload", ErrMalformed, f.ctor)
	}
	return nil
}

func (f *frame) finishBytes() error {
	data := f.data
	f.data = nil
	switch f.ctor {
	case typeCodeUUID:
		var u UUID
		copy(u[:], data)
		f.done(NewUUID(u))
	case typeCodeVbin8, typeCodeVbin32:
		f.done(newValue(TypeBinary, data))
	case typeCodeStr8, typeCodeStr32:
		f.done(NewString(string(data)))
	case typeCodeSym8, typeCodeSym32:
		f.done(NewSymbol(string(data)))
	default:
		return fmt.Errorf("%w: constructor %#02x has no variable payload", ErrMalformed, f.ctor)
	}
	return nil
}

// startItems validates the element count of a compound and allocates
// its slots.
func (d *Decoder) startItems(f *frame) error {
	if f.acc > uint64(d.maxItemCount) {
		return fmt.Errorf("%w: %d items exceeds %d", ErrLimitExceeded, f.acc, d.maxItemCount)
	}
	count := uint32(f.acc)
	if uint64(count)*pointerSize > uint64(d.maxAllocation) {
		return fmt.Errorf("%w: %d items exceeds allocation limit %d", ErrLimitExceeded, count, d.maxAllocation)
	}
	if f.isMap() && count%2 != 0 {
		return fmt.Errorf("%w: map with odd element count %d", ErrMalformed, count)
	}

	// size covers the count field and the elements
	var body uint32
	if f.size >= uint32(f.width) {
		body = f.size - uint32(f.width)
	}
	if !f.isArray() && count > body {
		return fmt.Errorf("%w: %d items in %d bytes", ErrMalformed, count, body)
	}

	f.count = count
	if count == 0 {
		if body > d.maxAllocation {
			return fmt.Errorf("%w: size %d exceeds %d", ErrLimitExceeded, f.size, d.maxAllocation)
		}
		if body > 0 {
			f.remaining = body
			f.expect(phaseSkip, 0)
			return nil
		}
		f.finishCompound()
		return nil
	}

	f.items = make([]*Value, count)
	f.index = 0
	f.expect(phaseItems, 0)
	return nil
}

func (f *frame) finishCompound() {
	items := f.items
	f.items = nil
	switch {
	case f.isArray():
		f.done(newValue(TypeArray, &arrayValue{items: items}))
	case f.isMap():
		pairs := make([]mapPair, len(items)/2)
		for i := range pairs {
			pairs[i] = mapPair{key: items[2*i], value: items[2*i+1]}
		}
		f.done(newValue(TypeMap, &mapValue{pairs: pairs}))
	default:
		f.done(newValue(TypeList, &listValue{items: items}))
	}
}

// Unmarshal decodes exactly one value from data.
func Unmarshal(data []byte, opts ...DecoderOption) (*Value, error) {
	d, err := NewDecoder(nil, opts...)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	v, n, err := d.DecodeOne(data)
	switch {
	case err != nil:
		return nil, err
	case v == nil:
		return nil, fmt.Errorf("%w: %v", ErrMalformed, io.ErrUnexpectedEOF)
	case n != len(data):
		v.Destroy()
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(data)-n)
	}
	return v, nil
}
