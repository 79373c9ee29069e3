package amqp

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrInvalidArgument is returned when a required value is nil or an
	// argument is otherwise unusable.
	ErrInvalidArgument = errors.New("amqp: invalid argument")

	// ErrTypeMismatch is returned by accessors called on a value of a
	// different type.
	ErrTypeMismatch = errors.New("amqp: type mismatch")

	// ErrIndexOutOfRange is returned when a container index is past the end.
	ErrIndexOutOfRange = errors.New("amqp: index out of range")

	// ErrReleased is returned when a value is used after its last
	// reference was destroyed.
	ErrReleased = errors.New("amqp: value released")

	// ErrMalformed is returned when the decoder encounters bytes that are
	// not a valid encoding.
	ErrMalformed = errors.New("amqp: malformed input")

	// ErrLimitExceeded is returned when a decoded count or length is above
	// one of the decoder's safety ceilings.
	ErrLimitExceeded = errors.New("amqp: limit exceeded")

	// ErrUnsupported is returned for values that have no encoding in this
	// package.
	ErrUnsupported = errors.New("amqp: unsupported")

	// ErrDecoderFailed is returned by a decoder that previously failed.
	// The decoder must be discarded.
	ErrDecoderFailed = errors.New("amqp: decoder is in error state")
)

func typeMismatch(want Type, got Type) error {
	return fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, want, got)
}

// ErrorCondition is one of the error conditions defined by AMQP 1.0.
type ErrorCondition string

// Error Conditions
const (
	// AMQP Errors
	ErrorInternalError         ErrorCondition = "amqp:internal-error"
	ErrorNotFound              ErrorCondition = "amqp:not-found"
	ErrorUnauthorizedAccess    ErrorCondition = "amqp:unauthorized-access"
	ErrorDecodeError           ErrorCondition = "amqp:decode-error"
	ErrorResourceLimitExceeded ErrorCondition = "amqp:resource-limit-exceeded"
	ErrorNotAllowed            ErrorCondition = "amqp:not-allowed"
	ErrorInvalidField          ErrorCondition = "amqp:invalid-field"
	ErrorNotImplemented        ErrorCondition = "amqp:not-implemented"
	ErrorResourceLocked        ErrorCondition = "amqp:resource-locked"
	ErrorPreconditionFailed    ErrorCondition = "amqp:precondition-failed"
	ErrorResourceDeleted       ErrorCondition = "amqp:resource-deleted"
	ErrorIllegalState          ErrorCondition = "amqp:illegal-state"
	ErrorFrameSizeTooSmall     ErrorCondition = "amqp:frame-size-too-small"
)

/*
<type name="error" class="composite" source="list">
    <descriptor name="amqp:error:list" code="0x00000000:0x0000001d"/>
    <field name="condition" type="symbol" requires="error-condition" mandatory="true"/>
    <field name="description" type="string"/>
    <field name="info" type="fields"/>
</type>
*/

// Error is an AMQP error record.
type Error struct {
	// A symbolic value indicating the error condition.
	Condition ErrorCondition

	// descriptive text about the error condition
	//
	// This text supplies any supplementary details not indicated by the condition field.
	// This text can be logged as an aid to resolving issues.
	Description string

	// map carrying information about the error condition
	//
	// Values filled in by ErrorFromValue are clones owned by the caller,
	// who must Destroy each of them once done.
	Info map[string]*Value
}

// Value builds the composite encoding of e. The caller owns the
// returned value.
func (e *Error) Value() (*Value, error) {
	if e == nil || e.Condition == "" {
		return nil, fmt.Errorf("%w: Error.Condition is required", ErrInvalidArgument)
	}

	c := NewCompositeWithCode(descriptorCodeError, 3)
	fields := []*Value{NewSymbol(string(e.Condition)), nil, nil}
	if e.Description != "" {
		fields[1] = NewString(e.Description)
	}
	if len(e.Info) > 0 {
		info := NewMap()
		keys := make([]string, 0, len(e.Info))
		for k := range e.Info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			key := NewSymbol(k)
			err := info.MapSetValue(key, e.Info[k])
			key.Destroy()
			if err != nil {
				info.Destroy()
				c.Destroy()
				fields[0].Destroy()
				fields[1].Destroy()
				return nil, err
			}
		}
		fields[2] = info
	}

	var err error
	for i, f := range fields {
		if f == nil {
			continue
		}
		if err == nil {
			err = c.CompositeSetItem(uint32(i), f)
		}
		f.Destroy()
	}
	if err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

// ErrorFromValue reads an error record from a described value. The
// values in the returned Error.Info are clones owned by the caller.
func ErrorFromValue(v *Value) (*Error, error) {
	descriptor, err := v.DescriptorInPlace()
	if err != nil {
		return nil, err
	}
	code, err := descriptor.AsUlong()
	if err != nil || code != descriptorCodeError {
		return nil, fmt.Errorf("%w: descriptor %s is not amqp:error:list", ErrTypeMismatch, descriptor)
	}

	count, err := v.CompositeItemCount()
	if err != nil {
		return nil, err
	}

	e := new(Error)
	for i := uint32(0); i < count && i < 3; i++ {
		field, err := v.CompositeItemInPlace(i)
		if err != nil {
			return nil, err
		}
		if field == nil || field.Type() == TypeNull {
			continue
		}
		switch i {
		case 0:
			s, err := field.AsSymbol()
			if err != nil {
				return nil, fmt.Errorf("unmarshaling field %d: %w", i, err)
			}
			e.Condition = ErrorCondition(s)
		case 1:
			s, err := field.AsString()
			if err != nil {
				return nil, fmt.Errorf("unmarshaling field %d: %w", i, err)
			}
			e.Description = s
		case 2:
			info, err := readFields(field)
			if err != nil {
				return nil, fmt.Errorf("unmarshaling field %d: %w", i, err)
			}
			e.Info = info
		}
	}

	if e.Condition == "" {
		destroyFields(e.Info)
		return nil, fmt.Errorf("%w: Error.Condition is required", ErrMalformed)
	}
	return e, nil
}

// readFields converts a map with symbol or string keys. Values are clones
// owned by the returned map; nothing is retained on error.
func readFields(m *Value) (map[string]*Value, error) {
	n, err := m.MapPairCount()
	if err != nil {
		return nil, err
	}
	fields := make(map[string]*Value, n)
	for i := uint32(0); i < n; i++ {
		key, value, err := m.MapPairInPlace(i)
		if err != nil {
			destroyFields(fields)
			return nil, err
		}
		var name string
		switch key.Type() {
		case TypeSymbol:
			name, _ = key.AsSymbol()
		case TypeString:
			name, _ = key.AsString()
		default:
			destroyFields(fields)
			return nil, fmt.Errorf("%w: invalid fields key type %s", ErrMalformed, key.Type())
		}
		// a symbol and a string key may share a name
		fields[name].Destroy()
		fields[name] = value.Clone()
	}
	return fields, nil
}

func destroyFields(fields map[string]*Value) {
	for _, v := range fields {
		v.Destroy()
	}
}

func (e *Error) String() string {
	if e == nil {
		return "*Error(nil)"
	}
	return fmt.Sprintf("*Error{Condition: %s, Description: %s, Info: %v}",
		e.Condition,
		e.Description,
		e.Info,
	)
}

func (e *Error) Error() string {
	return e.String()
}
