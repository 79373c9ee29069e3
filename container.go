package amqp

import (
	"fmt"
	"math"
)

// maxListGrowth bounds how many slots one ListSetItem or ListSetCount
// call may add to a list.
const maxListGrowth = DefaultMaxItemCount

func (v *Value) list() (*listValue, error) {
	if err := v.check(TypeList); err != nil {
		return nil, err
	}
	return v.payload.(*listValue), nil
}

func checkItem(item *Value) error {
	if item == nil {
		return ErrInvalidArgument
	}
	if item.released {
		return ErrReleased
	}
	return nil
}

func indexCheck(i uint32, n int) error {
	if int64(i) >= int64(n) {
		return fmt.Errorf("%w: index %d, count %d", ErrIndexOutOfRange, i, n)
	}
	return nil
}

// ListCount returns the number of slots in the list.
func (v *Value) ListCount() (uint32, error) {
	l, err := v.list()
	if err != nil {
		return 0, err
	}
	return uint32(len(l.items)), nil
}

// ListSetCount resizes the list. New slots are unset and encode as null;
// removed slots are destroyed. A list grows by at most 65536 slots per
// call.
func (v *Value) ListSetCount(n uint32) error {
	l, err := v.list()
	if err != nil {
		return err
	}
	if uint64(n) > uint64(len(l.items))+maxListGrowth {
		return fmt.Errorf("%w: count %d grows the list past %d new slots", ErrInvalidArgument, n, maxListGrowth)
	}
	l.resize(n)
	return nil
}

func (l *listValue) resize(n uint32) {
	if int(n) < len(l.items) {
		destroyAll(l.items[n:])
		for i := n; int(i) < len(l.items); i++ {
			l.items[i] = nil
		}
		l.items = l.items[:n]
		return
	}
	for len(l.items) < int(n) {
		l.items = append(l.items, nil)
	}
}

// ListItem returns a clone of the item at index i. An unset slot
// returns nil. The caller must destroy the returned value.
func (v *Value) ListItem(i uint32) (*Value, error) {
	item, err := v.ListItemInPlace(i)
	return item.Clone(), err
}

// ListItemInPlace returns the item at index i without adding a
// reference. The returned value is owned by the list and must not be
// destroyed by the caller.
func (v *Value) ListItemInPlace(i uint32) (*Value, error) {
	l, err := v.list()
	if err != nil {
		return nil, err
	}
	if err := indexCheck(i, len(l.items)); err != nil {
		return nil, err
	}
	return l.items[i], nil
}

// ListSetItem stores a clone of item at index i, growing the list with
// unset slots when i is past the end. An index more than 65535 slots past
// the end is out of range.
func (v *Value) ListSetItem(i uint32, item *Value) error {
	l, err := v.list()
	if err != nil {
		return err
	}
	return l.set(i, item)
}

func (l *listValue) set(i uint32, item *Value) error {
	if err := checkItem(item); err != nil {
		return err
	}
	if i == math.MaxUint32 || uint64(i) >= uint64(len(l.items))+maxListGrowth {
		return fmt.Errorf("%w: index %d, count %d", ErrIndexOutOfRange, i, len(l.items))
	}
	if int64(i) >= int64(len(l.items)) {
		l.resize(i + 1)
	}
	old := l.items[i]
	l.items[i] = item.Clone()
	old.Destroy()
	return nil
}

// ListAdd appends a clone of item to the list.
func (v *Value) ListAdd(item *Value) error {
	l, err := v.list()
	if err != nil {
		return err
	}
	if err := checkItem(item); err != nil {
		return err
	}
	l.items = append(l.items, item.Clone())
	return nil
}

func (v *Value) mapValue() (*mapValue, error) {
	if err := v.check(TypeMap); err != nil {
		return nil, err
	}
	return v.payload.(*mapValue), nil
}

// MapSetValue stores clones of key and value. When the map already holds
// a key equal to key, its value is replaced and the pair keeps its
// position.
func (v *Value) MapSetValue(key, value *Value) error {
	m, err := v.mapValue()
	if err != nil {
		return err
	}
	if err := checkItem(key); err != nil {
		return err
	}
	if err := checkItem(value); err != nil {
		return err
	}

	for i := range m.pairs {
		if Equal(m.pairs[i].key, key) {
			old := m.pairs[i].value
			m.pairs[i].value = value.Clone()
			old.Destroy()
			return nil
		}
	}
	m.pairs = append(m.pairs, mapPair{key: key.Clone(), value: value.Clone()})
	return nil
}

// MapValue returns a clone of the value stored under key, or nil when
// the map holds no such key.
func (v *Value) MapValue(key *Value) (*Value, error) {
	m, err := v.mapValue()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, ErrInvalidArgument
	}
	for _, pair := range m.pairs {
		if Equal(pair.key, key) {
			return pair.value.Clone(), nil
		}
	}
	return nil, nil
}

// MapPairCount returns the number of key/value pairs in the map.
func (v *Value) MapPairCount() (uint32, error) {
	m, err := v.mapValue()
	if err != nil {
		return 0, err
	}
	return uint32(len(m.pairs)), nil
}

// MapPair returns clones of the key and value at index i in insertion
// order.
func (v *Value) MapPair(i uint32) (key, value *Value, err error) {
	key, value, err = v.MapPairInPlace(i)
	return key.Clone(), value.Clone(), err
}

// MapPairInPlace returns the key and value at index i without adding
// references.
func (v *Value) MapPairInPlace(i uint32) (key, value *Value, err error) {
	m, err := v.mapValue()
	if err != nil {
		return nil, nil, err
	}
	if err := indexCheck(i, len(m.pairs)); err != nil {
		return nil, nil, err
	}
	return m.pairs[i].key, m.pairs[i].value, nil
}

func (v *Value) array() (*arrayValue, error) {
	if err := v.check(TypeArray); err != nil {
		return nil, err
	}
	return v.payload.(*arrayValue), nil
}

// ArrayAdd appends a clone of item. All items of an array share one
// type; an item of a different type is rejected and the array is left
// unchanged.
func (v *Value) ArrayAdd(item *Value) error {
	a, err := v.array()
	if err != nil {
		return err
	}
	if err := checkItem(item); err != nil {
		return err
	}
	if len(a.items) > 0 && a.items[0].typ != item.typ {
		return fmt.Errorf("%w: array of %s cannot hold %s", ErrTypeMismatch, a.items[0].typ, item.typ)
	}
	a.items = append(a.items, item.Clone())
	return nil
}

// ArrayCount returns the number of items in the array.
func (v *Value) ArrayCount() (uint32, error) {
	a, err := v.array()
	if err != nil {
		return 0, err
	}
	return uint32(len(a.items)), nil
}

// ArrayItem returns a clone of the item at index i.
func (v *Value) ArrayItem(i uint32) (*Value, error) {
	item, err := v.ArrayItemInPlace(i)
	return item.Clone(), err
}

// ArrayItemInPlace returns the item at index i without adding a
// reference.
func (v *Value) ArrayItemInPlace(i uint32) (*Value, error) {
	a, err := v.array()
	if err != nil {
		return nil, err
	}
	if err := indexCheck(i, len(a.items)); err != nil {
		return nil, err
	}
	return a.items[i], nil
}
