package amqp

// NewDescribed returns a described value holding clones of descriptor
// and value.
func NewDescribed(descriptor, value *Value) (*Value, error) {
	if err := checkItem(descriptor); err != nil {
		return nil, err
	}
	if err := checkItem(value); err != nil {
		return nil, err
	}
	return newValue(TypeDescribed, &describedValue{
		descriptor: descriptor.Clone(),
		value:      value.Clone(),
	}), nil
}

// NewComposite returns a composite with a clone of descriptor and a
// field list of fieldCount unset slots.
func NewComposite(descriptor *Value, fieldCount uint32) (*Value, error) {
	if err := checkItem(descriptor); err != nil {
		return nil, err
	}
	fields := &listValue{}
	fields.resize(fieldCount)
	return newValue(TypeComposite, &describedValue{
		descriptor: descriptor.Clone(),
		value:      newValue(TypeList, fields),
	}), nil
}

// NewCompositeWithCode returns a composite whose descriptor is the ulong
// code.
func NewCompositeWithCode(code uint64, fieldCount uint32) *Value {
	fields := &listValue{}
	fields.resize(fieldCount)
	return newValue(TypeComposite, &describedValue{
		descriptor: NewUlong(code),
		value:      newValue(TypeList, fields),
	})
}

func (v *Value) described() (*describedValue, error) {
	if v == nil {
		return nil, ErrInvalidArgument
	}
	if v.released {
		return nil, ErrReleased
	}
	if !v.typ.isDescribed() {
		return nil, typeMismatch(TypeDescribed, v.typ)
	}
	return v.payload.(*describedValue), nil
}

// Descriptor returns a clone of the descriptor of a described or
// composite value.
func (v *Value) Descriptor() (*Value, error) {
	d, err := v.DescriptorInPlace()
	return d.Clone(), err
}

// DescriptorInPlace returns the descriptor without adding a reference.
func (v *Value) DescriptorInPlace() (*Value, error) {
	d, err := v.described()
	if err != nil {
		return nil, err
	}
	return d.descriptor, nil
}

// DescribedValue returns a clone of the value of a described or
// composite value.
func (v *Value) DescribedValue() (*Value, error) {
	d, err := v.DescribedValueInPlace()
	return d.Clone(), err
}

// DescribedValueInPlace returns the described value without adding a
// reference.
func (v *Value) DescribedValueInPlace() (*Value, error) {
	d, err := v.described()
	if err != nil {
		return nil, err
	}
	return d.value, nil
}

func (v *Value) compositeFields() (*Value, error) {
	d, err := v.described()
	if err != nil {
		return nil, err
	}
	return d.value, nil
}

// CompositeSetItem stores a clone of item in field i.
func (v *Value) CompositeSetItem(i uint32, item *Value) error {
	fields, err := v.compositeFields()
	if err != nil {
		return err
	}
	return fields.ListSetItem(i, item)
}

// CompositeItem returns a clone of field i. An unset field returns nil.
func (v *Value) CompositeItem(i uint32) (*Value, error) {
	fields, err := v.compositeFields()
	if err != nil {
		return nil, err
	}
	return fields.ListItem(i)
}

// CompositeItemInPlace returns field i without adding a reference.
func (v *Value) CompositeItemInPlace(i uint32) (*Value, error) {
	fields, err := v.compositeFields()
	if err != nil {
		return nil, err
	}
	return fields.ListItemInPlace(i)
}

// CompositeItemCount returns the number of fields.
func (v *Value) CompositeItemCount() (uint32, error) {
	fields, err := v.compositeFields()
	if err != nil {
		return 0, err
	}
	return fields.ListCount()
}
