package upload

// Owned holds a device resource that is either handed off to a new owner or released, never
// both. Until one of those happens the resource belongs to the slot.
type Owned[T any] struct {
	value   T
	release func(T)
	present bool
}

func NewOwned[T any](value T, release func(T)) *Owned[T] {
	return &Owned[T]{
		value:   value,
		release: release,
		present: true,
	}
}

// Present returns true while the slot still owns its resource
func (o *Owned[T]) Present() bool {
	return o.present
}

// Take hands the resource off to the caller. The slot will not release it afterward. The boolean
// return value is false if the resource was already taken or released.
func (o *Owned[T]) Take() (T, bool) {
	var zero T
	if !o.present {
		return zero, false
	}

	value := o.value
	o.value = zero
	o.present = false
	return value, true
}

// Release destroys the resource if the slot still owns it and returns true if it did
func (o *Owned[T]) Release() bool {
	value, ok := o.Take()
	if !ok {
		return false
	}

	if o.release != nil {
		o.release(value)
	}
	return true
}
