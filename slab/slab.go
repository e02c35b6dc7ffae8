package slab

import (
	"github.com/pkg/errors"
)

// ErrInvalidKey is returned when a key does not refer to an occupied slot
var ErrInvalidKey error = errors.New("slab key does not refer to an occupied slot")

// Key identifies a slot in a Slab. The same index may be handed out again once its slot is freed,
// but the generation will differ, so a key held past Free never matches the slot's new occupant.
type Key struct {
	index      uint32
	generation uint32
}

// NewKey builds a key for the first generation of index
func NewKey(index uint32) Key {
	return Key{index: index}
}

func (k Key) Index() uint32 {
	return k.index
}

func (k Key) Generation() uint32 {
	return k.generation
}

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// Slab stores values in a dense slice and hands out stable keys for them. Freed slots are reused
// most-recently-freed first, which keeps the slab compact.
type Slab[T any] struct {
	slots    []slot[T]
	freeList []uint32
	count    int
}

func New[T any]() *Slab[T] {
	return &Slab[T]{}
}

// Allocate stores value in a free slot and returns its key
func (s *Slab[T]) Allocate(value T) Key {
	s.count++

	if len(s.freeList) > 0 {
		index := s.freeList[len(s.freeList)-1]
		s.freeList = s.freeList[:len(s.freeList)-1]
		s.slots[index].value = value
		s.slots[index].occupied = true
		return Key{index: index, generation: s.slots[index].generation}
	}

	s.slots = append(s.slots, slot[T]{value: value, occupied: true})
	return Key{index: uint32(len(s.slots) - 1)}
}

func (s *Slab[T]) valid(key Key) bool {
	if int(key.index) >= len(s.slots) {
		return false
	}

	slot := &s.slots[key.index]
	return slot.occupied && slot.generation == key.generation
}

func (s *Slab[T]) Get(key Key) (T, bool) {
	var zero T
	if !s.valid(key) {
		return zero, false
	}

	return s.slots[key.index].value, true
}

// Set replaces the value held by an occupied slot
func (s *Slab[T]) Set(key Key, value T) error {
	if !s.valid(key) {
		return errors.Wrapf(ErrInvalidKey, "index %d generation %d", key.index, key.generation)
	}

	s.slots[key.index].value = value
	return nil
}

// Free empties the slot and returns true if key referred to it
func (s *Slab[T]) Free(key Key) bool {
	if !s.valid(key) {
		return false
	}

	var zero T
	s.slots[key.index].value = zero
	s.slots[key.index].occupied = false
	s.slots[key.index].generation++
	s.freeList = append(s.freeList, key.index)
	s.count--
	return true
}

// Len returns the number of occupied slots
func (s *Slab[T]) Len() int {
	return s.count
}

// Capacity returns the number of slots, occupied or not
func (s *Slab[T]) Capacity() int {
	return len(s.slots)
}

// Iterate calls visit for every occupied slot in index order until visit returns false
func (s *Slab[T]) Iterate(visit func(key Key, value T) bool) {
	for index := range s.slots {
		if !s.slots[index].occupied {
			continue
		}

		key := Key{index: uint32(index), generation: s.slots[index].generation}
		if !visit(key, s.slots[index].value) {
			return
		}
	}
}
