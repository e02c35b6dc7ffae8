package slab_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/conveyor/slab"
)

func TestSlabAllocateGetFree(t *testing.T) {
	s := slab.New[string]()

	a := s.Allocate("a")
	b := s.Allocate("b")
	require.Equal(t, uint32(0), a.Index())
	require.Equal(t, uint32(1), b.Index())
	require.Equal(t, 2, s.Len())

	value, ok := s.Get(b)
	require.True(t, ok)
	require.Equal(t, "b", value)

	require.True(t, s.Free(a))
	require.False(t, s.Free(a))
	require.Equal(t, 1, s.Len())
	require.Equal(t, 2, s.Capacity())

	_, ok = s.Get(a)
	require.False(t, ok)

	_, ok = s.Get(slab.NewKey(40))
	require.False(t, ok)
}

func TestSlabReusesMostRecentlyFreed(t *testing.T) {
	s := slab.New[int]()
	keys := []slab.Key{s.Allocate(0), s.Allocate(1), s.Allocate(2)}

	s.Free(keys[0])
	s.Free(keys[2])

	require.Equal(t, uint32(2), s.Allocate(20).Index())
	require.Equal(t, uint32(0), s.Allocate(10).Index())
	require.Equal(t, uint32(3), s.Allocate(30).Index())
	require.Equal(t, 4, s.Len())
}

func TestSlabStaleKeyAfterReuse(t *testing.T) {
	s := slab.New[string]()
	stale := s.Allocate("old")
	require.True(t, s.Free(stale))

	fresh := s.Allocate("new")
	require.Equal(t, stale.Index(), fresh.Index())
	require.NotEqual(t, stale.Generation(), fresh.Generation())

	_, ok := s.Get(stale)
	require.False(t, ok)
	require.True(t, errors.Is(s.Set(stale, "overwritten"), slab.ErrInvalidKey))
	require.False(t, s.Free(stale))

	value, ok := s.Get(fresh)
	require.True(t, ok)
	require.Equal(t, "new", value)
	require.Equal(t, 1, s.Len())

	s.Iterate(func(key slab.Key, value string) bool {
		require.Equal(t, fresh, key)
		return true
	})
}

func TestSlabSet(t *testing.T) {
	s := slab.New[int]()
	key := s.Allocate(1)

	require.NoError(t, s.Set(key, 5))
	value, _ := s.Get(key)
	require.Equal(t, 5, value)

	s.Free(key)
	err := s.Set(key, 6)
	require.True(t, errors.Is(err, slab.ErrInvalidKey))
}

func TestSlabIterate(t *testing.T) {
	s := slab.New[string]()
	s.Allocate("a")
	middle := s.Allocate("b")
	s.Allocate("c")
	s.Free(middle)

	var visited []string
	s.Iterate(func(key slab.Key, value string) bool {
		visited = append(visited, value)
		return true
	})
	require.Equal(t, []string{"a", "c"}, visited)

	visited = nil
	s.Iterate(func(key slab.Key, value string) bool {
		visited = append(visited, value)
		return false
	})
	require.Equal(t, []string{"a"}, visited)
}
