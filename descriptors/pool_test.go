package descriptors

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/conveyor/slab"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func newTestPool(t *testing.T, device *fakeDevice, flags PoolCreateFlags) *Pool {
	pool, err := NewPool(testLogger(), device, PoolOptions{
		Flags:                 flags,
		MaxDescriptorsPerPool: 2,
		Layout:                &fakeLayout{},
		DescriptorCounts: []core1_0.DescriptorPoolSize{
			{Type: core1_0.DescriptorTypeUniformBuffer, DescriptorCount: 1},
		},
		BufferInfos: []RequiredBufferInfo{uniformBinding},
	})
	require.NoError(t, err)
	return pool
}

func TestNewPoolOptions(t *testing.T) {
	_, err := NewPool(testLogger(), &fakeDevice{}, PoolOptions{})
	require.Error(t, err)

	_, err = NewPool(testLogger(), &fakeDevice{}, PoolOptions{Layout: &fakeLayout{}, FramesInFlight: -1})
	require.Error(t, err)

	pool, err := NewPool(testLogger(), &fakeDevice{}, PoolOptions{
		Layout: &fakeLayout{},
		DescriptorCounts: []core1_0.DescriptorPoolSize{
			{Type: core1_0.DescriptorTypeCombinedImageSampler, DescriptorCount: 2},
		},
	})
	require.NoError(t, err)
	require.True(t, pool.mutex.UseMutex)
	require.Equal(t, DefaultMaxFramesInFlight, pool.framesInFlight)
	require.Equal(t, DefaultMaxDescriptorsPerPool, pool.maxDescriptorsPerPool)
	require.Equal(t, 192, pool.poolAllocator.maxSets)
	require.Equal(t, 384, pool.poolAllocator.poolSizes[0].DescriptorCount)

	pool = newTestPool(t, &fakeDevice{}, PoolCreateExternallySynchronized)
	require.False(t, pool.mutex.UseMutex)
	require.Equal(t, "PoolCreateExternallySynchronized", PoolCreateExternallySynchronized.String())
}

func TestPoolGrowsByChunk(t *testing.T) {
	device := &fakeDevice{}
	pool := newTestPool(t, device, 0)

	var allocations []Allocation
	for i := 0; i < 3; i++ {
		allocation, res, err := pool.Insert(WriteSet{}, 0)
		require.NoError(t, err)
		require.Equal(t, core1_0.VKSuccess, res)
		require.Len(t, allocation.Sets, 3)
		allocations = append(allocations, allocation)
	}

	require.Len(t, pool.chunks, 2)
	require.Len(t, device.pools, 2)
	require.Equal(t, uint32(2), allocations[2].Key.Index())
	require.Same(t, pool.chunks[1].descriptorSets[0][0], allocations[2].Sets[0])
	require.Same(t, pool.chunks[0].descriptorSets[2][1], allocations[1].Sets[2])
}

func TestPoolWritesReachChunk(t *testing.T) {
	device := &fakeDevice{}
	pool := newTestPool(t, device, 0)

	allocation, _, err := pool.Insert(WriteSet{}, 1)
	require.NoError(t, err)

	payload := make([]byte, 64)
	payload[0] = 42
	sets, err := pool.ScheduleWriteBuffer(allocation.Key, WriteBuffer{
		Elements: map[ElementKey][]byte{{DstBinding: 0}: payload},
	}, 1)
	require.NoError(t, err)
	require.Equal(t, allocation.Sets, sets)

	_, err = pool.ScheduleWriteBuffer(allocation.Key, WriteBuffer{
		Elements: map[ElementKey][]byte{{DstBinding: 0}: make([]byte, 80)},
	}, 1)
	require.ErrorIs(t, err, ErrWriteTooLarge)

	res, err := pool.Update(1)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	// buffers are created frame by frame for the single binding
	require.Equal(t, byte(42), device.buffers[1].data[0])

	_, err = pool.ScheduleWriteSet(slab.NewKey(9), WriteSet{}, 1)
	require.ErrorIs(t, err, slab.ErrInvalidKey)
}

func TestPoolFreeDefersSlotReuse(t *testing.T) {
	device := &fakeDevice{}
	pool := newTestPool(t, device, 0)

	first, _, err := pool.Insert(WriteSet{}, 0)
	require.NoError(t, err)
	_, _, err = pool.Insert(WriteSet{}, 0)
	require.NoError(t, err)

	require.NoError(t, pool.Free(first.Key))
	require.ErrorIs(t, pool.Free(first.Key), slab.ErrInvalidKey)

	_, err = pool.ScheduleWriteSet(first.Key, WriteSet{}, 0)
	require.ErrorIs(t, err, slab.ErrInvalidKey)

	stats := pool.Statistics()
	require.Equal(t, 1, stats.Allocations)
	require.Equal(t, 1, stats.PendingFrees)

	third, _, err := pool.Insert(WriteSet{}, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(2), third.Key.Index())

	for _, frame := range []FrameInFlightIndex{0, 1, 2} {
		_, err = pool.Update(frame)
		require.NoError(t, err)
	}

	fourth, _, err := pool.Insert(WriteSet{}, 0)
	require.NoError(t, err)
	require.Equal(t, first.Key.Index(), fourth.Key.Index())
	require.NotEqual(t, first.Key, fourth.Key)

	// the stale key does not reach the slot's new owner
	_, err = pool.ScheduleWriteSet(first.Key, WriteSet{}, 0)
	require.ErrorIs(t, err, slab.ErrInvalidKey)
	_, err = pool.ScheduleWriteBuffer(first.Key, WriteBuffer{
		Elements: map[ElementKey][]byte{{DstBinding: 0}: make([]byte, 64)},
	}, 0)
	require.ErrorIs(t, err, slab.ErrInvalidKey)
	require.ErrorIs(t, pool.Free(first.Key), slab.ErrInvalidKey)

	sets, err := pool.ScheduleWriteSet(fourth.Key, WriteSet{}, 0)
	require.NoError(t, err)
	require.Equal(t, fourth.Sets, sets)
	require.Equal(t, 3, pool.Statistics().Allocations)
}

func TestPoolStatsString(t *testing.T) {
	device := &fakeDevice{}
	pool := newTestPool(t, device, PoolCreateExternallySynchronized)

	_, _, err := pool.Insert(WriteSet{}, 0)
	require.NoError(t, err)

	stats := pool.Statistics()
	require.Equal(t, 1, stats.Allocations)
	require.Equal(t, 1, stats.Chunks)
	require.Equal(t, 1, stats.PendingWrites)
	require.Equal(t, 1, stats.DescriptorPools)
	require.Equal(t, 3*2*256, stats.BufferBytes)

	var document struct {
		Total struct {
			Allocations int
			Chunks      int
			BufferBytes int
		}
		Chunks []struct {
			PendingSetWrites int
			BufferBytes      int
		}
	}
	require.NoError(t, json.Unmarshal([]byte(pool.BuildStatsString(true)), &document))
	require.Equal(t, 1, document.Total.Allocations)
	require.Equal(t, 1536, document.Total.BufferBytes)
	require.Len(t, document.Chunks, 1)
	require.Equal(t, 1, document.Chunks[0].PendingSetWrites)

	document.Chunks = nil
	require.NoError(t, json.Unmarshal([]byte(pool.BuildStatsString(false)), &document))
	require.Nil(t, document.Chunks)
}

func TestPoolDestroy(t *testing.T) {
	device := &fakeDevice{}
	pool := newTestPool(t, device, 0)

	for i := 0; i < 3; i++ {
		_, _, err := pool.Insert(WriteSet{}, 0)
		require.NoError(t, err)
	}

	pool.Destroy()
	require.Len(t, device.destroyedPools, 2)
	for _, buffer := range device.buffers {
		require.True(t, buffer.destroyed)
	}
	require.Empty(t, pool.chunks)
}
