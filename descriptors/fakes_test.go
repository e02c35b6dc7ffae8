package descriptors

import (
	"bytes"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

type fakePool struct {
	core1_0.DescriptorPool
	id int
}

type fakeSet struct {
	core1_0.DescriptorSet
	id int
}

type fakeLayout struct {
	core1_0.DescriptorSetLayout
}

type fakeImageView struct {
	core1_0.ImageView
	name string
}

type fakeSampler struct {
	core1_0.Sampler
	name string
}

type fakeBufferHandle struct {
	core1_0.Buffer
	id int
}

type fakeHostBuffer struct {
	handle    *fakeBufferHandle
	data      []byte
	writes    int
	destroyed bool
}

func (b *fakeHostBuffer) Handle() core1_0.Buffer {
	return b.handle
}

func (b *fakeHostBuffer) Size() int {
	return len(b.data)
}

func (b *fakeHostBuffer) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > len(b.data) {
		return errors.Newf("write of %d bytes at %d is out of range", len(data), offset)
	}
	copy(b.data[offset:], data)
	b.writes++
	return nil
}

func (b *fakeHostBuffer) Destroy() {
	b.destroyed = true
}

type fakeDevice struct {
	pools          []*fakePool
	resetPools     []core1_0.DescriptorPool
	destroyedPools []core1_0.DescriptorPool
	nextSetID      int
	updates        [][]core1_0.WriteDescriptorSet
	buffers        []*fakeHostBuffer
	bufferUsages   []core1_0.BufferUsageFlags

	createPoolErr   error
	resetPoolErr    error
	updateErr       error
	createBufferErr error
	// createBufferFailAfter fails buffer creation once this many buffers exist, when createBufferErr is set
	createBufferFailAfter int
}

var _ Device = &fakeDevice{}

func (d *fakeDevice) CreateDescriptorPool(maxSets int, poolSizes []core1_0.DescriptorPoolSize) (core1_0.DescriptorPool, common.VkResult, error) {
	if d.createPoolErr != nil {
		return nil, core1_0.VKErrorOutOfDeviceMemory, d.createPoolErr
	}

	pool := &fakePool{id: len(d.pools)}
	d.pools = append(d.pools, pool)
	return pool, core1_0.VKSuccess, nil
}

func (d *fakeDevice) ResetDescriptorPool(pool core1_0.DescriptorPool) (common.VkResult, error) {
	if d.resetPoolErr != nil {
		return core1_0.VKErrorUnknown, d.resetPoolErr
	}

	d.resetPools = append(d.resetPools, pool)
	return core1_0.VKSuccess, nil
}

func (d *fakeDevice) DestroyDescriptorPool(pool core1_0.DescriptorPool) {
	d.destroyedPools = append(d.destroyedPools, pool)
}

func (d *fakeDevice) AllocateDescriptorSets(pool core1_0.DescriptorPool, layout core1_0.DescriptorSetLayout, count int) ([]core1_0.DescriptorSet, common.VkResult, error) {
	sets := make([]core1_0.DescriptorSet, count)
	for i := range sets {
		sets[i] = &fakeSet{id: d.nextSetID}
		d.nextSetID++
	}
	return sets, core1_0.VKSuccess, nil
}

func (d *fakeDevice) UpdateDescriptorSets(writes []core1_0.WriteDescriptorSet) error {
	if d.updateErr != nil {
		return d.updateErr
	}

	d.updates = append(d.updates, writes)
	return nil
}

func (d *fakeDevice) CreateHostBuffer(size int, usage core1_0.BufferUsageFlags) (HostBuffer, common.VkResult, error) {
	if d.createBufferErr != nil && len(d.buffers) >= d.createBufferFailAfter {
		return nil, core1_0.VKErrorOutOfDeviceMemory, d.createBufferErr
	}

	buffer := &fakeHostBuffer{
		handle: &fakeBufferHandle{id: len(d.buffers)},
		data:   make([]byte, size),
	}
	d.buffers = append(d.buffers, buffer)
	d.bufferUsages = append(d.bufferUsages, usage)
	return buffer, core1_0.VKSuccess, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func capturingLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func testAllocator(t *testing.T, device Device, framesInFlight int) *PoolAllocator {
	allocator, err := NewPoolAllocator(testLogger(), device, framesInFlight, 16, nil)
	require.NoError(t, err)
	return allocator
}

var uniformBinding = RequiredBufferInfo{
	Element:             ElementKey{DstBinding: 0},
	DescriptorType:      core1_0.DescriptorTypeUniformBuffer,
	PerDescriptorSize:   64,
	PerDescriptorStride: 256,
}
