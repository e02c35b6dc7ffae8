package vulkan

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

var testMemoryProperties = &core1_0.PhysicalDeviceMemoryProperties{
	MemoryTypes: []core1_0.MemoryType{
		{PropertyFlags: 0, HeapIndex: 1},
		{PropertyFlags: core1_0.MemoryPropertyDeviceLocal, HeapIndex: 0},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible, HeapIndex: 1},
		{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent, HeapIndex: 1},
	},
	MemoryHeaps: []core1_0.MemoryHeap{
		{Size: 1000000, Flags: core1_0.MemoryHeapDeviceLocal},
		{Size: 1000000},
	},
}

type fakeMemory struct {
	core1_0.DeviceMemory
	backing  []byte
	unmapped int
	freed    int
}

func (m *fakeMemory) Map(offset int, size int, flags core1_0.MemoryMapFlags) (unsafe.Pointer, common.VkResult, error) {
	return unsafe.Pointer(&m.backing[offset]), core1_0.VKSuccess, nil
}

func (m *fakeMemory) Unmap() {
	m.unmapped++
}

func (m *fakeMemory) Free(callbacks *driver.AllocationCallbacks) {
	m.freed++
}

type fakeBuffer struct {
	core1_0.Buffer
	requirements core1_0.MemoryRequirements
	boundTo      core1_0.DeviceMemory
	destroyed    int
}

func (b *fakeBuffer) MemoryRequirements() *core1_0.MemoryRequirements {
	return &b.requirements
}

func (b *fakeBuffer) BindBufferMemory(memory core1_0.DeviceMemory, offset int) (common.VkResult, error) {
	b.boundTo = memory
	return core1_0.VKSuccess, nil
}

func (b *fakeBuffer) Destroy(callbacks *driver.AllocationCallbacks) {
	b.destroyed++
}

type fakeDevice struct {
	core1_0.Device
	buffer      *fakeBuffer
	memory      *fakeMemory
	createInfo  core1_0.BufferCreateInfo
	allocations []core1_0.MemoryAllocateInfo
}

func (d *fakeDevice) CreateBuffer(callbacks *driver.AllocationCallbacks, o core1_0.BufferCreateInfo) (core1_0.Buffer, common.VkResult, error) {
	d.createInfo = o
	return d.buffer, core1_0.VKSuccess, nil
}

func (d *fakeDevice) AllocateMemory(callbacks *driver.AllocationCallbacks, o core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error) {
	d.allocations = append(d.allocations, o)
	return d.memory, core1_0.VKSuccess, nil
}

func TestFindMemoryTypeIndex(t *testing.T) {
	memoryTypes := NewMemoryTypesFromProperties(testMemoryProperties)

	testCases := map[string]struct {
		TypeBits  uint32
		Required  core1_0.MemoryPropertyFlags
		Preferred core1_0.MemoryPropertyFlags

		ExpectedIndex int
		Result        common.VkResult
	}{
		"DeviceLocalPreferred": {
			TypeBits:      0xffffffff,
			Preferred:     core1_0.MemoryPropertyDeviceLocal,
			ExpectedIndex: 1,
			Result:        core1_0.VKSuccess,
		},
		"HostCoherentRequired": {
			TypeBits:      0xffffffff,
			Required:      core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
			ExpectedIndex: 3,
			Result:        core1_0.VKSuccess,
		},
		"BestEffortPreference": {
			TypeBits:      0x5,
			Preferred:     core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
			ExpectedIndex: 2,
			Result:        core1_0.VKSuccess,
		},
		"BannedByTypeBits": {
			TypeBits:      0x3,
			Required:      core1_0.MemoryPropertyHostVisible,
			ExpectedIndex: -1,
			Result:        core1_0.VKErrorFeatureNotPresent,
		},
	}

	for testName, testCase := range testCases {
		t.Run(testName, func(t *testing.T) {
			index, res, err := memoryTypes.FindMemoryTypeIndex(testCase.TypeBits, testCase.Required, testCase.Preferred)
			require.Equal(t, testCase.Result, res)
			require.Equal(t, testCase.ExpectedIndex, index)
			if testCase.Result == core1_0.VKSuccess {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestHostVisibleBuffer(t *testing.T) {
	memory := &fakeMemory{backing: make([]byte, 256)}
	buffer := &fakeBuffer{requirements: core1_0.MemoryRequirements{
		Size:           256,
		Alignment:      16,
		MemoryTypeBits: 0xffffffff,
	}}
	device := &fakeDevice{buffer: buffer, memory: memory}

	hostBuffer, res, err := NewHostVisibleBuffer(device, nil, NewMemoryTypesFromProperties(testMemoryProperties), 200, core1_0.BufferUsageTransferSrc)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	require.Equal(t, 200, device.createInfo.Size)
	require.Equal(t, core1_0.BufferUsageTransferSrc, device.createInfo.Usage)
	require.Equal(t, []core1_0.MemoryAllocateInfo{{AllocationSize: 256, MemoryTypeIndex: 3}}, device.allocations)
	require.Same(t, memory, buffer.boundTo)
	require.Same(t, buffer, hostBuffer.Handle())
	require.Equal(t, 200, hostBuffer.Size())

	require.NoError(t, hostBuffer.Write(10, []byte{1, 2, 3}))
	require.Equal(t, []byte{1, 2, 3}, memory.backing[10:13])

	require.Error(t, hostBuffer.Write(198, []byte{1, 2, 3}))
	require.Error(t, hostBuffer.Write(-1, []byte{1}))

	hostBuffer.Destroy()
	hostBuffer.Destroy()
	require.Equal(t, 1, memory.unmapped)
	require.Equal(t, 1, memory.freed)
	require.Equal(t, 1, buffer.destroyed)

	require.Error(t, hostBuffer.Write(0, []byte{1}))
}
