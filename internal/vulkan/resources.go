package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// HostVisibleBuffer is a buffer bound to its own host-coherent allocation, mapped for its entire
// lifetime. Writes land in device-visible memory without a flush.
type HostVisibleBuffer struct {
	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	data   []byte

	allocationCallbacks *driver.AllocationCallbacks
}

func NewHostVisibleBuffer(
	device core1_0.Device,
	allocationCallbacks *driver.AllocationCallbacks,
	memoryTypes *MemoryTypes,
	size int,
	usage core1_0.BufferUsageFlags,
) (*HostVisibleBuffer, common.VkResult, error) {
	if size <= 0 {
		return nil, core1_0.VKErrorUnknown, errors.Newf("attempted to create a host-visible buffer of size %d", size)
	}

	buffer, res, err := device.CreateBuffer(allocationCallbacks, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, res, err
	}

	memory, res, err := allocateAndBind(
		device,
		allocationCallbacks,
		memoryTypes,
		buffer.MemoryRequirements(),
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent,
		0,
		buffer.BindBufferMemory,
	)
	if err != nil {
		buffer.Destroy(allocationCallbacks)
		return nil, res, err
	}

	ptr, res, err := memory.Map(0, -1, 0)
	if err != nil {
		buffer.Destroy(allocationCallbacks)
		memory.Free(allocationCallbacks)
		return nil, res, err
	}

	return &HostVisibleBuffer{
		buffer:              buffer,
		memory:              memory,
		data:                unsafe.Slice((*byte)(ptr), size),
		allocationCallbacks: allocationCallbacks,
	}, core1_0.VKSuccess, nil
}

func (b *HostVisibleBuffer) Handle() core1_0.Buffer {
	return b.buffer
}

func (b *HostVisibleBuffer) Size() int {
	return len(b.data)
}

// Write copies data into the mapped memory at offset
func (b *HostVisibleBuffer) Write(offset int, data []byte) error {
	if b.data == nil {
		return errors.New("attempted to write to a destroyed host-visible buffer")
	}
	if offset < 0 || offset+len(data) > len(b.data) {
		return errors.Newf("write of %d bytes at offset %d overruns host-visible buffer of size %d", len(data), offset, len(b.data))
	}

	copy(b.data[offset:], data)
	return nil
}

func (b *HostVisibleBuffer) Destroy() {
	if b.buffer == nil {
		return
	}

	b.memory.Unmap()
	b.data = nil

	b.buffer.Destroy(b.allocationCallbacks)
	b.memory.Free(b.allocationCallbacks)
	b.buffer = nil
	b.memory = nil
}

// CreateDeviceLocalImage creates an image and binds it to a dedicated allocation, preferring
// device-local memory
func CreateDeviceLocalImage(
	device core1_0.Device,
	allocationCallbacks *driver.AllocationCallbacks,
	memoryTypes *MemoryTypes,
	info core1_0.ImageCreateInfo,
) (core1_0.Image, core1_0.DeviceMemory, common.VkResult, error) {
	image, res, err := device.CreateImage(allocationCallbacks, info)
	if err != nil {
		return nil, nil, res, err
	}

	memory, res, err := allocateAndBind(
		device,
		allocationCallbacks,
		memoryTypes,
		image.MemoryRequirements(),
		0,
		core1_0.MemoryPropertyDeviceLocal,
		image.BindImageMemory,
	)
	if err != nil {
		image.Destroy(allocationCallbacks)
		return nil, nil, res, err
	}

	return image, memory, core1_0.VKSuccess, nil
}

// CreateDeviceLocalBuffer creates a buffer and binds it to a dedicated allocation, preferring
// device-local memory
func CreateDeviceLocalBuffer(
	device core1_0.Device,
	allocationCallbacks *driver.AllocationCallbacks,
	memoryTypes *MemoryTypes,
	info core1_0.BufferCreateInfo,
) (core1_0.Buffer, core1_0.DeviceMemory, common.VkResult, error) {
	buffer, res, err := device.CreateBuffer(allocationCallbacks, info)
	if err != nil {
		return nil, nil, res, err
	}

	memory, res, err := allocateAndBind(
		device,
		allocationCallbacks,
		memoryTypes,
		buffer.MemoryRequirements(),
		0,
		core1_0.MemoryPropertyDeviceLocal,
		buffer.BindBufferMemory,
	)
	if err != nil {
		buffer.Destroy(allocationCallbacks)
		return nil, nil, res, err
	}

	return buffer, memory, core1_0.VKSuccess, nil
}

func allocateAndBind(
	device core1_0.Device,
	allocationCallbacks *driver.AllocationCallbacks,
	memoryTypes *MemoryTypes,
	requirements *core1_0.MemoryRequirements,
	requiredFlags core1_0.MemoryPropertyFlags,
	preferredFlags core1_0.MemoryPropertyFlags,
	bind func(memory core1_0.DeviceMemory, offset int) (common.VkResult, error),
) (core1_0.DeviceMemory, common.VkResult, error) {
	memoryTypeIndex, res, err := memoryTypes.FindMemoryTypeIndex(requirements.MemoryTypeBits, requiredFlags, preferredFlags)
	if err != nil {
		return nil, res, err
	}

	memory, res, err := device.AllocateMemory(allocationCallbacks, core1_0.MemoryAllocateInfo{
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		return nil, res, err
	}

	res, err = bind(memory, 0)
	if err != nil {
		memory.Free(allocationCallbacks)
		return nil, res, err
	}

	return memory, res, nil
}
