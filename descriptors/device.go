package descriptors

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/conveyor/device"
	internalvulkan "github.com/vkngwrapper/conveyor/internal/vulkan"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// HostBuffer is a persistently-mapped buffer the CPU writes descriptor contents into
type HostBuffer interface {
	Handle() core1_0.Buffer
	Size() int
	Write(offset int, data []byte) error
	Destroy()
}

// Device is the set of device operations descriptor pools are built from
type Device interface {
	CreateDescriptorPool(maxSets int, poolSizes []core1_0.DescriptorPoolSize) (core1_0.DescriptorPool, common.VkResult, error)
	ResetDescriptorPool(pool core1_0.DescriptorPool) (common.VkResult, error)
	DestroyDescriptorPool(pool core1_0.DescriptorPool)
	AllocateDescriptorSets(pool core1_0.DescriptorPool, layout core1_0.DescriptorSetLayout, count int) ([]core1_0.DescriptorSet, common.VkResult, error)
	UpdateDescriptorSets(writes []core1_0.WriteDescriptorSet) error
	CreateHostBuffer(size int, usage core1_0.BufferUsageFlags) (HostBuffer, common.VkResult, error)
}

type vulkanDevice struct {
	context     *device.Context
	memoryTypes *internalvulkan.MemoryTypes
}

var _ Device = &vulkanDevice{}

// NewDevice builds a Device on top of a device context
func NewDevice(context *device.Context) (Device, error) {
	if context == nil {
		return nil, errors.New("descriptors.NewDevice requires a device context")
	}
	if context.Device == nil || context.PhysicalDevice == nil {
		return nil, errors.New("descriptors.NewDevice requires a Device and a PhysicalDevice")
	}

	return &vulkanDevice{
		context:     context,
		memoryTypes: internalvulkan.NewMemoryTypes(context.PhysicalDevice),
	}, nil
}

func (d *vulkanDevice) CreateDescriptorPool(maxSets int, poolSizes []core1_0.DescriptorPoolSize) (core1_0.DescriptorPool, common.VkResult, error) {
	return d.context.Device.CreateDescriptorPool(d.context.AllocationCallbacks, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   maxSets,
		PoolSizes: poolSizes,
	})
}

func (d *vulkanDevice) ResetDescriptorPool(pool core1_0.DescriptorPool) (common.VkResult, error) {
	return pool.Reset(0)
}

func (d *vulkanDevice) DestroyDescriptorPool(pool core1_0.DescriptorPool) {
	pool.Destroy(d.context.AllocationCallbacks)
}

func (d *vulkanDevice) AllocateDescriptorSets(pool core1_0.DescriptorPool, layout core1_0.DescriptorSetLayout, count int) ([]core1_0.DescriptorSet, common.VkResult, error) {
	layouts := make([]core1_0.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = layout
	}

	return d.context.Device.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     layouts,
	})
}

func (d *vulkanDevice) UpdateDescriptorSets(writes []core1_0.WriteDescriptorSet) error {
	return d.context.Device.UpdateDescriptorSets(writes, nil)
}

func (d *vulkanDevice) CreateHostBuffer(size int, usage core1_0.BufferUsageFlags) (HostBuffer, common.VkResult, error) {
	buffer, res, err := internalvulkan.NewHostVisibleBuffer(d.context.Device, d.context.AllocationCallbacks, d.memoryTypes, size, usage)
	if err != nil {
		return nil, res, err
	}

	return buffer, res, nil
}
