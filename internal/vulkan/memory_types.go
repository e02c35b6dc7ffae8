package vulkan

import (
	"math"
	"math/bits"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// MemoryTypes answers memory-type questions for a single physical device
type MemoryTypes struct {
	memoryProperties *core1_0.PhysicalDeviceMemoryProperties
}

func NewMemoryTypes(physicalDevice core1_0.PhysicalDevice) *MemoryTypes {
	return &MemoryTypes{
		memoryProperties: physicalDevice.MemoryProperties(),
	}
}

func NewMemoryTypesFromProperties(properties *core1_0.PhysicalDeviceMemoryProperties) *MemoryTypes {
	return &MemoryTypes{memoryProperties: properties}
}

func (m *MemoryTypes) MemoryTypeCount() int {
	return len(m.memoryProperties.MemoryTypes)
}

func (m *MemoryTypes) MemoryTypeProperties(memoryTypeIndex int) core1_0.MemoryType {
	return m.memoryProperties.MemoryTypes[memoryTypeIndex]
}

func (m *MemoryTypes) IsMemoryTypeHostCoherent(memoryTypeIndex int) bool {
	flags := m.memoryProperties.MemoryTypes[memoryTypeIndex].PropertyFlags
	return flags&core1_0.MemoryPropertyHostCoherent != 0
}

// FindMemoryTypeIndex picks a memory type allowed by memoryTypeBits that carries every required
// flag. Among those, the type missing the fewest preferred flags wins. An exact match returns
// immediately.
func (m *MemoryTypes) FindMemoryTypeIndex(
	memoryTypeBits uint32,
	requiredFlags core1_0.MemoryPropertyFlags,
	preferredFlags core1_0.MemoryPropertyFlags,
) (int, common.VkResult, error) {
	bestMemoryTypeIndex := -1
	minCost := math.MaxInt

	for memTypeIndex := 0; memTypeIndex < m.MemoryTypeCount(); memTypeIndex++ {
		memTypeBit := uint32(1 << memTypeIndex)

		if memTypeBit&memoryTypeBits == 0 {
			continue
		}

		flags := m.MemoryTypeProperties(memTypeIndex).PropertyFlags
		if requiredFlags&flags != requiredFlags {
			continue
		}

		missingPreferredFlags := preferredFlags & ^flags
		cost := bits.OnesCount32(uint32(missingPreferredFlags))
		if cost == 0 {
			return memTypeIndex, core1_0.VKSuccess, nil
		} else if cost < minCost {
			bestMemoryTypeIndex = memTypeIndex
			minCost = cost
		}
	}

	if bestMemoryTypeIndex < 0 {
		return -1, core1_0.VKErrorFeatureNotPresent, core1_0.VKErrorFeatureNotPresent.ToError()
	}

	return bestMemoryTypeIndex, core1_0.VKSuccess, nil
}
