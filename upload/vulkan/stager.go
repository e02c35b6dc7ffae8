package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/conveyor/device"
	internalvulkan "github.com/vkngwrapper/conveyor/internal/vulkan"
	"github.com/vkngwrapper/conveyor/upload"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

const defaultCopyAlignment uint = 16

// StagerOptions configures a Stager. The zero value is usable.
type StagerOptions struct {
	// BufferUsage is the usage of every buffer created by an upload. TRANSFER_DST is always added.
	// Defaults to vertex and index buffer usage.
	BufferUsage core1_0.BufferUsageFlags
	// CopyAlignment is the alignment, in bytes, of every payload placed in the staging buffer. It
	// must be a power of two and a multiple of 4. Defaults to 16.
	CopyAlignment uint
}

// Stager creates transfers against a single device, recording copies on the transfer queue family
// and handing the results to the graphics queue family.
type Stager struct {
	logger        *slog.Logger
	context       *device.Context
	memoryTypes   *internalvulkan.MemoryTypes
	bufferUsage   core1_0.BufferUsageFlags
	copyAlignment uint
}

var _ upload.Stager = &Stager{}

func NewStager(logger *slog.Logger, context *device.Context, options StagerOptions) (*Stager, error) {
	if logger == nil {
		return nil, errors.New("vulkan.NewStager requires a logger")
	}
	if context == nil {
		return nil, errors.New("vulkan.NewStager requires a device context")
	}
	err := context.Validate()
	if err != nil {
		return nil, err
	}

	copyAlignment := options.CopyAlignment
	if copyAlignment == 0 {
		copyAlignment = defaultCopyAlignment
	}
	err = memutils.CheckPow2(copyAlignment, "copy alignment")
	if err != nil {
		return nil, err
	}
	if copyAlignment%4 != 0 {
		return nil, errors.Newf("copy alignment %d must be a multiple of 4", copyAlignment)
	}

	bufferUsage := options.BufferUsage
	if bufferUsage == 0 {
		bufferUsage = core1_0.BufferUsageVertexBuffer | core1_0.BufferUsageIndexBuffer
	}

	return &Stager{
		logger:        logger,
		context:       context,
		memoryTypes:   internalvulkan.NewMemoryTypes(context.PhysicalDevice),
		bufferUsage:   bufferUsage | core1_0.BufferUsageTransferDst,
		copyAlignment: copyAlignment,
	}, nil
}

// BeginTransfer creates a transfer backed by a staging buffer of the requested size
func (s *Stager) BeginTransfer(size int) (upload.Transfer, common.VkResult, error) {
	s.logger.Debug("Stager::BeginTransfer")

	transfer, res, err := newTransferUpload(s, size)
	if err != nil {
		return nil, res, err
	}

	return transfer, res, nil
}
