package vulkan

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/arsenal/memutils/metadata"
	"github.com/vkngwrapper/conveyor/device"
	internalvulkan "github.com/vkngwrapper/conveyor/internal/vulkan"
	"github.com/vkngwrapper/conveyor/upload"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// Any nonzero value will do, the linear metadata only uses it to tell used regions from free ones
const stagingAllocationType uint32 = 1

// queueCommands is a single-use command buffer recorded for one queue family, with the fence
// that is signaled when its submission finishes
type queueCommands struct {
	pool          core1_0.CommandPool
	commandBuffer core1_0.CommandBuffer
	fence         core1_0.Fence
}

func newQueueCommands(context *device.Context, queueFamilyIndex int) (*queueCommands, common.VkResult, error) {
	commands := &queueCommands{}

	var res common.VkResult
	var err error
	commands.pool, res, err = context.Device.CreateCommandPool(context.AllocationCallbacks, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateTransient,
		QueueFamilyIndex: queueFamilyIndex,
	})
	if err != nil {
		return nil, res, err
	}

	commandBuffers, res, err := context.Device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        commands.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		commands.destroy(context)
		return nil, res, err
	}
	commands.commandBuffer = commandBuffers[0]

	commands.fence, res, err = context.Device.CreateFence(context.AllocationCallbacks, core1_0.FenceCreateInfo{})
	if err != nil {
		commands.destroy(context)
		return nil, res, err
	}

	res, err = commands.commandBuffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		commands.destroy(context)
		return nil, res, err
	}

	return commands, res, nil
}

func (c *queueCommands) submit(queue core1_0.Queue) (common.VkResult, error) {
	res, err := c.commandBuffer.End()
	if err != nil {
		return res, err
	}

	return queue.Submit(c.fence, []core1_0.SubmitInfo{
		{
			CommandBuffers: []core1_0.CommandBuffer{c.commandBuffer},
		},
	})
}

// finished returns true once the fence passed to the submission has been signaled
func (c *queueCommands) finished() (bool, common.VkResult, error) {
	res, err := c.fence.Status()
	if err != nil {
		return false, res, err
	}

	return res == core1_0.VKSuccess, res, nil
}

func (c *queueCommands) destroy(context *device.Context) {
	if c.fence != nil {
		c.fence.Destroy(context.AllocationCallbacks)
		c.fence = nil
	}

	// Destroying the pool frees its command buffers
	if c.pool != nil {
		c.pool.Destroy(context.AllocationCallbacks)
		c.pool = nil
	}
	c.commandBuffer = nil
}

// transferUpload copies payloads into a persistently-mapped staging buffer and records the copies
// into device-local resources on the transfer queue. When the queue families differ, every resource
// is released by the transfer family and acquired by the graphics family in a second submission.
type transferUpload struct {
	logger        *slog.Logger
	context       *device.Context
	memoryTypes   *internalvulkan.MemoryTypes
	bufferUsage   core1_0.BufferUsageFlags
	copyAlignment uint

	staging         *internalvulkan.HostVisibleBuffer
	stagingMetadata *metadata.LinearBlockMetadata

	transferCommands *queueCommands
	dstCommands      *queueCommands

	state upload.TransferState
}

var _ upload.Transfer = &transferUpload{}

func newTransferUpload(stager *Stager, size int) (*transferUpload, common.VkResult, error) {
	t := &transferUpload{
		logger:        stager.logger,
		context:       stager.context,
		memoryTypes:   stager.memoryTypes,
		bufferUsage:   stager.bufferUsage,
		copyAlignment: stager.copyAlignment,
		state:         upload.TransferWritable,
	}

	var res common.VkResult
	var err error
	t.staging, res, err = internalvulkan.NewHostVisibleBuffer(
		t.context.Device,
		t.context.AllocationCallbacks,
		t.memoryTypes,
		size,
		core1_0.BufferUsageTransferSrc,
	)
	if err != nil {
		return nil, res, err
	}

	t.stagingMetadata = metadata.NewLinearBlockMetadata(1, nil)
	t.stagingMetadata.Init(size)

	t.transferCommands, res, err = newQueueCommands(t.context, t.context.QueueFamilies.Transfer)
	if err != nil {
		t.Destroy()
		return nil, res, err
	}

	t.dstCommands, res, err = newQueueCommands(t.context, t.context.QueueFamilies.Graphics)
	if err != nil {
		t.Destroy()
		return nil, res, err
	}

	return t, core1_0.VKSuccess, nil
}

// reserve carves size bytes out of the staging buffer and returns their offset
func (t *transferUpload) reserve(size int) (int, error) {
	success, request, err := t.stagingMetadata.CreateAllocationRequest(
		size,
		t.copyAlignment,
		false,
		stagingAllocationType,
		metadata.AllocationStrategyMinTime,
		math.MaxInt,
	)
	if err != nil {
		return 0, err
	}
	if !success {
		return 0, upload.ErrStagingBufferFull
	}

	err = t.stagingMetadata.Alloc(request, stagingAllocationType, nil)
	if err != nil {
		return 0, err
	}

	return t.stagingMetadata.AllocationOffset(request.BlockAllocationHandle)
}

func (t *transferUpload) checkWritable() error {
	if t.state != upload.TransferWritable {
		return errors.Newf("attempted to stage a payload into a transfer in state %s", t.state)
	}
	return nil
}

func (t *transferUpload) queueFamilies() (int, int) {
	return t.context.QueueFamilies.Transfer, t.context.QueueFamilies.Graphics
}

func (t *transferUpload) StageImage(texture upload.DecodedTexture) (*upload.Image, common.VkResult, error) {
	err := t.checkWritable()
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	err = texture.Validate()
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	offset, err := t.reserve(len(texture.Data))
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	err = t.staging.Write(offset, texture.Data)
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	levels := texture.MipLevels()
	extent := core1_0.Extent3D{Width: texture.Width, Height: texture.Height, Depth: 1}
	format := texture.ColorSpace.Format()

	image, memory, res, err := internalvulkan.CreateDeviceLocalImage(
		t.context.Device,
		t.context.AllocationCallbacks,
		t.memoryTypes,
		core1_0.ImageCreateInfo{
			ImageType:     core1_0.ImageType2D,
			Format:        format,
			Extent:        extent,
			MipLevels:     len(levels),
			ArrayLayers:   1,
			Samples:       core1_0.Samples1,
			Tiling:        core1_0.ImageTilingOptimal,
			Usage:         core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
			SharingMode:   core1_0.SharingModeExclusive,
			InitialLayout: core1_0.ImageLayoutUndefined,
		},
	)
	if err != nil {
		return nil, res, err
	}

	result := &upload.Image{
		Image:               image,
		Memory:              memory,
		Format:              format,
		Extent:              extent,
		MipLevels:           len(levels),
		AllocationCallbacks: t.context.AllocationCallbacks,
	}

	err = t.recordImageCopy(image, offset, levels)
	if err != nil {
		result.Destroy()
		return nil, core1_0.VKErrorUnknown, err
	}

	return result, core1_0.VKSuccess, nil
}

func (t *transferUpload) recordImageCopy(image core1_0.Image, stagingOffset int, levels []upload.MipLevel) error {
	transferFamily, graphicsFamily := t.queueFamilies()
	ownershipTransfer := t.context.QueueFamilies.RequiresOwnershipTransfer()

	subresourceRange := core1_0.ImageSubresourceRange{
		AspectMask:     core1_0.ImageAspectColor,
		BaseMipLevel:   0,
		LevelCount:     len(levels),
		BaseArrayLayer: 0,
		LayerCount:     1,
	}

	transferBuffer := t.transferCommands.commandBuffer
	err := transferBuffer.CmdPipelineBarrier(
		core1_0.PipelineStageTopOfPipe,
		core1_0.PipelineStageTransfer,
		0,
		nil,
		nil,
		[]core1_0.ImageMemoryBarrier{
			{
				SrcAccessMask:       0,
				DstAccessMask:       core1_0.AccessTransferWrite,
				OldLayout:           core1_0.ImageLayoutUndefined,
				NewLayout:           core1_0.ImageLayoutTransferDstOptimal,
				SrcQueueFamilyIndex: transferFamily,
				DstQueueFamilyIndex: transferFamily,
				Image:               image,
				SubresourceRange:    subresourceRange,
			},
		},
	)
	if err != nil {
		return err
	}

	regions := make([]core1_0.BufferImageCopy, 0, len(levels))
	for levelIndex, level := range levels {
		regions = append(regions, core1_0.BufferImageCopy{
			BufferOffset: stagingOffset + level.Offset,
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       levelIndex,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageExtent: core1_0.Extent3D{Width: level.Width, Height: level.Height, Depth: 1},
		})
	}

	err = transferBuffer.CmdCopyBufferToImage(t.staging.Handle(), image, core1_0.ImageLayoutTransferDstOptimal, regions)
	if err != nil {
		return err
	}

	if !ownershipTransfer {
		return transferBuffer.CmdPipelineBarrier(
			core1_0.PipelineStageTransfer,
			core1_0.PipelineStageFragmentShader,
			0,
			nil,
			nil,
			[]core1_0.ImageMemoryBarrier{
				{
					SrcAccessMask:       core1_0.AccessTransferWrite,
					DstAccessMask:       core1_0.AccessShaderRead,
					OldLayout:           core1_0.ImageLayoutTransferDstOptimal,
					NewLayout:           core1_0.ImageLayoutShaderReadOnlyOptimal,
					SrcQueueFamilyIndex: transferFamily,
					DstQueueFamilyIndex: graphicsFamily,
					Image:               image,
					SubresourceRange:    subresourceRange,
				},
			},
		)
	}

	ownershipBarrier := core1_0.ImageMemoryBarrier{
		OldLayout:           core1_0.ImageLayoutTransferDstOptimal,
		NewLayout:           core1_0.ImageLayoutShaderReadOnlyOptimal,
		SrcQueueFamilyIndex: transferFamily,
		DstQueueFamilyIndex: graphicsFamily,
		Image:               image,
		SubresourceRange:    subresourceRange,
	}

	release := ownershipBarrier
	release.SrcAccessMask = core1_0.AccessTransferWrite
	err = transferBuffer.CmdPipelineBarrier(
		core1_0.PipelineStageTransfer,
		core1_0.PipelineStageBottomOfPipe,
		0,
		nil,
		nil,
		[]core1_0.ImageMemoryBarrier{release},
	)
	if err != nil {
		return err
	}

	acquire := ownershipBarrier
	acquire.DstAccessMask = core1_0.AccessShaderRead
	return t.dstCommands.commandBuffer.CmdPipelineBarrier(
		core1_0.PipelineStageTopOfPipe,
		core1_0.PipelineStageFragmentShader,
		0,
		nil,
		nil,
		[]core1_0.ImageMemoryBarrier{acquire},
	)
}

func (t *transferUpload) StageBuffer(data []byte) (*upload.Buffer, common.VkResult, error) {
	err := t.checkWritable()
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	if len(data) == 0 {
		return nil, core1_0.VKErrorUnknown, errors.New("attempted to stage an empty buffer")
	}

	offset, err := t.reserve(len(data))
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	err = t.staging.Write(offset, data)
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	buffer, memory, res, err := internalvulkan.CreateDeviceLocalBuffer(
		t.context.Device,
		t.context.AllocationCallbacks,
		t.memoryTypes,
		core1_0.BufferCreateInfo{
			Size:        len(data),
			Usage:       t.bufferUsage,
			SharingMode: core1_0.SharingModeExclusive,
		},
	)
	if err != nil {
		return nil, res, err
	}

	result := &upload.Buffer{
		Buffer:              buffer,
		Memory:              memory,
		Size:                len(data),
		AllocationCallbacks: t.context.AllocationCallbacks,
	}

	err = t.recordBufferCopy(buffer, offset, len(data))
	if err != nil {
		result.Destroy()
		return nil, core1_0.VKErrorUnknown, err
	}

	return result, core1_0.VKSuccess, nil
}

func (t *transferUpload) recordBufferCopy(buffer core1_0.Buffer, stagingOffset int, size int) error {
	transferFamily, graphicsFamily := t.queueFamilies()

	transferBuffer := t.transferCommands.commandBuffer
	err := transferBuffer.CmdCopyBuffer(t.staging.Handle(), buffer, []core1_0.BufferCopy{
		{
			SrcOffset: stagingOffset,
			DstOffset: 0,
			Size:      size,
		},
	})
	if err != nil {
		return err
	}

	if !t.context.QueueFamilies.RequiresOwnershipTransfer() {
		return transferBuffer.CmdPipelineBarrier(
			core1_0.PipelineStageTransfer,
			core1_0.PipelineStageVertexInput,
			0,
			nil,
			[]core1_0.BufferMemoryBarrier{
				{
					SrcAccessMask:       core1_0.AccessTransferWrite,
					DstAccessMask:       core1_0.AccessVertexAttributeRead | core1_0.AccessIndexRead,
					SrcQueueFamilyIndex: transferFamily,
					DstQueueFamilyIndex: graphicsFamily,
					Buffer:              buffer,
					Offset:              0,
					Size:                size,
				},
			},
			nil,
		)
	}

	ownershipBarrier := core1_0.BufferMemoryBarrier{
		SrcQueueFamilyIndex: transferFamily,
		DstQueueFamilyIndex: graphicsFamily,
		Buffer:              buffer,
		Offset:              0,
		Size:                size,
	}

	release := ownershipBarrier
	release.SrcAccessMask = core1_0.AccessTransferWrite
	err = transferBuffer.CmdPipelineBarrier(
		core1_0.PipelineStageTransfer,
		core1_0.PipelineStageBottomOfPipe,
		0,
		nil,
		[]core1_0.BufferMemoryBarrier{release},
		nil,
	)
	if err != nil {
		return err
	}

	acquire := ownershipBarrier
	acquire.DstAccessMask = core1_0.AccessVertexAttributeRead | core1_0.AccessIndexRead
	return t.dstCommands.commandBuffer.CmdPipelineBarrier(
		core1_0.PipelineStageTopOfPipe,
		core1_0.PipelineStageVertexInput,
		0,
		nil,
		[]core1_0.BufferMemoryBarrier{acquire},
		nil,
	)
}

func (t *transferUpload) State() (upload.TransferState, common.VkResult, error) {
	switch t.state {
	case upload.TransferSentToTransferQueue:
		done, res, err := t.transferCommands.finished()
		if err != nil {
			return t.state, res, err
		}
		if done {
			t.state = upload.TransferPendingSubmitDstQueue
		}
	case upload.TransferSentToDstQueue:
		done, res, err := t.dstCommands.finished()
		if err != nil {
			return t.state, res, err
		}
		if done {
			t.state = upload.TransferComplete
		}
	}

	return t.state, core1_0.VKSuccess, nil
}

func (t *transferUpload) SubmitTransfer() (common.VkResult, error) {
	if t.state != upload.TransferWritable {
		return core1_0.VKErrorUnknown, errors.Newf("attempted to submit a transfer in state %s to the transfer queue", t.state)
	}

	res, err := t.transferCommands.submit(t.context.TransferQueue)
	if err != nil {
		return res, err
	}

	t.state = upload.TransferSentToTransferQueue
	return res, nil
}

func (t *transferUpload) SubmitDst() (common.VkResult, error) {
	if t.state != upload.TransferPendingSubmitDstQueue {
		return core1_0.VKErrorUnknown, errors.Newf("attempted to submit a transfer in state %s to the destination queue", t.state)
	}

	res, err := t.dstCommands.submit(t.context.GraphicsQueue)
	if err != nil {
		return res, err
	}

	t.state = upload.TransferSentToDstQueue
	return res, nil
}

func (t *transferUpload) BytesStaged() int {
	if t.stagingMetadata == nil {
		return 0
	}

	var stats memutils.Statistics
	t.stagingMetadata.AddStatistics(&stats)
	return stats.AllocationBytes
}

func (t *transferUpload) Destroy() {
	if t.transferCommands != nil {
		t.transferCommands.destroy(t.context)
		t.transferCommands = nil
	}

	if t.dstCommands != nil {
		t.dstCommands.destroy(t.context)
		t.dstCommands = nil
	}

	if t.stagingMetadata != nil {
		t.stagingMetadata.Clear()
		t.stagingMetadata = nil
	}

	if t.staging != nil {
		t.staging.Destroy()
		t.staging = nil
	}
}
