package descriptors

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/conveyor/slab"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// ErrUnknownBinding is returned when a buffer write names an element that has no chunk-owned buffer
var ErrUnknownBinding = errors.New("element is not backed by a descriptor buffer")

// ErrWriteTooLarge is returned when a buffer write is larger than its binding's per-descriptor size
var ErrWriteTooLarge = errors.New("buffer write exceeds the per-descriptor size")

type pendingSetWrite struct {
	key       slab.Key
	write     WriteSet
	liveUntil FrameInFlightIndex
}

type pendingBufferWrite struct {
	key       slab.Key
	write     WriteBuffer
	liveUntil FrameInFlightIndex
}

type elementSlot struct {
	slot    uint32
	element ElementKey
}

func (s elementSlot) less(other elementSlot) bool {
	if s.slot != other.slot {
		return s.slot < other.slot
	}
	return s.element.less(other.element)
}

type chunkBuffer struct {
	info    RequiredBufferInfo
	buffers []HostBuffer
}

// PoolChunk owns one descriptor pool holding maxDescriptorsPerPool descriptor sets for each of
// framesInFlight+1 frames, plus the host-visible buffers that back its buffer bindings.
//
// Writes are scheduled once and then applied to each frame's copy of the set as that frame comes
// around, until the frame index reaches the write's expiry.
type PoolChunk struct {
	logger                *slog.Logger
	device                Device
	framesInFlight        uint32
	maxDescriptorsPerPool int

	pool           core1_0.DescriptorPool
	descriptorSets [][]core1_0.DescriptorSet

	pendingSetWrites    []pendingSetWrite
	pendingBufferWrites []pendingBufferWrite

	buffers     []chunkBuffer
	bufferIndex map[ElementKey]int
}

func bufferUsageForDescriptorType(descriptorType core1_0.DescriptorType) (core1_0.BufferUsageFlags, error) {
	switch descriptorType {
	case core1_0.DescriptorTypeUniformBuffer:
		return core1_0.BufferUsageUniformBuffer, nil
	case core1_0.DescriptorTypeStorageBuffer:
		return core1_0.BufferUsageStorageBuffer, nil
	}

	return 0, errors.Newf("descriptor type %v cannot be backed by a descriptor buffer", descriptorType)
}

func newPoolChunk(
	logger *slog.Logger,
	device Device,
	allocator *PoolAllocator,
	layout core1_0.DescriptorSetLayout,
	bufferInfos []RequiredBufferInfo,
	framesInFlight int,
	maxDescriptorsPerPool int,
) (*PoolChunk, common.VkResult, error) {
	pool, res, err := allocator.AllocatePool()
	if err != nil {
		return nil, res, err
	}

	chunk := &PoolChunk{
		logger:                logger,
		device:                device,
		framesInFlight:        uint32(framesInFlight),
		maxDescriptorsPerPool: maxDescriptorsPerPool,
		pool:                  pool,
		bufferIndex:           make(map[ElementKey]int),
	}

	res, err = chunk.init(layout, bufferInfos)
	if err != nil {
		for _, buffer := range chunk.buffers {
			for _, hostBuffer := range buffer.buffers {
				hostBuffer.Destroy()
			}
		}
		allocator.RetirePool(pool)
		return nil, res, err
	}

	return chunk, core1_0.VKSuccess, nil
}

func (c *PoolChunk) init(layout core1_0.DescriptorSetLayout, bufferInfos []RequiredBufferInfo) (common.VkResult, error) {
	slotCount := int(c.framesInFlight) + 1

	for frame := 0; frame < slotCount; frame++ {
		sets, res, err := c.device.AllocateDescriptorSets(c.pool, layout, c.maxDescriptorsPerPool)
		if err != nil {
			return res, err
		}
		if len(sets) != c.maxDescriptorsPerPool {
			return core1_0.VKErrorUnknown, errors.Newf("allocated %d descriptor sets, expected %d", len(sets), c.maxDescriptorsPerPool)
		}

		c.descriptorSets = append(c.descriptorSets, sets)
	}

	for _, info := range bufferInfos {
		if info.PerDescriptorSize <= 0 || info.PerDescriptorStride < info.PerDescriptorSize {
			return core1_0.VKErrorUnknown, errors.Newf("invalid descriptor buffer layout for binding %d: size %d, stride %d",
				info.Element.DstBinding, info.PerDescriptorSize, info.PerDescriptorStride)
		}
		_, duplicate := c.bufferIndex[info.Element]
		if duplicate {
			return core1_0.VKErrorUnknown, errors.Newf("binding %d element %d has more than one descriptor buffer",
				info.Element.DstBinding, info.Element.DstArrayElement)
		}

		usage, err := bufferUsageForDescriptorType(info.DescriptorType)
		if err != nil {
			return core1_0.VKErrorUnknown, err
		}

		buffer := chunkBuffer{info: info}
		for frame := 0; frame < slotCount; frame++ {
			hostBuffer, res, err := c.device.CreateHostBuffer(info.PerDescriptorStride*c.maxDescriptorsPerPool, usage)
			if err != nil {
				c.buffers = append(c.buffers, buffer)
				return res, err
			}

			buffer.buffers = append(buffer.buffers, hostBuffer)
		}

		c.bufferIndex[info.Element] = len(c.buffers)
		c.buffers = append(c.buffers, buffer)
	}

	// Every set is permanently bound to its own region of the frame's buffer
	var writes []core1_0.WriteDescriptorSet
	for _, buffer := range c.buffers {
		for frame := 0; frame < slotCount; frame++ {
			for slot := 0; slot < c.maxDescriptorsPerPool; slot++ {
				writes = append(writes, core1_0.WriteDescriptorSet{
					DstSet:          c.descriptorSets[frame][slot],
					DstBinding:      buffer.info.Element.DstBinding,
					DstArrayElement: buffer.info.Element.DstArrayElement,
					DescriptorType:  buffer.info.DescriptorType,
					BufferInfo: []core1_0.DescriptorBufferInfo{
						{
							Buffer: buffer.buffers[frame].Handle(),
							Offset: buffer.info.PerDescriptorStride * slot,
							Range:  buffer.info.PerDescriptorSize,
						},
					},
				})
			}
		}
	}

	if len(writes) > 0 {
		err := c.device.UpdateDescriptorSets(writes)
		if err != nil {
			return core1_0.VKErrorUnknown, errors.Wrap(err, "failed to bind descriptor buffers")
		}
	}

	return core1_0.VKSuccess, nil
}

func (c *PoolChunk) slot(key slab.Key) uint32 {
	return key.Index() % uint32(c.maxDescriptorsPerPool)
}

func (c *PoolChunk) expiry(frame FrameInFlightIndex) FrameInFlightIndex {
	framesInFlight := FrameInFlightIndex(c.framesInFlight)
	return AddToFrameInFlightIndex(frame, framesInFlight, framesInFlight)
}

// DescriptorSets returns the set for key's slot in every frame, indexed by frame-in-flight index
func (c *PoolChunk) DescriptorSets(key slab.Key) []core1_0.DescriptorSet {
	slot := c.slot(key)
	sets := make([]core1_0.DescriptorSet, len(c.descriptorSets))
	for frame := range c.descriptorSets {
		sets[frame] = c.descriptorSets[frame][slot]
	}
	return sets
}

// ScheduleWriteSet queues a copy of write to be applied to key's sets, starting at the next Update
func (c *PoolChunk) ScheduleWriteSet(key slab.Key, write WriteSet, frame FrameInFlightIndex) []core1_0.DescriptorSet {
	c.pendingSetWrites = append(c.pendingSetWrites, pendingSetWrite{
		key:       key,
		write:     write.clone(),
		liveUntil: c.expiry(frame),
	})

	return c.DescriptorSets(key)
}

// ScheduleWriteBuffer queues a copy of write to be copied into key's region of the descriptor buffers,
// starting at the next Update. Writes to elements without a descriptor buffer, or larger than the
// element's per-descriptor size, are rejected and nothing is queued.
func (c *PoolChunk) ScheduleWriteBuffer(key slab.Key, write WriteBuffer, frame FrameInFlightIndex) ([]core1_0.DescriptorSet, error) {
	for element, data := range write.Elements {
		index, ok := c.bufferIndex[element]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownBinding, "binding %d element %d", element.DstBinding, element.DstArrayElement)
		}

		size := c.buffers[index].info.PerDescriptorSize
		if len(data) > size {
			return nil, errors.Wrapf(ErrWriteTooLarge, "binding %d element %d: %d bytes, per-descriptor size is %d",
				element.DstBinding, element.DstArrayElement, len(data), size)
		}
	}

	c.pendingBufferWrites = append(c.pendingBufferWrites, pendingBufferWrite{
		key:       key,
		write:     write.clone(),
		liveUntil: c.expiry(frame),
	})

	return c.DescriptorSets(key), nil
}

func sortedSlots[T any](elements *swiss.Map[elementSlot, T]) []elementSlot {
	keys := make([]elementSlot, 0, elements.Count())
	elements.Iter(func(key elementSlot, value T) bool {
		keys = append(keys, key)
		return false
	})
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].less(keys[j])
	})
	return keys
}

func (c *PoolChunk) imageInfos(write ElementWrite) []core1_0.DescriptorImageInfo {
	if write.HasImmutableSampler && write.DescriptorType == core1_0.DescriptorTypeSampler {
		return nil
	}

	var infos []core1_0.DescriptorImageInfo
	for _, info := range write.ImageInfo {
		if info.Sampler == nil && info.ImageView == nil {
			continue
		}

		imageInfo := core1_0.DescriptorImageInfo{
			ImageView:   info.ImageView,
			ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
		}
		if !write.HasImmutableSampler {
			imageInfo.Sampler = info.Sampler
		}

		infos = append(infos, imageInfo)
	}

	return infos
}

func (c *PoolChunk) applySetWrites(frame FrameInFlightIndex) error {
	if len(c.pendingSetWrites) == 0 {
		return nil
	}

	coalesced := swiss.NewMap[elementSlot, ElementWrite](uint32(len(c.pendingSetWrites)))
	for _, pending := range c.pendingSetWrites {
		slot := c.slot(pending.key)
		for element, write := range pending.write.Elements {
			coalesced.Put(elementSlot{slot: slot, element: element}, write)
		}
	}

	var writes []core1_0.WriteDescriptorSet
	for _, key := range sortedSlots(coalesced) {
		elementWrite, _ := coalesced.Get(key)

		imageInfos := c.imageInfos(elementWrite)
		var bufferInfos []core1_0.DescriptorBufferInfo
		for _, info := range elementWrite.BufferInfo {
			bufferInfos = append(bufferInfos, core1_0.DescriptorBufferInfo{
				Buffer: info.Buffer,
				Offset: info.Offset,
				Range:  info.Range,
			})
		}

		if len(imageInfos) == 0 && len(bufferInfos) == 0 {
			continue
		}

		writes = append(writes, core1_0.WriteDescriptorSet{
			DstSet:          c.descriptorSets[frame][key.slot],
			DstBinding:      key.element.DstBinding,
			DstArrayElement: key.element.DstArrayElement,
			DescriptorType:  elementWrite.DescriptorType,
			ImageInfo:       imageInfos,
			BufferInfo:      bufferInfos,
		})
	}

	if len(writes) == 0 {
		return nil
	}

	err := c.device.UpdateDescriptorSets(writes)
	if err != nil {
		return errors.Wrapf(err, "failed to update descriptor sets for frame %d", frame)
	}
	return nil
}

func (c *PoolChunk) applyBufferWrites(frame FrameInFlightIndex) error {
	if len(c.pendingBufferWrites) == 0 {
		return nil
	}

	coalesced := swiss.NewMap[elementSlot, []byte](uint32(len(c.pendingBufferWrites)))
	for _, pending := range c.pendingBufferWrites {
		slot := c.slot(pending.key)
		for element, data := range pending.write.Elements {
			coalesced.Put(elementSlot{slot: slot, element: element}, data)
		}
	}

	for _, key := range sortedSlots(coalesced) {
		data, _ := coalesced.Get(key)
		buffer := c.buffers[c.bufferIndex[key.element]]

		if len(data) > buffer.info.PerDescriptorSize {
			panic(errors.Newf("buffer write of %d bytes for binding %d exceeds per-descriptor size %d",
				len(data), key.element.DstBinding, buffer.info.PerDescriptorSize))
		}
		if len(data) != buffer.info.PerDescriptorSize {
			c.logger.LogAttrs(context.Background(), slog.LevelWarn, "buffer write does not fill its descriptor",
				slog.Int("binding", key.element.DstBinding),
				slog.Int("arrayElement", key.element.DstArrayElement),
				slog.Int("size", len(data)),
				slog.Int("perDescriptorSize", buffer.info.PerDescriptorSize),
			)
		}

		offset := buffer.info.PerDescriptorStride * int(key.slot)
		err := buffer.buffers[frame].Write(offset, data)
		if err != nil {
			return errors.Wrapf(err, "failed to write descriptor buffer for binding %d", key.element.DstBinding)
		}
	}

	return nil
}

// Update applies every pending write to frame's copy of the descriptor sets and buffers, then
// discards the writes that have now reached every frame. A write only expires when Update is called
// with exactly its expiry index, so a frame index that is skipped keeps its writes queued until that
// index comes around again.
func (c *PoolChunk) Update(frame FrameInFlightIndex) error {
	if int(frame) >= len(c.descriptorSets) {
		return errors.Newf("frame index %d is out of range for %d frames", frame, len(c.descriptorSets))
	}

	err := c.applySetWrites(frame)
	if err != nil {
		return err
	}

	err = c.applyBufferWrites(frame)
	if err != nil {
		return err
	}

	expired := 0
	for expired < len(c.pendingSetWrites) && c.pendingSetWrites[expired].liveUntil == frame {
		expired++
	}
	c.pendingSetWrites = c.pendingSetWrites[expired:]

	expired = 0
	for expired < len(c.pendingBufferWrites) && c.pendingBufferWrites[expired].liveUntil == frame {
		expired++
	}
	c.pendingBufferWrites = c.pendingBufferWrites[expired:]

	memutils.DebugValidate(c)
	return nil
}

// Validate checks the chunk's bookkeeping for consistency
func (c *PoolChunk) Validate() error {
	slotCount := int(c.framesInFlight) + 1
	if len(c.descriptorSets) != slotCount {
		return errors.Newf("chunk has descriptor sets for %d frames, expected %d", len(c.descriptorSets), slotCount)
	}
	for frame, sets := range c.descriptorSets {
		if len(sets) != c.maxDescriptorsPerPool {
			return errors.Newf("frame %d has %d descriptor sets, expected %d", frame, len(sets), c.maxDescriptorsPerPool)
		}
	}

	for _, buffer := range c.buffers {
		if len(buffer.buffers) != slotCount {
			return errors.Newf("binding %d has %d descriptor buffers, expected %d", buffer.info.Element.DstBinding, len(buffer.buffers), slotCount)
		}
		for _, hostBuffer := range buffer.buffers {
			if hostBuffer.Size() < buffer.info.PerDescriptorStride*c.maxDescriptorsPerPool {
				return errors.Newf("descriptor buffer for binding %d is too small: %d bytes", buffer.info.Element.DstBinding, hostBuffer.Size())
			}
		}
	}

	for _, pending := range c.pendingSetWrites {
		if int(pending.liveUntil) >= slotCount {
			return errors.Newf("pending set write expires at invalid frame %d", pending.liveUntil)
		}
	}
	for _, pending := range c.pendingBufferWrites {
		if int(pending.liveUntil) >= slotCount {
			return errors.Newf("pending buffer write expires at invalid frame %d", pending.liveUntil)
		}
	}

	return nil
}

// PendingWriteCount returns the number of scheduled writes that have not yet expired
func (c *PoolChunk) PendingWriteCount() int {
	return len(c.pendingSetWrites) + len(c.pendingBufferWrites)
}

// BufferBytes returns the size of every descriptor buffer owned by this chunk
func (c *PoolChunk) BufferBytes() int {
	total := 0
	for _, buffer := range c.buffers {
		for _, hostBuffer := range buffer.buffers {
			total += hostBuffer.Size()
		}
	}
	return total
}

// Destroy hands the pool back to allocator and the descriptor buffers to bufferSink. Both keep the
// resources alive until no frame in flight can reference them.
func (c *PoolChunk) Destroy(allocator *PoolAllocator, bufferSink *DropSink[HostBuffer]) {
	if c.pool == nil {
		return
	}

	allocator.RetirePool(c.pool)
	for _, buffer := range c.buffers {
		for _, hostBuffer := range buffer.buffers {
			bufferSink.Retire(hostBuffer)
		}
	}

	c.pool = nil
	c.descriptorSets = nil
	c.buffers = nil
	c.bufferIndex = nil
	c.pendingSetWrites = nil
	c.pendingBufferWrites = nil
}

func (c *PoolChunk) printParameters(json *jwriter.ObjectState) {
	json.Name("PendingSetWrites").Int(len(c.pendingSetWrites))
	json.Name("PendingBufferWrites").Int(len(c.pendingBufferWrites))
	json.Name("BufferBytes").Int(c.BufferBytes())
}
