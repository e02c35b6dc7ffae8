package descriptors

import (
	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/conveyor/internal/utils"
	"github.com/vkngwrapper/conveyor/slab"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

// PoolCreateFlags modify the behavior of a Pool
type PoolCreateFlags int32

var poolCreateFlagsMapping = common.NewFlagStringMapping[PoolCreateFlags]()

func (f PoolCreateFlags) Register(str string) {
	poolCreateFlagsMapping.Register(f, str)
}
func (f PoolCreateFlags) String() string {
	return poolCreateFlagsMapping.FlagsToString(f)
}

const (
	// PoolCreateExternallySynchronized indicates that the caller guarantees the Pool will never be
	// accessed from more than one goroutine at a time, so no internal mutex is taken
	PoolCreateExternallySynchronized PoolCreateFlags = 1 << iota
)

func init() {
	PoolCreateExternallySynchronized.Register("PoolCreateExternallySynchronized")
}

// PoolOptions configures a Pool. The zero value of every field except Layout is usable.
type PoolOptions struct {
	Flags PoolCreateFlags
	// FramesInFlight defaults to DefaultMaxFramesInFlight
	FramesInFlight int
	// MaxDescriptorsPerPool defaults to DefaultMaxDescriptorsPerPool
	MaxDescriptorsPerPool int

	Layout core1_0.DescriptorSetLayout
	// DescriptorCounts lists how many descriptors of each type a single set of Layout uses
	DescriptorCounts []core1_0.DescriptorPoolSize
	// BufferInfos lists the bindings whose contents are held in pool-owned buffers
	BufferInfos []RequiredBufferInfo
}

// Allocation is a descriptor set handed out by a Pool: one set for each frame in flight
type Allocation struct {
	Key  slab.Key
	Sets []core1_0.DescriptorSet
}

type PoolStatistics struct {
	Allocations       int
	Chunks            int
	PendingWrites     int
	PendingFrees      int
	DescriptorPools   int
	BufferBytes       int
	RetiredBuffers    int
	SlotsPerChunk     int
	FramesPerResource int
}

// Pool hands out descriptor sets of a single layout, growing by one PoolChunk at a time. Sets are
// addressed by slab keys: chunk key/MaxDescriptorsPerPool, slot key%MaxDescriptorsPerPool.
type Pool struct {
	logger *slog.Logger
	mutex  utils.OptionalMutex

	device                Device
	layout                core1_0.DescriptorSetLayout
	bufferInfos           []RequiredBufferInfo
	framesInFlight        int
	maxDescriptorsPerPool int

	// live is false for slots waiting out their frames in flight after Free
	allocations *slab.Slab[bool]
	chunks      []*PoolChunk

	poolAllocator *PoolAllocator
	bufferSink    *DropSink[HostBuffer]
	pendingFrees  *DropSink[slab.Key]
}

func NewPool(logger *slog.Logger, device Device, options PoolOptions) (*Pool, error) {
	if logger == nil {
		return nil, errors.New("descriptors.NewPool requires a logger")
	}
	if device == nil {
		return nil, errors.New("descriptors.NewPool requires a device")
	}
	if options.Layout == nil {
		return nil, errors.New("descriptors.NewPool requires a descriptor set layout")
	}
	if options.FramesInFlight < 0 {
		return nil, errors.Newf("invalid frames in flight: %d", options.FramesInFlight)
	}
	if options.MaxDescriptorsPerPool < 0 {
		return nil, errors.Newf("invalid max descriptors per pool: %d", options.MaxDescriptorsPerPool)
	}

	framesInFlight := options.FramesInFlight
	if framesInFlight == 0 {
		framesInFlight = DefaultMaxFramesInFlight
	}
	maxDescriptorsPerPool := options.MaxDescriptorsPerPool
	if maxDescriptorsPerPool == 0 {
		maxDescriptorsPerPool = DefaultMaxDescriptorsPerPool
	}

	setsPerPool := maxDescriptorsPerPool * (framesInFlight + 1)
	poolSizes := make([]core1_0.DescriptorPoolSize, 0, len(options.DescriptorCounts))
	for _, count := range options.DescriptorCounts {
		poolSizes = append(poolSizes, core1_0.DescriptorPoolSize{
			Type:            count.Type,
			DescriptorCount: count.DescriptorCount * setsPerPool,
		})
	}

	poolAllocator, err := NewPoolAllocator(logger, device, framesInFlight, setsPerPool, poolSizes)
	if err != nil {
		return nil, err
	}

	pool := &Pool{
		logger: logger,
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&PoolCreateExternallySynchronized == 0,
		},
		device:                device,
		layout:                options.Layout,
		bufferInfos:           options.BufferInfos,
		framesInFlight:        framesInFlight,
		maxDescriptorsPerPool: maxDescriptorsPerPool,
		allocations:           slab.New[bool](),
		poolAllocator:         poolAllocator,
		bufferSink: NewDropSink[HostBuffer](framesInFlight, func(buffer HostBuffer) {
			buffer.Destroy()
		}),
	}
	pool.pendingFrees = NewDropSink[slab.Key](framesInFlight, func(key slab.Key) {
		pool.allocations.Free(key)
	})

	return pool, nil
}

func (p *Pool) chunkFor(key slab.Key) (*PoolChunk, error) {
	live, ok := p.allocations.Get(key)
	if !ok || !live {
		return nil, errors.Wrapf(slab.ErrInvalidKey, "descriptor set %d", key.Index())
	}

	chunkIndex := int(key.Index()) / p.maxDescriptorsPerPool
	if chunkIndex >= len(p.chunks) {
		return nil, errors.Wrapf(slab.ErrInvalidKey, "descriptor set %d has no chunk", key.Index())
	}

	return p.chunks[chunkIndex], nil
}

// Insert allocates a descriptor set and schedules its initial contents
func (p *Pool) Insert(write WriteSet, frame FrameInFlightIndex) (Allocation, common.VkResult, error) {
	p.logger.Debug("Pool::Insert")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	key := p.allocations.Allocate(true)
	chunkIndex := int(key.Index()) / p.maxDescriptorsPerPool

	for len(p.chunks) <= chunkIndex {
		chunk, res, err := newPoolChunk(p.logger, p.device, p.poolAllocator, p.layout, p.bufferInfos, p.framesInFlight, p.maxDescriptorsPerPool)
		if err != nil {
			p.allocations.Free(key)
			return Allocation{}, res, err
		}

		p.chunks = append(p.chunks, chunk)
	}

	sets := p.chunks[chunkIndex].ScheduleWriteSet(key, write, frame)
	return Allocation{Key: key, Sets: sets}, core1_0.VKSuccess, nil
}

func (p *Pool) ScheduleWriteSet(key slab.Key, write WriteSet, frame FrameInFlightIndex) ([]core1_0.DescriptorSet, error) {
	p.logger.Debug("Pool::ScheduleWriteSet")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	chunk, err := p.chunkFor(key)
	if err != nil {
		return nil, err
	}

	return chunk.ScheduleWriteSet(key, write, frame), nil
}

func (p *Pool) ScheduleWriteBuffer(key slab.Key, write WriteBuffer, frame FrameInFlightIndex) ([]core1_0.DescriptorSet, error) {
	p.logger.Debug("Pool::ScheduleWriteBuffer")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	chunk, err := p.chunkFor(key)
	if err != nil {
		return nil, err
	}

	return chunk.ScheduleWriteBuffer(key, write, frame)
}

// Free releases a descriptor set. Frames in flight may still use it, so its slot is only handed out
// again once framesInFlight+1 updates have passed.
func (p *Pool) Free(key slab.Key) error {
	p.logger.Debug("Pool::Free")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	_, err := p.chunkFor(key)
	if err != nil {
		return err
	}

	err = p.allocations.Set(key, false)
	if err != nil {
		return err
	}

	p.pendingFrees.Retire(key)
	return nil
}

// Update applies pending writes for frame and ages retired pools, buffers and freed slots. It should be
// called once per frame with that frame's index.
func (p *Pool) Update(frame FrameInFlightIndex) (common.VkResult, error) {
	p.logger.Debug("Pool::Update")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	var updateErr error
	for index, chunk := range p.chunks {
		err := chunk.Update(frame)
		if err != nil {
			updateErr = errors.CombineErrors(updateErr, errors.Wrapf(err, "chunk %d", index))
		}
	}

	res, err := p.poolAllocator.Update()
	if err != nil {
		updateErr = errors.CombineErrors(updateErr, err)
	}

	p.bufferSink.Update()
	p.pendingFrees.Update()

	if updateErr != nil {
		if res == core1_0.VKSuccess {
			res = core1_0.VKErrorUnknown
		}
		return res, updateErr
	}

	return core1_0.VKSuccess, nil
}

func (p *Pool) Statistics() PoolStatistics {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	stats := PoolStatistics{
		Allocations:       p.allocations.Len() - p.pendingFrees.Len(),
		Chunks:            len(p.chunks),
		PendingFrees:      p.pendingFrees.Len(),
		DescriptorPools:   p.poolAllocator.PoolCount(),
		RetiredBuffers:    p.bufferSink.Len(),
		SlotsPerChunk:     p.maxDescriptorsPerPool,
		FramesPerResource: p.framesInFlight + 1,
	}
	for _, chunk := range p.chunks {
		stats.PendingWrites += chunk.PendingWriteCount()
		stats.BufferBytes += chunk.BufferBytes()
	}

	return stats
}

// BuildStatsString returns a JSON document describing the pool. When detailedMap is true it
// includes every chunk.
func (p *Pool) BuildStatsString(detailedMap bool) string {
	p.logger.Debug("Pool::BuildStatsString")

	stats := p.Statistics()

	writer := jwriter.NewWriter()
	obj := writer.Object()

	totalObj := obj.Name("Total").Object()
	totalObj.Name("Allocations").Int(stats.Allocations)
	totalObj.Name("Chunks").Int(stats.Chunks)
	totalObj.Name("PendingWrites").Int(stats.PendingWrites)
	totalObj.Name("PendingFrees").Int(stats.PendingFrees)
	totalObj.Name("DescriptorPools").Int(stats.DescriptorPools)
	totalObj.Name("BufferBytes").Int(stats.BufferBytes)
	totalObj.Name("RetiredBuffers").Int(stats.RetiredBuffers)
	totalObj.End()

	if detailedMap {
		p.mutex.Lock()
		chunksArray := obj.Name("Chunks").Array()
		for _, chunk := range p.chunks {
			chunkObj := chunksArray.Object()
			chunk.printParameters(&chunkObj)
			chunkObj.End()
		}
		chunksArray.End()
		p.mutex.Unlock()
	}

	obj.End()
	return string(writer.Bytes())
}

// Destroy destroys every chunk, pool and buffer immediately. The device must be idle.
func (p *Pool) Destroy() {
	p.logger.Debug("Pool::Destroy")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for _, chunk := range p.chunks {
		chunk.Destroy(p.poolAllocator, p.bufferSink)
	}
	p.chunks = nil

	p.bufferSink.Destroy()
	p.poolAllocator.Destroy()
	p.pendingFrees.Destroy()
}
