package descriptors

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slog"
)

type retiredPool struct {
	pool             core1_0.DescriptorPool
	remainingUpdates int
}

// PoolAllocator hands out descriptor pools of a single shape. Retired pools may still be referenced by
// frames in flight, so they are only reset and reused once framesInFlight+1 updates have passed.
type PoolAllocator struct {
	logger         *slog.Logger
	device         Device
	framesInFlight int
	maxSets        int
	poolSizes      []core1_0.DescriptorPoolSize

	retired []retiredPool
	free    []core1_0.DescriptorPool
	created int
}

func NewPoolAllocator(logger *slog.Logger, device Device, framesInFlight int, maxSets int, poolSizes []core1_0.DescriptorPoolSize) (*PoolAllocator, error) {
	if logger == nil {
		return nil, errors.New("descriptors.NewPoolAllocator requires a logger")
	}
	if device == nil {
		return nil, errors.New("descriptors.NewPoolAllocator requires a device")
	}
	if framesInFlight <= 0 {
		return nil, errors.Newf("invalid frames in flight: %d", framesInFlight)
	}
	if maxSets <= 0 {
		return nil, errors.Newf("invalid max sets: %d", maxSets)
	}

	return &PoolAllocator{
		logger:         logger,
		device:         device,
		framesInFlight: framesInFlight,
		maxSets:        maxSets,
		poolSizes:      poolSizes,
	}, nil
}

// AllocatePool returns a reset pool if one is available and otherwise creates a new one
func (a *PoolAllocator) AllocatePool() (core1_0.DescriptorPool, common.VkResult, error) {
	a.logger.Debug("PoolAllocator::AllocatePool")

	if len(a.free) > 0 {
		pool := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		return pool, core1_0.VKSuccess, nil
	}

	pool, res, err := a.device.CreateDescriptorPool(a.maxSets, a.poolSizes)
	if err != nil {
		return nil, res, err
	}

	a.created++
	return pool, res, nil
}

// RetirePool queues a pool to be reset once no frame in flight can still be using its sets
func (a *PoolAllocator) RetirePool(pool core1_0.DescriptorPool) {
	a.retired = append(a.retired, retiredPool{
		pool:             pool,
		remainingUpdates: a.framesInFlight + 1,
	})
}

// Update ages every retired pool and resets the ones that have expired
func (a *PoolAllocator) Update() (common.VkResult, error) {
	kept := a.retired[:0]
	var firstErr error
	var firstRes common.VkResult = core1_0.VKSuccess

	for _, retired := range a.retired {
		retired.remainingUpdates--
		if retired.remainingUpdates > 0 {
			kept = append(kept, retired)
			continue
		}

		res, err := a.device.ResetDescriptorPool(retired.pool)
		if err != nil {
			a.logger.LogAttrs(context.Background(), slog.LevelError, "failed to reset descriptor pool", slog.Any("error", err))
			a.device.DestroyDescriptorPool(retired.pool)
			a.created--
			if firstErr == nil {
				firstErr = err
				firstRes = res
			}
			continue
		}

		a.free = append(a.free, retired.pool)
	}

	for i := len(kept); i < len(a.retired); i++ {
		a.retired[i] = retiredPool{}
	}
	a.retired = kept

	return firstRes, firstErr
}

// PoolCount returns the number of pools this allocator has created and not destroyed
func (a *PoolAllocator) PoolCount() int {
	return a.created
}

func (a *PoolAllocator) FreePoolCount() int {
	return len(a.free)
}

func (a *PoolAllocator) RetiredPoolCount() int {
	return len(a.retired)
}

// Destroy destroys every pool the allocator knows about. The device must be idle.
func (a *PoolAllocator) Destroy() {
	a.logger.Debug("PoolAllocator::Destroy")

	for _, retired := range a.retired {
		a.device.DestroyDescriptorPool(retired.pool)
	}
	for _, pool := range a.free {
		a.device.DestroyDescriptorPool(pool)
	}

	a.retired = nil
	a.free = nil
	a.created = 0
}
