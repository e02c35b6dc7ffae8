package descriptors

import "golang.org/x/exp/constraints"

const (
	// DefaultMaxFramesInFlight is the number of frames the renderer may have queued on the GPU at once
	DefaultMaxFramesInFlight = 2
	// DefaultMaxDescriptorsPerPool is the number of descriptor sets held by one chunk for each frame
	DefaultMaxDescriptorsPerPool = 64
)

// FrameInFlightIndex identifies one of the framesInFlight+1 per-frame copies of a resource
type FrameInFlightIndex uint32

// AddToFrameInFlightIndex advances index by value, wrapping at framesInFlight+1
func AddToFrameInFlightIndex[T constraints.Unsigned](index T, value T, framesInFlight T) T {
	return (index + value) % (framesInFlight + 1)
}

// FrameScheduler tracks the current frame-in-flight index for a renderer that allows
// framesInFlight frames to be queued on the GPU.
type FrameScheduler struct {
	framesInFlight uint32
	current        FrameInFlightIndex
}

func NewFrameScheduler(framesInFlight int) *FrameScheduler {
	if framesInFlight <= 0 {
		framesInFlight = DefaultMaxFramesInFlight
	}

	return &FrameScheduler{framesInFlight: uint32(framesInFlight)}
}

func (s *FrameScheduler) Current() FrameInFlightIndex {
	return s.current
}

// Advance moves to the next frame slot and returns it
func (s *FrameScheduler) Advance() FrameInFlightIndex {
	s.current = AddToFrameInFlightIndex(s.current, 1, FrameInFlightIndex(s.framesInFlight))
	return s.current
}

// ExpiryFor returns the frame index at which a write scheduled during index has been applied
// to every per-frame copy
func (s *FrameScheduler) ExpiryFor(index FrameInFlightIndex) FrameInFlightIndex {
	return AddToFrameInFlightIndex(index, FrameInFlightIndex(s.framesInFlight), FrameInFlightIndex(s.framesInFlight))
}

// SlotCount returns the number of per-frame copies, framesInFlight+1
func (s *FrameScheduler) SlotCount() int {
	return int(s.framesInFlight) + 1
}

func (s *FrameScheduler) FramesInFlight() int {
	return int(s.framesInFlight)
}
