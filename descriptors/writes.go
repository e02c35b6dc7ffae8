package descriptors

import (
	"bytes"

	"github.com/vkngwrapper/core/v2/core1_0"
	"golang.org/x/exp/slices"
)

// ElementKey addresses one array element of one binding in a descriptor set
type ElementKey struct {
	DstBinding      int
	DstArrayElement int
}

func (k ElementKey) less(other ElementKey) bool {
	if k.DstBinding != other.DstBinding {
		return k.DstBinding < other.DstBinding
	}
	return k.DstArrayElement < other.DstArrayElement
}

// ImageInfo is an image descriptor. Either field may be nil: a nil sampler is expected for bindings
// with an immutable sampler, and a nil image view for pure sampler bindings.
type ImageInfo struct {
	Sampler   core1_0.Sampler
	ImageView core1_0.ImageView
}

type BufferInfo struct {
	Buffer core1_0.Buffer
	Offset int
	Range  int
}

// ElementWrite is the full contents of one descriptor set element
type ElementWrite struct {
	DescriptorType      core1_0.DescriptorType
	HasImmutableSampler bool
	ImageInfo           []ImageInfo
	BufferInfo          []BufferInfo
}

// WriteSet replaces the listed elements of a descriptor set
type WriteSet struct {
	Elements map[ElementKey]ElementWrite
}

// clone copies the element map and every info slice so later changes by the caller are not seen
func (w WriteSet) clone() WriteSet {
	if w.Elements == nil {
		return w
	}

	elements := make(map[ElementKey]ElementWrite, len(w.Elements))
	for key, element := range w.Elements {
		element.ImageInfo = slices.Clone(element.ImageInfo)
		element.BufferInfo = slices.Clone(element.BufferInfo)
		elements[key] = element
	}
	return WriteSet{Elements: elements}
}

// WriteBuffer replaces the contents of buffer-backed elements of a descriptor set. Each payload
// must be no larger than the binding's per-descriptor size.
type WriteBuffer struct {
	Elements map[ElementKey][]byte
}

func (w WriteBuffer) clone() WriteBuffer {
	if w.Elements == nil {
		return w
	}

	elements := make(map[ElementKey][]byte, len(w.Elements))
	for key, data := range w.Elements {
		elements[key] = bytes.Clone(data)
	}
	return WriteBuffer{Elements: elements}
}

// RequiredBufferInfo describes a binding whose contents live in a chunk-owned buffer. The buffer for
// each frame holds PerDescriptorStride bytes per descriptor set, of which the first
// PerDescriptorSize bytes are bound.
type RequiredBufferInfo struct {
	Element             ElementKey
	DescriptorType      core1_0.DescriptorType
	PerDescriptorSize   int
	PerDescriptorStride int
}
