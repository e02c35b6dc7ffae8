package upload

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/conveyor/completion"
	"github.com/vkngwrapper/conveyor/mpsc"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// ColorSpace decides how texel data is interpreted by the sampler
type ColorSpace int32

const (
	ColorSpaceSRGB ColorSpace = iota
	ColorSpaceLinear
)

var colorSpaceMapping = map[ColorSpace]string{
	ColorSpaceSRGB:   "ColorSpaceSRGB",
	ColorSpaceLinear: "ColorSpaceLinear",
}

func (c ColorSpace) String() string {
	return colorSpaceMapping[c]
}

// Format returns the 8-bit RGBA image format matching this color space
func (c ColorSpace) Format() core1_0.Format {
	if c == ColorSpaceLinear {
		return core1_0.FormatR8G8B8A8UnsignedNormalized
	}

	return core1_0.FormatR8G8B8A8SRGB
}

// MipLevel locates a single mip level within DecodedTexture.Data
type MipLevel struct {
	Width  int
	Height int
	Offset int
	Size   int
}

// DecodedTexture is RGBA8 pixel data ready to be copied to the device, with every mip level laid
// out back to back in Data
type DecodedTexture struct {
	Width      int
	Height     int
	ColorSpace ColorSpace
	// Levels may be left empty, in which case Data holds a single level of Width x Height
	Levels []MipLevel
	Data   []byte
}

// MipLevels returns the mip layout of the texture
func (t DecodedTexture) MipLevels() []MipLevel {
	if len(t.Levels) > 0 {
		return t.Levels
	}

	return []MipLevel{
		{
			Width:  t.Width,
			Height: t.Height,
			Offset: 0,
			Size:   len(t.Data),
		},
	}
}

func (t DecodedTexture) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return errors.Newf("decoded texture has invalid extent %dx%d", t.Width, t.Height)
	}

	if len(t.Data) == 0 {
		return errors.New("decoded texture has no pixel data")
	}

	for levelIndex, level := range t.MipLevels() {
		if level.Width <= 0 || level.Height <= 0 {
			return errors.Newf("mip level %d has invalid extent %dx%d", levelIndex, level.Width, level.Height)
		}

		if level.Offset < 0 || level.Size <= 0 || level.Offset+level.Size > len(t.Data) {
			return errors.Newf("mip level %d (offset %d, size %d) lies outside the %d bytes of pixel data", levelIndex, level.Offset, level.Size, len(t.Data))
		}
	}

	return nil
}

// ImageAssetData is a decoded image delivered by the asset loader
type ImageAssetData struct {
	Width      int
	Height     int
	ColorSpace ColorSpace
	Levels     []MipLevel
	Data       []byte
}

// BufferAssetData is raw buffer contents delivered by the asset loader
type BufferAssetData struct {
	Data []byte
}

// LoadRequest is a single asset load handed to the upload pipeline. The pipeline never touches
// ResultSender, it only passes it back with a completed upload so the loader can publish the
// finished asset.
type LoadRequest[T any, A any] struct {
	Handle       completion.LoadHandle
	LoadOp       completion.LoadOp
	Asset        T
	ResultSender mpsc.Sender[A]
}

// Image is a device-local image populated by an upload. The caller owns it after the upload completes.
type Image struct {
	Image     core1_0.Image
	Memory    core1_0.DeviceMemory
	Format    core1_0.Format
	Extent    core1_0.Extent3D
	MipLevels int

	AllocationCallbacks *driver.AllocationCallbacks
}

func (i *Image) Destroy() {
	if i.Image != nil {
		i.Image.Destroy(i.AllocationCallbacks)
		i.Image = nil
	}

	if i.Memory != nil {
		i.Memory.Free(i.AllocationCallbacks)
		i.Memory = nil
	}
}

// Buffer is a device-local buffer populated by an upload. The caller owns it after the upload completes.
type Buffer struct {
	Buffer core1_0.Buffer
	Memory core1_0.DeviceMemory
	Size   int

	AllocationCallbacks *driver.AllocationCallbacks
}

func (b *Buffer) Destroy() {
	if b.Buffer != nil {
		b.Buffer.Destroy(b.AllocationCallbacks)
		b.Buffer = nil
	}

	if b.Memory != nil {
		b.Memory.Free(b.AllocationCallbacks)
		b.Memory = nil
	}
}
