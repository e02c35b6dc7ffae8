package upload_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/conveyor/upload"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestOwnedTakeSkipsRelease(t *testing.T) {
	released := 0
	owned := upload.NewOwned(5, func(int) { released++ })
	require.True(t, owned.Present())

	value, ok := owned.Take()
	require.True(t, ok)
	require.Equal(t, 5, value)
	require.False(t, owned.Present())

	require.False(t, owned.Release())
	_, ok = owned.Take()
	require.False(t, ok)
	require.Equal(t, 0, released)
}

func TestOwnedReleaseOnce(t *testing.T) {
	var released []int
	owned := upload.NewOwned(7, func(value int) { released = append(released, value) })

	require.True(t, owned.Release())
	require.False(t, owned.Release())
	require.Equal(t, []int{7}, released)

	_, ok := owned.Take()
	require.False(t, ok)
}

func TestImageDestroy(t *testing.T) {
	image := &fakeImage{}
	resource := &upload.Image{Image: image}

	resource.Destroy()
	resource.Destroy()
	require.Equal(t, 1, image.destroyed)
}

func TestColorSpaceFormat(t *testing.T) {
	require.Equal(t, core1_0.FormatR8G8B8A8SRGB, upload.ColorSpaceSRGB.Format())
	require.Equal(t, core1_0.FormatR8G8B8A8UnsignedNormalized, upload.ColorSpaceLinear.Format())
}

func TestDecodedTextureValidate(t *testing.T) {
	testCases := map[string]struct {
		Texture upload.DecodedTexture
		Valid   bool
	}{
		"SingleLevel": {
			Texture: upload.DecodedTexture{Width: 2, Height: 2, Data: make([]byte, 16)},
			Valid:   true,
		},
		"MipChain": {
			Texture: upload.DecodedTexture{
				Width:  2,
				Height: 2,
				Levels: []upload.MipLevel{
					{Width: 2, Height: 2, Offset: 0, Size: 16},
					{Width: 1, Height: 1, Offset: 16, Size: 4},
				},
				Data: make([]byte, 20),
			},
			Valid: true,
		},
		"ZeroExtent": {
			Texture: upload.DecodedTexture{Width: 0, Height: 2, Data: make([]byte, 16)},
		},
		"NoData": {
			Texture: upload.DecodedTexture{Width: 2, Height: 2},
		},
		"LevelOutOfBounds": {
			Texture: upload.DecodedTexture{
				Width:  2,
				Height: 2,
				Levels: []upload.MipLevel{
					{Width: 2, Height: 2, Offset: 8, Size: 16},
				},
				Data: make([]byte, 16),
			},
		},
	}

	for testName, testCase := range testCases {
		t.Run(testName, func(t *testing.T) {
			err := testCase.Texture.Validate()
			if testCase.Valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestDecodedTextureDefaultLevels(t *testing.T) {
	texture := upload.DecodedTexture{Width: 3, Height: 5, Data: make([]byte, 60)}
	require.Equal(t, []upload.MipLevel{{Width: 3, Height: 5, Offset: 0, Size: 60}}, texture.MipLevels())
}
