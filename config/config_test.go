package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/conveyor/config"
	"github.com/vkngwrapper/conveyor/descriptors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

const fullConfig = `
[upload]
staging_buffer_size = 1048576
buffer_usage = ["vertex", "Uniform"]
copy_alignment = 64

[descriptors]
max_frames_in_flight = 3
max_descriptors_per_pool = 128
externally_synchronized = true
`

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(fullConfig))
	require.NoError(t, err)

	require.Equal(t, 1048576, cfg.UploadOptions().StagingBufferSize)

	stagerOptions := cfg.StagerOptions()
	require.Equal(t, core1_0.BufferUsageVertexBuffer|core1_0.BufferUsageUniformBuffer, stagerOptions.BufferUsage)
	require.Equal(t, uint(64), stagerOptions.CopyAlignment)

	poolOptions := cfg.DescriptorOptions()
	require.Equal(t, 3, poolOptions.FramesInFlight)
	require.Equal(t, 128, poolOptions.MaxDescriptorsPerPool)
	require.Equal(t, descriptors.PoolCreateExternallySynchronized, poolOptions.Flags)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := config.Parse(nil)
	require.NoError(t, err)

	require.Equal(t, 0, cfg.UploadOptions().StagingBufferSize)
	require.Equal(t, core1_0.BufferUsageFlags(0), cfg.StagerOptions().BufferUsage)
	require.Equal(t, descriptors.PoolCreateFlags(0), cfg.DescriptorOptions().Flags)
}

func TestParseRejectsInvalid(t *testing.T) {
	testCases := map[string]string{
		"UnknownKey":       "[upload]\nstaging_size = 4\n",
		"NegativeStaging":  "[upload]\nstaging_buffer_size = -1\n",
		"UnknownUsage":     "[upload]\nbuffer_usage = [\"indirect\"]\n",
		"BadAlignment":     "[upload]\ncopy_alignment = 24\n",
		"TinyAlignment":    "[upload]\ncopy_alignment = 2\n",
		"NegativeFrames":   "[descriptors]\nmax_frames_in_flight = -2\n",
		"NegativePoolSize": "[descriptors]\nmax_descriptors_per_pool = -1\n",
		"Malformed":        "[upload\n",
	}

	for name, document := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := config.Parse([]byte(document))
			require.Error(t, err)
		})
	}
}

func TestParseAlignmentUsesPowerOfTwoCheck(t *testing.T) {
	_, err := config.Parse([]byte("[upload]\ncopy_alignment = 24\n"))
	require.ErrorIs(t, err, memutils.PowerOfTwoError)

	_, err = config.Parse([]byte("[upload]\ncopy_alignment = 2\n"))
	require.Error(t, err)
	require.NotErrorIs(t, err, memutils.PowerOfTwoError)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conveyor.toml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Descriptors.MaxFramesInFlight)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
