package config

import (
	"bytes"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/vkngwrapper/arsenal/memutils"
	"github.com/vkngwrapper/conveyor/descriptors"
	"github.com/vkngwrapper/conveyor/upload"
	"github.com/vkngwrapper/conveyor/upload/vulkan"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Upload is the [upload] table
type Upload struct {
	StagingBufferSize int      `toml:"staging_buffer_size"`
	BufferUsage       []string `toml:"buffer_usage"`
	CopyAlignment     uint     `toml:"copy_alignment"`
}

// Descriptors is the [descriptors] table
type Descriptors struct {
	MaxFramesInFlight      int  `toml:"max_frames_in_flight"`
	MaxDescriptorsPerPool  int  `toml:"max_descriptors_per_pool"`
	ExternallySynchronized bool `toml:"externally_synchronized"`
}

// Config is the contents of a conveyor configuration file. Every field is optional; anything left
// out falls back to the defaults of the package it configures.
type Config struct {
	Upload      Upload      `toml:"upload"`
	Descriptors Descriptors `toml:"descriptors"`
}

var bufferUsageNames = map[string]core1_0.BufferUsageFlags{
	"vertex":       core1_0.BufferUsageVertexBuffer,
	"index":        core1_0.BufferUsageIndexBuffer,
	"uniform":      core1_0.BufferUsageUniformBuffer,
	"storage":      core1_0.BufferUsageStorageBuffer,
	"transfer_src": core1_0.BufferUsageTransferSrc,
}

// Parse decodes a TOML document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var config Config

	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(&config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse conveyor config")
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	return &config, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read conveyor config %s", path)
	}

	return Parse(data)
}

func (c *Config) Validate() error {
	if c.Upload.StagingBufferSize < 0 {
		return errors.Newf("upload.staging_buffer_size must not be negative, got %d", c.Upload.StagingBufferSize)
	}
	_, err := c.bufferUsage()
	if err != nil {
		return err
	}
	alignment := c.Upload.CopyAlignment
	if alignment != 0 {
		err = memutils.CheckPow2(alignment, "upload.copy_alignment")
		if err != nil {
			return err
		}
		if alignment%4 != 0 {
			return errors.Newf("upload.copy_alignment must be a multiple of 4, got %d", alignment)
		}
	}

	if c.Descriptors.MaxFramesInFlight < 0 {
		return errors.Newf("descriptors.max_frames_in_flight must not be negative, got %d", c.Descriptors.MaxFramesInFlight)
	}
	if c.Descriptors.MaxDescriptorsPerPool < 0 {
		return errors.Newf("descriptors.max_descriptors_per_pool must not be negative, got %d", c.Descriptors.MaxDescriptorsPerPool)
	}

	return nil
}

func (c *Config) bufferUsage() (core1_0.BufferUsageFlags, error) {
	var usage core1_0.BufferUsageFlags
	for _, name := range c.Upload.BufferUsage {
		flag, ok := bufferUsageNames[strings.ToLower(name)]
		if !ok {
			return 0, errors.Newf("unknown buffer usage %q in upload.buffer_usage", name)
		}
		usage |= flag
	}
	return usage, nil
}

func (c *Config) UploadOptions() upload.CreateOptions {
	return upload.CreateOptions{
		StagingBufferSize: c.Upload.StagingBufferSize,
	}
}

func (c *Config) StagerOptions() vulkan.StagerOptions {
	usage, _ := c.bufferUsage()
	return vulkan.StagerOptions{
		BufferUsage:   usage,
		CopyAlignment: c.Upload.CopyAlignment,
	}
}

// DescriptorOptions fills the configurable fields of PoolOptions. The layout and bindings still
// have to be supplied by the caller.
func (c *Config) DescriptorOptions() descriptors.PoolOptions {
	var flags descriptors.PoolCreateFlags
	if c.Descriptors.ExternallySynchronized {
		flags |= descriptors.PoolCreateExternallySynchronized
	}

	return descriptors.PoolOptions{
		Flags:                 flags,
		FramesInFlight:        c.Descriptors.MaxFramesInFlight,
		MaxDescriptorsPerPool: c.Descriptors.MaxDescriptorsPerPool,
	}
}
