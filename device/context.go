package device

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/driver"
)

// QueueFamilyIndices names the queue families uploads move between. Resources are populated on the
// Transfer family and consumed on the Graphics family.
type QueueFamilyIndices struct {
	Transfer int
	Graphics int
}

// RequiresOwnershipTransfer returns true when the two families differ, in which case every upload
// must release its resources from the transfer family and acquire them on the graphics family.
func (i QueueFamilyIndices) RequiresOwnershipTransfer() bool {
	return i.Transfer != i.Graphics
}

// Context is everything the upload pipeline and descriptor pools need from the rendering device.
// The caller owns every handle in it and must keep them alive until everything built on the
// Context has been destroyed.
type Context struct {
	Device              core1_0.Device
	PhysicalDevice      core1_0.PhysicalDevice
	AllocationCallbacks *driver.AllocationCallbacks

	TransferQueue core1_0.Queue
	GraphicsQueue core1_0.Queue
	QueueFamilies QueueFamilyIndices
}

func (c *Context) Validate() error {
	if c.Device == nil {
		return errors.New("device context is missing a Device")
	}
	if c.PhysicalDevice == nil {
		return errors.New("device context is missing a PhysicalDevice")
	}
	if c.TransferQueue == nil {
		return errors.New("device context is missing a TransferQueue")
	}
	if c.GraphicsQueue == nil {
		return errors.New("device context is missing a GraphicsQueue")
	}
	if c.QueueFamilies.Transfer < 0 {
		return errors.Newf("invalid transfer queue family index %d", c.QueueFamilies.Transfer)
	}
	if c.QueueFamilies.Graphics < 0 {
		return errors.Newf("invalid graphics queue family index %d", c.QueueFamilies.Graphics)
	}

	return nil
}
