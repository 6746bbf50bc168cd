// Package testutils provides the block devices the package tests drive the
// cache with.
package testutils

import (
	"sync/atomic"
	"testing"

	"github.com/diogenesvanzella/nanvix/common"
	"github.com/diogenesvanzella/nanvix/device"
)

// NewTestDevice builds a ramdisk with the given geometry, each block
// filled with the bytes of its block number: every byte of block 0 is 0,
// of block 1 is 1, and so on.
func NewTestDevice(t *testing.T, bsize, blocks int) *device.Ramdisk {
	data := make([]byte, bsize*blocks)
	for i := 0; i < blocks; i++ {
		for j := 0; j < bsize; j++ {
			data[(i*bsize)+j] = byte(i)
		}
	}
	dev, err := device.NewRamdisk(data, bsize)
	if err != nil {
		t.Fatalf("failed when creating ramdisk device: %s", err)
	}
	return dev
}

// CountingDevice wraps a device and counts the transfers that reach it.
type CountingDevice struct {
	common.BlockDevice
	Reads  atomic.Int64
	Writes atomic.Int64
}

func NewCountingDevice(dev common.BlockDevice) *CountingDevice {
	return &CountingDevice{BlockDevice: dev}
}

func (d *CountingDevice) ReadBlock(b *common.Block) error {
	d.Reads.Add(1)
	return d.BlockDevice.ReadBlock(b)
}

func (d *CountingDevice) WriteBlock(b *common.Block) error {
	d.Writes.Add(1)
	return d.BlockDevice.WriteBlock(b)
}

// BlockingDevice is a device that parks on every read. It announces the
// read on the HasBlocked channel and waits to be released on the Unblock
// channel, holding the simulated disk busy in between.
type BlockingDevice struct {
	common.BlockDevice
	HasBlocked chan bool
	Unblock    chan bool
}

func NewBlockingDevice(dev common.BlockDevice) *BlockingDevice {
	return &BlockingDevice{
		BlockDevice: dev,
		HasBlocked:  make(chan bool),
		Unblock:     make(chan bool),
	}
}

func (d *BlockingDevice) ReadBlock(b *common.Block) error {
	d.HasBlocked <- true
	<-d.Unblock
	return d.BlockDevice.ReadBlock(b)
}
