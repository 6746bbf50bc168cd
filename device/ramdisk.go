// Package device holds the block device drivers the cache dispatches to.
// A driver moves one block at a time and owns the flag discipline of the
// transfer: a successful read marks the buffer valid, a successful write
// marks it clean. Drivers either succeed or report an error the cache
// treats as fatal.
package device

import (
	"github.com/pkg/errors"

	"github.com/diogenesvanzella/nanvix/common"
)

// Ramdisk is a block device backed by a byte slice.
type Ramdisk struct {
	data      []byte
	blocksize int
}

// NewRamdisk creates a ramdisk over the given backing storage.
func NewRamdisk(data []byte, blocksize int) (*Ramdisk, error) {
	if blocksize <= 0 {
		return nil, errors.Errorf("ramdisk: bad block size %d", blocksize)
	}
	if len(data)%blocksize != 0 {
		return nil, errors.Errorf(
			"ramdisk: size %d not a multiple of the block size %d",
			len(data), blocksize)
	}
	return &Ramdisk{data: data, blocksize: blocksize}, nil
}

// Blocks returns the number of blocks on the device.
func (r *Ramdisk) Blocks() int {
	return len(r.data) / r.blocksize
}

func (r *Ramdisk) extent(b *common.Block) ([]byte, error) {
	if len(b.Data) != r.blocksize {
		return nil, errors.Errorf(
			"ramdisk: buffer size %d does not match block size %d",
			len(b.Data), r.blocksize)
	}
	off := b.Num * r.blocksize
	if b.Num < 0 || off+r.blocksize > len(r.data) {
		return nil, errors.Errorf("ramdisk: block %d beyond end of device", b.Num)
	}
	return r.data[off : off+r.blocksize], nil
}

// ReadBlock copies a block into the buffer and marks it valid.
func (r *Ramdisk) ReadBlock(b *common.Block) error {
	src, err := r.extent(b)
	if err != nil {
		return errors.Wrap(err, "read")
	}
	copy(b.Data, src)
	b.Flags |= common.BufferValid
	return nil
}

// WriteBlock copies the buffer back onto the device and marks it clean.
func (r *Ramdisk) WriteBlock(b *common.Block) error {
	dst, err := r.extent(b)
	if err != nil {
		return errors.Wrap(err, "write")
	}
	copy(dst, b.Data)
	b.Flags &^= common.BufferDirty
	return nil
}
