// Package bcache implements the block buffer cache: a fixed pool of
// in-memory buffers mirroring disk blocks, the sole I/O path used by the
// file system layer.
//
// The cache serialises access to any given disk block: a buffer is handed
// out locked and reference-counted, and contenders sleep on the buffer's
// chain until the holder releases it. Buffers with no references live on a
// free list whose head end is the preferred eviction victim; a valid and
// dirty buffer is released to the tail end instead, postponing its reuse so
// it is more likely flushed as part of a batch first.
package bcache

import (
	"github.com/lpabon/godbc"
	"k8s.io/klog/v2"

	"github.com/diogenesvanzella/nanvix/common"
)

// An elaboration of the Block type, decorated with the members the cache
// needs: the reference count, the buffer's wait chain, and its intrusive
// links. A buffer is on the free list iff its count is zero, and in exactly
// one hash bucket whenever it has an assigned identity. Sentinel nodes
// share this layout so that list surgery needs no special cases.
type buf struct {
	*common.Block

	count int              // number of references to this buffer
	chain common.WaitQueue // processes waiting for this buffer

	freeNext, freePrev *buf // free-list links, nil when off the list
	hashNext, hashPrev *buf // hash bucket links
}

// Cache is the block buffer cache singleton, constructed once at boot.
type Cache struct {
	sys common.System

	devices []common.BlockDevice // mounted device drivers, by device number
	bufs    []*buf               // the buffer pool, in slot order
	arena   []byte               // backing storage, nbufs*blocksize bytes

	free    buf              // free-list sentinel
	hashtab []buf            // hash bucket sentinels
	anyFree common.WaitQueue // processes waiting for any buffer to free up

	blocksize int
	stats     *Stats
}

// NewCache initializes the block buffer cache: every buffer goes on the
// free list in slot order, with no identity and all flags clear, its data
// carved out of a single pre-reserved arena.
func NewCache(sys common.System, ndevices, nbufs, nhash, blocksize int) *Cache {
	if nbufs <= 0 || nbufs > common.MaxBuffers {
		panic("fs: too many buffers")
	}
	godbc.Require(ndevices > 0 && nhash > 0 && blocksize > 0)

	klog.V(1).Infof("fs: initializing the block buffer cache")

	c := &Cache{
		sys:       sys,
		devices:   make([]common.BlockDevice, ndevices),
		bufs:      make([]*buf, nbufs),
		arena:     make([]byte, nbufs*blocksize),
		hashtab:   make([]buf, nhash),
		blocksize: blocksize,
		stats:     newStats(),
	}

	for i := range c.bufs {
		b := &buf{
			Block: &common.Block{
				Data: c.arena[i*blocksize : (i+1)*blocksize],
			},
		}
		b.Block.Buf = b
		b.hashNext = b
		b.hashPrev = b
		c.bufs[i] = b
	}

	// Link the pool into the free list, in slot order.
	c.free.freeNext = &c.free
	c.free.freePrev = &c.free
	for i := len(c.bufs) - 1; i >= 0; i-- {
		c.insertFreeHead(c.bufs[i])
	}
	for i := range c.hashtab {
		h := &c.hashtab[i]
		h.hashNext = h
		h.hashPrev = h
	}

	klog.V(1).Infof("fs: %d slots in the block buffer cache", nbufs)
	return c
}

// Stats returns the cache's operation counters.
func (c *Cache) Stats() *Stats {
	return c.stats
}

// hash maps a device and block number to a hash table slot.
func (c *Cache) hash(dev, num int) int {
	return (dev ^ num) % len(c.hashtab)
}

// Free-list and hash-chain surgery. All of it runs with interrupts
// disabled.

func (c *Cache) unlinkFree(b *buf) {
	b.freePrev.freeNext = b.freeNext
	b.freeNext.freePrev = b.freePrev
	b.freeNext = nil
	b.freePrev = nil
}

func (c *Cache) insertFreeHead(b *buf) {
	c.free.freeNext.freePrev = b
	b.freePrev = &c.free
	b.freeNext = c.free.freeNext
	c.free.freeNext = b
}

func (c *Cache) insertFreeTail(b *buf) {
	c.free.freePrev.freeNext = b
	b.freeNext = &c.free
	b.freePrev = c.free.freePrev
	c.free.freePrev = b
}

func (c *Cache) unlinkHash(b *buf) {
	b.hashPrev.hashNext = b.hashNext
	b.hashNext.hashPrev = b.hashPrev
	b.hashNext = b
	b.hashPrev = b
}

func (c *Cache) linkHash(i int, b *buf) {
	h := &c.hashtab[i]
	h.hashNext.hashPrev = b
	b.hashPrev = h
	b.hashNext = h.hashNext
	h.hashNext = b
}

// lockBuf acquires the sleep lock on a buffer, waiting its turn if some
// other process holds it. Interrupts must be disabled.
func (c *Cache) lockBuf(b *buf) {
	for b.Flags&common.BufferLocked != 0 {
		c.sys.Sleep(&b.chain, common.PrioBuffer)
	}
	b.Flags |= common.BufferLocked
}

// unlockBuf releases the sleep lock and wakes up every process that was
// waiting for the buffer. Interrupts must be disabled.
func (c *Cache) unlockBuf(b *buf) {
	b.Flags &^= common.BufferLocked
	c.sys.Wakeup(&b.chain)
}

// getblk searches the cache for the buffer holding the requested block,
// recycling the buffer at the head of the free list on a miss. The returned
// buffer is locked with count >= 1, and may or may not be valid. The
// caller sleeps whenever the buffer is held elsewhere or no free buffer is
// available, and the search restarts from scratch after every sleep.
func (c *Cache) getblk(dev, num int) *buf {
	// Should not happen.
	if dev == 0 && num == 0 {
		panic("getblk(0, 0)")
	}

	i := c.hash(dev, num)

	c.sys.DisableInterrupts()
search:
	for {
		// Search in hash table.
		for b := c.hashtab[i].hashNext; b != &c.hashtab[i]; b = b.hashNext {
			if b.Dev != dev || b.Num != num {
				continue
			}

			// Buffer is locked so we wait for it to become free.
			if b.Flags&common.BufferLocked != 0 {
				c.stats.LockWaits.Inc()
				c.sys.Sleep(&b.chain, common.PrioBuffer)
				continue search
			}

			// Remove buffer from the free list.
			b.count++
			if b.count == 1 {
				c.unlinkFree(b)
			}

			b.Flags |= common.BufferLocked
			c.stats.Hits.Inc()
			c.sys.EnableInterrupts()
			return b
		}

		// There are no free buffers so we need to wait for one.
		if c.free.freeNext == &c.free {
			klog.Infof("fs: no free buffers")
			c.stats.Starved.Inc()
			c.sys.Sleep(&c.anyFree, common.PrioBuffer)
			continue search
		}

		// Take the buffer at the head of the free list.
		b := c.free.freeNext
		c.unlinkFree(b)
		b.count++

		// Buffer is dirty: it would have to be written back to the disk
		// asynchronously before reuse, which is not implemented.
		if b.Flags&common.BufferDirty != 0 {
			c.sys.EnableInterrupts()
			panic("fs: asynchronous write")
		}

		godbc.Require(b.Flags&common.BufferLocked == 0)

		// Reassign device and block number, and move the buffer to its
		// new hash queue.
		c.unlinkHash(b)
		b.Dev = dev
		b.Num = num
		b.Flags &^= common.BufferValid
		c.linkHash(i, b)

		b.Flags |= common.BufferLocked
		c.stats.Misses.Inc()
		c.sys.EnableInterrupts()
		return b
	}
}

// GetBlock gets the buffer holding the requested block. The buffer is
// returned locked with count >= 1; it may or may not be valid.
func (c *Cache) GetBlock(dev, num int) *common.Block {
	return c.getblk(dev, num).Block
}

// ReadBlock reads a block synchronously from a device, unless the cache
// already holds a valid copy. The buffer is returned locked.
func (c *Cache) ReadBlock(dev, num int) *common.Block {
	b := c.getblk(dev, num)

	if b.Flags&common.BufferValid == 0 {
		c.devRead(b)
	}

	return b.Block
}

// WriteBlock writes a buffer synchronously to the underlying device. The
// buffer must be locked, and stays held by the caller.
func (c *Cache) WriteBlock(blk *common.Block) {
	b := blk.Buf.(*buf)
	godbc.Require(b.Flags&common.BufferLocked != 0, "write of unlocked buffer")
	c.devWrite(b)
}

// PutBlock releases a buffer. If the reference count drops to zero the
// buffer goes back on the free list (at the tail when valid and dirty, so
// its reuse is postponed, at the head otherwise) and processes waiting
// for any free buffer are woken. The buffer is then unlocked.
func (c *Cache) PutBlock(blk *common.Block) {
	b := blk.Buf.(*buf)

	c.sys.DisableInterrupts()

	b.count--

	// No more references.
	if b.count == 0 {
		c.sys.Wakeup(&c.anyFree)

		if b.Flags&(common.BufferValid|common.BufferDirty) ==
			common.BufferValid|common.BufferDirty {
			c.insertFreeTail(b)
		} else {
			c.insertFreeHead(b)
		}
	}

	// Should not happen.
	if b.count < 0 {
		c.sys.EnableInterrupts()
		panic("fs: freeing buffer twice")
	}

	c.unlockBuf(b)
	c.sys.EnableInterrupts()
}

// LockBlock locks a buffer, sleeping until any other holder releases it.
func (c *Cache) LockBlock(blk *common.Block) {
	b := blk.Buf.(*buf)
	c.sys.DisableInterrupts()
	c.lockBuf(b)
	c.sys.EnableInterrupts()
}

// UnlockBlock unlocks a buffer and wakes up every process waiting for it.
func (c *Cache) UnlockBlock(blk *common.Block) {
	b := blk.Buf.(*buf)
	c.sys.DisableInterrupts()
	c.unlockBuf(b)
	c.sys.EnableInterrupts()
}

// SyncAll flushes every valid buffer onto its underlying device. Each
// buffer is locked and referenced across its write and released again
// afterwards, so concurrent users simply find it busy for a while.
func (c *Cache) SyncAll() {
	c.sync(-1)
}

func (c *Cache) sync(dev int) {
	for _, b := range c.bufs {
		c.sys.DisableInterrupts()
		c.lockBuf(b)

		// Skip invalid buffers, and foreign devices on a targeted sync.
		if b.Flags&common.BufferValid == 0 || (dev >= 0 && b.Dev != dev) {
			c.unlockBuf(b)
			c.sys.EnableInterrupts()
			continue
		}

		// Hold a reference across the write so the buffer cannot be
		// recycled under us; a release follows.
		b.count++
		if b.count == 1 {
			c.unlinkFree(b)
		}
		c.sys.EnableInterrupts()

		c.devWrite(b)
		c.PutBlock(b.Block)
	}
}

// MountDevice attaches a driver to a device number.
func (c *Cache) MountDevice(devnum int, dev common.BlockDevice) error {
	if devnum < 0 || devnum >= len(c.devices) {
		return common.ENXIO
	}
	if c.devices[devnum] != nil {
		return common.EBUSY
	}
	c.devices[devnum] = dev
	return nil
}

// UnmountDevice flushes every valid buffer of a device, invalidates the
// ones that are not held, and detaches its driver.
func (c *Cache) UnmountDevice(devnum int) error {
	if devnum < 0 || devnum >= len(c.devices) || c.devices[devnum] == nil {
		return common.ENXIO
	}
	c.sync(devnum)
	c.invalidate(devnum)
	c.devices[devnum] = nil
	return nil
}

// invalidate strips the identity of every unreferenced buffer of a device.
// Buffers still held keep their identity until released.
func (c *Cache) invalidate(devnum int) {
	c.sys.DisableInterrupts()
	for _, b := range c.bufs {
		if b.Dev != devnum || b.count != 0 || b.Flags&common.BufferLocked != 0 {
			continue
		}
		c.unlinkHash(b)
		b.Dev = 0
		b.Num = 0
		b.Flags = 0
	}
	c.sys.EnableInterrupts()
}

// driver returns the driver mounted at a device number. A missing driver
// is a programmer error: the file system layer never issues I/O for a
// device it has not mounted.
func (c *Cache) driver(dev int) common.BlockDevice {
	if dev < 0 || dev >= len(c.devices) || c.devices[dev] == nil {
		panic("fs: no driver for device")
	}
	return c.devices[dev]
}

// devRead populates a locked buffer from its device. The I/O runs on a
// separate goroutine standing in for the disk and its completion
// interrupt; the calling process sleeps until the interrupt fires, so
// other processes run while the transfer is in flight. The driver sets the
// valid flag on success.
func (c *Cache) devRead(b *buf) {
	drv := c.driver(b.Dev)
	c.stats.DevReads.Inc()

	var (
		done common.WaitQueue
		fin  bool
		err  error
	)
	b.Flags |= common.BufferBusy
	go func() {
		e := drv.ReadBlock(b.Block)
		c.sys.DisableInterrupts()
		err = e
		fin = true
		c.sys.Wakeup(&done)
		c.sys.EnableInterrupts()
	}()

	c.sys.DisableInterrupts()
	for !fin {
		c.sys.Sleep(&done, common.PrioBuffer)
	}
	b.Flags &^= common.BufferBusy
	c.sys.EnableInterrupts()

	if err != nil {
		panic("fs: device read failed: " + err.Error())
	}
}

// devWrite writes a locked buffer to its device, sleeping the caller until
// the completion interrupt. The driver clears the dirty flag on success.
func (c *Cache) devWrite(b *buf) {
	drv := c.driver(b.Dev)
	c.stats.DevWrites.Inc()

	var (
		done common.WaitQueue
		fin  bool
		err  error
	)
	b.Flags |= common.BufferBusy
	go func() {
		e := drv.WriteBlock(b.Block)
		c.sys.DisableInterrupts()
		err = e
		fin = true
		c.sys.Wakeup(&done)
		c.sys.EnableInterrupts()
	}()

	c.sys.DisableInterrupts()
	for !fin {
		c.sys.Sleep(&done, common.PrioBuffer)
	}
	b.Flags &^= common.BufferBusy
	c.sys.EnableInterrupts()

	if err != nil {
		panic("fs: device write failed: " + err.Error())
	}
}
