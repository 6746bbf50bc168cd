package common

// Compile-time configuration of the kernel core. These mirror the tunables
// in the C headers; pool geometry may be overridden per cache instance, the
// values here are the boot defaults.
const (
	// Maximum number of block buffers. The cap comes from the amount of
	// memory reserved for buffer data.
	MaxBuffers = 512

	// NrBuffers is the default size of the block buffer pool.
	NrBuffers = 256

	// BlockSize is the size of a disk block, in bytes.
	BlockSize = 1024

	// BuffersHashtabSize is the default number of slots in the block
	// buffer hash table.
	BuffersHashtabSize = 53

	// ImapSize and ZmapSize are the inode map and zone map sizes, in
	// blocks, of the largest supported disk.
	ImapSize = 8
	ZmapSize = 8
)

// Scheduling parameters.
const (
	// ProcQuantum is the quantum length, in clock ticks.
	ProcQuantum = 100

	// NrProcs is the size of the process table.
	NrProcs = 64

	// Process priorities. Negative values are kernel priorities.
	PrioBuffer = -40 // waiting for a block buffer
	PrioUser   = 20  // user priority

	// NormalizationValue offsets the priority when seeding the ticket
	// count: a process holds -priority + NormalizationValue - nice
	// tickets. The count is not clamped, so at user priority a nice
	// level of 80 or more leaves a process with no tickets.
	NormalizationValue = 100
)

// Too many buffers.
var _ [MaxBuffers - NrBuffers]struct{}

// Hard disk too small. The number of buffers should be great enough so that
// the superblock, the inode map and the free blocks map do not waste more
// than 1/16 of buffers.
var _ [NrBuffers/16 - ImapSize - ZmapSize]struct{}
