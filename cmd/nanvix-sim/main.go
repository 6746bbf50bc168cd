// nanvix-sim boots the kernel core on a ramdisk and runs a canned workload
// of processes doing block I/O through the buffer cache, printing the
// cache counters when the machine quiesces.
package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/diogenesvanzella/nanvix/bcache"
	"github.com/diogenesvanzella/nanvix/common"
	"github.com/diogenesvanzella/nanvix/debug"
	"github.com/diogenesvanzella/nanvix/device"
	"github.com/diogenesvanzella/nanvix/hal"
	"github.com/diogenesvanzella/nanvix/pm"
)

var opts struct {
	buffers    int
	hashSlots  int
	blockSize  int
	diskBlocks int
	workers    int
	ops        int
	dump       bool
}

func main() {
	cmd := &cobra.Command{
		Use:   "nanvix-sim",
		Short: "Run a workload against the buffer cache and lottery scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		SilenceUsage: true,
	}

	cmd.Flags().IntVar(&opts.buffers, "buffers", 16, "block buffers in the pool")
	cmd.Flags().IntVar(&opts.hashSlots, "hash-slots", common.BuffersHashtabSize, "slots in the buffer hash table")
	cmd.Flags().IntVar(&opts.blockSize, "block-size", common.BlockSize, "bytes per block")
	cmd.Flags().IntVar(&opts.diskBlocks, "disk-blocks", 128, "blocks on the ramdisk")
	cmd.Flags().IntVar(&opts.workers, "workers", 4, "worker processes")
	cmd.Flags().IntVar(&opts.ops, "ops", 64, "block operations per worker")
	cmd.Flags().BoolVar(&opts.dump, "dump", false, "dump the first touched block when done")

	klog.InitFlags(nil)
	cmd.Flags().AddGoFlagSet(goflag.CommandLine)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	clock := hal.NewClock()
	kernel := pm.NewKernel(clock)
	cache := bcache.NewCache(kernel, 1, opts.buffers, opts.hashSlots, opts.blockSize)

	disk, err := device.NewRamdisk(make([]byte, opts.diskBlocks*opts.blockSize), opts.blockSize)
	if err != nil {
		return err
	}
	if err := cache.MountDevice(0, disk); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	cache.Stats().MustRegister(reg)

	workers := make([]*common.Process, opts.workers)
	for i := 0; i < opts.workers; i++ {
		id := i
		workers[i] = kernel.Spawn(fmt.Sprintf("worker%d", id), id, func() {
			for n := 0; n < opts.ops; n++ {
				// Walk the disk in a worker-specific stride; block 0 of
				// device 0 is off limits.
				num := 1 + (id*opts.ops+n*7)%(opts.diskBlocks-1)

				blk := cache.ReadBlock(0, num)
				blk.Data[0]++
				blk.Flags |= common.BufferDirty
				cache.PutBlock(blk)

				kernel.Tick()
				kernel.Yield()
			}
		})
	}
	for _, p := range workers {
		kernel.Join(p)
	}

	syncer := kernel.Spawn("syncer", 0, func() {
		cache.SyncAll()
	})
	kernel.Join(syncer)

	if opts.dump {
		dumper := kernel.Spawn("dumper", 0, func() {
			blk := cache.ReadBlock(0, 1)
			debug.DumpBlock(os.Stdout, blk)
			cache.PutBlock(blk)
		})
		kernel.Join(dumper)
	}

	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
