// Package pm implements process management: the process table, the lottery
// scheduler with compensation tickets, and the sleep/wakeup primitives that
// the rest of the kernel blocks on.
//
// The simulated machine is a single CPU running a cooperative kernel. Each
// process is backed by a goroutine, but only the goroutine whose process is
// currently running makes progress: everyone else is parked on the
// interrupt lock's condition, waiting to be switched in. That keeps the
// execution model of the machine (one runner, explicit yields, interrupt
// masking as the sole mutual exclusion) while letting tests and drivers
// use ordinary blocking Go code.
package pm

import (
	"sync"

	"github.com/lpabon/godbc"
	"k8s.io/klog/v2"

	"github.com/diogenesvanzella/nanvix/common"
	"github.com/diogenesvanzella/nanvix/hal"
)

// Kernel is the scheduler singleton, constructed once at boot.
type Kernel struct {
	irq   *hal.IRQ
	clock *hal.Clock

	// cond is tied to the interrupt lock. Context switches, Join and the
	// idle loop all park here and re-check their predicate on broadcast.
	cond *sync.Cond

	procs []*common.Process // the process table
	curr  *common.Process   // the running process
	last  *common.Process   // the previously running process
	idle  *common.Process   // the distinguished idle process
}

// NewKernel boots a kernel around the given clock. The idle process is
// created and marked running; it parks until some process becomes ready.
func NewKernel(clock *hal.Clock) *Kernel {
	irq := hal.NewIRQ()
	k := &Kernel{
		irq:   irq,
		clock: clock,
		procs: make([]*common.Process, 0, common.NrProcs),
	}
	k.cond = sync.NewCond(irq.Locker())
	k.idle = &common.Process{Name: "idle", State: common.ProcRunning}
	k.curr = k.idle
	k.last = k.idle

	go k.idleLoop()

	klog.V(1).Infof("pm: kernel up, quantum %d ticks", common.ProcQuantum)
	return k
}

// idleLoop is the body of the idle process: hand the processor to the
// scheduler whenever a process is ready, otherwise halt until one is.
func (k *Kernel) idleLoop() {
	k.irq.Disable()
	for {
		if k.curr == k.idle && k.anyReady() {
			k.yield()
			continue
		}
		k.cond.Wait()
	}
}

func (k *Kernel) anyReady() bool {
	for _, p := range k.procs {
		if p.State == common.ProcReady {
			return true
		}
	}
	return false
}

// valid reports whether a process table entry is in use.
func valid(p *common.Process) bool {
	return p.State != common.ProcDead
}

// Spawn creates a process running fn and schedules it. The father is the
// process that is running at the time of the call. fn executes only when
// the lottery dispatches the new process.
func (k *Kernel) Spawn(name string, nice int, fn func()) *common.Process {
	k.irq.Disable()
	if len(k.procs) == common.NrProcs {
		k.irq.Enable()
		panic("pm: process table overflow")
	}
	p := &common.Process{
		Name:     name,
		Nice:     nice,
		Priority: common.PrioUser,
		Father:   k.curr,
	}
	p.Tickets = -p.Priority + common.NormalizationValue - p.Nice
	k.procs = append(k.procs, p)
	k.sched(p)
	k.irq.Enable()

	go func() {
		k.irq.Disable()
		for k.curr != p {
			k.cond.Wait()
		}
		k.irq.Enable()

		fn()
		k.exit(p)
	}()

	return p
}

// exit terminates the calling process: mark it a zombie, notify the
// father, and hand the processor over for good.
func (k *Kernel) exit(p *common.Process) {
	k.irq.Disable()
	godbc.Require(k.curr == p)
	p.State = common.ProcZombie
	k.sndsig(p.Father, common.SIGCHLD)
	k.yield()
	k.irq.Enable()
}

// Join blocks the caller until p has terminated. It is meant for code
// outside the simulated machine (tests, the simulator main).
func (k *Kernel) Join(p *common.Process) {
	k.irq.Disable()
	for p.State != common.ProcZombie {
		k.cond.Wait()
	}
	k.irq.Enable()
}

// Current returns the running process.
func (k *Kernel) Current() *common.Process {
	k.irq.Disable()
	p := k.curr
	k.irq.Enable()
	return p
}

// Idle returns the idle process.
func (k *Kernel) Idle() *common.Process {
	return k.idle
}

// Tick delivers one clock tick: advance the wall clock and charge the
// running process one quantum tick.
func (k *Kernel) Tick() {
	k.clock.Tick()
	k.irq.Disable()
	if k.curr != k.idle && k.curr.Counter > 0 {
		k.curr.Counter--
	}
	k.irq.Enable()
}

// Alarm arms the calling process's alarm for the given tick count and
// returns the previous value. SIGALRM is delivered by the scheduler once
// the clock passes the armed tick.
func (k *Kernel) Alarm(tick uint64) uint64 {
	k.irq.Disable()
	old := k.curr.Alarm
	k.curr.Alarm = tick
	k.irq.Enable()
	return old
}
