package pm

import (
	"github.com/lpabon/godbc"

	"github.com/diogenesvanzella/nanvix/common"
)

// The Kernel is the System the buffer cache runs on.
var _ common.System = (*Kernel)(nil)

// DisableInterrupts masks interrupts, taking ownership of all kernel data
// structures until the matching EnableInterrupts.
func (k *Kernel) DisableInterrupts() {
	k.irq.Disable()
}

// EnableInterrupts unmasks interrupts.
func (k *Kernel) EnableInterrupts() {
	k.irq.Enable()
}

// Sleep puts the running process to sleep on a chain, at the given
// priority, and yields. Interrupts must be disabled; when Sleep returns
// the process has been woken and rescheduled and interrupts are disabled
// again. The sleep condition must be revalidated by the caller: a wakeup
// readies every sleeper on the chain, whoever runs first wins.
func (k *Kernel) Sleep(q *common.WaitQueue, prio int) {
	godbc.Require(k.curr != k.idle, "sleep from idle")
	self := k.curr
	self.State = common.ProcWaiting
	self.Priority = prio
	q.Enqueue(self)
	k.yield()
}

// Wakeup wakes up every process sleeping on a chain.
func (k *Kernel) Wakeup(q *common.WaitQueue) {
	for _, p := range q.Drain() {
		k.sched(p)
	}
}
