package pm

import (
	"github.com/diogenesvanzella/nanvix/common"
)

// rand is a linear congruential draw seeded from the current tick. Within
// one tick successive calls return the same number; callers that need
// distinct draws must let the clock advance.
func (k *Kernel) rand() int {
	seed := k.clock.Ticks()*1103515245 + 12345
	return int(seed / 65536 % 32768)
}

// draw picks the winning ticket in [1, total].
func (k *Kernel) draw(total int) int {
	return k.rand()*total/32768 + 1
}

// sched schedules a process for execution. Interrupts must be disabled.
func (k *Kernel) sched(p *common.Process) {
	p.State = common.ProcReady
	p.Counter = 0
	k.cond.Broadcast()
}

// Sched schedules a process for execution.
func (k *Kernel) Sched(p *common.Process) {
	k.irq.Disable()
	k.sched(p)
	k.irq.Enable()
}

// Stop stops the current running process and notifies its father.
func (k *Kernel) Stop() {
	k.irq.Disable()
	k.curr.State = common.ProcStopped
	k.sndsig(k.curr.Father, common.SIGCHLD)
	k.yield()
	k.irq.Enable()
}

// Resume resumes a process. The process must be stopped.
func (k *Kernel) Resume(p *common.Process) {
	k.irq.Disable()
	if p.State == common.ProcStopped {
		k.sched(p)
	}
	k.irq.Enable()
}

// addCompensation awards compensation tickets to the running process when
// it gives up the processor before using its entire quantum. The award
// scales the ticket count by the inverse of the quantum fraction used:
// compensation = tickets*quantum/used - tickets, in integer arithmetic.
func (k *Kernel) addCompensation() {
	p := k.curr
	if p.Counter > 0 && p.Counter != common.ProcQuantum {
		used := common.ProcQuantum - p.Counter
		p.Compensation = p.Tickets*common.ProcQuantum/used - p.Tickets
	}
}

// Yield yields the processor.
func (k *Kernel) Yield() {
	k.irq.Disable()
	k.yield()
	k.irq.Enable()
}

// yield runs the lottery and switches to the winner. Interrupts must be
// disabled; they still are when the caller is eventually switched back in.
func (k *Kernel) yield() {
	self := k.curr

	// Re-schedule a process that is voluntarily giving up the processor,
	// compensating it for the unused part of its quantum.
	if self.State == common.ProcRunning {
		k.addCompensation()
		k.sched(self)
	}

	// Remember this process.
	k.last = self

	// Count the tickets of all ready processes and check alarms.
	total := 0
	now := k.clock.Ticks()
	for _, p := range k.procs {
		if p.State == common.ProcReady {
			total += p.Tickets + p.Compensation
		}

		if !valid(p) {
			continue
		}

		// Alarm has expired.
		if p.Alarm != 0 && p.Alarm < now {
			p.Alarm = 0
			k.sndsig(p, common.SIGALRM)
		}
	}

	// Choose the process holding the winning ticket.
	winning := k.draw(total)
	next := k.idle
	sum := 0
	for _, p := range k.procs {
		if p.State != common.ProcReady {
			continue
		}
		sum += p.Tickets + p.Compensation
		if sum > winning {
			next = p
			break
		}
	}

	// Switch to next process.
	next.Priority = common.PrioUser
	next.State = common.ProcRunning
	next.Counter = common.ProcQuantum
	next.Tickets = -next.Priority + common.NormalizationValue - next.Nice
	next.Compensation = 0
	k.switchTo(next, self)
}

// switchTo transfers the processor to next and parks the calling process
// until it is dispatched again. A zombie never returns to the processor,
// so its goroutine falls straight through.
func (k *Kernel) switchTo(next, self *common.Process) {
	k.curr = next
	k.cond.Broadcast()
	if self.State == common.ProcZombie {
		return
	}
	for k.curr != self {
		k.cond.Wait()
	}
}

// sndsig posts a signal to a process. Interrupts must be disabled.
func (k *Kernel) sndsig(p *common.Process, sig common.Signal) {
	if p == nil {
		return
	}
	p.Pending.Add(sig)
}
