package hal

import "sync"

// IRQ models the interrupt mask of a single-CPU machine. Disabling
// interrupts is the kernel's only mutual exclusion primitive; here it is a
// single lock that every critical region acquires. Only short sections run
// with interrupts disabled; the per-buffer locks above this layer are
// sleep locks, not spin locks.
type IRQ struct {
	mu sync.Mutex
}

func NewIRQ() *IRQ {
	return &IRQ{}
}

// Disable masks interrupts: the caller owns every kernel data structure
// until the matching Enable.
func (i *IRQ) Disable() {
	i.mu.Lock()
}

// Enable unmasks interrupts.
func (i *IRQ) Enable() {
	i.mu.Unlock()
}

// Locker exposes the mask as a sync.Locker so a context switch can park a
// process on it and reacquire it transparently on wakeup.
func (i *IRQ) Locker() sync.Locker {
	return &i.mu
}
