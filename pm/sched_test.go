package pm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diogenesvanzella/nanvix/common"
	"github.com/diogenesvanzella/nanvix/hal"
)

// waitFor polls a predicate until it holds or the test times out. The
// predicate runs with interrupts disabled.
func waitFor(t *testing.T, k *Kernel, what string, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		k.DisableInterrupts()
		ok := pred()
		k.EnableInterrupts()
		if ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRandDeterminism(t *testing.T) {
	clock := hal.NewClock()
	k := NewKernel(clock)

	// seed = 12345 at tick zero, so the first draw is always ticket 1.
	clock.Set(0)
	assert.Equal(t, 0, k.rand())
	assert.Equal(t, 1, k.draw(40))

	clock.Set(1)
	assert.Equal(t, 16838, k.rand())

	// Within one tick, successive draws repeat.
	assert.Equal(t, k.rand(), k.rand())
}

func TestLotteryDeterminism(t *testing.T) {
	clock := hal.NewClock()
	k := NewKernel(clock)

	// At tick zero the winning ticket is 1, so the first ready process in
	// table order wins whenever it holds more than one ticket.
	var order []string
	p1 := k.Spawn("p1", 70, func() { order = append(order, "p1") }) // 10 tickets
	p2 := k.Spawn("p2", 50, func() { order = append(order, "p2") }) // 30 tickets

	assert.Equal(t, 10, p1.Tickets)
	assert.Equal(t, 30, p2.Tickets)

	k.Join(p1)
	k.Join(p2)
	assert.Equal(t, []string{"p1", "p2"}, order)
}

func TestSpawnSeedsTickets(t *testing.T) {
	k := NewKernel(hal.NewClock())

	p := k.Spawn("p", 0, func() {})
	assert.Equal(t, -common.PrioUser+common.NormalizationValue, p.Tickets)
	assert.Equal(t, common.PrioUser, p.Priority)
	k.Join(p)
}

func TestCompensationFormula(t *testing.T) {
	k := NewKernel(hal.NewClock())

	// A process that used a quarter of its quantum has its tickets scaled
	// by four: 10 tickets earn 30 compensation tickets.
	p := &common.Process{Tickets: 10, Counter: 75, State: common.ProcRunning}
	k.DisableInterrupts()
	saved := k.curr
	k.curr = p
	k.addCompensation()
	k.curr = saved
	k.EnableInterrupts()
	assert.Equal(t, 30, p.Compensation)

	// No compensation for a full or an untouched quantum.
	p = &common.Process{Tickets: 10, Counter: 0, State: common.ProcRunning}
	k.DisableInterrupts()
	saved = k.curr
	k.curr = p
	k.addCompensation()
	k.curr = saved
	k.EnableInterrupts()
	assert.Equal(t, 0, p.Compensation)

	p = &common.Process{Tickets: 10, Counter: common.ProcQuantum, State: common.ProcRunning}
	k.DisableInterrupts()
	saved = k.curr
	k.curr = p
	k.addCompensation()
	k.curr = saved
	k.EnableInterrupts()
	assert.Equal(t, 0, p.Compensation)
}

func TestYieldCompensatesAndRedispatches(t *testing.T) {
	clock := hal.NewClock()
	k := NewKernel(clock)

	p := k.Spawn("p", 70, func() {
		// Burn a quarter of the quantum, then give up the processor. As
		// the only ready process we win the next lottery immediately,
		// which clears the compensation and recharges the quantum.
		for i := 0; i < 25; i++ {
			k.Tick()
		}
		k.Yield()
	})
	k.Join(p)

	assert.Equal(t, 0, p.Compensation)
	assert.Equal(t, common.ProcQuantum, p.Counter)
	assert.Equal(t, common.ProcZombie, p.State)
}

func TestStopResume(t *testing.T) {
	clock := hal.NewClock()
	k := NewKernel(clock)

	var child *common.Process
	childDone := false

	// burnQuantum uses up the whole quantum before yielding, so the
	// parent earns no compensation tickets and the child gets its fair
	// share of lottery wins.
	burnQuantum := func() {
		for i := 0; i < common.ProcQuantum; i++ {
			k.Tick()
		}
		k.Yield()
	}

	parent := k.Spawn("parent", 0, func() {
		self := k.Current()

		child = k.Spawn("child", 0, func() {
			k.Stop()
			childDone = true
		})

		// Wait for the child to stop itself.
		for i := 0; ; i++ {
			k.DisableInterrupts()
			stopped := child.State == common.ProcStopped
			k.EnableInterrupts()
			if stopped {
				break
			}
			if i > 1000 {
				t.Error("child never stopped")
				return
			}
			burnQuantum()
		}

		// Stopping notified us.
		k.DisableInterrupts()
		gotChld := self.Pending.Has(common.SIGCHLD)
		k.EnableInterrupts()
		if !gotChld {
			t.Error("no SIGCHLD from stopped child")
		}

		k.Resume(child)
		for i := 0; ; i++ {
			k.DisableInterrupts()
			done := childDone
			k.EnableInterrupts()
			if done {
				break
			}
			if i > 1000 {
				t.Error("child never resumed")
				return
			}
			burnQuantum()
		}
	})

	k.Join(parent)
	k.Join(child)
	assert.True(t, childDone)
	assert.Same(t, parent, child.Father)
}

func TestResumeOnlyStopped(t *testing.T) {
	k := NewKernel(hal.NewClock())

	p := &common.Process{State: common.ProcWaiting}
	k.Resume(p)
	assert.Equal(t, common.ProcWaiting, p.State)
}

func TestAlarmDeliversSigalrm(t *testing.T) {
	clock := hal.NewClock()
	k := NewKernel(clock)

	p := k.Spawn("p", 0, func() {
		self := k.Current()
		k.Alarm(5)
		for i := 0; i < 100; i++ {
			k.Tick()
			k.Yield()
			k.DisableInterrupts()
			fired := self.Pending.Has(common.SIGALRM)
			k.EnableInterrupts()
			if fired {
				return
			}
		}
		t.Error("alarm never fired")
	})
	k.Join(p)

	assert.True(t, p.Pending.Has(common.SIGALRM))
	assert.Equal(t, uint64(0), p.Alarm)
}

func TestWakeupReadiesAllSleepers(t *testing.T) {
	clock := hal.NewClock()
	k := NewKernel(clock)

	q := &common.WaitQueue{}
	done := make([]bool, 2)

	sleep := func(i int) func() {
		return func() {
			k.DisableInterrupts()
			k.Sleep(q, common.PrioBuffer)
			k.EnableInterrupts()
			done[i] = true
		}
	}
	s1 := k.Spawn("s1", 0, sleep(0))
	s2 := k.Spawn("s2", 0, sleep(1))

	waitFor(t, k, "both sleepers on the chain", func() bool {
		return q.Len() == 2
	})

	k.DisableInterrupts()
	k.Wakeup(q)
	require.True(t, q.Empty())
	k.EnableInterrupts()

	k.Join(s1)
	k.Join(s2)
	assert.True(t, done[0])
	assert.True(t, done[1])
}

func TestIdleFallback(t *testing.T) {
	k := NewKernel(hal.NewClock())

	p := k.Spawn("p", 0, func() {})
	k.Join(p)

	// With nobody runnable the processor belongs to the idle process.
	assert.Same(t, k.Idle(), k.Current())
}

func TestTickChargesQuantum(t *testing.T) {
	clock := hal.NewClock()
	k := NewKernel(clock)

	var counter int
	p := k.Spawn("p", 0, func() {
		k.Tick()
		k.Tick()
		k.DisableInterrupts()
		counter = k.curr.Counter
		k.EnableInterrupts()
	})
	k.Join(p)

	assert.Equal(t, common.ProcQuantum-2, counter)
	assert.Equal(t, uint64(2), clock.Ticks())
}
