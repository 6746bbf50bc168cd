package bcache

import "github.com/prometheus/client_golang/prometheus"

// Stats counts the cache's operations. The counters are plain prometheus
// counters so a kernel embedding the cache can surface them; they work
// unregistered as well.
type Stats struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	LockWaits prometheus.Counter
	Starved   prometheus.Counter
	DevReads  prometheus.Counter
	DevWrites prometheus.Counter
}

func newStats() *Stats {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nanvix",
			Subsystem: "bcache",
			Name:      name,
			Help:      help,
		})
	}
	return &Stats{
		Hits:      counter("hits_total", "Block lookups satisfied from the cache."),
		Misses:    counter("misses_total", "Block lookups that recycled a free buffer."),
		LockWaits: counter("lock_waits_total", "Times a process slept on a locked buffer."),
		Starved:   counter("starved_total", "Times a process slept waiting for any free buffer."),
		DevReads:  counter("device_reads_total", "Synchronous block reads issued to drivers."),
		DevWrites: counter("device_writes_total", "Synchronous block writes issued to drivers."),
	}
}

// MustRegister registers every counter with a prometheus registerer.
func (s *Stats) MustRegister(r prometheus.Registerer) {
	r.MustRegister(s.Hits, s.Misses, s.LockWaits, s.Starved, s.DevReads, s.DevWrites)
}
