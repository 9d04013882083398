// Package metrics exposes the engine's runtime health as Prometheus
// metrics, grounded on the teacher's prometheus package (client_golang
// collectors registered against a caller-supplied registry rather than the
// global default one).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentovic/jack1/atomic"
)

// Collector holds the engine's metrics. The cycle executor updates the
// CPU-load, xrun and client counters and the watchdog the stall counter;
// CycleDurationUsec is registered but no engine code observes it.
type Collector struct {
	CPULoad           prometheus.Gauge
	XRunTotal         prometheus.Counter
	WatchdogStallTot  prometheus.Counter
	ClientsZombified  prometheus.Counter
	ClientsRemoved    prometheus.Counter
	CycleDurationUsec prometheus.Histogram

	// lastCPULoad mirrors CPULoad's current value for readers that cannot
	// use the Prometheus scrape path (a handshake reply, a status log
	// line): prometheus.Gauge has no getter, so the cycle executor's
	// SetCPULoad keeps this lock-free copy in sync alongside it.
	lastCPULoad atomic.Value[float64]
}

// New builds a Collector with an engine-scoped namespace. It does not
// register the metrics; call Register to attach them to a registry.
func New() *Collector {
	return &Collector{
		CPULoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jack1",
			Subsystem: "engine",
			Name:      "cpu_load_ratio",
			Help:      "Rolling average of measured cycle time over period time.",
		}),
		XRunTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jack1",
			Subsystem: "engine",
			Name:      "xrun_total",
			Help:      "Number of XRun events broadcast to clients.",
		}),
		WatchdogStallTot: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jack1",
			Subsystem: "engine",
			Name:      "watchdog_stall_total",
			Help:      "Number of times the watchdog detected a stalled cycle thread.",
		}),
		ClientsZombified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jack1",
			Subsystem: "engine",
			Name:      "clients_zombified_total",
			Help:      "Number of clients marked dead by the fault isolator.",
		}),
		ClientsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jack1",
			Subsystem: "engine",
			Name:      "clients_removed_total",
			Help:      "Number of clients fully removed from the registry.",
		}),
		CycleDurationUsec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "jack1",
			Subsystem: "engine",
			Name:      "cycle_duration_usec",
			Help:      "Wall-clock duration of a single driver cycle, in microseconds.",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 14),
		}),
		lastCPULoad: atomic.NewValue[float64](),
	}
}

// SetCPULoad updates both the Prometheus gauge and the lock-free cached
// copy LastCPULoad reads.
func (c *Collector) SetCPULoad(v float64) {
	c.CPULoad.Set(v)
	c.lastCPULoad.Store(v)
}

// LastCPULoad returns the most recently sampled CPU load ratio without
// going through the Prometheus scrape path.
func (c *Collector) LastCPULoad() float64 {
	return c.lastCPULoad.Load()
}

// Register attaches every metric in c to reg.
func (c *Collector) Register(reg *prometheus.Registry) error {
	for _, m := range []prometheus.Collector{
		c.CPULoad, c.XRunTotal, c.WatchdogStallTot,
		c.ClientsZombified, c.ClientsRemoved, c.CycleDurationUsec,
	} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}
