// Package watchdog implements the fault isolator: a dedicated thread that
// wakes every five seconds and verifies the cycle thread is still alive,
// escalating to SIGKILL on its process group (and then the engine's own)
// if not.
package watchdog

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sentovic/jack1/logger"
	"github.com/sentovic/jack1/metrics"
)

// TickInterval is the watchdog's wake period (spec §4.8).
const TickInterval = 5 * time.Second

// Killer abstracts process-group SIGKILL so tests never send real signals.
type Killer interface {
	KillProcessGroup(pgid int) error
}

// UnixKiller sends SIGKILL via golang.org/x/sys/unix, grounded on the
// engine's own process-group escalation policy.
type UnixKiller struct{}

func (UnixKiller) KillProcessGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}

// Watchdog tracks the single liveness flag the cycle thread sets each
// period and fires the kill escalation when a tick passes with no
// observed liveness.
type Watchdog struct {
	live atomic.Bool

	Killer      Killer
	Log         logger.Logger
	Metrics     *metrics.Collector
	CurrentPGID func() int // the cycle thread's current client's process group, or 0
	EnginePGID  int
	Interval    time.Duration
	stop        chan struct{}
	done        chan struct{}
}

func New(killer Killer, log logger.Logger, m *metrics.Collector, enginePGID int) *Watchdog {
	return &Watchdog{
		Killer:      killer,
		Log:         log,
		Metrics:     m,
		EnginePGID:  enginePGID,
		Interval:    TickInterval,
		CurrentPGID: func() int { return 0 },
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// MarkLive is the hook the cycle executor calls at the start of every
// period (spec §4.4 step 1).
func (w *Watchdog) MarkLive() { w.live.Store(true) }

// Run blocks, checking liveness every Interval (TickInterval by default),
// until Stop is called or a check finds no liveness mark; in the latter
// case it fires the kill escalation and returns.
func (w *Watchdog) Run() {
	defer close(w.done)
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if w.live.Swap(false) {
				continue // cycle thread ticked since last check
			}
			w.fire()
			return
		}
	}
}

func (w *Watchdog) fire() {
	if w.Log != nil {
		w.Log.Error("watchdog: cycle thread stalled, escalating")
	}
	if w.Metrics != nil {
		w.Metrics.WatchdogStallTot.Inc()
	}
	if pgid := w.CurrentPGID(); pgid != 0 {
		_ = w.Killer.KillProcessGroup(pgid)
	}
	_ = w.Killer.KillProcessGroup(w.EnginePGID)
}

// Stop requests Run to return and waits for it to do so.
func (w *Watchdog) Stop() {
	close(w.stop)
	<-w.done
}
