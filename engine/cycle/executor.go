// Package cycle implements the cycle executor: the per-period
// orchestrator that walks the sorted client list, signals external
// subgraphs, invokes in-process clients inline, and advances the frame
// clock under the try-locked graph lock.
package cycle

import (
	"os"
	"sync"
	"time"

	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/clock"
	"github.com/sentovic/jack1/engine/driver"
	"github.com/sentovic/jack1/engine/event"
	"github.com/sentovic/jack1/engine/fifo"
	"github.com/sentovic/jack1/engine/graph"
	"github.com/sentovic/jack1/engine/port"
	"github.com/sentovic/jack1/logger"
	"github.com/sentovic/jack1/metrics"
)

// FIFOInstaller is implemented by Signalers (FIFOSignaler in production)
// that need the chain's named pipes opened and handed to them whenever
// Rechain grows the FIFO count.
type FIFOInstaller interface {
	Install(n int, f *os.File)
}

// WorkScale is the spare-budget multiplier spec §4.4 step 2 checks
// delayed_usecs against.
const WorkScale = 0.25

// MaxConsecutiveDelays is the count of over-budget cycles that makes the
// cycle thread exit (spec §4.4 step 2 / §8 scenario 5).
const MaxConsecutiveDelays = 11

// ProcessFn is an in-process client's per-cycle callback.
type ProcessFn func(nframes uint32) error

// ErrExitMainLoop signals the cycle thread should stop, per spec §4.4
// step 2's eleventh consecutive over-budget cycle.
type ErrExitMainLoop struct{ Reason string }

func (e ErrExitMainLoop) Error() string { return "cycle: exit main loop: " + e.Reason }

// Executor is the per-period orchestrator described by spec §4.4.
type Executor struct {
	Clients *client.Registry
	Ports   *port.Table
	Events  *event.Dispatcher
	Clock   *clock.FrameClock
	Driver  driver.Driver
	Signal  Signaler
	Metrics *metrics.Collector
	Log     logger.Logger

	Realtime        bool
	ClientTimeoutMs int
	SpareUsecs      int64

	// ServerDir and PID locate the per-client FIFOs a FIFOInstaller
	// Signaler needs created before a reorder event goes out.
	ServerDir string
	PID       int

	graphMu sync.Mutex // the graph / client_lock, try-locked here

	sorted            []*client.Client
	inProcessFns      map[uint32]ProcessFn
	consecutiveDelays int
	cpuLoad           *driver.RollingCPULoad
	fifoCount         int

	onLive func() // watchdog liveness hook
}

func NewExecutor(reg *client.Registry, ports *port.Table, ev *event.Dispatcher, clk *clock.FrameClock, drv driver.Driver, sig Signaler, m *metrics.Collector, log logger.Logger) *Executor {
	return &Executor{
		Clients:         reg,
		Ports:           ports,
		Events:          ev,
		Clock:           clk,
		Driver:          drv,
		Signal:          sig,
		Metrics:         m,
		Log:             log,
		ClientTimeoutMs: 500,
		cpuLoad:         driver.NewRollingCPULoad(1000, drv.PeriodUsecs()),
		inProcessFns:    make(map[uint32]ProcessFn),
	}
}

// OnLive installs the watchdog liveness callback (spec §4.4 step 1).
func (e *Executor) OnLive(fn func()) { e.onLive = fn }

// RegisterInProcess wires an in-process client's process callback.
func (e *Executor) RegisterInProcess(clientID uint32, fn ProcessFn) {
	e.inProcessFns[clientID] = fn
}

// Resort recomputes fed_by, the topological order, and the FIFO chain
// assignment; it is the engine/request.Resorter this executor implements.
func (e *Executor) Resort() {
	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	e.resortLocked()
}

func (e *Executor) resortLocked() {
	edges := edgesFromPorts(e.Ports)
	fedBy := graph.TraceTerminal(graph.DirectFeeds(edges, e.Ports))
	graph.ApplyFedBy(e.Clients, fedBy)
	e.sorted = graph.Sort(e.Clients.All())
	n := graph.Rechain(e.sorted)
	e.ensureFIFOsLocked(n)

	for _, p := range e.Ports.All() {
		total := graph.TotalLatency(p, e.Ports)
		e.Ports.Mutate(p.ID, func(pp *port.Port) { pp.TotalLatency = total })
	}

	for _, c := range e.sorted {
		_ = e.Events.DeliverTo(c.ID, event.Event{Type: event.GraphReordered, NFrames: uint32(c.ExecutionOrder)})
	}
}

// ensureFIFOsLocked pre-creates FIFO slots up to n (one beyond the
// highest in-use chain slot), matching spec §4.3's "FIFO execution_order+1
// is pre-created before the reorder event is delivered so that clients
// never race to open it." It is a no-op when ServerDir is unset (tests
// that drive a fake Signaler directly).
func (e *Executor) ensureFIFOsLocked(n int) {
	if e.ServerDir == "" {
		return
	}
	installer, ok := e.Signal.(FIFOInstaller)
	if !ok {
		return
	}
	for k := e.fifoCount; k <= n; k++ {
		path := fifo.Path(e.ServerDir, e.PID, k)
		if err := fifo.Create(path); err != nil {
			if e.Log != nil {
				e.Log.Error("create fifo failed", logger.Fields{"path": path, "error": err.Error()})
			}
			continue
		}
		f, err := fifo.OpenNonBlocking(path)
		if err != nil {
			if e.Log != nil {
				e.Log.Error("open fifo failed", logger.Fields{"path": path, "error": err.Error()})
			}
			continue
		}
		installer.Install(k, f)
	}
	if n+1 > e.fifoCount {
		e.fifoCount = n + 1
	}
}

func edgesFromPorts(ports *port.Table) []graph.Edge {
	var edges []graph.Edge
	for _, p := range ports.All() {
		if !p.Flags.Has(port.FlagOutput) {
			continue
		}
		for _, dst := range p.Connections {
			edges = append(edges, graph.Edge{SourcePort: p.ID, DestPort: dst})
		}
	}
	return edges
}

// RunCycle executes one driver period, following spec §4.4 steps 1-10.
func (e *Executor) RunCycle(nframes uint32, delayedUsecs int64) error {
	if e.onLive != nil {
		e.onLive()
	}

	if e.Realtime && float64(e.SpareUsecs)*WorkScale <= float64(delayedUsecs) {
		e.consecutiveDelays++
		if e.consecutiveDelays >= MaxConsecutiveDelays {
			return ErrExitMainLoop{Reason: "too many consecutive over-budget cycles"}
		}
		_ = e.Driver.Stop()
		e.Events.Broadcast(event.Event{Type: event.XRun, NFrames: nframes})
		if e.Metrics != nil {
			e.Metrics.XRunTotal.Inc()
		}
		_ = e.Driver.Start()
		return nil
	}
	e.consecutiveDelays = 0

	e.Clock.Advance(uint64(nframes), driver.NowUsecs())

	if !e.graphMu.TryLock() {
		_ = e.Driver.NullCycle(nframes)
		return nil
	}
	defer e.graphMu.Unlock()

	if err := e.Driver.Read(nframes); err != nil {
		return err
	}

	processErr := e.runClientsLocked(nframes)

	restart := false
	if processErr != nil {
		_ = e.Driver.Stop()
		restart = true
	} else if err := e.Driver.Write(nframes); err != nil {
		_ = e.Driver.Stop()
		restart = true
	}

	e.postProcessLocked(nframes)

	if restart {
		_ = e.Driver.Start()
	}
	return nil
}

func (e *Executor) runClientsLocked(nframes uint32) error {
	for i := 0; i < len(e.sorted); i++ {
		c := e.sorted[i]
		c.State = client.NotTriggered
		c.TimedOut = 0

		if !c.Active || c.Dead {
			continue
		}

		switch c.Kind {
		case client.KindInProcess, client.KindDriver:
			c.State = client.Running
			if fn, ok := e.inProcessFns[c.ID]; ok {
				if err := fn(nframes); err != nil {
					c.ErrorCount++
					return err
				}
			}
			c.State = client.Finished

		default: // external
			if c.ExecutionOrder != c.SubgraphStartFD {
				continue // non-head member of the run, already covered below
			}

			// Find the run's terminator: the last contiguous external
			// member sharing this start_fd. Rechain only assigns a real
			// SubgraphWaitFD to that terminator, so a multi-member run
			// must await on it rather than on the head.
			terminator := c
			j := i
			for j+1 < len(e.sorted) {
				next := e.sorted[j+1]
				if next.Kind == client.KindInProcess || next.Kind == client.KindDriver || next.SubgraphStartFD != c.SubgraphStartFD {
					break
				}
				terminator = next
				j++
			}

			if err := e.runSubgraphLocked(c, terminator); err != nil {
				return err
			}
			// advance cursor past the rest of this run
			for i < j {
				i++
				e.sorted[i].State = client.Finished
			}
		}
	}
	return nil
}

func (e *Executor) runSubgraphLocked(head, terminator *client.Client) error {
	head.State = client.Triggered
	head.SignalledAt = driver.NowUsecs()
	head.AwakeAt = 0
	head.FinishedAt = 0

	if err := e.Signal.Signal(head.SubgraphStartFD); err != nil {
		head.ErrorCount++
		return err
	}

	timeout := time.Duration(e.ClientTimeoutMs) * time.Millisecond
	if e.Realtime {
		timeout = time.Duration(e.Driver.PeriodUsecs()) * time.Microsecond
	}

	res, err := e.Signal.Await(terminator.SubgraphWaitFD, timeout)
	switch res {
	case WaitError:
		if e.Log != nil {
			e.Log.Warn("lost client", logger.Fields{"client": terminator.Name})
		}
		terminator.ErrorCount++
		return err
	case WaitTimeout:
		if terminator.AwakeAt > 0 {
			terminator.TimedOut++
		}
		// scheduler-fault timeouts (AwakeAt == 0) are forgiven, per spec.
		return nil
	default:
		head.State = client.Finished
		terminator.State = client.Finished
		terminator.FinishedAt = driver.NowUsecs()
		return nil
	}
}

func (e *Executor) postProcessLocked(nframes uint32) {
	for _, c := range e.sorted {
		if (c.State == client.Triggered || c.State == client.Running) && c.AwakeAt > 0 {
			c.TimedOut++
			if c.TimedOut > 1 {
				c.ErrorCount++
			}
		}
	}

	for _, c := range e.Clients.All() {
		switch {
		case c.ErrorCount >= client.ErrorWithSockets:
			_ = e.Clients.Zombify(c.ID)
			_ = e.Clients.Remove(c.ID)
			if e.Metrics != nil {
				e.Metrics.ClientsRemoved.Inc()
			}
		case c.ErrorCount > 0 && !c.Dead:
			_ = e.Clients.Zombify(c.ID)
			if e.Metrics != nil {
				e.Metrics.ClientsZombified.Inc()
			}
		}
	}

	_, usecs, ok := e.Clock.Read()
	if ok {
		e.cpuLoad.Sample(driver.NowUsecs()-usecs, e.Driver.PeriodUsecs())
		if e.Metrics != nil {
			e.Metrics.SetCPULoad(e.cpuLoad.Average())
		}
	}
}
