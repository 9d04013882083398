package driver

import "sync/atomic"

// NullDriver is a deterministic test double: Wait returns a fixed period
// and zero delay until told to do otherwise.
type NullDriver struct {
	periodUsecs  int64
	nframes      uint32
	delayedUsecs atomic.Int64
	waitStatus   atomic.Int32
	stopped      atomic.Bool
	nullCycles   atomic.Int32
	writes       atomic.Int32
	reads        atomic.Int32
	starts       atomic.Int32
	stops        atomic.Int32
}

func NewNullDriver(nframes uint32, periodUsecs int64) *NullDriver {
	return &NullDriver{nframes: nframes, periodUsecs: periodUsecs}
}

func (d *NullDriver) Attach() error { return nil }
func (d *NullDriver) Detach() error { return nil }

func (d *NullDriver) Start() error {
	d.starts.Add(1)
	d.stopped.Store(false)
	return nil
}

func (d *NullDriver) Stop() error {
	d.stops.Add(1)
	d.stopped.Store(true)
	return nil
}

func (d *NullDriver) Read(nframes uint32) error  { d.reads.Add(1); return nil }
func (d *NullDriver) Write(nframes uint32) error { d.writes.Add(1); return nil }

func (d *NullDriver) Wait() (uint32, int32, int64) {
	return d.nframes, d.waitStatus.Load(), d.delayedUsecs.Load()
}

func (d *NullDriver) NullCycle(nframes uint32) error {
	d.nullCycles.Add(1)
	return nil
}

func (d *NullDriver) PeriodUsecs() int64 { return d.periodUsecs }

// SetDelayedUsecs lets a test inject a cycle delay for the delay-restart
// scenario.
func (d *NullDriver) SetDelayedUsecs(v int64) { d.delayedUsecs.Store(v) }

func (d *NullDriver) NullCycleCount() int32 { return d.nullCycles.Load() }
func (d *NullDriver) WriteCount() int32     { return d.writes.Load() }
func (d *NullDriver) StartCount() int32     { return d.starts.Load() }
func (d *NullDriver) StopCount() int32      { return d.stops.Load() }
func (d *NullDriver) IsStopped() bool       { return d.stopped.Load() }
