// Package clock implements the engine's frame clock: a monotonically
// advancing frame counter paired with a wall-clock microsecond stamp,
// published through a two-guard-word sequence lock so the cycle thread's
// writer never blocks a concurrent reader.
package clock

import "sync/atomic"

// Snapshot is one consistent (frames, usecs) pair read from a FrameClock.
type Snapshot struct {
	Frames uint64
	Usecs  int64
}

// FrameClock is the lock-free writer/many-reader frame+timestamp record
// described by the engine's time record: guard1 and guard2 bracket the
// frames/usecs fields, and a reader retries until it observes a matching,
// even pair of guards.
type FrameClock struct {
	guard1 atomic.Uint64
	frames atomic.Uint64
	usecs  atomic.Int64
	guard2 atomic.Uint64
}

// New returns a FrameClock starting at frame zero and the given stamp.
func New(initialUsecs int64) *FrameClock {
	c := &FrameClock{}
	c.publish(0, initialUsecs)
	return c
}

func (c *FrameClock) publish(frames uint64, usecs int64) {
	g := c.guard1.Add(1) // now odd: writer in progress
	c.frames.Store(frames)
	c.usecs.Store(usecs)
	c.guard1.Store(g + 1) // even again: write complete
	c.guard2.Store(g + 1) // now even: matches guard1
}

// Advance moves the clock forward by nframes, stamping it with usecs.
// Only the cycle thread may call Advance.
func (c *FrameClock) Advance(nframes uint64, usecs int64) {
	c.publish(c.frames.Load()+nframes, usecs)
}

// Read returns the current (frames, usecs) pair. ok is false only in the
// vanishingly rare case the retry budget is exhausted under a writer that
// never quiesces; callers should treat that as "try again next call".
func (c *FrameClock) Read() (frames uint64, usecs int64, ok bool) {
	for i := 0; i < 100; i++ {
		g2 := c.guard2.Load()
		f := c.frames.Load()
		u := c.usecs.Load()
		g1 := c.guard1.Load()
		if g1 == g2 && g1%2 == 0 {
			return f, u, true
		}
	}
	return 0, 0, false
}

// Snapshot is a convenience wrapper over Read.
func (c *FrameClock) Snapshot() (Snapshot, bool) {
	f, u, ok := c.Read()
	return Snapshot{Frames: f, Usecs: u}, ok
}
