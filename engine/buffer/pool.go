package buffer

import (
	"fmt"
	"sync"

	"github.com/sentovic/jack1/engine/port"
	"github.com/sentovic/jack1/errs"
)

// SilentSlot is the offset of the reserved, always-zero slot of the
// primary audio type's pool; any unconnected input port reads from it.
const SilentSlot = 0

// Pool is one port type's shared segment plus its free list. The free
// list is guarded by a mutex distinct from the graph lock, matching the
// engine's lock hierarchy (buffer_lock nests under port_lock).
type Pool struct {
	mu sync.Mutex

	typ       port.Type
	prov      Provisioner
	seg       Segment
	slotSize  int
	free      []int // offsets, FIFO order
	isPrimary bool
}

// NewPool creates a pool for typ sized for nports slots at periodFrames,
// reserving slot 0 as the silent buffer when isPrimary is true.
func NewPool(prov Provisioner, typ port.Type, nports, periodFrames int, isPrimary bool) (*Pool, error) {
	p := &Pool{typ: typ, prov: prov, isPrimary: isPrimary}
	if err := p.resizeLocked(nports, periodFrames); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool) resizeLocked(nports, periodFrames int) error {
	p.slotSize = p.typ.BufferSize(periodFrames)
	total := p.slotSize * nports

	seg, err := p.prov.Create(fmt.Sprintf("/jck-[%s]", p.typ.Name), total)
	if err != nil {
		return err
	}
	if p.seg != nil {
		_ = p.seg.Close()
	}
	p.seg = seg

	p.free = p.free[:0]
	start := 0
	if p.isPrimary {
		start = 1 // slot 0 reserved as silent buffer
	}
	for i := start; i < nports; i++ {
		p.free = append(p.free, i*p.slotSize)
	}
	return nil
}

// Resize rebuilds the segment and free list in ascending offset order for
// a changed buffer size or port count, re-reserving and zeroing the
// silent slot when this is the primary type.
func (p *Pool) Resize(nports, periodFrames int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.resizeLocked(nports, periodFrames); err != nil {
		return err
	}
	if p.isPrimary {
		b := p.seg.Bytes()
		for i := 0; i < p.slotSize; i++ {
			b[i] = 0
		}
	}
	return nil
}

// Acquire pops the head of the free list (FIFO allocation policy).
func (p *Pool) Acquire() (offset int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return 0, false
	}
	offset = p.free[0]
	p.free = p.free[1:]
	return offset, true
}

// Release returns offset to the head of the free list.
func (p *Pool) Release(offset int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append([]int{offset}, p.free...)
}

// SegmentName, SlotSize, and Bytes expose what the NewPortType event needs
// to describe the segment to clients.
func (p *Pool) SegmentName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seg.Name()
}

func (p *Pool) SlotSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slotSize
}

func (p *Pool) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seg.Bytes()
}

// SlotAt returns the byte slice for the buffer at offset.
func (p *Pool) SlotAt(offset int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seg.Bytes()[offset : offset+p.slotSize]
}

// FreeCount reports the number of unallocated slots, for tests asserting
// that no two output ports ever hold the same offset.
func (p *Pool) FreeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

var errNoFreeBuffer = errs.InternalLoadFailure.Errorf(nil, "no free buffer slot")

// MustAcquire is Acquire with the pool-exhaustion error spec §4.1 implies
// (a port type configured with fewer slots than port_max).
func (p *Pool) MustAcquire() (int, error) {
	off, ok := p.Acquire()
	if !ok {
		return 0, errNoFreeBuffer
	}
	return off, nil
}
