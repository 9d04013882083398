// Package port implements the port type registry and the fixed-capacity
// port table: a dense array of port descriptors indexed by port id, and a
// dedicated port-lock that guards the array (allocation and every field
// change made through the Table) and the type registry.
package port

import (
	"sync"

	"github.com/sentovic/jack1/errs"
)

// Flag is a bitmask of a port's directional/role attributes.
type Flag uint8

const (
	FlagInput Flag = 1 << iota
	FlagOutput
	FlagTerminal
	FlagPhysical
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// TypeID identifies a registered port type (e.g. "audio", "midi").
type TypeID uint16

// Type describes one port type: its buffer sizing policy and, optionally,
// a mixdown callback name that allows fan-in on destination ports of this
// type. A missing MixdownFn forbids more than one inbound connection.
type Type struct {
	ID           TypeID
	Name         string
	FixedBytes   int  // > 0 when the type uses a fixed buffer size
	ScaleFactor  int  // used when FixedBytes == 0: scale × period_frames × sample size
	SampleBytes  int
	HasMixdown   bool
}

// BufferSize returns the size in bytes of one buffer slot of this type for
// the given period length in frames.
func (t Type) BufferSize(periodFrames int) int {
	if t.FixedBytes > 0 {
		return t.FixedBytes
	}
	return t.ScaleFactor * periodFrames * t.SampleBytes
}

// Port is one descriptor in the port table.
type Port struct {
	ID             uint32
	TypeID         TypeID
	OwnerClientID  uint32
	Name           string
	Flags          Flag
	Latency        int
	TotalLatency   int
	BufferOffset   int
	Locked         bool
	MonitorRequest bool
	InUse          bool

	// Connections lists the ids of ports this one connects to: for an
	// output port, its destinations; for an input port, its (at most one,
	// unless the type has a mixdown) sources.
	Connections []uint32
}

// Table is the fixed-capacity, port_max-bounded port array described by
// the engine's data model. Allocation is a linear scan under lock.
type Table struct {
	mu    sync.Mutex
	ports []Port
	types map[TypeID]Type
}

// NewTable allocates a table with capacity max (the configured port_max).
func NewTable(max int) *Table {
	return &Table{ports: make([]Port, max), types: make(map[TypeID]Type)}
}

// RegisterType adds typ to the set of types Register will accept.
func (t *Table) RegisterType(typ Type) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.types[typ.ID] = typ
}

// TypeByID returns the registered type with the given id.
func (t *Table) TypeByID(id TypeID) (Type, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	typ, ok := t.types[id]
	return typ, ok
}

// Types returns every registered type, in no particular order.
func (t *Table) Types() []Type {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Type, 0, len(t.types))
	for _, typ := range t.types {
		out = append(out, typ)
	}
	return out
}

// Register finds the first free slot, fills it in, and returns the new
// port's id. Errors with NoFreePortSlot when the table is full, or with
// UnknownPortType when typeID names no registered type.
func (t *Table) Register(typeID TypeID, ownerClientID uint32, name string, flags Flag) (*Port, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.types[typeID]; !ok {
		return nil, errs.UnknownPortType.Errorf(nil, "unknown port type %d for port %q", typeID, name)
	}

	for i := range t.ports {
		if t.ports[i].InUse {
			continue
		}
		t.ports[i] = Port{
			ID:            uint32(i),
			TypeID:        typeID,
			OwnerClientID: ownerClientID,
			Name:          name,
			Flags:         flags,
			InUse:         true,
		}
		return &t.ports[i], nil
	}
	return nil, errs.NoFreePortSlot.Errorf(nil, "no free slot for port %q", name)
}

// Unregister frees the slot at id if callerClientID owns it.
func (t *Table) Unregister(id uint32, callerClientID uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if int(id) >= len(t.ports) || !t.ports[id].InUse {
		return errs.PortDoesNotExist.Errorf(nil, "port %d does not exist", id)
	}
	if t.ports[id].OwnerClientID != callerClientID {
		return errs.OwnerMismatch.Errorf(nil, "client %d does not own port %d", callerClientID, id)
	}
	t.ports[id] = Port{}
	return nil
}

// Capacity returns the table's fixed port_max slot count.
func (t *Table) Capacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ports)
}

// Get returns a copy of the port at id.
func (t *Table) Get(id uint32) (Port, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(id) >= len(t.ports) || !t.ports[id].InUse {
		return Port{}, false
	}
	return t.ports[id], true
}

// Mutate applies fn to the live port at id while holding the port lock.
func (t *Table) Mutate(id uint32, fn func(*Port)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(id) >= len(t.ports) || !t.ports[id].InUse {
		return false
	}
	fn(&t.ports[id])
	return true
}

// FindByName does a linear scan for a port owned by anyone with this name.
func (t *Table) FindByName(name string) (Port, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.ports {
		if p.InUse && p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// All returns a snapshot copy of every in-use port.
func (t *Table) All() []Port {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Port, 0, len(t.ports))
	for _, p := range t.ports {
		if p.InUse {
			out = append(out, p)
		}
	}
	return out
}

// ReleaseOwnedBy frees every port owned by clientID, returning their ids.
func (t *Table) ReleaseOwnedBy(clientID uint32) []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var freed []uint32
	for i := range t.ports {
		if t.ports[i].InUse && t.ports[i].OwnerClientID == clientID {
			freed = append(freed, t.ports[i].ID)
			t.ports[i] = Port{}
		}
	}
	return freed
}
