// Package request implements the request plane: a single request_lock
// serializing every graph-mutating operation, with one handler per
// request kind from spec §4.5/§7.
package request

import (
	"sync"

	"github.com/sentovic/jack1/engine/buffer"
	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/event"
	"github.com/sentovic/jack1/engine/graph"
	"github.com/sentovic/jack1/engine/port"
	"github.com/sentovic/jack1/errs"
)

// Kind enumerates the request kinds spec §4.5 names.
type Kind uint8

const (
	RegisterPort Kind = iota
	UnRegisterPort
	ConnectPorts
	DisconnectPort
	DisconnectPorts
	ActivateClient
	DeactivateClient
	SetTimeBaseClient
	SetClientCapabilities
	GetPortConnections
	GetPortNConnections
	Reconfigure
)

// Resorter is implemented by whatever owns the live client list (normally
// engine/cycle's executor); handlers call it after any structural change.
type Resorter interface {
	Resort()
}

// Planes bundles the state handlers mutate: the port table, the client
// registry, and the event dispatcher used to broadcast the resulting
// notifications.
type Planes struct {
	Ports    *port.Table
	Clients  *client.Registry
	Events   *event.Dispatcher
	Resort   Resorter
	Pools    map[port.TypeID]*buffer.Pool
	mu       sync.Mutex // request_lock

	periodFrames int
	sampleRate   int
}

func NewPlanes(ports *port.Table, clients *client.Registry, events *event.Dispatcher, resort Resorter, periodFrames, sampleRate int) *Planes {
	return &Planes{
		Ports:        ports,
		Clients:      clients,
		Events:       events,
		Resort:       resort,
		Pools:        make(map[port.TypeID]*buffer.Pool),
		periodFrames: periodFrames,
		sampleRate:   sampleRate,
	}
}

// SetPool registers typeID's shared port-buffer pool so Reconfigure can
// resize it on a runtime buffer-size change.
func (p *Planes) SetPool(typeID port.TypeID, pool *buffer.Pool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Pools[typeID] = pool
}

// RegisterPort allocates a port and broadcasts PortRegistered.
func (p *Planes) RegisterPort(typeID port.TypeID, clientID uint32, name string, flags port.Flag) (*port.Port, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.Clients.Get(clientID)
	if !ok {
		return nil, errs.ClientNotFound.Errorf(nil, "client %d not found", clientID)
	}

	pt, err := p.Ports.Register(typeID, clientID, name, flags)
	if err != nil {
		return nil, err
	}
	c.Ports = append(c.Ports, pt.ID)

	p.Events.Broadcast(event.Event{Type: event.PortRegistered, PortA: pt.ID})
	return pt, nil
}

// UnRegisterPort releases a port and broadcasts PortUnregistered.
func (p *Planes) UnRegisterPort(portID, callerClientID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.disconnectAllLocked(portID); err != nil {
		return err
	}
	if err := p.Ports.Unregister(portID, callerClientID); err != nil {
		return err
	}
	p.Events.Broadcast(event.Event{Type: event.PortUnregistered, PortA: portID})
	return nil
}

// ConnectPorts validates the preconditions from spec §4.5 and links the
// two ports, broadcasting PortConnected and resorting the graph.
func (p *Planes) ConnectPorts(srcID, dstID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	src, ok := p.Ports.Get(srcID)
	if !ok {
		return errs.PortDoesNotExist.Errorf(nil, "source port %d does not exist", srcID)
	}
	dst, ok := p.Ports.Get(dstID)
	if !ok {
		return errs.PortDoesNotExist.Errorf(nil, "destination port %d does not exist", dstID)
	}
	if !dst.Flags.Has(port.FlagInput) {
		return errs.PortFlagMismatch.Errorf(nil, "port %d is not an input", dstID)
	}
	if !src.Flags.Has(port.FlagOutput) {
		return errs.PortFlagMismatch.Errorf(nil, "port %d is not an output", srcID)
	}
	if src.Locked || dst.Locked {
		return errs.PortLocked.Errorf(nil, "port %d or %d is locked", srcID, dstID)
	}
	if src.TypeID != dst.TypeID {
		return errs.PortTypeMismatch.Errorf(nil, "port %d and %d differ in type", srcID, dstID)
	}
	srcOwner, ok := p.Clients.Get(src.OwnerClientID)
	if !ok || !srcOwner.Active {
		return errs.ClientNotActive.Errorf(nil, "source owner not active")
	}
	dstOwner, ok := p.Clients.Get(dst.OwnerClientID)
	if !ok || !dstOwner.Active {
		return errs.ClientNotActive.Errorf(nil, "destination owner not active")
	}
	typ, ok := p.Ports.TypeByID(dst.TypeID)
	if !ok {
		return errs.UnknownPortType.Errorf(nil, "unknown port type %d", dst.TypeID)
	}
	if len(dst.Connections) > 0 && !typ.HasMixdown {
		return errs.DuplicateConnection.Errorf(nil, "port %d already connected, type has no mixdown", dstID)
	}

	p.Ports.Mutate(srcID, func(pp *port.Port) { pp.Connections = append(pp.Connections, dstID) })
	p.Ports.Mutate(dstID, func(pp *port.Port) { pp.Connections = append(pp.Connections, srcID) })

	p.Events.Broadcast(event.Event{Type: event.PortConnected, PortA: srcID, PortB: dstID})
	p.Resort.Resort()
	return nil
}

// DisconnectPort removes one specific connection between two ports.
func (p *Planes) DisconnectPort(srcID, dstID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnectOneLocked(srcID, dstID)
}

func (p *Planes) disconnectOneLocked(srcID, dstID uint32) error {
	removed := false
	p.Ports.Mutate(srcID, func(pp *port.Port) { pp.Connections, removed = removeID(pp.Connections, dstID) })
	p.Ports.Mutate(dstID, func(pp *port.Port) { pp.Connections, _ = removeID(pp.Connections, srcID) })
	if !removed {
		return errs.PortDoesNotExist.Errorf(nil, "no connection between %d and %d", srcID, dstID)
	}
	p.Events.Broadcast(event.Event{Type: event.PortDisconnected, PortA: srcID, PortB: dstID})
	p.Resort.Resort()
	return nil
}

// DisconnectPorts wipes every connection of portID atomically (spec:
// "Disconnect-all wipes all of a port's connections atomically and
// resorts").
func (p *Planes) DisconnectPorts(portID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.disconnectAllLocked(portID); err != nil {
		return err
	}
	p.Resort.Resort()
	return nil
}

func (p *Planes) disconnectAllLocked(portID uint32) error {
	pp, ok := p.Ports.Get(portID)
	if !ok {
		return errs.PortDoesNotExist.Errorf(nil, "port %d does not exist", portID)
	}
	peers := append([]uint32(nil), pp.Connections...)
	for _, peer := range peers {
		p.Ports.Mutate(peer, func(q *port.Port) { q.Connections, _ = removeID(q.Connections, portID) })
		p.Events.Broadcast(event.Event{Type: event.PortDisconnected, PortA: portID, PortB: peer})
	}
	p.Ports.Mutate(portID, func(q *port.Port) { q.Connections = nil })
	return nil
}

func removeID(s []uint32, id uint32) ([]uint32, bool) {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...), true
		}
	}
	return s, false
}

// ActivateClient allocates the client's FIFO chain slot and resorts.
func (p *Planes) ActivateClient(clientID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.Clients.Activate(clientID); err != nil {
		return err
	}
	p.Resort.Resort()
	return nil
}

// DeactivateClient clears the client's connections, then resorts.
func (p *Planes) DeactivateClient(clientID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.Clients.Get(clientID)
	if !ok {
		return errs.ClientNotFound.Errorf(nil, "client %d not found", clientID)
	}
	for _, portID := range c.Ports {
		_ = p.disconnectAllLocked(portID)
	}
	if err := p.Clients.Deactivate(clientID); err != nil {
		return err
	}
	p.Resort.Resort()
	return nil
}

// SetTimeBaseClient assigns the timebase role.
func (p *Planes) SetTimeBaseClient(clientID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Clients.SetTimebase(clientID)
}

// Reconfigure changes the active period size and/or sample rate at
// runtime (spec §8 scenario 6). A period-size change resizes every
// registered pool's segment, rebuilds its free list in offset order
// (re-reserving and zeroing the primary type's silent slot), and
// broadcasts one BufferSizeChange plus one NewPortType per port type; a
// sample-rate change alone broadcasts SampleRateChange. Either, both, or
// neither may fire depending on what actually changed.
func (p *Planes) Reconfigure(periodFrames, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false

	if periodFrames > 0 && periodFrames != p.periodFrames {
		nports := p.Ports.Capacity()
		for _, pool := range p.Pools {
			if err := pool.Resize(nports, periodFrames); err != nil {
				return err
			}
		}
		p.periodFrames = periodFrames
		changed = true

		p.Events.Broadcast(event.Event{Type: event.BufferSizeChange, NFrames: uint32(periodFrames)})
		for _, typ := range p.Ports.Types() {
			p.Events.Broadcast(event.Event{Type: event.NewPortType, PortA: uint32(typ.ID), NFrames: uint32(typ.ScaleFactor)})
		}
	}

	if sampleRate > 0 && sampleRate != p.sampleRate {
		p.sampleRate = sampleRate
		changed = true
		p.Events.Broadcast(event.Event{Type: event.SampleRateChange, NFrames: uint32(sampleRate)})
	}

	if changed {
		p.Resort.Resort()
	}
	return nil
}

// GetPortConnections returns the ids of every port connected to portID.
// It only returns data: engine/server sends the list inside the generic
// RequestReply (status, port id, count, connection list), and there is no
// separate payload-only write path that suppresses that envelope.
func (p *Planes) GetPortConnections(portID uint32) ([]uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pp, ok := p.Ports.Get(portID)
	if !ok {
		return nil, errs.PortDoesNotExist.Errorf(nil, "port %d does not exist", portID)
	}
	return append([]uint32(nil), pp.Connections...), nil
}

// GetPortNConnections returns the connection count, the cheaper sibling
// of GetPortConnections used when clients only need a count.
func (p *Planes) GetPortNConnections(portID uint32) (int, error) {
	conns, err := p.GetPortConnections(portID)
	if err != nil {
		return 0, err
	}
	return len(conns), nil
}

// graphEdges reconstructs the Edge list the graph builder needs from the
// current port table.
func graphEdges(ports *port.Table) []graph.Edge {
	var edges []graph.Edge
	for _, pp := range ports.All() {
		if !pp.Flags.Has(port.FlagOutput) {
			continue
		}
		for _, dst := range pp.Connections {
			edges = append(edges, graph.Edge{SourcePort: pp.ID, DestPort: dst})
		}
	}
	return edges
}

// GraphEdges exports graphEdges. engine/cycle's executor builds its edge
// list with its own edgesFromPorts and does not call it.
func GraphEdges(ports *port.Table) []graph.Edge { return graphEdges(ports) }
