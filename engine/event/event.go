// Package event implements the event plane: direct-call dispatch for
// in-process clients, write/read-ack over event_fd for external ones.
package event

import (
	"io"

	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/errs"
)

// Type enumerates the event kinds spec §4.6 names.
type Type uint8

const (
	PortRegistered Type = iota
	PortUnregistered
	PortConnected
	PortDisconnected
	BufferSizeChange
	SampleRateChange
	GraphReordered
	XRun
	NewPortType
)

// Event is one record on the event plane; which fields carry meaning
// depends on Type (a port id pair, a frame count, or a segment description).
type Event struct {
	Type    Type
	PortA   uint32
	PortB   uint32
	NFrames uint32
	ShmName string
	ShmSize int
}

// InProcessSink receives events destined for an in-process client via
// direct function call rather than a socket round trip.
type InProcessSink interface {
	HandleEvent(Event) error
}

// Dispatcher delivers events to every active client, incrementing the
// client's error counter on any failure per spec §4.6. It must be called
// with the graph lock held, matching "Delivery happens under the graph
// lock."
type Dispatcher struct {
	reg       *client.Registry
	sinks     map[uint32]InProcessSink
	eventFDs  map[uint32]io.ReadWriter
}

func NewDispatcher(reg *client.Registry) *Dispatcher {
	return &Dispatcher{
		reg:      reg,
		sinks:    make(map[uint32]InProcessSink),
		eventFDs: make(map[uint32]io.ReadWriter),
	}
}

// RegisterInProcessSink wires an in-process client's direct-call target.
func (d *Dispatcher) RegisterInProcessSink(clientID uint32, sink InProcessSink) {
	d.sinks[clientID] = sink
}

// RegisterEventFD wires an external client's event_fd channel.
func (d *Dispatcher) RegisterEventFD(clientID uint32, rw io.ReadWriter) {
	d.eventFDs[clientID] = rw
}

func (d *Dispatcher) Unregister(clientID uint32) {
	delete(d.sinks, clientID)
	delete(d.eventFDs, clientID)
}

// Broadcast delivers ev to every active, non-dead client.
func (d *Dispatcher) Broadcast(ev Event) {
	for _, c := range d.reg.All() {
		if !c.Active || c.Dead {
			continue
		}
		d.deliver(c, ev)
	}
}

// DeliverTo sends ev to a single client (used for NewPortType replies
// that only the newly-handshaking client needs).
func (d *Dispatcher) DeliverTo(clientID uint32, ev Event) error {
	c, ok := d.reg.Get(clientID)
	if !ok {
		return errs.ClientNotFound.Errorf(nil, "client %d not found", clientID)
	}
	return d.deliver(c, ev)
}

func (d *Dispatcher) deliver(c *client.Client, ev Event) error {
	if sink, ok := d.sinks[c.ID]; ok {
		if err := sink.HandleEvent(ev); err != nil {
			c.ErrorCount++
			return err
		}
		return nil
	}

	rw, ok := d.eventFDs[c.ID]
	if !ok {
		return nil // no channel installed yet (mid-handshake)
	}

	if err := writeRecord(rw, ev); err != nil {
		c.ErrorCount++
		return errs.IOFailure.Errorf(err, "write event to client %d", c.ID)
	}

	status := make([]byte, 1)
	if _, err := io.ReadFull(rw, status); err != nil {
		c.ErrorCount++
		return errs.IOFailure.Errorf(err, "read event ack from client %d", c.ID)
	}
	if status[0] != 0 {
		c.ErrorCount++
		return errs.IOFailure.Errorf(nil, "client %d nacked event (status %d)", c.ID, status[0])
	}
	return nil
}

func writeRecord(w io.Writer, ev Event) error {
	buf := make([]byte, 1+4+4+4+4)
	buf[0] = byte(ev.Type)
	putU32(buf[1:], ev.PortA)
	putU32(buf[5:], ev.PortB)
	putU32(buf[9:], ev.NFrames)
	putU32(buf[13:], uint32(ev.ShmSize))
	_, err := w.Write(buf)
	return err
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
