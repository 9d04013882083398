package main

import (
	"net"

	"github.com/sentovic/jack1/engine/buffer"
	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/event"
	"github.com/sentovic/jack1/engine/port"
	"github.com/sentovic/jack1/engine/request"
	"github.com/sentovic/jack1/engine/server"
	"github.com/sentovic/jack1/errs"
)

// clientSetup implements server.Handshaker and server.EventAckBinder: it
// turns an accepted request-socket connection into a registered, activated
// client whose reply names the shared port-buffer segment, and binds a
// later event-ack connection to that client's event_fd.
type clientSetup struct {
	clients    *client.Registry
	planes     *request.Planes
	events     *event.Dispatcher
	pool       *buffer.Pool
	realtime   bool
	rtPriority int
	fifoPrefix string
}

func (cs *clientSetup) Handshake(rec server.HandshakeRecord) (server.HandshakeReply, error) {
	c, err := cs.clients.Add(rec.Name, rec.Kind, 0)
	if err != nil {
		return server.HandshakeReply{Status: errs.StatusOf(err)}, err
	}
	c.RequestFD = rec.RequestFD

	if err := cs.planes.ActivateClient(c.ID); err != nil {
		return server.HandshakeReply{Status: errs.StatusOf(err)}, err
	}

	return server.HandshakeReply{
		Status:          0,
		ClientID:        c.ID,
		ProtocolVersion: rec.ProtocolVersion,
		ClientSHMName:   cs.pool.SegmentName(),
		ControlSHMName:  cs.pool.SegmentName(),
		ControlSize:     cs.pool.SlotSize(),
		Realtime:        cs.realtime,
		RealtimePrio:    cs.rtPriority,
		NPortTypes:      len(cs.planes.Ports.Types()),
		FIFOPrefix:      cs.fifoPrefix,
	}, nil
}

// BindEventAck installs the freshly accepted event-ack connection as
// clientID's event channel, then streams a NewPortType event for every
// type already registered (spec §4.7: a newly handshaking client learns
// the full port type set before it can register ports of its own).
func (cs *clientSetup) BindEventAck(clientID uint32, conn net.Conn) error {
	if _, ok := cs.clients.Get(clientID); !ok {
		return errs.ClientNotFound.Errorf(nil, "client %d not found", clientID)
	}
	cs.events.RegisterEventFD(clientID, conn)
	for _, typ := range cs.planes.Ports.Types() {
		_ = cs.events.DeliverTo(clientID, event.Event{
			Type:    event.NewPortType,
			PortA:   uint32(typ.ID),
			NFrames: uint32(typ.ScaleFactor),
		})
	}
	return nil
}

// HandleRequest dispatches one wire-decoded RequestRecord to the matching
// Planes call, per spec §4.5/§4.7/§6.
func (cs *clientSetup) HandleRequest(clientID uint32, rec server.RequestRecord) (server.RequestReply, error) {
	switch rec.Kind {
	case request.RegisterPort:
		p, err := cs.planes.RegisterPort(port.TypeID(rec.TypeID), clientID, rec.Name, port.Flag(rec.Flags))
		if err != nil {
			return server.RequestReply{}, err
		}
		return server.RequestReply{PortID: p.ID}, nil
	case request.UnRegisterPort:
		return server.RequestReply{}, cs.planes.UnRegisterPort(rec.PortA, clientID)
	case request.ConnectPorts:
		return server.RequestReply{}, cs.planes.ConnectPorts(rec.PortA, rec.PortB)
	case request.DisconnectPort:
		return server.RequestReply{}, cs.planes.DisconnectPort(rec.PortA, rec.PortB)
	case request.DisconnectPorts:
		return server.RequestReply{}, cs.planes.DisconnectPorts(rec.PortA)
	case request.ActivateClient:
		return server.RequestReply{}, cs.planes.ActivateClient(clientID)
	case request.DeactivateClient:
		return server.RequestReply{}, cs.planes.DeactivateClient(clientID)
	case request.SetTimeBaseClient:
		return server.RequestReply{}, cs.planes.SetTimeBaseClient(clientID)
	case request.GetPortConnections:
		conns, err := cs.planes.GetPortConnections(rec.PortA)
		if err != nil {
			return server.RequestReply{}, err
		}
		return server.RequestReply{Conns: conns}, nil
	case request.GetPortNConnections:
		n, err := cs.planes.GetPortNConnections(rec.PortA)
		if err != nil {
			return server.RequestReply{}, err
		}
		return server.RequestReply{Count: int32(n)}, nil
	case request.Reconfigure:
		// PortA/PortB are reused to carry the new period size and sample
		// rate: Reconfigure is the only request kind that needs two plain
		// integers rather than port ids, so the fixed envelope is recycled
		// instead of growing a field only one request kind uses.
		return server.RequestReply{}, cs.planes.Reconfigure(int(rec.PortA), int(rec.PortB))
	default:
		return server.RequestReply{}, errs.UnknownError.Errorf(nil, "unsupported request kind %d", rec.Kind)
	}
}
