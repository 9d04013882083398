// Package server implements the connection server: two Unix-domain
// listening sockets (request and event-ack), handshake handling, and a
// semaphore-bounded pool of concurrent in-flight handshakes.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sync/semaphore"

	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/request"
	"github.com/sentovic/jack1/errs"
	"github.com/sentovic/jack1/logger"
)

// MaxListenSlot is the exclusive upper bound on N in server/jack_<N> /
// server/jack_ack_<N> (spec §6).
const MaxListenSlot = 999

// HandshakeRecord is the client connect request of spec §6.
type HandshakeRecord struct {
	Kind            client.Kind
	Name            string
	ProtocolVersion uint32
	Load            bool
	ObjectPath      string

	// RequestFD is the OS file descriptor backing the request connection
	// the handshake arrived on, captured by the server before the
	// Handshaker runs so it can be recorded on the new client for the
	// lifecycle/fault-isolation bookkeeping spec §4.8 describes.
	RequestFD int
}

// HandshakeReply is spec §6's client connect response.
type HandshakeReply struct {
	Status          int32
	ClientID        uint32
	ProtocolVersion uint32
	ClientSHMName   string
	ControlSHMName  string
	ControlSize     int
	Realtime        bool
	RealtimePrio    int
	NPortTypes      int
	FIFOPrefix      string
}

// Handshaker performs client setup on a new request-socket connection:
// assigning an id, allocating the control block, and producing the reply.
type Handshaker interface {
	Handshake(rec HandshakeRecord) (HandshakeReply, error)
}

// EventAckBinder installs a freshly accepted event-ack connection as a
// client's event_fd, matched by client id.
type EventAckBinder interface {
	BindEventAck(clientID uint32, conn net.Conn) error
}

// RequestRecord is one fixed-layout request-plane envelope, spec
// §4.5/§4.7/§6: the request socket stays open after the handshake and
// carries a RequestRecord per RegisterPort/ConnectPorts/etc. call.
type RequestRecord struct {
	Kind    request.Kind
	PortA   uint32
	PortB   uint32
	TypeID  uint16
	Flags   uint8
	Name    string
}

// RequestReply answers one RequestRecord: Status is a negative errs.Code
// on failure and zero on success; PortID/Conns/Count carry the payload
// the matching request kind produces.
type RequestReply struct {
	Status int32
	PortID uint32
	Conns  []uint32
	Count  int32
}

// Requester dispatches a decoded RequestRecord, arriving on clientID's
// open request connection, into the request plane.
type Requester interface {
	HandleRequest(clientID uint32, rec RequestRecord) (RequestReply, error)
}

// Server owns the two listening sockets and the bounded handshake pool.
type Server struct {
	ServerDir string
	Slot      int

	Handshaker Handshaker
	Requests   Requester
	Binder     EventAckBinder
	Log        logger.Logger

	reqListener net.Listener
	ackListener net.Listener

	sem *semaphore.Weighted

	wg sync.WaitGroup
}

// MaxConcurrentHandshakes bounds in-flight client setups so a burst of
// connecting clients cannot starve the cycle thread of CPU.
const MaxConcurrentHandshakes = 8

// FindFreeSlot picks the lowest N in [0, MaxListenSlot) whose request
// socket path does not exist; the event-ack path is not checked.
func FindFreeSlot(serverDir string) (int, error) {
	for n := 0; n < MaxListenSlot; n++ {
		if _, err := os.Stat(reqPath(serverDir, n)); os.IsNotExist(err) {
			return n, nil
		}
	}
	return 0, errs.IOFailure.Errorf(nil, "no free listen slot in [0,%d)", MaxListenSlot)
}

func reqPath(dir string, n int) string { return fmt.Sprintf("%s/jack_%d", dir, n) }
func ackPath(dir string, n int) string { return fmt.Sprintf("%s/jack_ack_%d", dir, n) }

// New builds a Server bound to the lowest free slot under serverDir.
func New(serverDir string, h Handshaker, r Requester, b EventAckBinder, log logger.Logger) (*Server, error) {
	slot, err := FindFreeSlot(serverDir)
	if err != nil {
		return nil, err
	}
	return &Server{
		ServerDir:  serverDir,
		Slot:       slot,
		Handshaker: h,
		Requests:   r,
		Binder:     b,
		Log:        log,
		sem:        semaphore.NewWeighted(MaxConcurrentHandshakes),
	}, nil
}

// Listen opens both listening sockets.
func (s *Server) Listen() error {
	rl, err := net.Listen("unix", reqPath(s.ServerDir, s.Slot))
	if err != nil {
		return errs.IOFailure.Errorf(err, "listen request socket")
	}
	al, err := net.Listen("unix", ackPath(s.ServerDir, s.Slot))
	if err != nil {
		_ = rl.Close()
		return errs.IOFailure.Errorf(err, "listen event-ack socket")
	}
	s.reqListener = rl
	s.ackListener = al
	return nil
}

// Serve accepts on both listeners until ctx is canceled.
func (s *Server) Serve(ctx context.Context) {
	s.wg.Add(2)
	go s.acceptLoop(ctx, s.reqListener, s.handleRequestConn)
	go s.acceptLoop(ctx, s.ackListener, s.handleAckConn)
}

// Close closes both listeners and waits for the two accept loops to
// return. Connection handlers already running are not waited for.
func (s *Server) Close() error {
	var err error
	if s.reqListener != nil {
		err = s.reqListener.Close()
	}
	if s.ackListener != nil {
		if e := s.ackListener.Close(); e != nil && err == nil {
			err = e
		}
	}
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop(ctx context.Context, l net.Listener, handle func(net.Conn)) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				if s.Log != nil {
					s.Log.Warn("accept failed", logger.Fields{"error": err.Error()})
				}
				return
			}
		}
		go handle(conn)
	}
}

// handleRequestConn runs the handshake, then-per spec §4.5/§4.7/§6-keeps
// the connection open and serves a RequestRecord per call a live client
// makes, until the client disconnects. The bounded semaphore only covers
// the handshake itself: holding it for a client's entire lifetime would
// cap the number of simultaneously connected clients at
// MaxConcurrentHandshakes instead of merely bounding in-flight setups.
func (s *Server) handleRequestConn(conn net.Conn) {
	defer conn.Close()

	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		return
	}

	rec, err := readHandshake(conn)
	if err != nil {
		s.sem.Release(1)
		if s.Log != nil {
			s.Log.Warn("bad handshake record", logger.Fields{"error": err.Error()})
		}
		return
	}
	rec.RequestFD = connFD(conn)

	reply, hsErr := s.Handshaker.Handshake(rec)
	if hsErr != nil {
		reply.Status = errs.StatusOf(hsErr)
	}
	writeErr := writeHandshakeReply(conn, reply)
	s.sem.Release(1)
	if writeErr != nil || hsErr != nil {
		return
	}

	s.serveRequests(conn, reply.ClientID)
}

// serveRequests decodes and dispatches RequestRecords until conn errors
// or the client closes it.
func (s *Server) serveRequests(conn net.Conn, clientID uint32) {
	for {
		rec, err := readRequest(conn)
		if err != nil {
			return
		}

		reply, err := s.Requests.HandleRequest(clientID, rec)
		if err != nil {
			reply.Status = errs.StatusOf(err)
		}
		if err := writeRequestReply(conn, reply); err != nil {
			return
		}
	}
}

// connFD extracts the OS file descriptor backing conn, when the
// underlying connection type exposes one (*net.UnixConn does). Returns
// -1 for connection types that don't, such as the in-memory pipes tests
// use for a Requester double.
func connFD(conn net.Conn) int {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	_ = rc.Control(func(f uintptr) { fd = int(f) })
	return fd
}

func (s *Server) handleAckConn(conn net.Conn) {
	id, err := readClientID(conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	if err := s.Binder.BindEventAck(id, conn); err != nil {
		_ = conn.Close()
	}
}
