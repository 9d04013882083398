package server_test

import (
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/request"
	"github.com/sentovic/jack1/engine/server"
)

type fakeHandshaker struct {
	reply server.HandshakeReply
	err   error
	got   []server.HandshakeRecord
}

func (f *fakeHandshaker) Handshake(rec server.HandshakeRecord) (server.HandshakeReply, error) {
	f.got = append(f.got, rec)
	return f.reply, f.err
}

type fakeRequester struct {
	got []server.RequestRecord
}

func (f *fakeRequester) HandleRequest(clientID uint32, rec server.RequestRecord) (server.RequestReply, error) {
	f.got = append(f.got, rec)
	return server.RequestReply{PortID: 42}, nil
}

type fakeBinder struct {
	bound map[uint32]net.Conn
}

func (f *fakeBinder) BindEventAck(id uint32, conn net.Conn) error {
	if f.bound == nil {
		f.bound = map[uint32]net.Conn{}
	}
	f.bound[id] = conn
	return nil
}

var _ = Describe("Server", func() {
	var (
		dir string
		h   *fakeHandshaker
		req *fakeRequester
		b   *fakeBinder
		srv *server.Server
		ctx context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		h = &fakeHandshaker{reply: server.HandshakeReply{Status: 0, ClientID: 3, ClientSHMName: "/jack-c-test"}}
		req = &fakeRequester{}
		b = &fakeBinder{}

		var err error
		srv, err = server.New(dir, h, req, b, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(srv.Listen()).To(Succeed())

		ctx, cancel = context.WithCancel(context.Background())
		srv.Serve(ctx)
	})

	AfterEach(func() {
		cancel()
		_ = srv.Close()
	})

	It("runs the handshake and replies over the request socket", func() {
		conn, err := net.Dial("unix", dir+"/jack_0")
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		rec := []byte{byte(client.KindExternal), 1, 4, 0, 0, 0, 't', 'e', 's', 't', 1, 0, 0, 0}
		_, err = conn.Write(rec)
		Expect(err).NotTo(HaveOccurred())

		reply := make([]byte, 4)
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, err = conn.Read(reply)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int { return len(h.got) }).Should(Equal(1))
		Expect(h.got[0].Name).To(Equal("test"))
	})

	It("keeps the request connection open and dispatches requests after the handshake", func() {
		conn, err := net.Dial("unix", dir+"/jack_0")
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		rec := []byte{byte(client.KindExternal), 1, 4, 0, 0, 0, 't', 'e', 's', 't', 1, 0, 0, 0}
		_, err = conn.Write(rec)
		Expect(err).NotTo(HaveOccurred())

		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, err = server.ReadHandshakeReply(conn)
		Expect(err).NotTo(HaveOccurred())

		Expect(server.WriteRequest(conn, server.RequestRecord{
			Kind:  request.RegisterPort,
			Name:  "test:out",
			Flags: 2,
		})).To(Succeed())

		reply, err := server.ReadRequestReply(conn)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.PortID).To(Equal(uint32(42)))

		Eventually(func() int { return len(req.got) }).Should(Equal(1))
		Expect(req.got[0].Name).To(Equal("test:out"))
	})

	It("binds an event-ack connection to the matching client id", func() {
		conn, err := net.Dial("unix", dir+"/jack_ack_0")
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		Expect(server.WriteClientID(conn, 7)).To(Succeed())

		Eventually(func() bool {
			_, ok := b.bound[7]
			return ok
		}, time.Second).Should(BeTrue())
	})
})
