package server

import (
	"encoding/binary"
	"io"

	"github.com/sentovic/jack1/engine/client"
	"github.com/sentovic/jack1/engine/request"
	"github.com/sentovic/jack1/errs"
)

// readHandshake decodes spec §6's client connect request: a length-prefixed
// name plus fixed fields, matching the fixed-layout record style the
// request/event envelopes use elsewhere in this package.
func readHandshake(r io.Reader) (HandshakeRecord, error) {
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return HandshakeRecord{}, errs.IOFailure.Errorf(err, "read handshake header")
	}
	kind := client.Kind(hdr[0])
	load := hdr[1] != 0
	nameLen := binary.LittleEndian.Uint32(hdr[2:])

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return HandshakeRecord{}, errs.IOFailure.Errorf(err, "read handshake name")
	}

	var protoBuf [4]byte
	if _, err := io.ReadFull(r, protoBuf[:]); err != nil {
		return HandshakeRecord{}, errs.IOFailure.Errorf(err, "read handshake protocol version")
	}

	return HandshakeRecord{
		Kind:            kind,
		Name:            string(name),
		Load:            load,
		ProtocolVersion: binary.LittleEndian.Uint32(protoBuf[:]),
	}, nil
}

// writeHandshakeReply encodes spec §6's client connect response.
func writeHandshakeReply(w io.Writer, reply HandshakeReply) error {
	nameB := []byte(reply.ClientSHMName)
	ctrlB := []byte(reply.ControlSHMName)
	fifoB := []byte(reply.FIFOPrefix)

	buf := make([]byte, 0, 64+len(nameB)+len(ctrlB)+len(fifoB))
	buf = appendInt32(buf, reply.Status)
	buf = appendUint32(buf, reply.ClientID)
	buf = appendUint32(buf, reply.ProtocolVersion)
	buf = appendString(buf, nameB)
	buf = appendString(buf, ctrlB)
	buf = appendInt32(buf, int32(reply.ControlSize))
	buf = appendBool(buf, reply.Realtime)
	buf = appendInt32(buf, int32(reply.RealtimePrio))
	buf = appendInt32(buf, int32(reply.NPortTypes))
	buf = appendString(buf, fifoB)

	_, err := w.Write(buf)
	if err != nil {
		return errs.IOFailure.Errorf(err, "write handshake reply")
	}
	return nil
}

// ReadHandshakeReply is the client-side counterpart of writeHandshakeReply,
// exercised by tests that keep driving the connection past the handshake.
func ReadHandshakeReply(r io.Reader) (HandshakeReply, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return HandshakeReply{}, errs.IOFailure.Errorf(err, "read handshake reply header")
	}
	reply := HandshakeReply{
		Status:          int32(binary.LittleEndian.Uint32(hdr[0:4])),
		ClientID:        binary.LittleEndian.Uint32(hdr[4:8]),
		ProtocolVersion: binary.LittleEndian.Uint32(hdr[8:12]),
	}

	shm, err := readLenPrefixed(r)
	if err != nil {
		return HandshakeReply{}, err
	}
	reply.ClientSHMName = string(shm)

	ctrl, err := readLenPrefixed(r)
	if err != nil {
		return HandshakeReply{}, err
	}
	reply.ControlSHMName = string(ctrl)

	var tail [9]byte
	if _, err := io.ReadFull(r, tail[:]); err != nil {
		return HandshakeReply{}, errs.IOFailure.Errorf(err, "read handshake reply tail")
	}
	reply.ControlSize = int(int32(binary.LittleEndian.Uint32(tail[0:4])))
	reply.Realtime = tail[4] != 0
	reply.RealtimePrio = int(int32(binary.LittleEndian.Uint32(tail[5:9])))

	var nPortTypes [4]byte
	if _, err := io.ReadFull(r, nPortTypes[:]); err != nil {
		return HandshakeReply{}, errs.IOFailure.Errorf(err, "read handshake reply port type count")
	}
	reply.NPortTypes = int(int32(binary.LittleEndian.Uint32(nPortTypes[:])))

	fifo, err := readLenPrefixed(r)
	if err != nil {
		return HandshakeReply{}, err
	}
	reply.FIFOPrefix = string(fifo)

	return reply, nil
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errs.IOFailure.Errorf(err, "read length-prefixed field length")
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errs.IOFailure.Errorf(err, "read length-prefixed field")
	}
	return buf, nil
}

// readClientID decodes the 4-byte client id an event-ack connection sends
// immediately after connecting, so the server can match it to an existing
// client and install the socket as its event_fd.
func readClientID(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, errs.IOFailure.Errorf(err, "read event-ack client id")
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteClientID is the client-side counterpart helper exercised by tests
// that simulate an event-ack connection.
func WriteClientID(w io.Writer, id uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], id)
	_, err := w.Write(buf[:])
	return err
}

// readRequest decodes one fixed-layout RequestRecord: kind, two port ids,
// a type id, a flags byte, and a length-prefixed name, mirroring
// readHandshake's style for the request plane's ongoing envelopes.
func readRequest(r io.Reader) (RequestRecord, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return RequestRecord{}, errs.IOFailure.Errorf(err, "read request header")
	}

	rec := RequestRecord{
		Kind:   request.Kind(hdr[0]),
		PortA:  binary.LittleEndian.Uint32(hdr[1:5]),
		PortB:  binary.LittleEndian.Uint32(hdr[5:9]),
		TypeID: binary.LittleEndian.Uint16(hdr[9:11]),
		Flags:  hdr[11],
	}
	nameLen := binary.LittleEndian.Uint32(hdr[12:16])

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return RequestRecord{}, errs.IOFailure.Errorf(err, "read request name")
	}
	rec.Name = string(name)
	return rec, nil
}

// WriteRequest is the client-side counterpart of readRequest, exercised
// by tests that simulate a client driving the request plane over the
// wire instead of calling Planes directly.
func WriteRequest(w io.Writer, rec RequestRecord) error {
	nameB := []byte(rec.Name)
	buf := make([]byte, 0, 16+len(nameB))
	buf = append(buf, byte(rec.Kind))
	buf = appendUint32(buf, rec.PortA)
	buf = appendUint32(buf, rec.PortB)
	var typeBuf [2]byte
	binary.LittleEndian.PutUint16(typeBuf[:], rec.TypeID)
	buf = append(buf, typeBuf[:]...)
	buf = append(buf, rec.Flags)
	buf = appendString(buf, nameB)

	_, err := w.Write(buf)
	if err != nil {
		return errs.IOFailure.Errorf(err, "write request record")
	}
	return nil
}

// ReadRequestReply is the client-side counterpart of writeRequestReply.
func ReadRequestReply(r io.Reader) (RequestReply, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return RequestReply{}, errs.IOFailure.Errorf(err, "read request reply header")
	}
	reply := RequestReply{
		Status: int32(binary.LittleEndian.Uint32(hdr[0:4])),
		PortID: binary.LittleEndian.Uint32(hdr[4:8]),
		Count:  int32(binary.LittleEndian.Uint32(hdr[8:12])),
	}
	n := binary.LittleEndian.Uint32(hdr[12:16])
	reply.Conns = make([]uint32, n)
	for i := range reply.Conns {
		var cb [4]byte
		if _, err := io.ReadFull(r, cb[:]); err != nil {
			return RequestReply{}, errs.IOFailure.Errorf(err, "read request reply connection %d", i)
		}
		reply.Conns[i] = binary.LittleEndian.Uint32(cb[:])
	}
	return reply, nil
}

// writeRequestReply encodes a RequestReply: status, the registered port
// id (when applicable), and the connection list GetPortConnections
// returns.
func writeRequestReply(w io.Writer, reply RequestReply) error {
	buf := make([]byte, 0, 16+4*len(reply.Conns))
	buf = appendInt32(buf, reply.Status)
	buf = appendUint32(buf, reply.PortID)
	buf = appendInt32(buf, reply.Count)
	buf = appendUint32(buf, uint32(len(reply.Conns)))
	for _, c := range reply.Conns {
		buf = appendUint32(buf, c)
	}

	if _, err := w.Write(buf); err != nil {
		return errs.IOFailure.Errorf(err, "write request reply")
	}
	return nil
}

func appendInt32(b []byte, v int32) []byte  { return appendUint32(b, uint32(v)) }
func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}
func appendString(b []byte, s []byte) []byte {
	b = appendUint32(b, uint32(len(s)))
	return append(b, s...)
}
