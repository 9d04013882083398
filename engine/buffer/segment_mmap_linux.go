//go:build linux

package buffer

import (
	"golang.org/x/sys/unix"

	"github.com/sentovic/jack1/errs"
)

// mmapSegment is the default provisioner's Segment: an anonymous,
// MAP_SHARED mapping so forked external client processes that inherit the
// mapping see the same pages the engine writes, without depending on the
// named shared-memory segment primitive the engine treats as external.
type mmapSegment struct {
	name string
	buf  []byte
}

// MmapProvisioner is the Linux default Provisioner.
type MmapProvisioner struct{}

func (MmapProvisioner) Create(name string, size int) (Segment, error) {
	if size <= 0 {
		size = 1
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return nil, errs.IOFailure.Errorf(err, "mmap segment %q (%d bytes)", name, size)
	}
	return &mmapSegment{name: name, buf: b}, nil
}

func (s *mmapSegment) Name() string  { return s.name }
func (s *mmapSegment) Bytes() []byte { return s.buf }

func (s *mmapSegment) Resize(n int) error {
	if n <= 0 {
		n = 1
	}
	nb, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_SHARED)
	if err != nil {
		return errs.IOFailure.Errorf(err, "resize segment %q to %d bytes", s.name, n)
	}
	copy(nb, s.buf)
	_ = unix.Munmap(s.buf)
	s.buf = nb
	return nil
}

func (s *mmapSegment) Close() error {
	if s.buf == nil {
		return nil
	}
	err := unix.Munmap(s.buf)
	s.buf = nil
	return err
}
