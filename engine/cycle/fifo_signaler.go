package cycle

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sentovic/jack1/errs"
)

// FIFOSignaler is the production Signaler: each fifo index maps to one
// already-opened, non-blocking *os.File created by engine/fifo during the
// last resort.
type FIFOSignaler struct {
	files map[int]*os.File
}

func NewFIFOSignaler() *FIFOSignaler {
	return &FIFOSignaler{files: make(map[int]*os.File)}
}

// Install registers the fd for fifo index n (shared by start and wait;
// the engine opens one fifo per chain slot and the client mirrors it).
func (s *FIFOSignaler) Install(n int, f *os.File) {
	s.files[n] = f
}

func (s *FIFOSignaler) Signal(startFD int) error {
	f, ok := s.files[startFD]
	if !ok {
		return errs.IOFailure.Errorf(nil, "no fifo installed for start_fd %d", startFD)
	}
	if _, err := f.Write([]byte{1}); err != nil {
		return errs.IOFailure.Errorf(err, "signal subgraph start_fd %d", startFD)
	}
	return nil
}

func (s *FIFOSignaler) Await(waitFD int, timeout time.Duration) (WaitResult, error) {
	f, ok := s.files[waitFD]
	if !ok {
		return WaitError, errs.IOFailure.Errorf(nil, "no fifo installed for wait_fd %d", waitFD)
	}

	pfd := []unix.PollFd{{Fd: int32(f.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(timeout.Milliseconds()))
	if err != nil {
		return WaitError, errs.IOFailure.Errorf(err, "poll subgraph wait_fd %d", waitFD)
	}
	if n == 0 {
		return WaitTimeout, nil
	}
	if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		return WaitError, errs.IOFailure.Errorf(nil, "lost client on wait_fd %d", waitFD)
	}

	buf := make([]byte, 1)
	if _, err := f.Read(buf); err != nil {
		return WaitError, errs.IOFailure.Errorf(err, "drain subgraph wait_fd %d", waitFD)
	}
	return WaitOK, nil
}
