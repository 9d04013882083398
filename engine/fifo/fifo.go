// Package fifo creates and opens the per-client named pipes the cycle
// executor uses for the external-subgraph signalling protocol (spec §6).
package fifo

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/sentovic/jack1/errs"
)

// Mode is the filesystem permission spec §6 mandates for FIFOs.
const Mode = 0666

// Path returns the path of FIFO k under prefix, matching
// fifo_prefix-<k> = server_dir/jack-ack-fifo-<pid>-<k>.
func Path(serverDir string, pid int, k int) string {
	return fmt.Sprintf("%s/jack-ack-fifo-%d-%d", serverDir, pid, k)
}

// Create makes the named pipe at path if it doesn't already exist.
func Create(path string) error {
	if err := unix.Mkfifo(path, Mode); err != nil && err != unix.EEXIST {
		return errs.IOFailure.Errorf(err, "mkfifo %q", path)
	}
	return nil
}

// OpenNonBlocking opens path read-write, non-blocking, so a signalling
// write never blocks the cycle thread waiting for a reader to attach.
func OpenNonBlocking(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errs.IOFailure.Errorf(err, "open fifo %q", path)
	}
	return os.NewFile(uintptr(fd), path), nil
}

// Remove deletes the FIFO at path, ignoring a not-exist error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.IOFailure.Errorf(err, "remove fifo %q", path)
	}
	return nil
}
