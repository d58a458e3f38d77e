package secure

import (
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// rawSock is a dup of a TCP connection's descriptor, driven at the syscall
// level. net.Conn exposes neither MSG_PEEK nor a real blocking-mode toggle,
// and the runtime netpoller hides EAGAIN, so the chat phase bypasses it.
type rawSock struct {
	file *os.File // holds the dup'ed descriptor; Close releases it
	fd   int
}

// newRawSock takes ownership of conn: the descriptor is dup'ed into
// non-blocking mode and the original connection is closed.
func newRawSock(conn *net.TCPConn) (*rawSock, error) {
	file, err := conn.File()
	if err != nil {
		return nil, fmt.Errorf("dup socket: %w", err)
	}
	conn.Close()

	s := &rawSock{file: file, fd: int(file.Fd())}
	if err := unix.SetNonblock(s.fd, true); err != nil {
		file.Close()
		return nil, fmt.Errorf("set non-blocking: %w", err)
	}
	return s, nil
}

// peek reads up to len(b) bytes without consuming them. It returns
// ErrWouldBlock when no data is queued, and n == 0 with a nil error when
// the peer has shut the stream down.
func (s *rawSock) peek(b []byte) (int, error) {
	for {
		n, _, err := unix.Recvfrom(s.fd, b, unix.MSG_PEEK)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return 0, ErrWouldBlock
		default:
			return 0, err
		}
	}
}

// enterBlocking switches the descriptor to blocking mode and returns the
// restore function. Callers defer it immediately so the descriptor is back
// in non-blocking mode on every exit path.
func (s *rawSock) enterBlocking() (restore func(), err error) {
	if err := unix.SetNonblock(s.fd, false); err != nil {
		return nil, fmt.Errorf("enter blocking mode: %w", err)
	}
	return func() { _ = unix.SetNonblock(s.fd, true) }, nil
}

// readFull fills b, expecting the descriptor in blocking mode.
// io.ErrUnexpectedEOF reports a peer that vanished mid-frame.
func (s *rawSock) readFull(b []byte) error {
	for off := 0; off < len(b); {
		n, err := unix.Read(s.fd, b[off:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
		off += n
	}
	return nil
}

// writeFull writes all of b, expecting the descriptor in blocking mode.
func (s *rawSock) writeFull(b []byte) error {
	for off := 0; off < len(b); {
		n, err := unix.Write(s.fd, b[off:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

func (s *rawSock) Close() error {
	return s.file.Close()
}
