//go:build linux

package netlink

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Socket is a NETLINK_ROUTE socket.
type Socket struct {
	fd  int
	pid uint32
}

// Subscribe opens a socket bound to the multicast groups in mask. A
// positive rcvbuf sets SO_RCVBUF.
func Subscribe(mask uint32, rcvbuf int) (*Socket, error) {
	return open(mask, rcvbuf)
}

// Dial opens a socket with no group membership, for requests.
func Dial() (*Socket, error) {
	return open(0, 0)
}

func open(groups uint32, rcvbuf int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("failed to create netlink socket: %w", err)
	}
	if rcvbuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvbuf); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("failed to set receive buffer: %w", err)
		}
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: groups}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind netlink socket: %w", err)
	}
	s := &Socket{fd: fd}
	if sa, err := unix.Getsockname(fd); err == nil {
		if nl, ok := sa.(*unix.SockaddrNetlink); ok {
			s.pid = nl.Pid
		}
	}
	return s, nil
}

// Fd returns the descriptor for readiness polling.
func (s *Socket) Fd() int {
	return s.fd
}

// Send writes one encoded message to the kernel.
func (s *Socket) Send(msg []byte) error {
	return unix.Sendto(s.fd, msg, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}

// Receive blocks for one datagram and splits it into messages. The
// messages alias buf. Interrupted reads are retried.
func (s *Socket) Receive(buf []byte) ([]Message, error) {
	var n int
	var err error
	for {
		n, _, err = unix.Recvfrom(s.fd, buf, 0)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	if n < HeaderLen {
		return nil, ErrShortMessage
	}
	return ParseMessages(buf[:n])
}

// Close releases the descriptor.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

// WaitReadable polls the socket for up to d. It returns false when the
// wait expired.
func (s *Socket) WaitReadable(d time.Duration) (bool, error) {
	ms := int(d / time.Millisecond)
	if ms <= 0 {
		ms = 1
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

// Requester sends set/delete requests and waits for the kernel's answer.
// Each call uses its own socket so it never competes with the
// notification loop for replies.
type Requester struct {
	Timeout time.Duration
	BufSize int
}

// Execute stamps a fresh sequence number into msg, sends it and blocks
// until it is acknowledged, rejected or the timeout elapses.
func (r *Requester) Execute(ctx context.Context, msg []byte) error {
	s, err := Dial()
	if err != nil {
		return err
	}
	defer s.Close()

	seq := NextSeq()
	SetSeq(msg, seq)
	if err := s.Send(msg); err != nil {
		return fmt.Errorf("failed to send request %d: %w", seq, err)
	}
	size := r.BufSize
	if size <= 0 {
		size = 8192
	}
	return AwaitAck(ctx, s, seq, r.Timeout, make([]byte, size))
}

// Dump opens a throwaway socket, issues a full-table request for msgType
// and family, and hands every reply to fn.
func Dump(msgType uint16, family uint8, fixedLen int, seq uint32, buf []byte, fn func(*Message)) error {
	s, err := Dial()
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Send(NewDumpRequest(msgType, family, fixedLen, seq)); err != nil {
		return fmt.Errorf("failed to send dump request: %w", err)
	}
	return ConsumeDump(s, seq, buf, fn)
}
