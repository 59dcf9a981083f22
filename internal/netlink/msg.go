package netlink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"syscall"
	"time"
)

var (
	// ErrShortMessage is returned when a buffer cannot hold the header or
	// the fixed structure the message type requires.
	ErrShortMessage = errors.New("netlink: message truncated")
	// ErrBadLength is returned when a header declares a length that does
	// not fit the receive buffer.
	ErrBadLength = errors.New("netlink: invalid message length")
)

var nativeEndian = binary.NativeEndian

var sequence atomic.Uint32

func init() {
	sequence.Store(uint32(time.Now().Unix()))
}

// NextSeq returns a process-wide unique request sequence number.
func NextSeq() uint32 {
	return sequence.Add(1)
}

// Header is struct nlmsghdr.
type Header struct {
	Len   uint32
	Type  uint16
	Flags uint16
	Seq   uint32
	Pid   uint32
}

// Message is one netlink message. Data aliases the receive buffer and holds
// everything after the header up to the declared message length.
type Message struct {
	Header Header
	Data   []byte
}

func (h *Header) marshal(b []byte) {
	nativeEndian.PutUint32(b[0:4], h.Len)
	nativeEndian.PutUint16(b[4:6], h.Type)
	nativeEndian.PutUint16(b[6:8], h.Flags)
	nativeEndian.PutUint32(b[8:12], h.Seq)
	nativeEndian.PutUint32(b[12:16], h.Pid)
}

func unmarshalHeader(b []byte) Header {
	return Header{
		Len:   nativeEndian.Uint32(b[0:4]),
		Type:  nativeEndian.Uint16(b[4:6]),
		Flags: nativeEndian.Uint16(b[6:8]),
		Seq:   nativeEndian.Uint32(b[8:12]),
		Pid:   nativeEndian.Uint32(b[12:16]),
	}
}

// ParseMessages splits a datagram into its messages. It fails without
// returning a partial list if any header is inconsistent with the buffer.
func ParseMessages(b []byte) ([]Message, error) {
	var msgs []Message
	for len(b) >= HeaderLen {
		h := unmarshalHeader(b)
		l := int(h.Len)
		if l < HeaderLen || l > len(b) {
			return nil, fmt.Errorf("%w: header says %d, %d left", ErrBadLength, l, len(b))
		}
		msgs = append(msgs, Message{Header: h, Data: b[HeaderLen:l]})
		next := align(l)
		if next > len(b) {
			next = len(b)
		}
		b = b[next:]
	}
	return msgs, nil
}

// SetSeq stamps a sequence number into an encoded message.
func SetSeq(msg []byte, seq uint32) {
	if len(msg) >= HeaderLen {
		nativeEndian.PutUint32(msg[8:12], seq)
	}
}

// Seq reads the sequence number of an encoded message.
func Seq(msg []byte) uint32 {
	if len(msg) < HeaderLen {
		return 0
	}
	return nativeEndian.Uint32(msg[8:12])
}

// Errno decodes the payload of an NLMSG_ERROR message. A zero errno is an
// acknowledgement.
func (m *Message) Errno() (syscall.Errno, error) {
	if m.Header.Type != NLMSG_ERROR {
		return 0, fmt.Errorf("netlink: message type %d is not an error", m.Header.Type)
	}
	if len(m.Data) < 4 {
		return 0, ErrShortMessage
	}
	code := int32(nativeEndian.Uint32(m.Data[0:4]))
	return syscall.Errno(-code), nil
}

// KernelError reports a negative acknowledgement.
type KernelError struct {
	Seq   uint32
	Errno syscall.Errno
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("netlink: request %d rejected by kernel: %v", e.Seq, e.Errno)
}

func (e *KernelError) Unwrap() error {
	return e.Errno
}

// ErrTimeout is returned when the kernel does not answer a request in time.
var ErrTimeout = errors.New("netlink: timed out waiting for acknowledgement")

// Uint16 reads a host-order u16 from the start of b.
func Uint16(b []byte) uint16 {
	return nativeEndian.Uint16(b)
}

// Uint32 reads a host-order u32 from the start of b.
func Uint32(b []byte) uint32 {
	return nativeEndian.Uint32(b)
}

// PutUint32 writes a host-order u32 to the start of b.
func PutUint32(b []byte, v uint32) {
	nativeEndian.PutUint32(b, v)
}

// Align rounds n up to the netlink alignment.
func Align(n int) int {
	return align(n)
}

// PutUint16 writes a host-order u16 to the start of b.
func PutUint16(b []byte, v uint16) {
	nativeEndian.PutUint16(b, v)
}
