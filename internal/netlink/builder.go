package netlink

import (
	"errors"
	"fmt"
)

// ErrRegionTooLarge is returned by End when a region no longer fits its
// 16-bit length field.
var ErrRegionTooLarge = errors.New("netlink: region exceeds 65535 bytes")

// Builder assembles one outgoing message. Every write lands at the cursor
// padded to the attribute alignment; regions opened with Begin are sized
// when they are closed with End, so callers never compute lengths by hand.
type Builder struct {
	buf []byte
}

// Region is an open length-prefixed span: a nested attribute or a fixed
// header (such as struct rtnexthop) whose first two bytes hold its length.
type Region struct {
	off int
	hdr int
}

// NewBuilder starts a message with the given type and flags.
func NewBuilder(msgType, flags uint16) *Builder {
	b := &Builder{buf: make([]byte, HeaderLen, 256)}
	h := Header{Type: msgType, Flags: flags}
	h.marshal(b.buf)
	return b
}

// Reserve appends n zeroed bytes, padded, and returns their offset.
func (b *Builder) Reserve(n int) int {
	off := len(b.buf)
	b.buf = append(b.buf, make([]byte, align(n))...)
	return off
}

// Span returns a writable view of n bytes at off. The view is only valid
// until the next append.
func (b *Builder) Span(off, n int) []byte {
	return b.buf[off : off+n]
}

// Fixed appends a fixed-size structure.
func (b *Builder) Fixed(data []byte) {
	off := b.Reserve(len(data))
	copy(b.buf[off:], data)
}

// AddAttr appends a flat attribute.
func (b *Builder) AddAttr(typ uint16, data []byte) {
	off := b.Reserve(AttrHeaderLen + len(data))
	nativeEndian.PutUint16(b.buf[off:], uint16(AttrHeaderLen+len(data)))
	nativeEndian.PutUint16(b.buf[off+2:], typ)
	copy(b.buf[off+AttrHeaderLen:], data)
}

// AddUint32 appends a 4-byte attribute in host order.
func (b *Builder) AddUint32(typ uint16, v uint32) {
	var data [4]byte
	nativeEndian.PutUint32(data[:], v)
	b.AddAttr(typ, data[:])
}

// BeginNested opens a nested attribute.
func (b *Builder) BeginNested(typ uint16) Region {
	off := b.Reserve(AttrHeaderLen)
	nativeEndian.PutUint16(b.buf[off+2:], typ)
	return Region{off: off, hdr: AttrHeaderLen}
}

// BeginRegion reserves a zeroed fixed header of hdrLen bytes whose length
// field is written by End.
func (b *Builder) BeginRegion(hdrLen int) Region {
	return Region{off: b.Reserve(hdrLen), hdr: hdrLen}
}

// Header returns a writable view of the region's fixed header. It is only
// valid until the next append.
func (b *Builder) Header(r Region) []byte {
	return b.buf[r.off : r.off+r.hdr]
}

// End closes a region, setting its length to span everything written since
// it was opened.
func (b *Builder) End(r Region) error {
	n := len(b.buf) - r.off
	if n > 0xffff {
		return fmt.Errorf("%w: %d bytes", ErrRegionTooLarge, n)
	}
	nativeEndian.PutUint16(b.buf[r.off:], uint16(n))
	return nil
}

// Len returns the current message length.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Bytes finalizes the header length and returns the encoded message.
func (b *Builder) Bytes() []byte {
	nativeEndian.PutUint32(b.buf[0:4], uint32(len(b.buf)))
	return b.buf
}
