package netlink

import (
	"errors"
	"fmt"
)

// ErrAttrOverrun is returned when an attribute claims more bytes than the
// buffer holds.
var ErrAttrOverrun = errors.New("netlink: attribute overruns buffer")

// AttrTable maps an attribute type to its payload. Payloads are views into
// the parsed buffer; callers copy what they keep.
type AttrTable map[uint16][]byte

// ParseAttrs walks a flat list of 4-byte aligned attributes. Unknown types
// are kept. A later attribute of the same type replaces an earlier one.
func ParseAttrs(b []byte) (AttrTable, error) {
	t := make(AttrTable)
	for len(b) > 0 {
		if len(b) < AttrHeaderLen {
			return nil, fmt.Errorf("netlink: %d trailing bytes after attributes", len(b))
		}
		l := int(nativeEndian.Uint16(b[0:2]))
		typ := nativeEndian.Uint16(b[2:4]) & NLA_TYPE_MASK
		if l < AttrHeaderLen {
			return nil, fmt.Errorf("netlink: attribute %d has length %d", typ, l)
		}
		if l > len(b) {
			return nil, fmt.Errorf("%w: attribute %d wants %d bytes, %d left", ErrAttrOverrun, typ, l, len(b))
		}
		t[typ] = b[AttrHeaderLen:l]
		next := align(l)
		if next > len(b) {
			next = len(b)
		}
		b = b[next:]
	}
	return t, nil
}

// ParseMessageAttrs parses the attributes that follow a fixed structure of
// fixedLen bytes at the start of the message payload.
func ParseMessageAttrs(m *Message, fixedLen int) (AttrTable, error) {
	off := align(fixedLen)
	if len(m.Data) < fixedLen {
		return nil, ErrShortMessage
	}
	if off > len(m.Data) {
		off = len(m.Data)
	}
	return ParseAttrs(m.Data[off:])
}

// Has reports whether the attribute was present.
func (t AttrTable) Has(typ uint16) bool {
	_, ok := t[typ]
	return ok
}

// Uint32 returns a 4-byte attribute in host order.
func (t AttrTable) Uint32(typ uint16) (uint32, bool, error) {
	b, ok := t[typ]
	if !ok {
		return 0, false, nil
	}
	if len(b) != 4 {
		return 0, true, fmt.Errorf("netlink: attribute %d is %d bytes, want 4", typ, len(b))
	}
	return nativeEndian.Uint32(b), true, nil
}

// String returns a NUL-terminated string attribute.
func (t AttrTable) String(typ uint16) (string, bool) {
	b, ok := t[typ]
	if !ok {
		return "", false
	}
	for i, c := range b {
		if c == 0 {
			b = b[:i]
			break
		}
	}
	return string(b), true
}
