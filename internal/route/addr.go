package route

import (
	"fmt"
	"net/netip"
)

// DecodeAddr converts a raw attribute payload into an address of family f.
// The payload must be exactly as wide as the family's addresses; it is
// copied.
func DecodeAddr(f Family, raw []byte) (netip.Addr, error) {
	switch {
	case f == IPv4 && len(raw) == 4:
		return netip.AddrFrom4([4]byte(raw)), nil
	case f == IPv6 && len(raw) == 16:
		return netip.AddrFrom16([16]byte(raw)), nil
	case !f.Valid():
		return netip.Addr{}, fmt.Errorf("unsupported family %d", uint8(f))
	default:
		return netip.Addr{}, fmt.Errorf("%w: %s address of %d bytes", ErrAddrLen, f, len(raw))
	}
}

// EncodeAddr returns the wire bytes of addr for family f.
func EncodeAddr(f Family, addr netip.Addr) ([]byte, error) {
	switch {
	case f == IPv4 && addr.Unmap().Is4():
		return addr.Unmap().AsSlice(), nil
	case f == IPv6 && addr.Is6():
		return addr.AsSlice(), nil
	}
	return nil, fmt.Errorf("%w: %s is not %s", ErrAddrLen, addr, f)
}

// MaskFromPrefixLen builds the network mask for a prefix length, e.g. /24
// over IPv4 is 255.255.255.0.
func MaskFromPrefixLen(f Family, bits int) (netip.Addr, error) {
	n := f.AddrLen()
	if n == 0 {
		return netip.Addr{}, fmt.Errorf("unsupported family %d", uint8(f))
	}
	if bits < 0 || bits > n*8 {
		return netip.Addr{}, fmt.Errorf("prefix length %d out of range for %s", bits, f)
	}
	mask := make([]byte, n)
	for i := 0; i < n; i++ {
		switch {
		case bits >= 8:
			mask[i] = 0xff
			bits -= 8
		case bits > 0:
			mask[i] = ^byte(0xff >> bits)
			bits = 0
		}
	}
	addr, _ := netip.AddrFromSlice(mask)
	return addr, nil
}
