package route

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/wesleywu/routesync/internal/netlink"
)

// Source is a route request whose fields may be missing. Write requests
// arriving from the object store implement it directly; FromRecord adapts
// a decoded record.
type Source interface {
	Family() (Family, bool)
	Destination() (netip.Addr, bool)
	PrefixLen() (uint8, bool)
	HopCount() (int, bool)
	// NextHop returns hop i, zero-valued for fields the request omits.
	NextHop(i int) NextHop
}

// ErrInvalidPrefixLen is returned when a prefix length exceeds the
// family's address width.
var ErrInvalidPrefixLen = errors.New("prefix length out of range")

// Encode builds the kernel request that applies op to src. The sequence
// number is left zero for the transport to stamp.
func Encode(op Operation, src Source) ([]byte, error) {
	dst, ok := src.Destination()
	if !ok {
		return nil, ErrMissingDestination
	}
	plen, ok := src.PrefixLen()
	if !ok {
		return nil, ErrMissingPrefixLen
	}
	fam, ok := src.Family()
	if !ok {
		return nil, ErrMissingFamily
	}
	hops, ok := src.HopCount()
	if !ok {
		return nil, ErrMissingHopCount
	}
	if !fam.Valid() {
		return nil, fmt.Errorf("unsupported family %d", uint8(fam))
	}
	if int(plen) > fam.AddrLen()*8 {
		return nil, fmt.Errorf("%w: /%d for %s", ErrInvalidPrefixLen, plen, fam)
	}
	if hops < 0 {
		return nil, fmt.Errorf("negative hop count %d", hops)
	}

	var b *netlink.Builder
	switch op {
	case OpAdd:
		b = netlink.NewBuilder(netlink.RTM_NEWROUTE,
			netlink.NLM_F_REQUEST|netlink.NLM_F_ACK|netlink.NLM_F_CREATE|netlink.NLM_F_EXCL)
	case OpUpdate:
		b = netlink.NewBuilder(netlink.RTM_NEWROUTE,
			netlink.NLM_F_REQUEST|netlink.NLM_F_ACK|netlink.NLM_F_REPLACE)
	case OpDelete:
		b = netlink.NewBuilder(netlink.RTM_DELROUTE, netlink.NLM_F_REQUEST|netlink.NLM_F_ACK)
	default:
		return nil, fmt.Errorf("unknown route operation %d", op)
	}

	off := b.Reserve(netlink.SizeofRtMsg)
	rt := b.Span(off, netlink.SizeofRtMsg)
	rt[0] = uint8(fam)
	rt[1] = plen
	rt[4] = netlink.RT_TABLE_MAIN
	rt[5] = netlink.RTPROT_BOOT
	rt[6] = netlink.RT_SCOPE_UNIVERSE
	rt[7] = netlink.RTN_UNICAST

	raw, err := EncodeAddr(fam, dst)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	b.AddAttr(netlink.RTA_DST, raw)

	switch {
	case hops == 1:
		nh := src.NextHop(0)
		if nh.Gateway.IsValid() {
			gw, err := EncodeAddr(fam, nh.Gateway)
			if err != nil {
				return nil, fmt.Errorf("gateway: %w", err)
			}
			b.AddAttr(netlink.RTA_GATEWAY, gw)
		}
		if nh.IfIndex != 0 {
			b.AddUint32(netlink.RTA_OIF, uint32(int32(nh.IfIndex)))
		}
		if nh.Weight != 0 {
			b.AddUint32(netlink.RTA_PRIORITY, uint32(nh.Weight))
		}
	case hops > 1:
		if err := encodeMultipath(b, fam, src, hops); err != nil {
			return nil, err
		}
	}

	return b.Bytes(), nil
}

type recordSource struct {
	r *Record
}

// FromRecord presents a record as a complete request.
func FromRecord(r *Record) Source {
	return recordSource{r: r}
}

func (s recordSource) Family() (Family, bool) {
	return s.r.Family, s.r.Family != FamilyUnspec
}

func (s recordSource) Destination() (netip.Addr, bool) {
	return s.r.Dst.Addr(), s.r.Dst.IsValid()
}

func (s recordSource) PrefixLen() (uint8, bool) {
	return uint8(s.r.Dst.Bits()), s.r.Dst.IsValid()
}

func (s recordSource) HopCount() (int, bool) {
	return len(s.r.NextHops), true
}

func (s recordSource) NextHop(i int) NextHop {
	if i < 0 || i >= len(s.r.NextHops) {
		return NextHop{}
	}
	return s.r.NextHops[i]
}
