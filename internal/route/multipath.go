package route

import (
	"fmt"
	"log/slog"

	"github.com/wesleywu/routesync/internal/netlink"
)

// rtnexthop field offsets.
const (
	rtnhLen     = 0
	rtnhFlags   = 2
	rtnhHops    = 3
	rtnhIfIndex = 4
)

// decodeMultipath walks the rtnexthop records of an RTA_MULTIPATH payload
// in order. Iteration ends at the first record whose declared length is
// shorter than its header or longer than what remains.
func (d *Decoder) decodeMultipath(fam Family, b []byte) ([]NextHop, error) {
	hops := []NextHop{}
	for len(b) >= netlink.SizeofRtNexthop {
		l := int(netlink.Uint16(b[rtnhLen:]))
		if l < netlink.SizeofRtNexthop || l > len(b) {
			break
		}
		hop := NextHop{
			Flags:   b[rtnhFlags],
			Weight:  b[rtnhHops],
			IfIndex: int(int32(netlink.Uint32(b[rtnhIfIndex:]))),
		}
		attrs, err := netlink.ParseAttrs(b[netlink.SizeofRtNexthop:l])
		if err != nil {
			return nil, fmt.Errorf("next hop %d: %w", len(hops), err)
		}
		if raw, ok := attrs[netlink.RTA_GATEWAY]; ok {
			if gw, err := DecodeAddr(fam, raw); err != nil {
				d.log.Debug("Ignoring next hop gateway", slog.Int("hop", len(hops)), slog.Any("error", err))
			} else {
				hop.Gateway = gw
			}
		}
		hops = append(hops, hop)

		next := netlink.Align(l)
		if next > len(b) {
			next = len(b)
		}
		b = b[next:]
	}
	return hops, nil
}

// encodeMultipath writes an RTA_MULTIPATH attribute holding count records.
func encodeMultipath(b *netlink.Builder, fam Family, src Source, count int) error {
	mp := b.BeginNested(netlink.RTA_MULTIPATH)
	for i := 0; i < count; i++ {
		nh := src.NextHop(i)
		r := b.BeginRegion(netlink.SizeofRtNexthop)
		if nh.Gateway.IsValid() {
			gw, err := EncodeAddr(fam, nh.Gateway)
			if err != nil {
				return fmt.Errorf("next hop %d gateway: %w", i, err)
			}
			b.AddAttr(netlink.RTA_GATEWAY, gw)
		}
		h := b.Header(r)
		h[rtnhFlags] = nh.Flags
		h[rtnhHops] = nh.Weight
		netlink.PutUint32(h[rtnhIfIndex:], uint32(int32(nh.IfIndex)))
		if err := b.End(r); err != nil {
			return fmt.Errorf("next hop %d: %w", i, err)
		}
	}
	if err := b.End(mp); err != nil {
		return fmt.Errorf("multipath with %d hops: %w", count, err)
	}
	return nil
}
