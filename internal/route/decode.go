package route

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/wesleywu/routesync/internal/logger"
	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/policy"
)

// rtMsg is struct rtmsg.
type rtMsg struct {
	Family   uint8
	DstLen   uint8
	SrcLen   uint8
	Tos      uint8
	Table    uint8
	Protocol uint8
	Scope    uint8
	Type     uint8
	Flags    uint32
}

func parseRtMsg(b []byte) rtMsg {
	return rtMsg{
		Family:   b[0],
		DstLen:   b[1],
		SrcLen:   b[2],
		Tos:      b[3],
		Table:    b[4],
		Protocol: b[5],
		Scope:    b[6],
		Type:     b[7],
		Flags:    netlink.Uint32(b[8:12]),
	}
}

// Decoder turns RTM_NEWROUTE/RTM_DELROUTE notifications into records.
type Decoder struct {
	policy *policy.Policy
	log    *logger.Logger
}

func NewDecoder(p *policy.Policy, log *logger.Logger) *Decoder {
	return &Decoder{policy: p, log: log.WithComponent("route-decoder")}
}

// Decode converts one message. Every failure is a *DecodeError; nothing in
// the returned record aliases the message buffer.
func (d *Decoder) Decode(m *netlink.Message) (*Record, error) {
	if len(m.Data) < netlink.SizeofRtMsg {
		return nil, malformed(netlink.ErrShortMessage, "rtmsg truncated to %d bytes", len(m.Data))
	}
	rt := parseRtMsg(m.Data)

	fam := Family(rt.Family)
	if !fam.Valid() {
		return nil, filtered("address family %d", rt.Family)
	}

	var op Operation
	switch m.Header.Type {
	case netlink.RTM_NEWROUTE:
		op = OpAdd
		if m.Header.Flags&netlink.NLM_F_REPLACE != 0 {
			op = OpUpdate
		}
	case netlink.RTM_DELROUTE:
		op = OpDelete
	default:
		return nil, malformed(nil, "message type %d is not a route", m.Header.Type)
	}

	attrs, err := netlink.ParseMessageAttrs(m, netlink.SizeofRtMsg)
	if err != nil {
		return nil, malformed(err, "attributes")
	}

	var dst netip.Addr
	rawDst, hasDst := attrs[netlink.RTA_DST]
	if hasDst && fam == IPv6 {
		if dst, err = DecodeAddr(fam, rawDst); err != nil {
			return nil, malformed(err, "destination")
		}
		if policy.IsLinkLocal(dst) {
			return nil, filtered("link-local destination %s", dst)
		}
	}

	rtype := Type(rt.Type)
	if !rtype.Supported() {
		return nil, filtered("route type %d", rt.Type)
	}

	if rt.Flags&netlink.RTM_F_CLONED != 0 && fam == IPv6 {
		return nil, filtered("cloned cache entry")
	}

	rec := &Record{
		Family:   fam,
		Op:       op,
		Protocol: rt.Protocol,
		Type:     rtype,
		Table:    uint32(rt.Table),
		Scope:    rt.Scope,
		Flags:    rt.Flags,
	}
	if table, ok, err := attrs.Uint32(netlink.RTA_TABLE); err != nil {
		return nil, malformed(err, "table")
	} else if ok {
		rec.Table = table
	}

	if hasDst {
		if !dst.IsValid() {
			if dst, err = DecodeAddr(fam, rawDst); err != nil {
				return nil, malformed(err, "destination")
			}
		}
		if int(rt.DstLen) > dst.BitLen() {
			return nil, malformed(nil, "prefix length %d exceeds %s", rt.DstLen, fam)
		}
		rec.Dst = netip.PrefixFrom(dst, int(rt.DstLen))
	}

	var hop NextHop
	flat := false

	if raw, ok := attrs[netlink.RTA_GATEWAY]; ok {
		flat = true
		if gw, err := DecodeAddr(fam, raw); err != nil {
			d.log.Debug("Ignoring gateway attribute", slog.Any("error", err))
		} else {
			hop.Gateway = gw
		}
	}

	if raw, ok := attrs[netlink.RTA_OIF]; ok {
		flat = true
		if !rtype.Unreachable() {
			if len(raw) != 4 {
				return nil, malformed(nil, "output interface attribute of %d bytes", len(raw))
			}
			index := int(int32(netlink.Uint32(raw)))
			if name, ok := d.policy.InterfaceName(index); ok {
				if d.policy.IsSubInterface(name) {
					return nil, filtered("sub-interface %s", name)
				}
				if d.policy.IsReserved(name) {
					return nil, filtered("reserved interface %s", name)
				}
			}
			hop.IfIndex = index
		}
	}

	if prio, ok, err := attrs.Uint32(netlink.RTA_PRIORITY); err != nil {
		return nil, malformed(err, "priority")
	} else if ok {
		rec.Priority = prio
		if prio <= 0xff {
			hop.Weight = uint8(prio)
		}
	}

	if raw, ok := attrs[netlink.RTA_MULTIPATH]; ok {
		hops, err := d.decodeMultipath(fam, raw)
		if err != nil {
			return nil, malformed(err, "multipath")
		}
		rec.NextHops = hops
	} else if flat {
		rec.NextHops = []NextHop{hop}
	}

	d.logRecord(m, rt, rec)
	return rec, nil
}

func (d *Decoder) logRecord(m *netlink.Message, rt rtMsg, rec *Record) {
	if !d.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []interface{}{
		slog.Int("nlmsg_type", int(m.Header.Type)),
		slog.Int("nlmsg_flags", int(m.Header.Flags)),
		slog.String("op", rec.Op.String()),
		slog.String("family", rec.Family.String()),
		slog.Int("table", int(rec.Table)),
		slog.Int("protocol", int(rec.Protocol)),
		slog.Int("scope", int(rec.Scope)),
		slog.String("type", rec.Type.String()),
		slog.Int("flags", int(rt.Flags)),
		slog.Bool("multipath", rec.Multipath()),
		slog.Int("hops", rec.HopCount()),
	}
	if rec.Dst.IsValid() {
		attrs = append(attrs, slog.String("prefix", rec.Dst.String()))
	}
	if len(rec.NextHops) == 1 {
		if gw := rec.NextHops[0].Gateway; gw.IsValid() {
			attrs = append(attrs, slog.String("gateway", gw.String()))
		}
		attrs = append(attrs, slog.Int("ifindex", rec.NextHops[0].IfIndex))
	}
	d.log.Debug("Route event", attrs...)
}
