package store

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/route"
)

// Route attribute ids.
const (
	AttrFamily    = "family"
	AttrPrefix    = "prefix"
	AttrPrefixLen = "prefix_len"
	AttrProtocol  = "protocol"
	AttrRouteType = "route_type"
	AttrTable     = "table"
	AttrScope     = "scope"
	AttrPriority  = "priority"
	AttrHopCount  = "hop_count"

	ListNextHop  = "nh"
	FieldGateway = "gateway"
	FieldIfIndex = "ifindex"
	FieldWeight  = "weight"
	FieldFlags   = "flags"
)

// RouteName identifies one kernel route. Routes sharing a destination are
// told apart by their table and metric, e.g. "10.0.0.1/32|table=255" or
// "2001:db8::/32|metric=1024". Routes in the main table carry no table
// suffix.
type RouteName struct {
	Prefix netip.Prefix
	Table  uint32
	Metric uint32
}

const (
	nameSeparator = "|"
	nameTable     = "table"
	nameMetric    = "metric"
)

func (n RouteName) String() string {
	var sb strings.Builder
	sb.WriteString(n.Prefix.String())
	if n.Table != 0 && n.Table != netlink.RT_TABLE_MAIN {
		sb.WriteString(nameSeparator + nameTable + "=" + strconv.FormatUint(uint64(n.Table), 10))
	}
	if n.Metric != 0 {
		sb.WriteString(nameSeparator + nameMetric + "=" + strconv.FormatUint(uint64(n.Metric), 10))
	}
	return sb.String()
}

// ParseRouteName reads a name written by RouteName.String. A name without
// a table suffix is in the main table.
func ParseRouteName(name string) (RouteName, error) {
	parts := strings.Split(name, nameSeparator)
	p, err := ParsePrefixName(parts[0])
	if err != nil {
		return RouteName{}, err
	}
	n := RouteName{Prefix: p, Table: netlink.RT_TABLE_MAIN}
	for _, part := range parts[1:] {
		k, v, _ := strings.Cut(part, "=")
		u, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return RouteName{}, fmt.Errorf("route name %q: bad %s: %w", name, k, err)
		}
		switch k {
		case nameTable:
			n.Table = uint32(u)
		case nameMetric:
			n.Metric = uint32(u)
		default:
			return RouteName{}, fmt.Errorf("route name %q: unknown field %q", name, k)
		}
	}
	return n, nil
}

// routeName names a decoded record; absent destinations map to the
// family's default prefix.
func routeName(rec *route.Record) RouteName {
	dst := rec.Dst
	if !dst.IsValid() {
		if rec.Family == route.IPv6 {
			dst = netip.MustParsePrefix("::/0")
		} else {
			dst = netip.MustParsePrefix("0.0.0.0/0")
		}
	}
	return RouteName{Prefix: dst, Table: rec.Table, Metric: rec.Priority}
}

// RouteObject converts a decoded record. Next-hop fields the kernel did not
// report are left out.
func RouteObject(rec *route.Record) *Object {
	o := NewObject(CategoryRoute, routeName(rec).String())
	o.Op = rec.Op
	o.SetUint(AttrFamily, uint64(rec.Family))
	if rec.Dst.IsValid() {
		o.SetAddr(AttrPrefix, rec.Dst.Addr())
		o.SetUint(AttrPrefixLen, uint64(rec.Dst.Bits()))
	}
	o.SetUint(AttrProtocol, uint64(rec.Protocol))
	o.SetUint(AttrRouteType, uint64(rec.Type))
	o.SetUint(AttrTable, uint64(rec.Table))
	o.SetUint(AttrScope, uint64(rec.Scope))
	if rec.Priority != 0 {
		o.SetUint(AttrPriority, uint64(rec.Priority))
	}
	for i, nh := range rec.NextHops {
		if nh.Gateway.IsValid() {
			o.SetAddr(Indexed(ListNextHop, i, FieldGateway), nh.Gateway)
		}
		if nh.IfIndex != 0 {
			o.SetInt(Indexed(ListNextHop, i, FieldIfIndex), int64(nh.IfIndex))
		}
		o.SetUint(Indexed(ListNextHop, i, FieldWeight), uint64(nh.Weight))
		o.SetUint(Indexed(ListNextHop, i, FieldFlags), uint64(nh.Flags))
	}
	o.SetUint(AttrHopCount, uint64(rec.HopCount()))
	return o
}

// RouteRequest presents a write request object to the route encoder.
func RouteRequest(o *Object) route.Source {
	return routeRequest{o: o}
}

type routeRequest struct {
	o *Object
}

func (r routeRequest) Family() (route.Family, bool) {
	v, ok := r.o.Uint(AttrFamily)
	return route.Family(v), ok && v <= 0xff
}

func (r routeRequest) Destination() (netip.Addr, bool) {
	return r.o.Addr(AttrPrefix)
}

func (r routeRequest) PrefixLen() (uint8, bool) {
	v, ok := r.o.Uint(AttrPrefixLen)
	return uint8(v), ok && v <= 128
}

func (r routeRequest) HopCount() (int, bool) {
	v, ok := r.o.Uint(AttrHopCount)
	return int(v), ok && v <= 0xffff
}

func (r routeRequest) NextHop(i int) route.NextHop {
	var nh route.NextHop
	if gw, ok := r.o.Addr(Indexed(ListNextHop, i, FieldGateway)); ok {
		nh.Gateway = gw
	}
	if v, ok := r.o.Int(Indexed(ListNextHop, i, FieldIfIndex)); ok {
		nh.IfIndex = int(v)
	}
	if v, ok := r.o.Uint(Indexed(ListNextHop, i, FieldWeight)); ok {
		nh.Weight = uint8(v)
	}
	if v, ok := r.o.Uint(Indexed(ListNextHop, i, FieldFlags)); ok {
		nh.Flags = uint8(v)
	}
	return nh
}

// Interface address attribute ids.
const (
	AttrIfName  = "ifname"
	AttrIfIndex = "ifindex"
	AttrAddress = "address"
	AttrMask    = "mask"
)

// AddrObject describes one address assigned to an interface.
func AddrObject(ifname string, ifindex int, prefix netip.Prefix) (*Object, error) {
	mask, err := route.MaskFromPrefixLen(route.FamilyOf(prefix.Addr()), prefix.Bits())
	if err != nil {
		return nil, err
	}
	o := NewObject(CategoryAddr, ifname+KeySeparator+prefix.String())
	o.Set(AttrIfName, ifname)
	if ifindex != 0 {
		o.SetInt(AttrIfIndex, int64(ifindex))
	}
	o.SetAddr(AttrAddress, prefix.Addr())
	o.SetAddr(AttrMask, mask)
	o.SetUint(AttrPrefixLen, uint64(prefix.Bits()))
	o.SetUint(AttrFamily, uint64(route.FamilyOf(prefix.Addr())))
	return o, nil
}

// ParsePrefixName parses a route object name back into a prefix.
func ParsePrefixName(name string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(name)
	if err != nil {
		a, aerr := netip.ParseAddr(name)
		if aerr != nil {
			return netip.Prefix{}, err
		}
		return netip.PrefixFrom(a, a.BitLen()), nil
	}
	return p, nil
}
