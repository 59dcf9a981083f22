package channel

import (
	"net"
	"strconv"

	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
)

// Neighbor object attribute ids.
const (
	AttrIP    = "ip"
	AttrState = "state"
)

type neighborChannel struct {
	names NameResolver
}

func (c *neighborChannel) Kind() Kind { return Neighbor }

func (c *neighborChannel) Groups() uint32 {
	return netlink.GroupMask(netlink.RTNLGRP_NEIGH)
}

func (c *neighborChannel) DumpRequests() []DumpRequest {
	return []DumpRequest{
		{Type: netlink.RTM_GETNEIGH, Family: netlink.AF_INET, FixedLen: netlink.SizeofNdMsg},
		{Type: netlink.RTM_GETNEIGH, Family: netlink.AF_INET6, FixedLen: netlink.SizeofNdMsg},
	}
}

// struct ndmsg: family, pad1, pad2 u16, ifindex i32, state u16, flags,
// type.
func (c *neighborChannel) Decode(m *netlink.Message) (*store.Object, error) {
	op, err := opFor(m.Header.Type, netlink.RTM_NEWNEIGH, netlink.RTM_DELNEIGH)
	if err != nil {
		return nil, err
	}
	if len(m.Data) < netlink.SizeofNdMsg {
		return nil, malformed(netlink.ErrShortMessage, "ndmsg truncated")
	}
	fam := route.Family(m.Data[0])
	if !fam.Valid() {
		return nil, filtered("neighbor family %d", m.Data[0])
	}
	index := int(int32(netlink.Uint32(m.Data[4:])))
	state := netlink.Uint16(m.Data[8:])

	attrs, err := netlink.ParseMessageAttrs(m, netlink.SizeofNdMsg)
	if err != nil {
		return nil, malformed(err, "neighbor attributes")
	}
	raw, ok := attrs[netlink.NDA_DST]
	if !ok {
		return nil, malformed(nil, "neighbor without destination")
	}
	ip, err := route.DecodeAddr(fam, raw)
	if err != nil {
		return nil, malformed(err, "neighbor destination")
	}

	ifname, ok := c.names.InterfaceName(index)
	if !ok {
		ifname = strconv.Itoa(index)
	}
	o := store.NewObject(store.CategoryNeighbor, ifname+store.KeySeparator+ip.String())
	o.Op = op
	o.SetUint(store.AttrFamily, uint64(fam))
	o.Set(store.AttrIfName, ifname)
	o.SetInt(store.AttrIfIndex, int64(index))
	o.SetAddr(AttrIP, ip)
	o.SetUint(AttrState, uint64(state))
	if mac, ok := attrs[netlink.NDA_LLADDR]; ok && len(mac) > 0 {
		o.Set(AttrMAC, net.HardwareAddr(mac).String())
	}
	return o, nil
}
