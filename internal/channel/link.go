package channel

import (
	"net"
	"net/netip"
	"strconv"

	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
)

// Link object attribute ids.
const (
	AttrMTU        = "mtu"
	AttrMAC        = "mac"
	AttrAdmin      = "admin_status"
	AttrOperStatus = "oper_status"
	AttrMaster     = "master"
)

const iffUp = 0x1

// IF_OPER_* values from uapi/linux/if.h.
var operStates = []string{"unknown", "notpresent", "down", "lowerlayerdown", "testing", "dormant", "up"}

// linkChannel carries interface and interface address notifications.
type linkChannel struct {
	names NameResolver
}

func (c *linkChannel) Kind() Kind { return Link }

func (c *linkChannel) Groups() uint32 {
	return netlink.GroupMask(netlink.RTNLGRP_LINK, netlink.RTNLGRP_IPV4_IFADDR, netlink.RTNLGRP_IPV6_IFADDR)
}

func (c *linkChannel) DumpRequests() []DumpRequest {
	return []DumpRequest{
		{Type: netlink.RTM_GETLINK, Family: netlink.AF_UNSPEC, FixedLen: netlink.SizeofIfInfoMsg},
		{Type: netlink.RTM_GETADDR, Family: netlink.AF_INET, FixedLen: netlink.SizeofIfAddrMsg},
		{Type: netlink.RTM_GETADDR, Family: netlink.AF_INET6, FixedLen: netlink.SizeofIfAddrMsg},
	}
}

func (c *linkChannel) Decode(m *netlink.Message) (*store.Object, error) {
	switch m.Header.Type {
	case netlink.RTM_NEWLINK, netlink.RTM_DELLINK:
		return c.decodeLink(m)
	case netlink.RTM_NEWADDR, netlink.RTM_DELADDR:
		return c.decodeAddr(m)
	default:
		return nil, malformed(nil, "unexpected message type %d", m.Header.Type)
	}
}

// struct ifinfomsg: family, pad, type u16, index i32, flags u32, change u32.
func (c *linkChannel) decodeLink(m *netlink.Message) (*store.Object, error) {
	op, err := opFor(m.Header.Type, netlink.RTM_NEWLINK, netlink.RTM_DELLINK)
	if err != nil {
		return nil, err
	}
	if len(m.Data) < netlink.SizeofIfInfoMsg {
		return nil, malformed(netlink.ErrShortMessage, "ifinfomsg truncated")
	}
	index := int(int32(netlink.Uint32(m.Data[4:])))
	flags := netlink.Uint32(m.Data[8:])

	attrs, err := netlink.ParseMessageAttrs(m, netlink.SizeofIfInfoMsg)
	if err != nil {
		return nil, malformed(err, "link attributes")
	}
	name, ok := attrs.String(netlink.IFLA_IFNAME)
	if !ok || name == "" {
		return nil, malformed(nil, "link %d has no name", index)
	}

	o := store.NewObject(store.CategoryLink, name)
	o.Op = op
	o.Set(store.AttrIfName, name)
	o.SetInt(store.AttrIfIndex, int64(index))
	if flags&iffUp != 0 {
		o.Set(AttrAdmin, "up")
	} else {
		o.Set(AttrAdmin, "down")
	}
	if mtu, ok, err := attrs.Uint32(netlink.IFLA_MTU); err != nil {
		return nil, malformed(err, "link mtu")
	} else if ok {
		o.SetUint(AttrMTU, uint64(mtu))
	}
	if mac, ok := attrs[netlink.IFLA_ADDRESS]; ok && len(mac) > 0 {
		o.Set(AttrMAC, net.HardwareAddr(mac).String())
	}
	if st, ok := attrs[netlink.IFLA_OPERSTATE]; ok && len(st) == 1 && int(st[0]) < len(operStates) {
		o.Set(AttrOperStatus, operStates[st[0]])
	}
	if master, ok, err := attrs.Uint32(netlink.IFLA_MASTER); err == nil && ok && master != 0 {
		o.SetUint(AttrMaster, uint64(master))
	}
	return o, nil
}

// struct ifaddrmsg: family, prefixlen, flags, scope, index u32.
func (c *linkChannel) decodeAddr(m *netlink.Message) (*store.Object, error) {
	op, err := opFor(m.Header.Type, netlink.RTM_NEWADDR, netlink.RTM_DELADDR)
	if err != nil {
		return nil, err
	}
	if len(m.Data) < netlink.SizeofIfAddrMsg {
		return nil, malformed(netlink.ErrShortMessage, "ifaddrmsg truncated")
	}
	fam := route.Family(m.Data[0])
	if !fam.Valid() {
		return nil, filtered("address family %d", m.Data[0])
	}
	plen := int(m.Data[1])
	index := int(netlink.Uint32(m.Data[4:]))

	attrs, err := netlink.ParseMessageAttrs(m, netlink.SizeofIfAddrMsg)
	if err != nil {
		return nil, malformed(err, "address attributes")
	}
	raw, ok := attrs[netlink.IFA_LOCAL]
	if !ok {
		raw, ok = attrs[netlink.IFA_ADDRESS]
	}
	if !ok {
		return nil, malformed(nil, "address message for %d has no address", index)
	}
	addr, err := route.DecodeAddr(fam, raw)
	if err != nil {
		return nil, malformed(err, "interface address")
	}
	if plen > addr.BitLen() {
		return nil, malformed(nil, "prefix length %d", plen)
	}

	name, ok := c.names.InterfaceName(index)
	if !ok {
		if label, ok := attrs.String(netlink.IFA_LABEL); ok && label != "" {
			name = label
		} else {
			name = strconv.Itoa(index)
		}
	}
	o, err := store.AddrObject(name, index, netip.PrefixFrom(addr, plen))
	if err != nil {
		return nil, malformed(err, "interface address")
	}
	o.Op = op
	return o, nil
}
