package channel

import (
	"strconv"

	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/store"
)

// NetConf object attribute ids.
const (
	AttrForwarding   = "forwarding"
	AttrRPFilter     = "rp_filter"
	AttrMCForwarding = "mc_forwarding"
	AttrProxyNeigh   = "proxy_neigh"
)

// Special NETCONFA_IFINDEX values.
const (
	netconfIfIndexAll     = -1
	netconfIfIndexDefault = -2
)

type netconfChannel struct{}

func (c *netconfChannel) Kind() Kind { return NetConf }

func (c *netconfChannel) Groups() uint32 {
	return netlink.GroupMask(netlink.RTNLGRP_IPV4_NETCONF, netlink.RTNLGRP_IPV6_NETCONF)
}

func (c *netconfChannel) DumpRequests() []DumpRequest {
	return []DumpRequest{
		{Type: netlink.RTM_GETNETCONF, Family: netlink.AF_INET, FixedLen: netlink.SizeofNetconfMsg},
		{Type: netlink.RTM_GETNETCONF, Family: netlink.AF_INET6, FixedLen: netlink.SizeofNetconfMsg},
	}
}

func (c *netconfChannel) Decode(m *netlink.Message) (*store.Object, error) {
	op, err := opFor(m.Header.Type, netlink.RTM_NEWNETCONF, netlink.RTM_DELNETCONF)
	if err != nil {
		return nil, err
	}
	if len(m.Data) < 1 {
		return nil, malformed(netlink.ErrShortMessage, "netconfmsg truncated")
	}
	fam := m.Data[0]
	if !familyValid(fam) {
		return nil, filtered("netconf family %d", fam)
	}
	attrs, err := netlink.ParseMessageAttrs(m, netlink.SizeofNetconfMsg)
	if err != nil {
		return nil, malformed(err, "netconf attributes")
	}
	v, ok, err := attrs.Uint32(netlink.NETCONFA_IFINDEX)
	if err != nil || !ok {
		return nil, malformed(err, "netconf without interface index")
	}
	index := int(int32(v))

	scope := strconv.Itoa(index)
	switch index {
	case netconfIfIndexAll:
		scope = "all"
	case netconfIfIndexDefault:
		scope = "default"
	}
	o := store.NewObject(store.CategoryNetConf, strconv.Itoa(int(fam))+store.KeySeparator+scope)
	o.Op = op
	o.SetUint(store.AttrFamily, uint64(fam))
	o.SetInt(store.AttrIfIndex, int64(index))

	for typ, id := range map[uint16]string{
		netlink.NETCONFA_FORWARDING:    AttrForwarding,
		netlink.NETCONFA_RP_FILTER:     AttrRPFilter,
		netlink.NETCONFA_MC_FORWARDING: AttrMCForwarding,
		netlink.NETCONFA_PROXY_NEIGH:   AttrProxyNeigh,
	} {
		v, ok, err := attrs.Uint32(typ)
		if err != nil {
			return nil, malformed(err, "netconf attribute %d", typ)
		}
		if ok {
			o.SetInt(id, int64(int32(v)))
		}
	}
	return o, nil
}
