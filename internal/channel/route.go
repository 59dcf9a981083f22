package channel

import (
	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
)

type routeChannel struct {
	decoder *route.Decoder
}

func (c *routeChannel) Kind() Kind { return Route }

func (c *routeChannel) Groups() uint32 {
	return netlink.GroupMask(netlink.RTNLGRP_IPV4_ROUTE, netlink.RTNLGRP_IPV6_ROUTE)
}

func (c *routeChannel) Decode(m *netlink.Message) (*store.Object, error) {
	rec, err := c.decoder.Decode(m)
	if err != nil {
		return nil, err
	}
	return store.RouteObject(rec), nil
}

func (c *routeChannel) DumpRequests() []DumpRequest {
	return []DumpRequest{
		{Type: netlink.RTM_GETROUTE, Family: netlink.AF_INET, FixedLen: netlink.SizeofRtMsg},
		{Type: netlink.RTM_GETROUTE, Family: netlink.AF_INET6, FixedLen: netlink.SizeofRtMsg},
	}
}
