//go:build linux

package iface

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"

	"github.com/wesleywu/routesync/internal/policy"
)

// Lookup resolves interfaces through rtnetlink.
type Lookup struct {
	classifier *Classifier
}

func NewLookup(c *Classifier) *Lookup {
	return &Lookup{classifier: c}
}

func (l *Lookup) NameByIndex(index int) (string, bool) {
	link, err := netlink.LinkByIndex(index)
	if err != nil {
		return "", false
	}
	return link.Attrs().Name, true
}

func (l *Lookup) InfoByName(name string) (policy.InterfaceInfo, bool) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return policy.InterfaceInfo{}, false
	}
	vlanID := 0
	if v, ok := link.(*netlink.Vlan); ok {
		vlanID = v.VlanId
	}
	return l.classifier.Classify(name, link.Attrs().Index, link.Type(), vlanID), true
}

// Addresses lists every interface address on the host, both families.
func Addresses() ([]Address, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	var result []Address
	for _, link := range links {
		attrs := link.Attrs()
		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			continue
		}
		nets := make([]net.Addr, 0, len(addrs))
		for _, a := range addrs {
			if a.IPNet != nil {
				nets = append(nets, a.IPNet)
			}
		}
		result = append(result, interfaceAddresses(attrs.Name, attrs.Index, nets)...)
	}
	return result, nil
}
