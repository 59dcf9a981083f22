// Package iface answers interface questions for the route filters and
// lists the addresses configured on the host.
package iface

import (
	"net"
	"net/netip"

	"github.com/wesleywu/routesync/internal/policy"
)

// Address is one address assigned to an interface.
type Address struct {
	Name   string
	Index  int
	Prefix netip.Prefix
}

func interfaceAddresses(name string, index int, addrs []net.Addr) []Address {
	var result []Address
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip, ok := netip.AddrFromSlice(ipNet.IP)
		if !ok {
			continue
		}
		ones, _ := ipNet.Mask.Size()
		result = append(result, Address{
			Name:   name,
			Index:  index,
			Prefix: netip.PrefixFrom(ip.Unmap(), ones),
		})
	}
	return result
}

// Classifier decides which VLAN interfaces are management VLANs.
type Classifier struct {
	names map[string]bool
	ids   map[int]bool
}

func NewClassifier(names []string, ids []int) *Classifier {
	c := &Classifier{names: make(map[string]bool), ids: make(map[int]bool)}
	for _, n := range names {
		c.names[n] = true
	}
	for _, id := range ids {
		c.ids[id] = true
	}
	return c
}

// Classify maps a kernel link type (as reported by rtnetlink's
// IFLA_INFO_KIND, "device" for plain ports) to an InterfaceInfo.
func (c *Classifier) Classify(name string, index int, kind string, vlanID int) policy.InterfaceInfo {
	info := policy.InterfaceInfo{Name: name, Index: index}
	switch kind {
	case "vlan":
		info.Type = policy.TypeVLAN
		info.Management = c.names[name] || c.ids[vlanID]
	case "bond":
		info.Type = policy.TypeBond
	case "device":
		info.Type = policy.TypePhysical
	default:
		info.Type = policy.TypeOther
	}
	if name == "lo" {
		info.Type = policy.TypeLoopback
	}
	return info
}
