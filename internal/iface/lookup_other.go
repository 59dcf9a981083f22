//go:build !linux

package iface

import (
	"fmt"
	"net"

	"github.com/wesleywu/routesync/internal/policy"
)

// Lookup resolves interfaces through the net package. Link types are not
// available, so no interface is ever a management VLAN.
type Lookup struct {
	classifier *Classifier
}

func NewLookup(c *Classifier) *Lookup {
	return &Lookup{classifier: c}
}

func (l *Lookup) NameByIndex(index int) (string, bool) {
	ifc, err := net.InterfaceByIndex(index)
	if err != nil {
		return "", false
	}
	return ifc.Name, true
}

func (l *Lookup) InfoByName(name string) (policy.InterfaceInfo, bool) {
	ifc, err := net.InterfaceByName(name)
	if err != nil {
		return policy.InterfaceInfo{}, false
	}
	return l.classifier.Classify(name, ifc.Index, "", 0), true
}

// Addresses lists every interface address on the host.
func Addresses() ([]Address, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	var result []Address
	for _, ifc := range interfaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		result = append(result, interfaceAddresses(ifc.Name, ifc.Index, addrs)...)
	}
	return result, nil
}
