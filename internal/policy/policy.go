// Package policy decides which kernel routes and next hops are kept out of
// the published route table.
package policy

import (
	"net/netip"
	"strings"
)

// InterfaceType classifies an interface as reported by the lookup service.
type InterfaceType int

const (
	TypeOther InterfaceType = iota
	TypePhysical
	TypeVLAN
	TypeBond
	TypeLoopback
)

func (t InterfaceType) String() string {
	switch t {
	case TypePhysical:
		return "physical"
	case TypeVLAN:
		return "vlan"
	case TypeBond:
		return "bond"
	case TypeLoopback:
		return "loopback"
	default:
		return "other"
	}
}

// InterfaceInfo is what the lookup service knows about an interface.
type InterfaceInfo struct {
	Name       string
	Index      int
	Type       InterfaceType
	Management bool
}

// Lookup resolves interfaces. A false result means the interface is
// unknown, which is never treated as an error.
type Lookup interface {
	NameByIndex(index int) (string, bool)
	InfoByName(name string) (InterfaceInfo, bool)
}

// Config holds the naming conventions the predicates match against.
type Config struct {
	UplinkPrefix          string
	LoopbackName          string
	SubInterfaceDelimiter string
}

// DefaultConfig returns the conventions used on the switch images.
func DefaultConfig() Config {
	return Config{
		UplinkPrefix:          "eth",
		LoopbackName:          "lo",
		SubInterfaceDelimiter: ".",
	}
}

// Policy is a stateless predicate set over a lookup service.
type Policy struct {
	cfg    Config
	lookup Lookup
}

func New(cfg Config, lookup Lookup) *Policy {
	return &Policy{cfg: cfg, lookup: lookup}
}

// InterfaceName resolves a kernel interface index.
func (p *Policy) InterfaceName(index int) (string, bool) {
	if p.lookup == nil {
		return "", false
	}
	return p.lookup.NameByIndex(index)
}

// IsSubInterface reports whether name carries an encapsulation suffix,
// e.g. "e101-001-0.100".
func (p *Policy) IsSubInterface(name string) bool {
	return p.cfg.SubInterfaceDelimiter != "" && strings.Contains(name, p.cfg.SubInterfaceDelimiter)
}

// IsReserved reports whether routes through name must never be published:
// the uplink ports, the loopback, and management VLANs. Interfaces the
// lookup service does not know are not reserved.
func (p *Policy) IsReserved(name string) bool {
	if name == "" {
		return false
	}
	if p.cfg.UplinkPrefix != "" && strings.HasPrefix(name, p.cfg.UplinkPrefix) {
		return true
	}
	if name == p.cfg.LoopbackName {
		return true
	}
	if p.lookup == nil {
		return false
	}
	info, ok := p.lookup.InfoByName(name)
	if !ok {
		return false
	}
	return info.Type == TypeVLAN && info.Management
}

// IsLinkLocal reports whether a route destination is an IPv6 link-local
// address. Those are published through the interface address flow.
func IsLinkLocal(addr netip.Addr) bool {
	return addr.Is6() && !addr.Is4In6() && addr.IsLinkLocalUnicast()
}
