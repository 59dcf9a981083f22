// Package route converts between kernel rtnetlink route messages and the
// canonical route record published to subscribers.
package route

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/wesleywu/routesync/internal/netlink"
)

// Family is the address family of a route.
type Family uint8

const (
	FamilyUnspec Family = netlink.AF_UNSPEC
	IPv4         Family = netlink.AF_INET
	IPv6         Family = netlink.AF_INET6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// Valid reports whether f is IPv4 or IPv6.
func (f Family) Valid() bool {
	return f == IPv4 || f == IPv6
}

// AddrLen is the wire width of an address of this family.
func (f Family) AddrLen() int {
	switch f {
	case IPv4:
		return 4
	case IPv6:
		return 16
	default:
		return 0
	}
}

// ParseFamily accepts the names used on the command line and in read
// requests. An empty name means both families.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(s) {
	case "", "all", "unspec":
		return FamilyUnspec, nil
	case "ipv4", "inet", "4":
		return IPv4, nil
	case "ipv6", "inet6", "6":
		return IPv6, nil
	default:
		return FamilyUnspec, fmt.Errorf("unknown address family %q", s)
	}
}

// FamilyOf returns the family of addr.
func FamilyOf(addr netip.Addr) Family {
	addr = addr.Unmap()
	switch {
	case addr.Is4():
		return IPv4
	case addr.Is6():
		return IPv6
	default:
		return FamilyUnspec
	}
}

// Operation is what happened to a route (decode) or what to do with it
// (encode). Add is create-exclusive on the encode side.
type Operation uint8

const (
	OpAdd Operation = iota + 1
	OpUpdate
	OpDelete
)

func (o Operation) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseOperation accepts the String forms plus the common aliases used on
// the command line and in write requests.
func ParseOperation(s string) (Operation, error) {
	switch strings.ToLower(s) {
	case "add", "create":
		return OpAdd, nil
	case "update", "replace", "set":
		return OpUpdate, nil
	case "delete", "del":
		return OpDelete, nil
	default:
		return 0, fmt.Errorf("unknown route operation %q", s)
	}
}

// Type is the kernel route type. Only the values declared here survive
// decoding.
type Type uint8

const (
	TypeUnicast     Type = netlink.RTN_UNICAST
	TypeLocal       Type = netlink.RTN_LOCAL
	TypeBlackhole   Type = netlink.RTN_BLACKHOLE
	TypeUnreachable Type = netlink.RTN_UNREACHABLE
	TypeProhibit    Type = netlink.RTN_PROHIBIT
)

func (t Type) String() string {
	switch t {
	case TypeUnicast:
		return "unicast"
	case TypeLocal:
		return "local"
	case TypeBlackhole:
		return "blackhole"
	case TypeUnreachable:
		return "unreachable"
	case TypeProhibit:
		return "prohibit"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Supported reports whether routes of this type are published.
func (t Type) Supported() bool {
	switch t {
	case TypeUnicast, TypeLocal, TypeBlackhole, TypeUnreachable, TypeProhibit:
		return true
	}
	return false
}

// Unreachable reports whether the type drops traffic locally. The kernel
// reports such routes against the loopback interface.
func (t Type) Unreachable() bool {
	return t == TypeBlackhole || t == TypeUnreachable || t == TypeProhibit
}

// NextHop is one member of a route's next-hop set. A zero Gateway or
// IfIndex means the kernel did not report one.
type NextHop struct {
	Gateway netip.Addr
	IfIndex int
	Weight  uint8
	Flags   uint8
}

// Record is the canonical form of a kernel route.
type Record struct {
	Family   Family
	Op       Operation
	Protocol uint8
	// Dst is invalid when the kernel sent no destination attribute.
	Dst      netip.Prefix
	Type     Type
	NextHops []NextHop

	Table    uint32
	Scope    uint8
	Flags    uint32
	Priority uint32
}

// HopCount is the number of next hops.
func (r *Record) HopCount() int {
	return len(r.NextHops)
}

// Multipath reports whether the record needs the multipath encoding.
func (r *Record) Multipath() bool {
	return len(r.NextHops) > 1
}

func (r *Record) String() string {
	var b strings.Builder
	dst := "default"
	if r.Dst.IsValid() {
		dst = r.Dst.String()
	}
	fmt.Fprintf(&b, "%s %s %s %s", r.Op, r.Family, dst, r.Type)
	for _, nh := range r.NextHops {
		b.WriteString(" nexthop")
		if nh.Gateway.IsValid() {
			fmt.Fprintf(&b, " via %s", nh.Gateway)
		}
		if nh.IfIndex != 0 {
			fmt.Fprintf(&b, " dev %d", nh.IfIndex)
		}
		if nh.Weight != 0 {
			fmt.Fprintf(&b, " weight %d", nh.Weight)
		}
	}
	return b.String()
}
