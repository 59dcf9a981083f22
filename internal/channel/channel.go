// Package channel defines the kernel notification channels the dispatcher
// listens on. Each channel knows its multicast groups, how to turn one of
// its messages into a store object, and which dump requests replay its
// full state.
package channel

import (
	"fmt"

	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
)

// Kind identifies a channel.
type Kind int

const (
	Link Kind = iota
	Neighbor
	Route
	NetConf
)

func (k Kind) String() string {
	switch k {
	case Link:
		return "link"
	case Neighbor:
		return "neighbor"
	case Route:
		return "route"
	case NetConf:
		return "netconf"
	default:
		return fmt.Sprintf("channel(%d)", int(k))
	}
}

// ResyncOrder is the order in which channels replay their tables, so that
// interfaces exist before the neighbors and routes that refer to them.
var ResyncOrder = []Kind{Link, Neighbor, Route, NetConf}

// DumpRequest is one full-table GET issued during a resync.
type DumpRequest struct {
	Type     uint16
	Family   uint8
	FixedLen int
}

// Channel is one kernel notification source.
type Channel interface {
	Kind() Kind
	// Groups is the multicast bind mask.
	Groups() uint32
	// Decode converts one message. Errors are *route.DecodeError so the
	// caller can tell malformed input from deliberate drops.
	Decode(m *netlink.Message) (*store.Object, error)
	DumpRequests() []DumpRequest
}

// NameResolver maps an interface index to its name.
type NameResolver interface {
	InterfaceName(index int) (string, bool)
}

// New returns the channels in ResyncOrder.
func New(names NameResolver, decoder *route.Decoder) []Channel {
	return []Channel{
		&linkChannel{names: names},
		&neighborChannel{names: names},
		&routeChannel{decoder: decoder},
		&netconfChannel{},
	}
}

func malformed(err error, format string, args ...interface{}) error {
	return &route.DecodeError{Kind: route.Malformed, Reason: fmt.Sprintf(format, args...), Err: err}
}

func filtered(format string, args ...interface{}) error {
	return &route.DecodeError{Kind: route.Filtered, Reason: fmt.Sprintf(format, args...)}
}

// opFor maps a NEW/DEL message type pair to an operation.
func opFor(msgType, newType, delType uint16) (route.Operation, error) {
	switch msgType {
	case newType:
		return route.OpAdd, nil
	case delType:
		return route.OpDelete, nil
	default:
		return 0, malformed(nil, "unexpected message type %d", msgType)
	}
}

func familyValid(f uint8) bool {
	return f == netlink.AF_INET || f == netlink.AF_INET6
}
