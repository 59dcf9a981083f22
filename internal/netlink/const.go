package netlink

// Values from uapi/linux/netlink.h and uapi/linux/rtnetlink.h. They are
// declared here instead of taken from golang.org/x/sys/unix so the codec
// builds and tests on every platform; only the socket layer is Linux-only.

const (
	AF_UNSPEC = 0
	AF_INET   = 2
	AF_INET6  = 10
)

// Message header.
const (
	HeaderLen = 16
	alignTo   = 4
)

// Control message types.
const (
	NLMSG_NOOP    = 0x1
	NLMSG_ERROR   = 0x2
	NLMSG_DONE    = 0x3
	NLMSG_OVERRUN = 0x4
)

// Routing message types.
const (
	RTM_BASE    = 16
	RTM_NEWLINK = 16
	RTM_DELLINK = 17
	RTM_GETLINK = 18
	RTM_SETLINK = 19

	RTM_NEWADDR = 20
	RTM_DELADDR = 21
	RTM_GETADDR = 22

	RTM_NEWROUTE = 24
	RTM_DELROUTE = 25
	RTM_GETROUTE = 26

	RTM_NEWNEIGH = 28
	RTM_DELNEIGH = 29
	RTM_GETNEIGH = 30

	RTM_NEWNETCONF = 80
	RTM_DELNETCONF = 81
	RTM_GETNETCONF = 82
)

// Header flags.
const (
	NLM_F_REQUEST   = 0x1
	NLM_F_MULTI     = 0x2
	NLM_F_ACK       = 0x4
	NLM_F_ECHO      = 0x8
	NLM_F_DUMP_INTR = 0x10

	// Modifiers to GET requests.
	NLM_F_ROOT   = 0x100
	NLM_F_MATCH  = 0x200
	NLM_F_ATOMIC = 0x400
	NLM_F_DUMP   = NLM_F_ROOT | NLM_F_MATCH

	// Modifiers to NEW requests.
	NLM_F_REPLACE = 0x100
	NLM_F_EXCL    = 0x200
	NLM_F_CREATE  = 0x400
	NLM_F_APPEND  = 0x800
)

// Attribute type bits.
const (
	NLA_F_NESTED        = 0x8000
	NLA_F_NET_BYTEORDER = 0x4000
	NLA_TYPE_MASK       = ^uint16(NLA_F_NESTED | NLA_F_NET_BYTEORDER)

	AttrHeaderLen = 4
)

// struct rtmsg attributes.
const (
	RTA_UNSPEC    = 0
	RTA_DST       = 1
	RTA_SRC       = 2
	RTA_IIF       = 3
	RTA_OIF       = 4
	RTA_GATEWAY   = 5
	RTA_PRIORITY  = 6
	RTA_PREFSRC   = 7
	RTA_METRICS   = 8
	RTA_MULTIPATH = 9
	RTA_FLOW      = 11
	RTA_CACHEINFO = 12
	RTA_TABLE     = 15
	RTA_MARK      = 16
)

// Route types.
const (
	RTN_UNSPEC      = 0
	RTN_UNICAST     = 1
	RTN_LOCAL       = 2
	RTN_BROADCAST   = 3
	RTN_ANYCAST     = 4
	RTN_MULTICAST   = 5
	RTN_BLACKHOLE   = 6
	RTN_UNREACHABLE = 7
	RTN_PROHIBIT    = 8
	RTN_THROW       = 9
	RTN_NAT         = 10
)

const (
	RTPROT_UNSPEC = 0
	RTPROT_KERNEL = 2
	RTPROT_BOOT   = 3
	RTPROT_STATIC = 4

	RT_SCOPE_UNIVERSE = 0
	RT_SCOPE_LINK     = 253
	RT_SCOPE_HOST     = 254

	RT_TABLE_MAIN  = 254
	RT_TABLE_LOCAL = 255

	RTM_F_NOTIFY = 0x100
	RTM_F_CLONED = 0x200
)

// Fixed structure sizes.
const (
	SizeofRtMsg      = 12
	SizeofRtNexthop  = 8
	SizeofIfInfoMsg  = 16
	SizeofIfAddrMsg  = 8
	SizeofNdMsg      = 12
	SizeofNetconfMsg = 4
)

// struct ifinfomsg attributes.
const (
	IFLA_ADDRESS   = 1
	IFLA_BROADCAST = 2
	IFLA_IFNAME    = 3
	IFLA_MTU       = 4
	IFLA_LINK      = 5
	IFLA_MASTER    = 10
	IFLA_OPERSTATE = 16
)

// struct ifaddrmsg attributes.
const (
	IFA_ADDRESS = 1
	IFA_LOCAL   = 2
	IFA_LABEL   = 3
)

// struct ndmsg attributes.
const (
	NDA_DST    = 1
	NDA_LLADDR = 2
)

// struct netconfmsg attributes.
const (
	NETCONFA_IFINDEX       = 1
	NETCONFA_FORWARDING    = 2
	NETCONFA_RP_FILTER     = 3
	NETCONFA_MC_FORWARDING = 4
	NETCONFA_PROXY_NEIGH   = 5
)

// Multicast groups, rtnetlink.h enum rtnetlink_groups.
const (
	RTNLGRP_LINK         = 1
	RTNLGRP_NEIGH        = 3
	RTNLGRP_IPV4_IFADDR  = 5
	RTNLGRP_IPV4_ROUTE   = 7
	RTNLGRP_IPV6_IFADDR  = 9
	RTNLGRP_IPV6_ROUTE   = 11
	RTNLGRP_IPV4_NETCONF = 24
	RTNLGRP_IPV6_NETCONF = 25
)

// GroupMask converts multicast group numbers into the legacy bind mask.
func GroupMask(groups ...uint) uint32 {
	var mask uint32
	for _, g := range groups {
		if g > 0 && g <= 32 {
			mask |= 1 << (g - 1)
		}
	}
	return mask
}

func align(n int) int {
	return (n + alignTo - 1) &^ (alignTo - 1)
}
