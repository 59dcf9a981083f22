package channel

import "net/netip"

func netipSlice(s string) []byte {
	return netip.MustParseAddr(s).AsSlice()
}

func mustPrefix(s string) netip.Prefix {
	return netip.MustParsePrefix(s)
}
