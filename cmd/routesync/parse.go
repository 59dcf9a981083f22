package main

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
)

// parseDestination accepts a prefix, a bare address (host route),
// "default"/"default6", or an abbreviated IPv4 network such as "10/8" or
// "172.16/12".
func parseDestination(dest string) (netip.Prefix, error) {
	switch dest {
	case "default":
		return netip.MustParsePrefix("0.0.0.0/0"), nil
	case "default6":
		return netip.MustParsePrefix("::/0"), nil
	}

	if ip, bits, ok := strings.Cut(dest, "/"); ok && !strings.Contains(ip, ":") {
		switch strings.Count(ip, ".") {
		case 0:
			ip += ".0.0.0"
		case 1:
			ip += ".0.0"
		case 2:
			ip += ".0"
		}
		dest = ip + "/" + bits
	}

	p, err := store.ParsePrefixName(dest)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("unsupported destination format: %s", dest)
	}
	if p != p.Masked() {
		return netip.Prefix{}, fmt.Errorf("destination %s has host bits set", dest)
	}
	return p, nil
}

// interfaceIndex resolves an interface by name or number.
type interfaceIndex func(name string) (int, error)

// parseNextHop reads "GATEWAY[,dev=IFACE][,weight=N]" or "dev=IFACE[,...]".
func parseNextHop(s string, fam route.Family, resolve interfaceIndex) (route.NextHop, error) {
	var nh route.NextHop
	for i, part := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(part, "=")
		if !ok {
			if i != 0 {
				return nh, fmt.Errorf("next hop %q: unexpected %q", s, part)
			}
			gw, err := netip.ParseAddr(part)
			if err != nil {
				return nh, fmt.Errorf("next hop %q: %w", s, err)
			}
			if route.FamilyOf(gw) != fam {
				return nh, fmt.Errorf("next hop %q: gateway is not %s", s, fam)
			}
			nh.Gateway = gw.Unmap()
			continue
		}
		switch key {
		case "dev":
			if n, err := strconv.Atoi(val); err == nil {
				nh.IfIndex = n
				break
			}
			if resolve == nil {
				return nh, fmt.Errorf("next hop %q: cannot resolve interface %s", s, val)
			}
			idx, err := resolve(val)
			if err != nil {
				return nh, fmt.Errorf("next hop %q: %w", s, err)
			}
			nh.IfIndex = idx
		case "weight":
			w, err := strconv.ParseUint(val, 10, 8)
			if err != nil {
				return nh, fmt.Errorf("next hop %q: invalid weight %s", s, val)
			}
			nh.Weight = uint8(w)
		default:
			return nh, fmt.Errorf("next hop %q: unknown option %s", s, key)
		}
	}
	return nh, nil
}

// routeRecord assembles the record for a route command.
func routeRecord(op route.Operation, dest string, hops []string, resolve interfaceIndex) (*route.Record, error) {
	dst, err := parseDestination(dest)
	if err != nil {
		return nil, err
	}
	rec := &route.Record{
		Family: route.FamilyOf(dst.Addr()),
		Op:     op,
		Dst:    dst,
		Type:   route.TypeUnicast,
	}
	for _, h := range hops {
		nh, err := parseNextHop(h, rec.Family, resolve)
		if err != nil {
			return nil, err
		}
		rec.NextHops = append(rec.NextHops, nh)
	}
	if op != route.OpDelete && len(rec.NextHops) == 0 {
		return nil, fmt.Errorf("route %s needs at least one next hop", dst)
	}
	return rec, nil
}
