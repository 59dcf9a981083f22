package policy

import (
	"net/netip"
	"testing"
)

type fakeLookup struct {
	names map[int]string
	infos map[string]InterfaceInfo
}

func (f *fakeLookup) NameByIndex(index int) (string, bool) {
	n, ok := f.names[index]
	return n, ok
}

func (f *fakeLookup) InfoByName(name string) (InterfaceInfo, bool) {
	i, ok := f.infos[name]
	return i, ok
}

func TestIsReserved(t *testing.T) {
	lookup := &fakeLookup{infos: map[string]InterfaceInfo{
		"br100": {Name: "br100", Type: TypeVLAN},
		"br200": {Name: "br200", Type: TypeVLAN, Management: true},
		"bo1":   {Name: "bo1", Type: TypeBond, Management: true},
	}}
	p := New(DefaultConfig(), lookup)

	tests := []struct {
		name string
		want bool
	}{
		{"eth0", true},
		{"eth1", true},
		{"lo", true},
		{"lo1", false},
		{"loopback0", false},
		{"br100", false},
		{"br200", true},
		{"bo1", false},
		{"e101-001-0", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.IsReserved(tt.name); got != tt.want {
				t.Errorf("IsReserved(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestIsReservedWithoutLookup(t *testing.T) {
	p := New(DefaultConfig(), nil)
	if p.IsReserved("br200") {
		t.Error("unknown interface reported as reserved")
	}
	if _, ok := p.InterfaceName(3); ok {
		t.Error("InterfaceName() resolved without a lookup service")
	}
}

func TestIsSubInterface(t *testing.T) {
	p := New(DefaultConfig(), nil)
	if !p.IsSubInterface("e101-001-0.100") {
		t.Error("IsSubInterface() missed a dotted name")
	}
	if p.IsSubInterface("e101-001-0") {
		t.Error("IsSubInterface() matched a plain name")
	}
}

func TestIsLinkLocal(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"fe80::1", true},
		{"febf::1", true},
		{"fec0::1", false},
		{"2001:db8::1", false},
		{"169.254.1.1", false},
	}
	for _, tt := range tests {
		if got := IsLinkLocal(netip.MustParseAddr(tt.addr)); got != tt.want {
			t.Errorf("IsLinkLocal(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
