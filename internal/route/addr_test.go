package route

import (
	"errors"
	"net/netip"
	"testing"
)

func TestDecodeAddr(t *testing.T) {
	tests := []struct {
		name    string
		family  Family
		raw     []byte
		want    string
		wantErr bool
	}{
		{"ipv4", IPv4, []byte{10, 0, 0, 1}, "10.0.0.1", false},
		{"ipv6", IPv6, netip.MustParseAddr("2001:db8::1").AsSlice(), "2001:db8::1", false},
		{"ipv4 too long", IPv4, make([]byte, 16), "", true},
		{"ipv6 too short", IPv6, []byte{1, 2, 3, 4}, "", true},
		{"empty", IPv4, nil, "", true},
		{"unknown family", Family(7), []byte{1, 2, 3, 4}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAddr(tt.family, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("DecodeAddr() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeAddr() error = %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("DecodeAddr() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeAddrCopies(t *testing.T) {
	raw := []byte{10, 0, 0, 1}
	addr, err := DecodeAddr(IPv4, raw)
	if err != nil {
		t.Fatal(err)
	}
	raw[0] = 99
	if addr.String() != "10.0.0.1" {
		t.Errorf("address changed with its source buffer: %v", addr)
	}
}

func TestEncodeAddr(t *testing.T) {
	if b, err := EncodeAddr(IPv4, netip.MustParseAddr("::ffff:10.0.0.1")); err != nil || len(b) != 4 {
		t.Errorf("EncodeAddr(mapped) = %v, %v", b, err)
	}
	if _, err := EncodeAddr(IPv4, netip.MustParseAddr("2001:db8::1")); !errors.Is(err, ErrAddrLen) {
		t.Errorf("EncodeAddr(v6 as v4) error = %v, want ErrAddrLen", err)
	}
	if _, err := EncodeAddr(IPv6, netip.Addr{}); err == nil {
		t.Error("EncodeAddr(invalid) succeeded")
	}
}

func TestMaskFromPrefixLen(t *testing.T) {
	tests := []struct {
		family  Family
		bits    int
		want    string
		wantErr bool
	}{
		{IPv4, 24, "255.255.255.0", false},
		{IPv4, 0, "0.0.0.0", false},
		{IPv4, 32, "255.255.255.255", false},
		{IPv4, 13, "255.248.0.0", false},
		{IPv6, 64, "ffff:ffff:ffff:ffff::", false},
		{IPv6, 128, "ffff:ffff:ffff:ffff:ffff:ffff:ffff:ffff", false},
		{IPv4, 33, "", true},
		{IPv6, -1, "", true},
		{FamilyUnspec, 8, "", true},
	}

	for _, tt := range tests {
		got, err := MaskFromPrefixLen(tt.family, tt.bits)
		if tt.wantErr {
			if err == nil {
				t.Errorf("MaskFromPrefixLen(%s, %d) = %v, want error", tt.family, tt.bits, got)
			}
			continue
		}
		if err != nil || got.String() != tt.want {
			t.Errorf("MaskFromPrefixLen(%s, %d) = %v, %v, want %s", tt.family, tt.bits, got, err, tt.want)
		}
	}
}
