package store

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"testing"

	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/route"
)

func TestObjectAttributes(t *testing.T) {
	o := NewObject(CategoryRoute, "10.0.0.0/8")
	o.SetUint(AttrFamily, 2)
	o.SetInt(Indexed(ListNextHop, 1, FieldIfIndex), 7)
	o.SetAddr(Indexed(ListNextHop, 0, FieldGateway), netip.MustParseAddr("10.0.0.1"))
	o.Set("bogus", "x")

	if o.Key() != "ROUTE_TABLE:10.0.0.0/8" {
		t.Errorf("Key() = %q", o.Key())
	}
	if v, ok := o.Uint(AttrFamily); !ok || v != 2 {
		t.Errorf("Uint(family) = %d, %v", v, ok)
	}
	if v, ok := o.Int("nh/1/ifindex"); !ok || v != 7 {
		t.Errorf("Int(nh/1/ifindex) = %d, %v", v, ok)
	}
	if a, ok := o.Addr("nh/0/gateway"); !ok || a.String() != "10.0.0.1" {
		t.Errorf("Addr(nh/0/gateway) = %v, %v", a, ok)
	}
	if _, ok := o.Uint("bogus"); ok {
		t.Error("Uint() parsed a non-numeric attribute")
	}
	if _, ok := o.Addr("missing"); ok {
		t.Error("Addr() found a missing attribute")
	}

	fields := o.Fields()
	fields[AttrFamily] = "10"
	if v, _ := o.Uint(AttrFamily); v != 2 {
		t.Error("Fields() returned the live map")
	}
}

func TestParseKey(t *testing.T) {
	cat, name := ParseKey("INTF_ADDR_TABLE:e101-001-0:10.0.0.1/24")
	if cat != CategoryAddr || name != "e101-001-0:10.0.0.1/24" {
		t.Errorf("ParseKey() = %q, %q", cat, name)
	}
	cat, name = ParseKey("ROUTE_EVENT")
	if cat != CategoryRouteEvent || name != "" {
		t.Errorf("ParseKey() = %q, %q", cat, name)
	}
}

func TestFingerprint(t *testing.T) {
	a := NewObject(CategoryLink, "3")
	a.Set("ifname", "e101-001-0")
	a.Set("mtu", "9100")
	b := NewObject(CategoryLink, "3")
	b.Set("mtu", "9100")
	b.Set("ifname", "e101-001-0")

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("fingerprint depends on insertion order")
	}
	b.Set("mtu", "1500")
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("fingerprint ignores attribute values")
	}
	c := NewObject(CategoryLink, "4")
	c.Set("ifname", "e101-001-0")
	c.Set("mtu", "9100")
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("fingerprint ignores the key")
	}
}

func TestRouteObjectFeedsEncoder(t *testing.T) {
	rec := &route.Record{
		Family: route.IPv4,
		Op:     route.OpUpdate,
		Dst:    netip.MustParsePrefix("172.16.0.0/12"),
		Type:   route.TypeUnicast,
		NextHops: []route.NextHop{
			{Gateway: netip.MustParseAddr("10.0.0.1"), IfIndex: 3, Weight: 1},
			{Gateway: netip.MustParseAddr("10.0.0.2"), IfIndex: 4, Weight: 2, Flags: 1},
		},
	}
	o := RouteObject(rec)

	if o.Key() != "ROUTE_TABLE:172.16.0.0/12" || o.Op != route.OpUpdate {
		t.Fatalf("RouteObject() = %v", o)
	}
	if v, _ := o.Uint(AttrHopCount); v != 2 {
		t.Errorf("hop_count = %d, want 2", v)
	}

	src := RouteRequest(o)
	if fam, ok := src.Family(); !ok || fam != route.IPv4 {
		t.Errorf("Family() = %v, %v", fam, ok)
	}
	if plen, ok := src.PrefixLen(); !ok || plen != 12 {
		t.Errorf("PrefixLen() = %d, %v", plen, ok)
	}
	for i, want := range rec.NextHops {
		if got := src.NextHop(i); got != want {
			t.Errorf("NextHop(%d) = %+v, want %+v", i, got, want)
		}
	}
	if got := src.NextHop(5); got != (route.NextHop{}) {
		t.Errorf("NextHop(5) = %+v, want zero", got)
	}

	if _, err := route.Encode(o.Op, src); err != nil {
		t.Errorf("Encode() error = %v", err)
	}
}

func TestRouteNamesKeepTablesApart(t *testing.T) {
	host := netip.MustParsePrefix("10.0.0.1/32")
	inMain := RouteObject(&route.Record{Family: route.IPv4, Op: route.OpAdd, Dst: host, Table: netlink.RT_TABLE_MAIN})
	local := RouteObject(&route.Record{Family: route.IPv4, Op: route.OpAdd, Dst: host, Table: netlink.RT_TABLE_LOCAL, Type: route.TypeLocal})
	if inMain.Key() != "ROUTE_TABLE:10.0.0.1/32" {
		t.Errorf("main key = %q", inMain.Key())
	}
	if local.Key() != "ROUTE_TABLE:10.0.0.1/32|table=255" {
		t.Errorf("local key = %q", local.Key())
	}

	backend := newFakeBackend()
	p := NewPublisher(backend, "ROUTESYNC_EVENTS")
	ctx := context.Background()
	for _, o := range []*Object{inMain, local} {
		if err := p.Publish(ctx, o); err != nil {
			t.Fatalf("Publish(%s) error = %v", o.Key(), err)
		}
	}
	local.Op = route.OpDelete
	if err := p.Publish(ctx, local); err != nil {
		t.Fatalf("Publish(delete) error = %v", err)
	}
	if _, ok := backend.hashes[inMain.Key()]; !ok {
		t.Error("deleting the local route removed the main one")
	}
	if _, ok := backend.hashes[local.Key()]; ok {
		t.Error("local route survived its delete")
	}

	dst := netip.MustParsePrefix("2001:db8::/32")
	a := RouteObject(&route.Record{Family: route.IPv6, Dst: dst, Table: netlink.RT_TABLE_MAIN, Priority: 1024})
	b := RouteObject(&route.Record{Family: route.IPv6, Dst: dst, Table: netlink.RT_TABLE_MAIN, Priority: 256})
	if a.Key() == b.Key() {
		t.Errorf("routes differing in metric share key %q", a.Key())
	}
}

func TestParseRouteName(t *testing.T) {
	tests := []struct {
		name    string
		want    RouteName
		wantErr bool
	}{
		{"10.0.0.0/8", RouteName{Prefix: netip.MustParsePrefix("10.0.0.0/8"), Table: 254}, false},
		{"10.0.0.1", RouteName{Prefix: netip.MustParsePrefix("10.0.0.1/32"), Table: 254}, false},
		{"10.0.0.1/32|table=255", RouteName{Prefix: netip.MustParsePrefix("10.0.0.1/32"), Table: 255}, false},
		{"2001:db8::/32|table=10|metric=1024", RouteName{Prefix: netip.MustParsePrefix("2001:db8::/32"), Table: 10, Metric: 1024}, false},
		{"10.0.0.0/8|table=x", RouteName{}, true},
		{"10.0.0.0/8|vrf=blue", RouteName{}, true},
		{"not-a-prefix|table=1", RouteName{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRouteName(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRouteName() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseRouteName() = %+v, want %+v", got, tt.want)
			}
			if err == nil && tt.want.Table != 254 {
				if s := got.String(); s != tt.name {
					t.Errorf("String() = %q, want %q", s, tt.name)
				}
			}
		})
	}
}

func TestRouteRequestMissingFields(t *testing.T) {
	full := func() *Object {
		o := NewObject(CategoryRoute, "10.0.0.0/8")
		o.SetUint(AttrFamily, uint64(route.IPv4))
		o.Set(AttrPrefix, "10.0.0.0")
		o.SetUint(AttrPrefixLen, 8)
		o.SetUint(AttrHopCount, 0)
		return o
	}

	tests := []struct {
		drop string
		want error
	}{
		{AttrPrefix, route.ErrMissingDestination},
		{AttrPrefixLen, route.ErrMissingPrefixLen},
		{AttrFamily, route.ErrMissingFamily},
		{AttrHopCount, route.ErrMissingHopCount},
	}
	for _, tt := range tests {
		t.Run(tt.drop, func(t *testing.T) {
			o := full()
			o.Delete(tt.drop)
			_, err := route.Encode(route.OpAdd, RouteRequest(o))
			if !errors.Is(err, tt.want) {
				t.Errorf("Encode() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := route.Encode(route.OpAdd, RouteRequest(full())); err != nil {
		t.Errorf("Encode(full) error = %v", err)
	}
}

func TestAddrObject(t *testing.T) {
	o, err := AddrObject("e101-001-0", 3, netip.MustParsePrefix("10.1.1.5/24"))
	if err != nil {
		t.Fatalf("AddrObject() error = %v", err)
	}
	if o.Key() != "INTF_ADDR_TABLE:e101-001-0:10.1.1.5/24" {
		t.Errorf("Key() = %q", o.Key())
	}
	if m, _ := o.Get(AttrMask); m != "255.255.255.0" {
		t.Errorf("mask = %q, want 255.255.255.0", m)
	}
	if a, _ := o.Get(AttrAddress); a != "10.1.1.5" {
		t.Errorf("address = %q", a)
	}
}

type publishCall struct {
	channel string
	payload []byte
}

type fakeBackend struct {
	hashes    map[string]map[string]string
	published []publishCall
	failWrite error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{hashes: make(map[string]map[string]string)}
}

func (f *fakeBackend) Replace(_ context.Context, key string, fields map[string]string) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	f.hashes[key] = fields
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	if f.failWrite != nil {
		return f.failWrite
	}
	delete(f.hashes, key)
	return nil
}

func (f *fakeBackend) Publish(_ context.Context, channel string, payload []byte) error {
	f.published = append(f.published, publishCall{channel, payload})
	return nil
}

func (f *fakeBackend) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func TestPublisher(t *testing.T) {
	backend := newFakeBackend()
	p := NewPublisher(backend, "ROUTESYNC_EVENTS")
	ctx := context.Background()

	o := NewObject(CategoryLink, "3")
	o.Set("ifname", "e101-001-0")
	if err := p.Publish(ctx, o); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if backend.hashes["LINK_TABLE:3"]["ifname"] != "e101-001-0" {
		t.Errorf("hash not written: %v", backend.hashes)
	}

	del := NewObject(CategoryLink, "3")
	del.Op = route.OpDelete
	if err := p.Publish(ctx, del); err != nil {
		t.Fatalf("Publish(delete) error = %v", err)
	}
	if _, ok := backend.hashes["LINK_TABLE:3"]; ok {
		t.Error("delete left the hash behind")
	}

	if len(backend.published) != 2 {
		t.Fatalf("published %d notifications, want 2", len(backend.published))
	}
	var n Notification
	if err := json.Unmarshal(backend.published[1].payload, &n); err != nil {
		t.Fatalf("notification is not JSON: %v", err)
	}
	if n.Key != "LINK_TABLE:3" || n.Op != "delete" || n.Fields != nil {
		t.Errorf("notification = %+v", n)
	}
	if backend.published[0].channel != "ROUTESYNC_EVENTS" {
		t.Errorf("channel = %q", backend.published[0].channel)
	}
}

func TestPublisherWriteFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.failWrite = errors.New("connection refused")
	p := NewPublisher(backend, "events")

	if err := p.Publish(context.Background(), NewObject(CategoryLink, "1")); err == nil {
		t.Fatal("Publish() succeeded with a failing backend")
	}
	if len(backend.published) != 0 {
		t.Error("announced an object that was not stored")
	}
}

func TestDecodeRequest(t *testing.T) {
	payload := []byte(`{"id":"r1","kind":"write","op":"replace","key":"ROUTE_TABLE:10.0.0.0/8","fields":{"family":"2","prefix":"10.0.0.0","prefix_len":"8","hop_count":"0"}}`)
	req, err := DecodeRequest(payload)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	o, err := req.Object()
	if err != nil {
		t.Fatalf("Object() error = %v", err)
	}
	if o.Category != CategoryRoute || o.Op != route.OpUpdate || o.Len() != 4 {
		t.Errorf("Object() = %v", o)
	}

	if _, err := DecodeRequest([]byte(`{"id":"r2","kind":"drop"}`)); err == nil {
		t.Error("DecodeRequest() accepted an unknown kind")
	}
	if _, err := DecodeRequest([]byte(`not json`)); err == nil {
		t.Error("DecodeRequest() accepted garbage")
	}
	bad := &Request{ID: "r3", Kind: RequestWrite, Op: "frobnicate", Key: "ROUTE_TABLE:x"}
	if _, err := bad.Object(); err == nil {
		t.Error("Object() accepted an unknown operation")
	}
}
