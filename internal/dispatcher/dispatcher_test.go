package dispatcher

import (
	"context"
	"errors"
	"net/netip"
	"syscall"
	"testing"

	"github.com/wesleywu/routesync/internal/channel"
	"github.com/wesleywu/routesync/internal/iface"
	"github.com/wesleywu/routesync/internal/logger"
	"github.com/wesleywu/routesync/internal/metrics"
	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
)

// Message types understood by fakeChannel.
const (
	typeValid     = 100
	typeFiltered  = 101
	typeMalformed = 102
)

type fakeChannel struct {
	kind  channel.Kind
	dumps []channel.DumpRequest
}

func (c *fakeChannel) Kind() channel.Kind { return c.kind }

func (c *fakeChannel) Groups() uint32 { return 1 << uint(c.kind) }

func (c *fakeChannel) DumpRequests() []channel.DumpRequest { return c.dumps }

func (c *fakeChannel) Decode(m *netlink.Message) (*store.Object, error) {
	switch m.Header.Type {
	case typeValid:
		return store.NewObject(store.CategoryRoute, c.kind.String()), nil
	case typeFiltered:
		return nil, &route.DecodeError{Kind: route.Filtered, Reason: "test"}
	default:
		return nil, &route.DecodeError{Kind: route.Malformed, Reason: "test"}
	}
}

type sent struct {
	kind channel.Kind
	seq  uint32
}

// fakeConn answers every dump request with its canned replies followed by
// NLMSG_DONE, and otherwise plays back queued batches.
type fakeConn struct {
	fd      int
	kind    channel.Kind
	replies []uint16
	queue   [][]byte
	sent    *[]sent
	recvErr error
	closed  bool
}

func (c *fakeConn) Fd() int { return c.fd }

func (c *fakeConn) Send(msg []byte) error {
	seq := netlink.Seq(msg)
	*c.sent = append(*c.sent, sent{kind: c.kind, seq: seq})
	for _, typ := range c.replies {
		c.queue = append(c.queue, encode(typ, seq))
	}
	c.queue = append(c.queue, encode(netlink.NLMSG_DONE, seq))
	return nil
}

func (c *fakeConn) Receive(buf []byte) ([]netlink.Message, error) {
	if c.recvErr != nil {
		err := c.recvErr
		c.recvErr = nil
		return nil, err
	}
	if len(c.queue) == 0 {
		return nil, syscall.EAGAIN
	}
	n := copy(buf, c.queue[0])
	c.queue = c.queue[1:]
	return netlink.ParseMessages(buf[:n])
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func encode(typ uint16, seq uint32) []byte {
	b := netlink.NewBuilder(typ, 0)
	b.Fixed(make([]byte, 4))
	msg := b.Bytes()
	netlink.SetSeq(msg, seq)
	return msg
}

type fakePublisher struct {
	keys []string
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, o *store.Object) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, o.Key())
	return nil
}

type fixture struct {
	d     *Dispatcher
	conns map[channel.Kind]*fakeConn
	pub   *fakePublisher
	m     *metrics.Metrics
	sent  []sent
}

func newFixture(replies []uint16, addrs AddressSource) *fixture {
	f := &fixture{
		conns: make(map[channel.Kind]*fakeConn),
		pub:   &fakePublisher{},
		m:     metrics.NewMetrics(),
	}
	var chans []channel.Channel
	// Registered out of order on purpose.
	for _, k := range []channel.Kind{channel.NetConf, channel.Route, channel.Link, channel.Neighbor} {
		chans = append(chans, &fakeChannel{kind: k, dumps: []channel.DumpRequest{
			{Type: 1, Family: netlink.AF_INET, FixedLen: 4},
			{Type: 1, Family: netlink.AF_INET6, FixedLen: 4},
		}})
	}
	open := func(ch channel.Channel) (Conn, error) {
		c := &fakeConn{fd: 10 + int(ch.Kind()), kind: ch.Kind(), replies: replies, sent: &f.sent}
		f.conns[ch.Kind()] = c
		return c, nil
	}
	f.d = New(Config{BufferSize: 4096}, chans, open, f.pub, addrs, f.m, logger.Discard())
	return f
}

func TestStartResyncsInOrder(t *testing.T) {
	f := newFixture([]uint16{typeValid}, nil)
	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.d.State() != Running {
		t.Errorf("State() = %v, want running", f.d.State())
	}

	var want []sent
	for _, k := range channel.ResyncOrder {
		want = append(want, sent{k, RefreshBaseSeq + 1}, sent{k, RefreshBaseSeq + 2})
	}
	if len(f.sent) != len(want) {
		t.Fatalf("sent %d requests, want %d: %v", len(f.sent), len(want), f.sent)
	}
	for i := range want {
		if f.sent[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, f.sent[i], want[i])
		}
	}

	if len(f.pub.keys) != 8 {
		t.Errorf("published %d objects, want 8", len(f.pub.keys))
	}
	for _, k := range channel.ResyncOrder {
		st := f.m.Snapshot()[k.String()]
		if st.Resyncs != 2 || st.Total != 2 || st.Published != 2 {
			t.Errorf("%s stats = %+v", k, st)
		}
	}
}

func TestStartOpenFailure(t *testing.T) {
	var opened []*fakeConn
	var s []sent
	calls := 0
	open := func(ch channel.Channel) (Conn, error) {
		calls++
		if calls == 3 {
			return nil, errors.New("permission denied")
		}
		c := &fakeConn{fd: calls, kind: ch.Kind(), sent: &s}
		opened = append(opened, c)
		return c, nil
	}
	chans := []channel.Channel{
		&fakeChannel{kind: channel.Link}, &fakeChannel{kind: channel.Neighbor}, &fakeChannel{kind: channel.Route},
	}
	d := New(Config{}, chans, open, &fakePublisher{}, nil, metrics.NewMetrics(), logger.Discard())
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded with a failing socket")
	}
	for i, c := range opened {
		if !c.closed {
			t.Errorf("socket %d left open", i)
		}
	}
	if len(s) != 0 {
		t.Errorf("dump requests sent after failed start: %v", s)
	}
}

func TestPublishExisting(t *testing.T) {
	addrs := func() ([]iface.Address, error) {
		return []iface.Address{
			{Name: "e101-001-0", Index: 3, Prefix: netip.MustParsePrefix("10.0.0.1/24")},
			{Name: "e101-001-0", Index: 3, Prefix: netip.MustParsePrefix("2001:db8::1/64")},
		}, nil
	}
	f := newFixture(nil, addrs)
	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	want := []string{
		"INTF_ADDR_TABLE:e101-001-0:10.0.0.1/24",
		"INTF_ADDR_TABLE:e101-001-0:2001:db8::1/64",
	}
	if len(f.pub.keys) != len(want) {
		t.Fatalf("published %v, want %v", f.pub.keys, want)
	}
	for i := range want {
		if f.pub.keys[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, f.pub.keys[i], want[i])
		}
	}
}

func TestHandleOutcomes(t *testing.T) {
	f := newFixture(nil, nil)
	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.m.Reset()
	f.pub.keys = nil

	e := f.d.byKind[channel.Route]
	for _, typ := range []uint16{
		typeValid, typeFiltered, typeMalformed, typeValid,
		netlink.NLMSG_NOOP, netlink.NLMSG_DONE,
	} {
		msgs, err := netlink.ParseMessages(encode(typ, 7))
		if err != nil {
			t.Fatal(err)
		}
		f.d.handle(context.Background(), e, &msgs[0])
	}

	st := f.m.Snapshot()["route"]
	want := metrics.ChannelStats{Total: 4, Published: 2, Invalid: 2, Malformed: 1, Filtered: 1}
	if st != want {
		t.Errorf("stats = %+v, want %+v", st, want)
	}
	if len(f.pub.keys) != 2 {
		t.Errorf("published %d objects, want 2", len(f.pub.keys))
	}
}

func TestHandlePublishFailure(t *testing.T) {
	f := newFixture(nil, nil)
	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.m.Reset()
	f.pub.err = errors.New("connection refused")

	msgs, _ := netlink.ParseMessages(encode(typeValid, 1))
	f.d.handle(context.Background(), f.d.byKind[channel.Link], &msgs[0])

	st := f.m.Snapshot()["link"]
	if st.Total != 1 || st.Published != 1 || st.PublishFailed != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestOverrunSchedulesRefresh(t *testing.T) {
	f := newFixture(nil, nil)
	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.sent = nil

	f.conns[channel.Neighbor].recvErr = syscall.ENOBUFS
	f.d.receive(context.Background(), f.d.byKind[channel.Neighbor])

	msgs, _ := netlink.ParseMessages(encode(netlink.NLMSG_OVERRUN, 0))
	f.d.handle(context.Background(), f.d.byKind[channel.Route], &msgs[0])

	if len(f.sent) != 0 {
		t.Fatalf("resync ran before the loop picked it up: %v", f.sent)
	}
	f.d.runPending(context.Background())

	want := []sent{
		{channel.Neighbor, RefreshBaseSeq + 1}, {channel.Neighbor, RefreshBaseSeq + 2},
		{channel.Route, RefreshBaseSeq + 1}, {channel.Route, RefreshBaseSeq + 2},
	}
	if len(f.sent) != len(want) {
		t.Fatalf("sent %v, want %v", f.sent, want)
	}
	for i := range want {
		if f.sent[i] != want[i] {
			t.Errorf("request %d = %+v, want %+v", i, f.sent[i], want[i])
		}
	}
}

func TestRefreshCoalesces(t *testing.T) {
	f := newFixture(nil, nil)
	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.sent = nil
	for i := 0; i < 5; i++ {
		f.d.Refresh(channel.Route)
	}
	f.d.Refresh(channel.Link)
	f.d.runPending(context.Background())

	if len(f.sent) != 4 {
		t.Fatalf("sent %v, want two dumps per channel", f.sent)
	}
	if f.sent[0].kind != channel.Link || f.sent[2].kind != channel.Route {
		t.Errorf("refresh order = %v", f.sent)
	}
	if kinds := f.d.takePending(); len(kinds) != 0 {
		t.Errorf("pending after run = %v", kinds)
	}
}

func TestResyncKernelError(t *testing.T) {
	f := newFixture(nil, nil)
	if err := f.d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c := f.conns[channel.Route]
	f.sent = nil

	// The first dump is rejected; the second must still be issued.
	c.queue = append(c.queue, errorReply(RefreshBaseSeq+1, syscall.EPERM))
	f.d.resync(context.Background(), channel.Route)

	if len(f.sent) != 2 {
		t.Errorf("sent %v, want both dumps", f.sent)
	}
}

func errorReply(seq uint32, errno syscall.Errno) []byte {
	b := netlink.NewBuilder(netlink.NLMSG_ERROR, 0)
	body := make([]byte, 4+netlink.HeaderLen)
	netlink.PutUint32(body, uint32(-int32(errno)))
	b.Fixed(body)
	msg := b.Bytes()
	netlink.SetSeq(msg, seq)
	return msg
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Initializing, "initializing"},
		{PublishingExisting, "publishing-existing"},
		{Resyncing, "resyncing"},
		{Running, "running"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
