//go:build linux

package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wesleywu/routesync/internal/channel"
	"github.com/wesleywu/routesync/internal/logger"
	"github.com/wesleywu/routesync/internal/metrics"
	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/store"
)

// pipeConn serves dump replies from memory and notifications from a pipe,
// so the poll loop sees real readiness.
type pipeConn struct {
	r, w  int
	queue [][]byte
}

func newPipeConn(t *testing.T) *pipeConn {
	t.Helper()
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("Pipe2() error = %v", err)
	}
	t.Cleanup(func() { unix.Close(p[1]) })
	return &pipeConn{r: p[0], w: p[1]}
}

func (c *pipeConn) Fd() int { return c.r }

func (c *pipeConn) Send(msg []byte) error {
	c.queue = append(c.queue, encode(netlink.NLMSG_DONE, netlink.Seq(msg)))
	return nil
}

func (c *pipeConn) Receive(buf []byte) ([]netlink.Message, error) {
	if len(c.queue) > 0 {
		n := copy(buf, c.queue[0])
		c.queue = c.queue[1:]
		return netlink.ParseMessages(buf[:n])
	}
	n, err := unix.Read(c.r, buf)
	if err != nil {
		return nil, err
	}
	return netlink.ParseMessages(buf[:n])
}

func (c *pipeConn) Close() error {
	return unix.Close(c.r)
}

type chanPublisher chan string

func (p chanPublisher) Publish(_ context.Context, o *store.Object) error {
	p <- o.Key()
	return nil
}

func TestRunDeliversNotifications(t *testing.T) {
	conn := newPipeConn(t)
	open := func(channel.Channel) (Conn, error) { return conn, nil }
	ch := &fakeChannel{kind: channel.Route, dumps: []channel.DumpRequest{{Type: 1, Family: netlink.AF_INET, FixedLen: 4}}}
	pub := make(chanPublisher, 4)
	d := New(Config{}, []channel.Channel{ch}, open, pub, nil, metrics.NewMetrics(), logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for d.State() != Running {
		if time.Now().After(deadline) {
			t.Fatal("dispatcher never reached running state")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := unix.Write(conn.w, encode(typeValid, 0)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	select {
	case key := <-pub:
		if key != "ROUTE_TABLE:route" {
			t.Errorf("published %q", key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notification was not published")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if d.State() != Idle {
		t.Errorf("State() after Run = %v, want idle", d.State())
	}
}

func TestRunReturnsPollFailure(t *testing.T) {
	calls := 0
	poll = func([]unix.PollFd, int) (int, error) {
		calls++
		if calls == 1 {
			return 0, unix.EINTR
		}
		return 0, unix.ENOMEM
	}
	t.Cleanup(func() { poll = unix.Poll })

	conn := newPipeConn(t)
	open := func(channel.Channel) (Conn, error) { return conn, nil }
	ch := &fakeChannel{kind: channel.Route}
	d := New(Config{}, []channel.Channel{ch}, open, make(chanPublisher, 4), nil, metrics.NewMetrics(), logger.Discard())

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, unix.ENOMEM) {
			t.Errorf("Run() error = %v, want ENOMEM", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() kept polling after a poll failure")
	}
	if calls != 2 {
		t.Errorf("poll called %d times, want 2", calls)
	}
	if d.State() != Idle {
		t.Errorf("State() after Run = %v, want idle", d.State())
	}
}
