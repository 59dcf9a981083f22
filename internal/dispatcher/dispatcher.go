// Package dispatcher runs the notification loop: one netlink socket per
// channel, a blocking readiness wait across all of them, decode and
// publish of every message, and full-table resyncs at startup and on
// demand.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/wesleywu/routesync/internal/channel"
	"github.com/wesleywu/routesync/internal/iface"
	"github.com/wesleywu/routesync/internal/logger"
	"github.com/wesleywu/routesync/internal/metrics"
	"github.com/wesleywu/routesync/internal/netlink"
	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
)

// State is the lifecycle phase of the dispatcher.
type State int32

const (
	Idle State = iota
	Initializing
	PublishingExisting
	Resyncing
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case PublishingExisting:
		return "publishing-existing"
	case Resyncing:
		return "resyncing"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// RefreshBaseSeq is the request id a resync counts up from; every dump
// request of one resync gets the next id.
const RefreshBaseSeq = 0xee00

// Conn is a subscribed netlink socket.
type Conn interface {
	Fd() int
	Receive(buf []byte) ([]netlink.Message, error)
	Send(msg []byte) error
	Close() error
}

// Opener opens the socket for a channel.
type Opener func(ch channel.Channel) (Conn, error)

// Publisher hands decoded objects to subscribers.
type Publisher interface {
	Publish(ctx context.Context, o *store.Object) error
}

// AddressSource lists the interface addresses present at startup.
type AddressSource func() ([]iface.Address, error)

type Config struct {
	BufferSize     int
	ResyncInterval time.Duration
}

type entry struct {
	ch   channel.Channel
	conn Conn
	name string
}

// Dispatcher owns the sockets, the scratch buffer and the statistics. Only
// the goroutine running Run touches the sockets and the buffer; Refresh
// may be called from anywhere.
type Dispatcher struct {
	cfg       Config
	channels  []channel.Channel
	open      Opener
	publisher Publisher
	addresses AddressSource
	metrics   *metrics.Metrics
	log       *logger.Logger

	state    atomic.Int32
	registry map[int]*entry
	byKind   map[channel.Kind]*entry
	buf      []byte

	mu      sync.Mutex
	pending map[channel.Kind]bool
	waker   *waker
}

func New(cfg Config, channels []channel.Channel, open Opener, pub Publisher, addrs AddressSource,
	m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32 * 1024
	}
	return &Dispatcher{
		cfg:       cfg,
		channels:  channels,
		open:      open,
		publisher: pub,
		addresses: addrs,
		metrics:   m,
		log:       log.WithComponent("dispatcher"),
		registry:  make(map[int]*entry),
		byKind:    make(map[channel.Kind]*entry),
		buf:       make([]byte, cfg.BufferSize),
		pending:   make(map[channel.Kind]bool),
	}
}

// State reports the current phase.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
	d.log.Debug("Dispatcher state changed", slog.String("state", s.String()))
}

// Refresh asks the loop to replay the full state of a channel. Repeated
// requests before the loop gets to them collapse into one.
func (d *Dispatcher) Refresh(k channel.Kind) {
	d.mu.Lock()
	d.pending[k] = true
	w := d.waker
	d.mu.Unlock()
	if w != nil {
		w.wake()
	}
}

// takePending returns the queued refreshes in resync order.
func (d *Dispatcher) takePending() []channel.Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	var kinds []channel.Kind
	for _, k := range channel.ResyncOrder {
		if d.pending[k] {
			kinds = append(kinds, k)
		}
	}
	d.pending = make(map[channel.Kind]bool)
	return kinds
}

// openAll opens and registers one socket per channel. Any failure closes
// what was opened and is returned; the daemon does not run with a partial
// channel set.
func (d *Dispatcher) openAll() error {
	d.setState(Initializing)
	for _, ch := range d.channels {
		conn, err := d.open(ch)
		if err != nil {
			d.closeAll()
			return fmt.Errorf("failed to open %s socket: %w", ch.Kind(), err)
		}
		e := &entry{ch: ch, conn: conn, name: ch.Kind().String()}
		d.registry[conn.Fd()] = e
		d.byKind[ch.Kind()] = e
		d.log.Info("Netlink socket opened",
			slog.String("channel", e.name),
			slog.Int("fd", conn.Fd()),
			slog.Uint64("groups", uint64(ch.Groups())))
	}
	return nil
}

// Close releases the sockets opened by Start. Run closes them itself.
func (d *Dispatcher) Close() {
	d.closeAll()
	d.setState(Idle)
}

func (d *Dispatcher) closeAll() {
	for fd, e := range d.registry {
		e.conn.Close()
		delete(d.registry, fd)
	}
	d.byKind = make(map[channel.Kind]*entry)
}

// publishExisting announces every address configured before startup.
func (d *Dispatcher) publishExisting(ctx context.Context) {
	d.setState(PublishingExisting)
	if d.addresses == nil {
		return
	}
	addrs, err := d.addresses()
	if err != nil {
		d.log.Warn("Failed to list interface addresses", slog.Any("error", err))
		return
	}
	for _, a := range addrs {
		o, err := store.AddrObject(a.Name, a.Index, a.Prefix)
		if err != nil {
			d.log.Debug("Skipping interface address", slog.String("ifname", a.Name), slog.Any("error", err))
			continue
		}
		if err := d.publisher.Publish(ctx, o); err != nil {
			d.log.PublishFailed(channel.Link.String(), o.Key(), err)
		}
	}
	d.log.Info("Existing interface addresses published", slog.Int("count", len(addrs)))
}

// resync issues the channel's dump requests one at a time and processes
// the socket until each dump completes. Notifications that arrive
// meanwhile are processed as usual.
func (d *Dispatcher) resync(ctx context.Context, k channel.Kind) {
	e, ok := d.byKind[k]
	if !ok {
		return
	}
	seq := uint32(RefreshBaseSeq)
	for _, req := range e.ch.DumpRequests() {
		seq++
		if err := e.conn.Send(netlink.NewDumpRequest(req.Type, req.Family, req.FixedLen, seq)); err != nil {
			d.log.Warn("Failed to send dump request",
				slog.String("channel", e.name),
				slog.Int("family", int(req.Family)),
				slog.Any("error", err))
			continue
		}
		d.metrics.RecordResync(e.name)
		d.log.ResyncIssued(e.name, int(req.Family), seq)

		err := netlink.ConsumeDump(e.conn, seq, d.buf, func(m *netlink.Message) {
			d.handle(ctx, e, m)
		})
		if errors.Is(err, syscall.ENOBUFS) {
			d.log.Warn("Netlink receive buffer overrun during dump", slog.String("channel", e.name))
			d.Refresh(k)
			return
		}
		if err != nil {
			d.log.Warn("Dump did not complete",
				slog.String("channel", e.name),
				slog.Int("family", int(req.Family)),
				slog.Uint64("seq", uint64(seq)),
				slog.Any("error", err))
		}
	}
}

// Start opens the sockets, publishes the existing addresses and replays
// every channel. It fails only if a socket cannot be opened.
func (d *Dispatcher) Start(ctx context.Context) error {
	if err := d.openAll(); err != nil {
		return err
	}
	d.publishExisting(ctx)

	d.setState(Resyncing)
	for _, k := range channel.ResyncOrder {
		d.resync(ctx, k)
	}
	d.setState(Running)
	return nil
}

// receive reads one batch from a readable socket.
func (d *Dispatcher) receive(ctx context.Context, e *entry) {
	msgs, err := e.conn.Receive(d.buf)
	if err != nil {
		d.receiveError(e, err)
		return
	}
	for i := range msgs {
		d.handle(ctx, e, &msgs[i])
	}
}

func (d *Dispatcher) receiveError(e *entry, err error) {
	switch {
	case errors.Is(err, syscall.EINTR), errors.Is(err, syscall.EAGAIN):
	case errors.Is(err, syscall.ENOBUFS):
		// The socket overran and notifications were lost.
		d.log.Warn("Netlink receive buffer overrun, resyncing", slog.String("channel", e.name))
		d.Refresh(e.ch.Kind())
	default:
		d.log.Error("Failed to read netlink socket", slog.String("channel", e.name), slog.Any("error", err))
	}
}

// handle decodes and publishes one message. Failures drop the message and
// are counted; they never stop the loop.
func (d *Dispatcher) handle(ctx context.Context, e *entry, m *netlink.Message) {
	switch m.Header.Type {
	case netlink.NLMSG_NOOP, netlink.NLMSG_DONE:
		return
	case netlink.NLMSG_ERROR:
		if errno, err := m.Errno(); err != nil || errno != 0 {
			d.log.Warn("Netlink error message",
				slog.String("channel", e.name),
				slog.Uint64("seq", uint64(m.Header.Seq)),
				slog.Any("errno", errno))
		}
		return
	case netlink.NLMSG_OVERRUN:
		d.Refresh(e.ch.Kind())
		return
	}

	d.metrics.RecordMessage(e.name, metrics.OutcomeReceived)
	o, err := e.ch.Decode(m)
	if err != nil {
		if route.IsFiltered(err) {
			d.metrics.RecordMessage(e.name, metrics.OutcomeFiltered)
			d.log.MessageDropped(e.name, false, err.Error())
		} else {
			d.metrics.RecordMessage(e.name, metrics.OutcomeMalformed)
			d.log.MessageDropped(e.name, true, err.Error())
		}
		return
	}

	d.metrics.RecordMessage(e.name, metrics.OutcomePublished)
	if err := d.publisher.Publish(ctx, o); err != nil {
		d.metrics.RecordMessage(e.name, metrics.OutcomePublishFailed)
		d.log.PublishFailed(e.name, o.Key(), err)
	}
}

// runPending performs the queued refreshes.
func (d *Dispatcher) runPending(ctx context.Context) {
	for _, k := range d.takePending() {
		d.resync(ctx, k)
	}
}

// Channels returns the registered channel kinds in resync order.
func (d *Dispatcher) Channels() []channel.Kind {
	var kinds []channel.Kind
	for _, k := range channel.ResyncOrder {
		if _, ok := d.byKind[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
