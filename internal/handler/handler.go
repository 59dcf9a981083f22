// Package handler executes write and read requests against the kernel
// routing table.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wesleywu/routesync/internal/channel"
	"github.com/wesleywu/routesync/internal/logger"
	"github.com/wesleywu/routesync/internal/metrics"
	"github.com/wesleywu/routesync/internal/route"
	"github.com/wesleywu/routesync/internal/store"
)

// Kernel sends an encoded request and waits for its acknowledgement.
type Kernel interface {
	Execute(ctx context.Context, msg []byte) error
}

// Refresher schedules a full replay of a channel.
type Refresher interface {
	Refresh(k channel.Kind)
}

// Reader dumps the kernel routing table.
type Reader func(fam route.Family) ([]*route.Record, error)

type Handler struct {
	kernel    Kernel
	refresher Refresher
	reader    Reader
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// New creates a handler. A zero timeout leaves the deadline to ctx.
func New(kernel Kernel, refresher Refresher, reader Reader, timeout time.Duration,
	m *metrics.Metrics, log *logger.Logger) *Handler {
	return &Handler{
		kernel:    kernel,
		refresher: refresher,
		reader:    reader,
		timeout:   timeout,
		metrics:   m,
		log:       log.WithComponent("handler"),
	}
}

// Write applies o. A route event object triggers a route resync whatever
// its operation; a route object is encoded and sent to the kernel.
func (h *Handler) Write(ctx context.Context, o *store.Object) error {
	switch o.Category {
	case store.CategoryRouteEvent:
		if h.refresher == nil {
			return fail(o.Key(), fmt.Errorf("%w: refresh is not available", ErrInvalidArgument))
		}
		h.refresher.Refresh(channel.Route)
		h.log.Info("Route refresh requested", slog.String("key", o.Key()))
		return nil
	case store.CategoryRoute:
		return h.writeRoute(ctx, o)
	default:
		return fail(o.Key(), fmt.Errorf("%w: cannot write %s objects", ErrInvalidArgument, o.Category))
	}
}

func (h *Handler) writeRoute(ctx context.Context, o *store.Object) error {
	start := time.Now()
	src := store.RouteRequest(o)
	hops, _ := src.HopCount()

	msg, err := route.Encode(o.Op, src)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	} else {
		if h.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.timeout)
			defer cancel()
		}
		err = h.kernel.Execute(ctx, msg)
	}

	elapsed := time.Since(start)
	result := ResultOf(err)
	if h.metrics != nil {
		h.metrics.RecordOperation(o.Op.String(), elapsed, result.String(), err == nil)
	}
	h.log.RouteRequest(o.Op.String(), o.Name, hops, elapsed.Milliseconds(), result.String())
	return fail(o.Key(), err)
}

// Read returns the current kernel routes. A family name ("ipv4", "ipv6")
// limits the dump to that family; any other name, including a specific
// route, returns the whole table.
func (h *Handler) Read(ctx context.Context, o *store.Object) ([]*store.Object, error) {
	if o.Category != store.CategoryRoute {
		return nil, fail(o.Key(), fmt.Errorf("%w: cannot read %s objects", ErrInvalidArgument, o.Category))
	}
	fam, err := route.ParseFamily(o.Name)
	if err != nil {
		fam = route.FamilyUnspec
	}
	if h.reader == nil {
		return nil, fail(o.Key(), fmt.Errorf("route table read is not supported"))
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(o.Key(), err)
	}
	records, err := h.reader(fam)
	if err != nil {
		return nil, fail(o.Key(), err)
	}
	objs := make([]*store.Object, 0, len(records))
	for _, rec := range records {
		objs = append(objs, store.RouteObject(rec))
	}
	h.log.Debug("Route table read", slog.String("family", fam.String()), slog.Int("routes", len(objs)))
	return objs, nil
}

// Handle runs a decoded request and builds its reply.
func (h *Handler) Handle(ctx context.Context, req *store.Request) store.Reply {
	reply := store.Reply{ID: req.ID}
	o, err := req.Object()
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	} else if req.Kind == store.RequestRead {
		var objs []*store.Object
		objs, err = h.Read(ctx, o)
		for _, obj := range objs {
			reply.Objects = append(reply.Objects, store.NewNotification(obj))
		}
	} else {
		err = h.Write(ctx, o)
	}
	reply.Code = ResultOf(err).String()
	if err != nil {
		reply.Message = err.Error()
	}
	return reply
}
