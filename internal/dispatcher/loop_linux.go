//go:build linux

package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/wesleywu/routesync/internal/channel"
)

// waker is a non-blocking pipe whose read end sits in the poll set, so
// other goroutines can interrupt the readiness wait.
type waker struct {
	r, w int
}

func newWaker() (*waker, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("failed to create wake pipe: %w", err)
	}
	return &waker{r: p[0], w: p[1]}, nil
}

func (w *waker) wake() {
	unix.Write(w.w, []byte{1})
}

func (w *waker) drain() {
	var buf [64]byte
	for {
		if n, err := unix.Read(w.r, buf[:]); n <= 0 || err != nil {
			return
		}
	}
}

func (w *waker) close() {
	unix.Close(w.r)
	unix.Close(w.w)
}

// poll waits for readiness on the loop's descriptors.
var poll = unix.Poll

// Run starts the dispatcher and then blocks in the notification loop until
// ctx is cancelled. It returns an error when startup fails or the readiness
// wait itself fails.
func (d *Dispatcher) Run(ctx context.Context) error {
	w, err := newWaker()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.waker = w
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.waker = nil
		d.mu.Unlock()
		w.close()
		d.closeAll()
		d.setState(Idle)
	}()

	if err := d.Start(ctx); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, w.wake)
	defer stop()

	if d.cfg.ResyncInterval > 0 {
		go d.periodicResync(ctx)
	}

	fds := d.pollSet(w)
	for {
		if ctx.Err() != nil {
			return nil
		}
		for i := range fds {
			fds[i].Revents = 0
		}
		if _, err := poll(fds, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			d.log.Error("Poll failed", slog.Any("error", err))
			return fmt.Errorf("notification loop: %w", err)
		}
		for _, pfd := range fds {
			if pfd.Revents == 0 {
				continue
			}
			if int(pfd.Fd) == w.r {
				w.drain()
				continue
			}
			if e, ok := d.registry[int(pfd.Fd)]; ok {
				d.receive(ctx, e)
			}
		}
		d.runPending(ctx)
	}
}

// pollSet lists the registered sockets, in fd order, followed by the wake
// pipe.
func (d *Dispatcher) pollSet(w *waker) []unix.PollFd {
	fds := make([]int, 0, len(d.registry))
	for fd := range d.registry {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	set := make([]unix.PollFd, 0, len(fds)+1)
	for _, fd := range fds {
		set = append(set, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	return append(set, unix.PollFd{Fd: int32(w.r), Events: unix.POLLIN})
}

func (d *Dispatcher) periodicResync(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.ResyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Refresh(channel.Route)
		}
	}
}
