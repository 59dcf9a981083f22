//go:build !linux

package dispatcher

import (
	"context"
	"errors"
)

type waker struct{}

func (w *waker) wake() {}

// Run is only supported on Linux.
func (d *Dispatcher) Run(ctx context.Context) error {
	return errors.New("netlink dispatcher requires linux")
}
