package netlink

import (
	"context"
	"fmt"
	"time"
)

// Waiter is a Receiver that can block until a reply is readable.
type Waiter interface {
	Receiver
	WaitReadable(d time.Duration) (bool, error)
}

// pollSlice bounds each wait so context cancellation is noticed.
const pollSlice = 100 * time.Millisecond

// AwaitAck reads replies until the kernel answers request seq with an
// acknowledgement, an error or NLMSG_DONE. Messages for other sequence
// numbers are skipped. A positive timeout bounds the wait with ErrTimeout;
// otherwise it lasts until ctx is done.
func AwaitAck(ctx context.Context, w Waiter, seq uint32, timeout time.Duration, buf []byte) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		left := pollSlice
		if !deadline.IsZero() {
			if left = time.Until(deadline); left <= 0 {
				return ErrTimeout
			}
			if left > pollSlice {
				left = pollSlice
			}
		}
		ready, err := w.WaitReadable(left)
		if err != nil {
			return fmt.Errorf("failed to wait for acknowledgement: %w", err)
		}
		if !ready {
			continue
		}
		msgs, err := w.Receive(buf)
		if err != nil {
			return fmt.Errorf("failed to read acknowledgement: %w", err)
		}
		for i := range msgs {
			m := &msgs[i]
			if m.Header.Seq != seq {
				continue
			}
			switch m.Header.Type {
			case NLMSG_ERROR:
				errno, err := m.Errno()
				if err != nil {
					return err
				}
				if errno != 0 {
					return &KernelError{Seq: seq, Errno: errno}
				}
				return nil
			case NLMSG_DONE:
				return nil
			}
		}
	}
}
