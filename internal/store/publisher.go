package store

import (
	"context"
	"fmt"

	"github.com/wesleywu/routesync/internal/route"
)

// Publisher writes objects to the backend and announces each one on the
// event channel.
type Publisher struct {
	backend Backend
	channel string
}

func NewPublisher(backend Backend, channel string) *Publisher {
	return &Publisher{backend: backend, channel: channel}
}

// Publish stores o (or removes it for a delete) and then announces it.
func (p *Publisher) Publish(ctx context.Context, o *Object) error {
	if o.Op == 0 {
		return fmt.Errorf("object %s has no operation", o.Key())
	}
	var err error
	if o.Op == route.OpDelete {
		err = p.backend.Delete(ctx, o.Key())
	} else {
		err = p.backend.Replace(ctx, o.Key(), o.Fields())
	}
	if err != nil {
		return err
	}

	payload, err := Encode(NewNotification(o))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", o.Key(), err)
	}
	return p.backend.Publish(ctx, p.channel, payload)
}
