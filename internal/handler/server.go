package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/wesleywu/routesync/internal/logger"
	"github.com/wesleywu/routesync/internal/store"
)

// Server takes requests from the backend request channel, runs each on a
// worker pool and publishes the reply.
type Server struct {
	backend  store.Backend
	handler  *Handler
	pool     *ants.Pool
	requests string
	replies  string
	log      *logger.Logger
	wg       sync.WaitGroup
}

func NewServer(backend store.Backend, h *Handler, workers int, requests, replies string, log *logger.Logger) (*Server, error) {
	log = log.WithComponent("request-server")
	pool, err := ants.NewPool(workers, ants.WithPanicHandler(func(p interface{}) {
		log.Error("Request handler panicked", slog.Any("panic", p))
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Server{
		backend:  backend,
		handler:  h,
		pool:     pool,
		requests: requests,
		replies:  replies,
		log:      log,
	}, nil
}

// Serve blocks until ctx is done or the subscription ends, then waits for
// requests in flight.
func (s *Server) Serve(ctx context.Context) error {
	msgs, err := s.backend.Subscribe(ctx, s.requests)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.requests, err)
	}
	s.log.Info("Serving requests",
		slog.String("requests", s.requests),
		slog.String("replies", s.replies),
		slog.Int("workers", s.pool.Cap()))
	defer s.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			s.wg.Add(1)
			if err := s.pool.Submit(func() {
				defer s.wg.Done()
				s.serveOne(ctx, payload)
			}); err != nil {
				s.wg.Done()
				s.log.Warn("Failed to schedule request", slog.Any("error", err))
			}
		}
	}
}

func (s *Server) serveOne(ctx context.Context, payload []byte) {
	var reply store.Reply
	req, err := store.DecodeRequest(payload)
	if err != nil {
		reply = store.Reply{Code: ResultInvalidArgument.String(), Message: err.Error()}
	} else {
		reply = s.handler.Handle(ctx, req)
	}

	out, err := store.Encode(reply)
	if err != nil {
		s.log.Error("Failed to encode reply", slog.String("id", reply.ID), slog.Any("error", err))
		return
	}
	if err := s.backend.Publish(ctx, s.replies, out); err != nil {
		s.log.Warn("Failed to publish reply", slog.String("id", reply.ID), slog.Any("error", err))
	}
}

// Close releases the worker pool.
func (s *Server) Close() {
	s.pool.Release()
}
