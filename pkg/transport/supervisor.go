package transport

import (
	"context"
	"errors"
	"io"
	"time"
)

// OpenFunc opens a fresh Source for one connection attempt.
type OpenFunc func(ctx context.Context) (Source, error)

// HandleFunc consumes a Source until it fails or ends.
type HandleFunc func(ctx context.Context, src Source) error

// Supervisor owns the connection lifecycle: open, hand the source to a
// handler, back off and retry.
type Supervisor struct {
	open         OpenFunc
	reconnect    time.Duration
	reconnectMax time.Duration
	oneShot      bool
	errorHandler func(error)
}

type SupervisorOption func(*Supervisor)

func WithReconnectInterval(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.reconnect = d
		}
	}
}

func WithReconnectMax(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.reconnectMax = d
		}
	}
}

func WithErrorHandler(fn func(error)) SupervisorOption {
	return func(s *Supervisor) {
		if fn != nil {
			s.errorHandler = fn
		}
	}
}

// WithOneShot makes Run return after the first connection ends instead of
// reconnecting.
func WithOneShot() SupervisorOption {
	return func(s *Supervisor) {
		s.oneShot = true
	}
}

func NewSupervisor(open OpenFunc, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		open:         open,
		reconnect:    1 * time.Second,
		reconnectMax: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled, or in one-shot mode until the first
// connection ends. A clean end of stream is not reported as an error.
func (s *Supervisor) Run(ctx context.Context, handle HandleFunc) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		src, err := s.open(ctx)
		if err != nil {
			if s.oneShot {
				return err
			}
			s.handleError(err)
			attempt++
			s.sleepBackoff(ctx, attempt)
			continue
		}

		attempt = 0
		err = s.serve(ctx, src, handle)
		if ctx.Err() != nil {
			return nil
		}
		if s.oneShot {
			return err
		}
		if err != nil {
			s.handleError(err)
		}
		s.sleepBackoff(ctx, 1)
	}
}

func (s *Supervisor) serve(ctx context.Context, src Source, handle HandleFunc) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock readers that ignore context cancellation.
	go func() {
		<-connCtx.Done()
		_ = src.Close()
	}()

	err := handle(connCtx, src)
	if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (s *Supervisor) sleepBackoff(ctx context.Context, attempt int) {
	wait := min(s.reconnect*time.Duration(attempt), s.reconnectMax)
	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	timer.Stop()
}

func (s *Supervisor) handleError(err error) {
	if s.errorHandler != nil {
		s.errorHandler(err)
	}
}
