// Package transport provides byte-chunk sources for a session: serial
// ports, TCP bridges and captured stream files.
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("transport: source closed")

// Source yields raw chunks as the transport delivers them. Receive returns
// io.EOF once the stream has ended.
type Source interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type options struct {
	bufSize     int
	readTimeout time.Duration
	dialTimeout time.Duration
	baudRate    int
}

func defaultOptions() options {
	return options{
		bufSize:     4096,
		readTimeout: 200 * time.Millisecond,
		dialTimeout: 5 * time.Second,
		baudRate:    115200,
	}
}

type Option func(*options)

// WithBufferSize sets the maximum chunk size returned by one Receive.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

// WithReadTimeout bounds each underlying read so cancellation is observed
// while the line is idle.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

func WithBaudRate(baud int) Option {
	return func(o *options) {
		if baud > 0 {
			o.baudRate = baud
		}
	}
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// StreamSource adapts an io.ReadCloser into a Source.
type StreamSource struct {
	name        string
	rc          io.ReadCloser
	buf         []byte
	readTimeout time.Duration

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewStreamSource wraps rc. Readers implementing SetReadDeadline get a
// per-read deadline; readers that return (0, nil) on timeout, like serial
// ports, are polled.
func NewStreamSource(name string, rc io.ReadCloser, opts ...Option) *StreamSource {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &StreamSource{
		name:        name,
		rc:          rc,
		buf:         make([]byte, o.bufSize),
		readTimeout: o.readTimeout,
		closed:      make(chan struct{}),
	}
}

func (s *StreamSource) Name() string {
	return s.name
}

func (s *StreamSource) Receive(ctx context.Context) ([]byte, error) {
	dl, hasDeadline := s.rc.(readDeadliner)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.isClosed() {
			return nil, ErrClosed
		}
		if hasDeadline && s.readTimeout > 0 {
			_ = dl.SetReadDeadline(time.Now().Add(s.readTimeout))
		}

		n, err := s.rc.Read(s.buf)
		if n > 0 {
			return append([]byte(nil), s.buf[:n]...), nil
		}
		if err == nil {
			continue
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			continue
		}
		if s.isClosed() {
			return nil, ErrClosed
		}
		return nil, err
	}
}

func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}

func (s *StreamSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
