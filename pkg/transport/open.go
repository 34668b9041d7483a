package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"go.bug.st/serial"
)

// OpenSerial opens a serial device at 8N1. The default baud rate is 115200.
func OpenSerial(path string, opts ...Option) (*StreamSource, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	port, err := serial.Open(path, &serial.Mode{
		BaudRate: o.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", path, describeSerialError(err))
	}
	if err := port.SetReadTimeout(o.readTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return NewStreamSource(path, port, opts...), nil
}

func describeSerialError(err error) error {
	var portErr *serial.PortError
	if !errors.As(err, &portErr) {
		return err
	}
	switch portErr.Code() {
	case serial.PortNotFound:
		return fmt.Errorf("port not found: %w", err)
	case serial.PortBusy:
		return fmt.Errorf("port busy: %w", err)
	case serial.PermissionDenied:
		return fmt.Errorf("permission denied: %w", err)
	case serial.InvalidSpeed:
		return fmt.Errorf("unsupported baud rate: %w", err)
	default:
		return err
	}
}

// DialTCP connects to a serial-over-TCP bridge.
func DialTCP(ctx context.Context, addr string, opts ...Option) (*StreamSource, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dialer := net.Dialer{Timeout: o.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewStreamSource(addr, conn, opts...), nil
}

// OpenFile replays a captured byte stream. The read timeout is not applied
// to files.
func OpenFile(path string, opts ...Option) (*StreamSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	opts = append(opts, func(o *options) { o.readTimeout = 0 })
	return NewStreamSource(path, f, opts...), nil
}
