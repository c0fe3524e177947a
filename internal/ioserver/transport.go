package ioserver

import (
	"errors"
	"io"

	"github.com/tarm/serial"
)

// PortConfig describes how to open one of the two UART channels. Adapted
// from the teacher's bridge.TransportConfig/UARTConfig (services/bridge) —
// same "Type" switch, but dialing a real OS serial device with
// github.com/tarm/serial instead of the bridge's TinyGo-only injected
// dialler, since this controller runs as a hosted binary, not firmware.
type PortConfig struct {
	Type string `json:"type"` // "serial" or "loopback"
	Serial *SerialConfig `json:"serial,omitempty"`
}

type SerialConfig struct {
	Device string `json:"device"` // e.g. "/dev/ttyUSB0"
	Baud   int    `json:"baud"`
}

// OpenPort dials the configured transport. "loopback" (the zero value's
// natural default when no serial device is configured) returns an in-memory
// duplex pipe so the rest of the system can run without real hardware
// attached.
func OpenPort(cfg PortConfig) (io.ReadWriteCloser, error) {
	switch cfg.Type {
	case "", "loopback":
		return newLoopback(), nil
	case "serial":
		if cfg.Serial == nil || cfg.Serial.Device == "" {
			return nil, errors.New("ioserver: serial transport requires a device path")
		}
		baud := cfg.Serial.Baud
		if baud == 0 {
			baud = 2400 // Marklin's native rate
		}
		return serial.OpenPort(&serial.Config{Name: cfg.Serial.Device, Baud: baud})
	default:
		return nil, errors.New("ioserver: unknown port type " + cfg.Type)
	}
}

// loopback is a trivial in-process duplex port: bytes written are echoed
// back to the reader, standing in for a connected simulator when no
// physical Marklin controller or terminal is attached.
type loopback struct {
	buf    chan byte
	closed chan struct{}
}

func newLoopback() io.ReadWriteCloser {
	return &loopback{buf: make(chan byte, 4096), closed: make(chan struct{})}
}

func (l *loopback) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	select {
	case b := <-l.buf:
		p[0] = b
	case <-l.closed:
		return 0, io.EOF
	}
	n := 1
	for n < len(p) {
		select {
		case b := <-l.buf:
			p[n] = b
			n++
		default:
			return n, nil
		}
	}
	return n, nil
}

func (l *loopback) Write(p []byte) (int, error) {
	for i, b := range p {
		select {
		case l.buf <- b:
		case <-l.closed:
			return i, io.ErrClosedPipe
		}
	}
	return len(p), nil
}

func (l *loopback) Close() error {
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	return nil
}
