package transport

import (
	"bufio"
	"context"
	"io"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SerialPorter is the minimal interface a serial port must implement. Mirrors
// go.bug.st/serial.Port so tests can substitute a fake port.
type SerialPorter interface {
	io.ReadWriteCloser
}

// DefaultPortName returns the platform-default TTY for the reference
// photometer: /dev/ttyUSB0 on POSIX, COM1 on Windows.
func DefaultPortName() string {
	if runtime.GOOS == "windows" {
		return "COM1"
	}
	return "/dev/ttyUSB0"
}

// Serial is the serial transport: opens the platform-default (or given) TTY
// at the requested baud, frames on LF, and yields one timestamped line per
// frame.
type Serial struct {
	path string
	baud int

	mu      sync.Mutex
	port    SerialPorter
	scanner *bufio.Scanner
	opener  func(path string, baud int) (SerialPorter, error)
}

// SerialOption configures a Serial transport at construction.
type SerialOption func(*Serial)

// WithBaudRate overrides the default 9600 bps.
func WithBaudRate(baud int) SerialOption {
	return func(s *Serial) { s.baud = baud }
}

// WithPortOpener overrides how the underlying port is opened, used by tests
// to inject a mock SerialPorter instead of a real TTY.
func WithPortOpener(opener func(path string, baud int) (SerialPorter, error)) SerialOption {
	return func(s *Serial) { s.opener = opener }
}

// NewSerial creates a serial transport for path (empty means the
// platform default) at 9600 bps unless overridden.
func NewSerial(path string, opts ...SerialOption) *Serial {
	if path == "" {
		path = DefaultPortName()
	}
	s := &Serial{
		path: path,
		baud: 9600,
		opener: func(path string, baud int) (SerialPorter, error) {
			mode := &serial.Mode{
				BaudRate: baud,
				DataBits: 8,
				Parity:   serial.NoParity,
				StopBits: serial.OneStopBit,
			}
			return serial.Open(path, mode)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Serial) ensureOpen() (*bufio.Scanner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanner != nil {
		return s.scanner, nil
	}
	port, err := s.opener(s.path, s.baud)
	if err != nil {
		return nil, newError(ErrIO, "open", err)
	}
	scanner := bufio.NewScanner(port)
	scanner.Split(scanLF)
	s.port = port
	s.scanner = scanner
	return scanner, nil
}

// scanLF is a bufio.SplitFunc that frames on a bare 0x0A, matching the
// reference photometer's line discipline (it does not reliably send CR).
func scanLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Read blocks until one LF-framed line is available, the port errors, or
// disconnects.
func (s *Serial) Read(ctx context.Context) (time.Time, string, error) {
	scanner, err := s.ensureOpen()
	if err != nil {
		return time.Time{}, "", err
	}

	type result struct {
		line string
		ok   bool
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		ok := scanner.Scan()
		ch <- result{line: scanner.Text(), ok: ok, err: scanner.Err()}
	}()

	select {
	case <-ctx.Done():
		return time.Time{}, "", newError(ErrIO, "read", ctx.Err())
	case r := <-ch:
		now := time.Now().UTC()
		if !r.ok {
			if r.err != nil {
				return now, "", newError(ErrDisconnected, "scan", r.err)
			}
			return now, "", newError(ErrDisconnected, "scan", io.EOF)
		}
		return now, strings.TrimSpace(r.line), nil
	}
}

// Close closes the underlying serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.scanner = nil
	s.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}
