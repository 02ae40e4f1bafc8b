package transport

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// MaxFrameSize bounds a single UDP datagram per spec (1 KiB).
const MaxFrameSize = 1024

// DefaultUDPAddress is the test photometer ingest address.
const DefaultUDPAddress = "0.0.0.0:2255"

// UDPSocket is the subset of *net.UDPConn the listener needs. It exists so
// tests can substitute a fake socket without opening a real port.
type UDPSocket interface {
	SetReadDeadline(t time.Time) error
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadBuffer(bytes int) error
	Close() error
}

// UDPSocketFactory creates the underlying socket. Production code uses
// NewRealUDPSocketFactory; tests substitute a fake factory.
type UDPSocketFactory interface {
	ListenUDP(network string, addr *net.UDPAddr) (UDPSocket, error)
}

type realUDPSocketFactory struct{}

// NewRealUDPSocketFactory returns a UDPSocketFactory backed by net.ListenUDP.
func NewRealUDPSocketFactory() UDPSocketFactory { return realUDPSocketFactory{} }

func (realUDPSocketFactory) ListenUDP(network string, addr *net.UDPAddr) (UDPSocket, error) {
	return net.ListenUDP(network, addr)
}

// UDP is the UDP transport: binds 0.0.0.0:2255 (by default) and yields one
// timestamped frame per datagram received.
type UDP struct {
	address string
	rcvBuf  int
	factory UDPSocketFactory

	mu   sync.Mutex
	conn UDPSocket
}

// UDPOption configures a UDP transport at construction.
type UDPOption func(*UDP)

// WithUDPSocketFactory overrides the socket factory, used by tests.
func WithUDPSocketFactory(f UDPSocketFactory) UDPOption {
	return func(u *UDP) { u.factory = f }
}

// WithReceiveBuffer sets the OS receive buffer size in bytes.
func WithReceiveBuffer(bytes int) UDPOption {
	return func(u *UDP) { u.rcvBuf = bytes }
}

// NewUDP creates a UDP transport bound to address (e.g. "0.0.0.0:2255").
// The socket is opened lazily on the first Read so construction never fails.
func NewUDP(address string, opts ...UDPOption) *UDP {
	u := &UDP{
		address: address,
		rcvBuf:  1 << 20,
		factory: NewRealUDPSocketFactory(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *UDP) ensureConn() (UDPSocket, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn != nil {
		return u.conn, nil
	}
	addr, err := net.ResolveUDPAddr("udp", u.address)
	if err != nil {
		return nil, newError(ErrIO, "resolve", err)
	}
	conn, err := u.factory.ListenUDP("udp", addr)
	if err != nil {
		return nil, newError(ErrIO, "listen", err)
	}
	if err := conn.SetReadBuffer(u.rcvBuf); err != nil {
		// Non-fatal: the OS default buffer still works, just more prone to drops.
		_ = err
	}
	u.conn = conn
	return conn, nil
}

// Read blocks until one datagram is received, ctx is cancelled, or the
// socket fails. The returned text has been UTF-8 validated and trimmed.
func (u *UDP) Read(ctx context.Context) (time.Time, string, error) {
	conn, err := u.ensureConn()
	if err != nil {
		return time.Time{}, "", err
	}

	buf := make([]byte, MaxFrameSize)
	for {
		select {
		case <-ctx.Done():
			return time.Time{}, "", newError(ErrIO, "read", ctx.Err())
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
			return time.Time{}, "", newError(ErrIO, "set-deadline", err)
		}

		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return time.Time{}, "", newError(ErrDisconnected, "read-from-udp", err)
		}

		now := time.Now().UTC()
		if !utf8.Valid(buf[:n]) {
			return now, "", newError(ErrInvalidUTF8, "decode", errInvalidUTF8)
		}
		return now, strings.TrimSpace(string(buf[:n])), nil
	}
}

// Close releases the UDP socket.
func (u *UDP) Close() error {
	u.mu.Lock()
	conn := u.conn
	u.conn = nil
	u.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

var errInvalidUTF8 = &utf8Error{}

type utf8Error struct{}

func (*utf8Error) Error() string { return "frame is not valid UTF-8" }
