// Package discovery obtains the static device descriptor for each
// photometer: an HTTP discoverer for the test device, and a configuration
// store discoverer for the reference device.
package discovery

import (
	"fmt"

	"github.com/tessw/photocal/internal/photometer/payload"
)

// ErrorKind classifies a discovery failure.
type ErrorKind int

const (
	// ErrTimeout is a connection or read timeout against the HTTP device.
	ErrTimeout ErrorKind = iota
	// ErrConnRefused is a rejected TCP connection.
	ErrConnRefused
	// ErrMalformedField is a present-but-unparseable numeric field.
	ErrMalformedField
	// ErrConfigStore is a failure reading the configuration store.
	ErrConfigStore
)

// Error is a DiscoveryError / ConfigStoreError per the error taxonomy.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("discovery: %s", e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// applyDefaults fills Sensor/Model with the documented fallbacks when the
// device's response omitted them.
func applyDefaults(info payload.Info) payload.Info {
	if info.Sensor == "" {
		info.Sensor = payload.DefaultSensor
	}
	if info.Model == "" {
		info.Model = payload.DefaultModel
	}
	return info
}
