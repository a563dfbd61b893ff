package ports

import "errors"

// ErrReadTimeout is returned by Transport.ReadLine when no complete line
// arrived within the read timeout. It is not a fault.
var ErrReadTimeout = errors.New("transport: read timeout")

//go:generate mockgen -destination=mock_ports.go -package=ports github.com/ghalamif/TelemFlow/internal/ports Transport,RecordLog,Notifier

// Transport is a connected, already-streaming device.
type Transport interface {
	// ReadLine blocks for at most the configured read timeout and returns one
	// newline-delimited frame without its terminator.
	ReadLine() ([]byte, error)
	Close() error
}

// TransportOpener connects to the device for a new session.
type TransportOpener func() (Transport, error)
