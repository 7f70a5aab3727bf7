// Package transport moves encoded patches between ranks. Both ends of a
// channel address it by its link name only; how the name maps onto a
// mailbox, a NATS subject or a gRPC peer is up to the implementation.
package transport

import (
	"context"
	"errors"

	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/zeebo/xxh3"
)

var (
	// ErrChecksumMismatch is returned when a payload arrives corrupted.
	ErrChecksumMismatch = errors.New("payload checksum mismatch")

	// ErrTransportClosed is returned by operations on a closed transport
	// or mailbox.
	ErrTransportClosed = errors.New("transport closed")

	// ErrCanceled resolves receives aborted by Mailbox.Cancel.
	ErrCanceled = errors.New("receive canceled")

	// ErrAlreadyListening is returned when a second mailbox is opened for
	// the same link name.
	ErrAlreadyListening = errors.New("link already has a listener")

	// ErrUnknownLink is returned when a link name cannot be resolved.
	ErrUnknownLink = errors.New("unknown link")
)

// Endpoint is a resolved send target
type Endpoint struct {
	// Name is the link name both ends agree on
	Name string
	// Address is transport specific: mailbox name, subject or peer address
	Address string
}

// Transport delivers payloads tagged with a nanostep to named mailboxes.
type Transport interface {
	// Resolve looks up the send target for a link name
	Resolve(ctx context.Context, name string) (Endpoint, error)
	// Send hands a payload to the transport. It does not wait for the
	// receiver to consume it; payload may be reused after Send returns.
	Send(ctx context.Context, ep Endpoint, nanoStep uint64, payload []byte) error
	// Listen opens the receiving end of a link
	Listen(ctx context.Context, name string) (Mailbox, error)
	Close() error
}

// Mailbox is the receiving end of one link
type Mailbox interface {
	Name() string
	// Receive posts a receive for nanoStep. The future resolves when the
	// payload arrives, which may already have happened.
	Receive(nanoStep uint64) *Future
	// Cancel resolves every outstanding receive with ErrCanceled
	Cancel()
	Close() error
}

// Checksum is the xxh3 digest carried with every payload
func Checksum(payload []byte) uint64 {
	return xxh3.Hash(payload)
}

// Option configures a transport.
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics metrics.Collector
}

func defaultOptions() options {
	return options{logger: logging.NewNop(), metrics: metrics.NewNop()}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the collector that counts checksum failures.
func WithMetrics(m metrics.Collector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}
