package transport

import (
	"fmt"
	"sync/atomic"

	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/puzpuzpuz/xsync/v4"
)

// inbox is the Mailbox shared by all transports. Slots are keyed by
// nanostep and created by whichever comes first, the receive or the
// delivery, so early arrivals are buffered until asked for.
type inbox struct {
	name    string
	kind    string
	futures *xsync.Map[uint64, *Future]
	closed  atomic.Bool
	onClose func() error

	logger  logging.Logger
	metrics metrics.Collector
}

var _ Mailbox = (*inbox)(nil)

func newInbox(name, kind string, o options) *inbox {
	return &inbox{
		name:    name,
		kind:    kind,
		futures: xsync.NewMap[uint64, *Future](),
		logger:  o.logger.With("link", name),
		metrics: o.metrics,
	}
}

func (b *inbox) Name() string { return b.name }

func (b *inbox) Receive(nanoStep uint64) *Future {
	if b.closed.Load() {
		f := newFuture()
		f.resolve(nil, fmt.Errorf("%w: mailbox %s", ErrTransportClosed, b.name))
		return f
	}
	return b.slot(nanoStep)
}

func (b *inbox) slot(nanoStep uint64) *Future {
	f, _ := b.futures.LoadOrCompute(nanoStep, func() (*Future, bool) {
		f := newFuture()
		f.release = func() { b.futures.Delete(nanoStep) }
		return f, false
	})
	return f
}

// deliver verifies and stores an arriving payload
func (b *inbox) deliver(nanoStep, checksum uint64, payload []byte) {
	if b.closed.Load() {
		b.logger.Debug("dropping patch for closed mailbox", "nanoStep", nanoStep)
		return
	}
	f := b.slot(nanoStep)
	if Checksum(payload) != checksum {
		b.metrics.IncrementChecksumFailure(b.kind)
		b.logger.Error("patch checksum mismatch", "nanoStep", nanoStep, "bytes", len(payload))
		f.resolve(nil, fmt.Errorf("%w: link %s nanostep %d", ErrChecksumMismatch, b.name, nanoStep))
		return
	}
	if !f.resolve(payload, nil) {
		b.logger.Warn("duplicate patch dropped", "nanoStep", nanoStep)
	}
}

func (b *inbox) Cancel() {
	b.futures.Range(func(nanoStep uint64, f *Future) bool {
		f.resolve(nil, fmt.Errorf("%w: link %s nanostep %d", ErrCanceled, b.name, nanoStep))
		b.futures.Delete(nanoStep)
		return true
	})
}

func (b *inbox) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.Cancel()
	if b.onClose != nil {
		return b.onClose()
	}
	return nil
}

// pending is the number of slots not yet consumed
func (b *inbox) pending() int {
	return b.futures.Size()
}
