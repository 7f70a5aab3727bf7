package patch

import (
	"context"
	"fmt"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/notargets/GeoDecomp/transport"
)

// Accepter is the sending end of a link. It ships the cells of its region
// to the remote Provider at every requested nanostep.
type Accepter[T any] struct {
	link      LinkState
	requested *NanoStepQueue
	transport transport.Transport
	endpoint  transport.Endpoint
	codec     grid.Codec[T]
	cells     []T

	logger  logging.Logger
	metrics metrics.Collector
}

var _ PatchAccepter[float64] = (*Accepter[float64])(nil)

// NewAccepter resolves the link from source to target by name. The
// channel stays in Arming until charged.
func NewAccepter[T any](ctx context.Context, region geometry.Region, base string, source, target int,
	tr transport.Transport, codec grid.Codec[T], opts ...Option) (*Accepter[T], error) {
	o := applyOptions(opts)
	name := LinkName(base, source, target)
	link, err := newLinkState(name, region, codec.Size())
	if err != nil {
		return nil, err
	}
	ep, err := tr.Resolve(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", name, err)
	}
	return &Accepter[T]{
		link:      link,
		requested: NewNanoStepQueue(),
		transport: tr,
		endpoint:  ep,
		codec:     codec,
		cells:     make([]T, 0, region.Size()),
		logger:    o.logger.With("link", name, "role", "accepter"),
		metrics:   o.metrics,
	}, nil
}

func (a *Accepter[T]) Link() *LinkState { return &a.link }

// Charge arms the channel: next is the first nanostep to send, w the
// terminal watermark, stride the spacing of later sends
func (a *Accepter[T]) Charge(next uint64, w Watermark, stride uint64) error {
	if err := a.link.charge(w, stride); err != nil {
		return err
	}
	a.link.rearm(a.requested, next)
	return nil
}

func (a *Accepter[T]) NextRequiredNanoStep() (uint64, bool) {
	return a.requested.PeekMin()
}

// Put sends the region's cells if nanoStep is the smallest pending
// request. Any other nanostep is a no-op.
func (a *Accepter[T]) Put(ctx context.Context, g grid.Grid[T], _ geometry.Region, nanoStep uint64) error {
	if !a.checkNanoStepPut(nanoStep) {
		a.metrics.IncrementNoOp("accepter")
		a.logger.Debug("put ignored", "nanoStep", nanoStep, "pending", a.requested.Values())
		return nil
	}
	a.cells = grid.CopyRegionOut(g, a.link.region, a.cells[:0])
	a.link.buffer = a.codec.Encode(a.link.buffer[:0], a.cells)
	if err := a.transport.Send(ctx, a.endpoint, nanoStep, a.link.buffer); err != nil {
		return fmt.Errorf("sending %s@%d: %w", a.link.name, nanoStep, err)
	}
	a.metrics.RecordPatchSent(len(a.link.buffer))
	a.link.retire(a.requested)
	if a.link.quiescent {
		a.logger.Debug("channel quiescent", "nanoStep", nanoStep)
	}
	return nil
}

func (a *Accepter[T]) checkNanoStepPut(nanoStep uint64) bool {
	next, ok := a.requested.PeekMin()
	return ok && next == nanoStep
}

func (a *Accepter[T]) State() State {
	switch {
	case a.link.quiescent:
		return Quiescent
	case !a.link.charged:
		return Arming
	default:
		return ReadyToUpdate
	}
}

// Cleanup has nothing to flush: Send hands the payload off before it
// returns
func (a *Accepter[T]) Cleanup() {}

// Wait drains outstanding sends
func (a *Accepter[T]) Wait(ctx context.Context) error { return ctx.Err() }

func (a *Accepter[T]) Cancel() {}

func (a *Accepter[T]) Close() error { return nil }
