package patch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/notargets/GeoDecomp/transport"
)

// Provider is the receiving end of a link. Every stored nanostep has a
// receive posted on the mailbox; Get waits for the smallest one.
type Provider[T any] struct {
	link     LinkState
	stored   *NanoStepQueue
	receives map[uint64]*transport.Future
	mailbox  transport.Mailbox
	codec    grid.Codec[T]
	cells    []T

	// receiveTimeout bounds each wait for a patch, 0 waits for ctx only
	receiveTimeout time.Duration

	logger  logging.Logger
	metrics metrics.Collector
}

var _ PatchProvider[float64] = (*Provider[float64])(nil)

// NewProvider opens the mailbox of the link from source to target
func NewProvider[T any](ctx context.Context, region geometry.Region, base string, source, target int,
	tr transport.Transport, codec grid.Codec[T], opts ...Option) (*Provider[T], error) {
	o := applyOptions(opts)
	name := LinkName(base, source, target)
	link, err := newLinkState(name, region, codec.Size())
	if err != nil {
		return nil, err
	}
	mb, err := tr.Listen(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", name, err)
	}
	return &Provider[T]{
		link:           link,
		stored:         NewNanoStepQueue(),
		receives:       make(map[uint64]*transport.Future),
		mailbox:        mb,
		codec:          codec,
		cells:          make([]T, region.Size()),
		receiveTimeout: o.receiveTimeout,
		logger:         o.logger.With("link", name, "role", "provider"),
		metrics:        o.metrics,
	}, nil
}

func (p *Provider[T]) Link() *LinkState { return &p.link }

// Charge arms the channel and posts the receive for next
func (p *Provider[T]) Charge(next uint64, w Watermark, stride uint64) error {
	if err := p.link.charge(w, stride); err != nil {
		return err
	}
	for n := range p.receives {
		if !w.Admits(n) {
			delete(p.receives, n)
		}
	}
	if p.link.rearm(p.stored, next) {
		p.recv(next)
	}
	return nil
}

func (p *Provider[T]) recv(nanoStep uint64) {
	p.receives[nanoStep] = p.mailbox.Receive(nanoStep)
}

func (p *Provider[T]) NextRequiredNanoStep() (uint64, bool) {
	return p.stored.PeekMin()
}

// Get copies the buffer tagged nanoStep into g over the link region. A
// nanostep below every stored one is a no-op; one above the smallest is a
// SequenceError.
func (p *Provider[T]) Get(ctx context.Context, g grid.Grid[T], _ geometry.Region, nanoStep uint64, remove bool) error {
	next, ok := p.stored.PeekMin()
	if !ok || nanoStep < next {
		p.metrics.IncrementNoOp("provider")
		p.logger.Warn("get for nanostep outside the pending window", "nanoStep", nanoStep, "pending", p.stored.Values())
		return nil
	}
	if nanoStep > next {
		p.metrics.IncrementProtocolViolation("provider")
		return &SequenceError{Link: p.link.name, Expected: next, Actual: nanoStep, Detail: "provider skipped a nanostep"}
	}

	f, ok := p.receives[next]
	if !ok {
		f = p.mailbox.Receive(next)
		p.receives[next] = f
	}
	start := time.Now()
	data, err := p.wait(ctx, f)
	if err != nil {
		return err
	}
	p.metrics.RecordPatchReceived(len(data), time.Since(start).Seconds())
	if err := p.codec.Decode(data, p.cells); err != nil {
		return fmt.Errorf("decoding %s@%d: %w", p.link.name, nanoStep, err)
	}
	if err := grid.CopyRegionIn(g, p.cells, p.link.region); err != nil {
		return fmt.Errorf("placing %s@%d: %w", p.link.name, nanoStep, err)
	}

	if remove {
		delete(p.receives, next)
		if succ, ok := p.link.retire(p.stored); ok {
			p.recv(succ)
		}
	}
	return nil
}

func (p *Provider[T]) wait(ctx context.Context, f *transport.Future) ([]byte, error) {
	next, _ := p.stored.PeekMin()
	waitCtx := ctx
	if p.receiveTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.receiveTimeout)
		defer cancel()
	}
	data, err := f.Wait(waitCtx)
	if err == nil {
		return data, nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		p.logger.Error("patch did not arrive", "nanoStep", next, "timeout", p.receiveTimeout)
		return nil, fmt.Errorf("%w: %s@%d after %s", ErrReceiveTimeout, p.link.name, next, p.receiveTimeout)
	}
	return nil, fmt.Errorf("receiving %s@%d: %w", p.link.name, next, err)
}

func (p *Provider[T]) State() State {
	switch {
	case p.link.quiescent:
		return Quiescent
	case !p.link.charged:
		return Arming
	}
	next, ok := p.stored.PeekMin()
	if ok {
		if f, posted := p.receives[next]; posted && f.Ready() {
			return ReadyToUpdate
		}
	}
	return AwaitingData
}

// Cleanup posts receives for every stored nanostep that has none yet
func (p *Provider[T]) Cleanup() {
	for _, n := range p.stored.Values() {
		if _, ok := p.receives[n]; !ok {
			p.recv(n)
		}
	}
}

// Wait blocks until the smallest pending buffer has arrived, without
// consuming it
func (p *Provider[T]) Wait(ctx context.Context) error {
	next, ok := p.stored.PeekMin()
	if !ok {
		return nil
	}
	f, posted := p.receives[next]
	if !posted {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.Done():
		return nil
	}
}

// Cancel aborts every outstanding receive
func (p *Provider[T]) Cancel() {
	p.mailbox.Cancel()
}

func (p *Provider[T]) Close() error {
	clear(p.receives)
	return p.mailbox.Close()
}
