package transport

import (
	"context"
	"sync/atomic"
)

// Local connects ranks running in the same process. Mailboxes meet by
// name, a send may happen before the receiving side listens.
type Local struct {
	reg    registry
	closed atomic.Bool
}

var _ Transport = (*Local)(nil)

func NewLocal(opts ...Option) *Local {
	return &Local{reg: newRegistry("local", applyOptions(opts))}
}

func (l *Local) Resolve(_ context.Context, name string) (Endpoint, error) {
	if l.closed.Load() {
		return Endpoint{}, ErrTransportClosed
	}
	return Endpoint{Name: name, Address: name}, nil
}

// Send copies payload into the receiving mailbox
func (l *Local) Send(ctx context.Context, ep Endpoint, nanoStep uint64, payload []byte) error {
	if l.closed.Load() {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data := append([]byte(nil), payload...)
	l.reg.box(ep.Address).deliver(nanoStep, Checksum(data), data)
	return nil
}

func (l *Local) Listen(_ context.Context, name string) (Mailbox, error) {
	if l.closed.Load() {
		return nil, ErrTransportClosed
	}
	b, err := l.reg.listen(name)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (l *Local) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.reg.closeAll()
	return nil
}
