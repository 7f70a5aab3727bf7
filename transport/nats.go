package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"
)

// NATS headers carried with every patch
const (
	HeaderLink     = "Geodecomp-Link"
	HeaderNanoStep = "Geodecomp-Nanostep"
	HeaderChecksum = "Geodecomp-Checksum"
)

// DefaultSubjectPrefix is used when no prefix is configured
const DefaultSubjectPrefix = "geodecomp.patch"

// flushTimeout bounds the subscription flush when the caller's context
// carries no deadline
const flushTimeout = 5 * time.Second

// NATS carries patches over core NATS publish/subscribe. Each link maps
// to one subject derived from a hash of its name, so arbitrary link names
// stay valid subject tokens. Patches published before the receiving
// mailbox subscribes are lost; use JetStream when processes start
// independently.
type NATS struct {
	conn   *nats.Conn
	prefix string
	links  *xsync.Map[string, *subscription]
	closed atomic.Bool
	opts   options
}

// subscription is an open mailbox and the feed that fills it
type subscription struct {
	box  *inbox
	stop func() error
}

var _ Transport = (*NATS)(nil)

// NewNATS uses an established connection, which the caller keeps owning
func NewNATS(conn *nats.Conn, prefix string, opts ...Option) *NATS {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATS{
		conn:   conn,
		prefix: prefix,
		links:  xsync.NewMap[string, *subscription](),
		opts:   applyOptions(opts),
	}
}

// Subject returns the subject a link name is published on
func Subject(prefix, name string) string {
	return fmt.Sprintf("%s.%016x", prefix, xxh3.HashString(name))
}

func (n *NATS) Resolve(_ context.Context, name string) (Endpoint, error) {
	if n.closed.Load() {
		return Endpoint{}, ErrTransportClosed
	}
	return Endpoint{Name: name, Address: Subject(n.prefix, name)}, nil
}

func (n *NATS) Send(ctx context.Context, ep Endpoint, nanoStep uint64, payload []byte) error {
	if n.closed.Load() {
		return ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.conn.PublishMsg(patchMsg(ep, nanoStep, payload)); err != nil {
		return fmt.Errorf("publishing patch %s@%d: %w", ep.Name, nanoStep, err)
	}
	return nil
}

// Listen subscribes to the link subject and flushes so that the server
// knows the interest before the first patch is published
func (n *NATS) Listen(ctx context.Context, name string) (Mailbox, error) {
	if n.closed.Load() {
		return nil, ErrTransportClosed
	}
	if _, loaded := n.links.Load(name); loaded {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyListening, name)
	}

	box := newInbox(name, "nats", n.opts)
	subject := Subject(n.prefix, name)
	sub, err := n.conn.Subscribe(subject, func(m *nats.Msg) {
		deliverMsg(box, m.Subject, m.Header, m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing %s: %w", subject, err)
	}
	flushCtx, cancel := flushContext(ctx)
	defer cancel()
	if err := n.conn.FlushWithContext(flushCtx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flushing subscription %s: %w", subject, err)
	}

	link := &subscription{box: box, stop: func() error { return ignoreClosed(sub.Unsubscribe()) }}
	if _, loaded := n.links.LoadOrStore(name, link); loaded {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyListening, name)
	}
	box.onClose = func() error {
		n.links.Delete(name)
		return link.stop()
	}
	n.opts.logger.Debug("listening", "link", name, "subject", subject)
	return box, nil
}

// Close closes every open mailbox, which cancels its outstanding
// receives. The connection stays open.
func (n *NATS) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	return closeLinks(n.links)
}

func closeLinks(links *xsync.Map[string, *subscription]) error {
	var errs []error
	links.Range(func(_ string, l *subscription) bool {
		if err := l.box.Close(); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	return errors.Join(errs...)
}

func flushContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, flushTimeout)
}

// ignoreClosed drops the errors of stopping a subscription that the
// server or connection already dropped
func ignoreClosed(err error) error {
	if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
		return nil
	}
	return err
}

func patchMsg(ep Endpoint, nanoStep uint64, payload []byte) *nats.Msg {
	msg := nats.NewMsg(ep.Address)
	msg.Header.Set(HeaderLink, ep.Name)
	msg.Header.Set(HeaderNanoStep, strconv.FormatUint(nanoStep, 10))
	msg.Header.Set(HeaderChecksum, strconv.FormatUint(Checksum(payload), 16))
	msg.Data = append([]byte(nil), payload...)
	return msg
}

func deliverMsg(box *inbox, subject string, h nats.Header, data []byte) {
	nanoStep, checksum, err := parseHeaders(h)
	if err != nil {
		box.logger.Error("malformed patch message", "subject", subject, "error", err)
		return
	}
	box.deliver(nanoStep, checksum, data)
}

func parseHeaders(h nats.Header) (nanoStep, checksum uint64, err error) {
	nanoStep, err = strconv.ParseUint(h.Get(HeaderNanoStep), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad %s header: %w", HeaderNanoStep, err)
	}
	checksum, err = strconv.ParseUint(h.Get(HeaderChecksum), 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad %s header: %w", HeaderChecksum, err)
	}
	return nanoStep, checksum, nil
}
