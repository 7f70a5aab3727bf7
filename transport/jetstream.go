package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v4"
)

// DefaultStreamName is the stream used when StreamConfig.Name is empty
const DefaultStreamName = "GEODECOMP_PATCHES"

// StreamConfig describes the stream backing a JetStream transport
type StreamConfig struct {
	Name string
	// Prefix of the link subjects, DefaultSubjectPrefix when empty
	Prefix string
	// MaxAge bounds how long unconsumed patches are kept, 0 keeps them
	// until the stream is purged
	MaxAge time.Duration
	// Purge drops the patches an earlier run left under Prefix
	Purge bool
}

// JetStream carries patches over a JetStream stream. Publishes are
// acknowledged by the server, and every mailbox replays its subject from
// the start of the stream, so a patch sent before the receiver listens is
// still delivered.
type JetStream struct {
	js     jetstream.JetStream
	stream jetstream.Stream
	prefix string
	links  *xsync.Map[string, *subscription]
	closed atomic.Bool
	opts   options
}

var _ Transport = (*JetStream)(nil)

// NewJetStream creates or updates the stream over the link subjects. The
// connection stays owned by the caller.
func NewJetStream(ctx context.Context, conn *nats.Conn, cfg StreamConfig, opts ...Option) (*JetStream, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultStreamName
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultSubjectPrefix
	}
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream: %w", err)
	}
	subjects := cfg.Prefix + ".>"
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Name,
		Subjects: []string{subjects},
		Storage:  jetstream.MemoryStorage,
		Discard:  jetstream.DiscardOld,
		MaxAge:   cfg.MaxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
	}
	if cfg.Purge {
		if err := stream.Purge(ctx, jetstream.WithPurgeSubject(subjects)); err != nil {
			return nil, fmt.Errorf("failed to purge %s: %w", subjects, err)
		}
	}
	return &JetStream{
		js:     js,
		stream: stream,
		prefix: cfg.Prefix,
		links:  xsync.NewMap[string, *subscription](),
		opts:   applyOptions(opts),
	}, nil
}

func (j *JetStream) Resolve(_ context.Context, name string) (Endpoint, error) {
	if j.closed.Load() {
		return Endpoint{}, ErrTransportClosed
	}
	return Endpoint{Name: name, Address: Subject(j.prefix, name)}, nil
}

// Send returns once the stream has stored the patch
func (j *JetStream) Send(ctx context.Context, ep Endpoint, nanoStep uint64, payload []byte) error {
	if j.closed.Load() {
		return ErrTransportClosed
	}
	if _, err := j.js.PublishMsg(ctx, patchMsg(ep, nanoStep, payload)); err != nil {
		return fmt.Errorf("publishing patch %s@%d: %w", ep.Name, nanoStep, err)
	}
	return nil
}

// Listen starts an ordered consumer over the link subject
func (j *JetStream) Listen(ctx context.Context, name string) (Mailbox, error) {
	if j.closed.Load() {
		return nil, ErrTransportClosed
	}
	if _, loaded := j.links.Load(name); loaded {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyListening, name)
	}

	box := newInbox(name, "jetstream", j.opts)
	subject := Subject(j.prefix, name)
	cons, err := j.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("creating consumer for %s: %w", subject, err)
	}
	cc, err := cons.Consume(func(m jetstream.Msg) {
		deliverMsg(box, m.Subject(), m.Headers(), m.Data())
	})
	if err != nil {
		return nil, fmt.Errorf("consuming %s: %w", subject, err)
	}

	link := &subscription{box: box, stop: func() error {
		cc.Stop()
		return nil
	}}
	if _, loaded := j.links.LoadOrStore(name, link); loaded {
		cc.Stop()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyListening, name)
	}
	box.onClose = func() error {
		j.links.Delete(name)
		return link.stop()
	}
	j.opts.logger.Debug("listening", "link", name, "subject", subject, "stream", j.stream.CachedInfo().Config.Name)
	return box, nil
}

// Close stops every consumer and cancels outstanding receives. Stored
// patches stay in the stream.
func (j *JetStream) Close() error {
	if j.closed.Swap(true) {
		return nil
	}
	return closeLinks(j.links)
}
