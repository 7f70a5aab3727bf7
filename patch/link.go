// Package patch implements the nanostep-tagged exchange of boundary
// regions between ranks. An Accepter pushes the cells of its region when
// the stepper reaches a requested nanostep; a Provider pulls the matching
// buffer from its mailbox and writes it into the grid.
package patch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
)

// PatchAccepter receives grid data at the nanosteps it asked for
type PatchAccepter[T any] interface {
	// NextRequiredNanoStep is the smallest pending request
	NextRequiredNanoStep() (uint64, bool)
	Put(ctx context.Context, g grid.Grid[T], validRegion geometry.Region, nanoStep uint64) error
}

// PatchProvider fills grid cells with data tagged by nanostep
type PatchProvider[T any] interface {
	NextRequiredNanoStep() (uint64, bool)
	Get(ctx context.Context, g grid.Grid[T], patchableRegion geometry.Region, nanoStep uint64, remove bool) error
}

// State is the life cycle position of a channel
type State int

const (
	Arming State = iota
	AwaitingData
	ReadyToUpdate
	Quiescent
)

var stateNames = map[State]string{
	Arming:        "arming",
	AwaitingData:  "awaiting-data",
	ReadyToUpdate: "ready-to-update",
	Quiescent:     "quiescent",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// LinkName is the rendezvous name of the channel from source to target.
// Both ends compute it independently.
func LinkName(base string, source, target int) string {
	return base + "/PatchLink::/" + strconv.Itoa(source) + "-" + strconv.Itoa(target)
}

// LinkState is what both ends of a link hold: the bound region, the
// serialization buffer and the request schedule.
type LinkState struct {
	name      string
	region    geometry.Region
	buffer    []byte
	stride    uint64
	watermark Watermark
	charged   bool
	quiescent bool
}

func newLinkState(name string, region geometry.Region, cellSize int) (LinkState, error) {
	if cellSize <= 0 {
		return LinkState{}, fmt.Errorf("%w: %s has cell size %d", ErrInvalidCodec, name, cellSize)
	}
	return LinkState{
		name:   name,
		region: region,
		buffer: make([]byte, 0, region.Size()*cellSize),
		stride: 1,
	}, nil
}

func (l *LinkState) Name() string            { return l.name }
func (l *LinkState) Region() geometry.Region { return l.region }
func (l *LinkState) Stride() uint64          { return l.stride }
func (l *LinkState) Watermark() Watermark    { return l.watermark }
func (l *LinkState) Quiescent() bool         { return l.quiescent }

func (l *LinkState) charge(w Watermark, stride uint64) error {
	if l.quiescent {
		return fmt.Errorf("%w: %s", ErrChannelQuiescent, l.name)
	}
	if stride == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidStride, l.name)
	}
	l.watermark = w
	l.stride = stride
	l.charged = true
	return nil
}

// rearm reschedules queue for a new charge. Pending requests at or past
// the watermark are dropped and next is added unless already pending.
func (l *LinkState) rearm(q *NanoStepQueue, next uint64) (added bool) {
	if last, finite := l.watermark.Value(); finite {
		q.RemoveFrom(last)
	}
	if l.watermark.Admits(next) && !q.Contains(next) {
		q.Insert(next)
		added = true
	}
	if q.Len() == 0 {
		l.quiescent = true
	}
	return added
}

// retire replaces the served minimum of q by its successor, or marks the
// channel quiescent once nothing is left below the watermark
func (l *LinkState) retire(q *NanoStepQueue) (next uint64, ok bool) {
	served, _ := q.PopMin()
	next = served + l.stride
	if l.watermark.Admits(next) {
		q.Insert(next)
		ok = true
	}
	if q.Len() == 0 {
		l.quiescent = true
	}
	return next, ok
}

// Option configures an Accepter or Provider.
type Option func(*options)

type options struct {
	logger         logging.Logger
	metrics        metrics.Collector
	receiveTimeout time.Duration
}

func applyOptions(opts []Option) options {
	o := options{logger: logging.NewNop(), metrics: metrics.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger for timing and protocol diagnostics.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the collector for patch traffic.
func WithMetrics(m metrics.Collector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithReceiveTimeout makes a Provider fail with ErrReceiveTimeout when a
// patch has not arrived d after Get started waiting for it.
func WithReceiveTimeout(d time.Duration) Option {
	return func(o *options) {
		o.receiveTimeout = d
	}
}
