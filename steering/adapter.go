package steering

import (
	"context"
	"fmt"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/notargets/GeoDecomp/patch"
)

// Adapter wraps a Steerer as a patch provider. It must only be called at
// the start of a physical step (sub-step 0).
type Adapter[T any] struct {
	steerer    Steerer[T]
	nanoSteps  uint64
	first      uint64
	last       uint64
	globalDims geometry.Coord
	rank       int
	lastCall   bool
	stored     *patch.NanoStepQueue

	logger  logging.Logger
	metrics metrics.Collector
}

var _ patch.PatchProvider[float64] = (*Adapter[float64])(nil)

// NewAdapter schedules s between firstStep and lastStep, both physical
// steps. The queue is seeded with the first step, the first step aligned
// to the period and the last step.
func NewAdapter[T any](s Steerer[T], firstStep, lastStep, nanoStepsPerCycle uint64,
	globalDims geometry.Coord, rank int, lastCall bool, opts ...Option) (*Adapter[T], error) {
	period := s.Period()
	if period == 0 {
		return nil, ErrInvalidPeriod
	}
	if nanoStepsPerCycle == 0 {
		nanoStepsPerCycle = 1
	}
	o := applyOptions(opts)
	a := &Adapter[T]{
		steerer:    s,
		nanoSteps:  nanoStepsPerCycle,
		first:      firstStep * nanoStepsPerCycle,
		last:       lastStep * nanoStepsPerCycle,
		globalDims: globalDims,
		rank:       rank,
		lastCall:   lastCall,
		logger:     o.logger.With("rank", rank),
		metrics:    o.metrics,
	}
	firstRegular := firstStep + period - firstStep%period
	a.stored = patch.NewNanoStepQueue(a.first, firstRegular*nanoStepsPerCycle, a.last)
	return a, nil
}

func (a *Adapter[T]) SetRegion(region geometry.Region) {
	a.steerer.SetRegion(region)
}

func (a *Adapter[T]) NextRequiredNanoStep() (uint64, bool) {
	return a.stored.PeekMin()
}

// Pending lists the scheduled nanosteps in ascending order
func (a *Adapter[T]) Pending() []uint64 {
	return a.stored.Values()
}

// Get dispatches the steerer for globalNanoStep. Calls past the last
// step are ignored.
func (a *Adapter[T]) Get(ctx context.Context, g grid.Grid[T], patchableRegion geometry.Region, globalNanoStep uint64, remove bool) error {
	if sub := globalNanoStep % a.nanoSteps; sub != 0 {
		a.metrics.IncrementProtocolViolation("steerer")
		return &patch.SequenceError{
			Link:     "steerer",
			Expected: globalNanoStep - sub + a.nanoSteps,
			Actual:   globalNanoStep,
			Detail:   fmt.Sprintf("called at sub-step %d of %d", sub, a.nanoSteps),
		}
	}
	if globalNanoStep > a.last {
		a.logger.Debug("steerer call past last step ignored", "nanoStep", globalNanoStep)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	step := globalNanoStep / a.nanoSteps
	event := NextStep
	if globalNanoStep == a.first {
		event = Initialized
	}
	if globalNanoStep == a.last {
		event = AllDone
	}
	period := a.steerer.Period()
	if event == NextStep && step%period != 0 {
		a.metrics.IncrementProtocolViolation("steerer")
		return &patch.SequenceError{
			Link:     "steerer",
			Expected: (step/period + 1) * period * a.nanoSteps,
			Actual:   globalNanoStep,
			Detail:   fmt.Sprintf("step %d is not a multiple of period %d", step, period),
		}
	}

	var feedback Feedback
	if err := a.steerer.NextStep(g, patchableRegion, a.globalDims, step, event, a.rank, a.lastCall, &feedback); err != nil {
		return fmt.Errorf("steerer at step %d (%s): %w", step, event, err)
	}
	a.metrics.IncrementSteererCall(event.String())

	if remove {
		a.stored.RemoveAll(globalNanoStep)
		stride := a.nanoSteps * period
		next := globalNanoStep + stride
		next -= next % stride
		a.stored.Insert(next)
	}
	applyFeedback(&feedback)
	return nil
}

// Option configures an Adapter.
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics metrics.Collector
}

func applyOptions(opts []Option) options {
	o := options{logger: logging.NewNop(), metrics: metrics.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the adapter logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the collector counting steerer calls.
func WithMetrics(m metrics.Collector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}
