package stepper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/notargets/GeoDecomp/partitions"
	"github.com/notargets/GeoDecomp/patch"
)

// Stepper owns the grids of one rank. Not safe for concurrent use; each
// rank runs its stepper on its own goroutine.
type Stepper[T any] struct {
	manager *partitions.PartitionManager
	traits  Traits
	update  UpdateFunc[T]

	oldGrid *grid.DisplacedGrid[T]
	newGrid *grid.DisplacedGrid[T]

	nanoStep uint64
	// rings[s] = InnerSet(s) - InnerSet(s+1)
	inner geometry.Region
	rings []geometry.Region

	accepters []patch.PatchAccepter[T]
	providers [2][]patch.PatchProvider[T]

	logger  logging.Logger
	metrics metrics.Collector
}

// State is a snapshot of a stepper's progress
type State struct {
	NanoStep uint64
	Step     uint64
	// Channels counts attached channels by life cycle state
	Channels map[patch.State]int
}

type stater interface {
	State() patch.State
}

type regionSetter interface {
	SetRegion(region geometry.Region)
}

// New builds the grids over the bounding box of the own expanded region
// and fills them from init. The manager must have been reset.
func New[T any](manager *partitions.PartitionManager, traits Traits, init Initializer[T],
	update UpdateFunc[T], opts ...Option) (*Stepper[T], error) {
	traits = traits.Resolve(manager.Topology())
	gw := manager.GhostZoneWidth()
	if gw < traits.StencilRadius {
		return nil, fmt.Errorf("%w: ghost width %d below stencil radius %d",
			partitions.ErrInvalidGhostWidth, gw, traits.StencilRadius)
	}
	if update == nil {
		return nil, errors.New("stepper: nil update function")
	}

	o := applyOptions(opts)
	s := &Stepper[T]{
		manager:  manager,
		traits:   traits,
		update:   update,
		nanoStep: init.StartStep() * traits.NanoSteps,
		rings:    make([]geometry.Region, gw),
		logger:   logging.Component(o.logger, "stepper").With("rank", manager.Rank()),
		metrics:  o.metrics,
	}

	sets := make([]geometry.Region, gw+1)
	for shrink := range sets {
		r, err := manager.InnerSet(shrink)
		if err != nil {
			return nil, err
		}
		sets[shrink] = r
	}
	s.inner = sets[gw]
	for shrink := 0; shrink < gw; shrink++ {
		s.rings[shrink] = sets[shrink].Subtract(sets[shrink+1])
	}

	box := manager.OwnExpandedRegion().BoundingBox()
	s.oldGrid = grid.NewDisplacedGrid(box, manager.Domain(), traits.Topology, init.Edge())
	s.newGrid = grid.NewDisplacedGrid(box, manager.Domain(), traits.Topology, init.Edge())
	for i := 0; i < box.Size(); i++ {
		c := box.CoordAt(i)
		v := init.Cell(c)
		s.oldGrid.Set(c, v)
		s.newGrid.Set(c, v)
	}
	return s, nil
}

func (s *Stepper[T]) AddPatchAccepter(a patch.PatchAccepter[T]) {
	s.accepters = append(s.accepters, a)
}

func (s *Stepper[T]) AddPatchProvider(p patch.PatchProvider[T], kind PatchKind) {
	s.providers[kind] = append(s.providers[kind], p)
}

// Init hands the own region to steerers and publishes the initial state
func (s *Stepper[T]) Init(ctx context.Context) error {
	own := s.manager.OwnRegion()
	for _, p := range s.providers[InnerSetPatch] {
		if rs, ok := p.(regionSetter); ok {
			rs.SetRegion(own)
		}
	}
	if err := s.serve(ctx, InnerSetPatch, s.nanoStep); err != nil {
		return err
	}
	return s.publish(ctx, s.nanoStep)
}

// Update advances the own region by one nanostep
func (s *Stepper[T]) Update(ctx context.Context) error {
	start := time.Now()
	n := s.nanoStep

	s.update(s.newGrid, s.oldGrid, s.inner, n)
	if err := s.serve(ctx, GhostPatch, n); err != nil {
		return err
	}
	for shrink := len(s.rings) - 1; shrink >= 0; shrink-- {
		s.update(s.newGrid, s.oldGrid, s.rings[shrink], n)
	}
	if err := s.oldGrid.Swap(s.newGrid); err != nil {
		return err
	}
	s.nanoStep++
	s.metrics.SetNanoStep(s.manager.Rank(), s.nanoStep)
	s.metrics.RecordUpdate(s.manager.Rank(), time.Since(start).Seconds())

	if err := s.serve(ctx, InnerSetPatch, s.nanoStep); err != nil {
		return err
	}
	return s.publish(ctx, s.nanoStep)
}

// Run updates until the physical step counter reaches steps
func (s *Stepper[T]) Run(ctx context.Context, steps uint64) error {
	s.logger.Debug("run", "from", s.Step(), "to", steps)
	for s.Step() < steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Update(ctx); err != nil {
			return err
		}
	}
	return nil
}

// serve calls every provider of kind whose next request is nanoStep
func (s *Stepper[T]) serve(ctx context.Context, kind PatchKind, nanoStep uint64) error {
	g, region := s.oldGrid, s.manager.OwnRegion()
	if kind == GhostPatch {
		region = s.manager.OuterGhostZone()
	}
	for _, p := range s.providers[kind] {
		next, ok := p.NextRequiredNanoStep()
		if !ok || next != nanoStep {
			continue
		}
		if err := p.Get(ctx, g, region, nanoStep, true); err != nil {
			if errors.Is(err, patch.ErrProtocolViolation) {
				s.logger.Error("protocol violation", "nanoStep", nanoStep, "error", err)
			}
			return fmt.Errorf("rank %d nanostep %d: %w", s.manager.Rank(), nanoStep, err)
		}
	}
	return nil
}

func (s *Stepper[T]) publish(ctx context.Context, nanoStep uint64) error {
	own := s.manager.OwnRegion()
	for _, a := range s.accepters {
		next, ok := a.NextRequiredNanoStep()
		if !ok || next != nanoStep {
			continue
		}
		if err := a.Put(ctx, s.oldGrid, own, nanoStep); err != nil {
			return fmt.Errorf("rank %d nanostep %d: %w", s.manager.Rank(), nanoStep, err)
		}
	}
	return nil
}

func (s *Stepper[T]) NanoStep() uint64 { return s.nanoStep }

// Step is the physical step of the current nanostep
func (s *Stepper[T]) Step() uint64 { return s.nanoStep / s.traits.NanoSteps }

// Grid holds the state at the current nanostep
func (s *Stepper[T]) Grid() grid.Grid[T] { return s.oldGrid }

func (s *Stepper[T]) Traits() Traits { return s.traits }

func (s *Stepper[T]) Manager() *partitions.PartitionManager { return s.manager }

func (s *Stepper[T]) State() State {
	st := State{NanoStep: s.nanoStep, Step: s.Step(), Channels: map[patch.State]int{}}
	for _, a := range s.accepters {
		if c, ok := a.(stater); ok {
			st.Channels[c.State()]++
		}
	}
	for _, ps := range s.providers {
		for _, p := range ps {
			if c, ok := p.(stater); ok {
				st.Channels[c.State()]++
			}
		}
	}
	return st
}

// Option configures a Stepper.
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

// WithLogger sets the stepper logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the collector for nanostep progress.
func WithMetrics(m metrics.Collector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}
