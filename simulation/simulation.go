// Package simulation wires partitions, patch links, steerers and steppers
// into a run over one or more ranks hosted by this process.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/notargets/GeoDecomp/partitions"
	"github.com/notargets/GeoDecomp/patch"
	"github.com/notargets/GeoDecomp/steering"
	"github.com/notargets/GeoDecomp/stepper"
	"github.com/notargets/GeoDecomp/transport"
)

// DefaultLinkBase prefixes the names of ghost zone links
const DefaultLinkBase = "geodecomp"

// Setup describes a run
type Setup[T any] struct {
	// LinkBase prefixes every link name, DefaultLinkBase when empty
	LinkBase   string
	Partition  partitions.Partition
	Topology   geometry.Topology
	Adjacency  geometry.Adjacency
	GhostWidth int
	Traits     stepper.Traits
	// MaxSteps is the physical step at which the run ends
	MaxSteps    uint64
	Initializer stepper.Initializer[T]
	Update      stepper.UpdateFunc[T]
	Codec       grid.Codec[T]
	// Ranks hosted by this process, all ranks when empty
	Ranks []int
}

// Simulation holds the steppers of the local ranks and their links
type Simulation[T any] struct {
	setup     Setup[T]
	transport transport.Transport
	ranks     []int
	nodes     map[int]*node[T]

	logger  logging.Logger
	metrics metrics.Collector
}

type node[T any] struct {
	manager   *partitions.PartitionManager
	stepper   *stepper.Stepper[T]
	accepters []*patch.Accepter[T]
	providers []*patch.Provider[T]
	steerers  []*steering.Adapter[T]
}

// New builds the local ranks. Every provider listens before any accepter
// resolves its peer, and all channels are charged from the start nanostep
// up to MaxSteps.
func New[T any](ctx context.Context, setup Setup[T], tr transport.Transport, opts ...Option) (*Simulation[T], error) {
	if setup.Partition == nil || setup.Initializer == nil || setup.Update == nil || setup.Codec == nil {
		return nil, errors.New("simulation: partition, initializer, update and codec are required")
	}
	if setup.LinkBase == "" {
		setup.LinkBase = DefaultLinkBase
	}
	setup.Traits = setup.Traits.Resolve(setup.Topology)
	o := applyOptions(opts)

	ranks := append([]int(nil), setup.Ranks...)
	if len(ranks) == 0 {
		for r := 0; r < setup.Partition.NumRanks(); r++ {
			ranks = append(ranks, r)
		}
	}
	sort.Ints(ranks)

	s := &Simulation[T]{
		setup:     setup,
		transport: tr,
		ranks:     ranks,
		nodes:     make(map[int]*node[T], len(ranks)),
		logger:    logging.Component(o.logger, "simulation"),
		metrics:   o.metrics,
	}
	for _, rank := range ranks {
		n, err := s.newNode(rank, o)
		if err != nil {
			return nil, err
		}
		s.nodes[rank] = n
	}

	for _, rank := range ranks {
		if err := s.listen(ctx, rank, o); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	for _, rank := range ranks {
		if err := s.connect(ctx, rank, o); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	s.logger.Info("simulation ready", "ranks", len(ranks), "of", setup.Partition.NumRanks(),
		"maxSteps", setup.MaxSteps, "nanoSteps", setup.Traits.NanoSteps)
	return s, nil
}

func (s *Simulation[T]) newNode(rank int, o options) (*node[T], error) {
	pm := partitions.NewPartitionManager(s.setup.Topology)
	if err := pm.ResetRegions(s.setup.Adjacency, s.setup.Partition.Domain(), s.setup.Partition, rank, s.setup.GhostWidth); err != nil {
		return nil, fmt.Errorf("rank %d: %w", rank, err)
	}
	if err := pm.ResetGhostZones(pm.BoundingBoxes()); err != nil {
		return nil, fmt.Errorf("rank %d: %w", rank, err)
	}
	st, err := stepper.New(pm, s.setup.Traits, s.setup.Initializer, s.setup.Update,
		stepper.WithLogger(o.logger), stepper.WithMetrics(o.metrics))
	if err != nil {
		return nil, fmt.Errorf("rank %d: %w", rank, err)
	}
	return &node[T]{manager: pm, stepper: st}, nil
}

func (s *Simulation[T]) schedule() (next uint64, w patch.Watermark) {
	n := s.setup.Traits.NanoSteps
	return s.setup.Initializer.StartStep() * n, patch.Until(s.setup.MaxSteps * n)
}

func (s *Simulation[T]) linkOptions(o options) []patch.Option {
	return []patch.Option{
		patch.WithLogger(o.logger),
		patch.WithMetrics(o.metrics),
		patch.WithReceiveTimeout(o.receiveTimeout),
	}
}

func (s *Simulation[T]) listen(ctx context.Context, rank int, o options) error {
	nd := s.nodes[rank]
	next, w := s.schedule()
	for _, peer := range nd.manager.Neighbors() {
		region := nd.manager.IncomingRegion(peer)
		if region.Empty() {
			continue
		}
		p, err := patch.NewProvider(ctx, region, s.setup.LinkBase, peer, rank, s.transport, s.setup.Codec, s.linkOptions(o)...)
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		if err := p.Charge(next, w, 1); err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		nd.providers = append(nd.providers, p)
		nd.stepper.AddPatchProvider(p, stepper.GhostPatch)
	}
	return nil
}

func (s *Simulation[T]) connect(ctx context.Context, rank int, o options) error {
	nd := s.nodes[rank]
	next, w := s.schedule()
	for _, peer := range nd.manager.Neighbors() {
		region := nd.manager.OutgoingRegion(peer)
		if region.Empty() {
			continue
		}
		if o.route != nil {
			o.route(patch.LinkName(s.setup.LinkBase, rank, peer), peer)
		}
		a, err := patch.NewAccepter(ctx, region, s.setup.LinkBase, rank, peer, s.transport, s.setup.Codec, s.linkOptions(o)...)
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		if err := a.Charge(next, w, 1); err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		nd.accepters = append(nd.accepters, a)
		nd.stepper.AddPatchAccepter(a)
	}
	return nil
}

// AddSteerer attaches a steerer, built per rank by factory, to every
// local rank between the physical steps first and last
func (s *Simulation[T]) AddSteerer(factory func(rank int) steering.Steerer[T], first, last uint64, opts ...steering.Option) error {
	for _, rank := range s.ranks {
		nd := s.nodes[rank]
		lastCall := rank == s.ranks[len(s.ranks)-1]
		a, err := steering.NewAdapter(factory(rank), first, last, s.setup.Traits.NanoSteps,
			s.setup.Partition.Domain().Dimensions, rank, lastCall, opts...)
		if err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
		nd.steerers = append(nd.steerers, a)
		nd.stepper.AddPatchProvider(a, stepper.InnerSetPatch)
	}
	return nil
}

// RunAll runs every local rank on its own goroutine until MaxSteps. The
// first failing rank cancels the others and its error is returned.
func (s *Simulation[T]) RunAll(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	wg.Add(len(s.ranks))
	for _, rank := range s.ranks {
		go func(rank int, st *stepper.Stepper[T]) {
			defer wg.Done()
			err := st.Init(ctx)
			if err == nil {
				err = st.Run(ctx, s.setup.MaxSteps)
			}
			if err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("rank %d: %w", rank, err)
					s.logger.Error("rank failed", "rank", rank, "error", err)
					cancel()
				})
				return
			}
			s.logger.Debug("rank done", "rank", rank, "nanoStep", st.NanoStep())
		}(rank, s.nodes[rank].stepper)
	}
	wg.Wait()
	return firstErr
}

// Gather assembles the own regions of all local ranks into one grid over
// the domain
func (s *Simulation[T]) Gather() *grid.DisplacedGrid[T] {
	domain := s.setup.Partition.Domain()
	out := grid.NewDisplacedGrid(domain, domain, s.setup.Traits.Topology, s.setup.Initializer.Edge())
	for _, rank := range s.ranks {
		nd := s.nodes[rank]
		grid.CopyRegion[T](out, nd.stepper.Grid(), nd.manager.OwnRegion())
	}
	return out
}

func (s *Simulation[T]) Ranks() []int { return s.ranks }

// Stepper returns the stepper of a local rank, nil if not hosted here
func (s *Simulation[T]) Stepper(rank int) *stepper.Stepper[T] {
	if nd, ok := s.nodes[rank]; ok {
		return nd.stepper
	}
	return nil
}

// Close cancels outstanding receives and releases every link. The
// transport is left open.
func (s *Simulation[T]) Close() error {
	var errs []error
	for _, rank := range s.ranks {
		nd, ok := s.nodes[rank]
		if !ok {
			continue
		}
		for _, p := range nd.providers {
			p.Cancel()
			if err := p.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, a := range nd.accepters {
			a.Cleanup()
			if err := a.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		nd.providers, nd.accepters = nil, nil
	}
	return errors.Join(errs...)
}

// Option configures a Simulation.
type Option func(*options)

type options struct {
	logger         logging.Logger
	metrics        metrics.Collector
	route          func(link string, target int)
	receiveTimeout time.Duration
}

func applyOptions(opts []Option) options {
	o := options{logger: logging.NewNop(), metrics: metrics.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger handed to every component of the run.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the collector handed to every component of the run.
func WithMetrics(m metrics.Collector) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithRoute registers a hook called with every outgoing link name and its
// target rank before the link is resolved, e.g. to fill a gRPC address
// book.
func WithRoute(route func(link string, target int)) Option {
	return func(o *options) {
		o.route = route
	}
}

// WithReceiveTimeout fails a rank with patch.ErrReceiveTimeout when a ghost
// patch takes longer than d to arrive. 0 waits as long as the run context.
func WithReceiveTimeout(d time.Duration) Option {
	return func(o *options) {
		o.receiveTimeout = d
	}
}
