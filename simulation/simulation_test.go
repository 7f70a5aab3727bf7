package simulation

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/partitions"
	"github.com/notargets/GeoDecomp/patch"
	"github.com/notargets/GeoDecomp/steering"
	"github.com/notargets/GeoDecomp/stepper"
	"github.com/notargets/GeoDecomp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func heatSetup(t *testing.T, strategy partitions.Strategy, ranks int, topo geometry.Topology, ghost int) Setup[float64] {
	t.Helper()
	pb := partitions.PartitionBuilder{
		Strategy:   strategy,
		Dimensions: geometry.NewExtent(18, 12),
		NumRanks:   ranks,
	}
	p, err := pb.Build()
	require.NoError(t, err)
	return Setup[float64]{
		LinkBase:    t.Name(),
		Partition:   p,
		Topology:    topo,
		GhostWidth:  ghost,
		Traits:      stepper.Traits{NanoSteps: 2},
		MaxSteps:    6,
		Initializer: Checker{Boundary: 0.5},
		Update:      HeatDiffusion(0.2, 2),
		Codec:       grid.Float64Codec{},
	}
}

func run(t *testing.T, setup Setup[float64], tr transport.Transport, opts ...Option) *grid.DisplacedGrid[float64] {
	t.Helper()
	ctx := testContext(t)
	sim, err := New(ctx, setup, tr, opts...)
	require.NoError(t, err)
	defer sim.Close()
	require.NoError(t, sim.RunAll(ctx))
	for _, r := range sim.Ranks() {
		assert.Equal(t, uint64(12), sim.Stepper(r).NanoStep())
	}
	return sim.Gather()
}

func assertSameGrid(t *testing.T, want, got *grid.DisplacedGrid[float64]) {
	t.Helper()
	box := want.BoundingBox()
	require.Equal(t, box, got.BoundingBox())
	for i := 0; i < box.Size(); i++ {
		c := box.CoordAt(i)
		if want.Get(c) != got.Get(c) {
			t.Fatalf("cell %v: want %v, got %v", c, want.Get(c), got.Get(c))
		}
	}
}

func TestDistributedMatchesSerial(t *testing.T) {
	tests := []struct {
		name     string
		strategy partitions.Strategy
		topo     geometry.Topology
		ghost    int
	}{
		{"checkerboard torus", partitions.Checkerboarding, geometry.Torus(2), 1},
		{"checkerboard cube", partitions.Checkerboarding, geometry.Cube(2), 1},
		{"striping torus wide ghost", partitions.Striping, geometry.Torus(2), 3},
		{"bisection mixed", partitions.RecursiveBisection, geometry.NewTopology(true, false), 2},
		{"zcurve cube", partitions.ZCurve, geometry.Cube(2), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			serial := run(t, heatSetup(t, partitions.Striping, 1, tt.topo, tt.ghost), transport.NewLocal())
			distributed := run(t, heatSetup(t, tt.strategy, 6, tt.topo, tt.ghost), transport.NewLocal())
			assertSameGrid(t, serial, distributed)

			changed := false
			box := serial.BoundingBox()
			for i := 0; i < box.Size(); i++ {
				c := box.CoordAt(i)
				if (Checker{}).Cell(c) != serial.Get(c) {
					changed = true
				}
			}
			assert.True(t, changed, "diffusion must have changed the field")
		})
	}
}

func TestDistributedOverNATS(t *testing.T) {
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	serial := run(t, heatSetup(t, partitions.Striping, 1, geometry.Torus(2), 1), transport.NewLocal())
	tr := transport.NewNATS(nc, "test.sim")
	defer tr.Close()
	distributed := run(t, heatSetup(t, partitions.Checkerboarding, 4, geometry.Torus(2), 1), tr)
	assertSameGrid(t, serial, distributed)
}

func TestDistributedOverGRPC(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tr := transport.NewGRPC(nil)
	go func() { _ = tr.Serve(lis) }()
	defer tr.Close()

	addr := lis.Addr().String()
	route := WithRoute(func(link string, _ int) { tr.AddressBook().Set(link, addr) })

	serial := run(t, heatSetup(t, partitions.Striping, 1, geometry.Cube(2), 2), transport.NewLocal())
	distributed := run(t, heatSetup(t, partitions.Striping, 3, geometry.Cube(2), 2), tr, route)
	assertSameGrid(t, serial, distributed)
}

func TestSteeringMonitor(t *testing.T) {
	ctx := testContext(t)
	setup := heatSetup(t, partitions.Checkerboarding, 2, geometry.Torus(2), 1)
	sim, err := New(ctx, setup, transport.NewLocal())
	require.NoError(t, err)
	defer sim.Close()

	monitors := map[int]*steering.Monitor{}
	require.NoError(t, sim.AddSteerer(func(rank int) steering.Steerer[float64] {
		monitors[rank] = steering.NewMonitor(2, nil)
		return monitors[rank]
	}, 1, 5))
	require.NoError(t, sim.RunAll(ctx))

	for rank, m := range monitors {
		var steps []uint64
		var events []steering.Event
		for _, s := range m.Samples() {
			steps = append(steps, s.Step)
			events = append(events, s.Event)
			assert.Equal(t, sim.Stepper(rank).Manager().OwnRegion().Size(), s.Cells)
		}
		assert.Equal(t, []uint64{1, 2, 4, 5}, steps)
		assert.Equal(t, []steering.Event{steering.Initialized, steering.NextStep, steering.NextStep, steering.AllDone}, events)
	}
}

var errBoom = errors.New("boom")

type failingSteerer struct{}

func (failingSteerer) Period() uint64              { return 1 }
func (failingSteerer) SetRegion(_ geometry.Region) {}

func (failingSteerer) NextStep(_ grid.Grid[float64], _ geometry.Region, _ geometry.Coord,
	step uint64, _ steering.Event, _ int, _ bool, _ *steering.Feedback) error {
	if step == 3 {
		return errBoom
	}
	return nil
}

func TestRunAllStopsOnFirstError(t *testing.T) {
	ctx := testContext(t)
	setup := heatSetup(t, partitions.Striping, 3, geometry.Torus(2), 1)
	sim, err := New(ctx, setup, transport.NewLocal())
	require.NoError(t, err)
	defer sim.Close()

	require.NoError(t, sim.AddSteerer(func(rank int) steering.Steerer[float64] {
		if rank == 1 {
			return failingSteerer{}
		}
		return steering.NewMonitor(1, nil)
	}, 0, 6))

	err = sim.RunAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
}

func TestNewRejectsIncompleteSetup(t *testing.T) {
	_, err := New(context.Background(), Setup[float64]{}, transport.NewLocal())
	assert.Error(t, err)

	setup := heatSetup(t, partitions.Striping, 2, geometry.Cube(2), 0)
	_, err = New(context.Background(), setup, transport.NewLocal())
	assert.ErrorIs(t, err, partitions.ErrInvalidGhostWidth)
}

func meshSetup(t *testing.T, eToP []int) Setup[float64] {
	t.Helper()
	// a chain of 12 elements sharing one vertex with each successor, plus
	// a shortcut between elements 0 and 7
	eToV := make([][]int, len(eToP))
	for k := range eToV {
		eToV[k] = []int{k, k + 1}
	}
	eToV[0] = append(eToV[0], 100)
	eToV[7] = append(eToV[7], 100)
	mp, err := partitions.FromConnectivity(eToP, eToV, 1)
	require.NoError(t, err)
	return Setup[float64]{
		LinkBase:    t.Name(),
		Partition:   mp,
		Topology:    geometry.Cube(1),
		Adjacency:   mp.Adjacency(),
		GhostWidth:  1,
		Traits:      stepper.Traits{NanoSteps: 2},
		MaxSteps:    6,
		Initializer: Checker{},
		Update:      GraphDiffusion(0.5, mp.Adjacency()),
		Codec:       grid.Float64Codec{},
	}
}

func TestMeshDistributedMatchesSerial(t *testing.T) {
	serial := run(t, meshSetup(t, make([]int, 12)), transport.NewLocal())
	split := run(t, meshSetup(t, []int{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2}), transport.NewLocal())
	assertSameGrid(t, serial, split)

	interleaved := run(t, meshSetup(t, []int{0, 1, 0, 1, 0, 1, 0, 1, 0, 1, 0, 1}), transport.NewLocal())
	assertSameGrid(t, serial, interleaved)

	c := geometry.Coord{X: 7}
	assert.NotEqual(t, (Checker{}).Cell(c), serial.Get(c))
}

func TestRunAllFailsWhenPatchesStopArriving(t *testing.T) {
	setup := heatSetup(t, partitions.Striping, 2, geometry.Cube(2), 1)
	setup.Ranks = []int{0}
	ctx := testContext(t)
	tr := transport.NewLocal()
	defer tr.Close()

	sim, err := New(ctx, setup, tr, WithReceiveTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer sim.Close()

	err = sim.RunAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, patch.ErrReceiveTimeout)
	assert.NoError(t, ctx.Err())
}
