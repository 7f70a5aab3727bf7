package patch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTransport struct {
	transport.Transport
	sent []uint64
}

func (c *countingTransport) Send(ctx context.Context, ep transport.Endpoint, nanoStep uint64, payload []byte) error {
	c.sent = append(c.sent, nanoStep)
	return c.Transport.Send(ctx, ep, nanoStep, payload)
}

type fixture struct {
	ctx      context.Context
	tr       *countingTransport
	region   geometry.Region
	src, dst *grid.DisplacedGrid[float64]
	accepter *Accepter[float64]
	provider *Provider[float64]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	domain := geometry.NewBox(geometry.NewCoord(0, 0), geometry.NewExtent(4, 2))
	region := geometry.NewRegion(geometry.NewBox(geometry.NewCoord(1, 0), geometry.NewExtent(2, 2)))
	f := &fixture{
		ctx:    ctx,
		tr:     &countingTransport{Transport: transport.NewLocal()},
		region: region,
		src:    grid.NewDisplacedGrid(domain, domain, geometry.Cube(2), 0.0),
		dst:    grid.NewDisplacedGrid(domain, domain, geometry.Cube(2), 0.0),
	}
	t.Cleanup(func() { _ = f.tr.Close() })

	var err error
	f.provider, err = NewProvider[float64](ctx, region, "test", 0, 1, f.tr, grid.Float64Codec{})
	require.NoError(t, err)
	f.accepter, err = NewAccepter[float64](ctx, region, "test", 0, 1, f.tr, grid.Float64Codec{})
	require.NoError(t, err)
	return f
}

func (f *fixture) stamp(v float64) {
	f.region.ForEach(func(c geometry.Coord) { f.src.Set(c, v) })
}

func (f *fixture) charge(t *testing.T, next uint64, w Watermark, stride uint64) {
	t.Helper()
	require.NoError(t, f.accepter.Charge(next, w, stride))
	require.NoError(t, f.provider.Charge(next, w, stride))
}

// serve puts and gets at every nanostep in [0, until) and returns the
// nanosteps that were actually exchanged
func (f *fixture) serve(t *testing.T, from, until uint64) []uint64 {
	t.Helper()
	var served []uint64
	for n := from; n < until; n++ {
		f.stamp(float64(n))
		require.NoError(t, f.accepter.Put(f.ctx, f.src, f.region, n))
		if next, ok := f.provider.NextRequiredNanoStep(); ok && next == n {
			require.NoError(t, f.provider.Get(f.ctx, f.dst, f.region, n, true))
			assert.Equal(t, float64(n), f.dst.Get(geometry.NewCoord(2, 1)))
			served = append(served, n)
		}
	}
	return served
}

func TestLink_ServedSequence(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, Arming, f.accepter.State())
	assert.Equal(t, Arming, f.provider.State())

	f.charge(t, 3, Until(12), 4)
	assert.Equal(t, AwaitingData, f.provider.State())
	assert.Equal(t, ReadyToUpdate, f.accepter.State())

	assert.Equal(t, []uint64{3, 7, 11}, f.serve(t, 0, 20))
	assert.Equal(t, []uint64{3, 7, 11}, f.tr.sent)
	assert.Equal(t, Quiescent, f.accepter.State())
	assert.Equal(t, Quiescent, f.provider.State())

	_, ok := f.provider.NextRequiredNanoStep()
	assert.False(t, ok)
}

func TestLink_InfiniteThenRecharged(t *testing.T) {
	f := newFixture(t)
	f.charge(t, 0, Infinity(), 1)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, f.serve(t, 0, 5))

	f.charge(t, 5, Until(8), 1)
	assert.Equal(t, []uint64{5, 6, 7}, f.serve(t, 5, 12))
	assert.Equal(t, Quiescent, f.provider.State())

	assert.ErrorIs(t, f.accepter.Charge(20, Infinity(), 1), ErrChannelQuiescent)
	assert.ErrorIs(t, f.provider.Charge(20, Infinity(), 1), ErrChannelQuiescent)
}

func TestLink_RechargeDropsPendingPastWatermark(t *testing.T) {
	f := newFixture(t)
	f.charge(t, 0, Infinity(), 10)
	assert.Equal(t, []uint64{0}, f.serve(t, 0, 1))

	next, _ := f.accepter.NextRequiredNanoStep()
	assert.Equal(t, uint64(10), next)

	f.charge(t, 5, Until(8), 1)
	assert.Equal(t, []uint64{5}, f.accepter.requested.Values())
	assert.Equal(t, []uint64{5}, f.provider.stored.Values())
}

func TestLink_IdempotentPutGet(t *testing.T) {
	f := newFixture(t)
	f.charge(t, 0, Infinity(), 1)

	f.stamp(1)
	require.NoError(t, f.accepter.Put(f.ctx, f.src, f.region, 0))
	f.stamp(2)
	require.NoError(t, f.accepter.Put(f.ctx, f.src, f.region, 0))
	assert.Equal(t, []uint64{0}, f.tr.sent, "retired nanostep is not sent twice")

	require.NoError(t, f.provider.Get(f.ctx, f.dst, f.region, 0, true))
	assert.Equal(t, 1.0, f.dst.Get(geometry.NewCoord(1, 0)))

	f.dst.Fill(-1)
	require.NoError(t, f.provider.Get(f.ctx, f.dst, f.region, 0, true))
	assert.Equal(t, -1.0, f.dst.Get(geometry.NewCoord(1, 0)), "stale get leaves the grid alone")
}

func TestLink_GetWithoutRemoveKeepsRequest(t *testing.T) {
	f := newFixture(t)
	f.charge(t, 0, Infinity(), 1)
	f.stamp(7)
	require.NoError(t, f.accepter.Put(f.ctx, f.src, f.region, 0))

	require.NoError(t, f.provider.Get(f.ctx, f.dst, f.region, 0, false))
	assert.Equal(t, 7.0, f.dst.Get(geometry.NewCoord(2, 1)))
	next, ok := f.provider.NextRequiredNanoStep()
	require.True(t, ok)
	assert.Equal(t, uint64(0), next)

	f.dst.Fill(-1)
	require.NoError(t, f.provider.Get(f.ctx, f.dst, f.region, 0, true))
	assert.Equal(t, 7.0, f.dst.Get(geometry.NewCoord(2, 1)))
	next, ok = f.provider.NextRequiredNanoStep()
	require.True(t, ok)
	assert.Equal(t, uint64(1), next)
}

func TestLink_PutAheadIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.charge(t, 2, Infinity(), 1)
	require.NoError(t, f.accepter.Put(f.ctx, f.src, f.region, 5))
	require.NoError(t, f.accepter.Put(f.ctx, f.src, f.region, 1))
	assert.Empty(t, f.tr.sent)
}

func TestLink_GetAheadIsProtocolViolation(t *testing.T) {
	f := newFixture(t)
	f.charge(t, 2, Infinity(), 1)

	err := f.provider.Get(f.ctx, f.dst, f.region, 3, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrProtocolViolation))

	var seq *SequenceError
	require.True(t, errors.As(err, &seq))
	assert.Equal(t, uint64(2), seq.Expected)
	assert.Equal(t, uint64(3), seq.Actual)
	assert.Equal(t, LinkName("test", 0, 1), seq.Link)
}

func TestLink_GetRespectsContext(t *testing.T) {
	f := newFixture(t)
	f.charge(t, 0, Infinity(), 1)

	ctx, cancel := context.WithTimeout(f.ctx, 20*time.Millisecond)
	defer cancel()
	err := f.provider.Get(ctx, f.dst, f.region, 0, true)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	next, _ := f.provider.NextRequiredNanoStep()
	assert.Equal(t, uint64(0), next, "failed get keeps the request")
}

func TestLink_ProviderWaitAndCancel(t *testing.T) {
	f := newFixture(t)
	f.charge(t, 0, Infinity(), 1)
	require.NoError(t, f.accepter.Put(f.ctx, f.src, f.region, 0))
	require.NoError(t, f.provider.Wait(f.ctx))
	assert.Equal(t, ReadyToUpdate, f.provider.State())
	require.NoError(t, f.provider.Get(f.ctx, f.dst, f.region, 0, true))

	f.provider.Cancel()
	err := f.provider.Get(f.ctx, f.dst, f.region, 1, true)
	assert.ErrorIs(t, err, transport.ErrCanceled)
	require.NoError(t, f.provider.Close())
}

func TestLink_InvalidStride(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.accepter.Charge(0, Infinity(), 0), ErrInvalidStride)
	assert.ErrorIs(t, f.provider.Charge(0, Infinity(), 0), ErrInvalidStride)
}

func TestLink_ReceiveTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := transport.NewLocal()
	defer tr.Close()
	region := geometry.NewRegion(geometry.NewBox(geometry.NewCoord(0, 0), geometry.NewExtent(2, 1)))
	domain := region.BoundingBox()
	p, err := NewProvider[float64](ctx, region, "test", 0, 1, tr, grid.Float64Codec{},
		WithReceiveTimeout(20*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, p.Charge(0, Infinity(), 1))

	dst := grid.NewDisplacedGrid(domain, domain, geometry.Cube(2), 0.0)
	err = p.Get(ctx, dst, region, 0, true)
	assert.ErrorIs(t, err, ErrReceiveTimeout)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestLink_RejectsVariableSizeCells(t *testing.T) {
	ctx := context.Background()
	tr := transport.NewLocal()
	defer tr.Close()
	region := geometry.NewRegion(geometry.NewBox(geometry.NewCoord(0, 0), geometry.NewExtent(2, 1)))

	_, err := NewAccepter[string](ctx, region, "test", 0, 1, tr, grid.BinaryCodec[string]{})
	assert.ErrorIs(t, err, ErrInvalidCodec)
	_, err = NewProvider[string](ctx, region, "test", 0, 1, tr, grid.BinaryCodec[string]{})
	assert.ErrorIs(t, err, ErrInvalidCodec)
}
