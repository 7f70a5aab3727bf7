package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notargets/GeoDecomp/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLocalEarlyArrival(t *testing.T) {
	ctx := waitCtx(t)
	tr := NewLocal()
	defer tr.Close()

	ep, err := tr.Resolve(ctx, "a-b")
	require.NoError(t, err)
	payload := []byte{1, 2, 3}
	require.NoError(t, tr.Send(ctx, ep, 7, payload))
	payload[0] = 9

	mb, err := tr.Listen(ctx, "a-b")
	require.NoError(t, err)
	f := mb.Receive(7)
	assert.True(t, f.Ready())
	data, err := f.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
	assert.Equal(t, 0, mb.(*namedBox).pending())
}

func TestLocalReceiveBeforeSend(t *testing.T) {
	ctx := waitCtx(t)
	tr := NewLocal()
	defer tr.Close()

	mb, err := tr.Listen(ctx, "link")
	require.NoError(t, err)
	f10 := mb.Receive(10)
	f20 := mb.Receive(20)
	assert.False(t, f10.Ready())

	ep, _ := tr.Resolve(ctx, "link")
	require.NoError(t, tr.Send(ctx, ep, 20, []byte("twenty")))
	require.NoError(t, tr.Send(ctx, ep, 10, []byte("ten")))

	d, err := f10.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ten", string(d))
	d, err = f20.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "twenty", string(d))
}

func TestLocalAlreadyListening(t *testing.T) {
	ctx := waitCtx(t)
	tr := NewLocal()
	defer tr.Close()

	_, err := tr.Listen(ctx, "x")
	require.NoError(t, err)
	_, err = tr.Listen(ctx, "x")
	assert.ErrorIs(t, err, ErrAlreadyListening)
}

func TestMailboxCancel(t *testing.T) {
	ctx := waitCtx(t)
	tr := NewLocal()
	defer tr.Close()

	mb, err := tr.Listen(ctx, "x")
	require.NoError(t, err)
	f := mb.Receive(3)
	mb.Cancel()
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestMailboxClose(t *testing.T) {
	ctx := waitCtx(t)
	tr := NewLocal()

	mb, err := tr.Listen(ctx, "x")
	require.NoError(t, err)
	pending := mb.Receive(1)
	require.NoError(t, mb.Close())

	_, err = pending.Wait(ctx)
	assert.ErrorIs(t, err, ErrCanceled)
	_, err = mb.Receive(2).Wait(ctx)
	assert.ErrorIs(t, err, ErrTransportClosed)

	require.NoError(t, tr.Close())
	_, err = tr.Resolve(ctx, "x")
	assert.ErrorIs(t, err, ErrTransportClosed)
	assert.ErrorIs(t, tr.Send(ctx, Endpoint{Name: "x", Address: "x"}, 1, nil), ErrTransportClosed)
}

type countingMetrics struct {
	metrics.NopMetrics
	checksumFailures map[string]int
}

func (m *countingMetrics) IncrementChecksumFailure(transport string) {
	m.checksumFailures[transport]++
}

func TestChecksumMismatch(t *testing.T) {
	ctx := waitCtx(t)
	m := &countingMetrics{checksumFailures: map[string]int{}}
	box := newInbox("link", "local", applyOptions([]Option{WithMetrics(m)}))

	payload := []byte("patch")
	box.deliver(4, Checksum(payload)+1, payload)
	_, err := box.Receive(4).Wait(ctx)
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
	assert.Equal(t, 1, m.checksumFailures["local"])
}

func TestFutureWaitHonorsContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.resolve([]byte{1}, nil))
	assert.False(t, f.resolve([]byte{2}, nil))
	d, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, d)
}
