package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJetStreamKeepsEarlyPatches(t *testing.T) {
	ctx := waitCtx(t)
	nc := startNATS(t)
	sender, err := NewJetStream(ctx, nc, StreamConfig{})
	require.NoError(t, err)
	defer sender.Close()

	ep, err := sender.Resolve(ctx, "sim/PatchLink::/0-1")
	require.NoError(t, err)
	require.NoError(t, sender.Send(ctx, ep, 0, []byte{1, 2, 3}))
	require.NoError(t, sender.Send(ctx, ep, 1, []byte{4}))

	receiver, err := NewJetStream(ctx, nc, StreamConfig{})
	require.NoError(t, err)
	defer receiver.Close()
	mb, err := receiver.Listen(ctx, "sim/PatchLink::/0-1")
	require.NoError(t, err)

	d, err := mb.Receive(0).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, d)
	d, err = mb.Receive(1).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, d)

	_, err = receiver.Listen(ctx, "sim/PatchLink::/0-1")
	assert.ErrorIs(t, err, ErrAlreadyListening)
}

func TestJetStreamListenWithoutDeadline(t *testing.T) {
	nc := startNATS(t)
	tr, err := NewJetStream(context.Background(), nc, StreamConfig{Name: "NODEADLINE", Prefix: "nd"})
	require.NoError(t, err)
	defer tr.Close()

	mb, err := tr.Listen(context.Background(), "l")
	require.NoError(t, err)
	ep, err := tr.Resolve(context.Background(), "l")
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), ep, 3, []byte("x")))

	d, err := mb.Receive(3).Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "x", string(d))
}

func TestJetStreamPurgeDropsEarlierRun(t *testing.T) {
	ctx := waitCtx(t)
	nc := startNATS(t)
	first, err := NewJetStream(ctx, nc, StreamConfig{Prefix: "run"})
	require.NoError(t, err)
	ep, err := first.Resolve(ctx, "l")
	require.NoError(t, err)
	require.NoError(t, first.Send(ctx, ep, 0, []byte("stale")))
	require.NoError(t, first.Close())

	second, err := NewJetStream(ctx, nc, StreamConfig{Prefix: "run", Purge: true})
	require.NoError(t, err)
	defer second.Close()
	mb, err := second.Listen(ctx, "l")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = mb.Receive(0).Wait(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, second.Send(ctx, ep, 0, []byte("fresh")))
	d, err := mb.Receive(0).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(d))
}

func TestJetStreamCloseCancelsReceives(t *testing.T) {
	ctx := waitCtx(t)
	nc := startNATS(t)
	tr, err := NewJetStream(ctx, nc, StreamConfig{})
	require.NoError(t, err)

	mb, err := tr.Listen(ctx, "l")
	require.NoError(t, err)
	f := mb.Receive(0)
	require.NoError(t, tr.Close())

	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.NoError(t, mb.Close())
}
