package transport

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startNATS(t *testing.T) *nats.Conn {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func TestSubjectIsStable(t *testing.T) {
	a := Subject("p", "sim/PatchLink::/0-1")
	assert.Equal(t, a, Subject("p", "sim/PatchLink::/0-1"))
	assert.NotEqual(t, a, Subject("p", "sim/PatchLink::/1-0"))
	assert.Len(t, a, len("p.")+16)
}

func TestNATSRoundTrip(t *testing.T) {
	ctx := waitCtx(t)
	nc := startNATS(t)
	tr := NewNATS(nc, "")
	defer tr.Close()

	mb, err := tr.Listen(ctx, "sim/PatchLink::/0-1")
	require.NoError(t, err)
	_, err = tr.Listen(ctx, "sim/PatchLink::/0-1")
	assert.ErrorIs(t, err, ErrAlreadyListening)

	ep, err := tr.Resolve(ctx, "sim/PatchLink::/0-1")
	require.NoError(t, err)
	assert.Equal(t, Subject(DefaultSubjectPrefix, ep.Name), ep.Address)

	require.NoError(t, tr.Send(ctx, ep, 2, []byte("second")))
	require.NoError(t, tr.Send(ctx, ep, 1, []byte("first")))

	d, err := mb.Receive(1).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", string(d))
	d, err = mb.Receive(2).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(d))

	require.NoError(t, mb.Close())
	_, err = tr.Listen(ctx, "sim/PatchLink::/0-1")
	assert.NoError(t, err)
}

func TestNATSMalformedMessageIgnored(t *testing.T) {
	ctx := waitCtx(t)
	nc := startNATS(t)
	tr := NewNATS(nc, "test")
	defer tr.Close()

	mb, err := tr.Listen(ctx, "l")
	require.NoError(t, err)
	require.NoError(t, nc.Publish(Subject("test", "l"), []byte("junk")))
	ep, _ := tr.Resolve(ctx, "l")
	require.NoError(t, tr.Send(ctx, ep, 5, []byte("ok")))

	d, err := mb.Receive(5).Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(d))
}

func TestNATSListenWithoutDeadline(t *testing.T) {
	nc := startNATS(t)
	tr := NewNATS(nc, "")
	defer tr.Close()

	mb, err := tr.Listen(context.Background(), "l")
	require.NoError(t, err)
	ep, err := tr.Resolve(context.Background(), "l")
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), ep, 0, []byte("x")))

	d, err := mb.Receive(0).Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "x", string(d))
}

func TestNATSCloseCancelsReceives(t *testing.T) {
	ctx := waitCtx(t)
	nc := startNATS(t)
	tr := NewNATS(nc, "")

	mb, err := tr.Listen(ctx, "l")
	require.NoError(t, err)
	f := mb.Receive(0)

	require.NoError(t, tr.Close())
	_, err = f.Wait(ctx)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.NoError(t, mb.Close())

	_, err = tr.Listen(ctx, "l")
	assert.ErrorIs(t, err, ErrTransportClosed)
}
