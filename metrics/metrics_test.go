package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	m := NewNop()
	require.NotNil(t, m)
	require.NotPanics(t, func() {
		m.RecordPatchSent(10)
		m.RecordPatchReceived(10, 0.5)
		m.IncrementNoOp("provider")
		m.IncrementProtocolViolation("accepter")
		m.IncrementChecksumFailure("nats")
		m.SetNanoStep(0, 42)
		m.RecordUpdate(0, 0.01)
		m.IncrementSteererCall("NEXT_STEP")
	})
}

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordPatchSent(64)
	p.RecordPatchSent(36)
	p.RecordPatchReceived(64, 0.002)
	p.IncrementNoOp("provider")
	p.IncrementNoOp("provider")
	p.IncrementProtocolViolation("provider")
	p.IncrementChecksumFailure("grpc")
	p.SetNanoStep(3, 17)
	p.RecordUpdate(3, 0.25)
	p.IncrementSteererCall("ALL_DONE")

	assert.Equal(t, 2.0, testutil.ToFloat64(p.patchesSent))
	assert.Equal(t, 100.0, testutil.ToFloat64(p.bytesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.patchesReceived))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.noOps.WithLabelValues("provider")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.protocolViolations.WithLabelValues("provider")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.checksumFailures.WithLabelValues("grpc")))
	assert.Equal(t, 17.0, testutil.ToFloat64(p.nanoStep.WithLabelValues("3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.steererCalls.WithLabelValues("ALL_DONE")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["test_patch_receive_wait_seconds"])
	assert.True(t, names["test_stepper_update_seconds"])
}

func TestPrometheus_Defaults(t *testing.T) {
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	p := NewPrometheus(nil, "")
	assert.Equal(t, "geodecomp", p.namespace)
	assert.NotPanics(t, func() { p.RecordPatchSent(1) })
}
