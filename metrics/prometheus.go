package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector with Prometheus counters,
// gauges and histograms. Metrics are registered lazily on first use.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	patchesSent        prometheus.Counter
	bytesSent          prometheus.Counter
	patchesReceived    prometheus.Counter
	bytesReceived      prometheus.Counter
	receiveWait        prometheus.Histogram
	noOps              *prometheus.CounterVec
	protocolViolations *prometheus.CounterVec
	checksumFailures   *prometheus.CounterVec
	nanoStep           *prometheus.GaugeVec
	updateDuration     *prometheus.HistogramVec
	steererCalls       *prometheus.CounterVec
}

var _ Collector = (*PrometheusCollector)(nil)

// NewPrometheus creates a Prometheus backed collector. A nil registerer
// selects prometheus.DefaultRegisterer, an empty namespace "geodecomp".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "geodecomp"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.patchesSent = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "patch",
			Name:      "sent_total",
			Help:      "Total patches handed to the transport by accepters.",
		})
		p.bytesSent = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "patch",
			Name:      "sent_bytes_total",
			Help:      "Total encoded patch bytes sent.",
		})
		p.patchesReceived = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "patch",
			Name:      "received_total",
			Help:      "Total patches copied into grids by providers.",
		})
		p.bytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "patch",
			Name:      "received_bytes_total",
			Help:      "Total encoded patch bytes received.",
		})
		p.receiveWait = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "patch",
			Name:      "receive_wait_seconds",
			Help:      "Time providers spent waiting for patch data.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100us .. ~26s
		})
		p.noOps = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "patch",
			Name:      "noop_total",
			Help:      "Puts and gets that were not due, by role.",
		}, []string{"role"})
		p.protocolViolations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "patch",
			Name:      "protocol_violations_total",
			Help:      "Nanostep sequence errors by role.",
		}, []string{"role"})
		p.checksumFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "transport",
			Name:      "checksum_failures_total",
			Help:      "Payloads rejected because of a checksum mismatch, by transport.",
		}, []string{"transport"})
		p.nanoStep = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "stepper",
			Name:      "nanostep",
			Help:      "Current nanostep of each rank.",
		}, []string{"rank"})
		p.updateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "stepper",
			Name:      "update_seconds",
			Help:      "Duration of one nanostep update, including ghost waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rank"})
		p.steererCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "steering",
			Name:      "calls_total",
			Help:      "Steerer invocations by event.",
		}, []string{"event"})

		p.reg.MustRegister(p.patchesSent)
		p.reg.MustRegister(p.bytesSent)
		p.reg.MustRegister(p.patchesReceived)
		p.reg.MustRegister(p.bytesReceived)
		p.reg.MustRegister(p.receiveWait)
		p.reg.MustRegister(p.noOps)
		p.reg.MustRegister(p.protocolViolations)
		p.reg.MustRegister(p.checksumFailures)
		p.reg.MustRegister(p.nanoStep)
		p.reg.MustRegister(p.updateDuration)
		p.reg.MustRegister(p.steererCalls)
	})
}

func (p *PrometheusCollector) RecordPatchSent(bytes int) {
	p.ensureRegistered()
	p.patchesSent.Inc()
	p.bytesSent.Add(float64(bytes))
}

func (p *PrometheusCollector) RecordPatchReceived(bytes int, waitSeconds float64) {
	p.ensureRegistered()
	p.patchesReceived.Inc()
	p.bytesReceived.Add(float64(bytes))
	p.receiveWait.Observe(waitSeconds)
}

func (p *PrometheusCollector) IncrementNoOp(role string) {
	p.ensureRegistered()
	p.noOps.WithLabelValues(role).Inc()
}

func (p *PrometheusCollector) IncrementProtocolViolation(role string) {
	p.ensureRegistered()
	p.protocolViolations.WithLabelValues(role).Inc()
}

func (p *PrometheusCollector) IncrementChecksumFailure(transport string) {
	p.ensureRegistered()
	p.checksumFailures.WithLabelValues(transport).Inc()
}

func (p *PrometheusCollector) SetNanoStep(rank int, nanoStep uint64) {
	p.ensureRegistered()
	p.nanoStep.WithLabelValues(strconv.Itoa(rank)).Set(float64(nanoStep))
}

func (p *PrometheusCollector) RecordUpdate(rank int, seconds float64) {
	p.ensureRegistered()
	p.updateDuration.WithLabelValues(strconv.Itoa(rank)).Observe(seconds)
}

func (p *PrometheusCollector) IncrementSteererCall(event string) {
	p.ensureRegistered()
	p.steererCalls.WithLabelValues(event).Inc()
}
