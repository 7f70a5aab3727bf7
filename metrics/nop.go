package metrics

// NopMetrics discards every measurement.
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

// NewNop creates a collector that records nothing. It is the default for
// every component that takes a metrics option.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) RecordPatchSent(_ int)                {}
func (n *NopMetrics) RecordPatchReceived(_ int, _ float64) {}
func (n *NopMetrics) IncrementNoOp(_ string)               {}
func (n *NopMetrics) IncrementProtocolViolation(_ string)  {}
func (n *NopMetrics) IncrementChecksumFailure(_ string)    {}
func (n *NopMetrics) SetNanoStep(_ int, _ uint64)          {}
func (n *NopMetrics) RecordUpdate(_ int, _ float64)        {}
func (n *NopMetrics) IncrementSteererCall(_ string)        {}
