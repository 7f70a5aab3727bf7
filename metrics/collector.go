package metrics

// Collector receives the runtime measurements of the patch exchange and
// the steppers. Implementations must be safe for concurrent use, every
// rank reports from its own goroutine.
type Collector interface {
	// RecordPatchSent counts a patch handed to the transport
	RecordPatchSent(bytes int)
	// RecordPatchReceived counts a patch copied into a grid together with
	// the time spent waiting for it
	RecordPatchReceived(bytes int, waitSeconds float64)
	// IncrementNoOp counts a put or get that was not due, role is
	// "accepter", "provider" or "steerer"
	IncrementNoOp(role string)
	// IncrementProtocolViolation counts nanostep sequence errors by role
	IncrementProtocolViolation(role string)
	// IncrementChecksumFailure counts corrupted payloads by transport kind
	IncrementChecksumFailure(transport string)
	// SetNanoStep publishes the current nanostep of a rank
	SetNanoStep(rank int, nanoStep uint64)
	// RecordUpdate observes the time one nanostep update took on a rank
	RecordUpdate(rank int, seconds float64)
	// IncrementSteererCall counts steerer invocations by event
	IncrementSteererCall(event string)
}
