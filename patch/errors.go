package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelQuiescent is returned when a channel past its terminal
	// watermark is charged again.
	ErrChannelQuiescent = errors.New("channel is quiescent")

	// ErrInvalidStride is returned when a channel is charged with stride 0.
	ErrInvalidStride = errors.New("stride must be positive")

	// ErrInvalidCodec is returned for a codec without a fixed positive
	// cell size.
	ErrInvalidCodec = errors.New("codec has no fixed cell size")

	// ErrReceiveTimeout is returned when a patch does not arrive within
	// the receive timeout.
	ErrReceiveTimeout = errors.New("patch receive timed out")

	// ErrProtocolViolation matches every SequenceError.
	ErrProtocolViolation = errors.New("nanostep protocol violation")
)

// SequenceError reports a channel served out of its expected nanostep
// order. It is never retried: peers may already have sent data tagged for
// the expected step.
type SequenceError struct {
	Link     string
	Expected uint64
	Actual   uint64
	Detail   string
}

func (e *SequenceError) Error() string {
	msg := fmt.Sprintf("%s: expected nanostep %d, got %d", e.Link, e.Expected, e.Actual)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *SequenceError) Is(target error) bool {
	return target == ErrProtocolViolation
}
