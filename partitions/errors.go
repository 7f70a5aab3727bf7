package partitions

import "errors"

// Configuration errors. They are detected at construction and are fatal to
// the component being set up.
var (
	// ErrInvalidPartition is returned when partition inputs are inconsistent.
	ErrInvalidPartition = errors.New("invalid partition")

	// ErrWeightsMismatch is returned when the number of weights does not match
	// the expected number of ranks.
	ErrWeightsMismatch = errors.New("weights do not match rank count")

	// ErrRankOutOfRange is returned for a rank outside [0, NumRanks).
	ErrRankOutOfRange = errors.New("rank out of range")

	// ErrInvalidGhostWidth is returned for a negative ghost zone width or one
	// exceeding the domain extent.
	ErrInvalidGhostWidth = errors.New("invalid ghost zone width")

	// ErrShrinkOutOfRange is returned when an inner set or rim is requested
	// for a depth outside [0, ghostZoneWidth].
	ErrShrinkOutOfRange = errors.New("shrink depth out of range")

	// ErrNotInitialized is returned when the manager is queried before
	// ResetRegions.
	ErrNotInitialized = errors.New("partition manager not initialized")
)
