package partitions

import (
	"fmt"
	"strings"

	"github.com/notargets/GeoDecomp/geometry"
)

// Strategy selects how a domain is split into rank regions
type Strategy int

const (
	// Structured strategies
	Striping           Strategy = iota // Row-major linear chunks
	Checkerboarding                    // Near-square tiles on a node grid
	RecursiveBisection                 // Halve ranks, cut the longest axis
	ZCurve                             // Morton curve chunks

	// Unstructured strategies
	Unstructured // Element id ranges
	Mesh         // Ranks taken from a pre-partitioned mesh file
)

var strategyNames = map[Strategy]string{
	Striping:           "striping",
	Checkerboarding:    "checkerboarding",
	RecursiveBisection: "recursive-bisection",
	ZCurve:             "zcurve",
	Unstructured:       "unstructured",
	Mesh:               "mesh",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy resolves a strategy by its configuration name
func ParseStrategy(name string) (Strategy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidPartition, name)
}

// PartitionBuilder constructs partitions from a domain description
type PartitionBuilder struct {
	Strategy Strategy

	// Structured domain
	Origin     geometry.Coord
	Dimensions geometry.Coord
	Offset     int // First owned linear index, Striping and ZCurve only

	// Relative cell count per rank. Empty weights with NumRanks set gives
	// an even split.
	Weights  []float64
	NumRanks int // Expected rank count, 0 accepts len(Weights)

	MeshFile string // Mesh strategy only

	// Acceptable ratio of actual to requested cells, 0 disables the check
	MaxImbalance float64
}

// Build creates and validates the partition
func (pb *PartitionBuilder) Build() (Partition, error) {
	weights, err := pb.resolveWeights()
	if err != nil {
		return nil, err
	}

	var p Partition
	switch pb.Strategy {
	case Striping:
		p, err = NewStriping(pb.Origin, pb.Dimensions, pb.Offset, weights)
	case Checkerboarding:
		p, err = NewCheckerboarding(pb.Origin, pb.Dimensions, pb.Offset, weights)
	case RecursiveBisection:
		p, err = NewRecursiveBisection(pb.Origin, pb.Dimensions, pb.Offset, weights)
	case ZCurve:
		p, err = NewZCurve(pb.Origin, pb.Dimensions, pb.Offset, weights)
	case Unstructured:
		p, err = NewUnstructured(pb.Origin.X, pb.Dimensions.X, weights)
	case Mesh:
		var mp *MeshPartition
		mp, err = NewMeshPartition(pb.MeshFile)
		if err == nil && pb.NumRanks > 0 && mp.NumRanks() != pb.NumRanks {
			err = fmt.Errorf("%w: mesh %s has %d partitions, expected %d",
				ErrWeightsMismatch, pb.MeshFile, mp.NumRanks(), pb.NumRanks)
		}
		p = mp
	default:
		err = fmt.Errorf("%w: unsupported strategy %v", ErrInvalidPartition, pb.Strategy)
	}
	if err != nil {
		return nil, err
	}

	if err := Validate(p); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}
	if pb.MaxImbalance > 0 {
		if stats := Statistics(p); stats.Imbalance > pb.MaxImbalance {
			return nil, fmt.Errorf("%w: imbalance %.3f exceeds %.3f",
				ErrInvalidPartition, stats.Imbalance, pb.MaxImbalance)
		}
	}
	return p, nil
}

func (pb *PartitionBuilder) resolveWeights() ([]float64, error) {
	if pb.Strategy == Mesh {
		return nil, nil
	}
	if len(pb.Weights) == 0 {
		if pb.NumRanks <= 0 {
			return nil, fmt.Errorf("%w: neither weights nor rank count given", ErrInvalidPartition)
		}
		return EvenWeights(pb.NumRanks), nil
	}
	if pb.NumRanks > 0 && len(pb.Weights) != pb.NumRanks {
		return nil, fmt.Errorf("%w: %d weights for %d ranks",
			ErrWeightsMismatch, len(pb.Weights), pb.NumRanks)
	}
	return pb.Weights, nil
}

// EvenWeights returns n equal weights
func EvenWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}
