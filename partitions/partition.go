package partitions

import (
	"fmt"
	"math"

	"github.com/notargets/GeoDecomp/geometry"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Partition splits a domain into disjoint regions, one per rank. The
// result is immutable once constructed.
type Partition interface {
	// NumRanks is the number of regions
	NumRanks() int
	// Region returns the cells owned by rank
	Region(rank int) geometry.Region
	// Regions returns all regions, index = rank
	Regions() []geometry.Region
	// Domain is the box the partition was computed for
	Domain() geometry.CoordBox
	// Weights are the relative cell counts requested per rank
	Weights() []float64
}

// layout holds the result shared by every strategy
type layout struct {
	domain  geometry.CoordBox
	weights []float64
	regions []geometry.Region
}

func (l *layout) NumRanks() int { return len(l.regions) }

func (l *layout) Region(rank int) geometry.Region {
	if rank < 0 || rank >= len(l.regions) {
		return geometry.Region{}
	}
	return l.regions[rank]
}

func (l *layout) Regions() []geometry.Region {
	out := make([]geometry.Region, len(l.regions))
	copy(out, l.regions)
	return out
}

func (l *layout) Domain() geometry.CoordBox { return l.domain }

func (l *layout) Weights() []float64 {
	out := make([]float64, len(l.weights))
	copy(out, l.weights)
	return out
}

// Validate checks that the regions of p are pairwise disjoint and that
// their union equals the covered cells of the domain
func Validate(p Partition) error {
	var union geometry.Region
	total := 0
	for rank, r := range p.Regions() {
		if !union.Intersect(r).Empty() {
			return fmt.Errorf("%w: region of rank %d overlaps a lower rank",
				ErrInvalidPartition, rank)
		}
		union = union.Union(r)
		total += r.Size()
	}
	if total != union.Size() {
		return fmt.Errorf("%w: region sizes %d != union size %d",
			ErrInvalidPartition, total, union.Size())
	}
	if !union.Subtract(geometry.NewRegion(p.Domain())).Empty() {
		return fmt.Errorf("%w: regions leave the domain %v", ErrInvalidPartition, p.Domain())
	}
	return nil
}

// ValidateCoverage is Validate plus the requirement that every cell of the
// domain box is owned
func ValidateCoverage(p Partition) error {
	if err := Validate(p); err != nil {
		return err
	}
	covered := 0
	for _, r := range p.Regions() {
		covered += r.Size()
	}
	if covered != p.Domain().Size() {
		return fmt.Errorf("%w: %d of %d domain cells covered",
			ErrInvalidPartition, covered, p.Domain().Size())
	}
	return nil
}

// checkWeights rejects empty, negative and all-zero weight vectors
func checkWeights(weights []float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: no weights given", ErrInvalidPartition)
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight %d is %v", ErrInvalidPartition, i, w)
		}
	}
	if floats.Sum(weights) <= 0 {
		return fmt.Errorf("%w: weights sum to zero", ErrInvalidPartition)
	}
	return nil
}

func checkDimensions(dims geometry.Coord) error {
	if dims.X <= 0 || dims.Y <= 0 || dims.Z <= 0 {
		return fmt.Errorf("%w: dimensions %v must be positive", ErrInvalidPartition, dims)
	}
	return nil
}

// scaleWeights distributes total cells proportionally to the cumulative
// weights. The result has len(weights)+1 entries, starting at 0 and ending
// at total.
func scaleWeights(weights []float64, total int) []int {
	cum := floats.CumSum(make([]float64, len(weights)), weights)
	sum := cum[len(cum)-1]
	bounds := make([]int, len(weights)+1)
	for i := range weights {
		if sum <= 0 {
			bounds[i+1] = total * (i + 1) / len(weights)
			continue
		}
		bounds[i+1] = int(math.Round(cum[i] / sum * float64(total)))
	}
	bounds[len(weights)] = total
	return bounds
}

// PartitionStats summarizes load balance across ranks
type PartitionStats struct {
	NumRanks  int
	MinCells  int
	MaxCells  int
	MeanCells float64
	StdDev    float64
	// Imbalance is the largest ratio of actual to requested cells, 1.0 is a
	// perfect distribution
	Imbalance float64
}

// Statistics computes load balance metrics for a partition
func Statistics(p Partition) PartitionStats {
	regions := p.Regions()
	counts := make([]float64, len(regions))
	stats := PartitionStats{
		NumRanks: len(regions),
		MinCells: math.MaxInt,
	}
	total := 0
	for i, r := range regions {
		n := r.Size()
		counts[i] = float64(n)
		total += n
		stats.MinCells = min(stats.MinCells, n)
		stats.MaxCells = max(stats.MaxCells, n)
	}
	if len(regions) == 0 {
		stats.MinCells = 0
		return stats
	}
	stats.MeanCells, stats.StdDev = stat.MeanStdDev(counts, nil)

	weights := p.Weights()
	wsum := floats.Sum(weights)
	for i, n := range counts {
		if i >= len(weights) || wsum <= 0 || weights[i] == 0 {
			continue
		}
		target := weights[i] / wsum * float64(total)
		if target > 0 {
			stats.Imbalance = math.Max(stats.Imbalance, n/target)
		}
	}
	return stats
}

func (s PartitionStats) String() string {
	return fmt.Sprintf("ranks=%d cells[min=%d max=%d mean=%.1f stddev=%.2f] imbalance=%.3f",
		s.NumRanks, s.MinCells, s.MaxCells, s.MeanCells, s.StdDev, s.Imbalance)
}
