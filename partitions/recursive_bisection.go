package partitions

import (
	"math"

	"github.com/notargets/GeoDecomp/geometry"
	"gonum.org/v1/gonum/floats"
)

// NewRecursiveBisection halves the rank list, cuts the longest axis of the
// current box at the weight proportional position and recurses into both
// halves. The offset is range checked but otherwise ignored.
func NewRecursiveBisection(origin, dims geometry.Coord, offset int, weights []float64) (Partition, error) {
	domain, err := checkStructured(origin, dims, offset, weights)
	if err != nil {
		return nil, err
	}
	regions := bisect(domain, weights)
	return &layout{domain: domain, weights: copyWeights(weights), regions: regions}, nil
}

func bisect(box geometry.CoordBox, weights []float64) []geometry.Region {
	if len(weights) == 1 {
		return []geometry.Region{geometry.NewRegion(box)}
	}
	half := len(weights) / 2

	axis := 0
	for a := 1; a < geometry.MaxDim; a++ {
		if box.Dimensions.Get(a) > box.Dimensions.Get(axis) {
			axis = a
		}
	}
	extent := box.Dimensions.Get(axis)
	cut := extent / 2
	if total := floats.Sum(weights); total > 0 {
		cut = int(math.Round(floats.Sum(weights[:half]) / total * float64(extent)))
	}

	left := geometry.NewBox(box.Origin, box.Dimensions.With(axis, cut))
	right := geometry.NewBox(
		box.Origin.With(axis, box.Origin.Get(axis)+cut),
		box.Dimensions.With(axis, extent-cut),
	)
	return append(bisect(left, weights[:half]), bisect(right, weights[half:])...)
}
