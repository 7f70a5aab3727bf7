package partitions

import (
	"fmt"

	"github.com/notargets/GeoDecomp/geometry"
)

// NewStriping assigns each rank a contiguous range of cells in row-major
// order, X fastest. Cells before offset belong to no rank.
func NewStriping(origin, dims geometry.Coord, offset int, weights []float64) (Partition, error) {
	domain, err := checkStructured(origin, dims, offset, weights)
	if err != nil {
		return nil, err
	}
	bounds := scaleWeights(weights, domain.Size()-offset)
	regions := make([]geometry.Region, len(weights))
	for i := range weights {
		regions[i] = linearRange(domain, offset+bounds[i], offset+bounds[i+1])
	}
	return &layout{domain: domain, weights: copyWeights(weights), regions: regions}, nil
}

// NewUnstructured splits count element ids starting at first into
// contiguous ranges. Element ids live on the X axis.
func NewUnstructured(first, count int, weights []float64) (Partition, error) {
	return NewStriping(geometry.NewCoord(first), geometry.NewExtent(count), 0, weights)
}

func checkStructured(origin, dims geometry.Coord, offset int, weights []float64) (geometry.CoordBox, error) {
	if err := checkDimensions(dims); err != nil {
		return geometry.CoordBox{}, err
	}
	if err := checkWeights(weights); err != nil {
		return geometry.CoordBox{}, err
	}
	domain := geometry.NewBox(origin, dims)
	if offset < 0 || offset >= domain.Size() {
		return geometry.CoordBox{}, fmt.Errorf("%w: offset %d outside domain of %d cells",
			ErrInvalidPartition, offset, domain.Size())
	}
	return domain, nil
}

// linearRange builds the region covering linear indices [start, end) of box
func linearRange(box geometry.CoordBox, start, end int) geometry.Region {
	var streaks []geometry.Streak
	for i := start; i < end; {
		c := box.CoordAt(i)
		rowEnd := i - (c.X - box.Origin.X) + box.Dimensions.X
		stop := min(rowEnd, end)
		streaks = append(streaks, geometry.Streak{Origin: c, EndX: c.X + stop - i})
		i = stop
	}
	return geometry.FromStreaks(streaks)
}

func copyWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	copy(out, w)
	return out
}
