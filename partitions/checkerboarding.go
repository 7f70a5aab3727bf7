package partitions

import (
	"math"

	"github.com/notargets/GeoDecomp/geometry"
	"gonum.org/v1/gonum/floats"
)

// NewCheckerboarding places the ranks on a node grid whose tiles are as
// close to square as possible, then cuts each axis by cumulative weight.
// Ranks are numbered with the last axis running fastest. The offset is
// range checked but otherwise ignored.
func NewCheckerboarding(origin, dims geometry.Coord, offset int, weights []float64) (Partition, error) {
	domain, err := checkStructured(origin, dims, offset, weights)
	if err != nil {
		return nil, err
	}
	nodes := nodeGrid(len(weights), dims)
	regions := tile(domain, 0, nodes, weights)
	return &layout{domain: domain, weights: copyWeights(weights), regions: regions}, nil
}

// nodeGrid factors ranks over the active axes (extent > 1). The first
// factorization in ascending enumeration with the smallest tile aspect
// ratio wins. Factorizations with more nodes than cells on an axis are
// only used when nothing else exists.
func nodeGrid(ranks int, dims geometry.Coord) [geometry.MaxDim]int {
	var active []int
	for axis := 0; axis < geometry.MaxDim; axis++ {
		if dims.Get(axis) > 1 {
			active = append(active, axis)
		}
	}
	if len(active) == 0 {
		active = []int{0}
	}

	var best, fallback [geometry.MaxDim]int
	bestScore, fallbackScore := math.Inf(1), math.Inf(1)

	var walk func(i, remaining int, cur [geometry.MaxDim]int)
	walk = func(i, remaining int, cur [geometry.MaxDim]int) {
		axis := active[i]
		if i == len(active)-1 {
			cur[axis] = remaining
			score, fits := aspect(cur, dims, active)
			if fits && score < bestScore {
				best, bestScore = cur, score
			}
			if score < fallbackScore {
				fallback, fallbackScore = cur, score
			}
			return
		}
		for n := 1; n <= remaining; n++ {
			if remaining%n != 0 {
				continue
			}
			cur[axis] = n
			walk(i+1, remaining/n, cur)
		}
	}
	walk(0, ranks, [geometry.MaxDim]int{1, 1, 1})

	if math.IsInf(bestScore, 1) {
		return fallback
	}
	return best
}

// aspect is the ratio of the longest to the shortest tile edge
func aspect(nodes [geometry.MaxDim]int, dims geometry.Coord, active []int) (float64, bool) {
	lo, hi := math.Inf(1), 0.0
	fits := true
	for _, axis := range active {
		if nodes[axis] > dims.Get(axis) {
			fits = false
		}
		edge := float64(dims.Get(axis)) / float64(nodes[axis])
		lo, hi = math.Min(lo, edge), math.Max(hi, edge)
	}
	return hi / lo, fits
}

// tile splits box along axis into nodes[axis] slabs sized by the summed
// weight of the ranks in each slab and recurses into the next axis
func tile(box geometry.CoordBox, axis int, nodes [geometry.MaxDim]int, weights []float64) []geometry.Region {
	if axis == geometry.MaxDim {
		return []geometry.Region{geometry.NewRegion(box)}
	}
	n := nodes[axis]
	per := len(weights) / n
	slabWeights := make([]float64, n)
	for i := range slabWeights {
		slabWeights[i] = floats.Sum(weights[i*per : (i+1)*per])
	}
	cuts := scaleWeights(slabWeights, box.Dimensions.Get(axis))

	out := make([]geometry.Region, 0, len(weights))
	for i := 0; i < n; i++ {
		slab := geometry.NewBox(
			box.Origin.With(axis, box.Origin.Get(axis)+cuts[i]),
			box.Dimensions.With(axis, cuts[i+1]-cuts[i]),
		)
		out = append(out, tile(slab, axis+1, nodes, weights[i*per:(i+1)*per])...)
	}
	return out
}
