package partitions

import (
	"sort"

	"github.com/notargets/GeoDecomp/geometry"
)

// NewZCurve orders the cells of the domain along a Morton curve and hands
// out contiguous chunks of that order. Cells before offset on the curve
// belong to no rank.
func NewZCurve(origin, dims geometry.Coord, offset int, weights []float64) (Partition, error) {
	domain, err := checkStructured(origin, dims, offset, weights)
	if err != nil {
		return nil, err
	}

	order := make([]int, domain.Size())
	keys := make([]uint64, domain.Size())
	for i := range order {
		order[i] = i
		keys[i] = mortonKey(domain.CoordAt(i).Sub(domain.Origin))
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })

	bounds := scaleWeights(weights, len(order)-offset)
	regions := make([]geometry.Region, len(weights))
	for rank := range weights {
		chunk := order[offset+bounds[rank] : offset+bounds[rank+1]]
		coords := make([]geometry.Coord, len(chunk))
		for j, idx := range chunk {
			coords[j] = domain.CoordAt(idx)
		}
		regions[rank] = geometry.FromCoords(coords)
	}
	return &layout{domain: domain, weights: copyWeights(weights), regions: regions}, nil
}

// mortonKey interleaves the low 21 bits of each component, X lowest
func mortonKey(c geometry.Coord) uint64 {
	return spreadBits(uint64(c.X)) | spreadBits(uint64(c.Y))<<1 | spreadBits(uint64(c.Z))<<2
}

func spreadBits(v uint64) uint64 {
	v &= 0x1fffff
	v = (v | v<<32) & 0x1f00000000ffff
	v = (v | v<<16) & 0x1f0000ff0000ff
	v = (v | v<<8) & 0x100f00f00f00f00f
	v = (v | v<<4) & 0x10c30c30c30c30c3
	v = (v | v<<2) & 0x1249249249249249
	return v
}
