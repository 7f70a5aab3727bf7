package simulation

import (
	"math"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
	"github.com/notargets/GeoDecomp/stepper"
)

// HeatDiffusion is an explicit diffusion step on the axis neighbours of
// each cell: u' = u + alpha * (sum(neighbours) - 2*dim*u). It is stable
// for alpha <= 1/(2*dim).
func HeatDiffusion(alpha float64, dim int) stepper.UpdateFunc[float64] {
	return func(dst, src grid.Grid[float64], region geometry.Region, _ uint64) {
		region.ForEach(func(c geometry.Coord) {
			u := src.Get(c)
			lap := 0.0
			for axis := 0; axis < dim; axis++ {
				v := c.Get(axis)
				lap += src.Get(c.With(axis, v-1)) + src.Get(c.With(axis, v+1)) - 2*u
			}
			dst.Set(c, u+alpha*lap)
		})
	}
}

// GraphDiffusion relaxes each element of an unstructured grid towards
// the mean of its adjacent elements: u' = u + alpha * (mean(neighbours) -
// u). Elements are read at (id, 0, 0). It reads exactly the cells a ghost
// zone of width 1 built from the same adjacency holds, and is stable for
// alpha <= 1.
func GraphDiffusion(alpha float64, adjacency geometry.Adjacency) stepper.UpdateFunc[float64] {
	return func(dst, src grid.Grid[float64], region geometry.Region, _ uint64) {
		region.ForEach(func(c geometry.Coord) {
			u := src.Get(c)
			neighbours := adjacency.Neighbors(c.X)
			if len(neighbours) == 0 {
				dst.Set(c, u)
				return
			}
			sum := 0.0
			for _, id := range neighbours {
				sum += src.Get(geometry.Coord{X: id})
			}
			dst.Set(c, u+alpha*(sum/float64(len(neighbours))-u))
		})
	}
}

// HotSpot starts from a uniform background with a disc (or ball) of
// raised temperature
type HotSpot struct {
	Center     geometry.Coord
	Radius     float64
	Value      float64
	Background float64
	Boundary   float64
	Start      uint64
}

var _ stepper.Initializer[float64] = HotSpot{}

func (h HotSpot) Cell(c geometry.Coord) float64 {
	d := c.Sub(h.Center)
	r := math.Sqrt(float64(d.X*d.X + d.Y*d.Y + d.Z*d.Z))
	if r <= h.Radius {
		return h.Value
	}
	return h.Background
}

func (h HotSpot) Edge() float64     { return h.Boundary }
func (h HotSpot) StartStep() uint64 { return h.Start }

// Checker seeds every cell from its coordinates, which makes any
// misplaced ghost cell visible in the result
type Checker struct {
	Boundary float64
}

func (Checker) Cell(c geometry.Coord) float64 {
	return float64((c.X*7+c.Y*13+c.Z*29)%17) / 16
}

func (k Checker) Edge() float64   { return k.Boundary }
func (Checker) StartStep() uint64 { return 0 }
