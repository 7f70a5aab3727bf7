package grid

import (
	"fmt"

	"github.com/notargets/GeoDecomp/geometry"
)

// Grid is cell storage addressed by global coordinates
type Grid[T any] interface {
	Get(c geometry.Coord) T
	Set(c geometry.Coord, v T)
	// BoundingBox is the box of cells physically stored
	BoundingBox() geometry.CoordBox
}

// DisplacedGrid stores the cells of a box that need not start at the
// domain origin. Reads are normalized through the topology first, so a
// stencil on a periodic axis sees the wrapped cell. Reads outside a
// bounded domain, or outside the stored box, return the edge value.
type DisplacedGrid[T any] struct {
	box      geometry.CoordBox
	domain   geometry.CoordBox
	topology geometry.Topology
	edge     T
	cells    []T
}

func NewDisplacedGrid[T any](box, domain geometry.CoordBox, topology geometry.Topology, edge T) *DisplacedGrid[T] {
	return &DisplacedGrid[T]{
		box:      box,
		domain:   domain,
		topology: topology,
		edge:     edge,
		cells:    make([]T, box.Size()),
	}
}

func (g *DisplacedGrid[T]) Get(c geometry.Coord) T {
	i, ok := g.index(c)
	if !ok {
		return g.edge
	}
	return g.cells[i]
}

// Set ignores coordinates that do not map into the stored box
func (g *DisplacedGrid[T]) Set(c geometry.Coord, v T) {
	if i, ok := g.index(c); ok {
		g.cells[i] = v
	}
}

func (g *DisplacedGrid[T]) BoundingBox() geometry.CoordBox { return g.box }

func (g *DisplacedGrid[T]) Domain() geometry.CoordBox { return g.domain }

func (g *DisplacedGrid[T]) Edge() T { return g.edge }

// Fill sets every stored cell to v
func (g *DisplacedGrid[T]) Fill(v T) {
	for i := range g.cells {
		g.cells[i] = v
	}
}

// Swap exchanges the storage of two grids over the same box
func (g *DisplacedGrid[T]) Swap(o *DisplacedGrid[T]) error {
	if g.box != o.box {
		return fmt.Errorf("cannot swap grids over %v and %v", g.box, o.box)
	}
	g.cells, o.cells = o.cells, g.cells
	return nil
}

func (g *DisplacedGrid[T]) index(c geometry.Coord) (int, bool) {
	if !g.box.Contains(c) {
		var ok bool
		if c, ok = g.topology.Normalize(c, g.domain); !ok || !g.box.Contains(c) {
			return 0, false
		}
	}
	return g.box.Index(c), true
}

// row returns the storage backing a streak, nil if it is not fully stored
func (g *DisplacedGrid[T]) row(s geometry.Streak) []T {
	b := g.box
	end := b.End()
	if s.Origin.X < b.Origin.X || s.EndX > end.X ||
		s.Origin.Y < b.Origin.Y || s.Origin.Y >= end.Y ||
		s.Origin.Z < b.Origin.Z || s.Origin.Z >= end.Z {
		return nil
	}
	start := b.Index(s.Origin)
	return g.cells[start : start+s.Length()]
}
