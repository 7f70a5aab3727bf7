package geometry

import (
	"fmt"
)

// MaxDim is the highest supported dimensionality
const MaxDim = 3

// Coord is an integer grid coordinate. Axes beyond the problem's
// dimensionality stay at zero.
type Coord struct {
	X, Y, Z int
}

// NewCoord builds a coordinate from up to three components, missing
// components are zero
func NewCoord(v ...int) Coord {
	var c Coord
	for i := 0; i < len(v) && i < MaxDim; i++ {
		c = c.With(i, v[i])
	}
	return c
}

// NewExtent builds a box extent from up to three components, missing
// components are one so that lower dimensional boxes keep a volume
func NewExtent(v ...int) Coord {
	c := Coord{1, 1, 1}
	for i := 0; i < len(v) && i < MaxDim; i++ {
		c = c.With(i, v[i])
	}
	return c
}

// Get returns the component along axis
func (c Coord) Get(axis int) int {
	switch axis {
	case 0:
		return c.X
	case 1:
		return c.Y
	case 2:
		return c.Z
	}
	panic(fmt.Sprintf("axis %d out of range", axis))
}

// With returns a copy of c with the component along axis replaced
func (c Coord) With(axis, v int) Coord {
	switch axis {
	case 0:
		c.X = v
	case 1:
		c.Y = v
	case 2:
		c.Z = v
	default:
		panic(fmt.Sprintf("axis %d out of range", axis))
	}
	return c
}

func (c Coord) Add(o Coord) Coord {
	return Coord{c.X + o.X, c.Y + o.Y, c.Z + o.Z}
}

func (c Coord) Sub(o Coord) Coord {
	return Coord{c.X - o.X, c.Y - o.Y, c.Z - o.Z}
}

// Prod is the product of all three components, the volume of an extent
func (c Coord) Prod() int {
	return c.X * c.Y * c.Z
}

// Less orders coordinates the way regions store them: Z, then Y, then X
func (c Coord) Less(o Coord) bool {
	if c.Z != o.Z {
		return c.Z < o.Z
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.X < o.X
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.X, c.Y, c.Z)
}

// CoordBox is an axis aligned box given by its origin and extent
type CoordBox struct {
	Origin     Coord
	Dimensions Coord
}

// NewBox returns the box spanning dims cells from origin
func NewBox(origin, dims Coord) CoordBox {
	return CoordBox{Origin: origin, Dimensions: dims}
}

// End is the first coordinate past the box on every axis
func (b CoordBox) End() Coord {
	return b.Origin.Add(b.Dimensions)
}

func (b CoordBox) Size() int {
	if b.Empty() {
		return 0
	}
	return b.Dimensions.Prod()
}

func (b CoordBox) Empty() bool {
	return b.Dimensions.X <= 0 || b.Dimensions.Y <= 0 || b.Dimensions.Z <= 0
}

func (b CoordBox) Contains(c Coord) bool {
	end := b.End()
	return c.X >= b.Origin.X && c.X < end.X &&
		c.Y >= b.Origin.Y && c.Y < end.Y &&
		c.Z >= b.Origin.Z && c.Z < end.Z
}

// Intersect returns the overlap of both boxes, empty boxes have a zero
// extent
func (b CoordBox) Intersect(o CoordBox) CoordBox {
	var origin, dims Coord
	be, oe := b.End(), o.End()
	for axis := 0; axis < MaxDim; axis++ {
		lo := max(b.Origin.Get(axis), o.Origin.Get(axis))
		hi := min(be.Get(axis), oe.Get(axis))
		if hi <= lo {
			return CoordBox{}
		}
		origin = origin.With(axis, lo)
		dims = dims.With(axis, hi-lo)
	}
	return CoordBox{Origin: origin, Dimensions: dims}
}

func (b CoordBox) Intersects(o CoordBox) bool {
	return !b.Intersect(o).Empty()
}

// Index maps a coordinate inside the box to its row-major offset with X
// running fastest
func (b CoordBox) Index(c Coord) int {
	rel := c.Sub(b.Origin)
	return (rel.Z*b.Dimensions.Y+rel.Y)*b.Dimensions.X + rel.X
}

// CoordAt is the inverse of Index
func (b CoordBox) CoordAt(index int) Coord {
	x := index % b.Dimensions.X
	index /= b.Dimensions.X
	y := index % b.Dimensions.Y
	z := index / b.Dimensions.Y
	return b.Origin.Add(Coord{x, y, z})
}

func (b CoordBox) String() string {
	return fmt.Sprintf("CoordBox(origin=%v, dimensions=%v)", b.Origin, b.Dimensions)
}
