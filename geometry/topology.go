package geometry

import (
	"fmt"
	"strings"
)

// Topology describes how a grid behaves at the domain edges. Periodic axes
// wrap around, all other axes are bounded.
type Topology struct {
	Dim      int
	Periodic [MaxDim]bool
}

// Cube is a bounded topology of the given dimensionality
func Cube(dim int) Topology {
	return Topology{Dim: dim}
}

// Torus wraps around along every axis
func Torus(dim int) Topology {
	t := Topology{Dim: dim}
	for i := 0; i < dim && i < MaxDim; i++ {
		t.Periodic[i] = true
	}
	return t
}

// NewTopology builds a topology from per-axis periodic flags
func NewTopology(periodic ...bool) Topology {
	t := Topology{Dim: len(periodic)}
	copy(t.Periodic[:], periodic)
	return t
}

// WrapsAxis reports whether axis is periodic
func (t Topology) WrapsAxis(axis int) bool {
	return axis < t.Dim && t.Periodic[axis]
}

// Normalize maps c into the domain box. Periodic axes wrap via modulo,
// coordinates leaving a bounded axis report false.
func (t Topology) Normalize(c Coord, domain CoordBox) (Coord, bool) {
	for axis := 0; axis < MaxDim; axis++ {
		lo := domain.Origin.Get(axis)
		n := domain.Dimensions.Get(axis)
		v := c.Get(axis) - lo
		if v >= 0 && v < n {
			continue
		}
		if !t.WrapsAxis(axis) {
			return c, false
		}
		c = c.With(axis, lo+mod(v, n))
	}
	return c, true
}

func (t Topology) String() string {
	parts := make([]string, t.Dim)
	for i := 0; i < t.Dim; i++ {
		if t.Periodic[i] {
			parts[i] = "periodic"
		} else {
			parts[i] = "bounded"
		}
	}
	return fmt.Sprintf("Topology%dD[%s]", t.Dim, strings.Join(parts, ","))
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
