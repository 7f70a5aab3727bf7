// Package stepper advances the cells owned by one rank nanostep by
// nanostep, overlapping the update of interior cells with the arrival of
// ghost zone patches.
package stepper

import (
	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/grid"
)

// Traits describes the cell model. It is resolved once at setup.
type Traits struct {
	// NanoSteps is the number of sub-steps per physical step
	NanoSteps uint64
	// StencilRadius is how far an update reads from the updated cell
	StencilRadius int
	Topology      geometry.Topology
}

// Resolve fills unset fields with defaults. The topology falls back to
// fallback when none was declared.
func (t Traits) Resolve(fallback geometry.Topology) Traits {
	if t.NanoSteps == 0 {
		t.NanoSteps = 1
	}
	if t.StencilRadius <= 0 {
		t.StencilRadius = 1
	}
	if t.Topology.Dim == 0 {
		t.Topology = fallback
	}
	return t
}

// UpdateFunc computes the cells of region at nanoStep+1 into dst from the
// state at nanoStep held by src
type UpdateFunc[T any] func(dst, src grid.Grid[T], region geometry.Region, nanoStep uint64)

// Initializer provides the starting state of a run
type Initializer[T any] interface {
	Cell(c geometry.Coord) T
	// Edge is read for cells outside a bounded domain
	Edge() T
	// StartStep is the physical step the run begins at
	StartStep() uint64
}

// PatchKind selects when the stepper consults a provider
type PatchKind int

const (
	// GhostPatch providers deliver neighbour data before the rim update
	GhostPatch PatchKind = iota
	// InnerSetPatch providers, such as steerers, act on the own region
	// after each nanostep
	InnerSetPatch
)
