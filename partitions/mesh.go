package partitions

import (
	"fmt"

	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
)

// MeshPartition assigns unstructured elements to ranks from an existing
// element to partition map. Element k is the cell (k, 0, 0).
type MeshPartition struct {
	layout
	eToP      []int
	adjacency geometry.Adjacency
}

// TetFaceVertices is the number of shared vertices that makes two
// tetrahedra face neighbors
const TetFaceVertices = 3

// NewMeshPartition reads a pre-partitioned mesh file
func NewMeshPartition(meshfile string) (*MeshPartition, error) {
	msh, err := readers.ReadMeshFile(meshfile)
	if err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", meshfile, err)
	}
	if len(msh.EToP) != msh.NumElements {
		return nil, fmt.Errorf("%w: mesh %s is not partitioned (EToP has %d of %d elements)",
			ErrInvalidPartition, meshfile, len(msh.EToP), msh.NumElements)
	}
	return FromConnectivity(msh.EToP, msh.EtoV, TetFaceVertices)
}

// FromConnectivity builds a partition from an element to partition map and
// element to vertex lists. Elements sharing at least sharedVertices
// vertices are adjacent.
func FromConnectivity(eToP []int, eToV [][]int, sharedVertices int) (*MeshPartition, error) {
	if len(eToP) == 0 {
		return nil, fmt.Errorf("%w: mesh has no elements", ErrInvalidPartition)
	}
	if eToV != nil && len(eToV) != len(eToP) {
		return nil, fmt.Errorf("%w: EToV length %d does not match K=%d",
			ErrInvalidPartition, len(eToV), len(eToP))
	}

	numRanks := 0
	for k, p := range eToP {
		if p < 0 {
			return nil, fmt.Errorf("%w: element %d has partition %d", ErrInvalidPartition, k, p)
		}
		numRanks = max(numRanks, p+1)
	}

	coords := make([][]geometry.Coord, numRanks)
	for k, p := range eToP {
		coords[p] = append(coords[p], geometry.Coord{X: k})
	}
	mp := &MeshPartition{
		layout: layout{
			domain:  geometry.NewBox(geometry.Coord{}, geometry.NewExtent(len(eToP))),
			weights: make([]float64, numRanks),
			regions: make([]geometry.Region, numRanks),
		},
		eToP:      eToP,
		adjacency: buildAdjacency(eToV, sharedVertices),
	}
	for p := range coords {
		mp.regions[p] = geometry.FromCoords(coords[p])
		mp.weights[p] = float64(len(coords[p]))
	}
	return mp, nil
}

// Adjacency is the element neighbor graph used for ghost zone expansion
func (mp *MeshPartition) Adjacency() geometry.Adjacency {
	return mp.adjacency
}

// GetPartition returns the rank owning an element, -1 if out of range
func (mp *MeshPartition) GetPartition(element int) int {
	if element < 0 || element >= len(mp.eToP) {
		return -1
	}
	return mp.eToP[element]
}

func buildAdjacency(eToV [][]int, sharedVertices int) geometry.Adjacency {
	adj := geometry.Adjacency{}
	vToE := make(map[int][]int)
	for k, verts := range eToV {
		for _, v := range verts {
			vToE[v] = append(vToE[v], k)
		}
	}
	for k, verts := range eToV {
		shared := make(map[int]int)
		for _, v := range verts {
			for _, other := range vToE[v] {
				if other > k {
					shared[other]++
				}
			}
		}
		for other, n := range shared {
			if n >= sharedVertices {
				adj.Connect(k, other)
			}
		}
	}
	return adj
}
