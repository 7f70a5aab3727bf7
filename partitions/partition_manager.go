package partitions

import (
	"fmt"
	"sort"

	"github.com/notargets/GeoDecomp/geometry"
)

// PartitionManager holds the decomposition as seen from one rank: the own
// region, its ghost zone footprint, the inner sets used to overlap
// computation with communication, and the patch regions exchanged with
// every neighbor. It is reset at setup or on rebalance, never mid-step.
type PartitionManager struct {
	topology  geometry.Topology
	adjacency geometry.Adjacency
	domain    geometry.CoordBox

	rank       int
	ghostWidth int

	regions  []geometry.Region
	expanded []geometry.Region

	// index = shrink depth 0..ghostWidth
	rims      []geometry.Region
	innerSets []geometry.Region
	outer     geometry.Region

	boxes         []geometry.CoordBox
	expandedBoxes []geometry.CoordBox
	neighbors     []int
	outgoing      map[int]geometry.Region
	incoming      map[int]geometry.Region

	initialized bool
}

func NewPartitionManager(topology geometry.Topology) *PartitionManager {
	return &PartitionManager{topology: topology}
}

// ResetRegions recomputes the own and ghost expanded regions of every rank.
// A non-nil adjacency switches ghost expansion from the topology to graph
// hops, as used by unstructured grids.
func (pm *PartitionManager) ResetRegions(adjacency geometry.Adjacency, domain geometry.CoordBox,
	partition Partition, rank, ghostWidth int) error {

	numRanks := partition.NumRanks()
	if rank < 0 || rank >= numRanks {
		return fmt.Errorf("%w: rank %d of %d", ErrRankOutOfRange, rank, numRanks)
	}
	if ghostWidth < 0 {
		return fmt.Errorf("%w: %d is negative", ErrInvalidGhostWidth, ghostWidth)
	}
	if adjacency == nil {
		for axis := 0; axis < pm.topology.Dim && axis < geometry.MaxDim; axis++ {
			extent := domain.Dimensions.Get(axis)
			if extent > 1 && ghostWidth > extent {
				return fmt.Errorf("%w: %d exceeds extent %d along axis %d",
					ErrInvalidGhostWidth, ghostWidth, extent, axis)
			}
		}
	}

	pm.adjacency = adjacency
	pm.domain = domain
	pm.rank = rank
	pm.ghostWidth = ghostWidth
	pm.regions = partition.Regions()
	pm.expanded = make([]geometry.Region, numRanks)
	for r, region := range pm.regions {
		pm.expanded[r] = pm.expand(region, ghostWidth)
	}

	own := pm.regions[rank]
	var foreign geometry.Region
	for r, region := range pm.regions {
		if r != rank {
			foreign = foreign.Union(region)
		}
	}
	pm.rims = make([]geometry.Region, ghostWidth+1)
	pm.innerSets = make([]geometry.Region, ghostWidth+1)
	for s := 0; s <= ghostWidth; s++ {
		pm.rims[s] = own.Intersect(pm.expand(foreign, s))
		pm.innerSets[s] = own.Subtract(pm.rims[s])
	}
	pm.outer = pm.expanded[rank].Subtract(own)

	pm.boxes, pm.expandedBoxes = nil, nil
	pm.neighbors = nil
	pm.outgoing = map[int]geometry.Region{}
	pm.incoming = map[int]geometry.Region{}
	pm.initialized = true
	return nil
}

// ResetGhostZones caches the bounding boxes of every rank and determines
// the neighbors with which patches are exchanged. A rank is a neighbor
// when its expanded box meets the own box, or the other way round, and the
// exact patch regions are non-empty.
func (pm *PartitionManager) ResetGhostZones(boxes, expandedBoxes []geometry.CoordBox) error {
	if !pm.initialized {
		return ErrNotInitialized
	}
	if len(boxes) != len(pm.regions) || len(expandedBoxes) != len(pm.regions) {
		return fmt.Errorf("%w: %d boxes and %d expanded boxes for %d ranks",
			ErrInvalidPartition, len(boxes), len(expandedBoxes), len(pm.regions))
	}
	pm.boxes = append([]geometry.CoordBox(nil), boxes...)
	pm.expandedBoxes = append([]geometry.CoordBox(nil), expandedBoxes...)
	pm.neighbors = nil
	pm.outgoing = map[int]geometry.Region{}
	pm.incoming = map[int]geometry.Region{}

	own := pm.regions[pm.rank]
	for r := range pm.regions {
		if r == pm.rank {
			continue
		}
		if !expandedBoxes[r].Intersects(boxes[pm.rank]) && !expandedBoxes[pm.rank].Intersects(boxes[r]) {
			continue
		}
		out := own.Intersect(pm.expanded[r])
		in := pm.regions[r].Intersect(pm.expanded[pm.rank])
		if out.Empty() && in.Empty() {
			continue
		}
		pm.neighbors = append(pm.neighbors, r)
		pm.outgoing[r] = out
		pm.incoming[r] = in
	}
	sort.Ints(pm.neighbors)
	return nil
}

// BoundingBoxes computes the own and expanded bounding boxes of all ranks,
// suitable for ResetGhostZones
func (pm *PartitionManager) BoundingBoxes() (boxes, expandedBoxes []geometry.CoordBox) {
	boxes = make([]geometry.CoordBox, len(pm.regions))
	expandedBoxes = make([]geometry.CoordBox, len(pm.regions))
	for r := range pm.regions {
		boxes[r] = pm.regions[r].BoundingBox()
		expandedBoxes[r] = pm.expanded[r].BoundingBox()
	}
	return
}

// InnerSet is the own region minus the rim of depth shrink. InnerSet(0) is
// the own region and every further depth erodes it monotonically.
func (pm *PartitionManager) InnerSet(shrink int) (geometry.Region, error) {
	if err := pm.checkShrink(shrink); err != nil {
		return geometry.Region{}, err
	}
	return pm.innerSets[shrink], nil
}

// Rim is the set of own cells within shrink cells of a foreign cell
func (pm *PartitionManager) Rim(shrink int) (geometry.Region, error) {
	if err := pm.checkShrink(shrink); err != nil {
		return geometry.Region{}, err
	}
	return pm.rims[shrink], nil
}

func (pm *PartitionManager) checkShrink(shrink int) error {
	if !pm.initialized {
		return ErrNotInitialized
	}
	if shrink < 0 || shrink > pm.ghostWidth {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrShrinkOutOfRange, shrink, pm.ghostWidth)
	}
	return nil
}

func (pm *PartitionManager) OwnRegion() geometry.Region {
	return pm.Region(pm.rank)
}

func (pm *PartitionManager) OwnExpandedRegion() geometry.Region {
	return pm.ExpandedRegion(pm.rank)
}

// OuterGhostZone is the expanded own region minus the own region
func (pm *PartitionManager) OuterGhostZone() geometry.Region {
	return pm.outer
}

func (pm *PartitionManager) Region(rank int) geometry.Region {
	if rank < 0 || rank >= len(pm.regions) {
		return geometry.Region{}
	}
	return pm.regions[rank]
}

func (pm *PartitionManager) ExpandedRegion(rank int) geometry.Region {
	if rank < 0 || rank >= len(pm.expanded) {
		return geometry.Region{}
	}
	return pm.expanded[rank]
}

// Neighbors lists the ranks that get patch channels, ascending
func (pm *PartitionManager) Neighbors() []int {
	return append([]int(nil), pm.neighbors...)
}

// OutgoingRegion is the part of the own region that neighbor needs as
// ghost cells
func (pm *PartitionManager) OutgoingRegion(neighbor int) geometry.Region {
	return pm.outgoing[neighbor]
}

// IncomingRegion is the part of neighbor's region inside the own ghost zone
func (pm *PartitionManager) IncomingRegion(neighbor int) geometry.Region {
	return pm.incoming[neighbor]
}

func (pm *PartitionManager) GhostZoneWidth() int         { return pm.ghostWidth }
func (pm *PartitionManager) Rank() int                   { return pm.rank }
func (pm *PartitionManager) NumRanks() int               { return len(pm.regions) }
func (pm *PartitionManager) Topology() geometry.Topology { return pm.topology }
func (pm *PartitionManager) Domain() geometry.CoordBox   { return pm.domain }

// Adjacency is nil for structured grids
func (pm *PartitionManager) Adjacency() geometry.Adjacency { return pm.adjacency }

// Box returns the cached bounding box of rank, valid after ResetGhostZones
func (pm *PartitionManager) Box(rank int) geometry.CoordBox {
	if rank < 0 || rank >= len(pm.boxes) {
		return geometry.CoordBox{}
	}
	return pm.boxes[rank]
}

// ExpandedBox returns the cached expanded bounding box of rank
func (pm *PartitionManager) ExpandedBox(rank int) geometry.CoordBox {
	if rank < 0 || rank >= len(pm.expandedBoxes) {
		return geometry.CoordBox{}
	}
	return pm.expandedBoxes[rank]
}

func (pm *PartitionManager) expand(r geometry.Region, width int) geometry.Region {
	if pm.adjacency != nil {
		return r.ExpandWithAdjacency(width, pm.adjacency)
	}
	return r.ExpandWithTopology(width, pm.domain, pm.topology)
}
