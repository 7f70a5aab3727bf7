package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box2(x, y, dx, dy int) CoordBox {
	return NewBox(NewCoord(x, y), NewExtent(dx, dy))
}

func TestRegion_BoxBasics(t *testing.T) {
	r := NewRegion(box2(2, 3, 4, 5))

	assert.Equal(t, 20, r.Size())
	assert.Equal(t, 5, r.NumStreaks())
	assert.Equal(t, box2(2, 3, 4, 5), r.BoundingBox())
	assert.True(t, r.Contains(NewCoord(2, 3)))
	assert.True(t, r.Contains(NewCoord(5, 7)))
	assert.False(t, r.Contains(NewCoord(6, 7)))
	assert.False(t, r.Contains(NewCoord(2, 8)))
	assert.False(t, r.Contains(NewCoord(1, 3)))
}

func TestRegion_SetOperations(t *testing.T) {
	a := NewRegion(box2(0, 0, 10, 10))
	b := NewRegion(box2(5, 5, 10, 10))

	union := a.Union(b)
	assert.Equal(t, 100+100-25, union.Size())

	inter := a.Intersect(b)
	assert.True(t, inter.Equal(NewRegion(box2(5, 5, 5, 5))))

	diff := a.Subtract(b)
	assert.Equal(t, 75, diff.Size())
	assert.False(t, diff.Contains(NewCoord(7, 7)))
	assert.True(t, diff.Contains(NewCoord(7, 2)))
	assert.True(t, diff.Union(inter).Equal(a))

	assert.True(t, a.Subtract(a).Empty())
	assert.True(t, a.Intersect(Region{}).Empty())
	assert.True(t, a.Union(Region{}).Equal(a))
}

func TestRegion_SubtractSplitsStreaks(t *testing.T) {
	a := NewRegion(box2(0, 0, 10, 1))
	holes := NewRegion(box2(2, 0, 2, 1), box2(6, 0, 1, 1))

	got := a.Subtract(holes)
	want := []Streak{
		{Origin: NewCoord(0, 0), EndX: 2},
		{Origin: NewCoord(4, 0), EndX: 6},
		{Origin: NewCoord(7, 0), EndX: 10},
	}
	assert.Equal(t, want, got.Streaks())
}

func TestRegion_InsertMergesAdjacentCells(t *testing.T) {
	var r Region
	for x := 0; x < 5; x++ {
		r = r.Insert(NewCoord(x, 1))
	}
	r = r.Insert(NewCoord(2, 1))
	assert.Equal(t, 1, r.NumStreaks())
	assert.Equal(t, 5, r.Size())
}

func TestFromCoords(t *testing.T) {
	coords := []Coord{
		NewCoord(3, 0), NewCoord(1, 0), NewCoord(2, 0), NewCoord(2, 0),
		NewCoord(0, 1), NewCoord(9, 0),
	}
	r := FromCoords(coords)
	want := []Streak{
		{Origin: NewCoord(1, 0), EndX: 4},
		{Origin: NewCoord(9, 0), EndX: 10},
		{Origin: NewCoord(0, 1), EndX: 1},
	}
	assert.Equal(t, want, r.Streaks())
	assert.Equal(t, 5, r.Size())
}

func TestRegion_CoordsOrder(t *testing.T) {
	r := NewRegion(box2(0, 0, 2, 2))
	assert.Equal(t, []Coord{
		NewCoord(0, 0), NewCoord(1, 0), NewCoord(0, 1), NewCoord(1, 1),
	}, r.Coords())
}

func TestRegion_ExpandBounded(t *testing.T) {
	domain := box2(0, 0, 5, 5)

	center := NewRegion(box2(2, 2, 1, 1)).ExpandWithTopology(1, domain, Cube(2))
	assert.True(t, center.Equal(NewRegion(box2(1, 1, 3, 3))))

	corner := NewRegion(box2(0, 0, 1, 1)).ExpandWithTopology(1, domain, Cube(2))
	assert.True(t, corner.Equal(NewRegion(box2(0, 0, 2, 2))))

	huge := NewRegion(box2(2, 2, 1, 1)).ExpandWithTopology(10, domain, Cube(2))
	assert.True(t, huge.Equal(NewRegion(domain)))
}

func TestRegion_ExpandPeriodic(t *testing.T) {
	domain := box2(0, 0, 5, 5)

	corner := NewRegion(box2(0, 0, 1, 1)).ExpandWithTopology(1, domain, Torus(2))
	require.Equal(t, 9, corner.Size())
	for _, c := range []Coord{
		NewCoord(4, 4), NewCoord(0, 4), NewCoord(1, 4),
		NewCoord(4, 0), NewCoord(0, 0), NewCoord(1, 0),
		NewCoord(4, 1), NewCoord(0, 1), NewCoord(1, 1),
	} {
		assert.True(t, corner.Contains(c), "missing %v", c)
	}

	whole := NewRegion(box2(0, 0, 1, 1)).ExpandWithTopology(3, domain, Torus(2))
	assert.True(t, whole.Equal(NewRegion(domain)))
}

func TestRegion_ExpandMixedTopology(t *testing.T) {
	domain := box2(0, 0, 6, 4)
	topo := NewTopology(true, false)

	r := NewRegion(box2(5, 0, 1, 1)).ExpandWithTopology(1, domain, topo)
	assert.True(t, r.Contains(NewCoord(0, 0)), "x wraps")
	assert.True(t, r.Contains(NewCoord(4, 1)))
	assert.False(t, r.Contains(NewCoord(5, 3)), "y is bounded")
	assert.Equal(t, 6, r.Size())
}

func TestRegion_ExpandOnlyActiveAxes(t *testing.T) {
	domain := NewBox(NewCoord(0, 0, 0), NewExtent(4, 4, 4))
	r := NewRegion(NewBox(NewCoord(1, 1, 1), NewExtent(1, 1, 1)))

	flat := r.ExpandWithTopology(1, domain, Cube(2))
	assert.Equal(t, 9, flat.Size())
	assert.Equal(t, 1, flat.BoundingBox().Dimensions.Z)

	full := r.ExpandWithTopology(1, domain, Cube(3))
	assert.Equal(t, 27, full.Size())
}

func TestRegion_ExpandWithAdjacency(t *testing.T) {
	adj := Adjacency{}
	for i := 0; i < 4; i++ {
		adj.Connect(i, i+1)
	}
	start := NewRegion(NewBox(NewCoord(2), NewExtent(1)))

	one := start.ExpandWithAdjacency(1, adj)
	assert.True(t, one.Equal(NewRegion(NewBox(NewCoord(1), NewExtent(3)))))

	all := start.ExpandWithAdjacency(5, adj)
	assert.True(t, all.Equal(NewRegion(NewBox(NewCoord(0), NewExtent(5)))))
}

func TestTopology_Normalize(t *testing.T) {
	domain := box2(0, 0, 10, 10)

	c, ok := Torus(2).Normalize(NewCoord(-1, 12), domain)
	assert.True(t, ok)
	assert.Equal(t, NewCoord(9, 2), c)

	_, ok = Cube(2).Normalize(NewCoord(-1, 5), domain)
	assert.False(t, ok)

	c, ok = Cube(2).Normalize(NewCoord(3, 5), domain)
	assert.True(t, ok)
	assert.Equal(t, NewCoord(3, 5), c)
}

func TestCoordBox_IndexRoundTrip(t *testing.T) {
	b := NewBox(NewCoord(1, 2, 3), NewExtent(4, 5, 6))
	for i := 0; i < b.Size(); i++ {
		c := b.CoordAt(i)
		require.True(t, b.Contains(c))
		require.Equal(t, i, b.Index(c))
	}
}

func TestCoordBox_Intersect(t *testing.T) {
	a := box2(0, 0, 10, 10)
	assert.Equal(t, box2(5, 5, 5, 5), a.Intersect(box2(5, 5, 10, 10)))
	assert.True(t, a.Intersect(box2(10, 0, 3, 3)).Empty())
	assert.False(t, a.Intersects(box2(10, 0, 3, 3)))
}
