package geometry

import (
	"fmt"
	"sort"
	"strings"
)

// Streak is a run of cells [Origin.X, EndX) along the X axis at a fixed Y
// and Z
type Streak struct {
	Origin Coord
	EndX   int
}

func (s Streak) Length() int {
	return s.EndX - s.Origin.X
}

// Region is a set of grid coordinates stored as sorted, merged streaks.
// Regions are immutable: every operation returns a new Region, so a Region
// may be shared freely between goroutines.
type Region struct {
	streaks []Streak
}

// NewRegion returns the union of the given boxes
func NewRegion(boxes ...CoordBox) Region {
	var streaks []Streak
	for _, b := range boxes {
		streaks = appendBox(streaks, b)
	}
	return Region{streaks: normalize(streaks)}
}

// FromStreaks builds a region from streaks in any order, overlapping and
// touching runs are merged
func FromStreaks(streaks []Streak) Region {
	return Region{streaks: normalize(streaks)}
}

// FromCoords builds a region from an unordered list of coordinates,
// duplicates are ignored
func FromCoords(coords []Coord) Region {
	if len(coords) == 0 {
		return Region{}
	}
	sorted := make([]Coord, len(coords))
	copy(sorted, coords)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	streaks := make([]Streak, 0)
	cur := Streak{Origin: sorted[0], EndX: sorted[0].X + 1}
	for _, c := range sorted[1:] {
		if c.Y == cur.Origin.Y && c.Z == cur.Origin.Z && c.X <= cur.EndX {
			if c.X == cur.EndX {
				cur.EndX++
			}
			continue
		}
		streaks = append(streaks, cur)
		cur = Streak{Origin: c, EndX: c.X + 1}
	}
	streaks = append(streaks, cur)
	return Region{streaks: streaks}
}

// Streaks returns a copy of the region's streaks in storage order
func (r Region) Streaks() []Streak {
	out := make([]Streak, len(r.streaks))
	copy(out, r.streaks)
	return out
}

// NumStreaks is the number of runs used to represent the region
func (r Region) NumStreaks() int {
	return len(r.streaks)
}

// Size is the number of cells in the region
func (r Region) Size() int {
	n := 0
	for _, s := range r.streaks {
		n += s.Length()
	}
	return n
}

func (r Region) Empty() bool {
	return len(r.streaks) == 0
}

func (r Region) Equal(o Region) bool {
	if len(r.streaks) != len(o.streaks) {
		return false
	}
	for i := range r.streaks {
		if r.streaks[i] != o.streaks[i] {
			return false
		}
	}
	return true
}

func (r Region) Insert(c Coord) Region {
	return r.InsertStreak(Streak{Origin: c, EndX: c.X + 1})
}

func (r Region) InsertStreak(s Streak) Region {
	if s.Length() <= 0 {
		return r
	}
	return Region{streaks: combine(r.streaks, []Streak{s}, unionIntervals)}
}

func (r Region) InsertBox(b CoordBox) Region {
	return r.Union(NewRegion(b))
}

func (r Region) Union(o Region) Region {
	return Region{streaks: combine(r.streaks, o.streaks, unionIntervals)}
}

func (r Region) Intersect(o Region) Region {
	return Region{streaks: combine(r.streaks, o.streaks, intersectIntervals)}
}

func (r Region) Subtract(o Region) Region {
	return Region{streaks: combine(r.streaks, o.streaks, subtractIntervals)}
}

func (r Region) IntersectBox(b CoordBox) Region {
	return r.Intersect(NewRegion(b))
}

func (r Region) Contains(c Coord) bool {
	i := sort.Search(len(r.streaks), func(i int) bool {
		s := r.streaks[i]
		if s.Origin.Z != c.Z {
			return s.Origin.Z > c.Z
		}
		if s.Origin.Y != c.Y {
			return s.Origin.Y > c.Y
		}
		return s.EndX > c.X
	})
	if i == len(r.streaks) {
		return false
	}
	s := r.streaks[i]
	return s.Origin.Y == c.Y && s.Origin.Z == c.Z && s.Origin.X <= c.X
}

// BoundingBox is the smallest box containing every cell of the region
func (r Region) BoundingBox() CoordBox {
	if r.Empty() {
		return CoordBox{}
	}
	lo := r.streaks[0].Origin
	hi := Coord{r.streaks[0].EndX, lo.Y + 1, lo.Z + 1}
	for _, s := range r.streaks[1:] {
		lo.X = min(lo.X, s.Origin.X)
		lo.Y = min(lo.Y, s.Origin.Y)
		lo.Z = min(lo.Z, s.Origin.Z)
		hi.X = max(hi.X, s.EndX)
		hi.Y = max(hi.Y, s.Origin.Y+1)
		hi.Z = max(hi.Z, s.Origin.Z+1)
	}
	return CoordBox{Origin: lo, Dimensions: hi.Sub(lo)}
}

// ForEach visits every cell in storage order (Z, then Y, then X)
func (r Region) ForEach(fn func(c Coord)) {
	for _, s := range r.streaks {
		c := s.Origin
		for x := s.Origin.X; x < s.EndX; x++ {
			c.X = x
			fn(c)
		}
	}
}

// Coords lists every cell in storage order
func (r Region) Coords() []Coord {
	out := make([]Coord, 0, r.Size())
	r.ForEach(func(c Coord) { out = append(out, c) })
	return out
}

// ExpandWithTopology grows the region by width cells in every direction of
// the Moore neighborhood. Periodic axes of topo wrap around the domain,
// bounded axes are clipped at its edges. Axes at or above topo.Dim are not
// expanded.
func (r Region) ExpandWithTopology(width int, domain CoordBox, topo Topology) Region {
	if width <= 0 || r.Empty() {
		return r
	}
	streaks := r.streaks
	for axis := 0; axis < topo.Dim && axis < MaxDim; axis++ {
		streaks = normalize(expandAxis(streaks, axis, width, domain, topo.WrapsAxis(axis)))
	}
	return Region{streaks: streaks}
}

// ExpandWithAdjacency grows a region of unstructured element ids by width
// hops through the adjacency graph
func (r Region) ExpandWithAdjacency(width int, adjacency Adjacency) Region {
	result := r
	frontier := r
	for i := 0; i < width; i++ {
		var next []Coord
		frontier.ForEach(func(c Coord) {
			for _, n := range adjacency.Neighbors(c.X) {
				next = append(next, Coord{X: n})
			}
		})
		grown := FromCoords(next).Subtract(result)
		if grown.Empty() {
			break
		}
		result = result.Union(grown)
		frontier = grown
	}
	return result
}

func (r Region) String() string {
	if r.Empty() {
		return "Region{}"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Region{size: %d, bbox: %v, streaks: [", r.Size(), r.BoundingBox()))
	for i, s := range r.streaks {
		if i == 8 {
			sb.WriteString(fmt.Sprintf(" ... %d more", len(r.streaks)-i))
			break
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprintf("%d..%d@(%d,%d)", s.Origin.X, s.EndX, s.Origin.Y, s.Origin.Z))
	}
	sb.WriteString("]}")
	return sb.String()
}

func appendBox(streaks []Streak, b CoordBox) []Streak {
	if b.Empty() {
		return streaks
	}
	end := b.End()
	for z := b.Origin.Z; z < end.Z; z++ {
		for y := b.Origin.Y; y < end.Y; y++ {
			streaks = append(streaks, Streak{Origin: Coord{b.Origin.X, y, z}, EndX: end.X})
		}
	}
	return streaks
}

func expandAxis(streaks []Streak, axis, width int, domain CoordBox, periodic bool) []Streak {
	lo := domain.Origin.Get(axis)
	n := domain.Dimensions.Get(axis)
	out := make([]Streak, 0, len(streaks)*(2*width+1))

	if axis == 0 {
		for _, s := range streaks {
			out = appendRun(out, s.Origin, s.Origin.X-width, s.EndX+width, lo, n, periodic)
		}
		return out
	}

	for _, s := range streaks {
		v := s.Origin.Get(axis)
		if periodic && 2*width+1 >= n {
			for p := lo; p < lo+n; p++ {
				out = append(out, Streak{Origin: s.Origin.With(axis, p), EndX: s.EndX})
			}
			continue
		}
		for d := -width; d <= width; d++ {
			p := v + d
			if p < lo || p >= lo+n {
				if !periodic {
					continue
				}
				p = lo + mod(p-lo, n)
			}
			out = append(out, Streak{Origin: s.Origin.With(axis, p), EndX: s.EndX})
		}
	}
	return out
}

// appendRun places the X run [from, to) of row into the domain [lo, lo+n)
func appendRun(out []Streak, row Coord, from, to, lo, n int, periodic bool) []Streak {
	if !periodic {
		from, to = max(from, lo), min(to, lo+n)
		if from < to {
			row.X = from
			out = append(out, Streak{Origin: row, EndX: to})
		}
		return out
	}
	length := to - from
	if length >= n {
		row.X = lo
		return append(out, Streak{Origin: row, EndX: lo + n})
	}
	start := mod(from-lo, n)
	if start+length <= n {
		row.X = lo + start
		return append(out, Streak{Origin: row, EndX: lo + start + length})
	}
	row.X = lo + start
	out = append(out, Streak{Origin: row, EndX: lo + n})
	row.X = lo
	return append(out, Streak{Origin: row, EndX: lo + start + length - n})
}

// normalize sorts streaks and merges overlapping or touching runs
func normalize(streaks []Streak) []Streak {
	if len(streaks) == 0 {
		return nil
	}
	sorted := make([]Streak, 0, len(streaks))
	for _, s := range streaks {
		if s.Length() > 0 {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Origin.Less(sorted[j].Origin) })

	out := sorted[:0]
	for _, s := range sorted {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if last.Origin.Y == s.Origin.Y && last.Origin.Z == s.Origin.Z && s.Origin.X <= last.EndX {
				last.EndX = max(last.EndX, s.EndX)
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
