package grid

import (
	"fmt"

	"github.com/notargets/GeoDecomp/geometry"
)

// CopyRegionOut picks the cells of region from g in region order and
// appends them to buf
func CopyRegionOut[T any](g Grid[T], region geometry.Region, buf []T) []T {
	dg, fast := g.(*DisplacedGrid[T])
	for _, s := range region.Streaks() {
		if fast {
			if row := dg.row(s); row != nil {
				buf = append(buf, row...)
				continue
			}
		}
		c := s.Origin
		for x := s.Origin.X; x < s.EndX; x++ {
			c.X = x
			buf = append(buf, g.Get(c))
		}
	}
	return buf
}

// CopyRegionIn places buf into the cells of region, in region order. The
// buffer must hold exactly one value per cell.
func CopyRegionIn[T any](g Grid[T], buf []T, region geometry.Region) error {
	if len(buf) != region.Size() {
		return fmt.Errorf("buffer holds %d cells, region has %d", len(buf), region.Size())
	}
	dg, fast := g.(*DisplacedGrid[T])
	pos := 0
	for _, s := range region.Streaks() {
		if fast {
			if row := dg.row(s); row != nil {
				pos += copy(row, buf[pos:pos+s.Length()])
				continue
			}
		}
		c := s.Origin
		for x := s.Origin.X; x < s.EndX; x++ {
			c.X = x
			g.Set(c, buf[pos])
			pos++
		}
	}
	return nil
}

// CopyRegion moves the cells of region from src to dst
func CopyRegion[T any](dst, src Grid[T], region geometry.Region) {
	region.ForEach(func(c geometry.Coord) {
		dst.Set(c, src.Get(c))
	})
}
