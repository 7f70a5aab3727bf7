package geometry

type interval struct {
	lo, hi int
}

type rowKey struct {
	y, z int
}

func (k rowKey) less(o rowKey) bool {
	if k.z != o.z {
		return k.z < o.z
	}
	return k.y < o.y
}

type row struct {
	key       rowKey
	intervals []interval
}

func rowsOf(streaks []Streak) []row {
	var rows []row
	for _, s := range streaks {
		key := rowKey{y: s.Origin.Y, z: s.Origin.Z}
		iv := interval{lo: s.Origin.X, hi: s.EndX}
		if n := len(rows); n > 0 && rows[n-1].key == key {
			rows[n-1].intervals = append(rows[n-1].intervals, iv)
			continue
		}
		rows = append(rows, row{key: key, intervals: []interval{iv}})
	}
	return rows
}

// combine applies op row by row to two normalized streak lists
func combine(a, b []Streak, op func(x, y []interval) []interval) []Streak {
	ra, rb := rowsOf(a), rowsOf(b)
	var out []Streak
	i, j := 0, 0
	for i < len(ra) || j < len(rb) {
		var key rowKey
		var x, y []interval
		switch {
		case j >= len(rb) || (i < len(ra) && ra[i].key.less(rb[j].key)):
			key, x = ra[i].key, ra[i].intervals
			i++
		case i >= len(ra) || rb[j].key.less(ra[i].key):
			key, y = rb[j].key, rb[j].intervals
			j++
		default:
			key, x, y = ra[i].key, ra[i].intervals, rb[j].intervals
			i++
			j++
		}
		for _, iv := range op(x, y) {
			out = append(out, Streak{Origin: Coord{iv.lo, key.y, key.z}, EndX: iv.hi})
		}
	}
	return out
}

func unionIntervals(x, y []interval) []interval {
	var out []interval
	i, j := 0, 0
	for i < len(x) || j < len(y) {
		var next interval
		if j >= len(y) || (i < len(x) && x[i].lo <= y[j].lo) {
			next = x[i]
			i++
		} else {
			next = y[j]
			j++
		}
		if n := len(out); n > 0 && next.lo <= out[n-1].hi {
			out[n-1].hi = max(out[n-1].hi, next.hi)
			continue
		}
		out = append(out, next)
	}
	return out
}

func intersectIntervals(x, y []interval) []interval {
	var out []interval
	i, j := 0, 0
	for i < len(x) && j < len(y) {
		lo := max(x[i].lo, y[j].lo)
		hi := min(x[i].hi, y[j].hi)
		if lo < hi {
			out = append(out, interval{lo, hi})
		}
		if x[i].hi < y[j].hi {
			i++
		} else {
			j++
		}
	}
	return out
}

func subtractIntervals(x, y []interval) []interval {
	var out []interval
	j := 0
	for _, a := range x {
		cur := a.lo
		for j < len(y) && y[j].hi <= cur {
			j++
		}
		for k := j; k < len(y) && y[k].lo < a.hi; k++ {
			if y[k].lo > cur {
				out = append(out, interval{cur, y[k].lo})
			}
			cur = max(cur, y[k].hi)
		}
		if cur < a.hi {
			out = append(out, interval{cur, a.hi})
		}
	}
	return out
}
