package patch

import "strconv"

// Watermark is the terminal nanostep of a channel. The zero value is
// unbounded.
type Watermark struct {
	last   uint64
	finite bool
}

// Infinity keeps a channel serving until it is re-charged
func Infinity() Watermark { return Watermark{} }

// Until stops a channel before nanostep n
func Until(n uint64) Watermark { return Watermark{last: n, finite: true} }

func (w Watermark) IsInfinite() bool { return !w.finite }

// Value returns the terminal nanostep, ok is false when unbounded
func (w Watermark) Value() (uint64, bool) { return w.last, w.finite }

// Admits reports whether nanostep n may still be served
func (w Watermark) Admits(n uint64) bool {
	return !w.finite || n < w.last
}

func (w Watermark) String() string {
	if !w.finite {
		return "inf"
	}
	return strconv.FormatUint(w.last, 10)
}
