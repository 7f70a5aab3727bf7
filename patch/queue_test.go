package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNanoStepQueue(t *testing.T) {
	q := NewNanoStepQueue(9, 3, 5)
	q.Insert(3)
	q.Insert(1)
	assert.Equal(t, []uint64{1, 3, 3, 5, 9}, q.Values())

	n, ok := q.PeekMin()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), n)

	n, _ = q.PopMin()
	assert.Equal(t, uint64(1), n)
	n, _ = q.PopMin()
	assert.Equal(t, uint64(3), n)
	assert.True(t, q.Contains(3), "duplicate survives a single pop")

	q.Insert(3)
	assert.Equal(t, 2, q.RemoveAll(3))
	assert.False(t, q.Contains(3))
	assert.Equal(t, 1, q.RemoveFrom(6))
	assert.Equal(t, []uint64{5}, q.Values())

	q.PopMin()
	_, ok = q.PopMin()
	assert.False(t, ok)
	_, ok = q.PeekMin()
	assert.False(t, ok)
}

func TestWatermark(t *testing.T) {
	inf := Infinity()
	assert.True(t, inf.IsInfinite())
	assert.True(t, inf.Admits(^uint64(0)))
	assert.Equal(t, "inf", inf.String())

	w := Until(10)
	last, finite := w.Value()
	assert.True(t, finite)
	assert.Equal(t, uint64(10), last)
	assert.True(t, w.Admits(9))
	assert.False(t, w.Admits(10))
	assert.Equal(t, "10", w.String())
}

func TestLinkName(t *testing.T) {
	assert.Equal(t, "sim/PatchLink::/3-12", LinkName("sim", 3, 12))
	assert.NotEqual(t, LinkName("sim", 1, 2), LinkName("sim", 2, 1))
}
