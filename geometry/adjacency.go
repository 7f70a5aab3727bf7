package geometry

import (
	"sort"
)

// Adjacency lists the neighbors of every element of an unstructured grid.
// Elements are addressed by their 1-D id, stored in the X component of a
// Coord.
type Adjacency map[int][]int

// Connect records a symmetric edge between x and y
func (a Adjacency) Connect(x, y int) {
	if x == y {
		return
	}
	a[x] = insertSorted(a[x], y)
	a[y] = insertSorted(a[y], x)
}

func (a Adjacency) Neighbors(id int) []int {
	return a[id]
}

func insertSorted(list []int, v int) []int {
	i := sort.SearchInts(list, v)
	if i < len(list) && list[i] == v {
		return list
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = v
	return list
}
