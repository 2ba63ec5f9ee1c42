// Package dsu is a disjoint set union over the integers [0, n).
package dsu

import "sort"

// DSU joins class indices into groups
type DSU struct {
	root []int
	rank []int
}

// New creates a DSU where every element of [0, n) is its own set.
func New(n int) *DSU {
	d := &DSU{
		root: make([]int, n),
		rank: make([]int, n),
	}
	for i := range d.root {
		d.root[i] = i
	}
	return d
}

// Size returns the number of elements
func (d *DSU) Size() int {
	return len(d.root)
}

// Find returns the root of the set containing x
func (d *DSU) Find(x int) int {
	if d.root[x] == x {
		return x
	}

	d.root[x] = d.Find(d.root[x]) // Path compression
	return d.root[x]
}

// Union merges the sets of x and y. It reports whether they were separate.
func (d *DSU) Union(x, y int) bool {
	rootX := d.Find(x)
	rootY := d.Find(y)

	if rootX == rootY {
		return false
	}

	if d.rank[rootX] > d.rank[rootY] {
		d.root[rootY] = rootX
	} else if d.rank[rootX] < d.rank[rootY] {
		d.root[rootX] = rootY
	} else {
		d.root[rootY] = rootX
		d.rank[rootX]++
	}
	return true
}

// Connected checks if two elements are in the same set
func (d *DSU) Connected(x, y int) bool {
	return d.Find(x) == d.Find(y)
}

// CountSets returns the number of unique sets
func (d *DSU) CountSets() int {
	roots := make(map[int]bool)
	for i := range d.root {
		roots[d.Find(i)] = true
	}
	return len(roots)
}

// Groups returns every set with its members ascending, ordered by smallest member.
func (d *DSU) Groups() [][]int {
	byRoot := make(map[int][]int)
	for i := range d.root {
		r := d.Find(i)
		byRoot[r] = append(byRoot[r], i)
	}

	groups := make([][]int, 0, len(byRoot))
	for _, members := range byRoot {
		groups = append(groups, members)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i][0] < groups[j][0]
	})
	return groups
}
