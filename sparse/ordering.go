package sparse

import (
	"fmt"
	"sort"
	"strings"
)

// Ordering selects the fill-reducing permutation applied before factorizing.
type Ordering int

const (
	// Natural keeps the matrix order.
	Natural Ordering = iota
	// ReverseCuthillMcKee reduces the bandwidth with a breadth-first
	// relabelling started from a pseudo-peripheral vertex.
	ReverseCuthillMcKee
)

func (o Ordering) String() string {
	switch o {
	case Natural:
		return "natural"
	case ReverseCuthillMcKee:
		return "rcm"
	default:
		return fmt.Sprintf("Ordering(%d)", int(o))
	}
}

// ParseOrdering maps "natural" or "rcm" to an Ordering.
func ParseOrdering(s string) (Ordering, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "natural", "none":
		return Natural, nil
	case "rcm", "reverse-cuthill-mckee", "":
		return ReverseCuthillMcKee, nil
	}
	return Natural, fmt.Errorf("sparse: unknown ordering %q", s)
}

// Permutation returns perm such that perm[k] is the original index placed at
// position k of the reordered matrix. a must be square with a symmetric
// pattern.
func (o Ordering) Permutation(a *CSC) []int {
	if o == ReverseCuthillMcKee {
		return rcm(a)
	}
	perm := make([]int, a.c)
	for k := range perm {
		perm[k] = k
	}
	return perm
}

// degrees counts off-diagonal neighbours of every vertex.
func degrees(a *CSC) []int {
	deg := make([]int, a.c)
	for j := 0; j < a.c; j++ {
		for p := a.colPtr[j]; p < a.colPtr[j+1]; p++ {
			if a.rowIdx[p] != j {
				deg[j]++
			}
		}
	}
	return deg
}

func rcm(a *CSC) []int {
	n := a.c
	deg := degrees(a)
	visited := make([]bool, n)
	level := make([]int, n)
	order := make([]int, 0, n)
	var nbrs []int

	for len(order) < n {
		start := -1
		for v := 0; v < n; v++ {
			if !visited[v] && (start < 0 || deg[v] < deg[start]) {
				start = v
			}
		}
		start = pseudoPeripheral(a, start, deg, visited, level)

		head := len(order)
		visited[start] = true
		order = append(order, start)
		for head < len(order) {
			v := order[head]
			head++
			nbrs = nbrs[:0]
			for p := a.colPtr[v]; p < a.colPtr[v+1]; p++ {
				if u := a.rowIdx[p]; !visited[u] {
					visited[u] = true
					nbrs = append(nbrs, u)
				}
			}
			sort.Slice(nbrs, func(x, y int) bool {
				if deg[nbrs[x]] != deg[nbrs[y]] {
					return deg[nbrs[x]] < deg[nbrs[y]]
				}
				return nbrs[x] < nbrs[y]
			})
			order = append(order, nbrs...)
		}
	}

	for i, k := 0, n-1; i < k; i, k = i+1, k-1 {
		order[i], order[k] = order[k], order[i]
	}
	return order
}

// pseudoPeripheral walks to the end of successive level structures until the
// eccentricity stops growing.
func pseudoPeripheral(a *CSC, root int, deg []int, visited []bool, level []int) int {
	ecc := -1
	for {
		last, depth := levels(a, root, visited, level)
		if depth <= ecc {
			return root
		}
		ecc = depth
		next := last[0]
		for _, v := range last[1:] {
			if deg[v] < deg[next] {
				next = v
			}
		}
		if next == root {
			return root
		}
		root = next
	}
}

// levels runs a breadth-first search from root over unvisited vertices and
// returns the deepest level and its depth. level is scratch space.
func levels(a *CSC, root int, visited []bool, level []int) ([]int, int) {
	queue := []int{root}
	for i := range level {
		level[i] = -1
	}
	level[root] = 0
	depth := 0
	for head := 0; head < len(queue); head++ {
		v := queue[head]
		for p := a.colPtr[v]; p < a.colPtr[v+1]; p++ {
			u := a.rowIdx[p]
			if visited[u] || level[u] >= 0 {
				continue
			}
			level[u] = level[v] + 1
			if level[u] > depth {
				depth = level[u]
			}
			queue = append(queue, u)
		}
	}
	var last []int
	for _, v := range queue {
		if level[v] == depth {
			last = append(last, v)
		}
	}
	return last, depth
}
