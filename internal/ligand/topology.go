package ligand

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

func buildAdjacency(n int, bonds [][2]int) ([][]int, error) {
	adj := make([][]int, n)
	seen := make(map[[2]int]bool, len(bonds))
	for i, b := range bonds {
		a, c := b[0], b[1]
		if a < 0 || a >= n || c < 0 || c >= n {
			return nil, fmt.Errorf("%w: bond %d references atom outside [0,%d)", ErrTopology, i, n)
		}
		if a == c {
			return nil, fmt.Errorf("%w: bond %d is a self bond", ErrTopology, i)
		}
		key := [2]int{min(a, c), max(a, c)}
		if seen[key] {
			continue
		}
		seen[key] = true
		adj[a] = append(adj[a], c)
		adj[c] = append(adj[c], a)
	}
	return adj, nil
}

func bonded(adj [][]int, a, b int) bool {
	for _, n := range adj[a] {
		if n == b {
			return true
		}
	}
	return false
}

// movedMasks derives, for every rotatable bond a-b, the set of atoms on the
// b side of the bond. Explicit lists take precedence when provided.
func movedMasks(adj [][]int, rotbonds [][2]int, explicit [][]int) ([][]bool, error) {
	n := len(adj)
	if len(explicit) > 0 && len(explicit) != len(rotbonds) {
		return nil, fmt.Errorf("%w: %d moved lists for %d rotatable bonds", ErrTopology, len(explicit), len(rotbonds))
	}

	masks := make([][]bool, len(rotbonds))
	for bi, rb := range rotbonds {
		a, b := rb[0], rb[1]
		if a < 0 || a >= n || b < 0 || b >= n || a == b {
			return nil, fmt.Errorf("%w: rotatable bond %d has invalid atoms (%d, %d)", ErrTopology, bi, a, b)
		}
		if !bonded(adj, a, b) {
			return nil, fmt.Errorf("%w: rotatable bond %d (%d-%d) is not a bond", ErrTopology, bi, a, b)
		}

		mask := make([]bool, n)
		if len(explicit) > 0 {
			for _, at := range explicit[bi] {
				if at < 0 || at >= n {
					return nil, fmt.Errorf("%w: rotatable bond %d moves atom %d outside [0,%d)", ErrTopology, bi, at, n)
				}
				if at == a || at == b {
					continue
				}
				mask[at] = true
			}
			masks[bi] = mask
			continue
		}

		// Breadth-first walk from b that never crosses back over a-b.
		visited := make([]bool, n)
		visited[b] = true
		queue := []int{b}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range adj[cur] {
				if cur == b && next == a {
					continue
				}
				if next == a {
					return nil, fmt.Errorf("%w: rotatable bond %d (%d-%d) is part of a ring", ErrTopology, bi, a, b)
				}
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}
		// The bond atoms lie on the axis and are left in place.
		for i := range visited {
			mask[i] = visited[i] && i != b
		}
		masks[bi] = mask
	}
	return masks, nil
}

// rigidFragments labels atoms connected through non-rotatable bonds.
func rigidFragments(n int, bonds, rotbonds [][2]int) []int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	rot := make(map[[2]int]bool, len(rotbonds))
	for _, rb := range rotbonds {
		rot[[2]int{min(rb[0], rb[1]), max(rb[0], rb[1])}] = true
	}
	for _, b := range bonds {
		if rot[[2]int{min(b[0], b[1]), max(b[0], b[1])}] {
			continue
		}
		ra, rb := find(b[0]), find(b[1])
		if ra != rb {
			parent[rb] = ra
		}
	}

	ids := make(map[int]int)
	frag := make([]int, n)
	for i := range frag {
		root := find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		frag[i] = id
	}
	return frag
}

// intraContributors returns the atom pairs in different rigid fragments that
// are separated by more than three bonds.
func intraContributors(adj [][]int, frag []int) []Pair {
	n := len(adj)
	var pairs []Pair
	dist := make([]int, n)
	for i := 0; i < n; i++ {
		for k := range dist {
			dist[k] = -1
		}
		dist[i] = 0
		queue := []int{i}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if dist[cur] == 3 {
				continue
			}
			for _, next := range adj[cur] {
				if dist[next] < 0 {
					dist[next] = dist[cur] + 1
					queue = append(queue, next)
				}
			}
		}
		for j := i + 1; j < n; j++ {
			if frag[i] == frag[j] {
				continue
			}
			if dist[j] >= 0 && dist[j] <= 3 {
				continue
			}
			pairs = append(pairs, Pair{I: i, J: j})
		}
	}
	return pairs
}

func rotationVectors(coords []r3.Vec, rotbonds [][2]int) ([]RotVector, error) {
	out := make([]RotVector, len(rotbonds))
	for i, rb := range rotbonds {
		d := r3.Sub(coords[rb[1]], coords[rb[0]])
		if r3.Norm(d) < 1e-8 {
			return nil, fmt.Errorf("%w: rotatable bond %d has zero length", ErrTopology, i)
		}
		out[i] = RotVector{Anchor: coords[rb[0]], Axis: r3.Unit(d)}
	}
	return out, nil
}

// rotationSchedule orders bonds by ascending moved-atom count. A bond whose
// moved set contains another bond's moved set strictly is larger, so the
// inner bond is applied first while both still sit in the reference frame.
func rotationSchedule(moved [][]bool) []int {
	counts := make([]int, len(moved))
	for b, mask := range moved {
		for _, m := range mask {
			if m {
				counts[b]++
			}
		}
	}
	order := make([]int, len(moved))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] < counts[order[j]]
	})
	return order
}
