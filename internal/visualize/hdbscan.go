package visualize

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Noise is the label of points outside every cluster.
const Noise = -1

const minDistance = 1e-10

// Cluster labels the rows of points with HDBSCAN using excess-of-mass
// selection. Clusters are numbered from 0 in order of discovery; points
// that belong to no cluster get Noise. A single all-encompassing cluster is
// never selected.
func Cluster(points *mat.Dense, minClusterSize, minSamples int, epsilon float64) []int {
	n, _ := points.Dims()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}
	if minClusterSize < 2 {
		minClusterSize = 2
	}
	if minSamples <= 0 {
		minSamples = minClusterSize
	}
	if n < minClusterSize || n < 2 {
		return labels
	}

	dist := euclideanDistances(points)
	core := coreDistances(dist, minSamples)
	merges := singleLinkage(mutualReachabilityMST(dist, core), n)
	tree := condense(merges, n, minClusterSize)
	selected := tree.selectEOM()
	if epsilon > 0 {
		selected = tree.epsilonSearch(selected, epsilon)
	}
	return tree.label(selected, n)
}

func euclideanDistances(points *mat.Dense) [][]float64 {
	n, _ := points.Dims()
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(points.RawRowView(i), points.RawRowView(j), 2)
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist
}

// coreDistances is the distance to the k-th nearest point, counting the
// point itself as the first.
func coreDistances(dist [][]float64, k int) []float64 {
	n := len(dist)
	k = min(k, n)
	core := make([]float64, n)
	row := make([]float64, n)
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[k-1]
	}
	return core
}

type mstEdge struct {
	a, b int
	dist float64
}

// mutualReachabilityMST runs Prim's algorithm over the dense mutual
// reachability graph.
func mutualReachabilityMST(dist [][]float64, core []float64) []mstEdge {
	n := len(dist)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}
	edges := make([]mstEdge, 0, n-1)
	cur := 0
	inTree[0] = true
	for len(edges) < n-1 {
		next, nextDist := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			mr := math.Max(dist[cur][j], math.Max(core[cur], core[j]))
			if mr < best[j] {
				best[j] = mr
				from[j] = cur
			}
			if best[j] < nextDist {
				next, nextDist = j, best[j]
			}
		}
		inTree[next] = true
		edges = append(edges, mstEdge{from[next], next, nextDist})
		cur = next
	}
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].dist < edges[j].dist })
	return edges
}

type merge struct {
	left, right int
	dist        float64
	size        int
}

// singleLinkage turns sorted MST edges into a dendrogram. Leaves are
// 0..n-1; merge i creates node n+i.
func singleLinkage(edges []mstEdge, n int) []merge {
	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	merges := make([]merge, 0, n-1)
	for i, e := range edges {
		ra, rb := find(e.a), find(e.b)
		node := n + i
		size[node] = size[ra] + size[rb]
		parent[ra], parent[rb] = node, node
		merges = append(merges, merge{ra, rb, e.dist, size[node]})
	}
	return merges
}

// condensedTree records where points and child clusters leave each
// cluster. Cluster 0 is the root; children always have larger ids.
type condensedTree struct {
	parent     []int     // parent cluster, -1 for root
	birth      []float64 // lambda at which the cluster appears
	stability  []float64
	children   [][]int
	pointOwner []int // cluster each point falls out of
}

func (t *condensedTree) newCluster(parent int, lambda float64) int {
	id := len(t.parent)
	t.parent = append(t.parent, parent)
	t.birth = append(t.birth, lambda)
	t.stability = append(t.stability, 0)
	t.children = append(t.children, nil)
	if parent >= 0 {
		t.children[parent] = append(t.children[parent], id)
	}
	return id
}

func condense(merges []merge, n, minClusterSize int) *condensedTree {
	t := &condensedTree{pointOwner: make([]int, n)}
	root := 2*n - 2
	t.newCluster(-1, 0)

	nodeSize := func(node int) int {
		if node < n {
			return 1
		}
		return merges[node-n].size
	}
	// fallOut assigns every leaf under node to cluster at lambda.
	fallOut := func(node, cluster int, lambda float64) {
		stack := []int{node}
		for len(stack) > 0 {
			x := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if x < n {
				t.pointOwner[x] = cluster
				t.stability[cluster] += lambda - t.birth[cluster]
				continue
			}
			m := merges[x-n]
			stack = append(stack, m.left, m.right)
		}
	}

	type frame struct{ node, cluster int }
	stack := []frame{{root, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.node < n {
			// A lone point reached while still inside a cluster.
			fallOut(f.node, f.cluster, 1/minDistance)
			continue
		}
		m := merges[f.node-n]
		lambda := 1 / math.Max(m.dist, minDistance)
		ls, rs := nodeSize(m.left), nodeSize(m.right)
		switch {
		case ls >= minClusterSize && rs >= minClusterSize:
			t.stability[f.cluster] += (lambda - t.birth[f.cluster]) * float64(ls+rs)
			l := t.newCluster(f.cluster, lambda)
			r := t.newCluster(f.cluster, lambda)
			stack = append(stack, frame{m.right, r}, frame{m.left, l})
		case ls < minClusterSize && rs < minClusterSize:
			fallOut(m.left, f.cluster, lambda)
			fallOut(m.right, f.cluster, lambda)
		case ls < minClusterSize:
			fallOut(m.left, f.cluster, lambda)
			stack = append(stack, frame{m.right, f.cluster})
		default:
			fallOut(m.right, f.cluster, lambda)
			stack = append(stack, frame{m.left, f.cluster})
		}
	}
	return t
}

// selectEOM picks the clusters maximizing total stability, excluding the
// root.
func (t *condensedTree) selectEOM() map[int]bool {
	selected := make(map[int]bool)
	stability := append([]float64(nil), t.stability...)
	for c := len(t.parent) - 1; c > 0; c-- {
		if len(t.children[c]) == 0 {
			selected[c] = true
			continue
		}
		var sub float64
		for _, ch := range t.children[c] {
			sub += stability[ch]
		}
		if stability[c] < sub {
			stability[c] = sub
			continue
		}
		selected[c] = true
		t.walk(c, func(d int) {
			if d != c {
				delete(selected, d)
			}
		})
	}
	return selected
}

// epsilonSearch replaces clusters born below distance epsilon with the
// nearest ancestor born above it, never climbing to the root.
func (t *condensedTree) epsilonSearch(selected map[int]bool, epsilon float64) map[int]bool {
	out := make(map[int]bool, len(selected))
	ids := make([]int, 0, len(selected))
	for c := range selected {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	for _, c := range ids {
		if 1/t.birth[c] >= epsilon {
			out[c] = true
			continue
		}
		cur := c
		for {
			p := t.parent[cur]
			if p <= 0 {
				break
			}
			cur = p
			if 1/t.birth[cur] > epsilon {
				break
			}
		}
		out[cur] = true
	}
	// Drop anything now covered by a selected ancestor.
	for c := range out {
		for p := t.parent[c]; p > 0; p = t.parent[p] {
			if out[p] {
				delete(out, c)
				break
			}
		}
	}
	return out
}

func (t *condensedTree) walk(c int, fn func(int)) {
	stack := []int{c}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(x)
		stack = append(stack, t.children[x]...)
	}
}

func (t *condensedTree) label(selected map[int]bool, n int) []int {
	ids := make([]int, 0, len(selected))
	for c := range selected {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	number := make(map[int]int, len(ids))
	for i, c := range ids {
		number[c] = i
	}

	labels := make([]int, n)
	for i := 0; i < n; i++ {
		labels[i] = Noise
		for c := t.pointOwner[i]; c > 0; c = t.parent[c] {
			if l, ok := number[c]; ok {
				labels[i] = l
				break
			}
		}
	}
	return labels
}
