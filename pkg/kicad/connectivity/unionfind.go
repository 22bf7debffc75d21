package connectivity

// unionFind groups graph nodes into connected sets. Nodes are addressed by
// index; a node's set is named by its root.
type unionFind struct {
	parent []int
	rank   []int
}

// newUnionFind creates n isolated nodes
func newUnionFind(n int) *unionFind {
	uf := &unionFind{
		parent: make([]int, n),
		rank:   make([]int, n),
	}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

// add appends a new isolated node and returns its index
func (uf *unionFind) add() int {
	i := len(uf.parent)
	uf.parent = append(uf.parent, i)
	uf.rank = append(uf.rank, 0)
	return i
}

// connect merges the sets holding a and b
func (uf *unionFind) connect(a, b int) {
	rootA := uf.find(a)
	rootB := uf.find(b)
	if rootA == rootB {
		return
	}

	// Union by rank
	switch {
	case uf.rank[rootA] < uf.rank[rootB]:
		uf.parent[rootA] = rootB
	case uf.rank[rootA] > uf.rank[rootB]:
		uf.parent[rootB] = rootA
	default:
		uf.parent[rootB] = rootA
		uf.rank[rootA]++
	}
}

// find returns the root of the set holding i, compressing the path on the way
func (uf *unionFind) find(i int) int {
	root := i
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for i != root {
		next := uf.parent[i]
		uf.parent[i] = root
		i = next
	}
	return root
}

// connectAll merges every node in nodes into one set
func (uf *unionFind) connectAll(nodes []int) {
	for i := 1; i < len(nodes); i++ {
		uf.connect(nodes[0], nodes[i])
	}
}
