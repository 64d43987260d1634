package utils

import "sort"

// ReverseCuthillMcKee returns a bandwidth reducing ordering of the symmetric
// sparsity pattern of Z + Z^T. perm[new] = old.
func ReverseCuthillMcKee(Z ZCSR) (perm []int) {
	var (
		n       = Z.N
		adj     = make([][]int, n)
		visited = make([]bool, n)
	)
	for i := 0; i < n; i++ {
		for p := Z.Indptr[i]; p < Z.Indptr[i+1]; p++ {
			j := Z.Ind[p]
			if j == i {
				continue
			}
			adj[i] = append(adj[i], j)
			adj[j] = append(adj[j], i)
		}
	}
	for i := range adj {
		adj[i] = uniqueInts(adj[i])
	}
	degree := func(i int) int { return len(adj[i]) }

	// Start every connected component from a node of minimum degree.
	starts := make([]int, n)
	for i := range starts {
		starts[i] = i
	}
	sort.SliceStable(starts, func(a, b int) bool {
		return degree(starts[a]) < degree(starts[b])
	})

	order := make([]int, 0, n)
	for _, s := range starts {
		if visited[s] {
			continue
		}
		visited[s] = true
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			order = append(order, v)
			nbrs := make([]int, 0, len(adj[v]))
			for _, w := range adj[v] {
				if !visited[w] {
					visited[w] = true
					nbrs = append(nbrs, w)
				}
			}
			sort.SliceStable(nbrs, func(a, b int) bool {
				return degree(nbrs[a]) < degree(nbrs[b])
			})
			queue = append(queue, nbrs...)
		}
	}
	perm = make([]int, n)
	for i, v := range order {
		perm[n-1-i] = v
	}
	return
}

// Bandwidth returns the lower and upper bandwidth of Z under the ordering
// perm (perm[new] = old).
func Bandwidth(Z ZCSR, perm []int) (kl, ku int) {
	iperm := InvertPermutation(perm)
	for i := 0; i < Z.N; i++ {
		ni := iperm[i]
		for p := Z.Indptr[i]; p < Z.Indptr[i+1]; p++ {
			nj := iperm[Z.Ind[p]]
			if d := ni - nj; d > kl {
				kl = d
			}
			if d := nj - ni; d > ku {
				ku = d
			}
		}
	}
	return
}

func InvertPermutation(perm []int) (iperm []int) {
	iperm = make([]int, len(perm))
	for i, p := range perm {
		iperm[p] = i
	}
	return
}

func uniqueInts(a []int) []int {
	if len(a) == 0 {
		return a
	}
	sort.Ints(a)
	out := a[:1]
	for _, v := range a[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
