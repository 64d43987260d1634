package fem

import (
	"math"

	"github.com/notargets/gobloch/mesh"
	"github.com/notargets/gobloch/utils"
)

// MatchTol is the relative distance under which two interface points of
// neighbouring compartments are the same physical point.
const MatchTol = 1.e-8

// AssembleFlux builds the permeability operator Q from the per compartment
// boundary mass matrices F[c][b]. A boundary touched by one compartment
// contributes κ_b F_cb to that compartment's diagonal block. An interface
// touched by two compartments also contributes the exchange blocks
//
//	Q_12[i, map(j)] = -κ_b F_1b[i, j],  Q_21[k, map(l)] = -κ_b F_2b[k, l]
//
// where map pairs coincident interface points. Every row of an interface
// pair then sums to zero, so exchange conserves magnetization.
func AssembleFlux(m *mesh.FEMesh, flux [][]utils.CSR, offsets []int, kappa []float64) (Q utils.CSR, err error) {
	var (
		n  = offsets[len(offsets)-1]
		sa = utils.NewSparseAssembler(n, n)
	)
	for b := 0; b < m.NBoundaries(); b++ {
		cmpts := m.Touching(b)
		if len(cmpts) > 2 {
			return Q, mesh.NewValidationError(cmpts[2], b, -1, -1,
				"boundary is shared by %d compartments %v, at most two are allowed", len(cmpts), cmpts)
		}
		k := kappa[b]
		if k == 0 || len(cmpts) == 0 {
			continue
		}
		for _, c := range cmpts {
			sa.AddBlock(offsets[c], offsets[c], k, flux[c][b])
		}
		if len(cmpts) == 1 {
			continue
		}
		c1, c2 := cmpts[0], cmpts[1]
		var map12, map21 map[int]int
		if map12, map21, err = matchInterface(m, b, c1, c2); err != nil {
			return
		}
		flux[c1][b].DoNonZero(func(i, j int, v float64) {
			sa.Add(offsets[c1]+i, offsets[c2]+map12[j], -k*v)
		})
		flux[c2][b].DoNonZero(func(i, j int, v float64) {
			sa.Add(offsets[c2]+i, offsets[c1]+map21[j], -k*v)
		})
	}
	return sa.ToCSR("Q"), nil
}

type cellKey [3]int64

// matchInterface pairs the points of c1 and c2 on boundary b by position.
// Points are hashed on a grid of spacing h and compared with the 27
// surrounding cells.
func matchInterface(m *mesh.FEMesh, b, c1, c2 int) (map12, map21 map[int]int, err error) {
	var (
		p1    = facetPoints(m.Facets[c1][b])
		p2    = facetPoints(m.Facets[c2][b])
		pts1  = m.Compartments[c1].Points
		pts2  = m.Compartments[c2].Points
		lo    = [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
		hi    = [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
		scale float64
	)
	if len(p1) != len(p2) {
		return nil, nil, mesh.NewValidationError(c2, b, -1, -1,
			"interface has %d points in compartment %d but %d in compartment %d",
			len(p1), c1, len(p2), c2)
	}
	for _, i := range p1 {
		for d := 0; d < 3; d++ {
			lo[d] = math.Min(lo[d], pts1[i][d])
			hi[d] = math.Max(hi[d], pts1[i][d])
		}
	}
	for d := 0; d < 3; d++ {
		scale = math.Max(scale, hi[d]-lo[d])
	}
	if scale == 0 {
		scale = 1
	}
	var (
		h    = MatchTol * scale
		grid = make(map[cellKey][]int, len(p1))
	)
	key := func(p [3]float64) (k cellKey) {
		for d := 0; d < 3; d++ {
			k[d] = int64(math.Floor(p[d] / h))
		}
		return
	}
	for _, i := range p1 {
		k := key(pts1[i])
		grid[k] = append(grid[k], i)
	}
	map12 = make(map[int]int, len(p1))
	map21 = make(map[int]int, len(p2))
	for _, j := range p2 {
		var (
			k     = key(pts2[j])
			best  = -1
			bestD = h
		)
		for dx := int64(-1); dx <= 1; dx++ {
			for dy := int64(-1); dy <= 1; dy++ {
				for dz := int64(-1); dz <= 1; dz++ {
					for _, i := range grid[cellKey{k[0] + dx, k[1] + dy, k[2] + dz}] {
						if dist := distance(pts1[i], pts2[j]); dist <= bestD {
							best, bestD = i, dist
						}
					}
				}
			}
		}
		if best < 0 {
			return nil, nil, mesh.NewValidationError(c2, b, -1, -1,
				"interface point %d at %v has no partner in compartment %d", j, pts2[j], c1)
		}
		if prev, taken := map12[best]; taken {
			return nil, nil, mesh.NewValidationError(c2, b, -1, -1,
				"interface points %d and %d both match point %d of compartment %d", prev, j, best, c1)
		}
		map12[best] = j
		map21[j] = best
	}
	return
}

// facetPoints lists the distinct points referenced by a facet set in order
// of first appearance.
func facetPoints(facets [][3]int) (pts []int) {
	seen := make(map[int]bool)
	for _, f := range facets {
		for _, v := range f {
			if !seen[v] {
				seen[v] = true
				pts = append(pts, v)
			}
		}
	}
	return
}

func distance(a, b [3]float64) float64 {
	return math.Sqrt((a[0]-b[0])*(a[0]-b[0]) + (a[1]-b[1])*(a[1]-b[1]) + (a[2]-b[2])*(a[2]-b[2]))
}
