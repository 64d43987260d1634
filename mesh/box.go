package mesh

import (
	"fmt"
	"math"
)

// kuhnPaths lists the axis orders of the six Kuhn tets of a unit cube. Every
// tet runs from corner (0,0,0) to corner (1,1,1), so neighbouring cubes split
// their shared face along the same diagonal.
var kuhnPaths = [6][3]int{
	{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
}

// NewBox meshes the box [lo, hi] with nx*ny*nz cubes as a single compartment
// with one outer boundary.
func NewBox(nx, ny, nz int, lo, hi [3]float64) (*FEMesh, error) {
	return NewLayeredBox([]float64{lo[0], hi[0]}, []int{nx}, ny, nz,
		[2]float64{lo[1], hi[1]}, [2]float64{lo[2], hi[2]})
}

// NewLayeredBox stacks len(nx) compartments along x, layer c spanning
// [xs[c], xs[c+1]] with nx[c] cells. Layers share the y and z resolution so
// interface triangles coincide. Boundary c < len(nx) is the outer surface of
// layer c; boundary len(nx)+c-1 is the interface between layers c-1 and c.
// Each layer owns its interface points, so interface DOFs are duplicated.
func NewLayeredBox(xs []float64, nx []int, ny, nz int, ys, zs [2]float64) (m *FEMesh, err error) {
	var (
		nl = len(nx)
	)
	if nl == 0 || len(xs) != nl+1 {
		return nil, fmt.Errorf("need len(xs) = len(nx)+1 > 1, got %d and %d", len(xs), nl)
	}
	if ny < 1 || nz < 1 {
		return nil, fmt.Errorf("ny and nz must be positive, got %d, %d", ny, nz)
	}
	if !(ys[1] > ys[0]) || !(zs[1] > zs[0]) {
		return nil, fmt.Errorf("empty y or z extent: %v, %v", ys, zs)
	}
	for c := 0; c < nl; c++ {
		if nx[c] < 1 {
			return nil, fmt.Errorf("layer %d has %d cells", c, nx[c])
		}
		if !(xs[c+1] > xs[c]) {
			return nil, fmt.Errorf("layer %d has empty extent [%g, %g]", c, xs[c], xs[c+1])
		}
	}
	m = &FEMesh{
		Compartments: make([]Compartment, nl),
		Facets:        make([][][][3]int, nl),
	}
	if nl == 1 {
		m.BoundaryNames = []string{"outer"}
	} else {
		for c := 0; c < nl; c++ {
			m.BoundaryNames = append(m.BoundaryNames, fmt.Sprintf("outer-%d", c))
		}
		for c := 1; c < nl; c++ {
			m.BoundaryNames = append(m.BoundaryNames, fmt.Sprintf("interface-%d-%d", c-1, c))
		}
	}
	for c := 0; c < nl; c++ {
		m.Compartments[c] = boxLayer(nx[c], ny, nz,
			[2]float64{xs[c], xs[c+1]}, ys, zs)
		m.Facets[c] = make([][][3]int, 2*nl-1)
		tol := 1.e-9 * (xs[c+1] - xs[c])
		onPlane := func(f [3]int, x float64) bool {
			for _, v := range f {
				if math.Abs(m.Compartments[c].Points[v][0]-x) > tol {
					return false
				}
			}
			return true
		}
		faces := m.Compartments[c].BuildFaceMap()
		for _, elem := range m.Compartments[c].Elements {
			for _, f := range GetTetFaces(elem) {
				if len(faces[NewFaceKey(f)]) != 1 {
					continue
				}
				b := c
				switch {
				case c > 0 && onPlane(f, xs[c]):
					b = nl + c - 1
				case c < nl-1 && onPlane(f, xs[c+1]):
					b = nl + c
				}
				m.Facets[c][b] = append(m.Facets[c][b], f)
			}
		}
	}
	return m, nil
}

func boxLayer(nx, ny, nz int, xs, ys, zs [2]float64) (c Compartment) {
	var (
		n   = [3]int{nx, ny, nz}
		lim = [3][2]float64{xs, ys, zs}
		idx = func(i, j, k int) int { return i + (nx+1)*(j+(ny+1)*k) }
	)
	c.Points = make([][3]float64, (nx+1)*(ny+1)*(nz+1))
	for k := 0; k <= nz; k++ {
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				ijk := [3]int{i, j, k}
				var p [3]float64
				for d := 0; d < 3; d++ {
					p[d] = lim[d][0] + (lim[d][1]-lim[d][0])*float64(ijk[d])/float64(n[d])
				}
				c.Points[idx(i, j, k)] = p
			}
		}
	}
	c.Elements = make([][4]int, 0, 6*nx*ny*nz)
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				for _, path := range kuhnPaths {
					var (
						corner = [3]int{i, j, k}
						tet    [4]int
					)
					tet[0] = idx(corner[0], corner[1], corner[2])
					for s, axis := range path {
						corner[axis]++
						tet[s+1] = idx(corner[0], corner[1], corner[2])
					}
					c.Elements = append(c.Elements, tet)
				}
			}
		}
	}
	return
}
