package fem

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gobloch/mesh"
	"github.com/notargets/gobloch/utils"
)

// ElementGeometry holds the volume and the constant P1 basis gradients of a
// tetrahedron: Grad[i] = ∇φ_i.
type ElementGeometry struct {
	Volume float64
	Grad   [4]r3.Vec
}

// NewElementGeometry inverts the element Vandermonde matrix
//
//	[1 x_i-x_0 y_i-y_0 z_i-z_0], i = 0..3
//
// whose inverse columns hold the coefficients of the four basis functions.
// Shifting by the first vertex leaves the gradients unchanged.
func NewElementGeometry(p [4][3]float64) (eg ElementGeometry, ok bool) {
	var (
		V     = mat.NewDense(4, 4, nil)
		scale float64
	)
	for i := 0; i < 4; i++ {
		V.Set(i, 0, 1)
		for d := 0; d < 3; d++ {
			V.Set(i, d+1, p[i][d]-p[0][d])
			scale = math.Max(scale, math.Abs(p[i][d]-p[0][d]))
		}
	}
	det := mat.Det(V)
	eg.Volume = math.Abs(det) / 6
	if scale == 0 || eg.Volume <= utils.NODETOL*scale*scale*scale {
		return eg, false
	}
	var Vinv mat.Dense
	if err := Vinv.Inverse(V); err != nil {
		return eg, false
	}
	for i := 0; i < 4; i++ {
		eg.Grad[i] = r3.Vec{X: Vinv.At(1, i), Y: Vinv.At(2, i), Z: Vinv.At(3, i)}
	}
	return eg, true
}

// Geometries computes the geometry of every element of a compartment. A
// degenerate element is a mesh validation error.
func Geometries(cmpt int, c mesh.Compartment) (geo []ElementGeometry, err error) {
	geo = make([]ElementGeometry, c.NElements())
	for k := range c.Elements {
		var ok bool
		if geo[k], ok = NewElementGeometry(c.ElementPoints(k)); !ok {
			return nil, mesh.NewValidationError(cmpt, -1, k, -1,
				"degenerate element, volume %g", geo[k].Volume)
		}
	}
	return
}

// MassMatrix assembles ∫ φ_i φ_j w dV. With weight == nil w = 1 and the
// element matrix is V/20 (1 + δ_ij). Otherwise w is the P1 interpolant of
// the nodal weight, integrated exactly with ∫ φ_i φ_j φ_l dV.
func MassMatrix(c mesh.Compartment, geo []ElementGeometry, weight []float64) utils.CSR {
	var (
		np = c.NPoints()
		M  = utils.NewDOK(np, np)
	)
	for k, elem := range c.Elements {
		V := geo[k].Volume
		if weight == nil {
			for i := 0; i < 4; i++ {
				for j := 0; j < 4; j++ {
					val := V / 20
					if i == j {
						val = V / 10
					}
					M.AddAt(elem[i], elem[j], val)
				}
			}
			continue
		}
		var (
			w   [4]float64
			sum float64
		)
		for i, v := range elem {
			w[i] = weight[v]
			sum += w[i]
		}
		// ∫φiφjφl = V*2/120 (i=j=l: 6/120, two equal: 2/120, distinct: 1/120)
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				var val float64
				if i == j {
					val = V / 120 * (2*sum + 4*w[i])
				} else {
					val = V / 120 * (sum + w[i] + w[j])
				}
				M.AddAt(elem[i], elem[j], val)
			}
		}
	}
	return M.ToCSR()
}

// StiffnessMatrix assembles ∫ ∇φ_i · D ∇φ_j dV for a constant tensor D.
func StiffnessMatrix(c mesh.Compartment, geo []ElementGeometry, D [3][3]float64) utils.CSR {
	var (
		np = c.NPoints()
		S  = utils.NewDOK(np, np)
	)
	apply := func(g r3.Vec) r3.Vec {
		return r3.Vec{
			X: D[0][0]*g.X + D[0][1]*g.Y + D[0][2]*g.Z,
			Y: D[1][0]*g.X + D[1][1]*g.Y + D[1][2]*g.Z,
			Z: D[2][0]*g.X + D[2][1]*g.Y + D[2][2]*g.Z,
		}
	}
	for k, elem := range c.Elements {
		eg := geo[k]
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				S.AddAt(elem[i], elem[j], eg.Volume*r3.Dot(eg.Grad[i], apply(eg.Grad[j])))
			}
		}
	}
	return S.ToCSR()
}

// FacetGeometry is the area and unit outward normal of a boundary triangle.
type FacetGeometry struct {
	Area   float64
	Normal r3.Vec
}

// Facets computes the area and outward normal of every facet of compartment
// cmpt on boundary b. The normal points away from the tet owning the facet.
// Facet indices are checked against the compartment's point range and every
// facet must be a face of exactly one element.
func Facets(cmpt, b int, c mesh.Compartment, faces map[mesh.FaceKey][]mesh.FaceOwner,
	facets [][3]int) (fg []FacetGeometry, err error) {
	np := c.NPoints()
	fg = make([]FacetGeometry, len(facets))
	for f, facet := range facets {
		for _, v := range facet {
			if v < 0 || v >= np {
				return nil, mesh.NewValidationError(cmpt, b, -1, f,
					"facet index %d outside [0,%d)", v, np)
			}
		}
		var (
			p0 = vec(c.Points[facet[0]])
			e1 = r3.Sub(vec(c.Points[facet[1]]), p0)
			e2 = r3.Sub(vec(c.Points[facet[2]]), p0)
			n  = r3.Cross(e1, e2)
			nn = r3.Norm(n)
		)
		if nn == 0 {
			return nil, mesh.NewValidationError(cmpt, b, -1, f, "degenerate facet")
		}
		fg[f].Area = nn / 2
		fg[f].Normal = r3.Scale(1/nn, n)
		owners, ok := faces[mesh.NewFaceKey(facet)]
		if !ok {
			return nil, mesh.NewValidationError(cmpt, b, -1, f,
				"facet %v is not a face of any element", facet)
		}
		if len(owners) != 1 {
			return nil, mesh.NewValidationError(cmpt, b, -1, f,
				"facet %v is an interior face shared by %d elements", facet, len(owners))
		}
		// orient away from the vertex of the owner that is not on the facet
		elem := c.Elements[owners[0].Element]
		for _, v := range elem {
			if v != facet[0] && v != facet[1] && v != facet[2] {
				if r3.Dot(fg[f].Normal, r3.Sub(vec(c.Points[v]), p0)) > 0 {
					fg[f].Normal = r3.Scale(-1, fg[f].Normal)
				}
				break
			}
		}
	}
	return
}

func vec(p [3]float64) r3.Vec { return r3.Vec{X: p[0], Y: p[1], Z: p[2]} }

// FluxMatrix assembles the boundary mass matrix ∫_Γ φ_i φ_j dA over the
// given facets, element matrix A/12 (1 + δ_ij).
func FluxMatrix(np int, facets [][3]int, fg []FacetGeometry) utils.CSR {
	Q := utils.NewDOK(np, np)
	for f, facet := range facets {
		A := fg[f].Area
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				val := A / 12
				if i == j {
					val = A / 6
				}
				Q.AddAt(facet[i], facet[j], val)
			}
		}
	}
	return Q.ToCSR()
}

// DirectionalFluxMatrices assembles ∫_Γ φ_i φ_j (n·e_d) dA for d = x, y, z.
func DirectionalFluxMatrices(np int, facets [][3]int, fg []FacetGeometry) (Qd [3]utils.CSR) {
	var dok [3]utils.DOK
	for d := range dok {
		dok[d] = utils.NewDOK(np, np)
	}
	for f, facet := range facets {
		var (
			A = fg[f].Area
			n = [3]float64{fg[f].Normal.X, fg[f].Normal.Y, fg[f].Normal.Z}
		)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				val := A / 12
				if i == j {
					val = A / 6
				}
				for d := 0; d < 3; d++ {
					if n[d] != 0 {
						dok[d].AddAt(facet[i], facet[j], val*n[d])
					}
				}
			}
		}
	}
	for d := range dok {
		Qd[d] = dok[d].ToCSR()
	}
	return
}

// SurfaceGradient returns the N x 3 matrix G[i][d] = ∫_Γ φ_i n_d dA, the row
// sums of the directional flux matrices.
func SurfaceGradient(Qd [3]utils.CSR) (G *mat.Dense) {
	np, _ := Qd[0].Dims()
	G = mat.NewDense(np, 3, nil)
	for d := 0; d < 3; d++ {
		G.SetCol(d, Qd[d].RowSums())
	}
	return
}
