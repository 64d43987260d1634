package fem

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gobloch/mesh"
	"github.com/notargets/gobloch/utils"
)

func referenceTet() [4][3]float64 {
	return [4][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

func TestElementGeometry_ReferenceTet(t *testing.T) {
	eg, ok := NewElementGeometry(referenceTet())
	require.True(t, ok)
	assert.InDelta(t, 1./6., eg.Volume, 1.e-14)
	expected := [4][3]float64{{-1, -1, -1}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for i := 0; i < 4; i++ {
		assert.InDelta(t, expected[i][0], eg.Grad[i].X, 1.e-12)
		assert.InDelta(t, expected[i][1], eg.Grad[i].Y, 1.e-12)
		assert.InDelta(t, expected[i][2], eg.Grad[i].Z, 1.e-12)
	}
}

func TestElementGeometry_TranslatedAndScaled(t *testing.T) {
	p := referenceTet()
	for i := range p {
		for d := 0; d < 3; d++ {
			p[i][d] = 100 + 2*p[i][d]
		}
	}
	eg, ok := NewElementGeometry(p)
	require.True(t, ok)
	assert.InDelta(t, 8./6., eg.Volume, 1.e-10)
	assert.InDelta(t, 0.5, eg.Grad[1].X, 1.e-10)
}

func TestElementGeometry_Degenerate(t *testing.T) {
	flat := [4][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
	_, ok := NewElementGeometry(flat)
	assert.False(t, ok)
	collapsed := [4][3]float64{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 1}}
	_, ok = NewElementGeometry(collapsed)
	assert.False(t, ok)
}

func TestGeometries_DegenerateElementIsValidationError(t *testing.T) {
	c := mesh.Compartment{
		Points:   [][3]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1, 1, 0}},
		Elements: [][4]int{{0, 1, 2, 3}, {0, 1, 2, 4}},
	}
	_, err := Geometries(3, c)
	require.Error(t, err)
	var ve *mesh.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 3, ve.Compartment)
	assert.Equal(t, 1, ve.Element)
	assert.ErrorIs(t, err, mesh.ErrMeshValidation)
}

func unitBoxCompartment(t *testing.T) (*mesh.FEMesh, []ElementGeometry) {
	m, err := mesh.NewBox(2, 2, 2, [3]float64{0, 0, 0}, [3]float64{1, 2, 3})
	require.NoError(t, err)
	geo, err := Geometries(0, m.Compartments[0])
	require.NoError(t, err)
	return m, geo
}

func TestMassMatrix_SymmetricPositiveDefinite(t *testing.T) {
	m, geo := unitBoxCompartment(t)
	M := MassMatrix(m.Compartments[0], geo, nil)
	assert.InDelta(t, 6.0, M.Sum(), 1.e-12)

	D := M.ToDense()
	n, _ := D.Dims()
	assert.True(t, mat.EqualApprox(D, D.T(), 1.e-15))
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, D.At(i, j))
		}
	}
	var chol mat.Cholesky
	assert.True(t, chol.Factorize(sym), "mass matrix is not positive definite")
}

func TestMassMatrix_FirstMoment(t *testing.T) {
	m, geo := unitBoxCompartment(t)
	var (
		c      = m.Compartments[0]
		np     = c.NPoints()
		M      = MassMatrix(c, geo, nil)
		coord  = make([]float64, np)
		Mx     = make([]float64, np)
		ones   = utils.ConstArray(np, 1)
		Mcoord = make([]float64, np)
	)
	// ∫ x_d dV over [0,1]x[0,2]x[0,3] is volume times the centroid
	centroid := [3]float64{0.5, 1, 1.5}
	for d := 0; d < 3; d++ {
		for i, p := range c.Points {
			coord[i] = p[d]
		}
		W := MassMatrix(c, geo, coord)
		assert.InDelta(t, 6*centroid[d], W.Sum(), 1.e-10)
		// the coordinate is P1, so Mx 1 = M x
		W.MulVecTo(Mx, ones)
		M.MulVecTo(Mcoord, coord)
		assert.InDeltaSlice(t, Mcoord, Mx, 1.e-12)
	}
}

func TestStiffnessMatrix_RowSumsVanish(t *testing.T) {
	m, geo := unitBoxCompartment(t)
	identity := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	S := StiffnessMatrix(m.Compartments[0], geo, identity)
	for i, s := range S.RowSums() {
		assert.InDelta(t, 0, s, 1.e-12, "row %d", i)
	}
	// x^T S x = ∫|∇x|^2 = volume for the coordinate field x
	var (
		c  = m.Compartments[0]
		x  = make([]float64, c.NPoints())
		Sx = make([]float64, c.NPoints())
	)
	for i, p := range c.Points {
		x[i] = p[0]
	}
	S.MulVecTo(Sx, x)
	assert.InDelta(t, 6.0, floats.Dot(x, Sx), 1.e-10)
}

func TestStiffnessMatrix_Anisotropic(t *testing.T) {
	m, geo := unitBoxCompartment(t)
	D := [3][3]float64{{2, 0, 0}, {0, 3, 0}, {0, 0, 5}}
	var (
		c  = m.Compartments[0]
		S  = StiffnessMatrix(c, geo, D)
		x  = make([]float64, c.NPoints())
		Sx = make([]float64, c.NPoints())
	)
	for d := 0; d < 3; d++ {
		for i, p := range c.Points {
			x[i] = p[d]
		}
		S.MulVecTo(Sx, x)
		assert.InDelta(t, 6*D[d][d], floats.Dot(x, Sx), 1.e-9)
	}
}

func TestFacets_OutwardNormalsAndSurfaceGradient(t *testing.T) {
	m, _ := unitBoxCompartment(t)
	var (
		c      = m.Compartments[0]
		np     = c.NPoints()
		facets = m.Facets[0][0]
	)
	fg, err := Facets(0, 0, c, c.BuildFaceMap(), facets)
	require.NoError(t, err)
	var area float64
	for _, f := range fg {
		area += f.Area
	}
	assert.InDelta(t, 2*(1*2+1*3+2*3), area, 1.e-12)
	F := FluxMatrix(np, facets, fg)
	assert.InDelta(t, area, F.Sum(), 1.e-12)

	G := SurfaceGradient(DirectionalFluxMatrices(np, facets, fg))
	// closed surface: ∫ n dA = 0, and ∫ x_d n_d dA = volume
	for d := 0; d < 3; d++ {
		col := mat.Col(nil, d, G)
		assert.InDelta(t, 0, floats.Sum(col), 1.e-12)
		x := make([]float64, np)
		for i, p := range c.Points {
			x[i] = p[d]
		}
		assert.InDelta(t, 6.0, floats.Dot(col, x), 1.e-12)
	}
}

func TestFacets_Errors(t *testing.T) {
	m, _ := unitBoxCompartment(t)
	c := m.Compartments[0]
	faces := c.BuildFaceMap()

	_, err := Facets(0, 2, c, faces, [][3]int{{0, 1, c.NPoints()}})
	var ve *mesh.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 2, ve.Boundary)
	assert.Equal(t, 0, ve.Facet)

	// corners (0,0,0), (1,0,0), (0,2,0) are not a face of any tet
	_, err = Facets(0, 0, c, faces, [][3]int{{0, 2, 6}})
	assert.ErrorIs(t, err, mesh.ErrMeshValidation)

	var interior mesh.FaceKey
	for key, owners := range faces {
		if len(owners) == 2 {
			interior = key
			break
		}
	}
	_, err = Facets(0, 1, c, faces, [][3]int{interior})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 1, ve.Boundary)
	assert.Contains(t, err.Error(), "interior face")
}

func TestElementGeometry_GradientsSumToZero(t *testing.T) {
	// basis functions sum to one, so their gradients sum to zero
	p := [4][3]float64{{0.1, 0.2, 0.3}, {1.7, 0.1, 0.4}, {0.3, 1.2, 0.2}, {0.5, 0.4, 2.1}}
	eg, ok := NewElementGeometry(p)
	require.True(t, ok)
	var sx, sy, sz float64
	for _, g := range eg.Grad {
		sx += g.X
		sy += g.Y
		sz += g.Z
	}
	assert.InDelta(t, 0, math.Abs(sx)+math.Abs(sy)+math.Abs(sz), 1.e-12)
}
