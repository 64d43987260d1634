package fem

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gobloch/mesh"
)

func twoLayerMesh(t *testing.T) *mesh.FEMesh {
	m, err := mesh.NewLayeredBox([]float64{0, 1, 2.5}, []int{2, 3}, 2, 2,
		[2]float64{0, 1}, [2]float64{0, 1})
	require.NoError(t, err)
	require.Equal(t, 3, m.NBoundaries())
	return m
}

// boundaries of twoLayerMesh: 0 and 1 are the outer surfaces, 2 the interface
func twoLayerCoefficients(kappaOuter, kappaInterface float64) Coefficients {
	return IsotropicCoefficients([]float64{2.e-3, 1.e-3}, []float64{math.Inf(1), 50},
		[]float64{kappaOuter, kappaOuter, kappaInterface}, GammaProton)
}

func TestAssembleMatrices_Dimensions(t *testing.T) {
	m := twoLayerMesh(t)
	mats, err := AssembleMatrices(context.Background(), m, twoLayerCoefficients(0, 0), Options{})
	require.NoError(t, err)

	n := m.Compartments[0].NPoints() + m.Compartments[1].NPoints()
	assert.Equal(t, n, mats.Dim())
	assert.Equal(t, []int{0, m.Compartments[0].NPoints(), n}, mats.Offsets)
	for _, A := range append([]interface{ Dims() (int, int) }{mats.M, mats.S, mats.R, mats.Q},
		mats.Mx[0], mats.Mx[1], mats.Mx[2]) {
		r, c := A.Dims()
		assert.Equal(t, n, r)
		assert.Equal(t, n, c)
	}
	assert.InDelta(t, 1.0, mats.Volumes[0], 1.e-12)
	assert.InDelta(t, 1.5, mats.Volumes[1], 1.e-12)
	assert.InDelta(t, 2.5, mats.TotalVolume(), 1.e-12)
	assert.Equal(t, GammaProton, mats.Gamma)
}

func TestAssembleMatrices_BlockDiagonalWithoutCoupling(t *testing.T) {
	m := twoLayerMesh(t)
	mats, err := AssembleMatrices(context.Background(), m, twoLayerCoefficients(0, 0), Options{})
	require.NoError(t, err)

	off := mats.Offsets[1]
	cmpt := func(i int) int {
		if i < off {
			return 0
		}
		return 1
	}
	for name, A := range map[string]interface {
		DoNonZero(func(i, j int, v float64))
	}{"M": mats.M, "S": mats.S, "R": mats.R, "Mx0": mats.Mx[0], "Mx1": mats.Mx[1], "Mx2": mats.Mx[2]} {
		A.DoNonZero(func(i, j int, v float64) {
			if cmpt(i) != cmpt(j) && v != 0 {
				t.Errorf("%s has off block entry (%d,%d) = %g", name, i, j, v)
			}
		})
	}
	assert.Equal(t, 0, mats.Q.NNZ())
	for c := range mats.MCmpts {
		assert.InDelta(t, mats.Volumes[c], mats.MCmpts[c].Sum(), 1.e-12)
	}
}

func TestAssembleMatrices_Relaxation(t *testing.T) {
	m := twoLayerMesh(t)
	mats, err := AssembleMatrices(context.Background(), m, twoLayerCoefficients(0, 0), Options{})
	require.NoError(t, err)
	// T2 = +Inf in compartment 0, T2 = 50 in compartment 1
	off := mats.Offsets[1]
	mats.R.DoNonZero(func(i, j int, v float64) {
		if i < off && v != 0 {
			t.Errorf("relaxation in compartment 0 at (%d,%d)", i, j)
		}
	})
	assert.InDelta(t, mats.M.At(off, off)/50, mats.R.At(off, off), 1.e-15)
	assert.InDelta(t, mats.Volumes[1]/50, mats.R.Sum(), 1.e-12)
}

func TestAssembleMatrices_Deterministic(t *testing.T) {
	m := twoLayerMesh(t)
	coeffs := twoLayerCoefficients(1.e-4, 3.e-3)
	a, err := AssembleMatrices(context.Background(), m, coeffs, Options{Parallelism: 1})
	require.NoError(t, err)
	b, err := AssembleMatrices(context.Background(), m, coeffs, Options{Parallelism: 4})
	require.NoError(t, err)
	assert.True(t, mat.Equal(a.M.ToDense(), b.M.ToDense()))
	assert.True(t, mat.Equal(a.S.ToDense(), b.S.ToDense()))
	assert.True(t, mat.Equal(a.R.ToDense(), b.R.ToDense()))
	assert.True(t, mat.Equal(a.Q.ToDense(), b.Q.ToDense()))
	for d := 0; d < 3; d++ {
		assert.True(t, mat.Equal(a.Mx[d].ToDense(), b.Mx[d].ToDense()))
	}
	for c := range a.G {
		assert.True(t, mat.Equal(a.G[c], b.G[c]))
	}
}

func TestAssembleMatrices_InterfaceCoupling(t *testing.T) {
	var (
		m     = twoLayerMesh(t)
		kappa = 3.e-3
	)
	mats, err := AssembleMatrices(context.Background(), m, twoLayerCoefficients(0, kappa), Options{})
	require.NoError(t, err)

	// exchange only: every row sums to zero and Q is symmetric
	for i, s := range mats.Q.RowSums() {
		assert.InDelta(t, 0, s, 1.e-15, "row %d", i)
	}
	Q := mats.Q.ToDense()
	assert.True(t, mat.EqualApprox(Q, Q.T(), 1.e-15))

	// diagonal blocks carry κ times the interface area, off blocks minus that
	var (
		off    = mats.Offsets[1]
		blocks [2][2]float64
	)
	cmptOf := func(i int) int {
		if i < off {
			return 0
		}
		return 1
	}
	mats.Q.DoNonZero(func(i, j int, v float64) {
		blocks[cmptOf(i)][cmptOf(j)] += v
	})
	// the interface is the unit square x = 1
	assert.InDelta(t, kappa, blocks[0][0], 1.e-14)
	assert.InDelta(t, kappa, blocks[1][1], 1.e-14)
	assert.InDelta(t, -kappa, blocks[0][1], 1.e-14)
	assert.InDelta(t, -kappa, blocks[1][0], 1.e-14)
}

func TestAssembleMatrices_OuterPermeability(t *testing.T) {
	m, err := mesh.NewBox(2, 2, 2, [3]float64{0, 0, 0}, [3]float64{1, 1, 1})
	require.NoError(t, err)
	coeffs := IsotropicCoefficients([]float64{1}, []float64{math.Inf(1)}, []float64{0.5}, 1)
	mats, err := AssembleMatrices(context.Background(), m, coeffs, Options{})
	require.NoError(t, err)
	// κ times the surface area of the unit cube
	assert.InDelta(t, 0.5*6, mats.Q.Sum(), 1.e-12)
}

func TestAssembleMatrices_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	{ // facet index outside the compartment's point range
		m := twoLayerMesh(t)
		m.Facets[1][2][0][1] = m.Compartments[1].NPoints() + 7
		_, err := AssembleMatrices(ctx, m, twoLayerCoefficients(0, 1), Options{})
		var ve *mesh.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, 1, ve.Compartment)
		assert.Equal(t, 2, ve.Boundary)
		assert.Equal(t, 0, ve.Facet)
	}
	{ // element with a repeated vertex
		m := twoLayerMesh(t)
		m.Compartments[0].Elements[3][3] = m.Compartments[0].Elements[3][1]
		_, err := AssembleMatrices(ctx, m, twoLayerCoefficients(0, 1), Options{})
		assert.ErrorIs(t, err, mesh.ErrMeshValidation)
	}
	{ // interface points that do not coincide
		m := twoLayerMesh(t)
		for i := range m.Compartments[1].Points {
			m.Compartments[1].Points[i][1] += 0.1
		}
		_, err := AssembleMatrices(ctx, m, twoLayerCoefficients(0, 1), Options{})
		assert.ErrorIs(t, err, mesh.ErrMeshValidation)
		// without permeability the interface is never matched
		_, err = AssembleMatrices(ctx, m, twoLayerCoefficients(0, 0), Options{})
		assert.NoError(t, err)
	}
	{ // a boundary shared by three compartments
		m, err := mesh.NewLayeredBox([]float64{0, 1, 2, 3}, []int{1, 1, 1}, 1, 1,
			[2]float64{0, 1}, [2]float64{0, 1})
		require.NoError(t, err)
		for c := 1; c < 3; c++ {
			m.Facets[c][0] = append(m.Facets[c][0], m.Facets[c][c]...)
		}
		coeffs := IsotropicCoefficients([]float64{1, 1, 1}, []float64{1, 1, 1},
			make([]float64, m.NBoundaries()), 1)
		_, err = AssembleMatrices(ctx, m, coeffs, Options{})
		var ve *mesh.ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, 0, ve.Boundary)
	}
}

func TestAssembleMatrices_CoefficientErrors(t *testing.T) {
	m := twoLayerMesh(t)
	bad := []Coefficients{
		IsotropicCoefficients([]float64{1}, []float64{1, 1}, []float64{0, 0, 0}, 1),
		IsotropicCoefficients([]float64{1, 1}, []float64{1, 0}, []float64{0, 0, 0}, 1),
		IsotropicCoefficients([]float64{1, 1}, []float64{1, 1}, []float64{0, 0}, 1),
		IsotropicCoefficients([]float64{1, 1}, []float64{1, 1}, []float64{0, -1, 0}, 1),
		IsotropicCoefficients([]float64{1, -1}, []float64{1, 1}, []float64{0, 0, 0}, 1),
	}
	for i, coeffs := range bad {
		_, err := AssembleMatrices(context.Background(), m, coeffs, Options{})
		assert.ErrorIs(t, err, ErrCoefficients, "case %d", i)
	}
	asym := twoLayerCoefficients(0, 0)
	asym.Diffusivity[0][0][1] = 1
	_, err := AssembleMatrices(context.Background(), m, asym, Options{})
	assert.ErrorIs(t, err, ErrCoefficients)

	// positive diagonal but eigenvalues {3, -1, 1}
	indefinite := twoLayerCoefficients(0, 0)
	indefinite.Diffusivity[1] = [3][3]float64{{1, 2, 0}, {2, 1, 0}, {0, 0, 1}}
	err = indefinite.Validate(m)
	assert.ErrorIs(t, err, ErrCoefficients)
	assert.Contains(t, err.Error(), "compartment 1")

	nonFinite := twoLayerCoefficients(0, 0)
	nonFinite.Diffusivity[0][2][2] = math.NaN()
	assert.ErrorIs(t, nonFinite.Validate(m), ErrCoefficients)

	aniso := twoLayerCoefficients(0, 0)
	aniso.Diffusivity[0] = [3][3]float64{{2, 1, 0}, {1, 2, 0}, {0, 0, 0}}
	assert.NoError(t, aniso.Validate(m))
}

func TestAssembleMatrices_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := AssembleMatrices(ctx, twoLayerMesh(t), twoLayerCoefficients(0, 0), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
