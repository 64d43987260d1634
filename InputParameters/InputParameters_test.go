package InputParameters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gobloch/fem"
	"github.com/notargets/gobloch/sequence"
	"github.com/notargets/gobloch/utils"
)

func TestParse_Example(t *testing.T) {
	ip := &InputParameters{}
	require.NoError(t, ip.Parse([]byte(Example)))
	assert.Equal(t, "Two layer slab", ip.Title)
	assert.Equal(t, []float64{0, 5, 10}, ip.Mesh.Layers)
	assert.Equal(t, []int{4, 4}, ip.Mesh.Cells)
	assert.Equal(t, [2]float64{0, 5}, ip.Mesh.YRange)
	assert.Equal(t, [2]float64{0, 5}, ip.Mesh.ZRange)
	assert.Equal(t, [][3]float64{{1, 0, 0}, {0, 1, 0}, {1, 1, 1}}, ip.Directions)
	assert.Equal(t, fem.GammaProton, ip.Gamma)
	assert.Equal(t, 0.5, ip.Theta)

	m, err := ip.NewMesh()
	require.NoError(t, err)
	require.Equal(t, 2, m.NCompartments())
	coeffs, err := ip.Coefficients(m)
	require.NoError(t, err)
	// outer-0, outer-1, interface-0-1
	assert.Equal(t, []float64{0, 0, 1.e-5}, coeffs.Permeability)
	assert.True(t, math.IsInf(coeffs.Relaxation[1], 1))
	assert.Equal(t, 1.e-3, coeffs.Diffusivity[1][2][2])
	assert.Equal(t, []float64{1, 1}, ip.Rho(2))

	ex, err := ip.Experiments()
	require.NoError(t, err)
	require.Len(t, ex, 9)
	assert.Equal(t, 0., ex[0].Gradient.Amplitude)
	assert.Equal(t, 1000., ex[3].BValue)
	assert.InDelta(t, 3000, ex[8].Gradient.BValue(ip.Gamma), 1.e-8)
	assert.InDelta(t, 1, ex[8].Direction.X*math.Sqrt(3), 1.e-14)
	assert.True(t, ex[8].Gradient.IntervalConstant())

	opts, err := ip.SolverOptions()
	require.NoError(t, err)
	assert.Equal(t, utils.Banded, opts.Factorization)
	assert.Equal(t, 50., opts.TimeStep)
}

func TestParse_Defaults(t *testing.T) {
	ip := &InputParameters{}
	require.NoError(t, ip.Parse([]byte("Diffusivity: [1]\nBValues: [10]\nSmallDelta: 1\nDelta: 2\nTheta: 0\n")))
	assert.Equal(t, 0., ip.Theta, "an explicit zero theta is kept")
	assert.Equal(t, 1., ip.TimeStep)
	assert.Equal(t, "PGSE", ip.Sequence)
	assert.Equal(t, []int{4}, ip.Mesh.Cells)
	assert.Equal(t, 4, ip.Mesh.NZ)
	m, err := ip.NewMesh()
	require.NoError(t, err)
	assert.Equal(t, 125, m.NPoints())
	p, err := ip.Profile()
	require.NoError(t, err)
	assert.Equal(t, sequence.PGSE{SmallDelta: 1, Delta: 2}, p)
}

func TestParse_MeshRanges(t *testing.T) {
	ip := &InputParameters{}
	require.NoError(t, ip.Parse([]byte(`
Mesh:
  Layers: [0, 2]
  Cells: [1]
  NY: 1
  NZ: 1
  YRange: [1, 7]
  ZRange: [-3, 4]
Diffusivity: [1]
`)))
	assert.Equal(t, [2]float64{1, 7}, ip.Mesh.YRange)
	assert.Equal(t, [2]float64{-3, 4}, ip.Mesh.ZRange)
	m, err := ip.NewMesh()
	require.NoError(t, err)
	lo, hi := [3]float64{1, 1, 1}, [3]float64{}
	for _, p := range m.Compartments[0].Points {
		for d := 0; d < 3; d++ {
			lo[d], hi[d] = math.Min(lo[d], p[d]), math.Max(hi[d], p[d])
		}
	}
	assert.Equal(t, [3]float64{0, 1, -3}, lo)
	assert.Equal(t, [3]float64{2, 7, 4}, hi)
}

func TestCoefficients_SinglePermeability(t *testing.T) {
	// one layer has only its outer boundary, which then takes the value
	ip := &InputParameters{}
	require.NoError(t, ip.Parse([]byte("Diffusivity: [1]\nPermeability: [0.25]\n")))
	m, err := ip.NewMesh()
	require.NoError(t, err)
	require.Equal(t, 1, m.NBoundaries())
	coeffs, err := ip.Coefficients(m)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25}, coeffs.Permeability)

	// with an interface, a single value goes to interfaces only
	ip = &InputParameters{}
	require.NoError(t, ip.Parse([]byte(Example)))
	ip.Permeability = []float64{0.5}
	m, err = ip.NewMesh()
	require.NoError(t, err)
	coeffs, err = ip.Coefficients(m)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0.5}, coeffs.Permeability)
}

func TestInputParameters_Errors(t *testing.T) {
	ip := &InputParameters{}
	require.NoError(t, ip.Parse([]byte(Example)))
	m, err := ip.NewMesh()
	require.NoError(t, err)

	bad := *ip
	bad.Permeability = []float64{1, 2}
	_, err = bad.Coefficients(m)
	assert.Error(t, err)

	bad = *ip
	bad.Diffusivity = []float64{1}
	_, err = bad.Coefficients(m)
	assert.ErrorIs(t, err, fem.ErrCoefficients)

	bad = *ip
	bad.Relaxation = []float64{1}
	_, err = bad.Coefficients(m)
	assert.Error(t, err)

	bad = *ip
	bad.Sequence = "trapezoid"
	_, err = bad.Experiments()
	assert.Error(t, err)

	bad = *ip
	bad.BValues = []float64{-1}
	_, err = bad.Experiments()
	assert.Error(t, err)

	bad = *ip
	bad.Directions = [][3]float64{{0, 0, 0}}
	_, err = bad.Experiments()
	assert.Error(t, err)

	bad = *ip
	bad.Factorization = "cholesky"
	_, err = bad.SolverOptions()
	assert.Error(t, err)

	bad = *ip
	bad.Theta = 2
	_, err = bad.SolverOptions()
	assert.Error(t, err)

	assert.Error(t, (&InputParameters{}).Parse([]byte("Theta: [1, 2]")))
}
