package fem

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gobloch/mesh"
	"github.com/notargets/gobloch/utils"
)

type Options struct {
	Parallelism int // Number of compartment workers, <= 0 uses every CPU
	Verbose     bool
}

// Matrices is the assembled Bloch-Torrey system. Global operators are block
// diagonal in compartment order except for the coupling blocks of Q. All
// members are read only after AssembleMatrices returns and may be shared by
// concurrent solves.
type Matrices struct {
	M, S, R, Q utils.CSR
	Mx         [3]utils.CSR

	MCmpts    []utils.CSR
	SCmpts    []utils.CSR
	MxCmpts   [][3]utils.CSR
	FluxCmpts [][]utils.CSR // Boundary mass matrix per compartment and boundary
	G         []*mat.Dense  // Surface gradient term per compartment, N_c x 3
	Volumes   []float64
	Offsets   []int // First global DOF per compartment, last entry is Dim()
	Gamma     float64
}

func (mats *Matrices) Dim() int           { return mats.Offsets[len(mats.Offsets)-1] }
func (mats *Matrices) NCompartments() int { return len(mats.MCmpts) }

// TotalVolume is the sum of the compartment volumes.
func (mats *Matrices) TotalVolume() float64 { return floats.Sum(mats.Volumes) }

// compartmentMatrices is the immutable per compartment record produced by a
// worker before the reduction.
type compartmentMatrices struct {
	M, S   utils.CSR
	Mx     [3]utils.CSR
	Flux   []utils.CSR
	G      *mat.Dense
	Volume float64
}

// AssembleMatrices builds the finite element operators of the mesh. The
// per compartment work runs in parallel; the block diagonal reduction and
// the flux coupling follow once every compartment is done.
func AssembleMatrices(ctx context.Context, m *mesh.FEMesh, coeffs Coefficients, opts Options) (mats *Matrices, err error) {
	var (
		start = time.Now()
	)
	if err = m.Validate(); err != nil {
		return
	}
	if err = coeffs.Validate(m); err != nil {
		return
	}
	var (
		nc      = m.NCompartments()
		results = make([]compartmentMatrices, nc)
		errs    = make([]error, nc)
		pm      = utils.NewPartitionMap(utils.ParallelDegree(opts.Parallelism, nc), nc)
	)
	pm.ForEachBucket(func(_, kMin, kMax int) {
		for c := kMin; c < kMax; c++ {
			if errs[c] = ctx.Err(); errs[c] != nil {
				continue
			}
			results[c], errs[c] = assembleCompartment(c, m.Compartments[c], m.Facets[c],
				coeffs.Diffusivity[c])
		}
	})
	// Report the lowest failing compartment so errors do not depend on scheduling
	for c := range errs {
		if errs[c] != nil {
			return nil, fmt.Errorf("assembling compartment %d: %w", c, errs[c])
		}
	}
	mats = &Matrices{
		MCmpts:    make([]utils.CSR, nc),
		SCmpts:    make([]utils.CSR, nc),
		MxCmpts:   make([][3]utils.CSR, nc),
		FluxCmpts: make([][]utils.CSR, nc),
		G:         make([]*mat.Dense, nc),
		Volumes:   make([]float64, nc),
		Offsets:   m.Offsets(),
		Gamma:     coeffs.Gamma,
	}
	var (
		RCmpts = make([]utils.CSR, nc)
		MxD    [3][]utils.CSR
	)
	for c, r := range results {
		mats.MCmpts[c], mats.SCmpts[c], mats.MxCmpts[c] = r.M, r.S, r.Mx
		mats.FluxCmpts[c], mats.G[c], mats.Volumes[c] = r.Flux, r.G, r.Volume
		if T2 := coeffs.Relaxation[c]; math.IsInf(T2, 1) {
			n, _ := r.M.Dims()
			RCmpts[c] = utils.NewCSRZero(n, n)
		} else {
			RCmpts[c] = r.M.Scale(1 / T2)
		}
		for d := 0; d < 3; d++ {
			MxD[d] = append(MxD[d], r.Mx[d])
		}
	}
	mats.M = utils.BlockDiag(mats.MCmpts...)
	mats.M.SetReadOnly("M")
	mats.S = utils.BlockDiag(mats.SCmpts...)
	mats.S.SetReadOnly("S")
	mats.R = utils.BlockDiag(RCmpts...)
	mats.R.SetReadOnly("R")
	for d := 0; d < 3; d++ {
		mats.Mx[d] = utils.BlockDiag(MxD[d]...)
		mats.Mx[d].SetReadOnly(fmt.Sprintf("Mx[%d]", d))
	}
	if mats.Q, err = AssembleFlux(m, mats.FluxCmpts, mats.Offsets, coeffs.Permeability); err != nil {
		return nil, err
	}
	if opts.Verbose {
		for c := range results {
			log.Printf("compartment %d: %d points, %d tets, volume %.6g",
				c, m.Compartments[c].NPoints(), m.Compartments[c].NElements(), mats.Volumes[c])
		}
		log.Printf("assembled %d DOFs in %d compartments using %d workers in %v (nnz M=%d, S=%d, Q=%d)",
			mats.Dim(), nc, pm.ParallelDegree, time.Since(start),
			mats.M.NNZ(), mats.S.NNZ(), mats.Q.NNZ())
	}
	return
}

func assembleCompartment(c int, cmpt mesh.Compartment, facets [][][3]int,
	D [3][3]float64) (r compartmentMatrices, err error) {
	var (
		np  = cmpt.NPoints()
		geo []ElementGeometry
	)
	if geo, err = Geometries(c, cmpt); err != nil {
		return
	}
	r.M = MassMatrix(cmpt, geo, nil)
	r.S = StiffnessMatrix(cmpt, geo, D)
	coord := make([]float64, np)
	for d := 0; d < 3; d++ {
		for i, p := range cmpt.Points {
			coord[i] = p[d]
		}
		r.Mx[d] = MassMatrix(cmpt, geo, coord)
	}
	vols := make([]float64, len(geo))
	for k := range geo {
		vols[k] = geo[k].Volume
	}
	r.Volume = floats.Sum(vols)

	var (
		faces = cmpt.BuildFaceMap()
	)
	r.G = mat.NewDense(np, 3, nil)
	r.Flux = make([]utils.CSR, len(facets))
	for b, fb := range facets {
		if len(fb) == 0 {
			r.Flux[b] = utils.NewCSRZero(np, np)
			continue
		}
		var fg []FacetGeometry
		if fg, err = Facets(c, b, cmpt, faces, fb); err != nil {
			return
		}
		r.Flux[b] = FluxMatrix(np, fb, fg)
		r.G.Add(r.G, SurfaceGradient(DirectionalFluxMatrices(np, fb, fg)))
	}
	return
}
