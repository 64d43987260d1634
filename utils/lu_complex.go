package utils

import (
	"errors"
	"fmt"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/lapack/lapack64"
)

// ErrSingular is returned when a factorization meets a zero pivot.
var ErrSingular = errors.New("singular matrix")

// relative pivot threshold for the banded factorization
const pivotTol = 1.e-14

// backend names the BLAS/LAPACK implementation behind the Dense path,
// replaced by the netlib build.
var backend = "gonum"

// Backend reports the BLAS/LAPACK implementation used by Dense, "gonum" or
// "netlib" when built with the cgo and netlib tags.
func Backend() string { return backend }

type FactorizationKind uint8

const (
	// Banded reorders with reverse Cuthill-McKee and runs a complex banded
	// LU with partial pivoting. Storage grows with the bandwidth, not n^2.
	Banded FactorizationKind = iota
	// Dense solves the real equivalent 2n x 2n system with LAPACK getrf.
	Dense
)

func (k FactorizationKind) String() string {
	switch k {
	case Banded:
		return "banded"
	case Dense:
		return "dense"
	}
	return fmt.Sprintf("FactorizationKind(%d)", uint8(k))
}

func NewFactorizationKind(label string) (FactorizationKind, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "banded":
		return Banded, nil
	case "dense":
		return Dense, nil
	}
	return 0, fmt.Errorf("unknown factorization %q, expected banded or dense", label)
}

// Factorization solves A x = b for a factorized complex operator. The
// implementations keep scratch space and must not be shared between
// goroutines.
type Factorization interface {
	Dim() int
	SolveTo(dst, b []complex128)
}

// Factorize factorizes A with the requested method.
func Factorize(kind FactorizationKind, A ZCSR) (Factorization, error) {
	switch kind {
	case Banded:
		return newBandedLU(A)
	case Dense:
		return newDenseLU(A)
	}
	return nil, fmt.Errorf("unknown factorization %v", kind)
}

type bandRow struct {
	lo int
	v  []complex128 // v[j-lo] for columns lo..lo+len(v)-1
}

func (r *bandRow) hi() int { return r.lo + len(r.v) - 1 }

func (r *bandRow) at(j int) complex128 {
	if j < r.lo || j > r.hi() {
		return 0
	}
	return r.v[j-r.lo]
}

func (r *bandRow) growTo(hi int) {
	for r.hi() < hi {
		r.v = append(r.v, 0)
	}
}

type multiplier struct {
	pos int
	m   complex128
}

type bandedLU struct {
	n        int
	perm     []int
	rows     []*bandRow
	ipiv     []int
	lower    [][]multiplier
	work     []complex128
	kl, ku   int
	maxEntry float64
}

func newBandedLU(A ZCSR) (lu *bandedLU, err error) {
	var (
		n     = A.N
		perm  = ReverseCuthillMcKee(A)
		iperm = InvertPermutation(perm)
	)
	lu = &bandedLU{
		n:     n,
		perm:  perm,
		rows:  make([]*bandRow, n),
		ipiv:  make([]int, n),
		lower: make([][]multiplier, n),
		work:  make([]complex128, n),
	}
	lu.kl, lu.ku = Bandwidth(A, perm)
	for ni := 0; ni < n; ni++ {
		var (
			old    = perm[ni]
			lo, hi = ni, ni
		)
		for p := A.Indptr[old]; p < A.Indptr[old+1]; p++ {
			nj := iperm[A.Ind[p]]
			if nj < lo {
				lo = nj
			}
			if nj > hi {
				hi = nj
			}
		}
		r := &bandRow{lo: lo, v: make([]complex128, hi-lo+1)}
		for p := A.Indptr[old]; p < A.Indptr[old+1]; p++ {
			nj := iperm[A.Ind[p]]
			r.v[nj-lo] += A.Data[p]
			if a := cmplx.Abs(A.Data[p]); a > lu.maxEntry {
				lu.maxEntry = a
			}
		}
		lu.rows[ni] = r
	}
	if err = lu.factorize(); err != nil {
		return nil, err
	}
	return
}

func (lu *bandedLU) factorize() error {
	var (
		n   = lu.n
		tol = pivotTol * lu.maxEntry
	)
	for k := 0; k < n; k++ {
		last := k + lu.kl
		if last > n-1 {
			last = n - 1
		}
		best, bestAbs := k, cmplx.Abs(lu.rows[k].at(k))
		for i := k + 1; i <= last; i++ {
			if a := cmplx.Abs(lu.rows[i].at(k)); a > bestAbs {
				best, bestAbs = i, a
			}
		}
		if bestAbs == 0 || bestAbs <= tol {
			return fmt.Errorf("%w: pivot %d has magnitude %g (max entry %g)",
				ErrSingular, k, bestAbs, lu.maxEntry)
		}
		lu.ipiv[k] = best
		lu.rows[k], lu.rows[best] = lu.rows[best], lu.rows[k]
		var (
			p     = lu.rows[k]
			pivot = p.at(k)
			phi   = p.hi()
		)
		for i := k + 1; i <= last; i++ {
			r := lu.rows[i]
			a := r.at(k)
			if a == 0 {
				continue
			}
			m := a / pivot
			r.growTo(phi)
			for j := k + 1; j <= phi; j++ {
				r.v[j-r.lo] -= m * p.v[j-p.lo]
			}
			// column k is eliminated, drop it from the row window
			r.v = r.v[k+1-r.lo:]
			r.lo = k + 1
			lu.lower[k] = append(lu.lower[k], multiplier{i, m})
		}
	}
	return nil
}

func (lu *bandedLU) Dim() int { return lu.n }

// Bandwidth reports the lower and upper bandwidth after reordering.
func (lu *bandedLU) Bandwidth() (kl, ku int) { return lu.kl, lu.ku }

func (lu *bandedLU) SolveTo(dst, b []complex128) {
	if len(dst) != lu.n || len(b) != lu.n {
		panic(fmt.Errorf("dimension mismatch in SolveTo: n=%d, len(b)=%d, len(dst)=%d",
			lu.n, len(b), len(dst)))
	}
	y := lu.work
	for i, old := range lu.perm {
		y[i] = b[old]
	}
	for k := 0; k < lu.n; k++ {
		if pk := lu.ipiv[k]; pk != k {
			y[k], y[pk] = y[pk], y[k]
		}
		for _, lm := range lu.lower[k] {
			y[lm.pos] -= lm.m * y[k]
		}
	}
	for k := lu.n - 1; k >= 0; k-- {
		var (
			r = lu.rows[k]
			s = y[k]
		)
		for j := k + 1; j <= r.hi(); j++ {
			s -= r.v[j-r.lo] * y[j]
		}
		y[k] = s / r.v[k-r.lo]
	}
	for i, old := range lu.perm {
		dst[old] = y[i]
	}
}

type denseLU struct {
	n    int
	a    blas64.General
	ipiv []int
	rhs  []float64
}

// newDenseLU factorizes the real form [[Re -Im] [Im Re]] of A.
func newDenseLU(A ZCSR) (lu *denseLU, err error) {
	var (
		n  = A.N
		n2 = 2 * n
	)
	lu = &denseLU{
		n:    n,
		a:    blas64.General{Rows: n2, Cols: n2, Stride: n2, Data: make([]float64, n2*n2)},
		ipiv: make([]int, n2),
		rhs:  make([]float64, n2),
	}
	set := func(i, j int, v float64) { lu.a.Data[i*n2+j] += v }
	for i := 0; i < n; i++ {
		for p := A.Indptr[i]; p < A.Indptr[i+1]; p++ {
			var (
				j      = A.Ind[p]
				re, im = real(A.Data[p]), imag(A.Data[p])
			)
			set(i, j, re)
			set(i, j+n, -im)
			set(i+n, j, im)
			set(i+n, j+n, re)
		}
	}
	if ok := lapack64.Getrf(lu.a, lu.ipiv); !ok {
		return nil, fmt.Errorf("%w: getrf reported an exactly zero pivot", ErrSingular)
	}
	return
}

func (lu *denseLU) Dim() int { return lu.n }

func (lu *denseLU) SolveTo(dst, b []complex128) {
	if len(dst) != lu.n || len(b) != lu.n {
		panic(fmt.Errorf("dimension mismatch in SolveTo: n=%d, len(b)=%d, len(dst)=%d",
			lu.n, len(b), len(dst)))
	}
	for i, v := range b {
		lu.rhs[i] = real(v)
		lu.rhs[i+lu.n] = imag(v)
	}
	rhs := blas64.General{Rows: 2 * lu.n, Cols: 1, Stride: 1, Data: lu.rhs}
	lapack64.Getrs(blas.NoTrans, lu.a, rhs, lu.ipiv)
	for i := range dst {
		dst[i] = complex(lu.rhs[i], lu.rhs[i+lu.n])
	}
}
