package utils

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// DOK is the scatter-add accumulator used during element assembly.
type DOK struct {
	M        *sparse.DOK
	readOnly bool
	name     string
}

func NewDOK(nr, nc int) (R DOK) {
	R = DOK{
		sparse.NewDOK(nr, nc),
		false,
		"unnamed - hint: pass a variable name to SetReadOnly()",
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m DOK) T() mat.Matrix       { return m.M.T() }

// AddAt accumulates val into entry (i,j).
func (m DOK) AddAt(i, j int, val float64) {
	m.checkWritable()
	m.M.Set(i, j, m.M.At(i, j)+val)
}

func (m *DOK) SetReadOnly(name ...string) {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
}

func (m DOK) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

// ToCSR compresses the accumulator. Entries are visited in sorted row/column
// order so two identical accumulators always produce identical CSR arrays.
func (m DOK) ToCSR() CSR {
	var (
		nr, nc  = m.Dims()
		entries = make([]triplet, 0, m.M.NNZ())
	)
	m.M.DoNonZero(func(i, j int, v float64) {
		entries = append(entries, triplet{i, j, v})
	})
	return newCSRFromTriplets(nr, nc, entries, m.name)
}

type triplet struct {
	i, j int
	v    float64
}

func newCSRFromTriplets(nr, nc int, entries []triplet, name string) CSR {
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].i != entries[b].i {
			return entries[a].i < entries[b].i
		}
		return entries[a].j < entries[b].j
	})
	var (
		ia           = make([]int, nr+1)
		ja           = make([]int, 0, len(entries))
		data         = make([]float64, 0, len(entries))
		lastI, lastJ = -1, -1
	)
	for _, e := range entries {
		if e.i == lastI && e.j == lastJ {
			data[len(data)-1] += e.v
			continue
		}
		ja = append(ja, e.j)
		data = append(data, e.v)
		ia[e.i+1]++
		lastI, lastJ = e.i, e.j
	}
	for i := 0; i < nr; i++ {
		ia[i+1] += ia[i]
	}
	return CSR{
		M:    sparse.NewCSR(nr, nc, ia, ja, data),
		name: name,
	}
}

// CSR is an immutable compressed sparse row matrix.
type CSR struct {
	M        *sparse.CSR
	readOnly bool
	name     string
}

// NewCSRZero returns an nr x nc matrix with no stored entries.
func NewCSRZero(nr, nc int) CSR {
	return CSR{
		M:    sparse.NewCSR(nr, nc, make([]int, nr+1), []int{}, []float64{}),
		name: "zero",
	}
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m CSR) Dims() (r, c int)    { return m.M.Dims() }
func (m CSR) At(i, j int) float64 { return m.M.At(i, j) }
func (m CSR) T() mat.Matrix       { return m.M.T() }
func (m CSR) NNZ() int            { return m.M.NNZ() }
func (m CSR) Name() string        { return m.name }

func (m CSR) DoNonZero(fn func(i, j int, v float64)) { m.M.DoNonZero(fn) }

func (m *CSR) SetReadOnly(name ...string) {
	if len(name) != 0 {
		m.name = name[0]
	}
	m.readOnly = true
}

// MulVecTo sets dst = A*x.
func (m CSR) MulVecTo(dst, x []float64) {
	nr, nc := m.Dims()
	if len(dst) != nr || len(x) != nc {
		panic(fmt.Errorf("dimension mismatch in MulVecTo: A is %dx%d, len(x)=%d, len(dst)=%d",
			nr, nc, len(x), len(dst)))
	}
	for i := range dst {
		dst[i] = 0
	}
	m.DoNonZero(func(i, j int, v float64) {
		dst[i] += v * x[j]
	})
}

// RowSums returns A*1.
func (m CSR) RowSums() (s []float64) {
	nr, _ := m.Dims()
	s = make([]float64, nr)
	m.DoNonZero(func(i, _ int, v float64) {
		s[i] += v
	})
	return
}

// Sum returns the sum of all entries.
func (m CSR) Sum() (s float64) {
	m.DoNonZero(func(_, _ int, v float64) {
		s += v
	})
	return
}

// Scale returns a*A as a new matrix.
func (m CSR) Scale(a float64) CSR {
	nr, nc := m.Dims()
	entries := make([]triplet, 0, m.NNZ())
	m.DoNonZero(func(i, j int, v float64) {
		entries = append(entries, triplet{i, j, a * v})
	})
	return newCSRFromTriplets(nr, nc, entries, m.name)
}

// ToDense expands the matrix, for tests and small diagnostics only.
func (m CSR) ToDense() *mat.Dense {
	nr, nc := m.Dims()
	D := mat.NewDense(nr, nc, nil)
	m.DoNonZero(func(i, j int, v float64) {
		D.Set(i, j, D.At(i, j)+v)
	})
	return D
}

// BlockDiag concatenates square blocks along the diagonal.
func BlockDiag(blocks ...CSR) CSR {
	var (
		n       int
		nnz     int
		offsets = make([]int, len(blocks))
	)
	for b, B := range blocks {
		nr, nc := B.Dims()
		if nr != nc {
			panic(fmt.Errorf("block %d is not square: %dx%d", b, nr, nc))
		}
		offsets[b] = n
		n += nr
		nnz += B.NNZ()
	}
	entries := make([]triplet, 0, nnz)
	for b, B := range blocks {
		off := offsets[b]
		B.DoNonZero(func(i, j int, v float64) {
			entries = append(entries, triplet{i + off, j + off, v})
		})
	}
	return newCSRFromTriplets(n, n, entries, "blockdiag")
}

// SparseAssembler collects global triplets from blocks placed at arbitrary
// row/column offsets, e.g. off-diagonal coupling blocks.
type SparseAssembler struct {
	nr, nc  int
	entries []triplet
}

func NewSparseAssembler(nr, nc int) *SparseAssembler {
	return &SparseAssembler{nr: nr, nc: nc}
}

func (sa *SparseAssembler) Add(i, j int, v float64) {
	if i < 0 || i >= sa.nr || j < 0 || j >= sa.nc {
		panic(fmt.Errorf("entry (%d,%d) outside %dx%d matrix", i, j, sa.nr, sa.nc))
	}
	sa.entries = append(sa.entries, triplet{i, j, v})
}

// AddBlock adds a*B with its (0,0) entry placed at (rowOff, colOff).
func (sa *SparseAssembler) AddBlock(rowOff, colOff int, a float64, B CSR) {
	B.DoNonZero(func(i, j int, v float64) {
		sa.Add(i+rowOff, j+colOff, a*v)
	})
}

func (sa *SparseAssembler) ToCSR(name string) CSR {
	entries := make([]triplet, len(sa.entries))
	copy(entries, sa.entries)
	R := newCSRFromTriplets(sa.nr, sa.nc, entries, name)
	R.SetReadOnly(name)
	return R
}
