package utils

import (
	"fmt"
	"sort"
)

// ZCSR is a complex valued compressed sparse row matrix. It is built from
// linear combinations of real CSR operators, which is how every complex
// operator of the Bloch-Torrey system is formed.
type ZCSR struct {
	N      int
	Indptr []int
	Ind    []int
	Data   []complex128
}

// Term is one coefficient*matrix contribution to a complex combination.
type Term struct {
	Coef complex128
	A    CSR
}

// Combine returns sum_k Coef_k * A_k. All operands must be n x n.
func Combine(n int, terms ...Term) (Z ZCSR) {
	rows := make([]map[int]complex128, n)
	for k, term := range terms {
		nr, nc := term.A.Dims()
		if nr != n || nc != n {
			panic(fmt.Errorf("term %d is %dx%d, expected %dx%d", k, nr, nc, n, n))
		}
		if term.Coef == 0 {
			continue
		}
		c := term.Coef
		term.A.DoNonZero(func(i, j int, v float64) {
			if rows[i] == nil {
				rows[i] = make(map[int]complex128)
			}
			rows[i][j] += c * complex(v, 0)
		})
	}
	return zcsrFromRows(n, rows)
}

func zcsrFromRows(n int, rows []map[int]complex128) (Z ZCSR) {
	Z.N = n
	Z.Indptr = make([]int, n+1)
	for i, row := range rows {
		cols := make([]int, 0, len(row))
		for j := range row {
			cols = append(cols, j)
		}
		sort.Ints(cols)
		for _, j := range cols {
			Z.Ind = append(Z.Ind, j)
			Z.Data = append(Z.Data, row[j])
		}
		Z.Indptr[i+1] = len(Z.Ind)
	}
	return
}

// Shift returns M + alpha*Z, where M is real.
func (Z ZCSR) Shift(M CSR, alpha complex128) ZCSR {
	nr, nc := M.Dims()
	if nr != Z.N || nc != Z.N {
		panic(fmt.Errorf("shift operand is %dx%d, expected %dx%d", nr, nc, Z.N, Z.N))
	}
	rows := make([]map[int]complex128, Z.N)
	for i := 0; i < Z.N; i++ {
		rows[i] = make(map[int]complex128, Z.Indptr[i+1]-Z.Indptr[i])
		for p := Z.Indptr[i]; p < Z.Indptr[i+1]; p++ {
			rows[i][Z.Ind[p]] += alpha * Z.Data[p]
		}
	}
	M.DoNonZero(func(i, j int, v float64) {
		rows[i][j] += complex(v, 0)
	})
	return zcsrFromRows(Z.N, rows)
}

// At returns entry (i,j), zero when it is not stored.
func (Z ZCSR) At(i, j int) complex128 {
	lo, hi := Z.Indptr[i], Z.Indptr[i+1]
	p := lo + sort.SearchInts(Z.Ind[lo:hi], j)
	if p < hi && Z.Ind[p] == j {
		return Z.Data[p]
	}
	return 0
}

func (Z ZCSR) NNZ() int { return len(Z.Data) }

// MulVecTo sets dst = Z*x.
func (Z ZCSR) MulVecTo(dst, x []complex128) {
	if len(dst) != Z.N || len(x) != Z.N {
		panic(fmt.Errorf("dimension mismatch in MulVecTo: N=%d, len(x)=%d, len(dst)=%d",
			Z.N, len(x), len(dst)))
	}
	for i := 0; i < Z.N; i++ {
		var sum complex128
		for p := Z.Indptr[i]; p < Z.Indptr[i+1]; p++ {
			sum += Z.Data[p] * x[Z.Ind[p]]
		}
		dst[i] = sum
	}
}

// MulRealVecTo sets dst = A*x for a real sparse A and complex x.
func MulRealVecTo(A CSR, dst, x []complex128) {
	nr, nc := A.Dims()
	if len(dst) != nr || len(x) != nc {
		panic(fmt.Errorf("dimension mismatch in MulRealVecTo: A is %dx%d, len(x)=%d, len(dst)=%d",
			nr, nc, len(x), len(dst)))
	}
	for i := range dst {
		dst[i] = 0
	}
	A.DoNonZero(func(i, j int, v float64) {
		dst[i] += complex(v, 0) * x[j]
	})
}
