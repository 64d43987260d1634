package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDOK_ToCSR(t *testing.T) {
	D := NewDOK(3, 3)
	D.AddAt(0, 0, 1)
	D.AddAt(0, 0, 2)
	D.AddAt(2, 1, -4)
	D.AddAt(1, 2, 0.5)
	A := D.ToCSR()
	assert.Equal(t, 3, A.NNZ())
	assert.Equal(t, 3., A.At(0, 0))
	assert.Equal(t, -4., A.At(2, 1))
	assert.Equal(t, 0.5, A.At(1, 2))
	assert.Equal(t, 0., A.At(1, 1))
	assert.Equal(t, []float64{3, 0.5, -4}, A.RowSums())
	assert.Equal(t, -0.5, A.Sum())

	D.SetReadOnly("D")
	assert.Panics(t, func() { D.AddAt(0, 0, 1) })
}

func TestCSR_Deterministic(t *testing.T) {
	build := func() CSR {
		D := NewDOK(50, 50)
		for i := 0; i < 50; i++ {
			D.AddAt(i, (7*i)%50, float64(i)+0.1)
			D.AddAt((3*i)%50, i, 1./float64(i+1))
		}
		return D.ToCSR()
	}
	stored := func(A CSR) (out []triplet) {
		A.DoNonZero(func(i, j int, v float64) {
			out = append(out, triplet{i, j, v})
		})
		return
	}
	a, b := stored(build()), stored(build())
	assert.Equal(t, a, b)
	for k := 1; k < len(a); k++ {
		assert.True(t, a[k-1].i < a[k].i || (a[k-1].i == a[k].i && a[k-1].j < a[k].j))
	}
}

func TestCSR_MulVecToAndScale(t *testing.T) {
	sa := NewSparseAssembler(2, 3)
	sa.Add(0, 0, 1)
	sa.Add(0, 2, 2)
	sa.Add(1, 1, 3)
	sa.Add(1, 1, 1)
	A := sa.ToCSR("A")
	assert.Equal(t, "A", A.Name())
	dst := []float64{9, 9}
	A.MulVecTo(dst, []float64{1, 2, 3})
	assert.Equal(t, []float64{7, 8}, dst)
	assert.Panics(t, func() { A.MulVecTo(dst, []float64{1, 2}) })

	B := A.Scale(-2)
	assert.Equal(t, -8., B.At(1, 1))
	assert.Equal(t, 4., A.At(1, 1))
	assert.Panics(t, func() { sa.Add(2, 0, 1) })
}

func TestBlockDiag(t *testing.T) {
	var (
		a = NewDOK(2, 2)
		b = NewDOK(1, 1)
	)
	a.AddAt(0, 1, 1)
	a.AddAt(1, 0, 2)
	b.AddAt(0, 0, 5)
	A := BlockDiag(a.ToCSR(), NewCSRZero(2, 2), b.ToCSR())
	r, c := A.Dims()
	require.Equal(t, 5, r)
	require.Equal(t, 5, c)
	expected := mat.NewDense(5, 5, []float64{
		0, 1, 0, 0, 0,
		2, 0, 0, 0, 0,
		0, 0, 0, 0, 0,
		0, 0, 0, 0, 0,
		0, 0, 0, 0, 5,
	})
	assert.True(t, mat.Equal(expected, A.ToDense()))

	rect := NewSparseAssembler(2, 3).ToCSR("rect")
	assert.Panics(t, func() { BlockDiag(rect) })
}

func TestSparseAssembler_AddBlock(t *testing.T) {
	b := NewDOK(2, 2)
	b.AddAt(0, 0, 1)
	b.AddAt(1, 1, 2)
	sa := NewSparseAssembler(4, 4)
	sa.AddBlock(0, 2, -1, b.ToCSR())
	sa.AddBlock(2, 0, -1, b.ToCSR())
	sa.AddBlock(0, 0, 1, b.ToCSR())
	Q := sa.ToCSR("Q")
	assert.Equal(t, -1., Q.At(0, 2))
	assert.Equal(t, -2., Q.At(3, 1))
	assert.Equal(t, 2., Q.At(1, 1))
	assert.Equal(t, []float64{0, 0, -1, -2}, Q.RowSums())
	assert.Equal(t, 0, NewCSRZero(3, 3).NNZ())
}
