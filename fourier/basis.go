// Package fourier decomposes vectors and tensors indexed by Z/pZ, or by the
// p*p input grid, into trigonometric components.
//
// A Basis is built once by NewNeelBasis or NewSinBasis and never mutated;
// every analysis function takes it explicitly.
//
// Grid tensors are *mat.Dense values with p*p rows (row x*p+y holds input
// (x, y)) and any number of columns, one per flattened trailing dimension.
package fourier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Basis is a set of p basis vectors over R^p stored one per row.
type Basis struct {
	P       int
	Vectors *mat.Dense // (p x p)
	Names   []string
}

// NewNeelBasis builds the orthonormal constant/cos/sin basis: row 0 is
// 1/sqrt(p), then cos k and sin k for k = 1..p/2. For even p the sin(p/2)
// vector is identically zero and is left out, so there are always p rows.
func NewNeelBasis(p int) (*Basis, error) {
	if p < 2 {
		return nil, fmt.Errorf("fourier: NewNeelBasis: p must be >= 2, got %d", p)
	}
	rows := make([][]float64, 0, p)
	names := make([]string, 0, p)
	rows = append(rows, constant(p))
	names = append(names, "Const")
	for k := 1; k <= p/2; k++ {
		rows = append(rows, wave(p, k, math.Cos))
		names = append(names, fmt.Sprintf("cos %d", k))
		if 2*k == p {
			break
		}
		rows = append(rows, wave(p, k, math.Sin))
		names = append(names, fmt.Sprintf("sin %d", k))
	}
	return newBasis(p, rows, names), nil
}

// NewSinBasis builds the sine-only variant: the constant row and sin k for
// k = 1..p-1, each scaled to unit norm.
func NewSinBasis(p int) (*Basis, error) {
	if p < 2 {
		return nil, fmt.Errorf("fourier: NewSinBasis: p must be >= 2, got %d", p)
	}
	rows := make([][]float64, 0, p)
	names := make([]string, 0, p)
	rows = append(rows, constant(p))
	names = append(names, "Const")
	for k := 1; k < p; k++ {
		rows = append(rows, wave(p, k, math.Sin))
		names = append(names, fmt.Sprintf("sin %d", k))
	}
	return newBasis(p, rows, names), nil
}

func newBasis(p int, rows [][]float64, names []string) *Basis {
	m := mat.NewDense(len(rows), p, nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return &Basis{P: p, Vectors: m, Names: names}
}

func constant(p int) []float64 {
	v := make([]float64, p)
	for i := range v {
		v[i] = 1 / math.Sqrt(float64(p))
	}
	return v
}

// wave returns f(2*pi*k*x/p) over x in [0, p), normalised.
func wave(p, k int, f func(float64) float64) []float64 {
	v := make([]float64, p)
	for x := range v {
		v[x] = f(2 * math.Pi * float64(x) * float64(k) / float64(p))
	}
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
	return v
}

// Len is the number of basis vectors.
func (b *Basis) Len() int {
	r, _ := b.Vectors.Dims()
	return r
}

// Row returns a copy of basis vector i. Negative indices count from the end,
// so Row(-1) is the last vector.
func (b *Basis) Row(i int) ([]float64, error) {
	k, err := b.resolve(i)
	if err != nil {
		return nil, err
	}
	return mat.Row(nil, k, b.Vectors), nil
}

func (b *Basis) resolve(i int) (int, error) {
	n := b.Len()
	if i < -n || i >= n {
		return 0, fmt.Errorf("fourier: basis index %d out of range for %d vectors", i, n)
	}
	if i < 0 {
		i += n
	}
	return i, nil
}
