package fourier

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Cos is the cosine similarity of two vectors.
func Cos(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("fourier: Cos: lengths %d and %d differ", len(x), len(y))
	}
	return floats.Dot(x, y) / floats.Norm(x, 2) / floats.Norm(y, 2), nil
}

// Normalize scales a matrix to unit L2 norm along axis: 0 normalises each
// column, 1 each row.
func Normalize(tensor mat.Matrix, axis int) (*mat.Dense, error) {
	out := mat.DenseCopyOf(tensor)
	r, c := out.Dims()
	switch axis {
	case 0:
		for j := 0; j < c; j++ {
			col := mat.Col(nil, j, out)
			floats.Scale(1/floats.Norm(col, 2), col)
			out.SetCol(j, col)
		}
	case 1:
		for i := 0; i < r; i++ {
			row := out.RawRowView(i)
			floats.Scale(1/floats.Norm(row, 2), row)
		}
	default:
		return nil, fmt.Errorf("fourier: Normalize: axis must be 0 or 1, got %d", axis)
	}
	return out, nil
}

// Cov is the Gram matrix T T^T, optionally after row-normalising T.
func Cov(tensor mat.Matrix, norm bool) (*mat.Dense, error) {
	t := mat.DenseCopyOf(tensor)
	if norm {
		var err error
		if t, err = Normalize(t, 1); err != nil {
			return nil, err
		}
	}
	r, _ := t.Dims()
	out := mat.NewDense(r, r, nil)
	out.Mul(t, t.T())
	return out, nil
}

// IsClose returns |a-b|^2 / |a| / |b|, zero for identical tensors.
func IsClose(a, b mat.Matrix) (float64, error) {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return 0, fmt.Errorf("fourier: IsClose: shapes %dx%d and %dx%d differ", ar, ac, br, bc)
	}
	var diff mat.Dense
	diff.Sub(a, b)
	d := mat.Norm(&diff, 2)
	return d * d / mat.Norm(a, 2) / mat.Norm(b, 2), nil
}

// UnflattenFirst reshapes each column of a (p*p x m) grid tensor into a
// (p x p) matrix indexed [x, y].
func UnflattenFirst(p int, tensor mat.Matrix) ([]*mat.Dense, error) {
	r, c := tensor.Dims()
	if r != p*p {
		return nil, fmt.Errorf("fourier: UnflattenFirst: tensor has %d rows, want p²=%d", r, p*p)
	}
	out := make([]*mat.Dense, c)
	for z := 0; z < c; z++ {
		out[z] = mat.NewDense(p, p, mat.Col(nil, z, tensor))
	}
	return out, nil
}

// FracExplained is the share of a grid's squared magnitude captured by its
// projection onto dir.
func FracExplained(dir *mat.VecDense, grid []float64) float64 {
	total := floats.Dot(grid, grid)
	if total == 0 {
		return math.NaN()
	}
	c := floats.Dot(dir.RawVector().Data, grid)
	return c * c / total
}
