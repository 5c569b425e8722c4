package fourier

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// FFT1D converts each row of an (n x p) tensor into the basis: tensor * B^T.
func FFT1D(b *Basis, tensor mat.Matrix) (*mat.Dense, error) {
	r, c := tensor.Dims()
	if c != b.P {
		return nil, fmt.Errorf("fourier: FFT1D: tensor is %dx%d, want last dimension p=%d", r, c, b.P)
	}
	out := mat.NewDense(r, b.Len(), nil)
	out.Mul(tensor, b.Vectors.T())
	return out, nil
}

// IFFT1D maps basis coefficients back to R^p: coeffs * B.
func IFFT1D(b *Basis, coeffs mat.Matrix) (*mat.Dense, error) {
	r, c := coeffs.Dims()
	if c != b.Len() {
		return nil, fmt.Errorf("fourier: IFFT1D: coefficients are %dx%d, want %d columns", r, c, b.Len())
	}
	out := mat.NewDense(r, b.P, nil)
	out.Mul(coeffs, b.Vectors)
	return out, nil
}

// FFT1DVec projects a single length-p vector: B * v.
func FFT1DVec(b *Basis, v []float64) ([]float64, error) {
	if len(v) != b.P {
		return nil, fmt.Errorf("fourier: FFT1DVec: vector has length %d, want p=%d", len(v), b.P)
	}
	var out mat.VecDense
	out.MulVec(b.Vectors, mat.NewVecDense(len(v), v))
	return out.RawVector().Data, nil
}

// FFT2D converts a grid tensor into the 2D Fourier basis, transforming each
// column independently along both axes (C = B M B^T for the p x p reshape M
// of the column). The result has the shape of the input.
func FFT2D(b *Basis, tensor mat.Matrix) (*mat.Dense, error) {
	g, err := asGrid(b.P, tensor, "FFT2D")
	if err != nil {
		return nil, err
	}
	p := b.P
	_, cols := g.Dims()
	out := mat.NewDense(p*p, cols, nil)
	m := mat.NewDense(p, p, nil)
	var tmp, coeff mat.Dense
	for z := 0; z < cols; z++ {
		for x := 0; x < p; x++ {
			for y := 0; y < p; y++ {
				m.Set(x, y, g.At(x*p+y, z))
			}
		}
		tmp.Mul(b.Vectors, m)
		coeff.Mul(&tmp, b.Vectors.T())
		for f := 0; f < p; f++ {
			for ff := 0; ff < p; ff++ {
				out.Set(f*p+ff, z, coeff.At(f, ff))
			}
		}
	}
	return restoreShape(tensor, out), nil
}

// Fourier2DBasisTerm is the outer product of basis vectors xIndex (along x)
// and yIndex (along y), flattened row-major to length p*p.
func Fourier2DBasisTerm(b *Basis, xIndex, yIndex int) (*mat.VecDense, error) {
	bx, err := b.Row(xIndex)
	if err != nil {
		return nil, err
	}
	by, err := b.Row(yIndex)
	if err != nil {
		return nil, err
	}
	p := b.P
	out := make([]float64, p*p)
	for x := 0; x < p; x++ {
		for y := 0; y < p; y++ {
			out[x*p+y] = bx[x] * by[y]
		}
	}
	return mat.NewVecDense(p*p, out), nil
}

// Get2DFourierComponent projects a grid tensor onto the single 2D component
// (x, y): v v^T T.
func Get2DFourierComponent(b *Basis, tensor mat.Matrix, x, y int) (*mat.Dense, error) {
	g, err := asGrid(b.P, tensor, "Get2DFourierComponent")
	if err != nil {
		return nil, err
	}
	v, err := Fourier2DBasisTerm(b, x, y)
	if err != nil {
		return nil, err
	}
	return reconstruct(v, g), nil
}

// ExtractFreq2D selects the linear and quadratic terms of frequency freq from
// a grid tensor of 2D coefficients: the 3x3 cross product of basis indices
// {0, 2f-1, 2f} along both axes. Row 3*i+j of the (9 x m) result holds
// (index[i], index[j]).
func ExtractFreq2D(p int, tensor mat.Matrix, freq int) (*mat.Dense, error) {
	g, err := asGrid(p, tensor, "ExtractFreq2D")
	if err != nil {
		return nil, err
	}
	index1D := []int{0, 2*freq - 1, 2 * freq}
	for i, k := range index1D {
		if k < -p || k >= p {
			return nil, fmt.Errorf("fourier: ExtractFreq2D: frequency %d needs index %d outside [0,%d)", freq, k, p)
		}
		if k < 0 {
			index1D[i] = k + p
		}
	}
	_, cols := g.Dims()
	out := mat.NewDense(9, cols, nil)
	for i, xi := range index1D {
		for j, yj := range index1D {
			for z := 0; z < cols; z++ {
				out.Set(3*i+j, z, g.At(xi*p+yj, z))
			}
		}
	}
	return out, nil
}

// reconstruct returns v (v^T g) for a unit direction v.
func reconstruct(v *mat.VecDense, g *mat.Dense) *mat.Dense {
	var coeff mat.Dense
	coeff.Mul(v.T(), g) // (1 x m)
	n := v.Len()
	out := mat.NewDense(n, coeff.RawMatrix().Cols, nil)
	out.Mul(v, &coeff)
	return out
}

// asGrid normalises a grid tensor to (p*p x m). A (p x p) matrix and a
// (1 x p*p) row are read as a single flattened column.
func asGrid(p int, tensor mat.Matrix, op string) (*mat.Dense, error) {
	r, c := tensor.Dims()
	switch {
	case r == p*p:
		return mat.DenseCopyOf(tensor), nil
	case r == p && c == p:
		flat := make([]float64, 0, p*p)
		for x := 0; x < p; x++ {
			flat = append(flat, mat.Row(nil, x, tensor)...)
		}
		return mat.NewDense(p*p, 1, flat), nil
	case r == 1 && c == p*p:
		return mat.NewDense(p*p, 1, mat.Row(nil, 0, tensor)), nil
	}
	return nil, fmt.Errorf("fourier: %s: tensor is %dx%d, want p²=%d rows or a %dx%d grid", op, r, c, p*p, p, p)
}

// restoreShape lays a (p*p x 1) result back out as the caller's shape.
func restoreShape(orig mat.Matrix, out *mat.Dense) *mat.Dense {
	r, c := orig.Dims()
	sq, _ := out.Dims()
	if r == sq {
		return out
	}
	return mat.NewDense(r, c, mat.Col(nil, 0, out))
}

// flatten returns the elements of a grid tensor row-major.
func flatten(g *mat.Dense) []float64 {
	r, c := g.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, g.RawRowView(i)...)
	}
	return out
}

// dotCols is the column-wise inner product v^T g as a plain slice.
func dotCols(v []float64, g *mat.Dense) []float64 {
	_, c := g.Dims()
	out := make([]float64, c)
	for z := 0; z < c; z++ {
		out[z] = floats.Dot(v, mat.Col(nil, z, g))
	}
	return out
}
