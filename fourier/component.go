package fourier

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// CosXpyDirection is the unit grid vector of cos(freq*(x+y)*2pi/p):
// (cos_x cos_y - sin_x sin_y) / sqrt(2).
func CosXpyDirection(b *Basis, freq int) (*mat.VecDense, error) {
	cc, err := Fourier2DBasisTerm(b, 2*freq-1, 2*freq-1)
	if err != nil {
		return nil, err
	}
	ss, err := Fourier2DBasisTerm(b, 2*freq, 2*freq)
	if err != nil {
		return nil, err
	}
	var dir mat.VecDense
	dir.SubVec(cc, ss)
	dir.ScaleVec(1/math.Sqrt2, &dir)
	return &dir, nil
}

// SinXpyDirection is the unit grid vector of sin(freq*(x+y)*2pi/p):
// (sin_x cos_y + cos_x sin_y) / sqrt(2).
func SinXpyDirection(b *Basis, freq int) (*mat.VecDense, error) {
	sc, err := Fourier2DBasisTerm(b, 2*freq, 2*freq-1)
	if err != nil {
		return nil, err
	}
	cs, err := Fourier2DBasisTerm(b, 2*freq-1, 2*freq)
	if err != nil {
		return nil, err
	}
	var dir mat.VecDense
	dir.AddVec(sc, cs)
	dir.ScaleVec(1/math.Sqrt2, &dir)
	return &dir, nil
}

// ComponentCosXpy gets the cos(freq*(x+y)) component of a grid tensor. With
// collapse it returns the (1 x m) projection coefficients; otherwise the
// rank-1 reconstruction in the original (p*p x m) space.
func ComponentCosXpy(b *Basis, tensor mat.Matrix, freq int, collapse bool) (*mat.Dense, error) {
	dir, err := CosXpyDirection(b, freq)
	if err != nil {
		return nil, err
	}
	return component(b.P, dir, tensor, collapse, "ComponentCosXpy")
}

// ComponentSinXpy is ComponentCosXpy for sin(freq*(x+y)).
func ComponentSinXpy(b *Basis, tensor mat.Matrix, freq int, collapse bool) (*mat.Dense, error) {
	dir, err := SinXpyDirection(b, freq)
	if err != nil {
		return nil, err
	}
	return component(b.P, dir, tensor, collapse, "ComponentSinXpy")
}

func component(p int, dir *mat.VecDense, tensor mat.Matrix, collapse bool, op string) (*mat.Dense, error) {
	g, err := asGrid(p, tensor, op)
	if err != nil {
		return nil, err
	}
	if collapse {
		coeff := dotCols(dir.RawVector().Data, g)
		return mat.NewDense(1, len(coeff), coeff), nil
	}
	return reconstruct(dir, g), nil
}
