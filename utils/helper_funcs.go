package utils

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// RandomArray returns 'size' samples from N(0, 1/v), the init the grokking
// model uses for every weight (randn / sqrt(d_model)).
func RandomArray(size int, v float64, src rand.Source) []float64 {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: 1 / math.Sqrt(v+1e-12),
		Src:   src,
	}
	out := make([]float64, size)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

// RandomDense is RandomArray shaped as (r x c).
func RandomDense(r, c int, v float64, src rand.Source) *mat.Dense {
	return mat.NewDense(r, c, RandomArray(r*c, v, src))
}

func MatrixNorm(m *mat.Dense) float64 {
	if m == nil {
		return 0
	}
	return mat.Norm(m, 2)
}

func ZerosLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	return mat.NewDense(r, c, nil)
}

func OnesLike(a *mat.Dense) *mat.Dense {
	r, c := a.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, 1)
		}
	}
	return out
}
