package optimizations

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/params"
)

// p -= lr * (mhat/(sqrt(vhat)+eps) + wd * p) with bias correction (AdamW).
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("adamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("adamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("adamUpdateInPlace: v shape mismatch")
	}
	c1 := 1.0 / (1.0 - math.Pow(beta1, float64(t)))
	c2 := 1.0 / (1.0 - math.Pow(beta2, float64(t)))
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			denom := math.Sqrt(vij*c2) + eps
			update := mij*c1/denom + weightDecay*p.At(i, j)
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*update)
		}
	}
}

// AdamW keeps moment estimates per named parameter. Weight decay is applied
// to every parameter, biases included.
type AdamW struct {
	Beta1, Beta2 float64
	Eps          float64
	WeightDecay  float64

	T int
	M map[string]*mat.Dense
	V map[string]*mat.Dense
}

func NewAdamW(cfg params.TrainingConfig) *AdamW {
	return &AdamW{
		Beta1:       cfg.Beta1,
		Beta2:       cfg.Beta2,
		Eps:         cfg.AdamEps,
		WeightDecay: cfg.WeightDecay,
		M:           make(map[string]*mat.Dense),
		V:           make(map[string]*mat.Dense),
	}
}

// Step applies one AdamW update at learning rate lr to every parameter
// that has a gradient.
func (o *AdamW) Step(ps, grads map[string]*mat.Dense, lr float64) error {
	for name := range grads {
		if _, ok := ps[name]; !ok {
			return fmt.Errorf("optimizations: AdamW.Step: gradient for unknown parameter %q", name)
		}
	}
	o.T++
	for name, g := range grads {
		p := ps[name]
		if o.M[name] == nil {
			r, c := p.Dims()
			o.M[name] = mat.NewDense(r, c, nil)
			o.V[name] = mat.NewDense(r, c, nil)
		}
		AdamUpdateInPlace(p, g, o.M[name], o.V[name], o.T, lr, o.Beta1, o.Beta2, o.Eps, o.WeightDecay)
	}
	return nil
}
