package optimizations

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/params"
)

func TestLinearWarmup(t *testing.T) {
	cases := []struct {
		step int
		want float64
	}{
		{0, 0}, {1, 1e-4}, {5, 5e-4}, {10, 1e-3}, {500, 1e-3},
	}
	for _, c := range cases {
		if got := LinearWarmup(c.step, 10, 1e-3); math.Abs(got-c.want) > 1e-15 {
			t.Fatalf("LinearWarmup(%d) = %v, want %v", c.step, got, c.want)
		}
	}
	if got := LinearWarmup(0, 0, 1e-3); got != 1e-3 {
		t.Fatalf("no warmup should give peak, got %v", got)
	}
}

func TestAdamFirstStepMovesByLR(t *testing.T) {
	// With bias correction the first step is lr*sign(g) for |g| >> eps.
	p := mat.NewDense(1, 2, []float64{1, -1})
	g := mat.NewDense(1, 2, []float64{0.5, -2})
	m := mat.NewDense(1, 2, nil)
	v := mat.NewDense(1, 2, nil)
	AdamUpdateInPlace(p, g, m, v, 1, 0.1, 0.9, 0.98, 1e-8, 0)
	if math.Abs(p.At(0, 0)-0.9) > 1e-6 || math.Abs(p.At(0, 1)+0.9) > 1e-6 {
		t.Fatalf("unexpected params after one step: %v", mat.Formatted(p))
	}
}

func TestAdamWDecaysWithZeroGrad(t *testing.T) {
	cfg := params.Config
	opt := NewAdamW(cfg)
	p := map[string]*mat.Dense{"w": mat.NewDense(1, 1, []float64{2})}
	g := map[string]*mat.Dense{"w": mat.NewDense(1, 1, nil)}
	if err := opt.Step(p, g, 0.01); err != nil {
		t.Fatal(err)
	}
	// update = 0 + wd*p
	if got := p["w"].At(0, 0); math.Abs(got-(2-0.01*cfg.WeightDecay*2)) > 1e-12 {
		t.Fatalf("decayed weight = %v", got)
	}
	if opt.T != 1 {
		t.Fatalf("step count = %d", opt.T)
	}
	if err := opt.Step(p, map[string]*mat.Dense{"missing": mat.NewDense(1, 1, nil)}, 0.01); err == nil {
		t.Fatal("expected unknown parameter error")
	}
}

func TestLayerNormGradFiniteDiff(t *testing.T) {
	d, T := 4, 3
	ln := NewLayerNorm(d, 1e-5)
	ln.Gamma = mat.NewDense(d, 1, []float64{1.2, 0.7, -0.4, 0.9})
	x := mat.NewDense(d, T, []float64{0.1, -0.3, 0.5, 0.9, 0.2, -0.7, -0.4, 0.6, 0.3, 0.0, -0.2, 0.8})
	w := mat.NewDense(d, T, []float64{0.5, -1, 0.3, 0.2, 0.8, -0.6, -0.9, 0.1, 0.4, 0.7, -0.2, 0.6})

	// loss = sum(w .* LN(x)), so dY = w
	forward := func() float64 {
		y := ln.Forward(x)
		s := 0.0
		for i := 0; i < d; i++ {
			for j := 0; j < T; j++ {
				s += w.At(i, j) * y.At(i, j)
			}
		}
		return s
	}
	forward()
	dX, dGamma, _ := ln.BackwardGradsOnly(w)

	check := func(name string, param, grad *mat.Dense, i, j int) {
		eps := 1e-5
		w0 := param.At(i, j)
		param.Set(i, j, w0+eps)
		lp := forward()
		param.Set(i, j, w0-eps)
		lm := forward()
		param.Set(i, j, w0)
		num := (lp - lm) / (2 * eps)
		if math.Abs(num-grad.At(i, j)) > 1e-5 {
			t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g", name, i, j, num, grad.At(i, j))
		}
	}
	check("x", x, dX, 1, 2)
	check("x", x, dX, 3, 0)
	check("gamma", ln.Gamma, dGamma, 2, 0)
}
