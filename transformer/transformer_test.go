package transformer

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/loss"
	"github.com/manningwu07/grokking/params"
)

func tinyConfig(act string, useLN bool) params.TrainingConfig {
	cfg := params.Config
	cfg.P = 5
	cfg.DModel = 8
	cfg.NumHeads = 2
	cfg.DMLP = 12
	cfg.NumLayers = 2
	cfg.ActType = act
	cfg.UseLN = useLN
	return cfg
}

func tinyModel(t *testing.T, act string, useLN bool) *Transformer {
	t.Helper()
	g, err := New(tinyConfig(act, useLN), rand.NewPCG(123, 0))
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func finiteDiffCheck(t *testing.T, name string, param *mat.Dense, grad *mat.Dense,
	forward func() float64, i, j int) {
	t.Helper()
	eps := 1e-5
	w0 := param.At(i, j)

	param.Set(i, j, w0+eps)
	lp := forward()
	param.Set(i, j, w0-eps)
	lm := forward()
	param.Set(i, j, w0)

	numGrad := (lp - lm) / (2.0 * eps)
	anaGrad := 0.0
	if grad != nil {
		anaGrad = grad.At(i, j)
	}
	if math.Abs(numGrad-anaGrad) > 1e-6 {
		t.Fatalf("%s[%d,%d] grad mismatch: num=%.6g ana=%.6g", name, i, j, numGrad, anaGrad)
	}
}

func TestTransformerGradCheck(t *testing.T) {
	for _, tc := range []struct {
		act   string
		useLN bool
	}{{"GeLU", false}, {"GeLU", true}} {
		g := tinyModel(t, tc.act, tc.useLN)
		batch := [][]int{{1, 3, 5}, {4, 0, 5}}
		labels := []int{4, 4}

		forward := func() float64 {
			l, err := loss.CrossEntropyHighPrecision(loss.FinalLogits(g.Forward(batch)), labels)
			if err != nil {
				t.Fatal(err)
			}
			return l
		}
		l, grads, err := g.BatchGrads(batch, labels, 1)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(l-forward()) > 1e-12 {
			t.Fatalf("BatchGrads loss %v != forward loss %v", l, forward())
		}

		ps := g.Parameters()
		for name, p := range ps {
			r, c := p.Dims()
			for _, ij := range [][2]int{{0, 0}, {r - 1, c - 1}, {r / 2, c / 2}} {
				finiteDiffCheck(t, name, p, grads[name], forward, ij[0], ij[1])
			}
		}
		// column 2 of W_E is never looked up
		if got := mat.Norm(grads["embed.W_E"].ColView(2), 2); got != 0 {
			t.Fatalf("unused embedding column has grad norm %v", got)
		}
		if len(grads) != len(ps) {
			t.Fatalf("got %d grads for %d params", len(grads), len(ps))
		}
	}
}

func TestBatchGradsWorkersMatchSequential(t *testing.T) {
	g := tinyModel(t, "ReLU", false)
	var batch [][]int
	var labels []int
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			batch = append(batch, []int{x, y, 5})
			labels = append(labels, (x+y)%5)
		}
	}
	l1, g1, err := g.BatchGrads(batch, labels, 1)
	if err != nil {
		t.Fatal(err)
	}
	l4, g4, err := g.BatchGrads(batch, labels, 4)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(l1-l4) > 1e-12 {
		t.Fatalf("loss differs: %v vs %v", l1, l4)
	}
	for name, m := range g1 {
		if !mat.EqualApprox(m, g4[name], 1e-12) {
			t.Fatalf("grad %s differs between 1 and 4 workers", name)
		}
	}
	if _, _, err := g.BatchGrads(batch, labels[:3], 2); err == nil {
		t.Fatal("expected length mismatch error")
	}
	if _, _, err := g.BatchGrads(batch[:1], []int{6}, 1); err == nil {
		t.Fatal("expected label range error")
	}
}

func TestForwardShapes(t *testing.T) {
	g := tinyModel(t, "ReLU", false)
	out := g.Forward([][]int{{0, 1, 5}, {2, 2}})
	if r, c := out[0].Dims(); r != 6 || c != 3 {
		t.Fatalf("logits are %dx%d, want 6x3", r, c)
	}
	if _, c := out[1].Dims(); c != 2 {
		t.Fatalf("short sequence gave %d positions", c)
	}
}

func TestHooks(t *testing.T) {
	g := tinyModel(t, "ReLU", false)
	names := g.HookNames()
	if len(names) != 2+9*2 {
		t.Fatalf("got %d hook points: %v", len(names), names)
	}

	cache := map[string]*mat.Dense{}
	if err := g.CacheAll(cache, true); err != nil {
		t.Fatal(err)
	}
	base := g.ForwardSeq([]int{1, 2, 5})
	if _, _, err := g.BatchGrads([][]int{{1, 2, 5}}, []int{3}, 1); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if cache[n] == nil || cache[n+"_grad"] == nil {
			t.Fatalf("hook %s not cached in both directions", n)
		}
	}
	if r, c := cache["blocks.0.attn.hook_pattern"].Dims(); r != 2*3 || c != 3 {
		t.Fatalf("pattern is %dx%d", r, c)
	}
	// causal: first query attends only to itself
	if a := cache["blocks.0.attn.hook_pattern"].At(0, 0); math.Abs(a-1) > 1e-12 {
		t.Fatalf("first position attends %v to itself", a)
	}

	// Zeroing the MLP output of both blocks changes the logits.
	if err := g.RemoveAllHooks("both"); err != nil {
		t.Fatal(err)
	}
	for i := range g.Blocks {
		if err := g.Blocks[i].HookMlpOut.AddHook(func(act *mat.Dense, _ string) *mat.Dense {
			r, c := act.Dims()
			return mat.NewDense(r, c, nil)
		}, "fwd"); err != nil {
			t.Fatal(err)
		}
	}
	if mat.EqualApprox(base, g.ForwardSeq([]int{1, 2, 5}), 1e-12) {
		t.Fatal("ablation hook had no effect")
	}
	if err := g.RemoveAllHooks("fwd"); err != nil {
		t.Fatal(err)
	}
	if !mat.EqualApprox(base, g.ForwardSeq([]int{1, 2, 5}), 1e-12) {
		t.Fatal("removing hooks did not restore the forward pass")
	}

	hp, err := g.Hook("hook_embed")
	if err != nil {
		t.Fatal(err)
	}
	if err := hp.AddHook(nil, "both"); err == nil {
		t.Fatal("AddHook accepted direction both")
	}
	if err := hp.RemoveHooks("sideways"); err == nil {
		t.Fatal("RemoveHooks accepted an invalid direction")
	}
	if _, err := g.Hook("nope"); err == nil {
		t.Fatal("expected unknown hook error")
	}
}
