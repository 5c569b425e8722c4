package loss

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/data"
)

func TestCrossEntropyUniform(t *testing.T) {
	logits := mat.NewDense(2, 4, nil)
	got, err := CrossEntropyHighPrecision(logits, []int{0, 3})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-math.Log(4)) > 1e-12 {
		t.Fatalf("uniform loss = %v, want log 4", got)
	}
	if _, err := CrossEntropyHighPrecision(logits, []int{0, 4}); err == nil {
		t.Fatal("expected label range error")
	}
	if _, err := CrossEntropyHighPrecision(logits, []int{0}); err == nil {
		t.Fatal("expected label count error")
	}
}

func TestCrossEntropyKeepsConfidentLossResolution(t *testing.T) {
	// 1 + e^-20 rounds to 1 in float32 but not in float64.
	got, err := CrossEntropyHighPrecision32([][]float32{{0, 20}}, []int{1})
	if err != nil {
		t.Fatal(err)
	}
	want := math.Log1p(math.Exp(-20))
	if got <= 0 || math.Abs(got-want)/want > 1e-6 {
		t.Fatalf("confident loss = %.6g, want %.6g", got, want)
	}
}

func TestCrossEntropyGradFiniteDiff(t *testing.T) {
	logits := mat.NewDense(5, 1, []float64{0.3, -1.2, 2.0, 0.1, -0.4})
	label, batch := 2, 4
	_, grad := CrossEntropyGrad(logits, label, batch)

	eps := 1e-5
	for i := 0; i < 5; i++ {
		w0 := logits.At(i, 0)
		logits.Set(i, 0, w0+eps)
		lp, _ := CrossEntropyGrad(logits, label, batch)
		logits.Set(i, 0, w0-eps)
		lm, _ := CrossEntropyGrad(logits, label, batch)
		logits.Set(i, 0, w0)

		numGrad := (lp - lm) / (2.0 * eps) / float64(batch)
		anaGrad := grad.At(i, 0)
		if math.Abs(numGrad-anaGrad) > 1e-6 {
			t.Fatalf("logit[%d] grad mismatch: num=%.6g ana=%.6g", i, numGrad, anaGrad)
		}
	}
}

// oracle puts a large logit on the true answer at the final position.
type oracle struct {
	fn    data.TargetFunc
	vocab int
}

func (o oracle) Forward(batch [][]int) []*mat.Dense {
	out := make([]*mat.Dense, len(batch))
	for i, seq := range batch {
		m := mat.NewDense(o.vocab, len(seq), nil)
		m.Set(o.fn(seq[0], seq[1]), len(seq)-1, 30)
		out[i] = m
	}
	return out
}

func TestFullLossAndAccuracy(t *testing.T) {
	p := 7
	fn := data.Functions(p, 0)["add"]
	split, _ := data.GenTrainTest(0.3, p, 0)
	m := oracle{fn: fn, vocab: p + 1}

	l, err := FullLoss(fn, m, split.Train)
	if err != nil {
		t.Fatal(err)
	}
	if l > 1e-10 {
		t.Fatalf("oracle loss = %v", l)
	}
	logits := FinalLogits(m.Forward(data.Batch(split.Test)))
	acc, err := Accuracy(logits, data.Labels(fn, split.Test))
	if err != nil || acc != 1 {
		t.Fatalf("oracle accuracy = %v, %v", acc, err)
	}

	wrong := data.Functions(p, 0)["mult"]
	l2, _ := FullLoss(wrong, m, split.Train)
	if l2 < 1 {
		t.Fatalf("loss against a different function = %v", l2)
	}
}

func TestTestLogits(t *testing.T) {
	p := 5
	fn := data.Functions(p, 0)["subtract"]
	split, _ := data.GenTrainTest(0.4, p, 2)
	isTrain, isTest, _ := split.Predicates()

	orig := FinalLogits(oracle{fn: fn, vocab: p + 1}.Forward(data.Batch(data.AllInputs(p))))
	all, err := TestLogits(orig, TestLogitsOptions{P: p, Fn: fn})
	if err != nil {
		t.Fatal(err)
	}
	if all > 1e-10 {
		t.Fatalf("all-input loss = %v", all)
	}

	// Transposed input is accepted.
	tr, err := TestLogits(orig.T(), TestLogitsOptions{P: p, Fn: fn, Mode: ModeTrain, IsTrain: isTrain, IsTest: isTest})
	if err != nil || tr > 1e-10 {
		t.Fatalf("train-mode loss = %v, %v", tr, err)
	}

	// Shifting every column by a constant only matters without bias correction.
	shifted := mat.NewDense(p*p, p+1, nil)
	for i := 0; i < p*p; i++ {
		for j := 0; j < p+1; j++ {
			shifted.Set(i, j, orig.At(i, j)-float64(3*j))
		}
	}
	raw, _ := TestLogits(shifted, TestLogitsOptions{P: p, Fn: fn, Mode: ModeTest, IsTrain: isTrain, IsTest: isTest})
	fixed, err := TestLogits(shifted, TestLogitsOptions{
		P: p, Fn: fn, Mode: ModeTest, IsTrain: isTrain, IsTest: isTest,
		BiasCorrection: true, OriginalLogits: orig,
	})
	if err != nil {
		t.Fatal(err)
	}
	if fixed > 1e-10 || raw <= fixed {
		t.Fatalf("bias correction: raw=%v corrected=%v", raw, fixed)
	}

	if _, err := TestLogits(mat.NewDense(p*p, p+2, nil), TestLogitsOptions{P: p, Fn: fn}); err == nil {
		t.Fatal("expected shape error")
	}
	if _, err := TestLogits(orig, TestLogitsOptions{P: p, Fn: fn, Mode: "both"}); err == nil {
		t.Fatal("expected mode error")
	}
	if _, err := TestLogits(orig, TestLogitsOptions{P: p}); err == nil {
		t.Fatal("expected missing target function error")
	}
	if _, err := TestLogits(orig, TestLogitsOptions{}); err == nil {
		t.Fatal("expected error for zero options")
	}
}
