// Package loss scores model logits against a target function.
//
// Every log-softmax here runs in float64 with a max shift and log-sum-exp.
// At high confidence a float32 log-softmax can only return multiples of
// 1.2e-7 near zero, which shows up as loss spikes and bad gradients late in
// training, so float32 logits are upcast before any arithmetic.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/utils"
)

// Model is anything that maps a batch of token sequences to one
// (vocab x seqLen) logit matrix per sequence.
type Model interface {
	Forward(batch [][]int) []*mat.Dense
}

// LogSoftmax64 returns the log-probabilities of one row of logits.
func LogSoftmax64(row []float64) []float64 {
	mx := math.Inf(-1)
	for _, v := range row {
		if v > mx {
			mx = v
		}
	}
	sum := 0.0
	for _, v := range row {
		sum += math.Exp(v - mx)
	}
	lse := mx + math.Log(sum)
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = v - lse
	}
	return out
}

// CrossEntropyHighPrecision is the mean of -log p(label) over a
// (batch x vocab) logit matrix.
func CrossEntropyHighPrecision(logits mat.Matrix, labels []int) (float64, error) {
	r, c := logits.Dims()
	if r != len(labels) {
		return 0, fmt.Errorf("loss: CrossEntropyHighPrecision: %d rows of logits, %d labels", r, len(labels))
	}
	if r == 0 {
		return 0, fmt.Errorf("loss: CrossEntropyHighPrecision: empty batch")
	}
	total := 0.0
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		if labels[i] < 0 || labels[i] >= c {
			return 0, fmt.Errorf("loss: CrossEntropyHighPrecision: label %d out of range [0,%d)", labels[i], c)
		}
		mat.Row(row, i, logits)
		total -= LogSoftmax64(row)[labels[i]]
	}
	return total / float64(r), nil
}

// CrossEntropyHighPrecision32 upcasts float32 logits to float64 and scores them.
func CrossEntropyHighPrecision32(logits [][]float32, labels []int) (float64, error) {
	if len(logits) == 0 {
		return 0, fmt.Errorf("loss: CrossEntropyHighPrecision32: empty batch")
	}
	vocab := len(logits[0])
	up := mat.NewDense(len(logits), vocab, nil)
	for i, row := range logits {
		if len(row) != vocab {
			return 0, fmt.Errorf("loss: CrossEntropyHighPrecision32: row %d has %d logits, want %d", i, len(row), vocab)
		}
		for j, v := range row {
			up.Set(i, j, float64(v))
		}
	}
	return CrossEntropyHighPrecision(up, labels)
}

// CrossEntropyGrad returns the loss of a single (vocab x 1) logit column and
// its gradient, scaled by 1/batch so per-sample grads sum to the batch mean.
func CrossEntropyGrad(logits *mat.Dense, label, batch int) (float64, *mat.Dense) {
	r, c := logits.Dims()
	if c != 1 {
		panic("CrossEntropyGrad expects (r x 1) logits vector")
	}
	lp := LogSoftmax64(mat.Col(nil, 0, logits))
	grad := mat.NewDense(r, 1, nil)
	inv := 1 / float64(batch)
	for i := 0; i < r; i++ {
		g := math.Exp(lp[i])
		if i == label {
			g -= 1
		}
		grad.Set(i, 0, g*inv)
	}
	return -lp[label], grad
}

// FinalLogits stacks the last-position logits of each sequence into a
// (batch x vocab) matrix.
func FinalLogits(out []*mat.Dense) *mat.Dense {
	if len(out) == 0 {
		return nil
	}
	vocab, _ := out[0].Dims()
	m := mat.NewDense(len(out), vocab, nil)
	for i, o := range out {
		m.SetRow(i, mat.Col(nil, 0, utils.LastCol(o)))
	}
	return m
}

// FullLoss runs the model on every sample and returns the mean cross entropy
// of its final-position prediction against fn.
func FullLoss(fn data.TargetFunc, model Model, batch []data.Sample) (float64, error) {
	if len(batch) == 0 {
		return 0, fmt.Errorf("loss: FullLoss: empty batch")
	}
	logits := FinalLogits(model.Forward(data.Batch(batch)))
	return CrossEntropyHighPrecision(logits, data.Labels(fn, batch))
}

// Accuracy is the fraction of rows whose argmax equals the label.
func Accuracy(logits mat.Matrix, labels []int) (float64, error) {
	r, c := logits.Dims()
	if r != len(labels) || r == 0 {
		return 0, fmt.Errorf("loss: Accuracy: %d rows of logits, %d labels", r, len(labels))
	}
	correct := 0
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < c; j++ {
			if logits.At(i, j) > logits.At(i, best) {
				best = j
			}
		}
		if best == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(r), nil
}
