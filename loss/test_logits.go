package loss

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/utils"
)

// Mode selects which inputs TestLogits scores.
type Mode string

const (
	ModeAll   Mode = "all"
	ModeTrain Mode = "train"
	ModeTest  Mode = "test"
)

// TestLogitsOptions configures TestLogits.
type TestLogitsOptions struct {
	P  int
	Fn data.TargetFunc

	// BiasCorrection recentres the logits along the batch and adds back the
	// batch mean of OriginalLogits, compensating for any input-independent
	// term missing from an approximation of the logits.
	BiasCorrection bool
	OriginalLogits mat.Matrix

	Mode    Mode
	IsTrain []bool
	IsTest  []bool
}

// TestLogits scores logits for the batch of all p*p inputs in row-major
// grid order. It accepts (p*p x vocab) or (vocab x p*p) logits; a trailing
// "=" column (vocab p+1) is dropped before scoring.
func TestLogits(logits mat.Matrix, opts TestLogitsOptions) (float64, error) {
	if opts.Fn == nil {
		return 0, fmt.Errorf("loss: TestLogits: no target function")
	}
	l, err := gridLogits(opts.P, logits)
	if err != nil {
		return 0, err
	}
	p := opts.P
	if opts.BiasCorrection {
		if opts.OriginalLogits == nil {
			return 0, fmt.Errorf("loss: TestLogits: bias correction needs OriginalLogits")
		}
		orig, err := gridLogits(p, opts.OriginalLogits)
		if err != nil {
			return 0, err
		}
		diff := utils.ToDense(utils.Subtract(orig, l))
		mean := utils.SumCols(diff.T())
		mean.Scale(1/float64(p*p), mean)
		for i := 0; i < p*p; i++ {
			for j := 0; j < p; j++ {
				l.Set(i, j, l.At(i, j)+mean.At(j, 0))
			}
		}
	}

	labels := data.Labels(opts.Fn, data.AllInputs(p))
	var mask []bool
	switch opts.Mode {
	case ModeAll, "":
		return CrossEntropyHighPrecision(l, labels)
	case ModeTrain:
		mask = opts.IsTrain
	case ModeTest:
		mask = opts.IsTest
	default:
		return 0, fmt.Errorf("loss: TestLogits: unknown mode %q", opts.Mode)
	}
	if len(mask) != p*p {
		return 0, fmt.Errorf("loss: TestLogits: %s mask has length %d, want %d", opts.Mode, len(mask), p*p)
	}
	if data.Count(mask) == 0 {
		return 0, fmt.Errorf("loss: TestLogits: %s mask selects no inputs", opts.Mode)
	}
	rows, sel := maskRows(l, labels, mask)
	return CrossEntropyHighPrecision(rows, sel)
}

// gridLogits coerces logits into a fresh (p*p x p) matrix.
func gridLogits(p int, logits mat.Matrix) (*mat.Dense, error) {
	r, c := logits.Dims()
	if c == p*p && r != p*p {
		logits = logits.T()
		r, c = c, r
	}
	if r != p*p || (c != p && c != p+1) {
		return nil, fmt.Errorf("loss: TestLogits: logits are %dx%d, want %d x %d or %d x %d", r, c, p*p, p, p*p, p+1)
	}
	out := mat.NewDense(p*p, p, nil)
	out.Copy(logits)
	return out, nil
}

func maskRows(l *mat.Dense, labels []int, mask []bool) (*mat.Dense, []int) {
	_, c := l.Dims()
	out := mat.NewDense(data.Count(mask), c, nil)
	sel := make([]int, 0, data.Count(mask))
	for i, keep := range mask {
		if !keep {
			continue
		}
		out.SetRow(len(sel), l.RawRowView(i))
		sel = append(sel, labels[i])
	}
	return out, sel
}
