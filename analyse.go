package main

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/IO"
	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/fourier"
	"github.com/manningwu07/grokking/loss"
	"github.com/manningwu07/grokking/training"
)

const numKeyFreqs = 5

type freqShare struct {
	Freq  int
	Share float64
}

// analyse loads a checkpoint, scores it on the full input grid and breaks
// its logits and the strongest MLP neuron into Fourier components.
func analyse(w io.Writer, path string, topK int) error {
	ck, err := IO.LoadCheckpoint(path)
	if err != nil {
		return err
	}
	model, err := training.ResumeModel(ck)
	if err != nil {
		return err
	}
	cfg := ck.Config
	p := cfg.P
	fn, err := data.Lookup(p, uint64(cfg.Seed), ck.FnName)
	if err != nil {
		return err
	}
	train := ck.Train
	if len(train) == 0 {
		split, err := data.GenTrainTest(cfg.FracTrain, p, cfg.Seed)
		if err != nil {
			return err
		}
		train = data.SplitFor(ck.FnName, split).Train
	}
	isTrain, isTest, err := data.MakePredicateArrays(p, train)
	if err != nil {
		return err
	}

	// last-position MLP activations of the first block, one row per input
	acts := mat.NewDense(p*p, cfg.DMLP, nil)
	row := 0
	hp, err := model.Hook("blocks.0.mlp.hook_post")
	if err != nil {
		return err
	}
	if err := hp.AddHook(func(act *mat.Dense, _ string) *mat.Dense {
		_, T := act.Dims()
		acts.SetRow(row, mat.Col(nil, T-1, act))
		row++
		return nil
	}, "fwd"); err != nil {
		return err
	}
	all := data.AllInputs(p)
	logits := loss.FinalLogits(model.Forward(data.Batch(all)))
	if err := hp.RemoveHooks("fwd"); err != nil {
		return err
	}

	pairs := [][2]string{{"fn", ck.FnName}, {"epoch", fmt.Sprint(ck.Epoch)}}
	for _, mode := range []loss.Mode{loss.ModeAll, loss.ModeTrain, loss.ModeTest} {
		l, err := loss.TestLogits(logits, loss.TestLogitsOptions{
			P: p, Fn: fn, Mode: mode, IsTrain: isTrain, IsTest: isTest,
		})
		if err != nil {
			return err
		}
		pairs = append(pairs, [2]string{string(mode) + " loss", fmt.Sprintf("%.6g", l)})
	}
	acc, err := loss.Accuracy(logits, data.Labels(fn, all))
	if err != nil {
		return err
	}
	pairs = append(pairs, [2]string{"accuracy", fmt.Sprintf("%.4f", acc)})

	basis, err := fourier.NewNeelBasis(p)
	if err != nil {
		return err
	}
	grid := mat.DenseCopyOf(logits.Slice(0, p*p, 0, p))
	shares, err := xpyShares(basis, grid)
	if err != nil {
		return err
	}
	keys := shares[:min(numKeyFreqs, len(shares))]
	for _, s := range keys {
		pairs = append(pairs, [2]string{fmt.Sprintf("freq %d", s.Freq), fmt.Sprintf("%.4f of logit norm", s.Share)})
	}

	restricted, err := restrictedLoss(basis, grid, keys, fn, isTrain, isTest)
	if err != nil {
		return err
	}
	pairs = append(pairs, [2]string{"restricted test loss", fmt.Sprintf("%.6g", restricted)})

	spectrum, err := fourier.FFT2D(basis, grid)
	if err != nil {
		return err
	}
	block, err := fourier.ExtractFreq2D(p, spectrum, keys[0].Freq)
	if err != nil {
		return err
	}
	pairs = append(pairs, [2]string{
		fmt.Sprintf("freq %d 2D block", keys[0].Freq),
		fmt.Sprintf("%.4f of spectrum", sq(block)/sq(spectrum)),
	})
	renderPairs(w, "Checkpoint "+path, pairs)

	neuron, norm := 0, -1.0
	for j := 0; j < cfg.DMLP; j++ {
		if n := mat.Norm(acts.ColView(j), 2); n > norm {
			neuron, norm = j, n
		}
	}
	rows, err := neuronFourier(basis, acts.ColView(neuron), topK)
	if err != nil {
		return err
	}
	return fourier.RenderFourierTable(w, fmt.Sprintf("Neuron %d", neuron), rows)
}

// neuronFourier ranks the 2D Fourier coefficients of one neuron's (p*p)
// activations over the input grid.
func neuronFourier(b *fourier.Basis, acts mat.Vector, topK int) ([]fourier.FourierRow, error) {
	spectrum, err := fourier.FFT2D(b, mat.DenseCopyOf(acts))
	if err != nil {
		return nil, err
	}
	return fourier.AnalyseFourier2D(b, spectrum, topK)
}

// xpyShares ranks each frequency by the share of the grid's squared norm in
// its cos(k(x+y)) and sin(k(x+y)) directions, summed over output classes.
func xpyShares(b *fourier.Basis, grid *mat.Dense) ([]freqShare, error) {
	total := sq(grid)
	out := make([]freqShare, 0, b.P/2)
	for k := 1; k <= b.P/2; k++ {
		c, err := fourier.ComponentCosXpy(b, grid, k, true)
		if err != nil {
			return nil, err
		}
		s, err := fourier.ComponentSinXpy(b, grid, k, true)
		if err != nil {
			return nil, err
		}
		out = append(out, freqShare{Freq: k, Share: (sq(c) + sq(s)) / total})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Share > out[j].Share })
	return out, nil
}

// restrictedLoss scores the logits rebuilt from the key frequencies alone,
// bias-corrected against the full logits.
func restrictedLoss(b *fourier.Basis, grid *mat.Dense, keys []freqShare, fn data.TargetFunc, isTrain, isTest []bool) (float64, error) {
	r, c := grid.Dims()
	approx := mat.NewDense(r, c, nil)
	for _, k := range keys {
		cos, err := fourier.ComponentCosXpy(b, grid, k.Freq, false)
		if err != nil {
			return 0, err
		}
		sin, err := fourier.ComponentSinXpy(b, grid, k.Freq, false)
		if err != nil {
			return 0, err
		}
		approx.Add(approx, cos)
		approx.Add(approx, sin)
	}
	return loss.TestLogits(approx, loss.TestLogitsOptions{
		P: b.P, Fn: fn, Mode: loss.ModeTest, IsTrain: isTrain, IsTest: isTest,
		BiasCorrection: true, OriginalLogits: grid,
	})
}

func sq(m mat.Matrix) float64 {
	n := mat.Norm(m, 2)
	return n * n
}
