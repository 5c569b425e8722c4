package main

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/manningwu07/grokking/IO"
	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/fourier"
	"github.com/manningwu07/grokking/params"
	"github.com/manningwu07/grokking/training"
)

func TestAsciiPlot(t *testing.T) {
	got := asciiPlot([]float64{1, 0.5, 0}, 2)
	want := "█  \n██ "
	if got != want {
		t.Fatalf("asciiPlot = %q, want %q", got, want)
	}
}

func TestLogCurveBuckets(t *testing.T) {
	losses := []float64{1, 1, 100, 100}
	lo, hi := logRange(losses)
	c := logCurve(losses, 2, lo, hi)
	if len(c) != 2 || c[0] != 0 || c[1] != 1 {
		t.Fatalf("logCurve = %v", c)
	}
}

func TestAnalyseTrainedCheckpoint(t *testing.T) {
	cfg := params.Config
	cfg.P = 7
	cfg.DModel = 8
	cfg.NumHeads = 2
	cfg.DMLP = 16
	cfg.NumEpochs = 2
	cfg.SaveModels = false
	cfg.RunRoot = t.TempDir()

	fn, _ := data.Lookup(cfg.P, 0, "add")
	split, _ := data.GenTrainTest(cfg.FracTrain, cfg.P, cfg.Seed)
	res, err := training.RunTraining(context.Background(), cfg, "add", fn, split.Train, split.Test, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := analyse(&buf, IO.CheckpointPath(res.RunDir, "add", "final"), 5); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"test loss", "restricted test loss", "freq 1", "Neuron", "Frac explained"} {
		if !strings.Contains(out, want) {
			t.Fatalf("analysis output missing %q:\n%s", want, out)
		}
	}
}

func TestNeuronFourierRanksFrequencies(t *testing.T) {
	p := 7
	b, err := fourier.NewNeelBasis(p)
	if err != nil {
		t.Fatal(err)
	}
	wave, err := fourier.CosXpyDirection(b, 1)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := neuronFourier(b, wave, 2)
	if err != nil {
		t.Fatal(err)
	}
	// cos(x+y) splits evenly between cos/cos and sin/sin.
	seen := map[string]bool{}
	for _, r := range rows {
		if r.X != r.Y || math.Abs(r.FracExplained-0.5) > 1e-9 {
			t.Fatalf("unexpected row %+v", r)
		}
		seen[r.X] = true
	}
	if !seen["cos 1"] || !seen["sin 1"] || math.Abs(rows[1].CumulativeFrac-1) > 1e-9 {
		t.Fatalf("top rows %+v", rows)
	}
}
