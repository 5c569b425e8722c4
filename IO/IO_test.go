package IO

import (
	"context"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/manningwu07/grokking/data"
	"github.com/manningwu07/grokking/params"
)

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ps := map[string]*mat.Dense{
		"embed.W_E": mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6}),
		"mlp.b_in":  mat.NewDense(2, 1, []float64{-1, 0.5}),
	}
	split, _ := data.GenTrainTest(0.3, 5, 1)
	ck := &Checkpoint{
		FnName: "add",
		Epoch:  7,
		Config: params.Config,
		Params: SnapshotParams(ps),
		Train:  split.Train,
		Test:   split.Test,
	}
	path := CheckpointPath(dir, "add", "init")
	if filepath.Base(path) != "add-init.gob" {
		t.Fatalf("unexpected path %s", path)
	}
	if err := SaveCheckpoint(path, ck); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Epoch != 7 || got.FnName != "add" || len(got.Train) != len(split.Train) || got.Test[0] != split.Test[0] {
		t.Fatalf("checkpoint fields lost: %+v", got)
	}

	// a snapshot must not alias the live params
	ps["embed.W_E"].Set(0, 0, 100)
	dst := map[string]*mat.Dense{
		"embed.W_E": mat.NewDense(2, 3, nil),
		"mlp.b_in":  mat.NewDense(2, 1, nil),
	}
	if err := RestoreParams(dst, got.Params); err != nil {
		t.Fatal(err)
	}
	if dst["embed.W_E"].At(0, 0) != 1 || dst["mlp.b_in"].At(1, 0) != 0.5 {
		t.Fatalf("restored params wrong: %v", mat.Formatted(dst["embed.W_E"]))
	}

	dst["mlp.b_in"] = mat.NewDense(3, 1, nil)
	if err := RestoreParams(dst, got.Params); err == nil {
		t.Fatal("expected shape mismatch error")
	}
	if _, err := LoadCheckpoint(filepath.Join(dir, "missing.gob")); err == nil {
		t.Fatal("expected missing file error")
	}
}

func TestLossCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "add-losses.csv")
	train := []float64{4.7, 0.01, 1e-9}
	test := []float64{4.8, 4.9, 0.002}
	if err := WriteLossCSV(path, train, test); err != nil {
		t.Fatal(err)
	}
	gotTrain, gotTest, err := ReadLossCSV(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := range train {
		if gotTrain[i] != train[i] || gotTest[i] != test[i] {
			t.Fatalf("row %d: got (%v, %v)", i, gotTrain[i], gotTest[i])
		}
	}
	if err := WriteLossCSV(path, train, test[:1]); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestRunStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenRunStore(filepath.Join(t.TempDir(), "runs.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	id, err := s.StartRun(ctx, "grok_1", "add", params.Config)
	if err != nil {
		t.Fatal(err)
	}
	rows := []LossRow{{0, 4.7, 4.8}, {1, 4.1, 4.9}, {2, 3.0, 5.0}}
	if err := s.LogLosses(ctx, id, rows[:2]); err != nil {
		t.Fatal(err)
	}
	if err := s.LogLosses(ctx, id, rows[2:]); err != nil {
		t.Fatal(err)
	}
	got, err := s.Losses(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[2] != rows[2] {
		t.Fatalf("losses = %+v", got)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Finished {
		t.Fatalf("runs before finish = %+v", runs)
	}
	if err := s.FinishRun(ctx, id, 2, 3.0, 5.0); err != nil {
		t.Fatal(err)
	}
	runs, _ = s.Runs(ctx)
	if !runs[0].Finished || runs[0].FinalEpoch != 2 || runs[0].FnName != "add" {
		t.Fatalf("runs after finish = %+v", runs)
	}
}

func TestPromptTokenizer(t *testing.T) {
	pt := NewPromptTokenizer(5)
	for _, text := range []string{"1 3", "1 3 ="} {
		ids, err := pt.Encode(text)
		if err != nil {
			t.Fatalf("%q: %v", text, err)
		}
		if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 5 {
			t.Fatalf("%q encoded to %v", text, ids)
		}
	}
	for _, bad := range []string{"1 7", "1", "1 2 3", "= 1 ="} {
		if _, err := pt.Encode(bad); err == nil {
			t.Fatalf("%q should not encode", bad)
		}
	}
	if pt.Decode(4) != "4" || pt.Decode(5) != "=" || pt.Decode(9) != unkToken {
		t.Fatal("decode mismatch")
	}
}
